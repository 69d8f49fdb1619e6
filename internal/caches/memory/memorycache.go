/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements. See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License. You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package memory

import (
	"sort"
	"sync"

	"github.com/vortexlabs/tierstream/spi/cache"
	spiconfig "github.com/vortexlabs/tierstream/spi/config"
)

func init() {
	cache.RegisterCacheBackend(
		spiconfig.MemoryCache, newMemoryCacheBackend,
	)
}

type memoryCacheBackend struct {
	mutex   sync.Mutex
	entries map[string]*cache.Entry
}

func newMemoryCacheBackend(
	_ *spiconfig.Config,
) (cache.Backend, error) {

	return NewMemoryCacheBackend(), nil
}

func NewMemoryCacheBackend() cache.Backend {
	return &memoryCacheBackend{
		entries: make(map[string]*cache.Entry),
	}
}

func (m *memoryCacheBackend) Start() error {
	return nil
}

func (m *memoryCacheBackend) Stop() error {
	return nil
}

func (m *memoryCacheBackend) Get(
	key string,
) (*cache.Entry, error) {

	m.mutex.Lock()
	defer m.mutex.Unlock()

	entry, present := m.entries[key]
	if !present {
		return nil, nil
	}
	copied := *entry
	return &copied, nil
}

func (m *memoryCacheBackend) Set(
	key string, entry *cache.Entry,
) error {

	m.mutex.Lock()
	defer m.mutex.Unlock()

	copied := *entry
	m.entries[key] = &copied
	return nil
}

func (m *memoryCacheBackend) Delete(
	keys ...string,
) error {

	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, key := range keys {
		delete(m.entries, key)
	}
	return nil
}

func (m *memoryCacheBackend) Keys() ([]string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	keys := make([]string, 0, len(m.entries))
	for key := range m.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}
