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
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	spiconfig "github.com/vortexlabs/tierstream/spi/config"
	"github.com/vortexlabs/tierstream/spi/objectstore"
)

func init() {
	objectstore.RegisterObjectStore(spiconfig.MemoryObjectStore, newMemoryObjectStore)
}

// memoryObjectStore keeps all objects in process memory. Listing returns
// keys in lexicographic order like a real object store would.
type memoryObjectStore struct {
	mutex   sync.RWMutex
	objects map[string]*objectstore.Object
}

func newMemoryObjectStore(
	_ *spiconfig.Config,
) (objectstore.Store, error) {

	return NewMemoryObjectStore(), nil
}

func NewMemoryObjectStore() objectstore.Store {
	return &memoryObjectStore{
		objects: make(map[string]*objectstore.Object),
	}
}

func (m *memoryObjectStore) Start() error {
	return nil
}

func (m *memoryObjectStore) Stop() error {
	return nil
}

func (m *memoryObjectStore) Put(
	_ context.Context, key string, body []byte, options objectstore.PutOptions,
) (*objectstore.Ref, error) {

	m.mutex.Lock()
	defer m.mutex.Unlock()

	stored := make([]byte, len(body))
	copy(stored, body)

	etag := sha256.Sum256(body)
	ref := objectstore.Ref{
		Key:            key,
		Size:           int64(len(body)),
		ContentType:    options.ContentType,
		ETag:           hex.EncodeToString(etag[:8]),
		Uploaded:       time.Now().UTC(),
		CustomMetadata: options.CustomMetadata,
	}
	m.objects[key] = &objectstore.Object{
		Ref:  ref,
		Body: stored,
	}
	return &ref, nil
}

func (m *memoryObjectStore) Get(
	_ context.Context, key string,
) (*objectstore.Object, error) {

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	object, present := m.objects[key]
	if !present {
		return nil, nil
	}

	body := make([]byte, len(object.Body))
	copy(body, object.Body)
	return &objectstore.Object{
		Ref:  object.Ref,
		Body: body,
	}, nil
}

func (m *memoryObjectStore) Delete(
	_ context.Context, keys ...string,
) error {

	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, key := range keys {
		delete(m.objects, key)
	}
	return nil
}

func (m *memoryObjectStore) List(
	_ context.Context, options objectstore.ListOptions,
) (*objectstore.ListResult, error) {

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		if strings.HasPrefix(key, options.Prefix) && key > options.Cursor {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	result := &objectstore.ListResult{
		Objects: make([]objectstore.Ref, 0, len(keys)),
	}
	for _, key := range keys {
		if options.Limit > 0 && len(result.Objects) >= options.Limit {
			result.Truncated = true
			result.Cursor = result.Objects[len(result.Objects)-1].Key
			break
		}
		result.Objects = append(result.Objects, m.objects[key].Ref)
	}
	return result, nil
}

func (m *memoryObjectStore) Head(
	_ context.Context, key string,
) (*objectstore.Ref, error) {

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	object, present := m.objects[key]
	if !present {
		return nil, nil
	}
	ref := object.Ref
	return &ref, nil
}
