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

package cache

import (
	"sync"

	"github.com/go-errors/errors"
	"github.com/vortexlabs/tierstream/spi/config"
)

type Provider = func(config *config.Config) (Backend, error)

var cacheBackendRegistry *registry

func init() {
	cacheBackendRegistry = &registry{
		mutex:     sync.Mutex{},
		providers: make(map[config.CacheType]Provider),
	}
}

type registry struct {
	mutex     sync.Mutex
	providers map[config.CacheType]Provider
}

func RegisterCacheBackend(
	name config.CacheType, provider Provider,
) bool {

	cacheBackendRegistry.mutex.Lock()
	defer cacheBackendRegistry.mutex.Unlock()
	if _, present := cacheBackendRegistry.providers[name]; !present {
		cacheBackendRegistry.providers[name] = provider
		return true
	}
	return false
}

func NewCacheBackend(
	name config.CacheType, config *config.Config,
) (Backend, error) {

	cacheBackendRegistry.mutex.Lock()
	defer cacheBackendRegistry.mutex.Unlock()
	if p, present := cacheBackendRegistry.providers[name]; present {
		return p(config)
	}
	return nil, errors.Errorf("CacheType '%s' doesn't exist", name)
}
