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

package objectstore

import (
	"sync"

	"github.com/go-errors/errors"
	"github.com/vortexlabs/tierstream/spi/config"
)

type Provider = func(config *config.Config) (Store, error)

var objectStoreRegistry *registry

func init() {
	objectStoreRegistry = &registry{
		mutex:     sync.Mutex{},
		providers: make(map[config.ObjectStoreType]Provider),
	}
}

type registry struct {
	mutex     sync.Mutex
	providers map[config.ObjectStoreType]Provider
}

// RegisterObjectStore registers a config.ObjectStoreType to a Provider
// implementation which creates the Store when requested
func RegisterObjectStore(
	name config.ObjectStoreType, provider Provider,
) bool {

	objectStoreRegistry.mutex.Lock()
	defer objectStoreRegistry.mutex.Unlock()
	if _, present := objectStoreRegistry.providers[name]; !present {
		objectStoreRegistry.providers[name] = provider
		return true
	}
	return false
}

// NewObjectStore instantiates a new instance of the requested
// Store when available, otherwise returns an error.
func NewObjectStore(
	name config.ObjectStoreType, config *config.Config,
) (Store, error) {

	objectStoreRegistry.mutex.Lock()
	defer objectStoreRegistry.mutex.Unlock()
	if p, present := objectStoreRegistry.providers[name]; present {
		return p(config)
	}
	return nil, errors.Errorf("ObjectStoreType '%s' doesn't exist", name)
}
