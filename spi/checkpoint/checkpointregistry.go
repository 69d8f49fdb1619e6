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

package checkpoint

import (
	"sync"

	"github.com/go-errors/errors"
	"github.com/vortexlabs/tierstream/spi/config"
)

type Provider = func(config *config.Config) (Storage, error)

var checkpointStorageRegistry *registry

func init() {
	checkpointStorageRegistry = &registry{
		mutex:     sync.Mutex{},
		providers: make(map[config.CheckpointStorageType]Provider),
	}
}

type registry struct {
	mutex     sync.Mutex
	providers map[config.CheckpointStorageType]Provider
}

func RegisterCheckpointStorage(
	name config.CheckpointStorageType, provider Provider,
) bool {

	checkpointStorageRegistry.mutex.Lock()
	defer checkpointStorageRegistry.mutex.Unlock()
	if _, present := checkpointStorageRegistry.providers[name]; !present {
		checkpointStorageRegistry.providers[name] = provider
		return true
	}
	return false
}

func NewCheckpointStorage(
	name config.CheckpointStorageType, config *config.Config,
) (Storage, error) {

	checkpointStorageRegistry.mutex.Lock()
	defer checkpointStorageRegistry.mutex.Unlock()
	if p, present := checkpointStorageRegistry.providers[name]; present {
		return p(config)
	}
	return nil, errors.Errorf("CheckpointStorageType '%s' doesn't exist", name)
}
