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

package destination

import (
	"sync"

	"github.com/go-errors/errors"
	"github.com/vortexlabs/tierstream/spi/config"
)

var destinationRegistry *registry

func init() {
	destinationRegistry = &registry{
		mutex:     sync.Mutex{},
		factories: make(map[config.DestinationType]Factory),
	}
}

type registry struct {
	mutex     sync.Mutex
	factories map[config.DestinationType]Factory
}

func RegisterDestination(
	name config.DestinationType, factory Factory,
) bool {

	destinationRegistry.mutex.Lock()
	defer destinationRegistry.mutex.Unlock()
	if _, present := destinationRegistry.factories[name]; !present {
		destinationRegistry.factories[name] = factory
		return true
	}
	return false
}

func NewDestination(
	c *config.Config, dc config.DestinationConfig,
) (Destination, error) {

	destinationRegistry.mutex.Lock()
	defer destinationRegistry.mutex.Unlock()
	if f, present := destinationRegistry.factories[dc.Type]; present {
		return f(c, dc)
	}
	return nil, errors.Errorf("DestinationType '%s' doesn't exist", dc.Type)
}
