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

package tiered

import (
	"github.com/vortexlabs/tierstream/internal/activestore"
	"github.com/vortexlabs/tierstream/internal/archive"
	"github.com/vortexlabs/tierstream/internal/caching"
	"github.com/vortexlabs/tierstream/internal/emitting"
	"github.com/vortexlabs/tierstream/internal/replay"
	"github.com/vortexlabs/tierstream/internal/routing"
	"github.com/vortexlabs/tierstream/internal/snapshotting"
	"github.com/vortexlabs/tierstream/internal/stats"
	"github.com/vortexlabs/tierstream/spi/cdc"
	"github.com/vortexlabs/tierstream/spi/checkpoint"
	spiconfig "github.com/vortexlabs/tierstream/spi/config"
	"github.com/vortexlabs/tierstream/spi/destination"
	"github.com/vortexlabs/tierstream/spi/objectstore"
	"github.com/vortexlabs/tierstream/spi/wiring"
)

var StaticModule = wiring.DefineModule(
	"Static", func(module wiring.Module) {
		module.Provide(stats.NewStatsService)
		module.Provide(emitting.NewEmitter)
		module.Provide(activestore.NewStore)
		module.Provide(archive.NewArchiveStore)
		module.Provide(snapshotting.NewManager)
		module.Provide(NewTieredStore)

		module.Provide(func(
			c *spiconfig.Config, service *stats.Service,
		) (*caching.Cache, error) {

			cached, err := caching.NewCache(c)
			if err != nil {
				return nil, err
			}
			return cached.WithReporter(service.NewReporter("cache_")), nil
		})

		module.Provide(func(
			active *activestore.Store, archiveStore *archive.ArchiveStore,
			service *stats.Service,
		) (*replay.Replayer, error) {
			// Necessary since the Replayer is looking for its source
			// interfaces, not the concrete tiers implementing them.
			replayer, err := replay.NewReplayer(active, archiveStore)
			if err != nil {
				return nil, err
			}
			return replayer.WithReporter(service.NewReporter("replay_")), nil
		})
	},
)

var DynamicModule = wiring.DefineModule(
	"Dynamic",
	func(module wiring.Module) {
		module.Provide(func(c *spiconfig.Config) (objectstore.Store, error) {
			name := spiconfig.GetOrDefault(
				c, spiconfig.PropertyObjectStoreType, spiconfig.MemoryObjectStore,
			)
			return objectstore.NewObjectStore(name, c)
		})

		module.Provide(func(c *spiconfig.Config) (checkpoint.Storage, error) {
			name := spiconfig.GetOrDefault(
				c, spiconfig.PropertyCheckpointStorageType, spiconfig.MemoryCheckpointStorage,
			)
			return checkpoint.NewCheckpointStorage(name, c)
		})

		module.Provide(func(
			c *spiconfig.Config, service *stats.Service,
		) (*routing.Router, error) {

			destinations := make([]destination.Destination, 0, len(c.Router.Destinations))
			for _, dc := range c.Router.Destinations {
				d, err := destination.NewDestination(c, dc)
				if err != nil {
					return nil, err
				}
				destinations = append(destinations, d)
			}

			router, err := routing.NewRouter(c, destinations...)
			if err != nil {
				return nil, err
			}
			return router.WithReporter(service.NewReporter("router_")), nil
		})

		// Every emitted batch flows into the router buffer, routing and
		// tier bookkeeping stay decoupled from the write path.
		module.Invoke(func(
			emitter *emitting.Emitter, router *routing.Router,
		) error {

			emitter.RegisterBatchHandler(func(events []*cdc.ChangeEvent) error {
				for _, event := range events {
					if err := router.Enqueue(event); err != nil {
						return err
					}
				}
				return nil
			})
			return nil
		})
	},
)
