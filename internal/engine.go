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

package internal

import (
	"context"

	"github.com/vortexlabs/tierstream/internal/logging"
	"github.com/vortexlabs/tierstream/internal/replay"
	"github.com/vortexlabs/tierstream/internal/routing"
	"github.com/vortexlabs/tierstream/internal/snapshotting"
	"github.com/vortexlabs/tierstream/internal/stats"
	"github.com/vortexlabs/tierstream/internal/tiered"
	"github.com/vortexlabs/tierstream/spi/checkpoint"
	spiconfig "github.com/vortexlabs/tierstream/spi/config"
	"github.com/vortexlabs/tierstream/spi/objectstore"
	"github.com/vortexlabs/tierstream/spi/wiring"
)

// Engine wires the tiers together and owns their lifecycles. Everything
// inside is resolved from the wiring container, NewEngine fails when a
// configured backend isn't registered.
type Engine struct {
	config *spiconfig.Config

	objectStore  objectstore.Store
	checkpoints  checkpoint.Storage
	store        *tiered.TieredStore
	router       *routing.Router
	snapshots    *snapshotting.Manager
	statsService *stats.Service

	logger *logging.Logger
}

func NewEngine(
	c *spiconfig.Config,
) (*Engine, error) {

	logger, err := logging.NewLogger("Engine")
	if err != nil {
		return nil, err
	}

	container, err := wiring.NewContainer(
		wiring.DefineModule("Configuration", func(module wiring.Module) {
			module.Provide(func() *spiconfig.Config {
				return c
			})
		}),
		tiered.StaticModule,
		tiered.DynamicModule,
	)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config: c,
		logger: logger,
	}

	if err := container.Service(&engine.objectStore); err != nil {
		return nil, err
	}
	if err := container.Service(&engine.checkpoints); err != nil {
		return nil, err
	}
	if err := container.Service(&engine.store); err != nil {
		return nil, err
	}
	if err := container.Service(&engine.router); err != nil {
		return nil, err
	}
	if err := container.Service(&engine.snapshots); err != nil {
		return nil, err
	}
	if err := container.Service(&engine.statsService); err != nil {
		return nil, err
	}
	return engine, nil
}

func (e *Engine) Store() *tiered.TieredStore {
	return e.store
}

func (e *Engine) Router() *routing.Router {
	return e.router
}

func (e *Engine) Snapshots() *snapshotting.Manager {
	return e.snapshots
}

func (e *Engine) Checkpoints() checkpoint.Storage {
	return e.checkpoints
}

// Subscribe creates a checkpointed subscription feeding the handler from
// the replay pipeline. The subscription is not started.
func (e *Engine) Subscribe(
	options replay.SubscriptionOptions, handler replay.BatchHandler,
) (*replay.Subscription, error) {

	return replay.NewSubscription(
		e.store.Replayer(), e.checkpoints, handler, options,
	)
}

func (e *Engine) Start() error {
	if err := e.objectStore.Start(); err != nil {
		return err
	}
	if err := e.checkpoints.Start(); err != nil {
		return err
	}
	if err := e.store.Cache().Start(); err != nil {
		return err
	}
	if err := e.store.Archiver().Start(); err != nil {
		return err
	}
	if err := e.router.Start(); err != nil {
		return err
	}
	if err := e.statsService.Start(); err != nil {
		return err
	}
	e.logger.Infoln("Engine started")
	return nil
}

func (e *Engine) Stop() error {
	// Flush buffered emissions and drain what they enqueued before the
	// destinations go away.
	e.store.Active().Emitter().Flush()
	if _, err := e.router.Drain(context.Background()); err != nil {
		e.logger.Warnf("draining router on shutdown failed: %v", err)
	}
	if _, err := e.store.Sync(context.Background()); err != nil {
		e.logger.Warnf("final archive sync on shutdown failed: %v", err)
	}

	if err := e.statsService.Stop(); err != nil {
		return err
	}
	if err := e.router.Stop(); err != nil {
		return err
	}
	if err := e.store.Archiver().Stop(); err != nil {
		return err
	}
	if err := e.store.Cache().Stop(); err != nil {
		return err
	}
	if err := e.checkpoints.Stop(); err != nil {
		return err
	}
	if err := e.objectStore.Stop(); err != nil {
		return err
	}
	e.logger.Infoln("Engine stopped")
	return nil
}
