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
	"testing"

	"github.com/stretchr/testify/assert"
	_ "github.com/vortexlabs/tierstream/internal/caches/memory"
	_ "github.com/vortexlabs/tierstream/internal/checkpoints/memory"
	_ "github.com/vortexlabs/tierstream/internal/destinations/stdout"
	_ "github.com/vortexlabs/tierstream/internal/objectstores/memory"
	"github.com/vortexlabs/tierstream/internal/replay"
	"github.com/vortexlabs/tierstream/spi/cdc"
	spiconfig "github.com/vortexlabs/tierstream/spi/config"
)

func testEngineConfig() *spiconfig.Config {
	disabled := false
	c := &spiconfig.Config{}
	c.Stats.Enabled = &disabled
	c.Stats.Runtime = &disabled
	return c
}

func Test_Engine_Bootstraps_From_Default_Backends(
	t *testing.T,
) {

	engine, err := NewEngine(testEngineConfig())
	assert.NoError(t, err)

	assert.NoError(t, engine.Start())
	defer func() {
		assert.NoError(t, engine.Stop())
	}()

	_, err = engine.Store().Insert("users", map[string]any{"id": "u1", "name": "A"})
	assert.NoError(t, err)

	document, err := engine.Store().Get("users", "u1")
	assert.NoError(t, err)
	assert.Equal(t, "A", document["name"])

	batch, err := engine.Store().Replayer().GetBatch(
		context.Background(), replay.ReplayOptions{},
	)
	assert.NoError(t, err)
	assert.Len(t, batch.Events, 1)
}

func Test_Engine_Subscriptions_Use_The_Wired_Checkpoints(
	t *testing.T,
) {

	engine, err := NewEngine(testEngineConfig())
	assert.NoError(t, err)

	subscription, err := engine.Subscribe(
		replay.SubscriptionOptions{SubscriberID: "audit"},
		func(*cdc.Batch) error {
			return nil
		},
	)
	assert.NoError(t, err)
	assert.NotNil(t, subscription)

	_, err = engine.Subscribe(replay.SubscriptionOptions{}, nil)
	assert.Error(t, err)
}
