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
	"context"

	"github.com/vortexlabs/tierstream/spi/cdc"
	"github.com/vortexlabs/tierstream/spi/config"
)

type Factory = func(c *config.Config, dc config.DestinationConfig) (Destination, error)

// Destination receives batches of change events from the event router.
// Deliver errors are retried and circuit broken by the router, a single
// destination never blocks its siblings.
type Destination interface {
	Start() error
	Stop() error
	Name() string
	Deliver(
		ctx context.Context, events []*cdc.ChangeEvent,
	) error
}

type DestinationFunc func(ctx context.Context, events []*cdc.ChangeEvent) error

func (df DestinationFunc) Start() error {
	return nil
}

func (df DestinationFunc) Stop() error {
	return nil
}

func (df DestinationFunc) Name() string {
	return "func"
}

func (df DestinationFunc) Deliver(
	ctx context.Context, events []*cdc.ChangeEvent,
) error {

	return df(ctx, events)
}
