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

package redis

import (
	"context"

	"github.com/go-redis/redis"
	"github.com/goccy/go-json"
	"github.com/vortexlabs/tierstream/spi/cdc"
	spiconfig "github.com/vortexlabs/tierstream/spi/config"
	"github.com/vortexlabs/tierstream/spi/destination"
)

func init() {
	destination.RegisterDestination(spiconfig.Redis, newRedisDestination)
}

type redisDestination struct {
	name    string
	channel string
	client  *redis.Client
}

func newRedisDestination(
	_ *spiconfig.Config, dc spiconfig.DestinationConfig,
) (destination.Destination, error) {

	address := dc.Redis.Address
	if address == "" {
		address = "localhost:6379"
	}
	network := dc.Redis.Network
	if network == "" {
		network = "tcp"
	}

	client := redis.NewClient(&redis.Options{
		Network:  network,
		Addr:     address,
		Password: dc.Redis.Password,
		DB:       dc.Redis.Database,
		PoolSize: dc.Redis.PoolSize,
	})

	name := dc.Name
	if name == "" {
		name = "redis"
	}
	return &redisDestination{
		name:    name,
		channel: dc.Redis.Channel,
		client:  client,
	}, nil
}

func (r *redisDestination) Start() error {
	return r.client.Ping().Err()
}

func (r *redisDestination) Stop() error {
	return r.client.Close()
}

func (r *redisDestination) Name() string {
	return r.name
}

func (r *redisDestination) Deliver(
	_ context.Context, events []*cdc.ChangeEvent,
) error {

	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		if err := r.client.XAdd(&redis.XAddArgs{
			Stream: r.channel,
			Values: map[string]any{
				"documentId": event.DocumentID,
				"event":      string(data),
			},
		}).Err(); err != nil {
			return err
		}
	}
	return nil
}
