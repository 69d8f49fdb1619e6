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
	"strings"
	"time"

	"github.com/go-errors/errors"
	"github.com/go-redis/redis"
	"github.com/goccy/go-json"
	"github.com/vortexlabs/tierstream/spi/cache"
	spiconfig "github.com/vortexlabs/tierstream/spi/config"
)

const keyPrefix = "tierstream:cache:"

func init() {
	cache.RegisterCacheBackend(
		spiconfig.RedisCache, newRedisCacheBackend,
	)
}

// redisCacheBackend keeps entries as json blobs under a shared prefix.
// Entries with an expiry additionally carry a redis TTL so the server
// drops them on its own.
type redisCacheBackend struct {
	client *redis.Client
}

func newRedisCacheBackend(
	c *spiconfig.Config,
) (cache.Backend, error) {

	address := c.Cache.Redis.Address
	if address == "" {
		address = "localhost:6379"
	}
	network := c.Cache.Redis.Network
	if network == "" {
		network = "tcp"
	}

	client := redis.NewClient(&redis.Options{
		Network:  network,
		Addr:     address,
		Password: c.Cache.Redis.Password,
		DB:       c.Cache.Redis.Database,
		PoolSize: c.Cache.Redis.PoolSize,
	})
	return &redisCacheBackend{
		client: client,
	}, nil
}

func (r *redisCacheBackend) Start() error {
	return r.client.Ping().Err()
}

func (r *redisCacheBackend) Stop() error {
	return r.client.Close()
}

func (r *redisCacheBackend) Get(
	key string,
) (*cache.Entry, error) {

	data, err := r.client.Get(keyPrefix + key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, errors.Wrap(err, 0)
	}

	entry := &cache.Entry{}
	if err := json.Unmarshal(data, entry); err != nil {
		return nil, errors.Wrap(err, 0)
	}
	return entry, nil
}

func (r *redisCacheBackend) Set(
	key string, entry *cache.Entry,
) error {

	data, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, 0)
	}

	ttl := time.Duration(0)
	if !entry.ExpiresAt.IsZero() {
		ttl = time.Until(entry.ExpiresAt)
		if ttl <= 0 {
			ttl = time.Millisecond
		}
	}
	if err := r.client.Set(keyPrefix+key, data, ttl).Err(); err != nil {
		return errors.Wrap(err, 0)
	}
	return nil
}

func (r *redisCacheBackend) Delete(
	keys ...string,
) error {

	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = keyPrefix + key
	}
	if err := r.client.Del(prefixed...).Err(); err != nil {
		return errors.Wrap(err, 0)
	}
	return nil
}

func (r *redisCacheBackend) Keys() ([]string, error) {
	prefixed, err := r.client.Keys(keyPrefix + "*").Result()
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	keys := make([]string, 0, len(prefixed))
	for _, key := range prefixed {
		keys = append(keys, strings.TrimPrefix(key, keyPrefix))
	}
	return keys, nil
}
