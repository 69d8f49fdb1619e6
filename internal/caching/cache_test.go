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

package caching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vortexlabs/tierstream/internal/caches/memory"
	"github.com/vortexlabs/tierstream/spi/cache"
	spiconfig "github.com/vortexlabs/tierstream/spi/config"
)

func newTestCache(
	t *testing.T, c *spiconfig.Config,
) *Cache {

	t.Helper()
	cached, err := NewCacheWithBackend(c, memory.NewMemoryCacheBackend())
	assert.NoError(t, err)
	return cached
}

func Test_Cache_Key_Is_Colon_Joined(
	t *testing.T,
) {

	assert.Equal(t, "users:u1:profile", cache.Key("users", "u1", "profile"))
	assert.Equal(t, "users", cache.Key("users"))
}

func Test_Cache_Get_Or_Compute(
	t *testing.T,
) {

	cached := newTestCache(t, &spiconfig.Config{})

	computed := 0
	compute := func() (any, error) {
		computed++
		return "value", nil
	}

	value, hit, err := cached.GetOrCompute("users:u1", compute, Options{})
	assert.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "value", value)

	value, hit, err = cached.GetOrCompute("users:u1", compute, Options{})
	assert.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "value", value)
	assert.Equal(t, 1, computed)
}

func Test_Cache_Hits_Are_Isolated_From_Caller_Mutation(
	t *testing.T,
) {

	cached := newTestCache(t, &spiconfig.Config{})

	assert.NoError(t, cached.Set("users:u1", map[string]any{
		"name": "alice",
		"tags": []any{"admin"},
	}, Options{}))

	value, hit, err := cached.Get("users:u1")
	assert.NoError(t, err)
	assert.True(t, hit)

	document := value.(map[string]any)
	document["name"] = "mallory"
	document["tags"].([]any)[0] = "root"

	value, hit, err = cached.Get("users:u1")
	assert.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, map[string]any{
		"name": "alice",
		"tags": []any{"admin"},
	}, value)
}

func Test_Cache_Compute_Errors_Are_Not_Cached(
	t *testing.T,
) {

	cached := newTestCache(t, &spiconfig.Config{})

	_, _, err := cached.GetOrCompute("users:u1", func() (any, error) {
		return nil, assert.AnError
	}, Options{})
	assert.Error(t, err)

	_, hit, err := cached.Get("users:u1")
	assert.NoError(t, err)
	assert.False(t, hit)
}

func Test_Cache_Entries_Expire(
	t *testing.T,
) {

	cached := newTestCache(t, &spiconfig.Config{})

	assert.NoError(t, cached.Set("users:u1", "value", Options{
		MaxAge: 10 * time.Millisecond,
	}))

	_, hit, err := cached.Get("users:u1")
	assert.NoError(t, err)
	assert.True(t, hit)

	time.Sleep(20 * time.Millisecond)

	_, hit, err = cached.Get("users:u1")
	assert.NoError(t, err)
	assert.False(t, hit)
}

func Test_Cache_Config_Max_Age_Is_The_Default(
	t *testing.T,
) {

	cached := newTestCache(t, &spiconfig.Config{
		Cache: spiconfig.CacheConfig{MaxAge: 10 * time.Millisecond},
	})

	assert.NoError(t, cached.Set("short", "value", Options{}))
	assert.NoError(t, cached.Set("long", "value", Options{MaxAge: time.Hour}))

	time.Sleep(20 * time.Millisecond)

	_, hit, err := cached.Get("short")
	assert.NoError(t, err)
	assert.False(t, hit)

	_, hit, err = cached.Get("long")
	assert.NoError(t, err)
	assert.True(t, hit)
}

func Test_Cache_Invalidate_Exact_Key(
	t *testing.T,
) {

	cached := newTestCache(t, &spiconfig.Config{})

	assert.NoError(t, cached.Set("users:u1", "A", Options{}))
	assert.NoError(t, cached.Set("users:u2", "B", Options{}))

	dropped, err := cached.Invalidate("users:u1")
	assert.NoError(t, err)
	assert.Equal(t, 1, dropped)

	dropped, err = cached.Invalidate("users:u1")
	assert.NoError(t, err)
	assert.Equal(t, 0, dropped)

	_, hit, err := cached.Get("users:u2")
	assert.NoError(t, err)
	assert.True(t, hit)
}

func Test_Cache_Invalidate_Glob(
	t *testing.T,
) {

	cached := newTestCache(t, &spiconfig.Config{})

	assert.NoError(t, cached.Set("users:u1", "A", Options{}))
	assert.NoError(t, cached.Set("users:u2", "B", Options{}))
	assert.NoError(t, cached.Set("orders:o1", "C", Options{}))

	dropped, err := cached.InvalidateGlob("users:*")
	assert.NoError(t, err)
	assert.Equal(t, 2, dropped)

	_, hit, err := cached.Get("orders:o1")
	assert.NoError(t, err)
	assert.True(t, hit)
}

func Test_Cache_Glob_Metacharacters_Are_Literal(
	t *testing.T,
) {

	cached := newTestCache(t, &spiconfig.Config{})

	assert.NoError(t, cached.Set("users.u1", "A", Options{}))
	assert.NoError(t, cached.Set("usersXu1", "B", Options{}))

	// The dot must not act as a regex wildcard.
	dropped, err := cached.InvalidateGlob("users.u1")
	assert.NoError(t, err)
	assert.Equal(t, 1, dropped)

	_, hit, err := cached.Get("usersXu1")
	assert.NoError(t, err)
	assert.True(t, hit)
}

func Test_Cache_Invalidate_By_Tag(
	t *testing.T,
) {

	cached := newTestCache(t, &spiconfig.Config{})

	assert.NoError(t, cached.Set("users:u1", "A", Options{Tags: []string{"users"}}))
	assert.NoError(t, cached.Set("users:u2", "B", Options{Tags: []string{"users", "hot"}}))
	assert.NoError(t, cached.Set("orders:o1", "C", Options{Tags: []string{"orders"}}))

	dropped, err := cached.InvalidateTag("users")
	assert.NoError(t, err)
	assert.Equal(t, 2, dropped)

	_, hit, err := cached.Get("orders:o1")
	assert.NoError(t, err)
	assert.True(t, hit)
}
