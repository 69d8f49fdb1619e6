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
	"regexp"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/vortexlabs/tierstream/internal/logging"
	"github.com/vortexlabs/tierstream/internal/stats"
	"github.com/vortexlabs/tierstream/spi/cache"
	spiconfig "github.com/vortexlabs/tierstream/spi/config"
)

// Options override the cache wide max age for one entry and attach tags
// for group invalidation.
type Options struct {
	MaxAge time.Duration
	Tags   []string
}

// Cache is the cache-aside layer over a pluggable backend. Expired entries
// count as misses and are dropped lazily on read.
type Cache struct {
	backend cache.Backend
	maxAge  time.Duration

	logger   *logging.Logger
	reporter *stats.Reporter
}

func NewCache(
	c *spiconfig.Config,
) (*Cache, error) {

	backendType := spiconfig.GetOrDefault(
		c, spiconfig.PropertyCacheType, spiconfig.MemoryCache,
	)
	backend, err := cache.NewCacheBackend(backendType, c)
	if err != nil {
		return nil, err
	}
	return NewCacheWithBackend(c, backend)
}

func NewCacheWithBackend(
	c *spiconfig.Config, backend cache.Backend,
) (*Cache, error) {

	logger, err := logging.NewLogger("Cache")
	if err != nil {
		return nil, err
	}

	return &Cache{
		backend: backend,
		maxAge: spiconfig.GetOrDefault(
			c, spiconfig.PropertyCacheMaxAge, time.Duration(0),
		),
		logger: logger,
	}, nil
}

func (c *Cache) WithReporter(
	reporter *stats.Reporter,
) *Cache {

	c.reporter = reporter
	return c
}

func (c *Cache) Start() error {
	return c.backend.Start()
}

func (c *Cache) Stop() error {
	return c.backend.Stop()
}

// Get returns the cached value and whether it was present and fresh.
// Map and slice values are copied so callers cannot mutate the entry
// behind the backend, matching the copy semantics of the active store.
func (c *Cache) Get(
	key string,
) (any, bool, error) {

	entry, err := c.backend.Get(key)
	if err != nil {
		return nil, false, err
	}
	if entry == nil {
		c.reporter.Incr("cache_misses")
		return nil, false, nil
	}
	if entry.Expired(time.Now().UTC()) {
		c.reporter.Incr("cache_misses")
		if err := c.backend.Delete(key); err != nil {
			c.logger.Warnf("dropping expired cache entry '%s' failed: %v", key, err)
		}
		return nil, false, nil
	}

	c.reporter.Incr("cache_hits")
	return copyValue(entry.Value), true, nil
}

func (c *Cache) Set(
	key string, value any, options Options,
) error {

	now := time.Now().UTC()
	maxAge := options.MaxAge
	if maxAge == 0 {
		maxAge = c.maxAge
	}

	entry := &cache.Entry{
		Value:    value,
		CachedAt: now,
		Tags:     options.Tags,
	}
	if maxAge > 0 {
		entry.ExpiresAt = now.Add(maxAge)
	}
	return c.backend.Set(key, entry)
}

// GetOrCompute returns the cached value on a hit, otherwise runs compute
// and caches its result. The bool reports whether it was a hit.
func (c *Cache) GetOrCompute(
	key string, compute func() (any, error), options Options,
) (any, bool, error) {

	value, hit, err := c.Get(key)
	if err != nil {
		return nil, false, err
	}
	if hit {
		return value, true, nil
	}

	value, err = compute()
	if err != nil {
		return nil, false, err
	}
	if err := c.Set(key, value, options); err != nil {
		return nil, false, err
	}
	return value, false, nil
}

// Invalidate drops the exact key. Returns how many entries were dropped.
func (c *Cache) Invalidate(
	key string,
) (int, error) {

	entry, err := c.backend.Get(key)
	if err != nil {
		return 0, err
	}
	if entry == nil {
		return 0, nil
	}
	if err := c.backend.Delete(key); err != nil {
		return 0, err
	}
	c.reporter.Incr("cache_invalidations")
	return 1, nil
}

// InvalidateGlob drops every key matching the pattern. Only '*' is a
// wildcard, all other metacharacters match literally.
func (c *Cache) InvalidateGlob(
	pattern string,
) (int, error) {

	matcher, err := globToRegexp(pattern)
	if err != nil {
		return 0, err
	}

	keys, err := c.backend.Keys()
	if err != nil {
		return 0, err
	}

	matched := lo.Filter(keys, func(key string, _ int) bool {
		return matcher.MatchString(key)
	})
	return c.dropKeys(matched)
}

// InvalidateTag drops every entry carrying the tag.
func (c *Cache) InvalidateTag(
	tag string,
) (int, error) {

	keys, err := c.backend.Keys()
	if err != nil {
		return 0, err
	}

	tagged := make([]string, 0)
	for _, key := range keys {
		entry, err := c.backend.Get(key)
		if err != nil {
			return 0, err
		}
		if entry != nil && lo.Contains(entry.Tags, tag) {
			tagged = append(tagged, key)
		}
	}
	return c.dropKeys(tagged)
}

func (c *Cache) dropKeys(
	keys []string,
) (int, error) {

	if len(keys) == 0 {
		return 0, nil
	}
	if err := c.backend.Delete(keys...); err != nil {
		return 0, err
	}
	c.reporter.Add("cache_invalidations", float64(len(keys)))
	return len(keys), nil
}

func copyValue(
	value any,
) any {

	switch typed := value.(type) {
	case map[string]any:
		copied := make(map[string]any, len(typed))
		for key, element := range typed {
			copied[key] = copyValue(element)
		}
		return copied
	case []any:
		copied := make([]any, len(typed))
		for i, element := range typed {
			copied[i] = copyValue(element)
		}
		return copied
	default:
		return value
	}
}

// globToRegexp turns a pattern into an anchored regexp where '*' matches
// any run of characters and everything else is literal.
func globToRegexp(
	pattern string,
) (*regexp.Regexp, error) {

	parts := strings.Split(pattern, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	return regexp.Compile("^" + strings.Join(parts, ".*") + "$")
}
