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

package cache

import (
	"strings"
	"time"
)

// Entry is the stored cache payload. A zero ExpiresAt means the entry
// never expires.
type Entry struct {
	Value     any       `json:"value"`
	CachedAt  time.Time `json:"cachedAt"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
}

func (e *Entry) Expired(
	now time.Time,
) bool {

	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Backend stores entries by key. Get returns nil without error on a
// missing key, expiry interpretation is left to the caller.
type Backend interface {
	Start() error
	Stop() error
	Get(
		key string,
	) (*Entry, error)
	Set(
		key string, entry *Entry,
	) error
	Delete(
		keys ...string,
	) error
	Keys() ([]string, error)
}

// Key joins the given parts into one colon-separated cache key.
func Key(
	parts ...string,
) string {

	return strings.Join(parts, ":")
}
