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
	"context"
	"sync"
	"time"

	"github.com/go-errors/errors"
	"github.com/vortexlabs/tierstream/internal/activestore"
	"github.com/vortexlabs/tierstream/internal/archive"
	"github.com/vortexlabs/tierstream/internal/caching"
	"github.com/vortexlabs/tierstream/internal/logging"
	"github.com/vortexlabs/tierstream/internal/replay"
	"github.com/vortexlabs/tierstream/spi/cache"
	"github.com/vortexlabs/tierstream/spi/cdc"
	spiconfig "github.com/vortexlabs/tierstream/spi/config"
	"github.com/vortexlabs/tierstream/spi/storage"
)

// ChangeListener observes every mutation flowing through the facade.
type ChangeListener func(event *cdc.ChangeEvent)

// SyncResult reports one reconciliation pass between the active tier and
// the archive.
type SyncResult struct {
	ChangesSynced int        `json:"changesSynced"`
	BytesWritten  int64      `json:"bytesWritten"`
	Cursor        cdc.Cursor `json:"cursor"`
}

// TieredStore is the unified facade over the three tiers. Writes go to the
// active store and invalidate the cache, reads are cache-aside, and aged
// events move to the archive through Archive and Sync.
type TieredStore struct {
	active       *activestore.Store
	cache        *caching.Cache
	archiveStore *archive.ArchiveStore
	replayer     *replay.Replayer

	mutex     sync.Mutex
	listeners []ChangeListener
	synced    cdc.Cursor

	logger *logging.Logger
}

func NewTieredStore(
	_ *spiconfig.Config, active *activestore.Store, cached *caching.Cache,
	archiveStore *archive.ArchiveStore, replayer *replay.Replayer,
) (*TieredStore, error) {

	logger, err := logging.NewLogger("TieredStore")
	if err != nil {
		return nil, err
	}

	return &TieredStore{
		active:       active,
		cache:        cached,
		archiveStore: archiveStore,
		replayer:     replayer,
		logger:       logger,
	}, nil
}

func (t *TieredStore) Active() *activestore.Store {
	return t.active
}

func (t *TieredStore) Cache() *caching.Cache {
	return t.cache
}

func (t *TieredStore) Archiver() *archive.ArchiveStore {
	return t.archiveStore
}

func (t *TieredStore) Replayer() *replay.Replayer {
	return t.replayer
}

// OnChangeEvent registers a listener invoked for every mutation. Listener
// failures are isolated.
func (t *TieredStore) OnChangeEvent(
	listener ChangeListener,
) {

	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.listeners = append(t.listeners, listener)
}

func (t *TieredStore) Insert(
	collection string, document map[string]any,
) (*cdc.ChangeEvent, error) {

	event, err := t.active.Insert(collection, document)
	if err != nil {
		return nil, err
	}
	t.afterWrite(event)
	return event, nil
}

func (t *TieredStore) Update(
	collection string, document map[string]any,
) (*cdc.ChangeEvent, error) {

	event, err := t.active.Update(collection, document)
	if err != nil {
		return nil, err
	}
	t.afterWrite(event)
	return event, nil
}

func (t *TieredStore) Delete(
	collection, documentID string,
) (*cdc.ChangeEvent, error) {

	event, err := t.active.Delete(collection, documentID)
	if err != nil {
		return nil, err
	}
	t.afterWrite(event)
	return event, nil
}

// Get reads cache-first and repopulates the cache from the active store
// on a miss.
func (t *TieredStore) Get(
	collection, documentID string,
) (map[string]any, error) {

	value, _, err := t.cache.GetOrCompute(
		cache.Key(collection, documentID),
		func() (any, error) {
			return t.active.Get(collection, documentID), nil
		},
		caching.Options{Tags: []string{collection}},
	)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, nil
	}
	document, ok := value.(map[string]any)
	if !ok {
		return nil, errors.Errorf(
			"cached value for '%s/%s' is not a document", collection, documentID,
		)
	}
	return document, nil
}

// Archive moves retained events older than the given point in time to the
// archive tier.
func (t *TieredStore) Archive(
	ctx context.Context, olderThan time.Time,
) (*SyncResult, error) {

	aged := make([]*cdc.ChangeEvent, 0)
	for _, event := range t.pendingEvents() {
		if event.Timestamp.Before(olderThan) {
			aged = append(aged, event)
		}
	}
	return t.flush(ctx, aged)
}

// Sync reconciles the tiers by archiving everything emitted since the
// last successful pass.
func (t *TieredStore) Sync(
	ctx context.Context,
) (*SyncResult, error) {

	return t.flush(ctx, t.pendingEvents())
}

// SyncedThrough returns the cursor of the last archived event.
func (t *TieredStore) SyncedThrough() cdc.Cursor {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.synced
}

func (t *TieredStore) pendingEvents() []*cdc.ChangeEvent {
	t.mutex.Lock()
	synced := t.synced
	t.mutex.Unlock()

	pending := make([]*cdc.ChangeEvent, 0)
	for _, event := range t.active.RetainedEvents() {
		if event.Sequence > synced.Sequence {
			pending = append(pending, event)
		}
	}
	return pending
}

func (t *TieredStore) flush(
	ctx context.Context, events []*cdc.ChangeEvent,
) (*SyncResult, error) {

	result := &SyncResult{Cursor: t.SyncedThrough()}
	if len(events) == 0 {
		return result, nil
	}

	files, err := t.archiveStore.Write(ctx, events)
	if err != nil {
		return nil, storage.NewStorageError(storage.TierArchive, "sync", err)
	}

	for _, file := range files {
		result.BytesWritten += file.SizeBytes
	}
	result.ChangesSynced = len(events)
	result.Cursor = events[len(events)-1].Cursor()

	t.mutex.Lock()
	if result.Cursor.Sequence > t.synced.Sequence {
		t.synced = result.Cursor
	}
	t.mutex.Unlock()

	t.logger.Debugf(
		"archived %d events (%d bytes) through sequence %d",
		result.ChangesSynced, result.BytesWritten, result.Cursor.Sequence,
	)
	return result, nil
}

func (t *TieredStore) afterWrite(
	event *cdc.ChangeEvent,
) {

	key := cache.Key(event.Collection, event.DocumentID)
	if _, err := t.cache.Invalidate(key); err != nil {
		t.logger.Warnf("cache invalidation for '%s' failed: %v", key, err)
	}

	t.mutex.Lock()
	listeners := append([]ChangeListener{}, t.listeners...)
	t.mutex.Unlock()

	for _, listener := range listeners {
		t.notify(listener, event)
	}
}

func (t *TieredStore) notify(
	listener ChangeListener, event *cdc.ChangeEvent,
) {

	defer func() {
		if r := recover(); r != nil {
			t.logger.Errorf("change listener panicked: %v", r)
		}
	}()
	listener(event)
}
