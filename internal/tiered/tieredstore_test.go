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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vortexlabs/tierstream/internal/activestore"
	"github.com/vortexlabs/tierstream/internal/archive"
	cachememory "github.com/vortexlabs/tierstream/internal/caches/memory"
	"github.com/vortexlabs/tierstream/internal/caching"
	"github.com/vortexlabs/tierstream/internal/emitting"
	"github.com/vortexlabs/tierstream/internal/objectstores/memory"
	"github.com/vortexlabs/tierstream/internal/replay"
	"github.com/vortexlabs/tierstream/spi/cdc"
	spiconfig "github.com/vortexlabs/tierstream/spi/config"
)

func newTestTieredStore(
	t *testing.T,
) *TieredStore {

	c := &spiconfig.Config{}

	emitter, err := emitting.NewEmitter(c)
	assert.NoError(t, err)

	active, err := activestore.NewStore(c, emitter)
	assert.NoError(t, err)

	cached, err := caching.NewCacheWithBackend(c, cachememory.NewMemoryCacheBackend())
	assert.NoError(t, err)

	archiveStore, err := archive.NewArchiveStore(c, memory.NewMemoryObjectStore())
	assert.NoError(t, err)

	replayer, err := replay.NewReplayer(active, archiveStore)
	assert.NoError(t, err)

	store, err := NewTieredStore(c, active, cached, archiveStore, replayer)
	assert.NoError(t, err)
	return store
}

func TestTieredStore_LifecycleReplaysWithoutGaps(
	t *testing.T,
) {

	store := newTestTieredStore(t)

	_, err := store.Insert("users", map[string]any{"id": "u1", "name": "A"})
	assert.NoError(t, err)
	_, err = store.Update("users", map[string]any{"id": "u1", "name": "B"})
	assert.NoError(t, err)
	_, err = store.Delete("users", "u1")
	assert.NoError(t, err)

	batch, err := store.Replayer().GetBatch(context.Background(), replay.ReplayOptions{})
	assert.NoError(t, err)
	assert.Len(t, batch.Events, 3)
	assert.False(t, batch.HasMore)

	assert.Equal(t, cdc.OperationInsert, batch.Events[0].Operation)
	assert.Nil(t, batch.Events[0].Before)
	assert.Equal(t, "A", batch.Events[0].After["name"])

	assert.Equal(t, cdc.OperationUpdate, batch.Events[1].Operation)
	assert.Equal(t, "A", batch.Events[1].Before["name"])
	assert.Equal(t, "B", batch.Events[1].After["name"])
	assert.Equal(t, []string{"name"}, batch.Events[1].ChangedFields)

	assert.Equal(t, cdc.OperationDelete, batch.Events[2].Operation)
	assert.Equal(t, "B", batch.Events[2].Before["name"])
	assert.Nil(t, batch.Events[2].After)

	assert.Nil(t, replay.ValidateSequence(batch.Events))
}

func TestTieredStore_SyncMovesChangesToArchive(
	t *testing.T,
) {

	store := newTestTieredStore(t)

	for i := 0; i < 5; i++ {
		_, err := store.Insert("orders", map[string]any{
			"id": string(rune('a' + i)), "total": i * 10,
		})
		assert.NoError(t, err)
	}

	result, err := store.Sync(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 5, result.ChangesSynced)
	assert.Greater(t, result.BytesWritten, int64(0))
	assert.Equal(t, uint64(5), result.Cursor.Sequence)
	assert.Equal(t, uint64(5), store.SyncedThrough().Sequence)

	// A second pass without new mutations has nothing to move.
	result, err = store.Sync(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, result.ChangesSynced)
	assert.Equal(t, uint64(5), result.Cursor.Sequence)

	_, err = store.Insert("orders", map[string]any{"id": "f"})
	assert.NoError(t, err)

	result, err = store.Sync(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, result.ChangesSynced)
	assert.Equal(t, uint64(6), result.Cursor.Sequence)
}

func TestTieredStore_ArchiveHonorsAgeCutoff(
	t *testing.T,
) {

	store := newTestTieredStore(t)

	_, err := store.Insert("users", map[string]any{"id": "u1"})
	assert.NoError(t, err)

	// Nothing predates a cutoff in the past.
	result, err := store.Archive(context.Background(), time.Now().Add(-time.Hour))
	assert.NoError(t, err)
	assert.Equal(t, 0, result.ChangesSynced)
	assert.Equal(t, uint64(0), store.SyncedThrough().Sequence)

	result, err = store.Archive(context.Background(), time.Now().Add(time.Hour))
	assert.NoError(t, err)
	assert.Equal(t, 1, result.ChangesSynced)
	assert.Equal(t, uint64(1), store.SyncedThrough().Sequence)
}

func TestTieredStore_GetPopulatesCacheOnMiss(
	t *testing.T,
) {

	store := newTestTieredStore(t)

	_, err := store.Insert("users", map[string]any{"id": "u1", "name": "A"})
	assert.NoError(t, err)

	document, err := store.Get("users", "u1")
	assert.NoError(t, err)
	assert.Equal(t, "A", document["name"])

	// The cached copy now answers reads even when the active store is
	// mutated behind the facade's back.
	_, err = store.Active().Update("users", map[string]any{"id": "u1", "name": "B"})
	assert.NoError(t, err)

	document, err = store.Get("users", "u1")
	assert.NoError(t, err)
	assert.Equal(t, "A", document["name"])

	missing, err := store.Get("users", "unknown")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTieredStore_WritesInvalidateCachedDocuments(
	t *testing.T,
) {

	store := newTestTieredStore(t)

	_, err := store.Insert("users", map[string]any{"id": "u1", "name": "A"})
	assert.NoError(t, err)

	document, err := store.Get("users", "u1")
	assert.NoError(t, err)
	assert.Equal(t, "A", document["name"])

	_, err = store.Update("users", map[string]any{"id": "u1", "name": "B"})
	assert.NoError(t, err)

	document, err = store.Get("users", "u1")
	assert.NoError(t, err)
	assert.Equal(t, "B", document["name"])

	_, err = store.Delete("users", "u1")
	assert.NoError(t, err)

	document, err = store.Get("users", "u1")
	assert.NoError(t, err)
	assert.Nil(t, document)
}

func TestTieredStore_ChangeListenersAreIsolated(
	t *testing.T,
) {

	store := newTestTieredStore(t)

	received := make([]*cdc.ChangeEvent, 0)
	store.OnChangeEvent(func(*cdc.ChangeEvent) {
		panic("listener blew up")
	})
	store.OnChangeEvent(func(event *cdc.ChangeEvent) {
		received = append(received, event)
	})

	_, err := store.Insert("users", map[string]any{"id": "u1"})
	assert.NoError(t, err)
	_, err = store.Delete("users", "u1")
	assert.NoError(t, err)

	assert.Len(t, received, 2)
	assert.Equal(t, cdc.OperationInsert, received[0].Operation)
	assert.Equal(t, cdc.OperationDelete, received[1].Operation)
}

func TestTieredStore_ReplayBridgesArchiveAndActiveWindow(
	t *testing.T,
) {

	c := &spiconfig.Config{
		Active: spiconfig.ActiveStoreConfig{RetainedEvents: 2},
	}

	emitter, err := emitting.NewEmitter(c)
	assert.NoError(t, err)
	active, err := activestore.NewStore(c, emitter)
	assert.NoError(t, err)
	cached, err := caching.NewCacheWithBackend(c, cachememory.NewMemoryCacheBackend())
	assert.NoError(t, err)
	archiveStore, err := archive.NewArchiveStore(c, memory.NewMemoryObjectStore())
	assert.NoError(t, err)
	replayer, err := replay.NewReplayer(active, archiveStore)
	assert.NoError(t, err)
	store, err := NewTieredStore(c, active, cached, archiveStore, replayer)
	assert.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := store.Insert("users", map[string]any{"id": string(rune('a' + i))})
		assert.NoError(t, err)
		_, err = store.Sync(context.Background())
		assert.NoError(t, err)
	}
	_, err = store.Insert("users", map[string]any{"id": "d"})
	assert.NoError(t, err)

	// The window only retains the last two events, the rest must come
	// back from the archive tier.
	assert.Equal(t, uint64(3), store.Active().OldestRetained())

	batch, err := store.Replayer().GetBatch(context.Background(), replay.ReplayOptions{})
	assert.NoError(t, err)
	assert.Len(t, batch.Events, 4)
	assert.Nil(t, replay.ValidateSequence(batch.Events))
	for i, event := range batch.Events {
		assert.Equal(t, uint64(i+1), event.Sequence)
	}
}
