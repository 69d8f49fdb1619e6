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

package snapshotting

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vortexlabs/tierstream/internal/objectstores/memory"
	"github.com/vortexlabs/tierstream/spi/cdc"
	spiconfig "github.com/vortexlabs/tierstream/spi/config"
	"github.com/vortexlabs/tierstream/spi/objectstore"
)

func newTestManager(
	t *testing.T, c *spiconfig.Config,
) (*Manager, objectstore.Store) {

	t.Helper()
	store := memory.NewMemoryObjectStore()
	manager, err := NewManager(c, store)
	assert.NoError(t, err)
	return manager, store
}

func change(
	sequence uint64, operation cdc.Operation, documentID string, after map[string]any,
) *cdc.ChangeEvent {

	return &cdc.ChangeEvent{
		ID:         documentID + "-change",
		Operation:  operation,
		Collection: "users",
		DocumentID: documentID,
		Sequence:   sequence,
		After:      after,
	}
}

func Test_Snapshot_Full_Is_Versioned_And_Checksummed(
	t *testing.T,
) {

	manager, store := newTestManager(t, &spiconfig.Config{})

	state := map[string]map[string]any{
		"u1": {"id": "u1", "name": "A"},
	}

	first, err := manager.CreateFull(context.Background(), "owner", "document", state)
	assert.NoError(t, err)
	assert.Equal(t, SnapshotFull, first.Type)
	assert.Equal(t, "document", first.OwnerType)
	assert.Equal(t, uint64(1), first.Version)
	assert.NotEmpty(t, first.Checksum)
	assert.Len(t, first.Checksum, 64)
	assert.Equal(t, uint64(1), first.RowCount)
	assert.Greater(t, first.SizeBytes, int64(0))

	second, err := manager.CreateFull(context.Background(), "owner", "document", state)
	assert.NoError(t, err)
	assert.Equal(t, uint64(2), second.Version)
	assert.Equal(t, first.Checksum, second.Checksum)

	// Versions are per owner.
	other, err := manager.CreateFull(context.Background(), "other", "document", state)
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), other.Version)

	object, err := store.Get(
		context.Background(), "snapshots/active/owner/0000000000000001.json",
	)
	assert.NoError(t, err)
	assert.NotNil(t, object)
}

func Test_Snapshot_Incremental_Needs_A_Parent(
	t *testing.T,
) {

	manager, _ := newTestManager(t, &spiconfig.Config{})

	_, err := manager.CreateIncremental(context.Background(), "owner", nil)
	assert.Error(t, err)
}

func Test_Snapshot_Chain_Is_Bounded(
	t *testing.T,
) {

	manager, _ := newTestManager(t, &spiconfig.Config{
		Snapshots: spiconfig.SnapshotConfig{MaxIncrementalChain: 2},
	})

	_, err := manager.CreateFull(context.Background(), "owner", "document", nil)
	assert.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := manager.CreateIncremental(context.Background(), "owner", nil)
		assert.NoError(t, err)
	}
	_, err = manager.CreateIncremental(context.Background(), "owner", nil)
	assert.Error(t, err)

	// Consolidating resets the chain.
	_, err = manager.Consolidate(context.Background(), "owner")
	assert.NoError(t, err)
	_, err = manager.CreateIncremental(context.Background(), "owner", nil)
	assert.NoError(t, err)
}

func Test_Snapshot_Lineage_And_Materialize(
	t *testing.T,
) {

	manager, _ := newTestManager(t, &spiconfig.Config{})

	full, err := manager.CreateFull(context.Background(), "owner", "document", map[string]map[string]any{
		"u1": {"id": "u1", "name": "A"},
		"u2": {"id": "u2", "name": "B"},
	})
	assert.NoError(t, err)

	first, err := manager.CreateIncremental(context.Background(), "owner", []*cdc.ChangeEvent{
		change(10, cdc.OperationUpdate, "u1", map[string]any{"id": "u1", "name": "A2"}),
	})
	assert.NoError(t, err)
	assert.Equal(t, full.ID, first.ParentID)

	second, err := manager.CreateIncremental(context.Background(), "owner", []*cdc.ChangeEvent{
		change(11, cdc.OperationDelete, "u2", nil),
		change(12, cdc.OperationInsert, "u3", map[string]any{"id": "u3"}),
	})
	assert.NoError(t, err)
	assert.Equal(t, "document", second.OwnerType)
	assert.Equal(t, uint64(2), second.RowCount)

	lineage, err := manager.Lineage("owner", second.ID)
	assert.NoError(t, err)
	assert.Len(t, lineage, 3)
	assert.Equal(t, full.ID, lineage[0].ID)
	assert.Equal(t, first.ID, lineage[1].ID)
	assert.Equal(t, second.ID, lineage[2].ID)

	state, err := manager.Materialize("owner", second.ID)
	assert.NoError(t, err)
	assert.Equal(t, "A2", state["u1"]["name"])
	assert.NotContains(t, state, "u2")
	assert.Contains(t, state, "u3")
}

func Test_Snapshot_Consolidate_Folds_The_Chain(
	t *testing.T,
) {

	manager, _ := newTestManager(t, &spiconfig.Config{})

	_, err := manager.CreateFull(context.Background(), "owner", "document", map[string]map[string]any{
		"u1": {"id": "u1", "name": "A"},
	})
	assert.NoError(t, err)

	_, err = manager.CreateIncremental(context.Background(), "owner", []*cdc.ChangeEvent{
		change(10, cdc.OperationUpdate, "u1", map[string]any{"id": "u1", "name": "B"}),
	})
	assert.NoError(t, err)

	consolidated, err := manager.Consolidate(context.Background(), "owner")
	assert.NoError(t, err)
	assert.Equal(t, SnapshotFull, consolidated.Type)
	assert.Equal(t, uint64(3), consolidated.Version)
	assert.Equal(t, "B", consolidated.State["u1"]["name"])
}

func Test_Snapshot_Promote_Moves_To_Archive(
	t *testing.T,
) {

	manager, store := newTestManager(t, &spiconfig.Config{})

	full, err := manager.CreateFull(context.Background(), "owner", "document", nil)
	assert.NoError(t, err)

	promoted, err := manager.Promote(context.Background(), "owner", full.ID, true)
	assert.NoError(t, err)
	assert.Equal(t, "archive", string(promoted.Tier))

	archived, err := store.Get(
		context.Background(), "snapshots/archive/owner/0000000000000001.json",
	)
	assert.NoError(t, err)
	assert.NotNil(t, archived)

	active, err := store.Get(
		context.Background(), "snapshots/active/owner/0000000000000001.json",
	)
	assert.NoError(t, err)
	assert.Nil(t, active)

	// Promoting again is a no-op.
	again, err := manager.Promote(context.Background(), "owner", full.ID, true)
	assert.NoError(t, err)
	assert.Equal(t, promoted, again)
}

func Test_Snapshot_Retention_Keeps_The_Current_Chain(
	t *testing.T,
) {

	manager, _ := newTestManager(t, &spiconfig.Config{
		Snapshots: spiconfig.SnapshotConfig{RetentionCount: 1},
	})

	_, err := manager.CreateFull(context.Background(), "owner", "document", nil)
	assert.NoError(t, err)
	_, err = manager.CreateFull(context.Background(), "owner", "document", nil)
	assert.NoError(t, err)
	latest, err := manager.CreateIncremental(context.Background(), "owner", nil)
	assert.NoError(t, err)

	report, err := manager.EnforceRetention(context.Background(), "owner")
	assert.NoError(t, err)

	// The first full is expendable, the second full and the incremental
	// form the live chain.
	assert.Len(t, report.Deleted, 1)

	remaining := manager.Snapshots("owner")
	assert.Len(t, remaining, 2)
	assert.Equal(t, latest.ID, remaining[1].ID)

	lineage, err := manager.Lineage("owner", latest.ID)
	assert.NoError(t, err)
	assert.Len(t, lineage, 2)
}
