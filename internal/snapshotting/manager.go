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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-errors/errors"
	"github.com/goccy/go-json"
	"github.com/hashicorp/go-uuid"
	"github.com/vortexlabs/tierstream/internal/logging"
	"github.com/vortexlabs/tierstream/spi/cdc"
	spiconfig "github.com/vortexlabs/tierstream/spi/config"
	"github.com/vortexlabs/tierstream/spi/objectstore"
	"github.com/vortexlabs/tierstream/spi/storage"
)

type SnapshotType string

const (
	SnapshotFull        SnapshotType = "full"
	SnapshotIncremental SnapshotType = "incremental"
)

const (
	defaultMaxIncrementalChain = 10
	snapshotContentType        = "application/json"
)

// Snapshot captures an owner's document state, either completely or as the
// changes since its parent. Versions are monotonic per owner, the checksum
// covers the serialized payload.
type Snapshot struct {
	ID        string                    `json:"id"`
	OwnerID   string                    `json:"ownerId"`
	OwnerType string                    `json:"ownerType,omitempty"`
	Type      SnapshotType              `json:"type"`
	ParentID  string                    `json:"parentId,omitempty"`
	Version   uint64                    `json:"version"`
	Tier      storage.Tier              `json:"tier"`
	Checksum  string                    `json:"checksum"`
	SizeBytes int64                     `json:"sizeBytes"`
	RowCount  uint64                    `json:"rowCount"`
	CreatedAt time.Time                 `json:"createdAt"`
	State     map[string]map[string]any `json:"state,omitempty"`
	Changes   []*cdc.ChangeEvent        `json:"changes,omitempty"`
}

// Manager creates, promotes, consolidates, and expires snapshots. Blobs
// are persisted through the object store, one json object per snapshot.
type Manager struct {
	store    objectstore.Store
	maxChain int

	retentionAge   time.Duration
	retentionCount int

	mutex     sync.Mutex
	snapshots map[string][]*Snapshot

	logger *logging.Logger
}

func NewManager(
	c *spiconfig.Config, store objectstore.Store,
) (*Manager, error) {

	logger, err := logging.NewLogger("SnapshotManager")
	if err != nil {
		return nil, err
	}

	maxChain := int(spiconfig.GetOrDefault(
		c, spiconfig.PropertySnapshotMaxIncrementalChain, uint(defaultMaxIncrementalChain),
	))
	if maxChain < 1 {
		maxChain = defaultMaxIncrementalChain
	}

	return &Manager{
		store:    store,
		maxChain: maxChain,
		retentionAge: spiconfig.GetOrDefault(
			c, spiconfig.PropertySnapshotRetentionAge, time.Duration(0),
		),
		retentionCount: int(spiconfig.GetOrDefault(
			c, spiconfig.PropertySnapshotRetentionCount, uint(0),
		)),
		snapshots: make(map[string][]*Snapshot),
		logger:    logger,
	}, nil
}

// CreateFull captures the complete state of an owner.
func (m *Manager) CreateFull(
	ctx context.Context, ownerID, ownerType string, state map[string]map[string]any,
) (*Snapshot, error) {

	m.mutex.Lock()
	defer m.mutex.Unlock()

	snapshot, err := m.newSnapshot(ownerID, SnapshotFull)
	if err != nil {
		return nil, err
	}
	snapshot.OwnerType = ownerType
	snapshot.State = copyState(state)

	if err := m.seal(ctx, snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// CreateIncremental captures the changes since the owner's most recent
// snapshot. The chain since the last full snapshot is bounded, once the
// bound is hit the owner has to be consolidated first.
func (m *Manager) CreateIncremental(
	ctx context.Context, ownerID string, changes []*cdc.ChangeEvent,
) (*Snapshot, error) {

	m.mutex.Lock()
	defer m.mutex.Unlock()

	parent := m.latest(ownerID)
	if parent == nil {
		return nil, storage.NewValidationError(
			"owner '%s' has no snapshot to increment from", ownerID,
		)
	}
	if m.chainLength(ownerID) >= m.maxChain {
		return nil, storage.NewValidationError(
			"owner '%s' reached the incremental chain limit of %d, consolidate first",
			ownerID, m.maxChain,
		)
	}

	snapshot, err := m.newSnapshot(ownerID, SnapshotIncremental)
	if err != nil {
		return nil, err
	}
	snapshot.OwnerType = parent.OwnerType
	snapshot.ParentID = parent.ID
	snapshot.Changes = append([]*cdc.ChangeEvent{}, changes...)

	if err := m.seal(ctx, snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Lookup returns the snapshot by id, nil when unknown.
func (m *Manager) Lookup(
	ownerID, snapshotID string,
) *Snapshot {

	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.lookup(ownerID, snapshotID)
}

// Snapshots returns the owner's snapshots ordered by version.
func (m *Manager) Snapshots(
	ownerID string,
) []*Snapshot {

	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]*Snapshot{}, m.snapshots[ownerID]...)
}

// Lineage returns the chain from the base full snapshot up to and
// including the target, in application order.
func (m *Manager) Lineage(
	ownerID, snapshotID string,
) ([]*Snapshot, error) {

	m.mutex.Lock()
	defer m.mutex.Unlock()

	target := m.lookup(ownerID, snapshotID)
	if target == nil {
		return nil, storage.NewNotFoundError("snapshot", snapshotID)
	}

	chain := []*Snapshot{target}
	current := target
	for current.Type != SnapshotFull {
		parent := m.lookup(ownerID, current.ParentID)
		if parent == nil {
			return nil, storage.NewNotFoundError("snapshot", current.ParentID)
		}
		chain = append([]*Snapshot{parent}, chain...)
		current = parent
	}
	return chain, nil
}

// Materialize rebuilds the owner state at the target snapshot by applying
// the incremental chain onto its base full snapshot.
func (m *Manager) Materialize(
	ownerID, snapshotID string,
) (map[string]map[string]any, error) {

	chain, err := m.Lineage(ownerID, snapshotID)
	if err != nil {
		return nil, err
	}

	state := copyState(chain[0].State)
	for _, snapshot := range chain[1:] {
		applyChanges(state, snapshot.Changes)
	}
	return state, nil
}

// Consolidate folds the current incremental chain into a fresh full
// snapshot at the next version.
func (m *Manager) Consolidate(
	ctx context.Context, ownerID string,
) (*Snapshot, error) {

	m.mutex.Lock()
	latest := m.latest(ownerID)
	m.mutex.Unlock()

	if latest == nil {
		return nil, storage.NewNotFoundError("snapshot owner", ownerID)
	}

	state, err := m.Materialize(ownerID, latest.ID)
	if err != nil {
		return nil, err
	}
	return m.CreateFull(ctx, ownerID, latest.OwnerType, state)
}

// Promote moves a snapshot to the archive tier, optionally dropping the
// active tier copy.
func (m *Manager) Promote(
	ctx context.Context, ownerID, snapshotID string, deleteActive bool,
) (*Snapshot, error) {

	m.mutex.Lock()
	defer m.mutex.Unlock()

	snapshot := m.lookup(ownerID, snapshotID)
	if snapshot == nil {
		return nil, storage.NewNotFoundError("snapshot", snapshotID)
	}
	if snapshot.Tier == storage.TierArchive {
		return snapshot, nil
	}

	activeKey := m.key(snapshot)
	snapshot.Tier = storage.TierArchive
	if err := m.persist(ctx, snapshot); err != nil {
		snapshot.Tier = storage.TierActive
		return nil, err
	}

	if deleteActive {
		if err := m.store.Delete(ctx, activeKey); err != nil {
			m.logger.Warnf("deleting active snapshot copy '%s' failed: %v", activeKey, err)
		}
	}
	return snapshot, nil
}

func (m *Manager) newSnapshot(
	ownerID string, snapshotType SnapshotType,
) (*Snapshot, error) {

	if ownerID == "" {
		return nil, storage.NewValidationError("snapshot owner id is empty")
	}

	id, err := uuid.GenerateUUID()
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	version := uint64(1)
	if latest := m.latest(ownerID); latest != nil {
		version = latest.Version + 1
	}

	return &Snapshot{
		ID:        id,
		OwnerID:   ownerID,
		Type:      snapshotType,
		Version:   version,
		Tier:      storage.TierActive,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// seal computes the payload metadata, persists the blob, and indexes the
// snapshot. Checksum and size cover the same serialized payload.
func (m *Manager) seal(
	ctx context.Context, snapshot *Snapshot,
) error {

	checksum, size, err := payloadDigest(snapshot)
	if err != nil {
		return err
	}
	snapshot.Checksum = checksum
	snapshot.SizeBytes = size
	snapshot.RowCount = uint64(len(snapshot.State))
	if snapshot.Type == SnapshotIncremental {
		snapshot.RowCount = uint64(len(snapshot.Changes))
	}

	if err := m.persist(ctx, snapshot); err != nil {
		return err
	}
	m.snapshots[snapshot.OwnerID] = append(m.snapshots[snapshot.OwnerID], snapshot)
	return nil
}

func (m *Manager) persist(
	ctx context.Context, snapshot *Snapshot,
) error {

	data, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, 0)
	}
	if _, err := m.store.Put(ctx, m.key(snapshot), data, objectstore.PutOptions{
		ContentType: snapshotContentType,
	}); err != nil {
		return storage.NewStorageError(snapshot.Tier, "snapshot write", err)
	}
	return nil
}

func (m *Manager) key(
	snapshot *Snapshot,
) string {

	return fmt.Sprintf(
		"snapshots/%s/%s/%016d.json", snapshot.Tier, snapshot.OwnerID, snapshot.Version,
	)
}

func (m *Manager) lookup(
	ownerID, snapshotID string,
) *Snapshot {

	for _, snapshot := range m.snapshots[ownerID] {
		if snapshot.ID == snapshotID {
			return snapshot
		}
	}
	return nil
}

func (m *Manager) latest(
	ownerID string,
) *Snapshot {

	owned := m.snapshots[ownerID]
	if len(owned) == 0 {
		return nil
	}
	return owned[len(owned)-1]
}

// chainLength counts the incrementals since the owner's last full snapshot.
func (m *Manager) chainLength(
	ownerID string,
) int {

	owned := m.snapshots[ownerID]
	length := 0
	for i := len(owned) - 1; i >= 0; i-- {
		if owned[i].Type == SnapshotFull {
			break
		}
		length++
	}
	return length
}

func payloadDigest(
	snapshot *Snapshot,
) (string, int64, error) {

	payload := struct {
		State   map[string]map[string]any `json:"state,omitempty"`
		Changes []*cdc.ChangeEvent        `json:"changes,omitempty"`
	}{
		State:   snapshot.State,
		Changes: snapshot.Changes,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", 0, errors.Wrap(err, 0)
	}
	digest := sha256.Sum256(data)
	return hex.EncodeToString(digest[:]), int64(len(data)), nil
}

func applyChanges(
	state map[string]map[string]any, changes []*cdc.ChangeEvent,
) {

	sorted := append([]*cdc.ChangeEvent{}, changes...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Sequence < sorted[j].Sequence
	})

	for _, change := range sorted {
		switch change.Operation {
		case cdc.OperationInsert, cdc.OperationUpdate:
			state[change.DocumentID] = copyDocument(change.After)
		case cdc.OperationDelete:
			delete(state, change.DocumentID)
		}
	}
}

func copyState(
	state map[string]map[string]any,
) map[string]map[string]any {

	copied := make(map[string]map[string]any, len(state))
	for id, document := range state {
		copied[id] = copyDocument(document)
	}
	return copied
}

func copyDocument(
	document map[string]any,
) map[string]any {

	copied := make(map[string]any, len(document))
	for key, value := range document {
		copied[key] = value
	}
	return copied
}
