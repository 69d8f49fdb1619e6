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

package archive

import (
	"context"
	"sync"
	"time"

	"github.com/go-errors/errors"
	"github.com/hashicorp/go-uuid"
	"github.com/vortexlabs/tierstream/spi/encoding"
	"github.com/vortexlabs/tierstream/spi/objectstore"
)

const (
	manifestKeySuffix = "_manifest/manifest.json"

	operationAppend  = "append"
	operationCompact = "compact"
	operationExpire  = "expire"
)

// DataFile describes one committed archive file together with the event
// bounds used for query pruning.
type DataFile struct {
	Key          string    `json:"key"`
	Partition    string    `json:"partition"`
	SizeBytes    int64     `json:"sizeBytes"`
	EventCount   uint64    `json:"eventCount"`
	MinSequence  uint64    `json:"minSequence"`
	MaxSequence  uint64    `json:"maxSequence"`
	MinTimestamp time.Time `json:"minTimestamp"`
	MaxTimestamp time.Time `json:"maxTimestamp"`
}

// TableSnapshot is one committed state of the archive table. Snapshots
// chain to their parent, the full history stays in the manifest.
type TableSnapshot struct {
	ID        string     `json:"id"`
	ParentID  string     `json:"parentId,omitempty"`
	Operation string     `json:"operation"`
	CreatedAt time.Time  `json:"createdAt"`
	Files     []DataFile `json:"files"`
}

type tableManifest struct {
	CurrentSnapshotID string          `json:"currentSnapshotId,omitempty"`
	Snapshots         []TableSnapshot `json:"snapshots"`
}

// manifestStore persists the append-only snapshot chain in the object
// store next to the data files. Commit never rewrites history, it only
// appends a new snapshot and moves the current pointer.
type manifestStore struct {
	mutex    sync.Mutex
	store    objectstore.Store
	key      string
	manifest *tableManifest

	encoder *encoding.JsonEncoder
	decoder *encoding.JsonDecoder
}

func newManifestStore(
	store objectstore.Store, prefix string,
) *manifestStore {

	return &manifestStore{
		store:   store,
		key:     prefix + "/" + manifestKeySuffix,
		encoder: encoding.NewJsonEncoder(true),
		decoder: encoding.NewJsonDecoder(true),
	}
}

func (ms *manifestStore) load(
	ctx context.Context,
) (*tableManifest, error) {

	if ms.manifest != nil {
		return ms.manifest, nil
	}

	object, err := ms.store.Get(ctx, ms.key)
	if err != nil {
		return nil, err
	}
	if object == nil {
		ms.manifest = &tableManifest{}
		return ms.manifest, nil
	}

	manifest := &tableManifest{}
	if err := ms.decoder.Unmarshal(object.Body, manifest); err != nil {
		return nil, errors.Wrap(err, 0)
	}
	ms.manifest = manifest
	return manifest, nil
}

// currentFiles returns the data files of the current snapshot.
func (ms *manifestStore) currentFiles(
	ctx context.Context,
) ([]DataFile, error) {

	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	manifest, err := ms.load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range manifest.Snapshots {
		if manifest.Snapshots[i].ID == manifest.CurrentSnapshotID {
			return manifest.Snapshots[i].Files, nil
		}
	}
	return nil, nil
}

func (ms *manifestStore) currentSnapshot(
	ctx context.Context,
) (*TableSnapshot, error) {

	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	manifest, err := ms.load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range manifest.Snapshots {
		if manifest.Snapshots[i].ID == manifest.CurrentSnapshotID {
			return &manifest.Snapshots[i], nil
		}
	}
	return nil, nil
}

func (ms *manifestStore) snapshots(
	ctx context.Context,
) ([]TableSnapshot, error) {

	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	manifest, err := ms.load(ctx)
	if err != nil {
		return nil, err
	}
	return manifest.Snapshots, nil
}

// commit appends a new snapshot holding the complete post-commit file
// list and persists the manifest.
func (ms *manifestStore) commit(
	ctx context.Context, operation string, files []DataFile,
) (*TableSnapshot, error) {

	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	manifest, err := ms.load(ctx)
	if err != nil {
		return nil, err
	}

	id, err := uuid.GenerateUUID()
	if err != nil {
		return nil, err
	}

	snapshot := TableSnapshot{
		ID:        id,
		ParentID:  manifest.CurrentSnapshotID,
		Operation: operation,
		CreatedAt: time.Now().UTC(),
		Files:     files,
	}
	manifest.Snapshots = append(manifest.Snapshots, snapshot)
	manifest.CurrentSnapshotID = snapshot.ID

	body, err := ms.encoder.Marshal(manifest)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	if _, err := ms.store.Put(ctx, ms.key, body, objectstore.PutOptions{
		ContentType: "application/json",
	}); err != nil {
		return nil, err
	}
	return &snapshot, nil
}
