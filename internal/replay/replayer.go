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

package replay

import (
	"bytes"
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/go-errors/errors"
	"github.com/goccy/go-json"
	"github.com/samber/lo"
	"github.com/vortexlabs/tierstream/internal/archive"
	"github.com/vortexlabs/tierstream/internal/logging"
	"github.com/vortexlabs/tierstream/internal/stats"
	"github.com/vortexlabs/tierstream/spi/cdc"
)

const defaultBatchSize = 100

// ActiveSource exposes the hot tier's retained event window to the
// replayer. RetainedEvents returns events ordered by sequence,
// OldestRetained is 0 when the window is empty.
type ActiveSource interface {
	RetainedEvents() []*cdc.ChangeEvent
	OldestRetained() uint64
	Head() cdc.Cursor
}

// ArchiveSource is the cold tier query surface, satisfied by
// archive.ArchiveStore.
type ArchiveSource interface {
	Query(
		ctx context.Context, filters archive.QueryFilters,
	) (*cdc.Batch, error)
}

// ReplayOptions resolve a start point from an explicit cursor, a sequence,
// or a timestamp, in that order of precedence.
type ReplayOptions struct {
	Cursor      *cdc.Cursor
	Sequence    uint64
	Timestamp   time.Time
	Collections []string
	Operations  []cdc.Operation
	BatchSize   int
}

// Replayer reconstructs one ordered, cursor-addressable event log from the
// active tier's retained window and the columnar archive.
type Replayer struct {
	active  ActiveSource
	archive ArchiveSource

	collisions atomic.Uint64

	logger   *logging.Logger
	reporter *stats.Reporter
}

func NewReplayer(
	active ActiveSource, archiveSource ArchiveSource,
) (*Replayer, error) {

	logger, err := logging.NewLogger("Replayer")
	if err != nil {
		return nil, err
	}

	return &Replayer{
		active:  active,
		archive: archiveSource,
		logger:  logger,
	}, nil
}

func (r *Replayer) WithReporter(
	reporter *stats.Reporter,
) *Replayer {

	r.reporter = reporter
	return r
}

// PayloadCollisions counts merged duplicates whose archived payload
// diverged from the active copy.
func (r *Replayer) PayloadCollisions() uint64 {
	return r.collisions.Load()
}

// GetBatch merges archived and active events from the resolved start point,
// removes duplicates by event id with the active copy preferred, re-sorts
// by sequence, applies filters, and truncates to the batch size. HasMore
// compares the last returned sequence to the active head.
func (r *Replayer) GetBatch(
	ctx context.Context, options ReplayOptions,
) (*cdc.Batch, error) {

	batchSize := options.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	timestampBased := options.Cursor == nil &&
		options.Sequence == 0 &&
		!options.Timestamp.IsZero()

	startSequence := uint64(1)
	if options.Cursor != nil {
		startSequence = options.Cursor.Sequence + 1
	} else if options.Sequence > 0 {
		startSequence = options.Sequence
	}

	activeEvents := r.activeWindow(options, startSequence, timestampBased)

	oldestRetained := r.active.OldestRetained()
	consultArchive := timestampBased ||
		oldestRetained == 0 ||
		startSequence < oldestRetained

	merged := activeEvents
	if consultArchive && r.archive != nil {
		archived, err := r.queryArchive(ctx, options, startSequence, timestampBased, batchSize)
		if err != nil {
			return nil, err
		}
		merged = r.merge(archived, activeEvents)
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Sequence < merged[j].Sequence
	})

	filtered := make([]*cdc.ChangeEvent, 0, len(merged))
	for _, event := range merged {
		if len(options.Collections) > 0 && !lo.Contains(options.Collections, event.Collection) {
			continue
		}
		if len(options.Operations) > 0 && !lo.Contains(options.Operations, event.Operation) {
			continue
		}
		filtered = append(filtered, event)
	}

	hasMore := false
	if len(filtered) > batchSize {
		filtered = filtered[:batchSize]
		hasMore = true
	}
	if len(filtered) > 0 &&
		filtered[len(filtered)-1].Sequence < r.active.Head().Sequence {

		hasMore = true
	}
	return cdc.NewBatch(filtered, hasMore), nil
}

func (r *Replayer) activeWindow(
	options ReplayOptions, startSequence uint64, timestampBased bool,
) []*cdc.ChangeEvent {

	window := make([]*cdc.ChangeEvent, 0)
	for _, event := range r.active.RetainedEvents() {
		if timestampBased {
			if event.Timestamp.Before(options.Timestamp) {
				continue
			}
		} else if event.Sequence < startSequence {
			continue
		}
		window = append(window, event)
	}
	return window
}

func (r *Replayer) queryArchive(
	ctx context.Context, options ReplayOptions,
	startSequence uint64, timestampBased bool, batchSize int,
) ([]*cdc.ChangeEvent, error) {

	filters := archive.QueryFilters{
		Collections: options.Collections,
		Operations:  options.Operations,
		Limit:       batchSize + 1,
	}
	if timestampBased {
		filters.TimeRange = archive.TimeRange{From: options.Timestamp}
	} else {
		filters.SequenceRange = archive.SequenceRange{From: startSequence}
	}

	batch, err := r.archive.Query(ctx, filters)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	return batch.Events, nil
}

// merge drops archived duplicates of active events. A duplicate whose
// payload differs from the active copy is counted as a collision.
func (r *Replayer) merge(
	archived, active []*cdc.ChangeEvent,
) []*cdc.ChangeEvent {

	activeByID := make(map[string]*cdc.ChangeEvent, len(active))
	for _, event := range active {
		activeByID[event.ID] = event
	}

	merged := make([]*cdc.ChangeEvent, 0, len(archived)+len(active))
	for _, event := range archived {
		if activeCopy, present := activeByID[event.ID]; present {
			if !samePayload(event, activeCopy) {
				r.collisions.Add(1)
				r.reporter.Incr("payload_collisions")
				r.logger.Warnf(
					"event %s payloads diverge between tiers, keeping the active copy",
					event.ID,
				)
			}
			continue
		}
		merged = append(merged, event)
	}
	return append(merged, active...)
}

func samePayload(
	a, b *cdc.ChangeEvent,
) bool {

	if a.Operation != b.Operation {
		return false
	}
	return jsonEqual(a.Before, b.Before) && jsonEqual(a.After, b.After)
}

func jsonEqual(
	a, b map[string]any,
) bool {

	da, err := json.Marshal(a)
	if err != nil {
		return false
	}
	db, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(da, db)
}
