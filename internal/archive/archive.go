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
	"fmt"
	"sort"
	"time"

	"github.com/go-errors/errors"
	"github.com/hashicorp/go-uuid"
	"github.com/samber/lo"
	"github.com/vortexlabs/tierstream/internal/logging"
	"github.com/vortexlabs/tierstream/internal/vortex"
	"github.com/vortexlabs/tierstream/spi/cdc"
	spiconfig "github.com/vortexlabs/tierstream/spi/config"
	"github.com/vortexlabs/tierstream/spi/objectstore"
	"github.com/vortexlabs/tierstream/spi/storage"
)

const (
	metadataEventCount  = "eventcount"
	metadataMinSequence = "minsequence"
	metadataMaxSequence = "maxsequence"
)

type TimeRange struct {
	From time.Time
	To   time.Time
}

type SequenceRange struct {
	From uint64
	To   uint64
}

type QueryFilters struct {
	TimeRange     TimeRange
	SequenceRange SequenceRange
	Collections   []string
	Operations    []cdc.Operation
	Limit         int
	Cursor        *cdc.Cursor
}

type WriteBatchOptions struct {
	MaxPerFile int
}

// ArchiveStore is the columnar cold tier. Events are encoded into
// immutable vortex files partitioned by time or collection, committed
// through an append-only manifest snapshot chain.
type ArchiveStore struct {
	store       objectstore.Store
	manifest    *manifestStore
	partitioner *Partitioner
	prefix      string
	maxPerFile  int

	compaction spiconfig.CompactionConfig
	retention  spiconfig.ArchiveRetentionConfig

	logger *logging.Logger
}

func NewArchiveStore(
	c *spiconfig.Config, store objectstore.Store,
) (*ArchiveStore, error) {

	logger, err := logging.NewLogger("ArchiveStore")
	if err != nil {
		return nil, err
	}

	scheme := spiconfig.GetOrDefault(
		c, spiconfig.PropertyArchivePartitionScheme, spiconfig.PartitionByTime,
	)
	granularity := PartitionGranularity(spiconfig.GetOrDefault(
		c, spiconfig.PropertyArchivePartitionGranularity, string(GranularityDay),
	))
	partitioner, err := NewPartitioner(scheme, granularity)
	if err != nil {
		return nil, err
	}

	prefix := spiconfig.GetOrDefault(
		c, spiconfig.PropertyArchivePrefix, "archive",
	)

	return &ArchiveStore{
		store:       store,
		manifest:    newManifestStore(store, prefix),
		partitioner: partitioner,
		prefix:      prefix,
		maxPerFile: int(spiconfig.GetOrDefault(
			c, spiconfig.PropertyArchiveMaxPerFile, uint(10000),
		)),
		compaction: c.Archive.Compaction,
		retention:  c.Archive.Retention,
		logger:     logger,
	}, nil
}

func (as *ArchiveStore) Start() error {
	return as.store.Start()
}

func (as *ArchiveStore) Stop() error {
	return as.store.Stop()
}

// Write encodes the batch into one file per touched partition and commits
// the new files to the manifest.
func (as *ArchiveStore) Write(
	ctx context.Context, events []*cdc.ChangeEvent,
) ([]DataFile, error) {

	return as.WriteBatch(ctx, events, WriteBatchOptions{})
}

// WriteBatch chunks oversized batches into multiple files preserving the
// event order and commits them all in one manifest snapshot.
func (as *ArchiveStore) WriteBatch(
	ctx context.Context, events []*cdc.ChangeEvent, options WriteBatchOptions,
) ([]DataFile, error) {

	if len(events) == 0 {
		return nil, nil
	}

	maxPerFile := options.MaxPerFile
	if maxPerFile <= 0 {
		maxPerFile = as.maxPerFile
	}

	written := make([]DataFile, 0)
	for _, group := range as.groupByPartition(events) {
		for chunk := 0; chunk < len(group.events); chunk += maxPerFile {
			end := chunk + maxPerFile
			if end > len(group.events) {
				end = len(group.events)
			}
			file, err := as.writeFile(ctx, group.partition, group.events[chunk:end])
			if err != nil {
				return nil, err
			}
			written = append(written, *file)
		}
	}

	current, err := as.manifest.currentFiles(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := as.manifest.commit(ctx, operationAppend, append(current, written...)); err != nil {
		return nil, err
	}
	return written, nil
}

type partitionGroup struct {
	partition string
	events    []*cdc.ChangeEvent
}

func (as *ArchiveStore) groupByPartition(
	events []*cdc.ChangeEvent,
) []*partitionGroup {

	groups := make([]*partitionGroup, 0)
	index := make(map[string]*partitionGroup)
	for _, event := range events {
		partition := as.partitioner.Partition(event)
		group, present := index[partition]
		if !present {
			group = &partitionGroup{partition: partition}
			index[partition] = group
			groups = append(groups, group)
		}
		group.events = append(group.events, event)
	}
	return groups
}

func (as *ArchiveStore) writeFile(
	ctx context.Context, partition string, events []*cdc.ChangeEvent,
) (*DataFile, error) {

	encoder, err := vortex.NewEncoder(eventSchema())
	if err != nil {
		return nil, err
	}

	file := &DataFile{
		Partition:   partition,
		EventCount:  uint64(len(events)),
		MinSequence: events[0].Sequence,
		MaxSequence: events[0].Sequence,
	}
	for _, event := range events {
		if err := encoder.Append(eventToRow(event)); err != nil {
			return nil, err
		}
		if event.Sequence < file.MinSequence {
			file.MinSequence = event.Sequence
		}
		if event.Sequence > file.MaxSequence {
			file.MaxSequence = event.Sequence
		}
		timestamp := event.Timestamp.UTC()
		if file.MinTimestamp.IsZero() || timestamp.Before(file.MinTimestamp) {
			file.MinTimestamp = timestamp
		}
		if timestamp.After(file.MaxTimestamp) {
			file.MaxTimestamp = timestamp
		}
	}

	blob, err := encoder.Finish()
	if err != nil {
		return nil, err
	}

	id, err := uuid.GenerateUUID()
	if err != nil {
		return nil, err
	}
	file.Key = fmt.Sprintf("%s/%s/%s.vtx", as.prefix, partition, id)
	file.SizeBytes = int64(len(blob))

	if _, err := as.store.Put(ctx, file.Key, blob, objectstore.PutOptions{
		ContentType: vortex.ContentType,
		CustomMetadata: map[string]string{
			metadataEventCount:  fmt.Sprintf("%d", file.EventCount),
			metadataMinSequence: fmt.Sprintf("%d", file.MinSequence),
			metadataMaxSequence: fmt.Sprintf("%d", file.MaxSequence),
		},
	}); err != nil {
		return nil, storage.NewStorageError(storage.TierArchive, "write", err)
	}

	as.logger.Debugf(
		"wrote %d events to %s (%d bytes)", file.EventCount, file.Key, file.SizeBytes,
	)
	return file, nil
}

// Query reads matching events in sequence order. Files are pruned by
// partition and by their sequence/timestamp bounds before any column is
// decoded, and a file's payload columns are only decoded when at least
// one of its rows matches.
func (as *ArchiveStore) Query(
	ctx context.Context, filters QueryFilters,
) (*cdc.Batch, error) {

	files, err := as.manifest.currentFiles(ctx)
	if err != nil {
		return nil, err
	}

	candidates := as.pruneFiles(files, filters)
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].MinSequence < candidates[j].MinSequence
	})

	limit := filters.Limit
	matched := make([]*cdc.ChangeEvent, 0)
	hasMore := false

	for _, file := range candidates {
		// Candidate sequence ranges can overlap, interleaved writes and
		// collection partitioning both produce that. Scanning may only
		// stop once no remaining file can still contribute an event below
		// the limit-th matched sequence.
		if limit > 0 && len(matched) >= limit {
			sort.Slice(matched, func(i, j int) bool {
				return matched[i].Sequence < matched[j].Sequence
			})
			if file.MinSequence > matched[limit-1].Sequence {
				hasMore = true
				break
			}
		}
		events, err := as.readMatching(ctx, file, filters)
		if err != nil {
			return nil, err
		}
		matched = append(matched, events...)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Sequence < matched[j].Sequence
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
		hasMore = true
	}
	return cdc.NewBatch(matched, hasMore), nil
}

func (as *ArchiveStore) pruneFiles(
	files []DataFile, filters QueryFilters,
) []DataFile {

	partitions := as.partitioner.PartitionsInRange(
		filters.TimeRange.From, filters.TimeRange.To,
	)

	candidates := make([]DataFile, 0, len(files))
	for _, file := range files {
		if partitions != nil && !lo.Contains(partitions, file.Partition) {
			continue
		}
		if filters.SequenceRange.From > 0 && file.MaxSequence < filters.SequenceRange.From {
			continue
		}
		if filters.SequenceRange.To > 0 && file.MinSequence > filters.SequenceRange.To {
			continue
		}
		if filters.Cursor != nil && file.MaxSequence <= filters.Cursor.Sequence {
			continue
		}
		if !filters.TimeRange.From.IsZero() && file.MaxTimestamp.Before(filters.TimeRange.From) {
			continue
		}
		if !filters.TimeRange.To.IsZero() && file.MinTimestamp.After(filters.TimeRange.To) {
			continue
		}
		candidates = append(candidates, file)
	}
	return candidates
}

// readMatching decodes the scan columns first and touches the payload
// columns only when some row survives the filters.
func (as *ArchiveStore) readMatching(
	ctx context.Context, file DataFile, filters QueryFilters,
) ([]*cdc.ChangeEvent, error) {

	object, err := as.store.Get(ctx, file.Key)
	if err != nil {
		return nil, storage.NewStorageError(storage.TierArchive, "read", err)
	}
	if object == nil {
		return nil, storage.NewNotFoundError("archive file", file.Key)
	}

	decoder, err := vortex.NewDecoder(object.Body)
	if err != nil {
		return nil, err
	}

	rows, err := as.matchingRows(decoder, filters)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	events := make([]*cdc.ChangeEvent, 0, len(rows))
	for _, row := range rows {
		materialized, err := decoder.ReadRows(row, row+1)
		if err != nil {
			return nil, err
		}
		event, err := rowToEvent(materialized[0])
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

func (as *ArchiveStore) matchingRows(
	decoder *vortex.Decoder, filters QueryFilters,
) ([]int, error) {

	sequences, err := decoder.ReadColumn("sequence")
	if err != nil {
		return nil, err
	}
	timestamps, err := decoder.ReadColumn("timestamp")
	if err != nil {
		return nil, err
	}
	collections, err := decoder.ReadColumn("collection")
	if err != nil {
		return nil, err
	}
	operations, err := decoder.ReadColumn("operation")
	if err != nil {
		return nil, err
	}

	rows := make([]int, 0)
	for row := 0; row < decoder.RowCount(); row++ {
		sequence, ok := sequences[row].(int64)
		if !ok {
			return nil, errors.Errorf("archived row %d misses the sequence column", row)
		}
		if filters.SequenceRange.From > 0 && uint64(sequence) < filters.SequenceRange.From {
			continue
		}
		if filters.SequenceRange.To > 0 && uint64(sequence) > filters.SequenceRange.To {
			continue
		}
		if filters.Cursor != nil && uint64(sequence) <= filters.Cursor.Sequence {
			continue
		}
		if timestamp, ok := timestamps[row].(time.Time); ok {
			if !filters.TimeRange.From.IsZero() && timestamp.Before(filters.TimeRange.From) {
				continue
			}
			if !filters.TimeRange.To.IsZero() && timestamp.After(filters.TimeRange.To) {
				continue
			}
		}
		if len(filters.Collections) > 0 {
			if collection, ok := collections[row].(string); !ok ||
				!lo.Contains(filters.Collections, collection) {

				continue
			}
		}
		if len(filters.Operations) > 0 {
			operation, ok := operations[row].(string)
			if !ok || !lo.Contains(filters.Operations, cdc.Operation(operation)) {
				continue
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
