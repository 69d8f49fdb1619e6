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

	"github.com/inhies/go-bytesize"
	"github.com/vortexlabs/tierstream/internal/vortex"
	"github.com/vortexlabs/tierstream/spi/cdc"
	"github.com/vortexlabs/tierstream/spi/storage"
)

type CompactionOptions struct {
	TargetFileSize int64
	Dedupe         *bool
	MinInputFiles  int
}

type CompactionReport struct {
	Skipped           bool
	SkipReason        string
	FilesCompacted    int
	FilesWritten      int
	BytesRead         int64
	BytesWritten      int64
	Ratio             float64
	DuplicatesRemoved int
	FileErrors        map[string]error
}

// Compact rewrites the current data files into fewer consolidated ones,
// optionally dropping duplicate event ids. Files that fail to read stay
// untouched in the manifest, their error is reported instead of aborting
// the run.
func (as *ArchiveStore) Compact(
	ctx context.Context, options CompactionOptions,
) (*CompactionReport, error) {

	options = as.compactionDefaults(options)

	files, err := as.manifest.currentFiles(ctx)
	if err != nil {
		return nil, err
	}

	report := &CompactionReport{
		FileErrors: make(map[string]error),
	}
	if len(files) < options.MinInputFiles {
		report.Skipped = true
		report.SkipReason = fmt.Sprintf(
			"%d input files below the minimum of %d", len(files), options.MinInputFiles,
		)
		return report, nil
	}

	events := make([]*cdc.ChangeEvent, 0)
	compacted := make([]DataFile, 0, len(files))
	untouched := make([]DataFile, 0)
	for _, file := range files {
		fileEvents, err := as.readAll(ctx, file)
		if err != nil {
			report.FileErrors[file.Key] = err
			untouched = append(untouched, file)
			continue
		}
		events = append(events, fileEvents...)
		compacted = append(compacted, file)
		report.BytesRead += file.SizeBytes
	}
	report.FilesCompacted = len(compacted)
	if len(compacted) < options.MinInputFiles {
		report.Skipped = true
		report.SkipReason = fmt.Sprintf(
			"only %d of %d input files were readable", len(compacted), len(files),
		)
		return report, nil
	}

	if options.Dedupe == nil || *options.Dedupe {
		events, report.DuplicatesRemoved = dedupeByID(events)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].Sequence < events[j].Sequence
	})

	written := make([]DataFile, 0)
	for _, chunk := range chunkByTargetSize(events, report.BytesRead, options.TargetFileSize) {
		for _, group := range as.groupByPartition(chunk) {
			file, err := as.writeFile(ctx, group.partition, group.events)
			if err != nil {
				return nil, err
			}
			written = append(written, *file)
			report.BytesWritten += file.SizeBytes
		}
	}
	report.FilesWritten = len(written)
	if report.BytesRead > 0 {
		report.Ratio = float64(report.BytesWritten) / float64(report.BytesRead)
	}

	if _, err := as.manifest.commit(
		ctx, operationCompact, append(untouched, written...),
	); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(compacted))
	for _, file := range compacted {
		keys = append(keys, file.Key)
	}
	if err := as.store.Delete(ctx, keys...); err != nil {
		// the manifest no longer references them, orphans are harmless
		as.logger.Warnf("deleting compacted input files: %v", err)
	}
	return report, nil
}

func (as *ArchiveStore) compactionDefaults(
	options CompactionOptions,
) CompactionOptions {

	if options.TargetFileSize <= 0 {
		options.TargetFileSize = 64 * 1024 * 1024
		if as.compaction.TargetFileSize != "" {
			if size, err := bytesize.Parse(as.compaction.TargetFileSize); err == nil {
				options.TargetFileSize = int64(size)
			}
		}
	}
	if options.MinInputFiles <= 0 {
		options.MinInputFiles = 2
		if as.compaction.MinInputFiles > 0 {
			options.MinInputFiles = int(as.compaction.MinInputFiles)
		}
	}
	if options.Dedupe == nil {
		options.Dedupe = as.compaction.Dedupe
	}
	return options
}

func (as *ArchiveStore) readAll(
	ctx context.Context, file DataFile,
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

	rows, err := decoder.ReadAll()
	if err != nil {
		return nil, err
	}

	events := make([]*cdc.ChangeEvent, 0, len(rows))
	for _, row := range rows {
		event, err := rowToEvent(row)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// dedupeByID keeps the highest-sequence copy of every event id.
func dedupeByID(
	events []*cdc.ChangeEvent,
) ([]*cdc.ChangeEvent, int) {

	byID := make(map[string]*cdc.ChangeEvent, len(events))
	order := make([]string, 0, len(events))
	for _, event := range events {
		existing, present := byID[event.ID]
		if !present {
			byID[event.ID] = event
			order = append(order, event.ID)
			continue
		}
		if event.Sequence > existing.Sequence {
			byID[event.ID] = event
		}
	}

	deduped := make([]*cdc.ChangeEvent, 0, len(order))
	for _, id := range order {
		deduped = append(deduped, byID[id])
	}
	return deduped, len(events) - len(deduped)
}

// chunkByTargetSize splits the ordered event list so each chunk lands
// near the target output size, estimated from the observed input bytes
// per event.
func chunkByTargetSize(
	events []*cdc.ChangeEvent, bytesRead int64, targetSize int64,
) [][]*cdc.ChangeEvent {

	if len(events) == 0 {
		return nil
	}

	perFile := len(events)
	if avg := bytesRead / int64(len(events)); avg > 0 && targetSize > 0 {
		if estimate := int(targetSize / avg); estimate > 0 && estimate < perFile {
			perFile = estimate
		}
	}

	chunks := make([][]*cdc.ChangeEvent, 0)
	for start := 0; start < len(events); start += perFile {
		end := start + perFile
		if end > len(events) {
			end = len(events)
		}
		chunks = append(chunks, events[start:end])
	}
	return chunks
}
