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
	"sort"
	"time"

	"github.com/inhies/go-bytesize"
	"github.com/samber/lo"
)

// expiryWarningWindow is how far ahead Report looks for files that the
// age policy is about to expire.
const expiryWarningWindow = time.Hour * 24

type RetentionPolicy struct {
	MaxAge       time.Duration
	MaxTotalSize int64
	DryRun       bool
}

type RetentionReport struct {
	DryRun        bool
	FilesDeleted  int
	EventsDeleted uint64
	BytesFreed    int64
	DeletedKeys   []string
}

type ArchiveReport struct {
	FileCount     int
	TotalBytes    int64
	TotalEvents   uint64
	OldestEvent   time.Time
	NewestEvent   time.Time
	ExpiringKeys  []string
	SnapshotCount int
}

// EnforceRetention deletes files past the age limit first, then the
// oldest remaining files until the total size fits the budget. A dry run
// reports what would go without touching anything.
func (as *ArchiveStore) EnforceRetention(
	ctx context.Context, policy RetentionPolicy,
) (*RetentionReport, error) {

	policy = as.retentionDefaults(policy)

	files, err := as.manifest.currentFiles(ctx)
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].MaxTimestamp.Before(files[j].MaxTimestamp)
	})

	expired := make(map[string]bool)
	if policy.MaxAge > 0 {
		deadline := time.Now().UTC().Add(-policy.MaxAge)
		for _, file := range files {
			if file.MaxTimestamp.Before(deadline) {
				expired[file.Key] = true
			}
		}
	}

	if policy.MaxTotalSize > 0 {
		remaining := int64(0)
		for _, file := range files {
			if !expired[file.Key] {
				remaining += file.SizeBytes
			}
		}
		// oldest first until the size budget holds
		for _, file := range files {
			if remaining <= policy.MaxTotalSize {
				break
			}
			if !expired[file.Key] {
				expired[file.Key] = true
				remaining -= file.SizeBytes
			}
		}
	}

	report := &RetentionReport{
		DryRun: policy.DryRun,
	}
	kept := make([]DataFile, 0, len(files))
	for _, file := range files {
		if !expired[file.Key] {
			kept = append(kept, file)
			continue
		}
		report.FilesDeleted++
		report.EventsDeleted += file.EventCount
		report.BytesFreed += file.SizeBytes
		report.DeletedKeys = append(report.DeletedKeys, file.Key)
	}

	if policy.DryRun || report.FilesDeleted == 0 {
		return report, nil
	}

	if _, err := as.manifest.commit(ctx, operationExpire, kept); err != nil {
		return nil, err
	}
	if err := as.store.Delete(ctx, report.DeletedKeys...); err != nil {
		as.logger.Warnf("deleting expired files: %v", err)
	}
	return report, nil
}

func (as *ArchiveStore) retentionDefaults(
	policy RetentionPolicy,
) RetentionPolicy {

	if policy.MaxAge <= 0 {
		policy.MaxAge = as.retention.MaxAge
	}
	if policy.MaxTotalSize <= 0 && as.retention.MaxTotalSize != "" {
		if size, err := bytesize.Parse(as.retention.MaxTotalSize); err == nil {
			policy.MaxTotalSize = int64(size)
		}
	}
	return policy
}

// Report summarizes the archive without reading any data file.
func (as *ArchiveStore) Report(
	ctx context.Context,
) (*ArchiveReport, error) {

	files, err := as.manifest.currentFiles(ctx)
	if err != nil {
		return nil, err
	}
	snapshots, err := as.manifest.snapshots(ctx)
	if err != nil {
		return nil, err
	}

	report := &ArchiveReport{
		FileCount:     len(files),
		SnapshotCount: len(snapshots),
	}

	expiryDeadline := time.Time{}
	if as.retention.MaxAge > 0 {
		expiryDeadline = time.Now().UTC().Add(expiryWarningWindow - as.retention.MaxAge)
	}

	for _, file := range files {
		report.TotalBytes += file.SizeBytes
		report.TotalEvents += file.EventCount
		if report.OldestEvent.IsZero() || file.MinTimestamp.Before(report.OldestEvent) {
			report.OldestEvent = file.MinTimestamp
		}
		if file.MaxTimestamp.After(report.NewestEvent) {
			report.NewestEvent = file.MaxTimestamp
		}
		if !expiryDeadline.IsZero() && file.MaxTimestamp.Before(expiryDeadline) {
			report.ExpiringKeys = append(report.ExpiringKeys, file.Key)
		}
	}
	report.ExpiringKeys = lo.Uniq(report.ExpiringKeys)
	return report, nil
}
