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
	"time"

	"github.com/samber/lo"
	"github.com/vortexlabs/tierstream/spi/storage"
)

type RetentionReport struct {
	Deleted []string             `json:"deleted"`
	PerTier map[storage.Tier]int `json:"perTier"`
}

// EnforceRetention expires an owner's snapshots by age and count,
// separately per tier. Snapshots the latest snapshot's lineage still
// depends on are never expired.
func (m *Manager) EnforceRetention(
	ctx context.Context, ownerID string,
) (*RetentionReport, error) {

	m.mutex.Lock()
	defer m.mutex.Unlock()

	report := &RetentionReport{
		Deleted: make([]string, 0),
		PerTier: make(map[storage.Tier]int),
	}

	owned := m.snapshots[ownerID]
	if len(owned) == 0 {
		return report, nil
	}

	protected := m.protectedIDs(ownerID)
	now := time.Now().UTC()

	expired := make(map[string]bool)
	for _, tier := range []storage.Tier{storage.TierActive, storage.TierArchive} {
		tiered := lo.Filter(owned, func(snapshot *Snapshot, _ int) bool {
			return snapshot.Tier == tier
		})

		// Newest first, the count limit keeps the head of this order.
		for i, j := 0, len(tiered)-1; i < j; i, j = i+1, j-1 {
			tiered[i], tiered[j] = tiered[j], tiered[i]
		}

		for position, snapshot := range tiered {
			if protected[snapshot.ID] {
				continue
			}
			tooMany := m.retentionCount > 0 && position >= m.retentionCount
			tooOld := m.retentionAge > 0 &&
				now.Sub(snapshot.CreatedAt) > m.retentionAge
			if !tooMany && !tooOld {
				continue
			}

			if err := m.store.Delete(ctx, m.key(snapshot)); err != nil {
				return report, storage.NewStorageError(snapshot.Tier, "snapshot expire", err)
			}
			expired[snapshot.ID] = true
			report.Deleted = append(report.Deleted, snapshot.ID)
			report.PerTier[tier]++
		}
	}

	if len(expired) > 0 {
		m.snapshots[ownerID] = lo.Filter(owned, func(snapshot *Snapshot, _ int) bool {
			return !expired[snapshot.ID]
		})
		m.logger.Infof(
			"expired %d snapshots for owner '%s'", len(expired), ownerID,
		)
	}
	return report, nil
}

// protectedIDs marks the lineage of the owner's latest snapshot.
func (m *Manager) protectedIDs(
	ownerID string,
) map[string]bool {

	protected := make(map[string]bool)
	current := m.latest(ownerID)
	for current != nil {
		protected[current.ID] = true
		if current.Type == SnapshotFull {
			break
		}
		current = m.lookup(ownerID, current.ParentID)
	}
	return protected
}
