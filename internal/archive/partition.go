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
	"fmt"
	"time"

	"github.com/go-errors/errors"
	"github.com/vortexlabs/tierstream/spi/cdc"
	spiconfig "github.com/vortexlabs/tierstream/spi/config"
)

type PartitionGranularity string

const (
	GranularityDay  PartitionGranularity = "day"
	GranularityHour PartitionGranularity = "hour"
)

// Partitioner maps an event to the partition path segment of its archive
// key. The mapping is a pure function of the event, the same event always
// lands in the same partition.
type Partitioner struct {
	scheme      spiconfig.PartitionScheme
	granularity PartitionGranularity
}

func NewPartitioner(
	scheme spiconfig.PartitionScheme, granularity PartitionGranularity,
) (*Partitioner, error) {

	switch scheme {
	case spiconfig.PartitionByTime, spiconfig.PartitionByCollection:
	default:
		return nil, errors.Errorf("unknown partition scheme '%s'", scheme)
	}
	switch granularity {
	case GranularityDay, GranularityHour:
	default:
		return nil, errors.Errorf("unknown partition granularity '%s'", granularity)
	}

	return &Partitioner{
		scheme:      scheme,
		granularity: granularity,
	}, nil
}

func (p *Partitioner) Partition(
	event *cdc.ChangeEvent,
) string {

	if p.scheme == spiconfig.PartitionByCollection {
		return fmt.Sprintf("collection=%s", event.Collection)
	}
	return p.timePartition(event.Timestamp)
}

func (p *Partitioner) timePartition(
	timestamp time.Time,
) string {

	t := timestamp.UTC()
	path := fmt.Sprintf("year=%04d/month=%02d/day=%02d", t.Year(), t.Month(), t.Day())
	if p.granularity == GranularityHour {
		path += fmt.Sprintf("/hour=%02d", t.Hour())
	}
	return path
}

// PartitionsInRange enumerates every time partition touched by the
// half-open interval. Collection partitioning cannot be pruned by time
// and returns nil, meaning all partitions.
func (p *Partitioner) PartitionsInRange(
	from, to time.Time,
) []string {

	if p.scheme != spiconfig.PartitionByTime || from.IsZero() || to.IsZero() {
		return nil
	}

	step := time.Hour * 24
	if p.granularity == GranularityHour {
		step = time.Hour
	}

	partitions := make([]string, 0)
	seen := make(map[string]bool)
	for t := from.UTC(); !t.After(to.UTC()); t = t.Add(step) {
		partition := p.timePartition(t)
		if !seen[partition] {
			seen[partition] = true
			partitions = append(partitions, partition)
		}
	}
	final := p.timePartition(to)
	if !seen[final] {
		partitions = append(partitions, final)
	}
	return partitions
}
