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
	"sort"

	"github.com/vortexlabs/tierstream/spi/cdc"
)

// SequenceGap is an inclusive range of missing sequence numbers.
type SequenceGap struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

// ValidateSequence reports the missing ranges in the given events. The
// input is not modified, duplicates are ignored.
func ValidateSequence(
	events []*cdc.ChangeEvent,
) []SequenceGap {

	if len(events) < 2 {
		return nil
	}

	sequences := make([]uint64, len(events))
	for i, event := range events {
		sequences[i] = event.Sequence
	}
	sort.Slice(sequences, func(i, j int) bool {
		return sequences[i] < sequences[j]
	})

	gaps := make([]SequenceGap, 0)
	for i := 1; i < len(sequences); i++ {
		previous, current := sequences[i-1], sequences[i]
		if current > previous+1 {
			gaps = append(gaps, SequenceGap{
				Start: previous + 1,
				End:   current - 1,
			})
		}
	}
	if len(gaps) == 0 {
		return nil
	}
	return gaps
}
