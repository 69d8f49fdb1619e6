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
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vortexlabs/tierstream/internal/archive"
	"github.com/vortexlabs/tierstream/internal/objectstores/memory"
	"github.com/vortexlabs/tierstream/spi/cdc"
	spiconfig "github.com/vortexlabs/tierstream/spi/config"
)

type fakeActive struct {
	mutex  sync.Mutex
	events []*cdc.ChangeEvent
}

func (f *fakeActive) RetainedEvents() []*cdc.ChangeEvent {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]*cdc.ChangeEvent{}, f.events...)
}

func (f *fakeActive) OldestRetained() uint64 {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if len(f.events) == 0 {
		return 0
	}
	return f.events[0].Sequence
}

func (f *fakeActive) Head() cdc.Cursor {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if len(f.events) == 0 {
		return cdc.Cursor{}
	}
	return f.events[len(f.events)-1].Cursor()
}

func (f *fakeActive) append(
	events ...*cdc.ChangeEvent,
) {

	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.events = append(f.events, events...)
}

func replayEvent(
	sequence uint64, collection string, operation cdc.Operation,
) *cdc.ChangeEvent {

	return &cdc.ChangeEvent{
		ID:         fmt.Sprintf("evt-%d", sequence),
		Operation:  operation,
		Collection: collection,
		DocumentID: fmt.Sprintf("doc-%d", sequence),
		Timestamp:  time.Date(2024, 5, 1, 10, 0, int(sequence), 0, time.UTC),
		Sequence:   sequence,
		After:      map[string]any{"id": fmt.Sprintf("doc-%d", sequence)},
	}
}

func newTestArchive(
	t *testing.T,
) *archive.ArchiveStore {

	store, err := archive.NewArchiveStore(
		&spiconfig.Config{}, memory.NewMemoryObjectStore(),
	)
	assert.NoError(t, err)
	return store
}

func Test_Replay_Merges_Archive_And_Active(
	t *testing.T,
) {

	archived := make([]*cdc.ChangeEvent, 0)
	for sequence := uint64(1); sequence <= 5; sequence++ {
		archived = append(archived, replayEvent(sequence, "users", cdc.OperationInsert))
	}

	archiveStore := newTestArchive(t)
	_, err := archiveStore.Write(context.Background(), archived)
	assert.NoError(t, err)

	active := &fakeActive{}
	for sequence := uint64(4); sequence <= 8; sequence++ {
		active.append(replayEvent(sequence, "users", cdc.OperationInsert))
	}

	replayer, err := NewReplayer(active, archiveStore)
	assert.NoError(t, err)

	batch, err := replayer.GetBatch(context.Background(), ReplayOptions{Sequence: 1})
	assert.NoError(t, err)
	assert.Len(t, batch.Events, 8)
	for i, event := range batch.Events {
		assert.Equal(t, uint64(i+1), event.Sequence)
	}
	assert.False(t, batch.HasMore)
	assert.Equal(t, uint64(8), batch.Cursor.Sequence)
	assert.Equal(t, uint64(0), replayer.PayloadCollisions())
	assert.Empty(t, ValidateSequence(batch.Events))
}

func Test_Replay_Active_Copy_Wins_On_Collision(
	t *testing.T,
) {

	stale := replayEvent(3, "users", cdc.OperationInsert)
	stale.After = map[string]any{"id": "doc-3", "name": "stale"}

	archiveStore := newTestArchive(t)
	_, err := archiveStore.Write(context.Background(), []*cdc.ChangeEvent{stale})
	assert.NoError(t, err)

	fresh := replayEvent(3, "users", cdc.OperationInsert)
	fresh.After = map[string]any{"id": "doc-3", "name": "fresh"}
	active := &fakeActive{}
	active.append(fresh)

	replayer, err := NewReplayer(active, archiveStore)
	assert.NoError(t, err)

	batch, err := replayer.GetBatch(context.Background(), ReplayOptions{Sequence: 1})
	assert.NoError(t, err)
	assert.Len(t, batch.Events, 1)
	assert.Equal(t, "fresh", batch.Events[0].After["name"])
	assert.Equal(t, uint64(1), replayer.PayloadCollisions())
}

func Test_Replay_Cursor_Resumes_After_Position(
	t *testing.T,
) {

	active := &fakeActive{}
	for sequence := uint64(1); sequence <= 8; sequence++ {
		active.append(replayEvent(sequence, "users", cdc.OperationInsert))
	}

	replayer, err := NewReplayer(active, nil)
	assert.NoError(t, err)

	batch, err := replayer.GetBatch(context.Background(), ReplayOptions{
		Cursor: &cdc.Cursor{Sequence: 3},
	})
	assert.NoError(t, err)
	assert.Len(t, batch.Events, 5)
	assert.Equal(t, uint64(4), batch.Events[0].Sequence)
}

func Test_Replay_Timestamp_Start_Point(
	t *testing.T,
) {

	archived := make([]*cdc.ChangeEvent, 0)
	for sequence := uint64(1); sequence <= 6; sequence++ {
		archived = append(archived, replayEvent(sequence, "users", cdc.OperationInsert))
	}

	archiveStore := newTestArchive(t)
	_, err := archiveStore.Write(context.Background(), archived)
	assert.NoError(t, err)

	replayer, err := NewReplayer(&fakeActive{}, archiveStore)
	assert.NoError(t, err)

	batch, err := replayer.GetBatch(context.Background(), ReplayOptions{
		Timestamp: time.Date(2024, 5, 1, 10, 0, 4, 0, time.UTC),
	})
	assert.NoError(t, err)
	assert.Len(t, batch.Events, 3)
	assert.Equal(t, uint64(4), batch.Events[0].Sequence)
}

func Test_Replay_Truncates_And_Flags_More(
	t *testing.T,
) {

	active := &fakeActive{}
	for sequence := uint64(1); sequence <= 8; sequence++ {
		active.append(replayEvent(sequence, "users", cdc.OperationInsert))
	}

	replayer, err := NewReplayer(active, nil)
	assert.NoError(t, err)

	batch, err := replayer.GetBatch(context.Background(), ReplayOptions{
		Sequence:  1,
		BatchSize: 3,
	})
	assert.NoError(t, err)
	assert.Len(t, batch.Events, 3)
	assert.True(t, batch.HasMore)
	assert.Equal(t, uint64(3), batch.Cursor.Sequence)
}

func Test_Replay_Filters_Collections_And_Operations(
	t *testing.T,
) {

	active := &fakeActive{}
	active.append(
		replayEvent(1, "users", cdc.OperationInsert),
		replayEvent(2, "orders", cdc.OperationInsert),
		replayEvent(3, "users", cdc.OperationDelete),
		replayEvent(4, "users", cdc.OperationInsert),
	)

	replayer, err := NewReplayer(active, nil)
	assert.NoError(t, err)

	batch, err := replayer.GetBatch(context.Background(), ReplayOptions{
		Sequence:    1,
		Collections: []string{"users"},
		Operations:  []cdc.Operation{cdc.OperationInsert},
	})
	assert.NoError(t, err)
	assert.Len(t, batch.Events, 2)
	assert.Equal(t, uint64(1), batch.Events[0].Sequence)
	assert.Equal(t, uint64(4), batch.Events[1].Sequence)
}

func Test_Replay_Iterator_Advances_To_Exhaustion(
	t *testing.T,
) {

	active := &fakeActive{}
	for sequence := uint64(1); sequence <= 8; sequence++ {
		active.append(replayEvent(sequence, "users", cdc.OperationInsert))
	}

	replayer, err := NewReplayer(active, nil)
	assert.NoError(t, err)

	iterator := replayer.Replay(ReplayOptions{Sequence: 1, BatchSize: 3})

	sizes := make([]int, 0)
	for {
		batch, err := iterator.Next(context.Background())
		assert.NoError(t, err)
		if batch == nil {
			break
		}
		sizes = append(sizes, len(batch.Events))
	}
	assert.Equal(t, []int{3, 3, 2}, sizes)

	// Exhausted iterators stay exhausted.
	batch, err := iterator.Next(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, batch)
}

func Test_Replay_With_Handler_Reports_Progress(
	t *testing.T,
) {

	active := &fakeActive{}
	for sequence := uint64(1); sequence <= 8; sequence++ {
		active.append(replayEvent(sequence, "users", cdc.OperationInsert))
	}

	replayer, err := NewReplayer(active, nil)
	assert.NoError(t, err)

	invocations := 0
	progress, err := replayer.ReplayWithHandler(
		context.Background(), ReplayOptions{Sequence: 1, BatchSize: 3},
		func(batch *cdc.Batch) error {
			invocations++
			if invocations == 2 {
				panic("transient consumer failure")
			}
			return nil
		},
		nil,
	)
	assert.NoError(t, err)
	assert.Equal(t, 3, invocations)
	assert.Equal(t, 8, progress.EventsProcessed)
	assert.Equal(t, 3, progress.Batches)
	assert.Equal(t, uint64(8), progress.Cursor.Sequence)
}

func Test_Validate_Sequence_Reports_Gaps(
	t *testing.T,
) {

	events := []*cdc.ChangeEvent{
		replayEvent(5, "users", cdc.OperationInsert),
		replayEvent(1, "users", cdc.OperationInsert),
		replayEvent(8, "users", cdc.OperationInsert),
		replayEvent(8, "users", cdc.OperationInsert),
	}

	gaps := ValidateSequence(events)
	assert.Equal(t, []SequenceGap{
		{Start: 2, End: 4},
		{Start: 6, End: 7},
	}, gaps)
}

func Test_Validate_Sequence_Contiguous_Is_Clean(
	t *testing.T,
) {

	events := []*cdc.ChangeEvent{
		replayEvent(2, "users", cdc.OperationInsert),
		replayEvent(1, "users", cdc.OperationInsert),
		replayEvent(3, "users", cdc.OperationInsert),
	}
	assert.Nil(t, ValidateSequence(events))
	assert.Nil(t, ValidateSequence(nil))
}
