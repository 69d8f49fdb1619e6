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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	checkpointmemory "github.com/vortexlabs/tierstream/internal/checkpoints/memory"
	"github.com/vortexlabs/tierstream/spi/cdc"
	"github.com/vortexlabs/tierstream/spi/checkpoint"
)

type batchRecorder struct {
	mutex   sync.Mutex
	events  []*cdc.ChangeEvent
	fail    bool
	arrived chan struct{}
}

func newBatchRecorder() *batchRecorder {
	return &batchRecorder{
		arrived: make(chan struct{}, 64),
	}
}

func (b *batchRecorder) handle(
	batch *cdc.Batch,
) error {

	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.fail {
		return assert.AnError
	}
	b.events = append(b.events, batch.Events...)
	b.arrived <- struct{}{}
	return nil
}

func (b *batchRecorder) count() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.events)
}

func (b *batchRecorder) failing(
	fail bool,
) {

	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.fail = fail
}

func awaitCondition(
	t *testing.T, condition func() bool,
) {

	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func Test_Subscription_Delivers_And_Checkpoints(
	t *testing.T,
) {

	active := &fakeActive{}
	for sequence := uint64(1); sequence <= 5; sequence++ {
		active.append(replayEvent(sequence, "users", cdc.OperationInsert))
	}

	replayer, err := NewReplayer(active, nil)
	assert.NoError(t, err)

	storage := checkpointmemory.NewMemoryCheckpointStorage()
	recorder := newBatchRecorder()

	subscription, err := NewSubscription(replayer, storage, recorder.handle, SubscriptionOptions{
		SubscriberID: "reporter",
		PollInterval: 10 * time.Millisecond,
	})
	assert.NoError(t, err)
	assert.Equal(t, SubscriptionStopped, subscription.State())

	assert.NoError(t, subscription.Start())
	assert.Equal(t, SubscriptionRunning, subscription.State())

	awaitCondition(t, func() bool { return recorder.count() == 5 })

	// New events arriving after catch-up are picked up on the next poll.
	active.append(replayEvent(6, "users", cdc.OperationInsert))
	awaitCondition(t, func() bool { return recorder.count() == 6 })

	assert.NoError(t, subscription.Stop())
	assert.Equal(t, SubscriptionStopped, subscription.State())

	saved, err := storage.Lookup("reporter")
	assert.NoError(t, err)
	assert.NotNil(t, saved)
	assert.Equal(t, uint64(6), saved.Cursor.Sequence)
}

func Test_Subscription_Resumes_From_Checkpoint(
	t *testing.T,
) {

	active := &fakeActive{}
	for sequence := uint64(1); sequence <= 6; sequence++ {
		active.append(replayEvent(sequence, "users", cdc.OperationInsert))
	}

	replayer, err := NewReplayer(active, nil)
	assert.NoError(t, err)

	storage := checkpointmemory.NewMemoryCheckpointStorage()
	_, err = storage.Save(&checkpoint.Checkpoint{
		SubscriberID: "reporter",
		Cursor:       cdc.Cursor{Sequence: 4},
	})
	assert.NoError(t, err)

	recorder := newBatchRecorder()
	subscription, err := NewSubscription(replayer, storage, recorder.handle, SubscriptionOptions{
		SubscriberID: "reporter",
		PollInterval: 10 * time.Millisecond,
	})
	assert.NoError(t, err)

	assert.NoError(t, subscription.Start())
	awaitCondition(t, func() bool { return recorder.count() == 2 })
	assert.NoError(t, subscription.Stop())

	assert.Equal(t, uint64(5), recorder.events[0].Sequence)
	assert.Equal(t, uint64(6), recorder.events[1].Sequence)
}

func Test_Subscription_Pause_And_Resume(
	t *testing.T,
) {

	active := &fakeActive{}
	active.append(replayEvent(1, "users", cdc.OperationInsert))

	replayer, err := NewReplayer(active, nil)
	assert.NoError(t, err)

	storage := checkpointmemory.NewMemoryCheckpointStorage()
	recorder := newBatchRecorder()

	subscription, err := NewSubscription(replayer, storage, recorder.handle, SubscriptionOptions{
		SubscriberID: "reporter",
		PollInterval: 10 * time.Millisecond,
	})
	assert.NoError(t, err)
	assert.NoError(t, subscription.Start())
	awaitCondition(t, func() bool { return recorder.count() == 1 })

	subscription.Pause()
	assert.Equal(t, SubscriptionPaused, subscription.State())

	active.append(replayEvent(2, "users", cdc.OperationInsert))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, recorder.count())

	subscription.Resume()
	assert.Equal(t, SubscriptionRunning, subscription.State())
	awaitCondition(t, func() bool { return recorder.count() == 2 })

	assert.NoError(t, subscription.Stop())
}

func Test_Subscription_Handler_Errors_Are_Isolated(
	t *testing.T,
) {

	active := &fakeActive{}
	active.append(replayEvent(1, "users", cdc.OperationInsert))

	replayer, err := NewReplayer(active, nil)
	assert.NoError(t, err)

	storage := checkpointmemory.NewMemoryCheckpointStorage()
	recorder := newBatchRecorder()
	recorder.failing(true)

	var reported error
	var reportedMutex sync.Mutex

	subscription, err := NewSubscription(replayer, storage, recorder.handle, SubscriptionOptions{
		SubscriberID: "reporter",
		PollInterval: 10 * time.Millisecond,
		OnError: func(err error) {
			reportedMutex.Lock()
			defer reportedMutex.Unlock()
			reported = err
		},
	})
	assert.NoError(t, err)
	assert.NoError(t, subscription.Start())

	awaitCondition(t, func() bool {
		reportedMutex.Lock()
		defer reportedMutex.Unlock()
		return reported != nil
	})

	// The failed batch is not checkpointed and is retried once the
	// handler recovers.
	recorder.failing(false)
	awaitCondition(t, func() bool { return recorder.count() == 1 })

	assert.NoError(t, subscription.Stop())

	saved, err := storage.Lookup("reporter")
	assert.NoError(t, err)
	assert.NotNil(t, saved)
	assert.Equal(t, uint64(1), saved.Cursor.Sequence)
}

func Test_Subscription_Stop_Is_Terminal(
	t *testing.T,
) {

	replayer, err := NewReplayer(&fakeActive{}, nil)
	assert.NoError(t, err)

	storage := checkpointmemory.NewMemoryCheckpointStorage()
	recorder := newBatchRecorder()

	subscription, err := NewSubscription(replayer, storage, recorder.handle, SubscriptionOptions{
		SubscriberID: "reporter",
		PollInterval: 10 * time.Millisecond,
	})
	assert.NoError(t, err)
	assert.NoError(t, subscription.Start())
	assert.NoError(t, subscription.Stop())

	assert.Error(t, subscription.Start())
}
