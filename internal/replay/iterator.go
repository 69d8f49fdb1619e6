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
	"time"

	"github.com/go-errors/errors"
	"github.com/vortexlabs/tierstream/spi/cdc"
)

// BatchHandler consumes one replayed batch. A returned error (or panic) is
// isolated by the caller and never stops the replay loop.
type BatchHandler func(batch *cdc.Batch) error

// Progress reports how far a replay has advanced.
type Progress struct {
	Cursor          cdc.Cursor
	EventsProcessed int
	Batches         int
}

// Iterator is a lazy, pull-based sequence of batches. Each Next advances
// the cursor; the sequence is finite once caught up and resumable from any
// cursor.
type Iterator struct {
	replayer *Replayer
	options  ReplayOptions
	done     bool
}

// Replay returns an iterator starting at the position the options resolve.
func (r *Replayer) Replay(
	options ReplayOptions,
) *Iterator {

	return &Iterator{
		replayer: r,
		options:  options,
	}
}

// Next pulls the next batch, or nil once the replay has caught up.
func (it *Iterator) Next(
	ctx context.Context,
) (*cdc.Batch, error) {

	if it.done {
		return nil, nil
	}

	batch, err := it.replayer.GetBatch(ctx, it.options)
	if err != nil {
		return nil, err
	}
	if len(batch.Events) == 0 {
		it.done = true
		return nil, nil
	}

	cursor := batch.Cursor
	it.options.Cursor = &cursor
	it.options.Sequence = 0
	it.options.Timestamp = time.Time{}
	if !batch.HasMore {
		it.done = true
	}
	return batch, nil
}

// ReplayWithHandler drives a full replay through the handler, reporting
// progress after every batch. Handler failures are logged and skipped, the
// replay keeps advancing.
func (r *Replayer) ReplayWithHandler(
	ctx context.Context, options ReplayOptions,
	handler BatchHandler, onProgress func(Progress),
) (Progress, error) {

	progress := Progress{}
	iterator := r.Replay(options)
	for {
		batch, err := iterator.Next(ctx)
		if err != nil {
			return progress, err
		}
		if batch == nil {
			return progress, nil
		}

		if err := invokeHandler(handler, batch); err != nil {
			r.logger.Errorf("replay handler failed: %v", err)
		}

		progress.Cursor = batch.Cursor
		progress.EventsProcessed += len(batch.Events)
		progress.Batches++
		if onProgress != nil {
			onProgress(progress)
		}
	}
}

func invokeHandler(
	handler BatchHandler, batch *cdc.Batch,
) (err error) {

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("replay handler panicked: %v", r)
		}
	}()
	return handler(batch)
}
