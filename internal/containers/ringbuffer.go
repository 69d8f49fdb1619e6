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

package containers

import (
	"sync"

	"github.com/go-errors/errors"
)

// RingBuffer is a bounded buffer with high and low water marks, used as the
// local backpressure primitive. Writing sets the paused flag once occupancy
// reaches the high mark, reading clears it once occupancy falls back to the
// low mark. The drain callback fires exactly when the buffer becomes empty.
//
// The buffer provides no cross-process flow control. Producers must check
// Paused themselves, throttling across boundaries is layered on by the
// router's retry and circuit breaker behavior.
type RingBuffer[T any] struct {
	mutex         sync.Mutex
	items         []T
	head          int
	tail          int
	size          int
	highWaterMark int
	lowWaterMark  int
	paused        bool
	onDrain       func()
}

func NewRingBuffer[T any](
	capacity, highWaterMark, lowWaterMark int,
) (*RingBuffer[T], error) {

	if capacity <= 0 {
		return nil, errors.Errorf("ring buffer capacity must be positive, got %d", capacity)
	}
	if highWaterMark > capacity || highWaterMark <= 0 {
		return nil, errors.Errorf(
			"high water mark %d out of range for capacity %d", highWaterMark, capacity,
		)
	}
	if lowWaterMark >= highWaterMark || lowWaterMark < 0 {
		return nil, errors.Errorf(
			"low water mark %d must be below high water mark %d", lowWaterMark, highWaterMark,
		)
	}
	return &RingBuffer[T]{
		items:         make([]T, capacity),
		highWaterMark: highWaterMark,
		lowWaterMark:  lowWaterMark,
	}, nil
}

func (rb *RingBuffer[T]) OnDrain(
	callback func(),
) {

	rb.mutex.Lock()
	defer rb.mutex.Unlock()
	rb.onDrain = callback
}

func (rb *RingBuffer[T]) Write(
	item T,
) error {

	rb.mutex.Lock()
	defer rb.mutex.Unlock()

	if rb.size == len(rb.items) {
		return errors.Errorf("ring buffer is full (capacity %d)", len(rb.items))
	}

	rb.items[rb.tail] = item
	rb.tail = (rb.tail + 1) % len(rb.items)
	rb.size++

	if rb.size >= rb.highWaterMark {
		rb.paused = true
	}
	return nil
}

func (rb *RingBuffer[T]) Read() (T, bool) {
	rb.mutex.Lock()

	var zero T
	if rb.size == 0 {
		rb.mutex.Unlock()
		return zero, false
	}

	item := rb.items[rb.head]
	rb.items[rb.head] = zero
	rb.head = (rb.head + 1) % len(rb.items)
	rb.size--

	if rb.size <= rb.lowWaterMark {
		rb.paused = false
	}

	drained := rb.size == 0
	onDrain := rb.onDrain
	rb.mutex.Unlock()

	if drained && onDrain != nil {
		onDrain()
	}
	return item, true
}

func (rb *RingBuffer[T]) Paused() bool {
	rb.mutex.Lock()
	defer rb.mutex.Unlock()
	return rb.paused
}

func (rb *RingBuffer[T]) Len() int {
	rb.mutex.Lock()
	defer rb.mutex.Unlock()
	return rb.size
}

func (rb *RingBuffer[T]) Capacity() int {
	return len(rb.items)
}
