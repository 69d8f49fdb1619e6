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

package routing

import (
	"sync"
	"time"
)

// circuitBreaker tracks consecutive delivery failures of one destination.
// Once the threshold is crossed the circuit opens for the reset window and
// delivery attempts fail fast, afterwards it closes again on its own.
type circuitBreaker struct {
	mutex      sync.Mutex
	threshold  uint
	resetAfter time.Duration

	failures uint
	openedAt time.Time
	open     bool
}

func newCircuitBreaker(
	threshold uint, resetAfter time.Duration,
) *circuitBreaker {

	return &circuitBreaker{
		threshold:  threshold,
		resetAfter: resetAfter,
	}
}

func (cb *circuitBreaker) allow() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if !cb.open {
		return true
	}
	if time.Since(cb.openedAt) >= cb.resetAfter {
		cb.open = false
		cb.failures = 0
		return true
	}
	return false
}

func (cb *circuitBreaker) success() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures = 0
	cb.open = false
}

func (cb *circuitBreaker) failure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures++
	if cb.failures >= cb.threshold {
		cb.open = true
		cb.openedAt = time.Now()
	}
}

func (cb *circuitBreaker) isOpen() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.open && time.Since(cb.openedAt) < cb.resetAfter
}
