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

package emitting

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-errors/errors"
	"github.com/hashicorp/go-uuid"
	"github.com/vortexlabs/tierstream/internal/logging"
	"github.com/vortexlabs/tierstream/spi/cdc"
	spiconfig "github.com/vortexlabs/tierstream/spi/config"
	"github.com/vortexlabs/tierstream/spi/storage"
)

// BatchHandler receives flushed event batches. Handlers run sequentially
// and are isolated from each other, one failing or panicking handler never
// keeps the others from seeing the batch.
type BatchHandler func(events []*cdc.ChangeEvent) error

type EmitOptions struct {
	Collection    string
	Before        map[string]any
	After         map[string]any
	CorrelationID string
}

// Emitter assigns sequence numbers and materializes change events for
// active store mutations. The sequence is claimed before any buffering or
// delivery happens, so a later delivery failure never reuses a number.
type Emitter struct {
	source       string
	batchSize    int
	batchTimeout time.Duration
	fieldDiffing bool

	sequence atomic.Uint64
	logger   *logging.Logger

	mutex    sync.Mutex
	handlers []BatchHandler
	buffer   []*cdc.ChangeEvent
	timer    *time.Timer
}

func NewEmitter(
	c *spiconfig.Config,
) (*Emitter, error) {

	logger, err := logging.NewLogger("Emitter")
	if err != nil {
		return nil, err
	}

	emitter := &Emitter{
		source: spiconfig.GetOrDefault(
			c, spiconfig.PropertyEmitterSource, "tierstream",
		),
		batchSize: int(spiconfig.GetOrDefault(
			c, spiconfig.PropertyEmitterBatchSize, uint(100),
		)),
		batchTimeout: spiconfig.GetOrDefault(
			c, spiconfig.PropertyEmitterBatchTimeout, time.Millisecond*250,
		),
		fieldDiffing: spiconfig.GetOrDefault(
			c, spiconfig.PropertyEmitterFieldDiffing, true,
		),
		logger: logger,
	}
	emitter.sequence.Store(spiconfig.GetOrDefault(
		c, spiconfig.PropertyEmitterStartSequence, uint64(0),
	))
	return emitter, nil
}

// Sequence returns the most recently assigned sequence number.
func (e *Emitter) Sequence() uint64 {
	return e.sequence.Load()
}

func (e *Emitter) RegisterBatchHandler(
	handler BatchHandler,
) {

	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.handlers = append(e.handlers, handler)
}

func (e *Emitter) Emit(
	operation cdc.Operation, options EmitOptions,
) (*cdc.ChangeEvent, error) {

	documentID, err := resolveDocumentID(options)
	if err != nil {
		return nil, err
	}

	id, err := uuid.GenerateUUID()
	if err != nil {
		return nil, err
	}

	event := &cdc.ChangeEvent{
		ID:            id,
		Operation:     operation,
		Collection:    options.Collection,
		DocumentID:    documentID,
		Timestamp:     time.Now().UTC(),
		Sequence:      e.sequence.Add(1),
		Before:        options.Before,
		After:         options.After,
		Source:        e.source,
		CorrelationID: options.CorrelationID,
	}

	if operation == cdc.OperationUpdate && e.fieldDiffing {
		event.ChangedFields = DiffFields(options.Before, options.After)
	}

	if err := event.Validate(); err != nil {
		return nil, err
	}

	e.buffered(event)
	return event, nil
}

// Flush forces delivery of a partially filled batch.
func (e *Emitter) Flush() {
	e.mutex.Lock()
	batch := e.takeBatch()
	handlers := e.handlers
	e.mutex.Unlock()

	e.dispatch(handlers, batch)
}

func (e *Emitter) buffered(
	event *cdc.ChangeEvent,
) {

	e.mutex.Lock()
	e.buffer = append(e.buffer, event)

	if len(e.buffer) >= e.batchSize {
		batch := e.takeBatch()
		handlers := e.handlers
		e.mutex.Unlock()

		e.dispatch(handlers, batch)
		return
	}

	// a single timer covers the whole pending batch
	if e.timer == nil {
		e.timer = time.AfterFunc(e.batchTimeout, e.Flush)
	}
	e.mutex.Unlock()
}

func (e *Emitter) takeBatch() []*cdc.ChangeEvent {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}

	batch := e.buffer
	e.buffer = nil
	return batch
}

func (e *Emitter) dispatch(
	handlers []BatchHandler, batch []*cdc.ChangeEvent,
) {

	if len(batch) == 0 {
		return
	}
	for _, handler := range handlers {
		if err := e.deliver(handler, batch); err != nil {
			e.logger.Errorf("batch handler failed: %v", err)
		}
	}
}

func (e *Emitter) deliver(
	handler BatchHandler, batch []*cdc.ChangeEvent,
) (err error) {

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("batch handler panicked: %v", r)
		}
	}()
	return handler(batch)
}

func resolveDocumentID(
	options EmitOptions,
) (string, error) {

	if id, ok := options.After["id"].(string); ok && id != "" {
		return id, nil
	}
	if id, ok := options.Before["id"].(string); ok && id != "" {
		return id, nil
	}
	return "", storage.NewValidationError(
		"neither document image carries an id",
	)
}
