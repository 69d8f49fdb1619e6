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

package cdc

import (
	"time"

	"github.com/go-errors/errors"
)

type Operation string

const (
	OperationInsert Operation = "INSERT"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
)

func (o Operation) Valid() bool {
	switch o {
	case OperationInsert, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// ChangeEvent is the unit of change data capture. Exactly one event is
// produced per mutation of the active store. Sequence numbers are strictly
// increasing per emitter instance and never reused.
type ChangeEvent struct {
	ID            string         `json:"id"`
	Operation     Operation      `json:"operation"`
	Collection    string         `json:"collection"`
	DocumentID    string         `json:"documentId"`
	Timestamp     time.Time      `json:"timestamp"`
	Sequence      uint64         `json:"sequence"`
	Before        map[string]any `json:"before,omitempty"`
	After         map[string]any `json:"after,omitempty"`
	ChangedFields []string       `json:"changedFields,omitempty"`
	Source        string         `json:"source,omitempty"`
	CorrelationID string         `json:"correlationId,omitempty"`
}

// Validate checks the operation specific shape invariants. INSERT events
// never carry a before image, DELETE events never carry an after image or
// a changed field list.
func (c *ChangeEvent) Validate() error {
	if !c.Operation.Valid() {
		return errors.Errorf("unknown operation '%s'", string(c.Operation))
	}
	switch c.Operation {
	case OperationInsert:
		if c.Before != nil {
			return errors.Errorf("INSERT event '%s' must not carry a before image", c.ID)
		}
	case OperationDelete:
		if c.After != nil {
			return errors.Errorf("DELETE event '%s' must not carry an after image", c.ID)
		}
		if c.ChangedFields != nil {
			return errors.Errorf("DELETE event '%s' must not carry changed fields", c.ID)
		}
	}
	return nil
}

func (c *ChangeEvent) Cursor() Cursor {
	return Cursor{
		Sequence:  c.Sequence,
		Timestamp: c.Timestamp,
	}
}

// Batch is an ordered slice of events together with the cursor of the last
// contained event. HasMore signals that the producing tier holds events
// beyond this batch.
type Batch struct {
	Events  []*ChangeEvent `json:"events"`
	Cursor  Cursor         `json:"cursor"`
	HasMore bool           `json:"hasMore"`
}

func NewBatch(
	events []*ChangeEvent, hasMore bool,
) *Batch {

	batch := &Batch{
		Events:  events,
		HasMore: hasMore,
	}
	if len(events) > 0 {
		batch.Cursor = events[len(events)-1].Cursor()
	}
	return batch
}

func (b *Batch) Empty() bool {
	return len(b.Events) == 0
}
