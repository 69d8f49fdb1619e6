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

package activestore

import (
	"github.com/go-errors/errors"
	"github.com/vortexlabs/tierstream/spi/cdc"
	"github.com/vortexlabs/tierstream/spi/storage"
)

type transactionOp struct {
	operation  cdc.Operation
	collection string
	documentID string
	document   map[string]any
}

// Transaction stages mutations against an overlay of the store. Nothing is
// applied and no event is emitted until Commit, which applies the staged
// mutations in order and returns their events. Rollback discards the
// overlay, the store stays untouched.
type Transaction struct {
	store *Store
	ops   []transactionOp

	// staged maps collection/document to the pending copy, a nil entry
	// marks a staged delete.
	staged map[string]map[string]map[string]any
	ended  bool
}

func (s *Store) Begin() *Transaction {
	return &Transaction{
		store:  s,
		staged: make(map[string]map[string]map[string]any),
	}
}

func (t *Transaction) Insert(
	collection string, document map[string]any,
) error {

	if t.ended {
		return errors.Errorf("transaction already ended")
	}
	documentID, err := requireDocumentID(document)
	if err != nil {
		return err
	}
	if current, _ := t.lookup(collection, documentID); current != nil {
		return storage.NewValidationError(
			"document '%s' already exists in collection '%s'", documentID, collection,
		)
	}

	t.stage(collection, documentID, copyDocument(document))
	t.ops = append(t.ops, transactionOp{
		operation:  cdc.OperationInsert,
		collection: collection,
		documentID: documentID,
		document:   copyDocument(document),
	})
	return nil
}

func (t *Transaction) Update(
	collection string, document map[string]any,
) error {

	if t.ended {
		return errors.Errorf("transaction already ended")
	}
	documentID, err := requireDocumentID(document)
	if err != nil {
		return err
	}
	if current, _ := t.lookup(collection, documentID); current == nil {
		return storage.NewNotFoundError("document", documentID)
	}

	t.stage(collection, documentID, copyDocument(document))
	t.ops = append(t.ops, transactionOp{
		operation:  cdc.OperationUpdate,
		collection: collection,
		documentID: documentID,
		document:   copyDocument(document),
	})
	return nil
}

func (t *Transaction) Delete(
	collection, documentID string,
) error {

	if t.ended {
		return errors.Errorf("transaction already ended")
	}
	if current, _ := t.lookup(collection, documentID); current == nil {
		return storage.NewNotFoundError("document", documentID)
	}

	t.stage(collection, documentID, nil)
	t.ops = append(t.ops, transactionOp{
		operation:  cdc.OperationDelete,
		collection: collection,
		documentID: documentID,
	})
	return nil
}

// Get reads through the overlay, staged mutations shadow the store.
func (t *Transaction) Get(
	collection, documentID string,
) map[string]any {

	document, _ := t.lookup(collection, documentID)
	return copyDocument(document)
}

// Commit applies the staged mutations in order and returns one event per
// mutation. The transaction is ended either way.
func (t *Transaction) Commit() ([]*cdc.ChangeEvent, error) {
	if t.ended {
		return nil, errors.Errorf("transaction already ended")
	}
	t.ended = true

	t.store.mutex.Lock()
	defer t.store.mutex.Unlock()

	events := make([]*cdc.ChangeEvent, 0, len(t.ops))
	for _, op := range t.ops {
		var event *cdc.ChangeEvent
		var err error
		switch op.operation {
		case cdc.OperationInsert:
			event, err = t.store.insert(op.collection, op.document)
		case cdc.OperationUpdate:
			event, err = t.store.update(op.collection, op.document)
		case cdc.OperationDelete:
			event, err = t.store.delete(op.collection, op.documentID)
		}
		if err != nil {
			return events, err
		}
		events = append(events, event)
	}
	return events, nil
}

// Rollback discards all staged mutations and returns no events.
func (t *Transaction) Rollback() {
	t.ended = true
	t.ops = nil
	t.staged = nil
}

func (t *Transaction) stage(
	collection, documentID string, document map[string]any,
) {

	documents, present := t.staged[collection]
	if !present {
		documents = make(map[string]map[string]any)
		t.staged[collection] = documents
	}
	documents[documentID] = document
}

// lookup returns the effective document and whether the overlay decided.
func (t *Transaction) lookup(
	collection, documentID string,
) (map[string]any, bool) {

	if documents, present := t.staged[collection]; present {
		if document, present := documents[documentID]; present {
			return document, true
		}
	}
	return t.store.Get(collection, documentID), false
}
