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
	"sort"
	"sync"

	"github.com/vortexlabs/tierstream/internal/emitting"
	"github.com/vortexlabs/tierstream/internal/logging"
	"github.com/vortexlabs/tierstream/spi/cdc"
	spiconfig "github.com/vortexlabs/tierstream/spi/config"
	"github.com/vortexlabs/tierstream/spi/storage"
)

const defaultRetainedEvents = 1024

// Store is the mutable hot tier. Every mutation synchronously claims a
// sequence number through the emitter and appends the resulting change
// event to a bounded retained window the replayer reads from. One store
// instance belongs to exactly one logical owner, callers serialize access
// per owner.
type Store struct {
	emitter  *emitting.Emitter
	retained int

	mutex       sync.RWMutex
	collections map[string]map[string]map[string]any
	window      []*cdc.ChangeEvent

	logger *logging.Logger
}

func NewStore(
	c *spiconfig.Config, emitter *emitting.Emitter,
) (*Store, error) {

	logger, err := logging.NewLogger("ActiveStore")
	if err != nil {
		return nil, err
	}

	retained := int(spiconfig.GetOrDefault(
		c, spiconfig.PropertyActiveRetainedEvents, uint(defaultRetainedEvents),
	))
	if retained < 1 {
		retained = defaultRetainedEvents
	}

	return &Store{
		emitter:     emitter,
		retained:    retained,
		collections: make(map[string]map[string]map[string]any),
		logger:      logger,
	}, nil
}

func (s *Store) Emitter() *emitting.Emitter {
	return s.emitter
}

// Insert adds a new document. The document needs a string id and must not
// exist yet.
func (s *Store) Insert(
	collection string, document map[string]any,
) (*cdc.ChangeEvent, error) {

	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.insert(collection, document)
}

// Update replaces an existing document, emitting the old and new copies.
func (s *Store) Update(
	collection string, document map[string]any,
) (*cdc.ChangeEvent, error) {

	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.update(collection, document)
}

// Delete removes a document, emitting its final state.
func (s *Store) Delete(
	collection, documentID string,
) (*cdc.ChangeEvent, error) {

	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.delete(collection, documentID)
}

// Get returns a copy of the document, or nil when absent.
func (s *Store) Get(
	collection, documentID string,
) map[string]any {

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	documents, present := s.collections[collection]
	if !present {
		return nil
	}
	document, present := documents[documentID]
	if !present {
		return nil
	}
	return copyDocument(document)
}

// Documents returns copies of all documents in a collection, ordered by id.
func (s *Store) Documents(
	collection string,
) []map[string]any {

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	documents := make([]map[string]any, 0, len(s.collections[collection]))
	ids := make([]string, 0, len(s.collections[collection]))
	for id := range s.collections[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		documents = append(documents, copyDocument(s.collections[collection][id]))
	}
	return documents
}

func (s *Store) Collections() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RetainedEvents returns the recent event window in sequence order.
func (s *Store) RetainedEvents() []*cdc.ChangeEvent {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return append([]*cdc.ChangeEvent{}, s.window...)
}

// OldestRetained returns the lowest sequence still held in the window,
// 0 when the window is empty.
func (s *Store) OldestRetained() uint64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if len(s.window) == 0 {
		return 0
	}
	return s.window[0].Sequence
}

// Head returns the cursor of the most recent mutation.
func (s *Store) Head() cdc.Cursor {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if len(s.window) == 0 {
		return cdc.Cursor{}
	}
	return s.window[len(s.window)-1].Cursor()
}

func (s *Store) insert(
	collection string, document map[string]any,
) (*cdc.ChangeEvent, error) {

	documentID, err := requireDocumentID(document)
	if err != nil {
		return nil, err
	}

	documents, present := s.collections[collection]
	if !present {
		documents = make(map[string]map[string]any)
		s.collections[collection] = documents
	}
	if _, present := documents[documentID]; present {
		return nil, storage.NewValidationError(
			"document '%s' already exists in collection '%s'", documentID, collection,
		)
	}

	stored := copyDocument(document)
	event, err := s.emitter.Emit(cdc.OperationInsert, emitting.EmitOptions{
		Collection: collection,
		After:      copyDocument(stored),
	})
	if err != nil {
		return nil, err
	}

	documents[documentID] = stored
	s.remember(event)
	return event, nil
}

func (s *Store) update(
	collection string, document map[string]any,
) (*cdc.ChangeEvent, error) {

	documentID, err := requireDocumentID(document)
	if err != nil {
		return nil, err
	}

	documents, present := s.collections[collection]
	if !present {
		return nil, storage.NewNotFoundError("document", documentID)
	}
	before, present := documents[documentID]
	if !present {
		return nil, storage.NewNotFoundError("document", documentID)
	}

	stored := copyDocument(document)
	event, err := s.emitter.Emit(cdc.OperationUpdate, emitting.EmitOptions{
		Collection: collection,
		Before:     copyDocument(before),
		After:      copyDocument(stored),
	})
	if err != nil {
		return nil, err
	}

	documents[documentID] = stored
	s.remember(event)
	return event, nil
}

func (s *Store) delete(
	collection, documentID string,
) (*cdc.ChangeEvent, error) {

	documents, present := s.collections[collection]
	if !present {
		return nil, storage.NewNotFoundError("document", documentID)
	}
	before, present := documents[documentID]
	if !present {
		return nil, storage.NewNotFoundError("document", documentID)
	}

	event, err := s.emitter.Emit(cdc.OperationDelete, emitting.EmitOptions{
		Collection: collection,
		Before:     copyDocument(before),
	})
	if err != nil {
		return nil, err
	}

	delete(documents, documentID)
	s.remember(event)
	return event, nil
}

func (s *Store) remember(
	event *cdc.ChangeEvent,
) {

	s.window = append(s.window, event)
	if len(s.window) > s.retained {
		s.window = s.window[len(s.window)-s.retained:]
	}
}

func requireDocumentID(
	document map[string]any,
) (string, error) {

	id, ok := document["id"].(string)
	if !ok || id == "" {
		return "", storage.NewValidationError("document misses a string id")
	}
	return id, nil
}

func copyDocument(
	document map[string]any,
) map[string]any {

	if document == nil {
		return nil
	}
	copied := make(map[string]any, len(document))
	for key, value := range document {
		copied[key] = copyValue(value)
	}
	return copied
}

func copyValue(
	value any,
) any {

	switch typed := value.(type) {
	case map[string]any:
		return copyDocument(typed)
	case []any:
		copied := make([]any, len(typed))
		for i, element := range typed {
			copied[i] = copyValue(element)
		}
		return copied
	default:
		return value
	}
}
