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

	"github.com/go-errors/errors"
	"github.com/samber/lo"
	"github.com/vortexlabs/tierstream/internal/logging"
	"github.com/vortexlabs/tierstream/spi/cdc"
	"github.com/vortexlabs/tierstream/spi/storage"
)

type HierarchyListener func(event *cdc.ChangeEvent) error

type hierarchyListener struct {
	listener   HierarchyListener
	operations []cdc.Operation
}

// Hierarchy tracks the parent context of every registered object and
// routes events of one object up to the listeners of its ancestors.
// Context chains are memoized per object and recomputed after any
// (re)registration.
type Hierarchy struct {
	mutex     sync.RWMutex
	parents   map[string]string
	chains    map[string][]string
	listeners map[string][]*hierarchyListener
	logger    *logging.Logger
}

func NewHierarchy() (*Hierarchy, error) {
	logger, err := logging.NewLogger("Hierarchy")
	if err != nil {
		return nil, err
	}

	return &Hierarchy{
		parents:   make(map[string]string),
		chains:    make(map[string][]string),
		listeners: make(map[string][]*hierarchyListener),
		logger:    logger,
	}, nil
}

// Register links an object to its parent context. An empty parent makes
// the object a root. Re-registering drops all memoized chains since any
// of them may pass through the moved object.
func (h *Hierarchy) Register(
	id, parentID string,
) {

	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.parents[id] = parentID
	h.chains = make(map[string][]string)
}

// ContextChain walks the parent links from the object to its root,
// returning the object itself first. A cycle in the parent links raises a
// CircularReferenceError naming the offending chain.
func (h *Hierarchy) ContextChain(
	id string,
) ([]string, error) {

	h.mutex.RLock()
	if chain, present := h.chains[id]; present {
		h.mutex.RUnlock()
		return chain, nil
	}
	h.mutex.RUnlock()

	h.mutex.Lock()
	defer h.mutex.Unlock()

	chain := make([]string, 0)
	visited := make(map[string]bool)
	current := id
	for current != "" {
		if visited[current] {
			return nil, storage.NewCircularReferenceError(id, append(chain, current))
		}
		visited[current] = true
		chain = append(chain, current)
		current = h.parents[current]
	}

	h.chains[id] = chain
	return chain, nil
}

// Listen registers a listener on a context. Without operations the
// listener receives every event routed through the context.
func (h *Hierarchy) Listen(
	id string, listener HierarchyListener, operations ...cdc.Operation,
) {

	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.listeners[id] = append(h.listeners[id], &hierarchyListener{
		listener:   listener,
		operations: operations,
	})
}

// RouteEvent delivers the event to the listeners of every ancestor of
// the event's document, the document's own listeners excluded. A failing
// listener is logged and skipped, it never blocks its siblings.
func (h *Hierarchy) RouteEvent(
	event *cdc.ChangeEvent,
) error {

	chain, err := h.ContextChain(event.DocumentID)
	if err != nil {
		return err
	}

	h.mutex.RLock()
	targets := make([]*hierarchyListener, 0)
	for _, ancestor := range chain[1:] {
		targets = append(targets, h.listeners[ancestor]...)
	}
	h.mutex.RUnlock()

	for _, target := range targets {
		if len(target.operations) > 0 &&
			!lo.Contains(target.operations, event.Operation) {

			continue
		}
		if err := h.invoke(target.listener, event); err != nil {
			h.logger.Errorf("hierarchy listener failed: %v", err)
		}
	}
	return nil
}

func (h *Hierarchy) invoke(
	listener HierarchyListener, event *cdc.ChangeEvent,
) (err error) {

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("hierarchy listener panicked: %v", r)
		}
	}()
	return listener(event)
}
