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

package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vortexlabs/tierstream/spi/checkpoint"
	spiconfig "github.com/vortexlabs/tierstream/spi/config"
)

func init() {
	checkpoint.RegisterCheckpointStorage(
		spiconfig.MemoryCheckpointStorage, newMemoryCheckpointStorage,
	)
}

type memoryCheckpointStorage struct {
	mutex       sync.Mutex
	checkpoints map[string]*checkpoint.Checkpoint
}

func newMemoryCheckpointStorage(
	_ *spiconfig.Config,
) (checkpoint.Storage, error) {

	return NewMemoryCheckpointStorage(), nil
}

func NewMemoryCheckpointStorage() checkpoint.Storage {
	return &memoryCheckpointStorage{
		checkpoints: make(map[string]*checkpoint.Checkpoint),
	}
}

func (m *memoryCheckpointStorage) Start() error {
	return nil
}

func (m *memoryCheckpointStorage) Stop() error {
	return nil
}

// Save upserts. The first save fixes CreatedAt, every later save of the
// same subscriber only moves the cursor and UpdatedAt.
func (m *memoryCheckpointStorage) Save(
	c *checkpoint.Checkpoint,
) (*checkpoint.Checkpoint, error) {

	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := time.Now().UTC()
	saved := &checkpoint.Checkpoint{
		SubscriberID: c.SubscriberID,
		Cursor:       c.Cursor,
		CreatedAt:    now,
		UpdatedAt:    now,
		Metadata:     c.Metadata,
	}
	if existing, present := m.checkpoints[c.SubscriberID]; present {
		saved.CreatedAt = existing.CreatedAt
	}
	m.checkpoints[c.SubscriberID] = saved
	return saved, nil
}

func (m *memoryCheckpointStorage) Lookup(
	subscriberID string,
) (*checkpoint.Checkpoint, error) {

	m.mutex.Lock()
	defer m.mutex.Unlock()

	c, present := m.checkpoints[subscriberID]
	if !present {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

func (m *memoryCheckpointStorage) Delete(
	subscriberID string,
) error {

	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.checkpoints, subscriberID)
	return nil
}

func (m *memoryCheckpointStorage) List() ([]*checkpoint.Checkpoint, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	checkpoints := make([]*checkpoint.Checkpoint, 0, len(m.checkpoints))
	for _, c := range m.checkpoints {
		copied := *c
		checkpoints = append(checkpoints, &copied)
	}
	sort.Slice(checkpoints, func(i, j int) bool {
		return checkpoints[i].SubscriberID < checkpoints[j].SubscriberID
	})
	return checkpoints, nil
}
