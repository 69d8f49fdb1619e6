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

package file

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/docker/docker/pkg/ioutils"
	"github.com/go-errors/errors"
	"github.com/vortexlabs/tierstream/internal/logging"
	"github.com/vortexlabs/tierstream/spi/checkpoint"
	spiconfig "github.com/vortexlabs/tierstream/spi/config"
	"github.com/vortexlabs/tierstream/spi/encoding"
)

func init() {
	checkpoint.RegisterCheckpointStorage(
		spiconfig.FileCheckpointStorage, newFileCheckpointStorage,
	)
}

// fileCheckpointStorage persists checkpoints in one binary file, written
// atomically on every change. The format is a count followed by length
// prefixed checkpoint records.
type fileCheckpointStorage struct {
	path        string
	mutex       sync.Mutex
	logger      *logging.Logger
	checkpoints map[string]*checkpoint.Checkpoint
}

func newFileCheckpointStorage(
	c *spiconfig.Config,
) (checkpoint.Storage, error) {

	path := spiconfig.GetOrDefault(c, spiconfig.PropertyFileCheckpointStoragePath, "")
	if path == "" {
		return nil, errors.Errorf("FileCheckpointStorage needs a path to be configured")
	}
	return NewFileCheckpointStorage(path)
}

func NewFileCheckpointStorage(
	path string,
) (checkpoint.Storage, error) {

	logger, err := logging.NewLogger("FileCheckpointStorage")
	if err != nil {
		return nil, err
	}

	directory := filepath.Dir(path)
	if _, err := os.Stat(directory); err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.Wrap(err, 0)
		}
		if err := os.MkdirAll(directory, 0777); err != nil {
			return nil, errors.Wrap(err, 0)
		}
	}

	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		return nil, errors.Errorf("path '%s' exists already but is not a file", path)
	}

	return &fileCheckpointStorage{
		path:        path,
		logger:      logger,
		checkpoints: make(map[string]*checkpoint.Checkpoint),
	}, nil
}

func (f *fileCheckpointStorage) Start() error {
	f.logger.Infof("Starting FileCheckpointStorage at %s", f.path)
	return f.load()
}

func (f *fileCheckpointStorage) Stop() error {
	f.logger.Infof("Stopping FileCheckpointStorage at %s", f.path)
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.persist()
}

func (f *fileCheckpointStorage) Save(
	c *checkpoint.Checkpoint,
) (*checkpoint.Checkpoint, error) {

	f.mutex.Lock()
	defer f.mutex.Unlock()

	now := time.Now().UTC()
	saved := &checkpoint.Checkpoint{
		SubscriberID: c.SubscriberID,
		Cursor:       c.Cursor,
		CreatedAt:    now,
		UpdatedAt:    now,
		Metadata:     c.Metadata,
	}
	if existing, present := f.checkpoints[c.SubscriberID]; present {
		saved.CreatedAt = existing.CreatedAt
	}
	f.checkpoints[c.SubscriberID] = saved

	if err := f.persist(); err != nil {
		return nil, err
	}
	return saved, nil
}

func (f *fileCheckpointStorage) Lookup(
	subscriberID string,
) (*checkpoint.Checkpoint, error) {

	f.mutex.Lock()
	defer f.mutex.Unlock()

	c, present := f.checkpoints[subscriberID]
	if !present {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

func (f *fileCheckpointStorage) Delete(
	subscriberID string,
) error {

	f.mutex.Lock()
	defer f.mutex.Unlock()
	delete(f.checkpoints, subscriberID)
	return f.persist()
}

func (f *fileCheckpointStorage) List() ([]*checkpoint.Checkpoint, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	checkpoints := make([]*checkpoint.Checkpoint, 0, len(f.checkpoints))
	for _, c := range f.checkpoints {
		copied := *c
		checkpoints = append(checkpoints, &copied)
	}
	sort.Slice(checkpoints, func(i, j int) bool {
		return checkpoints[i].SubscriberID < checkpoints[j].SubscriberID
	})
	return checkpoints, nil
}

func (f *fileCheckpointStorage) persist() error {
	buffer := encoding.NewWriteBuffer(256)
	if err := buffer.PutUint32(uint32(len(f.checkpoints))); err != nil {
		return err
	}
	for _, c := range f.checkpoints {
		data, err := c.MarshalBinary()
		if err != nil {
			return err
		}
		if err := buffer.PutBytes(data); err != nil {
			return err
		}
	}

	writer, err := ioutils.NewAtomicFileWriter(f.path, 0666)
	if err != nil {
		return errors.Wrap(err, 0)
	}
	defer writer.Close()

	if _, err := writer.Write(buffer.Bytes()); err != nil {
		return errors.Wrap(err, 0)
	}
	return nil
}

func (f *fileCheckpointStorage) load() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			f.checkpoints = make(map[string]*checkpoint.Checkpoint)
			return nil
		}
		return errors.Wrap(err, 0)
	}
	if len(data) == 0 {
		f.checkpoints = make(map[string]*checkpoint.Checkpoint)
		return nil
	}

	buffer := encoding.NewReadBuffer(data)
	count, err := buffer.ReadUint32()
	if err != nil {
		return err
	}

	checkpoints := make(map[string]*checkpoint.Checkpoint, count)
	for i := uint32(0); i < count; i++ {
		record, err := buffer.ReadBytes()
		if err != nil {
			return err
		}
		c := &checkpoint.Checkpoint{}
		if err := c.UnmarshalBinary(record); err != nil {
			return err
		}
		checkpoints[c.SubscriberID] = c
	}
	f.checkpoints = checkpoints
	return nil
}
