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

package checkpoint

import (
	"time"

	"github.com/vortexlabs/tierstream/spi/cdc"
	"github.com/vortexlabs/tierstream/spi/encoding"
)

// Checkpoint records the replay progress of one named subscriber. CreatedAt
// is immutable after the first save, UpdatedAt is bumped monotonically on
// every save.
type Checkpoint struct {
	SubscriberID string            `json:"subscriberId"`
	Cursor       cdc.Cursor        `json:"cursor"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func (c *Checkpoint) MarshalBinary() ([]byte, error) {
	buffer := encoding.NewWriteBuffer(64)
	if err := buffer.PutString(c.SubscriberID); err != nil {
		return nil, err
	}
	cursor, err := c.Cursor.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if err := buffer.PutRaw(cursor); err != nil {
		return nil, err
	}
	if err := buffer.PutInt64(c.CreatedAt.UnixNano()); err != nil {
		return nil, err
	}
	if err := buffer.PutInt64(c.UpdatedAt.UnixNano()); err != nil {
		return nil, err
	}
	if err := buffer.PutUvarint(uint64(len(c.Metadata))); err != nil {
		return nil, err
	}
	for name, value := range c.Metadata {
		if err := buffer.PutString(name); err != nil {
			return nil, err
		}
		if err := buffer.PutString(value); err != nil {
			return nil, err
		}
	}
	return buffer.Bytes(), nil
}

func (c *Checkpoint) UnmarshalBinary(
	data []byte,
) error {

	buffer := encoding.NewReadBuffer(data)
	subscriberID, err := buffer.ReadString()
	if err != nil {
		return err
	}
	cursorData, err := buffer.ReadRaw(16)
	if err != nil {
		return err
	}
	if err := c.Cursor.UnmarshalBinary(cursorData); err != nil {
		return err
	}
	createdAt, err := buffer.ReadInt64()
	if err != nil {
		return err
	}
	updatedAt, err := buffer.ReadInt64()
	if err != nil {
		return err
	}
	metadataCount, err := buffer.ReadUvarint()
	if err != nil {
		return err
	}

	c.SubscriberID = subscriberID
	c.CreatedAt = time.Unix(0, createdAt).UTC()
	c.UpdatedAt = time.Unix(0, updatedAt).UTC()
	if metadataCount > 0 {
		c.Metadata = make(map[string]string, metadataCount)
		for i := uint64(0); i < metadataCount; i++ {
			name, err := buffer.ReadString()
			if err != nil {
				return err
			}
			value, err := buffer.ReadString()
			if err != nil {
				return err
			}
			c.Metadata[name] = value
		}
	}
	return nil
}

// Storage persists subscriber progress independently of event retention.
// Lookup returns nil without error when no checkpoint exists.
type Storage interface {
	Start() error
	Stop() error
	Save(
		checkpoint *Checkpoint,
	) (*Checkpoint, error)
	Lookup(
		subscriberID string,
	) (*Checkpoint, error)
	Delete(
		subscriberID string,
	) error
	List() ([]*Checkpoint, error)
}

// Lagging returns the checkpoints trailing the given head by at least the
// threshold, useful for stalled subscriber alerting.
func Lagging(
	storage Storage, head cdc.Cursor, threshold time.Duration,
) ([]*Checkpoint, error) {

	checkpoints, err := storage.List()
	if err != nil {
		return nil, err
	}

	lagging := make([]*Checkpoint, 0)
	for _, c := range checkpoints {
		if c.Cursor.Sequence >= head.Sequence {
			continue
		}
		if head.Timestamp.Sub(c.Cursor.Timestamp) >= threshold {
			lagging = append(lagging, c)
		}
	}
	return lagging, nil
}
