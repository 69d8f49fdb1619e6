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
	"encoding/binary"
	"time"

	"github.com/go-errors/errors"
)

const cursorBinaryLength = 16

// Cursor marks a resumable position in the change log. Cursors are ordered
// and compared by sequence only, the timestamp is informational.
type Cursor struct {
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
}

func (c Cursor) Compare(
	other Cursor,
) int {

	if c.Sequence < other.Sequence {
		return -1
	}
	if c.Sequence > other.Sequence {
		return 1
	}
	return 0
}

func (c Cursor) Before(other Cursor) bool {
	return c.Compare(other) < 0
}

func (c Cursor) Zero() bool {
	return c.Sequence == 0 && c.Timestamp.IsZero()
}

func (c Cursor) MarshalBinary() ([]byte, error) {
	data := make([]byte, cursorBinaryLength)
	binary.BigEndian.PutUint64(data[:8], c.Sequence)
	binary.BigEndian.PutUint64(data[8:], uint64(c.Timestamp.UnixNano()))
	return data, nil
}

func (c *Cursor) UnmarshalBinary(
	data []byte,
) error {

	if len(data) < cursorBinaryLength {
		return errors.Errorf("cursor data truncated: %d bytes", len(data))
	}
	c.Sequence = binary.BigEndian.Uint64(data[:8])
	c.Timestamp = time.Unix(0, int64(binary.BigEndian.Uint64(data[8:]))).In(time.UTC)
	return nil
}
