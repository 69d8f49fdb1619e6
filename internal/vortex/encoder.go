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

package vortex

import (
	"hash/crc32"
	"time"

	"github.com/go-errors/errors"
	"github.com/vortexlabs/tierstream/spi/columnar"
	"github.com/vortexlabs/tierstream/spi/encoding"
	"github.com/vortexlabs/tierstream/spi/storage"
)

// Encoder builds one immutable blob from uniformly shaped rows. An encoder
// instance is single-use, finishing it twice is an error, but it may be
// reset to encode a new blob with the same schema.
type Encoder struct {
	schema   *columnar.Schema
	columns  []*columnState
	rowCount int
	finished bool
}

type columnState struct {
	column   columnar.Column
	values   []any
	nulls    []bool
	distinct map[string]struct{}
	min      any
	max      any
}

func NewEncoder(
	schema *columnar.Schema,
) (*Encoder, error) {

	if err := schema.Validate(); err != nil {
		return nil, err
	}

	e := &Encoder{
		schema: schema,
	}
	e.initColumns()
	return e, nil
}

func (e *Encoder) initColumns() {
	e.columns = make([]*columnState, 0, len(e.schema.Columns))
	for _, column := range e.schema.Columns {
		e.columns = append(e.columns, &columnState{
			column:   column,
			values:   make([]any, 0),
			nulls:    make([]bool, 0),
			distinct: make(map[string]struct{}),
		})
	}
}

func (e *Encoder) Schema() *columnar.Schema {
	return e.schema
}

func (e *Encoder) RowCount() int {
	return e.rowCount
}

func (e *Encoder) AppendRows(
	rows []map[string]any,
) error {

	for _, row := range rows {
		if err := e.Append(row); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) Append(
	row map[string]any,
) error {

	if e.finished {
		return errors.Errorf("encoder is finished, reset it before appending")
	}

	for _, state := range e.columns {
		value, present := row[state.column.Name]
		if !present || value == nil {
			if !state.column.Nullable {
				return storage.NewValidationError(
					"column '%s' is not nullable but row misses a value", state.column.Name,
				)
			}
			state.nulls = append(state.nulls, true)
			continue
		}

		normalized, err := normalizeValue(state.column.Type, value)
		if err != nil {
			return storage.NewValidationError(
				"column '%s': %s", state.column.Name, err.Error(),
			)
		}

		state.nulls = append(state.nulls, false)
		state.values = append(state.values, normalized)
		state.observe(normalized)
	}
	e.rowCount++
	return nil
}

// Finish writes out the blob. The encoder refuses any further appends or a
// second Finish afterwards.
func (e *Encoder) Finish() ([]byte, error) {
	if e.finished {
		return nil, errors.Errorf("encoder is already finished")
	}
	e.finished = true

	buffer := encoding.NewWriteBuffer(4096)
	if err := buffer.PutRaw(magicBytes); err != nil {
		return nil, err
	}

	type sectionInfo struct {
		offset uint64
		length uint64
	}

	sections := make([]sectionInfo, len(e.columns))
	for i, state := range e.columns {
		offset := uint64(buffer.Length())

		if state.column.Nullable {
			bitmap := make([]byte, (e.rowCount+7)/8)
			for row, isNull := range state.nulls {
				if isNull {
					bitmap[row/8] |= 1 << uint(row%8)
				}
			}
			if err := buffer.PutRaw(bitmap); err != nil {
				return nil, err
			}
		}

		if err := encodeValues(buffer, state.column, state.values); err != nil {
			return nil, err
		}

		sections[i] = sectionInfo{
			offset: offset,
			length: uint64(buffer.Length()) - offset,
		}
	}

	indexOffset := uint64(buffer.Length())
	if err := buffer.PutUvarint(uint64(e.rowCount)); err != nil {
		return nil, err
	}
	if err := buffer.PutUvarint(uint64(len(e.columns))); err != nil {
		return nil, err
	}
	for i, state := range e.columns {
		if err := e.writeIndexEntry(buffer, state, sections[i].offset, sections[i].length); err != nil {
			return nil, err
		}
	}

	if err := buffer.PutUint8(formatVersion); err != nil {
		return nil, err
	}
	if err := buffer.PutUint64(indexOffset); err != nil {
		return nil, err
	}
	if err := buffer.PutUint32(crc32.ChecksumIEEE(buffer.Bytes())); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// Reset discards all buffered rows and makes the encoder usable again for
// a new blob with the unchanged schema.
func (e *Encoder) Reset() {
	e.initColumns()
	e.rowCount = 0
	e.finished = false
}

func (e *Encoder) writeIndexEntry(
	buffer encoding.WriteBuffer, state *columnState, offset, length uint64,
) error {

	if err := buffer.PutString(state.column.Name); err != nil {
		return err
	}
	if err := buffer.PutUint8(uint8(state.column.Type)); err != nil {
		return err
	}
	if err := buffer.PutUint8(uint8(state.column.Encoding)); err != nil {
		return err
	}
	if err := buffer.PutBool(state.column.Nullable); err != nil {
		return err
	}
	if err := buffer.PutUint64(offset); err != nil {
		return err
	}
	if err := buffer.PutUint64(length); err != nil {
		return err
	}

	nullCount := uint32(0)
	for _, isNull := range state.nulls {
		if isNull {
			nullCount++
		}
	}
	if err := buffer.PutUint32(nullCount); err != nil {
		return err
	}
	if err := buffer.PutUint32(uint32(len(state.distinct))); err != nil {
		return err
	}

	return writeColumnBounds(buffer, state.column.Type, state.min, state.max)
}

func (cs *columnState) observe(
	value any,
) {

	if key, err := dictionaryKey(cs.column.Type, value); err == nil {
		cs.distinct[key] = struct{}{}
	}

	if !hasOrderedBounds(cs.column.Type) {
		return
	}
	if cs.min == nil || compareValues(cs.column.Type, value, cs.min) < 0 {
		cs.min = value
	}
	if cs.max == nil || compareValues(cs.column.Type, value, cs.max) > 0 {
		cs.max = value
	}
}

func hasOrderedBounds(
	columnType columnar.ColumnType,
) bool {

	switch columnType {
	case columnar.TypeString, columnar.TypeInt32, columnar.TypeInt64,
		columnar.TypeFloat64, columnar.TypeTimestamp:
		return true
	}
	return false
}

func compareValues(
	columnType columnar.ColumnType, left, right any,
) int {

	switch columnType {
	case columnar.TypeString:
		l, r := left.(string), right.(string)
		switch {
		case l < r:
			return -1
		case l > r:
			return 1
		}
		return 0
	case columnar.TypeInt32:
		return int(left.(int32)) - int(right.(int32))
	case columnar.TypeInt64:
		l, r := left.(int64), right.(int64)
		switch {
		case l < r:
			return -1
		case l > r:
			return 1
		}
		return 0
	case columnar.TypeFloat64:
		l, r := left.(float64), right.(float64)
		switch {
		case l < r:
			return -1
		case l > r:
			return 1
		}
		return 0
	case columnar.TypeTimestamp:
		l, r := left.(time.Time), right.(time.Time)
		switch {
		case l.Before(r):
			return -1
		case l.After(r):
			return 1
		}
		return 0
	}
	return 0
}

func writeColumnBounds(
	buffer encoding.WriteBuffer, columnType columnar.ColumnType, min, max any,
) error {

	present := min != nil && max != nil && hasOrderedBounds(columnType)
	if err := buffer.PutBool(present); err != nil {
		return err
	}
	if !present {
		return nil
	}
	if err := encodePlainValue(buffer, columnType, min); err != nil {
		return err
	}
	return encodePlainValue(buffer, columnType, max)
}
