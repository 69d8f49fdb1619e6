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

package columnar

import (
	"github.com/go-errors/errors"
)

type ColumnType uint8

const (
	TypeString ColumnType = iota + 1
	TypeInt32
	TypeInt64
	TypeFloat64
	TypeBoolean
	TypeTimestamp
	TypeJson
	TypeBinary
)

func (t ColumnType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeFloat64:
		return "float64"
	case TypeBoolean:
		return "boolean"
	case TypeTimestamp:
		return "timestamp"
	case TypeJson:
		return "json"
	case TypeBinary:
		return "binary"
	}
	return "unknown"
}

type ColumnEncoding uint8

const (
	EncodingPlain ColumnEncoding = iota + 1
	EncodingDictionary
	EncodingRle
	EncodingDelta
	EncodingBitpack
	EncodingBoolean
)

func (e ColumnEncoding) String() string {
	switch e {
	case EncodingPlain:
		return "plain"
	case EncodingDictionary:
		return "dictionary"
	case EncodingRle:
		return "rle"
	case EncodingDelta:
		return "delta"
	case EncodingBitpack:
		return "bitpack"
	case EncodingBoolean:
		return "boolean"
	}
	return "unknown"
}

type Column struct {
	Name     string         `json:"name"`
	Type     ColumnType     `json:"type"`
	Nullable bool           `json:"nullable"`
	Encoding ColumnEncoding `json:"encoding"`
}

// Schema is the fixed column layout of one columnar blob. A finished blob
// is immutable, its schema never changes afterwards.
type Schema struct {
	Columns []Column `json:"columns"`
}

func (s *Schema) Column(
	name string,
) (*Column, bool) {

	for i := range s.Columns {
		if s.Columns[i].Name == name {
			return &s.Columns[i], true
		}
	}
	return nil, false
}

func (s *Schema) Equal(
	other *Schema,
) bool {

	if len(s.Columns) != len(other.Columns) {
		return false
	}
	for i, column := range s.Columns {
		if column != other.Columns[i] {
			return false
		}
	}
	return true
}

func (s *Schema) Validate() error {
	seen := make(map[string]bool, len(s.Columns))
	for _, column := range s.Columns {
		if column.Name == "" {
			return errors.Errorf("schema contains an unnamed column")
		}
		if seen[column.Name] {
			return errors.Errorf("schema contains duplicate column '%s'", column.Name)
		}
		seen[column.Name] = true
	}
	return nil
}

// Statistics are precomputed per column at encode time and answerable from
// the blob index without touching the column bodies.
type Statistics struct {
	Min              any    `json:"min,omitempty"`
	Max              any    `json:"max,omitempty"`
	NullCount        uint32 `json:"nullCount"`
	DistinctEstimate uint32 `json:"distinctEstimate"`
}
