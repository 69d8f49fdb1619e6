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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vortexlabs/tierstream/spi/columnar"
)

func Test_Roundtrip_All_Column_Types(
	t *testing.T,
) {

	now := time.Date(2024, 5, 14, 12, 30, 0, 0, time.UTC)
	base := int64(1) << 40
	rows := []map[string]any{
		{"id": "a", "count": base + 1, "ratio": 0.25, "active": true, "seen": now},
		{"id": "b", "count": base + 2, "ratio": 0.5, "active": false, "seen": now.Add(time.Second)},
		{"id": "c", "count": base + 3, "ratio": 0.75, "active": true, "seen": now.Add(2 * time.Second)},
	}

	schema := InferSchema(rows)

	encoder, err := NewEncoder(schema)
	assert.NoError(t, err)
	assert.NoError(t, encoder.AppendRows(rows))

	blob, err := encoder.Finish()
	assert.NoError(t, err)

	decoder, err := NewDecoder(blob)
	assert.NoError(t, err)
	assert.Equal(t, 3, decoder.RowCount())
	assert.True(t, decoder.Validate())

	decoded, err := decoder.ReadAll()
	assert.NoError(t, err)
	assert.Equal(t, rows, decoded)
}

func Test_Roundtrip_Null_Values(
	t *testing.T,
) {

	rows := []map[string]any{
		{"id": "a", "note": "first"},
		{"id": "b"},
		{"id": "c", "note": "third"},
	}

	schema := InferSchema(rows)
	note, present := schema.Column("note")
	assert.True(t, present)
	assert.True(t, note.Nullable)

	encoder, err := NewEncoder(schema)
	assert.NoError(t, err)
	assert.NoError(t, encoder.AppendRows(rows))

	blob, err := encoder.Finish()
	assert.NoError(t, err)

	decoder, err := NewDecoder(blob)
	assert.NoError(t, err)

	values, err := decoder.ReadColumn("note")
	assert.NoError(t, err)
	assert.Equal(t, []any{"first", nil, "third"}, values)

	statistics, err := decoder.Statistics("note")
	assert.NoError(t, err)
	assert.Equal(t, uint32(1), statistics.NullCount)

	decoded, err := decoder.ReadAll()
	assert.NoError(t, err)
	assert.Equal(t, rows, decoded)
}

func Test_Append_Rejects_Null_In_Non_Nullable_Column(
	t *testing.T,
) {

	schema := &columnar.Schema{
		Columns: []columnar.Column{
			{Name: "id", Type: columnar.TypeString, Encoding: columnar.EncodingDictionary},
		},
	}

	encoder, err := NewEncoder(schema)
	assert.NoError(t, err)

	err = encoder.Append(map[string]any{})
	assert.Error(t, err)
}

func Test_Rle_Roundtrip_Json_Values(
	t *testing.T,
) {

	schema := &columnar.Schema{
		Columns: []columnar.Column{
			{Name: "labels", Type: columnar.TypeJson, Encoding: columnar.EncodingRle},
		},
	}

	repeated := map[string]any{"region": "eu", "tier": float64(1)}
	rows := []map[string]any{
		{"labels": repeated},
		{"labels": repeated},
		{"labels": map[string]any{"region": "us", "tier": float64(2)}},
	}

	encoder, err := NewEncoder(schema)
	assert.NoError(t, err)
	assert.NoError(t, encoder.AppendRows(rows))

	blob, err := encoder.Finish()
	assert.NoError(t, err)

	decoder, err := NewDecoder(blob)
	assert.NoError(t, err)

	decoded, err := decoder.ReadAll()
	assert.NoError(t, err)
	assert.Equal(t, rows, decoded)
}

func Test_Column_Selective_Decode(
	t *testing.T,
) {

	rows := []map[string]any{
		{"id": "a", "count": int64(10)},
		{"id": "b", "count": int64(20)},
	}

	schema := InferSchema(rows)

	encoder, err := NewEncoder(schema)
	assert.NoError(t, err)
	assert.NoError(t, encoder.AppendRows(rows))

	blob, err := encoder.Finish()
	assert.NoError(t, err)

	decoder, err := NewDecoder(blob)
	assert.NoError(t, err)

	values, err := decoder.ReadColumn("count")
	assert.NoError(t, err)
	assert.Equal(t, []any{int32(10), int32(20)}, values)

	// only the requested column may be materialized
	for name, entry := range decoder.columns {
		if name == "count" {
			assert.True(t, entry.decoded)
		} else {
			assert.False(t, entry.decoded)
		}
	}
}

func Test_Footer_Metadata_Without_Body_Decode(
	t *testing.T,
) {

	rows := []map[string]any{
		{"id": "a", "count": int64(5)},
		{"id": "b", "count": int64(9)},
		{"id": "c", "count": int64(7)},
	}

	schema := InferSchema(rows)

	encoder, err := NewEncoder(schema)
	assert.NoError(t, err)
	assert.NoError(t, encoder.AppendRows(rows))

	blob, err := encoder.Finish()
	assert.NoError(t, err)

	decoder, err := NewDecoder(blob)
	assert.NoError(t, err)
	assert.Equal(t, 3, decoder.RowCount())
	assert.True(t, schema.Equal(decoder.Schema()))

	statistics, err := decoder.Statistics("count")
	assert.NoError(t, err)
	assert.Equal(t, int32(5), statistics.Min)
	assert.Equal(t, int32(9), statistics.Max)
	assert.Equal(t, uint32(0), statistics.NullCount)
	assert.Equal(t, uint32(3), statistics.DistinctEstimate)

	for _, entry := range decoder.columns {
		assert.False(t, entry.decoded)
	}
}

func Test_Validate_Detects_Corruption(
	t *testing.T,
) {

	rows := []map[string]any{
		{"id": "a", "count": int64(1)},
	}

	schema := InferSchema(rows)

	encoder, err := NewEncoder(schema)
	assert.NoError(t, err)
	assert.NoError(t, encoder.AppendRows(rows))

	blob, err := encoder.Finish()
	assert.NoError(t, err)

	decoder, err := NewDecoder(blob)
	assert.NoError(t, err)
	assert.True(t, decoder.Validate())

	corrupted := make([]byte, len(blob))
	copy(corrupted, blob)
	corrupted[len(magicBytes)] ^= 0xFF

	decoder, err = NewDecoder(corrupted)
	assert.NoError(t, err)
	assert.False(t, decoder.Validate())
}

func Test_Finish_Is_Single_Use(
	t *testing.T,
) {

	rows := []map[string]any{
		{"id": "a"},
	}

	schema := InferSchema(rows)

	encoder, err := NewEncoder(schema)
	assert.NoError(t, err)
	assert.NoError(t, encoder.AppendRows(rows))

	_, err = encoder.Finish()
	assert.NoError(t, err)

	_, err = encoder.Finish()
	assert.Error(t, err)
	assert.Error(t, encoder.Append(map[string]any{"id": "b"}))
}

func Test_Reset_Allows_Reuse(
	t *testing.T,
) {

	schema := &columnar.Schema{
		Columns: []columnar.Column{
			{Name: "id", Type: columnar.TypeString, Encoding: columnar.EncodingPlain},
		},
	}

	encoder, err := NewEncoder(schema)
	assert.NoError(t, err)
	assert.NoError(t, encoder.Append(map[string]any{"id": "first"}))

	_, err = encoder.Finish()
	assert.NoError(t, err)

	encoder.Reset()
	assert.NoError(t, encoder.Append(map[string]any{"id": "second"}))

	blob, err := encoder.Finish()
	assert.NoError(t, err)

	decoder, err := NewDecoder(blob)
	assert.NoError(t, err)

	decoded, err := decoder.ReadAll()
	assert.NoError(t, err)
	assert.Equal(t, []map[string]any{{"id": "second"}}, decoded)
}

func Test_Schema_Inference(
	t *testing.T,
) {

	rows := []map[string]any{
		{"name": "x", "small": int64(3), "big": int64(1) << 40, "frac": 1.5, "flag": true, "meta": map[string]any{"k": "v"}},
		{"name": "y", "small": int64(4), "big": int64(2) << 40, "frac": 2.5, "flag": false},
	}

	schema := InferSchema(rows)

	expectations := map[string]struct {
		columnType columnar.ColumnType
		encoding   columnar.ColumnEncoding
		nullable   bool
	}{
		"name":  {columnar.TypeString, columnar.EncodingDictionary, false},
		"small": {columnar.TypeInt32, columnar.EncodingDelta, false},
		"big":   {columnar.TypeInt64, columnar.EncodingDelta, false},
		"frac":  {columnar.TypeFloat64, columnar.EncodingPlain, false},
		"flag":  {columnar.TypeBoolean, columnar.EncodingBitpack, false},
		"meta":  {columnar.TypeJson, columnar.EncodingPlain, true},
	}

	assert.Equal(t, len(expectations), len(schema.Columns))
	for name, expected := range expectations {
		column, present := schema.Column(name)
		assert.True(t, present, name)
		assert.Equal(t, expected.columnType, column.Type, name)
		assert.Equal(t, expected.encoding, column.Encoding, name)
		assert.Equal(t, expected.nullable, column.Nullable, name)
	}
}

func Test_NewDecoder_Rejects_Garbage(
	t *testing.T,
) {

	_, err := NewDecoder([]byte("too short"))
	assert.Error(t, err)

	garbage := make([]byte, 64)
	_, err = NewDecoder(garbage)
	assert.Error(t, err)
}
