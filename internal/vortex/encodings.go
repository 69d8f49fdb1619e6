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
	"reflect"
	"time"

	"github.com/go-errors/errors"
	"github.com/goccy/go-json"
	"github.com/vortexlabs/tierstream/spi/columnar"
	"github.com/vortexlabs/tierstream/spi/encoding"
)

// normalizeValue coerces a raw row value into the canonical in-memory
// representation of the column type.
func normalizeValue(
	columnType columnar.ColumnType, value any,
) (any, error) {

	switch columnType {
	case columnar.TypeString:
		if v, ok := value.(string); ok {
			return v, nil
		}
	case columnar.TypeInt32:
		switch value.(type) {
		case int, int32, int64, uint, uint32, uint64, float32, float64:
			return int32(toInt64(value)), nil
		}
	case columnar.TypeInt64:
		switch value.(type) {
		case int, int32, int64, uint, uint32, uint64, float32, float64:
			return toInt64(value), nil
		}
	case columnar.TypeFloat64:
		switch value.(type) {
		case int, int32, int64, uint, uint32, uint64, float32, float64:
			return toFloat64(value), nil
		}
	case columnar.TypeBoolean:
		if v, ok := value.(bool); ok {
			return v, nil
		}
	case columnar.TypeTimestamp:
		if v, ok := value.(time.Time); ok {
			return v.In(time.UTC), nil
		}
	case columnar.TypeJson:
		return value, nil
	case columnar.TypeBinary:
		if v, ok := value.([]byte); ok {
			return v, nil
		}
	}
	return nil, errors.Errorf(
		"value of type %T doesn't conform to column type %s", value, columnType,
	)
}

func encodeValues(
	buffer encoding.WriteBuffer, column columnar.Column, values []any,
) error {

	switch column.Encoding {
	case columnar.EncodingPlain:
		return encodePlain(buffer, column.Type, values)
	case columnar.EncodingDictionary:
		return encodeDictionary(buffer, column.Type, values)
	case columnar.EncodingRle:
		return encodeRle(buffer, column.Type, values)
	case columnar.EncodingDelta:
		return encodeDelta(buffer, column.Type, values)
	case columnar.EncodingBitpack, columnar.EncodingBoolean:
		return encodeBitpack(buffer, values)
	}
	return errors.Errorf("unsupported encoding %s", column.Encoding)
}

func decodeValues(
	buffer encoding.ReadBuffer, column columnar.Column, count int,
) ([]any, error) {

	switch column.Encoding {
	case columnar.EncodingPlain:
		return decodePlain(buffer, column.Type, count)
	case columnar.EncodingDictionary:
		return decodeDictionary(buffer, column.Type, count)
	case columnar.EncodingRle:
		return decodeRle(buffer, column.Type, count)
	case columnar.EncodingDelta:
		return decodeDelta(buffer, column.Type, count)
	case columnar.EncodingBitpack, columnar.EncodingBoolean:
		return decodeBitpack(buffer, count)
	}
	return nil, errors.Errorf("unsupported encoding %s", column.Encoding)
}

func encodePlainValue(
	buffer encoding.WriteBuffer, columnType columnar.ColumnType, value any,
) error {

	switch columnType {
	case columnar.TypeString:
		return buffer.PutString(value.(string))
	case columnar.TypeInt32:
		return buffer.PutVarint(int64(value.(int32)))
	case columnar.TypeInt64:
		return buffer.PutVarint(value.(int64))
	case columnar.TypeFloat64:
		return buffer.PutFloat64(value.(float64))
	case columnar.TypeBoolean:
		return buffer.PutBool(value.(bool))
	case columnar.TypeTimestamp:
		return buffer.PutVarint(value.(time.Time).UnixNano())
	case columnar.TypeJson:
		d, err := json.Marshal(value)
		if err != nil {
			return errors.Wrap(err, 0)
		}
		return buffer.PutBytes(d)
	case columnar.TypeBinary:
		return buffer.PutBytes(value.([]byte))
	}
	return errors.Errorf("unsupported column type %s", columnType)
}

func decodePlainValue(
	buffer encoding.ReadBuffer, columnType columnar.ColumnType,
) (any, error) {

	switch columnType {
	case columnar.TypeString:
		return buffer.ReadString()
	case columnar.TypeInt32:
		v, err := buffer.ReadVarint()
		if err != nil {
			return nil, err
		}
		return int32(v), nil
	case columnar.TypeInt64:
		return buffer.ReadVarint()
	case columnar.TypeFloat64:
		return buffer.ReadFloat64()
	case columnar.TypeBoolean:
		return buffer.ReadBool()
	case columnar.TypeTimestamp:
		v, err := buffer.ReadVarint()
		if err != nil {
			return nil, err
		}
		return time.Unix(0, v).In(time.UTC), nil
	case columnar.TypeJson:
		d, err := buffer.ReadBytes()
		if err != nil {
			return nil, err
		}
		var value any
		if err := json.Unmarshal(d, &value); err != nil {
			return nil, errors.Wrap(err, 0)
		}
		return value, nil
	case columnar.TypeBinary:
		return buffer.ReadBytes()
	}
	return nil, errors.Errorf("unsupported column type %s", columnType)
}

func encodePlain(
	buffer encoding.WriteBuffer, columnType columnar.ColumnType, values []any,
) error {

	for _, value := range values {
		if err := encodePlainValue(buffer, columnType, value); err != nil {
			return err
		}
	}
	return nil
}

func decodePlain(
	buffer encoding.ReadBuffer, columnType columnar.ColumnType, count int,
) ([]any, error) {

	values := make([]any, count)
	for i := 0; i < count; i++ {
		value, err := decodePlainValue(buffer, columnType)
		if err != nil {
			return nil, err
		}
		values[i] = value
	}
	return values, nil
}

// encodeDictionary writes the distinct values in first-occurrence order,
// followed by one uvarint index per row value. Low cardinality columns such
// as the operation column compress to almost nothing.
func encodeDictionary(
	buffer encoding.WriteBuffer, columnType columnar.ColumnType, values []any,
) error {

	dictionary := make([]any, 0)
	indexes := make(map[string]uint64)
	encoded := make([]uint64, len(values))
	for i, value := range values {
		key, err := dictionaryKey(columnType, value)
		if err != nil {
			return err
		}
		index, present := indexes[key]
		if !present {
			index = uint64(len(dictionary))
			indexes[key] = index
			dictionary = append(dictionary, value)
		}
		encoded[i] = index
	}

	if err := buffer.PutUvarint(uint64(len(dictionary))); err != nil {
		return err
	}
	for _, entry := range dictionary {
		if err := encodePlainValue(buffer, columnType, entry); err != nil {
			return err
		}
	}
	for _, index := range encoded {
		if err := buffer.PutUvarint(index); err != nil {
			return err
		}
	}
	return nil
}

func decodeDictionary(
	buffer encoding.ReadBuffer, columnType columnar.ColumnType, count int,
) ([]any, error) {

	dictionarySize, err := buffer.ReadUvarint()
	if err != nil {
		return nil, err
	}
	dictionary := make([]any, dictionarySize)
	for i := range dictionary {
		entry, err := decodePlainValue(buffer, columnType)
		if err != nil {
			return nil, err
		}
		dictionary[i] = entry
	}

	values := make([]any, count)
	for i := 0; i < count; i++ {
		index, err := buffer.ReadUvarint()
		if err != nil {
			return nil, err
		}
		if index >= dictionarySize {
			return nil, errors.Errorf(
				"dictionary index %d out of range (%d entries)", index, dictionarySize,
			)
		}
		values[i] = dictionary[index]
	}
	return values, nil
}

func dictionaryKey(
	columnType columnar.ColumnType, value any,
) (string, error) {

	if columnType == columnar.TypeString {
		return value.(string), nil
	}
	d, err := json.Marshal(value)
	if err != nil {
		return "", errors.Wrap(err, 0)
	}
	return string(d), nil
}

func encodeRle(
	buffer encoding.WriteBuffer, columnType columnar.ColumnType, values []any,
) error {

	type run struct {
		value  any
		length uint64
	}

	// Json and binary values are maps, slices, and byte slices, which
	// the == operator panics on. DeepEqual covers every column type.
	runs := make([]run, 0)
	for _, value := range values {
		if len(runs) > 0 && reflect.DeepEqual(runs[len(runs)-1].value, value) {
			runs[len(runs)-1].length++
			continue
		}
		runs = append(runs, run{value: value, length: 1})
	}

	if err := buffer.PutUvarint(uint64(len(runs))); err != nil {
		return err
	}
	for _, r := range runs {
		if err := encodePlainValue(buffer, columnType, r.value); err != nil {
			return err
		}
		if err := buffer.PutUvarint(r.length); err != nil {
			return err
		}
	}
	return nil
}

func decodeRle(
	buffer encoding.ReadBuffer, columnType columnar.ColumnType, count int,
) ([]any, error) {

	numRuns, err := buffer.ReadUvarint()
	if err != nil {
		return nil, err
	}

	values := make([]any, 0, count)
	for i := uint64(0); i < numRuns; i++ {
		value, err := decodePlainValue(buffer, columnType)
		if err != nil {
			return nil, err
		}
		length, err := buffer.ReadUvarint()
		if err != nil {
			return nil, err
		}
		for j := uint64(0); j < length; j++ {
			values = append(values, value)
		}
	}
	if len(values) != count {
		return nil, errors.Errorf("rle column decoded %d values, wanted %d", len(values), count)
	}
	return values, nil
}

func encodeDelta(
	buffer encoding.WriteBuffer, columnType columnar.ColumnType, values []any,
) error {

	previous := int64(0)
	for i, value := range values {
		current, err := deltaBase(columnType, value)
		if err != nil {
			return err
		}
		if i == 0 {
			if err := buffer.PutVarint(current); err != nil {
				return err
			}
		} else {
			if err := buffer.PutVarint(current - previous); err != nil {
				return err
			}
		}
		previous = current
	}
	return nil
}

func decodeDelta(
	buffer encoding.ReadBuffer, columnType columnar.ColumnType, count int,
) ([]any, error) {

	values := make([]any, count)
	current := int64(0)
	for i := 0; i < count; i++ {
		delta, err := buffer.ReadVarint()
		if err != nil {
			return nil, err
		}
		current += delta

		switch columnType {
		case columnar.TypeInt32:
			values[i] = int32(current)
		case columnar.TypeInt64:
			values[i] = current
		case columnar.TypeTimestamp:
			values[i] = time.Unix(0, current).In(time.UTC)
		default:
			return nil, errors.Errorf("delta encoding unsupported for column type %s", columnType)
		}
	}
	return values, nil
}

func deltaBase(
	columnType columnar.ColumnType, value any,
) (int64, error) {

	switch columnType {
	case columnar.TypeInt32:
		return int64(value.(int32)), nil
	case columnar.TypeInt64:
		return value.(int64), nil
	case columnar.TypeTimestamp:
		return value.(time.Time).UnixNano(), nil
	}
	return 0, errors.Errorf("delta encoding unsupported for column type %s", columnType)
}

func encodeBitpack(
	buffer encoding.WriteBuffer, values []any,
) error {

	packed := make([]byte, (len(values)+7)/8)
	for i, value := range values {
		v, ok := value.(bool)
		if !ok {
			return errors.Errorf("bitpack encoding requires booleans, got %T", value)
		}
		if v {
			packed[i/8] |= 1 << uint(i%8)
		}
	}
	return buffer.PutRaw(packed)
}

func decodeBitpack(
	buffer encoding.ReadBuffer, count int,
) ([]any, error) {

	packed, err := buffer.ReadRaw((count + 7) / 8)
	if err != nil {
		return nil, err
	}
	values := make([]any, count)
	for i := 0; i < count; i++ {
		values[i] = packed[i/8]&(1<<uint(i%8)) != 0
	}
	return values, nil
}
