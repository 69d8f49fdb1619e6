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
	"bytes"
	"hash/crc32"

	"github.com/go-errors/errors"
	"github.com/vortexlabs/tierstream/spi/columnar"
	"github.com/vortexlabs/tierstream/spi/encoding"
)

// Decoder reads a vortex blob. Constructing a decoder parses only the
// footer and the column index, column bodies are decoded lazily and
// cached on first access.
type Decoder struct {
	data     []byte
	schema   *columnar.Schema
	rowCount int
	columns  map[string]*columnEntry
	ordered  []*columnEntry
}

type columnEntry struct {
	column     columnar.Column
	offset     uint64
	length     uint64
	statistics columnar.Statistics

	decoded bool
	values  []any
}

func NewDecoder(
	data []byte,
) (*Decoder, error) {

	if len(data) < len(magicBytes)+footerLength {
		return nil, errors.Errorf("blob of %d bytes is too short to be a vortex blob", len(data))
	}
	if !bytes.Equal(data[:len(magicBytes)], magicBytes) {
		return nil, errors.Errorf("blob doesn't start with the vortex magic")
	}

	footer := encoding.NewReadBuffer(data[len(data)-footerLength:])
	version, err := footer.ReadUint8()
	if err != nil {
		return nil, err
	}
	if version != formatVersion {
		return nil, errors.Errorf("unsupported vortex format version %d", version)
	}
	indexOffset, err := footer.ReadUint64()
	if err != nil {
		return nil, err
	}
	if indexOffset < uint64(len(magicBytes)) || indexOffset >= uint64(len(data)-footerLength) {
		return nil, errors.Errorf("column index offset %d is out of bounds", indexOffset)
	}

	d := &Decoder{
		data:    data,
		columns: make(map[string]*columnEntry),
	}
	if err := d.readIndex(data[indexOffset : len(data)-footerLength]); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Decoder) readIndex(
	index []byte,
) error {

	buffer := encoding.NewReadBuffer(index)
	rowCount, err := buffer.ReadUvarint()
	if err != nil {
		return err
	}
	d.rowCount = int(rowCount)

	columnCount, err := buffer.ReadUvarint()
	if err != nil {
		return err
	}

	schema := &columnar.Schema{
		Columns: make([]columnar.Column, 0, columnCount),
	}
	for i := uint64(0); i < columnCount; i++ {
		entry, err := readIndexEntry(buffer)
		if err != nil {
			return err
		}
		if entry.offset+entry.length > uint64(len(d.data)) {
			return errors.Errorf(
				"column '%s' section exceeds the blob bounds", entry.column.Name,
			)
		}
		schema.Columns = append(schema.Columns, entry.column)
		d.columns[entry.column.Name] = entry
		d.ordered = append(d.ordered, entry)
	}
	d.schema = schema
	return nil
}

func readIndexEntry(
	buffer encoding.ReadBuffer,
) (*columnEntry, error) {

	name, err := buffer.ReadString()
	if err != nil {
		return nil, err
	}
	columnType, err := buffer.ReadUint8()
	if err != nil {
		return nil, err
	}
	columnEncoding, err := buffer.ReadUint8()
	if err != nil {
		return nil, err
	}
	nullable, err := buffer.ReadBool()
	if err != nil {
		return nil, err
	}
	offset, err := buffer.ReadUint64()
	if err != nil {
		return nil, err
	}
	length, err := buffer.ReadUint64()
	if err != nil {
		return nil, err
	}
	nullCount, err := buffer.ReadUint32()
	if err != nil {
		return nil, err
	}
	distinctEstimate, err := buffer.ReadUint32()
	if err != nil {
		return nil, err
	}

	entry := &columnEntry{
		column: columnar.Column{
			Name:     name,
			Type:     columnar.ColumnType(columnType),
			Nullable: nullable,
			Encoding: columnar.ColumnEncoding(columnEncoding),
		},
		offset: offset,
		length: length,
		statistics: columnar.Statistics{
			NullCount:        nullCount,
			DistinctEstimate: distinctEstimate,
		},
	}

	boundsPresent, err := buffer.ReadBool()
	if err != nil {
		return nil, err
	}
	if boundsPresent {
		if entry.statistics.Min, err = decodePlainValue(buffer, entry.column.Type); err != nil {
			return nil, err
		}
		if entry.statistics.Max, err = decodePlainValue(buffer, entry.column.Type); err != nil {
			return nil, err
		}
	}
	return entry, nil
}

func (d *Decoder) Schema() *columnar.Schema {
	return d.schema
}

func (d *Decoder) RowCount() int {
	return d.rowCount
}

// Statistics returns the index statistics of the named column without
// decoding any column body.
func (d *Decoder) Statistics(
	name string,
) (*columnar.Statistics, error) {

	entry, present := d.columns[name]
	if !present {
		return nil, errors.Errorf("unknown column '%s'", name)
	}
	statistics := entry.statistics
	return &statistics, nil
}

// Validate recomputes the footer checksum over the blob and reports
// whether it matches.
func (d *Decoder) Validate() bool {
	stored := encoding.NewReadBuffer(d.data[len(d.data)-4:])
	checksum, err := stored.ReadUint32()
	if err != nil {
		return false
	}
	return checksum == crc32.ChecksumIEEE(d.data[:len(d.data)-4])
}

// ReadColumn decodes the named column to one value per row, null values
// as nil. Only that column's byte range is touched, decoded columns are
// cached for subsequent reads.
func (d *Decoder) ReadColumn(
	name string,
) ([]any, error) {

	entry, present := d.columns[name]
	if !present {
		return nil, errors.Errorf("unknown column '%s'", name)
	}
	if entry.decoded {
		return entry.values, nil
	}

	section := encoding.NewReadBuffer(d.data[entry.offset : entry.offset+entry.length])

	var bitmap []byte
	if entry.column.Nullable {
		var err error
		if bitmap, err = section.ReadRaw((d.rowCount + 7) / 8); err != nil {
			return nil, err
		}
	}

	nonNullCount := d.rowCount - int(entry.statistics.NullCount)
	decoded, err := decodeValues(section, entry.column, nonNullCount)
	if err != nil {
		return nil, err
	}

	values := make([]any, d.rowCount)
	next := 0
	for row := 0; row < d.rowCount; row++ {
		if bitmap != nil && bitmap[row/8]&(1<<uint(row%8)) != 0 {
			continue
		}
		if next >= len(decoded) {
			return nil, errors.Errorf(
				"column '%s' holds fewer values than the null bitmap claims", name,
			)
		}
		values[row] = decoded[next]
		next++
	}

	entry.decoded = true
	entry.values = values
	return values, nil
}

// ReadRows materializes the half-open row range [from, to) back to maps,
// omitting null values.
func (d *Decoder) ReadRows(
	from, to int,
) ([]map[string]any, error) {

	if from < 0 || to > d.rowCount || from > to {
		return nil, errors.Errorf(
			"row range [%d, %d) is out of bounds for %d rows", from, to, d.rowCount,
		)
	}

	rows := make([]map[string]any, to-from)
	for i := range rows {
		rows[i] = make(map[string]any)
	}
	for _, entry := range d.ordered {
		values, err := d.ReadColumn(entry.column.Name)
		if err != nil {
			return nil, err
		}
		for row := from; row < to; row++ {
			if values[row] != nil {
				rows[row-from][entry.column.Name] = values[row]
			}
		}
	}
	return rows, nil
}

func (d *Decoder) ReadAll() ([]map[string]any, error) {
	return d.ReadRows(0, d.rowCount)
}
