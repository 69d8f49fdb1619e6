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

package encoding

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/go-errors/errors"
)

// WriteBuffer is a big-endian binary writer used by the columnar codec and
// the binary state files. All multi-byte values are written in network
// byte order, strings and byte slices are length-prefixed.
type WriteBuffer interface {
	PutBool(
		val bool,
	) error
	PutUint8(
		val uint8,
	) error
	PutUint16(
		val uint16,
	) error
	PutUint32(
		val uint32,
	) error
	PutUint64(
		val uint64,
	) error
	PutInt64(
		val int64,
	) error
	PutUvarint(
		val uint64,
	) error
	PutVarint(
		val int64,
	) error
	PutFloat64(
		val float64,
	) error
	PutString(
		val string,
	) error
	PutBytes(
		val []byte,
	) error
	PutRaw(
		val []byte,
	) error
	Length() int
	Bytes() []byte
}

type ReadBuffer interface {
	ReadBool() (bool, error)
	ReadUint8() (uint8, error)
	ReadUint16() (uint16, error)
	ReadUint32() (uint32, error)
	ReadUint64() (uint64, error)
	ReadInt64() (int64, error)
	ReadUvarint() (uint64, error)
	ReadVarint() (int64, error)
	ReadFloat64() (float64, error)
	ReadString() (string, error)
	ReadBytes() ([]byte, error)
	ReadRaw(
		length int,
	) ([]byte, error)
}

func NewWriteBuffer(
	initialCapacity int,
) WriteBuffer {

	buffer := &bytes.Buffer{}
	buffer.Grow(initialCapacity)
	return &writeBuffer{
		buffer: buffer,
	}
}

type writeBuffer struct {
	buffer  *bytes.Buffer
	scratch [binary.MaxVarintLen64]byte
}

func (w *writeBuffer) PutBool(
	val bool,
) error {

	v := byte(0)
	if val {
		v = 1
	}
	if err := w.buffer.WriteByte(v); err != nil {
		return errors.Wrap(err, 0)
	}
	return nil
}

func (w *writeBuffer) PutUint8(
	val uint8,
) error {

	if err := w.buffer.WriteByte(val); err != nil {
		return errors.Wrap(err, 0)
	}
	return nil
}

func (w *writeBuffer) PutUint16(
	val uint16,
) error {

	d := make([]byte, 2)
	binary.BigEndian.PutUint16(d, val)
	if _, err := w.buffer.Write(d); err != nil {
		return errors.Wrap(err, 0)
	}
	return nil
}

func (w *writeBuffer) PutUint32(
	val uint32,
) error {

	d := make([]byte, 4)
	binary.BigEndian.PutUint32(d, val)
	if _, err := w.buffer.Write(d); err != nil {
		return errors.Wrap(err, 0)
	}
	return nil
}

func (w *writeBuffer) PutUint64(
	val uint64,
) error {

	d := make([]byte, 8)
	binary.BigEndian.PutUint64(d, val)
	if _, err := w.buffer.Write(d); err != nil {
		return errors.Wrap(err, 0)
	}
	return nil
}

func (w *writeBuffer) PutInt64(
	val int64,
) error {

	return w.PutUint64(uint64(val))
}

func (w *writeBuffer) PutUvarint(
	val uint64,
) error {

	n := binary.PutUvarint(w.scratch[:], val)
	if _, err := w.buffer.Write(w.scratch[:n]); err != nil {
		return errors.Wrap(err, 0)
	}
	return nil
}

func (w *writeBuffer) PutVarint(
	val int64,
) error {

	n := binary.PutVarint(w.scratch[:], val)
	if _, err := w.buffer.Write(w.scratch[:n]); err != nil {
		return errors.Wrap(err, 0)
	}
	return nil
}

func (w *writeBuffer) PutFloat64(
	val float64,
) error {

	return w.PutUint64(math.Float64bits(val))
}

func (w *writeBuffer) PutString(
	val string,
) error {

	d := []byte(val)
	if err := w.PutUvarint(uint64(len(d))); err != nil {
		return err
	}
	if _, err := w.buffer.Write(d); err != nil {
		return errors.Wrap(err, 0)
	}
	return nil
}

func (w *writeBuffer) PutBytes(
	val []byte,
) error {

	if err := w.PutUvarint(uint64(len(val))); err != nil {
		return err
	}
	if _, err := w.buffer.Write(val); err != nil {
		return errors.Wrap(err, 0)
	}
	return nil
}

func (w *writeBuffer) PutRaw(
	val []byte,
) error {

	if _, err := w.buffer.Write(val); err != nil {
		return errors.Wrap(err, 0)
	}
	return nil
}

func (w *writeBuffer) Length() int {
	return w.buffer.Len()
}

func (w *writeBuffer) Bytes() []byte {
	return w.buffer.Bytes()
}

func NewReadBuffer(
	data []byte,
) ReadBuffer {

	return &readBuffer{
		buffer: bytes.NewBuffer(data),
	}
}

type readBuffer struct {
	buffer *bytes.Buffer
}

func (r *readBuffer) ReadBool() (bool, error) {
	b, err := r.buffer.ReadByte()
	if err != nil {
		return false, errors.Wrap(err, 0)
	}
	return b == 1, nil
}

func (r *readBuffer) ReadUint8() (uint8, error) {
	b, err := r.buffer.ReadByte()
	if err != nil {
		return 0, errors.Wrap(err, 0)
	}
	return b, nil
}

func (r *readBuffer) ReadUint16() (uint16, error) {
	d, err := r.ReadRaw(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(d), nil
}

func (r *readBuffer) ReadUint32() (uint32, error) {
	d, err := r.ReadRaw(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(d), nil
}

func (r *readBuffer) ReadUint64() (uint64, error) {
	d, err := r.ReadRaw(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(d), nil
}

func (r *readBuffer) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	if err != nil {
		return 0, err
	}
	return int64(v), nil
}

func (r *readBuffer) ReadUvarint() (uint64, error) {
	v, err := binary.ReadUvarint(r.buffer)
	if err != nil {
		return 0, errors.Wrap(err, 0)
	}
	return v, nil
}

func (r *readBuffer) ReadVarint() (int64, error) {
	v, err := binary.ReadVarint(r.buffer)
	if err != nil {
		return 0, errors.Wrap(err, 0)
	}
	return v, nil
}

func (r *readBuffer) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

func (r *readBuffer) ReadString() (string, error) {
	d, err := r.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(d), nil
}

func (r *readBuffer) ReadBytes() ([]byte, error) {
	length, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	return r.ReadRaw(int(length))
}

func (r *readBuffer) ReadRaw(
	length int,
) ([]byte, error) {

	d := make([]byte, length)
	if n, err := r.buffer.Read(d); err != nil {
		return nil, errors.Wrap(err, 0)
	} else if n != length {
		return nil, errors.Errorf("short read: wanted %d bytes, got %d", length, n)
	}
	return d, nil
}
