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

package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBuffer_WatermarkPausing(t *testing.T) {
	rb, err := NewRingBuffer[int](10, 8, 2)
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		require.NoError(t, rb.Write(i))
	}
	assert.False(t, rb.Paused())

	require.NoError(t, rb.Write(7))
	assert.True(t, rb.Paused())

	// Stays paused until occupancy falls to the low water mark
	for i := 0; i < 5; i++ {
		_, ok := rb.Read()
		require.True(t, ok)
	}
	assert.True(t, rb.Paused())

	_, ok := rb.Read()
	require.True(t, ok)
	assert.False(t, rb.Paused())
}

func TestRingBuffer_DrainSignalFiresExactlyOnEmpty(t *testing.T) {
	rb, err := NewRingBuffer[string](4, 3, 1)
	require.NoError(t, err)

	drained := 0
	rb.OnDrain(func() {
		drained++
	})

	require.NoError(t, rb.Write("a"))
	require.NoError(t, rb.Write("b"))

	_, ok := rb.Read()
	require.True(t, ok)
	assert.Equal(t, 0, drained)

	_, ok = rb.Read()
	require.True(t, ok)
	assert.Equal(t, 1, drained)

	// Reading an empty buffer does not re-fire the drain signal
	_, ok = rb.Read()
	assert.False(t, ok)
	assert.Equal(t, 1, drained)
}

func TestRingBuffer_OrderingAndCapacity(t *testing.T) {
	rb, err := NewRingBuffer[int](3, 3, 0)
	require.NoError(t, err)

	require.NoError(t, rb.Write(1))
	require.NoError(t, rb.Write(2))
	require.NoError(t, rb.Write(3))
	assert.Error(t, rb.Write(4))

	for expected := 1; expected <= 3; expected++ {
		v, ok := rb.Read()
		require.True(t, ok)
		assert.Equal(t, expected, v)
	}
}

func TestRingBuffer_InvalidWatermarks(t *testing.T) {
	_, err := NewRingBuffer[int](0, 1, 0)
	assert.Error(t, err)

	_, err = NewRingBuffer[int](4, 5, 0)
	assert.Error(t, err)

	_, err = NewRingBuffer[int](4, 2, 2)
	assert.Error(t, err)
}
