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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vortexlabs/tierstream/spi/cdc"
	"github.com/vortexlabs/tierstream/spi/checkpoint"
)

func Test_File_Checkpoint_Survives_Restart(
	t *testing.T,
) {

	path := filepath.Join(t.TempDir(), "checkpoints.bin")

	storage, err := NewFileCheckpointStorage(path)
	assert.NoError(t, err)
	assert.NoError(t, storage.Start())

	timestamp := time.Now().UTC().Truncate(time.Microsecond)
	_, err = storage.Save(&checkpoint.Checkpoint{
		SubscriberID: "reporter",
		Cursor: cdc.Cursor{
			Sequence:  42,
			Timestamp: timestamp,
		},
		Metadata: map[string]string{"owner": "billing"},
	})
	assert.NoError(t, err)
	assert.NoError(t, storage.Stop())

	reopened, err := NewFileCheckpointStorage(path)
	assert.NoError(t, err)
	assert.NoError(t, reopened.Start())
	defer reopened.Stop()

	found, err := reopened.Lookup("reporter")
	assert.NoError(t, err)
	assert.NotNil(t, found)
	assert.Equal(t, uint64(42), found.Cursor.Sequence)
	assert.True(t, timestamp.Equal(found.Cursor.Timestamp))
	assert.Equal(t, "billing", found.Metadata["owner"])
}

func Test_File_Checkpoint_Missing_File_Starts_Empty(
	t *testing.T,
) {

	path := filepath.Join(t.TempDir(), "nested", "checkpoints.bin")

	storage, err := NewFileCheckpointStorage(path)
	assert.NoError(t, err)
	assert.NoError(t, storage.Start())
	defer storage.Stop()

	checkpoints, err := storage.List()
	assert.NoError(t, err)
	assert.Empty(t, checkpoints)
}

func Test_File_Checkpoint_Empty_File_Starts_Empty(
	t *testing.T,
) {

	path := filepath.Join(t.TempDir(), "checkpoints.bin")
	assert.NoError(t, os.WriteFile(path, []byte{}, 0666))

	storage, err := NewFileCheckpointStorage(path)
	assert.NoError(t, err)
	assert.NoError(t, storage.Start())
	defer storage.Stop()

	checkpoints, err := storage.List()
	assert.NoError(t, err)
	assert.Empty(t, checkpoints)
}

func Test_File_Checkpoint_Path_Is_Directory(
	t *testing.T,
) {

	_, err := NewFileCheckpointStorage(t.TempDir())
	assert.Error(t, err)
}

func Test_File_Checkpoint_Resave_Preserves_CreatedAt(
	t *testing.T,
) {

	path := filepath.Join(t.TempDir(), "checkpoints.bin")

	storage, err := NewFileCheckpointStorage(path)
	assert.NoError(t, err)
	assert.NoError(t, storage.Start())
	defer storage.Stop()

	first, err := storage.Save(&checkpoint.Checkpoint{
		SubscriberID: "reporter",
		Cursor:       cdc.Cursor{Sequence: 1},
	})
	assert.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	second, err := storage.Save(&checkpoint.Checkpoint{
		SubscriberID: "reporter",
		Cursor:       cdc.Cursor{Sequence: 2},
	})
	assert.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
}

func Test_File_Checkpoint_Delete_Persists(
	t *testing.T,
) {

	path := filepath.Join(t.TempDir(), "checkpoints.bin")

	storage, err := NewFileCheckpointStorage(path)
	assert.NoError(t, err)
	assert.NoError(t, storage.Start())

	for _, subscriberID := range []string{"alpha", "beta"} {
		_, err := storage.Save(&checkpoint.Checkpoint{
			SubscriberID: subscriberID,
			Cursor:       cdc.Cursor{Sequence: 1},
		})
		assert.NoError(t, err)
	}
	assert.NoError(t, storage.Delete("alpha"))
	assert.NoError(t, storage.Stop())

	reopened, err := NewFileCheckpointStorage(path)
	assert.NoError(t, err)
	assert.NoError(t, reopened.Start())
	defer reopened.Stop()

	checkpoints, err := reopened.List()
	assert.NoError(t, err)
	assert.Len(t, checkpoints, 1)
	assert.Equal(t, "beta", checkpoints[0].SubscriberID)
}
