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

package archive

import (
	"time"

	"github.com/go-errors/errors"
	"github.com/vortexlabs/tierstream/spi/cdc"
	"github.com/vortexlabs/tierstream/spi/columnar"
)

// eventSchema is the fixed columnar layout of archived change events.
// Operation and collection values repeat heavily and dictionary encode
// well, sequence and timestamp are monotonic and delta encode well.
func eventSchema() *columnar.Schema {
	return &columnar.Schema{
		Columns: []columnar.Column{
			{Name: "id", Type: columnar.TypeString, Encoding: columnar.EncodingPlain},
			{Name: "operation", Type: columnar.TypeString, Encoding: columnar.EncodingDictionary},
			{Name: "collection", Type: columnar.TypeString, Encoding: columnar.EncodingDictionary},
			{Name: "documentId", Type: columnar.TypeString, Encoding: columnar.EncodingPlain},
			{Name: "timestamp", Type: columnar.TypeTimestamp, Encoding: columnar.EncodingDelta},
			{Name: "sequence", Type: columnar.TypeInt64, Encoding: columnar.EncodingDelta},
			{Name: "before", Type: columnar.TypeJson, Nullable: true, Encoding: columnar.EncodingPlain},
			{Name: "after", Type: columnar.TypeJson, Nullable: true, Encoding: columnar.EncodingPlain},
			{Name: "changedFields", Type: columnar.TypeJson, Nullable: true, Encoding: columnar.EncodingPlain},
			{Name: "source", Type: columnar.TypeString, Nullable: true, Encoding: columnar.EncodingDictionary},
			{Name: "correlationId", Type: columnar.TypeString, Nullable: true, Encoding: columnar.EncodingPlain},
		},
	}
}

func eventToRow(
	event *cdc.ChangeEvent,
) map[string]any {

	row := map[string]any{
		"id":         event.ID,
		"operation":  string(event.Operation),
		"collection": event.Collection,
		"documentId": event.DocumentID,
		"timestamp":  event.Timestamp.UTC(),
		"sequence":   int64(event.Sequence),
	}
	if event.Before != nil {
		row["before"] = event.Before
	}
	if event.After != nil {
		row["after"] = event.After
	}
	if event.ChangedFields != nil {
		row["changedFields"] = event.ChangedFields
	}
	if event.Source != "" {
		row["source"] = event.Source
	}
	if event.CorrelationID != "" {
		row["correlationId"] = event.CorrelationID
	}
	return row
}

func rowToEvent(
	row map[string]any,
) (*cdc.ChangeEvent, error) {

	event := &cdc.ChangeEvent{}
	var ok bool
	if event.ID, ok = row["id"].(string); !ok {
		return nil, errors.Errorf("archived row misses the id column")
	}

	operation, _ := row["operation"].(string)
	event.Operation = cdc.Operation(operation)
	event.Collection, _ = row["collection"].(string)
	event.DocumentID, _ = row["documentId"].(string)
	if timestamp, ok := row["timestamp"].(time.Time); ok {
		event.Timestamp = timestamp
	}
	if sequence, ok := row["sequence"].(int64); ok {
		event.Sequence = uint64(sequence)
	}
	if before, ok := row["before"].(map[string]any); ok {
		event.Before = before
	}
	if after, ok := row["after"].(map[string]any); ok {
		event.After = after
	}
	if fields, ok := row["changedFields"].([]any); ok {
		event.ChangedFields = make([]string, 0, len(fields))
		for _, field := range fields {
			if name, ok := field.(string); ok {
				event.ChangedFields = append(event.ChangedFields, name)
			}
		}
	}
	event.Source, _ = row["source"].(string)
	event.CorrelationID, _ = row["correlationId"].(string)
	return event, nil
}
