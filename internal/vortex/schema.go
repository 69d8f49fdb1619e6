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
	"math"
	"sort"
	"time"

	"github.com/vortexlabs/tierstream/spi/columnar"
)

// InferSchema scans the sample rows and chooses a column type and default
// encoding per column. A column is marked nullable when any sampled row
// omits or nulls it.
func InferSchema(
	rows []map[string]any,
) *columnar.Schema {

	names := make([]string, 0)
	seen := make(map[string]bool)
	for _, row := range rows {
		for name := range row {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)

	columns := make([]columnar.Column, 0, len(names))
	for _, name := range names {
		columnType, nullable := inferColumnType(rows, name)
		columns = append(columns, columnar.Column{
			Name:     name,
			Type:     columnType,
			Nullable: nullable,
			Encoding: defaultEncoding(columnType),
		})
	}
	return &columnar.Schema{
		Columns: columns,
	}
}

func defaultEncoding(
	columnType columnar.ColumnType,
) columnar.ColumnEncoding {

	switch columnType {
	case columnar.TypeString:
		return columnar.EncodingDictionary
	case columnar.TypeInt32, columnar.TypeInt64, columnar.TypeTimestamp:
		return columnar.EncodingDelta
	case columnar.TypeBoolean:
		return columnar.EncodingBitpack
	}
	return columnar.EncodingPlain
}

func inferColumnType(
	rows []map[string]any, name string,
) (columnar.ColumnType, bool) {

	nullable := false

	allBool := true
	allString := true
	allTimestamp := true
	allBinary := true
	allNumeric := true
	anyFraction := false
	needsInt64 := false
	sampled := 0

	for _, row := range rows {
		value, present := row[name]
		if !present || value == nil {
			nullable = true
			continue
		}
		sampled++

		switch v := value.(type) {
		case bool:
			allString, allTimestamp, allBinary, allNumeric = false, false, false, false
		case string:
			allBool, allTimestamp, allBinary, allNumeric = false, false, false, false
		case time.Time:
			allBool, allString, allBinary, allNumeric = false, false, false, false
		case []byte:
			allBool, allString, allTimestamp, allNumeric = false, false, false, false
		case int, int32, int64, uint, uint32, uint64:
			allBool, allString, allTimestamp, allBinary = false, false, false, false
			if outsideInt32(toInt64(v)) {
				needsInt64 = true
			}
		case float32, float64:
			allBool, allString, allTimestamp, allBinary = false, false, false, false
			f := toFloat64(v)
			if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
				anyFraction = true
			} else if outsideInt32(int64(f)) {
				needsInt64 = true
			}
		default:
			// Structured value, json fallback
			return columnar.TypeJson, nullable || hasNulls(rows, name)
		}
	}

	if sampled == 0 {
		return columnar.TypeJson, true
	}

	switch {
	case allBool:
		return columnar.TypeBoolean, nullable
	case allTimestamp:
		return columnar.TypeTimestamp, nullable
	case allBinary:
		return columnar.TypeBinary, nullable
	case allNumeric && anyFraction:
		return columnar.TypeFloat64, nullable
	case allNumeric && needsInt64:
		return columnar.TypeInt64, nullable
	case allNumeric:
		return columnar.TypeInt32, nullable
	case allString:
		return columnar.TypeString, nullable
	}
	return columnar.TypeJson, nullable
}

func hasNulls(
	rows []map[string]any, name string,
) bool {

	for _, row := range rows {
		if value, present := row[name]; !present || value == nil {
			return true
		}
	}
	return false
}

func outsideInt32(
	v int64,
) bool {

	return v > math.MaxInt32 || v < math.MinInt32
}

func toInt64(
	value any,
) int64 {

	switch v := value.(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case uint:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return int64(v)
	case float32:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func toFloat64(
	value any,
) float64 {

	switch v := value.(type) {
	case float32:
		return float64(v)
	case float64:
		return v
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint:
		return float64(v)
	case uint32:
		return float64(v)
	case uint64:
		return float64(v)
	}
	return 0
}
