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

package emitting

import (
	"bytes"
	"sort"

	"github.com/goccy/go-json"
)

// DiffFields reports the dot separated paths whose values differ between
// the two document images. Keys present on only one side are always
// reported. Nested objects are descended into, arrays are compared as
// whole values and reported under the array's own path.
func DiffFields(
	before, after map[string]any,
) []string {

	paths := diffObjects("", before, after)
	sort.Strings(paths)
	return paths
}

func diffObjects(
	prefix string, before, after map[string]any,
) []string {

	keys := make(map[string]bool)
	for key := range before {
		keys[key] = true
	}
	for key := range after {
		keys[key] = true
	}

	paths := make([]string, 0)
	for key := range keys {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}

		beforeValue, inBefore := before[key]
		afterValue, inAfter := after[key]
		if !inBefore || !inAfter {
			paths = append(paths, path)
			continue
		}

		beforeObject, beforeIsObject := beforeValue.(map[string]any)
		afterObject, afterIsObject := afterValue.(map[string]any)
		if beforeIsObject && afterIsObject {
			paths = append(paths, diffObjects(path, beforeObject, afterObject)...)
			continue
		}

		if !valuesEqual(beforeValue, afterValue) {
			paths = append(paths, path)
		}
	}
	return paths
}

// valuesEqual compares through the json representation, which unifies
// numeric types and handles arrays and mixed structures alike.
func valuesEqual(
	left, right any,
) bool {

	l, err := json.Marshal(left)
	if err != nil {
		return false
	}
	r, err := json.Marshal(right)
	if err != nil {
		return false
	}
	return bytes.Equal(l, r)
}
