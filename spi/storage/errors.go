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

package storage

import (
	"fmt"
)

// Tier identifies one of the three storage layers, ordered by latency
// and cost.
type Tier string

const (
	TierActive  Tier = "active"
	TierCache   Tier = "cache"
	TierArchive Tier = "archive"
)

// ValidationError signals a schema mismatch on encode or a checksum
// mismatch on decode.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(
	format string, args ...any,
) *ValidationError {

	return &ValidationError{
		Message: fmt.Sprintf(format, args...),
	}
}

// NotFoundError is raised by mutating operations that require an existing
// entity. Plain lookups return nil instead.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.Kind, e.Key)
}

func NewNotFoundError(
	kind, key string,
) *NotFoundError {

	return &NotFoundError{
		Kind: kind,
		Key:  key,
	}
}

// StorageError wraps an underlying object store or cache failure,
// preserving the tier and operation for diagnosis.
type StorageError struct {
	Tier  Tier
	Op    string
	Cause error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s tier %s failed: %s", e.Tier, e.Op, e.Cause.Error())
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

func NewStorageError(
	tier Tier, op string, cause error,
) *StorageError {

	return &StorageError{
		Tier:  tier,
		Op:    op,
		Cause: cause,
	}
}

// CircularReferenceError is raised when a context chain walk detects
// a parent loop.
type CircularReferenceError struct {
	ID    string
	Chain []string
}

func (e *CircularReferenceError) Error() string {
	return fmt.Sprintf("circular reference detected walking context chain of '%s'", e.ID)
}

func NewCircularReferenceError(
	id string, chain []string,
) *CircularReferenceError {

	return &CircularReferenceError{
		ID:    id,
		Chain: chain,
	}
}
