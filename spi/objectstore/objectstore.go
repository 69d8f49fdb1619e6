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

package objectstore

import (
	"context"
	"time"
)

// Ref describes a stored object without its body.
type Ref struct {
	Key            string            `json:"key"`
	Size           int64             `json:"size"`
	ContentType    string            `json:"contentType"`
	ETag           string            `json:"etag"`
	Uploaded       time.Time         `json:"uploaded"`
	CustomMetadata map[string]string `json:"customMetadata,omitempty"`
}

type Object struct {
	Ref
	Body []byte
}

type PutOptions struct {
	ContentType    string
	CustomMetadata map[string]string
}

type ListOptions struct {
	Prefix string
	Cursor string
	Limit  int
}

type ListResult struct {
	Objects   []Ref
	Truncated bool
	Cursor    string
}

// Store is the generic object store the archive tier operates over. Get and
// Head return nil without error for missing keys.
type Store interface {
	Start() error
	Stop() error
	Put(
		ctx context.Context, key string, body []byte, options PutOptions,
	) (*Ref, error)
	Get(
		ctx context.Context, key string,
	) (*Object, error)
	Delete(
		ctx context.Context, keys ...string,
	) error
	List(
		ctx context.Context, options ListOptions,
	) (*ListResult, error)
	Head(
		ctx context.Context, key string,
	) (*Ref, error)
}
