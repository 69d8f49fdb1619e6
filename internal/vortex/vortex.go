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

// Package vortex implements the columnar binary codec of the active tier.
//
// Blob layout:
//
//	+----------------+---------------------+--------------+--------------------+
//	| magic (4 byte) | column sections ... | column index | footer (13 byte)   |
//	+----------------+---------------------+--------------+--------------------+
//
// The footer holds the format version, the byte offset of the column index
// and a CRC32 checksum over all preceding bytes. Schema, row
// count and per-column statistics are therefore answerable by reading only
// the footer and the index, never the column bodies. Each column section is
// independently decodable, reading one column never touches another
// column's bytes.
package vortex

const (
	formatVersion uint8 = 1

	// footer: version (1) + index offset (8) + checksum (4)
	footerLength = 13
)

var magicBytes = []byte{'V', 'T', 'X', '1'}

// ContentType identifies vortex blobs in object store metadata.
const ContentType = "application/vnd.vortex"
