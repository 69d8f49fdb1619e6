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

package config

const (
	PropertyEmitterSource        = "emitter.source"
	PropertyEmitterBatchSize     = "emitter.batchsize"
	PropertyEmitterBatchTimeout  = "emitter.batchtimeout"
	PropertyEmitterFieldDiffing  = "emitter.fielddiffing"
	PropertyEmitterStartSequence = "emitter.startsequence"

	PropertyActiveRetainedEvents = "active.retainedevents"

	PropertyRouterMaxRetries       = "router.maxretries"
	PropertyRouterBreakerThreshold = "router.circuitbreakerthreshold"
	PropertyRouterBreakerReset     = "router.circuitbreakerreset"
	PropertyRouterBufferCapacity   = "router.buffercapacity"

	PropertyObjectStoreType = "objectstore.type"
	PropertyS3Bucket        = "objectstore.s3.bucket"
	PropertyS3Region        = "objectstore.s3.region"
	PropertyS3Endpoint      = "objectstore.s3.endpoint"
	PropertyS3AccessKeyId   = "objectstore.s3.accesskeyid"
	PropertyS3SecretKey     = "objectstore.s3.secretaccesskey"
	PropertyS3SessionToken  = "objectstore.s3.sessiontoken"
	PropertyS3PathStyle     = "objectstore.s3.pathstyle"

	PropertyArchivePrefix               = "archive.prefix"
	PropertyArchivePartitionScheme      = "archive.partition.scheme"
	PropertyArchivePartitionGranularity = "archive.partition.granularity"
	PropertyArchiveMaxPerFile           = "archive.maxperfile"
	PropertyCompactionTargetFileSize    = "archive.compaction.targetfilesize"
	PropertyCompactionMinInputFiles     = "archive.compaction.mininputfiles"
	PropertyCompactionDedupe            = "archive.compaction.dedupe"
	PropertyRetentionMaxAge             = "archive.retention.maxage"
	PropertyRetentionMaxTotalSize       = "archive.retention.maxtotalsize"
	PropertyRetentionDryRun             = "archive.retention.dryrun"

	PropertyCheckpointStorageType     = "checkpoints.type"
	PropertyFileCheckpointStoragePath = "checkpoints.file.path"

	PropertyCacheType   = "cache.type"
	PropertyCacheMaxAge = "cache.maxage"

	PropertySnapshotMaxIncrementalChain = "snapshots.maxincrementalchain"
	PropertySnapshotRetentionAge        = "snapshots.retentionage"
	PropertySnapshotRetentionCount      = "snapshots.retentioncount"

	PropertyStatsEnabled        = "stats.enabled"
	PropertyRuntimeStatsEnabled = "stats.runtime"
	PropertyStatsAddress        = "stats.address"
)
