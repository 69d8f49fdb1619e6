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

import (
	"os"
	"reflect"
	"strings"
	"time"
)

type ObjectStoreType string

const (
	MemoryObjectStore ObjectStoreType = "memory"
	S3ObjectStore     ObjectStoreType = "s3"
)

type CheckpointStorageType string

const (
	MemoryCheckpointStorage CheckpointStorageType = "memory"
	FileCheckpointStorage   CheckpointStorageType = "file"
)

type CacheType string

const (
	MemoryCache CacheType = "memory"
	RedisCache  CacheType = "redis"
)

type DestinationType string

const (
	Stdout DestinationType = "stdout"
	NATS   DestinationType = "nats"
	Kafka  DestinationType = "kafka"
	Redis  DestinationType = "redis"
)

type PartitionScheme string

const (
	PartitionByTime       PartitionScheme = "time"
	PartitionByCollection PartitionScheme = "collection"
)

type Config struct {
	Emitter     EmitterConfig     `toml:"emitter"`
	Active      ActiveStoreConfig `toml:"active"`
	Router      RouterConfig      `toml:"router"`
	Archive     ArchiveConfig     `toml:"archive"`
	Checkpoints CheckpointConfig  `toml:"checkpoints"`
	Cache       CacheConfig       `toml:"cache"`
	Snapshots   SnapshotConfig    `toml:"snapshots"`
	Logging     LoggerConfig      `toml:"logging"`
	Stats       StatsConfig       `toml:"stats"`
	ObjectStore ObjectStoreConfig `toml:"objectstore"`
}

type EmitterConfig struct {
	Source        string        `toml:"source"`
	BatchSize     uint          `toml:"batchsize"`
	BatchTimeout  time.Duration `toml:"batchtimeout"`
	FieldDiffing  *bool         `toml:"fielddiffing"`
	StartSequence uint64        `toml:"startsequence"`
}

type ActiveStoreConfig struct {
	RetainedEvents uint `toml:"retainedevents"`
}

type RouterConfig struct {
	MaxRetries              uint                         `toml:"maxretries"`
	CircuitBreakerThreshold uint                         `toml:"circuitbreakerthreshold"`
	CircuitBreakerReset     time.Duration                `toml:"circuitbreakerreset"`
	BufferCapacity          uint                         `toml:"buffercapacity"`
	Filters                 map[string]EventFilterConfig `toml:"filters"`
	Destinations            []DestinationConfig          `toml:"destinations"`
}

type EventFilterConfig struct {
	Collections  []string `toml:"collections"`
	DefaultValue *bool    `toml:"default"`
	Condition    string   `toml:"condition"`
}

type DestinationConfig struct {
	Name  string          `toml:"name"`
	Type  DestinationType `toml:"type"`
	Nats  NatsConfig      `toml:"nats"`
	Kafka KafkaConfig     `toml:"kafka"`
	Redis RedisConfig     `toml:"redis"`
}

type NatsConfig struct {
	Address  string `toml:"address"`
	Subject  string `toml:"subject"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

type KafkaConfig struct {
	Brokers    []string `toml:"brokers"`
	Topic      string   `toml:"topic"`
	Idempotent bool     `toml:"idempotent"`
}

type RedisConfig struct {
	Network  string `toml:"network"`
	Address  string `toml:"address"`
	Password string `toml:"password"`
	Database int    `toml:"database"`
	PoolSize int    `toml:"poolsize"`
	Channel  string `toml:"channel"`
}

type ObjectStoreConfig struct {
	Type ObjectStoreType `toml:"type"`
	S3   S3Config        `toml:"s3"`
}

type S3Config struct {
	Bucket          string  `toml:"bucket"`
	Region          *string `toml:"region"`
	Endpoint        string  `toml:"endpoint"`
	AccessKeyId     *string `toml:"accesskeyid"`
	SecretAccessKey *string `toml:"secretaccesskey"`
	SessionToken    *string `toml:"sessiontoken"`
	PathStyle       bool    `toml:"pathstyle"`
}

type ArchiveConfig struct {
	Prefix     string                 `toml:"prefix"`
	Partition  PartitionConfig        `toml:"partition"`
	Compaction CompactionConfig       `toml:"compaction"`
	Retention  ArchiveRetentionConfig `toml:"retention"`
	MaxPerFile uint                   `toml:"maxperfile"`
}

type PartitionConfig struct {
	Scheme      PartitionScheme `toml:"scheme"`
	Granularity string          `toml:"granularity"`
}

type CompactionConfig struct {
	TargetFileSize string `toml:"targetfilesize"`
	MinInputFiles  uint   `toml:"mininputfiles"`
	Dedupe         *bool  `toml:"dedupe"`
}

type ArchiveRetentionConfig struct {
	MaxAge       time.Duration `toml:"maxage"`
	MaxTotalSize string        `toml:"maxtotalsize"`
	DryRun       bool          `toml:"dryrun"`
}

type CheckpointConfig struct {
	Type        CheckpointStorageType `toml:"type"`
	FileStorage FileStorageConfig     `toml:"file"`
}

type FileStorageConfig struct {
	Path string `toml:"path"`
}

type CacheConfig struct {
	Type   CacheType     `toml:"type"`
	MaxAge time.Duration `toml:"maxage"`
	Redis  RedisConfig   `toml:"redis"`
}

type SnapshotConfig struct {
	MaxIncrementalChain uint          `toml:"maxincrementalchain"`
	RetentionAge        time.Duration `toml:"retentionage"`
	RetentionCount      uint          `toml:"retentioncount"`
}

type StatsConfig struct {
	Enabled *bool  `toml:"enabled"`
	Runtime *bool  `toml:"runtime"`
	Address string `toml:"address"`
}

type LoggerConfig struct {
	Level   string                     `toml:"level"`
	Outputs LoggerOutputConfig         `toml:"output"`
	Loggers map[string]SubLoggerConfig `toml:"loggers"`
}

type LoggerOutputConfig struct {
	Console LoggerConsoleConfig `toml:"console"`
	File    LoggerFileConfig    `toml:"file"`
}

type SubLoggerConfig struct {
	Level   *string            `toml:"level"`
	Outputs LoggerOutputConfig `toml:"output"`
}

type LoggerConsoleConfig struct {
	Enabled *bool `toml:"enabled"`
}

type LoggerFileConfig struct {
	Enabled     *bool          `toml:"enabled"`
	Path        string         `toml:"path"`
	Rotate      *bool          `toml:"rotate"`
	MaxSize     *string        `toml:"maxsize"`
	MaxDuration *time.Duration `toml:"maxduration"`
	Compress    bool           `toml:"compress"`
}

// GetOrDefault resolves a dotted canonical property name against the config
// tree, preferring a matching environment variable when one is set.
func GetOrDefault[V any](
	config *Config, canonicalProperty string, defaultValue V,
) V {

	if env, found := findEnvProperty(canonicalProperty, defaultValue); found {
		return env
	}

	properties := strings.Split(canonicalProperty, ".")

	element := reflect.ValueOf(*config)
	for _, property := range properties {
		if e, ok := findProperty(element, property); ok {
			element = e
		} else {
			return defaultValue
		}
	}

	if !element.IsZero() &&
		!(element.Kind() == reflect.Ptr && element.IsNil()) {

		if element.Kind() == reflect.Ptr {
			element = element.Elem()
		}

		return element.Convert(reflect.TypeOf(defaultValue)).Interface().(V)
	}
	return defaultValue
}

func findEnvProperty[V any](
	canonicalProperty string, defaultValue V,
) (V, bool) {

	t := reflect.TypeOf(defaultValue)

	envVarName := strings.ToUpper(canonicalProperty)
	envVarName = strings.ReplaceAll(envVarName, "_", "__")
	envVarName = strings.ReplaceAll(envVarName, ".", "_")
	if val, ok := os.LookupEnv(envVarName); ok {
		v := reflect.ValueOf(val)
		cv := v.Convert(t)
		if !cv.IsZero() &&
			!(cv.Kind() == reflect.Ptr && cv.IsNil()) {
			return cv.Interface().(V), true
		}
	}
	return defaultValue, false
}

func findProperty(
	element reflect.Value, property string,
) (reflect.Value, bool) {

	t := element.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" && !f.Anonymous {
			continue
		}

		if f.Tag.Get("toml") == property {
			return element.Field(i), true
		}
	}
	return reflect.Value{}, false
}
