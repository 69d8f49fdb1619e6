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

package s3

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/go-errors/errors"
	spiconfig "github.com/vortexlabs/tierstream/spi/config"
	"github.com/vortexlabs/tierstream/spi/objectstore"
)

func init() {
	objectstore.RegisterObjectStore(spiconfig.S3ObjectStore, newS3ObjectStore)
}

type s3ObjectStore struct {
	bucket string
	client *s3.S3
}

func newS3ObjectStore(
	c *spiconfig.Config,
) (objectstore.Store, error) {

	bucket := spiconfig.GetOrDefault(c, spiconfig.PropertyS3Bucket, "")
	if bucket == "" {
		return nil, errors.Errorf("S3 object store needs the bucket to be configured")
	}

	region := spiconfig.GetOrDefault[*string](c, spiconfig.PropertyS3Region, nil)
	endpoint := spiconfig.GetOrDefault(c, spiconfig.PropertyS3Endpoint, "")
	accessKeyId := spiconfig.GetOrDefault[*string](c, spiconfig.PropertyS3AccessKeyId, nil)
	secretAccessKey := spiconfig.GetOrDefault[*string](c, spiconfig.PropertyS3SecretKey, nil)
	sessionToken := spiconfig.GetOrDefault[*string](c, spiconfig.PropertyS3SessionToken, nil)
	pathStyle := spiconfig.GetOrDefault(c, spiconfig.PropertyS3PathStyle, false)

	awsConfig := aws.NewConfig().WithEndpoint(endpoint)
	if accessKeyId != nil && secretAccessKey != nil {
		token := ""
		if sessionToken != nil {
			token = *sessionToken
		}
		awsConfig = awsConfig.WithCredentials(
			credentials.NewStaticCredentials(*accessKeyId, *secretAccessKey, token),
		)
	}
	if region != nil {
		awsConfig = awsConfig.WithRegion(*region)
	}
	if pathStyle {
		awsConfig = awsConfig.WithS3ForcePathStyle(true)
	}

	awsSession, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, err
	}

	return &s3ObjectStore{
		bucket: bucket,
		client: s3.New(awsSession),
	}, nil
}

func (s *s3ObjectStore) Start() error {
	_, err := s.client.HeadBucket(&s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	return err
}

func (s *s3ObjectStore) Stop() error {
	return nil
}

func (s *s3ObjectStore) Put(
	ctx context.Context, key string, body []byte, options objectstore.PutOptions,
) (*objectstore.Ref, error) {

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	}
	if options.ContentType != "" {
		input.ContentType = aws.String(options.ContentType)
	}
	if options.CustomMetadata != nil {
		input.Metadata = make(map[string]*string)
		for name, value := range options.CustomMetadata {
			input.Metadata[name] = aws.String(value)
		}
	}

	output, err := s.client.PutObjectWithContext(ctx, input)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	return &objectstore.Ref{
		Key:            key,
		Size:           int64(len(body)),
		ContentType:    options.ContentType,
		ETag:           aws.StringValue(output.ETag),
		CustomMetadata: options.CustomMetadata,
	}, nil
}

func (s *s3ObjectStore) Get(
	ctx context.Context, key string,
) (*objectstore.Object, error) {

	output, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, 0)
	}
	defer output.Body.Close()

	body, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	return &objectstore.Object{
		Ref:  refFromHead(key, output.ContentLength, output.ContentType, output.ETag, output.Metadata),
		Body: body,
	}, nil
}

func (s *s3ObjectStore) Delete(
	ctx context.Context, keys ...string,
) error {

	identifiers := make([]*s3.ObjectIdentifier, 0, len(keys))
	for _, key := range keys {
		identifiers = append(identifiers, &s3.ObjectIdentifier{
			Key: aws.String(key),
		})
	}

	_, err := s.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &s3.Delete{
			Objects: identifiers,
			Quiet:   aws.Bool(true),
		},
	})
	if err != nil {
		return errors.Wrap(err, 0)
	}
	return nil
}

func (s *s3ObjectStore) List(
	ctx context.Context, options objectstore.ListOptions,
) (*objectstore.ListResult, error) {

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}
	if options.Prefix != "" {
		input.Prefix = aws.String(options.Prefix)
	}
	if options.Cursor != "" {
		input.StartAfter = aws.String(options.Cursor)
	}
	if options.Limit > 0 {
		input.MaxKeys = aws.Int64(int64(options.Limit))
	}

	output, err := s.client.ListObjectsV2WithContext(ctx, input)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	result := &objectstore.ListResult{
		Objects:   make([]objectstore.Ref, 0, len(output.Contents)),
		Truncated: aws.BoolValue(output.IsTruncated),
	}
	for _, object := range output.Contents {
		result.Objects = append(result.Objects, objectstore.Ref{
			Key:      aws.StringValue(object.Key),
			Size:     aws.Int64Value(object.Size),
			ETag:     aws.StringValue(object.ETag),
			Uploaded: aws.TimeValue(object.LastModified),
		})
	}
	if result.Truncated && len(result.Objects) > 0 {
		result.Cursor = result.Objects[len(result.Objects)-1].Key
	}
	return result, nil
}

func (s *s3ObjectStore) Head(
	ctx context.Context, key string,
) (*objectstore.Ref, error) {

	output, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, 0)
	}

	ref := refFromHead(key, output.ContentLength, output.ContentType, output.ETag, output.Metadata)
	ref.Uploaded = aws.TimeValue(output.LastModified)
	return &ref, nil
}

func refFromHead(
	key string, size *int64, contentType, etag *string, metadata map[string]*string,
) objectstore.Ref {

	ref := objectstore.Ref{
		Key:         key,
		Size:        aws.Int64Value(size),
		ContentType: aws.StringValue(contentType),
		ETag:        aws.StringValue(etag),
	}
	if len(metadata) > 0 {
		ref.CustomMetadata = make(map[string]string, len(metadata))
		for name, value := range metadata {
			// S3 lowercases custom metadata names on the wire
			ref.CustomMetadata[strings.ToLower(name)] = aws.StringValue(value)
		}
	}
	return ref
}

func isNotFound(
	err error,
) bool {

	var awsErr awserr.Error
	if errors.As(err, &awsErr) {
		switch awsErr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
