package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// ObjectStorage stores each key as one object in an S3 compatible bucket.
// It stands in for R2 style object storage on edge deployments.
type ObjectStorage struct {
	client s3iface.S3API
	bucket string
	prefix string
}

// NewObjectStorage creates an S3 session from cfg.
func NewObjectStorage(cfg *ObjectConfig) (*ObjectStorage, error) {
	if cfg == nil || cfg.Bucket == "" {
		return nil, fmt.Errorf("object storage requires a bucket")
	}

	awsCfg := &aws.Config{
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(cfg.PathStyle),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return NewObjectStorageFromClient(s3.New(sess), cfg.Bucket, cfg.Prefix), nil
}

// NewObjectStorageFromClient wraps an existing S3 API client.
func NewObjectStorageFromClient(client s3iface.S3API, bucket, prefix string) *ObjectStorage {
	return &ObjectStorage{client: client, bucket: bucket, prefix: prefix}
}

// Get implements Storage.
func (o *ObjectStorage) Get(ctx context.Context, key string) (string, bool, error) {
	out, err := o.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.prefix + key),
	})
	if err != nil {
		if isObjectMissing(err) {
			return "", false, nil
		}
		return "", false, newError("object", "get", key, true, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", false, newError("object", "get", key, true, err)
	}
	return string(data), true, nil
}

// Set implements Storage.
func (o *ObjectStorage) Set(ctx context.Context, key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	_, err := o.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(o.bucket),
		Key:         aws.String(o.prefix + key),
		Body:        bytes.NewReader([]byte(value)),
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		return newError("object", "set", key, true, err)
	}
	return nil
}

// Remove implements Storage. S3 treats deleting a missing object as success.
func (o *ObjectStorage) Remove(ctx context.Context, key string) error {
	_, err := o.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.prefix + key),
	})
	if err != nil && !isObjectMissing(err) {
		return newError("object", "remove", key, true, err)
	}
	return nil
}

func isObjectMissing(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
