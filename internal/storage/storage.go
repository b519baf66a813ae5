// Package storage performs the actual durable writes the reconciliation
// engine is optimistic about. The backend is an S3-compatible object store
// (MinIO in development); the engine only sees the Writer contract.
package storage

import (
	"bytes"
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Writer is the storage contract the engine consumes. Delete of an absent
// path must succeed: deletes are idempotent.
type Writer interface {
	Put(ctx context.Context, path string, payload []byte) error
	Delete(ctx context.Context, path string) error
}

// Config holds S3 connection settings.
type Config struct {
	Region       string
	Bucket       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
}

// api is the subset of the S3 client the writer uses.
type api interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Writer writes resource records to one bucket, keyed by resource path.
type S3Writer struct {
	client api
	bucket string
}

// NewS3Writer connects to the configured endpoint with static credentials,
// the same way the development MinIO setup is reached.
func NewS3Writer(ctx context.Context, cfg Config) (*S3Writer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey, cfg.SecretKey, "",
		)))
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Writer{client: client, bucket: cfg.Bucket}, nil
}

// Put stores payload at path.
func (w *S3Writer) Put(ctx context.Context, path string, payload []byte) error {
	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(path),
		Body:   bytes.NewReader(payload),
	})
	return err
}

// Delete removes the record at path. An already-absent key is success.
func (w *S3Writer) Delete(ctx context.Context, path string) error {
	_, err := w.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(path),
	})
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return nil
	}
	return err
}
