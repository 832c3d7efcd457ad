package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config holds configuration for S3-compatible storage
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // DO Spaces, R2, MinIO
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

// S3API is the subset of the S3 client the blob store needs.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Blobs stores images in a bucket using the same keys FSBlobs would use
// on disk.
type S3Blobs struct {
	client S3API
	cfg    S3Config
}

func NewS3Blobs(ctx context.Context, cfg S3Config) (*S3Blobs, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var client *s3.Client
	if cfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	return NewS3BlobsWithClient(client, cfg), nil
}

func NewS3BlobsWithClient(client S3API, cfg S3Config) *S3Blobs {
	return &S3Blobs{client: client, cfg: cfg}
}

func (b *S3Blobs) objectKey(key string) string {
	if b.cfg.Prefix == "" {
		return key
	}
	return strings.TrimSuffix(b.cfg.Prefix, "/") + "/" + key
}

func (b *S3Blobs) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.cfg.Bucket),
		Key:         aws.String(b.objectKey(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

func (b *S3Blobs) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, fmt.Errorf("head object: %w", err)
}

func (b *S3Blobs) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// Path returns the public URL for a key
func (b *S3Blobs) Path(key string) string {
	k := b.objectKey(key)
	if b.cfg.Endpoint != "" && strings.Contains(b.cfg.Endpoint, "digitaloceanspaces.com") {
		host := strings.TrimPrefix(b.cfg.Endpoint, "https://")
		return fmt.Sprintf("https://%s.%s/%s", b.cfg.Bucket, host, k)
	}
	if b.cfg.Endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(b.cfg.Endpoint, "/"), b.cfg.Bucket, k)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", b.cfg.Bucket, b.cfg.Region, k)
}
