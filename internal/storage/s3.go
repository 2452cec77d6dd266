package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/spec-kit/uni-helpdesk/internal/config"
)

// S3Backend stores objects in an S3 (or compatible) bucket.
type S3Backend struct {
	client    s3iface.S3API
	bucket    string
	prefix    string
	publicURL string
}

// NewS3Backend creates the backend from configuration. Static credentials
// are used when given, otherwise the default AWS credential chain applies.
func NewS3Backend(cfg config.UploadConfig) (*S3Backend, error) {
	if cfg.S3Bucket == "" || cfg.S3Region == "" {
		return nil, errors.New("missing S3 configuration")
	}

	awsCfg := aws.Config{Region: aws.String(cfg.S3Region)}
	if cfg.S3Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.S3Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.S3AccessKey, cfg.S3SecretKey, "")
	}

	sess, err := session.NewSession(&awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return newS3Backend(s3.New(sess), cfg), nil
}

func newS3Backend(client s3iface.S3API, cfg config.UploadConfig) *S3Backend {
	return &S3Backend{
		client:    client,
		bucket:    cfg.S3Bucket,
		prefix:    strings.Trim(cfg.S3KeyPrefix, "/"),
		publicURL: cfg.S3BaseURL(),
	}
}

func (b *S3Backend) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	objectKey := key
	if b.prefix != "" {
		objectKey = b.prefix + "/" + key
	}
	_, err := b.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object to S3: %w", err)
	}
	return b.publicURL + "/" + objectKey, nil
}
