package provider

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"dupsweep/internal/config"
)

// S3Uploader stores audit exports in a bucket using the multipart upload manager.
type S3Uploader struct {
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Uploader wraps client for uploads to bucket under prefix.
func NewS3Uploader(client manager.UploadAPIClient, bucket, prefix string) *S3Uploader {
	return &S3Uploader{
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
	}
}

// NewS3UploaderFromConfig builds an uploader for the export destination,
// using the default AWS credential chain.
func NewS3UploaderFromConfig(ctx context.Context, cfg config.ExportConfig) (*S3Uploader, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("export s3_bucket is not configured")
	}
	client, err := newS3Client(ctx, cfg.S3Region, "", "", "")
	if err != nil {
		return nil, err
	}
	return NewS3Uploader(client, cfg.S3Bucket, cfg.S3Prefix), nil
}

// Upload writes body to <prefix><name> and returns the object's location.
func (u *S3Uploader) Upload(ctx context.Context, name string, body io.Reader) (string, error) {
	key := u.prefix + name
	out, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return "", fmt.Errorf("uploading s3://%s/%s: %w", u.bucket, key, err)
	}
	if out.Location != "" {
		return out.Location, nil
	}
	return fmt.Sprintf("s3://%s/%s", u.bucket, key), nil
}
