package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"tabscribe/internal/logging"
)

var log = logging.L("export")

// ErrUploadDisabled is returned when no bucket is configured.
var ErrUploadDisabled = errors.New("export: s3 upload is not configured")

// S3Options configures the export bucket. Without an access key the default
// AWS credential chain is used (environment, shared config, instance role).
type S3Options struct {
	Bucket          string
	Region          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// S3Uploader stores rendered exports in an S3 bucket.
type S3Uploader struct {
	Bucket string
	Region string
	Prefix string

	uploader *manager.Uploader
}

// NewS3Uploader builds an uploader from opts.
func NewS3Uploader(ctx context.Context, opts S3Options) (*S3Uploader, error) {
	if opts.Bucket == "" || opts.Region == "" {
		return nil, errors.New("s3 bucket and region are required")
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, opts.SessionToken),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return newS3Uploader(s3.NewFromConfig(cfg), opts), nil
}

func newS3Uploader(client manager.UploadAPIClient, opts S3Options) *S3Uploader {
	if opts.Prefix == "" {
		opts.Prefix = "exports"
	}
	return &S3Uploader{
		Bucket:   opts.Bucket,
		Region:   opts.Region,
		Prefix:   opts.Prefix,
		uploader: manager.NewUploader(client),
	}
}

// Key returns the object key for a record export.
func (u *S3Uploader) Key(recordID string, doc *Document) string {
	return path.Join(u.Prefix, recordID+doc.Extension)
}

// Upload puts doc under the record's key and returns the s3:// location.
func (u *S3Uploader) Upload(ctx context.Context, recordID string, doc *Document) (string, error) {
	if u == nil || u.uploader == nil {
		return "", ErrUploadDisabled
	}
	key := u.Key(recordID, doc)

	start := time.Now()
	_, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(doc.Body),
		ContentType: aws.String(doc.ContentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload export to s3://%s/%s: %w", u.Bucket, key, err)
	}
	log.WithFields(logrus.Fields{
		logging.KeyRecordID:   recordID,
		"key":                 key,
		"bytes":               len(doc.Body),
		logging.KeyDurationMs: time.Since(start).Milliseconds(),
	}).Info("export uploaded")
	return fmt.Sprintf("s3://%s/%s", u.Bucket, key), nil
}
