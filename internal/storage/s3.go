package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/true85/radio/internal/timeshift"
)

// Config holds S3 client configuration for the segment archive.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
}

// S3SegmentStore archives segments in an S3 bucket. Object LastModified is
// the inventory upload timestamp; ETags come from S3 itself.
type S3SegmentStore struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	log      *slog.Logger
}

var _ timeshift.SegmentStore = (*S3SegmentStore)(nil)

// NewS3SegmentStore creates the store. Explicit credentials take precedence;
// without them the default AWS credential chain applies.
func NewS3SegmentStore(ctx context.Context, cfg Config, log *slog.Logger) (*S3SegmentStore, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)))
	} else if log != nil {
		log.Warn("S3 client using default credential chain")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return &S3SegmentStore{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		log:      log,
	}, nil
}

// Put implements timeshift.SegmentStore.Put.
func (s *S3SegmentStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Get implements timeshift.SegmentStore.Get.
func (s *S3SegmentStore) Get(ctx context.Context, key string) (timeshift.StoredObject, bool, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NoSuchKey
		if errors.As(err, &notFound) {
			return timeshift.StoredObject{}, false, nil
		}
		return timeshift.StoredObject{}, false, fmt.Errorf("get %s: %w", key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return timeshift.StoredObject{}, false, fmt.Errorf("read %s: %w", key, err)
	}
	return timeshift.StoredObject{
		Body:        body,
		ContentType: aws.ToString(out.ContentType),
		ETag:        aws.ToString(out.ETag),
	}, true, nil
}

// List implements timeshift.SegmentStore.List, walking every page under
// prefix.
func (s *S3SegmentStore) List(ctx context.Context, prefix string) ([]timeshift.SegmentRecord, error) {
	var records []timeshift.SegmentRecord
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			records = append(records, timeshift.SegmentRecord{
				Key:      aws.ToString(obj.Key),
				Uploaded: aws.ToTime(obj.LastModified),
			})
		}
	}
	return records, nil
}
