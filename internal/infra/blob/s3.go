package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"go.uber.org/zap"
)

type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string
	MaxBytes int64
}

// S3Store uploads blobs to a single bucket.
type S3Store struct {
	bucket   string
	maxBytes int64
	uploader s3manageriface.UploaderAPI
	logger   *zap.Logger
}

// NewS3Store builds a session from the default credential chain. A non-empty
// Endpoint targets an S3-compatible service with path-style addressing.
func NewS3Store(cfg S3Config, logger *zap.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("S3_BUCKET is required for the s3 blob backend")
	}
	awsConfig := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	return NewS3StoreWithUploader(cfg, s3manager.NewUploader(sess), logger), nil
}

func NewS3StoreWithUploader(cfg S3Config, uploader s3manageriface.UploaderAPI, logger *zap.Logger) *S3Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Store{
		bucket:   cfg.Bucket,
		maxBytes: cfg.MaxBytes,
		uploader: uploader,
		logger:   logger.With(zap.String("component", "blob.s3")),
	}
}

func (s *S3Store) Put(ctx context.Context, key string, contentType string, body io.Reader) (string, error) {
	var buf bytes.Buffer
	if _, err := copyLimited(&buf, body, s.maxBytes); err != nil {
		return "", err
	}
	input := &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(buf.Bytes()),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	out, err := s.uploader.UploadWithContext(ctx, input)
	if err != nil {
		return "", err
	}
	s.logger.Debug("blob uploaded",
		zap.String("key", key),
		zap.Int("bytes", buf.Len()),
		zap.String("location", out.Location),
	)
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
