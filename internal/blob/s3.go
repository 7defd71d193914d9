package blob

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"linerelay/internal/domain"
)

// S3API is the subset of the S3 client the store needs.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store writes blobs to an S3-compatible bucket.
type S3Store struct {
	client     S3API
	bucket     string
	publicBase string
	logger     *slog.Logger
}

type S3Config struct {
	Bucket        string
	Endpoint      string // non-empty enables path-style addressing (MinIO and similar)
	PublicBaseURL string // defaults to https://{bucket}.s3.amazonaws.com
	Logger        *slog.Logger
}

func NewS3Store(awsCfg aws.Config, cfg S3Config) *S3Store {
	var opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	return NewS3StoreWithClient(s3.NewFromConfig(awsCfg, opts...), cfg)
}

func NewS3StoreWithClient(client S3API, cfg S3Config) *S3Store {
	base := cfg.PublicBaseURL
	if base == "" {
		base = DefaultPublicBaseURL(cfg.Bucket)
	}
	return &S3Store{client: client, bucket: cfg.Bucket, publicBase: base, logger: cfg.Logger}
}

func (s *S3Store) Bucket() string { return s.bucket }

// Put uploads data under name, replacing any existing object.
func (s *S3Store) Put(ctx context.Context, name string, data []byte, contentType string) (domain.BlobRef, error) {
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return domain.BlobRef{}, fmt.Errorf("s3 put object: %w", err)
	}

	ref := domain.BlobRef{Bucket: s.bucket, Key: name, Locator: Locator(s.publicBase, name)}
	s.logger.Debug("blob stored", "bucket", s.bucket, "key", name, "bytes", len(data))
	return ref, nil
}
