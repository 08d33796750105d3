package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/gosimple/slug"

	appconfig "ottoseguridad_backend/pkg/config"
)

var ErrNotConfigured = errors.New("object storage is not configured")

// Store puts and removes public objects.
type Store interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, url string) error
}

// objectAPI is the subset of *s3.Client used here.
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// R2 stores objects in a Cloudflare R2 bucket through the S3 API.
type R2 struct {
	client    objectAPI
	bucket    string
	publicURL string
}

var Default Store = unconfigured{}

func NewR2(ctx context.Context, cfg appconfig.StorageConfig) (*R2, error) {
	if cfg.AccountID == "" || cfg.Bucket == "" {
		return nil, ErrNotConfigured
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID))
		o.UsePathStyle = true
	})

	return newR2(client, cfg.Bucket, cfg.PublicURL), nil
}

func newR2(client objectAPI, bucket, publicURL string) *R2 {
	return &R2{client: client, bucket: bucket, publicURL: strings.TrimRight(publicURL, "/")}
}

func (r *R2) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}

	if _, err := r.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("could not upload file to R2: %w", err)
	}

	return r.publicURL + "/" + key, nil
}

func (r *R2) Delete(ctx context.Context, url string) error {
	key := r.ObjectKey(url)
	if key == "" {
		return fmt.Errorf("url %q is not served from this bucket", url)
	}

	_, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("could not delete file from R2: %w", err)
	}
	return nil
}

// ObjectKey strips the public prefix from url. Foreign URLs give "".
func (r *R2) ObjectKey(url string) string {
	prefix := r.publicURL + "/"
	if !strings.HasPrefix(url, prefix) {
		return ""
	}
	return strings.TrimPrefix(url, prefix)
}

// Key builds an object key like "bulletins/2025-01-31/audio/1738-<uuid>.mp3".
// Folder segments are slugged so user input cannot escape the prefix.
func Key(ext string, folders ...string) string {
	parts := make([]string, 0, len(folders)+1)
	for _, f := range folders {
		if s := slug.Make(f); s != "" {
			parts = append(parts, s)
		}
	}
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	parts = append(parts, fmt.Sprintf("%d-%s%s", time.Now().UnixNano(), uuid.NewString(), ext))
	return path.Join(parts...)
}

type unconfigured struct{}

func (unconfigured) Upload(context.Context, string, io.Reader, int64, string) (string, error) {
	return "", ErrNotConfigured
}

func (unconfigured) Delete(context.Context, string) error {
	return ErrNotConfigured
}
