package export

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	s3aws "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff/v4"

	perrors "github.com/conneroisu/postcard/internal/errors"
	"github.com/conneroisu/postcard/internal/logging"
)

// S3Client defines the S3 operations used by the uploader.
type S3Client interface {
	PutObject(ctx context.Context, params *s3aws.PutObjectInput, optFns ...func(*s3aws.Options)) (*s3aws.PutObjectOutput, error)
}

// S3Config configures an upload target.
type S3Config struct {
	Bucket string
	Prefix string
	Region string
	// Endpoint points at an S3-compatible service such as MinIO. Path-style
	// addressing is used whenever it is set.
	Endpoint    string
	AccessKeyID string
	SecretKey   string
}

// UploaderOption configures an Uploader.
type UploaderOption func(*Uploader)

// WithS3Client sets a pre-configured client.
func WithS3Client(client S3Client) UploaderOption {
	return func(u *Uploader) { u.client = client }
}

// WithBackOff sets the retry policy for each object.
func WithBackOff(newBackOff func() backoff.BackOff) UploaderOption {
	return func(u *Uploader) { u.newBackOff = newBackOff }
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) UploaderOption {
	return func(u *Uploader) { u.logger = logger.WithComponent("export.s3") }
}

// Uploader copies an export directory to an S3 bucket.
type Uploader struct {
	client     S3Client
	bucket     string
	prefix     string
	newBackOff func() backoff.BackOff
	logger     logging.Logger
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 30 * time.Second
	return backoff.WithMaxRetries(b, 4)
}

// NewS3Uploader creates an uploader. Without static credentials the default
// AWS credential chain is used.
func NewS3Uploader(ctx context.Context, cfg S3Config, opts ...UploaderOption) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, perrors.NewConfigError(perrors.ErrCodeConfigInvalid, "s3 bucket is required")
	}

	u := &Uploader{
		bucket:     cfg.Bucket,
		prefix:     strings.Trim(cfg.Prefix, "/"),
		newBackOff: defaultBackOff,
		logger:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(u)
	}

	if u.client == nil {
		var awsOptions []func(*config.LoadOptions) error
		if cfg.Region != "" {
			awsOptions = append(awsOptions, config.WithRegion(cfg.Region))
		}
		if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
			awsOptions = append(awsOptions, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
			))
		}

		awsConfig, err := config.LoadDefaultConfig(ctx, awsOptions...)
		if err != nil {
			return nil, perrors.NewConfigError(perrors.ErrCodeConfigInvalid, fmt.Sprintf("loading AWS config: %v", err))
		}

		u.client = s3aws.NewFromConfig(awsConfig, func(o *s3aws.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
				o.UsePathStyle = true
			}
		})
	}

	return u, nil
}

// Key returns the object key for a path relative to the export root.
func (u *Uploader) Key(rel string) string {
	return path.Join(u.prefix, filepath.ToSlash(rel))
}

// UploadDir uploads every regular file under dir and returns the keys written.
func (u *Uploader) UploadDir(ctx context.Context, dir string) ([]string, error) {
	var keys []string

	err := filepath.WalkDir(dir, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, file)
		if err != nil {
			return err
		}
		key := u.Key(rel)

		if err := u.put(ctx, file, key); err != nil {
			return err
		}
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return keys, err
	}

	u.logger.Info(ctx, "Export uploaded", "bucket", u.bucket, "prefix", u.prefix, "objects", len(keys))
	return keys, nil
}

func (u *Uploader) put(ctx context.Context, file, key string) error {
	contentType := mime.TypeByExtension(filepath.Ext(file))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	operation := func() error {
		body, err := os.Open(file)
		if err != nil {
			return backoff.Permanent(err)
		}
		defer body.Close()

		_, err = u.client.PutObject(ctx, &s3aws.PutObjectInput{
			Bucket:      aws.String(u.bucket),
			Key:         aws.String(key),
			Body:        body,
			ContentType: aws.String(contentType),
		})
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		u.logger.Debug(ctx, "Retrying upload", "key", key, "wait", wait.String(), "error", err.Error())
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(u.newBackOff(), ctx), notify); err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return perrors.NewIOError(perrors.ErrCodeFileRead, "reading export file", err).WithLocation(file, 0)
		}
		return perrors.NewTransportFault(perrors.ErrCodeUploadFailed, "uploading "+key, err)
	}
	return nil
}
