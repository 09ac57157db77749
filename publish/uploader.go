package publish

import (
	"bytes"
	"context"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/teranos/metagnosis/am"
	"github.com/teranos/metagnosis/errors"
	"github.com/teranos/metagnosis/logger"
)

// Uploader stores a rendered digest file remotely.
type Uploader interface {
	Upload(ctx context.Context, f File) error
}

// S3Uploader writes digest files to an S3-compatible bucket.
type S3Uploader struct {
	client *minio.Client
	bucket string
	prefix string
	log    *zap.SugaredLogger
}

// NewS3Uploader creates the minio client. It does not contact the server.
func NewS3Uploader(cfg am.S3Config, log *zap.SugaredLogger) (*S3Uploader, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.NewFatalConfigError(errors.New("publish.s3.endpoint and publish.s3.bucket are required"))
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.NewFatalConfigError(errors.Wrap(err, "create s3 client"))
	}
	return &S3Uploader{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		log:    logger.OrGlobal(log).Named("s3"),
	}, nil
}

// Key returns the object key for a file name.
func (u *S3Uploader) Key(name string) string {
	if u.prefix == "" {
		return name
	}
	return path.Join(u.prefix, name)
}

// Upload puts f under the configured prefix.
func (u *S3Uploader) Upload(ctx context.Context, f File) error {
	key := u.Key(f.Name)
	info, err := u.client.PutObject(ctx, u.bucket, key, bytes.NewReader(f.Body), int64(len(f.Body)),
		minio.PutObjectOptions{ContentType: f.ContentType},
	)
	if err != nil {
		return errors.Wrapf(err, "upload s3://%s/%s", u.bucket, key)
	}
	u.log.Debugw("Uploaded digest file",
		logger.FieldPath, key,
		logger.FieldSize, info.Size,
	)
	return nil
}

// HealthCheck verifies the bucket exists.
func (u *S3Uploader) HealthCheck(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return errors.Wrapf(err, "check bucket %s", u.bucket)
	}
	if !exists {
		return errors.NewNotFoundError("bucket %s", u.bucket)
	}
	return nil
}
