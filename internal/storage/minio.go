// Package storage resolves detection snapshot references into links that
// notification recipients can open.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/gudangguard/sentinel/internal/conf"
	"github.com/gudangguard/sentinel/internal/errors"
)

const defaultURLExpiry = 24 * time.Hour

// MinIO presigns GET links for snapshots stored in one bucket.
type MinIO struct {
	mc     *minio.Client
	bucket string
	expiry time.Duration
}

// NewMinIO creates a presigner. With a region configured no request is
// made to the server until a link is opened.
func NewMinIO(settings conf.MinIOSettings) (*MinIO, error) {
	if settings.Endpoint == "" || settings.Bucket == "" {
		return nil, errors.Newf("minio endpoint and bucket are required").
			Component("storage").
			Category(errors.CategoryConfiguration).
			Build()
	}
	mc, err := minio.New(settings.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(settings.AccessKey, settings.SecretKey, ""),
		Secure: settings.UseTLS,
		Region: settings.Region,
	})
	if err != nil {
		return nil, errors.New(fmt.Errorf("create minio client: %w", err)).
			Component("storage").
			Category(errors.CategoryConfiguration).
			Build()
	}
	expiry := settings.URLExpiry.Std()
	if expiry <= 0 {
		expiry = defaultURLExpiry
	}
	return &MinIO{mc: mc, bucket: settings.Bucket, expiry: expiry}, nil
}

// ResolveImageURL returns a presigned link for ref. Absolute http(s) links
// are returned unchanged; s3://<bucket>/ prefixes are stripped.
func (m *MinIO) ResolveImageURL(ctx context.Context, ref string) (string, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}
	object := objectName(m.bucket, ref)
	if object == "" {
		return "", errors.Newf("empty image reference").
			Component("storage").
			Category(errors.CategoryValidation).
			Build()
	}

	u, err := m.mc.PresignedGetObject(ctx, m.bucket, object, m.expiry, nil)
	if err != nil {
		return "", errors.New(fmt.Errorf("presign %s: %w", object, err)).
			Component("storage").
			Category(errors.CategoryNetwork).
			Context("bucket", m.bucket).
			Build()
	}
	return u.String(), nil
}

func objectName(bucket, ref string) string {
	ref = strings.TrimPrefix(ref, "s3://")
	ref = strings.TrimPrefix(ref, bucket+"/")
	return strings.TrimLeft(ref, "/")
}
