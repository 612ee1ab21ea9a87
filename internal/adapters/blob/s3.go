package blob

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	perr "mpak/internal/platform/errors"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3 stores objects in an S3-compatible bucket
type S3 struct {
	c      *minio.Client
	bucket string
}

// NewS3 builds the client; no request is made until first use
func NewS3(o Options) (*S3, error) {
	if o.Endpoint == "" || o.Bucket == "" {
		return nil, perr.Newf(perr.ErrorCodeUnknown, "blob: s3 endpoint and bucket are required")
	}
	c, err := minio.New(o.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(o.AccessKey, o.SecretKey, ""),
		Secure: o.UseSSL,
		Region: o.Region,
	})
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "blob: s3 client")
	}
	return &S3{c: c, bucket: o.Bucket}, nil
}

// Put uploads r; a known size lets the client stream without buffering whole parts of unknown length
func (s *S3) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.c.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "blob: put %s", key)
	}
	return nil
}

// Delete removes key; S3 treats a missing key as success
func (s *S3) Delete(ctx context.Context, key string) error {
	if err := s.c.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "blob: delete %s", key)
	}
	return nil
}

// Open streams key
func (s *S3) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	obj, err := s.c.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, perr.Wrapf(err, perr.ErrorCodeUnavailable, "blob: get %s", key)
	}
	st, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, 0, perr.ErrNotFound
		}
		return nil, 0, perr.Wrapf(err, perr.ErrorCodeUnavailable, "blob: stat %s", key)
	}
	return obj, st.Size, nil
}

// URL presigns a GET that downloads as filename
func (s *S3) URL(ctx context.Context, key, filename string, ttl time.Duration) (string, time.Time, error) {
	params := url.Values{}
	if filename != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	exp := time.Now().Add(ttl).UTC()
	u, err := s.c.PresignedGetObject(ctx, s.bucket, key, ttl, params)
	if err != nil {
		return "", time.Time{}, perr.Wrapf(err, perr.ErrorCodeUnavailable, "blob: presign %s", key)
	}
	return u.String(), exp, nil
}
