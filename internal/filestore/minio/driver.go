// Package minio reads schema text and SQLite files from a MinIO (or any
// S3-compatible) server.
package minio

import (
	"context"
	"io"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/koustreak/datchat/internal/errs"
	"github.com/koustreak/datchat/internal/filestore"
)

// Driver implements filestore.Store. An empty bucket argument on any call
// falls back to the configured default bucket.
type Driver struct {
	client *miniogo.Client
	bucket string
}

// New builds the client and pings the server so that bad credentials fail at
// startup rather than on the first question.
func New(ctx context.Context, cfg *filestore.Config) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	client, err := miniogo.New(cfg.Endpoint, opts)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to create minio client", err)
	}

	d := &Driver{client: client, bucket: cfg.DefaultBucket}

	if err := d.Ping(ctx); err != nil {
		return nil, err
	}

	return d, nil
}

// Ping checks the default bucket exists, or lists buckets when there is none.
func (d *Driver) Ping(ctx context.Context) error {
	if d.bucket != "" {
		ok, err := d.client.BucketExists(ctx, d.bucket)
		if err != nil {
			return mapError(err, "ping failed")
		}
		if !ok {
			return errs.Newf(errs.ErrKindNotFound, "bucket %q does not exist", d.bucket)
		}
		return nil
	}
	if _, err := d.client.ListBuckets(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close implements filestore.Store. The SDK client holds nothing to release.
func (d *Driver) Close() error {
	return nil
}

// GetObject implements filestore.Store.
func (d *Driver) GetObject(ctx context.Context, bucket, key string) (filestore.Object, error) {
	obj, err := d.client.GetObject(ctx, d.bucketOr(bucket), key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, mapError(err, "failed to get object")
	}

	// GetObject is lazy; Stat surfaces NoSuchKey before any read.
	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, mapError(err, "failed to stat object after get")
	}

	return &object{ReadCloser: obj, info: infoFrom(stat)}, nil
}

// StatObject implements filestore.Store.
func (d *Driver) StatObject(ctx context.Context, bucket, key string) (*filestore.ObjectInfo, error) {
	stat, err := d.client.StatObject(ctx, d.bucketOr(bucket), key, miniogo.StatObjectOptions{})
	if err != nil {
		return nil, mapError(err, "failed to stat object")
	}

	return infoFrom(stat), nil
}

func infoFrom(stat miniogo.ObjectInfo) *filestore.ObjectInfo {
	return &filestore.ObjectInfo{
		Key:          stat.Key,
		Size:         stat.Size,
		ETag:         strings.Trim(stat.ETag, `"`),
		LastModified: stat.LastModified,
	}
}

func (d *Driver) bucketOr(bucket string) string {
	if bucket == "" {
		return d.bucket
	}
	return bucket
}

type object struct {
	io.ReadCloser
	info *filestore.ObjectInfo
}

func (o *object) Info() *filestore.ObjectInfo {
	return o.info
}
