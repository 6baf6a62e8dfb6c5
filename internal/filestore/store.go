// Package filestore defines the read-only object storage interface datchat
// uses to fetch schema descriptions and SQLite database files.
//
// Callers depend only on this package, never on a specific provider package.
//
// Usage:
//
//	cfg := filestore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin")
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
//
//	text, err := filestore.ReadText(ctx, store, filestore.ObjectRef{Bucket: "schemas", Key: "chinook.sql"})
package filestore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/koustreak/datchat/internal/errs"
)

// MaxTextSize caps how much of an object ReadText will load.
const MaxTextSize = 4 << 20

// Store is the interface all file storage providers implement.
// It is scoped to read operations only.
type Store interface {
	// Ping verifies the storage backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any held resources (connections, goroutines, etc.).
	Close() error

	// GetObject opens a streaming handle to the object at key inside bucket.
	// The caller MUST call Object.Close() after reading.
	GetObject(ctx context.Context, bucket, key string) (Object, error)

	// StatObject returns metadata for the object at key inside bucket
	// without downloading its content.
	StatObject(ctx context.Context, bucket, key string) (*ObjectInfo, error)
}

// ReadText loads a whole object as a string. Objects larger than MaxTextSize
// are rejected.
func ReadText(ctx context.Context, store Store, ref ObjectRef) (string, error) {
	obj, err := store.GetObject(ctx, ref.Bucket, ref.Key)
	if err != nil {
		return "", err
	}
	defer obj.Close()

	if info := obj.Info(); info != nil && info.Size > MaxTextSize {
		return "", errs.Newf(errs.ErrKindInvalidInput, "object %s is %d bytes, limit is %d", ref, info.Size, MaxTextSize)
	}

	data, err := io.ReadAll(io.LimitReader(obj, MaxTextSize+1))
	if err != nil {
		return "", errs.Wrap(errs.ErrKindQueryFailed, fmt.Sprintf("failed to read object %s", ref), err)
	}
	if len(data) > MaxTextSize {
		return "", errs.Newf(errs.ErrKindInvalidInput, "object %s exceeds %d bytes", ref, MaxTextSize)
	}
	return string(data), nil
}

// Download copies an object to dest. An existing file that still matches the
// object is kept as is and Download reports false. The file is written next to dest and renamed into place so a
// reader never sees a partial copy.
func Download(ctx context.Context, store Store, ref ObjectRef, dest string) (bool, error) {
	info, err := store.StatObject(ctx, ref.Bucket, ref.Key)
	if err != nil {
		return false, err
	}
	if fi, err := os.Stat(dest); err == nil && info.Matches(fi) {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return false, errs.Wrap(errs.ErrKindPermissionDenied, "failed to create download directory", err)
	}

	obj, err := store.GetObject(ctx, ref.Bucket, ref.Key)
	if err != nil {
		return false, err
	}
	defer obj.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return false, errs.Wrap(errs.ErrKindPermissionDenied, "failed to create temporary file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, obj); err != nil {
		tmp.Close()
		return false, errs.Wrap(errs.ErrKindQueryFailed, fmt.Sprintf("failed to download object %s", ref), err)
	}
	if err := tmp.Close(); err != nil {
		return false, errs.Wrap(errs.ErrKindQueryFailed, "failed to flush downloaded file", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return false, errs.Wrap(errs.ErrKindPermissionDenied, "failed to move downloaded file into place", err)
	}
	return true, nil
}
