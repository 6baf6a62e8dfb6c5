package filestore

import (
	"io"
	"os"
	"time"
)

// ObjectInfo is the metadata datchat needs to decide whether a cached copy is
// current.
type ObjectInfo struct {
	Key          string
	Size         int64 // -1 if unknown
	ETag         string
	LastModified time.Time
}

// Matches reports whether a local file is an up-to-date copy: same size and
// written no earlier than the object.
func (i *ObjectInfo) Matches(fi os.FileInfo) bool {
	if i == nil || fi == nil || i.Size < 0 {
		return false
	}
	return fi.Size() == i.Size && !fi.ModTime().Before(i.LastModified)
}

// Object is an open object body. Callers must Close it.
type Object interface {
	io.ReadCloser
	Info() *ObjectInfo
}
