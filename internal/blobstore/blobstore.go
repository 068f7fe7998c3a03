// Package blobstore stores image bytes under slash-separated keys such as
// "projects/{projectId}/{uuid}-{name}".
//
// Three implementations share the Store interface: MemoryStore for tests,
// DirStore for local runs rooted at a directory, and S3Store for Lambda
// deployments. S3Store also implements Presigner so the API can hand out
// short-lived download URLs instead of streaming bytes itself.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// ErrNotFound is returned by Get and Move when the key does not exist.
var ErrNotFound = errors.New("blob not found")

// Store is a flat key/value store for binary objects.
type Store interface {
	// Put writes r under key, replacing any existing object. size may be -1
	// when unknown.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Get opens the object at key. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Move relocates an object. The source is gone on success.
	Move(ctx context.Context, from, to string) error

	// Remove deletes keys. Missing keys are not an error.
	Remove(ctx context.Context, keys []string) error
}

// Presigner issues time-limited GET URLs for stored objects.
type Presigner interface {
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// ImageKey returns the storage key for a newly ingested image.
func ImageKey(projectID, id, name string) string {
	return "projects/" + projectID + "/" + id + "-" + name
}

// ProjectPrefix returns the key prefix shared by every blob of a project.
func ProjectPrefix(projectID string) string {
	return "projects/" + projectID + "/"
}

// Sibling returns a key in the same directory as key with a new final segment.
func Sibling(key, name string) string {
	dir := path.Dir(key)
	if dir == "." {
		return name
	}
	return dir + "/" + name
}

// ValidateKey rejects keys that are empty, absolute or escape their root.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("invalid key: empty")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("invalid key %q", key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("invalid key %q", key)
		}
	}
	return nil
}
