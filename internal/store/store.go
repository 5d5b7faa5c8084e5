package store

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotExist is returned by Get, GetRange, Stat, and Delete when no object
// is stored under the requested key.
var ErrNotExist = errors.New("object does not exist")

// ObjectInfo describes a stored object without its payload.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
}

// Object is an ObjectInfo together with its payload. The caller owns Body
// and must close it.
type Object struct {
	ObjectInfo
	Body io.ReadCloser
}

// Listing is the result of a prefix/delimiter query: the objects directly
// under the prefix plus one level of sub-prefixes.
type Listing struct {
	Objects        []ObjectInfo
	CommonPrefixes []string
}

// PutOptions carries optional metadata supplied with an upload.
type PutOptions struct {
	ContentType string
}

// Store is the flat key-value object store contract the gateway translates
// WebDAV semantics onto. Keys are `/`-separated strings with no leading
// separator; the store itself has no directory concept.
type Store interface {
	// Stat returns metadata for the object at key, or ErrNotExist.
	Stat(ctx context.Context, key string) (*ObjectInfo, error)

	// Get returns the object at key with its full payload, or ErrNotExist.
	Get(ctx context.Context, key string) (*Object, error)

	// GetRange returns the object's payload limited to the inclusive byte
	// interval [start, end]. The returned Size is the length of the range.
	GetRange(ctx context.Context, key string, start int64, end int64) (*Object, error)

	// Put stores size bytes read from r under key, replacing any previous
	// object. Last write wins.
	Put(ctx context.Context, key string, r io.Reader, size int64, opts PutOptions) (*ObjectInfo, error)

	// Delete removes the object at key, or returns ErrNotExist.
	Delete(ctx context.Context, key string) error

	// List returns the objects whose keys share prefix and contain no
	// further delimiter, plus the one-level common prefixes beneath it.
	// An empty delimiter yields a flat recursive listing.
	List(ctx context.Context, prefix string, delimiter string) (*Listing, error)
}
