package dav

import (
	"path"
	"strings"
	"time"

	"davgate/internal/store"
)

// Entry is one immediate member of a collection, classified as either a file
// or a sub-collection. Collections exist in two flavors over a flat key
// space: explicit (a zero-length marker object whose key ends in the
// separator) and implicit (inferred from a common prefix in a delimited
// listing). Neither is stored as a first-class directory.
type Entry struct {
	// Key is the member's full object key. Collection keys end in the
	// separator.
	Key string
	// Name is the display name: the last path segment, without separator.
	Name        string
	IsDir       bool
	Size        int64
	ETag        string
	ContentType string
	ModTime     time.Time
}

// collectionEntries turns a one-level delimited listing under prefix into
// the collection's immediate members. The zero-length marker object standing
// for the collection itself is skipped; explicit markers and common prefixes
// that name the same sub-collection collapse into a single entry.
func collectionEntries(prefix string, listing *store.Listing) []Entry {
	entries := make([]Entry, 0, len(listing.Objects)+len(listing.CommonPrefixes))
	seen := make(map[string]struct{})

	for _, obj := range listing.Objects {
		rel := strings.TrimPrefix(obj.Key, prefix)
		if rel == "" {
			// The collection's own marker.
			continue
		}

		if strings.HasSuffix(obj.Key, "/") {
			// Explicit sub-collection marker.
			if _, ok := seen[obj.Key]; ok {
				continue
			}
			seen[obj.Key] = struct{}{}
			entries = append(entries, Entry{
				Key:         obj.Key,
				Name:        path.Base(strings.TrimSuffix(rel, "/")),
				IsDir:       true,
				ContentType: DirectoryContentType,
				ModTime:     obj.LastModified,
			})
			continue
		}

		contentType := obj.ContentType
		if contentType == "" {
			contentType = resolveContentType(obj.Key)
		}

		entries = append(entries, Entry{
			Key:         obj.Key,
			Name:        rel,
			Size:        obj.Size,
			ETag:        obj.ETag,
			ContentType: contentType,
			ModTime:     obj.LastModified,
		})
	}

	for _, cp := range listing.CommonPrefixes {
		if _, ok := seen[cp]; ok {
			continue
		}
		seen[cp] = struct{}{}
		entries = append(entries, Entry{
			Key:         cp,
			Name:        path.Base(strings.TrimSuffix(strings.TrimPrefix(cp, prefix), "/")),
			IsDir:       true,
			ContentType: DirectoryContentType,
		})
	}

	return entries
}
