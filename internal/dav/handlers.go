package dav

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"davgate/internal/store"
	"davgate/internal/ui"
)

// requestKey extracts the normalized object key from the request path: the
// percent-decoded path with no leading or trailing separator. The root
// collection maps to the empty key.
func requestKey(r *http.Request) string {
	return strings.Trim(r.PathValue("key"), "/")
}

// collectionPrefix maps a key to the listing prefix of the collection it
// names; the root collection maps to the empty prefix.
func collectionPrefix(key string) string {
	if key == "" {
		return ""
	}
	return key + "/"
}

// handleOptions advertises the WebDAV compliance classes and the supported
// methods.
func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("DAV", "1, 2")
	w.Header().Set("MS-Author-Via", "DAV")
	w.Header().Set("Allow", strings.Join(supportedMethods, ", "))
	w.WriteHeader(http.StatusOK)
}

// handleGet implements GET and HEAD for both resources and collections. An
// exact key hit serves the object (optionally a byte range); a miss with
// descendants serves a browsable HTML listing; anything else is a 404.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := requestKey(r)

	if key != "" {
		info, err := s.cfg.Store.Stat(ctx, key)
		if err == nil {
			s.serveObject(w, r, info)
			return
		}
		if !errors.Is(err, store.ErrNotExist) {
			slog.Error("Stat object", "key", key, "err", err)
			writeStoreError(w, err)
			return
		}
	}

	listing, err := s.cfg.Store.List(ctx, collectionPrefix(key), "/")
	if err != nil {
		slog.Error("List collection", "key", key, "err", err)
		writeStoreError(w, err)
		return
	}

	if key != "" && len(listing.Objects) == 0 && len(listing.CommonPrefixes) == 0 {
		writeError(w, http.StatusNotFound, "not found: /%s", key)
		return
	}

	s.serveListing(w, r, key, listing)
}

// serveObject writes the object's headers and payload, honoring a Range
// header via the store's native ranged read so partial content is never
// buffered in full.
func (s *Server) serveObject(w http.ResponseWriter, r *http.Request, info *store.ObjectInfo) {
	ctx := r.Context()
	head := r.Method == http.MethodHead

	contentType := info.ContentType
	if contentType == "" {
		contentType = resolveContentType(info.Key)
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Last-Modified", info.LastModified.UTC().Format(http.TimeFormat))
	w.Header().Set("Accept-Ranges", "bytes")
	if info.ETag != "" {
		w.Header().Set("ETag", `"`+info.ETag+`"`)
	}

	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
		if start, end, ok := parseRange(rangeHeader, info.Size); ok {
			s.servePartialContent(w, r, info, start, end, head)
			return
		}
		// A malformed Range header degrades to full-content delivery.
	}

	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	if head {
		w.WriteHeader(http.StatusOK)
		return
	}

	obj, err := s.cfg.Store.Get(ctx, info.Key)
	if err != nil {
		slog.Error("Read object payload", "key", info.Key, "err", err)
		writeStoreError(w, err)
		return
	}
	defer obj.Body.Close()

	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj.Body); err != nil {
		slog.Error("Stream object", "key", info.Key, "err", err)
	}
}

// servePartialContent delivers the inclusive byte interval [start, end] of
// an object as a 206 response.
func (s *Server) servePartialContent(w http.ResponseWriter, r *http.Request, info *store.ObjectInfo, start int64, end int64, head bool) {
	length := end - start + 1
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, info.Size))

	if head {
		w.WriteHeader(http.StatusPartialContent)
		return
	}

	obj, err := s.cfg.Store.GetRange(r.Context(), info.Key, start, end)
	if err != nil {
		slog.Error("Read object range", "key", info.Key, "start", start, "end", end, "err", err)
		writeStoreError(w, err)
		return
	}
	defer obj.Body.Close()

	w.WriteHeader(http.StatusPartialContent)
	if _, err := io.Copy(w, obj.Body); err != nil {
		slog.Error("Stream object range", "key", info.Key, "err", err)
	}
}

// serveListing renders the browsable HTML page for a collection, for plain
// browser clients that speak GET rather than PROPFIND.
func (s *Server) serveListing(w http.ResponseWriter, r *http.Request, key string, listing *store.Listing) {
	prefix := collectionPrefix(key)
	entries := collectionEntries(prefix, listing)

	rows := make([]ui.Entry, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, ui.Entry{
			Name:         entry.Name,
			Href:         hrefPath(entry.Key),
			IsDir:        entry.IsDir,
			Size:         entry.Size,
			LastModified: formatListingTime(entry.ModTime),
		})
	}

	parentHref := ""
	if key != "" {
		parent := ""
		if idx := strings.LastIndex(key, "/"); idx != -1 {
			parent = key[:idx] + "/"
		}
		parentHref = hrefPath(parent)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := ui.ListingPage("/"+prefix, parentHref, rows).Render(r.Context(), w); err != nil {
		slog.Error("Render collection listing", "key", key, "err", err)
	}
}

func formatListingTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}

// handlePut stores the request body under the exact key. The declared
// Content-Length is checked against the upload cap before the body is read.
func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := requestKey(r)

	if key == "" {
		w.Header().Set("Allow", strings.Join(supportedMethods, ", "))
		writeError(w, http.StatusMethodNotAllowed, "cannot PUT to the root collection")
		return
	}

	if r.ContentLength > s.cfg.MaxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			"payload of %d bytes exceeds the %d byte limit", r.ContentLength, s.cfg.MaxUploadBytes)
		return
	}

	defer r.Body.Close()

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = resolveContentType(key)
	}

	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	info, err := s.cfg.Store.Put(ctx, key, body, r.ContentLength, store.PutOptions{ContentType: contentType})
	if err != nil {
		slog.Error("Store object", "key", key, "err", err)
		writeStoreError(w, err)
		return
	}

	if info.ETag != "" {
		w.Header().Set("ETag", `"`+info.ETag+`"`)
	}
	w.Header().Set("Location", hrefPath(key))
	w.WriteHeader(http.StatusCreated)
}

// handleDelete removes a single object, or every object beneath a
// collection prefix. Collection deletion is sequential and not atomic; a
// failure partway is reported, not rolled back.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := requestKey(r)

	if key == "" {
		w.Header().Set("Allow", strings.Join(supportedMethods, ", "))
		writeError(w, http.StatusMethodNotAllowed, "cannot DELETE the root collection")
		return
	}

	err := s.cfg.Store.Delete(ctx, key)
	if err == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if !errors.Is(err, store.ErrNotExist) {
		slog.Error("Delete object", "key", key, "err", err)
		writeStoreError(w, err)
		return
	}

	// No object at the exact key; treat it as a collection and delete every
	// descendant, including the collection's own marker.
	listing, err := s.cfg.Store.List(ctx, key+"/", "")
	if err != nil {
		slog.Error("List collection for delete", "key", key, "err", err)
		writeStoreError(w, err)
		return
	}

	if len(listing.Objects) == 0 {
		writeError(w, http.StatusNotFound, "not found: /%s", key)
		return
	}

	removed := 0
	for _, obj := range listing.Objects {
		if err := s.cfg.Store.Delete(ctx, obj.Key); err != nil && !errors.Is(err, store.ErrNotExist) {
			slog.Error("Delete collection member", "key", obj.Key, "removed", removed, "err", err)
			writeError(w, http.StatusInternalServerError,
				"removed %d of %d objects before failure: %v", removed, len(listing.Objects), err)
			return
		}
		removed++
	}

	w.WriteHeader(http.StatusOK)
}

// handlePropfind assembles the 207 multistatus document for the target.
// Depth 0 yields the self entry alone, the default depth of 1 adds the
// immediate members, and infinite depth is rejected outright.
func (s *Server) handlePropfind(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := requestKey(r)

	depth := r.Header.Get("Depth")
	if strings.EqualFold(depth, "infinity") {
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, xml.Header)
		if err := xml.NewEncoder(w).Encode(davError{XMLNS: davXMLNamespace, FiniteDepth: &struct{}{}}); err != nil {
			slog.Error("Encode finite-depth error XML", "err", err)
		}
		return
	}

	// A PROPFIND aimed at a plain resource describes just that file.
	if key != "" {
		if info, err := s.cfg.Store.Stat(ctx, key); err == nil {
			contentType := info.ContentType
			if contentType == "" {
				contentType = resolveContentType(info.Key)
			}
			writeMultistatus(w, &Multistatus{
				XMLNS: davXMLNamespace,
				Responses: []Response{fileResponse(Entry{
					Key:         info.Key,
					Name:        displayName(info.Key),
					Size:        info.Size,
					ETag:        info.ETag,
					ContentType: contentType,
					ModTime:     info.LastModified,
				})},
			})
			return
		} else if !errors.Is(err, store.ErrNotExist) {
			slog.Error("Stat PROPFIND target", "key", key, "err", err)
			writeStoreError(w, err)
			return
		}
	}

	prefix := collectionPrefix(key)

	// The collection's own marker, when present, supplies its timestamps.
	selfModified := time.Now().UTC()
	if key != "" {
		if info, err := s.cfg.Store.Stat(ctx, prefix); err == nil {
			selfModified = info.LastModified
		}
	}

	var entries []Entry
	if depth != "0" {
		listing, err := s.cfg.Store.List(ctx, prefix, "/")
		if err != nil {
			slog.Error("List collection for PROPFIND", "key", key, "err", err)
			writeStoreError(w, err)
			return
		}
		entries = collectionEntries(prefix, listing)
	}

	writeMultistatus(w, buildMultistatus(prefix, selfModified, entries))
}

func writeMultistatus(w http.ResponseWriter, ms *Multistatus) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMultiStatus)
	_, _ = io.WriteString(w, xml.Header)
	if err := xml.NewEncoder(w).Encode(ms); err != nil {
		slog.Error("Encode multistatus XML", "err", err)
	}
}

// handleMkcol creates an explicit empty collection by storing a zero-length
// marker object whose key ends in the separator.
func (s *Server) handleMkcol(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := requestKey(r)

	if key == "" {
		w.Header().Set("Allow", strings.Join(supportedMethods, ", "))
		writeError(w, http.StatusMethodNotAllowed, "the root collection already exists")
		return
	}

	if r.ContentLength > 0 {
		writeError(w, http.StatusUnsupportedMediaType, "MKCOL request bodies are not supported")
		return
	}

	for _, existing := range []string{key + "/", key} {
		_, err := s.cfg.Store.Stat(ctx, existing)
		if err == nil {
			w.Header().Set("Allow", strings.Join(supportedMethods, ", "))
			writeError(w, http.StatusMethodNotAllowed, "already exists: /%s", existing)
			return
		}
		if !errors.Is(err, store.ErrNotExist) {
			slog.Error("Stat MKCOL target", "key", existing, "err", err)
			writeStoreError(w, err)
			return
		}
	}

	if _, err := s.cfg.Store.Put(ctx, key+"/", strings.NewReader(""), 0, store.PutOptions{ContentType: DirectoryContentType}); err != nil {
		slog.Error("Store collection marker", "key", key, "err", err)
		writeStoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
}
