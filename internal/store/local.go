package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Local is a Store implementation backed by the local filesystem for object
// payloads and SQLite for metadata. Payloads are content-addressed by their
// SHA-256 hexadecimal hash, with the first two characters used as a
// subdirectory prefix, so identical payloads stored under different keys
// share a single file.
type Local struct {
	dataDir string
	db      *sql.DB
}

// NewLocal initializes the metadata database under dataDir and returns a new
// Local store.
func NewLocal(dataDir string) (*Local, error) {
	if dataDir == "" {
		return nil, errors.New("dataDir must not be empty")
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dataDir, "metadata.sqlite"))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Local{dataDir: dataDir, db: db}, nil
}

// Close closes the metadata database.
func (s *Local) Close() error {
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS objects (
			key TEXT PRIMARY KEY,
			hash TEXT NOT NULL,
			size INTEGER NOT NULL,
			content_type TEXT,
			created_at TIMESTAMP NOT NULL,
			modified_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_objects_hash ON objects(hash);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// payloadPath computes the content-addressed filesystem path for hashHex.
func (s *Local) payloadPath(hashHex string) (string, error) {
	if len(hashHex) < 2 {
		return "", fmt.Errorf("invalid hash length: %d", len(hashHex))
	}
	return filepath.Join(s.dataDir, "payloads", hashHex[:2], hashHex), nil
}

// movePayload moves tempPath into place at destPath, falling back to a copy
// when the rename crosses a filesystem boundary.
func movePayload(tempPath string, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}

	err := os.Rename(tempPath, destPath)
	if err == nil {
		return nil
	}

	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || linkErr.Err != syscall.EXDEV {
		return err
	}

	src, err := os.Open(tempPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dest, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer dest.Close()

	if _, err := dest.ReadFrom(src); err != nil {
		return err
	}

	if rmErr := os.Remove(tempPath); rmErr != nil && !os.IsNotExist(rmErr) {
		return rmErr
	}
	return nil
}

func (s *Local) lookup(ctx context.Context, key string) (hashHex string, info *ObjectInfo, err error) {
	var (
		size        int64
		contentType sql.NullString
		modifiedAt  time.Time
	)

	err = s.db.QueryRowContext(ctx,
		`SELECT hash, size, content_type, modified_at FROM objects WHERE key = ?`,
		key,
	).Scan(&hashHex, &size, &contentType, &modifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, ErrNotExist
	}
	if err != nil {
		return "", nil, fmt.Errorf("lookup object metadata: %w", err)
	}

	info = &ObjectInfo{
		Key:          key,
		Size:         size,
		ETag:         hashHex,
		LastModified: modifiedAt.UTC(),
	}
	if contentType.Valid {
		info.ContentType = contentType.String
	}
	return hashHex, info, nil
}

func (s *Local) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	_, info, err := s.lookup(ctx, key)
	return info, err
}

func (s *Local) Get(ctx context.Context, key string) (*Object, error) {
	hashHex, info, err := s.lookup(ctx, key)
	if err != nil {
		return nil, err
	}

	objPath, err := s.payloadPath(hashHex)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(objPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("object payload missing for key %q", key)
		}
		return nil, fmt.Errorf("open object payload: %w", err)
	}

	return &Object{ObjectInfo: *info, Body: f}, nil
}

func (s *Local) GetRange(ctx context.Context, key string, start int64, end int64) (*Object, error) {
	hashHex, info, err := s.lookup(ctx, key)
	if err != nil {
		return nil, err
	}

	if start < 0 || end < start || end >= info.Size {
		return nil, fmt.Errorf("range [%d, %d] out of bounds for object of size %d", start, end, info.Size)
	}

	objPath, err := s.payloadPath(hashHex)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(objPath)
	if err != nil {
		return nil, fmt.Errorf("open object payload: %w", err)
	}

	if _, err := f.Seek(start, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("seek object payload: %w", err)
	}

	length := end - start + 1
	ranged := *info
	ranged.Size = length

	return &Object{
		ObjectInfo: ranged,
		Body:       &limitedFile{Reader: io.LimitReader(f, length), f: f},
	}, nil
}

// limitedFile is a ReadCloser over a length-limited window of an open file.
type limitedFile struct {
	io.Reader
	f *os.File
}

func (l *limitedFile) Close() error {
	return l.f.Close()
}

func (s *Local) Put(ctx context.Context, key string, r io.Reader, size int64, opts PutOptions) (*ObjectInfo, error) {
	tmpDir := filepath.Join(s.dataDir, "uploads")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	tempFile, err := os.CreateTemp(tmpDir, "upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp upload file: %w", err)
	}
	defer func() {
		_ = tempFile.Close()

		// Best-effort cleanup; if the payload was moved into place via
		// rename, this fails with ENOENT.
		_ = os.Remove(tempFile.Name())
	}()

	// Stream the payload to disk while hashing it in a single pass.
	h := sha256.New()
	written, err := io.Copy(tempFile, io.TeeReader(r, h))
	if err != nil {
		return nil, fmt.Errorf("write payload: %w", err)
	}
	if size >= 0 && written != size {
		return nil, fmt.Errorf("short payload: expected %d bytes, got %d", size, written)
	}

	hashHex := hex.EncodeToString(h.Sum(nil))

	objPath, err := s.payloadPath(hashHex)
	if err != nil {
		return nil, err
	}

	// An identical payload may already be in place under another key.
	if _, statErr := os.Stat(objPath); statErr != nil {
		if err := tempFile.Sync(); err != nil {
			return nil, fmt.Errorf("sync payload: %w", err)
		}
		if err := movePayload(tempFile.Name(), objPath); err != nil {
			return nil, fmt.Errorf("store payload: %w", err)
		}
	}

	now := time.Now().UTC()
	contentType := sql.NullString{String: opts.ContentType, Valid: opts.ContentType != ""}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO objects(key, hash, size, content_type, created_at, modified_at)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		 	hash=excluded.hash,
		 	size=excluded.size,
		 	content_type=excluded.content_type,
		 	modified_at=excluded.modified_at`,
		key, hashHex, written, contentType, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert object metadata: %w", err)
	}

	return &ObjectInfo{
		Key:          key,
		Size:         written,
		ETag:         hashHex,
		ContentType:  opts.ContentType,
		LastModified: now,
	}, nil
}

func (s *Local) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM objects WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete object metadata: %w", err)
	}

	// Note: unreferenced payload files are intentionally not garbage
	// collected here. That can be added later based on hash reference counts.
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return ErrNotExist
	}
	return nil
}

func (s *Local) List(ctx context.Context, prefix string, delimiter string) (*Listing, error) {
	args := []any{}
	query := `SELECT key, hash, size, content_type, modified_at FROM objects`
	if prefix != "" {
		query += ` WHERE key LIKE ? ESCAPE '\'`
		args = append(args, likePattern(prefix))
	}
	query += ` ORDER BY key`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	defer rows.Close()

	listing := &Listing{}
	seenPrefixes := make(map[string]struct{})

	for rows.Next() {
		var (
			key         string
			hashHex     string
			size        int64
			contentType sql.NullString
			modifiedAt  time.Time
		)
		if err := rows.Scan(&key, &hashHex, &size, &contentType, &modifiedAt); err != nil {
			return nil, fmt.Errorf("scan object row: %w", err)
		}

		info := ObjectInfo{
			Key:          key,
			Size:         size,
			ETag:         hashHex,
			LastModified: modifiedAt.UTC(),
		}
		if contentType.Valid {
			info.ContentType = contentType.String
		}

		// With no delimiter, return a flat recursive listing.
		if delimiter == "" {
			listing.Objects = append(listing.Objects, info)
			continue
		}

		// Delimited listing: keys with a further delimiter past the prefix
		// collapse into one CommonPrefix per first segment.
		rel := strings.TrimPrefix(key, prefix)
		idx := strings.Index(rel, delimiter)
		if idx == -1 {
			listing.Objects = append(listing.Objects, info)
			continue
		}

		cp := prefix + rel[:idx+1]
		if _, ok := seenPrefixes[cp]; ok {
			continue
		}
		seenPrefixes[cp] = struct{}{}
		listing.CommonPrefixes = append(listing.CommonPrefixes, cp)
	}

	return listing, rows.Err()
}

// likePattern escapes SQL LIKE wildcards in prefix so that keys containing
// `%` or `_` match literally.
func likePattern(prefix string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(prefix) + "%"
}
