package dav

import (
	"errors"
	"fmt"
	"net/http"

	"davgate/internal/auth"
	"davgate/internal/store"
)

// DefaultMaxUploadBytes caps PUT payloads at 100 MiB. This is a platform
// execution constraint, not a domain one; it is enforced against the
// declared Content-Length before the body is read.
const DefaultMaxUploadBytes = 100 << 20

// Config holds configuration for the WebDAV gateway server.
type Config struct {
	// Store is the flat object store the gateway translates onto.
	Store store.Store
	// Authenticator guards every request when non-nil. A nil engine
	// disables authentication.
	Authenticator auth.AuthEngine
	// Realm is the basic-auth realm announced on 401 responses.
	Realm string
	// MaxUploadBytes caps the declared Content-Length of PUT requests.
	MaxUploadBytes int64
	// AllowedOrigins configures CORS for browser-based clients.
	AllowedOrigins []string
}

// Server translates WebDAV/HTTP semantics onto a flat key-value object
// store: directories are simulated over prefixes, Range requests are mapped
// to ranged reads, and PROPFIND listings are assembled from prefix queries.
// No state is kept between requests.
type Server struct {
	cfg Config
}

// NewServer returns a new Server for the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("Store must not be empty")
	}

	if cfg.Realm == "" {
		cfg.Realm = "davgate"
	}

	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}

	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	return &Server{cfg: cfg}, nil
}

// writeError writes a plain-text error response.
func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, format+"\n", args...)
}

// writeStoreError surfaces a backend failure as a 500 with the failure
// message in the body; nothing is retried at this layer.
func writeStoreError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "%v", err)
}
