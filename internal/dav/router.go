package dav

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/cors"
)

// supportedMethods lists every verb the gateway implements, in the order
// reported by Allow headers.
var supportedMethods = []string{
	http.MethodOptions,
	http.MethodGet,
	http.MethodHead,
	http.MethodPut,
	http.MethodDelete,
	"PROPFIND",
	"MKCOL",
}

// ResponseWriterWrapper is a wrapper around the default http.ResponseWriter.
// It intercepts the WriteHeader call and saves the response status code.
type ResponseWriterWrapper struct {
	http.ResponseWriter
	WrittenResponseCode int
}

// WriteHeader intercepts the status code and stores it, then calls the original WriteHeader.
func (w *ResponseWriterWrapper) WriteHeader(statusCode int) {
	w.WrittenResponseCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Write calls the underlying ResponseWriter's Write method.
func (w *ResponseWriterWrapper) Write(b []byte) (int, error) {
	if w.WrittenResponseCode == 0 {
		w.WrittenResponseCode = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// LogRequest is middleware that logs incoming HTTP requests.
func LogRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		ip := r.RemoteAddr
		method := r.Method
		url := r.URL.String()
		proto := r.Proto

		start := time.Now()

		writer := ResponseWriterWrapper{ResponseWriter: w}

		next.ServeHTTP(&writer, r)
		elapsed := time.Since(start).Nanoseconds()

		userAttrs := slog.Group("user", "ip", ip)
		requestAttrs := slog.Group("request", "proto", proto, "method", method, "url", url, "duration_ms", float64(elapsed)/float64(time.Millisecond), "status_code", writer.WrittenResponseCode)

		switch {
		case writer.WrittenResponseCode >= 500:
			slog.Error("Request", userAttrs, requestAttrs)
		case writer.WrittenResponseCode >= 400:
			slog.Warn("Request", userAttrs, requestAttrs)
		default:
			slog.Info("Request", userAttrs, requestAttrs)
		}
	})
}

// RequireAuthentication is middleware that enforces the configured
// authentication gate before a request reaches the protocol core.
func (s *Server) RequireAuthentication(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Authenticator == nil {
			next.ServeHTTP(w, r)
			return
		}

		user, err := s.cfg.Authenticator.AuthenticateRequest(r.Context(), r)
		if err != nil {
			slog.Error("Authenticate request", "err", err)
			writeError(w, http.StatusInternalServerError, "authentication failure")
			return
		}

		if user == nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="`+s.cfg.Realm+`"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NormalizePath collapses duplicate separators, trims the trailing
// separator so resources and collections share one canonical path, and
// rejects traversal segments outright.
func NormalizePath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		for strings.Contains(p, "//") {
			p = strings.ReplaceAll(p, "//", "/")
		}

		if p != "/" {
			p = strings.TrimSuffix(p, "/")
		}

		for _, segment := range strings.Split(strings.TrimPrefix(p, "/"), "/") {
			if segment == ".." || segment == "." {
				writeError(w, http.StatusBadRequest, "invalid path")
				return
			}
		}

		r.URL.Path = p
		next.ServeHTTP(w, r)
	})
}

// Handler returns an http.Handler implementing the WebDAV surface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("OPTIONS /{key...}", s.handleOptions)
	mux.HandleFunc("GET /{key...}", s.handleGet)
	mux.HandleFunc("HEAD /{key...}", s.handleGet)
	mux.HandleFunc("PUT /{key...}", s.handlePut)
	mux.HandleFunc("DELETE /{key...}", s.handleDelete)
	mux.HandleFunc("PROPFIND /{key...}", s.handlePropfind)
	mux.HandleFunc("MKCOL /{key...}", s.handleMkcol)

	// CORS headers for browser-based clients; preflight requests are
	// answered here, plain WebDAV OPTIONS fall through to handleOptions.
	withCORS := cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: supportedMethods,
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"DAV", "ETag", "Content-Length", "Content-Range", "Accept-Ranges"},
		MaxAge:         300,
	})

	return LogRequest(withCORS(s.RequireAuthentication(NormalizePath(mux))))
}
