package blobstore

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"shivuk/internal/logging"
)

// Handler serves GET <base path>/<key> for stored blobs. Mount it at the
// path component of the configured base URL.
func (s *Store) Handler() http.Handler {
	basePath := "/"
	if parsed, err := url.Parse(s.baseURL); err == nil && parsed.Path != "" {
		basePath = strings.TrimRight(parsed.Path, "/") + "/"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !strings.HasPrefix(r.URL.Path, basePath) {
			http.NotFound(w, r)
			return
		}
		raw, mediaType, err := s.Get(strings.TrimPrefix(r.URL.Path, basePath))
		if errors.Is(err, ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			s.logger.Warn("blob read failed", logging.String("path", r.URL.Path), logging.Error(err))
			http.Error(w, "blob unavailable", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", mediaType)
		w.Header().Set("Content-Length", strconv.Itoa(len(raw)))
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(raw)
	})
}
