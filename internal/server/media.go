package server

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"reelshelf/internal/auth"
	"reelshelf/internal/catalog"
	"reelshelf/internal/pathres"
	"reelshelf/internal/stream"
)

// requestSegments decodes the path after prefix one segment at a time, so an
// encoded slash stays inside its segment.
func requestSegments(r *http.Request, prefix string) ([]string, bool) {
	escaped := strings.TrimPrefix(r.URL.EscapedPath(), prefix)
	var out []string
	for _, part := range strings.Split(escaped, "/") {
		if part == "" {
			continue
		}
		seg, err := url.PathUnescape(part)
		if err != nil {
			return nil, false
		}
		if seg == "." {
			continue
		}
		out = append(out, seg)
	}
	return out, true
}

func (s *Server) handleMedia() http.HandlerFunc {
	root := s.deps.Catalog.Root()
	return func(w http.ResponseWriter, r *http.Request) {
		segments, ok := requestSegments(r, "/videos/")
		if !ok || !pathres.ValidateSegments(segments) {
			errorJSON(w, http.StatusForbidden, "access denied")
			return
		}
		if len(segments) == 0 {
			errorJSON(w, http.StatusNotFound, "file not found")
			return
		}
		full, err := pathres.Locate(root, segments)
		if err != nil {
			errorJSON(w, http.StatusNotFound, "file not found")
			return
		}
		if rel, err := filepath.Rel(root, full); err != nil || (catalog.IsAdult(rel) && !auth.ClaimsFromContext(r.Context()).IsAdmin()) {
			errorJSON(w, http.StatusForbidden, "forbidden")
			return
		}

		if !catalog.IsVideo(full) {
			s.serveAsset(w, r, full)
			return
		}

		err = s.deps.Streamer.Serve(w, r, full)
		var ioErr *stream.IOError
		switch {
		case err == nil, errors.Is(err, stream.ErrRangeNotSatisfiable):
		case errors.Is(err, stream.ErrNotFound):
			errorJSON(w, http.StatusNotFound, "file not found")
		case errors.As(err, &ioErr):
			s.logger.Error().Err(err).Str("file", filepath.Base(full)).Bool("headers_sent", ioErr.HeadersSent).Msg("stream failed")
			if !ioErr.HeadersSent {
				errorJSON(w, http.StatusInternalServerError, "stream error")
			}
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			// client went away or the media window closed
		default:
			s.logger.Debug().Err(err).Str("file", filepath.Base(full)).Msg("stream ended early")
		}
	}
}

// serveAsset sends non-video files such as thumbnails. They change rarely, so
// clients may cache them.
func (s *Server) serveAsset(w http.ResponseWriter, r *http.Request, full string) {
	f, err := os.Open(full)
	if err != nil {
		errorJSON(w, http.StatusNotFound, "file not found")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		errorJSON(w, http.StatusNotFound, "file not found")
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
