package server

import (
	"errors"
	"net/http"
	"strings"

	"reelshelf/internal/auth"
	"reelshelf/internal/catalog"
	"reelshelf/internal/pathres"
)

func (s *Server) handleListSeries(cache *catalog.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cat := cache.Get(r.Context())
		writeJSON(w, http.StatusOK, catalog.Search(cat.Series, r.URL.Query().Get("search")))
	}
}

func (s *Server) handleSeriesDetail() http.HandlerFunc {
	root := s.deps.Catalog.Root()
	return func(w http.ResponseWriter, r *http.Request) {
		segments, ok := requestSegments(r, "/api/series/")
		if !ok || !pathres.ValidateSegments(segments) {
			errorJSON(w, http.StatusForbidden, "access denied")
			return
		}
		series, err := catalog.Detail(root, strings.Join(segments, "/"))
		switch {
		case err == nil && catalog.IsAdult(series.ID) && !auth.ClaimsFromContext(r.Context()).IsAdmin():
			errorJSON(w, http.StatusForbidden, "forbidden")
		case err == nil:
			writeJSON(w, http.StatusOK, series)
		case errors.Is(err, pathres.ErrRejected):
			errorJSON(w, http.StatusForbidden, "access denied")
		default:
			errorJSON(w, http.StatusNotFound, "series not found")
		}
	}
}

func (s *Server) handleGenres() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cat := s.deps.Catalog.Get(r.Context())
		out := make(map[string][]catalog.Series, len(cat.Genres))
		for genre, series := range cat.Genres {
			summaries := make([]catalog.Series, len(series))
			for i, item := range series {
				summaries[i] = item.Summary()
			}
			out[genre] = summaries
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleRescan() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cat := s.deps.Catalog.Refresh(r.Context())
		adult := s.deps.AdminCatalog.Refresh(r.Context())
		s.logger.Info().Int("series", len(cat.Series)).Int("admin_series", len(adult.Series)).Msg("library rescanned")
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":      "scan completed",
			"series":      len(cat.Series),
			"adminSeries": len(adult.Series),
			"scannedAt":   cat.ScannedAt,
		})
	}
}
