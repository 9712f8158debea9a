package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/goalplanner/internal/modules/assets"
)

// handleGetStats returns the full asset class statistics grid.
// GET /api/assets/stats
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	grid, err := s.assets.LoadGrid()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to load asset statistics: %w", err))
		return
	}
	s.writeJSON(w, http.StatusOK, grid)
}

// handleUpsertStats replaces the statistics for one class in one horizon
// bucket.
// PUT /api/assets/stats/{bucket}/{class}
func (s *Server) handleUpsertStats(w http.ResponseWriter, r *http.Request) {
	bucket := assets.HorizonBucket(chi.URLParam(r, "bucket"))
	switch bucket {
	case assets.BucketShortTerm, assets.BucketMediumTerm, assets.BucketLongTerm:
	default:
		s.writeError(w, http.StatusNotFound, fmt.Errorf("unknown horizon bucket %q", bucket))
		return
	}
	class := chi.URLParam(r, "class")

	var stats assets.ClassStats
	if err := json.NewDecoder(r.Body).Decode(&stats); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := stats.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.assets.Upsert(class, bucket, stats); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to store asset statistics: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "updated",
		"bucket": string(bucket),
		"class":  class,
	})
}
