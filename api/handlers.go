package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"daywise-insights/cache"
	"daywise-insights/database"
	"daywise-insights/engine"
)

// runRequest is the body of POST /api/analysis/run
type runRequest struct {
	UserID string `json:"user_id"`
	engine.RunOptions
}

// handleRunAnalysis executes a synchronous analysis run and returns its result
func (s *Server) handleRunAnalysis(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}

	result, err := s.engine.RunAnalysis(req.UserID, req.RunOptions)
	if err != nil {
		var validationErr *database.ValidationError
		if errors.As(err, &validationErr) {
			respondWithError(w, http.StatusBadRequest, validationErr.Error(), nil)
			return
		}
		if result == nil {
			respondWithError(w, http.StatusInternalServerError, "analysis run failed", err)
			return
		}
		// Partial success: some writes failed but the run produced output
		respondWithError(w, http.StatusInternalServerError, "analysis run stored partially: "+err.Error(), err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleTriggerAnalysis enqueues a best-effort background run and returns
// immediately. This is the fire-and-forget path check-in updates use.
func (s *Server) handleTriggerAnalysis(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}
	if req.UserID == "" {
		respondWithError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	s.queue.Enqueue(req.UserID)
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// surfacedCacheTTL bounds staleness of the cached surfaced listing; promotion
// invalidates it eagerly on surfacing anyway
const surfacedCacheTTL = 10 * time.Minute

// handleGetCorrelations lists promoted correlations for a user, surfaced-only
// by default, sorted by surfacing recency then absolute strength
func (s *Server) handleGetCorrelations(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondWithError(w, http.StatusBadRequest, "user_id parameter is required", nil)
		return
	}

	maxLimit := 200
	limit := getIntParam(r, "limit", 50, nil, &maxLimit)
	surfacedOnly := getBoolParam(r, "surfaced_only", true)

	// The default listing is cacheable; filtered variants go to the database
	cacheable := surfacedOnly && limit == 50
	cacheKey := cache.SurfacedListKey(userID)
	if cacheable && s.redisGet(r.Context(), cacheKey, w) {
		return
	}

	rows, err := s.queries.ListPromotedCorrelations(userID, surfacedOnly, limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to list correlations", err)
		return
	}
	if rows == nil {
		rows = []database.PromotedCorrelation{}
	}

	if cacheable && s.redis != nil {
		_ = s.redis.Set(r.Context(), cacheKey, rows, surfacedCacheTTL)
	}
	respondJSON(w, http.StatusOK, rows)
}

// redisGet serves a cached JSON payload if present; reports whether it did
func (s *Server) redisGet(ctx context.Context, key string, w http.ResponseWriter) bool {
	if s.redis == nil {
		return false
	}
	var cached []database.PromotedCorrelation
	if err := s.redis.Get(ctx, key, &cached); err != nil {
		return false
	}
	respondJSON(w, http.StatusOK, cached)
	return true
}

// handleGetRoundup returns the stored pack's roundup findings for a user-day
// (latest pack when date_key is omitted)
func (s *Server) handleGetRoundup(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondWithError(w, http.StatusBadRequest, "user_id parameter is required", nil)
		return
	}

	dateKey := r.URL.Query().Get("date_key")
	var pack *database.CorrelationPack
	var err error
	if dateKey != "" {
		pack, err = s.repo.GetCorrelationPack(userID, dateKey, engine.AlgorithmVersion)
	} else {
		pack, err = s.repo.GetLatestCorrelationPack(userID, engine.AlgorithmVersion)
	}
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to load pack", err)
		return
	}
	if pack == nil {
		respondWithError(w, http.StatusNotFound, "no roundup stored for this day", nil)
		return
	}

	roundup := make([]database.Candidate, 0)
	for _, c := range pack.Candidates {
		if c.OutputKey == "daily_roundup" {
			roundup = append(roundup, c)
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":    pack.UserID,
		"date_key":   pack.DateKey,
		"candidates": roundup,
		"created_at": pack.CreatedAt,
	})
}

// handleGetRoundupHistory returns per-bucket counts over recent days
func (s *Server) handleGetRoundupHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondWithError(w, http.StatusBadRequest, "user_id parameter is required", nil)
		return
	}

	maxDays := 365
	days := getIntParam(r, "days", 30, nil, &maxDays)
	since := time.Now().AddDate(0, 0, -days).Format("2006-01-02")

	counts, err := s.queries.ListRoundupBuckets(userID, since)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to aggregate roundup history", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"since":   since,
		"buckets": counts,
	})
}

// handleGetTargets returns the resolved goal and band maps for a user
func (s *Server) handleGetTargets(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondWithError(w, http.StatusBadRequest, "user_id parameter is required", nil)
		return
	}

	targets := s.engine.ResolveTargetsForUser(userID)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"goals":   targets.Goals,
		"bands":   targets.Bands,
	})
}

// handleGetStats returns the per-user engine activity rollup
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondWithError(w, http.StatusBadRequest, "user_id parameter is required", nil)
		return
	}

	stats, err := s.queries.GetInsightStats(userID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to load stats", err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
