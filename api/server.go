package api

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"daywise-insights/cache"
	"daywise-insights/database"
	"daywise-insights/engine"
	"daywise-insights/notifications"
	"daywise-insights/realtime"
)

// Server handles HTTP API requests
type Server struct {
	repo      *database.InsightRepository
	queries   *database.DB
	engine    *engine.InsightEngine
	queue     *engine.RunQueue
	broker    *realtime.Broker
	webhookMq *notifications.WebhookManager
	redis     *cache.RedisClient
}

// NewServer creates a new API server instance
func NewServer(repo *database.InsightRepository, queries *database.DB, insightEngine *engine.InsightEngine, queue *engine.RunQueue, broker *realtime.Broker, webhookMq *notifications.WebhookManager, redis *cache.RedisClient) *Server {
	return &Server{
		repo:      repo,
		queries:   queries,
		engine:    insightEngine,
		queue:     queue,
		broker:    broker,
		webhookMq: webhookMq,
		redis:     redis,
	}
}

// Start starts the HTTP server on the specified port
func (s *Server) Start(port int) error {
	mux := http.NewServeMux()

	// Register routes
	mux.Handle("GET /api/events", s.broker) // SSE endpoint

	// Analysis routes
	mux.HandleFunc("POST /api/analysis/run", s.handleRunAnalysis)
	mux.HandleFunc("POST /api/analysis/trigger", s.handleTriggerAnalysis)

	// Insight read routes
	mux.HandleFunc("GET /api/correlations", s.handleGetCorrelations)
	mux.HandleFunc("GET /api/roundup", s.handleGetRoundup)
	mux.HandleFunc("GET /api/roundup/history", s.handleGetRoundupHistory)
	mux.HandleFunc("GET /api/targets", s.handleGetTargets)
	mux.HandleFunc("GET /api/stats", s.handleGetStats)

	// Webhook management routes
	mux.HandleFunc("GET /api/config/webhooks", s.handleGetWebhooks)
	mux.HandleFunc("POST /api/config/webhooks", s.handleCreateWebhook)
	mux.HandleFunc("PUT /api/config/webhooks/{id}", s.handleUpdateWebhook)
	mux.HandleFunc("DELETE /api/config/webhooks/{id}", s.handleDeleteWebhook)

	mux.HandleFunc("GET /health", s.handleHealth)

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE connections stay open
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("🌐 API server listening on %s", addr)
	return server.ListenAndServe()
}

// handleHealth is the liveness endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
