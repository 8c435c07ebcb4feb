package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"daywise-insights/database"
)

// handleGetWebhooks lists all configured webhook subscriptions
func (s *Server) handleGetWebhooks(w http.ResponseWriter, r *http.Request) {
	hooks, err := s.repo.GetWebhooks()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to list webhooks", err)
		return
	}
	if hooks == nil {
		hooks = []database.WebhookSubscription{}
	}
	respondJSON(w, http.StatusOK, hooks)
}

// handleCreateWebhook registers a new webhook subscription
func (s *Server) handleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	var hook database.WebhookSubscription
	if err := json.NewDecoder(r.Body).Decode(&hook); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}
	if err := validateWebhook(&hook); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	hook.ID = 0 // never trust client-supplied IDs on create
	if err := s.repo.CreateWebhook(&hook); err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to create webhook", err)
		return
	}

	s.webhookMq.RefreshCache()
	respondJSON(w, http.StatusCreated, hook)
}

// handleUpdateWebhook replaces an existing webhook subscription
func (s *Server) handleUpdateWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusBadRequest, "invalid webhook id", nil)
		return
	}

	var hook database.WebhookSubscription
	if err := json.NewDecoder(r.Body).Decode(&hook); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}
	if err := validateWebhook(&hook); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	hook.ID = id
	if err := s.repo.UpdateWebhook(&hook); err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to update webhook", err)
		return
	}

	s.webhookMq.RefreshCache()
	respondJSON(w, http.StatusOK, hook)
}

// handleDeleteWebhook removes a webhook subscription
func (s *Server) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusBadRequest, "invalid webhook id", nil)
		return
	}

	if err := s.repo.DeleteWebhook(id); err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to delete webhook", err)
		return
	}

	s.webhookMq.RefreshCache()
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// validateWebhook checks the fields a subscription cannot work without
func validateWebhook(hook *database.WebhookSubscription) error {
	if strings.TrimSpace(hook.Name) == "" {
		return errEmptyField("name")
	}
	if !strings.HasPrefix(hook.URL, "http://") && !strings.HasPrefix(hook.URL, "https://") {
		return errEmptyField("url (must be http or https)")
	}
	if hook.Method == "" {
		hook.Method = "POST"
	}
	if hook.TimeoutSeconds <= 0 {
		hook.TimeoutSeconds = 10
	}
	if hook.MaxEventsPerMinute <= 0 {
		hook.MaxEventsPerMinute = 10
	}
	return nil
}

type fieldError string

func (e fieldError) Error() string { return "missing or invalid field: " + string(e) }

func errEmptyField(name string) error { return fieldError(name) }
