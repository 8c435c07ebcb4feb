package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"daywise-insights/cache"
	"daywise-insights/database"
)

// WebhookManager delivers surfaced-correlation notifications to registered
// webhooks, with per-webhook rate limiting backed by redis
type WebhookManager struct {
	repo   *database.InsightRepository
	redis  *cache.RedisClient
	client *http.Client
}

// WebhookPayload represents the JSON payload sent to webhooks
type WebhookPayload struct {
	UserID        string    `json:"UserID"`
	InputKey      string    `json:"InputKey"`
	OutputKey     string    `json:"OutputKey"`
	Mode          string    `json:"Mode"`
	LagDays       int       `json:"LagDays"`
	Direction     string    `json:"Direction"`
	Strength      float64   `json:"Strength"`
	SeenCount     int       `json:"SeenCount"`
	ConfirmStreak int       `json:"ConfirmStreak"`
	SurfacedAt    time.Time `json:"SurfacedAt"`
	Message       string    `json:"Message"`
}

// NewWebhookManager creates a new webhook manager
func NewWebhookManager(repo *database.InsightRepository, redis *cache.RedisClient) *WebhookManager {
	return &WebhookManager{
		repo:  repo,
		redis: redis,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NotifySurfaced fans a newly surfaced correlation out to matching webhooks
func (wm *WebhookManager) NotifySurfaced(row *database.PromotedCorrelation) {
	webhooks, err := wm.getActiveWebhooks()
	if err != nil {
		log.Printf("⚠️  Failed to load webhooks: %v", err)
		return
	}

	if len(webhooks) == 0 {
		return
	}

	payload := wm.CreatePayload(row)
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		log.Printf("⚠️  Failed to marshal webhook payload: %v", err)
		return
	}

	for _, hook := range webhooks {
		if !wm.shouldSend(hook, row) {
			continue
		}
		if !wm.withinRateLimit(hook) {
			log.Printf("⏭️ Skipping webhook %s: rate limit reached", hook.Name)
			continue
		}
		go wm.deliverWebhook(hook, row.UserID, payloadBytes)
	}
}

func (wm *WebhookManager) getActiveWebhooks() ([]database.WebhookSubscription, error) {
	// Try cache first
	cacheKey := "active_webhooks"
	if wm.redis != nil {
		var cached []database.WebhookSubscription
		if err := wm.redis.Get(context.Background(), cacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	// Fetch from DB
	webhooks, err := wm.repo.GetActiveWebhooks()
	if err != nil {
		return nil, err
	}

	// Update cache (expire 1 hour)
	if wm.redis != nil {
		_ = wm.redis.Set(context.Background(), cacheKey, webhooks, 1*time.Hour)
	}

	return webhooks, nil
}

// CreatePayload generates the webhook payload for a surfaced correlation
func (wm *WebhookManager) CreatePayload(row *database.PromotedCorrelation) WebhookPayload {
	surfacedAt := time.Now()
	if row.SurfacedAt != nil {
		surfacedAt = *row.SurfacedAt
	}

	message := fmt.Sprintf("✨ NEW INSIGHT for %s: %s %s %s (lag %dd) | strength %.2f | confirmed over %d runs",
		row.UserID,
		row.InputKey,
		arrowFor(row.Direction),
		row.OutputKey,
		row.LagDays,
		row.Strength,
		row.SeenCount,
	)

	return WebhookPayload{
		UserID:        row.UserID,
		InputKey:      row.InputKey,
		OutputKey:     row.OutputKey,
		Mode:          row.Mode,
		LagDays:       row.LagDays,
		Direction:     row.Direction,
		Strength:      row.Strength,
		SeenCount:     row.SeenCount,
		ConfirmStreak: row.ConfirmStreak,
		SurfacedAt:    surfacedAt,
		Message:       message,
	}
}

func arrowFor(direction string) string {
	if direction == "negative" {
		return "↓"
	}
	return "↑"
}

func (wm *WebhookManager) shouldSend(hook database.WebhookSubscription, row *database.PromotedCorrelation) bool {
	// Check user filter
	if hook.UserIDs != "" && hook.UserIDs != "null" && hook.UserIDs != "[]" {
		// Lenient check: matches if the user is present in the string (JSON or CSV)
		if !strings.Contains(hook.UserIDs, row.UserID) {
			return false
		}
	}

	// Check strength threshold
	if hook.MinAbsStrength != nil {
		strength := row.Strength
		if strength < 0 {
			strength = -strength
		}
		if strength < *hook.MinAbsStrength {
			return false
		}
	}

	return true
}

// withinRateLimit enforces the per-webhook events-per-minute cap. Without
// redis the limit is not enforced (best effort).
func (wm *WebhookManager) withinRateLimit(hook database.WebhookSubscription) bool {
	if wm.redis == nil || hook.MaxEventsPerMinute <= 0 {
		return true
	}
	count, err := wm.redis.IncrWithExpiry(context.Background(), cache.WebhookRateKey(hook.ID), time.Minute)
	if err != nil {
		return true
	}
	return count <= int64(hook.MaxEventsPerMinute)
}

func (wm *WebhookManager) deliverWebhook(hook database.WebhookSubscription, userID string, payload []byte) {
	maxRetries := hook.RetryCount
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var resp *http.Response
	var err error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		req, _ := http.NewRequest(hook.Method, hook.URL, bytes.NewBuffer(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "Daywise-Insights/1.0")

		log.Printf("🔹 Sending webhook to %s (Attempt %d/%d)", hook.URL, attempt, maxRetries)

		// Auth headers
		if hook.AuthType == "BEARER" {
			req.Header.Set("Authorization", "Bearer "+hook.AuthValue)
		} else if hook.AuthHeader != "" {
			req.Header.Set(hook.AuthHeader, hook.AuthValue)
		}

		resp, err = wm.client.Do(req)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			wm.logDelivery(hook.ID, userID, resp.StatusCode, true, "")
			resp.Body.Close()
			_ = wm.repo.TouchWebhook(hook.ID)
			return
		}

		// Wait before retry
		if attempt < maxRetries {
			time.Sleep(time.Duration(hook.RetryDelaySeconds) * time.Second)
		}
	}

	// Failed
	errMsg := ""
	statusCode := 0
	if err != nil {
		errMsg = err.Error()
	} else if resp != nil {
		statusCode = resp.StatusCode
		resp.Body.Close()
	}

	wm.logDelivery(hook.ID, userID, statusCode, false, errMsg)
}

func (wm *WebhookManager) logDelivery(webhookID int, userID string, code int, success bool, errMsg string) {
	logEntry := &database.WebhookLog{
		WebhookID:    webhookID,
		UserID:       userID,
		StatusCode:   code,
		Success:      success,
		ErrorMessage: errMsg,
		AttemptedAt:  time.Now(),
	}

	if dbErr := wm.repo.SaveWebhookLog(logEntry); dbErr != nil {
		log.Printf("⚠️  Failed to save webhook log: %v", dbErr)
	}
}

// RefreshCache reloads webhook configurations
func (wm *WebhookManager) RefreshCache() {
	if wm.redis != nil {
		_ = wm.redis.Delete(context.Background(), "active_webhooks")
		log.Println("🔄 Webhook cache invalidated")
	}
}
