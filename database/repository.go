package database

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"
)

// InsightRepository handles database operations for the analysis engine
type InsightRepository struct {
	db *Database
}

// NewInsightRepository creates a new insight repository
func NewInsightRepository(db *Database) *InsightRepository {
	return &InsightRepository{db: db}
}

// InitSchema performs auto-migration for all service tables
func (r *InsightRepository) InitSchema() error {
	fmt.Println("🔄 Starting database schema initialization...")

	err := r.db.db.AutoMigrate(
		&DailyRecord{},
		&NutrientBand{},
		&UserProfile{},
		&CorrelationPack{},
		&PromotedCorrelation{},
		&WebhookSubscription{},
		&WebhookLog{},
	)
	if err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	// Partial index serving the surfaced-correlation listing, ordered the way
	// the read path orders (surfacing recency, then absolute strength)
	r.db.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_promoted_surfaced_recency
		ON promoted_correlations (user_id, surfaced_at DESC)
		WHERE is_surfaced = true
	`)

	fmt.Println("✅ Database schema initialized")
	return nil
}

// ============================================================================
// Daily Records (read-only to this service)
// ============================================================================

// GetRecentDailyRecords returns up to limit most recent records for a user,
// sorted ascending by date key (oldest first), as the lag-pair builder expects.
func (r *InsightRepository) GetRecentDailyRecords(userID string, limit int) ([]DailyRecord, error) {
	var records []DailyRecord
	err := r.db.db.Where("user_id = ?", userID).
		Order("date_key DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, WrapDBError("GetRecentDailyRecords", err)
	}

	// Reverse into ascending order
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// GetDailyRecordByDate returns one record for a user-day, or nil if absent
func (r *InsightRepository) GetDailyRecordByDate(userID, dateKey string) (*DailyRecord, error) {
	var record DailyRecord
	err := r.db.db.Where("user_id = ? AND date_key = ?", userID, dateKey).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, WrapDBError("GetDailyRecordByDate", err)
	}
	return &record, nil
}

// ============================================================================
// Reference dataset and profiles
// ============================================================================

// GetNutrientBands returns all reference bands for a dataset version
func (r *InsightRepository) GetNutrientBands(profileKey string) ([]NutrientBand, error) {
	var bands []NutrientBand
	err := r.db.db.Where("profile_key = ?", profileKey).Find(&bands).Error
	if err != nil {
		return nil, WrapDBError("GetNutrientBands", err)
	}
	return bands, nil
}

// GetUserProfile returns the user profile, or nil if absent
func (r *InsightRepository) GetUserProfile(userID string) (*UserProfile, error) {
	var profile UserProfile
	err := r.db.db.Where("user_id = ?", userID).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, WrapDBError("GetUserProfile", err)
	}
	return &profile, nil
}

// ============================================================================
// Correlation packs
// ============================================================================

// PackMetadata carries run parameters stamped onto a stored pack
type PackMetadata struct {
	WindowDays int
	LagDays    int
}

// SanitizeCandidates validates candidate shape and silently drops malformed
// entries (missing keys, non-finite strength). Direction is inferred from the
// strength sign when absent. Returns a new slice; the input is not modified.
func SanitizeCandidates(candidates []Candidate) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.InputKey == "" || c.OutputKey == "" {
			continue
		}
		if math.IsNaN(c.Strength) || math.IsInf(c.Strength, 0) {
			continue
		}
		if c.Direction == "" {
			if c.Strength < 0 {
				c.Direction = "negative"
			} else {
				c.Direction = "positive"
			}
		}
		out = append(out, c)
	}
	return out
}

// MergePack folds an incoming pack into an existing row for the same
// (user, dateKey, algorithmVersion) key. The existing row's identity and
// original CreatedAt are preserved; everything else is replaced.
func MergePack(existing *CorrelationPack, incoming CorrelationPack) CorrelationPack {
	if existing == nil {
		return incoming
	}
	incoming.ID = existing.ID
	incoming.CreatedAt = existing.CreatedAt
	return incoming
}

// SaveCorrelationPack upserts a run's candidates by (userID, dateKey,
// algorithmVersion) and returns the stored candidate count. Malformed
// candidates are dropped, not fatal.
func (r *InsightRepository) SaveCorrelationPack(userID, dateKey, algorithmVersion string, candidates []Candidate, meta PackMetadata) (int, error) {
	if userID == "" {
		return 0, NewValidationError("user_id", "must not be empty")
	}
	if dateKey == "" {
		return 0, NewValidationError("date_key", "must not be empty")
	}

	clean := SanitizeCandidates(candidates)

	pack := CorrelationPack{
		UserID:           userID,
		DateKey:          dateKey,
		AlgorithmVersion: algorithmVersion,
		Candidates:       clean,
		StoredCount:      len(clean),
		WindowDays:       meta.WindowDays,
		LagDays:          meta.LagDays,
	}

	existing, err := r.GetCorrelationPack(userID, dateKey, algorithmVersion)
	if err != nil {
		return 0, err
	}

	merged := MergePack(existing, pack)
	if err := r.db.db.Save(&merged).Error; err != nil {
		return 0, WrapDBError("SaveCorrelationPack", err)
	}
	return merged.StoredCount, nil
}

// GetCorrelationPack returns the pack for a composite key, or nil if absent
func (r *InsightRepository) GetCorrelationPack(userID, dateKey, algorithmVersion string) (*CorrelationPack, error) {
	var pack CorrelationPack
	err := r.db.db.Where("user_id = ? AND date_key = ? AND algorithm_version = ?",
		userID, dateKey, algorithmVersion).First(&pack).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, WrapDBError("GetCorrelationPack", err)
	}
	return &pack, nil
}

// GetLatestCorrelationPack returns the most recent pack for a user and
// algorithm version, or nil if none stored yet
func (r *InsightRepository) GetLatestCorrelationPack(userID, algorithmVersion string) (*CorrelationPack, error) {
	var pack CorrelationPack
	err := r.db.db.Where("user_id = ? AND algorithm_version = ?", userID, algorithmVersion).
		Order("date_key DESC").First(&pack).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, WrapDBError("GetLatestCorrelationPack", err)
	}
	return &pack, nil
}

// HasCorrelationPack reports whether a pack exists for the composite key
func (r *InsightRepository) HasCorrelationPack(userID, dateKey, algorithmVersion string) (bool, error) {
	var count int64
	err := r.db.db.Model(&CorrelationPack{}).
		Where("user_id = ? AND date_key = ? AND algorithm_version = ?", userID, dateKey, algorithmVersion).
		Count(&count).Error
	if err != nil {
		return false, WrapDBError("HasCorrelationPack", err)
	}
	return count > 0, nil
}

// ============================================================================
// Promoted correlations
// ============================================================================

// GetPromotedCorrelation returns the promotion state for one identity key,
// or nil if the key has never been seen
func (r *InsightRepository) GetPromotedCorrelation(userID, inputKey, outputKey, mode string, lagDays int) (*PromotedCorrelation, error) {
	var row PromotedCorrelation
	err := r.db.db.Where(
		"user_id = ? AND input_key = ? AND output_key = ? AND mode = ? AND lag_days = ?",
		userID, inputKey, outputKey, mode, lagDays).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, WrapDBError("GetPromotedCorrelation", err)
	}
	return &row, nil
}

// SavePromotedCorrelation persists promotion state (insert or update)
func (r *InsightRepository) SavePromotedCorrelation(row *PromotedCorrelation) error {
	if err := r.db.db.Save(row).Error; err != nil {
		return WrapDBError("SavePromotedCorrelation", err)
	}
	return nil
}

// ============================================================================
// Webhooks
// ============================================================================

// GetActiveWebhooks returns all active webhook subscriptions
func (r *InsightRepository) GetActiveWebhooks() ([]WebhookSubscription, error) {
	var hooks []WebhookSubscription
	err := r.db.db.Where("is_active = ?", true).Find(&hooks).Error
	if err != nil {
		return nil, WrapDBError("GetActiveWebhooks", err)
	}
	return hooks, nil
}

// GetWebhooks returns all webhook subscriptions
func (r *InsightRepository) GetWebhooks() ([]WebhookSubscription, error) {
	var hooks []WebhookSubscription
	err := r.db.db.Find(&hooks).Error
	if err != nil {
		return nil, WrapDBError("GetWebhooks", err)
	}
	return hooks, nil
}

// CreateWebhook creates a new webhook subscription
func (r *InsightRepository) CreateWebhook(hook *WebhookSubscription) error {
	if hook.URL == "" {
		return NewValidationError("url", "must not be empty")
	}
	if hook.Method == "" {
		hook.Method = "POST"
	}
	return WrapDBError("CreateWebhook", r.db.db.Create(hook).Error)
}

// UpdateWebhook updates an existing webhook subscription
func (r *InsightRepository) UpdateWebhook(hook *WebhookSubscription) error {
	return WrapDBError("UpdateWebhook", r.db.db.Save(hook).Error)
}

// DeleteWebhook removes a webhook subscription
func (r *InsightRepository) DeleteWebhook(id int) error {
	res := r.db.db.Delete(&WebhookSubscription{}, id)
	if res.Error != nil {
		return WrapDBError("DeleteWebhook", res.Error)
	}
	if res.RowsAffected == 0 {
		return NewNotFoundErrorWithID("webhook", id)
	}
	return nil
}

// TouchWebhook stamps the last trigger time on a subscription
func (r *InsightRepository) TouchWebhook(id int) error {
	now := time.Now()
	return WrapDBError("TouchWebhook",
		r.db.db.Model(&WebhookSubscription{}).Where("id = ?", id).
			Update("last_triggered_at", &now).Error)
}

// SaveWebhookLog records one delivery attempt
func (r *InsightRepository) SaveWebhookLog(logEntry *WebhookLog) error {
	return WrapDBError("SaveWebhookLog", r.db.db.Create(logEntry).Error)
}
