package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONMap is a sparse string->number map stored as a JSONB column.
// It backs the nutrient totals and ingredient exposure fields of a
// DailyRecord, which have no fixed key set.
type JSONMap map[string]float64

// Value implements driver.Valuer for JSONB storage
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for JSONB retrieval
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported type for JSONMap: %T", value)
	}
}

// TargetOverride is a single user-supplied nutrient goal override
type TargetOverride struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// OverrideMap maps nutrientKey -> user override, stored as JSONB
type OverrideMap map[string]TargetOverride

// Value implements driver.Valuer for JSONB storage
func (m OverrideMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for JSONB retrieval
func (m *OverrideMap) Scan(value interface{}) error {
	if value == nil {
		*m = OverrideMap{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported type for OverrideMap: %T", value)
	}
}

// DailyRecord is one user-day of aggregated nutrition and check-in data.
// Records are produced by the meal-logging aggregation pipeline and are
// read-only to this service.
//
// Key Fields:
//   - DateKey: logical calendar day as a sortable YYYY-MM-DD string. The
//     aggregation pipeline applies its late-night cutoff before writing, so
//     DateKey is authoritative here.
//   - Totals: confirmed nutrient totals plus behavioral/check-in numerics
//     (mood, clarity_score, pain_peak, pain_region_count, energy_level).
//   - TotalsEstimated: lower-confidence derived amounts, additive with Totals.
//   - IngredientsExposure: sparse ingredient-key -> occurrence count.
//
// Invariant: (UserID, DateKey) is unique.
type DailyRecord struct {
	ID                  int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID              string    `gorm:"size:64;not null;uniqueIndex:idx_daily_records_user_day" json:"user_id"`
	DateKey             string    `gorm:"size:10;not null;uniqueIndex:idx_daily_records_user_day" json:"date_key"`
	Totals              JSONMap   `gorm:"type:jsonb;not null" json:"totals"`
	TotalsEstimated     JSONMap   `gorm:"type:jsonb" json:"totals_estimated"`
	IngredientsExposure JSONMap   `gorm:"type:jsonb" json:"ingredients_exposure"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// TableName specifies the table name for DailyRecord
func (DailyRecord) TableName() string {
	return "daily_records"
}

// NutrientBand is one immutable row of the versioned reference-intake dataset.
//
// Key Fields:
//   - ProfileKey: dataset version identifier (e.g. "rdi_v2")
//   - Sex: "male"/"female", or nil for a sex-agnostic band
//   - MinYears/MaxYears: inclusive age range; nil MaxYears means unbounded
//   - Recommended/LowerSafe/UpperSafe/UpperLimit: any may be nil. A band with
//     only UpperSafe/UpperLimit describes a cap-only nutrient (e.g. caffeine).
type NutrientBand struct {
	ID          int64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ProfileKey  string   `gorm:"size:32;index;not null" json:"profile_key"`
	NutrientKey string   `gorm:"size:64;index;not null" json:"nutrient_key"`
	Sex         *string  `gorm:"size:10" json:"sex,omitempty"`
	MinYears    float64  `gorm:"not null" json:"min_years"`
	MaxYears    *float64 `json:"max_years,omitempty"`
	Recommended *float64 `json:"recommended,omitempty"`
	LowerSafe   *float64 `json:"lower_safe,omitempty"`
	UpperSafe   *float64 `json:"upper_safe,omitempty"`
	UpperLimit  *float64 `json:"upper_limit,omitempty"`
	Unit        string   `gorm:"size:16" json:"unit"`
}

// TableName specifies the table name for NutrientBand
func (NutrientBand) TableName() string {
	return "nutrient_bands"
}

// UserProfile carries the slice of the user account this service reads:
// age/sex for band resolution, the dataset version, and the persisted
// override layer of the goal merge.
type UserProfile struct {
	UserID          string      `gorm:"primaryKey;size:64" json:"user_id"`
	AgeYears        *int        `json:"age_years,omitempty"`
	Sex             *string     `gorm:"size:10" json:"sex,omitempty"`
	ProfileKey      string      `gorm:"size:32;default:rdi_v2" json:"profile_key"`
	TargetOverrides OverrideMap `gorm:"type:jsonb" json:"target_overrides"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// TableName specifies the table name for UserProfile
func (UserProfile) TableName() string {
	return "user_profiles"
}

// Candidate analysis modes
const (
	ModeEventLow           = "event_low"
	ModeEventHigh          = "event_high"
	ModeContinuousSpearman = "continuous_spearman"
	ModeDailyRoundup       = "daily_roundup" // roundup findings reuse the mode slot
)

// OutputDailyRoundup is the outputKey shared by all roundup findings
const OutputDailyRoundup = "daily_roundup"

// Candidate is one finding emitted by an analysis run, either a lagged
// correlation candidate or a same-day roundup flag. Candidates are persisted
// as the JSONB payload of a CorrelationPack; optional fields belong to only
// one of the two kinds.
type Candidate struct {
	InputKey  string  `json:"input_key"`
	OutputKey string  `json:"output_key"`
	Mode      string  `json:"mode"`
	Direction string  `json:"direction"` // positive / negative
	Strength  float64 `json:"strength"`
	N         int     `json:"n,omitempty"`

	// Event-mode fields
	NEvent       int      `json:"n_event,omitempty"`
	NNonEvent    int      `json:"n_non_event,omitempty"`
	MeanEvent    *float64 `json:"mean_event,omitempty"`
	MeanNonEvent *float64 `json:"mean_non_event,omitempty"`
	Threshold    *float64 `json:"threshold,omitempty"`
	Delta        *float64 `json:"delta,omitempty"`

	// Roundup fields
	Bucket        string   `json:"bucket,omitempty"`
	Value         *float64 `json:"value,omitempty"`
	Goal          *float64 `json:"goal,omitempty"`
	PctGoal       *float64 `json:"pct_goal,omitempty"`
	Coverage      *float64 `json:"coverage,omitempty"`
	IsTrustedDay  *bool    `json:"is_trusted_day,omitempty"`
	LowerSafe     *float64 `json:"lower_safe,omitempty"`
	UpperSafe     *float64 `json:"upper_safe,omitempty"`
	UpperLimit    *float64 `json:"upper_limit,omitempty"`
	Unit          string   `json:"unit,omitempty"`
	ReferenceType string   `json:"reference_type,omitempty"` // goal / cap_only
}

// CandidateList is a candidate slice stored as a JSONB column
type CandidateList []Candidate

// Value implements driver.Valuer for JSONB storage
func (l CandidateList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner for JSONB retrieval
func (l *CandidateList) Scan(value interface{}) error {
	if value == nil {
		*l = CandidateList{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("unsupported type for CandidateList: %T", value)
	}
}

// CorrelationPack is the persisted journal entry for one analysis run,
// upserted by (UserID, DateKey, AlgorithmVersion). Reruns replace the
// candidate payload but keep the original CreatedAt.
type CorrelationPack struct {
	ID               int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID           string        `gorm:"size:64;not null;uniqueIndex:idx_packs_user_day_algo" json:"user_id"`
	DateKey          string        `gorm:"size:10;not null;uniqueIndex:idx_packs_user_day_algo" json:"date_key"`
	AlgorithmVersion string        `gorm:"size:16;not null;uniqueIndex:idx_packs_user_day_algo" json:"algorithm_version"`
	Candidates       CandidateList `gorm:"type:jsonb" json:"candidates"`
	StoredCount      int           `json:"stored_count"`
	WindowDays       int           `json:"window_days"`
	LagDays          int           `json:"lag_days"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// TableName specifies the table name for CorrelationPack
func (CorrelationPack) TableName() string {
	return "correlation_packs"
}

// PromotedCorrelation is the rolling promotion state for one
// (user, input, output, mode, lag) identity.
//
// Invariants:
//   - SeenCount is monotonically non-decreasing
//   - IsSurfaced transitions false -> true exactly once and never reverts
//
// Rows are never deleted by this service; erasure is a user-data concern
// handled elsewhere.
type PromotedCorrelation struct {
	ID               int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID           string     `gorm:"size:64;not null;uniqueIndex:idx_promoted_identity" json:"user_id"`
	InputKey         string     `gorm:"size:128;not null;uniqueIndex:idx_promoted_identity" json:"input_key"`
	OutputKey        string     `gorm:"size:64;not null;uniqueIndex:idx_promoted_identity" json:"output_key"`
	Mode             string     `gorm:"size:32;not null;uniqueIndex:idx_promoted_identity" json:"mode"`
	LagDays          int        `gorm:"not null;uniqueIndex:idx_promoted_identity" json:"lag_days"`
	SeenCount        int        `gorm:"not null;default:0" json:"seen_count"`
	ConfirmStreak    int        `gorm:"not null;default:0" json:"confirm_streak"`
	IsSurfaced       bool       `gorm:"not null;default:false;index" json:"is_surfaced"`
	SurfacedAt       *time.Time `json:"surfaced_at,omitempty"`
	SurfacedDateKey  *string    `gorm:"size:10" json:"surfaced_date_key,omitempty"`
	FirstSeenDateKey string     `gorm:"size:10" json:"first_seen_date_key"`
	LastSeenDateKey  string     `gorm:"size:10" json:"last_seen_date_key"`
	Direction        string     `gorm:"size:10" json:"direction"`
	Strength         float64    `json:"strength"`
	LastN            int        `json:"last_n"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TableName specifies the table name for PromotedCorrelation
func (PromotedCorrelation) TableName() string {
	return "promoted_correlations"
}

// WebhookSubscription holds a webhook registration notified when a
// correlation is surfaced for a user
type WebhookSubscription struct {
	ID                 int        `gorm:"primaryKey;autoIncrement" json:"id"`
	Name               string     `gorm:"size:100;not null" json:"name"`
	URL                string     `gorm:"not null" json:"url"`
	Method             string     `gorm:"size:10;default:POST" json:"method"`
	AuthType           string     `gorm:"size:20" json:"auth_type"`
	AuthHeader         string     `gorm:"size:100" json:"auth_header"`
	AuthValue          string     `json:"auth_value"`
	UserIDs            string     `json:"user_ids"` // Stored as JSON array; empty means all users
	MinAbsStrength     *float64   `gorm:"type:decimal(6,3)" json:"min_abs_strength,omitempty"`
	IsActive           bool       `gorm:"default:true" json:"is_active"`
	RetryCount         int        `gorm:"default:3" json:"retry_count"`
	RetryDelaySeconds  int        `gorm:"default:5" json:"retry_delay_seconds"`
	TimeoutSeconds     int        `gorm:"default:10" json:"timeout_seconds"`
	MaxEventsPerMinute int        `gorm:"default:10" json:"max_events_per_minute"`
	LastTriggeredAt    *time.Time `json:"last_triggered_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// TableName specifies the table name for WebhookSubscription
func (WebhookSubscription) TableName() string {
	return "webhook_subscriptions"
}

// WebhookLog records one delivery attempt
type WebhookLog struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	WebhookID    int       `gorm:"index;not null" json:"webhook_id"`
	UserID       string    `gorm:"size:64;index" json:"user_id"`
	StatusCode   int       `json:"status_code"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
	AttemptedAt  time.Time `gorm:"index" json:"attempted_at"`
}

// TableName specifies the table name for WebhookLog
func (WebhookLog) TableName() string {
	return "webhook_logs"
}
