package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Read-facing query layer. These queries back the presentation endpoints and
// use hand-written SQL on the raw connection: the surfaced listing's ordering
// (surfacing recency, then absolute strength) and the rollup aggregates are
// awkward to express through the ORM.

// InsightStats is a per-user rollup of engine activity
type InsightStats struct {
	UserID        string     `json:"user_id"`
	TrackedCount  int        `json:"tracked_count"`
	SurfacedCount int        `json:"surfaced_count"`
	PackCount     int        `json:"pack_count"`
	LastRunDate   *string    `json:"last_run_date,omitempty"`
	LastSurfaced  *time.Time `json:"last_surfaced,omitempty"`
}

// ListPromotedCorrelations returns promotion rows for a user, sorted by
// surfacing recency then descending absolute strength. With surfacedOnly
// false, never-surfaced tracked rows follow the surfaced ones.
func (db *DB) ListPromotedCorrelations(userID string, surfacedOnly bool, limit int) ([]PromotedCorrelation, error) {
	query := `
		SELECT id, user_id, input_key, output_key, mode, lag_days,
		       seen_count, confirm_streak, is_surfaced, surfaced_at, surfaced_date_key,
		       first_seen_date_key, last_seen_date_key, direction, strength, last_n,
		       created_at, updated_at
		FROM promoted_correlations
		WHERE user_id = $1`
	if surfacedOnly {
		query += ` AND is_surfaced = true`
	}
	query += `
		ORDER BY surfaced_at DESC NULLS LAST, ABS(strength) DESC
		LIMIT $2`

	rows, err := db.conn.Query(query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list promoted correlations: %w", err)
	}
	defer rows.Close()

	var results []PromotedCorrelation
	for rows.Next() {
		var row PromotedCorrelation
		var surfacedAt sql.NullTime
		var surfacedDateKey sql.NullString
		if err := rows.Scan(
			&row.ID, &row.UserID, &row.InputKey, &row.OutputKey, &row.Mode, &row.LagDays,
			&row.SeenCount, &row.ConfirmStreak, &row.IsSurfaced, &surfacedAt, &surfacedDateKey,
			&row.FirstSeenDateKey, &row.LastSeenDateKey, &row.Direction, &row.Strength, &row.LastN,
			&row.CreatedAt, &row.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan promoted correlation: %w", err)
		}
		if surfacedAt.Valid {
			t := surfacedAt.Time
			row.SurfacedAt = &t
		}
		if surfacedDateKey.Valid {
			s := surfacedDateKey.String
			row.SurfacedDateKey = &s
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// GetInsightStats returns the per-user activity rollup
func (db *DB) GetInsightStats(userID string) (*InsightStats, error) {
	stats := &InsightStats{UserID: userID}

	var lastSurfaced sql.NullTime
	err := db.conn.QueryRow(`
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE is_surfaced),
			MAX(surfaced_at)
		FROM promoted_correlations
		WHERE user_id = $1`, userID).
		Scan(&stats.TrackedCount, &stats.SurfacedCount, &lastSurfaced)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate promotion stats: %w", err)
	}
	if lastSurfaced.Valid {
		t := lastSurfaced.Time
		stats.LastSurfaced = &t
	}

	var lastRun sql.NullString
	err = db.conn.QueryRow(`
		SELECT COUNT(*), MAX(date_key)
		FROM correlation_packs
		WHERE user_id = $1`, userID).
		Scan(&stats.PackCount, &lastRun)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate pack stats: %w", err)
	}
	if lastRun.Valid {
		stats.LastRunDate = &lastRun.String
	}

	return stats, nil
}

// ListRoundupBuckets returns per-bucket counts over a user's recent packs,
// for the roundup history view
func (db *DB) ListRoundupBuckets(userID string, sinceDateKey string) (map[string]int, error) {
	rows, err := db.conn.Query(`
		SELECT c->>'bucket' AS bucket, COUNT(*)
		FROM correlation_packs p,
		     jsonb_array_elements(p.candidates) AS c
		WHERE p.user_id = $1
		  AND p.date_key >= $2
		  AND c->>'output_key' = 'daily_roundup'
		GROUP BY bucket`, userID, sinceDateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate roundup buckets: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var bucket sql.NullString
		var count int
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, fmt.Errorf("failed to scan roundup bucket: %w", err)
		}
		if bucket.Valid && bucket.String != "" {
			counts[bucket.String] = count
		}
	}
	return counts, rows.Err()
}
