package analysis

import (
	"errors"
	"log"
	"math"
	"time"

	models "daywise-insights/database/models_pkg"
)

// PromotionStore is the keyed persistence the promotion engine runs against.
// Satisfied by database.InsightRepository; tests use an in-memory fake.
//
// The read-modify-write per identity key assumes runs for one user do not
// execute concurrently (the trigger layer serializes them); a store shared by
// concurrent runs would need per-key compare-and-swap semantics.
type PromotionStore interface {
	GetPromotedCorrelation(userID, inputKey, outputKey, mode string, lagDays int) (*models.PromotedCorrelation, error)
	SavePromotedCorrelation(row *models.PromotedCorrelation) error
}

// PromotionParams are the promotable-strength thresholds
type PromotionParams struct {
	StrongContinuousAbs float64
	StrongEventAbs      float64
	StrongMinSamples    int
	SurfaceMinSeen      int
	SurfaceMinStreak    int
}

// DefaultPromotionParams returns the stock thresholds
func DefaultPromotionParams() PromotionParams {
	return PromotionParams{
		StrongContinuousAbs: 0.35,
		StrongEventAbs:      0.8,
		StrongMinSamples:    8,
		SurfaceMinSeen:      5,
		SurfaceMinStreak:    2,
	}
}

// PromotionEngine decides when a repeatedly-observed candidate becomes a
// surfaced, user-visible correlation. State machine per identity key:
// unseen -> tracked -> surfaced, with surfaced terminal.
type PromotionEngine struct {
	store  PromotionStore
	params PromotionParams
}

// NewPromotionEngine creates a promotion engine over a store
func NewPromotionEngine(store PromotionStore, params PromotionParams) *PromotionEngine {
	return &PromotionEngine{store: store, params: params}
}

// isStrong classifies one run's candidate as promotable-strong
func (e *PromotionEngine) isStrong(c models.Candidate) bool {
	abs := math.Abs(c.Strength)
	switch c.Mode {
	case models.ModeContinuousSpearman:
		if abs < e.params.StrongContinuousAbs {
			return false
		}
	case models.ModeEventLow, models.ModeEventHigh:
		if abs < e.params.StrongEventAbs {
			return false
		}
	default:
		return false
	}
	if c.N > 0 && c.N < e.params.StrongMinSamples {
		return false
	}
	return true
}

// Promote folds one run's candidates into the rolling per-key tally.
//
// Per candidate seen: seenCount increments unconditionally and the stored
// snapshot takes the latest strength/direction/metadata. confirmStreak counts
// consecutive strong runs and resets on a weak one. Surfacing fires exactly
// once, the first run where seenCount and confirmStreak both clear their
// floors, and never reverts.
//
// Returns the rows surfaced by this run. Store failures are logged, the
// remaining candidates still processed, and the joined error returned to the
// caller.
func (e *PromotionEngine) Promote(userID, dateKey string, candidates []models.Candidate, lagDays int) ([]models.PromotedCorrelation, error) {
	var surfaced []models.PromotedCorrelation
	var errs []error

	for _, c := range candidates {
		// Roundup findings are same-day flags, not lagged correlations
		if c.Mode == models.ModeDailyRoundup {
			continue
		}

		row, err := e.store.GetPromotedCorrelation(userID, c.InputKey, c.OutputKey, c.Mode, lagDays)
		if err != nil {
			log.Printf("❌ Failed to load promotion state for %s -> %s (%s): %v", c.InputKey, c.OutputKey, c.Mode, err)
			errs = append(errs, err)
			continue
		}

		if row == nil {
			row = &models.PromotedCorrelation{
				UserID:           userID,
				InputKey:         c.InputKey,
				OutputKey:        c.OutputKey,
				Mode:             c.Mode,
				LagDays:          lagDays,
				FirstSeenDateKey: dateKey,
			}
		}

		row.SeenCount++
		row.LastSeenDateKey = dateKey
		row.Direction = c.Direction
		row.Strength = c.Strength
		row.LastN = c.N

		if e.isStrong(c) {
			row.ConfirmStreak++
		} else {
			row.ConfirmStreak = 0
		}

		justSurfaced := false
		if !row.IsSurfaced &&
			row.SeenCount >= e.params.SurfaceMinSeen &&
			row.ConfirmStreak >= e.params.SurfaceMinStreak {
			now := time.Now()
			key := dateKey
			row.IsSurfaced = true
			row.SurfacedAt = &now
			row.SurfacedDateKey = &key
			justSurfaced = true
			log.Printf("✨ Surfaced correlation for %s: %s -> %s (%s, strength %.3f, seen %d)",
				userID, c.InputKey, c.OutputKey, c.Mode, c.Strength, row.SeenCount)
		}

		if err := e.store.SavePromotedCorrelation(row); err != nil {
			log.Printf("❌ Failed to save promotion state for %s -> %s (%s): %v", c.InputKey, c.OutputKey, c.Mode, err)
			errs = append(errs, err)
			continue
		}

		if justSurfaced {
			surfaced = append(surfaced, *row)
		}
	}

	return surfaced, errors.Join(errs...)
}
