package analysis

import (
	"errors"
	"fmt"
	"testing"

	models "daywise-insights/database/models_pkg"
)

// memoryStore is an in-memory PromotionStore for exercising the state machine
type memoryStore struct {
	rows    map[string]*models.PromotedCorrelation
	failGet bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{rows: make(map[string]*models.PromotedCorrelation)}
}

func storeKey(userID, inputKey, outputKey, mode string, lagDays int) string {
	return fmt.Sprintf("%s|%s|%s|%s|%d", userID, inputKey, outputKey, mode, lagDays)
}

func (s *memoryStore) GetPromotedCorrelation(userID, inputKey, outputKey, mode string, lagDays int) (*models.PromotedCorrelation, error) {
	if s.failGet {
		return nil, errors.New("store unavailable")
	}
	row, ok := s.rows[storeKey(userID, inputKey, outputKey, mode, lagDays)]
	if !ok {
		return nil, nil
	}
	copied := *row
	return &copied, nil
}

func (s *memoryStore) SavePromotedCorrelation(row *models.PromotedCorrelation) error {
	copied := *row
	s.rows[storeKey(row.UserID, row.InputKey, row.OutputKey, row.Mode, row.LagDays)] = &copied
	return nil
}

func strongCandidate() models.Candidate {
	return models.Candidate{
		InputKey:  "sugar_g",
		OutputKey: "mood",
		Mode:      models.ModeContinuousSpearman,
		Direction: "negative",
		Strength:  -0.5,
		N:         20,
	}
}

func weakCandidate() models.Candidate {
	c := strongCandidate()
	c.Strength = -0.1
	return c
}

func TestPromoteSurfacesAfterSeenAndStreak(t *testing.T) {
	store := newMemoryStore()
	engine := NewPromotionEngine(store, DefaultPromotionParams())
	candidate := strongCandidate()

	// Defaults: surfacing needs seenCount >= 5 and confirmStreak >= 2
	for run := 1; run <= 4; run++ {
		dateKey := fmt.Sprintf("2026-05-%02d", run)
		surfaced, err := engine.Promote("u1", dateKey, []models.Candidate{candidate}, 1)
		if err != nil {
			t.Fatalf("run %d: unexpected error: %v", run, err)
		}
		if len(surfaced) != 0 {
			t.Fatalf("run %d: surfaced too early", run)
		}
	}

	surfaced, err := engine.Promote("u1", "2026-05-05", []models.Candidate{candidate}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(surfaced) != 1 {
		t.Fatalf("expected surfacing on the fifth strong run, got %d", len(surfaced))
	}

	row := surfaced[0]
	if row.SeenCount != 5 || row.ConfirmStreak != 5 {
		t.Errorf("expected seen=5 streak=5, got seen=%d streak=%d", row.SeenCount, row.ConfirmStreak)
	}
	if !row.IsSurfaced || row.SurfacedAt == nil {
		t.Error("surfaced row missing surfacing markers")
	}
	if row.SurfacedDateKey == nil || *row.SurfacedDateKey != "2026-05-05" {
		t.Errorf("expected surfaced date 2026-05-05, got %v", row.SurfacedDateKey)
	}
	if row.FirstSeenDateKey != "2026-05-01" {
		t.Errorf("expected first seen 2026-05-01, got %s", row.FirstSeenDateKey)
	}
}

func TestPromoteSurfacesOnlyOnce(t *testing.T) {
	store := newMemoryStore()
	engine := NewPromotionEngine(store, DefaultPromotionParams())
	candidate := strongCandidate()

	for run := 1; run <= 5; run++ {
		engine.Promote("u1", fmt.Sprintf("2026-05-%02d", run), []models.Candidate{candidate}, 1)
	}

	// Further strong runs keep counting but never re-surface
	surfaced, err := engine.Promote("u1", "2026-05-06", []models.Candidate{candidate}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(surfaced) != 0 {
		t.Error("already-surfaced correlation surfaced again")
	}

	stored, _ := store.GetPromotedCorrelation("u1", "sugar_g", "mood", models.ModeContinuousSpearman, 1)
	if stored.SeenCount != 6 {
		t.Errorf("expected seenCount to keep climbing to 6, got %d", stored.SeenCount)
	}
	if !stored.IsSurfaced {
		t.Error("surfaced flag must never revert")
	}
	if stored.LastSeenDateKey != "2026-05-06" {
		t.Errorf("expected last seen 2026-05-06, got %s", stored.LastSeenDateKey)
	}
}

func TestPromoteSeenCountMonotonic(t *testing.T) {
	store := newMemoryStore()
	engine := NewPromotionEngine(store, DefaultPromotionParams())

	// Alternate strong and weak runs: seenCount climbs every run, while the
	// streak keeps resetting
	candidates := []models.Candidate{
		strongCandidate(), weakCandidate(), strongCandidate(), weakCandidate(),
		strongCandidate(), weakCandidate(),
	}
	for run, c := range candidates {
		engine.Promote("u1", fmt.Sprintf("2026-05-%02d", run+1), []models.Candidate{c}, 1)

		stored, _ := store.GetPromotedCorrelation("u1", "sugar_g", "mood", models.ModeContinuousSpearman, 1)
		if stored.SeenCount != run+1 {
			t.Fatalf("run %d: expected seenCount %d, got %d", run+1, run+1, stored.SeenCount)
		}
	}

	stored, _ := store.GetPromotedCorrelation("u1", "sugar_g", "mood", models.ModeContinuousSpearman, 1)
	if stored.ConfirmStreak != 0 {
		t.Errorf("expected streak reset by the weak run, got %d", stored.ConfirmStreak)
	}
	if stored.IsSurfaced {
		t.Error("never had two consecutive strong runs, must not surface")
	}
}

func TestPromoteStreakResetDelaysSurfacing(t *testing.T) {
	store := newMemoryStore()
	engine := NewPromotionEngine(store, DefaultPromotionParams())

	// Strong, strong, strong, strong, weak: run 5 would have surfaced but
	// the weak observation resets the streak
	runs := []models.Candidate{
		strongCandidate(), strongCandidate(), strongCandidate(), strongCandidate(), weakCandidate(),
	}
	for run, c := range runs {
		surfaced, _ := engine.Promote("u1", fmt.Sprintf("2026-05-%02d", run+1), []models.Candidate{c}, 1)
		if len(surfaced) != 0 {
			t.Fatalf("run %d: surfaced despite the pending weak observation", run+1)
		}
	}

	// Two more strong runs rebuild the streak past the floor; seenCount is
	// already well past 5, so the second one surfaces
	surfaced, _ := engine.Promote("u1", "2026-05-06", []models.Candidate{strongCandidate()}, 1)
	if len(surfaced) != 0 {
		t.Fatal("surfaced with a streak of 1")
	}
	surfaced, _ = engine.Promote("u1", "2026-05-07", []models.Candidate{strongCandidate()}, 1)
	if len(surfaced) != 1 {
		t.Fatalf("expected surfacing once the streak rebuilt, got %d", len(surfaced))
	}
}

func TestPromoteSkipsRoundupCandidates(t *testing.T) {
	store := newMemoryStore()
	engine := NewPromotionEngine(store, DefaultPromotionParams())

	roundup := models.Candidate{
		InputKey:  "sugar_g",
		OutputKey: models.OutputDailyRoundup,
		Mode:      models.ModeDailyRoundup,
		Strength:  2.0,
	}
	surfaced, err := engine.Promote("u1", "2026-05-01", []models.Candidate{roundup}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(surfaced) != 0 || len(store.rows) != 0 {
		t.Error("roundup finding entered the promotion tally")
	}
}

func TestPromoteIsStrongThresholds(t *testing.T) {
	engine := NewPromotionEngine(newMemoryStore(), DefaultPromotionParams())

	tests := []struct {
		name     string
		mode     string
		strength float64
		n        int
		expected bool
	}{
		{name: "continuous above floor", mode: models.ModeContinuousSpearman, strength: 0.4, n: 20, expected: true},
		{name: "continuous below floor", mode: models.ModeContinuousSpearman, strength: 0.2, n: 20, expected: false},
		{name: "continuous negative above floor", mode: models.ModeContinuousSpearman, strength: -0.5, n: 20, expected: true},
		{name: "event above floor", mode: models.ModeEventLow, strength: 1.1, n: 20, expected: true},
		{name: "event below floor", mode: models.ModeEventHigh, strength: 0.5, n: 20, expected: false},
		{name: "too few samples", mode: models.ModeContinuousSpearman, strength: 0.9, n: 4, expected: false},
		{name: "zero n skips the sample check", mode: models.ModeContinuousSpearman, strength: 0.9, n: 0, expected: true},
		{name: "unknown mode never strong", mode: "someday_mode", strength: 5, n: 20, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := models.Candidate{Mode: tt.mode, Strength: tt.strength, N: tt.n}
			if got := engine.isStrong(c); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestPromoteStoreFailureIsReported(t *testing.T) {
	store := newMemoryStore()
	store.failGet = true
	engine := NewPromotionEngine(store, DefaultPromotionParams())

	_, err := engine.Promote("u1", "2026-05-01", []models.Candidate{strongCandidate()}, 1)
	if err == nil {
		t.Fatal("expected the store failure to propagate")
	}
}
