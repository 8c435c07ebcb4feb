package engine

import (
	"testing"

	"daywise-insights/config"
)

func TestIsValidDateKey(t *testing.T) {
	tests := []struct {
		name    string
		dateKey string
		valid   bool
	}{
		{name: "well-formed", dateKey: "2026-05-01", valid: true},
		{name: "leap day", dateKey: "2024-02-29", valid: true},
		{name: "not a leap year", dateKey: "2026-02-29", valid: false},
		{name: "wrong separator", dateKey: "2026/05/01", valid: false},
		{name: "missing zero padding", dateKey: "2026-5-1", valid: false},
		{name: "empty", dateKey: "", valid: false},
		{name: "extra characters", dateKey: "2026-05-01T00", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isValidDateKey(tt.dateKey); got != tt.valid {
				t.Errorf("expected %v for %q, got %v", tt.valid, tt.dateKey, got)
			}
		})
	}
}

func TestWithDefaults(t *testing.T) {
	cfg := config.AnalysisConfig{
		WindowDays:     120,
		LagDays:        1,
		MinSupportDays: 4,
		TopK:           150,
	}
	e := &InsightEngine{cfg: cfg}

	t.Run("zero options fall back to config", func(t *testing.T) {
		opts := e.withDefaults(RunOptions{})
		if opts.WindowDays != 120 || opts.LagDays != 1 || opts.MinSupportDays != 4 || opts.TopK != 150 {
			t.Errorf("unexpected defaults: %+v", opts)
		}
	})

	t.Run("explicit options kept", func(t *testing.T) {
		opts := e.withDefaults(RunOptions{WindowDays: 30, LagDays: 2, TopK: 25})
		if opts.WindowDays != 30 || opts.LagDays != 2 || opts.TopK != 25 {
			t.Errorf("explicit options overridden: %+v", opts)
		}
		if opts.MinSupportDays != 4 {
			t.Errorf("expected config fallback for minSupportDays, got %d", opts.MinSupportDays)
		}
	})

	t.Run("topK floor", func(t *testing.T) {
		opts := e.withDefaults(RunOptions{TopK: 3})
		if opts.TopK != 10 {
			t.Errorf("expected topK clamped to 10, got %d", opts.TopK)
		}
	})
}

func TestFetchCountClamp(t *testing.T) {
	tests := []struct {
		name     string
		days     int
		expected int
	}{
		{name: "tiny window clamps up", days: 5, expected: minFetchRecords},
		{name: "default window passes through", days: 126, expected: 126},
		{name: "huge window clamps down", days: 5000, expected: maxFetchRecords},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clampInt(tt.days, minFetchRecords, maxFetchRecords); got != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, got)
			}
		})
	}
}
