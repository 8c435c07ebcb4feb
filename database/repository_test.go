package database

import (
	"math"
	"testing"
	"time"
)

func TestSanitizeCandidates(t *testing.T) {
	tests := []struct {
		name     string
		input    []Candidate
		expected int
	}{
		{
			name: "valid candidates pass through",
			input: []Candidate{
				{InputKey: "sugar_g", OutputKey: "mood", Mode: "continuous_spearman", Strength: -0.4},
				{InputKey: "fiber_g", OutputKey: "mood", Mode: "event_low", Strength: 0.9},
			},
			expected: 2,
		},
		{
			name: "missing input key dropped",
			input: []Candidate{
				{OutputKey: "mood", Strength: 0.5},
			},
			expected: 0,
		},
		{
			name: "missing output key dropped",
			input: []Candidate{
				{InputKey: "sugar_g", Strength: 0.5},
			},
			expected: 0,
		},
		{
			name: "non-finite strength dropped",
			input: []Candidate{
				{InputKey: "sugar_g", OutputKey: "mood", Strength: math.NaN()},
				{InputKey: "fiber_g", OutputKey: "mood", Strength: math.Inf(-1)},
			},
			expected: 0,
		},
		{
			name: "mixed batch keeps only the valid entry",
			input: []Candidate{
				{InputKey: "sugar_g", OutputKey: "mood", Strength: 0.5},
				{InputKey: "", OutputKey: "mood", Strength: 0.5},
				{InputKey: "fat_g", OutputKey: "mood", Strength: math.NaN()},
			},
			expected: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeCandidates(tt.input)
			if len(got) != tt.expected {
				t.Errorf("expected %d candidates, got %d", tt.expected, len(got))
			}
		})
	}
}

func TestSanitizeCandidatesInfersDirection(t *testing.T) {
	got := SanitizeCandidates([]Candidate{
		{InputKey: "sugar_g", OutputKey: "mood", Strength: -0.4},
		{InputKey: "fiber_g", OutputKey: "mood", Strength: 0.4},
		{InputKey: "fat_g", OutputKey: "mood", Strength: 0.4, Direction: "negative"},
	})
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	if got[0].Direction != "negative" {
		t.Errorf("expected inferred negative, got %s", got[0].Direction)
	}
	if got[1].Direction != "positive" {
		t.Errorf("expected inferred positive, got %s", got[1].Direction)
	}
	// An explicit direction is never overwritten
	if got[2].Direction != "negative" {
		t.Errorf("expected explicit direction kept, got %s", got[2].Direction)
	}
}

func TestSanitizeCandidatesDoesNotModifyInput(t *testing.T) {
	input := []Candidate{
		{InputKey: "sugar_g", OutputKey: "mood", Strength: -0.4},
	}
	SanitizeCandidates(input)
	if input[0].Direction != "" {
		t.Error("input slice was mutated")
	}
}

func TestMergePackPreservesIdentity(t *testing.T) {
	created := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	existing := &CorrelationPack{
		ID:               42,
		UserID:           "u1",
		DateKey:          "2026-05-01",
		AlgorithmVersion: "lag1_v2",
		StoredCount:      3,
		CreatedAt:        created,
	}
	incoming := CorrelationPack{
		UserID:           "u1",
		DateKey:          "2026-05-01",
		AlgorithmVersion: "lag1_v2",
		Candidates: []Candidate{
			{InputKey: "sugar_g", OutputKey: "mood", Strength: -0.4, Direction: "negative"},
		},
		StoredCount: 1,
		WindowDays:  120,
		LagDays:     1,
	}

	merged := MergePack(existing, incoming)

	if merged.ID != 42 {
		t.Errorf("expected the existing row ID 42, got %d", merged.ID)
	}
	if !merged.CreatedAt.Equal(created) {
		t.Errorf("expected the first-insert CreatedAt preserved, got %v", merged.CreatedAt)
	}
	if merged.StoredCount != 1 || len(merged.Candidates) != 1 {
		t.Errorf("expected the incoming candidates to replace, got %d stored", merged.StoredCount)
	}
	if merged.WindowDays != 120 {
		t.Errorf("expected incoming metadata, got windowDays %d", merged.WindowDays)
	}
}

func TestMergePackNoExisting(t *testing.T) {
	incoming := CorrelationPack{
		UserID:      "u1",
		DateKey:     "2026-05-01",
		StoredCount: 2,
	}
	merged := MergePack(nil, incoming)
	if merged.ID != 0 {
		t.Errorf("expected a fresh row, got ID %d", merged.ID)
	}
	if merged.StoredCount != 2 {
		t.Errorf("expected incoming pack unchanged, got %d", merged.StoredCount)
	}
}
