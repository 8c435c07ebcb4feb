package analysis

import (
	"testing"

	models "daywise-insights/database/models_pkg"
)

func dayRecord(dateKey string, totals models.JSONMap, exposure models.JSONMap) models.DailyRecord {
	return models.DailyRecord{
		UserID:              "u1",
		DateKey:             dateKey,
		Totals:              totals,
		IngredientsExposure: exposure,
	}
}

func TestBuildLagPairsCount(t *testing.T) {
	records := []models.DailyRecord{
		dayRecord("2026-05-01", models.JSONMap{"sugar_g": 10, "mood": 5}, nil),
		dayRecord("2026-05-02", models.JSONMap{"sugar_g": 20, "mood": 4}, nil),
		dayRecord("2026-05-03", models.JSONMap{"sugar_g": 30, "mood": 3}, nil),
		dayRecord("2026-05-04", models.JSONMap{"sugar_g": 40, "mood": 2}, nil),
		dayRecord("2026-05-05", models.JSONMap{"sugar_g": 50, "mood": 1}, nil),
	}

	pairs := BuildLagPairs(records, 1)
	if len(pairs) != 4 {
		t.Fatalf("expected 4 pairs from 5 records at lag 1, got %d", len(pairs))
	}

	first := pairs[0]
	if first.DateKeyX != "2026-05-01" || first.DateKeyY != "2026-05-02" {
		t.Errorf("expected first pair 05-01 -> 05-02, got %s -> %s", first.DateKeyX, first.DateKeyY)
	}
	if first.X["sugar_g"] != 10 {
		t.Errorf("expected input from day T, got %.1f", first.X["sugar_g"])
	}
	if first.Y["mood"] != 4 {
		t.Errorf("expected outcome from day T+1, got %.1f", first.Y["mood"])
	}
}

func TestBuildLagPairsOutcomesExcludedFromInputs(t *testing.T) {
	records := []models.DailyRecord{
		dayRecord("2026-05-01", models.JSONMap{"sugar_g": 10, "mood": 5, "clarity_score": 7}, nil),
		dayRecord("2026-05-02", models.JSONMap{"mood": 4}, nil),
	}

	pairs := BuildLagPairs(records, 1)
	if len(pairs) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(pairs))
	}
	if _, ok := pairs[0].X["mood"]; ok {
		t.Error("outcome key leaked into the input vector")
	}
	if _, ok := pairs[0].X["clarity_score"]; ok {
		t.Error("outcome key leaked into the input vector")
	}
}

func TestBuildLagPairsIngredientPrefix(t *testing.T) {
	records := []models.DailyRecord{
		dayRecord("2026-05-01", models.JSONMap{"sugar_g": 10}, models.JSONMap{"peanut": 2}),
		dayRecord("2026-05-02", models.JSONMap{"mood": 4}, nil),
	}

	pairs := BuildLagPairs(records, 1)
	if len(pairs) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(pairs))
	}
	if pairs[0].X["ingredient:peanut"] != 2 {
		t.Errorf("expected prefixed exposure count 2, got %v", pairs[0].X)
	}
	if !IsIngredientFeature("ingredient:peanut") {
		t.Error("prefixed key not recognized as an ingredient feature")
	}
	if IsIngredientFeature("sugar_g") {
		t.Error("nutrient key misclassified as an ingredient feature")
	}
}

func TestBuildLagPairsDropsEmptySides(t *testing.T) {
	records := []models.DailyRecord{
		dayRecord("2026-05-01", models.JSONMap{"sugar_g": 10}, nil),
		dayRecord("2026-05-02", models.JSONMap{"sugar_g": 20}, nil), // no outcomes logged
		dayRecord("2026-05-03", models.JSONMap{"mood": 4}, nil),
	}

	pairs := BuildLagPairs(records, 1)
	if len(pairs) != 1 {
		t.Fatalf("expected only the 05-02 -> 05-03 pair, got %d", len(pairs))
	}
	if pairs[0].DateKeyX != "2026-05-02" {
		t.Errorf("expected surviving pair to start 05-02, got %s", pairs[0].DateKeyX)
	}
}

func TestBuildLagPairsLagTwo(t *testing.T) {
	records := []models.DailyRecord{
		dayRecord("2026-05-01", models.JSONMap{"sugar_g": 10, "mood": 5}, nil),
		dayRecord("2026-05-02", models.JSONMap{"sugar_g": 20, "mood": 4}, nil),
		dayRecord("2026-05-03", models.JSONMap{"sugar_g": 30, "mood": 3}, nil),
	}

	pairs := BuildLagPairs(records, 2)
	if len(pairs) != 1 {
		t.Fatalf("expected 1 pair at lag 2, got %d", len(pairs))
	}
	if pairs[0].DateKeyX != "2026-05-01" || pairs[0].DateKeyY != "2026-05-03" {
		t.Errorf("expected 05-01 -> 05-03, got %s -> %s", pairs[0].DateKeyX, pairs[0].DateKeyY)
	}
}

func TestBuildLagPairsTooFewRecords(t *testing.T) {
	records := []models.DailyRecord{
		dayRecord("2026-05-01", models.JSONMap{"sugar_g": 10, "mood": 5}, nil),
	}
	if pairs := BuildLagPairs(records, 1); len(pairs) != 0 {
		t.Errorf("expected no pairs from a single record, got %d", len(pairs))
	}
}
