package analysis

import (
	"math"
	"testing"

	models "daywise-insights/database/models_pkg"
)

func testTargets(goals map[string]float64, bands map[string]models.NutrientBand) ResolvedTargets {
	if bands == nil {
		bands = map[string]models.NutrientBand{}
	}
	return ResolvedTargets{Goals: goals, Bands: bands}
}

func findCandidate(candidates []models.Candidate, inputKey string) *models.Candidate {
	for i := range candidates {
		if candidates[i].InputKey == inputKey {
			return &candidates[i]
		}
	}
	return nil
}

func TestGenerateRoundupTrustGating(t *testing.T) {
	goals := map[string]float64{
		"energy_kcal": 2000,
		"protein_g":   100,
	}

	tests := []struct {
		name         string
		totals       models.JSONMap
		wantTrusted  bool
		wantLowFlag  bool
		wantStrength float64
	}{
		{
			name:        "untrusted day suppresses low",
			totals:      models.JSONMap{"energy_kcal": 400, "protein_g": 50},
			wantTrusted: false,
			wantLowFlag: false,
		},
		{
			name:         "trusted day flags the same shortfall",
			totals:       models.JSONMap{"energy_kcal": 1500, "protein_g": 50},
			wantTrusted:  true,
			wantLowFlag:  true,
			wantStrength: -0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := &models.DailyRecord{DateKey: "2026-05-01", Totals: tt.totals}
			result := GenerateRoundup(record, testTargets(goals, nil), DefaultRoundupParams())

			if result.IsTrustedDay != tt.wantTrusted {
				t.Errorf("expected trusted=%v, got %v", tt.wantTrusted, result.IsTrustedDay)
			}

			protein := findCandidate(result.Candidates, "protein_g")
			if !tt.wantLowFlag {
				if protein != nil && protein.Bucket == BucketLow {
					t.Error("low flag emitted on untrusted day")
				}
				return
			}
			if protein == nil || protein.Bucket != BucketLow {
				t.Fatal("expected a low flag for protein on trusted day")
			}
			if math.Abs(protein.Strength-tt.wantStrength) > 1e-9 {
				t.Errorf("expected strength %.2f, got %.4f", tt.wantStrength, protein.Strength)
			}
			if protein.Direction != "negative" {
				t.Errorf("expected direction negative, got %s", protein.Direction)
			}
		})
	}
}

func TestGenerateRoundupBucketPrecedence(t *testing.T) {
	upperSafe := 100.0
	upperLimit := 150.0
	goals := map[string]float64{
		"energy_kcal": 2000,
		"sodium_mg":   80,
	}
	bands := map[string]models.NutrientBand{
		"sodium_mg": {
			NutrientKey: "sodium_mg",
			UpperSafe:   &upperSafe,
			UpperLimit:  &upperLimit,
		},
	}

	tests := []struct {
		name       string
		sodium     float64
		wantBucket string
	}{
		{name: "above hard limit", sodium: 160, wantBucket: BucketOverLimit},
		{name: "above safe below limit beats high", sodium: 120, wantBucket: BucketOverSafe},
		{name: "well above goal below safe", sodium: 98, wantBucket: BucketHigh},
		{name: "goal met", sodium: 85, wantBucket: BucketMet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := &models.DailyRecord{
				DateKey: "2026-05-01",
				Totals:  models.JSONMap{"energy_kcal": 1500, "sodium_mg": tt.sodium},
			}
			result := GenerateRoundup(record, testTargets(goals, bands), DefaultRoundupParams())

			sodium := findCandidate(result.Candidates, "sodium_mg")
			if sodium == nil {
				t.Fatal("expected a sodium candidate")
			}
			if sodium.Bucket != tt.wantBucket {
				t.Errorf("expected bucket %s, got %s", tt.wantBucket, sodium.Bucket)
			}
		})
	}
}

func TestGenerateRoundupUntrustedOverageIsHigh(t *testing.T) {
	// On an untrusted day any apparent overage is treated conservatively as
	// high, even below the normal 120% line
	goals := map[string]float64{
		"energy_kcal": 2000,
		"protein_g":   100,
	}
	record := &models.DailyRecord{
		DateKey: "2026-05-01",
		Totals:  models.JSONMap{"energy_kcal": 400, "protein_g": 105},
	}

	result := GenerateRoundup(record, testTargets(goals, nil), DefaultRoundupParams())
	if result.IsTrustedDay {
		t.Fatal("expected an untrusted day")
	}

	protein := findCandidate(result.Candidates, "protein_g")
	if protein == nil || protein.Bucket != BucketHigh {
		t.Fatalf("expected high flag at 105%% on untrusted day, got %+v", protein)
	}
}

func TestGenerateRoundupAliasMerging(t *testing.T) {
	goals := map[string]float64{
		"energy_kcal": 2000,
		"sugar_g":     50,
	}
	record := &models.DailyRecord{
		DateKey: "2026-05-01",
		Totals: models.JSONMap{
			"calories": 1000,
			"energy":   500,
			"sugars_g": 50,
			"sugar":    15,
		},
	}

	result := GenerateRoundup(record, testTargets(goals, nil), DefaultRoundupParams())
	if math.Abs(result.Coverage-0.75) > 1e-9 {
		t.Errorf("expected merged energy coverage 0.75, got %.4f", result.Coverage)
	}

	sugar := findCandidate(result.Candidates, "sugar_g")
	if sugar == nil {
		t.Fatal("expected a sugar candidate from merged aliases")
	}
	if sugar.Bucket != BucketHigh {
		t.Errorf("expected merged sugar 65g vs goal 50 to bucket high, got %s", sugar.Bucket)
	}
	if sugar.Value == nil || math.Abs(*sugar.Value-65) > 1e-9 {
		t.Errorf("expected merged value 65, got %v", sugar.Value)
	}
}

func TestGenerateRoundupEstimatedTotalsAdd(t *testing.T) {
	goals := map[string]float64{"energy_kcal": 2000}
	record := &models.DailyRecord{
		DateKey:         "2026-05-01",
		Totals:          models.JSONMap{"energy_kcal": 800},
		TotalsEstimated: models.JSONMap{"energy_kcal": 600},
	}

	result := GenerateRoundup(record, testTargets(goals, nil), DefaultRoundupParams())
	if math.Abs(result.Coverage-0.7) > 1e-9 {
		t.Errorf("expected coverage 0.7 from confirmed+estimated energy, got %.4f", result.Coverage)
	}
	if !result.IsTrustedDay {
		t.Error("expected the combined energy to cross the trust floor")
	}
}

func TestGenerateRoundupCapOnlyNutrient(t *testing.T) {
	upperSafe := 400.0
	goals := map[string]float64{"energy_kcal": 2000}
	bands := map[string]models.NutrientBand{
		"caffeine_mg": {NutrientKey: "caffeine_mg", UpperSafe: &upperSafe, Unit: "mg"},
	}

	t.Run("below cap emits nothing", func(t *testing.T) {
		record := &models.DailyRecord{
			DateKey: "2026-05-01",
			Totals:  models.JSONMap{"energy_kcal": 1500, "caffeine_mg": 200},
		}
		result := GenerateRoundup(record, testTargets(goals, bands), DefaultRoundupParams())
		if c := findCandidate(result.Candidates, "caffeine_mg"); c != nil {
			t.Errorf("cap-only nutrient under the cap should not flag, got %s", c.Bucket)
		}
	})

	t.Run("above cap flags over_safe against the cap", func(t *testing.T) {
		record := &models.DailyRecord{
			DateKey: "2026-05-01",
			Totals:  models.JSONMap{"energy_kcal": 1500, "caffeine_mg": 450},
		}
		result := GenerateRoundup(record, testTargets(goals, bands), DefaultRoundupParams())
		c := findCandidate(result.Candidates, "caffeine_mg")
		if c == nil {
			t.Fatal("expected an over_safe flag above the cap")
		}
		if c.Bucket != BucketOverSafe {
			t.Errorf("expected over_safe, got %s", c.Bucket)
		}
		if c.ReferenceType != ReferenceCapOnly {
			t.Errorf("expected cap_only reference, got %s", c.ReferenceType)
		}
		if c.Goal == nil || *c.Goal != 400 {
			t.Errorf("expected the cap as denominator, got %v", c.Goal)
		}
	})
}

func TestGenerateRoundupMacroFlags(t *testing.T) {
	goals := map[string]float64{"energy_kcal": 2000}

	t.Run("sugar share high", func(t *testing.T) {
		record := &models.DailyRecord{
			DateKey: "2026-05-01",
			Totals:  models.JSONMap{"energy_kcal": 1600, "sugar_g": 160}, // 40% of energy
		}
		result := GenerateRoundup(record, testTargets(goals, nil), DefaultRoundupParams())
		c := findCandidate(result.Candidates, "sugar_energy_ratio")
		if c == nil || c.Bucket != BucketHigh {
			t.Fatalf("expected a high sugar-share flag, got %+v", c)
		}
	})

	t.Run("protein share low only on trusted days", func(t *testing.T) {
		record := &models.DailyRecord{
			DateKey: "2026-05-01",
			Totals:  models.JSONMap{"energy_kcal": 1600, "protein_g": 40}, // 10% of energy
		}
		result := GenerateRoundup(record, testTargets(goals, nil), DefaultRoundupParams())
		c := findCandidate(result.Candidates, "protein_energy_ratio")
		if c == nil || c.Bucket != BucketLow {
			t.Fatalf("expected a low protein-share flag, got %+v", c)
		}
	})

	t.Run("below minimum energy skips macro flags", func(t *testing.T) {
		record := &models.DailyRecord{
			DateKey: "2026-05-01",
			Totals:  models.JSONMap{"energy_kcal": 300, "sugar_g": 100},
		}
		result := GenerateRoundup(record, testTargets(goals, nil), DefaultRoundupParams())
		if c := findCandidate(result.Candidates, "sugar_energy_ratio"); c != nil {
			t.Error("macro flag emitted below the minimum logged energy")
		}
	})
}

func TestCanonicalizeTotalsDropsNonFinite(t *testing.T) {
	totals := models.JSONMap{
		"protein_g": 50,
		"sugar_g":   math.NaN(),
		"fat_g":     math.Inf(1),
	}
	out := canonicalizeTotals(totals)
	if len(out) != 1 || out["protein_g"] != 50 {
		t.Errorf("expected only protein to survive, got %v", out)
	}
}
