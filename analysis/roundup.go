package analysis

import (
	"math"

	models "daywise-insights/database/models_pkg"
)

// Roundup buckets, in decision priority order
const (
	BucketOverLimit = "over_limit"
	BucketOverSafe  = "over_safe"
	BucketMet       = "met"
	BucketLow       = "low"
	BucketHigh      = "high"
)

// Reference types stamped onto roundup candidates
const (
	ReferenceGoal    = "goal"
	ReferenceCapOnly = "cap_only"
)

// nutrientAliases canonicalizes historical nutrient-key spellings so the same
// nutrient is never double-counted under two names. New aliases are data:
// extend this table, do not special-case keys in code.
var nutrientAliases = map[string]string{
	"calories":     "energy_kcal",
	"kcal":         "energy_kcal",
	"energy":       "energy_kcal",
	"protein":      "protein_g",
	"fat":          "fat_g",
	"fat_total_g":  "fat_g",
	"carbs":        "carbs_g",
	"carbohydrate": "carbs_g",
	"sugars_g":     "sugar_g",
	"sugar":        "sugar_g",
	"fibre_g":      "fiber_g",
	"sodium":       "sodium_mg",
	"salt_mg":      "sodium_mg",
	"vit_c_mg":     "vitamin_c_mg",
	"vitamin_c":    "vitamin_c_mg",
	"vit_d_ug":     "vitamin_d_ug",
	"caffeine":     "caffeine_mg",
	"water":        "water_ml",
}

// canonicalKey maps a nutrient key through the alias table
func canonicalKey(key string) string {
	if canon, ok := nutrientAliases[key]; ok {
		return canon
	}
	return key
}

// canonicalizeTotals rewrites a totals map onto canonical nutrient keys,
// summing values that merge onto the same key. Non-finite values are dropped.
func canonicalizeTotals(totals models.JSONMap) map[string]float64 {
	out := make(map[string]float64, len(totals))
	for key, value := range totals {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			continue
		}
		out[canonicalKey(key)] += value
	}
	return out
}

// RoundupParams are the roundup thresholds (see config.AnalysisConfig)
type RoundupParams struct {
	TrustCoverageMin   float64
	LowPctThreshold    float64
	HighPctThreshold   float64
	MacroMinEnergyKcal float64
}

// DefaultRoundupParams returns the stock thresholds
func DefaultRoundupParams() RoundupParams {
	return RoundupParams{
		TrustCoverageMin:   0.60,
		LowPctThreshold:    0.80,
		HighPctThreshold:   1.20,
		MacroMinEnergyKcal: 500,
	}
}

// RoundupResult holds one day's roundup findings plus the trust context
type RoundupResult struct {
	Candidates   []models.Candidate
	Coverage     float64
	IsTrustedDay bool
}

// GenerateRoundup classifies one day's nutrient totals against resolved
// targets. Confirmed and estimated totals are additive. Days with low energy
// coverage are untrusted: "low" flags are suppressed on them (missing logs,
// not missing nutrients), and apparent overages are conservatively flagged
// "high" from 100% of goal instead of 120%.
func GenerateRoundup(record *models.DailyRecord, targets ResolvedTargets, params RoundupParams) RoundupResult {
	totals := canonicalizeTotals(record.Totals)
	estimated := canonicalizeTotals(record.TotalsEstimated)

	combined := make(map[string]float64, len(totals)+len(estimated))
	for key, value := range totals {
		combined[key] += value
	}
	for key, value := range estimated {
		combined[key] += value
	}

	// Energy coverage drives the trust heuristic
	energyGoal := targets.Goals["energy_kcal"]
	energyLogged := combined["energy_kcal"]
	coverage := 0.0
	if energyGoal > 0 {
		coverage = clamp(energyLogged/energyGoal, 0, 3)
	}
	trusted := coverage >= params.TrustCoverageMin

	result := RoundupResult{
		Coverage:     coverage,
		IsTrustedDay: trusted,
	}

	// Evaluate every key with a goal, plus cap-only keys that carry a safety
	// ceiling without any recommended amount
	evaluate := make(map[string]bool, len(targets.Goals))
	for key := range targets.Goals {
		evaluate[key] = true
	}
	for key, band := range targets.Bands {
		if band.UpperSafe != nil || band.UpperLimit != nil {
			evaluate[key] = true
		}
	}

	for key := range evaluate {
		actual := combined[key]
		if math.IsNaN(actual) || math.IsInf(actual, 0) {
			continue
		}

		band, hasBand := targets.Bands[key]
		goal, hasGoal := targets.Goals[key]
		capOnly := !hasGoal

		// Cap-only nutrients measure against the cap itself
		goalValue := goal
		if capOnly {
			if hasBand && band.UpperSafe != nil {
				goalValue = *band.UpperSafe
			} else if hasBand && band.UpperLimit != nil {
				goalValue = *band.UpperLimit
			}
		}
		if goalValue <= 0 {
			continue
		}

		pctGoal := actual / goalValue

		bucket := ""
		switch {
		case hasBand && band.UpperLimit != nil && actual > *band.UpperLimit:
			bucket = BucketOverLimit
		case hasBand && band.UpperSafe != nil && actual > *band.UpperSafe:
			bucket = BucketOverSafe
		case capOnly:
			// No goal to meet or undershoot
		case pctGoal >= params.HighPctThreshold || (pctGoal >= 1.0 && !trusted):
			bucket = BucketHigh
		case actual >= goal:
			bucket = BucketMet
		case pctGoal < params.LowPctThreshold && trusted:
			bucket = BucketLow
		}
		if bucket == "" {
			continue
		}

		result.Candidates = append(result.Candidates,
			newRoundupCandidate(key, bucket, actual, goalValue, pctGoal, coverage, trusted, band, hasBand, capOnly))
	}

	// Macro composition flags, independent of per-nutrient goals
	if energyLogged >= params.MacroMinEnergyKcal {
		result.Candidates = append(result.Candidates,
			macroFlags(combined, energyLogged, coverage, trusted)...)
	}

	return result
}

// macroFlags evaluates energy-share ratios on sufficiently-logged days
func macroFlags(combined map[string]float64, energyLogged, coverage float64, trusted bool) []models.Candidate {
	var flags []models.Candidate

	emit := func(key, bucket string, ratio, threshold float64) {
		pct := ratio / threshold
		band := models.NutrientBand{}
		c := newRoundupCandidate(key, bucket, ratio, threshold, pct, coverage, trusted, band, false, false)
		c.ReferenceType = ReferenceGoal
		flags = append(flags, c)
	}

	if sugar := combined["sugar_g"]; sugar > 0 {
		ratio := sugar * 4 / energyLogged
		if ratio >= 0.35 {
			emit("sugar_energy_ratio", BucketHigh, ratio, 0.35)
		}
	}
	if protein := combined["protein_g"]; protein >= 0 {
		ratio := protein * 4 / energyLogged
		if ratio <= 0.12 && trusted {
			emit("protein_energy_ratio", BucketLow, ratio, 0.12)
		}
	}
	if fat := combined["fat_g"]; fat > 0 {
		ratio := fat * 9 / energyLogged
		if ratio >= 0.55 {
			emit("fat_energy_ratio", BucketHigh, ratio, 0.55)
		}
	}

	return flags
}

func newRoundupCandidate(key, bucket string, actual, goalValue, pctGoal, coverage float64, trusted bool, band models.NutrientBand, hasBand, capOnly bool) models.Candidate {
	strength := pctGoal - 1
	direction := "positive"
	if strength < 0 {
		direction = "negative"
	}

	refType := ReferenceGoal
	if capOnly {
		refType = ReferenceCapOnly
	}

	c := models.Candidate{
		InputKey:      key,
		OutputKey:     models.OutputDailyRoundup,
		Mode:          models.ModeDailyRoundup,
		Direction:     direction,
		Strength:      strength,
		Bucket:        bucket,
		Value:         floatPtr(actual),
		Goal:          floatPtr(goalValue),
		PctGoal:       floatPtr(pctGoal),
		Coverage:      floatPtr(coverage),
		IsTrustedDay:  boolPtr(trusted),
		ReferenceType: refType,
	}
	if hasBand {
		c.LowerSafe = band.LowerSafe
		c.UpperSafe = band.UpperSafe
		c.UpperLimit = band.UpperLimit
		c.Unit = band.Unit
	}
	return c
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool        { return &v }
