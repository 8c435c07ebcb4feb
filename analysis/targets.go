package analysis

import (
	"math"

	models "daywise-insights/database/models_pkg"
)

// ResolvedTargets is the per-user merge of goal layers plus the matched
// reference bands. Recomputed on demand, never persisted.
type ResolvedTargets struct {
	Goals map[string]float64
	Bands map[string]models.NutrientBand
}

// fallbackGoals is the lowest-precedence goal layer, used whenever band
// resolution produces nothing for a nutrient (or fails entirely).
var fallbackGoals = map[string]float64{
	"energy_kcal":  2000,
	"protein_g":    50,
	"fat_g":        70,
	"carbs_g":      260,
	"fiber_g":      28,
	"sugar_g":      50,
	"sodium_mg":    2300,
	"potassium_mg": 3400,
	"calcium_mg":   1000,
	"iron_mg":      8,
	"magnesium_mg": 400,
	"zinc_mg":      11,
	"vitamin_c_mg": 90,
	"vitamin_d_ug": 15,
	"water_ml":     2000,
}

// bandMatches reports whether a reference band applies to the given age/sex.
// A nil band sex is sex-agnostic; a nil MaxYears is unbounded above.
func bandMatches(band models.NutrientBand, age int, sex string) bool {
	if band.Sex != nil && *band.Sex != sex {
		return false
	}
	years := float64(age)
	if years < band.MinYears {
		return false
	}
	if band.MaxYears != nil && years > *band.MaxYears {
		return false
	}
	return true
}

// ResolveTargets resolves per-nutrient goals and safety bands for a user.
//
// Layer precedence, lowest to highest: fallback defaults, dataset-resolved
// bands for the user's age/sex, explicit user overrides. When both a
// sex-specific and a sex-agnostic band match the same nutrient, the
// sex-specific one wins. Resolution never fails: an empty or unusable band
// set degrades to the fallback layer.
func ResolveTargets(age int, sex string, bands []models.NutrientBand, overrides models.OverrideMap) ResolvedTargets {
	if age < 0 {
		age = 0
	}
	if age > 120 {
		age = 120
	}

	matched := make(map[string]models.NutrientBand)
	for _, band := range bands {
		if !bandMatches(band, age, sex) {
			continue
		}
		existing, ok := matched[band.NutrientKey]
		if ok {
			// Sex-specific beats sex-agnostic; first match wins otherwise
			if existing.Sex != nil || band.Sex == nil {
				continue
			}
		}
		matched[band.NutrientKey] = band
	}

	datasetGoals := make(map[string]float64, len(matched))
	for key, band := range matched {
		if band.Recommended != nil && *band.Recommended > 0 {
			datasetGoals[key] = *band.Recommended
		}
	}

	overrideGoals := make(map[string]float64, len(overrides))
	for key, ov := range overrides {
		overrideGoals[key] = ov.Value
	}

	return ResolvedTargets{
		Goals: mergeGoalLayers(fallbackGoals, datasetGoals, overrideGoals),
		Bands: matched,
	}
}

// mergeGoalLayers combines ordered goal layers into one map. Rightmost layer
// wins per key; entries that are non-finite or <= 0 are dropped rather than
// allowed to shadow a lower layer.
func mergeGoalLayers(layers ...map[string]float64) map[string]float64 {
	merged := make(map[string]float64)
	for _, layer := range layers {
		for key, value := range layer {
			if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
				continue
			}
			merged[key] = value
		}
	}
	return merged
}
