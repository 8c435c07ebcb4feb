package analysis

import (
	"math"
	"strings"

	models "daywise-insights/database/models_pkg"
)

// outcomeKeys is the fixed set of next-day outcomes, read from Totals.
// Everything else numeric in Totals is an input.
var outcomeKeys = map[string]bool{
	"mood":              true,
	"clarity_score":     true,
	"pain_peak":         true,
	"pain_region_count": true,
	"energy_level":      true,
}

// ingredientPrefix namespaces ingredient exposures away from nutrient keys
const ingredientPrefix = "ingredient:"

// LagPair aligns day T's inputs with day T+lag's outcomes
type LagPair struct {
	X        map[string]float64
	Y        map[string]float64
	DateKeyX string
	DateKeyY string
}

// extractInputs pulls the input feature vector from a record: every finite
// numeric total that is not an outcome key, plus prefixed ingredient
// exposures. Exposure counts are used raw; if per-day presence or another
// normalization turns out to be the better policy, this is the only place
// that changes.
func extractInputs(record *models.DailyRecord) map[string]float64 {
	features := make(map[string]float64)
	for key, value := range record.Totals {
		if outcomeKeys[key] {
			continue
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			continue
		}
		features[canonicalKey(key)] += value
	}
	for key, count := range record.IngredientsExposure {
		if math.IsNaN(count) || math.IsInf(count, 0) {
			continue
		}
		features[ingredientPrefix+key] = count
	}
	return features
}

// extractOutcomes pulls the fixed outcome set from a record's totals
func extractOutcomes(record *models.DailyRecord) map[string]float64 {
	outcomes := make(map[string]float64)
	for key := range outcomeKeys {
		value, ok := record.Totals[key]
		if !ok || math.IsNaN(value) || math.IsInf(value, 0) {
			continue
		}
		outcomes[key] = value
	}
	return outcomes
}

// IsIngredientFeature reports whether an input key is an ingredient exposure
func IsIngredientFeature(key string) bool {
	return strings.HasPrefix(key, ingredientPrefix)
}

// BuildLagPairs aligns a user's records into (input-day, outcome-day) pairs
// offset by lagDays. Records must already be sorted ascending by DateKey.
// Pairs where either side extracts nothing are dropped, not zero-filled.
func BuildLagPairs(records []models.DailyRecord, lagDays int) []LagPair {
	if lagDays < 1 {
		lagDays = 1
	}

	var pairs []LagPair
	for i := 0; i+lagDays < len(records); i++ {
		x := extractInputs(&records[i])
		if len(x) == 0 {
			continue
		}
		y := extractOutcomes(&records[i+lagDays])
		if len(y) == 0 {
			continue
		}
		pairs = append(pairs, LagPair{
			X:        x,
			Y:        y,
			DateKeyX: records[i].DateKey,
			DateKeyY: records[i+lagDays].DateKey,
		})
	}
	return pairs
}
