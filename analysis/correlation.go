package analysis

import (
	"fmt"
	"math"
	"sort"

	models "daywise-insights/database/models_pkg"
)

// CorrelationParams are the statistics thresholds (see config.AnalysisConfig).
// These cutoffs are tuned heuristics, not load-bearing semantics.
type CorrelationParams struct {
	MinSupportDays      int
	TopK                int
	MinAlignedPairs     int
	EventLowPercentile  float64
	EventHighPercentile float64
	MinEventDays        int
	MinNonEventDays     int
	MinSpearmanRho      float64
}

// DefaultCorrelationParams returns the stock thresholds
func DefaultCorrelationParams() CorrelationParams {
	return CorrelationParams{
		MinSupportDays:      4,
		TopK:                150,
		MinAlignedPairs:     10,
		EventLowPercentile:  0.20,
		EventHighPercentile: 0.80,
		MinEventDays:        3,
		MinNonEventDays:     5,
		MinSpearmanRho:      0.15,
	}
}

// CorrelationResult is the capped candidate list for one window, plus the
// status message set when the window had too little data
type CorrelationResult struct {
	Candidates []models.Candidate
	PairCount  int
	Message    string
}

// ComputeCorrelations runs both analysis modes over the aligned pairs.
//
// Event mode compares an input's distribution on extreme-outcome days
// (beyond the 20th/80th outcome percentile) against all other days,
// summarized as an effect size. Continuous mode is Spearman rank correlation
// over the full joint-finite range. Too few pairs is not an error: the
// result carries zero candidates and an explanatory message.
func ComputeCorrelations(pairs []LagPair, params CorrelationParams) CorrelationResult {
	result := CorrelationResult{PairCount: len(pairs)}

	if len(pairs) < params.MinAlignedPairs {
		result.Message = fmt.Sprintf("not enough aligned day pairs for correlation (%d, need %d)",
			len(pairs), params.MinAlignedPairs)
		return result
	}

	inputs := eligibleInputs(pairs, params.MinSupportDays)
	if len(inputs) == 0 {
		result.Message = "no input feature has enough logged days for correlation"
		return result
	}

	outcomes := make(map[string]bool)
	for _, pair := range pairs {
		for key := range pair.Y {
			outcomes[key] = true
		}
	}

	var candidates []models.Candidate
	for outcome := range outcomes {
		values := outcomeValues(pairs, outcome)
		if len(values) < params.MinAlignedPairs {
			continue
		}
		lowThr := Percentile(values, params.EventLowPercentile)
		highThr := Percentile(values, params.EventHighPercentile)

		for _, input := range inputs {
			candidates = append(candidates,
				eventCandidates(pairs, input, outcome, lowThr, highThr, params)...)

			if c, ok := continuousCandidate(pairs, input, outcome, params); ok {
				candidates = append(candidates, c)
			}
		}
	}

	result.Candidates = RankCandidates(candidates, params.TopK)
	return result
}

// eligibleInputs returns input features with a finite value in at least
// minSupport pairs, sorted for deterministic output. The support filter keeps
// one-off foods from generating spurious correlations.
func eligibleInputs(pairs []LagPair, minSupport int) []string {
	if minSupport < 1 {
		minSupport = 1
	}
	counts := make(map[string]int)
	for _, pair := range pairs {
		for key, value := range pair.X {
			if isFinite(value) {
				counts[key]++
			}
		}
	}
	var inputs []string
	for key, n := range counts {
		if n >= minSupport {
			inputs = append(inputs, key)
		}
	}
	sort.Strings(inputs)
	return inputs
}

// outcomeValues collects the finite values of one outcome across all pairs
func outcomeValues(pairs []LagPair, outcome string) []float64 {
	var values []float64
	for _, pair := range pairs {
		if v, ok := pair.Y[outcome]; ok && isFinite(v) {
			values = append(values, v)
		}
	}
	return values
}

// eventCandidates runs the low-event and high-event comparisons for one
// (input, outcome) combination
func eventCandidates(pairs []LagPair, input, outcome string, lowThr, highThr float64, params CorrelationParams) []models.Candidate {
	var out []models.Candidate

	kinds := []struct {
		mode      string
		threshold float64
		isEvent   func(y float64) bool
	}{
		{models.ModeEventLow, lowThr, func(y float64) bool { return y <= lowThr }},
		{models.ModeEventHigh, highThr, func(y float64) bool { return y >= highThr }},
	}

	for _, kind := range kinds {
		var eventVals, nonEventVals []float64
		for _, pair := range pairs {
			x, okX := pair.X[input]
			y, okY := pair.Y[outcome]
			if !okX || !okY || !isFinite(x) || !isFinite(y) {
				continue
			}
			if kind.isEvent(y) {
				eventVals = append(eventVals, x)
			} else {
				nonEventVals = append(nonEventVals, x)
			}
		}

		if len(eventVals) < params.MinEventDays || len(nonEventVals) < params.MinNonEventDays {
			continue
		}

		meanEvent := mean(eventVals)
		meanNonEvent := mean(nonEventVals)
		delta := meanEvent - meanNonEvent
		pooled := pooledStdev(eventVals, nonEventVals)

		// Effect size; raw delta when both groups are constant
		d := delta
		if pooled > 0 {
			d = delta / pooled
		}
		if !isFinite(d) {
			continue
		}

		direction := "positive"
		if d < 0 {
			direction = "negative"
		}

		threshold := kind.threshold
		out = append(out, models.Candidate{
			InputKey:     input,
			OutputKey:    outcome,
			Mode:         kind.mode,
			Direction:    direction,
			Strength:     d,
			N:            len(eventVals) + len(nonEventVals),
			NEvent:       len(eventVals),
			NNonEvent:    len(nonEventVals),
			MeanEvent:    floatPtr(meanEvent),
			MeanNonEvent: floatPtr(meanNonEvent),
			Threshold:    floatPtr(threshold),
			Delta:        floatPtr(delta),
		})
	}

	return out
}

// continuousCandidate computes the Spearman candidate for one (input, outcome)
// combination, when enough joint-finite pairs exist and |rho| clears the floor
func continuousCandidate(pairs []LagPair, input, outcome string, params CorrelationParams) (models.Candidate, bool) {
	var xs, ys []float64
	for _, pair := range pairs {
		x, okX := pair.X[input]
		y, okY := pair.Y[outcome]
		if !okX || !okY || !isFinite(x) || !isFinite(y) {
			continue
		}
		xs = append(xs, x)
		ys = append(ys, y)
	}

	if len(xs) < params.MinAlignedPairs {
		return models.Candidate{}, false
	}

	rho := SpearmanRho(xs, ys)
	if !isFinite(rho) || math.Abs(rho) < params.MinSpearmanRho {
		return models.Candidate{}, false
	}

	direction := "positive"
	if rho < 0 {
		direction = "negative"
	}

	return models.Candidate{
		InputKey:  input,
		OutputKey: outcome,
		Mode:      models.ModeContinuousSpearman,
		Direction: direction,
		Strength:  rho,
		N:         len(xs),
	}, true
}

// RankCandidates caps the emitted findings per (outputKey, mode) group:
// each group sorted by descending absolute strength and truncated to topK
// (clamped to at least 10). Group order in the result is deterministic.
func RankCandidates(candidates []models.Candidate, topK int) []models.Candidate {
	if topK < 10 {
		topK = 10
	}

	groups := make(map[string][]models.Candidate)
	var order []string
	for _, c := range candidates {
		key := c.OutputKey + "|" + c.Mode
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], c)
	}
	sort.Strings(order)

	var out []models.Candidate
	for _, key := range order {
		group := groups[key]
		sort.SliceStable(group, func(i, j int) bool {
			return math.Abs(group[i].Strength) > math.Abs(group[j].Strength)
		})
		if len(group) > topK {
			group = group[:topK]
		}
		out = append(out, group...)
	}
	return out
}

// ============================================================================
// Rank statistics
// ============================================================================

// Percentile returns the p-quantile (0 <= p <= 1) of values using linear
// interpolation over the sorted data. The input slice is not modified.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}

	idx := float64(len(sorted)-1) * p
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// SpearmanRho computes Spearman's rank correlation: average ranks for ties,
// then Pearson over the ranks. Returns NaN when either side is constant.
func SpearmanRho(x, y []float64) float64 {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	if n < 2 {
		return math.NaN()
	}
	return pearson(averageRanks(x[:n]), averageRanks(y[:n]))
}

// averageRanks assigns 1-based ranks with tied values sharing their average rank
func averageRanks(values []float64) []float64 {
	n := len(values)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		return values[idx[a]] < values[idx[b]]
	})

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && values[idx[j+1]] == values[idx[i]] {
			j++
		}
		// Positions i..j hold ties; each gets the average of ranks i+1..j+1
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}
	return ranks
}

// pearson computes the Pearson correlation coefficient between two datasets
func pearson(x, y []float64) float64 {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	if n < 2 {
		return math.NaN()
	}

	sumX, sumY, sumXY, sumX2, sumY2 := 0.0, 0.0, 0.0, 0.0, 0.0
	for i := 0; i < n; i++ {
		sumX += x[i]
		sumY += y[i]
		sumXY += x[i] * y[i]
		sumX2 += x[i] * x[i]
		sumY2 += y[i] * y[i]
	}

	numerator := float64(n)*sumXY - sumX*sumY
	denominator := math.Sqrt((float64(n)*sumX2 - sumX*sumX) * (float64(n)*sumY2 - sumY*sumY))

	if denominator == 0 {
		return math.NaN()
	}

	return numerator / denominator
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// pooledStdev is the pooled standard deviation across two groups
func pooledStdev(a, b []float64) float64 {
	na, nb := len(a), len(b)
	if na+nb < 2 {
		return 0
	}
	varA := variance(a)
	varB := variance(b)
	pooledVar := (float64(na-1)*varA + float64(nb-1)*varB) / float64(na+nb-2)
	if pooledVar <= 0 {
		return 0
	}
	return math.Sqrt(pooledVar)
}

// variance is the sample variance (n-1 denominator)
func variance(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return sum / float64(n-1)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
