package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"daywise-insights/analysis"
	"daywise-insights/cache"
	"daywise-insights/config"
	"daywise-insights/database"
	"daywise-insights/notifications"
	"daywise-insights/realtime"
)

// AlgorithmVersion keys stored packs; bump it when the candidate semantics
// change so old packs are not overwritten by a different algorithm.
const AlgorithmVersion = "lag1_v2"

// recordFetchBuffer pads the fetched record count past windowDays+lagDays so
// sparse logging at the window edge does not starve the pair builder
const recordFetchBuffer = 5

// Fetched-history clamp; this bound, not cancellation, is what keeps a run
// over a large history affordable
const (
	minFetchRecords = 30
	maxFetchRecords = 450
)

// RunOptions are the per-run analysis parameters. Zero fields fall back to
// the configured defaults.
type RunOptions struct {
	WindowDays       int  `json:"window_days"`
	LagDays          int  `json:"lag_days"`
	MinSupportDays   int  `json:"min_support_days"`
	TopK             int  `json:"top_k"`
	BackfillRoundups bool `json:"backfill_roundups"`
}

// RoundupSummary describes the roundup half of a run result
type RoundupSummary struct {
	StoredCount    int    `json:"stored_count"`
	DateKey        string `json:"date_key"`
	BackfilledDays int    `json:"backfilled_days"`
}

// RunResult is the structured outcome of one analysis run
type RunResult struct {
	StoredCount   int                  `json:"stored_count"`
	PromotedCount int                  `json:"promoted_count"`
	Top           []database.Candidate `json:"top"`
	Roundup       RoundupSummary       `json:"roundup"`
	Message       string               `json:"message,omitempty"`
}

// InsightEngine orchestrates one user's analysis run: roundup flags, lag
// correlation, pack storage, and promotion
type InsightEngine struct {
	repo     *database.InsightRepository
	redis    *cache.RedisClient
	broker   *realtime.Broker
	webhooks *notifications.WebhookManager
	cfg      config.AnalysisConfig
}

// NewInsightEngine creates the engine. redis, broker and webhooks may be nil
// (caching and push are best-effort extras).
func NewInsightEngine(repo *database.InsightRepository, redis *cache.RedisClient, broker *realtime.Broker, webhooks *notifications.WebhookManager, cfg config.AnalysisConfig) *InsightEngine {
	return &InsightEngine{
		repo:     repo,
		redis:    redis,
		broker:   broker,
		webhooks: webhooks,
		cfg:      cfg,
	}
}

// RunAnalysis executes a full analysis run for one user.
//
// The roundup pass and the correlation pass are independent: an
// insufficient-data outcome or a failure in one never blocks the other.
// Input-shape errors return (nil, err); persistence failures return the
// partial result together with the joined error, so a fire-and-forget
// trigger can log it while a synchronous caller still sees what stored.
func (e *InsightEngine) RunAnalysis(userID string, opts RunOptions) (*RunResult, error) {
	if userID == "" {
		return nil, database.NewValidationError("user_id", "must not be empty")
	}

	opts = e.withDefaults(opts)
	result := &RunResult{}
	var persistErrs []error

	fetchCount := clampInt(opts.WindowDays+opts.LagDays+recordFetchBuffer, minFetchRecords, maxFetchRecords)
	records, err := e.repo.GetRecentDailyRecords(userID, fetchCount)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch daily records: %w", err)
	}
	if len(records) == 0 {
		result.Message = "no daily records logged yet"
		return result, nil
	}

	latest := records[len(records)-1]
	if !isValidDateKey(latest.DateKey) {
		return nil, database.NewValidationErrorWithValue("date_key", "malformed date key on daily record", latest.DateKey)
	}

	// Targets are resolved once and reused by every roundup in this run
	targets := e.resolveTargets(userID)
	meta := database.PackMetadata{WindowDays: opts.WindowDays, LagDays: opts.LagDays}

	// Roundup pass
	roundup := analysis.GenerateRoundup(&latest, targets, e.roundupParams())
	result.Roundup.DateKey = latest.DateKey
	result.Roundup.StoredCount = len(database.SanitizeCandidates(roundup.Candidates))

	if opts.BackfillRoundups {
		backfilled, backfillErr := e.backfillRoundups(userID, records[:len(records)-1], targets, meta)
		result.Roundup.BackfilledDays = backfilled
		if backfillErr != nil {
			persistErrs = append(persistErrs, backfillErr)
		}
	}

	// Correlation pass
	pairs := analysis.BuildLagPairs(records, opts.LagDays)
	corr := analysis.ComputeCorrelations(pairs, e.correlationParams(opts))
	if corr.Message != "" {
		result.Message = corr.Message
	}
	result.Top = corr.Candidates
	result.StoredCount = len(database.SanitizeCandidates(corr.Candidates))

	// One pack per run day carries both kinds of findings
	packCandidates := append(append([]database.Candidate{}, roundup.Candidates...), corr.Candidates...)
	if _, err := e.repo.SaveCorrelationPack(userID, latest.DateKey, AlgorithmVersion, packCandidates, meta); err != nil {
		log.Printf("❌ Failed to store correlation pack for %s/%s: %v", userID, latest.DateKey, err)
		persistErrs = append(persistErrs, err)
	}

	// Promotion pass
	promo := analysis.NewPromotionEngine(e.repo, e.promotionParams())
	surfaced, promoErr := promo.Promote(userID, latest.DateKey, corr.Candidates, opts.LagDays)
	if promoErr != nil {
		persistErrs = append(persistErrs, promoErr)
	}
	result.PromotedCount = len(surfaced)

	for i := range surfaced {
		e.announceSurfaced(&surfaced[i])
	}
	if len(surfaced) > 0 && e.redis != nil {
		_ = e.redis.Delete(context.Background(), cache.SurfacedListKey(userID))
	}

	return result, errors.Join(persistErrs...)
}

// backfillRoundups stores roundup-only packs for window days that have none
func (e *InsightEngine) backfillRoundups(userID string, records []database.DailyRecord, targets analysis.ResolvedTargets, meta database.PackMetadata) (int, error) {
	backfilled := 0
	var errs []error

	for i := range records {
		record := &records[i]
		if !isValidDateKey(record.DateKey) {
			continue
		}
		exists, err := e.repo.HasCorrelationPack(userID, record.DateKey, AlgorithmVersion)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if exists {
			continue
		}

		roundup := analysis.GenerateRoundup(record, targets, e.roundupParams())
		if len(roundup.Candidates) == 0 {
			continue
		}
		if _, err := e.repo.SaveCorrelationPack(userID, record.DateKey, AlgorithmVersion, roundup.Candidates, meta); err != nil {
			log.Printf("⚠️  Failed to backfill roundup pack for %s/%s: %v", userID, record.DateKey, err)
			errs = append(errs, err)
			continue
		}
		backfilled++
	}

	return backfilled, errors.Join(errs...)
}

// resolveTargets builds the per-user goal and band maps. Any resolution
// failure (missing profile, missing age, band fetch error) degrades to the
// fallback defaults; it never fails the run.
func (e *InsightEngine) resolveTargets(userID string) analysis.ResolvedTargets {
	profile, err := e.repo.GetUserProfile(userID)
	if err != nil {
		log.Printf("⚠️  Failed to load profile for %s, using fallback targets: %v", userID, err)
		return analysis.ResolveTargets(0, "", nil, nil)
	}
	if profile == nil || profile.AgeYears == nil {
		var overrides database.OverrideMap
		if profile != nil {
			overrides = profile.TargetOverrides
		}
		return analysis.ResolveTargets(0, "", nil, overrides)
	}

	sex := ""
	if profile.Sex != nil {
		sex = *profile.Sex
	}

	bands := e.nutrientBands(profile.ProfileKey)
	return analysis.ResolveTargets(*profile.AgeYears, sex, bands, profile.TargetOverrides)
}

// nutrientBands loads the reference dataset, redis-cached per version
func (e *InsightEngine) nutrientBands(profileKey string) []database.NutrientBand {
	ctx := context.Background()
	key := cache.NutrientBandsKey(profileKey)

	if e.redis != nil {
		var cached []database.NutrientBand
		if err := e.redis.Get(ctx, key, &cached); err == nil && len(cached) > 0 {
			return cached
		}
	}

	bands, err := e.repo.GetNutrientBands(profileKey)
	if err != nil {
		log.Printf("⚠️  Failed to load nutrient bands for %s: %v", profileKey, err)
		return nil
	}

	if e.redis != nil && len(bands) > 0 {
		_ = e.redis.Set(ctx, key, bands, 12*time.Hour)
	}
	return bands
}

// ResolveTargetsForUser exposes target resolution to the API layer
func (e *InsightEngine) ResolveTargetsForUser(userID string) analysis.ResolvedTargets {
	return e.resolveTargets(userID)
}

// announceSurfaced pushes a newly surfaced correlation to SSE clients and
// registered webhooks
func (e *InsightEngine) announceSurfaced(row *database.PromotedCorrelation) {
	if e.broker != nil {
		e.broker.BroadcastSurfaced(*row)
	}
	if e.webhooks != nil {
		e.webhooks.NotifySurfaced(row)
	}
}

func (e *InsightEngine) withDefaults(opts RunOptions) RunOptions {
	if opts.WindowDays <= 0 {
		opts.WindowDays = e.cfg.WindowDays
	}
	if opts.LagDays <= 0 {
		opts.LagDays = e.cfg.LagDays
	}
	if opts.MinSupportDays <= 0 {
		opts.MinSupportDays = e.cfg.MinSupportDays
	}
	if opts.TopK <= 0 {
		opts.TopK = e.cfg.TopK
	}
	if opts.TopK < 10 {
		opts.TopK = 10
	}
	return opts
}

func (e *InsightEngine) roundupParams() analysis.RoundupParams {
	return analysis.RoundupParams{
		TrustCoverageMin:   e.cfg.TrustCoverageMin,
		LowPctThreshold:    e.cfg.LowPctThreshold,
		HighPctThreshold:   e.cfg.HighPctThreshold,
		MacroMinEnergyKcal: e.cfg.MacroMinEnergyKcal,
	}
}

func (e *InsightEngine) correlationParams(opts RunOptions) analysis.CorrelationParams {
	return analysis.CorrelationParams{
		MinSupportDays:      opts.MinSupportDays,
		TopK:                opts.TopK,
		MinAlignedPairs:     e.cfg.MinAlignedPairs,
		EventLowPercentile:  e.cfg.EventLowPercentile,
		EventHighPercentile: e.cfg.EventHighPercentile,
		MinEventDays:        e.cfg.MinEventDays,
		MinNonEventDays:     e.cfg.MinNonEventDays,
		MinSpearmanRho:      e.cfg.MinSpearmanRho,
	}
}

func (e *InsightEngine) promotionParams() analysis.PromotionParams {
	return analysis.PromotionParams{
		StrongContinuousAbs: e.cfg.StrongContinuousAbs,
		StrongEventAbs:      e.cfg.StrongEventAbs,
		StrongMinSamples:    e.cfg.StrongMinSamples,
		SurfaceMinSeen:      e.cfg.SurfaceMinSeen,
		SurfaceMinStreak:    e.cfg.SurfaceMinStreak,
	}
}

// isValidDateKey checks the YYYY-MM-DD shape daily records carry
func isValidDateKey(dateKey string) bool {
	if len(dateKey) != 10 {
		return false
	}
	_, err := time.Parse("2006-01-02", dateKey)
	return err == nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
