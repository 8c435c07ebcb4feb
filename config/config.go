package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// HTTP API
	APIPort int

	// Ingest (check-in event stream from the logging gateway)
	IngestWSURL     string
	IngestAuthToken string
	IngestEnabled   bool

	// Database configuration
	DatabaseHost     string
	DatabasePort     string
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string

	// Redis configuration
	RedisHost     string
	RedisPassword string
	RedisPort     string

	// Analysis configuration
	Analysis AnalysisConfig
}

// AnalysisConfig holds the tunable analysis parameters and thresholds.
// The cutoffs are heuristics, not load-bearing semantics, so every one of
// them can be overridden from the environment.
type AnalysisConfig struct {
	// Run defaults
	WindowDays     int
	LagDays        int
	MinSupportDays int
	TopK           int

	// Roundup
	TrustCoverageMin   float64 // energy coverage below this means the day is untrusted
	LowPctThreshold    float64 // below this fraction of goal on trusted days => low
	HighPctThreshold   float64 // at or above this fraction of goal => high
	MacroMinEnergyKcal float64 // macro composition flags need at least this much logged energy

	// Correlation
	MinAlignedPairs     int     // below this the correlation pass returns no candidates
	EventLowPercentile  float64 // outcome percentile defining a low-event day
	EventHighPercentile float64 // outcome percentile defining a high-event day
	MinEventDays        int
	MinNonEventDays     int
	MinSpearmanRho      float64 // continuous candidates need at least this |rho|

	// Promotion
	StrongContinuousAbs float64 // |rho| for a continuous candidate to count as strong
	StrongEventAbs      float64 // |d| for an event candidate to count as strong
	StrongMinSamples    int     // minimum n (when present) for a strong run
	SurfaceMinSeen      int     // seenCount required before surfacing
	SurfaceMinStreak    int     // consecutive strong runs required before surfacing
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		APIPort: getEnvInt("API_PORT", 8090),

		IngestWSURL:     getEnvOrDefault("INGEST_WS_URL", "ws://localhost:8080/ws/events"),
		IngestAuthToken: os.Getenv("INGEST_AUTH_TOKEN"),
		IngestEnabled:   getEnvOrDefault("INGEST_ENABLED", "true") == "true",

		// Database configuration
		DatabaseHost:     getEnvOrDefault("DB_HOST", "localhost"),
		DatabasePort:     getEnvOrDefault("DB_PORT", "5432"),
		DatabaseName:     getEnvOrDefault("DB_NAME", "daywise_insights"),
		DatabaseUser:     getEnvOrDefault("DB_USER", "daywise"),
		DatabasePassword: getEnvOrDefault("DB_PASSWORD", "daywise123"),

		// Redis configuration
		RedisHost:     getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		// Analysis configuration
		Analysis: AnalysisConfig{
			WindowDays:     getEnvInt("ANALYSIS_WINDOW_DAYS", 120),
			LagDays:        getEnvInt("ANALYSIS_LAG_DAYS", 1),
			MinSupportDays: getEnvInt("ANALYSIS_MIN_SUPPORT_DAYS", 4),
			TopK:           getEnvInt("ANALYSIS_TOP_K", 150),

			TrustCoverageMin:   getEnvFloat("ANALYSIS_TRUST_COVERAGE_MIN", 0.60),
			LowPctThreshold:    getEnvFloat("ANALYSIS_LOW_PCT", 0.80),
			HighPctThreshold:   getEnvFloat("ANALYSIS_HIGH_PCT", 1.20),
			MacroMinEnergyKcal: getEnvFloat("ANALYSIS_MACRO_MIN_ENERGY", 500),

			MinAlignedPairs:     getEnvInt("ANALYSIS_MIN_ALIGNED_PAIRS", 10),
			EventLowPercentile:  getEnvFloat("ANALYSIS_EVENT_LOW_PCTL", 0.20),
			EventHighPercentile: getEnvFloat("ANALYSIS_EVENT_HIGH_PCTL", 0.80),
			MinEventDays:        getEnvInt("ANALYSIS_MIN_EVENT_DAYS", 3),
			MinNonEventDays:     getEnvInt("ANALYSIS_MIN_NON_EVENT_DAYS", 5),
			MinSpearmanRho:      getEnvFloat("ANALYSIS_MIN_SPEARMAN_RHO", 0.15),

			StrongContinuousAbs: getEnvFloat("PROMOTION_STRONG_CONTINUOUS", 0.35),
			StrongEventAbs:      getEnvFloat("PROMOTION_STRONG_EVENT", 0.8),
			StrongMinSamples:    getEnvInt("PROMOTION_STRONG_MIN_N", 8),
			SurfaceMinSeen:      getEnvInt("PROMOTION_MIN_SEEN", 5),
			SurfaceMinStreak:    getEnvInt("PROMOTION_MIN_STREAK", 2),
		},
	}
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvFloat gets environment variable as float64 or returns default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var floatValue float64
	if _, err := fmt.Sscanf(value, "%f", &floatValue); err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
