// Package database provides database connection management for the daywise-insights
// analysis service.
//
// This package includes:
//   - Database connection management using GORM and PostgreSQL
//   - A raw database/sql connection (lib/pq) for the read-facing query layer
//   - Comprehensive error handling and validation
//
// Key Concepts:
//   - JSONB columns for the sparse nutrient/exposure maps and candidate payloads
//   - Composite unique indexes backing the pack and promotion upsert keys
//   - Per-key upserts that preserve first-insert creation timestamps
//
// Data Models:
//
//	All data models (DailyRecord, NutrientBand, CorrelationPack, etc.) are defined
//	in the models_pkg package to avoid circular import dependencies.
package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	models "daywise-insights/database/models_pkg"
)

// Database holds the GORM database connection and provides access to the underlying DB instance.
// It serves as the central connection point for all database operations in the application.
type Database struct {
	db *gorm.DB
}

// DB returns the underlying GORM database instance for direct access when needed.
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Connect establishes database connection using GORM
func Connect(host string, port int, dbname, user, password string) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		host, port, dbname, user, password)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // Silent logging for production
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Database{db: db}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ============================================================================
// Type Aliases
// ============================================================================

// Type aliases so callers can import a single database package for both the
// repository and the model types.

type DailyRecord = models.DailyRecord
type NutrientBand = models.NutrientBand
type UserProfile = models.UserProfile
type Candidate = models.Candidate
type CandidateList = models.CandidateList
type CorrelationPack = models.CorrelationPack
type PromotedCorrelation = models.PromotedCorrelation
type WebhookSubscription = models.WebhookSubscription
type WebhookLog = models.WebhookLog
type TargetOverride = models.TargetOverride
type OverrideMap = models.OverrideMap
type JSONMap = models.JSONMap
