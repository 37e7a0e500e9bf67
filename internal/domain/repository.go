// Package domain defines the core interfaces and types for Harrier.
package domain

import (
	"context"
	"time"
)

// Repository persists run metadata and scored rows.
// Fitted models and graphs are never stored.
type Repository interface {
	// Training runs
	SaveTrainingRun(ctx context.Context, run *TrainingRun) error
	ListTrainingRuns(ctx context.Context, limit int) ([]*TrainingRun, error)

	// Detection runs
	SaveDetectionRun(ctx context.Context, run *DetectionRun, rows []ScoredTransaction) error
	GetDetectionRun(ctx context.Context, runID string) (*DetectionRun, error)
	GetDetectionRunByBatch(ctx context.Context, batchID string) (*DetectionRun, error)
	ListScoredTransactions(ctx context.Context, runID string, suspiciousOnly bool, limit int) ([]ScoredTransaction, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `envconfig:"HARRIER_DB_DRIVER"`

	// SQLite specific
	SQLitePath string `envconfig:"HARRIER_DB_SQLITE_PATH"`

	// PostgreSQL specific
	PostgresHost     string `envconfig:"HARRIER_DB_POSTGRES_HOST"`
	PostgresPort     int    `envconfig:"HARRIER_DB_POSTGRES_PORT"`
	PostgresUser     string `envconfig:"HARRIER_DB_POSTGRES_USER"`
	PostgresPassword string `envconfig:"HARRIER_DB_POSTGRES_PASSWORD"`
	PostgresDB       string `envconfig:"HARRIER_DB_POSTGRES_DB"`
	PostgresSSLMode  string `envconfig:"HARRIER_DB_POSTGRES_SSLMODE"`

	// Connection pool settings
	MaxOpenConns    int           `envconfig:"HARRIER_DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `envconfig:"HARRIER_DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `envconfig:"HARRIER_DB_CONN_MAX_LIFETIME"`
}
