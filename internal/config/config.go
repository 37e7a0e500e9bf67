// Package config loads Harrier configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/opensource-finance/harrier/internal/domain"
)

// DefaultEnvFile is read before the process environment when present.
const DefaultEnvFile = ".env"

// Load builds the configuration for the tier named by HARRIER_TIER and
// overlays HARRIER_* environment variables on top of the tier defaults.
// Variables already set in the process environment win over the env file.
func Load(envFiles ...string) (*domain.Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{DefaultEnvFile}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}

	cfg := domain.DefaultConfig()
	if strings.EqualFold(os.Getenv("HARRIER_TIER"), string(domain.TierPro)) {
		cfg = domain.ProConfig()
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func Validate(cfg *domain.Config) error {
	var violations []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		violations = append(violations, fmt.Sprintf("invalid server port %d", cfg.Server.Port))
	}
	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		violations = append(violations, fmt.Sprintf("unsupported repository driver %q", cfg.Repository.Driver))
	}
	switch cfg.Graph.EdgeScoring {
	case domain.EdgeScoringFraudScore, domain.EdgeScoringBlended:
	default:
		violations = append(violations, fmt.Sprintf("unsupported edge scoring mode %q", cfg.Graph.EdgeScoring))
	}
	if cfg.Scoring.BalanceEpsilon < 0 {
		violations = append(violations, "balance epsilon must not be negative")
	}
	if cfg.Scoring.AnalyzeLimit <= 0 {
		violations = append(violations, "analyze limit must be positive")
	}
	if len(cfg.Anomaly.Detectors) == 0 {
		violations = append(violations, "at least one anomaly detector is required")
	}
	if cfg.Anomaly.Trees <= 0 || cfg.Anomaly.SampleSize < 2 {
		violations = append(violations, "isolation forest needs at least one tree and a sample size of 2")
	}
	if q := cfg.Anomaly.ThresholdQuantile; q <= 0 || q >= 1 {
		violations = append(violations, fmt.Sprintf("threshold quantile must be in (0,1), got %g", q))
	}

	if len(violations) > 0 {
		return domain.NewValidationError(violations...)
	}
	return nil
}
