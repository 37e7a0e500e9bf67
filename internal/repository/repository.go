// Package repository persists training runs, detection runs and scored rows.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/opensource-finance/harrier/internal/domain"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTrainingRun stores the metadata of a fitted scorer.
func (r *SQLRepository) SaveTrainingRun(ctx context.Context, run *domain.TrainingRun) error {
	query := `
		INSERT INTO training_runs (
			id, version, training_samples, features_used, scorer, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		run.ID, int64(run.Version),
		run.TrainingSamples, run.FeaturesUsed,
		run.Scorer, run.DurationMs, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save training run: %w", err)
	}
	return nil
}

// ListTrainingRuns returns the most recent training runs first.
func (r *SQLRepository) ListTrainingRuns(ctx context.Context, limit int) ([]*domain.TrainingRun, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, version, training_samples, features_used, scorer, duration_ms, created_at
		FROM training_runs
		ORDER BY created_at DESC, version DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.TrainingRun
	for rows.Next() {
		var run domain.TrainingRun
		var version int64
		if err := rows.Scan(
			&run.ID, &version,
			&run.TrainingSamples, &run.FeaturesUsed,
			&run.Scorer, &run.DurationMs, &run.CreatedAt,
		); err != nil {
			return nil, err
		}
		run.Version = uint64(version)
		runs = append(runs, &run)
	}

	return runs, rows.Err()
}

// SaveDetectionRun stores a run and all its scored rows in one transaction.
func (r *SQLRepository) SaveDetectionRun(ctx context.Context, run *domain.DetectionRun, rows []domain.ScoredTransaction) error {
	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	runQuery := `
		INSERT INTO detection_runs (id, batch_id, model_version, summary, trace_id, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	var batchID sql.NullString
	if run.BatchID != "" {
		batchID = sql.NullString{String: run.BatchID, Valid: true}
	}
	if _, err := tx.ExecContext(ctx, r.rebind(runQuery),
		run.ID, batchID, int64(run.ModelVersion), string(summary),
		run.TraceID, run.DurationMs, run.CreatedAt,
	); err != nil {
		return fmt.Errorf("save detection run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, r.rebind(insertScoredQuery))
	if err != nil {
		return fmt.Errorf("prepare scored insert: %w", err)
	}
	defer stmt.Close()

	for i := range rows {
		row := &rows[i]
		var label sql.NullInt64
		if row.IsFraud != nil {
			label = sql.NullInt64{Int64: boolInt(*row.IsFraud), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			run.ID, row.TransactionID,
			row.Step, row.Type, row.Amount,
			row.OriginID, row.OrigBalanceBefore, row.OrigBalanceAfter,
			row.DestID, row.DestBalanceBefore, row.DestBalanceAfter,
			label,
			boolInt(row.Flags.AmountAnomaly),
			boolInt(row.Flags.BalanceError),
			boolInt(row.Flags.ZeroBalance),
			boolInt(row.Flags.HighFrequency),
			boolInt(row.Flags.RiskyType),
			row.Flags.Frequency,
			row.RuleScore, row.MLScore, row.FraudScore,
			boolInt(row.IsSuspicious), string(row.RiskLevel), row.Explanation,
		); err != nil {
			return fmt.Errorf("save scored transaction %d: %w", row.TransactionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const scoredColumns = `
	transaction_id, step, type, amount,
	origin_id, orig_balance_before, orig_balance_after,
	dest_id, dest_balance_before, dest_balance_after,
	is_fraud,
	rule_amount_anomaly, rule_balance_error, rule_zero_balance, rule_high_frequency, rule_risky_type,
	freq, rule_score, ml_score, fraud_score,
	is_suspicious, risk_level, explanation
`

var insertScoredQuery = `INSERT INTO scored_transactions (run_id, ` + scoredColumns + `) VALUES (` +
	strings.TrimSuffix(strings.Repeat("?, ", 24), ", ") + `)`

const detectionRunColumns = `id, batch_id, model_version, summary, trace_id, duration_ms, created_at`

// GetDetectionRun retrieves a detection run by ID.
func (r *SQLRepository) GetDetectionRun(ctx context.Context, runID string) (*domain.DetectionRun, error) {
	query := `SELECT ` + detectionRunColumns + ` FROM detection_runs WHERE id = ?`

	run, err := scanDetectionRun(r.db.QueryRowContext(ctx, r.rebind(query), runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "Detection run", ID: runID}
	}
	return run, err
}

// GetDetectionRunByBatch retrieves the detection run of an asynchronously submitted batch.
func (r *SQLRepository) GetDetectionRunByBatch(ctx context.Context, batchID string) (*domain.DetectionRun, error) {
	query := `SELECT ` + detectionRunColumns + ` FROM detection_runs WHERE batch_id = ? ORDER BY created_at DESC LIMIT 1`

	run, err := scanDetectionRun(r.db.QueryRowContext(ctx, r.rebind(query), batchID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "Batch", ID: batchID}
	}
	return run, err
}

func scanDetectionRun(row *sql.Row) (*domain.DetectionRun, error) {
	var run domain.DetectionRun
	var version int64
	var summary string
	var batchID, traceID sql.NullString

	if err := row.Scan(&run.ID, &batchID, &version, &summary, &traceID, &run.DurationMs, &run.CreatedAt); err != nil {
		return nil, err
	}

	run.BatchID = batchID.String
	run.ModelVersion = uint64(version)
	run.TraceID = traceID.String
	if err := json.Unmarshal([]byte(summary), &run.Summary); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	return &run, nil
}

// ListScoredTransactions returns the rows of a run in batch order.
func (r *SQLRepository) ListScoredTransactions(ctx context.Context, runID string, suspiciousOnly bool, limit int) ([]domain.ScoredTransaction, error) {
	query := `SELECT ` + scoredColumns + ` FROM scored_transactions WHERE run_id = ?`
	args := []any{runID}
	if suspiciousOnly {
		query += ` AND is_suspicious = 1`
	}
	query += ` ORDER BY transaction_id`
	if limit > 0 {
		query += ` LIMIT ` + strconv.Itoa(limit)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ScoredTransaction
	for rows.Next() {
		var (
			st                                           domain.ScoredTransaction
			label                                        sql.NullInt64
			amount, balance, zero, highFreq, risky, susp int64
			riskLevel                                    string
			explanation                                  sql.NullString
		)
		if err := rows.Scan(
			&st.TransactionID, &st.Step, &st.Type, &st.Amount,
			&st.OriginID, &st.OrigBalanceBefore, &st.OrigBalanceAfter,
			&st.DestID, &st.DestBalanceBefore, &st.DestBalanceAfter,
			&label,
			&amount, &balance, &zero, &highFreq, &risky,
			&st.Flags.Frequency, &st.RuleScore, &st.MLScore, &st.FraudScore,
			&susp, &riskLevel, &explanation,
		); err != nil {
			return nil, err
		}

		if label.Valid {
			v := label.Int64 != 0
			st.IsFraud = &v
		}
		st.Flags.AmountAnomaly = amount != 0
		st.Flags.BalanceError = balance != 0
		st.Flags.ZeroBalance = zero != 0
		st.Flags.HighFrequency = highFreq != 0
		st.Flags.RiskyType = risky != 0
		st.IsSuspicious = susp != 0
		st.RiskLevel = domain.RiskLevel(riskLevel)
		st.Explanation = explanation.String

		out = append(out, st)
	}

	return out, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}

func boolInt(v bool) int64 {
	if v {
		return 1
	}
	return 0
}
