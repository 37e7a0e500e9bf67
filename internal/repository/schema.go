package repository

// Schema definitions for the Harrier database.
// Compatible with both SQLite and PostgreSQL.

const schemaTrainingRuns = `
CREATE TABLE IF NOT EXISTS training_runs (
    id TEXT PRIMARY KEY,
    version BIGINT NOT NULL,
    training_samples INTEGER NOT NULL,
    features_used INTEGER NOT NULL,
    scorer TEXT NOT NULL,
    duration_ms BIGINT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_training_runs_created ON training_runs(created_at);
`

const schemaDetectionRuns = `
CREATE TABLE IF NOT EXISTS detection_runs (
    id TEXT PRIMARY KEY,
    batch_id TEXT,
    model_version BIGINT NOT NULL,
    summary TEXT NOT NULL,
    trace_id TEXT,
    duration_ms BIGINT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_detection_runs_created ON detection_runs(created_at);
CREATE INDEX IF NOT EXISTS idx_detection_runs_batch ON detection_runs(batch_id);
`

// Rule flags and labels are stored as INTEGER 0/1 for portability.
const schemaScoredTransactions = `
CREATE TABLE IF NOT EXISTS scored_transactions (
    run_id TEXT NOT NULL,
    transaction_id INTEGER NOT NULL,
    step INTEGER NOT NULL,
    type TEXT NOT NULL,
    amount REAL NOT NULL,
    origin_id TEXT NOT NULL,
    orig_balance_before REAL NOT NULL,
    orig_balance_after REAL NOT NULL,
    dest_id TEXT NOT NULL,
    dest_balance_before REAL NOT NULL,
    dest_balance_after REAL NOT NULL,
    is_fraud INTEGER,
    rule_amount_anomaly INTEGER NOT NULL,
    rule_balance_error INTEGER NOT NULL,
    rule_zero_balance INTEGER NOT NULL,
    rule_high_frequency INTEGER NOT NULL,
    rule_risky_type INTEGER NOT NULL,
    freq INTEGER NOT NULL,
    rule_score REAL NOT NULL,
    ml_score REAL NOT NULL,
    fraud_score REAL NOT NULL,
    is_suspicious INTEGER NOT NULL,
    risk_level TEXT NOT NULL,
    explanation TEXT,
    PRIMARY KEY (run_id, transaction_id)
);

CREATE INDEX IF NOT EXISTS idx_scored_transactions_suspicious ON scored_transactions(run_id, is_suspicious);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTrainingRuns,
		schemaDetectionRuns,
		schemaScoredTransactions,
	}
}
