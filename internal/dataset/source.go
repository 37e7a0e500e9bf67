package dataset

import (
	"context"
	"fmt"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/neo4j"
)

// Source loads a transaction table.
type Source interface {
	Load(ctx context.Context) ([]domain.Transaction, error)
	Name() string
}

// FileSource reads a CSV file.
type FileSource struct {
	Path  string
	Limit int
}

func (s FileSource) Load(ctx context.Context) ([]domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return LoadFile(s.Path, ReadOptions{Limit: s.Limit})
}

func (s FileSource) Name() string { return "file:" + s.Path }

// transactionsQuery returns every transaction edge in a stable order.
const transactionsQuery = `
MATCH (o:Account)-[t:TRANSACTION]->(d:Account)
RETURN t.step AS step,
       t.type AS type,
       t.amount AS amount,
       o.id AS origin_id,
       t.orig_balance_before AS orig_balance_before,
       t.orig_balance_after AS orig_balance_after,
       d.id AS dest_id,
       t.dest_balance_before AS dest_balance_before,
       t.dest_balance_after AS dest_balance_after,
       t.is_fraud AS is_fraud
ORDER BY t.step, elementId(t)
LIMIT $limit`

// Neo4jSource reads transactions stored as (:Account)-[:TRANSACTION]->(:Account).
type Neo4jSource struct {
	Client neo4j.Client
	Limit  int
}

func (s Neo4jSource) Name() string { return "neo4j" }

func (s Neo4jSource) Load(ctx context.Context) ([]domain.Transaction, error) {
	limit := int64(s.Limit)
	if limit <= 0 {
		limit = 1<<63 - 1
	}

	res, err := s.Client.ExecuteRead(ctx, transactionsQuery, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}

	txs := make([]domain.Transaction, 0, len(res.Records))
	for i, rec := range res.Records {
		tx, err := recordToTransaction(rec)
		if err != nil {
			return nil, domain.NewValidationError(fmt.Sprintf("record %d: %v", i+1, err))
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func recordToTransaction(rec neo4j.Record) (domain.Transaction, error) {
	var tx domain.Transaction

	step, err := asFloat(rec, domain.ColumnStep)
	if err != nil {
		return tx, err
	}
	tx.Step = int(step)

	if tx.Type, err = asString(rec, domain.ColumnType); err != nil {
		return tx, err
	}
	if tx.OriginID, err = asString(rec, domain.ColumnOriginID); err != nil {
		return tx, err
	}
	if tx.DestID, err = asString(rec, domain.ColumnDestID); err != nil {
		return tx, err
	}

	numbers := []struct {
		col string
		dst *float64
	}{
		{domain.ColumnAmount, &tx.Amount},
		{domain.ColumnOrigBalanceBefore, &tx.OrigBalanceBefore},
		{domain.ColumnOrigBalanceAfter, &tx.OrigBalanceAfter},
		{domain.ColumnDestBalanceBefore, &tx.DestBalanceBefore},
		{domain.ColumnDestBalanceAfter, &tx.DestBalanceAfter},
	}
	for _, n := range numbers {
		if *n.dst, err = asFloat(rec, n.col); err != nil {
			return tx, err
		}
	}

	switch v := rec[domain.ColumnIsFraud].(type) {
	case nil:
	case bool:
		tx.IsFraud = &v
	case int64:
		b := v != 0
		tx.IsFraud = &b
	default:
		return tx, fmt.Errorf("%s: unexpected type %T", domain.ColumnIsFraud, v)
	}

	return tx, nil
}

func asString(rec neo4j.Record, key string) (string, error) {
	s, ok := rec[key].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%s: expected non-empty string, got %T", key, rec[key])
	}
	return s, nil
}

func asFloat(rec neo4j.Record, key string) (float64, error) {
	switch v := rec[key].(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("%s: expected number, got %T", key, v)
	}
}
