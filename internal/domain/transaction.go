package domain

import "fmt"

// Transaction types as they appear in PaySim-style datasets.
const (
	TxTypePayment  = "PAYMENT"
	TxTypeTransfer = "TRANSFER"
	TxTypeCashOut  = "CASH_OUT"
	TxTypeDebit    = "DEBIT"
	TxTypeCashIn   = "CASH_IN"
)

// Transaction is one row of the transaction table.
// Transactions are read-only input and are never mutated after loading.
type Transaction struct {
	// Step is the discrete time unit the transaction happened in.
	Step int    `json:"step"`
	Type string `json:"type"`

	Amount float64 `json:"amount"`

	OriginID          string  `json:"origin_id"`
	OrigBalanceBefore float64 `json:"orig_balance_before"`
	OrigBalanceAfter  float64 `json:"orig_balance_after"`

	DestID            string  `json:"dest_id"`
	DestBalanceBefore float64 `json:"dest_balance_before"`
	DestBalanceAfter  float64 `json:"dest_balance_after"`

	// IsFraud is the optional ground-truth label. Nil means unlabelled.
	IsFraud *bool `json:"is_fraud,omitempty"`
}

// Fraudulent reports whether the transaction carries a positive ground-truth label.
func (t *Transaction) Fraudulent() bool {
	return t.IsFraud != nil && *t.IsFraud
}

// IsRiskyType reports whether the type is one of the money-movement types
// most associated with fraud (TRANSFER, CASH_OUT).
func (t *Transaction) IsRiskyType() bool {
	return t.Type == TxTypeTransfer || t.Type == TxTypeCashOut
}

// Violations lists every field that breaks the transaction data model:
// empty account ids and negative step, amount or balances.
func (t *Transaction) Violations() []string {
	var violations []string
	if t.OriginID == "" {
		violations = append(violations, "origin_id is empty")
	}
	if t.DestID == "" {
		violations = append(violations, "dest_id is empty")
	}
	if t.Step < 0 {
		violations = append(violations, fmt.Sprintf("%s must not be negative, got %d", ColumnStep, t.Step))
	}
	for _, f := range []struct {
		name  string
		value float64
	}{
		{ColumnAmount, t.Amount},
		{ColumnOrigBalanceBefore, t.OrigBalanceBefore},
		{ColumnOrigBalanceAfter, t.OrigBalanceAfter},
		{ColumnDestBalanceBefore, t.DestBalanceBefore},
		{ColumnDestBalanceAfter, t.DestBalanceAfter},
	} {
		if f.value < 0 {
			violations = append(violations, fmt.Sprintf("%s must not be negative, got %g", f.name, f.value))
		}
	}
	return violations
}

// Required transaction table columns.
const (
	ColumnStep              = "step"
	ColumnType              = "type"
	ColumnAmount            = "amount"
	ColumnOriginID          = "origin_id"
	ColumnOrigBalanceBefore = "orig_balance_before"
	ColumnOrigBalanceAfter  = "orig_balance_after"
	ColumnDestID            = "dest_id"
	ColumnDestBalanceBefore = "dest_balance_before"
	ColumnDestBalanceAfter  = "dest_balance_after"
	ColumnIsFraud           = "is_fraud"
)

// RequiredColumns lists the columns every transaction table must carry, in order.
func RequiredColumns() []string {
	return []string{
		ColumnStep,
		ColumnType,
		ColumnAmount,
		ColumnOriginID,
		ColumnOrigBalanceBefore,
		ColumnOrigBalanceAfter,
		ColumnDestID,
		ColumnDestBalanceBefore,
		ColumnDestBalanceAfter,
	}
}

// TransactionBatch is the API request payload carrying transactions as JSON.
type TransactionBatch struct {
	Transactions []Transaction `json:"transactions"`
}
