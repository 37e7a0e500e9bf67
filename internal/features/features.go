// Package features builds the fixed numeric feature matrix consumed by anomaly scorers.
package features

import (
	"math"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/velocity"
)

// Names is the feature contract. Column order is fixed; scorers fitted on
// one matrix can only score matrices built with the same order.
var Names = []string{
	"type_encoded",
	"amount_log",
	"amount_ratio",
	"balance_change_orig",
	"balance_change_dest",
	"balance_orig_log",
	"balance_dest_log",
	"is_zero_balance_orig",
	"is_zero_balance_dest",
	"user_tx_count",
	"user_amount_mean",
	"user_amount_std",
	"user_amount_max",
	"step",
}

// Count is the number of features per row.
var Count = len(Names)

var typeEncoding = map[string]float64{
	domain.TxTypePayment:  0,
	domain.TxTypeTransfer: 1,
	domain.TxTypeCashOut:  2,
	domain.TxTypeDebit:    3,
	domain.TxTypeCashIn:   4,
}

// EncodeType maps a transaction type to its numeric code. Unknown types encode as 0.
func EncodeType(t string) float64 {
	return typeEncoding[t]
}

// Build returns one feature row per transaction. User statistics are taken
// over the same batch.
func Build(txs []domain.Transaction) [][]float64 {
	return BuildWithIndex(txs, velocity.Build(txs))
}

// BuildWithIndex is Build with precomputed peer statistics.
func BuildWithIndex(txs []domain.Transaction, ix *velocity.Index) [][]float64 {
	X := make([][]float64, len(txs))
	backing := make([]float64, len(txs)*Count)
	for i := range txs {
		row := backing[i*Count : (i+1)*Count : (i+1)*Count]
		fill(row, &txs[i], ix.Origin(txs[i].OriginID))
		X[i] = row
	}
	return X
}

func fill(row []float64, tx *domain.Transaction, user velocity.OriginStats) {
	row[0] = EncodeType(tx.Type)
	row[1] = math.Log1p(tx.Amount)
	row[2] = tx.Amount / (tx.OrigBalanceBefore + 1)
	row[3] = tx.OrigBalanceBefore - tx.OrigBalanceAfter
	row[4] = tx.DestBalanceAfter - tx.DestBalanceBefore
	row[5] = math.Log1p(tx.OrigBalanceBefore)
	row[6] = math.Log1p(tx.DestBalanceBefore)
	row[7] = indicator(tx.OrigBalanceAfter == 0)
	row[8] = indicator(tx.DestBalanceBefore == 0)
	row[9] = float64(user.Count)
	row[10] = user.Mean
	row[11] = user.Std
	row[12] = user.Max
	row[13] = float64(tx.Step)

	for j, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			row[j] = 0
		}
	}
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
