package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opensource-finance/harrier/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func TestEvaluateEdge_Normal(t *testing.T) {
	tx := &domain.Transaction{Type: domain.TxTypePayment, Amount: 5000, OrigBalanceBefore: 20000, OrigBalanceAfter: 15000}

	risk := EvaluateEdge(tx, nil)
	assert.Equal(t, 0.1, risk.Components.Amount)
	assert.Equal(t, 0.4, risk.Components.Type)
	assert.Equal(t, 0.2, risk.Components.Balance)
	assert.Nil(t, risk.Components.Fraud)
	assert.InDelta(t, 0.2333, risk.Score, 1e-4)
	assert.Equal(t, []string{NormalTransaction}, risk.Reasons)
}

func TestEvaluateEdge_Components(t *testing.T) {
	tests := []struct {
		name    string
		tx      domain.Transaction
		score   *float64
		want    float64
		reasons []string
	}{
		{
			name: "very high drained transfer",
			tx:   domain.Transaction{Type: domain.TxTypeTransfer, Amount: 150000, OrigBalanceBefore: 150000, OrigBalanceAfter: 0},
			want: (0.8 + 0.7 + 0.9) / 3,
			reasons: []string{
				"Very high amount: $150,000.00",
				"Risky transaction type: TRANSFER",
				"Account drained to zero",
			},
		},
		{
			name:    "high amount cash out from large balance",
			tx:      domain.Transaction{Type: domain.TxTypeCashOut, Amount: 60000, OrigBalanceBefore: 1000000, OrigBalanceAfter: 940000},
			want:    (0.6 + 0.7 + 0.2) / 3,
			reasons: []string{"High amount: $60,000.00", "Risky transaction type: CASH_OUT"},
		},
		{
			name:    "elevated amount with large balance portion",
			tx:      domain.Transaction{Type: domain.TxTypeDebit, Amount: 19000, OrigBalanceBefore: 20000, OrigBalanceAfter: 1000},
			want:    (0.4 + 0.2 + 0.7) / 3,
			reasons: []string{"Elevated amount: $19,000.00", "Large portion of balance: 95.0%"},
		},
		{
			name:    "no prior balance",
			tx:      domain.Transaction{Type: domain.TxTypeCashIn, Amount: 500, OrigBalanceBefore: 0, OrigBalanceAfter: 500},
			want:    (0.1 + 0.2 + 0.3) / 3,
			reasons: []string{NormalTransaction},
		},
		{
			name:    "small drain is not flagged as drained",
			tx:      domain.Transaction{Type: domain.TxTypePayment, Amount: 100, OrigBalanceBefore: 100, OrigBalanceAfter: 0},
			want:    (0.1 + 0.4 + 0.7) / 3,
			reasons: []string{"Large portion of balance: 100.0%"},
		},
		{
			name:    "high fraud score",
			tx:      domain.Transaction{Type: domain.TxTypePayment, Amount: 5000, OrigBalanceBefore: 20000, OrigBalanceAfter: 15000},
			score:   ptr(0.9),
			want:    (0.1 + 0.4 + 0.2 + 0.9) / 4,
			reasons: []string{"ML fraud score: 0.90"},
		},
		{
			name:    "confirmed fraud floor",
			tx:      domain.Transaction{Type: domain.TxTypePayment, Amount: 5000, OrigBalanceBefore: 20000, OrigBalanceAfter: 15000, IsFraud: ptr(true)},
			want:    ConfirmedFraudFloor,
			reasons: []string{"Confirmed fraud"},
		},
		{
			name:    "negative label",
			tx:      domain.Transaction{Type: domain.TxTypePayment, Amount: 5000, OrigBalanceBefore: 20000, OrigBalanceAfter: 15000, IsFraud: ptr(false)},
			want:    0.7 / 3,
			reasons: []string{NormalTransaction},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			risk := EvaluateEdge(&tt.tx, tt.score)
			assert.InDelta(t, tt.want, risk.Score, 1e-12)
			assert.Equal(t, tt.reasons, risk.Reasons)
			assert.GreaterOrEqual(t, risk.Score, 0.0)
			assert.LessOrEqual(t, risk.Score, 1.0)
		})
	}
}

func TestComponentsMean(t *testing.T) {
	c := Components{Amount: 0.1, Type: 0.4, Balance: 0.2}
	assert.InDelta(t, 0.7/3, c.Mean(), 1e-12)

	c.Fraud = ptr(0.5)
	assert.InDelta(t, 0.3, c.Mean(), 1e-12)
}
