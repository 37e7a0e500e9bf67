package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/harrier/internal/domain"
)

func TestNames(t *testing.T) {
	require.Len(t, Names, 14)
	assert.Equal(t, "type_encoded", Names[0])
	assert.Equal(t, "step", Names[13])
	assert.Equal(t, 14, Count)
}

func TestEncodeType(t *testing.T) {
	assert.Equal(t, 0.0, EncodeType(domain.TxTypePayment))
	assert.Equal(t, 1.0, EncodeType(domain.TxTypeTransfer))
	assert.Equal(t, 2.0, EncodeType(domain.TxTypeCashOut))
	assert.Equal(t, 3.0, EncodeType(domain.TxTypeDebit))
	assert.Equal(t, 4.0, EncodeType(domain.TxTypeCashIn))
	assert.Equal(t, 0.0, EncodeType("WIRE"))
}

func TestBuild(t *testing.T) {
	txs := []domain.Transaction{
		{
			Step: 3, Type: domain.TxTypeCashOut, Amount: 1000,
			OriginID: "C1", OrigBalanceBefore: 1000, OrigBalanceAfter: 0,
			DestID: "C2", DestBalanceBefore: 0, DestBalanceAfter: 1000,
		},
		{
			Step: 4, Type: domain.TxTypePayment, Amount: 3000,
			OriginID: "C1", OrigBalanceBefore: 5000, OrigBalanceAfter: 2000,
			DestID: "M1", DestBalanceBefore: 10, DestBalanceAfter: 10,
		},
	}

	X := Build(txs)
	require.Len(t, X, 2)
	require.Len(t, X[0], Count)

	row := X[0]
	assert.Equal(t, 2.0, row[0])
	assert.InDelta(t, math.Log1p(1000), row[1], 1e-12)
	assert.InDelta(t, 1000.0/1001.0, row[2], 1e-12)
	assert.Equal(t, 1000.0, row[3])
	assert.Equal(t, 1000.0, row[4])
	assert.InDelta(t, math.Log1p(1000), row[5], 1e-12)
	assert.Equal(t, 0.0, row[6])
	assert.Equal(t, 1.0, row[7])
	assert.Equal(t, 1.0, row[8])
	assert.Equal(t, 2.0, row[9])
	assert.Equal(t, 2000.0, row[10])
	assert.InDelta(t, math.Sqrt(2e6), row[11], 1e-9)
	assert.Equal(t, 3000.0, row[12])
	assert.Equal(t, 3.0, row[13])

	assert.Equal(t, 0.0, X[1][7])
	assert.Equal(t, 0.0, X[1][8])
}

func TestBuild_Empty(t *testing.T) {
	assert.Empty(t, Build(nil))
}
