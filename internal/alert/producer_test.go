package alert

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/harrier/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestKafkaProducer_SendSuspicious(t *testing.T) {
	mock := mocks.NewSyncProducer(t, ProducerConfig())

	var sent domain.SuspiciousTransactionEvent
	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		assert.Equal(t, "alerts", msg.Topic)
		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, "run-1:7", string(key))

		value, err := msg.Value.Encode()
		require.NoError(t, err)
		return json.Unmarshal(value, &sent)
	})

	p := NewKafkaProducerWith(mock, "alerts", testLogger())
	err := p.SendSuspicious(context.Background(), domain.SuspiciousTransactionEvent{
		DetectionRunID: "run-1",
		TransactionID:  7,
		OriginID:       "C1",
		FraudScore:     0.91,
		RiskLevel:      domain.RiskCritical,
	})
	require.NoError(t, err)
	assert.Equal(t, "C1", sent.OriginID)
	assert.Equal(t, domain.RiskCritical, sent.RiskLevel)

	require.NoError(t, p.Close())
}

func TestKafkaProducer_SendFails(t *testing.T) {
	mock := mocks.NewSyncProducer(t, ProducerConfig())
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewKafkaProducerWith(mock, "alerts", testLogger())
	err := p.SendSuspicious(context.Background(), domain.SuspiciousTransactionEvent{DetectionRunID: "run-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, sarama.ErrOutOfBrokers))

	require.NoError(t, p.Close())
}

func TestNew_NoBrokers(t *testing.T) {
	p, err := New(domain.AlertConfig{Topic: "alerts"}, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &NoOpProducer{}, p)
	assert.NoError(t, p.SendSuspicious(context.Background(), domain.SuspiciousTransactionEvent{}))
	assert.NoError(t, p.Close())
}
