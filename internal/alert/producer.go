// Package alert streams suspicious-transaction events to Kafka.
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/IBM/sarama"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Producer publishes suspicious-transaction alerts.
type Producer interface {
	SendSuspicious(ctx context.Context, event domain.SuspiciousTransactionEvent) error
	Close() error
}

// New returns a Kafka producer when brokers are configured and a no-op producer otherwise.
func New(cfg domain.AlertConfig, logger *slog.Logger) (Producer, error) {
	if len(cfg.Brokers) == 0 {
		return NewNoOpProducer(logger), nil
	}
	return NewKafkaProducer(cfg.Brokers, cfg.Topic, logger)
}

// KafkaProducer sends alerts synchronously, keyed by detection run and row.
type KafkaProducer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

// NewKafkaProducer connects a sync producer to the brokers.
func NewKafkaProducer(brokers []string, topic string, logger *slog.Logger) (*KafkaProducer, error) {
	producer, err := sarama.NewSyncProducer(brokers, ProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	logger.Info("kafka alert producer created", "topic", topic, "brokers", brokers)
	return NewKafkaProducerWith(producer, topic, logger), nil
}

// NewKafkaProducerWith wraps an existing sync producer.
func NewKafkaProducerWith(producer sarama.SyncProducer, topic string, logger *slog.Logger) *KafkaProducer {
	return &KafkaProducer{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

// ProducerConfig is the sarama configuration used for alerts.
func ProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Timeout = 5 * time.Second
	return config
}

func (p *KafkaProducer) SendSuspicious(ctx context.Context, event domain.SuspiciousTransactionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	key := event.DetectionRunID + ":" + strconv.Itoa(event.TransactionID)
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	}

	type result struct {
		partition int32
		offset    int64
		err       error
	}
	resultCh := make(chan result, 1)

	go func() {
		partition, offset, err := p.producer.SendMessage(msg)
		resultCh <- result{partition, offset, err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			p.logger.Error("kafka send failed", "key", key, "error", res.err)
			return fmt.Errorf("send alert: %w", res.err)
		}
		p.logger.Debug("kafka send succeeded",
			"key", key,
			"partition", res.partition,
			"offset", res.offset,
		)
		return nil
	case <-ctx.Done():
		p.logger.Warn("kafka send cancelled", "key", key)
		return ctx.Err()
	}
}

func (p *KafkaProducer) Close() error {
	if p.producer == nil {
		return nil
	}
	p.logger.Info("closing kafka alert producer")
	return p.producer.Close()
}

// NoOpProducer drops alerts. It is used when no brokers are configured.
type NoOpProducer struct {
	logger *slog.Logger
}

func NewNoOpProducer(logger *slog.Logger) *NoOpProducer {
	return &NoOpProducer{logger: logger}
}

func (p *NoOpProducer) SendSuspicious(_ context.Context, event domain.SuspiciousTransactionEvent) error {
	p.logger.Debug("kafka disabled, alert not sent",
		"detection_run_id", event.DetectionRunID,
		"transaction_id", event.TransactionID,
	)
	return nil
}

func (p *NoOpProducer) Close() error { return nil }
