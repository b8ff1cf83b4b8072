package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agrotrace/agrotrace/internal/ledger"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaConfig holds the settings for the minted-block event stream.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// KafkaPublisher writes minted-block receipts to a Kafka topic, keyed by
// batch id so all events of one batch land on the same partition in order.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewKafkaPublisher creates a KafkaPublisher for the given brokers and topic.
func NewKafkaPublisher(cfg KafkaConfig, logger *zap.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("kafka publisher: brokers and topic are required")
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 100 * time.Millisecond
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			logger.Warn("kafka writer", zap.String("msg", fmt.Sprintf(msg, args...)))
		}),
	}

	logger.Info("kafka block publisher ready",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
	)
	return &KafkaPublisher{writer: w, logger: logger}, nil
}

// PublishBlock implements Publisher.
func (p *KafkaPublisher) PublishBlock(ctx context.Context, b *ledger.Block) error {
	value, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("serialize block %q: %w", b.BlockHash, err)
	}

	msg := kafka.Message{
		Key:   []byte(b.BatchID),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write block %q to kafka: %w", b.BlockHash, err)
	}
	return nil
}

// Close implements Publisher. The writer flushes buffered messages on close.
func (p *KafkaPublisher) Close() error {
	p.logger.Info("closing kafka block publisher")
	return p.writer.Close()
}

var _ Publisher = (*KafkaPublisher)(nil)
var _ Publisher = (*NopPublisher)(nil)
