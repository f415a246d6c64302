package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Producer handles Kafka event emission
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// CardChangeEvent announces that a batch of cards was written to the store.
type CardChangeEvent struct {
	EventType string    `json:"event_type"`
	RunID     string    `json:"run_id"`
	CardIDs   []string  `json:"card_ids"`
	Timestamp time.Time `json:"timestamp"`
}

// PublishCardChanges publishes one card.changed event covering the committed
// batch. Events are emitted after commit, so consumers only ever see durable
// changes.
func (p *Producer) PublishCardChanges(ctx context.Context, runID string, cardIDs []string) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishCardChanges")
	defer span.End()

	event := CardChangeEvent{
		EventType: "card.changed",
		RunID:     runID,
		CardIDs:   cardIDs,
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(runID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "run_id", Value: []byte(runID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish card change event")
		return err
	}

	metrics.EventsPublished.Inc()
	p.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id": runID,
		"cards":  len(cardIDs),
	}).Debug("Published card change event")

	return nil
}
