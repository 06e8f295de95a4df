package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/balloon-weather-service/internal/config"
	"github.com/couchcryptid/balloon-weather-service/internal/domain"
)

// Publisher produces combined snapshots to a Kafka topic.
// It implements aggregator.SnapshotPublisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured snapshot topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSnapshotTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// Publish writes one combined response as a single message.
func (p *Publisher) Publish(ctx context.Context, resp domain.CombinedResponse, generatedAt time.Time) error {
	msg, err := serializeToMessage(resp, generatedAt)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	p.logger.Debug("snapshot published",
		"topic", p.writer.Topic,
		"key", string(msg.Key),
		"bytes", len(msg.Value),
	)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a combined response into a Kafka message keyed
// by its generation time.
func serializeToMessage(resp domain.CombinedResponse, generatedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize snapshot: %w", err)
	}
	return kafkago.Message{
		Key:   []byte("snapshot-" + strconv.FormatInt(generatedAt.Unix(), 10)),
		Value: data,
		Time:  generatedAt,
		Headers: []kafkago.Header{
			{Key: "balloon_count", Value: []byte(strconv.Itoa(resp.BalloonCount()))},
			{Key: "generated_at", Value: []byte(generatedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
