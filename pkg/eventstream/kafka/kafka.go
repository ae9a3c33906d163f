// Package kafka publishes turn events to a Kafka topic. Events are keyed by
// turn id so regenerated turns land in the same partition in order.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	segmentio "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/eventstream"
)

// Config holds the Kafka connection settings.
type Config struct {
	Brokers []string
	Topic   string
}

// Publisher writes turn events to Kafka.
type Publisher struct {
	writer *segmentio.Writer
	logger *zap.Logger
}

func NewPublisher(cfg Config, logger *zap.Logger) *Publisher {
	writer := &segmentio.Writer{
		Addr:                   segmentio.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &segmentio.Hash{},
		AllowAutoTopicCreation: true,
	}

	return &Publisher{
		writer: writer,
		logger: logger,
	}
}

// PublishTurn marshals the event and writes it keyed by turn id.
func (p *Publisher) PublishTurn(ctx context.Context, event *eventstream.TurnCommittedEvent) error {
	if event == nil {
		return eventstream.ErrNilTurnEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling turn event: %w", err)
	}

	msg := segmentio.Message{
		Key:   []byte(event.Turn.TurnID),
		Value: payload,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing turn event: %w", err)
	}

	p.logger.Debug("published turn event",
		zap.String("turn_id", event.Turn.TurnID),
		zap.String("event_id", event.EventID))

	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
