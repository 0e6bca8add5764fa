package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-coaching/internal/logger"
)

// Handler processes one decoded event. A returned error is logged and the offset still commits.
type Handler func(ctx context.Context, evt Event) error

type Consumer struct {
	reader *kafka.Reader
	logger *logger.Logger
}

func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		logger: log,
	}
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	topic := c.reader.Config().Topic
	c.logger.LogKafka("CONSUME", topic, "consumer started")
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Read from %s failed: %v", topic, err))
			continue
		}
		if err := Dispatch(ctx, msg, handle); err != nil {
			c.logger.Error("KAFKA", fmt.Sprintf("Handle %s offset %d: %v", topic, msg.Offset, err))
		}
	}
}

// Dispatch decodes msg and calls handle.
func Dispatch(ctx context.Context, msg kafka.Message, handle Handler) error {
	var evt Event
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	return handle(ctx, evt)
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
