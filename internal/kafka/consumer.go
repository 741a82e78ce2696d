package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/example/trades-allocator/internal/models"
)

// MessageReader is the part of *kafka.Reader the consumers use.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// FillSubmitter takes decoded fills.
type FillSubmitter interface {
	SubmitFill(f models.Fill) error
}

// SplitPublisher takes decoded split tables.
type SplitPublisher interface {
	PublishSplits(table map[string]float64)
}

func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1e3,
		MaxBytes: 1e6,
		MaxWait:  500 * time.Millisecond,
	})
}

// Consumer reads one topic and hands each message to handle. Messages that
// fail to decode are logged and skipped.
type Consumer struct {
	Reader MessageReader
	Logger *zap.Logger
	handle func(ctx context.Context, m kafka.Message) error
}

func NewFillConsumer(r MessageReader, svc FillSubmitter, logger *zap.Logger) *Consumer {
	return &Consumer{
		Reader: r,
		Logger: logger,
		handle: func(_ context.Context, m kafka.Message) error {
			var f models.Fill
			if err := json.Unmarshal(m.Value, &f); err != nil {
				return err
			}
			if f.TS.IsZero() {
				f.TS = m.Time
			}
			return svc.SubmitFill(f)
		},
	}
}

func NewSplitConsumer(r MessageReader, svc SplitPublisher, logger *zap.Logger) *Consumer {
	return &Consumer{
		Reader: r,
		Logger: logger,
		handle: func(_ context.Context, m kafka.Message) error {
			var u models.SplitUpdate
			if err := json.Unmarshal(m.Value, &u); err != nil {
				return err
			}
			if err := u.Validate(); err != nil {
				return err
			}
			svc.PublishSplits(u.Splits)
			return nil
		},
	}
}

// Run blocks until ctx is done or the reader fails. A cancelled context is not
// reported as an error.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.Reader.Close()
	for {
		m, err := c.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			return err
		}
		if err := c.handle(ctx, m); err != nil {
			c.Logger.Warn("bad message",
				zap.String("topic", m.Topic),
				zap.Int64("offset", m.Offset),
				zap.Error(err),
			)
			continue
		}
		c.Logger.Debug("message applied", zap.String("topic", m.Topic), zap.Int64("offset", m.Offset))
	}
}
