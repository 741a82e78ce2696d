package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/example/trades-allocator/internal/models"
)

// MessageWriter is the part of *kafka.Writer the publishers use.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EnsureTopic attempts to create the topic (best-effort).
func EnsureTopic(ctx context.Context, broker, topic string, logger *zap.Logger) {
	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		logger.Warn("ensure topic: dial failed", zap.String("broker", broker), zap.Error(err))
		return
	}
	defer conn.Close()

	err = conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		logger.Info("ensure topic: create failed (ok if exists)", zap.String("topic", topic), zap.Error(err))
	}
}

func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           200 * time.Millisecond,
	}
}

// Publisher writes JSON-encoded domain messages to one topic.
type Publisher struct {
	W MessageWriter
}

func (p *Publisher) write(ctx context.Context, key string, ts time.Time, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.W.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: b, Time: ts})
}

// PublishFill keys by instrument so fills of one instrument stay ordered.
func (p *Publisher) PublishFill(ctx context.Context, f models.Fill) error {
	return p.write(ctx, f.Instrument, f.TS, f)
}

func (p *Publisher) PublishSplits(ctx context.Context, u models.SplitUpdate) error {
	return p.write(ctx, "splits", u.TS, u)
}

func (p *Publisher) PublishReport(ctx context.Context, r models.PositionReport) error {
	return p.write(ctx, "positions", r.TS, r)
}

func (p *Publisher) Close() error { return p.W.Close() }
