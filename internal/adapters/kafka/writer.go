package kafka

import (
	"context"
	"log/slog"
	"time"

	"poll-service/internal/poll"

	"github.com/segmentio/kafka-go"
)

// Writer publishes poll activity through an asynchronous kafka-go writer.
type Writer struct {
	writer *kafka.Writer
}

func NewWriter(brokers []string, topic string) *Writer {
	return &Writer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
			Async:        true,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					slog.Warn("Failed to deliver poll activity", "messages", len(messages), "error", err)
				}
			},
		},
	}
}

func (w *Writer) Record(ctx context.Context, a poll.Activity) error {
	msg, err := buildMessage(a)
	if err != nil {
		return err
	}
	return w.writer.WriteMessages(ctx, msg)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

func buildMessage(a poll.Activity) (kafka.Message, error) {
	key, value, err := encodeActivity(a)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   key,
		Value: value,
		Time:  a.At,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(a.Kind)},
		},
	}, nil
}
