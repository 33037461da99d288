package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// DefaultKafkaWriteTimeout bounds one publish. Record sits on the login path.
const DefaultKafkaWriteTimeout = 500 * time.Millisecond

// KafkaRecorder publishes each event as JSON, keyed by user id so that one
// user's events stay ordered within a partition.
type KafkaRecorder struct {
	writer  *kafka.Writer
	timeout time.Duration
}

func NewKafkaRecorder(brokers []string, topic string) (*KafkaRecorder, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka audit recorder requires at least one broker")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka audit recorder requires a topic")
	}
	return &KafkaRecorder{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
			BatchSize:    1,
			BatchTimeout: 5 * time.Millisecond,
			WriteTimeout: DefaultKafkaWriteTimeout,
			ReadTimeout:  DefaultKafkaWriteTimeout,
		},
		timeout: DefaultKafkaWriteTimeout,
	}, nil
}

func (r *KafkaRecorder) Record(ctx context.Context, event Event) error {
	msg, err := encodeMessage(event)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish audit event: %w", err)
	}
	return nil
}

func (r *KafkaRecorder) Close() error {
	return r.writer.Close()
}

func encodeMessage(event Event) (kafka.Message, error) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode audit event: %w", err)
	}

	var key []byte
	if event.UserID != nil {
		key = []byte(*event.UserID)
	}

	return kafka.Message{
		Key:   key,
		Value: payload,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(event.Action)},
		},
	}, nil
}
