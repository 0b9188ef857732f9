package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the slice of *kafka.Writer the producer uses; tests
// substitute a failing fake.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes chat pipeline events. Writes are synchronous so a
// broker failure is observed and retried here; the topic is set per message
// so one writer serves every outbound stream.
type Producer struct {
	writer  messageWriter
	retries int
	backoff time.Duration
}

func NewProducer(brokers []string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
	}
	return &Producer{writer: writer, retries: 3, backoff: 500 * time.Millisecond}
}

func (p *Producer) Publish(topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(time.Now().UTC().Format(time.RFC3339Nano)),
		Value: data,
	}
	var lastErr error
	for i := 0; i < p.retries; i++ {
		if lastErr = p.writer.WriteMessages(context.Background(), msg); lastErr == nil {
			return nil
		}
		log.Warn().Err(lastErr).Msgf("kafka publish attempt %d failed", i+1)
		time.Sleep(p.backoff)
	}
	return fmt.Errorf("publish kafka message: %w", lastErr)
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
