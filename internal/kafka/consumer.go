package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// Consumer reads events produced by sibling services (media processing,
// moderation) and feeds them to the ws layer.
type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: reader}
}

// Run blocks until ctx is cancelled, pushing decoded events to msgChan.
// Undecodable messages are logged and skipped.
func (c *Consumer) Run(ctx context.Context, msgChan chan<- map[string]any) {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("kafka consumer stopping")
				return
			}
			log.Error().Err(err).Msg("kafka read error")
			time.Sleep(time.Second)
			continue
		}
		var payload map[string]any
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			log.Error().Err(err).Msg("failed to unmarshal kafka message")
			continue
		}
		select {
		case msgChan <- payload:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
