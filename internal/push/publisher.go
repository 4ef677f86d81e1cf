package push

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Dan9191/contract-service/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Event is what travels over the redis channel and then over the websocket
type Event struct {
	EventID   string         `json:"event_id"`
	UserKey   string         `json:"user_key"`
	Topic     string         `json:"topic"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// Publisher sends push events to the redis channel every Hub listens on
type Publisher struct {
	rdb     *redis.Client
	channel string
	log     *logrus.Logger
}

// NewPublisher creates a redis publisher
func NewPublisher(rdb *redis.Client, channel string, log *logrus.Logger) *Publisher {
	return &Publisher{rdb: rdb, channel: channel, log: log}
}

// Publish sends one push message. Consumers de-duplicate on EventID.
func (p *Publisher) Publish(ctx context.Context, eventID string, msg *models.PushMessage) error {
	payload, err := encodeEvent(eventID, msg, time.Now())
	if err != nil {
		return err
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish push event: %w", err)
	}
	p.log.WithFields(logrus.Fields{
		"event_id": eventID,
		"user":     msg.UserKey,
		"topic":    msg.Topic,
	}).Debug("Push event published")
	return nil
}

func encodeEvent(eventID string, msg *models.PushMessage, at time.Time) ([]byte, error) {
	if msg.UserKey == "" {
		return nil, fmt.Errorf("push message has no user key")
	}
	payload, err := json.Marshal(Event{
		EventID:   eventID,
		UserKey:   msg.UserKey,
		Topic:     msg.Topic,
		Payload:   msg.Payload,
		Timestamp: at,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal push event: %w", err)
	}
	return payload, nil
}
