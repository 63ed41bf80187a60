package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"package-billing-service/internal/platform/obs"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "billing.notifications"

// Envelope is the message published for every customer notification.
type Envelope struct {
	ID         string         `json:"id"`
	Event      string         `json:"event"`
	UserID     string         `json:"user_id"`
	Payload    map[string]any `json:"payload"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// RedisNotifier publishes notification envelopes to a Redis pub/sub channel.
// Delivery to the customer is owned by whatever subscribes to the channel.
type RedisNotifier struct {
	Client  redis.UniversalClient
	Channel string
	Now     func() time.Time
}

func NewRedisNotifier(client redis.UniversalClient, channel string) *RedisNotifier {
	if strings.TrimSpace(channel) == "" {
		channel = DefaultChannel
	}
	return &RedisNotifier{Client: client, Channel: channel}
}

func (n *RedisNotifier) Notify(ctx context.Context, userID, event string, payload map[string]any) (err error) {
	defer obs.Time(ctx, "notify.redis.Publish")(&err)

	if n == nil || n.Client == nil {
		return errors.New("redis notifier: client is nil")
	}

	env, err := newEnvelope(userID, event, payload, n.Now)
	if err != nil {
		return fmt.Errorf("redis notifier: %w", err)
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("redis notifier: encode envelope: %w", err)
	}

	if err := n.Client.Publish(ctx, n.Channel, body).Err(); err != nil {
		return fmt.Errorf("redis notifier: publish %s to %q: %w", event, n.Channel, err)
	}
	return nil
}

func newEnvelope(userID, event string, payload map[string]any, now func() time.Time) (Envelope, error) {
	userID = strings.TrimSpace(userID)
	event = strings.TrimSpace(event)
	if userID == "" {
		return Envelope{}, errors.New("user id is required")
	}
	if event == "" {
		return Envelope{}, errors.New("event is required")
	}

	clean := make(map[string]any, len(payload))
	for k, v := range payload {
		if strings.TrimSpace(k) == "" {
			continue
		}
		clean[k] = v
	}

	at := time.Now()
	if now != nil {
		at = now()
	}

	return Envelope{
		ID:         uuid.NewString(),
		Event:      event,
		UserID:     userID,
		Payload:    clean,
		OccurredAt: at.UTC(),
	}, nil
}
