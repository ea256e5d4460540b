package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventStore records processed webhook event ids in redis so redeliveries
// can be acknowledged without touching the database.
type EventStore struct {
	client      redis.Cmdable
	serviceName string
	ttl         time.Duration
}

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func NewEventStore(client redis.Cmdable, serviceName string, ttl time.Duration) *EventStore {
	return &EventStore{client: client, serviceName: serviceName, ttl: ttl}
}

func (s *EventStore) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.GenerateKey("webhook", eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("lookup event %s: %w", eventID, err)
	}
	return n > 0, nil
}

func (s *EventStore) MarkSeen(ctx context.Context, eventID string) error {
	if err := s.client.SetNX(ctx, s.GenerateKey("webhook", eventID), 1, s.ttl).Err(); err != nil {
		return fmt.Errorf("mark event %s: %w", eventID, err)
	}
	return nil
}

func (s *EventStore) GenerateKey(operation, key string) string {
	return fmt.Sprintf("%s:%s:%s", s.serviceName, operation, key)
}
