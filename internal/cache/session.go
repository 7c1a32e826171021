package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrNoIntent = errors.New("purchase intent not found or expired")

// PurchaseIntent is the short-lived state between the tariff keyboard and the
// settled payment: which peer name the invoice targets and how it is paid.
type PurchaseIntent struct {
	PeerName string `json:"peer_name"`
	Tariff   string `json:"tariff"`
	Method   string `json:"method"`
	Renewal  bool   `json:"renewal"`
}

// Service stores purchase intents in redis keyed by user, one live intent per
// user at a time.
type Service struct {
	client *redis.Client
	ttl    time.Duration
}

func NewService(client *redis.Client, ttl time.Duration) *Service {
	return &Service{client: client, ttl: ttl}
}

func intentKey(userID int64) string {
	return fmt.Sprintf("purchase_intent:%d", userID)
}

func (s *Service) SaveIntent(ctx context.Context, userID int64, intent PurchaseIntent) error {
	data, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("failed to marshal intent: %w", err)
	}
	if err := s.client.Set(ctx, intentKey(userID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store in cache: %w", err)
	}
	return nil
}

func (s *Service) GetIntent(ctx context.Context, userID int64) (*PurchaseIntent, error) {
	data, err := s.client.Get(ctx, intentKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoIntent
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get from cache: %w", err)
	}

	var intent PurchaseIntent
	if err := json.Unmarshal([]byte(data), &intent); err != nil {
		return nil, fmt.Errorf("failed to unmarshal intent: %w", err)
	}
	return &intent, nil
}

func (s *Service) DeleteIntent(ctx context.Context, userID int64) error {
	return s.client.Del(ctx, intentKey(userID)).Err()
}
