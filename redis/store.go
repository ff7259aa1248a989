package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// JSONStore stores values of one type as JSON under a key prefix.
type JSONStore[V any] struct {
	client    *Client
	keyPrefix string
}

// NewJSONStore creates a store whose keys are prefixed with keyPrefix and a
// colon separator.
func NewJSONStore[V any](client *Client, keyPrefix string) *JSONStore[V] {
	return &JSONStore[V]{client: client, keyPrefix: keyPrefix}
}

func (s *JSONStore[V]) fullKey(key string) string {
	if s.keyPrefix == "" {
		return key
	}
	return s.keyPrefix + ":" + key
}

// Load returns the stored value. A missing key yields (nil, nil).
func (s *JSONStore[V]) Load(ctx context.Context, key string) (*V, error) {
	raw, err := s.client.GetBytes(ctx, s.fullKey(key))
	if errors.Is(err, ErrMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("json store load %q: %w", key, err)
	}

	var val V
	if err := json.Unmarshal(raw, &val); err != nil {
		return nil, fmt.Errorf("json store unmarshal %q: %w", key, err)
	}
	return &val, nil
}

// Save stores val with a TTL. A zero ttl means no expiration.
func (s *JSONStore[V]) Save(ctx context.Context, key string, val *V, ttl time.Duration) error {
	data, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("json store marshal %q: %w", key, err)
	}
	if err := s.client.SetBytes(ctx, s.fullKey(key), data, ttl); err != nil {
		return fmt.Errorf("json store save %q: %w", key, err)
	}
	return nil
}

// Delete removes the key.
func (s *JSONStore[V]) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.fullKey(key)); err != nil {
		return fmt.Errorf("json store delete %q: %w", key, err)
	}
	return nil
}
