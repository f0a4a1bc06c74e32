package rate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"washdesk/internal/domain"
)

type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "washdesk:rate:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(pair string) string {
	return s.prefix + pair
}

// Save overwrites the snapshot for its pair. No TTL: an old snapshot is
// still better than none when the feed is down.
func (s *RedisStore) Save(ctx context.Context, snap domain.RateSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.client.Set(ctx, s.key(snap.Pair()), payload, 0).Err()
}

func (s *RedisStore) Load(ctx context.Context, pair string) (domain.RateSnapshot, bool, error) {
	value, err := s.client.Get(ctx, s.key(pair)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.RateSnapshot{}, false, nil
	}
	if err != nil {
		return domain.RateSnapshot{}, false, err
	}

	var snap domain.RateSnapshot
	if err := json.Unmarshal(value, &snap); err != nil {
		return domain.RateSnapshot{}, false, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, true, nil
}
