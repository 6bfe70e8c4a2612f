package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"seoul-housing-ingest/internal/domain"
	"seoul-housing-ingest/internal/infra/metrics"
)

// SeenReader читает учтённые идентификаторы из Redis set.
type SeenReader struct {
	client *redis.Client
	keys   Keys
}

var _ domain.SeenStateReader = (*SeenReader)(nil)

// NewSeenReader создаёт читателя.
func NewSeenReader(client *redis.Client, keys Keys) *SeenReader {
	return &SeenReader{client: client, keys: keys}
}

// SeenIDs возвращает элементы seen set партиции, никогда не nil.
func (r *SeenReader) SeenIDs(ctx context.Context, p domain.Partition) (map[string]struct{}, error) {
	key, err := r.keys.Seen(p)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	members, err := r.client.SMembers(ctx, key).Result()
	metrics.ObserveNetworkRequest("redis", "smembers", "seen", start, err)
	if err != nil {
		return nil, fmt.Errorf("smembers %s: %w", key, err)
	}
	out := make(map[string]struct{}, len(members))
	for _, m := range members {
		out[m] = struct{}{}
	}
	return out, nil
}
