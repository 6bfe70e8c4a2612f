package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"seoul-housing-ingest/internal/domain"
)

// RedisDeliverer кладёт запросы загрузки в Redis list для потребителя.
type RedisDeliverer struct {
	client *redis.Client
	key    string
}

var _ domain.Deliverer = (*RedisDeliverer)(nil)

func NewRedisDeliverer(client *redis.Client, key string) *RedisDeliverer {
	return &RedisDeliverer{client: client, key: key}
}

func (q *RedisDeliverer) Deliver(ctx context.Context, req domain.IngestRequest) (domain.IngestResult, error) {
	if strings.TrimSpace(req.Category) == "" {
		return domain.IngestResult{}, fmt.Errorf("%w: ingest category is blank", domain.ErrInvalidArgument)
	}
	if req.Items == nil {
		req.Items = []domain.IngestItem{}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return domain.IngestResult{}, fmt.Errorf("marshal request: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return domain.IngestResult{}, fmt.Errorf("push ingest request: %w", err)
	}
	return domain.IngestResult{Received: len(req.Items)}, nil
}
