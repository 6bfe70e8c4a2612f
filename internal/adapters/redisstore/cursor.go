package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"seoul-housing-ingest/internal/domain"
)

// CursorStore хранит последний доставленный seq ленты.
type CursorStore struct {
	client *redis.Client
	keys   Keys
}

var _ domain.CursorStore = (*CursorStore)(nil)

// NewCursorStore создаёт хранилище курсора.
func NewCursorStore(client *redis.Client, keys Keys) *CursorStore {
	return &CursorStore{client: client, keys: keys}
}

// LastSeq возвращает сохранённый seq. ok равен false, если его нет.
func (c *CursorStore) LastSeq(ctx context.Context, p domain.Partition) (string, bool, error) {
	key, err := c.keys.Cursor(p)
	if err != nil {
		return "", false, err
	}
	v, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false, nil
	}
	return v, true, nil
}

// SaveSeq сохраняет seq без срока жизни.
func (c *CursorStore) SaveSeq(ctx context.Context, p domain.Partition, seq string) error {
	key, err := c.keys.Cursor(p)
	if err != nil {
		return err
	}
	seq = strings.TrimSpace(seq)
	if seq == "" {
		return fmt.Errorf("%w: seq is blank", domain.ErrInvalidArgument)
	}
	if err := c.client.Set(ctx, key, seq, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
