package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"seoul-housing-ingest/internal/domain"
	"seoul-housing-ingest/internal/infra/metrics"
	"seoul-housing-ingest/internal/usecase/snapshot"
)

// SnapshotStore хранит payload, карту контрольных сумм и мету по партиции.
// Ключи пишутся по очереди без транзакции. Сбой между записями рассинхронизирует
// их до следующего успешного Save.
type SnapshotStore struct {
	client        *redis.Client
	keys          Keys
	ttl           time.Duration
	gzipThreshold int
	now           func() time.Time
}

var _ domain.SnapshotStore = (*SnapshotStore)(nil)

// NewSnapshotStore создаёт хранилище.
func NewSnapshotStore(client *redis.Client, keys Keys, ttl time.Duration, gzipThreshold int) *SnapshotStore {
	return &SnapshotStore{
		client:        client,
		keys:          keys,
		ttl:           ttl,
		gzipThreshold: gzipThreshold,
		now:           time.Now,
	}
}

// Save заменяет снапшот партиции.
func (s *SnapshotStore) Save(ctx context.Context, p domain.Partition, records []domain.SnapshotRecord) (domain.SnapshotMeta, error) {
	snapKey, sumKey, metaKey, err := s.partitionKeys(p)
	if err != nil {
		return domain.SnapshotMeta{}, err
	}

	enc, err := snapshot.Encode(records, s.gzipThreshold)
	if err != nil {
		return domain.SnapshotMeta{}, err
	}

	start := time.Now()
	err = s.write(ctx, snapKey, sumKey, metaKey, enc)
	metrics.ObserveNetworkRequest("redis", "snapshot_save", p.Source, start, err)
	if err != nil {
		return domain.SnapshotMeta{}, err
	}

	meta := domain.SnapshotMeta{
		GeneratedAt:   s.now().UTC(),
		Count:         enc.Count,
		SchemaVersion: snapshot.SchemaVersion,
		Serializer:    snapshot.Serializer,
		Compressed:    enc.Compressed,
		Compression:   enc.Compression(),
		PayloadBytes:  len(enc.Payload),
	}
	if err := s.writeMeta(ctx, metaKey, meta); err != nil {
		return domain.SnapshotMeta{}, err
	}
	metrics.SnapshotPayloadBytes.WithLabelValues(p.Source, p.Category).Set(float64(meta.PayloadBytes))
	return meta, nil
}

func (s *SnapshotStore) partitionKeys(p domain.Partition) (snapKey, sumKey, metaKey string, err error) {
	if snapKey, err = s.keys.Snapshot(p); err != nil {
		return "", "", "", err
	}
	if sumKey, err = s.keys.Checksum(p); err != nil {
		return "", "", "", err
	}
	if metaKey, err = s.keys.Meta(p); err != nil {
		return "", "", "", err
	}
	return snapKey, sumKey, metaKey, nil
}

func (s *SnapshotStore) write(ctx context.Context, snapKey, sumKey, metaKey string, enc snapshot.Encoded) error {
	if err := s.client.Set(ctx, snapKey, enc.Payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", snapKey, err)
	}
	if err := s.client.Del(ctx, sumKey).Err(); err != nil {
		return fmt.Errorf("del %s: %w", sumKey, err)
	}
	if len(enc.Checksums) > 0 {
		values := make(map[string]any, len(enc.Checksums))
		for id, sum := range enc.Checksums {
			values[id] = sum
		}
		if err := s.client.HSet(ctx, sumKey, values).Err(); err != nil {
			return fmt.Errorf("hset %s: %w", sumKey, err)
		}
		if err := s.client.Expire(ctx, sumKey, s.ttl).Err(); err != nil {
			return fmt.Errorf("expire %s: %w", sumKey, err)
		}
	}
	if err := s.client.Del(ctx, metaKey).Err(); err != nil {
		return fmt.Errorf("del %s: %w", metaKey, err)
	}
	return nil
}

func (s *SnapshotStore) writeMeta(ctx context.Context, metaKey string, meta domain.SnapshotMeta) error {
	fields := map[string]any{
		"generatedAt":   meta.GeneratedAt.Format(time.RFC3339Nano),
		"count":         strconv.Itoa(meta.Count),
		"schemaVersion": meta.SchemaVersion,
		"serializer":    meta.Serializer,
		"compressed":    strconv.FormatBool(meta.Compressed),
		"compression":   meta.Compression,
		"payloadBytes":  strconv.Itoa(meta.PayloadBytes),
	}
	if err := s.client.HSet(ctx, metaKey, fields).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", metaKey, err)
	}
	if err := s.client.Expire(ctx, metaKey, s.ttl).Err(); err != nil {
		return fmt.Errorf("expire %s: %w", metaKey, err)
	}
	return nil
}

// Meta читает hash метаданных. ok равен false, если его нет.
func (s *SnapshotStore) Meta(ctx context.Context, p domain.Partition) (domain.SnapshotMeta, bool, error) {
	key, err := s.keys.Meta(p)
	if err != nil {
		return domain.SnapshotMeta{}, false, err
	}
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.SnapshotMeta{}, false, fmt.Errorf("hgetall %s: %w", key, err)
	}
	if len(fields) == 0 {
		return domain.SnapshotMeta{}, false, nil
	}
	meta := domain.SnapshotMeta{
		SchemaVersion: fields["schemaVersion"],
		Serializer:    fields["serializer"],
		Compression:   fields["compression"],
	}
	if v := fields["generatedAt"]; v != "" {
		if meta.GeneratedAt, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return domain.SnapshotMeta{}, false, fmt.Errorf("meta generatedAt: %w", err)
		}
	}
	if meta.Count, err = atoiOrZero(fields["count"]); err != nil {
		return domain.SnapshotMeta{}, false, fmt.Errorf("meta count: %w", err)
	}
	if meta.PayloadBytes, err = atoiOrZero(fields["payloadBytes"]); err != nil {
		return domain.SnapshotMeta{}, false, fmt.Errorf("meta payloadBytes: %w", err)
	}
	meta.Compressed = fields["compressed"] == "true" || meta.Compression == snapshot.CompressionGzip
	return meta, true, nil
}

// Load возвращает канонические байты снапшота. ok равен false без payload.
// Без hash метаданных сжатие определяется по заголовку gzip.
func (s *SnapshotStore) Load(ctx context.Context, p domain.Partition) ([]byte, bool, error) {
	key, err := s.keys.Snapshot(p)
	if err != nil {
		return nil, false, err
	}
	meta, hasMeta, err := s.Meta(ctx, p)
	if err != nil {
		return nil, false, err
	}
	payload, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	compressed := meta.Compressed
	if !hasMeta {
		compressed = snapshot.IsGzip(payload)
	}
	out, err := snapshot.Decode(payload, compressed)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// Checksum возвращает сохранённый хеш для идентификатора.
func (s *SnapshotStore) Checksum(ctx context.Context, p domain.Partition, id string) (string, bool, error) {
	key, err := s.keys.Checksum(p)
	if err != nil {
		return "", false, err
	}
	sum, err := s.client.HGet(ctx, key, id).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("hget %s: %w", key, err)
	}
	return sum, true, nil
}

// Checksums возвращает всю карту хешей.
func (s *SnapshotStore) Checksums(ctx context.Context, p domain.Partition) (map[string]string, error) {
	key, err := s.keys.Checksum(p)
	if err != nil {
		return nil, err
	}
	out, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", key, err)
	}
	return out, nil
}

func atoiOrZero(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
