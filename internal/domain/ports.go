package domain

import (
	"context"
	"time"
)

// SeenStateReader возвращает уже учтённые идентификаторы партиции.
type SeenStateReader interface {
	SeenIDs(ctx context.Context, p Partition) (map[string]struct{}, error)
}

// ListingFetcher загружает одну страницу листинга MyHome.
type ListingFetcher interface {
	FetchPage(ctx context.Context, q ListingQuery, pageNo int) (ListingPage, error)
}

// FeedFetcher возвращает сырое тело ленты.
type FeedFetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// FeedParser разбирает байты ленты в записи.
type FeedParser interface {
	Parse(raw []byte) ([]FeedEntry, error)
}

// Deliverer передаёт новые элементы дальше.
type Deliverer interface {
	Deliver(ctx context.Context, req IngestRequest) (IngestResult, error)
}

// SnapshotStore хранит полные снапшоты партиций с заменой.
type SnapshotStore interface {
	Save(ctx context.Context, p Partition, records []SnapshotRecord) (SnapshotMeta, error)
	Load(ctx context.Context, p Partition) ([]byte, bool, error)
	Meta(ctx context.Context, p Partition) (SnapshotMeta, bool, error)
	Checksum(ctx context.Context, p Partition, id string) (string, bool, error)
}

// CursorStore хранит последний доставленный seq ленты по партиции.
type CursorStore interface {
	LastSeq(ctx context.Context, p Partition) (string, bool, error)
	SaveSeq(ctx context.Context, p Partition, seq string) error
}

// RunLock защищает от параллельных запусков.
type RunLock interface {
	Acquire(ctx context.Context, ttl time.Duration) (release func(), err error)
}

// Alerter уведомляет операторов об аномалиях и сбоях.
type Alerter interface {
	Alert(ctx context.Context, text string) error
}

// RunJournal записывает запуски и отчёты по партициям.
type RunJournal interface {
	StartRun(ctx context.Context, runID string, startedAt time.Time) error
	RecordPartition(ctx context.Context, runID string, report PartitionReport) error
	FinishRun(ctx context.Context, runID string, status RunStatus, runErr error) error
}
