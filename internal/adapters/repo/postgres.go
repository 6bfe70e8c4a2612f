package repo

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"

	"seoul-housing-ingest/internal/domain"
	"seoul-housing-ingest/internal/infra/metrics"
)

const schema = `
CREATE TABLE IF NOT EXISTS ingest_runs (
    run_id      TEXT PRIMARY KEY,
    status      TEXT NOT NULL,
    error       TEXT,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS ingest_partition_reports (
    run_id      TEXT NOT NULL REFERENCES ingest_runs (run_id) ON DELETE CASCADE,
    source      TEXT NOT NULL,
    category    TEXT NOT NULL,
    scope       TEXT NOT NULL,
    collected   INT NOT NULL,
    current_ids INT NOT NULL,
    seen_ids    INT NOT NULL,
    new_ids     INT NOT NULL,
    missing_ids INT NOT NULL,
    delivered   INT NOT NULL,
    stale_feed  BOOLEAN NOT NULL DEFAULT FALSE,
    page_limit  BOOLEAN NOT NULL DEFAULT FALSE,
    finished_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (run_id, source, category, scope)
);`

const maxErrorText = 2000

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Journal хранит запуски и отчёты по партициям в Postgres.
type Journal struct {
	db execer
}

var _ domain.RunJournal = (*Journal)(nil)

// NewJournal принимает *pgxpool.Pool или другой pgx executor.
func NewJournal(db execer) *Journal {
	return &Journal{db: db}
}

func (j *Journal) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (j *Journal) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return j.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// EnsureSchema создаёт таблицы журнала, если их нет.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	ctx, cancel := j.connCtxWithParent(ctx)
	defer cancel()
	if _, err := j.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure journal schema: %w", err)
	}
	return nil
}

func (j *Journal) StartRun(ctx context.Context, runID string, startedAt time.Time) error {
	ctx, cancel := j.connCtxWithParent(ctx)
	defer cancel()

	query, args, err := psql.Insert("ingest_runs").
		Columns("run_id", "status", "started_at").
		Values(runID, string(domain.RunStarted), startedAt.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build start run: %w", err)
	}
	start := time.Now()
	_, err = j.db.Exec(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "runs_insert", "ingest_runs", start, err)
	if err != nil {
		return fmt.Errorf("journal start run: %w", err)
	}
	return nil
}

func (j *Journal) RecordPartition(ctx context.Context, runID string, r domain.PartitionReport) error {
	ctx, cancel := j.connCtxWithParent(ctx)
	defer cancel()

	finished := r.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	query, args, err := psql.Insert("ingest_partition_reports").
		Columns("run_id", "source", "category", "scope", "collected", "current_ids", "seen_ids",
			"new_ids", "missing_ids", "delivered", "stale_feed", "page_limit", "finished_at").
		Values(runID, r.Partition.Source, r.Partition.Category, r.Partition.Scope, r.Collected, r.Current, r.Seen,
			r.New, r.Missing, r.Delivered, r.StaleFeed, r.PageLimit, finished.UTC()).
		Suffix(`ON CONFLICT (run_id, source, category, scope) DO UPDATE SET
    collected = EXCLUDED.collected,
    current_ids = EXCLUDED.current_ids,
    seen_ids = EXCLUDED.seen_ids,
    new_ids = EXCLUDED.new_ids,
    missing_ids = EXCLUDED.missing_ids,
    delivered = EXCLUDED.delivered,
    stale_feed = EXCLUDED.stale_feed,
    page_limit = EXCLUDED.page_limit,
    finished_at = EXCLUDED.finished_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build partition report: %w", err)
	}
	start := time.Now()
	_, err = j.db.Exec(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "partition_report_upsert", "ingest_partition_reports", start, err)
	if err != nil {
		return fmt.Errorf("journal partition %s: %w", r.Partition, err)
	}
	return nil
}

func (j *Journal) FinishRun(ctx context.Context, runID string, status domain.RunStatus, runErr error) error {
	ctx, cancel := j.connCtxWithParent(ctx)
	defer cancel()

	var errText *string
	if runErr != nil {
		s := runErr.Error()
		if r := []rune(s); len(r) > maxErrorText {
			s = string(r[:maxErrorText])
		}
		errText = &s
	}
	query, args, err := psql.Update("ingest_runs").
		Set("status", string(status)).
		Set("error", errText).
		Set("finished_at", sq.Expr("now()")).
		Where(sq.Eq{"run_id": runID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build finish run: %w", err)
	}
	start := time.Now()
	tag, err := j.db.Exec(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "runs_update", "ingest_runs", start, err)
	if err != nil {
		return fmt.Errorf("journal finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("journal finish run %s: run not found", runID)
	}
	return nil
}
