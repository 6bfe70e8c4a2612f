package repo

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"seoul-housing-ingest/internal/domain"
)

type execCall struct {
	sql  string
	args []any
}

type stubDB struct {
	calls []execCall
	tag   pgconn.CommandTag
	err   error
}

func (s *stubDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.calls = append(s.calls, execCall{sql: sql, args: args})
	return s.tag, s.err
}

func TestJournalLifecycle(t *testing.T) {
	db := &stubDB{tag: pgconn.NewCommandTag("UPDATE 1")}
	j := NewJournal(db)
	ctx := context.Background()
	started := time.Date(2026, 10, 18, 9, 0, 0, 0, time.FixedZone("KST", 9*3600))

	if err := j.StartRun(ctx, "run-1", started); err != nil {
		t.Fatalf("StartRun() error: %v", err)
	}
	report := domain.PartitionReport{
		Partition: domain.Partition{Source: "myhome", Category: "rsdt", Scope: "seoul"},
		Collected: 12, Current: 10, Seen: 8, New: 2, Missing: 0, Delivered: 2,
	}
	if err := j.RecordPartition(ctx, "run-1", report); err != nil {
		t.Fatalf("RecordPartition() error: %v", err)
	}
	if err := j.FinishRun(ctx, "run-1", domain.RunFailed, errors.New(strings.Repeat("e", 2500))); err != nil {
		t.Fatalf("FinishRun() error: %v", err)
	}

	if len(db.calls) != 3 {
		t.Fatalf("expected 3 statements, got %d", len(db.calls))
	}
	if !strings.HasPrefix(db.calls[0].sql, "INSERT INTO ingest_runs (run_id,status,started_at) VALUES ($1,$2,$3)") {
		t.Fatalf("unexpected start statement %q", db.calls[0].sql)
	}
	if got := db.calls[0].args[2].(time.Time); got.Location() != time.UTC || !got.Equal(started) {
		t.Fatalf("started_at must be stored in UTC, got %v", got)
	}
	if !strings.Contains(db.calls[1].sql, "ON CONFLICT") || db.calls[1].args[8] != 0 || db.calls[1].args[9] != 2 {
		t.Fatalf("unexpected partition upsert %+v", db.calls[1])
	}
	finish := db.calls[2]
	if !strings.HasPrefix(finish.sql, "UPDATE ingest_runs SET status = $1, error = $2, finished_at = now() WHERE run_id = $3") {
		t.Fatalf("unexpected finish statement %q", finish.sql)
	}
	if finish.args[0] != "failed" || finish.args[2] != "run-1" {
		t.Fatalf("unexpected finish args %v", finish.args)
	}
	if errText := finish.args[1].(*string); len(*errText) != maxErrorText {
		t.Fatalf("error text not truncated: %d", len(*errText))
	}
}

func TestFinishRunUnknown(t *testing.T) {
	j := NewJournal(&stubDB{tag: pgconn.NewCommandTag("UPDATE 0")})
	if err := j.FinishRun(context.Background(), "missing", domain.RunSucceeded, nil); err == nil {
		t.Fatalf("expected error for unknown run")
	}
}

func TestJournalExecError(t *testing.T) {
	boom := errors.New("boom")
	j := NewJournal(&stubDB{err: boom})
	if err := j.StartRun(context.Background(), "r", time.Now()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if err := j.EnsureSchema(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}
