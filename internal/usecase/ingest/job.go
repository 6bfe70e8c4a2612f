package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"seoul-housing-ingest/internal/domain"
	"seoul-housing-ingest/internal/infra/metrics"
	"seoul-housing-ingest/internal/usecase/collect"
	"seoul-housing-ingest/internal/usecase/detect"
	"seoul-housing-ingest/internal/usecase/feeddiff"
	"seoul-housing-ingest/internal/usecase/stdid"
)

const missingLogSample = 20

// ListingTarget категория MyHome и её запрос.
type ListingTarget struct {
	Category string
	Query    domain.ListingQuery
}

// FeedTarget настраивает партицию ленты SH.
type FeedTarget struct {
	Category      string
	SeedLimit     int
	ReseedOnStale bool
}

// Config настройки запуска.
type Config struct {
	Scope      string
	Listings   []ListingTarget
	Feed       FeedTarget
	RunLockTTL time.Duration
}

// Deps зависимости запуска. Lock, Journal и Alerter необязательны.
type Deps struct {
	Lock        domain.RunLock
	Collector   *collect.Collector
	Region      collect.RegionFilter
	IDs         stdid.Generator
	Detector    *detect.Service
	FeedFetcher domain.FeedFetcher
	FeedParser  domain.FeedParser
	FeedDiff    *feeddiff.Engine
	Cursor      domain.CursorStore
	Snapshots   domain.SnapshotStore
	Deliverer   domain.Deliverer
	Journal     domain.RunJournal
	Alerter     domain.Alerter
	Logger      zerolog.Logger
}

// Job выполняет полный проход загрузки по всем партициям.
type Job struct {
	cfg   Config
	deps  Deps
	now   func() time.Time
	newID func() string
}

func NewJob(cfg Config, deps Deps) *Job {
	return &Job{cfg: cfg, deps: deps, now: time.Now, newID: uuid.NewString}
}

// RunOnce обрабатывает все категории MyHome, затем ленту SH. Первая
// фатальная ошибка останавливает запуск и возвращается.
func (j *Job) RunOnce(ctx context.Context) error {
	if j.deps.Lock != nil {
		release, err := j.deps.Lock.Acquire(ctx, j.cfg.RunLockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrRunLocked) {
				j.deps.Logger.Warn().Str("scope", j.cfg.Scope).Msg("ingest: another run holds the lock")
			}
			return err
		}
		defer release()
	}

	runID := j.newID()
	logger := j.deps.Logger.With().Str("run_id", runID).Logger()
	started := j.now()
	logger.Info().Int("listings", len(j.cfg.Listings)).Msg("ingest: run started")

	if j.deps.Journal != nil {
		if err := j.deps.Journal.StartRun(ctx, runID, started); err != nil {
			logger.Warn().Err(err).Msg("ingest: journal start failed")
		}
	}

	for _, target := range j.cfg.Listings {
		report, err := j.runListing(ctx, logger, target)
		if err != nil {
			return j.fail(ctx, logger, runID, domain.Partition{Source: domain.SourceMyHome, Category: target.Category, Scope: j.cfg.Scope}, err)
		}
		j.record(ctx, logger, runID, report)
	}

	if j.deps.FeedFetcher != nil {
		report, err := j.runFeed(ctx, logger)
		if err != nil {
			return j.fail(ctx, logger, runID, domain.Partition{Source: domain.SourceSHRSS, Category: j.cfg.Feed.Category, Scope: j.cfg.Scope}, err)
		}
		j.record(ctx, logger, runID, report)
	}

	if j.deps.Journal != nil {
		if err := j.deps.Journal.FinishRun(ctx, runID, domain.RunSucceeded, nil); err != nil {
			logger.Warn().Err(err).Msg("ingest: journal finish failed")
		}
	}
	logger.Info().Dur("took", time.Since(started)).Msg("ingest: run succeeded")
	return nil
}

func (j *Job) fail(ctx context.Context, logger zerolog.Logger, runID string, p domain.Partition, err error) error {
	logger.Error().Err(err).Str("partition", p.String()).Msg("ingest: run failed")
	if j.deps.Journal != nil {
		if jerr := j.deps.Journal.FinishRun(context.WithoutCancel(ctx), runID, domain.RunFailed, err); jerr != nil {
			logger.Warn().Err(jerr).Msg("ingest: journal finish failed")
		}
	}
	j.alert(context.WithoutCancel(ctx), logger, fmt.Sprintf("ingest run %s failed at %s: %v", runID, p, err))
	return fmt.Errorf("ingest %s: %w", p, err)
}

func (j *Job) record(ctx context.Context, logger zerolog.Logger, runID string, report domain.PartitionReport) {
	if j.deps.Journal == nil {
		return
	}
	if err := j.deps.Journal.RecordPartition(ctx, runID, report); err != nil {
		logger.Warn().Err(err).Str("partition", report.Partition.String()).Msg("ingest: journal report failed")
	}
}

func (j *Job) alert(ctx context.Context, logger zerolog.Logger, text string) {
	if j.deps.Alerter == nil {
		return
	}
	if err := j.deps.Alerter.Alert(ctx, text); err != nil {
		logger.Warn().Err(err).Msg("ingest: alert not delivered")
	}
}

func (j *Job) runListing(ctx context.Context, logger zerolog.Logger, t ListingTarget) (domain.PartitionReport, error) {
	q := t.Query
	q.Category = t.Category
	collected, err := j.deps.Collector.Collect(ctx, q)
	if err != nil {
		return domain.PartitionReport{}, err
	}

	items := j.deps.Region.Apply(collected.Items)
	identified, _ := collect.Dedup(items, t.Category, j.deps.IDs, logger)
	current := make([]string, 0, len(identified))
	for _, it := range identified {
		current = append(current, it.ID)
	}

	diff, err := j.deps.Detector.Detect(ctx, domain.Partition{Source: domain.SourceMyHome, Category: t.Category, Scope: j.cfg.Scope}, current)
	if err != nil {
		return domain.PartitionReport{}, err
	}
	p := diff.Partition
	j.observe(logger, diff)

	isNew := toSet(diff.NewIDs)
	var fresh []domain.IngestItem
	for _, it := range identified {
		if _, ok := isNew[it.ID]; !ok {
			continue
		}
		if mapped, ok := MapListing(it.Item); ok {
			fresh = append(fresh, mapped)
		}
	}
	delivered, err := j.deliver(ctx, logger, p, fresh)
	if err != nil {
		return domain.PartitionReport{}, err
	}

	records := make([]domain.SnapshotRecord, 0, len(identified))
	for _, it := range identified {
		records = append(records, domain.SnapshotRecord{ID: it.ID, Item: it.Item})
	}
	if _, err := j.deps.Snapshots.Save(ctx, p, records); err != nil {
		return domain.PartitionReport{}, fmt.Errorf("save snapshot: %w", err)
	}

	pageLimit := collected.Stop == collect.StopPageLimit
	if pageLimit {
		j.alert(ctx, logger, fmt.Sprintf("paging aborted for %s after %d pages (%d records, total hint %d)",
			p, collected.Pages, len(collected.Items), collected.Total))
	}
	return domain.PartitionReport{
		Partition:  p,
		Collected:  len(collected.Items),
		Current:    diff.CurrentCount,
		Seen:       diff.SeenCount,
		New:        len(diff.NewIDs),
		Missing:    len(diff.MissingIDs),
		Delivered:  delivered,
		PageLimit:  pageLimit,
		FinishedAt: j.now(),
	}, nil
}

func (j *Job) runFeed(ctx context.Context, logger zerolog.Logger) (domain.PartitionReport, error) {
	raw, err := j.deps.FeedFetcher.Fetch(ctx)
	if err != nil {
		return domain.PartitionReport{}, err
	}
	entries, err := j.deps.FeedParser.Parse(raw)
	if err != nil {
		return domain.PartitionReport{}, err
	}
	p, err := domain.Partition{Source: domain.SourceSHRSS, Category: j.cfg.Feed.Category, Scope: j.cfg.Scope}.Normalize()
	if err != nil {
		return domain.PartitionReport{}, err
	}

	valid := validSorted(entries)
	// Курсор ставится на самую новую валидную запись. FeedDiffResult.LatestSeq
	// указывает на верхнюю запись даже без title или link, а следующий Diff
	// такую запись пропустит и сочтёт курсор устаревшим.
	latest := ""
	if len(valid) > 0 {
		latest = valid[0].Seq
	}

	lastSeq, hasCursor, err := j.deps.Cursor.LastSeq(ctx, p)
	if err != nil {
		return domain.PartitionReport{}, err
	}
	var candidates []domain.FeedEntry
	stale := false
	switch {
	case len(valid) == 0:
		logger.Info().Str("partition", p.String()).Msg("ingest: feed has no valid entries")
	case hasCursor:
		d, err := j.deps.FeedDiff.Diff(entries, lastSeq)
		if err != nil {
			return domain.PartitionReport{}, err
		}
		if !d.LastSeenFound {
			stale = true
			metrics.StaleCursor.WithLabelValues(p.Category).Inc()
			j.alert(ctx, logger, fmt.Sprintf("feed cursor for %s is stale: last seen %s, latest %s", p, lastSeq, latest))
			if j.cfg.Feed.ReseedOnStale {
				if err := j.deps.Cursor.SaveSeq(ctx, p, latest); err != nil {
					return domain.PartitionReport{}, err
				}
				logger.Warn().Str("latest_seq", latest).Msg("ingest: feed cursor reseeded")
			}
		}
		candidates = d.NewEntries
	default:
		candidates = j.deps.FeedDiff.Candidates(entries)
	}

	// Детекция идёт по всем валидным записям, чтобы current и missing
	// описывали всю ленту. Доставка затем сужается до кандидатов.
	ids := make([]string, 0, len(valid))
	for _, it := range valid {
		if id := j.deps.IDs.SHRSSOrEmpty(it.Seq); id != "" {
			ids = append(ids, id)
		}
	}
	diff, err := j.deps.Detector.Detect(ctx, p, ids)
	if err != nil {
		return domain.PartitionReport{}, err
	}
	j.observe(logger, diff)

	isNew := toSet(diff.NewIDs)
	firstRun := diff.FirstRun() && !hasCursor
	var fresh []domain.IngestItem
	for _, it := range candidates {
		id := j.deps.IDs.SHRSSOrEmpty(it.Seq)
		if _, ok := isNew[id]; !ok {
			continue
		}
		delete(isNew, id)
		if firstRun && len(fresh) >= j.cfg.Feed.SeedLimit {
			logger.Info().Int("seed_limit", j.cfg.Feed.SeedLimit).Int("new", len(diff.NewIDs)).Msg("ingest: first feed run, seeding newest only")
			break
		}
		if mapped, ok := MapFeedEntry(it); ok {
			fresh = append(fresh, mapped)
		}
	}
	delivered, err := j.deliver(ctx, logger, p, fresh)
	if err != nil {
		return domain.PartitionReport{}, err
	}

	if !stale && latest != "" && latest != lastSeq {
		if err := j.deps.Cursor.SaveSeq(ctx, p, latest); err != nil {
			return domain.PartitionReport{}, err
		}
	}

	records := make([]domain.SnapshotRecord, 0, len(valid))
	for _, it := range valid {
		if id := j.deps.IDs.SHRSSOrEmpty(it.Seq); id != "" {
			records = append(records, domain.SnapshotRecord{ID: id, Item: it})
		}
	}
	if _, err := j.deps.Snapshots.Save(ctx, p, records); err != nil {
		return domain.PartitionReport{}, fmt.Errorf("save snapshot: %w", err)
	}

	return domain.PartitionReport{
		Partition:  p,
		Collected:  len(entries),
		Current:    diff.CurrentCount,
		Seen:       diff.SeenCount,
		New:        len(diff.NewIDs),
		Missing:    len(diff.MissingIDs),
		Delivered:  delivered,
		StaleFeed:  stale,
		FinishedAt: j.now(),
	}, nil
}

func (j *Job) deliver(ctx context.Context, logger zerolog.Logger, p domain.Partition, items []domain.IngestItem) (int, error) {
	if len(items) == 0 {
		logger.Info().Str("partition", p.String()).Msg("ingest: nothing new to deliver")
		return 0, nil
	}
	res, err := j.deps.Deliverer.Deliver(ctx, domain.IngestRequest{Category: p.Category, Items: items})
	if err != nil {
		return 0, fmt.Errorf("deliver: %w", err)
	}
	metrics.ItemsDelivered.WithLabelValues(p.Source, p.Category).Add(float64(len(items)))
	logger.Info().
		Str("partition", p.String()).
		Int("items", len(items)).
		Int("received", res.Received).
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("skipped", res.Skipped).
		Msg("ingest: delivered")
	return len(items), nil
}

func (j *Job) observe(logger zerolog.Logger, diff domain.ChangeDetectionResult) {
	p := diff.Partition
	metrics.ObservePartition(p.Source, p.Category, diff.CurrentCount, diff.SeenCount, len(diff.NewIDs), len(diff.MissingIDs))
	ev := logger.Info().
		Str("partition", p.String()).
		Int("current", diff.CurrentCount).
		Int("seen", diff.SeenCount).
		Int("new", len(diff.NewIDs)).
		Int("missing", len(diff.MissingIDs))
	if n := len(diff.MissingIDs); n > 0 {
		ev = ev.Strs("missing_sample", diff.MissingIDs[:min(n, missingLogSample)])
	}
	ev.Msg("ingest: change detection")
}

func validSorted(entries []domain.FeedEntry) []domain.FeedEntry {
	var out []domain.FeedEntry
	for _, it := range feeddiff.Sort(entries) {
		if feeddiff.Valid(it) {
			out = append(out, it)
		}
	}
	return out
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
