package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"seoul-housing-ingest/internal/domain"
	"seoul-housing-ingest/internal/usecase/collect"
	"seoul-housing-ingest/internal/usecase/detect"
	"seoul-housing-ingest/internal/usecase/feeddiff"
	"seoul-housing-ingest/internal/usecase/stdid"
)

type stubListing struct {
	pages map[domain.ListingKind][]domain.ListingPage
}

func (s *stubListing) FetchPage(_ context.Context, q domain.ListingQuery, pageNo int) (domain.ListingPage, error) {
	pages := s.pages[q.Kind]
	if pageNo > len(pages) {
		return domain.ListingPage{}, nil
	}
	return pages[pageNo-1], nil
}

type stubSeen map[string]map[string]struct{}

func (s stubSeen) SeenIDs(_ context.Context, p domain.Partition) (map[string]struct{}, error) {
	return s[p.String()], nil
}

type stubFeed struct {
	entries []domain.FeedEntry
	err     error
}

func (s *stubFeed) Fetch(context.Context) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []byte("<rss/>"), nil
}

func (s *stubFeed) Parse([]byte) ([]domain.FeedEntry, error) {
	return s.entries, nil
}

type stubCursor struct {
	seq   map[string]string
	saves int
}

func (s *stubCursor) LastSeq(_ context.Context, p domain.Partition) (string, bool, error) {
	v, ok := s.seq[p.String()]
	return v, ok, nil
}

func (s *stubCursor) SaveSeq(_ context.Context, p domain.Partition, seq string) error {
	s.saves++
	s.seq[p.String()] = seq
	return nil
}

type stubSnapshots struct {
	saved map[string][]domain.SnapshotRecord
}

func (s *stubSnapshots) Save(_ context.Context, p domain.Partition, records []domain.SnapshotRecord) (domain.SnapshotMeta, error) {
	s.saved[p.String()] = records
	return domain.SnapshotMeta{Count: len(records)}, nil
}

func (s *stubSnapshots) Load(context.Context, domain.Partition) ([]byte, bool, error) {
	return nil, false, nil
}

func (s *stubSnapshots) Meta(context.Context, domain.Partition) (domain.SnapshotMeta, bool, error) {
	return domain.SnapshotMeta{}, false, nil
}

func (s *stubSnapshots) Checksum(context.Context, domain.Partition, string) (string, bool, error) {
	return "", false, nil
}

type stubDeliverer struct {
	requests []domain.IngestRequest
	err      error
}

func (s *stubDeliverer) Deliver(_ context.Context, req domain.IngestRequest) (domain.IngestResult, error) {
	if s.err != nil {
		return domain.IngestResult{}, s.err
	}
	s.requests = append(s.requests, req)
	return domain.IngestResult{Received: len(req.Items), Created: len(req.Items)}, nil
}

type stubJournal struct {
	started  []string
	reports  []domain.PartitionReport
	status   domain.RunStatus
	finalErr error
}

func (s *stubJournal) StartRun(_ context.Context, runID string, _ time.Time) error {
	s.started = append(s.started, runID)
	return nil
}

func (s *stubJournal) RecordPartition(_ context.Context, _ string, r domain.PartitionReport) error {
	s.reports = append(s.reports, r)
	return nil
}

func (s *stubJournal) FinishRun(_ context.Context, _ string, status domain.RunStatus, runErr error) error {
	s.status, s.finalErr = status, runErr
	return nil
}

type stubAlerter struct {
	texts []string
}

func (s *stubAlerter) Alert(_ context.Context, text string) error {
	s.texts = append(s.texts, text)
	return nil
}

type stubLock struct {
	held     bool
	released bool
}

func (s *stubLock) Acquire(context.Context, time.Duration) (func(), error) {
	if s.held {
		return nil, domain.ErrRunLocked
	}
	return func() { s.released = true }, nil
}

type fixture struct {
	listing   *stubListing
	seen      stubSeen
	feed      *stubFeed
	cursor    *stubCursor
	snapshots *stubSnapshots
	deliverer *stubDeliverer
	journal   *stubJournal
	alerter   *stubAlerter
	lock      *stubLock
	cfg       Config
}

func newFixture() *fixture {
	return &fixture{
		listing:   &stubListing{pages: map[domain.ListingKind][]domain.ListingPage{}},
		seen:      stubSeen{},
		feed:      &stubFeed{},
		cursor:    &stubCursor{seq: map[string]string{}},
		snapshots: &stubSnapshots{saved: map[string][]domain.SnapshotRecord{}},
		deliverer: &stubDeliverer{},
		journal:   &stubJournal{},
		alerter:   &stubAlerter{},
		lock:      &stubLock{},
		cfg: Config{
			Scope:      "seoul",
			Listings:   []ListingTarget{{Category: "rsdt", Query: domain.ListingQuery{Kind: domain.ListingRental, NumOfRows: 10}}},
			Feed:       FeedTarget{Category: "rental", SeedLimit: 2},
			RunLockTTL: time.Minute,
		},
	}
}

func (f *fixture) job() *Job {
	logger := zerolog.Nop()
	j := NewJob(f.cfg, Deps{
		Lock:        f.lock,
		Collector:   collect.NewCollector(f.listing, 0, logger),
		Region:      collect.NewRegionFilter(nil),
		IDs:         stdid.New(),
		Detector:    detect.New(f.seen),
		FeedFetcher: f.feed,
		FeedParser:  f.feed,
		FeedDiff:    feeddiff.New("", logger),
		Cursor:      f.cursor,
		Snapshots:   f.snapshots,
		Deliverer:   f.deliverer,
		Journal:     f.journal,
		Alerter:     f.alerter,
		Logger:      logger,
	})
	j.newID = func() string { return "run-1" }
	return j
}

func at(day int) *time.Time {
	t := time.Date(2026, 10, day, 9, 0, 0, 0, time.UTC)
	return &t
}

func feedEntry(seq, title string, day int) domain.FeedEntry {
	return domain.FeedEntry{Seq: seq, Title: title, Link: "https://sh/view.do?seq=" + seq, PublishedAt: at(day)}
}

func TestRunOnceListingDeliversOnlyNew(t *testing.T) {
	f := newFixture()
	f.listing.pages[domain.ListingRental] = []domain.ListingPage{{
		TotalCount: "4",
		Items: []domain.ListingItem{
			{PblancID: "1", HouseSn: "1", PblancNm: "seen"},
			{PblancID: "2", HouseSn: "1", PblancNm: "fresh", BeginDe: "20261020"},
			{PblancID: "2", HouseSn: "1", PblancNm: "duplicate"},
			{PblancID: "", HouseSn: "1", PblancNm: "keyless"},
		},
	}}
	f.seen["myhome/rsdt/seoul"] = map[string]struct{}{
		"myhome:rsdt:1:1": {},
		"myhome:rsdt:9:9": {},
	}

	if err := f.job().RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	if len(f.deliverer.requests) != 1 {
		t.Fatalf("expected one delivery, got %d", len(f.deliverer.requests))
	}
	req := f.deliverer.requests[0]
	if req.Category != "rsdt" || len(req.Items) != 1 {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.Items[0].ExternalKey != "2:1" || req.Items[0].Title != "fresh" || req.Items[0].StartDate != "2026-10-20" {
		t.Fatalf("first occurrence must win: %+v", req.Items[0])
	}

	records := f.snapshots.saved["myhome/rsdt/seoul"]
	if len(records) != 2 || records[0].ID != "myhome:rsdt:1:1" || records[1].ID != "myhome:rsdt:2:1" {
		t.Fatalf("unexpected snapshot records %+v", records)
	}

	if len(f.journal.reports) != 2 {
		t.Fatalf("expected two partition reports, got %d", len(f.journal.reports))
	}
	r := f.journal.reports[0]
	if r.Collected != 4 || r.Current != 2 || r.Seen != 2 || r.New != 1 || r.Missing != 1 || r.Delivered != 1 {
		t.Fatalf("unexpected report %+v", r)
	}
	if f.journal.status != domain.RunSucceeded || !f.lock.released {
		t.Fatalf("run not finished cleanly: status=%s released=%v", f.journal.status, f.lock.released)
	}
}

func TestRunOnceFeedFirstRunSeeds(t *testing.T) {
	f := newFixture()
	f.cfg.Listings = nil
	f.feed.entries = []domain.FeedEntry{
		feedEntry("100", "행복주택 임대 1차", 1),
		feedEntry("102", "행복주택 임대 3차", 3),
		feedEntry("101", "분양 공고", 2),
		feedEntry("103", "장기전세 임대", 4),
	}

	if err := f.job().RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	if len(f.deliverer.requests) != 1 {
		t.Fatalf("expected one delivery, got %d", len(f.deliverer.requests))
	}
	items := f.deliverer.requests[0].Items
	if len(items) != 2 || items[0].ExternalKey != "103" || items[1].ExternalKey != "102" {
		t.Fatalf("expected the two newest matches, got %+v", items)
	}
	if got := f.cursor.seq["sh/rental/seoul"]; got != "103" {
		t.Fatalf("cursor = %q, want 103", got)
	}
	if n := len(f.snapshots.saved["sh/rental/seoul"]); n != 4 {
		t.Fatalf("snapshot must hold every valid entry, got %d", n)
	}
}

func TestRunOnceFeedWithCursor(t *testing.T) {
	f := newFixture()
	f.cfg.Listings = nil
	f.cursor.seq["sh/rental/seoul"] = "101"
	f.seen["sh/rental/seoul"] = map[string]struct{}{"sh:rss:100": {}, "sh:rss:103": {}}
	f.feed.entries = []domain.FeedEntry{
		feedEntry("100", "임대 1차", 1),
		feedEntry("101", "임대 2차", 2),
		feedEntry("102", "임대 3차", 3),
		feedEntry("103", "임대 4차", 4),
		feedEntry("104", "분양", 5),
	}

	if err := f.job().RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	if len(f.deliverer.requests) != 1 {
		t.Fatalf("expected one delivery, got %d", len(f.deliverer.requests))
	}
	items := f.deliverer.requests[0].Items
	if len(items) != 1 || items[0].ExternalKey != "102" {
		t.Fatalf("seen entries must be filtered, got %+v", items)
	}
	if got := f.cursor.seq["sh/rental/seoul"]; got != "104" {
		t.Fatalf("cursor = %q, want latest 104", got)
	}
}

func TestRunOnceFeedStaleCursor(t *testing.T) {
	tests := []struct {
		name       string
		reseed     bool
		wantCursor string
	}{
		{name: "keep cursor", reseed: false, wantCursor: "1"},
		{name: "reseed", reseed: true, wantCursor: "201"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.cfg.Listings = nil
			f.cfg.Feed.ReseedOnStale = tt.reseed
			f.cursor.seq["sh/rental/seoul"] = "1"
			f.feed.entries = []domain.FeedEntry{
				feedEntry("200", "임대 A", 1),
				feedEntry("201", "임대 B", 2),
			}

			if err := f.job().RunOnce(context.Background()); err != nil {
				t.Fatalf("RunOnce() error: %v", err)
			}
			if len(f.deliverer.requests) != 0 {
				t.Fatalf("stale cursor must not deliver, got %+v", f.deliverer.requests)
			}
			if got := f.cursor.seq["sh/rental/seoul"]; got != tt.wantCursor {
				t.Fatalf("cursor = %q, want %q", got, tt.wantCursor)
			}
			if len(f.alerter.texts) != 1 || !strings.Contains(f.alerter.texts[0], "stale") {
				t.Fatalf("expected stale alert, got %v", f.alerter.texts)
			}
			if !f.journal.reports[0].StaleFeed {
				t.Fatalf("report must flag the stale feed")
			}
		})
	}
}

func TestRunOnceDeliveryFailureStopsRun(t *testing.T) {
	f := newFixture()
	f.listing.pages[domain.ListingRental] = []domain.ListingPage{{
		TotalCount: "1",
		Items:      []domain.ListingItem{{PblancID: "5", HouseSn: "1"}},
	}}
	boom := &domain.UpstreamError{Source: "main_server", Op: "ingest", Code: "500"}
	f.deliverer.err = boom
	f.feed.entries = []domain.FeedEntry{feedEntry("1", "임대", 1)}

	err := f.job().RunOnce(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected delivery error, got %v", err)
	}
	if f.journal.status != domain.RunFailed || !errors.Is(f.journal.finalErr, boom) {
		t.Fatalf("journal not marked failed: %s %v", f.journal.status, f.journal.finalErr)
	}
	if len(f.alerter.texts) != 1 || !strings.Contains(f.alerter.texts[0], "myhome/rsdt/seoul") {
		t.Fatalf("expected failure alert naming the partition, got %v", f.alerter.texts)
	}
	if len(f.snapshots.saved) != 0 || len(f.cursor.seq) != 0 {
		t.Fatalf("later steps must not run after a fatal error")
	}
}

func TestRunOnceLockHeld(t *testing.T) {
	f := newFixture()
	f.lock.held = true
	if err := f.job().RunOnce(context.Background()); !errors.Is(err, domain.ErrRunLocked) {
		t.Fatalf("expected ErrRunLocked, got %v", err)
	}
	if len(f.journal.started) != 0 {
		t.Fatalf("locked run must not start")
	}
}

func TestRunOnceFeedFetchError(t *testing.T) {
	f := newFixture()
	f.cfg.Listings = nil
	f.feed.err = errors.New("connection reset")
	if err := f.job().RunOnce(context.Background()); err == nil || !strings.Contains(err.Error(), "sh/rental/seoul") {
		t.Fatalf("expected feed error naming the partition, got %v", err)
	}
}

func TestRunOnceFeedDetectsOverWholeFeed(t *testing.T) {
	f := newFixture()
	f.cfg.Listings = nil
	f.cursor.seq["sh/rental/seoul"] = "101"
	f.seen["sh/rental/seoul"] = map[string]struct{}{"sh:rss:100": {}, "sh:rss:101": {}}
	f.feed.entries = []domain.FeedEntry{
		feedEntry("100", "임대 1차", 1),
		feedEntry("101", "임대 2차", 2),
		feedEntry("102", "임대 3차", 3),
	}

	if err := f.job().RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	r := f.journal.reports[0]
	if r.Current != 3 || r.Seen != 2 || r.New != 1 || r.Missing != 0 {
		t.Fatalf("entries still in the feed must not count as missing: %+v", r)
	}
	if len(f.deliverer.requests) != 1 || len(f.deliverer.requests[0].Items) != 1 || f.deliverer.requests[0].Items[0].ExternalKey != "102" {
		t.Fatalf("expected only 102 delivered, got %+v", f.deliverer.requests)
	}
}

func TestRunOnceFeedCursorSkipsInvalidTop(t *testing.T) {
	f := newFixture()
	f.cfg.Listings = nil
	f.cursor.seq["sh/rental/seoul"] = "101"
	broken := feedEntry("105", "임대 링크 없음", 9)
	broken.Link = ""
	f.feed.entries = []domain.FeedEntry{
		broken,
		feedEntry("101", "임대 2차", 2),
		feedEntry("102", "임대 3차", 3),
	}

	if err := f.job().RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	if got := f.cursor.seq["sh/rental/seoul"]; got != "102" {
		t.Fatalf("cursor = %q, want newest valid 102", got)
	}
}
