package shrss

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"seoul-housing-ingest/internal/domain"
	"seoul-housing-ingest/internal/infra/retry"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>SH notices</title>
<item><title>2026 행복주택 임대 모집</title><link>https://www.i-sh.co.kr/main/lay2/program/S1T294C295/www/brd/m_241/view.do?seq=301&amp;page=1</link><pubDate>Mon, 05 Oct 2026 09:00:00 +0900</pubDate></item>
<item><title>분양 안내</title><link>https://www.i-sh.co.kr/view.do?SEQ=300</link></item>
<item><title>no seq</title><link>https://www.i-sh.co.kr/view.do?page=2</link></item>
<item><title></title><link>https://www.i-sh.co.kr/view.do?seq=299</link></item>
</channel></rss>`

func TestExtractSeq(t *testing.T) {
	tests := []struct {
		link string
		want string
	}{
		{"https://x/view.do?seq=12&page=1", "12"},
		{" https://x/view.do?page=1&Seq=13 ", "13"},
		{"https://x/view.do?sequence=1", ""},
		{"https://x/view.do", ""},
		{"https://x/view.do?seq=", ""},
		{"://bad", ""},
	}
	for _, tt := range tests {
		t.Run(tt.link, func(t *testing.T) {
			if got := ExtractSeq(tt.link); got != tt.want {
				t.Fatalf("ExtractSeq(%q) = %q, want %q", tt.link, got, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	entries, err := NewParser().Parse([]byte(sampleFeed))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(entries), entries)
	}
	first := entries[0]
	if first.Seq != "301" || first.Title != "2026 행복주택 임대 모집" {
		t.Fatalf("unexpected first entry %+v", first)
	}
	if first.PublishedAt == nil || !first.PublishedAt.Equal(time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected publish time %v", first.PublishedAt)
	}
	if entries[1].Seq != "300" || entries[1].PublishedAt != nil {
		t.Fatalf("unexpected second entry %+v", entries[1])
	}
}

func TestParseStripsTitleMarkup(t *testing.T) {
	raw := `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>SH</title>
<item><title><![CDATA[<b>[공고]</b>  장기전세 <span>모집</span>]]></title><link>https://www.i-sh.co.kr/view.do?seq=12</link></item>
</channel></rss>`
	entries, err := NewParser().Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(entries) != 1 || entries[0].Title != "[공고] 장기전세 모집" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestParseRejectsEmpty(t *testing.T) {
	if _, err := NewParser().Parse([]byte("  ")); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := NewParser().Parse([]byte("not xml at all")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func newFetcher(t *testing.T, h http.HandlerFunc) *Fetcher {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/rss/notice", h)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	f, err := NewFetcher(srv.URL+"/rss/notice", srv.Client(),
		retry.Policy{Attempts: 2, Delay: time.Millisecond, MaxDelay: time.Millisecond, Logger: zerolog.Nop()}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFetcher() error: %v", err)
	}
	return f
}

func TestFetch(t *testing.T) {
	f := newFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(sampleFeed))
	})
	body, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if string(body) != sampleFeed {
		t.Fatalf("body altered")
	}
}

func TestFetchEmptyBody(t *testing.T) {
	var calls atomic.Int32
	f := newFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	})
	_, err := f.Fetch(context.Background())
	if !domain.IsUpstream(err) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("empty body must not be retried, calls=%d", calls.Load())
	}
}

func TestNewFetcherBlankURL(t *testing.T) {
	if _, err := NewFetcher(" ", nil, retry.Policy{}, zerolog.Nop()); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}
