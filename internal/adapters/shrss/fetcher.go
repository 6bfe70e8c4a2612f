package shrss

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"seoul-housing-ingest/internal/domain"
	"seoul-housing-ingest/internal/infra/metrics"
	"seoul-housing-ingest/internal/infra/retry"
)

// Fetcher downloads the SH notice feed as raw bytes. The feed may not be UTF-8,
// so decoding is left to the parser.
type Fetcher struct {
	noticeURL  string
	httpClient *http.Client
	retry      retry.Policy
	logger     zerolog.Logger
}

var _ domain.FeedFetcher = (*Fetcher)(nil)

func NewFetcher(noticeURL string, httpClient *http.Client, policy retry.Policy, logger zerolog.Logger) (*Fetcher, error) {
	if strings.TrimSpace(noticeURL) == "" {
		return nil, fmt.Errorf("%w: sh rss notice url is blank", domain.ErrInvalidArgument)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Fetcher{
		noticeURL:  strings.TrimSpace(noticeURL),
		httpClient: httpClient,
		retry:      policy,
		logger:     logger,
	}, nil
}

func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	var body []byte
	err := f.retry.Do(ctx, "sh rss notice", func() error {
		var err error
		body, err = f.fetchOnce(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	f.logger.Info().Int("bytes", len(body)).Msg("sh rss: fetched")
	return body, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.noticeURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/xml, text/xml, */*")

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("sh_rss", "notice", "fetch", start, err)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	metrics.ObserveNetworkRequest("sh_rss", "notice", "fetch", start, err)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.UpstreamError{Source: domain.SourceSHRSS, Op: "notice", Code: fmt.Sprint(resp.StatusCode), Message: "http status"}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		f.logger.Error().Str("url", f.noticeURL).Msg("sh rss: empty response")
		return nil, &domain.UpstreamError{Source: domain.SourceSHRSS, Op: "notice", Code: "empty", Message: "empty body"}
	}
	return body, nil
}
