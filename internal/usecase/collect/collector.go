package collect

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"seoul-housing-ingest/internal/domain"
	"seoul-housing-ingest/internal/infra/metrics"
)

// DefaultMaxPages ограничивает бесконечный листинг.
const DefaultMaxPages = 200

// StopReason причина завершения сбора.
type StopReason string

const (
	StopEmptyPage  StopReason = "empty_page"
	StopTotalCount StopReason = "total_count"
	StopShortPage  StopReason = "short_page"
	StopPageLimit  StopReason = "page_limit"
)

// Result итог одного сбора.
type Result struct {
	Items []domain.ListingItem
	Pages int
	Total int
	Stop  StopReason
}

// Collector выбирает постраничный листинг одной категории.
type Collector struct {
	fetcher  domain.ListingFetcher
	maxPages int
	logger   zerolog.Logger
}

// NewCollector создаёт сборщик. При maxPages <= 0 используется DefaultMaxPages.
func NewCollector(fetcher domain.ListingFetcher, maxPages int, logger zerolog.Logger) *Collector {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &Collector{fetcher: fetcher, maxPages: maxPages, logger: logger}
}

// Collect загружает страницы, пока листинг не закончится.
// При достижении лимита страниц пишет в лог и возвращает частичный результат без ошибки.
func (c *Collector) Collect(ctx context.Context, q domain.ListingQuery) (Result, error) {
	cursor := NewPageCursor(func(ctx context.Context, pageNo int) (domain.ListingPage, error) {
		return c.fetcher.FetchPage(ctx, q, pageNo)
	})

	res := Result{Total: -1}
	for {
		page, ok, err := cursor.Next(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("collect %s page %d: %w", q.Category, cursor.PageNo(), err)
		}
		if !ok {
			res.Stop = StopEmptyPage
			break
		}
		res.Pages++
		res.Items = append(res.Items, page.Items...)
		metrics.PagesFetched.WithLabelValues(q.Category).Inc()

		if res.Pages == 1 {
			res.Total = parseTotal(page.TotalCount)
		}
		if res.Total >= 0 && len(res.Items) >= res.Total {
			res.Stop = StopTotalCount
			break
		}
		if q.NumOfRows > 0 && len(page.Items) < q.NumOfRows {
			res.Stop = StopShortPage
			break
		}
		if res.Pages >= c.maxPages {
			res.Stop = StopPageLimit
			metrics.PagingAborted.WithLabelValues(q.Category).Inc()
			c.logger.Error().
				Str("category", q.Category).
				Int("pages", res.Pages).
				Int("collected", len(res.Items)).
				Int("total_hint", res.Total).
				Msg("collect: page limit reached, returning partial result")
			break
		}
	}

	metrics.RecordsCollected.WithLabelValues(domain.SourceMyHome, q.Category).Add(float64(len(res.Items)))
	c.logger.Info().
		Str("category", q.Category).
		Int("pages", res.Pages).
		Int("collected", len(res.Items)).
		Str("stop", string(res.Stop)).
		Msg("collect: done")
	return res, nil
}

// parseTotal returns -1 when the hint is absent or not a non-negative integer.
func parseTotal(raw string) int {
	v := strings.TrimSpace(raw)
	if v == "" {
		return -1
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return -1
	}
	return n
}
