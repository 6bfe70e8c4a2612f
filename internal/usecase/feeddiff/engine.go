package feeddiff

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"seoul-housing-ingest/internal/domain"
)

// DefaultKeyword отбирает объявления об аренде.
const DefaultKeyword = "임대"

// Engine находит записи ленты новее последнего просмотренного seq.
type Engine struct {
	keyword string
	logger  zerolog.Logger
}

// New создаёт движок. Пустое keyword заменяется на DefaultKeyword.
func New(keyword string, logger zerolog.Logger) *Engine {
	if keyword == "" {
		keyword = DefaultKeyword
	}
	return &Engine{keyword: keyword, logger: logger}
}

// Diff просматривает записи от новых к старым до lastSeenSeq.
// Если lastSeenSeq нет в ленте, новых записей нет.
func (e *Engine) Diff(entries []domain.FeedEntry, lastSeenSeq string) (domain.FeedDiffResult, error) {
	lastSeenSeq = strings.TrimSpace(lastSeenSeq)
	if lastSeenSeq == "" {
		return domain.FeedDiffResult{}, fmt.Errorf("%w: last seen seq is blank", domain.ErrInvalidArgument)
	}
	sorted := Sort(entries)
	res := domain.FeedDiffResult{NewEntries: []domain.FeedEntry{}}
	if len(sorted) == 0 {
		return res, nil
	}
	res.LatestSeq = sorted[0].Seq

	var matches []domain.FeedEntry
	for _, it := range sorted {
		if !Valid(it) {
			continue
		}
		if strings.TrimSpace(it.Seq) == lastSeenSeq {
			res.LastSeenFound = true
			break
		}
		if e.Matches(it) {
			matches = append(matches, it)
		}
	}

	if !res.LastSeenFound {
		e.logger.Warn().
			Str("last_seen_seq", lastSeenSeq).
			Str("latest_seq", res.LatestSeq).
			Int("entries", len(sorted)).
			Msg("feeddiff: last seen seq not in feed window")
		return res, nil
	}
	if len(matches) > 0 {
		res.NewEntries = matches
		res.HasNewMatches = true
	}
	return res, nil
}

// Matches сообщает, содержит ли заголовок keyword.
func (e *Engine) Matches(it domain.FeedEntry) bool {
	return strings.Contains(it.Title, e.keyword)
}

// Candidates возвращает подходящие валидные записи от новых к старым.
func (e *Engine) Candidates(entries []domain.FeedEntry) []domain.FeedEntry {
	var out []domain.FeedEntry
	for _, it := range Sort(entries) {
		if Valid(it) && e.Matches(it) {
			out = append(out, it)
		}
	}
	return out
}

// Valid сообщает, что seq, title и link заполнены.
func Valid(it domain.FeedEntry) bool {
	return strings.TrimSpace(it.Seq) != "" &&
		strings.TrimSpace(it.Title) != "" &&
		strings.TrimSpace(it.Link) != ""
}

// Sort возвращает копию по убыванию времени публикации, затем числового seq.
// Записи без времени и с нечисловым seq идут последними.
func Sort(entries []domain.FeedEntry) []domain.FeedEntry {
	sorted := make([]domain.FeedEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		switch {
		case a.PublishedAt != nil && b.PublishedAt == nil:
			return true
		case a.PublishedAt == nil && b.PublishedAt != nil:
			return false
		case a.PublishedAt != nil && !a.PublishedAt.Equal(*b.PublishedAt):
			return a.PublishedAt.After(*b.PublishedAt)
		}
		sa, okA := parseSeq(a.Seq)
		sb, okB := parseSeq(b.Seq)
		switch {
		case okA && !okB:
			return true
		case !okA:
			return false
		}
		return sa > sb
	})
	return sorted
}

func parseSeq(seq string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(seq), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
