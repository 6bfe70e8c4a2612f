package collect

import (
	"github.com/rs/zerolog"

	"seoul-housing-ingest/internal/domain"
	"seoul-housing-ingest/internal/infra/metrics"
	"seoul-housing-ingest/internal/usecase/stdid"
)

// Identified связывает элемент листинга с его идентификатором.
type Identified struct {
	ID   string
	Item domain.ListingItem
}

// DedupStats считает отброшенное Dedup.
type DedupStats struct {
	Duplicates int
	Skipped    int
}

// Dedup оставляет первый элемент для каждого идентификатора в исходном порядке.
// Элементы без pblancId или houseSn пропускаются.
func Dedup(items []domain.ListingItem, category string, gen stdid.Generator, logger zerolog.Logger) ([]Identified, DedupStats) {
	var stats DedupStats
	out := make([]Identified, 0, len(items))
	firstIdx := make(map[string]int, len(items))

	for i, it := range items {
		id := gen.MyHomeOrEmpty(category, it.PblancID, it.HouseSn)
		if id == "" {
			stats.Skipped++
			logger.Warn().
				Str("category", category).
				Int("index", i).
				Str("pblanc_id", it.PblancID).
				Str("house_sn", it.HouseSn).
				Str("title", it.PblancNm).
				Msg("dedup: skipped record without natural key")
			continue
		}
		if idx, dup := firstIdx[id]; dup {
			stats.Duplicates++
			prev := out[idx].Item
			logger.Warn().
				Str("category", category).
				Str("std_id", id).
				Str("prev_brtc", prev.BrtcNm).
				Str("now_brtc", it.BrtcNm).
				Str("prev_signgu", prev.SignguNm).
				Str("now_signgu", it.SignguNm).
				Str("prev_title", prev.PblancNm).
				Str("now_title", it.PblancNm).
				Msg("dedup: duplicate identifier, keeping first")
			continue
		}
		firstIdx[id] = len(out)
		out = append(out, Identified{ID: id, Item: it})
	}

	if stats.Duplicates > 0 {
		metrics.RecordsDuplicated.WithLabelValues(category).Add(float64(stats.Duplicates))
	}
	if stats.Skipped > 0 {
		metrics.RecordsSkipped.WithLabelValues(category).Add(float64(stats.Skipped))
	}
	return out, stats
}
