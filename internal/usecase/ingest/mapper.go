package ingest

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"seoul-housing-ingest/internal/domain"
)

const shPublisher = "SH"

// MapListing преобразует строку листинга для получателя.
// ok равен false при пустых pblancId или houseSn.
func MapListing(it domain.ListingItem) (domain.IngestItem, bool) {
	id, sn := strings.TrimSpace(it.PblancID), strings.TrimSpace(it.HouseSn)
	if id == "" || sn == "" {
		return domain.IngestItem{}, false
	}
	return domain.IngestItem{
		Source:           domain.IngestSourceMyHome,
		ExternalKey:      id + ":" + sn,
		Title:            text(it.PblancNm),
		Publisher:        text(it.SuplyInsttNm),
		HousingType:      text(it.HouseTyNm),
		SupplyType:       text(it.SuplyTyNm),
		RegionName:       text(it.SignguNm),
		StartDate:        isoDate(it.BeginDe),
		EndDate:          isoDate(it.EndDe),
		FinalPublishedAt: isoDate(it.PrzwnerPresnatnDe),
		ApplyURL:         strings.TrimSpace(it.URL),
		RentGtn:          int64OrNil(it.RentGtn),
		Enty:             int64OrNil(it.Enty),
		Prtpay:           int64OrNil(it.Prtpay),
		Surlus:           int64OrNil(it.Surlus),
		MtRntchrg:        int64OrNil(it.MtRntchrg),
		FullAddress:      text(it.FullAdres),
		RefrnLegaldongNm: text(it.RefrnLegaldongNm),
	}, true
}

// MapFeedEntry преобразует запись ленты для получателя.
// ok равен false при пустом seq.
func MapFeedEntry(it domain.FeedEntry) (domain.IngestItem, bool) {
	seq := strings.TrimSpace(it.Seq)
	if seq == "" {
		return domain.IngestItem{}, false
	}
	return domain.IngestItem{
		Source:      domain.IngestSourceSHRSS,
		ExternalKey: seq,
		Title:       text(it.Title),
		Publisher:   shPublisher,
		ApplyURL:    strings.TrimSpace(it.Link),
	}, true
}

// text обрезает s и собирает разложенные чамо хангыля в слоги (NFC).
func text(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// isoDate переводит yyyymmdd в yyyy-mm-dd. Остальное даёт "".
func isoDate(raw string) string {
	v := strings.TrimSpace(raw)
	if len(v) != 8 {
		return ""
	}
	t, err := time.Parse("20060102", v)
	if err != nil {
		return ""
	}
	return t.Format(time.DateOnly)
}

func int64OrNil(raw string) *int64 {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}
