package ingest

import (
	"testing"

	"seoul-housing-ingest/internal/domain"
)

func TestMapListing(t *testing.T) {
	item, ok := MapListing(domain.ListingItem{
		PblancID:          " 10021 ",
		HouseSn:           "3",
		PblancNm:          " 행복주택 ",
		SuplyInsttNm:      "LH",
		SignguNm:          "강남구",
		BeginDe:           "20261001",
		EndDe:             "20261331",
		PrzwnerPresnatnDe: "2026-11-01",
		URL:               "https://apply",
		RentGtn:           "5000000",
		MtRntchrg:         "n/a",
		FullAdres:         "서울특별시 강남구",
	})
	if !ok {
		t.Fatalf("MapListing() rejected a keyed item")
	}
	if item.Source != domain.IngestSourceMyHome || item.ExternalKey != "10021:3" {
		t.Fatalf("unexpected identity %+v", item)
	}
	if item.Title != "행복주택" || item.Publisher != "LH" || item.RegionName != "강남구" {
		t.Fatalf("unexpected text fields %+v", item)
	}
	if item.StartDate != "2026-10-01" || item.EndDate != "" || item.FinalPublishedAt != "" {
		t.Fatalf("unexpected dates start=%q end=%q final=%q", item.StartDate, item.EndDate, item.FinalPublishedAt)
	}
	if item.RentGtn == nil || *item.RentGtn != 5000000 || item.MtRntchrg != nil || item.Enty != nil {
		t.Fatalf("unexpected amounts %+v", item)
	}

	if _, ok := MapListing(domain.ListingItem{PblancID: "1", HouseSn: " "}); ok {
		t.Fatalf("item without houseSn must be rejected")
	}
}

func TestMapFeedEntry(t *testing.T) {
	item, ok := MapFeedEntry(domain.FeedEntry{Seq: " 301 ", Title: "임대 모집 ", Link: "https://sh/view?seq=301"})
	if !ok {
		t.Fatalf("MapFeedEntry() rejected an entry")
	}
	want := domain.IngestItem{
		Source:      domain.IngestSourceSHRSS,
		ExternalKey: "301",
		Title:       "임대 모집",
		Publisher:   "SH",
		ApplyURL:    "https://sh/view?seq=301",
	}
	if item != want {
		t.Fatalf("MapFeedEntry() = %+v, want %+v", item, want)
	}
	if _, ok := MapFeedEntry(domain.FeedEntry{Title: "x"}); ok {
		t.Fatalf("entry without seq must be rejected")
	}
}

func TestMapComposesHangul(t *testing.T) {
	decomposed := "\u1100\u1161 \u1112\u1162\u11bc"
	item, ok := MapListing(domain.ListingItem{PblancID: "1", HouseSn: "2", PblancNm: decomposed})
	if !ok {
		t.Fatalf("MapListing() rejected an item")
	}
	if item.Title != "\uac00 \ud589" {
		t.Fatalf("title not composed: %q", item.Title)
	}
}
