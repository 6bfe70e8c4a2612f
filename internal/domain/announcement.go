package domain

import (
	"strings"
	"time"
)

// Имена источников для партиций и метрик.
const (
	SourceMyHome = "myhome"
	SourceSHRSS  = "sh"
)

// Partition задаёт область seen-state и снапшотов.
type Partition struct {
	Source   string
	Category string
	Scope    string
}

// Normalize обрезает пробелы и приводит компоненты к нижнему регистру.
func (p Partition) Normalize() (Partition, error) {
	out := Partition{
		Source:   strings.ToLower(strings.TrimSpace(p.Source)),
		Category: strings.ToLower(strings.TrimSpace(p.Category)),
		Scope:    strings.ToLower(strings.TrimSpace(p.Scope)),
	}
	switch {
	case out.Source == "":
		return Partition{}, blankPartition("source")
	case out.Category == "":
		return Partition{}, blankPartition("category")
	case out.Scope == "":
		return Partition{}, blankPartition("scope")
	}
	return out, nil
}

func (p Partition) String() string {
	return p.Source + "/" + p.Category + "/" + p.Scope
}

// ListingItem представляет строку объявления MyHome из API листинга.
type ListingItem struct {
	PblancID       string `json:"pblancId,omitempty"`
	HouseSn        string `json:"houseSn,omitempty"`
	SttusNm        string `json:"sttusNm,omitempty"`
	BeforePblancID string `json:"beforePblancId,omitempty"`

	PblancNm     string `json:"pblancNm,omitempty"`
	SuplyInsttNm string `json:"suplyInsttNm,omitempty"`
	HouseTyNm    string `json:"houseTyNm,omitempty"`
	SuplyTyNm    string `json:"suplyTyNm,omitempty"`

	RcritPblancDe     string `json:"rcritPblancDe,omitempty"`
	PrzwnerPresnatnDe string `json:"przwnerPresnatnDe,omitempty"`
	BeginDe           string `json:"beginDe,omitempty"`
	EndDe             string `json:"endDe,omitempty"`

	Refrnc    string `json:"refrnc,omitempty"`
	URL       string `json:"url,omitempty"`
	PcURL     string `json:"pcUrl,omitempty"`
	MobileURL string `json:"mobileUrl,omitempty"`

	HsmpNm           string `json:"hsmpNm,omitempty"`
	BrtcNm           string `json:"brtcNm,omitempty"`
	SignguNm         string `json:"signguNm,omitempty"`
	FullAdres        string `json:"fullAdres,omitempty"`
	RnCodeNm         string `json:"rnCodeNm,omitempty"`
	RefrnLegaldongNm string `json:"refrnLegaldongNm,omitempty"`
	Pnu              string `json:"pnu,omitempty"`

	HeatMthdNm string `json:"heatMthdNm,omitempty"`
	TotHshldCo string `json:"totHshldCo,omitempty"`

	SuplyHoCo  string `json:"suplyHoCo,omitempty"`
	SumSuplyCo string `json:"sumSuplyCo,omitempty"`
	RentGtn    string `json:"rentGtn,omitempty"`
	Enty       string `json:"enty,omitempty"`
	Prtpay     string `json:"prtpay,omitempty"`
	Surlus     string `json:"surlus,omitempty"`
	MtRntchrg  string `json:"mtRntchrg,omitempty"`
}

// ListingPage описывает страницу листинга.
type ListingPage struct {
	Items      []ListingItem
	TotalCount string
	ResultCode string
	ResultMsg  string
}

// ListingKind выбирает эндпоинт листинга.
type ListingKind string

const (
	ListingRental ListingKind = "rsdt"
	ListingSale   ListingKind = "ltrsdt"
)

// ListingQuery задаёт фильтры запроса листинга.
type ListingQuery struct {
	Kind       ListingKind
	Category   string
	NumOfRows  int
	BrtcCode   string
	SignguCode string
	HouseTy    string
	YearMtFrom string
	YearMtTo   string
	// только для аренды
	SuplyTy         string
	LfstsTyAt       string
	BassMtRntchrgSe string
}

// FeedEntry представляет объявление SH из RSS.
type FeedEntry struct {
	Seq         string     `json:"seq"`
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

// ChangeDetectionResult описывает разницу текущих и учтённых идентификаторов.
type ChangeDetectionResult struct {
	Partition    Partition
	NewIDs       []string
	MissingIDs   []string
	CurrentCount int
	SeenCount    int
}

// FirstRun сообщает, что у партиции нет прошлого состояния.
func (r ChangeDetectionResult) FirstRun() bool {
	return r.SeenCount == 0
}

// FeedDiffResult описывает новое в ленте после последнего seq.
type FeedDiffResult struct {
	LastSeenFound bool
	LatestSeq     string
	NewEntries    []FeedEntry
	HasNewMatches bool
}

// IngestSource метка источника для получателя.
type IngestSource string

const (
	IngestSourceMyHome IngestSource = "MYHOME"
	IngestSourceSHRSS  IngestSource = "SH_RSS"
)

// IngestItem описывает новое объявление для получателя.
type IngestItem struct {
	Source              IngestSource `json:"source"`
	ExternalKey         string       `json:"externalKey"`
	Title               string       `json:"title,omitempty"`
	Publisher           string       `json:"publisher,omitempty"`
	HousingType         string       `json:"housingType,omitempty"`
	SupplyType          string       `json:"supplyType,omitempty"`
	RegionName          string       `json:"regionName,omitempty"`
	StartDate           string       `json:"startDate,omitempty"`
	EndDate             string       `json:"endDate,omitempty"`
	DocumentPublishedAt string       `json:"documentPublishedAt,omitempty"`
	FinalPublishedAt    string       `json:"finalPublishedAt,omitempty"`
	ApplyURL            string       `json:"applyUrl,omitempty"`
	RentGtn             *int64       `json:"rentGtn,omitempty"`
	Enty                *int64       `json:"enty,omitempty"`
	Prtpay              *int64       `json:"prtpay,omitempty"`
	Surlus              *int64       `json:"surlus,omitempty"`
	MtRntchrg           *int64       `json:"mtRntchrg,omitempty"`
	FullAddress         string       `json:"fullAddress,omitempty"`
	RefrnLegaldongNm    string       `json:"refrnLegaldongNm,omitempty"`
}

// IngestRequest тело доставки для одной категории.
type IngestRequest struct {
	Category string       `json:"category"`
	Items    []IngestItem `json:"items"`
}

// IngestResult подтверждение от получателя.
type IngestResult struct {
	Received int `json:"received"`
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
}

// SnapshotRecord запись снапшота с идентификатором.
type SnapshotRecord struct {
	ID   string
	Item any
}

// SnapshotMeta описывает сохранённый payload снапшота.
type SnapshotMeta struct {
	GeneratedAt   time.Time
	Count         int
	SchemaVersion string
	Serializer    string
	Compressed    bool
	Compression   string
	PayloadBytes  int
}

// RunStatus состояние запуска.
type RunStatus string

const (
	RunStarted   RunStatus = "started"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// PartitionReport итог обработки партиции.
type PartitionReport struct {
	Partition  Partition
	Collected  int
	Current    int
	Seen       int
	New        int
	Missing    int
	Delivered  int
	StaleFeed  bool
	PageLimit  bool
	FinishedAt time.Time
}
