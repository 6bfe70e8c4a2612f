package collect

import (
	"strings"

	"seoul-housing-ingest/internal/domain"
)

// RegionFilter оставляет элементы, у которых brtcNm начинается с одного из префиксов.
// Пробелы игнорируются. Без префиксов подходит любой регион.
type RegionFilter struct {
	prefixes []string
}

// NewRegionFilter создаёт фильтр по префиксам из конфига.
func NewRegionFilter(prefixes []string) RegionFilter {
	var clean []string
	for _, p := range prefixes {
		if p = stripSpaces(p); p != "" {
			clean = append(clean, p)
		}
	}
	return RegionFilter{prefixes: clean}
}

// Match сообщает, относится ли элемент к настроенному региону.
func (f RegionFilter) Match(it domain.ListingItem) bool {
	if len(f.prefixes) == 0 {
		return true
	}
	name := stripSpaces(it.BrtcNm)
	if name == "" {
		return false
	}
	for _, p := range f.prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// Apply возвращает подходящие элементы в исходном порядке.
func (f RegionFilter) Apply(items []domain.ListingItem) []domain.ListingItem {
	if len(f.prefixes) == 0 {
		return items
	}
	out := make([]domain.ListingItem, 0, len(items))
	for _, it := range items {
		if f.Match(it) {
			out = append(out, it)
		}
	}
	return out
}

func stripSpaces(s string) string {
	return strings.Join(strings.Fields(s), "")
}
