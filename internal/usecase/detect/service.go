package detect

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"seoul-housing-ingest/internal/domain"
)

// Service делит текущие идентификаторы на новые и пропавшие относительно seen-state.
type Service struct {
	seen domain.SeenStateReader
}

// New создаёт детектор изменений.
func New(seen domain.SeenStateReader) *Service {
	return &Service{seen: seen}
}

// Detect вычисляет new = current - seen и missing = seen - current.
// new сохраняет порядок current, missing отсортирован.
func (s *Service) Detect(ctx context.Context, p domain.Partition, current []string) (domain.ChangeDetectionResult, error) {
	norm, err := p.Normalize()
	if err != nil {
		return domain.ChangeDetectionResult{}, err
	}
	seen, err := s.seen.SeenIDs(ctx, norm)
	if err != nil {
		return domain.ChangeDetectionResult{}, fmt.Errorf("read seen ids %s: %w", norm, err)
	}
	return Diff(norm, current, seen), nil
}

// Diff чистая часть Detect.
func Diff(p domain.Partition, current []string, seen map[string]struct{}) domain.ChangeDetectionResult {
	res := domain.ChangeDetectionResult{
		Partition:  p,
		NewIDs:     []string{},
		MissingIDs: []string{},
		SeenCount:  len(seen),
	}
	cur := make(map[string]struct{}, len(current))
	for _, raw := range current {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, dup := cur[id]; dup {
			continue
		}
		cur[id] = struct{}{}
		if _, ok := seen[id]; !ok {
			res.NewIDs = append(res.NewIDs, id)
		}
	}
	res.CurrentCount = len(cur)
	for id := range seen {
		if _, ok := cur[id]; !ok {
			res.MissingIDs = append(res.MissingIDs, id)
		}
	}
	sort.Strings(res.MissingIDs)
	return res
}
