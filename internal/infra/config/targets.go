package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Виды листингов, допустимые в файле целей.
const (
	KindRental = "rsdt"
	KindSale   = "ltrsdt"
)

// TargetsFile перечисляет партиции MyHome для сбора. Если файл задан, он
// заменяет пару rsdt/ltrsdt из окружения.
type TargetsFile struct {
	Targets []ListingTarget `yaml:"targets"`
}

// ListingTarget описывает партицию MyHome и её фильтры. Пустые фильтры
// берутся из окружения.
type ListingTarget struct {
	Category        string `yaml:"category"`
	Kind            string `yaml:"kind"`
	SignguCode      string `yaml:"signgu_code"`
	HouseTy         string `yaml:"house_ty"`
	YearMtBegin     string `yaml:"year_mt_begin"`
	YearMtEnd       string `yaml:"year_mt_end"`
	SuplyTy         string `yaml:"suply_ty"`
	LfstsTyAt       string `yaml:"lfsts_ty_at"`
	BassMtRntchrgSe string `yaml:"bass_mt_rntchrg_se"`
}

// LoadTargets читает YAML файл целей. Пустой путь даёт пустой список.
func LoadTargets(path string) ([]ListingTarget, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets %s: %w", path, err)
	}
	return ParseTargets(raw)
}

// ParseTargets декодирует и проверяет цели. Категории не должны повторяться.
func ParseTargets(raw []byte) ([]ListingTarget, error) {
	var file TargetsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode targets: %w", err)
	}
	seen := make(map[string]struct{}, len(file.Targets))
	var errs []error
	for i := range file.Targets {
		t := &file.Targets[i]
		t.Category = strings.TrimSpace(t.Category)
		t.Kind = strings.ToLower(strings.TrimSpace(t.Kind))
		if t.Category == "" {
			errs = append(errs, fmt.Errorf("target %d: category is blank", i))
			continue
		}
		if _, dup := seen[t.Category]; dup {
			errs = append(errs, fmt.Errorf("target %d: duplicate category %q", i, t.Category))
		}
		seen[t.Category] = struct{}{}
		if t.Kind != KindRental && t.Kind != KindSale {
			errs = append(errs, fmt.Errorf("target %q: kind must be %s or %s, got %q", t.Category, KindRental, KindSale, t.Kind))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid targets: %w", errors.Join(errs...))
	}
	return file.Targets, nil
}
