package stdid

import (
	"fmt"
	"strings"

	"seoul-housing-ingest/internal/domain"
)

const (
	separator    = ":"
	myHomePrefix = "myhome"
	shRSSPrefix  = "sh" + separator + "rss"
)

// Generator строит идентификаторы источников из натуральных ключей.
type Generator struct{}

// New создаёт генератор.
func New() Generator {
	return Generator{}
}

// MyHome returns myhome:<category>:<pblancId>:<houseSn>.
func (Generator) MyHome(category, pblancID, houseSn string) (string, error) {
	return join(myHomePrefix, field{"category", category}, field{"pblancId", pblancID}, field{"houseSn", houseSn})
}

// MyHomeOrEmpty как MyHome, но вместо ошибки возвращает "".
func (g Generator) MyHomeOrEmpty(category, pblancID, houseSn string) string {
	id, err := g.MyHome(category, pblancID, houseSn)
	if err != nil {
		return ""
	}
	return id
}

// SHRSS returns sh:rss:<seq>.
func (Generator) SHRSS(seq string) (string, error) {
	return join(shRSSPrefix, field{"seq", seq})
}

// SHRSSOrEmpty как SHRSS, но вместо ошибки возвращает "".
func (g Generator) SHRSSOrEmpty(seq string) string {
	id, err := g.SHRSS(seq)
	if err != nil {
		return ""
	}
	return id
}

type field struct {
	name  string
	value string
}

func join(prefix string, fields ...field) (string, error) {
	var b strings.Builder
	b.WriteString(prefix)
	for _, f := range fields {
		v := strings.TrimSpace(f.value)
		if v == "" {
			return "", fmt.Errorf("%w: %s is blank", domain.ErrInvalidKey, f.name)
		}
		b.WriteString(separator)
		b.WriteString(v)
	}
	return b.String(), nil
}
