package redisstore

import (
	"fmt"
	"strings"

	"seoul-housing-ingest/internal/domain"
)

const (
	keyRoot       = "seoulhousing"
	schemaVersion = "v1"

	kindSnapshot = "snapshot"
	kindChecksum = "checksum"
	kindMeta     = "meta"
)

// Keys строит ключи хранилища для окружения.
type Keys struct {
	env string
}

// NewKeys проверяет и нормализует тег окружения.
func NewKeys(env string) (Keys, error) {
	env = strings.ToLower(strings.TrimSpace(env))
	if env == "" {
		return Keys{}, fmt.Errorf("%w: env", domain.ErrBlankPartition)
	}
	return Keys{env: env}, nil
}

// Seen is seoulhousing:<env>:seen:<source>:<category>:<scope>.
func (k Keys) Seen(p domain.Partition) (string, error) {
	n, err := p.Normalize()
	if err != nil {
		return "", err
	}
	return strings.Join([]string{keyRoot, k.env, "seen", n.Source, n.Category, n.Scope}, ":"), nil
}

// Cursor is seoulhousing:<env>:cursor:<source>:<category>:<scope>.
func (k Keys) Cursor(p domain.Partition) (string, error) {
	n, err := p.Normalize()
	if err != nil {
		return "", err
	}
	return strings.Join([]string{keyRoot, k.env, "cursor", n.Source, n.Category, n.Scope}, ":"), nil
}

// Snapshot ключ payload.
func (k Keys) Snapshot(p domain.Partition) (string, error) {
	return k.ingest(p, kindSnapshot)
}

// Checksum ключ hash с хешами записей.
func (k Keys) Checksum(p domain.Partition) (string, error) {
	return k.ingest(p, kindChecksum)
}

// Meta ключ hash метаданных.
func (k Keys) Meta(p domain.Partition) (string, error) {
	return k.ingest(p, kindMeta)
}

// Lock is seoulhousing:<env>:ingest:lock:<scope>:v1.
func (k Keys) Lock(scope string) (string, error) {
	scope = strings.ToLower(strings.TrimSpace(scope))
	if scope == "" {
		return "", fmt.Errorf("%w: scope", domain.ErrBlankPartition)
	}
	return strings.Join([]string{keyRoot, k.env, "ingest", "lock", scope, schemaVersion}, ":"), nil
}

func (k Keys) ingest(p domain.Partition, kind string) (string, error) {
	n, err := p.Normalize()
	if err != nil {
		return "", err
	}
	return strings.Join([]string{keyRoot, k.env, "ingest", n.Source, n.Category, n.Scope, kind, schemaVersion}, ":"), nil
}
