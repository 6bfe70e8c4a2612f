package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/klauspost/compress/gzip"

	"seoul-housing-ingest/internal/domain"
)

const (
	SchemaVersion   = "v1"
	Serializer      = "json"
	CompressionGzip = "gzip"
	CompressionNone = "none"
)

// Encoded снапшот, готовый к сохранению.
type Encoded struct {
	Payload    []byte
	Canonical  []byte
	Compressed bool
	Checksums  map[string]string
	Count      int
}

// Compression алгоритм сжатия Payload.
func (e Encoded) Compression() string {
	if e.Compressed {
		return CompressionGzip
	}
	return CompressionNone
}

// Encode сортирует записи по id, сериализует в JSON массив и сжимает gzip,
// если размер не меньше threshold. При threshold <= 0 сжимает всегда.
func Encode(records []domain.SnapshotRecord, threshold int) (Encoded, error) {
	if records == nil {
		return Encoded{}, fmt.Errorf("%w: records are nil", domain.ErrInvalidArgument)
	}
	sorted := make([]domain.SnapshotRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	items := make([]any, len(sorted))
	checksums := make(map[string]string, len(sorted))
	for i, r := range sorted {
		if r.ID == "" {
			return Encoded{}, fmt.Errorf("%w: record %d has no id", domain.ErrInvalidArgument, i)
		}
		items[i] = r.Item
		raw, err := json.Marshal(r.Item)
		if err != nil {
			return Encoded{}, fmt.Errorf("marshal record %s: %w", r.ID, err)
		}
		checksums[r.ID] = Checksum(raw)
	}

	canonical, err := json.Marshal(items)
	if err != nil {
		return Encoded{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	enc := Encoded{
		Payload:   canonical,
		Canonical: canonical,
		Checksums: checksums,
		Count:     len(sorted),
	}
	if len(canonical) >= threshold {
		compressed, err := Gzip(canonical)
		if err != nil {
			return Encoded{}, err
		}
		enc.Payload = compressed
		enc.Compressed = true
	}
	return enc, nil
}

// Decode возвращает канонические байты сохранённого payload.
func Decode(payload []byte, compressed bool) ([]byte, error) {
	if !compressed {
		return payload, nil
	}
	return Gunzip(payload)
}

// IsGzip сообщает, начинается ли payload с сигнатуры gzip. Канонический JSON
// с неё не начинается.
func IsGzip(payload []byte) bool {
	return len(payload) >= 2 && payload[0] == 0x1f && payload[1] == 0x8b
}

// Checksum возвращает hex sha256 от raw.
func Checksum(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Gzip сжимает raw.
func Gzip(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

// Gunzip распаковывает data.
func Gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gunzip: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("gunzip read: %w", err)
	}
	return out, nil
}
