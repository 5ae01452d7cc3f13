// Package pagination implements the keyset cursors used by GET /entries.
//
// Entries are listed by (updated_at DESC, id DESC). A cursor names the last
// row of a page so the next page starts strictly after it, which keeps pages
// stable while entries are re-indexed and their updated_at moves.
package pagination

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/google/uuid"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Cursor is the position after which the next page starts.
type Cursor struct {
	LastID    string
	UpdatedAt time.Time
}

// ClampLimit maps a requested page size into [1, MaxLimit], using
// DefaultLimit for zero or negative values.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// EncodeCursor returns an opaque, query-string safe cursor.
func EncodeCursor(lastID string, updatedAt time.Time) string {
	if lastID == "" {
		return ""
	}
	raw := lastID + "|" + updatedAt.UTC().Format(time.RFC3339Nano)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a cursor from EncodeCursor. An empty string means the
// first page and yields nil.
func DecodeCursor(cursor string) (*Cursor, error) {
	if cursor == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, domain.Wrap(domain.ErrInvalidCursor, err)
	}

	id, ts, ok := strings.Cut(string(decoded), "|")
	if !ok {
		return nil, domain.ErrInvalidCursor
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.Wrap(domain.ErrInvalidCursor, err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, domain.Wrap(domain.ErrInvalidCursor, err)
	}

	return &Cursor{LastID: id, UpdatedAt: updatedAt}, nil
}

// Trim cuts a result fetched with limit+1 rows down to limit and reports
// whether another page exists.
func Trim[T any](items []T, limit int) ([]T, bool) {
	if len(items) > limit {
		return items[:limit], true
	}
	return items, false
}
