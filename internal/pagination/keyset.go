// Package pagination implements ascending-id keyset pagination shared by list endpoints.
package pagination

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// DefaultLimit is used when the caller omits limit.
	DefaultLimit = 10
	// MaxLimit caps the page size to prevent unbounded queries.
	MaxLimit = 100
)

var ErrInvalidCursor = errors.New("pagination: invalid cursor")

// Page is one slice of an id-ordered result set.
type Page[T any] struct {
	Items      []T
	HasMore    bool
	NextCursor int64
}

// Fetch returns up to n rows with id strictly greater than cursor, ordered by id ascending.
type Fetch[T any] func(cursor int64, n int) ([]T, error)

// NormalizeLimit clamps limit into [1, MaxLimit]; non-positive values fall back to DefaultLimit.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Load asks fetch for limit+1 rows and trims the probe row.
func Load[T any](cursor int64, limit int, fetch Fetch[T], id func(T) int64) (Page[T], error) {
	limit = NormalizeLimit(limit)
	rows, err := fetch(cursor, limit+1)
	if err != nil {
		return Page[T]{}, err
	}
	return Trim(rows, limit, id), nil
}

// Trim turns a limit+1 probe into a page. NextCursor is the id of the last kept row,
// or zero when the page is empty.
func Trim[T any](rows []T, limit int, id func(T) int64) Page[T] {
	p := Page[T]{Items: rows}
	if len(rows) > limit {
		p.Items = rows[:limit]
		p.HasMore = true
	}
	if n := len(p.Items); n > 0 {
		p.NextCursor = id(p.Items[n-1])
	}
	return p
}

// ParseCursor reads a cursor query value. Empty means "from the start".
func ParseCursor(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCursor, raw)
	}
	return v, nil
}

// ParseLimit reads a limit query value. Unparseable values fall back to DefaultLimit.
func ParseLimit(raw string) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return DefaultLimit
	}
	return NormalizeLimit(v)
}
