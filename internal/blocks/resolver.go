// Package blocks resolves calendar dates to Ethereum block numbers.
//
// A date resolves to the first block whose timestamp is strictly after it.
// Resolution happens once per run, before any pool state is read.
package blocks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var (
	// ErrNoBlockFound is returned when no block exists after the requested time.
	ErrNoBlockFound = errors.New("no block found")
	// ErrInvalidDate is returned when a date string cannot be parsed.
	ErrInvalidDate = errors.New("invalid date")
)

// Resolver maps a date string to a block number.
type Resolver interface {
	Resolve(ctx context.Context, date string) (uint64, error)
}

// TimestampResolver maps a unix timestamp (seconds) to the first block after it.
type TimestampResolver interface {
	ResolveTimestamp(ctx context.Context, ts int64) (uint64, error)
}

// Layouts tried before falling back to dateparse.
var layouts = []string{
	time.RFC3339,
	"2006-01-02",
	"20060102T1504",
	"20060102T150405",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// ParseDate parses a date string. Dates without a zone are UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty date", ErrInvalidDate)
	}

	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}

	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrInvalidDate, s, err)
	}
	return t.UTC(), nil
}

// resolveDate parses date and delegates to r.
func resolveDate(ctx context.Context, r TimestampResolver, date string) (uint64, error) {
	t, err := ParseDate(date)
	if err != nil {
		return 0, err
	}
	block, err := r.ResolveTimestamp(ctx, t.Unix())
	if err != nil {
		return 0, fmt.Errorf("resolve %s: %w", date, err)
	}
	return block, nil
}
