// Package store provides OHLCV input sources and saved screener queries.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"market-twin/internal/analysis/scoring"
	"market-twin/internal/models"
)

// BarSource loads bar series by symbol.
type BarSource interface {
	// LoadBars returns the bars of symbol inside r, oldest first. An unknown
	// symbol yields errors.ErrSymbolNotFound.
	LoadBars(ctx context.Context, symbol string, r DateRange) (models.Series, error)
	ListSymbols(ctx context.Context) ([]string, error)
}

// QueryStore persists named screener filter sets.
type QueryStore interface {
	SaveScreenerQuery(ctx context.Context, name string, filters []scoring.Filter) error
	GetScreenerQuery(ctx context.Context, name string) ([]scoring.Filter, error)
	ListScreenerQueries(ctx context.Context) ([]string, error)
}

// DateRange bounds a query. A zero Start or End leaves that side open.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// Date layouts accepted for the Date column, most specific first.
var dateLayouts = []string{
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// dateFormat is the layout written to the Date column.
const dateFormat = "2006-01-02 15:04:05"

// ParseDate parses a Date column value in any of the accepted layouts.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
