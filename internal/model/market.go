package model

import (
	"strings"
	"time"
)

const ManualEntrySector = "Manual Entry"

// NormalizeSymbol returns the canonical key used for every case-insensitive
// symbol comparison: grouping lots, merging fetch results and lookups.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// QuoteResult is the outcome of a quote fetch for one symbol. Price is nil when
// the fetch failed or the quote was missing.
type QuoteResult struct {
	Symbol        string
	Price         *float64
	ChangePercent *float64
	Currency      string
	NavHistory    []NavPoint
	Error         string
}

type DividendResult struct {
	Symbol    string
	Dividends []DividendPayment
	Error     string
}

type FetchStatus struct {
	IsLoading   bool
	LastUpdated *time.Time
	Error       string
}
