package portfolioStore

import (
	"fmt"
	"slices"
	"strings"

	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/internal/views"
)

// MergeQuotesIntoPositions overwrites price and NAV history of positions that got
// a priced quote. An empty fetched history keeps the existing one. Fetched slices
// are copied, the result never shares memory with quotes.
func MergeQuotesIntoPositions(positions []model.EquityPosition, quotes []model.QuoteResult) []model.EquityPosition {
	bySymbol := make(map[string]model.QuoteResult, len(quotes))
	for _, q := range quotes {
		bySymbol[model.NormalizeSymbol(q.Symbol)] = q
	}

	res := make([]model.EquityPosition, 0, len(positions))
	for _, p := range positions {
		q, ok := bySymbol[model.NormalizeSymbol(p.Symbol)]
		if ok && q.Price != nil {
			p.CurrentPrice = *q.Price
			if len(q.NavHistory) > 0 {
				p.NavHistory = slices.Clone(q.NavHistory)
			}
		}
		res = append(res, p)
	}

	return res
}

// MergeDividendsIntoPositions replaces the dividend list of positions that got a
// non-empty result with a copy of it.
func MergeDividendsIntoPositions(positions []model.EquityPosition, results []model.DividendResult) []model.EquityPosition {
	bySymbol := make(map[string]model.DividendResult, len(results))
	for _, r := range results {
		bySymbol[model.NormalizeSymbol(r.Symbol)] = r
	}

	res := make([]model.EquityPosition, 0, len(positions))
	for _, p := range positions {
		r, ok := bySymbol[model.NormalizeSymbol(p.Symbol)]
		if ok && len(r.Dividends) > 0 {
			p.Dividends = slices.Clone(r.Dividends)
		}
		res = append(res, p)
	}

	return res
}

// quotePositions synthesizes positions for priced quotes whose symbol is not in
// positions. Average cost comes from the lots, or the quote price without lots.
func quotePositions(positions []model.EquityPosition, quotes []model.QuoteResult, lots []model.PurchaseLot) []model.EquityPosition {
	existing := symbolSet(positions)

	var res []model.EquityPosition
	for _, q := range quotes {
		if existing[model.NormalizeSymbol(q.Symbol)] || q.Price == nil || *q.Price == 0 {
			continue
		}

		averageCost := *q.Price
		shares, cost := views.AggregateLots(views.LotsForSymbol(lots, q.Symbol))
		if shares > 0 {
			averageCost = cost / shares
		}

		navHistory := slices.Clone(q.NavHistory)
		if navHistory == nil {
			navHistory = []model.NavPoint{}
		}

		res = append(res, model.EquityPosition{
			Symbol:       q.Symbol,
			Name:         q.Symbol,
			Sector:       model.ManualEntrySector,
			AverageCost:  averageCost,
			CurrentPrice: *q.Price,
			Dividends:    []model.DividendPayment{},
			NavHistory:   navHistory,
		})
	}

	return res
}

// dividendPositions synthesizes positions for dividend-only symbols. The lot
// average cost doubles as a placeholder current price.
func dividendPositions(positions []model.EquityPosition, results []model.DividendResult, lots []model.PurchaseLot) []model.EquityPosition {
	existing := symbolSet(positions)

	var res []model.EquityPosition
	for _, r := range results {
		if existing[model.NormalizeSymbol(r.Symbol)] || len(r.Dividends) == 0 {
			continue
		}

		averageCost := 0.0
		shares, cost := views.AggregateLots(views.LotsForSymbol(lots, r.Symbol))
		if shares > 0 {
			averageCost = cost / shares
		}

		res = append(res, model.EquityPosition{
			Symbol:       r.Symbol,
			Name:         r.Symbol,
			Sector:       model.ManualEntrySector,
			AverageCost:  averageCost,
			CurrentPrice: averageCost,
			Dividends:    slices.Clone(r.Dividends),
			NavHistory:   []model.NavPoint{},
		})
	}

	return res
}

func symbolSet(positions []model.EquityPosition) map[string]bool {
	res := make(map[string]bool, len(positions))
	for _, p := range positions {
		res[model.NormalizeSymbol(p.Symbol)] = true
	}
	return res
}

// symbolUnion lists snapshot symbols then lot symbols, deduplicated by normalized
// key, keeping the first spelling seen. Blank symbols are skipped.
func symbolUnion(snapshot model.PortfolioSnapshot, lots []model.PurchaseLot) []string {
	seen := make(map[string]bool)
	var res []string

	add := func(symbol string) {
		key := model.NormalizeSymbol(symbol)
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		res = append(res, symbol)
	}

	for _, e := range snapshot.Equities {
		add(e.Symbol)
	}
	for _, l := range lots {
		add(l.Symbol)
	}

	return res
}

// joinFetchErrors renders "<prefix>: SYM (err), SYM (err)", or "" when nothing failed.
func joinFetchErrors(prefix string, symbols, errs []string) string {
	var parts []string
	for i, e := range errs {
		if e == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", symbols[i], e))
	}
	if len(parts) == 0 {
		return ""
	}
	return prefix + ": " + strings.Join(parts, ", ")
}
