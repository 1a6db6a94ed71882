package metrics

import (
	"cmp"
	"slices"

	"github.com/KotFed0t/dividend_tracker/internal/model"
)

// HoldingRow is the lot-aware figure set for one held symbol. TotalDividends here
// is Σ amountPerShare × sharesOwned and will differ from EquityMetrics.TotalDividends
// once lots were bought at different dates.
type HoldingRow struct {
	Symbol              string
	Name                string
	Sector              string
	Shares              float64
	AverageCost         float64
	CurrentPrice        float64
	CostBasis           float64
	MarketValue         float64
	UnrealizedPnL       float64
	TotalDividends      float64
	TotalReturn         float64
	ROI                 float64
	DividendYieldOnCost float64
	NavPeak             float64
	NavDecayPercent     float64
	CurrentNav          float64
	LastDividend        *model.DividendPaymentWithShares
	LastDividendAmount  float64
}

type HoldingTotals struct {
	MarketValue    float64
	CostBasis      float64
	UnrealizedPnL  float64
	TotalReturn    float64
	TotalDividends float64
}

type OverviewMetrics struct {
	PortfolioMetrics
	UnrealizedPnL float64
	Positions     int
}

type Payout struct {
	Symbol         string
	Name           string
	Date           string
	AmountPerShare float64
	TotalAmount    float64
}

const recentPayoutsLimit = 8

// ActivePositions returns the positions of views that still hold shares.
func ActivePositions(views []model.EquityWithLots) []model.EquityPosition {
	res := make([]model.EquityPosition, 0, len(views))
	for _, view := range views {
		if view.Position.Shares > 0 {
			res = append(res, view.Position)
		}
	}
	return res
}

func ComputeHoldingRows(views []model.EquityWithLots) []HoldingRow {
	rows := make([]HoldingRow, 0, len(views))

	for _, view := range views {
		position := view.Position
		if position.Shares <= 0 {
			continue
		}

		m := ComputeEquityMetrics(position)

		var totalDividends float64
		for _, d := range view.DividendsWithShares {
			totalDividends += d.AmountPerShare * d.SharesOwned
		}

		row := HoldingRow{
			Symbol:              position.Symbol,
			Name:                position.Name,
			Sector:              position.Sector,
			Shares:              position.Shares,
			AverageCost:         position.AverageCost,
			CurrentPrice:        position.CurrentPrice,
			CostBasis:           m.CostBasis,
			MarketValue:         m.MarketValue,
			UnrealizedPnL:       m.MarketValue - m.CostBasis,
			TotalDividends:      totalDividends,
			TotalReturn:         m.MarketValue + totalDividends - m.CostBasis,
			DividendYieldOnCost: percentOf(totalDividends, m.CostBasis),
			NavPeak:             m.NavPeak,
			NavDecayPercent:     m.NavDecayPercent,
			CurrentNav:          position.CurrentPrice,
		}
		row.ROI = percentOf(row.TotalReturn, row.CostBasis)

		if n := len(position.NavHistory); n > 0 {
			row.CurrentNav = position.NavHistory[n-1].Value
		}

		if n := len(view.DividendsWithShares); n > 0 {
			last := view.DividendsWithShares[n-1]
			row.LastDividend = &last
			row.LastDividendAmount = last.AmountPerShare * last.SharesOwned
		}

		rows = append(rows, row)
	}

	return rows
}

func SumHoldingRows(rows []HoldingRow) HoldingTotals {
	var t HoldingTotals
	for _, row := range rows {
		t.MarketValue += row.MarketValue
		t.CostBasis += row.CostBasis
		t.UnrealizedPnL += row.UnrealizedPnL
		t.TotalReturn += row.TotalReturn
		t.TotalDividends += row.TotalDividends
	}
	return t
}

// ComputeOverview aggregates active positions with the flat dividend path.
func ComputeOverview(views []model.EquityWithLots) OverviewMetrics {
	active := ActivePositions(views)
	pm := ComputePortfolioMetrics(active)
	return OverviewMetrics{
		PortfolioMetrics: pm,
		UnrealizedPnL:    pm.TotalReturn - pm.TotalDividends,
		Positions:        len(active),
	}
}

// RecentPayouts lists the latest payouts across active views, newest first,
// and the trailing income of those views.
func RecentPayouts(views []model.EquityWithLots) (payouts []Payout, trailingIncome float64) {
	for _, view := range views {
		position := view.Position
		if position.Shares <= 0 {
			continue
		}

		trailingIncome += ComputeEquityMetrics(position).TotalDividends

		for _, d := range position.Dividends {
			payouts = append(payouts, Payout{
				Symbol:         position.Symbol,
				Name:           position.Name,
				Date:           d.Date,
				AmountPerShare: d.AmountPerShare,
				TotalAmount:    d.AmountPerShare * position.Shares,
			})
		}
	}

	slices.SortStableFunc(payouts, func(a, b Payout) int {
		return cmp.Compare(b.Date, a.Date)
	})

	if len(payouts) > recentPayoutsLimit {
		payouts = payouts[:recentPayoutsLimit]
	}

	return payouts, trailingIncome
}
