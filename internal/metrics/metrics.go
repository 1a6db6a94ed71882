// Package metrics computes per-equity and portfolio-wide figures from resolved positions.
// All functions are total: zero denominators yield 0, NaN and Inf inputs propagate.
package metrics

import "github.com/KotFed0t/dividend_tracker/internal/model"

type EquityMetrics struct {
	Position            model.EquityPosition
	CostBasis           float64
	MarketValue         float64
	TotalDividends      float64
	TotalReturn         float64
	ROI                 float64
	DividendYieldOnCost float64
	NavPeak             float64
	NavDecayPercent     float64
}

type PortfolioMetrics struct {
	TotalCostBasis    float64
	TotalMarketValue  float64
	TotalDividends    float64
	TotalReturn       float64
	ROI               float64
	IncomeYieldOnCost float64
}

// ComputeEquityMetrics multiplies every dividend by the position's current share
// count. Use ComputeHoldingRows for totals based on shares owned at payment time.
func ComputeEquityMetrics(position model.EquityPosition) EquityMetrics {
	costBasis := position.Shares * position.AverageCost
	marketValue := position.Shares * position.CurrentPrice
	totalDividends := sumDividends(position.Dividends, position.Shares)
	totalReturn := marketValue + totalDividends - costBasis

	navPeak := position.CurrentPrice
	latestNav := position.CurrentPrice
	if len(position.NavHistory) > 0 {
		navPeak = position.NavHistory[0].Value
		for _, point := range position.NavHistory {
			if point.Value > navPeak {
				navPeak = point.Value
			}
		}
		latestNav = position.NavHistory[len(position.NavHistory)-1].Value
	}

	// peak ignores CurrentPrice, so a price above the historical peak gives negative decay
	var navDecay float64
	if navPeak != 0 {
		navDecay = (navPeak - latestNav) / navPeak * 100
	}

	return EquityMetrics{
		Position:            position,
		CostBasis:           costBasis,
		MarketValue:         marketValue,
		TotalDividends:      totalDividends,
		TotalReturn:         totalReturn,
		ROI:                 percentOf(totalReturn, costBasis),
		DividendYieldOnCost: percentOf(totalDividends, costBasis),
		NavPeak:             navPeak,
		NavDecayPercent:     navDecay,
	}
}

func ComputePortfolioMetrics(positions []model.EquityPosition) PortfolioMetrics {
	var res PortfolioMetrics
	for _, position := range positions {
		m := ComputeEquityMetrics(position)
		res.TotalCostBasis += m.CostBasis
		res.TotalMarketValue += m.MarketValue
		res.TotalDividends += m.TotalDividends
		res.TotalReturn += m.TotalReturn
	}

	res.ROI = percentOf(res.TotalReturn, res.TotalCostBasis)
	res.IncomeYieldOnCost = percentOf(res.TotalDividends, res.TotalCostBasis)

	return res
}

func sumDividends(dividends []model.DividendPayment, shares float64) float64 {
	var total float64
	for _, d := range dividends {
		total += d.AmountPerShare * shares
	}
	return total
}

func percentOf(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return part / whole * 100
}
