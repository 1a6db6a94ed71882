// Package sample holds the canonical starter portfolio used on first run and
// when a new portfolio is created.
package sample

import "github.com/KotFed0t/dividend_tracker/internal/model"

// Portfolio returns a fresh copy of the sample snapshot. Shares are zero:
// holdings are tracked through Lots.
func Portfolio() model.PortfolioSnapshot {
	cash := 0.0
	seed := 90000.0

	return model.PortfolioSnapshot{
		AsOf:         "2025-01-15",
		CashPosition: &cash,
		SeedAmount:   &seed,
		SeedDate:     "2025-02-10",
		Equities: []model.EquityPosition{
			{
				Symbol:       "AAPL",
				Name:         "Apple Inc.",
				Sector:       "Technology",
				Shares:       0,
				AverageCost:  142.3,
				CurrentPrice: 188.6,
				Dividends: []model.DividendPayment{
					{ID: "aapl-2024-q1", Date: "2024-02-15", AmountPerShare: 0.2},
					{ID: "aapl-2024-q2", Date: "2024-05-15", AmountPerShare: 0.205},
					{ID: "aapl-2024-q3", Date: "2024-08-15", AmountPerShare: 0.22},
					{ID: "aapl-2024-q4", Date: "2024-11-15", AmountPerShare: 0.22},
				},
				NavHistory: []model.NavPoint{
					{Date: "2024-01-01", Value: 179.45},
					{Date: "2024-04-01", Value: 172.12},
					{Date: "2024-07-01", Value: 195.50},
					{Date: "2024-10-01", Value: 168.92},
					{Date: "2025-01-01", Value: 188.6},
				},
			},
			{
				Symbol:       "MSFT",
				Name:         "Microsoft Corporation",
				Sector:       "Technology",
				Shares:       0,
				AverageCost:  256.15,
				CurrentPrice: 382.5,
				Dividends: []model.DividendPayment{
					{ID: "msft-2024-q1", Date: "2024-03-09", AmountPerShare: 0.62},
					{ID: "msft-2024-q2", Date: "2024-06-09", AmountPerShare: 0.62},
					{ID: "msft-2024-q3", Date: "2024-09-09", AmountPerShare: 0.67},
					{ID: "msft-2024-q4", Date: "2024-12-09", AmountPerShare: 0.67},
				},
				NavHistory: []model.NavPoint{
					{Date: "2024-01-01", Value: 328.32},
					{Date: "2024-04-01", Value: 420.50},
					{Date: "2024-07-01", Value: 309.75},
					{Date: "2024-10-01", Value: 340.15},
					{Date: "2025-01-01", Value: 382.5},
				},
			},
		},
	}
}

// Lots returns a fresh copy of the sample purchase lots.
func Lots() []model.PurchaseLot {
	return []model.PurchaseLot{
		// bought before the first AAPL dividend
		{ID: "lot-aapl-1", Symbol: "AAPL", TradeDate: "2024-01-15", Shares: 120, PricePerShare: 142.3},
		// bought after the Q1 MSFT dividend, so it misses it
		{ID: "lot-msft-1", Symbol: "MSFT", TradeDate: "2024-05-20", Shares: 80, PricePerShare: 256.15},
	}
}
