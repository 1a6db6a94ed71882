// Package cashflow buckets purchases and received dividends by calendar month.
// Money is accumulated in decimal so monthly and running totals add up exactly.
package cashflow

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/KotFed0t/dividend_tracker/internal/metrics"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Purchase struct {
	ID            string
	Symbol        string
	Date          string
	Shares        decimal.Decimal
	PricePerShare decimal.Decimal
	TotalCost     decimal.Decimal
}

type DividendReceipt struct {
	ID             string
	Symbol         string
	Name           string
	Date           string
	Shares         decimal.Decimal
	AmountPerShare decimal.Decimal
	TotalAmount    decimal.Decimal
}

// Month is one YYYY-MM bucket. Cumulative fields run from the first month.
type Month struct {
	Month                  string
	Label                  string
	CashInvested           decimal.Decimal
	DividendsReceived      decimal.Decimal
	NetCashFlow            decimal.Decimal
	CumulativeCashInvested decimal.Decimal
	CumulativeDividends    decimal.Decimal
	Purchases              []Purchase
	Dividends              []DividendReceipt
}

func (m Month) PurchaseCount() int {
	return len(m.Purchases)
}

func (m Month) DividendCount() int {
	return len(m.Dividends)
}

type Totals struct {
	CashInvested       decimal.Decimal
	Dividends          decimal.Decimal
	NetCashFlow        decimal.Decimal
	Purchases          int
	DividendPayments   int
	ReturnOnInvestment decimal.Decimal
	DividendROI        decimal.Decimal
	TrueROI            decimal.Decimal
	CurrentCashBalance decimal.Decimal
	PortfolioValue     decimal.Decimal
}

type Report struct {
	SeedAmount decimal.Decimal
	SeedDate   string
	Months     []Month
	Totals     Totals
}

// Build computes the report for a ledger and its equity views. Dividends count
// only for views with lots, from the earliest acquisition date on.
func Build(lots []model.PurchaseLot, views []model.EquityWithLots, seedAmount float64, seedDate string) Report {
	months := make(map[string]*Month)
	bucket := func(date string) *Month {
		key, label := monthOf(date)
		m, ok := months[key]
		if !ok {
			m = &Month{Month: key, Label: label}
			months[key] = m
		}
		return m
	}

	for _, lot := range lots {
		shares, price := fromFloat(lot.Shares), fromFloat(lot.PricePerShare)
		cost := shares.Mul(price)

		m := bucket(lot.TradeDate)
		m.CashInvested = m.CashInvested.Add(cost)
		m.Purchases = append(m.Purchases, Purchase{
			ID:            lot.ID,
			Symbol:        lot.Symbol,
			Date:          lot.TradeDate,
			Shares:        shares,
			PricePerShare: price,
			TotalCost:     cost,
		})
	}

	for _, view := range views {
		if view.EarliestAcquisitionDate == "" {
			continue
		}
		for _, d := range view.DividendsWithShares {
			if d.Date < view.EarliestAcquisitionDate {
				continue
			}
			shares, amount := fromFloat(d.SharesOwned), fromFloat(d.AmountPerShare)
			total := shares.Mul(amount)

			m := bucket(d.Date)
			m.DividendsReceived = m.DividendsReceived.Add(total)
			m.Dividends = append(m.Dividends, DividendReceipt{
				ID:             d.ID,
				Symbol:         view.Position.Symbol,
				Name:           view.Position.Name,
				Date:           d.Date,
				Shares:         shares,
				AmountPerShare: amount,
				TotalAmount:    total,
			})
		}
	}

	res := Report{
		SeedAmount: fromFloat(seedAmount),
		SeedDate:   seedDate,
		Months:     make([]Month, 0, len(months)),
	}

	for _, m := range months {
		res.Months = append(res.Months, *m)
	}
	slices.SortFunc(res.Months, func(a, b Month) int {
		return cmp.Compare(a.Month, b.Month)
	})

	cumulativeCash, cumulativeDividends := decimal.Zero, decimal.Zero
	for i := range res.Months {
		m := &res.Months[i]
		cumulativeCash = cumulativeCash.Add(m.CashInvested)
		cumulativeDividends = cumulativeDividends.Add(m.DividendsReceived)
		m.CumulativeCashInvested = cumulativeCash
		m.CumulativeDividends = cumulativeDividends
		m.NetCashFlow = m.DividendsReceived.Sub(m.CashInvested)

		res.Totals.Purchases += m.PurchaseCount()
		res.Totals.DividendPayments += m.DividendCount()
	}

	portfolioValue := metrics.ComputePortfolioMetrics(metrics.ActivePositions(views)).TotalMarketValue
	res.Totals = computeTotals(res.Totals, cumulativeCash, cumulativeDividends, res.SeedAmount, fromFloat(portfolioValue))

	return res
}

func computeTotals(t Totals, invested, dividends, seed, portfolioValue decimal.Decimal) Totals {
	t.CashInvested = invested
	t.Dividends = dividends
	t.NetCashFlow = dividends.Sub(invested)
	t.CurrentCashBalance = seed.Sub(invested).Add(dividends)
	t.PortfolioValue = portfolioValue

	if invested.IsPositive() {
		t.ReturnOnInvestment = dividends.Div(invested).Mul(hundred)
	}
	if seed.IsPositive() {
		t.DividendROI = dividends.Div(seed).Mul(hundred)
		t.TrueROI = portfolioValue.Sub(seed).Div(seed).Mul(hundred)
	}

	return t
}

// monthOf returns the YYYY-MM key and a "Jan 2025" label.
func monthOf(date string) (key, label string) {
	t, err := time.Parse(model.DateLayout, date)
	if err != nil {
		if len(date) >= 7 {
			return date[:7], date[:7]
		}
		return date, date
	}
	return t.Format("2006-01"), t.Format("Jan 2006")
}

// fromFloat maps NaN and Inf, which decimal cannot represent, to zero.
func fromFloat(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}
