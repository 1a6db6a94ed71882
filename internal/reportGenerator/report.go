package reportGenerator

import (
	"github.com/KotFed0t/dividend_tracker/internal/cashflow"
	"github.com/KotFed0t/dividend_tracker/internal/metrics"
	"github.com/KotFed0t/dividend_tracker/internal/model"
)

// PortfolioReport is everything an export renders for the active portfolio.
type PortfolioReport struct {
	Name     string
	AsOf     string
	Holdings []metrics.HoldingRow
	Totals   metrics.HoldingTotals
	Lots     []model.PurchaseLot
	Views    []model.EquityWithLots
	CashFlow cashflow.Report
}
