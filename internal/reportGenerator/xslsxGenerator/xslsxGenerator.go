package xslsxGenerator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/KotFed0t/dividend_tracker/internal/reportGenerator"
	"github.com/KotFed0t/dividend_tracker/utils"
	"github.com/xuri/excelize/v2"
)

const (
	sheetHoldings  = "Holdings"
	sheetLots      = "Lots"
	sheetDividends = "Dividends"
	sheetCashFlow  = "Cash Flow"
)

type XSLSXGenerator struct{}

func New() *XSLSXGenerator {
	return &XSLSXGenerator{}
}

func (g *XSLSXGenerator) Generate(ctx context.Context, report reportGenerator.PortfolioReport) (fileBytes []byte, fileExtension string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "XSLSXGenerator.Generate"

	if len(report.Views) == 0 && len(report.Lots) == 0 {
		return nil, "", errors.New("empty portfolio")
	}

	slog.Debug("Generate start", slog.String("rqID", rqID), slog.String("op", op))

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			slog.Error("got error while closing file", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}()

	fills := []func(*excelize.File, reportGenerator.PortfolioReport) error{
		g.fillHoldings,
		g.fillLots,
		g.fillDividends,
		g.fillCashFlow,
	}
	for _, fill := range fills {
		if err := fill(f, report); err != nil {
			slog.Error("got error while filling sheet", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
			return nil, "", err
		}
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		slog.Error("got error while deleting Sheet1", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		slog.Error("got error while Saving file to bytes buffer", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	slog.Debug("Generate completed", slog.String("rqID", rqID), slog.String("op", op))

	return buf.Bytes(), ".xlsx", nil
}

// newSheet creates the sheet with a merged, colored title row and a header row.
func (g *XSLSXGenerator) newSheet(f *excelize.File, name, title, color string, headers []string) error {
	if _, err := f.NewSheet(name); err != nil {
		return err
	}

	lastCol, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return err
	}

	if err := f.MergeCell(name, "A1", lastCol+"1"); err != nil {
		return err
	}
	_ = f.SetCellStr(name, "A1", title)

	styleID, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Font: &excelize.Font{
			Bold: true,
			Size: 11,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Pattern: 1,
			Color:   []string{color},
		},
	})
	if err != nil {
		return err
	}

	if err := f.SetCellStyle(name, "A1", "A1", styleID); err != nil {
		return fmt.Errorf("apply title style: %w", err)
	}

	for i, h := range headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetCellStr(name, col+"2", h)
	}

	return nil
}

func (g *XSLSXGenerator) fillHoldings(f *excelize.File, report reportGenerator.PortfolioReport) error {
	title := fmt.Sprintf("%s as of %s", report.Name, report.AsOf)
	err := g.newSheet(f, sheetHoldings, title, "#cfe2f3", []string{
		"symbol", "name", "sector", "shares", "avg cost", "price", "cost basis",
		"market value", "unrealized P&L", "dividends", "total return", "ROI %", "yield on cost %", "NAV decay %",
	})
	if err != nil {
		return err
	}

	row := 3
	for _, h := range report.Holdings {
		_ = f.SetCellStr(sheetHoldings, fmt.Sprintf("A%d", row), h.Symbol)
		_ = f.SetCellStr(sheetHoldings, fmt.Sprintf("B%d", row), h.Name)
		_ = f.SetCellStr(sheetHoldings, fmt.Sprintf("C%d", row), h.Sector)
		_ = f.SetCellFloat(sheetHoldings, fmt.Sprintf("D%d", row), h.Shares, -1, 64)
		_ = f.SetCellFloat(sheetHoldings, fmt.Sprintf("E%d", row), h.AverageCost, 2, 64)
		_ = f.SetCellFloat(sheetHoldings, fmt.Sprintf("F%d", row), h.CurrentPrice, 2, 64)
		_ = f.SetCellFloat(sheetHoldings, fmt.Sprintf("G%d", row), h.CostBasis, 2, 64)
		_ = f.SetCellFloat(sheetHoldings, fmt.Sprintf("H%d", row), h.MarketValue, 2, 64)
		_ = f.SetCellFloat(sheetHoldings, fmt.Sprintf("I%d", row), h.UnrealizedPnL, 2, 64)
		_ = f.SetCellFloat(sheetHoldings, fmt.Sprintf("J%d", row), h.TotalDividends, 2, 64)
		_ = f.SetCellFloat(sheetHoldings, fmt.Sprintf("K%d", row), h.TotalReturn, 2, 64)
		_ = f.SetCellFloat(sheetHoldings, fmt.Sprintf("L%d", row), h.ROI, 2, 64)
		_ = f.SetCellFloat(sheetHoldings, fmt.Sprintf("M%d", row), h.DividendYieldOnCost, 2, 64)
		_ = f.SetCellFloat(sheetHoldings, fmt.Sprintf("N%d", row), h.NavDecayPercent, 2, 64)
		row++
	}

	row++
	_ = f.SetCellStr(sheetHoldings, fmt.Sprintf("A%d", row), "Total")
	_ = f.SetCellFloat(sheetHoldings, fmt.Sprintf("G%d", row), report.Totals.CostBasis, 2, 64)
	_ = f.SetCellFloat(sheetHoldings, fmt.Sprintf("H%d", row), report.Totals.MarketValue, 2, 64)
	_ = f.SetCellFloat(sheetHoldings, fmt.Sprintf("I%d", row), report.Totals.UnrealizedPnL, 2, 64)
	_ = f.SetCellFloat(sheetHoldings, fmt.Sprintf("J%d", row), report.Totals.TotalDividends, 2, 64)
	_ = f.SetCellFloat(sheetHoldings, fmt.Sprintf("K%d", row), report.Totals.TotalReturn, 2, 64)

	return nil
}

func (g *XSLSXGenerator) fillLots(f *excelize.File, report reportGenerator.PortfolioReport) error {
	err := g.newSheet(f, sheetLots, "Purchase lots", "#d9ead3", []string{
		"id", "symbol", "trade date", "shares", "price", "total cost",
	})
	if err != nil {
		return err
	}

	for i, lot := range report.Lots {
		row := i + 3
		_ = f.SetCellStr(sheetLots, fmt.Sprintf("A%d", row), lot.ID)
		_ = f.SetCellStr(sheetLots, fmt.Sprintf("B%d", row), lot.Symbol)
		_ = f.SetCellStr(sheetLots, fmt.Sprintf("C%d", row), lot.TradeDate)
		_ = f.SetCellFloat(sheetLots, fmt.Sprintf("D%d", row), lot.Shares, -1, 64)
		_ = f.SetCellFloat(sheetLots, fmt.Sprintf("E%d", row), lot.PricePerShare, 2, 64)
		_ = f.SetCellFloat(sheetLots, fmt.Sprintf("F%d", row), lot.Shares*lot.PricePerShare, 2, 64)
	}

	return nil
}

func (g *XSLSXGenerator) fillDividends(f *excelize.File, report reportGenerator.PortfolioReport) error {
	err := g.newSheet(f, sheetDividends, "Dividends received", "#f9cb9c", []string{
		"symbol", "id", "date", "per share", "shares owned", "amount",
	})
	if err != nil {
		return err
	}

	row := 3
	for _, view := range report.Views {
		for _, d := range view.DividendsWithShares {
			_ = f.SetCellStr(sheetDividends, fmt.Sprintf("A%d", row), view.Position.Symbol)
			_ = f.SetCellStr(sheetDividends, fmt.Sprintf("B%d", row), d.ID)
			_ = f.SetCellStr(sheetDividends, fmt.Sprintf("C%d", row), d.Date)
			_ = f.SetCellFloat(sheetDividends, fmt.Sprintf("D%d", row), d.AmountPerShare, -1, 64)
			_ = f.SetCellFloat(sheetDividends, fmt.Sprintf("E%d", row), d.SharesOwned, -1, 64)
			_ = f.SetCellFloat(sheetDividends, fmt.Sprintf("F%d", row), d.AmountPerShare*d.SharesOwned, 2, 64)
			row++
		}
	}

	return nil
}

func (g *XSLSXGenerator) fillCashFlow(f *excelize.File, report reportGenerator.PortfolioReport) error {
	err := g.newSheet(f, sheetCashFlow, "Monthly cash flow", "#f4cccc", []string{
		"month", "invested", "dividends", "net", "cumulative invested", "cumulative dividends", "purchases", "payments",
	})
	if err != nil {
		return err
	}

	row := 3
	for _, m := range report.CashFlow.Months {
		_ = f.SetCellStr(sheetCashFlow, fmt.Sprintf("A%d", row), m.Label)
		_ = f.SetCellValue(sheetCashFlow, fmt.Sprintf("B%d", row), m.CashInvested.InexactFloat64())
		_ = f.SetCellValue(sheetCashFlow, fmt.Sprintf("C%d", row), m.DividendsReceived.InexactFloat64())
		_ = f.SetCellValue(sheetCashFlow, fmt.Sprintf("D%d", row), m.NetCashFlow.InexactFloat64())
		_ = f.SetCellValue(sheetCashFlow, fmt.Sprintf("E%d", row), m.CumulativeCashInvested.InexactFloat64())
		_ = f.SetCellValue(sheetCashFlow, fmt.Sprintf("F%d", row), m.CumulativeDividends.InexactFloat64())
		_ = f.SetCellInt(sheetCashFlow, fmt.Sprintf("G%d", row), int64(m.PurchaseCount()))
		_ = f.SetCellInt(sheetCashFlow, fmt.Sprintf("H%d", row), int64(m.DividendCount()))
		row++
	}

	totals := report.CashFlow.Totals
	summary := []struct {
		label string
		value float64
	}{
		{"Seed", report.CashFlow.SeedAmount.InexactFloat64()},
		{"Total invested", totals.CashInvested.InexactFloat64()},
		{"Total dividends", totals.Dividends.InexactFloat64()},
		{"Net cash flow", totals.NetCashFlow.InexactFloat64()},
		{"Cash balance", totals.CurrentCashBalance.InexactFloat64()},
		{"Portfolio value", totals.PortfolioValue.InexactFloat64()},
		{"Dividend return on invested %", totals.ReturnOnInvestment.InexactFloat64()},
		{"Dividend ROI on seed %", totals.DividendROI.InexactFloat64()},
		{"True ROI %", totals.TrueROI.InexactFloat64()},
	}

	row++
	for _, s := range summary {
		_ = f.SetCellStr(sheetCashFlow, fmt.Sprintf("A%d", row), s.label)
		_ = f.SetCellFloat(sheetCashFlow, fmt.Sprintf("B%d", row), s.value, 2, 64)
		row++
	}

	return nil
}
