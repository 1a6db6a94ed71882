package telebotConverter

import (
	"fmt"
	"strings"
	"time"

	"github.com/KotFed0t/dividend_tracker/internal/cashflow"
	"github.com/KotFed0t/dividend_tracker/internal/metrics"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/internal/model/tg/tgCallback.go"
	tele "gopkg.in/telebot.v4"
)

const (
	cashFlowMonthsShown = 12
	lotsShown           = 30
	statusTimeLayout    = "2006-01-02 15:04 MST"
)

func StartResponse() string {
	var sb strings.Builder

	sb.WriteString("👋 Dividend tracker\n\n")
	sb.WriteString("📊 /summary - portfolio overview\n")
	sb.WriteString("📋 /holdings - positions with lot-aware figures\n")
	sb.WriteString("🧾 /lots - purchase lots\n")
	sb.WriteString("💵 /dividends - recent payouts\n")
	sb.WriteString("📅 /cashflow - monthly cash flow\n\n")
	sb.WriteString("➕ /add_lot SYMBOL YYYY-MM-DD SHARES PRICE\n")
	sb.WriteString("✏️ /edit_lot ID [symbol=…] [date=…] [shares=…] [price=…]\n")
	sb.WriteString("➖ /remove_lot ID\n")
	sb.WriteString("✂️ /remove_dividend SYMBOL ID\n")
	sb.WriteString("🌱 /seed AMOUNT YYYY-MM-DD\n\n")
	sb.WriteString("🔄 /refresh_quotes, /refresh_dividends [MONTHS]\n\n")
	sb.WriteString("🗂 /portfolios, /save [NAME], /load ID, /new [NAME], /rename ID NAME, /delete ID\n\n")
	sb.WriteString("📤 /export (xlsx), /export_json\n")
	sb.WriteString("📥 send a .json file to import it\n")
	sb.WriteString("♻️ /reset - drop the working portfolio and reload the sample")

	return sb.String()
}

func SummaryResponse(name string, snapshot model.PortfolioSnapshot, overview metrics.OverviewMetrics, quotes, dividends model.FetchStatus) (text string, markup *tele.ReplyMarkup) {
	markup = &tele.ReplyMarkup{}
	var sb strings.Builder

	if name == "" {
		name = "Unsaved portfolio"
	}

	sb.WriteString(fmt.Sprintf("📊 %s (as of %s)\n\n", name, snapshot.AsOf))
	sb.WriteString(fmt.Sprintf("💼 Positions: %d\n", overview.Positions))
	sb.WriteString(fmt.Sprintf("💰 Market value: %s\n", money(overview.TotalMarketValue)))
	sb.WriteString(fmt.Sprintf("🏷 Cost basis: %s\n", money(overview.TotalCostBasis)))
	sb.WriteString(fmt.Sprintf("📈 Unrealized P&L: %s\n", money(overview.UnrealizedPnL)))
	sb.WriteString(fmt.Sprintf("💵 Dividends: %s\n", money(overview.TotalDividends)))
	sb.WriteString(fmt.Sprintf("🎯 Total return: %s (%s)\n", money(overview.TotalReturn), percent(overview.ROI)))
	sb.WriteString(fmt.Sprintf("🌾 Income yield on cost: %s\n", percent(overview.IncomeYieldOnCost)))

	if snapshot.SeedAmount != nil {
		sb.WriteString(fmt.Sprintf("🌱 Seed: %s on %s\n", money(*snapshot.SeedAmount), orDash(snapshot.SeedDate)))
	}
	if snapshot.CashPosition != nil {
		sb.WriteString(fmt.Sprintf("🏦 Cash: %s\n", money(*snapshot.CashPosition)))
	}

	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Quotes: %s\n", statusLine(quotes, snapshot.LastPriceUpdate)))
	sb.WriteString(fmt.Sprintf("Dividends: %s", statusLine(dividends, snapshot.LastDividendUpdate)))

	markup.Inline(
		markup.Row(
			markup.Data("🔄 Quotes", tgCallback.RefreshQuotes),
			markup.Data("🔄 Dividends", tgCallback.RefreshDividends),
		),
		markup.Row(
			markup.Data("📋 Holdings", tgCallback.ShowHoldings),
			markup.Data("📤 Export", tgCallback.ExportXLSX),
		),
	)

	return sb.String(), markup
}

func HoldingsResponse(rows []metrics.HoldingRow, totals metrics.HoldingTotals) string {
	if len(rows) == 0 {
		return "No holdings yet. Add a purchase with /add_lot"
	}

	var sb strings.Builder
	sb.WriteString("📋 Holdings:\n\n")

	for i, row := range rows {
		sb.WriteString(fmt.Sprintf("%d. %s (%s)\n", i+1, row.Symbol, row.Name))
		sb.WriteString(fmt.Sprintf("   ▸ Shares: %s @ %s\n", number(row.Shares), money(row.AverageCost)))
		sb.WriteString(fmt.Sprintf("   ▸ Price: %s\n", money(row.CurrentPrice)))
		sb.WriteString(fmt.Sprintf("   ▸ Value: %s (P&L %s)\n", money(row.MarketValue), money(row.UnrealizedPnL)))
		sb.WriteString(fmt.Sprintf("   ▸ Dividends: %s, yield on cost %s\n", money(row.TotalDividends), percent(row.DividendYieldOnCost)))
		sb.WriteString(fmt.Sprintf("   ▸ Total return: %s (%s)\n", money(row.TotalReturn), percent(row.ROI)))
		if row.NavPeak > 0 {
			sb.WriteString(fmt.Sprintf("   ▸ NAV: %s, peak %s, decay %s\n", money(row.CurrentNav), money(row.NavPeak), percent(row.NavDecayPercent)))
		}
		if row.LastDividend != nil {
			sb.WriteString(fmt.Sprintf("   ▸ Last dividend: %s on %s\n", money(row.LastDividendAmount), row.LastDividend.Date))
		}
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("Σ Value %s, cost %s, dividends %s, return %s",
		money(totals.MarketValue), money(totals.CostBasis), money(totals.TotalDividends), money(totals.TotalReturn)))

	return sb.String()
}

func LotsResponse(lots []model.PurchaseLot) (text string, markup *tele.ReplyMarkup) {
	markup = &tele.ReplyMarkup{}
	if len(lots) == 0 {
		return "No purchase lots", markup
	}

	var sb strings.Builder
	sb.WriteString("🧾 Purchase lots:\n\n")

	// only the latest lots fit into one message and keyboard
	if hidden := len(lots) - lotsShown; hidden > 0 {
		sb.WriteString(fmt.Sprintf("… %d earlier lots not shown, see /export_json\n", hidden))
		lots = lots[hidden:]
	}

	rows := make([]tele.Row, 0, len(lots))
	for _, lot := range lots {
		sb.WriteString(fmt.Sprintf("%s: %s %s × %s on %s\n", lot.ID, lot.Symbol, number(lot.Shares), money(lot.PricePerShare), lot.TradeDate))
		rows = append(rows, markup.Row(markup.Data("❌ "+lot.ID, tgCallback.RemoveLot, lot.ID)))
	}
	markup.Inline(rows...)

	return sb.String(), markup
}

func DividendsResponse(payouts []metrics.Payout, trailingIncome float64) string {
	if len(payouts) == 0 {
		return "No dividends recorded for current holdings"
	}

	var sb strings.Builder
	sb.WriteString("💵 Recent payouts:\n\n")
	for _, p := range payouts {
		sb.WriteString(fmt.Sprintf("%s %s: %s/share, %s\n", p.Date, p.Symbol, number(p.AmountPerShare), money(p.TotalAmount)))
	}
	sb.WriteString(fmt.Sprintf("\nTrailing income: %s", money(trailingIncome)))

	return sb.String()
}

func CashFlowResponse(report cashflow.Report) string {
	var sb strings.Builder
	sb.WriteString("📅 Monthly cash flow:\n\n")

	months := report.Months
	if len(months) > cashFlowMonthsShown {
		months = months[len(months)-cashFlowMonthsShown:]
	}
	for _, m := range months {
		sb.WriteString(fmt.Sprintf("%s: invested %s, dividends %s, net %s\n",
			m.Label, m.CashInvested.StringFixed(2), m.DividendsReceived.StringFixed(2), m.NetCashFlow.StringFixed(2)))
	}
	if len(report.Months) == 0 {
		sb.WriteString("no purchases or dividends yet\n")
	}

	t := report.Totals
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Invested: %s in %d purchases\n", t.CashInvested.StringFixed(2), t.Purchases))
	sb.WriteString(fmt.Sprintf("Dividends: %s in %d payments\n", t.Dividends.StringFixed(2), t.DividendPayments))
	sb.WriteString(fmt.Sprintf("Cash balance: %s\n", t.CurrentCashBalance.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("Portfolio value: %s\n", t.PortfolioValue.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("Dividend return on invested: %s%%\n", t.ReturnOnInvestment.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("Dividend ROI on seed: %s%%\n", t.DividendROI.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("True ROI: %s%%", t.TrueROI.StringFixed(2)))

	return sb.String()
}

func PortfoliosResponse(list []model.PortfolioMetadata, activeID string) (text string, markup *tele.ReplyMarkup) {
	markup = &tele.ReplyMarkup{}
	if len(list) == 0 {
		return "No saved portfolios. Use /save NAME", markup
	}

	var sb strings.Builder
	sb.WriteString("🗂 Saved portfolios:\n\n")

	rows := make([]tele.Row, 0, len(list))
	for _, p := range list {
		mark := ""
		if p.ID == activeID {
			mark = " ✅"
		}
		sb.WriteString(fmt.Sprintf("%s%s\n   id: %s\n   updated: %s\n", p.Name, mark, p.ID, p.UpdatedAt.Format(statusTimeLayout)))
		rows = append(rows, markup.Row(
			markup.Data("📂 "+p.Name, tgCallback.LoadPortfolio, p.ID),
			markup.Data("🗑", tgCallback.DeletePortfolio, p.ID),
		))
	}
	markup.Inline(rows...)

	return sb.String(), markup
}

func QuotesRefreshResponse(results []model.QuoteResult, status model.FetchStatus) string {
	if len(results) == 0 {
		return "Nothing to refresh"
	}

	var sb strings.Builder
	sb.WriteString("🔄 Quotes:\n")
	for _, r := range results {
		switch {
		case r.Error != "":
			sb.WriteString(fmt.Sprintf("%s: %s\n", r.Symbol, r.Error))
		case r.Price == nil:
			sb.WriteString(fmt.Sprintf("%s: no price\n", r.Symbol))
		case r.ChangePercent != nil:
			sb.WriteString(fmt.Sprintf("%s: %s (%+.2f%%)\n", r.Symbol, money(*r.Price), *r.ChangePercent))
		default:
			sb.WriteString(fmt.Sprintf("%s: %s\n", r.Symbol, money(*r.Price)))
		}
	}
	if status.Error != "" {
		sb.WriteString("\n⚠️ " + status.Error)
	}

	return strings.TrimRight(sb.String(), "\n")
}

func DividendsRefreshResponse(results []model.DividendResult, status model.FetchStatus) string {
	if len(results) == 0 {
		return "Nothing to refresh"
	}

	var sb strings.Builder
	sb.WriteString("🔄 Dividends:\n")
	for _, r := range results {
		if r.Error != "" {
			sb.WriteString(fmt.Sprintf("%s: %s\n", r.Symbol, r.Error))
			continue
		}
		sb.WriteString(fmt.Sprintf("%s: %d payments\n", r.Symbol, len(r.Dividends)))
	}
	if status.Error != "" {
		sb.WriteString("\n⚠️ " + status.Error)
	}

	return strings.TrimRight(sb.String(), "\n")
}

func statusLine(status model.FetchStatus, lastUpdate *time.Time) string {
	if status.IsLoading {
		return "updating…"
	}
	updated := status.LastUpdated
	if updated == nil {
		updated = lastUpdate
	}
	line := "never updated"
	if updated != nil {
		line = "updated " + updated.UTC().Format(statusTimeLayout)
	}
	if status.Error != "" {
		line += " ⚠️ " + status.Error
	}
	return line
}

func money(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

func percent(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}

func number(v float64) string {
	return fmt.Sprintf("%g", v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
