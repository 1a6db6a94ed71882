package tgCallback

// Inline button uniques. The payload, when any, carries the target id.
const (
	RefreshQuotes    string = "refresh_quotes"
	RefreshDividends string = "refresh_dividends"
	ExportXLSX       string = "export_xlsx"
	ShowHoldings     string = "show_holdings"

	LoadPortfolio   string = "load_portfolio"   // payload: saved portfolio id
	DeletePortfolio string = "delete_portfolio" // payload: saved portfolio id
	RemoveLot       string = "remove_lot"       // payload: lot id
)
