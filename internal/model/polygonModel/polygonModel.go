package polygonModel

// AggregatesResponse is returned by both the previous-close and the range endpoints.
type AggregatesResponse struct {
	Status  string         `json:"status"`
	Results []AggregateBar `json:"results"`
}

// AggregateBar fields are pointers because Polygon omits them for empty bars.
type AggregateBar struct {
	T *int64   `json:"t"`
	O *float64 `json:"o"`
	C *float64 `json:"c"`
}

type DividendsResponse struct {
	Status  string     `json:"status"`
	Results []Dividend `json:"results"`
}

type Dividend struct {
	ID              string  `json:"id"`
	CashAmount      float64 `json:"cash_amount"`
	ExDividendDate  string  `json:"ex_dividend_date"`
	PayDate         string  `json:"pay_date"`
	DeclarationDate string  `json:"declaration_date"`
	RecordDate      string  `json:"record_date"`
	Frequency       int     `json:"frequency"`
	DividendType    string  `json:"dividend_type"`
}
