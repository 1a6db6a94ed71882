package polygonApi

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/KotFed0t/dividend_tracker/config"
	"github.com/KotFed0t/dividend_tracker/internal/externalApi"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/internal/model/polygonModel"
	"github.com/KotFed0t/dividend_tracker/utils"
	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"
)

const (
	navHistoryMonths = 12
	quoteCurrency    = "USD"
	msgQuoteNotFound = "Quote not found"
)

type PolygonApi struct {
	client         *resty.Client
	apiKey         string
	maxConcurrency int
	now            func() time.Time
}

func New(cfg *config.Config) *PolygonApi {
	client := resty.New().
		SetDebug(cfg.API.Debug).
		SetTimeout(cfg.API.Timeout).
		SetBaseURL(cfg.API.Polygon.Url)

	return &PolygonApi{
		client:         client,
		apiKey:         cfg.API.Polygon.ApiKey,
		maxConcurrency: max(cfg.API.MaxConcurrency, 1),
		now:            time.Now,
	}
}

// FetchQuotes returns one result per symbol in input order. Failures are
// reported in QuoteResult.Error; the call itself never fails.
func (a *PolygonApi) FetchQuotes(ctx context.Context, symbols []string) []model.QuoteResult {
	rqID := utils.GetRequestIDFromCtx(ctx)
	if len(symbols) == 0 {
		return []model.QuoteResult{}
	}

	slog.Debug("PolygonApi.FetchQuotes start", slog.String("rqID", rqID), slog.Int("symbols", len(symbols)))

	res := make([]model.QuoteResult, len(symbols))
	a.fanOut(symbols, func(i int, symbol string) {
		res[i] = a.fetchQuote(ctx, symbol)
	})

	slog.Debug("PolygonApi.FetchQuotes completed", slog.String("rqID", rqID))

	return res
}

// FetchDividends returns the dividends with an ex-date in the last monthsBack
// months, one result per symbol in input order.
func (a *PolygonApi) FetchDividends(ctx context.Context, symbols []string, monthsBack int) []model.DividendResult {
	rqID := utils.GetRequestIDFromCtx(ctx)
	if len(symbols) == 0 {
		return []model.DividendResult{}
	}

	slog.Debug("PolygonApi.FetchDividends start", slog.String("rqID", rqID), slog.Int("symbols", len(symbols)))

	res := make([]model.DividendResult, len(symbols))
	a.fanOut(symbols, func(i int, symbol string) {
		res[i] = a.fetchDividends(ctx, symbol, monthsBack)
	})

	slog.Debug("PolygonApi.FetchDividends completed", slog.String("rqID", rqID))

	return res
}

func (a *PolygonApi) fanOut(symbols []string, fn func(i int, symbol string)) {
	var g errgroup.Group
	g.SetLimit(a.maxConcurrency)
	for i, symbol := range symbols {
		g.Go(func() error {
			fn(i, symbol)
			return nil
		})
	}
	_ = g.Wait()
}

func (a *PolygonApi) fetchQuote(ctx context.Context, symbol string) model.QuoteResult {
	rqID := utils.GetRequestIDFromCtx(ctx)

	aggs := polygonModel.AggregatesResponse{}
	err := a.get(ctx, "/v2/aggs/ticker/{symbol}/prev", symbol, map[string]string{
		"adjusted": "true",
		"limit":    "1",
	}, &aggs)
	if err != nil {
		slog.Warn("quote fetch failed", slog.String("rqID", rqID), slog.String("symbol", symbol), slog.String("err", err.Error()))
		return model.QuoteResult{Symbol: symbol, Error: err.Error()}
	}

	if len(aggs.Results) == 0 || aggs.Results[0].C == nil {
		return model.QuoteResult{Symbol: symbol, Error: msgQuoteNotFound}
	}

	latest := aggs.Results[0]
	price := *latest.C
	res := model.QuoteResult{
		Symbol:   symbol,
		Price:    &price,
		Currency: quoteCurrency,
	}
	if latest.O != nil && *latest.O != 0 {
		change := (price - *latest.O) / *latest.O * 100
		res.ChangePercent = &change
	}

	res.NavHistory = a.fetchNavHistory(ctx, symbol)

	return res
}

// fetchNavHistory yields an empty history on any failure.
func (a *PolygonApi) fetchNavHistory(ctx context.Context, symbol string) []model.NavPoint {
	rqID := utils.GetRequestIDFromCtx(ctx)
	end := a.now().UTC()
	start := end.AddDate(0, -navHistoryMonths, 0)

	path := fmt.Sprintf("/v2/aggs/ticker/{symbol}/range/1/month/%s/%s", start.Format(model.DateLayout), end.Format(model.DateLayout))

	aggs := polygonModel.AggregatesResponse{}
	err := a.get(ctx, path, symbol, map[string]string{
		"adjusted": "true",
		"sort":     "asc",
		"limit":    "50",
	}, &aggs)
	if err != nil {
		slog.Warn("nav history fetch failed", slog.String("rqID", rqID), slog.String("symbol", symbol), slog.String("err", err.Error()))
		return []model.NavPoint{}
	}

	res := make([]model.NavPoint, 0, len(aggs.Results))
	for _, bar := range aggs.Results {
		if bar.T == nil || bar.C == nil {
			continue
		}
		res = append(res, model.NavPoint{
			Date:  time.UnixMilli(*bar.T).UTC().Format(model.DateLayout),
			Value: *bar.C,
		})
	}

	return res
}

func (a *PolygonApi) fetchDividends(ctx context.Context, symbol string, monthsBack int) model.DividendResult {
	rqID := utils.GetRequestIDFromCtx(ctx)
	end := a.now().UTC()
	start := end.AddDate(0, -monthsBack, 0)

	divs := polygonModel.DividendsResponse{}
	err := a.get(ctx, "/v3/reference/dividends", "", map[string]string{
		"ticker":               symbol,
		"ex_dividend_date.gte": start.Format(model.DateLayout),
		"ex_dividend_date.lte": end.Format(model.DateLayout),
		"limit":                "100",
	}, &divs)
	if err != nil {
		slog.Warn("dividends fetch failed", slog.String("rqID", rqID), slog.String("symbol", symbol), slog.String("err", err.Error()))
		return model.DividendResult{Symbol: symbol, Dividends: []model.DividendPayment{}, Error: err.Error()}
	}

	dividends := make([]model.DividendPayment, 0, len(divs.Results))
	for i, d := range divs.Results {
		id := d.ID
		if id == "" {
			id = fmt.Sprintf("%s-%s-%d", symbol, d.ExDividendDate, i)
		}
		dividends = append(dividends, model.DividendPayment{
			ID:             id,
			Date:           d.ExDividendDate,
			AmountPerShare: d.CashAmount,
		})
	}
	slices.SortStableFunc(dividends, func(x, y model.DividendPayment) int {
		return cmp.Compare(x.Date, y.Date)
	})

	return model.DividendResult{Symbol: symbol, Dividends: dividends}
}

func (a *PolygonApi) get(ctx context.Context, path, symbol string, params map[string]string, out any) error {
	req := a.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParams(params).
		SetQueryParam("apiKey", a.apiKey)
	if symbol != "" {
		req.SetPathParam("symbol", symbol)
	}

	resp, err := req.Get(path)
	if err != nil {
		return err
	}

	if !resp.IsSuccess() {
		return &externalApi.StatusError{StatusCode: resp.StatusCode()}
	}

	return json.Unmarshal(resp.Body(), out)
}
