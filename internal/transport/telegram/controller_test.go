package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/KotFed0t/dividend_tracker/config"
	"github.com/KotFed0t/dividend_tracker/data/repository"
	"github.com/KotFed0t/dividend_tracker/data/session"
	"github.com/KotFed0t/dividend_tracker/data/storage"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/internal/reportGenerator/xslsxGenerator"
	"github.com/KotFed0t/dividend_tracker/internal/sample"
	"github.com/KotFed0t/dividend_tracker/internal/service/portfolioStore"
	"github.com/KotFed0t/dividend_tracker/internal/service/reportService"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

const chatID = 42

type noMarketData struct{}

func (noMarketData) FetchQuotes(_ context.Context, symbols []string) []model.QuoteResult {
	res := make([]model.QuoteResult, 0, len(symbols))
	for _, s := range symbols {
		res = append(res, model.QuoteResult{Symbol: s, Error: "Quote not found"})
	}
	return res
}

func (noMarketData) FetchDividends(_ context.Context, symbols []string, _ int) []model.DividendResult {
	res := make([]model.DividendResult, 0, len(symbols))
	for _, s := range symbols {
		res = append(res, model.DividendResult{Symbol: s, Dividends: []model.DividendPayment{}})
	}
	return res
}

// fakeTelegram answers every Bot API call and records sent texts.
type fakeTelegram struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeTelegram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
		return
	}

	var params map[string]any
	_ = json.NewDecoder(r.Body).Decode(&params)
	text, _ := params["text"].(string)

	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()

	_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
}

func (f *fakeTelegram) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

type fixture struct {
	bot   *tele.Bot
	tg    *fakeTelegram
	ctrl  *Controller
	store *portfolioStore.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tg := &fakeTelegram{}
	srv := httptest.NewServer(tg)
	t.Cleanup(srv.Close)

	bot, err := tele.NewBot(tele.Settings{URL: srv.URL, Token: "test", Offline: true})
	require.NoError(t, err)

	cfg := &config.Config{SessionExpiration: time.Hour}
	cfg.Telegram.FileLimitInBytes = 1 << 20
	cfg.Dividends.MonthsBack = 12

	kv := repository.NewMemory()
	store := portfolioStore.New(context.Background(), storage.New(kv), noMarketData{})
	reports := reportService.New(store, xslsxGenerator.New(), nil)

	ctrl := NewController(store, reports, session.New(kv, cfg), cfg)
	ctrl.newLotID = func() string { return "lot-test" }

	return &fixture{bot: bot, tg: tg, ctrl: ctrl, store: store}
}

func (f *fixture) command(text string) tele.Context {
	payload := ""
	if i := strings.IndexByte(text, ' '); i >= 0 {
		payload = text[i+1:]
	}
	return f.bot.NewContext(tele.Update{Message: &tele.Message{
		ID:      1,
		Text:    text,
		Payload: payload,
		Chat:    &tele.Chat{ID: chatID, Type: tele.ChatPrivate},
		Sender:  &tele.User{ID: chatID},
	}})
}

func TestAddLot(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.AddLot(f.command("/add_lot ko 2024-03-01 10 60,5")))

	assert.Equal(t, "Added lot-test: KO 10 × 60.50 on 2024-03-01", f.tg.last())
	lots := f.store.CustomLots()
	assert.Equal(t, model.PurchaseLot{ID: "lot-test", Symbol: "KO", TradeDate: "2024-03-01", Shares: 10, PricePerShare: 60.5}, lots[len(lots)-1])
}

func TestAddLot_Invalid(t *testing.T) {
	f := newFixture(t)
	before := len(f.store.CustomLots())

	require.NoError(t, f.ctrl.AddLot(f.command("/add_lot KO 2024-03-01 0 60")))
	assert.Equal(t, "Shares must be greater than zero", f.tg.last())

	require.NoError(t, f.ctrl.AddLot(f.command("/add_lot KO 01.03.2024 1 60")))
	assert.Equal(t, "Trade date must be YYYY-MM-DD", f.tg.last())

	require.NoError(t, f.ctrl.AddLot(f.command("/add_lot KO")))
	assert.Equal(t, "Usage: /add_lot SYMBOL YYYY-MM-DD SHARES PRICE", f.tg.last())

	assert.Len(t, f.store.CustomLots(), before)
}

func TestRemoveLot(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.RemoveLot(f.command("/remove_lot nope")))
	assert.Equal(t, "Lot not found: nope", f.tg.last())

	require.NoError(t, f.ctrl.RemoveLot(f.command("/remove_lot lot-aapl-1")))
	assert.Equal(t, "Removed lot lot-aapl-1", f.tg.last())
	assert.Len(t, f.store.CustomLots(), 1)
}

func TestSeed(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.Seed(f.command("/seed 1000 2025-13-01")))
	assert.Equal(t, "Date must be YYYY-MM-DD", f.tg.last())

	require.NoError(t, f.ctrl.Seed(f.command("/seed 1500.5 2025-03-01")))
	snapshot := f.store.Snapshot()
	require.NotNil(t, snapshot.SeedAmount)
	assert.Equal(t, 1500.5, *snapshot.SeedAmount)
	assert.Equal(t, "2025-03-01", snapshot.SeedDate)

	require.NoError(t, f.ctrl.Seed(f.command("/seed -")))
	assert.Nil(t, f.store.Snapshot().SeedAmount)
}

func TestSaveAsksForName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ctrl.Save(f.command("/save")))
	assert.Equal(t, "Enter a name for the portfolio:", f.tg.last())

	c := f.command("Income")
	chatSession, err := f.ctrl.GetChatSession(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, model.ExpectingSaveName, chatSession.Action)

	require.NoError(t, f.ctrl.ProcessSaveName(c))
	assert.Contains(t, f.tg.last(), `Saved "Income"`)

	id, name := f.store.ActivePortfolio()
	assert.NotEmpty(t, id)
	assert.Equal(t, "Income", name)

	chatSession, err = f.ctrl.GetChatSession(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultAction, chatSession.Action)
}

func TestPortfolioLifecycle(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.NewPortfolio(f.command("/new Growth")))
	id, name := f.store.ActivePortfolio()
	assert.Equal(t, "Growth", name)

	require.NoError(t, f.ctrl.Rename(f.command("/rename "+id+" Long term growth")))
	assert.Equal(t, `Renamed to "Long term growth"`, f.tg.last())

	require.NoError(t, f.ctrl.Load(f.command("/load missing")))
	assert.Equal(t, portfolioMissingMsg, f.tg.last())

	require.NoError(t, f.ctrl.Delete(f.command("/delete "+id)))
	assert.Equal(t, "🗑 Deleted "+id, f.tg.last())
	id, _ = f.store.ActivePortfolio()
	assert.Empty(t, id)
}

func TestRefreshDividends_RejectsBadMonths(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.RefreshDividends(f.command("/refresh_dividends abc")))
	assert.Equal(t, "MONTHS must be a positive integer", f.tg.last())
}

func TestRefreshQuotes_ReportsFailures(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.RefreshQuotes(f.command("/refresh_quotes")))
	assert.Contains(t, f.tg.last(), "AAPL: Quote not found")
	assert.Contains(t, f.tg.last(), "⚠️ Failed to refresh: AAPL (Quote not found), MSFT (Quote not found)")
}

func TestCashFlow(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.CashFlow(f.command("/cashflow")))
	assert.Contains(t, f.tg.last(), "Invested: 37568.00 in 2 purchases")
}

func TestEditLot(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.EditLot(f.command("/edit_lot lot-aapl-1 shares=130 price=140,5")))

	assert.Equal(t, "Updated lot-aapl-1: AAPL 130 × 140.50 on 2024-01-15", f.tg.last())
	assert.Equal(t, model.PurchaseLot{ID: "lot-aapl-1", Symbol: "AAPL", TradeDate: "2024-01-15", Shares: 130, PricePerShare: 140.5}, f.store.CustomLots()[0])
}

func TestEditLot_Invalid(t *testing.T) {
	f := newFixture(t)
	before := f.store.CustomLots()

	require.NoError(t, f.ctrl.EditLot(f.command("/edit_lot nope shares=1")))
	assert.Equal(t, "Lot not found: nope", f.tg.last())

	require.NoError(t, f.ctrl.EditLot(f.command("/edit_lot lot-aapl-1 shares=0")))
	assert.Equal(t, "Shares must be greater than zero", f.tg.last())

	require.NoError(t, f.ctrl.EditLot(f.command("/edit_lot lot-aapl-1 date=15.01.2024")))
	assert.Equal(t, "Trade date must be YYYY-MM-DD", f.tg.last())

	require.NoError(t, f.ctrl.EditLot(f.command("/edit_lot lot-aapl-1 fee=1")))
	assert.Equal(t, editLotUsage, f.tg.last())

	require.NoError(t, f.ctrl.EditLot(f.command("/edit_lot lot-aapl-1")))
	assert.Equal(t, editLotUsage, f.tg.last())

	assert.Equal(t, before, f.store.CustomLots())
}

func TestReset(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.AddLot(f.command("/add_lot KO 2024-03-01 10 60")))
	require.NoError(t, f.ctrl.RemoveLot(f.command("/remove_lot lot-msft-1")))

	require.NoError(t, f.ctrl.Reset(f.command("/reset")))

	assert.Equal(t, "♻️ Storage cleared, the sample portfolio is loaded", f.tg.last())
	assert.Equal(t, sample.Lots(), f.store.CustomLots())
	assert.Len(t, f.store.Snapshot().Equities, len(sample.Portfolio().Equities))
}
