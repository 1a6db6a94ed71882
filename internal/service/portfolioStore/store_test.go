package portfolioStore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/KotFed0t/dividend_tracker/data/repository"
	"github.com/KotFed0t/dividend_tracker/data/storage"
	"github.com/KotFed0t/dividend_tracker/internal/converter/importConverter"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/internal/sample"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type marketDataMock struct {
	mock.Mock
}

func (m *marketDataMock) FetchQuotes(ctx context.Context, symbols []string) []model.QuoteResult {
	args := m.Called(ctx, symbols)
	return args.Get(0).([]model.QuoteResult)
}

func (m *marketDataMock) FetchDividends(ctx context.Context, symbols []string, monthsBack int) []model.DividendResult {
	args := m.Called(ctx, symbols, monthsBack)
	return args.Get(0).([]model.DividendResult)
}

var fixedNow = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, *storage.Storage, *marketDataMock) {
	t.Helper()
	st := storage.New(repository.NewMemory())
	md := &marketDataMock{}
	s := New(context.Background(), st, md)
	s.now = func() time.Time { return fixedNow }
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("portfolio-%d", n)
	}
	return s, st, md
}

func ptr[T any](v T) *T {
	return &v
}

func findPosition(t *testing.T, snapshot model.PortfolioSnapshot, symbol string) model.EquityPosition {
	t.Helper()
	for _, e := range snapshot.Equities {
		if e.Symbol == symbol {
			return e
		}
	}
	require.Failf(t, "position not found", "symbol %s", symbol)
	return model.EquityPosition{}
}

func TestNew_FallsBackToSampleAndPersists(t *testing.T) {
	ctx := context.Background()
	s, st, _ := newTestStore(t)

	snapshot := s.Snapshot()
	require.Len(t, snapshot.Equities, len(sample.Portfolio().Equities))
	for _, e := range snapshot.Equities {
		assert.Zero(t, e.Shares)
	}
	assert.Equal(t, sample.Lots(), s.CustomLots())

	stored := st.LoadSnapshot(ctx, importConverter.ParseStoredSnapshot, nil)
	require.NotNil(t, stored)
	assert.Equal(t, snapshot, *stored)
	assert.Equal(t, sample.Lots(), st.LoadCustomLots(ctx, importConverter.ParseStoredLots, nil))

	id, name := s.ActivePortfolio()
	assert.Empty(t, id)
	assert.Empty(t, name)
}

func TestNew_RestoresStoredState(t *testing.T) {
	ctx := context.Background()
	st := storage.New(repository.NewMemory())

	snapshot := sample.Portfolio()
	snapshot.Equities[0].Shares = 7
	lots := []model.PurchaseLot{{ID: "l1", Symbol: "KO", TradeDate: "2024-01-01", Shares: 1, PricePerShare: 60}}
	require.NoError(t, st.PersistSnapshot(ctx, snapshot))
	require.NoError(t, st.PersistCustomLots(ctx, lots))
	_, err := st.SavePortfolio(ctx, "p1", "Income", snapshot, lots)
	require.NoError(t, err)
	require.NoError(t, st.SetActivePortfolioID(ctx, "p1"))

	s := New(ctx, st, &marketDataMock{})

	assert.Equal(t, lots, s.CustomLots())
	assert.Zero(t, s.Snapshot().Equities[0].Shares, "stored shares are not trusted")
	id, name := s.ActivePortfolio()
	assert.Equal(t, "p1", id)
	assert.Equal(t, "Income", name)
}

func TestSetSnapshot_ZeroesShares(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	snapshot := sample.Portfolio()
	snapshot.Equities[0].Shares = 100
	s.SetSnapshot(ctx, snapshot)

	assert.Zero(t, s.Snapshot().Equities[0].Shares)
	assert.Equal(t, 100.0, snapshot.Equities[0].Shares, "input is not mutated")
}

func TestUpdateSeed(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	s.UpdateSeed(ctx, ptr(50000.0), "2024-09-01")

	snapshot := s.Snapshot()
	require.NotNil(t, snapshot.SeedAmount)
	assert.Equal(t, 50000.0, *snapshot.SeedAmount)
	assert.Equal(t, "2024-09-01", snapshot.SeedDate)
}

func TestLoadPortfolio_SeedLots(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	snapshot := model.PortfolioSnapshot{
		AsOf: "2025-01-15",
		Equities: []model.EquityPosition{
			{Symbol: "AAPL", Name: "Apple", Sector: "Tech", Shares: 10, AverageCost: 100, CurrentPrice: 120},
			{Symbol: "ZERO", Name: "Zero", Sector: "Tech", Shares: 0, AverageCost: 5, CurrentPrice: 5},
			{Symbol: "KO", Name: "Coca-Cola", Sector: "Staples", Shares: 5, AverageCost: 50, CurrentPrice: 60},
		},
	}
	lots := []model.PurchaseLot{{ID: "l1", Symbol: "ko", TradeDate: "2024-01-01", Shares: 3, PricePerShare: 55}}

	s.LoadPortfolio(ctx, snapshot, lots)

	assert.Equal(t, []model.PurchaseLot{
		lots[0],
		{ID: "seed-AAPL-0", Symbol: "AAPL", TradeDate: "2025-01-15", Shares: 10, PricePerShare: 100},
	}, s.CustomLots())
	for _, e := range s.Snapshot().Equities {
		assert.Zero(t, e.Shares)
	}

	views := s.EquityViews()
	require.Len(t, views, 3)
	assert.Equal(t, "AAPL", views[0].Position.Symbol)
	assert.Equal(t, 10.0, views[0].Position.Shares)
	assert.Equal(t, 100.0, views[0].Position.AverageCost)
}

func TestPurchaseLotLifecycle(t *testing.T) {
	ctx := context.Background()
	s, st, _ := newTestStore(t)

	lot := model.PurchaseLot{ID: "lot-ko", Symbol: "KO", TradeDate: "2024-03-01", Shares: 10, PricePerShare: 60}
	s.AddPurchaseLot(ctx, lot)
	assert.Contains(t, s.CustomLots(), lot)

	ok := s.UpdatePurchaseLot(ctx, "lot-ko", model.PurchaseLotUpdate{Shares: ptr(12.0)})
	require.True(t, ok)
	assert.False(t, s.UpdatePurchaseLot(ctx, "missing", model.PurchaseLotUpdate{Shares: ptr(1.0)}))

	stored := st.LoadCustomLots(ctx, importConverter.ParseStoredLots, nil)
	require.Len(t, stored, 3)
	assert.Equal(t, 12.0, stored[2].Shares)

	assert.True(t, s.RemovePurchaseLot(ctx, "lot-ko"))
	assert.False(t, s.RemovePurchaseLot(ctx, "lot-ko"))
	assert.Equal(t, sample.Lots(), s.CustomLots())
}

func TestRemovePurchaseLot_PrunesEmptyEquity(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	require.True(t, s.RemovePurchaseLot(ctx, "lot-msft-1"))

	snapshot := s.Snapshot()
	require.Len(t, snapshot.Equities, 1)
	assert.Equal(t, "AAPL", snapshot.Equities[0].Symbol)

	for _, v := range s.EquityViews() {
		assert.NotEqual(t, "MSFT", v.Position.Symbol)
	}
}

func TestRemovePurchaseLot_KeepsEquityWithSnapshotShares(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	// SetSnapshot zeroes shares, so write the state directly.
	s.snapshot.Equities[1].Shares = 5

	require.True(t, s.RemovePurchaseLot(ctx, "lot-msft-1"))
	assert.Len(t, s.Snapshot().Equities, 2)
}

func TestRemoveDividend(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	assert.True(t, s.RemoveDividend(ctx, "aapl", "aapl-2024-q1"))
	assert.False(t, s.RemoveDividend(ctx, "AAPL", "aapl-2024-q1"))

	aapl := findPosition(t, s.Snapshot(), "AAPL")
	assert.Len(t, aapl.Dividends, 3)
	assert.Len(t, findPosition(t, s.Snapshot(), "MSFT").Dividends, 4)
}

func TestRefreshQuotes_MergesAndSynthesizes(t *testing.T) {
	ctx := context.Background()
	s, st, md := newTestStore(t)

	s.AddPurchaseLot(ctx, model.PurchaseLot{ID: "n1", Symbol: "nvda", TradeDate: "2024-06-01", Shares: 10, PricePerShare: 100})
	s.AddPurchaseLot(ctx, model.PurchaseLot{ID: "n2", Symbol: "NVDA", TradeDate: "2024-07-01", Shares: 10, PricePerShare: 120})

	quotes := []model.QuoteResult{
		{Symbol: "AAPL", Price: ptr(200.0), NavHistory: []model.NavPoint{{Date: "2025-05-01", Value: 198}}},
		{Symbol: "MSFT", Error: "HTTP 500"},
		{Symbol: "nvda", Price: ptr(130.0)},
	}
	md.On("FetchQuotes", mock.Anything, []string{"AAPL", "MSFT", "nvda"}).Return(quotes).Once()

	res := s.RefreshQuotes(ctx)
	assert.Equal(t, quotes, res)
	md.AssertExpectations(t)

	snapshot := s.Snapshot()
	require.Len(t, snapshot.Equities, 3)

	aapl := findPosition(t, snapshot, "AAPL")
	assert.Equal(t, 200.0, aapl.CurrentPrice)
	assert.Equal(t, []model.NavPoint{{Date: "2025-05-01", Value: 198}}, aapl.NavHistory)

	msft := findPosition(t, snapshot, "MSFT")
	assert.Equal(t, sample.Portfolio().Equities[1].CurrentPrice, msft.CurrentPrice)
	assert.Len(t, msft.NavHistory, 5)

	nvda := findPosition(t, snapshot, "nvda")
	assert.Equal(t, model.ManualEntrySector, nvda.Sector)
	assert.Equal(t, 110.0, nvda.AverageCost)
	assert.Equal(t, 130.0, nvda.CurrentPrice)
	assert.Zero(t, nvda.Shares)

	require.NotNil(t, snapshot.LastPriceUpdate)
	assert.Equal(t, fixedNow, *snapshot.LastPriceUpdate)

	status := s.QuoteStatus()
	assert.False(t, status.IsLoading)
	require.NotNil(t, status.LastUpdated)
	assert.Equal(t, fixedNow, *status.LastUpdated)
	assert.Equal(t, "Failed to refresh: MSFT (HTTP 500)", status.Error)

	stored := st.LoadSnapshot(ctx, importConverter.ParseStoredSnapshot, nil)
	require.NotNil(t, stored)
	assert.Len(t, stored.Equities, 3)
}

func TestRefreshQuotes_NewSymbolWithoutLots(t *testing.T) {
	ctx := context.Background()
	s, _, md := newTestStore(t)

	s.LoadPortfolio(ctx, model.PortfolioSnapshot{
		AsOf:     "2025-01-01",
		Equities: []model.EquityPosition{{Symbol: "KO", Name: "KO", Sector: "Staples", CurrentPrice: 60}},
	}, nil)

	md.On("FetchQuotes", mock.Anything, []string{"KO"}).Return([]model.QuoteResult{
		{Symbol: "KO", Price: ptr(61.0)},
		{Symbol: "PEP", Price: ptr(150.0)},
		{Symbol: "FREE", Price: ptr(0.0)},
	})

	s.RefreshQuotes(ctx)

	snapshot := s.Snapshot()
	require.Len(t, snapshot.Equities, 2)
	pep := snapshot.Equities[1]
	assert.Equal(t, "PEP", pep.Symbol)
	assert.Equal(t, model.ManualEntrySector, pep.Sector)
	assert.Equal(t, 150.0, pep.AverageCost)
	assert.Empty(t, s.QuoteStatus().Error)
}

func TestRefresh_NoSymbolsIsNoop(t *testing.T) {
	ctx := context.Background()
	s, _, md := newTestStore(t)

	s.LoadPortfolio(ctx, model.PortfolioSnapshot{AsOf: "2025-01-01", Equities: []model.EquityPosition{}}, nil)

	assert.Empty(t, s.RefreshQuotes(ctx))
	assert.Empty(t, s.RefreshDividends(ctx, 12))
	md.AssertNotCalled(t, "FetchQuotes", mock.Anything, mock.Anything)
	md.AssertNotCalled(t, "FetchDividends", mock.Anything, mock.Anything, mock.Anything)
	assert.Nil(t, s.QuoteStatus().LastUpdated)
	assert.Nil(t, s.Snapshot().LastPriceUpdate)
}

func TestRefreshDividends(t *testing.T) {
	ctx := context.Background()
	s, _, md := newTestStore(t)

	s.AddPurchaseLot(ctx, model.PurchaseLot{ID: "k1", Symbol: "KO", TradeDate: "2024-01-01", Shares: 4, PricePerShare: 60})

	koDividends := []model.DividendPayment{{ID: "ko-1", Date: "2024-06-14", AmountPerShare: 0.485}}
	md.On("FetchDividends", mock.Anything, []string{"AAPL", "MSFT", "KO"}, 12).Return([]model.DividendResult{
		{Symbol: "AAPL", Dividends: []model.DividendPayment{{ID: "new", Date: "2025-02-10", AmountPerShare: 0.25}}},
		{Symbol: "MSFT", Dividends: []model.DividendPayment{}, Error: "HTTP 429"},
		{Symbol: "KO", Dividends: koDividends},
	}).Once()

	s.RefreshDividends(ctx, 0)
	md.AssertExpectations(t)

	snapshot := s.Snapshot()
	assert.Len(t, findPosition(t, snapshot, "AAPL").Dividends, 1)
	assert.Len(t, findPosition(t, snapshot, "MSFT").Dividends, 4, "empty result keeps existing dividends")

	ko := findPosition(t, snapshot, "KO")
	assert.Equal(t, model.ManualEntrySector, ko.Sector)
	assert.Equal(t, 60.0, ko.AverageCost)
	assert.Equal(t, 60.0, ko.CurrentPrice)
	assert.Equal(t, koDividends, ko.Dividends)

	require.NotNil(t, snapshot.LastDividendUpdate)
	status := s.DividendStatus()
	assert.False(t, status.IsLoading)
	assert.Equal(t, "Failed to refresh dividends: MSFT (HTTP 429)", status.Error)
}

func TestSavedPortfolioLifecycle(t *testing.T) {
	ctx := context.Background()
	s, st, _ := newTestStore(t)

	saved := s.SaveCurrentPortfolio(ctx, "Income")
	assert.Equal(t, "portfolio-1", saved.ID)
	assert.Equal(t, sample.Lots(), saved.CustomLots)
	id, name := s.ActivePortfolio()
	assert.Equal(t, "portfolio-1", id)
	assert.Equal(t, "Income", name)
	assert.Equal(t, "portfolio-1", st.GetActivePortfolioID(ctx))

	again := s.SaveCurrentPortfolio(ctx, "Income")
	assert.Equal(t, "portfolio-1", again.ID, "saving again reuses the active id")

	assert.True(t, s.RenameSavedPortfolio(ctx, "portfolio-1", "Dividends"))
	_, name = s.ActivePortfolio()
	assert.Equal(t, "Dividends", name)
	assert.False(t, s.RenameSavedPortfolio(ctx, "missing", "x"))

	newID := s.CreateNewPortfolio(ctx, "Fresh")
	assert.Equal(t, "portfolio-2", newID)
	assert.Empty(t, s.CustomLots())
	id, name = s.ActivePortfolio()
	assert.Equal(t, "portfolio-2", id)
	assert.Equal(t, "Fresh", name)

	meta := s.GetSavedPortfolios(ctx)
	require.Len(t, meta, 2)
	assert.Equal(t, "Dividends", meta[0].Name)
	assert.Equal(t, "Fresh", meta[1].Name)

	assert.False(t, s.LoadSavedPortfolio(ctx, "missing"))
	assert.Empty(t, s.CustomLots(), "failed load leaves state untouched")

	require.True(t, s.LoadSavedPortfolio(ctx, "portfolio-1"))
	assert.Equal(t, sample.Lots(), s.CustomLots())
	id, name = s.ActivePortfolio()
	assert.Equal(t, "portfolio-1", id)
	assert.Equal(t, "Dividends", name)

	assert.True(t, s.DeleteSavedPortfolio(ctx, "portfolio-2"))
	id, _ = s.ActivePortfolio()
	assert.Equal(t, "portfolio-1", id, "deleting another portfolio keeps the active one")

	assert.True(t, s.DeleteSavedPortfolio(ctx, "portfolio-1"))
	id, name = s.ActivePortfolio()
	assert.Empty(t, id)
	assert.Empty(t, name)
	assert.Empty(t, st.GetActivePortfolioID(ctx))
	assert.False(t, s.DeleteSavedPortfolio(ctx, "portfolio-1"))
}

// failingKV accepts reads and deletes but rejects every write.
type failingKV struct {
	*repository.Memory
}

func (failingKV) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("disk full")
}

// blockingMarketData holds every fetch until release is closed.
type blockingMarketData struct {
	started chan struct{}
	release chan struct{}
}

func newBlockingMarketData() *blockingMarketData {
	return &blockingMarketData{started: make(chan struct{}, 2), release: make(chan struct{})}
}

func (m *blockingMarketData) FetchQuotes(_ context.Context, symbols []string) []model.QuoteResult {
	m.started <- struct{}{}
	<-m.release
	res := make([]model.QuoteResult, 0, len(symbols))
	for _, symbol := range symbols {
		res = append(res, model.QuoteResult{Symbol: symbol, Error: "Quote not found"})
	}
	return res
}

func (m *blockingMarketData) FetchDividends(_ context.Context, symbols []string, _ int) []model.DividendResult {
	m.started <- struct{}{}
	<-m.release
	res := make([]model.DividendResult, 0, len(symbols))
	for _, symbol := range symbols {
		res = append(res, model.DividendResult{Symbol: symbol, Dividends: []model.DividendPayment{}})
	}
	return res
}

type panickingMarketData struct{}

func (panickingMarketData) FetchQuotes(context.Context, []string) []model.QuoteResult {
	panic("gateway exploded")
}

func (panickingMarketData) FetchDividends(context.Context, []string, int) []model.DividendResult {
	panic("gateway exploded")
}

func TestRefreshQuotes_ResultsDoNotShareState(t *testing.T) {
	ctx := context.Background()
	s, _, md := newTestStore(t)

	md.On("FetchQuotes", mock.Anything, mock.Anything).Return([]model.QuoteResult{
		{Symbol: "AAPL", Price: ptr(200.0), NavHistory: []model.NavPoint{{Date: "2025-05-01", Value: 198}}},
		{Symbol: "NVDA", Price: ptr(130.0), NavHistory: []model.NavPoint{{Date: "2025-05-01", Value: 128}}},
	})

	res := s.RefreshQuotes(ctx)
	res[0].NavHistory[0].Value = -1
	res[1].NavHistory[0].Value = -1

	snapshot := s.Snapshot()
	assert.Equal(t, 198.0, findPosition(t, snapshot, "AAPL").NavHistory[0].Value)
	assert.Equal(t, 128.0, findPosition(t, snapshot, "NVDA").NavHistory[0].Value)
}

func TestRefreshDividends_ResultsDoNotShareState(t *testing.T) {
	ctx := context.Background()
	s, _, md := newTestStore(t)

	md.On("FetchDividends", mock.Anything, mock.Anything, 12).Return([]model.DividendResult{
		{Symbol: "AAPL", Dividends: []model.DividendPayment{{ID: "a", Date: "2025-02-10", AmountPerShare: 0.25}}},
		{Symbol: "KO", Dividends: []model.DividendPayment{{ID: "k", Date: "2025-03-14", AmountPerShare: 0.51}}},
	})

	res := s.RefreshDividends(ctx, 12)
	res[0].Dividends[0].AmountPerShare = -1
	res[1].Dividends[0].AmountPerShare = -1

	snapshot := s.Snapshot()
	assert.Equal(t, 0.25, findPosition(t, snapshot, "AAPL").Dividends[0].AmountPerShare)
	assert.Equal(t, 0.51, findPosition(t, snapshot, "KO").Dividends[0].AmountPerShare)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	s, st, _ := newTestStore(t)

	s.AddPurchaseLot(ctx, model.PurchaseLot{ID: "lot-ko", Symbol: "KO", TradeDate: "2024-03-01", Shares: 10, PricePerShare: 60})
	s.UpdateSeed(ctx, nil, "")
	s.SaveCurrentPortfolio(ctx, "Income")

	s.Reset(ctx)

	assert.Equal(t, sample.Lots(), s.CustomLots())
	assert.Equal(t, sanitize(sample.Portfolio()), s.Snapshot())

	stored := st.LoadSnapshot(ctx, importConverter.ParseStoredSnapshot, nil)
	require.NotNil(t, stored)
	assert.Equal(t, sanitize(sample.Portfolio()), *stored)
	assert.Equal(t, sample.Lots(), st.LoadCustomLots(ctx, importConverter.ParseStoredLots, nil))

	id, name := s.ActivePortfolio()
	assert.Equal(t, "portfolio-1", id)
	assert.Equal(t, "Income", name)
	assert.Len(t, s.GetSavedPortfolios(ctx), 1)
}

func TestState(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	s.AddPurchaseLot(ctx, model.PurchaseLot{ID: "lot-ko", Symbol: "KO", TradeDate: "2024-03-01", Shares: 10, PricePerShare: 60})

	snapshot, lots, equityViews := s.State()

	assert.Equal(t, s.Snapshot(), snapshot)
	require.Len(t, lots, 3)
	require.Len(t, equityViews, 3)
	assert.Equal(t, "KO", equityViews[1].Position.Symbol)

	lots[0].Shares = 0
	snapshot.Equities[0].Dividends[0].AmountPerShare = -1
	assert.Equal(t, sample.Lots()[0].Shares, s.CustomLots()[0].Shares)
	assert.Equal(t, 0.2, s.Snapshot().Equities[0].Dividends[0].AmountPerShare)
}

func TestMutations_SurviveStorageFailures(t *testing.T) {
	ctx := context.Background()
	st := storage.New(failingKV{repository.NewMemory()})

	s := New(ctx, st, &marketDataMock{})
	assert.Equal(t, sample.Lots(), s.CustomLots())
	assert.Len(t, s.Snapshot().Equities, 2)

	lot := model.PurchaseLot{ID: "lot-ko", Symbol: "KO", TradeDate: "2024-03-01", Shares: 10, PricePerShare: 60}
	s.AddPurchaseLot(ctx, lot)
	assert.Contains(t, s.CustomLots(), lot)

	require.True(t, s.UpdatePurchaseLot(ctx, "lot-ko", model.PurchaseLotUpdate{Shares: ptr(12.0)}))
	assert.Equal(t, 12.0, s.CustomLots()[2].Shares)

	s.UpdateSeed(ctx, ptr(1000.0), "2024-01-01")
	require.NotNil(t, s.Snapshot().SeedAmount)
	assert.Equal(t, 1000.0, *s.Snapshot().SeedAmount)

	require.True(t, s.RemovePurchaseLot(ctx, "lot-msft-1"))
	assert.Len(t, s.Snapshot().Equities, 1)

	s.SaveCurrentPortfolio(ctx, "Income")
	_, name := s.ActivePortfolio()
	assert.Equal(t, "Income", name)

	assert.Nil(t, st.LoadCustomLots(ctx, importConverter.ParseStoredLots, nil), "nothing reached storage")
}

func TestRefresh_LoadingFlagWhileInFlight(t *testing.T) {
	ctx := context.Background()
	md := newBlockingMarketData()
	s := New(ctx, storage.New(repository.NewMemory()), md)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.RefreshQuotes(ctx)
	}()

	<-md.started
	assert.True(t, s.QuoteStatus().IsLoading)
	assert.False(t, s.DividendStatus().IsLoading)

	close(md.release)
	<-done

	status := s.QuoteStatus()
	assert.False(t, status.IsLoading)
	assert.NotNil(t, status.LastUpdated)
}

func TestRefresh_LoadingFlagResetAfterPanic(t *testing.T) {
	ctx := context.Background()
	s := New(ctx, storage.New(repository.NewMemory()), panickingMarketData{})

	assert.Panics(t, func() { s.RefreshQuotes(ctx) })
	assert.Panics(t, func() { s.RefreshDividends(ctx, 12) })

	assert.False(t, s.QuoteStatus().IsLoading)
	assert.False(t, s.DividendStatus().IsLoading)
	assert.Nil(t, s.QuoteStatus().LastUpdated)
	assert.Nil(t, s.Snapshot().LastPriceUpdate)
}

func TestRefresh_LastToCompleteWins(t *testing.T) {
	ctx := context.Background()
	md := newBlockingMarketData()
	s := New(ctx, storage.New(repository.NewMemory()), md)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.RefreshDividends(ctx, 12)
	}()

	<-md.started
	require.True(t, s.RemoveDividend(ctx, "AAPL", "aapl-2024-q1"))
	assert.Len(t, findPosition(t, s.Snapshot(), "AAPL").Dividends, 3)

	close(md.release)
	<-done

	assert.Len(t, findPosition(t, s.Snapshot(), "AAPL").Dividends, 4, "the refresh writes back the state it started from")
}
