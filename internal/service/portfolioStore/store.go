// Package portfolioStore owns the active portfolio: the snapshot, the purchase-lot
// ledger and the named saved portfolios. Every mutation is persisted on a
// best-effort basis: storage failures are logged and the in-memory state stays
// authoritative.
package portfolioStore

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/KotFed0t/dividend_tracker/internal/converter/importConverter"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/internal/sample"
	"github.com/KotFed0t/dividend_tracker/internal/views"
	"github.com/KotFed0t/dividend_tracker/utils"
	"github.com/google/uuid"
)

const defaultDividendMonths = 12

type Storage interface {
	LoadCustomLots(ctx context.Context, parser func([]byte) ([]model.PurchaseLot, error), fallback []model.PurchaseLot) []model.PurchaseLot
	PersistCustomLots(ctx context.Context, lots []model.PurchaseLot) error
	ClearCustomLots(ctx context.Context) error
	LoadSnapshot(ctx context.Context, parser func([]byte) (*model.PortfolioSnapshot, error), fallback *model.PortfolioSnapshot) *model.PortfolioSnapshot
	PersistSnapshot(ctx context.Context, snapshot model.PortfolioSnapshot) error
	ClearSnapshot(ctx context.Context) error
	SavePortfolio(ctx context.Context, id, name string, snapshot model.PortfolioSnapshot, lots []model.PurchaseLot) (model.SavedPortfolio, error)
	LoadPortfolioByID(ctx context.Context, id string) (model.SavedPortfolio, bool)
	DeletePortfolio(ctx context.Context, id string) (bool, error)
	RenamePortfolio(ctx context.Context, id, name string) (bool, error)
	GetPortfolioMetadataList(ctx context.Context) []model.PortfolioMetadata
	GetActivePortfolioID(ctx context.Context) string
	SetActivePortfolioID(ctx context.Context, id string) error
}

type MarketData interface {
	FetchQuotes(ctx context.Context, symbols []string) []model.QuoteResult
	FetchDividends(ctx context.Context, symbols []string, monthsBack int) []model.DividendResult
}

// Store is safe for concurrent use. Refreshes read the state at call time, fetch
// without holding the lock and write their merged snapshot back when done, so the
// last refresh to complete wins.
type Store struct {
	storage    Storage
	marketData MarketData
	now        func() time.Time
	newID      func() string

	mu                  sync.Mutex
	snapshot            model.PortfolioSnapshot
	customLots          []model.PurchaseLot
	activePortfolioID   string
	activePortfolioName string
	quoteStatus         model.FetchStatus
	dividendStatus      model.FetchStatus
}

// New restores the active portfolio from storage. A missing snapshot falls back
// to the sample portfolio and an empty ledger to the sample lots; fallbacks are
// persisted right away.
func New(ctx context.Context, storage Storage, marketData MarketData) *Store {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Store.New"

	s := &Store{
		storage:    storage,
		marketData: marketData,
		now:        time.Now,
		newID:      func() string { return "portfolio-" + uuid.NewString() },
	}

	s.restoreLocked(ctx, op)

	s.activePortfolioID = storage.GetActivePortfolioID(ctx)
	if s.activePortfolioID != "" {
		if saved, ok := storage.LoadPortfolioByID(ctx, s.activePortfolioID); ok {
			s.activePortfolioName = saved.Name
		}
	}

	slog.Info(
		"portfolio store ready",
		slog.String("rqID", rqID),
		slog.Int("equities", len(s.snapshot.Equities)),
		slog.Int("lots", len(s.customLots)),
		slog.String("activePortfolioID", s.activePortfolioID),
	)

	return s
}

// restoreLocked reads the snapshot and the ledger from storage, falling back to
// the sample portfolio and persisting whatever fallback was used.
func (s *Store) restoreLocked(ctx context.Context, op string) {
	storedLots := s.storage.LoadCustomLots(ctx, importConverter.ParseStoredLots, nil)
	storedSnapshot := s.storage.LoadSnapshot(ctx, importConverter.ParseStoredSnapshot, nil)

	if storedSnapshot != nil {
		s.snapshot = sanitize(*storedSnapshot)
	} else {
		s.snapshot = sanitize(sample.Portfolio())
		s.persistSnapshot(ctx, op, s.snapshot)
	}

	if len(storedLots) > 0 {
		s.customLots = storedLots
	} else {
		s.customLots = sample.Lots()
		s.persistLots(ctx, op, s.customLots)
	}
}

// Reset drops the stored snapshot and ledger and starts over from the sample
// portfolio. Saved portfolios and the active id are kept.
func (s *Store) Reset(ctx context.Context) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Store.Reset"

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.ClearSnapshot(ctx); err != nil {
		slog.Warn("failed to clear stored snapshot", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}
	if err := s.storage.ClearCustomLots(ctx); err != nil {
		slog.Warn("failed to clear stored lots", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	s.restoreLocked(ctx, op)

	slog.Info("portfolio reset to sample", slog.String("rqID", rqID), slog.String("op", op))
}

func (s *Store) Snapshot() model.PortfolioSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.Clone()
}

func (s *Store) CustomLots() []model.PurchaseLot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.customLots)
}

// ActivePortfolio returns empty strings when no saved portfolio is active.
func (s *Store) ActivePortfolio() (id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activePortfolioID, s.activePortfolioName
}

func (s *Store) QuoteStatus() model.FetchStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneStatus(s.quoteStatus)
}

func (s *Store) DividendStatus() model.FetchStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneStatus(s.dividendStatus)
}

func (s *Store) EquityViews() []model.EquityWithLots {
	s.mu.Lock()
	defer s.mu.Unlock()
	return views.DeriveEquityViews(s.snapshot.Clone(), slices.Clone(s.customLots))
}

// State returns the snapshot, the ledger and the views derived from them, all
// read under one lock.
func (s *Store) State() (model.PortfolioSnapshot, []model.PurchaseLot, []model.EquityWithLots) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshot.Clone()
	lots := slices.Clone(s.customLots)
	return snapshot, lots, views.DeriveEquityViews(snapshot.Clone(), slices.Clone(lots))
}

// SetSnapshot replaces the snapshot. Snapshot-held shares are zeroed: only lots
// are trusted as a source of shares.
func (s *Store) SetSnapshot(ctx context.Context, snapshot model.PortfolioSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setSnapshotLocked(ctx, "Store.SetSnapshot", snapshot)
}

func (s *Store) setSnapshotLocked(ctx context.Context, op string, snapshot model.PortfolioSnapshot) {
	sanitized := sanitize(snapshot)
	s.persistSnapshot(ctx, op, sanitized)
	s.snapshot = sanitized
}

// UpdateSeed replaces the seed capital and date.
func (s *Store) UpdateSeed(ctx context.Context, amount *float64, date string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshot.Clone()
	if amount != nil {
		v := *amount
		snapshot.SeedAmount = &v
	} else {
		snapshot.SeedAmount = nil
	}
	snapshot.SeedDate = date

	s.setSnapshotLocked(ctx, "Store.UpdateSeed", snapshot)
}

// LoadPortfolio replaces the snapshot and the ledger. Equities carrying shares get
// a seed lot dated snapshot.AsOf unless the ledger already has lots for the symbol.
func (s *Store) LoadPortfolio(ctx context.Context, snapshot model.PortfolioSnapshot, lots []model.PurchaseLot) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Store.LoadPortfolio"

	slog.Debug("LoadPortfolio start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("LoadPortfolio finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	sanitized := sanitize(snapshot)
	merged := mergeSeedLots(slices.Clone(lots), seedLots(snapshot))
	if merged == nil {
		merged = []model.PurchaseLot{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.persistSnapshot(ctx, op, sanitized)
	s.persistLots(ctx, op, merged)
	s.snapshot = sanitized
	s.customLots = merged
}

func (s *Store) AddPurchaseLot(ctx context.Context, lot model.PurchaseLot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := append(slices.Clone(s.customLots), lot)
	s.persistLots(ctx, "Store.AddPurchaseLot", updated)
	s.customLots = updated
}

// UpdatePurchaseLot reports whether a lot with the id exists.
func (s *Store) UpdatePurchaseLot(ctx context.Context, id string, upd model.PurchaseLotUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.IndexFunc(s.customLots, func(l model.PurchaseLot) bool { return l.ID == id })
	if idx < 0 {
		return false
	}

	updated := slices.Clone(s.customLots)
	updated[idx] = updated[idx].Apply(upd)
	s.persistLots(ctx, "Store.UpdatePurchaseLot", updated)
	s.customLots = updated

	return true
}

// RemovePurchaseLot deletes the lot and drops snapshot equities left with neither
// snapshot shares nor lots. It reports whether the lot existed.
func (s *Store) RemovePurchaseLot(ctx context.Context, id string) bool {
	op := "Store.RemovePurchaseLot"

	s.mu.Lock()
	defer s.mu.Unlock()

	updated := slices.DeleteFunc(slices.Clone(s.customLots), func(l model.PurchaseLot) bool { return l.ID == id })
	if len(updated) == len(s.customLots) {
		return false
	}
	s.persistLots(ctx, op, updated)

	withLots := make(map[string]bool, len(updated))
	for _, l := range updated {
		withLots[model.NormalizeSymbol(l.Symbol)] = true
	}

	snapshot := s.snapshot.Clone()
	snapshot.Equities = slices.DeleteFunc(snapshot.Equities, func(e model.EquityPosition) bool {
		return e.Shares <= 0 && !withLots[model.NormalizeSymbol(e.Symbol)]
	})
	s.persistSnapshot(ctx, op, snapshot)

	s.customLots = updated
	s.snapshot = snapshot

	return true
}

// RemoveDividend reports whether a dividend was removed.
func (s *Store) RemoveDividend(ctx context.Context, symbol, dividendID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := model.NormalizeSymbol(symbol)
	removed := false

	snapshot := s.snapshot.Clone()
	for i, e := range snapshot.Equities {
		if model.NormalizeSymbol(e.Symbol) != key {
			continue
		}
		before := len(e.Dividends)
		snapshot.Equities[i].Dividends = slices.DeleteFunc(e.Dividends, func(d model.DividendPayment) bool { return d.ID == dividendID })
		removed = removed || len(snapshot.Equities[i].Dividends) != before
	}

	s.persistSnapshot(ctx, "Store.RemoveDividend", snapshot)
	s.snapshot = snapshot

	return removed
}

// RefreshQuotes fetches quotes for every tracked symbol and merges them into the
// snapshot. Per-symbol failures end up in QuoteStatus().Error; partial results are
// still applied.
func (s *Store) RefreshQuotes(ctx context.Context) []model.QuoteResult {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Store.RefreshQuotes"

	s.mu.Lock()
	snapshot := s.snapshot.Clone()
	lots := slices.Clone(s.customLots)
	symbols := symbolUnion(snapshot, lots)
	if len(symbols) == 0 {
		s.mu.Unlock()
		return []model.QuoteResult{}
	}
	s.quoteStatus.IsLoading = true
	s.quoteStatus.Error = ""
	s.mu.Unlock()

	slog.Debug("RefreshQuotes start", slog.String("rqID", rqID), slog.String("op", op), slog.Any("symbols", symbols))
	defer s.stopLoading(&s.quoteStatus)

	quotes := s.marketData.FetchQuotes(ctx, symbols)

	merged := MergeQuotesIntoPositions(snapshot.Equities, quotes)
	merged = append(merged, quotePositions(merged, quotes, lots)...)

	fetched, errs := make([]string, len(quotes)), make([]string, len(quotes))
	for i, q := range quotes {
		fetched[i], errs[i] = q.Symbol, q.Error
	}
	errMsg := joinFetchErrors("Failed to refresh", fetched, errs)

	now := s.now().UTC()
	snapshot.Equities = merged
	snapshot.LastPriceUpdate = &now

	s.mu.Lock()
	defer s.mu.Unlock()

	s.persistSnapshot(ctx, op, snapshot)
	s.snapshot = snapshot
	s.quoteStatus = model.FetchStatus{LastUpdated: &now, Error: errMsg}

	if errMsg != "" {
		slog.Warn("quotes refreshed with errors", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", errMsg))
	}
	slog.Debug("RefreshQuotes finished", slog.String("rqID", rqID), slog.String("op", op))

	return quotes
}

// RefreshDividends fetches dividends with an ex-date in the last monthsBack months
// (12 when monthsBack <= 0) and merges them into the snapshot.
func (s *Store) RefreshDividends(ctx context.Context, monthsBack int) []model.DividendResult {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Store.RefreshDividends"

	if monthsBack <= 0 {
		monthsBack = defaultDividendMonths
	}

	s.mu.Lock()
	snapshot := s.snapshot.Clone()
	lots := slices.Clone(s.customLots)
	symbols := symbolUnion(snapshot, lots)
	if len(symbols) == 0 {
		s.mu.Unlock()
		return []model.DividendResult{}
	}
	s.dividendStatus.IsLoading = true
	s.dividendStatus.Error = ""
	s.mu.Unlock()

	slog.Debug("RefreshDividends start", slog.String("rqID", rqID), slog.String("op", op), slog.Int("monthsBack", monthsBack))
	defer s.stopLoading(&s.dividendStatus)

	results := s.marketData.FetchDividends(ctx, symbols, monthsBack)

	merged := MergeDividendsIntoPositions(snapshot.Equities, results)
	merged = append(merged, dividendPositions(merged, results, lots)...)

	fetched, errs := make([]string, len(results)), make([]string, len(results))
	for i, r := range results {
		fetched[i], errs[i] = r.Symbol, r.Error
	}
	errMsg := joinFetchErrors("Failed to refresh dividends", fetched, errs)

	now := s.now().UTC()
	snapshot.Equities = merged
	snapshot.LastDividendUpdate = &now

	s.mu.Lock()
	defer s.mu.Unlock()

	s.persistSnapshot(ctx, op, snapshot)
	s.snapshot = snapshot
	s.dividendStatus = model.FetchStatus{LastUpdated: &now, Error: errMsg}

	if errMsg != "" {
		slog.Warn("dividends refreshed with errors", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", errMsg))
	}
	slog.Debug("RefreshDividends finished", slog.String("rqID", rqID), slog.String("op", op))

	return results
}

// stopLoading runs after the write-back, or alone when the fetch panicked.
func (s *Store) stopLoading(status *model.FetchStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status.IsLoading = false
}

// SaveCurrentPortfolio stores the working portfolio under the active id, creating
// an id when none is active, and marks it active.
func (s *Store) SaveCurrentPortfolio(ctx context.Context, name string) model.SavedPortfolio {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Store.SaveCurrentPortfolio"

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.activePortfolioID
	if id == "" {
		id = s.newID()
	}

	saved, err := s.storage.SavePortfolio(ctx, id, name, s.snapshot.Clone(), slices.Clone(s.customLots))
	if err != nil {
		slog.Warn("failed to persist saved portfolio", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}
	s.setActiveLocked(ctx, op, id, name)

	return saved
}

// LoadSavedPortfolio makes a saved portfolio the working one. It returns false,
// leaving the state untouched, when the id is unknown.
func (s *Store) LoadSavedPortfolio(ctx context.Context, id string) bool {
	op := "Store.LoadSavedPortfolio"

	saved, ok := s.storage.LoadPortfolioByID(ctx, id)
	if !ok {
		return false
	}

	sanitized := sanitize(saved.Snapshot)
	lots := slices.Clone(saved.CustomLots)
	if lots == nil {
		lots = []model.PurchaseLot{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.persistSnapshot(ctx, op, sanitized)
	s.persistLots(ctx, op, lots)
	s.snapshot = sanitized
	s.customLots = lots
	s.setActiveLocked(ctx, op, id, saved.Name)

	return true
}

// DeleteSavedPortfolio deactivates the portfolio when it was the active one.
func (s *Store) DeleteSavedPortfolio(ctx context.Context, id string) bool {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Store.DeleteSavedPortfolio"

	s.mu.Lock()
	defer s.mu.Unlock()

	deleted, err := s.storage.DeletePortfolio(ctx, id)
	if err != nil {
		slog.Warn("failed to persist portfolio deletion", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	if deleted && s.activePortfolioID == id {
		s.activePortfolioID = ""
		s.activePortfolioName = ""
	}

	return deleted
}

func (s *Store) RenameSavedPortfolio(ctx context.Context, id, name string) bool {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Store.RenameSavedPortfolio"

	s.mu.Lock()
	defer s.mu.Unlock()

	renamed, err := s.storage.RenamePortfolio(ctx, id, name)
	if err != nil {
		slog.Warn("failed to persist portfolio rename", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	if renamed && s.activePortfolioID == id {
		s.activePortfolioName = name
	}

	return renamed
}

func (s *Store) GetSavedPortfolios(ctx context.Context) []model.PortfolioMetadata {
	return s.storage.GetPortfolioMetadataList(ctx)
}

// CreateNewPortfolio starts over from the sample snapshot with an empty ledger and
// saves the result as a new active portfolio. It returns the new id.
func (s *Store) CreateNewPortfolio(ctx context.Context, name string) string {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Store.CreateNewPortfolio"

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	snapshot := sanitize(sample.Portfolio())
	lots := []model.PurchaseLot{}

	s.persistSnapshot(ctx, op, snapshot)
	s.persistLots(ctx, op, lots)
	s.snapshot = snapshot
	s.customLots = lots
	s.setActiveLocked(ctx, op, id, name)

	_, err := s.storage.SavePortfolio(ctx, id, name, snapshot.Clone(), slices.Clone(lots))
	if err != nil {
		slog.Warn("failed to persist new portfolio", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	return id
}

func (s *Store) setActiveLocked(ctx context.Context, op, id, name string) {
	if err := s.storage.SetActivePortfolioID(ctx, id); err != nil {
		slog.Warn("failed to persist active portfolio id", slog.String("rqID", utils.GetRequestIDFromCtx(ctx)), slog.String("op", op), slog.String("err", err.Error()))
	}
	s.activePortfolioID = id
	s.activePortfolioName = name
}

func (s *Store) persistSnapshot(ctx context.Context, op string, snapshot model.PortfolioSnapshot) {
	if err := s.storage.PersistSnapshot(ctx, snapshot); err != nil {
		slog.Warn("failed to persist snapshot", slog.String("rqID", utils.GetRequestIDFromCtx(ctx)), slog.String("op", op), slog.String("err", err.Error()))
	}
}

func (s *Store) persistLots(ctx context.Context, op string, lots []model.PurchaseLot) {
	if err := s.storage.PersistCustomLots(ctx, lots); err != nil {
		slog.Warn("failed to persist purchase lots", slog.String("rqID", utils.GetRequestIDFromCtx(ctx)), slog.String("op", op), slog.String("err", err.Error()))
	}
}

func sanitize(snapshot model.PortfolioSnapshot) model.PortfolioSnapshot {
	res := snapshot.Clone()
	for i := range res.Equities {
		res.Equities[i].Shares = 0
	}
	return res
}

// seedLots turns snapshot-held shares into lots priced at the average cost.
func seedLots(snapshot model.PortfolioSnapshot) []model.PurchaseLot {
	var res []model.PurchaseLot
	for _, e := range snapshot.Equities {
		if e.Shares <= 0 {
			continue
		}
		res = append(res, model.PurchaseLot{
			ID:            fmt.Sprintf("seed-%s-%d", e.Symbol, len(res)),
			Symbol:        e.Symbol,
			TradeDate:     snapshot.AsOf,
			Shares:        e.Shares,
			PricePerShare: e.AverageCost,
		})
	}
	return res
}

func mergeSeedLots(existing, seeds []model.PurchaseLot) []model.PurchaseLot {
	has := make(map[string]bool, len(existing))
	for _, l := range existing {
		has[model.NormalizeSymbol(l.Symbol)] = true
	}
	for _, seed := range seeds {
		if !has[model.NormalizeSymbol(seed.Symbol)] {
			existing = append(existing, seed)
		}
	}
	return existing
}

func cloneStatus(status model.FetchStatus) model.FetchStatus {
	if status.LastUpdated != nil {
		t := *status.LastUpdated
		status.LastUpdated = &t
	}
	return status
}
