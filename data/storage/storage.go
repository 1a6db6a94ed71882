// Package storage persists the active portfolio and the saved portfolios as JSON
// records in a key-value backend. Reads never fail: missing or corrupt records
// yield the caller's fallback. Writes return errors for the caller to log.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/KotFed0t/dividend_tracker/data/repository"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/utils"
)

const (
	keyCustomLots      = "portfolio-custom-lots"
	keySnapshot        = "portfolio-snapshot"
	keySavedPortfolios = "saved-portfolios"
	keyActivePortfolio = "active-portfolio-id"
)

type KeyValue interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
}

type Storage struct {
	kv  KeyValue
	now func() time.Time
}

func New(kv KeyValue) *Storage {
	return &Storage{kv: kv, now: time.Now}
}

func load[T any](ctx context.Context, kv KeyValue, key string, parser func([]byte) (T, error), fallback T) T {
	rqID := utils.GetRequestIDFromCtx(ctx)

	raw, err := kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Warn("failed to load record from storage", slog.String("rqID", rqID), slog.String("key", key), slog.String("err", err.Error()))
		}
		return fallback
	}
	if len(raw) == 0 {
		return fallback
	}

	res, err := parser(raw)
	if err != nil {
		slog.Warn("stored record is corrupt, using fallback", slog.String("rqID", rqID), slog.String("key", key), slog.String("err", err.Error()))
		return fallback
	}

	return res
}

func (s *Storage) persist(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, key, raw, 0)
}

func (s *Storage) LoadCustomLots(ctx context.Context, parser func([]byte) ([]model.PurchaseLot, error), fallback []model.PurchaseLot) []model.PurchaseLot {
	return load(ctx, s.kv, keyCustomLots, parser, fallback)
}

func (s *Storage) PersistCustomLots(ctx context.Context, lots []model.PurchaseLot) error {
	if lots == nil {
		lots = []model.PurchaseLot{}
	}
	return s.persist(ctx, keyCustomLots, lots)
}

func (s *Storage) ClearCustomLots(ctx context.Context) error {
	return s.kv.Delete(ctx, keyCustomLots)
}

func (s *Storage) LoadSnapshot(ctx context.Context, parser func([]byte) (*model.PortfolioSnapshot, error), fallback *model.PortfolioSnapshot) *model.PortfolioSnapshot {
	return load(ctx, s.kv, keySnapshot, parser, fallback)
}

func (s *Storage) PersistSnapshot(ctx context.Context, snapshot model.PortfolioSnapshot) error {
	return s.persist(ctx, keySnapshot, snapshot)
}

func (s *Storage) ClearSnapshot(ctx context.Context) error {
	return s.kv.Delete(ctx, keySnapshot)
}

func (s *Storage) LoadSavedPortfolios(ctx context.Context) []model.SavedPortfolio {
	return load(ctx, s.kv, keySavedPortfolios, func(raw []byte) ([]model.SavedPortfolio, error) {
		var list []model.SavedPortfolio
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return list, nil
	}, []model.SavedPortfolio{})
}

func (s *Storage) SaveSavedPortfolios(ctx context.Context, portfolios []model.SavedPortfolio) error {
	if portfolios == nil {
		portfolios = []model.SavedPortfolio{}
	}
	return s.persist(ctx, keySavedPortfolios, portfolios)
}

// GetActivePortfolioID returns "" when no portfolio is active.
func (s *Storage) GetActivePortfolioID(ctx context.Context) string {
	return load(ctx, s.kv, keyActivePortfolio, func(raw []byte) (string, error) {
		return string(raw), nil
	}, "")
}

// SetActivePortfolioID clears the active id when id is empty.
func (s *Storage) SetActivePortfolioID(ctx context.Context, id string) error {
	if id == "" {
		return s.kv.Delete(ctx, keyActivePortfolio)
	}
	return s.kv.Set(ctx, keyActivePortfolio, []byte(id), 0)
}

// SavePortfolio inserts or replaces the portfolio with the given id, keeping its createdAt.
func (s *Storage) SavePortfolio(ctx context.Context, id, name string, snapshot model.PortfolioSnapshot, lots []model.PurchaseLot) (model.SavedPortfolio, error) {
	portfolios := s.LoadSavedPortfolios(ctx)
	now := s.now().UTC()

	saved := model.SavedPortfolio{
		ID:         id,
		Name:       name,
		Snapshot:   snapshot,
		CustomLots: lots,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if saved.CustomLots == nil {
		saved.CustomLots = []model.PurchaseLot{}
	}

	idx := slices.IndexFunc(portfolios, func(p model.SavedPortfolio) bool { return p.ID == id })
	if idx >= 0 {
		saved.CreatedAt = portfolios[idx].CreatedAt
		portfolios[idx] = saved
	} else {
		portfolios = append(portfolios, saved)
	}

	return saved, s.SaveSavedPortfolios(ctx, portfolios)
}

func (s *Storage) LoadPortfolioByID(ctx context.Context, id string) (model.SavedPortfolio, bool) {
	portfolios := s.LoadSavedPortfolios(ctx)
	idx := slices.IndexFunc(portfolios, func(p model.SavedPortfolio) bool { return p.ID == id })
	if idx < 0 {
		return model.SavedPortfolio{}, false
	}
	return portfolios[idx], true
}

// DeletePortfolio reports whether the portfolio existed. The stored active id is
// cleared when it pointed at the deleted portfolio.
func (s *Storage) DeletePortfolio(ctx context.Context, id string) (bool, error) {
	portfolios := s.LoadSavedPortfolios(ctx)
	filtered := slices.DeleteFunc(slices.Clone(portfolios), func(p model.SavedPortfolio) bool { return p.ID == id })
	if len(filtered) == len(portfolios) {
		return false, nil
	}

	err := s.SaveSavedPortfolios(ctx, filtered)

	if s.GetActivePortfolioID(ctx) == id {
		err = errors.Join(err, s.SetActivePortfolioID(ctx, ""))
	}

	return true, err
}

func (s *Storage) RenamePortfolio(ctx context.Context, id, name string) (bool, error) {
	portfolios := s.LoadSavedPortfolios(ctx)
	idx := slices.IndexFunc(portfolios, func(p model.SavedPortfolio) bool { return p.ID == id })
	if idx < 0 {
		return false, nil
	}

	portfolios[idx].Name = name
	portfolios[idx].UpdatedAt = s.now().UTC()

	return true, s.SaveSavedPortfolios(ctx, portfolios)
}

func (s *Storage) GetPortfolioMetadataList(ctx context.Context) []model.PortfolioMetadata {
	portfolios := s.LoadSavedPortfolios(ctx)
	res := make([]model.PortfolioMetadata, 0, len(portfolios))
	for _, p := range portfolios {
		res = append(res, p.Metadata())
	}
	return res
}
