package model

import (
	"slices"
	"time"
)

type NavPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

type DividendPayment struct {
	ID             string  `json:"id"`
	Date           string  `json:"date"`
	AmountPerShare float64 `json:"amountPerShare"`
}

// DividendPaymentWithShares is a payment annotated with the shares held on its date.
// It is derived on every view computation and never persisted.
type DividendPaymentWithShares struct {
	DividendPayment
	SharesOwned float64 `json:"sharesOwned"`
}

// EquityPosition is the snapshot record of one instrument. Shares here are the
// seed/legacy count held directly in the snapshot, separate from lot-tracked shares.
type EquityPosition struct {
	Symbol       string            `json:"symbol"`
	Name         string            `json:"name"`
	Sector       string            `json:"sector"`
	Shares       float64           `json:"shares"`
	AverageCost  float64           `json:"averageCost"`
	CurrentPrice float64           `json:"currentPrice"`
	Dividends    []DividendPayment `json:"dividends"`
	NavHistory   []NavPoint        `json:"navHistory"`
}

func (p EquityPosition) Clone() EquityPosition {
	p.Dividends = slices.Clone(p.Dividends)
	p.NavHistory = slices.Clone(p.NavHistory)
	return p
}

// PurchaseLot is one acquisition. TradeDate is an ISO date (YYYY-MM-DD), so
// dates compare correctly as strings.
type PurchaseLot struct {
	ID            string  `json:"id"`
	Symbol        string  `json:"symbol"`
	TradeDate     string  `json:"tradeDate"`
	Shares        float64 `json:"shares"`
	PricePerShare float64 `json:"pricePerShare"`
}

// PurchaseLotUpdate is a partial lot edit; nil fields are left unchanged.
type PurchaseLotUpdate struct {
	Symbol        *string
	TradeDate     *string
	Shares        *float64
	PricePerShare *float64
}

func (l PurchaseLot) Apply(upd PurchaseLotUpdate) PurchaseLot {
	if upd.Symbol != nil {
		l.Symbol = *upd.Symbol
	}
	if upd.TradeDate != nil {
		l.TradeDate = *upd.TradeDate
	}
	if upd.Shares != nil {
		l.Shares = *upd.Shares
	}
	if upd.PricePerShare != nil {
		l.PricePerShare = *upd.PricePerShare
	}
	return l
}

type PortfolioSnapshot struct {
	AsOf               string           `json:"asOf"`
	Equities           []EquityPosition `json:"equities"`
	CashPosition       *float64         `json:"cashPosition,omitempty"`
	LastPriceUpdate    *time.Time       `json:"lastPriceUpdate,omitempty"`
	LastDividendUpdate *time.Time       `json:"lastDividendUpdate,omitempty"`
	SeedAmount         *float64         `json:"seedAmount,omitempty"`
	SeedDate           string           `json:"seedDate,omitempty"`
}

// Clone returns a deep copy so callers can never mutate store-owned slices.
func (s PortfolioSnapshot) Clone() PortfolioSnapshot {
	if s.Equities != nil {
		equities := make([]EquityPosition, len(s.Equities))
		for i, equity := range s.Equities {
			equities[i] = equity.Clone()
		}
		s.Equities = equities
	}
	s.CashPosition = clonePtr(s.CashPosition)
	s.LastPriceUpdate = clonePtr(s.LastPriceUpdate)
	s.LastDividendUpdate = clonePtr(s.LastDividendUpdate)
	s.SeedAmount = clonePtr(s.SeedAmount)
	return s
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

type SavedPortfolio struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Snapshot   PortfolioSnapshot `json:"snapshot"`
	CustomLots []PurchaseLot     `json:"customLots"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

func (p SavedPortfolio) Metadata() PortfolioMetadata {
	return PortfolioMetadata{
		ID:        p.ID,
		Name:      p.Name,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

type PortfolioMetadata struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EquityWithLots is the reconciled read model for one symbol.
// EarliestAcquisitionDate is empty when the symbol has no lots.
type EquityWithLots struct {
	Position                EquityPosition
	ManualLots              []PurchaseLot
	ManualTotalShares       float64
	ManualTotalCost         float64
	EarliestAcquisitionDate string
	DividendsWithShares     []DividendPaymentWithShares
}

// PortfolioExport is the file format accepted by import and produced by export.
type PortfolioExport struct {
	Snapshot   PortfolioSnapshot `json:"snapshot"`
	CustomLots []PurchaseLot     `json:"customLots"`
}
