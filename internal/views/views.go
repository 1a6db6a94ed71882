// Package views reconciles a snapshot with the purchase-lot ledger.
package views

import (
	"cmp"
	"slices"

	"github.com/KotFed0t/dividend_tracker/internal/model"
)

type lotGroup struct {
	symbol string
	lots   []model.PurchaseLot
}

type lotAggregate struct {
	totalShares float64
	totalCost   float64
	earliest    string
}

// DeriveEquityViews returns one view per distinct symbol of the snapshot and the
// ledger, sorted by symbol with byte-wise comparison. It does not mutate its inputs.
func DeriveEquityViews(snapshot model.PortfolioSnapshot, lots []model.PurchaseLot) []model.EquityWithLots {
	groups, order := groupLots(lots)

	res := make([]model.EquityWithLots, 0, len(snapshot.Equities)+len(groups))

	for _, equity := range snapshot.Equities {
		key := model.NormalizeSymbol(equity.Symbol)
		var symbolLots []model.PurchaseLot
		if g, ok := groups[key]; ok {
			symbolLots = g.lots
			delete(groups, key)
		}
		res = append(res, reconcile(equity, symbolLots))
	}

	for _, key := range order {
		g, ok := groups[key]
		if !ok {
			continue
		}
		res = append(res, lotsOnly(g))
	}

	slices.SortStableFunc(res, func(a, b model.EquityWithLots) int {
		return cmp.Compare(a.Position.Symbol, b.Position.Symbol)
	})

	return res
}

// AggregateLots sums shares and cost (shares × price) of the given lots.
func AggregateLots(lots []model.PurchaseLot) (totalShares, totalCost float64) {
	a := aggregate(lots)
	return a.totalShares, a.totalCost
}

// LotsForSymbol returns the lots whose symbol matches case-insensitively.
func LotsForSymbol(lots []model.PurchaseLot, symbol string) []model.PurchaseLot {
	key := model.NormalizeSymbol(symbol)
	var res []model.PurchaseLot
	for _, lot := range lots {
		if model.NormalizeSymbol(lot.Symbol) == key {
			res = append(res, lot)
		}
	}
	return res
}

func groupLots(lots []model.PurchaseLot) (map[string]*lotGroup, []string) {
	groups := make(map[string]*lotGroup)
	order := make([]string, 0)

	for _, lot := range lots {
		key := model.NormalizeSymbol(lot.Symbol)
		g, ok := groups[key]
		if !ok {
			g = &lotGroup{symbol: key}
			groups[key] = g
			order = append(order, key)
		}
		lot.Symbol = key
		g.lots = append(g.lots, lot)
	}

	return groups, order
}

func aggregate(lots []model.PurchaseLot) lotAggregate {
	var a lotAggregate
	for _, lot := range lots {
		a.totalShares += lot.Shares
		a.totalCost += lot.Shares * lot.PricePerShare
		if a.earliest == "" || lot.TradeDate < a.earliest {
			a.earliest = lot.TradeDate
		}
	}
	return a
}

func reconcile(equity model.EquityPosition, lots []model.PurchaseLot) model.EquityWithLots {
	a := aggregate(lots)
	position := equity.Clone()

	eligible := make([]model.DividendPayment, 0, len(equity.Dividends))
	for _, d := range equity.Dividends {
		if a.earliest == "" || d.Date >= a.earliest {
			eligible = append(eligible, d)
		}
	}

	withShares := make([]model.DividendPaymentWithShares, 0, len(eligible))
	for _, d := range eligible {
		owned := equity.Shares
		for _, lot := range lots {
			if lot.TradeDate <= d.Date {
				owned += lot.Shares
			}
		}
		withShares = append(withShares, model.DividendPaymentWithShares{DividendPayment: d, SharesOwned: owned})
	}

	if a.totalShares > 0 {
		combined := equity.Shares + a.totalShares
		if combined != 0 {
			position.AverageCost = (equity.Shares*equity.AverageCost + a.totalCost) / combined
		}
		position.Shares = combined
	}
	position.Dividends = eligible

	return model.EquityWithLots{
		Position:                position,
		ManualLots:              lotsOrEmpty(lots),
		ManualTotalShares:       a.totalShares,
		ManualTotalCost:         a.totalCost,
		EarliestAcquisitionDate: a.earliest,
		DividendsWithShares:     withShares,
	}
}

func lotsOnly(g *lotGroup) model.EquityWithLots {
	a := aggregate(g.lots)

	var avg float64
	if a.totalShares != 0 {
		avg = a.totalCost / a.totalShares
	}

	// the last lot in ledger order is the most recently entered one
	price := avg
	if n := len(g.lots); n > 0 {
		price = g.lots[n-1].PricePerShare
	}

	return model.EquityWithLots{
		Position: model.EquityPosition{
			Symbol:       g.symbol,
			Name:         g.symbol,
			Sector:       model.ManualEntrySector,
			Shares:       a.totalShares,
			AverageCost:  avg,
			CurrentPrice: price,
			Dividends:    []model.DividendPayment{},
			NavHistory:   []model.NavPoint{},
		},
		ManualLots:              g.lots,
		ManualTotalShares:       a.totalShares,
		ManualTotalCost:         a.totalCost,
		EarliestAcquisitionDate: a.earliest,
		DividendsWithShares:     []model.DividendPaymentWithShares{},
	}
}

func lotsOrEmpty(lots []model.PurchaseLot) []model.PurchaseLot {
	if lots == nil {
		return []model.PurchaseLot{}
	}
	return lots
}
