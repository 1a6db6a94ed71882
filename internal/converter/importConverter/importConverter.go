// Package importConverter validates portfolio files and stored records and turns
// them into domain types. Malformed list entries are dropped; a malformed equity
// rejects the whole snapshot.
package importConverter

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/KotFed0t/dividend_tracker/internal/model"
)

var ErrInvalidSnapshot = errors.New("invalid snapshot")

// ValidationError carries a message meant to be shown to the user as is.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidSnapshot
}

func invalid(msg string) error {
	return &ValidationError{Msg: msg}
}

// ReadSnapshotFile parses the contents of an uploaded portfolio file. Both a bare
// snapshot and the {snapshot, customLots} export form are accepted.
func ReadSnapshotFile(data []byte) (model.PortfolioExport, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.PortfolioExport{}, invalid("File is not valid JSON")
	}
	return ParseImport(raw)
}

func ParseImport(raw any) (model.PortfolioExport, error) {
	candidate, ok := raw.(map[string]any)
	if !ok {
		return model.PortfolioExport{}, invalid("Snapshot must be an object")
	}

	if wrapped, ok := candidate["snapshot"].(map[string]any); ok {
		snapshot, err := ParseSnapshot(wrapped)
		if err != nil {
			return model.PortfolioExport{}, err
		}

		lots := []model.PurchaseLot{}
		if rawLots, ok := candidate["customLots"].([]any); ok {
			lots = normalizeLots(rawLots)
		}

		return model.PortfolioExport{Snapshot: snapshot, CustomLots: lots}, nil
	}

	snapshot, err := ParseSnapshot(candidate)
	if err != nil {
		return model.PortfolioExport{}, err
	}

	return model.PortfolioExport{Snapshot: snapshot, CustomLots: []model.PurchaseLot{}}, nil
}

func ParseSnapshot(raw any) (model.PortfolioSnapshot, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return model.PortfolioSnapshot{}, invalid("Snapshot must be an object")
	}

	asOf, ok := obj["asOf"].(string)
	if !ok {
		return model.PortfolioSnapshot{}, invalid(`Snapshot requires an "asOf" ISO date string`)
	}

	rawEquities, ok := obj["equities"].([]any)
	if !ok {
		return model.PortfolioSnapshot{}, invalid("Snapshot requires an array of equities with valid fields")
	}

	equities := make([]model.EquityPosition, 0, len(rawEquities))
	for _, rawEquity := range rawEquities {
		equity, ok := normalizeEquity(rawEquity)
		if !ok {
			return model.PortfolioSnapshot{}, invalid("One or more equities contain invalid fields")
		}
		equities = append(equities, equity)
	}

	snapshot := model.PortfolioSnapshot{
		AsOf:     asOf,
		Equities: equities,
	}
	if v, ok := obj["cashPosition"].(float64); ok {
		snapshot.CashPosition = &v
	}
	if v, ok := obj["seedAmount"].(float64); ok {
		snapshot.SeedAmount = &v
	}
	if v, ok := obj["seedDate"].(string); ok {
		snapshot.SeedDate = v
	}
	snapshot.LastPriceUpdate = parseTimestamp(obj["lastPriceUpdate"])
	snapshot.LastDividendUpdate = parseTimestamp(obj["lastDividendUpdate"])

	return snapshot, nil
}

// ParseStoredLots decodes the persisted lot ledger, keeping only well-formed lots.
func ParseStoredLots(data []byte) ([]model.PurchaseLot, error) {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return normalizeLots(raw), nil
}

// ParseStoredSnapshot decodes the persisted active snapshot.
func ParseStoredSnapshot(data []byte) (*model.PortfolioSnapshot, error) {
	var shape struct {
		AsOf     *string           `json:"asOf"`
		Equities []json.RawMessage `json:"equities"`
	}
	if err := json.Unmarshal(data, &shape); err != nil {
		return nil, err
	}
	if shape.AsOf == nil || shape.Equities == nil {
		return nil, ErrInvalidSnapshot
	}

	snapshot := &model.PortfolioSnapshot{}
	if err := json.Unmarshal(data, snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Export renders the file accepted back by ReadSnapshotFile.
func Export(snapshot model.PortfolioSnapshot, lots []model.PurchaseLot) ([]byte, error) {
	out := model.PortfolioExport{Snapshot: snapshot.Clone(), CustomLots: lots}
	if out.CustomLots == nil {
		out.CustomLots = []model.PurchaseLot{}
	}
	if out.Snapshot.Equities == nil {
		out.Snapshot.Equities = []model.EquityPosition{}
	}
	for i := range out.Snapshot.Equities {
		if out.Snapshot.Equities[i].Dividends == nil {
			out.Snapshot.Equities[i].Dividends = []model.DividendPayment{}
		}
		if out.Snapshot.Equities[i].NavHistory == nil {
			out.Snapshot.Equities[i].NavHistory = []model.NavPoint{}
		}
	}
	return json.MarshalIndent(out, "", "  ")
}

func normalizeEquity(raw any) (model.EquityPosition, bool) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return model.EquityPosition{}, false
	}

	symbol, ok1 := obj["symbol"].(string)
	name, ok2 := obj["name"].(string)
	sector, ok3 := obj["sector"].(string)
	shares, ok4 := obj["shares"].(float64)
	averageCost, ok5 := obj["averageCost"].(float64)
	currentPrice, ok6 := obj["currentPrice"].(float64)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
		return model.EquityPosition{}, false
	}

	equity := model.EquityPosition{
		Symbol:       symbol,
		Name:         name,
		Sector:       sector,
		Shares:       shares,
		AverageCost:  averageCost,
		CurrentPrice: currentPrice,
		Dividends:    []model.DividendPayment{},
		NavHistory:   []model.NavPoint{},
	}

	if rawDividends, ok := obj["dividends"].([]any); ok {
		for _, rd := range rawDividends {
			if d, ok := normalizeDividend(rd); ok {
				equity.Dividends = append(equity.Dividends, d)
			}
		}
	}

	if rawNav, ok := obj["navHistory"].([]any); ok {
		for _, rn := range rawNav {
			if p, ok := normalizeNavPoint(rn); ok {
				equity.NavHistory = append(equity.NavHistory, p)
			}
		}
	}

	return equity, true
}

// normalizeDividend accepts the legacy "amount" field when "amountPerShare" is absent.
func normalizeDividend(raw any) (model.DividendPayment, bool) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return model.DividendPayment{}, false
	}

	amount, ok := obj["amountPerShare"].(float64)
	if !ok {
		amount, ok = obj["amount"].(float64)
	}
	id, okID := obj["id"].(string)
	date, okDate := obj["date"].(string)
	if !(ok && okID && okDate) {
		return model.DividendPayment{}, false
	}

	return model.DividendPayment{ID: id, Date: date, AmountPerShare: amount}, true
}

func normalizeNavPoint(raw any) (model.NavPoint, bool) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return model.NavPoint{}, false
	}

	date, okDate := obj["date"].(string)
	value, okValue := obj["value"].(float64)
	if !(okDate && okValue) {
		return model.NavPoint{}, false
	}

	return model.NavPoint{Date: date, Value: value}, true
}

func normalizeLots(raw []any) []model.PurchaseLot {
	lots := make([]model.PurchaseLot, 0, len(raw))
	for _, r := range raw {
		obj, ok := r.(map[string]any)
		if !ok {
			continue
		}

		id, ok1 := obj["id"].(string)
		symbol, ok2 := obj["symbol"].(string)
		tradeDate, ok3 := obj["tradeDate"].(string)
		shares, ok4 := obj["shares"].(float64)
		price, ok5 := obj["pricePerShare"].(float64)
		if !(ok1 && ok2 && ok3 && ok4 && ok5) {
			continue
		}

		lots = append(lots, model.PurchaseLot{
			ID:            id,
			Symbol:        symbol,
			TradeDate:     tradeDate,
			Shares:        shares,
			PricePerShare: price,
		})
	}
	return lots
}

func parseTimestamp(raw any) *time.Time {
	s, ok := raw.(string)
	if !ok {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}
