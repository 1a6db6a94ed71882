package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

var ErrInvalidLot = errors.New("invalid purchase lot")

// ValidatePurchaseLot checks a lot entered by a user. Views and metrics accept
// lots as they are.
func ValidatePurchaseLot(lot PurchaseLot) error {
	if strings.TrimSpace(lot.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidLot)
	}
	if NormalizeSymbol(lot.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidLot)
	}
	if _, err := time.Parse(DateLayout, lot.TradeDate); err != nil {
		return fmt.Errorf("%w: trade date must be YYYY-MM-DD", ErrInvalidLot)
	}
	if !(lot.Shares > 0) {
		return fmt.Errorf("%w: shares must be greater than zero", ErrInvalidLot)
	}
	if !(lot.PricePerShare > 0) {
		return fmt.Errorf("%w: price per share must be greater than zero", ErrInvalidLot)
	}
	return nil
}
