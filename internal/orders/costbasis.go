package orders

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrNonPositiveLot is returned when the incoming lot quantity is zero
	// or negative. The aggregator only ever applies buys.
	ErrNonPositiveLot = errors.New("lot quantity must be positive")
	// ErrInvalidPosition is returned when the existing position is
	// internally inconsistent: a zero quantity must never carry a nonzero
	// average price, and a negative quantity cannot exist at all.
	ErrInvalidPosition = errors.New("existing position is invalid")
)

// ApplyBuyLot folds an incoming lot into an existing position and returns
// the updated quantity and quantity-weighted average purchase price:
//
//	newAvg = (existingQty*existingAvg + lotQty*fillPrice) / (existingQty + lotQty)
//
// An empty position is expressed as (0, decimal.Zero). The divisor is the
// post-buy quantity, which is positive by construction, so the average is
// always well defined on this path. Pure function; the engine owns all
// I/O around it.
func ApplyBuyLot(existingQty int64, existingAvg decimal.Decimal, lotQty int64, fillPrice decimal.Decimal) (int64, decimal.Decimal, error) {
	if lotQty <= 0 {
		return 0, decimal.Zero, ErrNonPositiveLot
	}
	if existingQty < 0 || (existingQty == 0 && !existingAvg.IsZero()) {
		return 0, decimal.Zero, ErrInvalidPosition
	}

	newQty := existingQty + lotQty
	existingValue := existingAvg.Mul(decimal.NewFromInt(existingQty))
	lotValue := fillPrice.Mul(decimal.NewFromInt(lotQty))
	newAvg := existingValue.Add(lotValue).Div(decimal.NewFromInt(newQty))

	return newQty, newAvg, nil
}
