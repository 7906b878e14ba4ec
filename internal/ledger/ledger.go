// Package ledger computes a player's profit/loss from their raw daily chip
// counts and buy-in count. It is a pure function of its inputs and assumes
// they have already been validated at the store boundary.
package ledger

import (
	"github.com/shopspring/decimal"
)

// Compute returns the total profit/loss and the number of days played.
//
// Each recorded day is an independent session that began with start and ended
// with the recorded value, contributing (value - start). The total buy-in
// cost (buyIns * buyInValue) is subtracted once across the whole event.
//
// A player with no recorded days has a P/L of exactly zero regardless of
// buy-ins: an empty record is incomplete data entry, not a loss.
func Compute(start decimal.Decimal, buyIns int, buyInValue decimal.Decimal, days []decimal.NullDecimal) (decimal.Decimal, int) {
	pl := decimal.Zero
	played := 0

	for _, day := range days {
		if !day.Valid {
			continue
		}
		played++
		pl = pl.Add(day.Decimal.Sub(start))
	}

	if played == 0 {
		return decimal.Zero, 0
	}

	investment := buyInValue.Mul(decimal.NewFromInt(int64(buyIns)))
	return pl.Sub(investment), played
}
