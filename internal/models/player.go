package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// MaxDays is the number of day slots tracked per player.
	MaxDays = 7
)

var (
	// DefaultStake is the starting stake assumed when a player record
	// does not specify one.
	DefaultStake = decimal.NewFromInt(20)

	// BuyInValue is the fixed worth of a single buy-in.
	BuyInValue = decimal.NewFromInt(20)
)

// Player is one player's record within an event.
type Player struct {
	// Name identifies the player within the event (case-insensitive unique).
	Name string `json:"name"`

	// Phone is optional contact info.
	Phone string `json:"phone,omitempty"`

	// Start is the stake each played day begins with.
	Start decimal.Decimal `json:"start"`

	// BuyIns is the number of additional buy-ins taken, each worth BuyInValue.
	BuyIns int `json:"buyins"`

	// Days holds up to MaxDays ending chip counts. An invalid entry means
	// the player did not play that day. A valid zero means they busted.
	Days [MaxDays]decimal.NullDecimal `json:"days"`

	// PL is the derived profit/loss. Recomputed on every save.
	PL decimal.Decimal `json:"pl"`

	// DaysPlayed is the derived count of days with a recorded ending value.
	DaysPlayed int `json:"days_played"`
}

// ParseDay converts a raw day field into its stored form. An empty (or
// whitespace-only) field means the day was not played; a non-numeric field is
// treated the same way rather than as an error. A parseable "0" is a valid
// played day: the player busted, they did not skip.
func ParseDay(raw string) decimal.NullDecimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// SettlementEdge is a directed payment obligation within an event.
// The edge set is derived from current player P/L values; only Paid is
// independent persistent state, keyed by the (From, To) pair.
type SettlementEdge struct {
	// From is the debtor's player name.
	From string `json:"from"`

	// To is the creditor's player name.
	To string `json:"to"`

	// Amount is the transfer amount, always positive.
	Amount decimal.Decimal `json:"amount"`

	// Paid records whether this transfer has been made.
	Paid bool `json:"paid"`
}
