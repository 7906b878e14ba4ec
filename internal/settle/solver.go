// Package settle turns a set of per-player profit/loss balances into a
// minimal list of pairwise transfers using greedy debt netting: the largest
// outstanding debtor always pays the largest outstanding creditor.
package settle

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Epsilon is the tolerance below which a remaining balance is considered
// settled. Balances are decimal amounts rendered to two places, so anything
// under a cent is noise.
var Epsilon = decimal.RequireFromString("0.01")

// Edge is a single directed transfer: From pays To the given Amount.
type Edge struct {
	From   string
	To     string
	Amount decimal.Decimal
}

// Residual reports any balance left unsettled because total credits and
// total debits did not match. For a closed zero-rake game it is zero; a
// nonzero residual indicates a data entry problem and should be surfaced as
// a warning, not hidden.
type Residual struct {
	// Amount is the unmatched balance, always non-negative.
	Amount decimal.Decimal

	// Creditors is true when the leftover sits on the creditor side
	// (players are owed more than debtors can pay), false for the
	// debtor side. Meaningless when Amount is zero.
	Creditors bool
}

// IsZero reports whether the residual is within tolerance of zero.
func (r Residual) IsZero() bool {
	return r.Amount.Cmp(Epsilon) < 0
}

type party struct {
	name      string
	remaining decimal.Decimal
}

// Solve computes the transfer list for the given name -> P/L mapping.
//
// The result is deterministic: ties between equal balances are broken by
// name, so repeated runs on the same input produce the same edges in the
// same order. That stability is what allows paid flags to be carried
// forward across recomputations by (debtor, creditor) pair.
func Solve(balances map[string]decimal.Decimal) ([]Edge, Residual) {
	var creditors, debtors []party
	for name, pl := range balances {
		switch {
		case pl.Cmp(Epsilon) >= 0:
			creditors = append(creditors, party{name: name, remaining: pl})
		case pl.Neg().Cmp(Epsilon) >= 0:
			debtors = append(debtors, party{name: name, remaining: pl.Neg()})
		}
	}

	// Stable starting order so the largest-remaining scan below has a
	// deterministic tie-break regardless of map iteration order.
	sort.Slice(creditors, func(i, j int) bool { return creditors[i].name < creditors[j].name })
	sort.Slice(debtors, func(i, j int) bool { return debtors[i].name < debtors[j].name })

	var edges []Edge
	for len(debtors) > 0 && len(creditors) > 0 {
		di := largest(debtors)
		ci := largest(creditors)

		amount := decimal.Min(debtors[di].remaining, creditors[ci].remaining)
		edges = append(edges, Edge{
			From:   debtors[di].name,
			To:     creditors[ci].name,
			Amount: amount,
		})

		debtors[di].remaining = debtors[di].remaining.Sub(amount)
		creditors[ci].remaining = creditors[ci].remaining.Sub(amount)

		if debtors[di].remaining.Cmp(Epsilon) < 0 {
			debtors = append(debtors[:di], debtors[di+1:]...)
		}
		if creditors[ci].remaining.Cmp(Epsilon) < 0 {
			creditors = append(creditors[:ci], creditors[ci+1:]...)
		}
	}

	residual := Residual{Amount: decimal.Zero}
	for _, p := range creditors {
		residual.Amount = residual.Amount.Add(p.remaining)
		residual.Creditors = true
	}
	for _, p := range debtors {
		residual.Amount = residual.Amount.Add(p.remaining)
	}
	return edges, residual
}

// largest returns the index of the party with the biggest remaining balance.
// Slices are kept name-sorted, so the first maximum found is also the
// name-wise tie-break winner.
func largest(parties []party) int {
	best := 0
	for i := 1; i < len(parties); i++ {
		if parties[i].remaining.Cmp(parties[best].remaining) > 0 {
			best = i
		}
	}
	return best
}
