// Package models defines the core domain records for the poker ledger.
//
// # Records
//
//   - Event: a named multi-day poker event (e.g. "Friday Game - 2025-01-10")
//   - Player: one player's chip history within an event
//   - SettlementEdge: a directed payment obligation between two players
//
// Players are identified by name strings scoped to their event; names are
// unique within an event, compared case-insensitively.
//
// # Derived fields
//
// Player.PL and Player.DaysPlayed are always recomputed from the raw per-day
// values on save. They are persisted as a cache for cheap reads but are never
// a source of truth; the day values and buy-in count are.
//
// All currency amounts use shopspring/decimal so that accumulating up to
// seven per-day terms never picks up binary floating-point error.
package models
