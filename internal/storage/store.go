// Package storage provides abstractions for persistent event data storage.
package storage

import (
	"context"

	"github.com/indranil/pokerledger/internal/models"
)

// Store defines the interface for event storage operations.
// This abstraction allows swapping storage backends (JSON files, SQLite)
// without changing the service layer.
//
// All write methods must be atomic from the caller's point of view: a
// concurrent reader never observes a half-written record, and a crash during
// a save leaves either the old or the new record, never a mix. Writes to the
// same resource are serialized by the backend; operations on different
// events are independent.
type Store interface {
	// ListEvents returns all events, newest first.
	ListEvents(ctx context.Context) ([]models.Event, error)

	// CreateEvent adds a new event. Returns ErrExists if the name is taken.
	CreateEvent(ctx context.Context, event models.Event) error

	// DeleteEvent removes an event and cascades to its players and
	// settlement flags. Returns ErrNotFound for an unknown event.
	DeleteEvent(ctx context.Context, name string) error

	// EventExists reports whether the named event is present.
	EventExists(ctx context.Context, name string) (bool, error)

	// GetPlayers returns the player records for an event in saved order.
	// An existing event with no players yields an empty slice.
	GetPlayers(ctx context.Context, event string) ([]models.Player, error)

	// SavePlayers replaces the full player list for an event. Partial
	// patches are deliberately not supported: full-record replace avoids
	// lost-update races between concurrent editors.
	SavePlayers(ctx context.Context, event string, players []models.Player) error

	// ClearEvent removes an event's players and settlement flags while
	// keeping the event itself.
	ClearEvent(ctx context.Context, event string) error

	// GetSettlements returns the stored settlement edges for an event.
	GetSettlements(ctx context.Context, event string) ([]models.SettlementEdge, error)

	// ReplaceSettlements swaps in a freshly computed edge set for an
	// event, discarding the previous set.
	ReplaceSettlements(ctx context.Context, event string, edges []models.SettlementEdge) error

	// SetSettlementPaid upserts the paid flag for the (from, to) pair.
	SetSettlementPaid(ctx context.Context, event, from, to string, paid bool) error

	// Export serializes the complete store contents into the snapshot
	// form consumed by the remote sync adapter.
	Export(ctx context.Context) ([]byte, error)

	// Ping verifies the backing medium is reachable and each critical
	// record loads, without mutating anything.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// Snapshot is the backend-agnostic serialized form of the whole store,
// pushed to the remote sync target. Any backend must produce this shape so
// the remote copy is readable regardless of which backend wrote it.
type Snapshot struct {
	Events      []models.Event                     `json:"events"`
	Players     map[string][]models.Player         `json:"players"`
	Settlements map[string][]models.SettlementEdge `json:"settlements"`
}
