// Package sqlite provides a SQLite-backed implementation of the
// storage.Store interface. Atomicity comes from SQLite transactions rather
// than the file store's rename protocol; the interface guarantees are the
// same either way.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/indranil/pokerledger/internal/metrics"
	"github.com/indranil/pokerledger/internal/models"
	"github.com/indranil/pokerledger/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ListEvents returns all events, newest first.
func (s *SQLiteStore) ListEvents(ctx context.Context) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, created_at FROM events ORDER BY created_at DESC, name ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.Name, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

// CreateEvent adds a new event.
func (s *SQLiteStore) CreateEvent(ctx context.Context, event models.Event) error {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM events WHERE name = ? COLLATE NOCASE", event.Name).Scan(&one)
	if err == nil {
		return fmt.Errorf("event %q: %w", event.Name, storage.ErrExists)
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check event existence: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO events (name, created_at) VALUES (?, ?)",
		event.Name, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	metrics.StoreWrites.Inc()
	return nil
}

// DeleteEvent removes an event; players and settlement flags cascade.
func (s *SQLiteStore) DeleteEvent(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE name = ? COLLATE NOCASE", name)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("event %q: %w", name, storage.ErrNotFound)
	}
	metrics.StoreWrites.Inc()
	return nil
}

// EventExists reports whether the named event is present.
func (s *SQLiteStore) EventExists(ctx context.Context, name string) (bool, error) {
	_, err := s.resolveEvent(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// resolveEvent returns the stored spelling of the event name. Lookups follow
// the same case-insensitive rule as CreateEvent's duplicate check; the stored
// spelling is what child rows reference.
func (s *SQLiteStore) resolveEvent(ctx context.Context, name string) (string, error) {
	var canonical string
	err := s.db.QueryRowContext(ctx,
		"SELECT name FROM events WHERE name = ? COLLATE NOCASE", name).Scan(&canonical)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("event %q: %w", name, storage.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve event: %w", err)
	}
	return canonical, nil
}

const playerColumns = "name, phone, start, buyins, day1, day2, day3, day4, day5, day6, day7, pl, days_played"

func scanPlayer(rows *sql.Rows) (models.Player, error) {
	var p models.Player
	var phone sql.NullString
	var start, pl string
	days := make([]sql.NullString, models.MaxDays)

	if err := rows.Scan(&p.Name, &phone, &start, &p.BuyIns,
		&days[0], &days[1], &days[2], &days[3], &days[4], &days[5], &days[6],
		&pl, &p.DaysPlayed); err != nil {
		return p, err
	}

	p.Phone = phone.String
	var err error
	if p.Start, err = decimal.NewFromString(start); err != nil {
		return p, fmt.Errorf("bad start value %q: %w", start, err)
	}
	if p.PL, err = decimal.NewFromString(pl); err != nil {
		return p, fmt.Errorf("bad pl value %q: %w", pl, err)
	}
	for i, d := range days {
		if d.Valid {
			p.Days[i] = models.ParseDay(d.String)
		}
	}
	return p, nil
}

// GetPlayers returns an event's players in saved order.
func (s *SQLiteStore) GetPlayers(ctx context.Context, event string) ([]models.Player, error) {
	event, err := s.resolveEvent(ctx, event)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+playerColumns+" FROM players WHERE event_name = ? ORDER BY row_order", event)
	if err != nil {
		return nil, fmt.Errorf("failed to get players: %w", err)
	}
	defer rows.Close()

	var players []models.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate players: %w", err)
	}
	return players, nil
}

// SavePlayers replaces the full player list for an event in one transaction.
func (s *SQLiteStore) SavePlayers(ctx context.Context, event string, players []models.Player) error {
	event, err := s.resolveEvent(ctx, event)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM players WHERE event_name = ?", event); err != nil {
		return fmt.Errorf("failed to clear players: %w", err)
	}

	for i, p := range players {
		args := []any{uuid.New().String(), event, p.Name, nullString(p.Phone), p.Start.String(), p.BuyIns}
		for _, d := range p.Days {
			if d.Valid {
				args = append(args, d.Decimal.String())
			} else {
				args = append(args, nil)
			}
		}
		args = append(args, p.PL.String(), p.DaysPlayed, i)

		_, err := tx.ExecContext(ctx,
			`INSERT INTO players (id, event_name, `+playerColumns+`, row_order)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			args...)
		if err != nil {
			return fmt.Errorf("failed to insert player %q: %w", p.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	metrics.StoreWrites.Inc()
	return nil
}

// ClearEvent drops an event's players and settlement flags.
func (s *SQLiteStore) ClearEvent(ctx context.Context, event string) error {
	event, err := s.resolveEvent(ctx, event)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM players WHERE event_name = ?", event); err != nil {
		return fmt.Errorf("failed to clear players: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM settlement_payments WHERE event_name = ?", event); err != nil {
		return fmt.Errorf("failed to clear settlements: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	metrics.StoreWrites.Inc()
	return nil
}

// GetSettlements returns the stored settlement edges for an event.
func (s *SQLiteStore) GetSettlements(ctx context.Context, event string) ([]models.SettlementEdge, error) {
	event, err := s.resolveEvent(ctx, event)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT from_player, to_player, amount, paid FROM settlement_payments
		 WHERE event_name = ? ORDER BY CAST(amount AS REAL) DESC, from_player, to_player`, event)
	if err != nil {
		return nil, fmt.Errorf("failed to get settlements: %w", err)
	}
	defer rows.Close()

	var edges []models.SettlementEdge
	for rows.Next() {
		var e models.SettlementEdge
		var amount string
		if err := rows.Scan(&e.From, &e.To, &amount, &e.Paid); err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("bad settlement amount %q: %w", amount, err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settlements: %w", err)
	}
	return edges, nil
}

// ReplaceSettlements swaps in a freshly computed edge set for an event.
func (s *SQLiteStore) ReplaceSettlements(ctx context.Context, event string, edges []models.SettlementEdge) error {
	event, err := s.resolveEvent(ctx, event)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM settlement_payments WHERE event_name = ?", event); err != nil {
		return fmt.Errorf("failed to clear settlements: %w", err)
	}
	for _, e := range edges {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO settlement_payments (id, event_name, from_player, to_player, amount, paid)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), event, e.From, e.To, e.Amount.String(), e.Paid)
		if err != nil {
			return fmt.Errorf("failed to insert settlement %s->%s: %w", e.From, e.To, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	metrics.StoreWrites.Inc()
	return nil
}

// SetSettlementPaid upserts the paid flag for the (from, to) pair.
func (s *SQLiteStore) SetSettlementPaid(ctx context.Context, event, from, to string, paid bool) error {
	event, err := s.resolveEvent(ctx, event)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO settlement_payments (id, event_name, from_player, to_player, amount, paid)
		 VALUES (?, ?, ?, ?, '0', ?)
		 ON CONFLICT (event_name, from_player, to_player) DO UPDATE SET paid = excluded.paid`,
		uuid.New().String(), event, from, to, paid)
	if err != nil {
		return fmt.Errorf("failed to upsert settlement paid flag: %w", err)
	}
	metrics.StoreWrites.Inc()
	return nil
}

// Export serializes the complete store contents.
func (s *SQLiteStore) Export(ctx context.Context) ([]byte, error) {
	events, err := s.ListEvents(ctx)
	if err != nil {
		return nil, err
	}

	snap := storage.Snapshot{
		Events:      events,
		Players:     make(map[string][]models.Player),
		Settlements: make(map[string][]models.SettlementEdge),
	}
	for _, e := range events {
		players, err := s.GetPlayers(ctx, e.Name)
		if err != nil {
			return nil, err
		}
		if len(players) > 0 {
			snap.Players[e.Name] = players
		}
		edges, err := s.GetSettlements(ctx, e.Name)
		if err != nil {
			return nil, err
		}
		if len(edges) > 0 {
			snap.Settlements[e.Name] = edges
		}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

// Ping verifies the database and each critical table is readable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	for _, table := range []string{"events", "players", "settlement_payments"} {
		var n int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return fmt.Errorf("table %s unreadable: %w", table, err)
		}
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
