package sqlite

import "database/sql"

// migrations contains the SQL statements to set up the database schema.
// These run on startup to ensure tables exist.
// Currency columns are TEXT holding canonical decimal strings so chip
// amounts round-trip exactly; day columns are NULL for days not played.
const schema = `
CREATE TABLE IF NOT EXISTS events (
    name TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS players (
    id TEXT PRIMARY KEY,
    event_name TEXT NOT NULL,
    name TEXT NOT NULL COLLATE NOCASE,
    phone TEXT,
    start TEXT NOT NULL,
    buyins INTEGER NOT NULL DEFAULT 0,
    day1 TEXT, day2 TEXT, day3 TEXT, day4 TEXT, day5 TEXT, day6 TEXT, day7 TEXT,
    pl TEXT NOT NULL,
    days_played INTEGER NOT NULL DEFAULT 0,
    row_order INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (event_name) REFERENCES events(name) ON DELETE CASCADE,
    UNIQUE (event_name, name)
);

CREATE TABLE IF NOT EXISTS settlement_payments (
    id TEXT PRIMARY KEY,
    event_name TEXT NOT NULL,
    from_player TEXT NOT NULL,
    to_player TEXT NOT NULL,
    amount TEXT NOT NULL,
    paid INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (event_name) REFERENCES events(name) ON DELETE CASCADE,
    UNIQUE (event_name, from_player, to_player)
);

CREATE INDEX IF NOT EXISTS idx_players_event_name ON players(event_name);
CREATE INDEX IF NOT EXISTS idx_settlement_payments_event_name ON settlement_payments(event_name);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
