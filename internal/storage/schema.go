package storage

import (
	"context"
	"fmt"
)

// Table names shared by every engine.
const (
	TableEnvelopes    = "envelopes"
	TableTransactions = "transactions"
	tableSequences    = "ledger_sequences"
)

// portableDDL creates the ledger on engines the migration runner does not
// drive. It sticks to types and syntax SQLite and DuckDB agree on. There is
// no foreign key here: DuckDB rejects updates of a referenced row, and the
// envelope check happens in the store anyway.
var portableDDL = []string{
	`CREATE TABLE IF NOT EXISTS envelopes (
		id BIGINT PRIMARY KEY,
		category VARCHAR NOT NULL UNIQUE,
		budgeted_cents BIGINT NOT NULL,
		starting_cents BIGINT NOT NULL,
		description VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id BIGINT PRIMARY KEY,
		envelope_id BIGINT NOT NULL,
		amount_cents BIGINT NOT NULL,
		description VARCHAR,
		date VARCHAR NOT NULL,
		type VARCHAR NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_sequences (
		name VARCHAR PRIMARY KEY,
		last_id BIGINT NOT NULL
	)`,
	`INSERT INTO ledger_sequences (name, last_id) VALUES ('envelopes', 0) ON CONFLICT (name) DO NOTHING`,
	`INSERT INTO ledger_sequences (name, last_id) VALUES ('transactions', 0) ON CONFLICT (name) DO NOTHING`,
}

var portableDrop = []string{
	`DROP TABLE IF EXISTS transactions`,
	`DROP TABLE IF EXISTS envelopes`,
	`DROP TABLE IF EXISTS ledger_sequences`,
}

// EnsurePortableSchema creates the ledger tables on db if they are missing.
// With reset set the tables are dropped first.
func EnsurePortableSchema(ctx context.Context, db DBTX, reset bool) error {
	if reset {
		for _, stmt := range portableDrop {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("drop ledger tables: %w", err)
			}
		}
	}
	for _, stmt := range portableDDL {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create ledger tables: %w", err)
		}
	}
	return nil
}
