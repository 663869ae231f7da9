package sqlstore

import (
	"context"
	"fmt"
	"strings"
)

// schema is written once with type placeholders and expanded per dialect.
// Money and rates are stored as exact decimal text on SQLite and NUMERIC
// on Postgres.
const schema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS fx_rates (
	date       TEXT NOT NULL,
	base       TEXT NOT NULL,
	quote      TEXT NOT NULL,
	provider   TEXT NOT NULL,
	rate       {money} NOT NULL,
	fetched_at {ts} NOT NULL,
	PRIMARY KEY (date, base, quote, provider)
);

CREATE TABLE IF NOT EXISTS raw_messages (
	id           {pk},
	message_id   TEXT,
	mailbox_uid  TEXT NOT NULL DEFAULT '',
	received_at  {ts} NOT NULL,
	subject      TEXT NOT NULL DEFAULT '',
	from_address TEXT NOT NULL DEFAULT '',
	body_hash    TEXT NOT NULL,
	body         TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL CHECK (status IN ('stored', 'processed', 'error')),
	processed_at {ts},
	error        TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS raw_messages_message_id_uq ON raw_messages (message_id);
CREATE INDEX IF NOT EXISTS raw_messages_body_hash_ix ON raw_messages (body_hash);
CREATE INDEX IF NOT EXISTS raw_messages_received_at_ix ON raw_messages (received_at);

CREATE TABLE IF NOT EXISTS batches (
	id           {pk},
	status       TEXT NOT NULL CHECK (status IN ('pending', 'committed', 'cancelled')),
	created_at   {ts} NOT NULL,
	committed_at {ts},
	cancelled_at {ts},
	notes        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS batches_status_ix ON batches (status);

CREATE TABLE IF NOT EXISTS proposed_transactions (
	id                {pk},
	batch_id          {ref} NOT NULL REFERENCES batches (id),
	raw_message_id    {ref} REFERENCES raw_messages (id),
	txn_type          TEXT NOT NULL,
	posted_at         {ts},
	amount_original   {money} NOT NULL,
	currency_original TEXT NOT NULL,
	amount_reporting  {money},
	fx_rate           {money},
	fx_provider       TEXT NOT NULL DEFAULT '',
	merchant_raw      TEXT NOT NULL DEFAULT '',
	merchant_norm     TEXT NOT NULL DEFAULT '',
	category          TEXT NOT NULL,
	source            TEXT NOT NULL,
	account_from      TEXT NOT NULL DEFAULT '',
	account_to        TEXT NOT NULL DEFAULT '',
	notes             TEXT NOT NULL DEFAULT '',
	confidence        {real},
	needs_review      {bool} NOT NULL DEFAULT {false},
	proposal_json     TEXT,
	created_at        {ts} NOT NULL
);

CREATE INDEX IF NOT EXISTS proposed_transactions_batch_ix ON proposed_transactions (batch_id);
CREATE INDEX IF NOT EXISTS proposed_transactions_raw_message_ix ON proposed_transactions (raw_message_id);

CREATE TABLE IF NOT EXISTS ledger_transactions (
	id                {pk},
	txn_type          TEXT NOT NULL,
	posted_at         {ts},
	amount_original   {money} NOT NULL,
	currency_original TEXT NOT NULL,
	amount_reporting  {money} NOT NULL,
	fx_rate           {money} NOT NULL,
	fx_provider       TEXT NOT NULL DEFAULT '',
	merchant_raw      TEXT NOT NULL DEFAULT '',
	merchant_norm     TEXT NOT NULL DEFAULT '',
	category          TEXT NOT NULL,
	source            TEXT NOT NULL,
	account_from      TEXT NOT NULL DEFAULT '',
	account_to        TEXT NOT NULL DEFAULT '',
	notes             TEXT NOT NULL DEFAULT '',
	confidence        {real},
	needs_review      {bool} NOT NULL DEFAULT {false},
	raw_message_id    {ref} REFERENCES raw_messages (id),
	batch_id          {ref} REFERENCES batches (id),
	created_at        {ts} NOT NULL
);

CREATE INDEX IF NOT EXISTS ledger_transactions_posted_at_ix ON ledger_transactions (posted_at);
CREATE INDEX IF NOT EXISTS ledger_transactions_type_ix ON ledger_transactions (txn_type);
CREATE INDEX IF NOT EXISTS ledger_transactions_needs_review_ix ON ledger_transactions (needs_review);
CREATE INDEX IF NOT EXISTS ledger_transactions_batch_ix ON ledger_transactions (batch_id);
`

var dialectTypes = map[Dialect]*strings.Replacer{
	DialectSQLite: strings.NewReplacer(
		"{pk}", "INTEGER PRIMARY KEY AUTOINCREMENT",
		"{ref}", "INTEGER",
		"{ts}", "TIMESTAMP",
		"{money}", "TEXT",
		"{real}", "REAL",
		"{bool}", "INTEGER",
		"{false}", "0",
	),
	DialectPostgres: strings.NewReplacer(
		"{pk}", "BIGSERIAL PRIMARY KEY",
		"{ref}", "BIGINT",
		"{ts}", "TIMESTAMPTZ",
		"{money}", "NUMERIC",
		"{real}", "DOUBLE PRECISION",
		"{bool}", "BOOLEAN",
		"{false}", "FALSE",
	),
}

// migrate creates missing tables and indexes. It is safe to run on every open.
func (db *DB) migrate(ctx context.Context) error {
	ddl := dialectTypes[db.dialect].Replace(schema)

	for _, stmt := range strings.Split(ddl, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}
