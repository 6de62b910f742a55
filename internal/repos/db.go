package repos

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"marketplace/internal/domain"
)

// BcryptCost is the work factor used for seeded API keys.
var BcryptCost = bcrypt.DefaultCost

func OpenDB(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// sqlite has a single writer, and every connection to ":memory:" is its own
	// database. One connection keeps both cases consistent.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, err
	}

	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	return db, nil
}

func ensureSchema(db *sqlx.DB) error {
	schema := `
PRAGMA foreign_keys = ON;

-- Amounts are base-10 integer strings; they do not fit a 64-bit column.

-- Single row: owner, held balance, total withdrawn, newest order time
CREATE TABLE IF NOT EXISTS ledger_meta(
  id INTEGER PRIMARY KEY CHECK (id = 1),
  owner TEXT NOT NULL,
  balance TEXT NOT NULL DEFAULT '0',
  withdrawn TEXT NOT NULL DEFAULT '0',
  last_time_ns INTEGER NOT NULL DEFAULT 0,
  created_at TEXT DEFAULT CURRENT_TIMESTAMP
);

-- Catalog
CREATE TABLE IF NOT EXISTS items(
  id INTEGER PRIMARY KEY,
  name TEXT NOT NULL,
  category TEXT NOT NULL,
  image TEXT NOT NULL,
  cost TEXT NOT NULL,
  rating INTEGER NOT NULL CHECK (rating BETWEEN 0 AND 255),
  stock INTEGER NOT NULL CHECK (stock >= 0),
  updated_at TEXT DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_items_category ON items(LOWER(category));

-- Orders keep a full copy of the item at purchase time
CREATE TABLE IF NOT EXISTS orders(
  buyer TEXT NOT NULL,
  seq INTEGER NOT NULL CHECK (seq >= 1),
  time_ns INTEGER NOT NULL CHECK (time_ns > 0),
  id INTEGER NOT NULL,
  name TEXT NOT NULL,
  category TEXT NOT NULL,
  image TEXT NOT NULL,
  cost TEXT NOT NULL,
  rating INTEGER NOT NULL,
  stock INTEGER NOT NULL,
  PRIMARY KEY (buyer, seq)
);

CREATE TABLE IF NOT EXISTS withdrawals(
  id TEXT PRIMARY KEY,
  to_address TEXT NOT NULL,
  amount TEXT NOT NULL,
  time_ns INTEGER NOT NULL
);

-- Wallet accounts and API credentials
CREATE TABLE IF NOT EXISTS accounts(
  address TEXT PRIMARY KEY,
  key_hash TEXT NOT NULL DEFAULT '',
  funds TEXT NOT NULL DEFAULT '0',
  accepts_funds INTEGER NOT NULL DEFAULT 1,
  created_at TEXT DEFAULT CURRENT_TIMESTAMP,
  updated_at TEXT
);
`
	_, err := db.Exec(schema)
	return err
}

// SeedAccount describes an account created at startup.
type SeedAccount struct {
	Address string
	Key     string
	Funds   domain.Amount
}

// ParseSeedAccounts reads "address:key:funds" entries separated by commas.
// Malformed entries are skipped.
func ParseSeedAccounts(s string) []SeedAccount {
	var out []SeedAccount
	for _, part := range strings.Split(s, ",") {
		fields := strings.Split(strings.TrimSpace(part), ":")
		if len(fields) != 3 || fields[0] == "" || fields[1] == "" {
			continue
		}
		funds, err := domain.ParseAmount(fields[2])
		if err != nil {
			continue
		}
		out = append(out, SeedAccount{Address: fields[0], Key: fields[1], Funds: funds})
	}
	return out
}

// SeedAccounts makes sure each account exists with the given key (idempotent;
// funds are only set when the account is first created).
func SeedAccounts(ctx context.Context, db *sqlx.DB, accounts []SeedAccount) error {
	if len(accounts) == 0 {
		return nil
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, a := range accounts {
		h, err := bcrypt.GenerateFromPassword([]byte(a.Key), BcryptCost)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO accounts(address, key_hash, funds)
			VALUES(LOWER(TRIM(?)), ?, ?)
			ON CONFLICT(address) DO UPDATE SET key_hash = excluded.key_hash, updated_at = CURRENT_TIMESTAMP
		`, a.Address, string(h), a.Funds.String()); err != nil {
			return err
		}
	}
	return tx.Commit()
}
