package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/domain"
	"marketplace/internal/ledger"
	applog "marketplace/internal/log"
	"marketplace/internal/repos"
)

func openAndLoad(dsn string, owner domain.Address) (*sqlx.DB, error) {
	db, err := repos.OpenDB(dsn)
	if err != nil {
		return nil, err
	}
	if _, err := ledger.New(context.Background(), owner, ledger.WithStore(repos.NewLedgerRepo(db))); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func setenv(t *testing.T, env map[string]string) {
	t.Helper()
	base := map[string]string{
		"OWNER_ADDRESS":               "0xowner",
		"OWNER_API_KEY":               "",
		"SEED_ACCOUNTS":               "",
		"KAFKA_BROKERS":               "",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "",
		"DUPLICATE_POLICY":            "",
		"STOCK_POLICY":                "",
		"LOG_FILE":                    "",
		"DB_DSN":                      ":memory:",
	}
	for k, v := range env {
		base[k] = v
	}
	for k, v := range base {
		t.Setenv(k, v)
	}
	t.Cleanup(func() { applog.SetBase(nil) })
}

func TestRunReturnsConfigErrors(t *testing.T) {
	setenv(t, map[string]string{"STOCK_POLICY": "sometimes"})

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STOCK_POLICY")
}

func TestRunCleansUpWhenStartupFails(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "marketplace.log")
	dsn := filepath.Join(dir, "market.db")

	setenv(t, map[string]string{"LOG_FILE": logFile, "DB_DSN": dsn, "OWNER_ADDRESS": "0xfirst"})
	db, err := openAndLoad(dsn, "0xfirst")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// A different owner against the same database fails after the database
	// and telemetry are up.
	t.Setenv("OWNER_ADDRESS", "0xsecond")
	err = run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load ledger")

	logged, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(logged), "marketplace stopped")

	// The database was closed and is still usable.
	db, err = openAndLoad(dsn, "0xfirst")
	require.NoError(t, err)
	assert.NoError(t, db.Close())
}
