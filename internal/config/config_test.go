package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/config"
	"marketplace/internal/ledger"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OWNER_ADDRESS", "0xdeployer")
	t.Setenv("PORT", "")
	t.Setenv("DB_DSN", "")
	t.Setenv("PROJECT_NAME", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("DUPLICATE_POLICY", "")
	t.Setenv("STOCK_POLICY", "")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "marketplace.db", cfg.DBDSN)
	assert.Equal(t, "web3-marketplace", cfg.ProjectName)
	assert.Equal(t, ledger.DuplicateOverwrite, cfg.DuplicatePolicy)
	assert.Equal(t, ledger.StockIgnore, cfg.StockPolicy)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("OWNER_ADDRESS", "0xdeployer")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("DUPLICATE_POLICY", "reject")
	t.Setenv("STOCK_POLICY", "enforce")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, ledger.DuplicateReject, cfg.DuplicatePolicy)
	assert.Equal(t, ledger.StockEnforce, cfg.StockPolicy)
}

func TestLoadErrors(t *testing.T) {
	t.Setenv("OWNER_ADDRESS", "")
	_, err := config.Load()
	assert.Error(t, err)

	t.Setenv("OWNER_ADDRESS", "0xdeployer")
	t.Setenv("STOCK_POLICY", "sometimes")
	_, err = config.Load()
	assert.ErrorContains(t, err, "STOCK_POLICY")
}
