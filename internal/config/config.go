package config

import (
	"fmt"
	"os"
	"strings"

	"marketplace/internal/ledger"
)

type Config struct {
	Port            string
	DBDSN           string
	LogFile         string
	LogLevel        string
	OwnerAddress    string
	OwnerAPIKey     string
	ProjectName     string
	DuplicatePolicy ledger.DuplicatePolicy
	StockPolicy     ledger.StockPolicy
	KafkaBrokers    []string
	KafkaTopic      string
	OTLPEndpoint    string
	SeedAccounts    string
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func Load() (Config, error) {
	cfg := Config{
		Port:         getenv("PORT", "8080"),
		DBDSN:        getenv("DB_DSN", "marketplace.db"), // sqlite file in project root
		LogFile:      os.Getenv("LOG_FILE"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		OwnerAddress: os.Getenv("OWNER_ADDRESS"),
		OwnerAPIKey:  os.Getenv("OWNER_API_KEY"),
		ProjectName:  getenv("PROJECT_NAME", ledger.DefaultProjectName),
		KafkaTopic:   getenv("KAFKA_TOPIC", "marketplace-events"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		SeedAccounts: os.Getenv("SEED_ACCOUNTS"),
	}
	for _, b := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
		}
	}

	var err error
	if cfg.DuplicatePolicy, err = ledger.ParseDuplicatePolicy(os.Getenv("DUPLICATE_POLICY")); err != nil {
		return cfg, fmt.Errorf("DUPLICATE_POLICY: %w", err)
	}
	if cfg.StockPolicy, err = ledger.ParseStockPolicy(os.Getenv("STOCK_POLICY")); err != nil {
		return cfg, fmt.Errorf("STOCK_POLICY: %w", err)
	}
	if strings.TrimSpace(cfg.OwnerAddress) == "" {
		return cfg, fmt.Errorf("OWNER_ADDRESS is required")
	}
	return cfg, nil
}
