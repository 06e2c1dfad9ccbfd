package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
market_data:
  base_url: "https://data.example.com"
  symbols: ["AAPL", "MSFT"]
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("server port default = %d", cfg.Server.Port)
	}
	if cfg.Decision.ConsensusThreshold != 0.75 {
		t.Fatalf("consensus default = %v", cfg.Decision.ConsensusThreshold)
	}
	if cfg.Decision.MaxSignalAge != 5*time.Minute {
		t.Fatalf("max signal age default = %v", cfg.Decision.MaxSignalAge)
	}
	if len(cfg.Timeframes) != 3 {
		t.Fatalf("expected default timeframe set, got %d", len(cfg.Timeframes))
	}
	if cfg.Kafka.Topic != "trendgate.decisions" {
		t.Fatalf("kafka topic default = %q", cfg.Kafka.Topic)
	}
}

func TestLoadRejectsMissingSymbols(t *testing.T) {
	if _, err := Load(writeConfig(t, `
market_data:
  base_url: "https://data.example.com"
`)); err == nil {
		t.Fatalf("expected validation error for empty symbols")
	}
}

func TestLoadRejectsDuplicateTimeframes(t *testing.T) {
	if _, err := Load(writeConfig(t, minimalConfig+`
timeframes:
  - timeframe: "1h"
    weight: 0.5
  - timeframe: "1h"
    weight: 0.5
`)); err == nil {
		t.Fatalf("expected duplicate timeframe error")
	}
}

func TestLoadRejectsOutOfRangeThreshold(t *testing.T) {
	if _, err := Load(writeConfig(t, minimalConfig+`
decision:
  consensus_threshold: 0.99
`)); err == nil {
		t.Fatalf("expected consensus threshold range error")
	}
}

func TestLoadRejectsKafkaWithoutBrokers(t *testing.T) {
	if _, err := Load(writeConfig(t, minimalConfig+`
kafka:
  enabled: true
`)); err == nil {
		t.Fatalf("expected kafka brokers error")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("MARKET_DATA_API_KEY", "secret-key")
	t.Setenv("SYMBOLS", "TSLA,NVDA")

	cfg, err := LoadWithEnv(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MarketData.APIKey != "secret-key" {
		t.Fatalf("api key override not applied")
	}
	if len(cfg.MarketData.Symbols) != 2 || cfg.MarketData.Symbols[0] != "TSLA" {
		t.Fatalf("symbols override not applied: %v", cfg.MarketData.Symbols)
	}
}
