// Package config loads the application configuration from YAML with
// defaults, environment overrides, and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// TimeframeConfig declares one active timeframe and its consensus weight.
type TimeframeConfig struct {
	Timeframe string        `yaml:"timeframe" validate:"required"`
	Weight    float64       `yaml:"weight" validate:"gt=0"`
	Validity  time.Duration `yaml:"validity" default:"15m"`
	BarLimit  int           `yaml:"bar_limit" default:"100"`
}

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`

	Server struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`

	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`

	Logger struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"json"`
	} `yaml:"logger"`

	MarketData struct {
		BaseURL         string        `yaml:"base_url" validate:"required"`
		APIKey          string        `yaml:"api_key"`
		Timeout         time.Duration `yaml:"timeout" default:"10s"`
		WebSocketURL    string        `yaml:"websocket_url"`
		PingInterval    time.Duration `yaml:"ping_interval" default:"30s"`
		ReconnectDelay  time.Duration `yaml:"reconnect_delay" default:"5s"`
		Symbols         []string      `yaml:"symbols" validate:"min=1"`
		SequentialFetch bool          `yaml:"sequential_fetch"`
	} `yaml:"market_data"`

	Timeframes []TimeframeConfig `yaml:"timeframes" validate:"dive"`

	Cache struct {
		Capacity       int           `yaml:"capacity" default:"500"`
		EvictionPeriod time.Duration `yaml:"eviction_period" default:"1m"`
		Compression    bool          `yaml:"compression" default:"true"`
	} `yaml:"cache"`

	Decision struct {
		ConsensusThreshold float64       `yaml:"consensus_threshold" default:"0.75"`
		StrengthThreshold  float64       `yaml:"strength_threshold" default:"0.6"`
		MinimumAgreement   int           `yaml:"minimum_agreement" default:"2"`
		MinTrendStrength   float64       `yaml:"min_trend_strength" default:"0.4"`
		MinConfidence      float64       `yaml:"min_confidence" default:"0.3"`
		MaxSignalAge       time.Duration `yaml:"max_signal_age" default:"5m"`
		DecisionTTL        time.Duration `yaml:"decision_ttl" default:"5m"`
		FailStep           float64       `yaml:"fail_step" default:"0.01"`
		SuccessStep        float64       `yaml:"success_step" default:"0.005"`
		MaxDelta           float64       `yaml:"max_delta" default:"0.2"`
		HistoryWindow      int           `yaml:"history_window" default:"20"`
	} `yaml:"decision"`

	Validator struct {
		MaxConcurrent     int           `yaml:"max_concurrent" default:"10"`
		RefreshInterval   time.Duration `yaml:"refresh_interval" default:"1m"`
		RefreshBatch      int           `yaml:"refresh_batch" default:"10"`
		RefreshRatePerSec float64       `yaml:"refresh_rate_per_sec" default:"2"`
		CleanupInterval   time.Duration `yaml:"cleanup_interval" default:"5m"`
		StaleAfter        time.Duration `yaml:"stale_after" default:"30m"`
	} `yaml:"validator"`

	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"trendgate.decisions"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"100ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID      string        `yaml:"group_id" default:"trendgate-outcomes"`
			OutcomeTopic string        `yaml:"outcome_topic" default:"trendgate.outcomes"`
			Workers      int           `yaml:"workers" default:"2"`
			BufferSize   int           `yaml:"buffer_size" default:"256"`
			RetryMax     int           `yaml:"retry_max" default:"3"`
			BackoffMin   time.Duration `yaml:"backoff_min" default:"200ms"`
			BackoffMax   time.Duration `yaml:"backoff_max" default:"5s"`
			MinBytes     int           `yaml:"min_bytes" default:"1"`
			MaxBytes     int           `yaml:"max_bytes" default:"1048576"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`

	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"trendgate"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		AsyncInsert      bool          `yaml:"async_insert" default:"true"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"trendgate"`
	} `yaml:"redis"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if len(c.Timeframes) == 0 {
		c.Timeframes = defaultTimeframes()
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("MARKET_DATA_API_KEY"); v != "" {
		c.MarketData.APIKey = v
	}
	if v := os.Getenv("MARKET_DATA_BASE_URL"); v != "" {
		c.MarketData.BaseURL = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.MarketData.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	return c, nil
}

// Validate checks structural constraints plus cross-field invariants the
// tag-based rules cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	var weightSum float64
	seen := make(map[string]bool, len(c.Timeframes))
	for _, tf := range c.Timeframes {
		if seen[tf.Timeframe] {
			return fmt.Errorf("duplicate timeframe %q", tf.Timeframe)
		}
		seen[tf.Timeframe] = true
		weightSum += tf.Weight
	}
	if weightSum <= 0 {
		return fmt.Errorf("timeframe weights must sum above zero")
	}

	if c.Decision.ConsensusThreshold < 0.5 || c.Decision.ConsensusThreshold > 0.95 {
		return fmt.Errorf("decision.consensus_threshold %v outside [0.5, 0.95]", c.Decision.ConsensusThreshold)
	}
	if c.Decision.StrengthThreshold < 0.3 || c.Decision.StrengthThreshold > 0.9 {
		return fmt.Errorf("decision.strength_threshold %v outside [0.3, 0.9]", c.Decision.StrengthThreshold)
	}
	if c.Decision.MinimumAgreement < 1 || c.Decision.MinimumAgreement > len(c.Timeframes) {
		return fmt.Errorf("decision.minimum_agreement %d outside [1, %d]", c.Decision.MinimumAgreement, len(c.Timeframes))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers required when kafka is enabled")
	}
	return nil
}

func defaultTimeframes() []TimeframeConfig {
	return []TimeframeConfig{
		{Timeframe: "15m", Weight: 0.25, Validity: 5 * time.Minute, BarLimit: 100},
		{Timeframe: "1h", Weight: 0.35, Validity: 15 * time.Minute, BarLimit: 100},
		{Timeframe: "4h", Weight: 0.40, Validity: time.Hour, BarLimit: 100},
	}
}
