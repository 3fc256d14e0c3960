// Package config loads the engine's YAML configuration and builds
// its structured logger, the way joripage-orderbook-dev's config and
// logging packages do.
package config

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config is the full engine configuration. Every field can be
// overridden by an environment variable reference inside the YAML
// file (os.ExpandEnv is applied before unmarshalling).
type Config struct {
	Symbol   string `yaml:"symbol"`
	TickSize string `yaml:"tick_size"`
	QtySize  string `yaml:"qty_size"`
	LogLevel string `yaml:"log_level"`

	Transport struct {
		OrdersAddr     string `yaml:"orders_addr"`
		MarketDataAddr string `yaml:"market_data_addr"`
		TradesAddr     string `yaml:"trades_addr"`
	} `yaml:"transport"`

	WAL struct {
		Dir             string        `yaml:"dir"`
		SegmentSize     int64         `yaml:"segment_size"`
		SegmentDuration time.Duration `yaml:"segment_duration"`
	} `yaml:"wal"`

	Snapshot struct {
		Dir      string        `yaml:"dir"`
		Interval time.Duration `yaml:"interval"`
	} `yaml:"snapshot"`

	Outbox struct {
		Dir string `yaml:"dir"`
	} `yaml:"outbox"`

	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`
}

// Default returns a Config usable without a YAML file on disk, for
// tests and local runs.
func Default() *Config {
	c := &Config{
		Symbol:   "BTC-USDT",
		TickSize: "0.01",
		QtySize:  "0.00000001",
		LogLevel: "info",
	}
	c.Transport.OrdersAddr = ":8000"
	c.Transport.MarketDataAddr = ":8001"
	c.Transport.TradesAddr = ":8002"
	c.WAL.Dir = "./data/wal"
	c.WAL.SegmentSize = 64 << 20
	c.WAL.SegmentDuration = time.Minute
	c.Snapshot.Dir = "./data/snapshot"
	c.Snapshot.Interval = 5 * time.Second
	c.Outbox.Dir = "./data/outbox"
	return c
}

// Load reads and parses the YAML file at path, applying environment
// variable expansion first. Missing fields keep their Default value.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("ENGINE_CONFIG")
	}
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	raw = []byte(os.ExpandEnv(string(raw)))

	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// NewLogger builds the process's structured logger at the configured level.
func NewLogger(level string) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.EncoderConfig.TimeKey = "timestamp"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)

	return zc.Build()
}
