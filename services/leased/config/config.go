package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config captures the runtime settings for the lease service daemon. The
// protocol parameters live in their own TOML file; this covers wiring only.
type Config struct {
	ListenAddress  string            `yaml:"listen"`
	DataDir        string            `yaml:"data_dir"`
	ProtocolConfig string            `yaml:"protocol_config"`
	RateLimit      RateLimitConfig   `yaml:"rate_limit"`
	Collaborators  CollaboratorsConf `yaml:"collaborators"`
}

// RateLimitConfig bounds how fast a single client may hit the API.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// CollaboratorsConf lists the base URLs of the external services the engine
// calls out to.
type CollaboratorsConf struct {
	PoolURL     string `yaml:"pool_url"`
	CustodyURL  string `yaml:"custody_url"`
	TransferURL string `yaml:"transfer_url"`
	SwapURL     string `yaml:"swap_url"`
	OracleURL   string `yaml:"oracle_url"`
	BankURL     string `yaml:"bank_url"`
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{
		ListenAddress: ":8084",
		DataDir:       "./leased-data",
	}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8084"
	}
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	if cfg.DataDir == "" {
		cfg.DataDir = "./leased-data"
	}
	cfg.ProtocolConfig = strings.TrimSpace(cfg.ProtocolConfig)
	cfg.Collaborators.normalize()
}

func (cfg *Config) validate() error {
	if cfg.ProtocolConfig == "" {
		return fmt.Errorf("protocol_config path required")
	}
	if err := cfg.Collaborators.validate(); err != nil {
		return fmt.Errorf("collaborators: %w", err)
	}
	if cfg.RateLimit.RequestsPerMinute < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}
	return nil
}

func (c *CollaboratorsConf) normalize() {
	c.PoolURL = strings.TrimRight(strings.TrimSpace(c.PoolURL), "/")
	c.CustodyURL = strings.TrimRight(strings.TrimSpace(c.CustodyURL), "/")
	c.TransferURL = strings.TrimRight(strings.TrimSpace(c.TransferURL), "/")
	c.SwapURL = strings.TrimRight(strings.TrimSpace(c.SwapURL), "/")
	c.OracleURL = strings.TrimRight(strings.TrimSpace(c.OracleURL), "/")
	c.BankURL = strings.TrimRight(strings.TrimSpace(c.BankURL), "/")
}

func (c CollaboratorsConf) validate() error {
	urls := map[string]string{
		"pool_url":     c.PoolURL,
		"custody_url":  c.CustodyURL,
		"transfer_url": c.TransferURL,
		"swap_url":     c.SwapURL,
		"oracle_url":   c.OracleURL,
		"bank_url":     c.BankURL,
	}
	for key, value := range urls {
		if value == "" {
			return fmt.Errorf("%s required", key)
		}
		if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
			return fmt.Errorf("%s must be an http(s) url", key)
		}
	}
	return nil
}
