package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"leasecore/native/lease"
)

// Config carries the protocol parameters every lease is opened under. The
// file is TOML; durations use Go notation ("720h").
type Config struct {
	LiabilityInitialPermille uint32   `toml:"LiabilityInitialPermille"`
	LiabilityHealthyPermille uint32   `toml:"LiabilityHealthyPermille"`
	LiabilityMaxPermille     uint32   `toml:"LiabilityMaxPermille"`
	RecalcInterval           duration `toml:"RecalcInterval"`

	InterestBasePermille    uint32 `toml:"InterestBasePermille"`
	InterestOptimalPermille uint32 `toml:"InterestOptimalPermille"`
	InterestAddonPermille   uint32 `toml:"InterestAddonPermille"`
	MarginPermille          uint32 `toml:"MarginPermille"`

	InterestDuePeriod duration `toml:"InterestDuePeriod"`
	GracePeriod       duration `toml:"GracePeriod"`

	QuoteCurrency   string   `toml:"QuoteCurrency"`
	LeaseCurrencies []string `toml:"LeaseCurrencies"`
	MinDownpayment  string   `toml:"MinDownpayment"`
}

type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = duration(parsed)
	return nil
}

// Default returns the parameters a fresh deployment starts from.
func Default() Config {
	return Config{
		LiabilityInitialPermille: 650,
		LiabilityHealthyPermille: 700,
		LiabilityMaxPermille:     800,
		RecalcInterval:           duration(24 * time.Hour),
		InterestBasePermille:     100,
		InterestOptimalPermille:  500,
		InterestAddonPermille:    250,
		MarginPermille:           40,
		InterestDuePeriod:        duration(30 * 24 * time.Hour),
		GracePeriod:              duration(5 * 24 * time.Hour),
		QuoteCurrency:            "USDC",
		LeaseCurrencies:          []string{"ATOM", "OSMO"},
		MinDownpayment:           "100",
	}
}

// Load reads the protocol parameters from disk, filling unset keys from the
// defaults. Unknown keys are rejected so typos surface at startup.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err != nil {
		return Config{}, fmt.Errorf("protocol config: %w", err)
	}
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("decode protocol config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("protocol config: unknown key %s", undecoded[0])
	}
	if _, err := cfg.Params(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Params converts the file schema into validated engine parameters.
func (cfg Config) Params() (lease.Params, error) {
	minDown := big.NewInt(0)
	if trimmed := strings.TrimSpace(cfg.MinDownpayment); trimmed != "" {
		parsed, ok := new(big.Int).SetString(trimmed, 10)
		if !ok || parsed.Sign() < 0 {
			return lease.Params{}, fmt.Errorf("protocol config: invalid MinDownpayment %q", cfg.MinDownpayment)
		}
		minDown = parsed
	}
	params := lease.Params{
		Liability: lease.Liability{
			Initial:        lease.PercentFromPermille(cfg.LiabilityInitialPermille),
			Healthy:        lease.PercentFromPermille(cfg.LiabilityHealthyPermille),
			Max:            lease.PercentFromPermille(cfg.LiabilityMaxPermille),
			RecalcInterval: time.Duration(cfg.RecalcInterval),
		},
		RateModel: lease.InterestRate{
			Base:               lease.PercentFromPermille(cfg.InterestBasePermille),
			UtilizationOptimal: lease.PercentFromPermille(cfg.InterestOptimalPermille),
			Addon:              lease.PercentFromPermille(cfg.InterestAddonPermille),
		},
		MarginRate:        lease.PercentFromPermille(cfg.MarginPermille),
		InterestDuePeriod: time.Duration(cfg.InterestDuePeriod),
		GracePeriod:       time.Duration(cfg.GracePeriod),
		QuoteCurrency:     strings.ToUpper(strings.TrimSpace(cfg.QuoteCurrency)),
		LeaseCurrencies:   cfg.LeaseCurrencies,
		MinDownpayment:    minDown,
	}
	if err := params.Validate(); err != nil {
		return lease.Params{}, err
	}
	return params, nil
}
