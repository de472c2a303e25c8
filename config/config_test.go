package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "protocol.toml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFillsDefaults(t *testing.T) {
	path := writeConfig(t, `
LiabilityInitialPermille = 500
QuoteCurrency = "usdc"
LeaseCurrencies = ["ATOM"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LiabilityInitialPermille != 500 {
		t.Fatalf("override lost: %d", cfg.LiabilityInitialPermille)
	}
	if cfg.LiabilityHealthyPermille != 700 {
		t.Fatalf("default lost: %d", cfg.LiabilityHealthyPermille)
	}

	params, err := cfg.Params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if params.QuoteCurrency != "USDC" {
		t.Fatalf("quote currency not normalised: %q", params.QuoteCurrency)
	}
	if params.InterestDuePeriod != 30*24*time.Hour {
		t.Fatalf("unexpected due period: %s", params.InterestDuePeriod)
	}
	if params.MinDownpayment.Int64() != 100 {
		t.Fatalf("unexpected minimum downpayment: %s", params.MinDownpayment)
	}
}

func TestLoadParsesDurations(t *testing.T) {
	path := writeConfig(t, `
InterestDuePeriod = "1752h"
GracePeriod = "48h"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if time.Duration(cfg.InterestDuePeriod) != 73*24*time.Hour {
		t.Fatalf("unexpected due period: %s", time.Duration(cfg.InterestDuePeriod))
	}
	if time.Duration(cfg.GracePeriod) != 48*time.Hour {
		t.Fatalf("unexpected grace period: %s", time.Duration(cfg.GracePeriod))
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `LiabiltyInitialPermille = 500`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for misspelled key")
	}
}

func TestLoadRejectsInvalidThresholds(t *testing.T) {
	path := writeConfig(t, `
LiabilityInitialPermille = 900
LiabilityHealthyPermille = 700
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for inverted thresholds")
	}
}

func TestLoadRejectsInvalidMinDownpayment(t *testing.T) {
	path := writeConfig(t, `MinDownpayment = "ten"`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for non-numeric minimum")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
