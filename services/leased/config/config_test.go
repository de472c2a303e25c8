package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

const validCollaborators = `
collaborators:
  pool_url: "http://pool:9001"
  custody_url: "http://custody:9002/"
  transfer_url: "http://transfer:9003"
  swap_url: "http://swap:9004"
  oracle_url: "http://oracle:9005"
  bank_url: "http://bank:9006"
`

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
listen: " :6100 "
protocol_config: "protocol.toml"
`+validCollaborators)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":6100", cfg.ListenAddress)
	require.Equal(t, "./leased-data", cfg.DataDir)
	require.Equal(t, "http://custody:9002", cfg.Collaborators.CustodyURL, "trailing slash must be trimmed")
}

func TestLoadConfigRequiresProtocolPath(t *testing.T) {
	path := writeConfig(t, `listen: ":6100"`+validCollaborators)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadConfigRequiresCollaborators(t *testing.T) {
	path := writeConfig(t, `
protocol_config: "protocol.toml"
collaborators:
  pool_url: "http://pool:9001"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadConfigRejectsNonHTTPURLs(t *testing.T) {
	path := writeConfig(t, `
protocol_config: "protocol.toml"
collaborators:
  pool_url: "pool:9001"
  custody_url: "http://custody:9002"
  transfer_url: "http://transfer:9003"
  swap_url: "http://swap:9004"
  oracle_url: "http://oracle:9005"
  bank_url: "http://bank:9006"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadConfigRejectsNegativeRateLimit(t *testing.T) {
	path := writeConfig(t, `
protocol_config: "protocol.toml"
rate_limit:
  requests_per_minute: -1
`+validCollaborators)
	_, err := Load(path)
	require.Error(t, err)
}
