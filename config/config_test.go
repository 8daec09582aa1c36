package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, BackendLevelDB, cfg.StorageBackend)
	require.Len(t, cfg.CapabilitySecret, 64)
	require.Equal(t, filepath.Join(cfg.DataDir, "events.db"), cfg.IndexerPath)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config must be persisted")

	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.CapabilitySecret, again.CapabilitySecret, "reload must keep the generated secret")
}

func TestLoadParsesFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `RPCAddress = "0.0.0.0:9000"
DataDir = "./data"
StorageBackend = "Bolt"
SeedFile = "seed.yaml"
RPCToken = "file-token"
CapabilitySecret = "0123456789abcdef0123456789abcdef"

[rate_limit]
PerSecond = 5.5
Burst = 11

[log]
Level = "debug"
File = "kiosk.log"

[pauses]
Kiosk = true
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	t.Setenv(EnvRPCToken, "env-token")
	t.Setenv(EnvDataDir, filepath.Join(dir, "override"))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.RPCAddress)
	require.Equal(t, BackendBolt, cfg.StorageBackend)
	require.Equal(t, "env-token", cfg.RPCToken)
	require.Equal(t, filepath.Join(dir, "override"), cfg.DataDir)
	require.Equal(t, 5.5, cfg.RateLimit.PerSecond)
	require.Equal(t, 11, cfg.RateLimit.Burst)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "dev", cfg.Log.Env)
	require.True(t, cfg.Pauses.Kiosk)
	require.EqualValues(t, 30*24*3600, cfg.CapabilityTokenTTLSec)
	require.Equal(t, 256, cfg.RPCMaxConnections)
	require.Equal(t, 64, cfg.EventStreamBuffer)
}

func TestLoadRejectsUnknownKeysAndBadValues(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"unknown key": `CapabilitySecret = "0123456789abcdef0123456789abcdef"
Bootnodes = ["1.1.1.1:6001"]
`,
		"short secret": `CapabilitySecret = "short"
`,
		"bad backend": `CapabilitySecret = "0123456789abcdef0123456789abcdef"
StorageBackend = "postgres"
`,
		"bad level": `CapabilitySecret = "0123456789abcdef0123456789abcdef"
[log]
Level = "verbose"
`,
		"telemetry without endpoint": `CapabilitySecret = "0123456789abcdef0123456789abcdef"
[telemetry]
Traces = true
`,
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".toml")
			require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	contents := `accounts:
  - address: kiosk1qqqsyqcyq5rqwzqfpg9scrgwpugpzysnqqqqqqq
    balance: "1000"
assets:
  - holder: kiosk1qqqsyqcyq5rqwzqfpg9scrgwpugpzysnqqqqqqq
    kind: ticket
    data: row-7
    salt: "01"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	seed, err := LoadSeed(path)
	require.NoError(t, err)
	require.Len(t, seed.Accounts, 1)
	amount, err := seed.Accounts[0].Amount()
	require.NoError(t, err)
	require.Equal(t, "1000", amount.String())
	require.Len(t, seed.Assets, 1)
	require.Equal(t, "ticket", seed.Assets[0].Kind)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("accounts:\n  - address: x\n    balance: \"-4\"\n"), 0o600))
	_, err = LoadSeed(bad)
	require.Error(t, err)

	unknown := filepath.Join(t.TempDir(), "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("validators: []\n"), 0o600))
	_, err = LoadSeed(unknown)
	require.Error(t, err)
}
