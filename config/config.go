package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
	BackendMemory  = "memory"
)

// Environment variables that override file values.
const (
	EnvRPCToken  = "KIOSK_RPC_TOKEN"
	EnvCapSecret = "KIOSK_CAP_SECRET"
	EnvDataDir   = "KIOSK_DATA_DIR"
	EnvLogLevel  = "KIOSK_LOG_LEVEL"
)

type Config struct {
	RPCAddress            string    `toml:"RPCAddress"`
	DataDir               string    `toml:"DataDir"`
	StorageBackend        string    `toml:"StorageBackend"`
	IndexerPath           string    `toml:"IndexerPath"`
	SeedFile              string    `toml:"SeedFile"`
	RPCToken              string    `toml:"RPCToken"`
	CapabilitySecret      string    `toml:"CapabilitySecret"`
	CapabilityTokenTTLSec int64     `toml:"CapabilityTokenTTLSeconds"`
	RPCReadHeaderTimeout  int       `toml:"RPCReadHeaderTimeout"`
	RPCReadTimeout        int       `toml:"RPCReadTimeout"`
	RPCWriteTimeout       int       `toml:"RPCWriteTimeout"`
	RPCIdleTimeout        int       `toml:"RPCIdleTimeout"`
	RPCTrustProxyHeaders  bool      `toml:"RPCTrustProxyHeaders"`
	RPCMaxConnections     int       `toml:"RPCMaxConnections"`
	EventStreamBuffer     int       `toml:"EventStreamBuffer"`
	RateLimit             RateLimit `toml:"rate_limit"`
	Log                   Log       `toml:"log"`
	Pauses                Pauses    `toml:"pauses"`
	Telemetry             Telemetry `toml:"telemetry"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists. Environment overrides are applied after decoding.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg, err = createDefault(path)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, err
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s: unknown key %s", path, undecoded[0])
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvRPCToken)); v != "" {
		cfg.RPCToken = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvCapSecret)); v != "" {
		cfg.CapabilitySecret = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDataDir)); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Log.Level = v
	}
}

func applyDefaults(cfg *Config) {
	defaults := defaultConfig()
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = defaults.RPCAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = defaults.DataDir
	}
	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
	if cfg.StorageBackend == "" {
		cfg.StorageBackend = defaults.StorageBackend
	}
	if strings.TrimSpace(cfg.IndexerPath) == "" {
		cfg.IndexerPath = filepath.Join(cfg.DataDir, "events.db")
	}
	if cfg.CapabilityTokenTTLSec == 0 {
		cfg.CapabilityTokenTTLSec = defaults.CapabilityTokenTTLSec
	}
	if cfg.RPCReadHeaderTimeout == 0 {
		cfg.RPCReadHeaderTimeout = defaults.RPCReadHeaderTimeout
	}
	if cfg.RPCReadTimeout == 0 {
		cfg.RPCReadTimeout = defaults.RPCReadTimeout
	}
	if cfg.RPCWriteTimeout == 0 {
		cfg.RPCWriteTimeout = defaults.RPCWriteTimeout
	}
	if cfg.RPCIdleTimeout == 0 {
		cfg.RPCIdleTimeout = defaults.RPCIdleTimeout
	}
	if cfg.RPCMaxConnections == 0 {
		cfg.RPCMaxConnections = defaults.RPCMaxConnections
	}
	if cfg.EventStreamBuffer == 0 {
		cfg.EventStreamBuffer = defaults.EventStreamBuffer
	}
	if cfg.RateLimit.PerSecond == 0 {
		cfg.RateLimit.PerSecond = defaults.RateLimit.PerSecond
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = defaults.RateLimit.Burst
	}
	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if strings.TrimSpace(cfg.Log.Env) == "" {
		cfg.Log.Env = defaults.Log.Env
	}
}

func defaultConfig() *Config {
	return &Config{
		RPCAddress:            "127.0.0.1:8547",
		DataDir:               "./kiosk-data",
		StorageBackend:        BackendLevelDB,
		CapabilityTokenTTLSec: 30 * 24 * 3600,
		RPCReadHeaderTimeout:  5,
		RPCReadTimeout:        15,
		RPCWriteTimeout:       15,
		RPCIdleTimeout:        60,
		RPCMaxConnections:     256,
		EventStreamBuffer:     64,
		RateLimit:             RateLimit{PerSecond: 20, Burst: 40},
		Log: Log{
			Level:      "info",
			Env:        "dev",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
	}
}

// createDefault creates and saves a default configuration file with a freshly
// generated capability signing secret.
func createDefault(path string) (*Config, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	cfg := defaultConfig()
	cfg.CapabilitySecret = hex.EncodeToString(secret)

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
