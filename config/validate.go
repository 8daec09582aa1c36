package config

import (
	"fmt"
	"log/slog"
	"strings"
)

var (
	MinCapabilitySecretBytes = 16
)

func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}
	switch cfg.StorageBackend {
	case BackendLevelDB, BackendBolt, BackendMemory:
	default:
		return fmt.Errorf("storage: unsupported backend %q", cfg.StorageBackend)
	}
	if len(strings.TrimSpace(cfg.CapabilitySecret)) < MinCapabilitySecretBytes {
		return fmt.Errorf("capabilities: secret must be at least %d bytes", MinCapabilitySecretBytes)
	}
	if cfg.CapabilityTokenTTLSec < 0 {
		return fmt.Errorf("capabilities: token ttl must not be negative")
	}
	if cfg.RPCMaxConnections < 0 || cfg.EventStreamBuffer < 0 {
		return fmt.Errorf("rpc: connection and stream limits must not be negative")
	}
	if (cfg.Telemetry.Traces || cfg.Telemetry.Metrics) && strings.TrimSpace(cfg.Telemetry.Endpoint) == "" {
		return fmt.Errorf("telemetry: endpoint required when export is enabled")
	}
	if cfg.RateLimit.PerSecond < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: values must not be negative")
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return fmt.Errorf("log: invalid level %q", cfg.Log.Level)
	}
	return nil
}
