package config

// Log controls the structured logger and the optional rotating log file.
type Log struct {
	Level      string `toml:"Level"`
	Env        string `toml:"Env"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// RateLimit bounds JSON-RPC requests per client source.
type RateLimit struct {
	PerSecond float64 `toml:"PerSecond"`
	Burst     int     `toml:"Burst"`
}

// Pauses lists modules that start paused.
type Pauses struct {
	Kiosk bool `toml:"Kiosk"`
}

// Telemetry configures OTLP export of traces and metrics.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
}
