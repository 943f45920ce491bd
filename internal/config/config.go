// Package config provides the configuration schema and loader for the
// Earshot wake word server.
package config

// LogLevel controls log verbosity for the Earshot server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Earshot.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server ServerConfig `yaml:"server"`
	Wake   WakeConfig   `yaml:"wake"`
}

// ServerConfig holds network and logging settings for the Earshot server.
type ServerConfig struct {
	// ListenAddr is the TCP address the event protocol listens on (e.g., ":10400").
	ListenAddr string `yaml:"listen_addr"`

	// HTTPAddr is the address of the HTTP sidecar serving the WebSocket
	// transport, health checks, and Prometheus metrics (e.g., ":10401").
	// When empty, the sidecar is disabled.
	HTTPAddr string `yaml:"http_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// WakeConfig holds the wake word engine and detection settings.
type WakeConfig struct {
	// DataDir is the root directory holding engine resources (lib/common/*.pv)
	// and keyword models (resources/**/*.ppn).
	DataDir string `yaml:"data_dir"`

	// System overrides the detected platform name used to select keyword
	// model files (e.g., "linux", "raspberry-pi"). Empty means autodetect.
	System string `yaml:"system"`

	// DefaultKeyword is armed when a client starts streaming audio without
	// first requesting specific keywords. When empty, such streams are
	// rejected with an error event.
	DefaultKeyword string `yaml:"default_keyword"`

	// Sensitivity is the detection sensitivity in [0.0, 1.0] applied to every
	// armed keyword. Higher values reduce misses at the cost of more false
	// alarms. Zero means the engine default of 0.5.
	Sensitivity float32 `yaml:"sensitivity"`

	// MaxIdleDetectors caps how many released detectors are kept warm per
	// keyword configuration. Zero means the built-in default.
	MaxIdleDetectors int `yaml:"max_idle_detectors"`
}
