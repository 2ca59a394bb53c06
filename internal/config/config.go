// Package config loads the mindly configuration: YAML file, defaults,
// MINDLY_* environment overrides, and ${VAR} expansion for credentials.
package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Runtime: RuntimeConfig{
			BaseURL: "http://localhost:11434",
			Model:   "gemma3:4b",
		},
		Cloud: CloudConfig{
			Model: "gemini-2.0-flash",
		},
		Gateway: GatewayConfig{
			Port: 18960,
			Bind: "loopback",
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
	}
}
