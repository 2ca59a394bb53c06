package config

// Config is the root configuration for mindly.
type Config struct {
	Runtime RuntimeConfig `yaml:"runtime,omitempty"`
	Cloud   CloudConfig   `yaml:"cloud,omitempty"`
	Gateway GatewayConfig `yaml:"gateway,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
	Store   StoreConfig   `yaml:"store,omitempty"`
}

// RuntimeConfig points at the local on-device model runtime.
type RuntimeConfig struct {
	BaseURL string `yaml:"baseUrl,omitempty"`
	Model   string `yaml:"model,omitempty"`
}

// CloudConfig configures the cloud provider. APIKey here is a bootstrap
// value only; the persisted settings document takes precedence once set.
type CloudConfig struct {
	Model   string `yaml:"model,omitempty"`
	BaseURL string `yaml:"baseUrl,omitempty"`
	APIKey  string `yaml:"apiKey,omitempty"`
}

// GatewayConfig controls the gateway HTTP/WebSocket server.
type GatewayConfig struct {
	Port int         `yaml:"port,omitempty"`
	Bind string      `yaml:"bind,omitempty"` // "loopback" | "lan"
	Auth GatewayAuth `yaml:"auth,omitempty"`
}

// GatewayAuth configures gateway authentication. An empty token disables it.
type GatewayAuth struct {
	Token string `yaml:"token,omitempty"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"`        // silent..trace
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "compact" | "json"
}

// StoreConfig controls the SQLite database location.
type StoreConfig struct {
	Path string `yaml:"path,omitempty"` // file path or ":memory:"
}
