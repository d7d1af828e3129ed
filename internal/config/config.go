package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`

	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Auth     AuthConfig     `mapstructure:"auth" yaml:"auth"`
	WS       WSConfig       `mapstructure:"ws" yaml:"ws"`
	Dispatch DispatchConfig `mapstructure:"dispatch" yaml:"dispatch"`
}

// StoreConfig selects and configures message persistence.
type StoreConfig struct {
	// Driver is one of sqlite, postgres or memory.
	Driver       string `mapstructure:"driver" yaml:"driver"`
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
	DatabaseURL  string `mapstructure:"database_url" yaml:"database_url"`
}

// AuthConfig controls binding of connections to authenticated identities.
type AuthConfig struct {
	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	// Required rejects websocket handshakes without a valid token.
	Required bool `mapstructure:"required" yaml:"required"`
}

// WSConfig tunes websocket sessions.
type WSConfig struct {
	MaxMessageBytes   int64 `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	EventBuffer       int   `mapstructure:"event_buffer" yaml:"event_buffer"`
	MessagesPerMinute int   `mapstructure:"messages_per_minute" yaml:"messages_per_minute"`
}

// DispatchConfig tunes the message pipeline.
type DispatchConfig struct {
	PersistTimeout time.Duration `mapstructure:"persist_timeout" yaml:"persist_timeout"`
}

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":5000",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		AllowedOrigins:    []string{"http://localhost:3000"},
		Store: StoreConfig{
			Driver:       DriverSQLite,
			DatabasePath: "agrochat.db",
		},
		WS: WSConfig{
			MaxMessageBytes:   64 << 10,
			EventBuffer:       64,
			MessagesPerMinute: 120,
		},
		Dispatch: DispatchConfig{
			PersistTimeout: 5 * time.Second,
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Only the fields exposed as command-line flags are considered.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.Store.Driver != "" {
		c.Store.Driver = other.Store.Driver
	}
	if other.Store.DatabasePath != "" {
		c.Store.DatabasePath = other.Store.DatabasePath
	}
	if other.Store.DatabaseURL != "" {
		c.Store.DatabaseURL = other.Store.DatabaseURL
	}
}
