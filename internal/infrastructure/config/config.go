package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Venstar bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Venstar   VenstarConfig   `yaml:"venstar"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// VenstarConfig contains the thermostat polling and discovery settings.
type VenstarConfig struct {
	// ShortPoll is the live state refresh interval in seconds. Default: 10
	ShortPoll int `yaml:"short_poll"`

	// LongPoll is the sensor, alert and runtime refresh interval in seconds.
	// Default: 60
	LongPoll int `yaml:"long_poll"`

	// Hostname is an optional semicolon-separated list of thermostat hosts.
	// When set, network discovery is skipped.
	Hostname string `yaml:"hostname"`

	// PIN is accepted for compatibility with PIN-protected thermostats.
	// It is currently not sent to devices.
	PIN string `yaml:"pin"`

	// DiscoveryTimeout bounds the SSDP search window in seconds. Default: 10
	DiscoveryTimeout int `yaml:"discovery_timeout"`

	// OfflineAfterFailures marks a thermostat offline (GV0=0) after this many
	// consecutive failed short polls. 0 keeps the last reflected state forever.
	OfflineAfterFailures int `yaml:"offline_after_failures"`

	// CommandTimeout bounds one controller command end to end, in seconds.
	// Default: 10
	CommandTimeout int `yaml:"command_timeout"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains the status API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket stream settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings for the status API.
// An empty secret disables authentication on write endpoints.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: VENSTAR_SECTION_KEY
// For example: VENSTAR_HOSTNAME, VENSTAR_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Venstar: VenstarConfig{
			ShortPoll:        10,
			LongPoll:         60,
			DiscoveryTimeout: 10,
			CommandTimeout:   10,
		},
		Database: DatabaseConfig{
			Path:        "./data/venstar.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "venstar-bridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Venstar
	if v := os.Getenv("VENSTAR_HOSTNAME"); v != "" {
		cfg.Venstar.Hostname = v
	}
	if v := os.Getenv("VENSTAR_PIN"); v != "" {
		cfg.Venstar.PIN = v
	}
	if n, ok := envInt("VENSTAR_SHORT_POLL"); ok {
		cfg.Venstar.ShortPoll = n
	}
	if n, ok := envInt("VENSTAR_LONG_POLL"); ok {
		cfg.Venstar.LongPoll = n
	}

	// Database
	if v := os.Getenv("VENSTAR_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("VENSTAR_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("VENSTAR_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("VENSTAR_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("VENSTAR_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("VENSTAR_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("VENSTAR_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// envInt reads an integer environment variable. Unparseable values are ignored.
func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Venstar.ShortPoll < 1 {
		errs = append(errs, "venstar.short_poll must be at least 1 second")
	}
	if c.Venstar.LongPoll < 1 {
		errs = append(errs, "venstar.long_poll must be at least 1 second")
	}
	if c.Venstar.DiscoveryTimeout < 1 {
		errs = append(errs, "venstar.discovery_timeout must be at least 1 second")
	}
	if c.Venstar.OfflineAfterFailures < 0 {
		errs = append(errs, "venstar.offline_after_failures must not be negative")
	}
	if c.Venstar.CommandTimeout < 1 {
		errs = append(errs, "venstar.command_timeout must be at least 1 second")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// Empty disables API auth.
	const minJWTSecretLength = 32
	if s := c.Security.JWT.Secret; s != "" && len(s) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ShortPollInterval returns the short poll interval as a Duration.
func (c *Config) ShortPollInterval() time.Duration {
	return time.Duration(c.Venstar.ShortPoll) * time.Second
}

// LongPollInterval returns the long poll interval as a Duration.
func (c *Config) LongPollInterval() time.Duration {
	return time.Duration(c.Venstar.LongPoll) * time.Second
}

// DiscoveryTimeout returns the SSDP search window as a Duration.
func (c *Config) DiscoveryTimeout() time.Duration {
	return time.Duration(c.Venstar.DiscoveryTimeout) * time.Second
}

// CommandTimeout returns the per-command deadline as a Duration.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Venstar.CommandTimeout) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
