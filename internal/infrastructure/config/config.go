package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Correlation modes accepted by relay.mode.
const (
	ModeRetire     = "retire"
	ModePersistent = "persistent"
)

// Config is the root configuration structure for hamrelay.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Relay     RelayConfig     `yaml:"relay"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Database  DatabaseConfig  `yaml:"database"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// RelayConfig contains the command relay settings.
type RelayConfig struct {
	// BaseTopic prefixes the receive, reply, status and LWT topics.
	// Default: "hamqtt"
	BaseTopic string `yaml:"base_topic" env:"HAMRELAY_BASE_TOPIC"`

	// CommandsFile is the path to the YAML command table.
	CommandsFile string `yaml:"commands_file" env:"HAMRELAY_COMMANDS_FILE"`

	// Mode selects how pending queries are retired: "retire" answers each
	// query once, "persistent" keeps every query pending forever.
	// Defaults to "retire"; "persistent" is the classic behaviour and must
	// be selected explicitly.
	Mode string `yaml:"mode" env:"HAMRELAY_MODE"`

	// QueryTimeout is how long a query waits for its response (seconds).
	// Only used in retire mode. 0 disables expiry.
	QueryTimeout int `yaml:"query_timeout"`

	// SweepInterval is how often expired queries are dropped (seconds).
	SweepInterval int `yaml:"sweep_interval"`

	// MonitorSubtopics are joined to BaseTopic and subscribed for logging
	// only; traffic on them is reported as unattended.
	MonitorSubtopics []string `yaml:"monitor_subtopics"`

	// QoS is used for every relay publish and subscribe.
	QoS int `yaml:"qos"`
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
	Host     string `yaml:"host" env:"HAMRELAY_MQTT_HOST"`
	Port     int    `yaml:"port" env:"HAMRELAY_MQTT_PORT"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id" env:"HAMRELAY_MQTT_CLIENT_ID"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username" env:"HAMRELAY_MQTT_USERNAME"`
	Password string `yaml:"password" env:"HAMRELAY_MQTT_PASSWORD"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// DatabaseConfig contains SQLite settings for the relay history.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path" env:"HAMRELAY_DATABASE_PATH"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// RetentionDays drops history older than this many days at startup.
	// 0 keeps everything.
	RetentionDays int `yaml:"retention_days"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url" env:"HAMRELAY_INFLUXDB_URL"`
	Token         string `yaml:"token" env:"HAMRELAY_INFLUXDB_TOKEN"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains HTTP status API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host" env:"HAMRELAY_API_HOST"`
	Port     int              `yaml:"port" env:"HAMRELAY_API_PORT"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains live event feed settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level" env:"HAMRELAY_LOG_LEVEL"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables are declared on the struct fields, e.g.
// HAMRELAY_MQTT_HOST or HAMRELAY_MQTT_PASSWORD.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Relay: RelayConfig{
			BaseTopic:     "hamqtt",
			CommandsFile:  "configs/commands.yaml",
			Mode:          ModeRetire,
			QueryTimeout:  30,
			SweepInterval: 5,
			QoS:           0,

			MonitorSubtopics: []string{"stat", "net"},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "hamrelay",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 2,
				MaxDelay:     64,
			},
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/hamrelay.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  15,
				Write: 15,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 4096,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "./logs/hamrelay.log",
				MaxSize:    10,
				MaxBackups: 3,
				MaxAge:     28,
			},
		},
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Relay validation
	if c.Relay.BaseTopic == "" {
		errs = append(errs, "relay.base_topic is required")
	}
	if strings.ContainsAny(c.Relay.BaseTopic, "+#") {
		errs = append(errs, "relay.base_topic must not contain MQTT wildcards")
	}
	if c.Relay.CommandsFile == "" {
		errs = append(errs, "relay.commands_file is required")
	}
	if c.Relay.Mode != ModeRetire && c.Relay.Mode != ModePersistent {
		errs = append(errs, fmt.Sprintf("relay.mode %q is invalid (use retire or persistent)", c.Relay.Mode))
	}
	if c.Relay.QueryTimeout < 0 {
		errs = append(errs, "relay.query_timeout must not be negative")
	}
	if c.Relay.SweepInterval < 1 {
		errs = append(errs, "relay.sweep_interval must be at least 1 second")
	}
	if c.Relay.QoS < 0 || c.Relay.QoS > 2 {
		errs = append(errs, "relay.qos must be 0, 1, or 2")
	}

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the database is enabled")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Logging validation
	switch strings.ToLower(c.Logging.Output) {
	case "stdout", "stderr":
	case "file":
		if c.Logging.File.Path == "" {
			errs = append(errs, "logging.file.path is required when logging.output is file")
		}
	default:
		errs = append(errs, fmt.Sprintf("logging.output %q is invalid (use stdout, stderr, or file)", c.Logging.Output))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetQueryTimeout returns the relay query timeout as a Duration.
func (c *Config) GetQueryTimeout() time.Duration {
	return time.Duration(c.Relay.QueryTimeout) * time.Second
}

// GetSweepInterval returns the pending query sweep interval as a Duration.
func (c *Config) GetSweepInterval() time.Duration {
	return time.Duration(c.Relay.SweepInterval) * time.Second
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
