package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the hands-free service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Headset   HeadsetConfig   `yaml:"headset"`
}

// ServiceConfig identifies this instance.
type ServiceConfig struct {
	ID   string `yaml:"id" env:"HANDSFREE_SERVICE_ID"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path" env:"HANDSFREE_DATABASE_PATH"`
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
	Host     string `yaml:"host" env:"HANDSFREE_MQTT_HOST"`
	Port     int    `yaml:"port" env:"HANDSFREE_MQTT_PORT"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username" env:"HANDSFREE_MQTT_USERNAME"`
	Password string `yaml:"password" env:"HANDSFREE_MQTT_PASSWORD"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host" env:"HANDSFREE_API_HOST"`
	Port     int              `yaml:"port" env:"HANDSFREE_API_PORT"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
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
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled" env:"HANDSFREE_INFLUXDB_ENABLED"`
	URL           string `yaml:"url" env:"HANDSFREE_INFLUXDB_URL"`
	Token         string `yaml:"token" env:"HANDSFREE_INFLUXDB_TOKEN"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"HANDSFREE_LOG_LEVEL"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`

	// Operators may log in to the API. Passwords are stored as Argon2id
	// PHC strings.
	Operators []OperatorConfig `yaml:"operators"`
}

// OperatorConfig is one API login.
type OperatorConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	// Role is "viewer" or "admin".
	Role string `yaml:"role"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret" env:"HANDSFREE_JWT_SECRET"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// HeadsetConfig tunes the gatekeeper core and its link-layer collaborators.
type HeadsetConfig struct {
	// QueueSize bounds requests waiting for the dispatcher.
	QueueSize int `yaml:"queue_size"`

	// OutboxSize bounds commands waiting to be sent to the link layer.
	OutboxSize int `yaml:"outbox_size"`

	// NotifyBuffer bounds transition events waiting for listeners.
	NotifyBuffer int `yaml:"notify_buffer"`

	// LinkTimeout is the per-command link send timeout in seconds.
	LinkTimeout int `yaml:"link_timeout"`

	// HistoryRetention is how many days transition history and the
	// operator audit log are kept. 0 keeps them forever.
	HistoryRetention int `yaml:"history_retention"`

	// BlueZ configures the D-Bus watcher that confirms link state.
	BlueZ BlueZConfig `yaml:"bluez"`

	// Agent optionally runs the link-layer agent as a child process.
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig describes the supervised link-layer agent. Durations are in
// seconds.
type AgentConfig struct {
	Enabled         bool     `yaml:"enabled" env:"HANDSFREE_AGENT_ENABLED"`
	Binary          string   `yaml:"binary" env:"HANDSFREE_AGENT_BINARY"`
	Args            []string `yaml:"args"`
	Env             []string `yaml:"env"`
	RestartDelay    int      `yaml:"restart_delay"`
	MaxRestartDelay int      `yaml:"max_restart_delay"`
	MaxRestarts     int      `yaml:"max_restarts"`
	StopTimeout     int      `yaml:"stop_timeout"`
}

// BlueZConfig contains BlueZ D-Bus watcher settings.
type BlueZConfig struct {
	Enabled bool   `yaml:"enabled" env:"HANDSFREE_BLUEZ_ENABLED"`
	Adapter string `yaml:"adapter" env:"HANDSFREE_BLUEZ_ADAPTER"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HANDSFREE_SECTION_KEY
// For example: HANDSFREE_DATABASE_PATH, HANDSFREE_API_PORT
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

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			ID:   "handsfree-001",
			Name: "Hands-Free Gateway",
		},
		Database: DatabaseConfig{
			Path:        "./data/handsfree.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "handsfree-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "handsfree",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 15,
			},
		},
		Headset: HeadsetConfig{
			QueueSize:        64,
			OutboxSize:       256,
			NotifyBuffer:     256,
			LinkTimeout:      5,
			HistoryRetention: 30,
			BlueZ: BlueZConfig{
				Adapter: "hci0",
			},
			Agent: AgentConfig{
				RestartDelay:    2,
				MaxRestartDelay: 120,
				StopTimeout:     10,
			},
		},
	}
}

// applyEnvOverrides applies HANDSFREE_* environment variables to the
// fields tagged with env.
func applyEnvOverrides(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parsing environment overrides: %w", err)
	}
	return nil
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Service.ID == "" {
		errs = append(errs, "service.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.Headset.QueueSize < 0 || c.Headset.OutboxSize < 0 || c.Headset.NotifyBuffer < 0 {
		errs = append(errs, "headset queue sizes must not be negative")
	}
	if c.Headset.HistoryRetention < 0 {
		errs = append(errs, "headset.history_retention must not be negative")
	}
	if c.Headset.BlueZ.Enabled && c.Headset.BlueZ.Adapter == "" {
		errs = append(errs, "headset.bluez.adapter is required when bluez is enabled")
	}
	if c.Headset.Agent.Enabled && c.Headset.Agent.Binary == "" {
		errs = append(errs, "headset.agent.binary is required when the agent is enabled")
	}
	if c.Headset.Agent.MaxRestarts < 0 {
		errs = append(errs, "headset.agent.max_restarts must not be negative")
	}

	// Tokens signed with a short secret can be brute-forced offline.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set HANDSFREE_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	seen := make(map[string]bool, len(c.Security.Operators))
	for i, op := range c.Security.Operators {
		switch {
		case op.Username == "" || op.PasswordHash == "":
			errs = append(errs, fmt.Sprintf("security.operators[%d] needs username and password_hash", i))
		case seen[op.Username]:
			errs = append(errs, fmt.Sprintf("security.operators: duplicate username %q", op.Username))
		case op.Role != "viewer" && op.Role != "admin":
			errs = append(errs, fmt.Sprintf("security.operators[%d].role must be viewer or admin", i))
		}
		seen[op.Username] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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

// GetLinkTimeout returns the per-command link send timeout as a Duration.
func (c *Config) GetLinkTimeout() time.Duration {
	return time.Duration(c.Headset.LinkTimeout) * time.Second
}

// GetHistoryRetention returns how long transition history and audit
// entries are kept. Zero means they are never pruned.
func (c *Config) GetHistoryRetention() time.Duration {
	return time.Duration(c.Headset.HistoryRetention) * 24 * time.Hour
}
