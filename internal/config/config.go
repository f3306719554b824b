// YAML config loader with CUE validation integration
package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"droneops-relay/internal/logging"
)

// Server configures the HTTP listener.
type Server struct {
	ListenAddr      string        `yaml:"listen_addr"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Push configures websocket viewer sessions.
type Push struct {
	SendBuffer      int           `yaml:"send_buffer"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	MaxMessageBytes int64         `yaml:"max_message_bytes"`
}

// Store selects the primary record store.
type Store struct {
	Backend       string `yaml:"backend"`
	SQLitePath    string `yaml:"sqlite_path"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

// SeedKey is an API key provisioned at startup.
type SeedKey struct {
	APIKey  string `yaml:"api_key"`
	DroneID string `yaml:"drone_id"`
	Active  *bool  `yaml:"active"`
}

// IsActive defaults to true when active is omitted.
func (k SeedKey) IsActive() bool { return k.Active == nil || *k.Active }

// Credentials selects where API keys are looked up.
type Credentials struct {
	Backend       string    `yaml:"backend"`
	RedisAddr     string    `yaml:"redis_addr"`
	RedisPassword string    `yaml:"redis_password"`
	RedisDB       int       `yaml:"redis_db"`
	Seed          []SeedKey `yaml:"seed"`
}

// Greptime mirrors scan rows into GreptimeDB when Endpoint is set.
type Greptime struct {
	Endpoint string `yaml:"endpoint"`
	Database string `yaml:"database"`
	Table    string `yaml:"table"`
}

// Sinks are optional extra destinations for scan rows.
type Sinks struct {
	Greptime Greptime `yaml:"greptime"`
	File     string   `yaml:"file"`
}

// Viewer configures the consuming side.
type Viewer struct {
	ServerURL         string        `yaml:"server_url"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// RelayConfig is the root configuration.
type RelayConfig struct {
	Server         Server          `yaml:"server"`
	Push           Push            `yaml:"push"`
	Store          Store           `yaml:"store"`
	Credentials    Credentials     `yaml:"credentials"`
	Sinks          Sinks           `yaml:"sinks"`
	Logging        logging.Options `yaml:"logging"`
	Viewer         Viewer          `yaml:"viewer"`
	LivenessWindow time.Duration   `yaml:"liveness_window"`
}

// Default returns the configuration used when no file is given.
func Default() *RelayConfig {
	return &RelayConfig{
		Server: Server{
			ListenAddr:      ":8080",
			MaxBodyBytes:    8 << 20,
			ShutdownTimeout: 10 * time.Second,
		},
		Push: Push{
			SendBuffer:      64,
			WriteTimeout:    5 * time.Second,
			PingInterval:    30 * time.Second,
			MaxMessageBytes: 4 << 20,
		},
		Store: Store{
			Backend:       "memory",
			SQLitePath:    "relay.db",
			MongoDatabase: "droneops",
		},
		Credentials: Credentials{Backend: "store"},
		Sinks: Sinks{
			Greptime: Greptime{Database: "public", Table: "drone_scans"},
		},
		Logging: logging.Options{Level: "info", Format: "text", MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 28},
		Viewer: Viewer{
			ServerURL:         "http://localhost:8080",
			PollInterval:      100 * time.Millisecond,
			HandshakeTimeout:  3 * time.Second,
			ReconnectInterval: 5 * time.Second,
		},
		LivenessWindow: 30 * time.Second,
	}
}

// Load reads the YAML file at configPath, validates it against the CUE
// schema at cueSchemaPath (embedded schema when empty), and layers it
// over Default. An empty configPath returns Default.
func Load(configPath, cueSchemaPath string) (*RelayConfig, error) {
	cfg := Default()
	if configPath == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables.
func (c *RelayConfig) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Server.ListenAddr, "RELAY_LISTEN_ADDR")
	set(&c.Store.Backend, "RELAY_STORE")
	set(&c.Store.SQLitePath, "SQLITE_PATH")
	set(&c.Store.MongoURI, "MONGO_URI")
	set(&c.Sinks.Greptime.Endpoint, "GREPTIMEDB_ENDPOINT")
	set(&c.Sinks.Greptime.Database, "GREPTIMEDB_DATABASE")
	set(&c.Sinks.Greptime.Table, "GREPTIMEDB_TABLE")
	set(&c.Logging.Level, "LOG_LEVEL")
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Credentials.RedisAddr = v
		c.Credentials.Backend = "redis"
	}
	if v := getenv("POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid POLL_INTERVAL: %w", err)
		}
		c.Viewer.PollInterval = d
	}
	if v := getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		c.Credentials.RedisDB = n
	}
	return c.Check()
}

// Check validates cross-field constraints the schema cannot express.
func (c *RelayConfig) Check() error {
	switch c.Store.Backend {
	case "memory":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite backend")
		}
	case "mongo":
		if c.Store.MongoURI == "" {
			return fmt.Errorf("store.mongo_uri is required for the mongo backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	switch c.Credentials.Backend {
	case "store":
	case "redis":
		if c.Credentials.RedisAddr == "" {
			return fmt.Errorf("credentials.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown credentials backend %q", c.Credentials.Backend)
	}
	if c.Viewer.PollInterval <= 0 {
		return fmt.Errorf("viewer.poll_interval must be positive")
	}
	return nil
}
