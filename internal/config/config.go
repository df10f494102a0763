package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rdxz2/t3dapi/internal/database"
	"github.com/rdxz2/t3dapi/internal/logging"
	dbconfig "github.com/rdxz2/t3dapi/pkg/database"
)

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and broker logic
type Config struct {
	Database  *dbconfig.Config      `json:"database"`
	Mongo     *database.MongoConfig `json:"mongo"`
	HTTP      *HTTPConfig           `json:"http"`
	WebSocket *WebSocketConfig      `json:"websocket"`
	Broker    *BrokerConfig         `json:"broker"`
	Redis     *RedisConfig          `json:"redis"`
	Log       *logging.Config       `json:"log"`
}

type HTTPConfig struct {
	Port            int           `json:"port"`
	Host            string        `json:"host"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	// AllowedOrigins is used for CORS on the HTTP API and the websocket origin check
	AllowedOrigins []string `json:"allowed_origins"`
}

// FUNCTIONAL DISCOVERY: ReadTimeout is the pong deadline; it must exceed the
// ping interval or healthy idle clients get dropped
type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
	ReadLimit    int64         `json:"read_limit"`
}

// BrokerConfig holds room and relay policy
type BrokerConfig struct {
	ExcludeSender      bool          `json:"exclude_sender"`
	LookupTimeout      time.Duration `json:"lookup_timeout"`
	RateLimitPerMinute int           `json:"rate_limit_per_minute"`
}

// RedisConfig enables the cross-instance relay when Addr is set
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// Enabled reports whether a Redis server was configured
func (c *RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// FUNCTIONAL DISCOVERY: Production-ready defaults: SQLite project store on local
// filesystem, HTTP on 8080, 30s heartbeat, relay disabled
func DefaultConfig() *Config {
	return &Config{
		Database: dbconfig.DefaultConfig(),
		Mongo:    database.DefaultMongoConfig(),
		HTTP: &HTTPConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
			ReadLimit:    128 * 1024,
		},
		Broker: &BrokerConfig{
			ExcludeSender:      true,
			LookupTimeout:      5 * time.Second,
			RateLimitPerMinute: 600,
		},
		Redis: &RedisConfig{},
		Log:   logging.DefaultConfig(),
	}
}

// FUNCTIONAL DISCOVERY: Comprehensive validation prevents invalid system configurations
// Critical for preventing runtime failures in production deployment
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if c.Mongo == nil {
		return fmt.Errorf("mongo configuration is required")
	}
	if c.Mongo.URI != "" && c.Mongo.ConnectTimeout <= 0 {
		return fmt.Errorf("mongo connect timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return fmt.Errorf("HTTP shutdown timeout must be positive")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must be greater than the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}
	if c.WebSocket.ReadLimit <= 0 {
		return fmt.Errorf("WebSocket read limit must be positive")
	}

	if c.Broker == nil {
		return fmt.Errorf("broker configuration is required")
	}
	if c.Broker.LookupTimeout <= 0 {
		return fmt.Errorf("broker lookup timeout must be positive")
	}
	if c.Broker.RateLimitPerMinute <= 0 {
		return fmt.Errorf("broker rate limit must be positive")
	}

	if c.Redis == nil {
		return fmt.Errorf("redis configuration is required")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("redis db cannot be negative")
	}

	if c.Log == nil {
		return fmt.Errorf("log configuration is required")
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}

	return nil
}

// Address returns the HTTP listen address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// FUNCTIONAL DISCOVERY: Environment variable configuration enables deployment flexibility
// Unparseable values are ignored and the default kept
func LoadFromEnv() *Config {
	config := DefaultConfig()

	envInt("T3D_HTTP_PORT", &config.HTTP.Port)
	envString("T3D_HTTP_HOST", &config.HTTP.Host)
	envDuration("T3D_HTTP_READ_TIMEOUT", &config.HTTP.ReadTimeout)
	envDuration("T3D_HTTP_WRITE_TIMEOUT", &config.HTTP.WriteTimeout)
	envDuration("T3D_HTTP_SHUTDOWN_TIMEOUT", &config.HTTP.ShutdownTimeout)
	envList("T3D_HTTP_ALLOWED_ORIGINS", &config.HTTP.AllowedOrigins)

	envString("T3D_DATABASE_PATH", &config.Database.DatabasePath)
	envString("T3D_DATABASE_MIGRATIONS_PATH", &config.Database.MigrationsPath)

	envString("T3D_MONGO_URI", &config.Mongo.URI)
	envString("T3D_MONGO_DATABASE", &config.Mongo.Database)
	envString("T3D_MONGO_COLLECTION", &config.Mongo.Collection)

	envDuration("T3D_WEBSOCKET_PING_INTERVAL", &config.WebSocket.PingInterval)
	envDuration("T3D_WEBSOCKET_READ_TIMEOUT", &config.WebSocket.ReadTimeout)
	envDuration("T3D_WEBSOCKET_WRITE_TIMEOUT", &config.WebSocket.WriteTimeout)
	envInt("T3D_WEBSOCKET_BUFFER_SIZE", &config.WebSocket.BufferSize)

	envBool("T3D_BROKER_EXCLUDE_SENDER", &config.Broker.ExcludeSender)
	envDuration("T3D_BROKER_LOOKUP_TIMEOUT", &config.Broker.LookupTimeout)
	envInt("T3D_BROKER_RATE_LIMIT_PER_MINUTE", &config.Broker.RateLimitPerMinute)

	envString("T3D_REDIS_ADDR", &config.Redis.Addr)
	envString("T3D_REDIS_PASSWORD", &config.Redis.Password)
	envInt("T3D_REDIS_DB", &config.Redis.DB)

	envString("T3D_LOG_LEVEL", &config.Log.Level)
	envString("T3D_LOG_FORMAT", &config.Log.Format)

	return config
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func envList(key string, dst *[]string) {
	if v := os.Getenv(key); v != "" {
		*dst = splitList(v)
	}
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ConfigFile represents the on-disk structure for file-based configuration
// FUNCTIONAL DISCOVERY: Separate struct for parsing to handle duration strings
// and to tell an absent field from a zero value
type ConfigFile struct {
	Database  *DatabaseConfigFile  `json:"database" yaml:"database"`
	Mongo     *MongoConfigFile     `json:"mongo" yaml:"mongo"`
	HTTP      *HTTPConfigFile      `json:"http" yaml:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket" yaml:"websocket"`
	Broker    *BrokerConfigFile    `json:"broker" yaml:"broker"`
	Redis     *RedisConfig         `json:"redis" yaml:"redis"`
	Log       *logging.Config      `json:"log" yaml:"log"`
}

type DatabaseConfigFile struct {
	Path            string `json:"path" yaml:"path"`
	MigrationsPath  string `json:"migrations_path" yaml:"migrations_path"`
	MaxConnections  int    `json:"max_connections" yaml:"max_connections"`
	ConnMaxLifetime string `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime string `json:"conn_max_idle_time" yaml:"conn_max_idle_time"`
}

type MongoConfigFile struct {
	URI            string `json:"uri" yaml:"uri"`
	Database       string `json:"database" yaml:"database"`
	Collection     string `json:"collection" yaml:"collection"`
	ConnectTimeout string `json:"connect_timeout" yaml:"connect_timeout"`
}

type HTTPConfigFile struct {
	Port            int      `json:"port" yaml:"port"`
	Host            string   `json:"host" yaml:"host"`
	ReadTimeout     string   `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    string   `json:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout string   `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	AllowedOrigins  []string `json:"allowed_origins" yaml:"allowed_origins"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval" yaml:"ping_interval"`
	ReadTimeout  string `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout string `json:"write_timeout" yaml:"write_timeout"`
	BufferSize   int    `json:"buffer_size" yaml:"buffer_size"`
	ReadLimit    int64  `json:"read_limit" yaml:"read_limit"`
}

type BrokerConfigFile struct {
	ExcludeSender      *bool  `json:"exclude_sender" yaml:"exclude_sender"`
	LookupTimeout      string `json:"lookup_timeout" yaml:"lookup_timeout"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
}

// LoadFromFile reads a JSON file, or YAML when the extension is .yaml or .yml,
// over the defaults
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, path); err != nil {
		return nil, err
	}

	// ARCHITECTURAL DISCOVERY: Validate configuration after loading to catch errors early
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return config, nil
}

// FUNCTIONAL DISCOVERY: Configuration precedence: file > environment > defaults.
// Unlike the environment, a broken file is an error: a typo must not start the
// broker on silent defaults.
func LoadConfigWithPrecedence(path string) (*Config, error) {
	config := LoadFromEnv()

	if path != "" {
		if err := applyFile(config, path); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

func applyFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file ConfigFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &file)
	default:
		err = json.Unmarshal(data, &file)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := file.apply(config); err != nil {
		return fmt.Errorf("invalid value in config file %s: %w", path, err)
	}
	return nil
}

func (f *ConfigFile) apply(config *Config) error {
	if db := f.Database; db != nil {
		setString(&config.Database.DatabasePath, db.Path)
		setString(&config.Database.MigrationsPath, db.MigrationsPath)
		setInt(&config.Database.MaxConnections, db.MaxConnections)
		if err := setDuration(&config.Database.ConnMaxLifetime, "database.conn_max_lifetime", db.ConnMaxLifetime); err != nil {
			return err
		}
		if err := setDuration(&config.Database.ConnMaxIdleTime, "database.conn_max_idle_time", db.ConnMaxIdleTime); err != nil {
			return err
		}
	}

	if m := f.Mongo; m != nil {
		setString(&config.Mongo.URI, m.URI)
		setString(&config.Mongo.Database, m.Database)
		setString(&config.Mongo.Collection, m.Collection)
		if err := setDuration(&config.Mongo.ConnectTimeout, "mongo.connect_timeout", m.ConnectTimeout); err != nil {
			return err
		}
	}

	if h := f.HTTP; h != nil {
		setInt(&config.HTTP.Port, h.Port)
		setString(&config.HTTP.Host, h.Host)
		if len(h.AllowedOrigins) > 0 {
			config.HTTP.AllowedOrigins = h.AllowedOrigins
		}
		for _, d := range []struct {
			dst   *time.Duration
			field string
			value string
		}{
			{&config.HTTP.ReadTimeout, "http.read_timeout", h.ReadTimeout},
			{&config.HTTP.WriteTimeout, "http.write_timeout", h.WriteTimeout},
			{&config.HTTP.ShutdownTimeout, "http.shutdown_timeout", h.ShutdownTimeout},
		} {
			if err := setDuration(d.dst, d.field, d.value); err != nil {
				return err
			}
		}
	}

	if ws := f.WebSocket; ws != nil {
		setInt(&config.WebSocket.BufferSize, ws.BufferSize)
		if ws.ReadLimit > 0 {
			config.WebSocket.ReadLimit = ws.ReadLimit
		}
		for _, d := range []struct {
			dst   *time.Duration
			field string
			value string
		}{
			{&config.WebSocket.PingInterval, "websocket.ping_interval", ws.PingInterval},
			{&config.WebSocket.ReadTimeout, "websocket.read_timeout", ws.ReadTimeout},
			{&config.WebSocket.WriteTimeout, "websocket.write_timeout", ws.WriteTimeout},
		} {
			if err := setDuration(d.dst, d.field, d.value); err != nil {
				return err
			}
		}
	}

	if b := f.Broker; b != nil {
		if b.ExcludeSender != nil {
			config.Broker.ExcludeSender = *b.ExcludeSender
		}
		setInt(&config.Broker.RateLimitPerMinute, b.RateLimitPerMinute)
		if err := setDuration(&config.Broker.LookupTimeout, "broker.lookup_timeout", b.LookupTimeout); err != nil {
			return err
		}
	}

	if r := f.Redis; r != nil {
		setString(&config.Redis.Addr, r.Addr)
		setString(&config.Redis.Password, r.Password)
		setInt(&config.Redis.DB, r.DB)
	}

	if l := f.Log; l != nil {
		setString(&config.Log.Level, l.Level)
		setString(&config.Log.Format, l.Format)
	}

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, field, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}
