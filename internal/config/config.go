package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment variable, e.g. CHATRELAY_HTTP_PORT
const EnvPrefix = "CHATRELAY"

// ConfigFileEnv names the variable holding an optional JSON config file path
const ConfigFileEnv = "CHATRELAY_CONFIG_FILE"

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Precedence is defaults < environment < JSON file
type Config struct {
	Database  *DatabaseConfig  `json:"database" envconfig:"DATABASE" validate:"required"`
	HTTP      *HTTPConfig      `json:"http" envconfig:"HTTP" validate:"required"`
	WebSocket *WebSocketConfig `json:"websocket" envconfig:"WEBSOCKET" validate:"required"`
	Broker    *BrokerConfig    `json:"broker" envconfig:"BROKER" validate:"required"`
	Chat      *ChatConfig      `json:"chat" envconfig:"CHAT" validate:"required"`
	Log       *LogConfig       `json:"log" envconfig:"LOG" validate:"required"`
}

type DatabaseConfig struct {
	Path           string        `json:"path" validate:"required"`
	MaxConnections int           `json:"max_connections" split_words:"true" validate:"min=1"`
	WriteTimeout   time.Duration `json:"write_timeout" split_words:"true" validate:"gt=0"`
	MigrationsPath string        `json:"migrations_path" split_words:"true"`
}

type HTTPConfig struct {
	Host            string        `json:"host" validate:"required"`
	Port            int           `json:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `json:"read_timeout" split_words:"true" validate:"gt=0"`
	WriteTimeout    time.Duration `json:"write_timeout" split_words:"true" validate:"gt=0"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" split_words:"true" validate:"gt=0"`
}

// FUNCTIONAL DISCOVERY: PongWait must exceed PingInterval or healthy clients are dropped
type WebSocketConfig struct {
	PingInterval   time.Duration `json:"ping_interval" split_words:"true" validate:"gt=0"`
	PongWait       time.Duration `json:"pong_wait" split_words:"true" validate:"gtfield=PingInterval"`
	WriteTimeout   time.Duration `json:"write_timeout" split_words:"true" validate:"gt=0"`
	SendBuffer     int           `json:"send_buffer" split_words:"true" validate:"min=1"`
	MaxMessageSize int64         `json:"max_message_size" split_words:"true" validate:"min=1"`
}

type BrokerConfig struct {
	Driver        string `json:"driver" validate:"oneof=memory redis"`
	RedisAddr     string `json:"redis_addr" split_words:"true" validate:"required_if=Driver redis"`
	RedisPassword string `json:"redis_password" split_words:"true"`
	RedisDB       int    `json:"redis_db" envconfig:"REDIS_DB" validate:"min=0"`
	ChannelPrefix string `json:"channel_prefix" split_words:"true" validate:"required"`
	BufferSize    int    `json:"buffer_size" split_words:"true" validate:"min=1"`
}

// ChatConfig bounds per-user traffic; RateLimit 0 disables limiting
type ChatConfig struct {
	RateLimit       int           `json:"rate_limit" split_words:"true" validate:"min=0"`
	RateWindow      time.Duration `json:"rate_window" split_words:"true" validate:"gt=0"`
	CleanupInterval time.Duration `json:"cleanup_interval" split_words:"true" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `json:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" validate:"oneof=json console"`
}

func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:           "./data/chatrelay.db",
			MaxConnections: 10,
			WriteTimeout:   30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval:   30 * time.Second,
			PongWait:       60 * time.Second,
			WriteTimeout:   5 * time.Second,
			SendBuffer:     100,
			MaxMessageSize: 4096,
		},
		Broker: &BrokerConfig{
			Driver:        "memory",
			ChannelPrefix: "chat.user.",
			BufferSize:    100,
		},
		Chat: &ChatConfig{
			RateLimit:       100,
			RateWindow:      time.Minute,
			CleanupInterval: 5 * time.Minute,
		},
		Log: &LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Addr is the HTTP listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// ApplyEnv overrides fields of c from CHATRELAY_* variables; unset variables leave
// the current value in place
func ApplyEnv(c *Config) error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	return nil
}

// LoadFromEnv returns defaults overridden by the environment
func LoadFromEnv() (*Config, error) {
	config := DefaultConfig()
	if err := ApplyEnv(config); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadConfigWithPrecedence layers defaults, environment and, when path is set, the JSON
// file, then validates the result
func LoadConfigWithPrecedence(path string) (*Config, error) {
	config, err := LoadFromEnv()
	if err != nil {
		return nil, err
	}

	if path != "" {
		if err := ApplyFile(config, path); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadFromFile returns defaults overridden by the JSON file at path
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := ApplyFile(config, path); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

// ConfigFile is the on-disk JSON shape
// FUNCTIONAL DISCOVERY: Separate struct for JSON parsing to handle duration strings
type ConfigFile struct {
	Database  *DatabaseConfigFile  `json:"database"`
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Broker    *BrokerConfig        `json:"broker"`
	Chat      *ChatConfigFile      `json:"chat"`
	Log       *LogConfig           `json:"log"`
}

type DatabaseConfigFile struct {
	Path           string `json:"path"`
	MaxConnections int    `json:"max_connections"`
	WriteTimeout   string `json:"write_timeout"`
	MigrationsPath string `json:"migrations_path"`
}

type HTTPConfigFile struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	ReadTimeout     string `json:"read_timeout"`
	WriteTimeout    string `json:"write_timeout"`
	ShutdownTimeout string `json:"shutdown_timeout"`
}

type WebSocketConfigFile struct {
	PingInterval   string `json:"ping_interval"`
	PongWait       string `json:"pong_wait"`
	WriteTimeout   string `json:"write_timeout"`
	SendBuffer     int    `json:"send_buffer"`
	MaxMessageSize int64  `json:"max_message_size"`
}

// ChatConfigFile uses a pointer for RateLimit so an explicit 0 can disable limiting
type ChatConfigFile struct {
	RateLimit       *int   `json:"rate_limit"`
	RateWindow      string `json:"rate_window"`
	CleanupInterval string `json:"cleanup_interval"`
}

// ApplyFile overrides fields of c with every value present in the JSON file at path
func ApplyFile(c *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := file.apply(c); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	return nil
}

func (f *ConfigFile) apply(c *Config) error {
	d := durations{}

	if db := f.Database; db != nil {
		setString(&c.Database.Path, db.Path)
		setInt(&c.Database.MaxConnections, db.MaxConnections)
		setString(&c.Database.MigrationsPath, db.MigrationsPath)
		d.set(&c.Database.WriteTimeout, "database.write_timeout", db.WriteTimeout)
	}

	if h := f.HTTP; h != nil {
		setString(&c.HTTP.Host, h.Host)
		setInt(&c.HTTP.Port, h.Port)
		d.set(&c.HTTP.ReadTimeout, "http.read_timeout", h.ReadTimeout)
		d.set(&c.HTTP.WriteTimeout, "http.write_timeout", h.WriteTimeout)
		d.set(&c.HTTP.ShutdownTimeout, "http.shutdown_timeout", h.ShutdownTimeout)
	}

	if ws := f.WebSocket; ws != nil {
		d.set(&c.WebSocket.PingInterval, "websocket.ping_interval", ws.PingInterval)
		d.set(&c.WebSocket.PongWait, "websocket.pong_wait", ws.PongWait)
		d.set(&c.WebSocket.WriteTimeout, "websocket.write_timeout", ws.WriteTimeout)
		setInt(&c.WebSocket.SendBuffer, ws.SendBuffer)
		if ws.MaxMessageSize > 0 {
			c.WebSocket.MaxMessageSize = ws.MaxMessageSize
		}
	}

	if b := f.Broker; b != nil {
		setString(&c.Broker.Driver, b.Driver)
		setString(&c.Broker.RedisAddr, b.RedisAddr)
		setString(&c.Broker.RedisPassword, b.RedisPassword)
		setInt(&c.Broker.RedisDB, b.RedisDB)
		setString(&c.Broker.ChannelPrefix, b.ChannelPrefix)
		setInt(&c.Broker.BufferSize, b.BufferSize)
	}

	if ch := f.Chat; ch != nil {
		if ch.RateLimit != nil {
			c.Chat.RateLimit = *ch.RateLimit
		}
		d.set(&c.Chat.RateWindow, "chat.rate_window", ch.RateWindow)
		d.set(&c.Chat.CleanupInterval, "chat.cleanup_interval", ch.CleanupInterval)
	}

	if l := f.Log; l != nil {
		setString(&c.Log.Level, l.Level)
		setString(&c.Log.Format, l.Format)
	}

	return d.err
}

// durations collects the first parse failure so apply can set fields unconditionally
type durations struct {
	err error
}

func (d *durations) set(dst *time.Duration, name, value string) {
	if value == "" || d.err != nil {
		return
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		d.err = fmt.Errorf("invalid duration for %s: %w", name, err)
		return
	}
	*dst = parsed
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func setInt(dst *int, value int) {
	if value > 0 {
		*dst = value
	}
}
