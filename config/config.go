package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"prism-todo/events"
	"prism-todo/storage"
	"prism-todo/store"
)

// EnvPrefix prefixes every environment override, e.g. PRISM_TODO_BACKEND.
const EnvPrefix = "PRISM_TODO"

type Config struct {
	Debug   bool         `mapstructure:"debug"`
	Backend string       `mapstructure:"backend"`
	Key     string       `mapstructure:"key"`
	File    FileConfig   `mapstructure:"file"`
	SQLite  SQLiteConfig `mapstructure:"sqlite"`
	Redis   RedisConfig  `mapstructure:"redis"`
	Table   TableConfig  `mapstructure:"table"`
	Events  EventsConfig `mapstructure:"events"`
	HTTP    HTTPConfig   `mapstructure:"http"`
}

type FileConfig struct {
	Dir string `mapstructure:"dir"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	URL    string `mapstructure:"url"`
	Prefix string `mapstructure:"prefix"`
}

type TableConfig struct {
	ConnectionString string `mapstructure:"connection_string"`
	Name             string `mapstructure:"name"`
	Partition        string `mapstructure:"partition"`
}

type EventsConfig struct {
	Log                   bool          `mapstructure:"log"`
	RedisChannel          string        `mapstructure:"redis_channel"`
	QueueConnectionString string        `mapstructure:"queue_connection_string"`
	QueueName             string        `mapstructure:"queue_name"`
	Workers               int           `mapstructure:"workers"`
	Buffer                int           `mapstructure:"buffer"`
	Timeout               time.Duration `mapstructure:"timeout"`
	HandoffTimeout        time.Duration `mapstructure:"handoff_timeout"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// Dir is the per-user directory holding the config file and local data.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".prism-todo"
	}
	return filepath.Join(home, ".prism-todo")
}

// DefaultPath is the config file read when no path is given.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

func setDefaults(v *viper.Viper) {
	dir := Dir()
	v.SetDefault("debug", false)
	v.SetDefault("backend", storage.BackendFile)
	v.SetDefault("key", store.DefaultKey)
	v.SetDefault("file.dir", dir)
	v.SetDefault("sqlite.path", filepath.Join(dir, "tasks.db"))
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.prefix", "prism-todo:")
	v.SetDefault("table.connection_string", "")
	v.SetDefault("table.name", "tasks")
	v.SetDefault("table.partition", storage.DefaultTablePartition)
	v.SetDefault("events.log", false)
	v.SetDefault("events.redis_channel", "")
	v.SetDefault("events.queue_connection_string", "")
	v.SetDefault("events.queue_name", "")
	v.SetDefault("events.workers", 2)
	v.SetDefault("events.buffer", 64)
	v.SetDefault("events.timeout", 10*time.Second)
	v.SetDefault("events.handoff_timeout", 50*time.Millisecond)
	v.SetDefault("http.addr", ":8080")
}

// Load merges defaults, the YAML config file and PRISM_TODO_* environment
// variables, in increasing precedence. An explicit path must exist; the
// default path is optional.
func Load(path string) (*Config, error) {
	return load(path, path != "")
}

// LoadOptional is Load without the existence check, for commands that
// create the config file.
func LoadOptional(path string) (*Config, error) {
	return load(path, false)
}

func load(path string, mustExist bool) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if mustExist || !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Backend {
	case storage.BackendFile, storage.BackendSQLite, storage.BackendRedis, storage.BackendTable, storage.BackendMemory:
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.Key == "" {
		return errors.New("config: key must not be empty")
	}
	if c.Backend == storage.BackendRedis && c.Redis.URL == "" {
		return errors.New("config: redis backend requires redis.url")
	}
	if c.Backend == storage.BackendTable && c.Table.ConnectionString == "" {
		return errors.New("config: table backend requires table.connection_string")
	}
	if c.Events.Workers < 0 || c.Events.Buffer < 0 {
		return errors.New("config: events.workers and events.buffer must not be negative")
	}
	return nil
}

// StorageOptions selects the slot backend.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Backend:               c.Backend,
		FileDir:               c.File.Dir,
		SQLitePath:            c.SQLite.Path,
		RedisURL:              c.Redis.URL,
		RedisPrefix:           c.Redis.Prefix,
		TableConnectionString: c.Table.ConnectionString,
		TableName:             c.Table.Name,
		TablePartition:        c.Table.Partition,
	}
}

// Resources lists what `init` provisions for the selected backend and
// event transports.
func (c *Config) Resources() storage.Resources {
	var r storage.Resources
	switch c.Backend {
	case storage.BackendSQLite:
		r.SQLitePath = c.SQLite.Path
	case storage.BackendTable:
		r.TableConnectionString = c.Table.ConnectionString
		r.TableName = c.Table.Name
	}
	r.QueueConnectionString = c.Events.QueueConnectionString
	r.QueueName = c.Events.QueueName
	return r
}

// EventOptions selects the event transports. Redis events reuse redis.url.
func (c *Config) EventOptions() events.Options {
	return events.Options{
		Log:                   c.Events.Log,
		RedisURL:              c.Redis.URL,
		RedisChannel:          c.Events.RedisChannel,
		QueueConnectionString: c.Events.QueueConnectionString,
		QueueName:             c.Events.QueueName,
		Dispatcher: events.DispatcherConfig{
			Workers:        c.Events.Workers,
			Buffer:         c.Events.Buffer,
			Timeout:        c.Events.Timeout,
			HandoffTimeout: c.Events.HandoffTimeout,
		},
	}
}

// Save writes the storage and server settings of c as a YAML config file.
// Secrets such as connection strings are left to the environment.
func (c *Config) Save(path string) error {
	doc := map[string]any{
		"backend": c.Backend,
		"key":     c.Key,
		"file":    map[string]any{"dir": c.File.Dir},
		"sqlite":  map[string]any{"path": c.SQLite.Path},
		"redis":   map[string]any{"prefix": c.Redis.Prefix},
		"table":   map[string]any{"name": c.Table.Name, "partition": c.Table.Partition},
		"events": map[string]any{
			"log":             c.Events.Log,
			"workers":         c.Events.Workers,
			"buffer":          c.Events.Buffer,
			"timeout":         c.Events.Timeout.String(),
			"handoff_timeout": c.Events.HandoffTimeout.String(),
		},
		"http": map[string]any{"addr": c.HTTP.Addr},
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
