// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Pacing() PacingConfig
	Resolver() ResolverConfig
	Composer() ComposerConfig
	Pipeline() PipelineConfig
	Store() StoreConfig
	Server() ServerConfig

	// Setters used by CLI flag overrides.
	SetBrowserHeadless(bool)
	SetBrowserStartURL(string)
	SetStoreBackend(string)
	SetServerAddr(string)
}

// Config holds the entire application configuration.
// Fields are exported so viper can unmarshal into them; callers go through the getters.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	PacingCfg   PacingConfig   `mapstructure:"pacing" yaml:"pacing"`
	ResolverCfg ResolverConfig `mapstructure:"resolver" yaml:"resolver"`
	ComposerCfg ComposerConfig `mapstructure:"composer" yaml:"composer"`
	PipelineCfg PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
	StoreCfg    StoreConfig    `mapstructure:"store" yaml:"store"`
	ServerCfg   ServerConfig   `mapstructure:"server" yaml:"server"`
}

var _ Interface = (*Config)(nil)

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Pacing() PacingConfig     { return c.PacingCfg }
func (c *Config) Resolver() ResolverConfig { return c.ResolverCfg }
func (c *Config) Composer() ComposerConfig { return c.ComposerCfg }
func (c *Config) Pipeline() PipelineConfig { return c.PipelineCfg }
func (c *Config) Store() StoreConfig       { return c.StoreCfg }
func (c *Config) Server() ServerConfig     { return c.ServerCfg }

func (c *Config) SetBrowserHeadless(b bool)      { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserStartURL(u string)    { c.BrowserCfg.StartURL = u }
func (c *Config) SetStoreBackend(backend string) { c.StoreCfg.Backend = backend }
func (c *Config) SetServerAddr(addr string)      { c.ServerCfg.Addr = addr }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the Chromium instance the automation drives.
type BrowserConfig struct {
	Headless bool `mapstructure:"headless" yaml:"headless"`
	// RemoteURL attaches to an already running browser (ws://...) instead of launching one.
	// Logged-in sessions usually live in an existing profile, so this is the common setup.
	RemoteURL   string         `mapstructure:"remote_url" yaml:"remote_url"`
	UserDataDir string         `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	StartURL    string         `mapstructure:"start_url" yaml:"start_url"`
	Args        []string       `mapstructure:"args" yaml:"args"`
	Viewport    map[string]int `mapstructure:"viewport" yaml:"viewport"`

	// ActionTimeout bounds a single CDP round trip (click, evaluate, key event).
	ActionTimeout   time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	SnapshotTimeout time.Duration `mapstructure:"snapshot_timeout" yaml:"snapshot_timeout"`
}

// ResolverConfig tunes element waits.
type ResolverConfig struct {
	// MutationDebounce coalesces bursts of DOM mutation events into one re-query.
	MutationDebounce time.Duration `mapstructure:"mutation_debounce" yaml:"mutation_debounce"`
	ListWait         time.Duration `mapstructure:"list_wait" yaml:"list_wait"`
	PanelWait        time.Duration `mapstructure:"panel_wait" yaml:"panel_wait"`
	EditorWait       time.Duration `mapstructure:"editor_wait" yaml:"editor_wait"`
}

// ComposerConfig tunes the messaging panel lifecycle.
type ComposerConfig struct {
	WriteAttempts   int           `mapstructure:"write_attempts" yaml:"write_attempts"`
	CloseTimeout    time.Duration `mapstructure:"close_timeout" yaml:"close_timeout"`
	CloseAnyTimeout time.Duration `mapstructure:"close_any_timeout" yaml:"close_any_timeout"`
	VerifyPrefix    int           `mapstructure:"verify_prefix" yaml:"verify_prefix"`
}

// PipelineConfig tunes the candidate loop.
type PipelineConfig struct {
	MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures" yaml:"max_consecutive_failures"`
	ListRetries            int           `mapstructure:"list_retries" yaml:"list_retries"`
	ListRetryInterval      time.Duration `mapstructure:"list_retry_interval" yaml:"list_retry_interval"`
}

// StoreConfig selects and configures the persisted state backend.
type StoreConfig struct {
	Backend  string         `mapstructure:"backend" yaml:"backend"`
	Badger   BadgerConfig   `mapstructure:"badger" yaml:"badger"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
}

// BadgerConfig configures the embedded badger backend.
type BadgerConfig struct {
	Dir        string `mapstructure:"dir" yaml:"dir"`
	InMemory   bool   `mapstructure:"in_memory" yaml:"in_memory"`
	SyncWrites bool   `mapstructure:"sync_writes" yaml:"sync_writes"`
}

// PostgresConfig holds the database connection details.
type PostgresConfig struct {
	URL string `mapstructure:"url" yaml:"-"`
}

// RedisConfig holds the redis connection details.
type RedisConfig struct {
	URL     string `mapstructure:"url" yaml:"-"`
	Channel string `mapstructure:"channel" yaml:"channel"`
}

// ServerConfig configures the control surface.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Store backend names.
const (
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "courier")
	v.SetDefault("logger.log_file", "courier.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.user_data_dir", "~/.courier/profile")
	v.SetDefault("browser.start_url", "https://www.linkedin.com/hiring/applicants/")
	v.SetDefault("browser.viewport", map[string]int{"width": 1440, "height": 900})
	v.SetDefault("browser.action_timeout", "10s")
	v.SetDefault("browser.snapshot_timeout", "15s")

	// -- Pacing --
	setPacingDefaults(v)

	// -- Resolver --
	v.SetDefault("resolver.mutation_debounce", "150ms")
	v.SetDefault("resolver.list_wait", "15s")
	v.SetDefault("resolver.panel_wait", "12s")
	v.SetDefault("resolver.editor_wait", "30s")

	// -- Composer --
	v.SetDefault("composer.write_attempts", 4)
	v.SetDefault("composer.close_timeout", "5s")
	v.SetDefault("composer.close_any_timeout", "3500ms")
	v.SetDefault("composer.verify_prefix", 40)

	// -- Pipeline --
	v.SetDefault("pipeline.max_consecutive_failures", 3)
	v.SetDefault("pipeline.list_retries", 3)
	v.SetDefault("pipeline.list_retry_interval", "1200ms")

	// -- Store --
	v.SetDefault("store.backend", BackendBadger)
	v.SetDefault("store.badger.dir", "~/.courier/state")
	v.SetDefault("store.badger.in_memory", false)
	v.SetDefault("store.badger.sync_writes", true)
	v.SetDefault("store.redis.channel", "courier:state")

	// -- Server --
	v.SetDefault("server.addr", "127.0.0.1:7878")
	v.SetDefault("server.shutdown_timeout", "10s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Connection strings carry credentials, so they come from the environment.
	v.BindEnv("store.postgres.url", "COURIER_POSTGRES_URL")
	v.BindEnv("store.redis.url", "COURIER_REDIS_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.StoreCfg.Backend == BackendPostgres && cfg.StoreCfg.Postgres.URL == "" {
		cfg.StoreCfg.Postgres.URL = os.Getenv("DATABASE_URL")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.StoreCfg.Backend {
	case BackendBadger:
		if c.StoreCfg.Badger.Dir == "" && !c.StoreCfg.Badger.InMemory {
			return fmt.Errorf("store.badger.dir is required unless store.badger.in_memory is set")
		}
	case BackendPostgres:
		if c.StoreCfg.Postgres.URL == "" {
			return fmt.Errorf("store.postgres.url is required for the postgres backend (COURIER_POSTGRES_URL)")
		}
	case BackendRedis:
		if c.StoreCfg.Redis.URL == "" {
			return fmt.Errorf("store.redis.url is required for the redis backend (COURIER_REDIS_URL)")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("store.backend must be one of badger, postgres, redis, memory; got %q", c.StoreCfg.Backend)
	}
	if c.ComposerCfg.WriteAttempts <= 0 {
		return fmt.Errorf("composer.write_attempts must be a positive integer")
	}
	if c.PipelineCfg.MaxConsecutiveFailures <= 0 {
		return fmt.Errorf("pipeline.max_consecutive_failures must be a positive integer")
	}
	if c.PipelineCfg.ListRetries <= 0 {
		return fmt.Errorf("pipeline.list_retries must be a positive integer")
	}
	if err := c.PacingCfg.Validate(); err != nil {
		return fmt.Errorf("pacing configuration invalid: %w", err)
	}
	return nil
}
