// Package config handles loading and hot-reloading service configuration
// from a YAML file and PAGEVOICE_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	yaml "gopkg.in/yaml.v2"

	"github.com/pagevoice/pagevoice/internal/ledger"
)

// Config is the full service configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server" yaml:"server"`
	NATS   NATSConfig   `mapstructure:"nats" yaml:"nats"`
	Store  StoreConfig  `mapstructure:"store" yaml:"store"`
	Costs  ledger.Costs `mapstructure:"costs" yaml:"costs"`
	Limits LimitsConfig `mapstructure:"limits" yaml:"limits"`
	TTS    TTSConfig    `mapstructure:"tts" yaml:"tts"`

	// AdminEmail receives review notifications.
	AdminEmail string `mapstructure:"admin_email" yaml:"admin_email"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`
}

// NATSConfig holds connection settings for the message bus. The task stream,
// status bucket, and blob bucket all live on the same JetStream deployment.
type NATSConfig struct {
	URL        string `mapstructure:"url" yaml:"url"`
	BlobBucket string `mapstructure:"blob_bucket" yaml:"blob_bucket"`
}

// StoreConfig holds document store settings.
type StoreConfig struct {
	// SQLitePath is the database file; ":memory:" for tests.
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

// LimitsConfig holds operational bounds.
type LimitsConfig struct {
	MaxPagesPerBatch int   `mapstructure:"max_pages_per_batch" yaml:"max_pages_per_batch"`
	MaxUploadBytes   int64 `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
	MergeTimeoutSec  int   `mapstructure:"merge_timeout_sec" yaml:"merge_timeout_sec"`
	FetchConcurrency int   `mapstructure:"fetch_concurrency" yaml:"fetch_concurrency"`
}

// TTSConfig holds speech engine settings for workers.
type TTSConfig struct {
	URL         string  `mapstructure:"url" yaml:"url"`
	Language    string  `mapstructure:"language" yaml:"language"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
	TimeoutSec  int     `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a config manager and loads the initial config.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

func (cm *Manager) initViper(cfgFile string) error {
	defaults := DefaultConfig()
	viper.SetDefault("server", defaults.Server)
	viper.SetDefault("nats", defaults.NATS)
	viper.SetDefault("store", defaults.Store)
	viper.SetDefault("costs", defaults.Costs)
	viper.SetDefault("limits", defaults.Limits)
	viper.SetDefault("tts", defaults.TTS)
	viper.SetDefault("admin_email", defaults.AdminEmail)

	viper.SetEnvPrefix("PAGEVOICE")
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.pagevoice")
	}

	// The config file is optional; defaults and env cover everything.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
func (cm *Manager) WatchConfig() {
	viper.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	viper.WatchConfig()
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# PageVoice configuration
# Every value can be overridden with a PAGEVOICE_-prefixed environment variable.

`)
	return writeFile(path, append(header, data...))
}
