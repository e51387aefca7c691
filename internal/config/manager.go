package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"covid-parser/pkg/parser"
	"covid-parser/pkg/source"
)

const EnvPrefix = "COVIDPARSER"

type manager struct {
	mu     sync.RWMutex
	config *Config
	viper  *viper.Viper
}

func NewManager() Manager {
	return &manager{
		viper: viper.New(),
	}
}

// Load reads configPath when given and overlays COVIDPARSER_* environment
// variables. An empty path loads defaults and the environment only.
func (m *manager) Load(configPath string) (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setupViper(configPath)

	if configPath != "" {
		if err := m.viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	config, err := m.decode()
	if err != nil {
		return nil, err
	}
	m.config = config
	return config, nil
}

func (m *manager) Reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config == nil {
		return errors.New("config not loaded")
	}

	if m.viper.ConfigFileUsed() != "" {
		if err := m.viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to reload config: %w", err)
		}
	}

	config, err := m.decode()
	if err != nil {
		return err
	}
	m.config = config
	return nil
}

func (m *manager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

func (m *manager) decode() (*Config, error) {
	var config Config
	if err := m.viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

func (m *manager) setupViper(configPath string) {
	if configPath != "" {
		m.viper.SetConfigFile(configPath)
	}

	m.viper.SetEnvPrefix(EnvPrefix)
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	m.viper.AutomaticEnv()

	setDefaults(m.viper)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache.policy", 2)
	v.SetDefault("cache.interval", 300)

	v.SetDefault("http.timeout_ms", int(parser.DefaultTimeout.Milliseconds()))
	v.SetDefault("http.user_agent", parser.DefaultUserAgent)

	v.SetDefault("sources.domestic_url", source.DefaultDomesticURL)
	v.SetDefault("sources.recoveries_url", source.DefaultRecoveriesURL)
	v.SetDefault("sources.foreign_url", source.DefaultForeignURL)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stderr")
}

func validateConfig(config *Config) error {
	if config.Cache.Policy < 0 || config.Cache.Policy > 2 {
		return fmt.Errorf("cache.policy must be 0, 1 or 2, got %d", config.Cache.Policy)
	}

	if config.Cache.Interval < 0 {
		return fmt.Errorf("cache.interval must not be negative")
	}

	if config.HTTP.TimeoutMs <= 0 {
		return fmt.Errorf("http.timeout_ms must be positive")
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if !strings.Contains(config.Sources.ForeignURL, "%s") {
		return fmt.Errorf("sources.foreign_url must contain %%s for the country slug")
	}

	return nil
}
