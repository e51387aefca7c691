package config

import (
	"time"

	"covid-parser/pkg/logger"
	"covid-parser/pkg/source"
)

type Config struct {
	Cache   CacheConfig   `mapstructure:"cache"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Sources SourcesConfig `mapstructure:"sources"`
	Server  ServerConfig  `mapstructure:"server"`
	Logger  logger.Config `mapstructure:"logger"`
}

// CacheConfig selects the refresh policy: 0 always refetch, 1 refetch after
// Interval uses, 2 refetch after Interval seconds.
type CacheConfig struct {
	Policy   int   `mapstructure:"policy"`
	Interval int64 `mapstructure:"interval"`
}

type HTTPConfig struct {
	TimeoutMs int    `mapstructure:"timeout_ms"`
	UserAgent string `mapstructure:"user_agent"`
}

func (h HTTPConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutMs) * time.Millisecond
}

type SourcesConfig struct {
	DomesticURL           string                   `mapstructure:"domestic_url"`
	RecoveriesURL         string                   `mapstructure:"recoveries_url"`
	ForeignURL            string                   `mapstructure:"foreign_url"`
	National              map[string]source.Layout `mapstructure:"national"`
	StateTables           map[string]int           `mapstructure:"state_tables"`
	StateRecoveriesColumn int                      `mapstructure:"state_recoveries_column"`
}

// Endpoints overlays configured values on the built-in upstream layout.
func (s SourcesConfig) Endpoints() source.Endpoints {
	e := source.DefaultEndpoints()
	if s.DomesticURL != "" {
		e.DomesticURL = s.DomesticURL
	}
	if s.RecoveriesURL != "" {
		e.RecoveriesURL = s.RecoveriesURL
	}
	if s.ForeignURL != "" {
		e.ForeignURL = s.ForeignURL
	}
	for name, layout := range s.National {
		if dt, err := source.ParseDataType(name); err == nil {
			e.National[dt] = layout
		}
	}
	for name, table := range s.StateTables {
		if dt, err := source.ParseDataType(name); err == nil && dt != source.Recoveries {
			e.StateTables[dt] = table
		}
	}
	if s.StateRecoveriesColumn > 0 {
		e.StateRecoveriesColumn = s.StateRecoveriesColumn
	}
	return e
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type Manager interface {
	Load(configPath string) (*Config, error)
	Reload() error
	GetConfig() *Config
}
