package config

import "time"

type PlatformConfig struct {
	StorageConfig    StorageConfig    `yaml:"storage"`
	MessagingConfig  MessagingConfig  `yaml:"messaging"`
	APIServerConfig  APIServerConfig  `yaml:"api"`
	MetricsConfig    MetricsConfig    `yaml:"metrics"`
	LoggingConfig    LoggingConfig    `yaml:"logging"`
	StatisticsConfig StatisticsConfig `yaml:"statistics"`
}

type StorageConfig struct {
	// Type is one of local, docstore or influx.
	Type   string       `yaml:"type"`
	URL    string       `yaml:"url"`
	Influx InfluxConfig `yaml:"influx"`
}

type InfluxConfig struct {
	URI      string        `yaml:"uri"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Database string        `yaml:"database"`
	Timeout  time.Duration `yaml:"timeout"`
}

type MessagingConfig struct {
	Type        string      `yaml:"type"`
	Impressions TopicConfig `yaml:"impressions"`
	Ownership   TopicConfig `yaml:"ownership"`
}

type TopicConfig struct {
	Disabled     bool   `yaml:"disabled"`
	Topic        string `yaml:"topic"`
	Subscription string `yaml:"subscription"`
}

type APIServerConfig struct {
	Port   int       `yaml:"port"`
	Prefix string    `yaml:"prefix"`
	TLS    TLSConfig `yaml:"tls"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type MetricsConfig struct {
	Enabled   *bool  `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Namespace string `yaml:"namespace"`
}

// IsEnabled defaults to true when the key is missing.
func (m MetricsConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type StatisticsConfig struct {
	Timezone           string           `yaml:"timezone"`
	MaxParallelQueries int              `yaml:"max_parallel_queries"`
	Measurement        string           `yaml:"measurement"`
	Ownership          OwnershipConfig  `yaml:"ownership"`
	Providers          []ProviderConfig `yaml:"providers"`
}

type OwnershipConfig struct {
	EpisodePath   string        `yaml:"episode_path"`
	SeriesPath    string        `yaml:"series_path"`
	EpisodeColumn string        `yaml:"episode_column"`
	SeriesColumn  string        `yaml:"series_column"`
	MaxRetries    uint64        `yaml:"max_retries"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

type ProviderConfig struct {
	ID                  string   `yaml:"id"`
	ResourceType        string   `yaml:"resource_type"`
	Kind                string   `yaml:"kind"`
	Title               string   `yaml:"title"`
	Description         string   `yaml:"description"`
	Aggregation         string   `yaml:"aggregation"`
	AggregationVariable string   `yaml:"aggregation_variable"`
	Measurement         string   `yaml:"measurement"`
	ResourceIDName      string   `yaml:"resource_id_name"`
	Resolutions         []string `yaml:"resolutions"`
}
