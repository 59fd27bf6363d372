package config

import (
	"fmt"
	"io/ioutil"
	"strings"
	"time"

	"com.aviebrantz.statistics/pkg/core/stats"
	"com.aviebrantz.statistics/pkg/core/store/influx"
	"github.com/apex/log"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "./config.yaml"

func LoadConfig() (*PlatformConfig, error) {
	return LoadConfigFromFile(DefaultPath)
}

func LoadConfigFromFile(filename string) (*PlatformConfig, error) {
	content, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Parse(content)
}

// Parse decodes a YAML document, fills in defaults and validates the result.
func Parse(content []byte) (*PlatformConfig, error) {
	config := PlatformConfig{}
	if err := yaml.Unmarshal(content, &config); err != nil {
		return nil, err
	}
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *PlatformConfig) applyDefaults() {
	s := &c.StorageConfig
	if s.Type == "" {
		s.Type = "local"
	}
	if s.URL == "" && s.Type == "local" {
		s.URL = "./statistics.db"
	}
	if s.Influx.URI == "" {
		s.Influx.URI = "http://127.0.0.1:8086"
	}
	if s.Influx.Username == "" {
		s.Influx.Username = "root"
	}
	if s.Influx.Password == "" {
		s.Influx.Password = "root"
	}
	if s.Influx.Database == "" {
		s.Influx.Database = "opencast"
	}
	if s.Influx.Timeout == 0 {
		s.Influx.Timeout = 10 * time.Second
	}

	m := &c.MessagingConfig
	if m.Type == "" {
		m.Type = "mem"
	}
	defaultTopic(&m.Impressions, m.Type, "impressions")
	defaultTopic(&m.Ownership, m.Type, "ownership")

	if c.APIServerConfig.Port == 0 {
		c.APIServerConfig.Port = 8080
	}
	if c.APIServerConfig.Prefix == "" {
		c.APIServerConfig.Prefix = "/statistics"
	}
	c.APIServerConfig.Prefix = "/" + strings.Trim(c.APIServerConfig.Prefix, "/")

	if c.MetricsConfig.Port == 0 {
		c.MetricsConfig.Port = 8888
	}
	if c.MetricsConfig.Namespace == "" {
		c.MetricsConfig.Namespace = "statistics"
	}

	if c.LoggingConfig.Level == "" {
		c.LoggingConfig.Level = "info"
	}
	if c.LoggingConfig.Format == "" {
		c.LoggingConfig.Format = "cli"
	}

	st := &c.StatisticsConfig
	if st.Timezone == "" {
		st.Timezone = "UTC"
	}
	if st.MaxParallelQueries == 0 {
		st.MaxParallelQueries = 4
	}
	if st.Measurement == "" {
		st.Measurement = "impressions"
	}
	if st.Ownership.EpisodePath == "" {
		st.Ownership.EpisodePath = "episodeId"
	}
	if st.Ownership.SeriesPath == "" {
		st.Ownership.SeriesPath = "seriesId"
	}
	if st.Ownership.EpisodeColumn == "" {
		st.Ownership.EpisodeColumn = "episodeId"
	}
	if st.Ownership.SeriesColumn == "" {
		st.Ownership.SeriesColumn = "seriesId"
	}
	if st.Ownership.MaxRetries == 0 {
		st.Ownership.MaxRetries = 5
	}
	if st.Ownership.RetryInterval == 0 {
		st.Ownership.RetryInterval = 500 * time.Millisecond
	}
}

func defaultTopic(t *TopicConfig, busType, name string) {
	if t.Topic == "" {
		t.Topic = busType + "://" + name
	}
	if t.Subscription == "" {
		t.Subscription = t.Topic
	}
}

// Validate checks the values that cannot be defaulted.
func (c *PlatformConfig) Validate() error {
	switch c.StorageConfig.Type {
	case "local", "docstore", "influx":
	default:
		return fmt.Errorf("storage: unknown type %q", c.StorageConfig.Type)
	}
	if c.StorageConfig.Type == "docstore" && c.StorageConfig.URL == "" {
		return fmt.Errorf("storage: docstore needs an url")
	}
	for name, port := range map[string]int{"api": c.APIServerConfig.Port, "metrics": c.MetricsConfig.Port} {
		if port < 1 || port > 65535 {
			return fmt.Errorf("%s: invalid port %d", name, port)
		}
	}
	tls := c.APIServerConfig.TLS
	if tls.Enabled && (tls.CertFile == "") != (tls.KeyFile == "") {
		return fmt.Errorf("api.tls: cert_file and key_file go together")
	}
	if _, err := log.ParseLevel(c.LoggingConfig.Level); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	switch c.LoggingConfig.Format {
	case "cli", "json", "text":
	default:
		return fmt.Errorf("logging: unknown format %q", c.LoggingConfig.Format)
	}
	if c.StatisticsConfig.MaxParallelQueries < 1 {
		return fmt.Errorf("statistics: max_parallel_queries must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.Providers(); err != nil {
		return err
	}
	return nil
}

// Location is the default viewing timezone.
func (c *PlatformConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.StatisticsConfig.Timezone)
	if err != nil {
		return nil, fmt.Errorf("statistics: timezone %q: %w", c.StatisticsConfig.Timezone, err)
	}
	return loc, nil
}

// Providers converts the configured providers, or returns the built-in view
// providers when none are configured.
func (c *PlatformConfig) Providers() ([]stats.ProviderConfig, error) {
	st := c.StatisticsConfig
	if len(st.Providers) == 0 {
		return stats.DefaultProviders(st.Measurement), nil
	}
	providers := make([]stats.ProviderConfig, 0, len(st.Providers))
	for i, p := range st.Providers {
		resourceType, err := stats.ParseResourceType(p.ResourceType)
		if err != nil {
			return nil, fmt.Errorf("statistics.providers[%d]: %w", i, err)
		}
		resolutions := make([]stats.Resolution, 0, len(p.Resolutions))
		for _, name := range p.Resolutions {
			r, err := stats.ParseResolution(name)
			if err != nil {
				return nil, fmt.Errorf("statistics.providers[%d]: %w", i, err)
			}
			resolutions = append(resolutions, r)
		}
		measurement := p.Measurement
		if measurement == "" {
			measurement = st.Measurement
		}
		aggregation := p.Aggregation
		if aggregation == "" {
			aggregation = "SUM"
		}
		variable := p.AggregationVariable
		if variable == "" {
			variable = "value"
		}
		providers = append(providers, stats.ProviderConfig{
			ID:                  p.ID,
			ResourceType:        resourceType,
			Kind:                p.Kind,
			Title:               p.Title,
			Description:         p.Description,
			AggregationFunction: aggregation,
			AggregationVariable: variable,
			Measurement:         measurement,
			ResourceIDColumn:    p.ResourceIDName,
			Resolutions:         resolutions,
		})
	}
	// Registry validation catches the remaining mistakes.
	if _, err := stats.NewRegistry(providers); err != nil {
		return nil, fmt.Errorf("statistics.providers: %w", err)
	}
	return providers, nil
}

// Measurements lists the distinct measurements read by the providers.
func (c *PlatformConfig) Measurements() []string {
	providers, err := c.Providers()
	if err != nil {
		return []string{c.StatisticsConfig.Measurement}
	}
	seen := make(map[string]bool)
	list := make([]string, 0)
	for _, p := range providers {
		if !seen[p.Measurement] {
			seen[p.Measurement] = true
			list = append(list, p.Measurement)
		}
	}
	return list
}

func (c *PlatformConfig) InfluxSnapshot() influx.Snapshot {
	i := c.StorageConfig.Influx
	return influx.Snapshot{
		URI:      i.URI,
		Username: i.Username,
		Password: i.Password,
		Database: i.Database,
		Timeout:  i.Timeout,
	}
}
