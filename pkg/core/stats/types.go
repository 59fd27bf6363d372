package stats

import (
	"fmt"
	"strings"
	"time"

	"com.aviebrantz.statistics/pkg/core/store/historical"
)

type ResourceType string

const (
	Episode      ResourceType = "episode"
	Series       ResourceType = "series"
	Organization ResourceType = "organization"
)

// ParseResourceType accepts the resource type names in any case.
func ParseResourceType(s string) (ResourceType, error) {
	switch t := ResourceType(strings.ToLower(s)); t {
	case Episode, Series, Organization:
		return t, nil
	}
	return "", fmt.Errorf("%w: resource type %q", ErrUnknownStatistic, s)
}

// ProviderConfig describes how one statistic is read out of the store.
type ProviderConfig struct {
	ID                  string
	ResourceType        ResourceType
	Kind                string
	Title               string
	Description         string
	AggregationFunction string
	AggregationVariable string
	Measurement         string
	ResourceIDColumn    string
	// Resolutions limits the resolutions the provider answers; empty means all.
	Resolutions []Resolution
}

// Cumulative reports whether values accumulate across buckets.
func (c ProviderConfig) Cumulative() bool {
	return strings.EqualFold(c.AggregationFunction, historical.FunctionSum)
}

// Supports reports whether the provider answers queries at r.
func (c ProviderConfig) Supports(r Resolution) bool {
	if len(c.Resolutions) == 0 {
		return true
	}
	for _, s := range c.Resolutions {
		if s == r {
			return true
		}
	}
	return false
}

type TimeSeriesQuery struct {
	ResourceID string
	From       time.Time
	To         time.Time
	Resolution Resolution
	// Location aligns calendar boundaries; nil means UTC.
	Location *time.Location
}

// TimeSeries holds one value per label. Total is nil unless the statistic is
// a sum.
type TimeSeries struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
	Total  *float64  `json:"total,omitempty"`
}

// FormatLabel renders a bucket start as an ISO-8601 UTC instant.
func FormatLabel(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
