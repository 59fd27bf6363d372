package stats

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"com.aviebrantz.statistics/pkg/core/store/historical"
)

const KindViews = "views"

type providerKey struct {
	resourceType ResourceType
	kind         string
}

type registrySnapshot struct {
	byKey map[providerKey]ProviderConfig
	byID  map[string]ProviderConfig
}

// Registry resolves provider configuration. Readers always see one complete
// snapshot; Replace swaps the whole set at once.
type Registry struct {
	snapshot atomic.Value
}

func NewRegistry(providers []ProviderConfig) (*Registry, error) {
	r := &Registry{}
	if err := r.Replace(providers); err != nil {
		return nil, err
	}
	return r, nil
}

// Replace validates providers and installs them as the new snapshot. On error
// the previous snapshot stays in place.
func (r *Registry) Replace(providers []ProviderConfig) error {
	snap := &registrySnapshot{
		byKey: make(map[providerKey]ProviderConfig, len(providers)),
		byID:  make(map[string]ProviderConfig, len(providers)),
	}
	for _, p := range providers {
		if p.ResourceIDColumn == "" || p.Measurement == "" || p.AggregationVariable == "" {
			return fmt.Errorf("provider %q: measurement, resource id column and aggregation variable are required", p.ID)
		}
		if !historical.ValidFunction(p.AggregationFunction) {
			return fmt.Errorf("provider %q: unsupported aggregation %q", p.ID, p.AggregationFunction)
		}
		p.AggregationFunction = strings.ToUpper(p.AggregationFunction)
		p.Kind = strings.ToLower(p.Kind)
		if p.Kind == "" {
			p.Kind = KindViews
		}
		if p.ID == "" {
			p.ID = string(p.ResourceType) + "." + p.Kind
		}
		key := providerKey{resourceType: p.ResourceType, kind: p.Kind}
		if _, dup := snap.byKey[key]; dup {
			return fmt.Errorf("provider %q: duplicate %s statistic for %s", p.ID, p.Kind, p.ResourceType)
		}
		if _, dup := snap.byID[p.ID]; dup {
			return fmt.Errorf("provider %q: duplicate id", p.ID)
		}
		p.Resolutions = append([]Resolution(nil), p.Resolutions...)
		snap.byKey[key] = p
		snap.byID[p.ID] = p
	}
	r.snapshot.Store(snap)
	return nil
}

func (r *Registry) load() *registrySnapshot {
	snap, _ := r.snapshot.Load().(*registrySnapshot)
	if snap == nil {
		return &registrySnapshot{}
	}
	return snap
}

// Resolve looks up the provider for a resource type and statistic kind.
func (r *Registry) Resolve(resourceType ResourceType, kind string) (ProviderConfig, error) {
	p, ok := r.load().byKey[providerKey{resourceType: resourceType, kind: strings.ToLower(kind)}]
	if !ok {
		return ProviderConfig{}, fmt.Errorf("%w: no %s statistic for %s", ErrUnknownStatistic, kind, resourceType)
	}
	return p, nil
}

// ByID looks up a provider by its identifier.
func (r *Registry) ByID(id string) (ProviderConfig, error) {
	p, ok := r.load().byID[id]
	if !ok {
		return ProviderConfig{}, fmt.Errorf("%w: provider %q", ErrUnknownStatistic, id)
	}
	return p, nil
}

// Providers lists the providers for resourceType, or all of them when it is
// empty, ordered by id.
func (r *Registry) Providers(resourceType ResourceType) []ProviderConfig {
	list := make([]ProviderConfig, 0)
	for _, p := range r.load().byID {
		if resourceType == "" || p.ResourceType == resourceType {
			list = append(list, p)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// DefaultProviders are the view counters of the three resource types.
func DefaultProviders(measurement string) []ProviderConfig {
	return []ProviderConfig{
		{
			ID:                  "episode.views",
			ResourceType:        Episode,
			Kind:                KindViews,
			Title:               "Episode views",
			Description:         "Views of a single episode over time",
			AggregationFunction: "SUM",
			AggregationVariable: "value",
			Measurement:         measurement,
			ResourceIDColumn:    "episodeId",
		},
		{
			ID:                  "series.views",
			ResourceType:        Series,
			Kind:                KindViews,
			Title:               "Series views",
			Description:         "Views of all episodes of a series over time",
			AggregationFunction: "SUM",
			AggregationVariable: "value",
			Measurement:         measurement,
			ResourceIDColumn:    "seriesId",
		},
		{
			ID:                  "organization.views",
			ResourceType:        Organization,
			Kind:                KindViews,
			Title:               "Organization views",
			Description:         "Views of all episodes of an organization over time",
			AggregationFunction: "SUM",
			AggregationVariable: "value",
			Measurement:         measurement,
			ResourceIDColumn:    "organizationId",
		},
	}
}
