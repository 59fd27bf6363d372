package stats

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryResolveDefaults(t *testing.T) {
	r, err := NewRegistry(DefaultProviders("impressions"))
	require.NoError(t, err)

	p, err := r.Resolve(Series, "VIEWS")
	require.NoError(t, err)
	assert.Equal(t, "seriesId", p.ResourceIDColumn)
	assert.Equal(t, "SUM", p.AggregationFunction)
	assert.True(t, p.Cumulative())

	_, err = r.Resolve(Episode, "downloads")
	assert.True(t, errors.Is(err, ErrUnknownStatistic))

	p, err = r.ByID("organization.views")
	require.NoError(t, err)
	assert.Equal(t, Organization, p.ResourceType)

	_, err = r.ByID("nope")
	assert.True(t, errors.Is(err, ErrUnknownStatistic))
}

func TestRegistryNormalizesProviders(t *testing.T) {
	r, err := NewRegistry([]ProviderConfig{{
		ResourceType:        Episode,
		AggregationFunction: "avg",
		AggregationVariable: "duration",
		Measurement:         "impressions",
		ResourceIDColumn:    "episodeId",
	}})
	require.NoError(t, err)

	p, err := r.Resolve(Episode, KindViews)
	require.NoError(t, err)
	assert.Equal(t, "episode.views", p.ID)
	assert.Equal(t, "AVG", p.AggregationFunction)
	assert.False(t, p.Cumulative())
}

func TestRegistryRejectsInvalidProviders(t *testing.T) {
	valid := DefaultProviders("impressions")
	r, err := NewRegistry(valid)
	require.NoError(t, err)

	bad := []ProviderConfig{
		{ID: "a", ResourceType: Episode, AggregationFunction: "MEDIAN", AggregationVariable: "value", Measurement: "m", ResourceIDColumn: "episodeId"},
		{ID: "b", ResourceType: Episode, AggregationFunction: "SUM", AggregationVariable: "value", Measurement: "m"},
	}
	for _, p := range bad {
		assert.Error(t, r.Replace([]ProviderConfig{p}), p.ID)
	}
	assert.Error(t, r.Replace(append(valid, valid[0])))

	// Failed replacements keep the previous snapshot.
	assert.Len(t, r.Providers(""), 3)
}

func TestRegistryProvidersFilterAndOrder(t *testing.T) {
	providers := append(DefaultProviders("impressions"), ProviderConfig{
		ID:                  "episode.duration",
		ResourceType:        Episode,
		Kind:                "duration",
		AggregationFunction: "AVG",
		AggregationVariable: "duration",
		Measurement:         "impressions",
		ResourceIDColumn:    "episodeId",
		Resolutions:         []Resolution{Daily, Monthly},
	})
	r, err := NewRegistry(providers)
	require.NoError(t, err)

	list := r.Providers(Episode)
	require.Len(t, list, 2)
	assert.Equal(t, "episode.duration", list[0].ID)
	assert.Equal(t, "episode.views", list[1].ID)
	assert.True(t, list[0].Supports(Daily))
	assert.False(t, list[0].Supports(Hourly))
	assert.True(t, list[1].Supports(Hourly))
	assert.Len(t, r.Providers(""), 4)
}

func TestRegistryConcurrentReplace(t *testing.T) {
	r, err := NewRegistry(DefaultProviders("impressions"))
	require.NoError(t, err)
	other := DefaultProviders("plays")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = r.Replace(other)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				list := r.Providers("")
				assert.Len(t, list, 3)
				// All providers come from the same snapshot.
				for _, p := range list {
					assert.Equal(t, list[0].Measurement, p.Measurement)
				}
			}
		}()
	}
	wg.Wait()
}
