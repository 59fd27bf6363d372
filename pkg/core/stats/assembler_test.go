package stats

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"com.aviebrantz.statistics/pkg/core/store/historical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueryClient struct {
	mu          sync.Mutex
	baseline    *float64
	baselineErr error
	// buckets is keyed by the formatted period start.
	buckets    map[string][]historical.Bucket
	bucketErr  map[string]error
	queries    []historical.BucketQuery
	aggregates []historical.AggregateQuery
}

func (f *fakeQueryClient) QueryBucketed(ctx context.Context, q historical.BucketQuery) ([]historical.Bucket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	key := FormatLabel(q.Start)
	if err := f.bucketErr[key]; err != nil {
		return nil, err
	}
	return f.buckets[key], nil
}

func (f *fakeQueryClient) QuerySingleAggregate(ctx context.Context, q historical.AggregateQuery) (*float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aggregates = append(f.aggregates, q)
	if f.baselineErr != nil {
		return nil, f.baselineErr
	}
	return f.baseline, nil
}

func bucket(t *testing.T, start string, v float64) historical.Bucket {
	return historical.Bucket{Start: mustTime(t, start), Value: historical.Float(v)}
}

func hourlyQuery(t *testing.T, from, to string) TimeSeriesQuery {
	return TimeSeriesQuery{
		ResourceID: "ep-1",
		From:       mustTime(t, from),
		To:         mustTime(t, to),
		Resolution: Hourly,
	}
}

func episodeViews() ProviderConfig {
	return DefaultProviders("impressions")[0]
}

func TestAssembleCumulativeWithBaseline(t *testing.T) {
	client := &fakeQueryClient{
		baseline: historical.Float(10),
		buckets: map[string][]historical.Bucket{
			"2024-01-01T00:00:00Z": {bucket(t, "2024-01-01T00:00:00Z", 5)},
			"2024-01-01T01:00:00Z": {bucket(t, "2024-01-01T01:00:00Z", 0)},
			"2024-01-01T02:00:00Z": {bucket(t, "2024-01-01T02:00:00Z", 3)},
		},
	}
	a := NewAssembler(client, 2)

	series, err := a.Assemble(context.Background(), episodeViews(),
		hourlyQuery(t, "2024-01-01T00:00:00Z", "2024-01-01T03:00:00Z"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"2024-01-01T00:00:00Z",
		"2024-01-01T01:00:00Z",
		"2024-01-01T02:00:00Z",
	}, series.Labels)
	assert.Equal(t, []float64{15, 15, 18}, series.Values)
	require.NotNil(t, series.Total)
	assert.Equal(t, 8.0, *series.Total)

	require.Len(t, client.aggregates, 1)
	assert.Equal(t, mustTime(t, "2024-01-01T00:00:00Z"), client.aggregates[0].Before)
	assert.Equal(t, "episodeId", client.aggregates[0].ResourceColumn)
	require.Len(t, client.queries, 3)
	for _, q := range client.queries {
		assert.Equal(t, time.Hour, q.Width)
		assert.Equal(t, "SUM", q.Function)
		assert.Equal(t, "value", q.Variable)
	}
}

func TestAssembleGapFillsEmptyPeriods(t *testing.T) {
	client := &fakeQueryClient{
		buckets: map[string][]historical.Bucket{
			"2024-01-01T00:00:00Z": {bucket(t, "2024-01-01T00:00:00Z", 4)},
			"2024-01-01T02:00:00Z": {bucket(t, "2024-01-01T02:00:00Z", 1)},
		},
	}
	a := NewAssembler(client, 4)

	series, err := a.Assemble(context.Background(), episodeViews(),
		hourlyQuery(t, "2024-01-01T00:00:00Z", "2024-01-01T03:00:00Z"))
	require.NoError(t, err)

	assert.Len(t, series.Labels, 3)
	assert.Equal(t, "2024-01-01T01:00:00Z", series.Labels[1])
	assert.Equal(t, []float64{4, 4, 5}, series.Values)
	assert.Equal(t, 5.0, *series.Total)
}

func TestAssembleAbsentValuesCountAsZero(t *testing.T) {
	client := &fakeQueryClient{
		baseline: historical.Float(2),
		buckets: map[string][]historical.Bucket{
			"2024-01-01T00:00:00Z": {{Start: mustTime(t, "2024-01-01T00:00:00Z")}},
		},
	}
	series, err := NewAssembler(client, 1).Assemble(context.Background(), episodeViews(),
		hourlyQuery(t, "2024-01-01T00:00:00Z", "2024-01-01T01:00:00Z"))
	require.NoError(t, err)
	assert.Equal(t, []float64{2}, series.Values)
	assert.Equal(t, 0.0, *series.Total)
}

func TestAssembleNonCumulative(t *testing.T) {
	config := episodeViews()
	config.AggregationFunction = historical.FunctionAvg
	client := &fakeQueryClient{
		baseline: historical.Float(100),
		buckets: map[string][]historical.Bucket{
			"2024-01-01T00:00:00Z": {bucket(t, "2024-01-01T00:00:00Z", 2.5)},
			"2024-01-01T02:00:00Z": {bucket(t, "2024-01-01T02:00:00Z", 7)},
		},
	}
	series, err := NewAssembler(client, 2).Assemble(context.Background(), config,
		hourlyQuery(t, "2024-01-01T00:00:00Z", "2024-01-01T03:00:00Z"))
	require.NoError(t, err)

	assert.Equal(t, []float64{2.5, 0, 7}, series.Values)
	assert.Nil(t, series.Total)
	assert.Empty(t, client.aggregates)
}

func TestAssembleMonthlyUsesSingleBucketPerPeriod(t *testing.T) {
	client := &fakeQueryClient{
		buckets: map[string][]historical.Bucket{
			"2024-01-15T00:00:00Z": {bucket(t, "2024-01-15T00:00:00Z", 1)},
			"2024-02-01T00:00:00Z": {bucket(t, "2024-02-01T00:00:00Z", 2)},
			"2024-03-01T00:00:00Z": {bucket(t, "2024-03-01T00:00:00Z", 3)},
		},
	}
	q := TimeSeriesQuery{
		ResourceID: "s-1",
		From:       mustTime(t, "2024-01-15T00:00:00Z"),
		To:         mustTime(t, "2024-03-15T00:00:00Z"),
		Resolution: Monthly,
	}
	series, err := NewAssembler(client, 3).Assemble(context.Background(), episodeViews(), q)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"2024-01-15T00:00:00Z",
		"2024-02-01T00:00:00Z",
		"2024-03-01T00:00:00Z",
	}, series.Labels)
	assert.Equal(t, []float64{1, 3, 6}, series.Values)
	for _, bq := range client.queries {
		assert.Equal(t, time.Duration(0), bq.Width)
	}
}

func TestAssembleDailyWithSubBuckets(t *testing.T) {
	client := &fakeQueryClient{
		buckets: map[string][]historical.Bucket{
			"2024-01-01T12:00:00Z": {bucket(t, "2024-01-01T12:00:00Z", 1)},
			"2024-01-02T00:00:00Z": {bucket(t, "2024-01-02T00:00:00Z", 2)},
		},
	}
	q := TimeSeriesQuery{
		ResourceID: "ep-1",
		From:       mustTime(t, "2024-01-01T12:00:00Z"),
		To:         mustTime(t, "2024-01-03T00:00:00Z"),
		Resolution: Daily,
	}
	series, err := NewAssembler(client, 1).Assemble(context.Background(), episodeViews(), q)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01T12:00:00Z", "2024-01-02T00:00:00Z"}, series.Labels)
	assert.Equal(t, []float64{1, 3}, series.Values)
}

func TestAssembleStoreFailureAbortsWholeSeries(t *testing.T) {
	client := &fakeQueryClient{
		buckets: map[string][]historical.Bucket{
			"2024-01-01T00:00:00Z": {bucket(t, "2024-01-01T00:00:00Z", 1)},
		},
		bucketErr: map[string]error{
			"2024-01-01T01:00:00Z": historical.BucketError(historical.ErrStoreUnavailable, historical.BucketQuery{}, errors.New("connection refused")),
		},
	}
	series, err := NewAssembler(client, 2).Assemble(context.Background(), episodeViews(),
		hourlyQuery(t, "2024-01-01T00:00:00Z", "2024-01-01T03:00:00Z"))
	assert.Nil(t, series)
	assert.True(t, errors.Is(err, historical.ErrStoreUnavailable))
}

func TestAssembleBaselineFailure(t *testing.T) {
	client := &fakeQueryClient{
		baselineErr: historical.AggregateError(historical.ErrStoreQuery, historical.AggregateQuery{}, errors.New("bad query")),
	}
	_, err := NewAssembler(client, 2).Assemble(context.Background(), episodeViews(),
		hourlyQuery(t, "2024-01-01T00:00:00Z", "2024-01-01T03:00:00Z"))
	assert.True(t, errors.Is(err, historical.ErrStoreQuery))
	assert.Empty(t, client.queries)
}

func TestAssembleRejectsMisplacedBuckets(t *testing.T) {
	client := &fakeQueryClient{
		buckets: map[string][]historical.Bucket{
			"2024-01-01T00:00:00Z": {bucket(t, "2024-01-01T05:00:00Z", 1)},
		},
	}
	_, err := NewAssembler(client, 1).Assemble(context.Background(), episodeViews(),
		hourlyQuery(t, "2024-01-01T00:00:00Z", "2024-01-01T01:00:00Z"))
	assert.True(t, errors.Is(err, historical.ErrStoreQuery))
}

func TestAssembleValidation(t *testing.T) {
	client := &fakeQueryClient{}
	a := NewAssembler(client, 1)

	_, err := a.Assemble(context.Background(), episodeViews(),
		hourlyQuery(t, "2024-01-01T03:00:00Z", "2024-01-01T03:00:00Z"))
	assert.True(t, errors.Is(err, ErrInvalidRange))

	config := episodeViews()
	config.Resolutions = []Resolution{Daily}
	_, err = a.Assemble(context.Background(), config,
		hourlyQuery(t, "2024-01-01T00:00:00Z", "2024-01-01T03:00:00Z"))
	assert.True(t, errors.Is(err, ErrUnsupportedResolution))

	assert.Empty(t, client.queries)
	assert.Empty(t, client.aggregates)
}

func TestAssembleIsIdempotent(t *testing.T) {
	client := &fakeQueryClient{
		baseline: historical.Float(0.1),
		buckets: map[string][]historical.Bucket{
			"2024-01-01T00:00:00Z": {bucket(t, "2024-01-01T00:00:00Z", 0.2)},
			"2024-01-01T01:00:00Z": {bucket(t, "2024-01-01T01:00:00Z", 0.3)},
		},
	}
	a := NewAssembler(client, 2)
	q := hourlyQuery(t, "2024-01-01T00:00:00Z", "2024-01-01T02:00:00Z")

	first, err := a.Assemble(context.Background(), episodeViews(), q)
	require.NoError(t, err)
	second, err := a.Assemble(context.Background(), episodeViews(), q)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 0.5, *first.Total)
}

func TestServiceResolvesProviders(t *testing.T) {
	client := &fakeQueryClient{
		buckets: map[string][]historical.Bucket{
			"2024-01-01T00:00:00Z": {bucket(t, "2024-01-01T00:00:00Z", 3)},
		},
	}
	registry, err := NewRegistry(DefaultProviders("impressions"))
	require.NoError(t, err)
	svc := NewService(registry, NewAssembler(client, 1))
	q := hourlyQuery(t, "2024-01-01T00:00:00Z", "2024-01-01T01:00:00Z")

	series, err := svc.Views(context.Background(), Organization, q)
	require.NoError(t, err)
	assert.Equal(t, []float64{3}, series.Values)
	assert.Equal(t, "organizationId", client.queries[0].ResourceColumn)

	_, err = svc.TimeSeries(context.Background(), Episode, "likes", q)
	assert.True(t, errors.Is(err, ErrUnknownStatistic))

	series, err = svc.ProviderTimeSeries(context.Background(), "episode.views", q)
	require.NoError(t, err)
	assert.Equal(t, 3.0, *series.Total)
}
