package historical

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pointAt(ts time.Time, v float64) Point {
	return Point{Time: ts, Fields: map[string]float64{"value": v}}
}

func TestAggregatePointsFunctions(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	points := []Point{
		pointAt(base, 4),
		pointAt(base.Add(time.Minute), 1),
		pointAt(base.Add(2*time.Minute), 7),
		{Time: base, Fields: map[string]float64{"other": 100}},
		pointAt(base, math.NaN()),
	}
	expected := map[string]float64{
		FunctionSum:   12,
		FunctionAvg:   4,
		FunctionCount: 3,
		FunctionMin:   1,
		FunctionMax:   7,
		"sum":         12,
	}
	for fn, want := range expected {
		v, err := aggregatePoints(points, fn, "value")
		require.NoError(t, err, fn)
		require.NotNil(t, v, fn)
		assert.Equal(t, want, *v, fn)
	}

	v, err := aggregatePoints(nil, FunctionSum, "value")
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = aggregatePoints(points, "MEDIAN", "value")
	assert.Error(t, err)
}

func TestGroupBucketsFixedWidth(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	q := BucketQuery{
		Start:    start,
		End:      start.Add(150 * time.Minute),
		Function: FunctionSum,
		Variable: "value",
		Width:    time.Hour,
	}
	buckets, err := groupBuckets([]Point{
		pointAt(start.Add(5*time.Minute), 2),
		pointAt(start.Add(10*time.Minute), 3),
		pointAt(start.Add(130*time.Minute), 1),
	}, q)
	require.NoError(t, err)
	require.Len(t, buckets, 3)

	assert.Equal(t, start, buckets[0].Start)
	assert.Equal(t, 5.0, *buckets[0].Value)
	assert.Equal(t, start.Add(time.Hour), buckets[1].Start)
	assert.Nil(t, buckets[1].Value)
	assert.Equal(t, start.Add(2*time.Hour), buckets[2].Start)
	assert.Equal(t, 1.0, *buckets[2].Value)
}

func TestGroupBucketsSingleBucket(t *testing.T) {
	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	q := BucketQuery{
		Start:    start,
		End:      start.AddDate(0, 1, 0),
		Function: FunctionMax,
		Variable: "value",
	}
	buckets, err := groupBuckets([]Point{
		pointAt(start.Add(48*time.Hour), 2),
		pointAt(start.Add(72*time.Hour), 9),
	}, q)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, start, buckets[0].Start)
	assert.Equal(t, 9.0, *buckets[0].Value)

	buckets, err = groupBuckets(nil, q)
	require.NoError(t, err)
	assert.Empty(t, buckets)
}
