package historical

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	FunctionSum   = "SUM"
	FunctionAvg   = "AVG"
	FunctionCount = "COUNT"
	FunctionMin   = "MIN"
	FunctionMax   = "MAX"
)

// ValidFunction reports whether fn names a supported aggregation function.
func ValidFunction(fn string) bool {
	switch strings.ToUpper(fn) {
	case FunctionSum, FunctionAvg, FunctionCount, FunctionMin, FunctionMax:
		return true
	}
	return false
}

type aggregator struct {
	fn    string
	n     int
	sum   float64
	value float64
}

func newAggregator(fn string) (*aggregator, error) {
	fn = strings.ToUpper(fn)
	if !ValidFunction(fn) {
		return nil, fmt.Errorf("unsupported aggregation function %q", fn)
	}
	return &aggregator{fn: fn}, nil
}

func (a *aggregator) add(v float64) {
	switch a.fn {
	case FunctionMin:
		if a.n == 0 || v < a.value {
			a.value = v
		}
	case FunctionMax:
		if a.n == 0 || v > a.value {
			a.value = v
		}
	}
	a.sum += v
	a.n++
}

func (a *aggregator) result() *float64 {
	if a.n == 0 {
		return nil
	}
	switch a.fn {
	case FunctionSum:
		return Float(a.sum)
	case FunctionAvg:
		return Float(a.sum / float64(a.n))
	case FunctionCount:
		return Float(float64(a.n))
	default:
		return Float(a.value)
	}
}

// aggregatePoints folds the variable of every point into a single value.
func aggregatePoints(points []Point, fn, variable string) (*float64, error) {
	agg, err := newAggregator(fn)
	if err != nil {
		return nil, err
	}
	for _, p := range points {
		if v, ok := p.Fields[variable]; ok && !math.IsNaN(v) {
			agg.add(v)
		}
	}
	return agg.result(), nil
}

// groupBuckets splits points into the sub-buckets of q. Points must lie in
// [q.Start, q.End). No points means no buckets.
func groupBuckets(points []Point, q BucketQuery) ([]Bucket, error) {
	if len(points) == 0 {
		return nil, nil
	}
	if q.Width <= 0 {
		v, err := aggregatePoints(points, q.Function, q.Variable)
		if err != nil {
			return nil, err
		}
		return []Bucket{{Start: q.Start, Value: v}}, nil
	}

	span := q.End.Sub(q.Start)
	n := int(span / q.Width)
	if span%q.Width != 0 {
		n++
	}
	aggs := make([]*aggregator, n)
	for i := range aggs {
		agg, err := newAggregator(q.Function)
		if err != nil {
			return nil, err
		}
		aggs[i] = agg
	}
	for _, p := range points {
		v, ok := p.Fields[q.Variable]
		if !ok || math.IsNaN(v) {
			continue
		}
		i := int(p.Time.Sub(q.Start) / q.Width)
		if i < 0 || i >= n {
			continue
		}
		aggs[i].add(v)
	}

	buckets := make([]Bucket, n)
	for i, agg := range aggs {
		buckets[i] = Bucket{
			Start: q.Start.Add(time.Duration(i) * q.Width),
			Value: agg.result(),
		}
	}
	return buckets, nil
}
