package stats

import (
	"context"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	MAssembleLatencyMs = stats.Float64("stats/assemble/latency", "The latency in milliseconds per assembled series", "ms")

	MStoreQueries = stats.Int64("stats/store/queries", "Number of store queries", "1")

	MBuckets = stats.Int64("stats/assemble/buckets", "Number of buckets per assembled series", "1")
)

var (
	KeyResolution, _ = tag.NewKey("resolution")
	KeyStatus, _     = tag.NewKey("status")
	KeyOp, _         = tag.NewKey("op")
)

var (
	AssembleLatencyView = &view.View{
		Name:        "stats/assemble/latency",
		Measure:     MAssembleLatencyMs,
		Description: "The distribution of the assembly latencies",
		Aggregation: view.Distribution(0, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000),
		TagKeys:     []tag.Key{KeyResolution, KeyStatus},
	}

	StoreQueryCountView = &view.View{
		Name:        "stats/store/queries",
		Measure:     MStoreQueries,
		Description: "Number of store queries",
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{KeyOp, KeyStatus},
	}

	BucketCountView = &view.View{
		Name:        "stats/assemble/buckets",
		Measure:     MBuckets,
		Description: "Distribution of the bucket count per series",
		Aggregation: view.Distribution(0, 1, 10, 25, 50, 100, 250, 500, 1000, 5000),
		TagKeys:     []tag.Key{KeyResolution},
	}
)

// Views lists the views of this package for registration with view.Register.
func Views() []*view.View {
	return []*view.View{AssembleLatencyView, StoreQueryCountView, BucketCountView}
}

func recordStoreQuery(ctx context.Context, op string, err error) {
	ctx, tagErr := tag.New(ctx, tag.Insert(KeyOp, op), tag.Insert(KeyStatus, statusOf(err)))
	if tagErr != nil {
		return
	}
	stats.Record(ctx, MStoreQueries.M(1))
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func sinceInMilliseconds(startTime time.Time) float64 {
	return float64(time.Since(startTime).Nanoseconds()) / 1e6
}
