package api

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	MLatencyMs = stats.Float64("api/latency", "The latency in milliseconds per request", "ms")

	MRequests = stats.Int64("api/requests", "Number of requests", "1")
)

var (
	LatencyView = &view.View{
		Name:        "api/latency",
		Measure:     MLatencyMs,
		Description: "The distribution of the latencies",

		Aggregation: view.Distribution(0, 25, 50, 75, 100, 200, 400, 600, 800, 1000, 2000, 4000, 6000),
		TagKeys:     []tag.Key{KeyRoute},
	}

	RequestsCountView = &view.View{
		Name:        "api/requests",
		Measure:     MRequests,
		Description: "Number of requests",
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{KeyRoute, KeyStatus},
	}
)

var (
	KeyRoute, _  = tag.NewKey("route")
	KeyStatus, _ = tag.NewKey("status")
)

func Views() []*view.View {
	return []*view.View{LatencyView, RequestsCountView}
}

func (as *ApiServer) observe(ctx *fiber.Ctx, route string, startTime time.Time) {
	status := strconv.Itoa(ctx.Fasthttp.Response.StatusCode())
	tctx, err := tag.New(context.Background(), tag.Insert(KeyRoute, route), tag.Insert(KeyStatus, status))
	if err != nil {
		as.logger.Errorf("err creating metric for request %v", err)
		return
	}
	stats.Record(tctx, MRequests.M(1), MLatencyMs.M(sinceInMilliseconds(startTime)))
}

func sinceInMilliseconds(startTime time.Time) float64 {
	return float64(time.Since(startTime).Nanoseconds()) / 1e6
}
