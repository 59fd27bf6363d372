package ingestion

import (
	"context"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	MLatencyMs = stats.Float64("ingestion/latency", "The latency in milliseconds per handled message", "ms")

	MMessages = stats.Int64("ingestion/messages", "Number of handled messages", "1")
)

var (
	KeyConsumer, _ = tag.NewKey("consumer")
	KeyOutcome, _  = tag.NewKey("outcome")
)

const (
	OutcomeAck     = "ack"
	OutcomeNack    = "nack"
	OutcomeDropped = "dropped"
)

var (
	LatencyView = &view.View{
		Name:        "ingestion/latency",
		Measure:     MLatencyMs,
		Description: "The distribution of the message handling latencies",

		Aggregation: view.Distribution(0, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 30000),
		TagKeys:     []tag.Key{KeyConsumer},
	}

	MessagesCountView = &view.View{
		Name:        "ingestion/messages",
		Measure:     MMessages,
		Description: "Number of handled messages",
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{KeyConsumer, KeyOutcome},
	}
)

func Views() []*view.View {
	return []*view.View{LatencyView, MessagesCountView}
}

// RecordMessage records the outcome of one handled message.
func RecordMessage(ctx context.Context, consumer, outcome string, startTime time.Time) {
	ctx, err := tag.New(ctx, tag.Insert(KeyConsumer, consumer), tag.Insert(KeyOutcome, outcome))
	if err != nil {
		return
	}
	stats.Record(ctx, MMessages.M(1), MLatencyMs.M(sinceInMilliseconds(startTime)))
}

func sinceInMilliseconds(startTime time.Time) float64 {
	return float64(time.Since(startTime).Nanoseconds()) / 1e6
}
