package stats

import (
	"context"
	"time"

	"com.aviebrantz.statistics/pkg/core/store/historical"
)

// ResolveBaseline returns the aggregate accrued strictly before from, or 0 when
// the store holds nothing for the resource.
func ResolveBaseline(ctx context.Context, client historical.QueryClient, config ProviderConfig, resourceID string, from time.Time) (float64, error) {
	v, err := client.QuerySingleAggregate(ctx, historical.AggregateQuery{
		Measurement:    config.Measurement,
		ResourceColumn: config.ResourceIDColumn,
		ResourceID:     resourceID,
		Function:       config.AggregationFunction,
		Variable:       config.AggregationVariable,
		Before:         from,
	})
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, nil
	}
	return *v, nil
}
