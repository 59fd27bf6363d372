package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"com.aviebrantz.statistics/pkg/core/store/historical"
	"github.com/apex/log"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
	"golang.org/x/sync/errgroup"
)

// Assembler turns a time range into a gap-free series of bucket values.
type Assembler struct {
	client   historical.QueryClient
	parallel int
	logger   *log.Entry
}

// NewAssembler queries client with at most parallel period queries in flight.
func NewAssembler(client historical.QueryClient, parallel int) *Assembler {
	if parallel < 1 {
		parallel = 1
	}
	return &Assembler{
		client:   client,
		parallel: parallel,
		logger:   log.WithField("module", "stats-assembler"),
	}
}

// Assemble builds the series of config for q. Any store failure aborts the
// whole call; no partial series is returned.
func (a *Assembler) Assemble(ctx context.Context, config ProviderConfig, q TimeSeriesQuery) (series *TimeSeries, err error) {
	startTime := time.Now()
	defer func() {
		tctx, tagErr := tag.New(ctx,
			tag.Insert(KeyResolution, q.Resolution.String()),
			tag.Insert(KeyStatus, statusOf(err)))
		if tagErr != nil {
			a.logger.Errorf("err creating metric for assembly %v", tagErr)
			return
		}
		stats.Record(tctx, MAssembleLatencyMs.M(sinceInMilliseconds(startTime)))
		if series != nil {
			stats.Record(tctx, MBuckets.M(int64(len(series.Labels))))
		}
	}()

	if !q.From.Before(q.To) {
		return nil, fmt.Errorf("%w: %s >= %s", ErrInvalidRange, FormatLabel(q.From), FormatLabel(q.To))
	}
	if !config.Supports(q.Resolution) {
		return nil, fmt.Errorf("%w: %s does not offer %s", ErrUnsupportedResolution, config.ID, q.Resolution)
	}
	periods, err := PlanPeriods(q.From, q.To, q.Resolution, q.Location)
	if err != nil {
		return nil, err
	}

	cumulative := config.Cumulative()
	baseline := 0.0
	if cumulative {
		baseline, err = ResolveBaseline(ctx, a.client, config, q.ResourceID, q.From)
		recordStoreQuery(ctx, "baseline", err)
		if err != nil {
			a.logFailure(err)
			return nil, err
		}
	}

	results, err := a.fetch(ctx, config, q, periods)
	if err != nil {
		a.logFailure(err)
		return nil, err
	}

	running, err := newRunningTotal(baseline)
	if err != nil {
		return nil, err
	}
	series = &TimeSeries{
		Labels: make([]string, 0, len(periods)),
		Values: make([]float64, 0, len(periods)),
	}
	for i, p := range periods {
		buckets := results[i]
		if len(buckets) == 0 {
			series.Labels = append(series.Labels, FormatLabel(p.Start))
			if cumulative {
				series.Values = append(series.Values, running.current())
			} else {
				series.Values = append(series.Values, 0)
			}
			continue
		}
		for _, b := range buckets {
			delta := 0.0
			if b.Value != nil {
				delta = *b.Value
			}
			series.Labels = append(series.Labels, FormatLabel(b.Start))
			if !cumulative {
				series.Values = append(series.Values, delta)
				continue
			}
			if err := running.add(delta); err != nil {
				return nil, err
			}
			series.Values = append(series.Values, running.current())
		}
	}
	if cumulative {
		total := running.total()
		series.Total = &total
	}

	a.logger.Debugf("assembled %s %s for %s: %d periods, %d buckets",
		config.ID, q.Resolution, q.ResourceID, len(periods), len(series.Labels))
	return series, nil
}

// fetch queries every period. Queries may run concurrently; results are kept
// in period order so accumulation happens in temporal order afterwards.
func (a *Assembler) fetch(ctx context.Context, config ProviderConfig, q TimeSeriesQuery, periods []Period) ([][]historical.Bucket, error) {
	results := make([][]historical.Bucket, len(periods))
	width := q.Resolution.BucketWidth()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.parallel)
	for i, p := range periods {
		i, p := i, p
		g.Go(func() error {
			bq := historical.BucketQuery{
				Measurement:    config.Measurement,
				ResourceColumn: config.ResourceIDColumn,
				ResourceID:     q.ResourceID,
				Start:          p.Start,
				End:            p.End,
				Function:       config.AggregationFunction,
				Variable:       config.AggregationVariable,
				Width:          width,
			}
			buckets, err := a.client.QueryBucketed(gctx, bq)
			recordStoreQuery(gctx, "bucketed", err)
			if err != nil {
				return err
			}
			if err := checkBuckets(p, buckets); err != nil {
				return historical.BucketError(historical.ErrStoreQuery, bq, err)
			}
			results[i] = buckets
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// checkBuckets rejects buckets outside the period or out of order.
func checkBuckets(p Period, buckets []historical.Bucket) error {
	var prev time.Time
	for i, b := range buckets {
		if b.Start.Before(p.Start) || !b.Start.Before(p.End) {
			return fmt.Errorf("bucket %s outside period %s", FormatLabel(b.Start), p)
		}
		if i > 0 && !b.Start.After(prev) {
			return fmt.Errorf("bucket %s not after %s", FormatLabel(b.Start), FormatLabel(prev))
		}
		prev = b.Start
	}
	return nil
}

func (a *Assembler) logFailure(err error) {
	var qerr *historical.QueryError
	if errors.As(err, &qerr) {
		a.logger.WithFields(qerr).Errorf("store query failed: %v", qerr.Err)
		return
	}
	a.logger.Errorf("store query failed: %v", err)
}
