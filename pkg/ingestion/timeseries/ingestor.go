package timeseries

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"com.aviebrantz.statistics/pkg/core/store/historical"
	"com.aviebrantz.statistics/pkg/ingestion"
	"github.com/apex/log"
	"gocloud.dev/pubsub"
)

const (
	MetadataTime        = "time"
	MetadataMeasurement = "measurement"

	// CountField is set to 1 on events that carry no numeric field.
	CountField = "value"
)

// TimeseriesDataIngestor writes impression events into the historical store.
// String values of the payload become tags, numeric values become fields.
type TimeseriesDataIngestor struct {
	dataSub     *pubsub.Subscription
	tsStore     historical.Writer
	measurement string
	logger      *log.Entry
}

func NewIngestor(dataSub *pubsub.Subscription, tsStore historical.Writer, measurement string) *TimeseriesDataIngestor {
	logger := log.WithField("module", "timeseries-ingestor")
	return &TimeseriesDataIngestor{
		dataSub:     dataSub,
		tsStore:     tsStore,
		measurement: measurement,
		logger:      logger,
	}
}

// reportedTime reads the event time from metadata: unix seconds or RFC3339.
func reportedTime(metadata map[string]string) time.Time {
	raw := metadata[MetadataTime]
	if timeInt, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(timeInt, 0).UTC()
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts.UTC()
	}
	return time.Now().UTC()
}

// ToPoint converts a flattened payload into a point.
func ToPoint(ts time.Time, payload map[string]interface{}) (historical.Point, error) {
	p := historical.Point{
		Time:   ts,
		Tags:   make(map[string]string),
		Fields: make(map[string]float64),
	}
	for k, v := range payload {
		switch val := v.(type) {
		case string:
			p.Tags[k] = val
		case bool:
			p.Tags[k] = strconv.FormatBool(val)
		case float64:
			p.Fields[k] = val
		case int64:
			p.Fields[k] = float64(val)
		case uint64:
			p.Fields[k] = float64(val)
		case nil:
		default:
			return p, fmt.Errorf("unsupported value %v (%T) at %s", v, v, k)
		}
	}
	if len(p.Tags) == 0 {
		return p, fmt.Errorf("event has no tags")
	}
	if len(p.Fields) == 0 {
		p.Fields[CountField] = 1
	}
	return p, nil
}

func (tsi *TimeseriesDataIngestor) handle(ctx context.Context, msg *pubsub.Message) string {
	payload, err := ingestion.DecodePayload(msg)
	if err != nil {
		tsi.logger.Warnf("Invalid msg format :%v", err)
		msg.Ack()
		return ingestion.OutcomeDropped
	}
	point, err := ToPoint(reportedTime(msg.Metadata), payload)
	if err != nil {
		tsi.logger.Warnf("Invalid event :%v", err)
		msg.Ack()
		return ingestion.OutcomeDropped
	}

	measurement := tsi.measurement
	if m := msg.Metadata[MetadataMeasurement]; m != "" {
		measurement = m
	}
	if err := tsi.tsStore.InsertPoint(ctx, measurement, point); err != nil {
		tsi.logger.Errorf("err insert impression :%v", err)
		if msg.Nackable() {
			msg.Nack()
			return ingestion.OutcomeNack
		}
		msg.Ack()
		return ingestion.OutcomeDropped
	}

	msg.Ack()
	return ingestion.OutcomeAck
}

// Start receives until ctx is done or the subscription fails.
func (tsi *TimeseriesDataIngestor) Start(ctx context.Context) error {
	for {
		msg, err := tsi.dataSub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			tsi.logger.Infof("Receiving message: %v", err)
			return err
		}
		startTime := time.Now()
		outcome := tsi.handle(ctx, msg)
		ingestion.RecordMessage(ctx, "timeseries", outcome, startTime)
	}
}
