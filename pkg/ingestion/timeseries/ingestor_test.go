package timeseries

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"com.aviebrantz.statistics/pkg/core/store/historical"
	"com.aviebrantz.statistics/pkg/ingestion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/pubsub"
	"gocloud.dev/pubsub/mempubsub"
)

type recordedPoint struct {
	measurement string
	point       historical.Point
}

type fakeWriter struct {
	mu     sync.Mutex
	err    error
	points []recordedPoint
}

func (f *fakeWriter) InsertPoint(ctx context.Context, measurement string, p historical.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.points = append(f.points, recordedPoint{measurement: measurement, point: p})
	return nil
}

func (f *fakeWriter) recorded() []recordedPoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedPoint(nil), f.points...)
}

func TestToPoint(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p, err := ToPoint(ts, map[string]interface{}{
		"episodeId": "ep-1",
		"seriesId":  "s-1",
		"live":      true,
		"duration":  12.5,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"episodeId": "ep-1", "seriesId": "s-1", "live": "true"}, p.Tags)
	assert.Equal(t, map[string]float64{"duration": 12.5}, p.Fields)

	p, err = ToPoint(ts, map[string]interface{}{"episodeId": "ep-1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{CountField: 1}, p.Fields)

	_, err = ToPoint(ts, map[string]interface{}{"value": 3.0})
	assert.Error(t, err)
}

func TestReportedTime(t *testing.T) {
	assert.Equal(t, time.Unix(1704067200, 0).UTC(), reportedTime(map[string]string{MetadataTime: "1704067200"}))
	assert.Equal(t,
		time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		reportedTime(map[string]string{MetadataTime: "2024-01-01T13:00:00+01:00"}))

	before := time.Now()
	assert.False(t, reportedTime(nil).Before(before.Add(-time.Second)))
}

func TestIngestorWritesEvents(t *testing.T) {
	topic := mempubsub.NewTopic()
	sub := mempubsub.NewSubscription(topic, time.Minute)
	defer topic.Shutdown(context.Background())
	defer sub.Shutdown(context.Background())

	store := &fakeWriter{}
	tsi := NewIngestor(sub, store, "impressions")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tsi.Start(ctx) }()

	require.NoError(t, topic.Send(ctx, &pubsub.Message{
		Body:     []byte(`{"episodeId":"ep-1","seriesId":"s-1"}`),
		Metadata: map[string]string{MetadataTime: "1704067200"},
	}))
	require.NoError(t, topic.Send(ctx, &pubsub.Message{Body: []byte(`[]`)}))
	require.NoError(t, topic.Send(ctx, &pubsub.Message{
		Body:     []byte(`{"episodeId":"ep-2","watched":30}`),
		Metadata: map[string]string{MetadataMeasurement: "plays"},
	}))

	assert.Eventually(t, func() bool {
		return len(store.recorded()) == 2
	}, 5*time.Second, 10*time.Millisecond)

	points := store.recorded()
	assert.Equal(t, "impressions", points[0].measurement)
	assert.Equal(t, time.Unix(1704067200, 0).UTC(), points[0].point.Time)
	assert.Equal(t, 1.0, points[0].point.Fields[CountField])
	assert.Equal(t, "plays", points[1].measurement)
	assert.Equal(t, 30.0, points[1].point.Fields["watched"])

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ingestor did not stop")
	}
}

func TestIngestorNacksOnStoreFailure(t *testing.T) {
	topic := mempubsub.NewTopic()
	sub := mempubsub.NewSubscription(topic, time.Minute)
	defer topic.Shutdown(context.Background())
	defer sub.Shutdown(context.Background())
	ctx := context.Background()

	tsi := NewIngestor(sub, &fakeWriter{err: errors.New("disk full")}, "impressions")
	require.NoError(t, topic.Send(ctx, &pubsub.Message{Body: []byte(`{"episodeId":"ep-1"}`)}))

	msg, err := sub.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, ingestion.OutcomeNack, tsi.handle(ctx, msg))
}
