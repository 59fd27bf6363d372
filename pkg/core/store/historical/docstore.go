package historical

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"gocloud.dev/docstore"
	"gocloud.dev/gcerrors"
)

const (
	docKeyField         = "id"
	docMeasurementField = "measurement"
	docTimestampField   = "timestamp"
	docTimeField        = "time"
	docTagsField        = "tags"
	docFieldsField      = "fields"
)

type historicalDocStore struct {
	coll *docstore.Collection
}

// NewHistoricalDocStore create a historical store using a gocloud.dev/docstore
// collection. The collection key field must be "id".
func NewHistoricalDocStore(coll *docstore.Collection) Store {
	return &historicalDocStore{
		coll: coll,
	}
}

// OpenDocStore opens the collection at url, e.g. mem://points/id or
// mongo://statistics/points?id_field=id.
func OpenDocStore(ctx context.Context, url string) (Store, error) {
	coll, err := docstore.OpenCollection(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", url, err)
	}
	return NewHistoricalDocStore(coll), nil
}

func docError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrStoreUnavailable
	}
	switch gcerrors.Code(err) {
	case gcerrors.ResourceExhausted, gcerrors.DeadlineExceeded, gcerrors.Canceled, gcerrors.FailedPrecondition:
		return ErrStoreUnavailable
	}
	return ErrStoreQuery
}

func (s *historicalDocStore) InsertPoint(ctx context.Context, measurement string, p Point) error {
	tags := make(map[string]interface{}, len(p.Tags))
	fields := make(map[string]interface{}, len(p.Fields))
	doc := map[string]interface{}{
		docKeyField:         uuid.New().String(),
		docMeasurementField: measurement,
		docTimestampField:   p.Time.UnixNano(),
		docTimeField:        p.Time.UTC().Format(time.RFC3339Nano),
	}
	for k, v := range p.Tags {
		tags[k] = v
		doc[k] = v
	}
	for k, v := range p.Fields {
		fields[k] = v
	}
	doc[docTagsField] = tags
	doc[docFieldsField] = fields
	return s.coll.Actions().Create(doc).Do(ctx)
}

func (s *historicalDocStore) query(measurement, column, id string) *docstore.Query {
	return s.coll.
		Query().
		Where(docstore.FieldPath(docMeasurementField), "=", measurement).
		Where(docstore.FieldPath(column), "=", id)
}

func (s *historicalDocStore) fetch(ctx context.Context, q *docstore.Query) ([]map[string]interface{}, error) {
	iter := q.Get(ctx)
	defer iter.Stop()

	docs := make([]map[string]interface{}, 0)
	for {
		doc := make(map[string]interface{})
		err := iter.Next(ctx, doc)
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

func toInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}

func docToPoint(doc map[string]interface{}) (Point, error) {
	ts, ok := toInt(doc[docTimestampField])
	if !ok {
		return Point{}, fmt.Errorf("document %v has no timestamp", doc[docKeyField])
	}
	p := Point{
		Time:   time.Unix(0, ts).UTC(),
		Tags:   make(map[string]string),
		Fields: make(map[string]float64),
	}
	if tags, ok := doc[docTagsField].(map[string]interface{}); ok {
		for k, v := range tags {
			p.Tags[k] = fmt.Sprint(v)
		}
	}
	if fields, ok := doc[docFieldsField].(map[string]interface{}); ok {
		for k, v := range fields {
			f, ok := toFloat(v)
			if !ok {
				return Point{}, fmt.Errorf("document %v field %s is not numeric", doc[docKeyField], k)
			}
			p.Fields[k] = f
		}
	}
	return p, nil
}

func (s *historicalDocStore) points(ctx context.Context, q *docstore.Query) ([]Point, error) {
	docs, err := s.fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	points := make([]Point, 0, len(docs))
	for _, doc := range docs {
		p, err := docToPoint(doc)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, nil
}

func (s *historicalDocStore) QueryBucketed(ctx context.Context, q BucketQuery) ([]Bucket, error) {
	query := s.query(q.Measurement, q.ResourceColumn, q.ResourceID).
		Where(docstore.FieldPath(docTimestampField), ">=", q.Start.UnixNano()).
		Where(docstore.FieldPath(docTimestampField), "<", q.End.UnixNano())
	points, err := s.points(ctx, query)
	if err != nil {
		return nil, BucketError(docError(err), q, err)
	}
	buckets, err := groupBuckets(points, q)
	if err != nil {
		return nil, BucketError(ErrStoreQuery, q, err)
	}
	return buckets, nil
}

func (s *historicalDocStore) QuerySingleAggregate(ctx context.Context, q AggregateQuery) (*float64, error) {
	query := s.query(q.Measurement, q.ResourceColumn, q.ResourceID).
		Where(docstore.FieldPath(docTimestampField), "<", q.Before.UnixNano())
	points, err := s.points(ctx, query)
	if err != nil {
		return nil, AggregateError(docError(err), q, err)
	}
	v, err := aggregatePoints(points, q.Function, q.Variable)
	if err != nil {
		return nil, AggregateError(ErrStoreQuery, q, err)
	}
	return v, nil
}

func (s *historicalDocStore) DeleteResource(ctx context.Context, measurement, column, id string) error {
	docs, err := s.fetch(ctx, s.query(measurement, column, id))
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	actions := s.coll.Actions()
	for _, doc := range docs {
		actions = actions.Delete(doc)
	}
	return actions.Do(ctx)
}

func (s *historicalDocStore) ReassignResource(ctx context.Context, measurement, column, id, parentColumn, parentID string) error {
	docs, err := s.fetch(ctx, s.query(measurement, column, id))
	if err != nil {
		return err
	}
	actions := s.coll.Actions()
	pending := 0
	for _, doc := range docs {
		if current, ok := doc[parentColumn]; ok && fmt.Sprint(current) == parentID {
			continue
		}
		mods := docstore.Mods{}
		mods[docstore.FieldPath(parentColumn)] = parentID
		mods[docstore.FieldPath(docTagsField+"."+parentColumn)] = parentID
		actions = actions.Update(doc, mods)
		pending++
	}
	if pending == 0 {
		return nil
	}
	return actions.Do(ctx)
}

func (s *historicalDocStore) Close() error {
	return s.coll.Close()
}
