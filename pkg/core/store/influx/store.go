package influx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"com.aviebrantz.statistics/pkg/core/store/historical"
	"github.com/apex/log"
	client "github.com/influxdata/influxdb1-client/v2"
	"github.com/influxdata/influxdb1-client/models"
)

// Store reads and maintains points in InfluxDB 1.x. Aggregation runs on the
// server.
type Store struct {
	manager *Manager
	logger  *log.Entry
}

func NewStore(manager *Manager) *Store {
	return &Store{
		manager: manager,
		logger:  log.WithField("module", "influx-store"),
	}
}

// Open connects to the server described by s.
func Open(s Snapshot) (*Store, error) {
	m, err := NewManager(s)
	if err != nil {
		return nil, err
	}
	return NewStore(m), nil
}

// Reconfigure switches to new connection parameters. Queries in flight finish
// on the previous connection.
func (s *Store) Reconfigure(snapshot Snapshot) error {
	return s.manager.Reconfigure(snapshot)
}

// classify maps err to the store error kind.
func classify(err error) error {
	var nerr net.Error
	switch {
	case errors.Is(err, historical.ErrStoreUnavailable),
		errors.As(err, &nerr),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return historical.ErrStoreUnavailable
	}
	return historical.ErrStoreQuery
}

// run executes stmt on h. The 1.x client takes no context: ctx is only checked
// before the request is sent, and a request in flight is bounded by the
// snapshot's Timeout.
func (s *Store) run(ctx context.Context, h *handle, stmt string, params map[string]interface{}) ([]models.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := h.client.Query(client.NewQueryWithParameters(stmt, h.snapshot.Database, "", params))
	if err != nil {
		return nil, err
	}
	if err := resp.Error(); err != nil {
		return nil, err
	}
	if len(resp.Results) != 1 {
		return nil, fmt.Errorf("%w: %d results", errShape, len(resp.Results))
	}
	return resp.Results[0].Series, nil
}

func (s *Store) query(ctx context.Context, stmt string, params map[string]interface{}) ([]models.Row, error) {
	h, err := s.manager.acquire()
	if err != nil {
		return nil, err
	}
	defer s.manager.release(h)
	return s.run(ctx, h, stmt, params)
}

func (s *Store) QueryBucketed(ctx context.Context, q historical.BucketQuery) ([]historical.Bucket, error) {
	stmt, params, err := bucketStatement(q)
	if err != nil {
		return nil, historical.BucketError(historical.ErrStoreQuery, q, err)
	}
	rows, err := s.query(ctx, stmt, params)
	if err != nil {
		return nil, historical.BucketError(classify(err), q, err)
	}
	row, err := singleSeries(rows)
	if err != nil {
		return nil, historical.BucketError(historical.ErrStoreQuery, q, err)
	}
	buckets, err := decodeBuckets(row)
	if err != nil {
		return nil, historical.BucketError(historical.ErrStoreQuery, q, err)
	}
	if q.Width <= 0 && len(buckets) == 1 {
		// Without GROUP BY the row is stamped with the lower time bound.
		buckets[0].Start = q.Start
	}
	return buckets, nil
}

func (s *Store) QuerySingleAggregate(ctx context.Context, q historical.AggregateQuery) (*float64, error) {
	stmt, params, err := aggregateStatement(q)
	if err != nil {
		return nil, historical.AggregateError(historical.ErrStoreQuery, q, err)
	}
	rows, err := s.query(ctx, stmt, params)
	if err != nil {
		return nil, historical.AggregateError(classify(err), q, err)
	}
	row, err := singleSeries(rows)
	if err != nil {
		return nil, historical.AggregateError(historical.ErrStoreQuery, q, err)
	}
	v, err := decodeAggregate(row)
	if err != nil {
		return nil, historical.AggregateError(historical.ErrStoreQuery, q, err)
	}
	return v, nil
}

func (s *Store) write(h *handle, points ...*client.Point) error {
	if len(points) == 0 {
		return nil
	}
	bp, err := client.NewBatchPoints(client.BatchPointsConfig{
		Database:  h.snapshot.Database,
		Precision: "ns",
	})
	if err != nil {
		return err
	}
	bp.AddPoints(points)
	return h.client.Write(bp)
}

func (s *Store) InsertPoint(ctx context.Context, measurement string, p historical.Point) error {
	fields := make(map[string]interface{}, len(p.Fields))
	for k, v := range p.Fields {
		fields[k] = v
	}
	pt, err := client.NewPoint(measurement, p.Tags, fields, p.Time)
	if err != nil {
		return err
	}

	h, err := s.manager.acquire()
	if err != nil {
		return err
	}
	defer s.manager.release(h)
	return s.write(h, pt)
}

func (s *Store) DeleteResource(ctx context.Context, measurement, column, id string) error {
	h, err := s.manager.acquire()
	if err != nil {
		return err
	}
	defer s.manager.release(h)

	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = $%s", quoteIdent(measurement), quoteIdent(column), paramResource)
	_, err = s.run(ctx, h, stmt, map[string]interface{}{paramResource: id})
	return err
}

// fieldTypes maps the field keys of measurement to their InfluxDB types.
func (s *Store) fieldTypes(ctx context.Context, h *handle, measurement string) (map[string]string, error) {
	rows, err := s.run(ctx, h, "SHOW FIELD KEYS FROM "+quoteIdent(measurement), nil)
	if err != nil {
		return nil, err
	}
	types := make(map[string]string)
	for _, row := range rows {
		for _, values := range row.Values {
			if len(values) != 2 {
				return nil, fmt.Errorf("%w: field key row %v", errShape, values)
			}
			types[fmt.Sprint(values[0])] = fmt.Sprint(values[1])
		}
	}
	return types, nil
}

func fieldValue(v interface{}, fieldType string) (interface{}, error) {
	n, ok := v.(json.Number)
	if !ok {
		return v, nil
	}
	if fieldType == "integer" {
		return n.Int64()
	}
	return n.Float64()
}

// ReassignResource rewrites the points of a resource under a new parent tag
// and drops the series carrying the previous one.
func (s *Store) ReassignResource(ctx context.Context, measurement, column, id, parentColumn, parentID string) error {
	h, err := s.manager.acquire()
	if err != nil {
		return err
	}
	defer s.manager.release(h)

	types, err := s.fieldTypes(ctx, h, measurement)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf("SELECT * FROM %s WHERE %s = $%s GROUP BY *",
		quoteIdent(measurement), quoteIdent(column), paramResource)
	rows, err := s.run(ctx, h, stmt, map[string]interface{}{paramResource: id})
	if err != nil {
		return err
	}

	points := make([]*client.Point, 0)
	stale := make(map[string]struct{})
	for _, row := range rows {
		if row.Tags[parentColumn] == parentID {
			continue
		}
		stale[row.Tags[parentColumn]] = struct{}{}
		tags := make(map[string]string, len(row.Tags)+1)
		for k, v := range row.Tags {
			if v != "" {
				tags[k] = v
			}
		}
		tags[parentColumn] = parentID

		for _, values := range row.Values {
			if len(values) != len(row.Columns) || len(values) == 0 {
				return fmt.Errorf("%w: row %v", errShape, values)
			}
			ts, err := parseTime(values[0])
			if err != nil {
				return err
			}
			fields := make(map[string]interface{})
			for i, col := range row.Columns[1:] {
				if values[i+1] == nil {
					continue
				}
				v, err := fieldValue(values[i+1], types[col])
				if err != nil {
					return fmt.Errorf("field %s: %w", col, err)
				}
				fields[col] = v
			}
			if len(fields) == 0 {
				continue
			}
			pt, err := client.NewPoint(measurement, tags, fields, ts)
			if err != nil {
				return err
			}
			points = append(points, pt)
		}
	}
	if err := s.write(h, points...); err != nil {
		return err
	}

	del := fmt.Sprintf("DELETE FROM %s WHERE %s = $%s AND %s = $%s",
		quoteIdent(measurement), quoteIdent(column), paramResource, quoteIdent(parentColumn), paramParent)
	for old := range stale {
		if _, err := s.run(ctx, h, del, map[string]interface{}{paramResource: id, paramParent: old}); err != nil {
			return err
		}
	}
	s.logger.Infof("moved %d points of %s=%s to %s=%s", len(points), column, id, parentColumn, parentID)
	return nil
}

func (s *Store) Close() error {
	return s.manager.Close()
}
