package influx

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"com.aviebrantz.statistics/pkg/core/store/historical"
	"github.com/influxdata/influxdb1-client/models"
)

const (
	paramResource = "resourceId"
	paramFrom     = "from"
	paramTo       = "to"
	paramParent   = "parentId"
)

var errShape = errors.New("unexpected result shape")

// quoteIdent quotes an InfluxQL identifier.
func quoteIdent(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// formatDuration renders d as an InfluxQL duration literal.
func formatDuration(d time.Duration) string {
	if d%time.Second == 0 {
		return fmt.Sprintf("%ds", d/time.Second)
	}
	return fmt.Sprintf("%dns", d.Nanoseconds())
}

// groupOffset is the GROUP BY time offset that puts a window boundary on start.
func groupOffset(start time.Time, width time.Duration) time.Duration {
	off := time.Duration(start.UnixNano() % int64(width))
	if off < 0 {
		off += width
	}
	return off
}

func selectClause(fn, variable, measurement string) (string, error) {
	if !historical.ValidFunction(fn) {
		return "", fmt.Errorf("unsupported aggregation function %q", fn)
	}
	return fmt.Sprintf("SELECT %s(%s) FROM %s", strings.ToUpper(fn), quoteIdent(variable), quoteIdent(measurement)), nil
}

func bucketStatement(q historical.BucketQuery) (string, map[string]interface{}, error) {
	sel, err := selectClause(q.Function, q.Variable, q.Measurement)
	if err != nil {
		return "", nil, err
	}
	stmt := fmt.Sprintf("%s WHERE %s = $%s AND time >= $%s AND time < $%s",
		sel, quoteIdent(q.ResourceColumn), paramResource, paramFrom, paramTo)
	if q.Width > 0 {
		stmt += fmt.Sprintf(" GROUP BY time(%s, %s)",
			formatDuration(q.Width), formatDuration(groupOffset(q.Start, q.Width)))
	}
	params := map[string]interface{}{
		paramResource: q.ResourceID,
		paramFrom:     formatTime(q.Start),
		paramTo:       formatTime(q.End),
	}
	return stmt, params, nil
}

func aggregateStatement(q historical.AggregateQuery) (string, map[string]interface{}, error) {
	sel, err := selectClause(q.Function, q.Variable, q.Measurement)
	if err != nil {
		return "", nil, err
	}
	stmt := fmt.Sprintf("%s WHERE %s = $%s AND time < $%s",
		sel, quoteIdent(q.ResourceColumn), paramResource, paramTo)
	params := map[string]interface{}{
		paramResource: q.ResourceID,
		paramTo:       formatTime(q.Before),
	}
	return stmt, params, nil
}

// singleSeries returns the only series of a single statement result, or nil
// when the statement matched nothing.
func singleSeries(results []models.Row) (*models.Row, error) {
	switch len(results) {
	case 0:
		return nil, nil
	case 1:
	default:
		return nil, fmt.Errorf("%w: %d series", errShape, len(results))
	}
	row := &results[0]
	if len(row.Columns) != 2 || row.Columns[0] != "time" {
		return nil, fmt.Errorf("%w: columns %v", errShape, row.Columns)
	}
	return row, nil
}

func parseTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case string:
		return time.Parse(time.RFC3339Nano, t)
	case json.Number:
		ns, err := t.Int64()
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(0, ns).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: time %v (%T)", errShape, v, v)
}

func parseValue(v interface{}) (*float64, error) {
	switch n := v.(type) {
	case nil:
		return nil, nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil, err
		}
		return historical.Float(f), nil
	case float64:
		return historical.Float(n), nil
	}
	return nil, fmt.Errorf("%w: value %v (%T)", errShape, v, v)
}

func decodeBuckets(row *models.Row) ([]historical.Bucket, error) {
	if row == nil {
		return nil, nil
	}
	buckets := make([]historical.Bucket, 0, len(row.Values))
	for _, values := range row.Values {
		if len(values) != 2 {
			return nil, fmt.Errorf("%w: row %v", errShape, values)
		}
		ts, err := parseTime(values[0])
		if err != nil {
			return nil, err
		}
		v, err := parseValue(values[1])
		if err != nil {
			return nil, err
		}
		buckets = append(buckets, historical.Bucket{Start: ts, Value: v})
	}
	return buckets, nil
}

func decodeAggregate(row *models.Row) (*float64, error) {
	if row == nil {
		return nil, nil
	}
	if len(row.Values) != 1 || len(row.Values[0]) != 2 {
		return nil, fmt.Errorf("%w: %d rows", errShape, len(row.Values))
	}
	return parseValue(row.Values[0][1])
}
