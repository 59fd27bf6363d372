package historical

import (
	"context"
	"time"
)

// QueryClient reads aggregates out of a time-series store. Implementations must
// be safe for concurrent use.
type QueryClient interface {
	// QueryBucketed aggregates the points in [q.Start, q.End) grouped in
	// sub-buckets of q.Width. A range without any matching point yields no
	// buckets at all.
	QueryBucketed(ctx context.Context, q BucketQuery) ([]Bucket, error)
	// QuerySingleAggregate aggregates every point strictly before q.Before.
	// It returns nil when the store holds no value.
	QuerySingleAggregate(ctx context.Context, q AggregateQuery) (*float64, error)
}

// Writer stores raw points.
type Writer interface {
	InsertPoint(ctx context.Context, measurement string, p Point) error
}

// Maintainer applies corrective changes after a resource was deleted or moved.
type Maintainer interface {
	// DeleteResource removes every point tagged column=id.
	DeleteResource(ctx context.Context, measurement, column, id string) error
	// ReassignResource retags every point tagged column=id whose parentColumn
	// tag differs from parentID.
	ReassignResource(ctx context.Context, measurement, column, id, parentColumn, parentID string) error
}

// Store is the full surface every adapter provides.
type Store interface {
	QueryClient
	Writer
	Maintainer
	Close() error
}

type BucketQuery struct {
	Measurement    string
	ResourceColumn string
	ResourceID     string
	Start          time.Time
	End            time.Time
	Function       string
	Variable       string
	// Width of a sub-bucket; zero means a single bucket spanning [Start, End).
	Width time.Duration
}

type AggregateQuery struct {
	Measurement    string
	ResourceColumn string
	ResourceID     string
	Function       string
	Variable       string
	Before         time.Time
}

// Bucket is one aggregated slot. Value is nil when the slot has no data.
type Bucket struct {
	Start time.Time
	Value *float64
}

type Point struct {
	Time   time.Time          `json:"time"`
	Tags   map[string]string  `json:"tags"`
	Fields map[string]float64 `json:"fields"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
