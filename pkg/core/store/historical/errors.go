package historical

import (
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"
)

var (
	// ErrStoreUnavailable reports a connection or transport failure. Queries
	// are idempotent and safe to retry.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrStoreQuery reports a reachable store that answered with an error or
	// an unexpected result shape.
	ErrStoreQuery = errors.New("store query failed")
)

// QueryError carries the parameters of a failed query so a schema mismatch
// can be diagnosed from the logs.
type QueryError struct {
	Kind           error
	Op             string
	Measurement    string
	ResourceColumn string
	ResourceID     string
	Function       string
	Variable       string
	Start          time.Time
	End            time.Time
	Err            error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%v: %s %s(%s) from %s where %s=%q [%s, %s): %v",
		e.Kind, e.Op, e.Function, e.Variable, e.Measurement, e.ResourceColumn, e.ResourceID,
		e.Start.UTC().Format(time.RFC3339), e.End.UTC().Format(time.RFC3339), e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

func (e *QueryError) Is(target error) bool {
	return target == e.Kind
}

// Fields exposes the query parameters for structured logging.
func (e *QueryError) Fields() log.Fields {
	return log.Fields{
		"op":          e.Op,
		"measurement": e.Measurement,
		"column":      e.ResourceColumn,
		"resource":    e.ResourceID,
		"function":    e.Function,
		"variable":    e.Variable,
		"start":       e.Start.UTC().Format(time.RFC3339),
		"end":         e.End.UTC().Format(time.RFC3339),
	}
}

// BucketError wraps err for a failed bucketed query.
func BucketError(kind error, q BucketQuery, err error) error {
	return &QueryError{
		Kind:           kind,
		Op:             "bucketed",
		Measurement:    q.Measurement,
		ResourceColumn: q.ResourceColumn,
		ResourceID:     q.ResourceID,
		Function:       q.Function,
		Variable:       q.Variable,
		Start:          q.Start,
		End:            q.End,
		Err:            err,
	}
}

// AggregateError wraps err for a failed single aggregate query.
func AggregateError(kind error, q AggregateQuery, err error) error {
	return &QueryError{
		Kind:           kind,
		Op:             "aggregate",
		Measurement:    q.Measurement,
		ResourceColumn: q.ResourceColumn,
		ResourceID:     q.ResourceID,
		Function:       q.Function,
		Variable:       q.Variable,
		End:            q.Before,
		Err:            err,
	}
}
