package stats

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// runningTotal accumulates bucket deltas in decimal so that the reported total
// equals the final cumulative value minus the baseline exactly.
type runningTotal struct {
	ctx    *apd.Context
	value  apd.Decimal
	deltas apd.Decimal
}

func newRunningTotal(baseline float64) (*runningTotal, error) {
	r := &runningTotal{ctx: apd.BaseContext.WithPrecision(34)}
	if _, err := r.value.SetFloat64(baseline); err != nil {
		return nil, fmt.Errorf("baseline %v: %w", baseline, err)
	}
	return r, nil
}

func (r *runningTotal) add(delta float64) error {
	var d apd.Decimal
	if _, err := d.SetFloat64(delta); err != nil {
		return fmt.Errorf("delta %v: %w", delta, err)
	}
	if _, err := r.ctx.Add(&r.value, &r.value, &d); err != nil {
		return err
	}
	_, err := r.ctx.Add(&r.deltas, &r.deltas, &d)
	return err
}

func (r *runningTotal) current() float64 {
	f, _ := r.value.Float64()
	return f
}

func (r *runningTotal) total() float64 {
	f, _ := r.deltas.Float64()
	return f
}
