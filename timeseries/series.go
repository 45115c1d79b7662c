// Package timeseries provides time-varying scalar values sampled by the
// movers, with clone semantics and a persisted binary form.
package timeseries

import (
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/interp"
)

// ErrMalformed reports a series that cannot be built or read: records
// out of order, duplicate timestamps, or a truncated stream.
var ErrMalformed = errors.New("timeseries: malformed series")

// Record is one sampled point of a series.
type Record struct {
	Time  time.Time
	Value float64
}

// Series is a piecewise-linear scalar time series. Sampling between
// records interpolates linearly; sampling outside the record range
// clamps to the nearest endpoint. The zero Series samples as 0.
type Series struct {
	records []Record

	// predictor over unix seconds, rebuilt whenever records change.
	// nil when the series has fewer than two records.
	pl *interp.PiecewiseLinear
}

// New builds a series from records. Records must be strictly
// increasing in time.
func New(records []Record) (*Series, error) {
	s := &Series{records: append([]Record(nil), records...)}
	if err := s.rebuild(); err != nil {
		return nil, err
	}
	return s, nil
}

// Constant builds a single-record series that samples as v everywhere.
func Constant(v float64) *Series {
	s, _ := New([]Record{{Time: time.Unix(0, 0).UTC(), Value: v}})
	return s
}

// rebuild validates record ordering and refits the interpolator.
func (s *Series) rebuild() error {
	s.pl = nil
	if len(s.records) < 2 {
		return nil
	}
	xs := make([]float64, len(s.records))
	ys := make([]float64, len(s.records))
	for i, r := range s.records {
		xs[i] = float64(r.Time.Unix())
		ys[i] = r.Value
		if i > 0 && xs[i] <= xs[i-1] {
			return fmt.Errorf("%w: records not strictly increasing at index %d", ErrMalformed, i)
		}
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	s.pl = &pl
	return nil
}

// Len returns the number of records.
func (s *Series) Len() int {
	return len(s.records)
}

// Span returns the first and last record times. ok is false for an
// empty series.
func (s *Series) Span() (first, last time.Time, ok bool) {
	if len(s.records) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return s.records[0].Time, s.records[len(s.records)-1].Time, true
}

// Sample returns the series value at t, linearly interpolated and
// clamped to the endpoints outside the record range.
func (s *Series) Sample(t time.Time) float64 {
	switch len(s.records) {
	case 0:
		return 0
	case 1:
		return s.records[0].Value
	}
	x := float64(t.Unix())
	if first := float64(s.records[0].Time.Unix()); x < first {
		x = first
	}
	if last := float64(s.records[len(s.records)-1].Time.Unix()); x > last {
		x = last
	}
	return s.pl.Predict(x)
}

// Clone returns an independent copy that samples identically.
func (s *Series) Clone() *Series {
	c := &Series{records: append([]Record(nil), s.records...)}
	// records came from a valid series, rebuild cannot fail
	_ = c.rebuild()
	return c
}

// CopyFrom makes s an independent copy of other.
func (s *Series) CopyFrom(other *Series) {
	s.records = append(s.records[:0], other.records...)
	_ = s.rebuild()
}
