// Package telemetry writes run output: per-element trajectories and
// per-set summary statistics as CSV, plus the run configuration for
// reproducibility.
package telemetry

import (
	"log/slog"
	"math"
	"time"

	"github.com/pthm-cable/slick/geo"
	"github.com/pthm-cable/slick/movers"
	"github.com/pthm-cable/slick/spill"
)

// SetStats summarizes one element set at the end of one step.
type SetStats struct {
	Step     int     `csv:"step"`
	TimeUnix int64   `csv:"time"`
	Spill    string  `csv:"spill"`
	ElemType string  `csv:"elem_type"`
	Count    int     `csv:"count"`
	InWater  int     `csv:"in_water"`
	OffMap   int     `csv:"off_map"`
	Lat      float64 `csv:"centroid_lat"`
	Lon      float64 `csv:"centroid_lon"`
	SpreadM  float64 `csv:"spread_m"`
}

// ComputeSetStats summarizes c after step stepCount ended at
// modelTime. The spread is the RMS distance of elements from their
// centroid, in meters.
func ComputeSetStats(stepCount int, modelTime time.Time, c *spill.Container) SetStats {
	s := SetStats{
		Step:     stepCount,
		TimeUnix: modelTime.Unix(),
		Spill:    c.Name(),
		ElemType: elemTypeLabel(c),
		Count:    c.Len(),
	}
	if c.Len() == 0 {
		return s
	}

	for i := 0; i < c.Len(); i++ {
		p := c.Element(i).Position
		s.Lat += p.Lat
		s.Lon += p.Lon
		switch c.Status(i) {
		case spill.StatusInWater:
			s.InWater++
		case spill.StatusOffMap:
			s.OffMap++
		}
	}
	s.Lat /= float64(c.Len())
	s.Lon /= float64(c.Len())

	centroid := geo.WorldPoint{Lat: s.Lat, Lon: s.Lon}
	var sq float64
	for i := 0; i < c.Len(); i++ {
		dx, dy := geo.DeltaMeters(centroid, c.Element(i).Position.WorldPoint)
		sq += dx*dx + dy*dy
	}
	s.SpreadM = math.Sqrt(sq / float64(c.Len()))
	return s
}

func elemTypeLabel(c *spill.Container) string {
	if c.ElementType() == movers.ForecastElement {
		return "forecast"
	}
	return "uncertainty"
}

// LogValue implements slog.LogValuer for structured logging.
func (s SetStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("step", s.Step),
		slog.String("spill", s.Spill),
		slog.String("elem_type", s.ElemType),
		slog.Int("count", s.Count),
		slog.Int("in_water", s.InWater),
		slog.Int("off_map", s.OffMap),
		slog.Float64("centroid_lat", s.Lat),
		slog.Float64("centroid_lon", s.Lon),
		slog.Float64("spread_m", s.SpreadM),
	)
}
