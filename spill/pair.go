package spill

import (
	"time"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/slick/movers"
)

// Pair is one spill's forecast set plus its uncertainty twin. The twin
// mirrors the forecast release exactly; only the movers treat its
// elements differently. On certain-only runs the twin stays empty.
type Pair struct {
	Forecast  *Container
	Uncertain *Container

	uncertainRun bool
}

// NewPair builds both sets of a spill in world.
func NewPair(world *ecs.World, def Definition, setIndex int) (*Pair, error) {
	fc, err := NewContainer(world, def, setIndex, movers.ForecastElement)
	if err != nil {
		return nil, err
	}
	un, err := NewContainer(world, def, setIndex, movers.UncertaintyElement)
	if err != nil {
		return nil, err
	}
	return &Pair{Forecast: fc, Uncertain: un}, nil
}

func (p *Pair) Name() string { return p.Forecast.Name() }

// Rewind clears both sets for a new run.
func (p *Pair) Rewind(seed int64, uncertain bool) {
	p.uncertainRun = uncertain
	p.Forecast.Rewind(seed)
	p.Uncertain.Rewind(seed)
}

// ReleaseDue reports whether the spill should go in the water at
// modelTime.
func (p *Pair) ReleaseDue(modelTime time.Time) bool {
	return p.Forecast.ReleaseDue(modelTime)
}

// Release releases the forecast set, and the twin on uncertainty runs.
func (p *Pair) Release(modelTime time.Time) {
	p.Forecast.Release(modelTime)
	if p.uncertainRun {
		p.Uncertain.Release(modelTime)
	}
}

// RefreshWindages redraws windage on every released set.
func (p *Pair) RefreshWindages(modelTime time.Time) {
	p.Forecast.RefreshWindages(modelTime)
	p.Uncertain.RefreshWindages(modelTime)
}

// Containers returns the released sets, forecast first.
func (p *Pair) Containers() []*Container {
	out := []*Container{p.Forecast}
	if p.uncertainRun {
		out = append(out, p.Uncertain)
	}
	return out
}
