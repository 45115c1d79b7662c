package movers

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/pthm-cable/slick/field"
	"github.com/pthm-cable/slick/geo"
	"github.com/pthm-cable/slick/timeseries"
)

// GridWindMover reads the wind from a spatial field instead of a
// single uniform record, so each element sees the wind at its own
// position. Windage and uncertainty behave exactly as WindMover.
type GridWindMover struct {
	WindMover

	Field field.VelocityField
}

// NewGridWindMover builds a wind mover over a spatial wind field.
func NewGridWindMover(name string, f field.VelocityField) *GridWindMover {
	m := &GridWindMover{
		WindMover: *NewWindMover(name, timeseries.Constant(0), timeseries.Constant(0)),
	}
	m.Field = f
	return m
}

// ReadTopology loads wind grid geometry from a file and installs it as
// the mover's field. On failure the existing field is left in place.
func (g *GridWindMover) ReadTopology(path string) error {
	grid, err := field.LoadTopology(path)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("%w: %s", ErrFileNotFound, path)
		case errors.Is(err, field.ErrMalformedTopology):
			return fmt.Errorf("%w: %v", ErrMalformedData, err)
		default:
			return err
		}
	}
	g.Field = grid
	return nil
}

func (g *GridWindMover) PrepareForModelRun(run RunContext) error {
	if g.Field == nil {
		return fmt.Errorf("%w: grid wind mover %q has no field", ErrInvalidState, g.Name())
	}
	return g.WindMover.PrepareForModelRun(run)
}

// GetMove drifts a surface element by its windage fraction of the wind
// sampled at the element's position. Outside the field's bounds the
// sample is zero and the element stays put.
func (g *GridWindMover) GetMove(modelTime time.Time, step time.Duration, setIndex, elemIndex int, elem Element, elemType ElementType) geo.WorldPoint3D {
	if !g.Active() || g.Field == nil || elem.Position.Z > 0 || elem.Windage <= 0 {
		return elem.Position
	}
	vel := g.Field.Sample(elem.Position.WorldPoint)
	if vel.IsZero() {
		return elem.Position
	}
	vel = g.perturb(setIndex, elemIndex, elemType, vel)
	dt := step.Seconds() * elem.Windage
	return geo.DisplaceMeters(elem.Position, vel.U*dt, vel.V*dt)
}
