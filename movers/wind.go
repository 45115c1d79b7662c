package movers

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/pthm-cable/slick/geo"
	"github.com/pthm-cable/slick/timeseries"
)

// Wind uncertainty defaults: relative speed spread and angle spread in
// radians.
const (
	DefaultWindSpeedScale = 0.3
	DefaultWindAngleScale = 0.4
)

const windSalt = 0x77d1

// windFactor is the persistent perturbation one uncertainty set keeps
// for the life of the uncertainty interval.
type windFactor struct {
	Speed float64 // multiplies wind speed
	Angle float64 // rotates wind direction, radians
}

// WindMover moves surface elements with the wind, each element scaled
// by its own windage fraction. Elements below the surface are not
// touched.
type WindMover struct {
	Base

	// U and V are the wind components over time, m/s.
	U, V *timeseries.Series

	SpeedScale      float64
	AngleScale      float64
	RefreshInterval time.Duration

	factors    [][]windFactor
	windowOpen bool
	stepVel    geo.VelocityRec
	rng        *distuv.Uniform
}

// NewWindMover builds a wind mover over U and V component series.
func NewWindMover(name string, u, v *timeseries.Series) *WindMover {
	return &WindMover{
		Base:            NewBase(name),
		U:               u,
		V:               v,
		SpeedScale:      DefaultWindSpeedScale,
		AngleScale:      DefaultWindAngleScale,
		RefreshInterval: DefaultRefreshInterval,
	}
}

// NewConstantWindMover builds a wind mover with a steady wind.
func NewConstantWindMover(name string, wind geo.VelocityRec) *WindMover {
	return NewWindMover(name, timeseries.Constant(wind.U), timeseries.Constant(wind.V))
}

func (w *WindMover) Kind() Kind { return KindWind }

// LoadWindCSV replaces both component series from a CSV file of
// time,u,v rows. The mover is untouched on failure.
func (w *WindMover) LoadWindCSV(path string) error {
	u, v, err := timeseries.LoadVectorCSV(path)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("%w: %s", ErrFileNotFound, path)
		case errors.Is(err, timeseries.ErrMalformed):
			return fmt.Errorf("%w: %v", ErrMalformedData, err)
		default:
			return err
		}
	}
	w.U, w.V = u, v
	return nil
}

func (w *WindMover) PrepareForModelRun(run RunContext) error {
	if err := w.Base.PrepareForModelRun(run); err != nil {
		return err
	}
	if w.U == nil || w.V == nil {
		return fmt.Errorf("%w: wind mover %q has no wind record", ErrInvalidState, w.Name())
	}
	w.factors = nil
	w.windowOpen = false
	src := ElementSource(run.Seed, mixKeys(windSalt, hashName(w.Name())), 0, 0, run.Start)
	w.rng = &distuv.Uniform{Min: 0, Max: 1, Src: src}
	return nil
}

func (w *WindMover) PrepareForModelStep(modelTime time.Time, step time.Duration, uncertain bool, setSizes []int) error {
	if w.SpeedScale < 0 || w.AngleScale < 0 {
		return fmt.Errorf("%w: speed=%v angle=%v", ErrUncertaintyParams, w.SpeedScale, w.AngleScale)
	}
	if err := w.Base.PrepareForModelStep(modelTime, step, uncertain, setSizes); err != nil {
		return err
	}
	w.stepVel = geo.VelocityRec{U: w.U.Sample(modelTime), V: w.V.Sample(modelTime)}
	if !uncertain {
		w.windowOpen = false
		return nil
	}
	w.windowOpen = w.uncertaintyWindowOpen(modelTime)
	if !w.windowOpen {
		return nil
	}
	reroll := w.uncertaintyRefreshDue(modelTime, w.RefreshInterval)

	if len(w.factors) != len(setSizes) {
		w.factors = make([][]windFactor, len(setSizes))
	}
	// Sets grow mid-run as spills release; a newly sized set rolls its
	// factors now, the rest only when the refresh interval elapses.
	for i, n := range setSizes {
		if len(w.factors[i]) != n {
			w.factors[i] = make([]windFactor, n)
			w.rollSet(w.factors[i])
		} else if reroll {
			w.rollSet(w.factors[i])
		}
	}
	if reroll {
		w.markUncertaintySet(modelTime)
	}
	return nil
}

func (w *WindMover) rollSet(dst []windFactor) {
	for i := range dst {
		dst[i] = windFactor{
			Speed: 1 + w.SpeedScale*(2*w.rng.Rand()-1),
			Angle: w.AngleScale * (2*w.rng.Rand() - 1),
		}
	}
}

func (w *WindMover) ModelStepIsDone() {
	w.windowOpen = false
}

// perturb applies the element's rolled speed and angle factor to vel.
// Forecast elements, and any element outside an open uncertainty
// window, see the wind untouched.
func (w *WindMover) perturb(setIndex, elemIndex int, elemType ElementType, vel geo.VelocityRec) geo.VelocityRec {
	if elemType != UncertaintyElement || !w.windowOpen {
		return vel
	}
	if setIndex >= len(w.factors) || elemIndex >= len(w.factors[setIndex]) {
		return vel
	}
	f := w.factors[setIndex][elemIndex]
	sin, cos := math.Sincos(f.Angle)
	return geo.VelocityRec{
		U: f.Speed * (vel.U*cos - vel.V*sin),
		V: f.Speed * (vel.U*sin + vel.V*cos),
	}
}

// GetMove drifts a surface element downwind by its windage fraction of
// the wind over one step. Submerged elements do not move.
func (w *WindMover) GetMove(modelTime time.Time, step time.Duration, setIndex, elemIndex int, elem Element, elemType ElementType) geo.WorldPoint3D {
	if !w.Active() || elem.Position.Z > 0 || elem.Windage <= 0 {
		return elem.Position
	}
	vel := w.perturb(setIndex, elemIndex, elemType, w.stepVel)
	if vel.IsZero() {
		return elem.Position
	}
	dt := step.Seconds() * elem.Windage
	return geo.DisplaceMeters(elem.Position, vel.U*dt, vel.V*dt)
}
