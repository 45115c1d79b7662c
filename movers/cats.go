package movers

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/pthm-cable/slick/field"
	"github.com/pthm-cable/slick/geo"
	"github.com/pthm-cable/slick/timeseries"
)

// ScaleType selects how the current pattern is scaled before use.
type ScaleType uint8

const (
	// ScaleNone uses the grid values as-is.
	ScaleNone ScaleType = iota
	// ScaleConstant matches a constant value at the reference point.
	ScaleConstant
	// ScaleFile matches a time series loaded from a file at the
	// reference point.
	ScaleFile
)

func (s ScaleType) String() string {
	switch s {
	case ScaleConstant:
		return "constant"
	case ScaleFile:
		return "file"
	default:
		return "none"
	}
}

// Log-profile defaults: profile depth in meters and roughness length.
const (
	DefaultProfileDepth = 10.0
	DefaultRoughness    = 0.01
)

const catsSalt = 0xca75

// CatsMover advects elements with a steady current pattern sampled
// from a velocity grid, optionally scaled by a time series matched at a
// reference station (a tide record, typically) and perturbed by eddy
// uncertainty during uncertainty runs.
type CatsMover struct {
	CurrentMover

	// Field is the current pattern. Required before any move.
	Field field.VelocityField

	// RefPoint anchors the scale match; RefDepth is its depth in
	// meters, positive down.
	RefPoint geo.WorldPoint
	RefDepth float64

	ScaleType     ScaleType
	ScaleConstant float64
	ScaleFilePath string

	// RefScale multiplies the matched value so the scaled grid agrees
	// with the station record at the reference point.
	RefScale float64

	// TimeSeries supplies the time-varying scale; nil means the scale
	// is static.
	TimeSeries *timeseries.Series

	// ApplyLogProfile attenuates near-surface velocity by a
	// logarithmic depth profile instead of using it uniformly.
	ApplyLogProfile bool
	ProfileDepth    float64
	Roughness       float64

	// EddyDiffusivity (m²/s) bounds the stochastic eddy velocity;
	// EddyV0 (m/s) is the current speed below which the eddy
	// contribution is suppressed.
	EddyDiffusivity float64
	EddyV0          float64

	// computedScale is valid only for scaleTime; PrepareForModelStep
	// recomputes it at every step boundary.
	computedScale float64
	scaleValid    bool
	scaleTime     time.Time

	eddyMag float64 // published per step for the element hot path
}

// NewCatsMover builds a current-pattern mover over the given field.
func NewCatsMover(name string, f field.VelocityField) *CatsMover {
	return &CatsMover{
		CurrentMover: NewCurrentMover(name),
		Field:        f,
		RefScale:     1,
		ProfileDepth: DefaultProfileDepth,
		Roughness:    DefaultRoughness,
	}
}

func (m *CatsMover) Kind() Kind { return KindCats }

// SetTimeSeries hands the mover an owned time series. The mover stores
// its own clone so later mutation of src cannot skew the scale match.
func (m *CatsMover) SetTimeSeries(src *timeseries.Series) {
	if src == nil {
		m.TimeSeries = nil
		return
	}
	m.TimeSeries = src.Clone()
}

// GetGridBounds returns the current pattern's bounding region.
func (m *CatsMover) GetGridBounds() geo.WorldRect {
	if m.Field == nil {
		return geo.WorldRect{}
	}
	return m.Field.Bounds()
}

// ReadTopology loads grid geometry from a file and installs it as the
// mover's field. On failure the existing field is left in place; a
// broken file is never partially installed.
func (m *CatsMover) ReadTopology(path string) error {
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
	m.Field = grid
	return nil
}

// PrepareForModelRun resets run caches: the next step must recompute
// the velocity scale, and a file-backed scale series is loaded now so
// no I/O happens on the element hot path.
func (m *CatsMover) PrepareForModelRun(run RunContext) error {
	if err := m.CurrentMover.PrepareForModelRun(run); err != nil {
		return err
	}
	m.scaleValid = false
	if m.ScaleType == ScaleFile && m.TimeSeries == nil {
		series, err := timeseries.LoadCSV(m.ScaleFilePath)
		if err != nil {
			switch {
			case errors.Is(err, fs.ErrNotExist):
				return fmt.Errorf("%w: %s", ErrFileNotFound, m.ScaleFilePath)
			case errors.Is(err, timeseries.ErrMalformed):
				return fmt.Errorf("%w: %v", ErrMalformedData, err)
			default:
				return err
			}
		}
		m.TimeSeries = series
	}
	return nil
}

// PrepareForModelStep recomputes the velocity scale for this model
// time and validates the eddy parameters before any element moves.
func (m *CatsMover) PrepareForModelStep(modelTime time.Time, step time.Duration, uncertain bool, setSizes []int) error {
	if m.Field == nil {
		return fmt.Errorf("%w: cats mover %q has no velocity field", ErrInvalidState, m.Name())
	}
	if uncertain && (m.EddyDiffusivity < 0 || m.EddyV0 < 0) {
		return fmt.Errorf("%w: eddy diffusivity=%v v0=%v", ErrUncertaintyParams, m.EddyDiffusivity, m.EddyV0)
	}
	if err := m.CurrentMover.PrepareForModelStep(modelTime, step, uncertain, setSizes); err != nil {
		return err
	}
	if err := m.ComputeVelocityScale(modelTime); err != nil {
		return err
	}
	m.eddyMag = eddyScale(m.EddyDiffusivity, step)
	return nil
}

// ComputeVelocityScale derives the scale factor valid for modelTime.
// With a time series attached the series value is matched against the
// raw grid speed at the reference point; a zero reference speed cannot
// be matched and fails distinctly.
func (m *CatsMover) ComputeVelocityScale(modelTime time.Time) error {
	m.scaleValid = false
	switch {
	case m.ScaleType == ScaleNone:
		m.computedScale = 1
	case m.TimeSeries != nil:
		if m.Field == nil {
			return fmt.Errorf("%w: no velocity field", ErrInvalidState)
		}
		ref := m.Field.Sample(m.RefPoint).Speed()
		if ref == 0 {
			return fmt.Errorf("%w: at (%.4f, %.4f)", ErrZeroReferenceVelocity, m.RefPoint.Lat, m.RefPoint.Lon)
		}
		m.computedScale = m.TimeSeries.Sample(modelTime) / ref * m.RefScale
	case m.ScaleType == ScaleConstant:
		m.computedScale = m.ScaleConstant * m.RefScale
	default:
		// ScaleFile with no loaded series: the run was not prepared.
		return fmt.Errorf("%w: file scale requested but no series loaded", ErrInvalidState)
	}
	m.scaleValid = true
	m.scaleTime = modelTime
	return nil
}

// GetPatValue samples the raw current pattern at p: no scaling, no
// time dependence. Zero outside the field's bounds or with no field.
func (m *CatsMover) GetPatValue(p geo.WorldPoint3D) geo.VelocityRec {
	if m.Field == nil {
		return geo.VelocityRec{}
	}
	return m.Field.Sample(p.WorldPoint)
}

// GetSmoothVelocity samples the pattern averaged across neighboring
// grid cells, falling back to the raw sample when the field cannot
// smooth.
func (m *CatsMover) GetSmoothVelocity(p geo.WorldPoint) geo.VelocityRec {
	if sm, ok := m.Field.(field.Smoother); ok {
		return sm.SampleSmooth(p)
	}
	if m.Field == nil {
		return geo.VelocityRec{}
	}
	return m.Field.Sample(p)
}

// GetScaledPatValue returns the pattern value at p multiplied by the
// computed scale, attenuated by the log depth profile when enabled.
// useEddy reports whether eddy uncertainty should be applied on top: a
// zero sample carries no physical meaning, so scaling and eddy are
// both suppressed for it.
func (m *CatsMover) GetScaledPatValue(modelTime time.Time, p geo.WorldPoint3D) (vel geo.VelocityRec, useEddy bool) {
	raw := m.GetPatValue(p)
	if raw.IsZero() {
		return geo.VelocityRec{}, false
	}
	scale := 1.0
	if m.scaleValid {
		scale = m.computedScale
	}
	vel = raw.Scale(scale)
	if m.ApplyLogProfile {
		vel = vel.Scale(m.logProfile(p.Z))
	}
	return vel, true
}

// logProfile attenuates velocity by depth below the surface: 1 at the
// surface, falling to 0 at ProfileDepth, never negative.
func (m *CatsMover) logProfile(depth float64) float64 {
	if depth <= 0 {
		return 1
	}
	h, z0 := m.ProfileDepth, m.Roughness
	if h <= 0 || z0 <= 0 {
		return 1
	}
	if depth >= h {
		return 0
	}
	att := math.Log(1+(h-depth)/z0) / math.Log(1+h/z0)
	if att < 0 {
		return 0
	}
	if att > 1 {
		return 1
	}
	return att
}

// AddUncertainty perturbs vel in place for an uncertainty element:
// the persistent along/cross factors first, then a bounded random eddy
// velocity when useEddy is set and the current is above the cutoff.
// Outside the uncertainty window vel is untouched.
func (m *CatsMover) AddUncertainty(setIndex, elemIndex int, vel *geo.VelocityRec, step time.Duration, useEddy bool) {
	if !m.windowOpen {
		return
	}
	speed := vel.Speed()
	m.perturb(setIndex, elemIndex, vel)

	if !useEddy || m.eddyMag == 0 || speed < m.EddyV0 {
		return
	}
	eddy := distuv.Uniform{
		Min: -m.eddyMag,
		Max: m.eddyMag,
		Src: ElementSource(m.Run().Seed, catsSalt, setIndex, elemIndex, m.stepTime),
	}
	vel.U += eddy.Rand()
	vel.V += eddy.Rand()
}

// GetMove integrates one element over one step: the scaled pattern
// velocity, perturbed for uncertainty elements, converted to a
// latitude/longitude displacement at the element's position. It never
// fails; a position outside the grid simply does not move. The input
// element is not mutated.
func (m *CatsMover) GetMove(modelTime time.Time, step time.Duration, setIndex, elemIndex int, elem Element, elemType ElementType) geo.WorldPoint3D {
	if !m.Active() || m.Field == nil {
		return elem.Position
	}
	vel, useEddy := m.GetScaledPatValue(modelTime, elem.Position)
	if elemType == UncertaintyElement {
		m.AddUncertainty(setIndex, elemIndex, &vel, step, useEddy)
	}
	if vel.IsZero() {
		return elem.Position
	}
	dt := step.Seconds()
	return geo.DisplaceMeters(elem.Position, vel.U*dt, vel.V*dt)
}

// VelocityStrAtPoint formats the scaled velocity at p for display.
// Reports false, with an empty string, when p is outside the field.
func (m *CatsMover) VelocityStrAtPoint(p geo.WorldPoint3D) (string, bool) {
	if m.Field == nil || !m.Field.Bounds().Contains(p.WorldPoint) {
		return "", false
	}
	vel, _ := m.GetScaledPatValue(m.scaleTime, p)
	return fmt.Sprintf("%.2f m/s E, %.2f m/s N (%.2f m/s)", vel.U, vel.V, vel.Speed()), true
}
