package movers

import (
	"fmt"
	"math"
	"time"

	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/pthm-cable/slick/geo"
)

// Defaults for current uncertainty, matching the historical values:
// perturbation of half the speed along-stream, a quarter across.
const (
	DefaultAlongScale      = 0.5
	DefaultCrossScale      = 0.25
	DefaultRefreshInterval = 24 * time.Hour
)

// streamFactor is one element's persistent current perturbation,
// expressed relative to the local flow direction.
type streamFactor struct {
	Along float64
	Cross float64
}

// CurrentMover adds uncertainty-run bookkeeping shared by the current
// movers: per-element along/cross-stream perturbation factors, rerolled
// when the refresh interval elapses rather than every step.
type CurrentMover struct {
	Base

	// AlongScale and CrossScale bound the relative perturbation along
	// and across the sampled current.
	AlongScale float64
	CrossScale float64

	// RefreshInterval is how long a rolled factor set stays in use.
	RefreshInterval time.Duration

	// factors[setIndex][elemIndex], populated only during uncertainty
	// runs. Written at step boundaries, read-only while elements move.
	factors [][]streamFactor

	// windowOpen is published by PrepareForModelStep for the element
	// hot path, which must not recheck the clock per element.
	windowOpen bool
	stepTime   time.Time

	rng *exprand.Rand
}

// NewCurrentMover builds current-mover bookkeeping with the default
// uncertainty scales.
func NewCurrentMover(name string) CurrentMover {
	return CurrentMover{
		Base:            NewBase(name),
		AlongScale:      DefaultAlongScale,
		CrossScale:      DefaultCrossScale,
		RefreshInterval: DefaultRefreshInterval,
	}
}

// PrepareForModelRun resets the rolled factors and reseeds the
// boundary RNG from the run seed and the mover name.
func (c *CurrentMover) PrepareForModelRun(run RunContext) error {
	if err := c.Base.PrepareForModelRun(run); err != nil {
		return err
	}
	c.factors = nil
	c.windowOpen = false
	seed := mixKeys(uint64(run.Seed), hashName(c.Name()))
	c.rng = exprand.New(exprand.NewSource(seed))
	return nil
}

// PrepareForModelStep validates uncertainty parameters, sizes the
// factor arrays to the current element sets, and rerolls them when the
// refresh interval has elapsed.
func (c *CurrentMover) PrepareForModelStep(modelTime time.Time, step time.Duration, uncertain bool, setSizes []int) error {
	if err := c.Base.PrepareForModelStep(modelTime, step, uncertain, setSizes); err != nil {
		return err
	}
	c.stepTime = modelTime

	if !uncertain {
		c.windowOpen = false
		return nil
	}
	if c.AlongScale < 0 || c.CrossScale < 0 {
		return fmt.Errorf("%w: along=%v cross=%v", ErrUncertaintyParams, c.AlongScale, c.CrossScale)
	}

	c.windowOpen = c.uncertaintyWindowOpen(modelTime)
	reroll := c.uncertaintyRefreshDue(modelTime, c.RefreshInterval)

	if len(c.factors) != len(setSizes) {
		c.factors = make([][]streamFactor, len(setSizes))
	}
	for i, n := range setSizes {
		if len(c.factors[i]) != n {
			c.factors[i] = make([]streamFactor, n)
			c.rollSet(c.factors[i])
		} else if reroll {
			c.rollSet(c.factors[i])
		}
	}
	if reroll {
		c.UpdateUncertainty()
		c.markUncertaintySet(modelTime)
	}
	return nil
}

// ModelStepIsDone clears the published step state. Safe to call after
// a failed step.
func (c *CurrentMover) ModelStepIsDone() {
	c.windowOpen = false
	c.Base.ModelStepIsDone()
}

func (c *CurrentMover) rollSet(dst []streamFactor) {
	along := distuv.Uniform{Min: -c.AlongScale, Max: c.AlongScale, Src: c.rng}
	cross := distuv.Uniform{Min: -c.CrossScale, Max: c.CrossScale, Src: c.rng}
	for i := range dst {
		dst[i] = streamFactor{Along: along.Rand(), Cross: cross.Rand()}
	}
}

// perturb applies the element's rolled along/cross factors to vel.
// Outside the uncertainty window, or for an element without a rolled
// factor, vel is left untouched.
func (c *CurrentMover) perturb(setIndex, elemIndex int, vel *geo.VelocityRec) {
	if !c.windowOpen {
		return
	}
	if setIndex < 0 || setIndex >= len(c.factors) {
		return
	}
	set := c.factors[setIndex]
	if elemIndex < 0 || elemIndex >= len(set) {
		return
	}
	speed := vel.Speed()
	if speed == 0 {
		return
	}
	f := set[elemIndex]
	alongU, alongV := vel.U/speed, vel.V/speed
	crossU, crossV := -alongV, alongU
	vel.U += speed * (f.Along*alongU + f.Cross*crossU)
	vel.V += speed * (f.Along*alongV + f.Cross*crossV)
}

// eddyScale is the bounding magnitude of the stochastic eddy velocity
// for one step: sqrt(6*D/dt) with D in m²/s.
func eddyScale(diffusivity float64, step time.Duration) float64 {
	dt := step.Seconds()
	if dt <= 0 {
		return 0
	}
	return math.Sqrt(6 * diffusivity / dt)
}

func hashName(name string) uint64 {
	h := uint64(0xcbf29ce484222325)
	for i := 0; i < len(name); i++ {
		h = (h ^ uint64(name[i])) * 0x100000001b3
	}
	return h
}
