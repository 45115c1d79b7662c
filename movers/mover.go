// Package movers implements the mover family: components that, given a
// model time and an element position, produce a displacement for one
// time step. Concrete movers wrap velocity fields (tidal current
// patterns, wind, diffusion) behind a single contract consumed by the
// model's stepping loop.
package movers

import (
	"time"

	"github.com/pthm-cable/slick/geo"
)

// Kind tags a concrete mover variant.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindCats
	KindWind
	KindRandom
)

func (k Kind) String() string {
	switch k {
	case KindCats:
		return "cats"
	case KindWind:
		return "wind"
	case KindRandom:
		return "random"
	default:
		return "unknown"
	}
}

// ElementType distinguishes forecast elements from the perturbed twins
// of an uncertainty run.
type ElementType uint8

const (
	ForecastElement ElementType = iota
	UncertaintyElement
)

// Element is the per-particle state a mover reads. Movers never mutate
// it; GetMove returns the new position instead.
type Element struct {
	Position geo.WorldPoint3D
	Windage  float64
}

// RunContext carries the run-scoped values movers need: the model start
// time anchors uncertainty windows, the seed anchors every random
// stream of the run.
type RunContext struct {
	Start     time.Time
	Seed      int64
	Uncertain bool
}

// Mover is the contract the driving loop steps against. The call order
// for a run is fixed: PrepareForModelRun once, then per step
// PrepareForModelStep, GetMove per element, ModelStepIsDone. Step
// preparation may fail and aborts the run; GetMove never fails and
// degrades to a zero displacement instead.
type Mover interface {
	Name() string
	Kind() Kind
	Active() bool

	PrepareForModelRun(run RunContext) error
	PrepareForModelStep(modelTime time.Time, step time.Duration, uncertain bool, setSizes []int) error
	GetMove(modelTime time.Time, step time.Duration, setIndex, elemIndex int, elem Element, elemType ElementType) geo.WorldPoint3D
	ModelStepIsDone()
}

// Base holds the state shared by every mover variant: naming, the
// owning collection (a relation by identifier, never a pointer), the
// active and panel-open flags, and the uncertainty window.
type Base struct {
	name  string
	owner string

	active bool
	open   bool

	// UncertainStartDelay is the offset after run start at which
	// uncertainty becomes active; UncertainDuration limits how long it
	// stays active, 0 meaning no limit.
	UncertainStartDelay time.Duration
	UncertainDuration   time.Duration

	// uncertaintyTimeWasSet is the model time uncertainty parameters
	// were last rerolled; the zero value forces a reroll on the first
	// uncertain step.
	uncertaintyTimeWasSet time.Time

	run      RunContext
	prepared bool
}

// NewBase builds mover base state. Movers start active with their
// parameter panel closed.
func NewBase(name string) Base {
	return Base{name: name, active: true}
}

func (b *Base) Name() string        { return b.name }
func (b *Base) SetName(name string) { b.name = name }

// Owner is the identifier of the owning map or collection. It is a
// relation only; the mover holds no reference to its owner.
func (b *Base) Owner() string         { return b.owner }
func (b *Base) SetOwner(owner string) { b.owner = owner }

func (b *Base) Active() bool          { return b.active }
func (b *Base) SetActive(active bool) { b.active = active }

func (b *Base) Open() bool        { return b.open }
func (b *Base) SetOpen(open bool) { b.open = open }

// Run returns the context of the current model run.
func (b *Base) Run() RunContext { return b.run }

// PrepareForModelRun resets run-scoped state.
func (b *Base) PrepareForModelRun(run RunContext) error {
	b.run = run
	b.uncertaintyTimeWasSet = time.Time{}
	b.prepared = true
	return nil
}

// PrepareForModelStep is a no-op for the base; variants layer their
// per-step work on top.
func (b *Base) PrepareForModelStep(modelTime time.Time, step time.Duration, uncertain bool, setSizes []int) error {
	if !b.prepared {
		return ErrInvalidState
	}
	return nil
}

// ModelStepIsDone clears step-scoped state. Idempotent.
func (b *Base) ModelStepIsDone() {}

// UpdateUncertainty advances persistent uncertainty state between
// steps. The base has none.
func (b *Base) UpdateUncertainty() {}

// uncertaintyWindowOpen reports whether modelTime falls inside the
// mover's uncertainty window for the current run.
func (b *Base) uncertaintyWindowOpen(modelTime time.Time) bool {
	start := b.run.Start.Add(b.UncertainStartDelay)
	if modelTime.Before(start) {
		return false
	}
	if b.UncertainDuration > 0 && modelTime.After(start.Add(b.UncertainDuration)) {
		return false
	}
	return true
}

// uncertaintyRefreshDue reports whether per-element uncertainty state
// should be rerolled at modelTime, given the reroll interval.
func (b *Base) uncertaintyRefreshDue(modelTime time.Time, interval time.Duration) bool {
	if b.uncertaintyTimeWasSet.IsZero() {
		return true
	}
	if interval <= 0 {
		return false
	}
	return !modelTime.Before(b.uncertaintyTimeWasSet.Add(interval))
}

func (b *Base) markUncertaintySet(modelTime time.Time) {
	b.uncertaintyTimeWasSet = modelTime
}
