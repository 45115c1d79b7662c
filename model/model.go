// Package model drives a drift run: it owns the clock, the mover
// collection, the spills, and the map, and steps them through the
// fixed mover lifecycle.
package model

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/slick/movers"
	"github.com/pthm-cable/slick/spill"
)

// ErrRunComplete is returned by Step once the run has covered its
// duration.
var ErrRunComplete = errors.New("model: run complete")

// Outputter receives the state of every element set after each step.
type Outputter interface {
	WriteStep(step int, modelTime time.Time, sets []*spill.Container) error
	Close() error
}

// Config is the run definition the model steps against.
type Config struct {
	Start     time.Time
	Duration  time.Duration
	Step      time.Duration
	Seed      int64
	Uncertain bool
}

func (c Config) validate() error {
	if c.Step <= 0 {
		return fmt.Errorf("model: step %v", c.Step)
	}
	if c.Duration < 0 {
		return fmt.Errorf("model: duration %v", c.Duration)
	}
	return nil
}

// Model is a drift run in progress. Movers act in insertion order;
// identical configurations step identically.
type Model struct {
	cfg Config
	gm  Map

	world  *ecs.World
	movers *orderedmap.OrderedMap[string, movers.Mover]
	spills []*spill.Pair

	outputters []Outputter
	parallel   *parallelState
	log        *slog.Logger

	currentTime time.Time
	stepCount   int
	rewound     bool
}

// New builds an empty model over the given map.
func New(cfg Config, gm Map, log *slog.Logger) (*Model, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if gm == nil {
		return nil, errors.New("model: nil map")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Model{
		cfg:      cfg,
		gm:       gm,
		world:    ecs.NewWorld(),
		movers:   orderedmap.NewOrderedMap[string, movers.Mover](),
		parallel: newParallelState(),
		log:      log,
	}, nil
}

// AddMover appends m to the mover sequence. Names are unique within a
// model.
func (m *Model) AddMover(mv movers.Mover) error {
	if _, ok := m.movers.Get(mv.Name()); ok {
		return fmt.Errorf("model: duplicate mover %q", mv.Name())
	}
	m.movers.Set(mv.Name(), mv)
	return nil
}

// RemoveMover drops the named mover, reporting whether it was present.
func (m *Model) RemoveMover(name string) bool {
	return m.movers.Delete(name)
}

// Mover returns the named mover.
func (m *Model) Mover(name string) (movers.Mover, bool) {
	return m.movers.Get(name)
}

// MoverNames lists movers in the order they act.
func (m *Model) MoverNames() []string {
	return m.movers.Keys()
}

// AddSpill adds a spill definition; both its element sets live in the
// model's world.
func (m *Model) AddSpill(def spill.Definition) error {
	p, err := spill.NewPair(m.world, def, len(m.spills))
	if err != nil {
		return err
	}
	m.spills = append(m.spills, p)
	return nil
}

// AddOutputter registers out to receive every step.
func (m *Model) AddOutputter(out Outputter) {
	m.outputters = append(m.outputters, out)
}

// Time returns the model's current time; StepCount the number of
// completed steps.
func (m *Model) Time() time.Time { return m.currentTime }
func (m *Model) StepCount() int  { return m.stepCount }

// Sets returns the released element sets in stepping order.
func (m *Model) Sets() []*spill.Container {
	var sets []*spill.Container
	for _, p := range m.spills {
		sets = append(sets, p.Containers()...)
	}
	return sets
}

// Rewind resets the run to its start: clock at start time, spills out
// of the water, every mover re-prepared.
func (m *Model) Rewind() error {
	m.currentTime = m.cfg.Start
	m.stepCount = 0
	for _, p := range m.spills {
		p.Rewind(m.cfg.Seed, m.cfg.Uncertain)
	}
	run := movers.RunContext{Start: m.cfg.Start, Seed: m.cfg.Seed, Uncertain: m.cfg.Uncertain}
	for el := m.movers.Front(); el != nil; el = el.Next() {
		if err := el.Value.PrepareForModelRun(run); err != nil {
			return fmt.Errorf("model: preparing mover %q: %w", el.Key, err)
		}
	}
	m.rewound = true
	m.log.Info("model rewound",
		"start", m.cfg.Start,
		"duration", m.cfg.Duration,
		"step", m.cfg.Step,
		"seed", m.cfg.Seed,
		"uncertain", m.cfg.Uncertain,
		"movers", m.movers.Len(),
		"spills", len(m.spills))
	return nil
}

// Step advances the model by one time step. A step-boundary failure in
// any mover aborts the step with no element moved. Returns
// ErrRunComplete once the duration is covered.
func (m *Model) Step() error {
	if !m.rewound {
		return errors.New("model: step before rewind")
	}
	if m.currentTime.Sub(m.cfg.Start) >= m.cfg.Duration {
		return ErrRunComplete
	}

	for _, p := range m.spills {
		if p.ReleaseDue(m.currentTime) {
			p.Release(m.currentTime)
			m.log.Info("spill released", "spill", p.Name(), "time", m.currentTime)
		}
		p.RefreshWindages(m.currentTime)
	}

	sets := m.Sets()
	setSizes := make([]int, len(sets))
	for i, s := range sets {
		setSizes[i] = s.Len()
	}

	active := m.activeMovers()
	prepared := active[:0:0]
	for _, mv := range active {
		if err := mv.PrepareForModelStep(m.currentTime, m.cfg.Step, m.cfg.Uncertain, setSizes); err != nil {
			// Step-done is safe after a failed prepare: a mover may
			// have published step state before the failing check.
			mv.ModelStepIsDone()
			for _, done := range prepared {
				done.ModelStepIsDone()
			}
			return fmt.Errorf("model: step %d, mover %q: %w", m.stepCount, mv.Name(), err)
		}
		prepared = append(prepared, mv)
	}

	m.moveElements(sets, active)

	for _, mv := range active {
		mv.ModelStepIsDone()
	}

	m.stepCount++
	m.currentTime = m.currentTime.Add(m.cfg.Step)

	for _, out := range m.outputters {
		if err := out.WriteStep(m.stepCount, m.currentTime, sets); err != nil {
			return fmt.Errorf("model: output at step %d: %w", m.stepCount, err)
		}
	}
	m.log.Debug("step complete", "step", m.stepCount, "time", m.currentTime)
	return nil
}

// FullRun rewinds and steps the model to completion.
func (m *Model) FullRun() error {
	if err := m.Rewind(); err != nil {
		return err
	}
	for {
		err := m.Step()
		if errors.Is(err, ErrRunComplete) {
			m.log.Info("run complete", "steps", m.stepCount, "end", m.currentTime)
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Close releases the worker pool and the registered outputters.
func (m *Model) Close() error {
	m.parallel.stopWorkers()
	var firstErr error
	for _, out := range m.outputters {
		if err := out.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Model) activeMovers() []movers.Mover {
	var active []movers.Mover
	for el := m.movers.Front(); el != nil; el = el.Next() {
		if el.Value.Active() {
			active = append(active, el.Value)
		}
	}
	return active
}

// moveElements snapshots every in-water element, computes its combined
// move, and applies the results. Elements whose candidate position
// leaves the map stay put and are frozen.
func (m *Model) moveElements(sets []*spill.Container, active []movers.Mover) {
	p := m.parallel
	p.snapshots = p.snapshots[:0]
	for si, s := range sets {
		for i := 0; i < s.Len(); i++ {
			if s.Status(i) != spill.StatusInWater {
				continue
			}
			p.snapshots = append(p.snapshots, elementSnapshot{
				SetIndex:  si,
				ElemIndex: i,
				Elem:      s.Element(i),
				ElemType:  s.ElementType(),
			})
		}
	}
	if len(p.snapshots) == 0 {
		return
	}

	p.compute(active, m.currentTime, m.cfg.Step)

	offMap := 0
	for i, snap := range p.snapshots {
		pos := p.intents[i].Position
		s := sets[snap.SetIndex]
		if !m.gm.InWater(pos.WorldPoint) {
			s.MarkOffMap(snap.ElemIndex)
			offMap++
			continue
		}
		s.SetPosition(snap.ElemIndex, pos)
	}
	if offMap > 0 {
		m.log.Debug("elements left the map", "step", m.stepCount, "count", offMap)
	}
}
