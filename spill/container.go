package spill

import (
	"fmt"
	"time"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/pthm-cable/slick/geo"
	"github.com/pthm-cable/slick/movers"
)

// Windage defaults: the fraction of wind speed a surface element
// drifts at, and how long one drawn value persists.
const (
	DefaultWindageMin     = 0.01
	DefaultWindageMax     = 0.04
	DefaultWindagePersist = 15 * time.Minute
)

const windageSalt = 0x71de

// Definition describes one spill: where, when, and how many elements.
type Definition struct {
	Name        string
	Start       geo.WorldPoint3D
	ReleaseTime time.Time
	Count       int

	WindageMin     float64
	WindageMax     float64
	WindagePersist time.Duration
}

// NewDefinition builds a point-release definition with default
// windage.
func NewDefinition(name string, start geo.WorldPoint3D, releaseTime time.Time, count int) Definition {
	return Definition{
		Name:           name,
		Start:          start,
		ReleaseTime:    releaseTime,
		Count:          count,
		WindageMin:     DefaultWindageMin,
		WindageMax:     DefaultWindageMax,
		WindagePersist: DefaultWindagePersist,
	}
}

func (d Definition) validate() error {
	if d.Count <= 0 {
		return fmt.Errorf("spill %q: element count %d", d.Name, d.Count)
	}
	if d.WindageMin < 0 || d.WindageMax < d.WindageMin {
		return fmt.Errorf("spill %q: windage range [%v, %v]", d.Name, d.WindageMin, d.WindageMax)
	}
	return nil
}

// Container is one element set: the entities of one spill for one
// element type (forecast or uncertainty twin). Entities keep their
// creation order, which is the element index movers key their random
// streams on.
type Container struct {
	def      Definition
	setIndex int
	elemType movers.ElementType

	world    *ecs.World
	mapper   *ecs.Map2[Position, Properties]
	entities []ecs.Entity

	released bool
	seed     int64
}

// NewContainer builds an unreleased element set in world. setIndex is
// the set's position in the model's spill ordering.
func NewContainer(world *ecs.World, def Definition, setIndex int, elemType movers.ElementType) (*Container, error) {
	if err := def.validate(); err != nil {
		return nil, err
	}
	return &Container{
		def:      def,
		setIndex: setIndex,
		elemType: elemType,
		world:    world,
		mapper:   ecs.NewMap2[Position, Properties](world),
	}, nil
}

func (c *Container) Name() string                    { return c.def.Name }
func (c *Container) SetIndex() int                   { return c.setIndex }
func (c *Container) ElementType() movers.ElementType { return c.elemType }
func (c *Container) Released() bool                  { return c.released }

// Len is the number of live entities in the set: 0 before release,
// the definition's count after.
func (c *Container) Len() int { return len(c.entities) }

// Rewind removes every entity so the set can be released again.
func (c *Container) Rewind(seed int64) {
	for _, e := range c.entities {
		if c.world.Alive(e) {
			c.world.RemoveEntity(e)
		}
	}
	c.entities = nil
	c.released = false
	c.seed = seed
}

// ReleaseDue reports whether the set should release at modelTime.
func (c *Container) ReleaseDue(modelTime time.Time) bool {
	return !c.released && !modelTime.Before(c.def.ReleaseTime)
}

// Release puts the spill's elements in the water at the release point
// with freshly drawn windages. Releasing an already released set is a
// no-op.
func (c *Container) Release(modelTime time.Time) {
	if c.released {
		return
	}
	c.entities = make([]ecs.Entity, c.def.Count)
	for i := range c.entities {
		pos := Position{WorldPoint3D: c.def.Start}
		props := Properties{Status: StatusInWater, Windage: c.windageAt(i, modelTime)}
		c.entities[i] = c.mapper.NewEntity(&pos, &props)
	}
	c.released = true
}

// windageAt draws element i's windage for the persistence interval
// containing modelTime. The draw is keyed, so every element keeps its
// value for the whole interval and identical runs agree.
func (c *Container) windageAt(i int, modelTime time.Time) float64 {
	if c.def.WindageMax == c.def.WindageMin {
		return c.def.WindageMin
	}
	persist := c.def.WindagePersist
	if persist <= 0 {
		persist = DefaultWindagePersist
	}
	interval := modelTime.Unix() / int64(persist/time.Second)
	u := distuv.Uniform{
		Min: c.def.WindageMin,
		Max: c.def.WindageMax,
		Src: movers.ElementSource(c.seed, windageSalt, c.setIndex, i, time.Unix(interval, 0)),
	}
	return u.Rand()
}

// RefreshWindages redraws windage for the interval containing
// modelTime. Cheap to call every step; elements inside an unchanged
// interval redraw the same value.
func (c *Container) RefreshWindages(modelTime time.Time) {
	if !c.released {
		return
	}
	for i, e := range c.entities {
		_, props := c.mapper.Get(e)
		if props.Status != StatusInWater {
			continue
		}
		props.Windage = c.windageAt(i, modelTime)
	}
}

// Element snapshots entity i for the mover contract.
func (c *Container) Element(i int) movers.Element {
	pos, props := c.mapper.Get(c.entities[i])
	return movers.Element{Position: pos.WorldPoint3D, Windage: props.Windage}
}

// Status returns entity i's status.
func (c *Container) Status(i int) Status {
	_, props := c.mapper.Get(c.entities[i])
	return props.Status
}

// SetPosition moves entity i. Off-map elements are frozen and keep
// their position.
func (c *Container) SetPosition(i int, p geo.WorldPoint3D) {
	pos, props := c.mapper.Get(c.entities[i])
	if props.Status != StatusInWater {
		return
	}
	pos.WorldPoint3D = p
}

// MarkOffMap freezes entity i where it is.
func (c *Container) MarkOffMap(i int) {
	_, props := c.mapper.Get(c.entities[i])
	if props.Status == StatusInWater {
		props.Status = StatusOffMap
	}
}

// Positions appends the current element positions to dst and returns
// it, in element order.
func (c *Container) Positions(dst []geo.WorldPoint3D) []geo.WorldPoint3D {
	for _, e := range c.entities {
		pos, _ := c.mapper.Get(e)
		dst = append(dst, pos.WorldPoint3D)
	}
	return dst
}
