// Package field provides velocity fields sampled by the movers: a
// velocity vector for a world position, plus a bounding region.
package field

import "github.com/pthm-cable/slick/geo"

// VelocityField yields a velocity for a world position. Implementations
// must be safe for concurrent read-only sampling; a position outside
// Bounds samples as the zero vector.
type VelocityField interface {
	Sample(p geo.WorldPoint) geo.VelocityRec
	Bounds() geo.WorldRect
}

// Smoother is implemented by fields that can suppress local noise by
// averaging across neighboring cells.
type Smoother interface {
	SampleSmooth(p geo.WorldPoint) geo.VelocityRec
}

// Constant is a uniform velocity field over a fixed region.
type Constant struct {
	Vel    geo.VelocityRec
	Region geo.WorldRect
}

// NewConstant builds a uniform field over the given region.
func NewConstant(vel geo.VelocityRec, region geo.WorldRect) *Constant {
	return &Constant{Vel: vel, Region: region}
}

// Sample returns the uniform velocity inside the region, zero outside.
func (c *Constant) Sample(p geo.WorldPoint) geo.VelocityRec {
	if !c.Region.Contains(p) {
		return geo.VelocityRec{}
	}
	return c.Vel
}

// Bounds returns the field's region.
func (c *Constant) Bounds() geo.WorldRect {
	return c.Region
}
