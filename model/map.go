package model

import "github.com/pthm-cable/slick/geo"

// Map decides where elements may go. It sees candidate positions after
// all movers have acted and rules each one in or out.
type Map interface {
	Name() string
	// InWater reports whether p is a position an element may occupy.
	InWater(p geo.WorldPoint) bool
	Bounds() geo.WorldRect
}

// OpenWater is a map with no land: everything inside its bounds is
// water, everything outside is off the map.
type OpenWater struct {
	name   string
	bounds geo.WorldRect
}

func NewOpenWater(name string, bounds geo.WorldRect) *OpenWater {
	return &OpenWater{name: name, bounds: bounds}
}

func (m *OpenWater) Name() string                  { return m.name }
func (m *OpenWater) InWater(p geo.WorldPoint) bool { return m.bounds.Contains(p) }
func (m *OpenWater) Bounds() geo.WorldRect         { return m.bounds }
