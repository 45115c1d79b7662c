// Package spill manages the released elements of a model run: the
// entity sets movers act on, their release schedule, windage, and
// status bookkeeping. Elements live in an ECS world; movers see them
// only as positional snapshots.
package spill

import (
	"github.com/pthm-cable/slick/geo"
)

// Status tracks where an element is in its life.
type Status uint8

const (
	// StatusNotReleased elements exist in the spill definition but are
	// not yet in the water.
	StatusNotReleased Status = iota
	// StatusInWater elements move.
	StatusInWater
	// StatusOnLand elements beached on a shoreline. No map in this
	// package produces it yet; open-water maps only freeze off-map.
	StatusOnLand
	// StatusOffMap elements left the map and are frozen in place.
	StatusOffMap
)

func (s Status) String() string {
	switch s {
	case StatusInWater:
		return "in_water"
	case StatusOnLand:
		return "on_land"
	case StatusOffMap:
		return "off_map"
	default:
		return "not_released"
	}
}

// Position is an element's ECS position component.
type Position struct {
	geo.WorldPoint3D
}

// Properties carries the element state movers and output read besides
// position.
type Properties struct {
	Status  Status
	Windage float64
}
