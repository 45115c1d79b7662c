// Package geo provides world coordinates and the planar/geographic
// conversions used when integrating element motion.
package geo

import "math"

// MetersPerDegreeLat is the meridional arc length of one degree of latitude.
const MetersPerDegreeLat = 111120.0

// WorldPoint is a geographic position in decimal degrees.
type WorldPoint struct {
	Lat float64
	Lon float64
}

// WorldPoint3D is a geographic position with depth in meters.
// Z is positive downward: 0 is the surface, larger Z is deeper.
type WorldPoint3D struct {
	WorldPoint
	Z float64
}

// Point3D builds a WorldPoint3D from components.
func Point3D(lat, lon, z float64) WorldPoint3D {
	return WorldPoint3D{WorldPoint: WorldPoint{Lat: lat, Lon: lon}, Z: z}
}

// WorldRect is a geographic bounding box.
type WorldRect struct {
	LatMin float64
	LatMax float64
	LonMin float64
	LonMax float64
}

// Contains reports whether p lies inside the rectangle, edges included.
func (r WorldRect) Contains(p WorldPoint) bool {
	return p.Lat >= r.LatMin && p.Lat <= r.LatMax &&
		p.Lon >= r.LonMin && p.Lon <= r.LonMax
}

// Union expands r to cover o.
func (r WorldRect) Union(o WorldRect) WorldRect {
	return WorldRect{
		LatMin: math.Min(r.LatMin, o.LatMin),
		LatMax: math.Max(r.LatMax, o.LatMax),
		LonMin: math.Min(r.LonMin, o.LonMin),
		LonMax: math.Max(r.LonMax, o.LonMax),
	}
}

// VelocityRec is a horizontal velocity in m/s: U east, V north.
type VelocityRec struct {
	U float64
	V float64
}

// Speed returns the velocity magnitude.
func (v VelocityRec) Speed() float64 {
	return math.Hypot(v.U, v.V)
}

// IsZero reports whether both components are exactly zero.
func (v VelocityRec) IsZero() bool {
	return v.U == 0 && v.V == 0
}

// Scale returns the velocity multiplied by s.
func (v VelocityRec) Scale(s float64) VelocityRec {
	return VelocityRec{U: v.U * s, V: v.V * s}
}

// Add returns the component-wise sum.
func (v VelocityRec) Add(o VelocityRec) VelocityRec {
	return VelocityRec{U: v.U + o.U, V: v.V + o.V}
}

// MetersPerDegreeLon returns the zonal arc length of one degree of
// longitude at the given latitude. Near the poles the cosine term
// collapses; it is floored so displacement stays finite.
func MetersPerDegreeLon(lat float64) float64 {
	c := math.Cos(lat * math.Pi / 180)
	if c < 1e-6 {
		c = 1e-6
	}
	return MetersPerDegreeLat * c
}

// DisplaceMeters returns p moved by dx meters east and dy meters north,
// converted to a latitude/longitude delta at p's latitude. Depth is
// carried through unchanged.
func DisplaceMeters(p WorldPoint3D, dx, dy float64) WorldPoint3D {
	p.Lat += dy / MetersPerDegreeLat
	p.Lon += dx / MetersPerDegreeLon(p.Lat)
	return p
}

// DeltaMeters returns the planar separation in meters from a to b,
// measured at a's latitude.
func DeltaMeters(a, b WorldPoint) (dx, dy float64) {
	dy = (b.Lat - a.Lat) * MetersPerDegreeLat
	dx = (b.Lon - a.Lon) * MetersPerDegreeLon(a.Lat)
	return dx, dy
}
