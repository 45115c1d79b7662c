// Package main fits drift parameters against an observed track using
// CMA-ES.
package main

import (
	"github.com/pthm-cable/slick/config"
)

// ParamSpec defines a single calibratable parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
}

// ParamVector holds the set of all calibratable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of calibratable parameters:
// the knobs hindcasters actually tune when a forecast track drifts off
// an observed one.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			{Name: "current_scale", Path: "movers.cats[0].scale_value", Min: 0.1, Max: 5.0, Default: 1.0},
			{Name: "windage_max", Path: "spills[*].windage_max", Min: 0.005, Max: 0.08, Default: 0.04},
			{Name: "diffusivity", Path: "movers.random[0].diffusivity", Min: 0.0, Max: 100.0, Default: 10.0},
		},
	}
}

// Dim returns the parameter count.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default values in spec order.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, pv.Dim())
	for i, s := range pv.Specs {
		v[i] = s.Default
	}
	return v
}

// Normalize maps raw values into [0, 1] per spec bounds.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	out := make([]float64, len(raw))
	for i, s := range pv.Specs {
		out[i] = (raw[i] - s.Min) / (s.Max - s.Min)
	}
	return out
}

// Denormalize maps [0, 1] values back to raw parameter space.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	out := make([]float64, len(normalized))
	for i, s := range pv.Specs {
		out[i] = s.Min + normalized[i]*(s.Max-s.Min)
	}
	return out
}

// Clamp limits raw values to their spec bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, s := range pv.Specs {
		x := v[i]
		if x < s.Min {
			x = s.Min
		}
		if x > s.Max {
			x = s.Max
		}
		out[i] = x
	}
	return out
}

// ApplyToConfig writes raw parameter values into cfg. The first cats
// mover is forced onto a constant scale so current_scale always has an
// effect; windage applies to every spill.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	scale, windageMax, diffusivity := values[0], values[1], values[2]

	if len(cfg.Movers.Cats) > 0 {
		cfg.Movers.Cats[0].Scale = "constant"
		cfg.Movers.Cats[0].ScaleValue = scale
	}
	for i := range cfg.Spills {
		cfg.Spills[i].WindageMax = windageMax
		if cfg.Spills[i].WindageMin > windageMax {
			cfg.Spills[i].WindageMin = windageMax
		}
	}
	if len(cfg.Movers.Random) > 0 {
		cfg.Movers.Random[0].Diffusivity = diffusivity
	}
}
