package model

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/pthm-cable/slick/config"
	"github.com/pthm-cable/slick/field"
	"github.com/pthm-cable/slick/geo"
	"github.com/pthm-cable/slick/movers"
	"github.com/pthm-cable/slick/spill"
)

// BuildFromConfig assembles a model from a loaded configuration:
// map, movers in kind order, and spills. Output wiring is the
// caller's.
func BuildFromConfig(cfg *config.Config, log *slog.Logger) (*Model, error) {
	bounds := geo.WorldRect{
		LatMin: cfg.Map.LatMin,
		LatMax: cfg.Map.LatMax,
		LonMin: cfg.Map.LonMin,
		LonMax: cfg.Map.LonMax,
	}
	gm := NewOpenWater(cfg.Map.Name, bounds)

	m, err := New(Config{
		Start:     cfg.Derived.Start,
		Duration:  cfg.Derived.Duration,
		Step:      cfg.Derived.Step,
		Seed:      cfg.Run.Seed,
		Uncertain: cfg.Run.Uncertain,
	}, gm, log)
	if err != nil {
		return nil, err
	}

	for _, mc := range cfg.Movers.Cats {
		mv, err := buildCatsMover(mc, bounds)
		if err != nil {
			return nil, err
		}
		applyWindow(&mv.Base, cfg)
		if err := m.AddMover(mv); err != nil {
			return nil, err
		}
	}
	for _, mc := range cfg.Movers.Wind {
		if mc.Topology != "" {
			mv, err := buildGridWindMover(mc)
			if err != nil {
				return nil, err
			}
			applyWindow(&mv.Base, cfg)
			if err := m.AddMover(mv); err != nil {
				return nil, err
			}
			continue
		}
		mv, err := buildWindMover(mc)
		if err != nil {
			return nil, err
		}
		applyWindow(&mv.Base, cfg)
		if err := m.AddMover(mv); err != nil {
			return nil, err
		}
	}
	for _, mc := range cfg.Movers.Random {
		mv := movers.NewRandomMover(mc.Name, mc.Diffusivity)
		applyWindow(&mv.Base, cfg)
		if err := m.AddMover(mv); err != nil {
			return nil, err
		}
	}

	for _, sc := range cfg.Spills {
		def := spill.NewDefinition(sc.Name,
			geo.WorldPoint3D{WorldPoint: geo.WorldPoint{Lat: sc.Lat, Lon: sc.Lon}, Z: sc.Depth},
			cfg.Derived.Start.Add(time.Duration(sc.ReleaseHrs*float64(time.Hour))),
			sc.Count)
		if sc.WindageMin != 0 || sc.WindageMax != 0 {
			def.WindageMin = sc.WindageMin
			def.WindageMax = sc.WindageMax
		}
		if sc.WindagePersMins > 0 {
			def.WindagePersist = time.Duration(sc.WindagePersMins * float64(time.Minute))
		}
		if err := m.AddSpill(def); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func applyWindow(b *movers.Base, cfg *config.Config) {
	b.UncertainStartDelay = cfg.Derived.UncertainDelay
	b.UncertainDuration = cfg.Derived.UncertainDuration
}

func buildCatsMover(mc config.CatsMoverConfig, bounds geo.WorldRect) (*movers.CatsMover, error) {
	var f field.VelocityField
	if mc.Topology == "" {
		f = field.NewConstant(geo.VelocityRec{U: mc.ConstantU, V: mc.ConstantV}, bounds)
	}
	mv := movers.NewCatsMover(mc.Name, f)
	if mc.Topology != "" {
		if err := mv.ReadTopology(mc.Topology); err != nil {
			return nil, fmt.Errorf("mover %q: %w", mc.Name, err)
		}
	}

	switch mc.Scale {
	case "", "none":
		mv.ScaleType = movers.ScaleNone
	case "constant":
		mv.ScaleType = movers.ScaleConstant
		mv.ScaleConstant = mc.ScaleValue
	case "file":
		mv.ScaleType = movers.ScaleFile
		mv.ScaleFilePath = mc.ScaleFile
	default:
		return nil, fmt.Errorf("mover %q: unknown scale type %q", mc.Name, mc.Scale)
	}
	if mc.RefScale != 0 {
		mv.RefScale = mc.RefScale
	}
	mv.RefPoint = geo.WorldPoint{Lat: mc.RefLat, Lon: mc.RefLon}

	mv.ApplyLogProfile = mc.LogProfile
	if mc.ProfileDepth > 0 {
		mv.ProfileDepth = mc.ProfileDepth
	}
	if mc.Roughness > 0 {
		mv.Roughness = mc.Roughness
	}
	mv.EddyDiffusivity = mc.EddyDiffusivity
	mv.EddyV0 = mc.EddyV0
	if mc.AlongScale != 0 {
		mv.AlongScale = mc.AlongScale
	}
	if mc.CrossScale != 0 {
		mv.CrossScale = mc.CrossScale
	}
	return mv, nil
}

func buildWindMover(mc config.WindMoverConfig) (*movers.WindMover, error) {
	mv := movers.NewConstantWindMover(mc.Name, geo.VelocityRec{U: mc.ConstantU, V: mc.ConstantV})
	if mc.File != "" {
		if err := mv.LoadWindCSV(mc.File); err != nil {
			return nil, fmt.Errorf("mover %q: %w", mc.Name, err)
		}
	}
	if mc.SpeedScale != 0 {
		mv.SpeedScale = mc.SpeedScale
	}
	if mc.AngleScale != 0 {
		mv.AngleScale = mc.AngleScale
	}
	return mv, nil
}

func buildGridWindMover(mc config.WindMoverConfig) (*movers.GridWindMover, error) {
	mv := movers.NewGridWindMover(mc.Name, nil)
	if err := mv.ReadTopology(mc.Topology); err != nil {
		return nil, fmt.Errorf("mover %q: %w", mc.Name, err)
	}
	if mc.SpeedScale != 0 {
		mv.SpeedScale = mc.SpeedScale
	}
	if mc.AngleScale != 0 {
		mv.AngleScale = mc.AngleScale
	}
	return mv, nil
}
