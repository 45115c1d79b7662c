package movers

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pthm-cable/slick/geo"
	"github.com/pthm-cable/slick/timeseries"
)

func preparedWind(t *testing.T, w *WindMover, uncertain bool, setSizes []int) time.Time {
	t.Helper()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if err := w.PrepareForModelRun(RunContext{Start: start, Seed: 7, Uncertain: uncertain}); err != nil {
		t.Fatalf("PrepareForModelRun: %v", err)
	}
	if err := w.PrepareForModelStep(start, time.Hour, uncertain, setSizes); err != nil {
		t.Fatalf("PrepareForModelStep: %v", err)
	}
	return start
}

func TestWindMoverWindageScalesDrift(t *testing.T) {
	w := NewConstantWindMover("wind", geo.VelocityRec{U: 10})
	start := preparedWind(t, w, false, nil)

	elem := Element{Position: testPoint(), Windage: 0.03}
	moved := w.GetMove(start, time.Hour, 0, 0, elem, ForecastElement)

	dx, dy := geo.DeltaMeters(elem.Position.WorldPoint, moved.WorldPoint)
	// 10 m/s * 3% * 3600 s
	if math.Abs(dx-1080) > 1 {
		t.Errorf("downwind drift = %.1f m, want 1080", dx)
	}
	if math.Abs(dy) > 1e-6 {
		t.Errorf("crosswind drift = %.6f m, want 0", dy)
	}
}

func TestWindMoverSubmergedElementIgnored(t *testing.T) {
	w := NewConstantWindMover("wind", geo.VelocityRec{U: 10})
	start := preparedWind(t, w, false, nil)

	deep := Element{Position: geo.WorldPoint3D{WorldPoint: testPoint().WorldPoint, Z: 2}, Windage: 0.03}
	if moved := w.GetMove(start, time.Hour, 0, 0, deep, ForecastElement); moved != deep.Position {
		t.Errorf("submerged element moved: %+v", moved)
	}

	noWindage := Element{Position: testPoint()}
	if moved := w.GetMove(start, time.Hour, 0, 0, noWindage, ForecastElement); moved != noWindage.Position {
		t.Errorf("zero-windage element moved: %+v", moved)
	}
}

func TestWindMoverTimeVaryingWind(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	u, err := timeseries.New([]timeseries.Record{
		{Time: start, Value: 0},
		{Time: start.Add(2 * time.Hour), Value: 20},
	})
	if err != nil {
		t.Fatal(err)
	}
	w := NewWindMover("wind", u, timeseries.Constant(0))
	if err := w.PrepareForModelRun(RunContext{Start: start, Seed: 7}); err != nil {
		t.Fatal(err)
	}
	if err := w.PrepareForModelStep(start.Add(time.Hour), time.Hour, false, nil); err != nil {
		t.Fatal(err)
	}

	elem := Element{Position: testPoint(), Windage: 0.1}
	moved := w.GetMove(start.Add(time.Hour), time.Hour, 0, 0, elem, ForecastElement)
	dx, _ := geo.DeltaMeters(elem.Position.WorldPoint, moved.WorldPoint)
	// Interpolated wind at the midpoint is 10 m/s.
	if math.Abs(dx-3600) > 1 {
		t.Errorf("drift = %.1f m, want 3600", dx)
	}
}

func TestWindMoverUncertaintyRotatesAndScales(t *testing.T) {
	w := NewConstantWindMover("wind", geo.VelocityRec{U: 10})
	preparedWind(t, w, true, []int{32})

	base := geo.VelocityRec{U: 10}
	saw := false
	for i := 0; i < 32; i++ {
		vel := w.perturb(0, i, UncertaintyElement, base)
		if vel != base {
			saw = true
		}
		// Speed spread bounded by the configured scale.
		if vel.Speed() > base.Speed()*(1+w.SpeedScale)+1e-9 {
			t.Errorf("element %d wind speed %.2f exceeds spread bound", i, vel.Speed())
		}
	}
	if !saw {
		t.Error("no uncertainty element saw a perturbed wind")
	}
}

func TestWindMoverUncertaintyAfterDelayedRelease(t *testing.T) {
	// A spill that releases after the first uncertain step grows its
	// set from 0 to N between refreshes; the new elements must get
	// factors immediately, not at the next 24h reroll.
	w := NewConstantWindMover("wind", geo.VelocityRec{U: 10})
	start := preparedWind(t, w, true, []int{0})
	w.ModelStepIsDone()

	later := start.Add(time.Hour)
	if err := w.PrepareForModelStep(later, time.Hour, true, []int{8}); err != nil {
		t.Fatalf("PrepareForModelStep: %v", err)
	}

	base := geo.VelocityRec{U: 10}
	saw := false
	for i := 0; i < 8; i++ {
		if w.perturb(0, i, UncertaintyElement, base) != base {
			saw = true
		}
	}
	if !saw {
		t.Error("no uncertainty element got a perturbed wind after delayed release")
	}
}

func TestWindMoverUncertaintyDeterministic(t *testing.T) {
	a := NewConstantWindMover("wind", geo.VelocityRec{U: 10, V: -3})
	b := NewConstantWindMover("wind", geo.VelocityRec{U: 10, V: -3})
	start := preparedWind(t, a, true, []int{8})
	preparedWind(t, b, true, []int{8})

	elem := Element{Position: testPoint(), Windage: 0.04}
	for i := 0; i < 8; i++ {
		pa := a.GetMove(start, time.Hour, 0, i, elem, UncertaintyElement)
		pb := b.GetMove(start, time.Hour, 0, i, elem, UncertaintyElement)
		if pa != pb {
			t.Fatalf("element %d diverged across identical runs", i)
		}
	}
}

func TestWindMoverNoWindRecord(t *testing.T) {
	w := NewWindMover("wind", nil, nil)
	err := w.PrepareForModelRun(RunContext{Start: time.Now(), Seed: 1})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("got %v, want ErrInvalidState", err)
	}
}

func TestWindMoverLoadWindCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wind.csv")
	data := "time,u,v\n" +
		"2026-03-01T00:00:00Z,5,0\n" +
		"2026-03-01T06:00:00Z,5,10\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	w := NewWindMover("wind", nil, nil)
	if err := w.LoadWindCSV(path); err != nil {
		t.Fatalf("LoadWindCSV: %v", err)
	}
	at := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	if got := w.U.Sample(at); got != 5 {
		t.Errorf("u(3h) = %v, want 5", got)
	}
	if got := w.V.Sample(at); got != 5 {
		t.Errorf("v(3h) = %v, want 5", got)
	}

	if err := w.LoadWindCSV(filepath.Join(t.TempDir(), "nope.csv")); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("got %v, want ErrFileNotFound", err)
	}
	if w.U == nil {
		t.Error("failed reload clobbered the loaded record")
	}
}
