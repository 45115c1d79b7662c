package model

import (
	"errors"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/pthm-cable/slick/field"
	"github.com/pthm-cable/slick/geo"
	"github.com/pthm-cable/slick/movers"
	"github.com/pthm-cable/slick/spill"
	"github.com/pthm-cable/slick/timeseries"
)

var (
	testStart  = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	testRegion = geo.WorldRect{LatMin: 40, LatMax: 50, LonMin: -130, LonMax: -120}
)

func spillAt(lat, lon float64, count int) spill.Definition {
	return spill.NewDefinition("spill",
		geo.WorldPoint3D{WorldPoint: geo.WorldPoint{Lat: lat, Lon: lon}},
		testStart, count)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestModel(t *testing.T, cfg Config) *Model {
	t.Helper()
	if cfg.Start.IsZero() {
		cfg.Start = testStart
	}
	if cfg.Step == 0 {
		cfg.Step = time.Hour
	}
	if cfg.Duration == 0 {
		cfg.Duration = 6 * time.Hour
	}
	m, err := New(cfg, NewOpenWater("test", testRegion), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestModelScaledDrift(t *testing.T) {
	// A uniform 1 m/s eastward pattern scaled by 2 drifts an element
	// 7.2 km east per hour.
	m := newTestModel(t, Config{Seed: 42, Duration: time.Hour})

	cats := movers.NewCatsMover("cats", field.NewConstant(geo.VelocityRec{U: 1}, testRegion))
	cats.ScaleType = movers.ScaleConstant
	cats.ScaleConstant = 2
	if err := m.AddMover(cats); err != nil {
		t.Fatal(err)
	}
	if err := m.AddSpill(spillAt(45, -125, 5)); err != nil {
		t.Fatal(err)
	}
	if err := m.FullRun(); err != nil {
		t.Fatal(err)
	}

	sets := m.Sets()
	if len(sets) != 1 {
		t.Fatalf("certain run has %d sets, want 1", len(sets))
	}
	origin := geo.WorldPoint{Lat: 45, Lon: -125}
	for i := 0; i < sets[0].Len(); i++ {
		dx, dy := geo.DeltaMeters(origin, sets[0].Element(i).Position.WorldPoint)
		if math.Abs(dx-7200) > 1 || math.Abs(dy) > 1e-6 {
			t.Errorf("element %d drifted (%.1f, %.1f) m, want (7200, 0)", i, dx, dy)
		}
	}
}

func TestModelDeterministicAcrossRuns(t *testing.T) {
	run := func() []geo.WorldPoint3D {
		m := newTestModel(t, Config{Seed: 99, Uncertain: true})
		cats := movers.NewCatsMover("cats", field.NewConstant(geo.VelocityRec{U: 0.5, V: 0.1}, testRegion))
		cats.EddyDiffusivity = 10000
		if err := m.AddMover(cats); err != nil {
			t.Fatal(err)
		}
		if err := m.AddMover(movers.NewRandomMover("diffusion", 5)); err != nil {
			t.Fatal(err)
		}
		if err := m.AddMover(movers.NewConstantWindMover("wind", geo.VelocityRec{U: 8, V: 2})); err != nil {
			t.Fatal(err)
		}
		if err := m.AddSpill(spillAt(45, -125, 200)); err != nil {
			t.Fatal(err)
		}
		if err := m.FullRun(); err != nil {
			t.Fatal(err)
		}
		var out []geo.WorldPoint3D
		for _, s := range m.Sets() {
			out = s.Positions(out)
		}
		return out
	}

	a, b := run(), run()
	if len(a) != len(b) || len(a) != 400 {
		t.Fatalf("run sizes %d and %d, want 400 each", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("element %d diverged: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestModelUncertainRunSpreads(t *testing.T) {
	m := newTestModel(t, Config{Seed: 7, Uncertain: true})
	if err := m.AddMover(movers.NewCatsMover("cats", field.NewConstant(geo.VelocityRec{U: 1}, testRegion))); err != nil {
		t.Fatal(err)
	}
	if err := m.AddSpill(spillAt(45, -125, 50)); err != nil {
		t.Fatal(err)
	}
	if err := m.FullRun(); err != nil {
		t.Fatal(err)
	}

	sets := m.Sets()
	if len(sets) != 2 {
		t.Fatalf("uncertainty run has %d sets, want 2", len(sets))
	}
	forecast := sets[0].Element(0).Position
	diverged := 0
	for i := 0; i < sets[1].Len(); i++ {
		if sets[1].Element(i).Position != forecast {
			diverged++
		}
	}
	if diverged == 0 {
		t.Error("no uncertainty element diverged from the forecast track")
	}
}

func TestModelOffMapFreezes(t *testing.T) {
	// An element released near the eastern edge runs off the map and
	// must freeze at its last in-water position.
	m := newTestModel(t, Config{Seed: 1, Duration: 48 * time.Hour})
	if err := m.AddMover(movers.NewCatsMover("cats", field.NewConstant(geo.VelocityRec{U: 5}, testRegion))); err != nil {
		t.Fatal(err)
	}
	if err := m.AddSpill(spillAt(45, -120.05, 3)); err != nil {
		t.Fatal(err)
	}
	if err := m.FullRun(); err != nil {
		t.Fatal(err)
	}

	s := m.Sets()[0]
	for i := 0; i < s.Len(); i++ {
		if s.Status(i) != spill.StatusOffMap {
			t.Fatalf("element %d status %v, want off_map", i, s.Status(i))
		}
		if !testRegion.Contains(s.Element(i).Position.WorldPoint) {
			t.Fatalf("frozen element %d outside the map: %+v", i, s.Element(i).Position)
		}
	}
}

func TestModelAbortsOnStepError(t *testing.T) {
	m := newTestModel(t, Config{Seed: 1})
	cats := movers.NewCatsMover("cats", field.NewConstant(geo.VelocityRec{U: 1}, testRegion))
	cats.ScaleType = movers.ScaleFile
	cats.SetTimeSeries(timeseries.Constant(1))
	// The reference point samples zero, so the first step cannot
	// compute a scale.
	cats.RefPoint = geo.WorldPoint{Lat: 0, Lon: 0}
	if err := m.AddMover(cats); err != nil {
		t.Fatal(err)
	}
	if err := m.AddSpill(spillAt(45, -125, 3)); err != nil {
		t.Fatal(err)
	}

	err := m.FullRun()
	if !errors.Is(err, movers.ErrZeroReferenceVelocity) {
		t.Fatalf("got %v, want ErrZeroReferenceVelocity", err)
	}
	// The aborted step moved nothing.
	s := m.Sets()[0]
	for i := 0; i < s.Len(); i++ {
		if got := s.Element(i).Position.WorldPoint; got != (geo.WorldPoint{Lat: 45, Lon: -125}) {
			t.Errorf("element %d moved during an aborted step: %+v", i, got)
		}
	}
}

// stuckMover fails step preparation and counts lifecycle calls.
type stuckMover struct {
	movers.Base
	stepDone int
}

func (f *stuckMover) Kind() movers.Kind { return movers.KindUnknown }

func (f *stuckMover) PrepareForModelStep(time.Time, time.Duration, bool, []int) error {
	return movers.ErrInvalidState
}

func (f *stuckMover) ModelStepIsDone() { f.stepDone++ }

func (f *stuckMover) GetMove(_ time.Time, _ time.Duration, _, _ int, elem movers.Element, _ movers.ElementType) geo.WorldPoint3D {
	return elem.Position
}

func TestModelStepDoneAfterFailedPrepare(t *testing.T) {
	// A mover can publish step state before its prepare fails; the
	// loop clears the failing mover along with the prepared ones.
	m := newTestModel(t, Config{Seed: 1})
	bad := &stuckMover{Base: movers.NewBase("stuck")}
	if err := m.AddMover(bad); err != nil {
		t.Fatal(err)
	}
	if err := m.AddSpill(spillAt(45, -125, 2)); err != nil {
		t.Fatal(err)
	}
	if err := m.Rewind(); err != nil {
		t.Fatal(err)
	}
	if err := m.Step(); !errors.Is(err, movers.ErrInvalidState) {
		t.Fatalf("got %v, want ErrInvalidState", err)
	}
	if bad.stepDone == 0 {
		t.Error("failing mover never saw ModelStepIsDone")
	}
}

func TestModelDelayedRelease(t *testing.T) {
	m := newTestModel(t, Config{Seed: 1, Duration: 4 * time.Hour})
	if err := m.AddMover(movers.NewCatsMover("cats", field.NewConstant(geo.VelocityRec{U: 1}, testRegion))); err != nil {
		t.Fatal(err)
	}
	def := spillAt(45, -125, 4)
	def.ReleaseTime = testStart.Add(2 * time.Hour)
	if err := m.AddSpill(def); err != nil {
		t.Fatal(err)
	}
	if err := m.Rewind(); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := m.Step(); err != nil {
			t.Fatal(err)
		}
	}
	if got := m.Sets()[0].Len(); got != 0 {
		t.Fatalf("spill released %d elements before its release time", got)
	}
	for i := 0; i < 2; i++ {
		if err := m.Step(); err != nil {
			t.Fatal(err)
		}
	}
	s := m.Sets()[0]
	if s.Len() != 4 {
		t.Fatalf("spill holds %d elements after release, want 4", s.Len())
	}
	// Two hours of 1 m/s drift since release.
	dx, _ := geo.DeltaMeters(geo.WorldPoint{Lat: 45, Lon: -125}, s.Element(0).Position.WorldPoint)
	if math.Abs(dx-7200) > 1 {
		t.Errorf("post-release drift = %.1f m, want 7200", dx)
	}
}

func TestModelMoverOrderAndRemoval(t *testing.T) {
	m := newTestModel(t, Config{Seed: 1})
	for _, name := range []string{"a", "b", "c"} {
		if err := m.AddMover(movers.NewRandomMover(name, 1)); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.AddMover(movers.NewRandomMover("b", 1)); err == nil {
		t.Error("duplicate mover name accepted")
	}
	if !m.RemoveMover("b") {
		t.Error("failed to remove a present mover")
	}
	if m.RemoveMover("b") {
		t.Error("removed an absent mover")
	}
	got := m.MoverNames()
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Errorf("mover order = %v, want [a c]", got)
	}
}

func TestModelStepBeforeRewind(t *testing.T) {
	m := newTestModel(t, Config{Seed: 1})
	if err := m.Step(); err == nil {
		t.Error("step before rewind accepted")
	}
}
