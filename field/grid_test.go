package field

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pthm-cable/slick/geo"
)

func testBounds() geo.WorldRect {
	return geo.WorldRect{LatMin: 30, LatMax: 31, LonMin: -120, LonMax: -119}
}

// uniformGrid builds a 3x3 grid with the same velocity at every node.
func uniformGrid(t *testing.T, vel geo.VelocityRec) *RectGrid {
	t.Helper()
	nodes := make([]geo.VelocityRec, 9)
	for i := range nodes {
		nodes[i] = vel
	}
	g, err := NewRectGrid(3, 3, testBounds(), nodes)
	if err != nil {
		t.Fatalf("NewRectGrid: %v", err)
	}
	return g
}

func TestRectGridUniformSample(t *testing.T) {
	g := uniformGrid(t, geo.VelocityRec{U: 1, V: 0})

	for _, p := range []geo.WorldPoint{
		{Lat: 30, Lon: -120},
		{Lat: 30.5, Lon: -119.5},
		{Lat: 31, Lon: -119},
		{Lat: 30.123, Lon: -119.456},
	} {
		v := g.Sample(p)
		if math.Abs(v.U-1) > 1e-12 || math.Abs(v.V) > 1e-12 {
			t.Errorf("Sample(%v) = %+v, want {1 0}", p, v)
		}
	}
}

func TestRectGridOutOfBounds(t *testing.T) {
	g := uniformGrid(t, geo.VelocityRec{U: 1, V: 1})

	for _, p := range []geo.WorldPoint{
		{Lat: 29.9, Lon: -119.5},
		{Lat: 30.5, Lon: -118.9},
		{Lat: 90, Lon: 0},
	} {
		if v := g.Sample(p); !v.IsZero() {
			t.Errorf("Sample(%v) = %+v, want zero", p, v)
		}
		if v := g.SampleSmooth(p); !v.IsZero() {
			t.Errorf("SampleSmooth(%v) = %+v, want zero", p, v)
		}
	}
}

func TestRectGridInterpolation(t *testing.T) {
	// 2x2 grid: U ramps linearly west to east from 0 to 2.
	nodes := []geo.VelocityRec{
		{U: 0}, {U: 2},
		{U: 0}, {U: 2},
	}
	g, err := NewRectGrid(2, 2, testBounds(), nodes)
	if err != nil {
		t.Fatalf("NewRectGrid: %v", err)
	}

	mid := g.Sample(geo.WorldPoint{Lat: 30.5, Lon: -119.5})
	if math.Abs(mid.U-1) > 1e-12 {
		t.Errorf("midpoint U = %v, want 1", mid.U)
	}
	quarter := g.Sample(geo.WorldPoint{Lat: 30.5, Lon: -119.75})
	if math.Abs(quarter.U-0.5) > 1e-12 {
		t.Errorf("quarter U = %v, want 0.5", quarter.U)
	}
}

func TestRectGridSampleSmooth(t *testing.T) {
	// A single hot node in the center; smoothing at the center must
	// average it against its 8 zero neighbors.
	nodes := make([]geo.VelocityRec, 9)
	nodes[4] = geo.VelocityRec{U: 9}
	g, err := NewRectGrid(3, 3, testBounds(), nodes)
	if err != nil {
		t.Fatalf("NewRectGrid: %v", err)
	}

	v := g.SampleSmooth(geo.WorldPoint{Lat: 30.5, Lon: -119.5})
	if math.Abs(v.U-1) > 1e-12 {
		t.Errorf("smoothed center U = %v, want 1", v.U)
	}
}

func TestNewRectGridRejectsBadInput(t *testing.T) {
	if _, err := NewRectGrid(1, 3, testBounds(), make([]geo.VelocityRec, 3)); !errors.Is(err, ErrMalformedTopology) {
		t.Errorf("1-row grid: err = %v, want ErrMalformedTopology", err)
	}
	if _, err := NewRectGrid(2, 2, testBounds(), make([]geo.VelocityRec, 3)); !errors.Is(err, ErrMalformedTopology) {
		t.Errorf("short nodes: err = %v, want ErrMalformedTopology", err)
	}
}

func writeTopology(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "topo.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing topology: %v", err)
	}
	return path
}

func TestLoadTopology(t *testing.T) {
	path := writeTopology(t, `row,col,lat,lon,u,v
0,0,30,-120,1,0
0,1,30,-119,1,0
1,0,31,-120,1,0
1,1,31,-119,1,0
`)
	g, err := LoadTopology(path)
	if err != nil {
		t.Fatalf("LoadTopology: %v", err)
	}
	rows, cols := g.Size()
	if rows != 2 || cols != 2 {
		t.Errorf("size = %dx%d, want 2x2", rows, cols)
	}
	if b := g.Bounds(); b != testBounds() {
		t.Errorf("bounds = %+v, want %+v", b, testBounds())
	}
	v := g.Sample(geo.WorldPoint{Lat: 30.5, Lon: -119.5})
	if math.Abs(v.U-1) > 1e-12 {
		t.Errorf("sample U = %v, want 1", v.U)
	}
}

func TestLoadTopologyMissingFile(t *testing.T) {
	_, err := LoadTopology(filepath.Join(t.TempDir(), "nope.csv"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want wrapped fs.ErrNotExist", err)
	}
}

func TestLoadTopologyIncomplete(t *testing.T) {
	// Three records for a 2x2 grid.
	path := writeTopology(t, `row,col,lat,lon,u,v
0,0,30,-120,1,0
0,1,30,-119,1,0
1,0,31,-120,1,0
`)
	if _, err := LoadTopology(path); !errors.Is(err, ErrMalformedTopology) {
		t.Errorf("err = %v, want ErrMalformedTopology", err)
	}
}

func TestLoadTopologyDuplicateNode(t *testing.T) {
	path := writeTopology(t, `row,col,lat,lon,u,v
0,0,30,-120,1,0
0,0,30,-120,1,0
1,0,31,-120,1,0
1,1,31,-119,1,0
`)
	if _, err := LoadTopology(path); !errors.Is(err, ErrMalformedTopology) {
		t.Errorf("err = %v, want ErrMalformedTopology", err)
	}
}

func TestConstantField(t *testing.T) {
	c := NewConstant(geo.VelocityRec{U: 0.5, V: -0.5}, testBounds())
	if v := c.Sample(geo.WorldPoint{Lat: 30.5, Lon: -119.5}); v.U != 0.5 || v.V != -0.5 {
		t.Errorf("inside sample = %+v", v)
	}
	if v := c.Sample(geo.WorldPoint{Lat: 0, Lon: 0}); !v.IsZero() {
		t.Errorf("outside sample = %+v, want zero", v)
	}
}
