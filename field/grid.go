package field

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/slick/geo"
)

// ErrMalformedTopology reports a topology file whose records do not
// describe a complete rectangular grid.
var ErrMalformedTopology = errors.New("field: malformed topology")

// RectGrid is a regular latitude/longitude grid of velocity nodes.
// Samples are bilinearly interpolated between the four surrounding
// nodes. Row 0 is the southern edge, column 0 the western edge.
type RectGrid struct {
	rows, cols int
	bounds     geo.WorldRect
	nodes      []geo.VelocityRec // row-major, rows*cols
}

// NewRectGrid builds a grid from row-major node velocities. The node at
// (row, col) sits at LatMin + row*dLat, LonMin + col*dLon.
func NewRectGrid(rows, cols int, bounds geo.WorldRect, nodes []geo.VelocityRec) (*RectGrid, error) {
	if rows < 2 || cols < 2 {
		return nil, fmt.Errorf("%w: grid needs at least 2x2 nodes, got %dx%d", ErrMalformedTopology, rows, cols)
	}
	if len(nodes) != rows*cols {
		return nil, fmt.Errorf("%w: %d nodes for a %dx%d grid", ErrMalformedTopology, len(nodes), rows, cols)
	}
	if bounds.LatMax <= bounds.LatMin || bounds.LonMax <= bounds.LonMin {
		return nil, fmt.Errorf("%w: degenerate bounds %+v", ErrMalformedTopology, bounds)
	}
	g := &RectGrid{rows: rows, cols: cols, bounds: bounds}
	g.nodes = make([]geo.VelocityRec, len(nodes))
	copy(g.nodes, nodes)
	return g, nil
}

// Bounds returns the grid's region.
func (g *RectGrid) Bounds() geo.WorldRect {
	return g.bounds
}

// Size returns the node dimensions (rows, cols).
func (g *RectGrid) Size() (rows, cols int) {
	return g.rows, g.cols
}

// Sample bilinearly interpolates the velocity at p. Positions outside
// the grid sample as zero.
func (g *RectGrid) Sample(p geo.WorldPoint) geo.VelocityRec {
	if !g.bounds.Contains(p) {
		return geo.VelocityRec{}
	}

	fr := (p.Lat - g.bounds.LatMin) / (g.bounds.LatMax - g.bounds.LatMin) * float64(g.rows-1)
	fc := (p.Lon - g.bounds.LonMin) / (g.bounds.LonMax - g.bounds.LonMin) * float64(g.cols-1)

	r0 := int(fr)
	c0 := int(fc)
	if r0 > g.rows-2 {
		r0 = g.rows - 2
	}
	if c0 > g.cols-2 {
		c0 = g.cols - 2
	}
	tr := fr - float64(r0)
	tc := fc - float64(c0)

	v00 := g.node(r0, c0)
	v01 := g.node(r0, c0+1)
	v10 := g.node(r0+1, c0)
	v11 := g.node(r0+1, c0+1)

	south := v00.Scale(1 - tc).Add(v01.Scale(tc))
	north := v10.Scale(1 - tc).Add(v11.Scale(tc))
	return south.Scale(1 - tr).Add(north.Scale(tr))
}

// SampleSmooth averages the 3x3 node neighborhood around the node
// nearest to p, clamped at the grid edges. Positions outside the grid
// sample as zero.
func (g *RectGrid) SampleSmooth(p geo.WorldPoint) geo.VelocityRec {
	if !g.bounds.Contains(p) {
		return geo.VelocityRec{}
	}

	r := int(math.Round((p.Lat - g.bounds.LatMin) / (g.bounds.LatMax - g.bounds.LatMin) * float64(g.rows-1)))
	c := int(math.Round((p.Lon - g.bounds.LonMin) / (g.bounds.LonMax - g.bounds.LonMin) * float64(g.cols-1)))

	var sum geo.VelocityRec
	n := 0
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			rr, cc := r+dr, c+dc
			if rr < 0 || rr >= g.rows || cc < 0 || cc >= g.cols {
				continue
			}
			sum = sum.Add(g.node(rr, cc))
			n++
		}
	}
	return sum.Scale(1 / float64(n))
}

func (g *RectGrid) node(r, c int) geo.VelocityRec {
	return g.nodes[r*g.cols+c]
}

// topoRecord is one node of the topology CSV: grid indices, the node's
// geographic position, and its velocity.
type topoRecord struct {
	Row int     `csv:"row"`
	Col int     `csv:"col"`
	Lat float64 `csv:"lat"`
	Lon float64 `csv:"lon"`
	U   float64 `csv:"u"`
	V   float64 `csv:"v"`
}

// LoadTopology reads a grid topology CSV. The file must contain one
// record per node of a complete rows x cols grid; bounds are taken from
// the node positions. The returned grid is fully built or nil: a broken
// file never yields a partial grid.
func LoadTopology(path string) (*RectGrid, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("field: topology %s: %w", path, err)
		}
		return nil, fmt.Errorf("field: opening topology %s: %w", path, err)
	}
	defer f.Close()

	var records []topoRecord
	if err := gocsv.UnmarshalFile(f, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedTopology, path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s: no records", ErrMalformedTopology, path)
	}

	rows, cols := 0, 0
	bounds := geo.WorldRect{
		LatMin: math.Inf(1), LatMax: math.Inf(-1),
		LonMin: math.Inf(1), LonMax: math.Inf(-1),
	}
	for _, rec := range records {
		if rec.Row < 0 || rec.Col < 0 {
			return nil, fmt.Errorf("%w: %s: negative grid index (%d,%d)", ErrMalformedTopology, path, rec.Row, rec.Col)
		}
		if rec.Row+1 > rows {
			rows = rec.Row + 1
		}
		if rec.Col+1 > cols {
			cols = rec.Col + 1
		}
		bounds.LatMin = math.Min(bounds.LatMin, rec.Lat)
		bounds.LatMax = math.Max(bounds.LatMax, rec.Lat)
		bounds.LonMin = math.Min(bounds.LonMin, rec.Lon)
		bounds.LonMax = math.Max(bounds.LonMax, rec.Lon)
	}
	if len(records) != rows*cols {
		return nil, fmt.Errorf("%w: %s: %d records for a %dx%d grid", ErrMalformedTopology, path, len(records), rows, cols)
	}

	nodes := make([]geo.VelocityRec, rows*cols)
	seen := make([]bool, rows*cols)
	for _, rec := range records {
		idx := rec.Row*cols + rec.Col
		if seen[idx] {
			return nil, fmt.Errorf("%w: %s: duplicate node (%d,%d)", ErrMalformedTopology, path, rec.Row, rec.Col)
		}
		seen[idx] = true
		nodes[idx] = geo.VelocityRec{U: rec.U, V: rec.V}
	}

	return NewRectGrid(rows, cols, bounds, nodes)
}
