package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/slick/config"
	"github.com/pthm-cable/slick/spill"
)

// trajectoryRow is one element at one step in trajectory.csv.
type trajectoryRow struct {
	Step     int     `csv:"step"`
	TimeUnix int64   `csv:"time"`
	Spill    string  `csv:"spill"`
	ElemType string  `csv:"elem_type"`
	Index    int     `csv:"index"`
	Lat      float64 `csv:"lat"`
	Lon      float64 `csv:"lon"`
	Depth    float64 `csv:"depth"`
	Status   string  `csv:"status"`
	Windage  float64 `csv:"windage"`
}

// OutputManager writes run output as CSV: trajectory.csv with every
// element position per step, stats.csv with one summary row per
// element set per step.
type OutputManager struct {
	dir            string
	trajectoryFile *os.File
	statsFile      *os.File

	trajectoryHeaderWritten bool
	statsHeaderWritten      bool

	// TrajectoryEvery thins trajectory output to every Nth step;
	// stats are always written. 0 writes every step.
	TrajectoryEvery int
}

// NewOutputManager creates the output directory and its files.
// Returns nil if dir is empty (output disabled); a nil manager accepts
// writes and discards them.
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}

	f, err := os.Create(filepath.Join(dir, "trajectory.csv"))
	if err != nil {
		return nil, fmt.Errorf("creating trajectory.csv: %w", err)
	}
	om.trajectoryFile = f

	f, err = os.Create(filepath.Join(dir, "stats.csv"))
	if err != nil {
		om.trajectoryFile.Close()
		return nil, fmt.Errorf("creating stats.csv: %w", err)
	}
	om.statsFile = f

	return om, nil
}

// WriteConfig saves the run configuration as YAML next to the output.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteStep records every element set after one completed step.
func (om *OutputManager) WriteStep(step int, modelTime time.Time, sets []*spill.Container) error {
	if om == nil {
		return nil
	}
	for _, c := range sets {
		if err := om.writeStats(ComputeSetStats(step, modelTime, c)); err != nil {
			return err
		}
	}
	if om.TrajectoryEvery > 1 && step%om.TrajectoryEvery != 0 {
		return nil
	}
	for _, c := range sets {
		if err := om.writeTrajectory(step, modelTime, c); err != nil {
			return err
		}
	}
	return nil
}

func (om *OutputManager) writeStats(s SetStats) error {
	records := []SetStats{s}
	if !om.statsHeaderWritten {
		if err := gocsv.Marshal(records, om.statsFile); err != nil {
			return fmt.Errorf("writing stats: %w", err)
		}
		om.statsHeaderWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, om.statsFile); err != nil {
		return fmt.Errorf("writing stats: %w", err)
	}
	return nil
}

func (om *OutputManager) writeTrajectory(step int, modelTime time.Time, c *spill.Container) error {
	if c.Len() == 0 {
		return nil
	}
	rows := make([]trajectoryRow, c.Len())
	for i := range rows {
		elem := c.Element(i)
		rows[i] = trajectoryRow{
			Step:     step,
			TimeUnix: modelTime.Unix(),
			Spill:    c.Name(),
			ElemType: elemTypeLabel(c),
			Index:    i,
			Lat:      elem.Position.Lat,
			Lon:      elem.Position.Lon,
			Depth:    elem.Position.Z,
			Status:   c.Status(i).String(),
			Windage:  elem.Windage,
		}
	}
	if !om.trajectoryHeaderWritten {
		if err := gocsv.Marshal(rows, om.trajectoryFile); err != nil {
			return fmt.Errorf("writing trajectory: %w", err)
		}
		om.trajectoryHeaderWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(rows, om.trajectoryFile); err != nil {
		return fmt.Errorf("writing trajectory: %w", err)
	}
	return nil
}

// Close flushes and closes the output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}
	var firstErr error
	if err := om.trajectoryFile.Close(); err != nil {
		firstErr = err
	}
	if err := om.statsFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
