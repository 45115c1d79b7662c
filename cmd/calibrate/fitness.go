package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"sort"
	"time"

	"github.com/gocarina/gocsv"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/slick/config"
	"github.com/pthm-cable/slick/geo"
	"github.com/pthm-cable/slick/model"
	"github.com/pthm-cable/slick/spill"
	"github.com/pthm-cable/slick/telemetry"
)

// observation is one observed position of the drifting object.
type observation struct {
	TimeStr string  `csv:"time"`
	Lat     float64 `csv:"lat"`
	Lon     float64 `csv:"lon"`

	t time.Time
}

// loadObservations reads an observed track CSV with time (RFC 3339),
// lat, lon columns, sorted by time.
func loadObservations(path string) ([]observation, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("track file %s: %w", path, err)
		}
		return nil, err
	}
	defer f.Close()

	var obs []observation
	if err := gocsv.UnmarshalFile(f, &obs); err != nil {
		return nil, fmt.Errorf("parsing track %s: %w", path, err)
	}
	if len(obs) == 0 {
		return nil, fmt.Errorf("track %s has no observations", path)
	}
	for i := range obs {
		t, err := time.Parse(time.RFC3339, obs[i].TimeStr)
		if err != nil {
			return nil, fmt.Errorf("track %s row %d: %w", path, i, err)
		}
		obs[i].t = t
	}
	sort.Slice(obs, func(i, j int) bool { return obs[i].t.Before(obs[j].t) })
	return obs, nil
}

// FitnessEvaluator scores a parameter vector by hindcasting the run
// and measuring how far the forecast centroid track lands from the
// observations.
type FitnessEvaluator struct {
	params  *ParamVector
	obs     []observation
	seeds   []int64
	baseCfg *config.Config

	lastError float64 // mean track error of the last evaluation, meters
}

func NewFitnessEvaluator(params *ParamVector, obs []observation, seeds []int64, baseCfg *config.Config) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:  params,
		obs:     obs,
		seeds:   seeds,
		baseCfg: baseCfg,
	}
}

// LastError returns the mean track error of the most recent
// evaluation, in meters.
func (fe *FitnessEvaluator) LastError() float64 {
	return fe.lastError
}

// Evaluate runs the model once per seed with the raw parameter values
// applied and returns the mean track error in meters. Lower is better;
// a run that fails scores a large penalty.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	clamped := fe.params.Clamp(x)

	var total float64
	for _, seed := range fe.seeds {
		err, ok := fe.runHindcast(clamped, seed)
		if !ok {
			fe.lastError = math.Inf(1)
			return 1e9
		}
		total += err
	}
	fe.lastError = total / float64(len(fe.seeds))
	return fe.lastError
}

// trackRecorder collects the forecast centroid after every step.
type trackRecorder struct {
	times     []time.Time
	centroids []geo.WorldPoint
}

func (tr *trackRecorder) WriteStep(step int, modelTime time.Time, sets []*spill.Container) error {
	for _, c := range sets {
		s := telemetry.ComputeSetStats(step, modelTime, c)
		if s.Count == 0 || s.ElemType != "forecast" {
			continue
		}
		tr.times = append(tr.times, modelTime)
		tr.centroids = append(tr.centroids, geo.WorldPoint{Lat: s.Lat, Lon: s.Lon})
		return nil
	}
	return nil
}

func (tr *trackRecorder) Close() error { return nil }

func (fe *FitnessEvaluator) runHindcast(values []float64, seed int64) (float64, bool) {
	cfg, err := fe.copyConfig()
	if err != nil {
		return 0, false
	}
	fe.params.ApplyToConfig(cfg, values)
	cfg.Run.Seed = seed
	cfg.Run.Uncertain = false
	cfg.Output.Dir = ""

	m, err := model.BuildFromConfig(cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		return 0, false
	}
	defer m.Close()

	recorder := &trackRecorder{}
	m.AddOutputter(recorder)

	if err := m.FullRun(); err != nil {
		return 0, false
	}
	if len(recorder.centroids) == 0 {
		return 0, false
	}
	return fe.trackError(recorder), true
}

// trackError is the mean distance between each observation and the
// model centroid nearest it in time, in meters. Observations outside
// the simulated span compare against the nearest endpoint.
func (fe *FitnessEvaluator) trackError(tr *trackRecorder) float64 {
	var total float64
	for _, o := range fe.obs {
		c := tr.centroids[nearestIndex(tr.times, o.t)]
		dx, dy := geo.DeltaMeters(c, geo.WorldPoint{Lat: o.Lat, Lon: o.Lon})
		total += math.Hypot(dx, dy)
	}
	return total / float64(len(fe.obs))
}

// nearestIndex finds the recorded step time closest to t. times are
// ascending.
func nearestIndex(times []time.Time, t time.Time) int {
	i := sort.Search(len(times), func(i int) bool { return !times[i].Before(t) })
	if i == 0 {
		return 0
	}
	if i == len(times) {
		return len(times) - 1
	}
	if t.Sub(times[i-1]) <= times[i].Sub(t) {
		return i - 1
	}
	return i
}

// copyConfig deep-copies the base config through YAML so evaluations
// never share mutable state.
func (fe *FitnessEvaluator) copyConfig() (*config.Config, error) {
	data, err := yaml.Marshal(fe.baseCfg)
	if err != nil {
		return nil, err
	}
	cfg := &config.Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Derived = fe.baseCfg.Derived
	return cfg, nil
}
