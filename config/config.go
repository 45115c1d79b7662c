// Package config provides configuration loading and access for drift
// runs.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all run configuration parameters.
type Config struct {
	Run    RunConfig     `yaml:"run"`
	Map    MapConfig     `yaml:"map"`
	Movers MoversConfig  `yaml:"movers"`
	Spills []SpillConfig `yaml:"spills"`
	Output OutputConfig  `yaml:"output"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// RunConfig holds the clock and random stream of a run.
type RunConfig struct {
	Start       string  `yaml:"start"` // RFC 3339; empty means now, truncated to the hour
	DurationHrs float64 `yaml:"duration_hours"`
	StepMins    float64 `yaml:"step_minutes"`
	Seed        int64   `yaml:"seed"`
	Uncertain   bool    `yaml:"uncertain"`

	// Uncertainty window applied to every mover, hours after start.
	UncertainDelayHrs    float64 `yaml:"uncertain_delay_hours"`
	UncertainDurationHrs float64 `yaml:"uncertain_duration_hours"` // 0 = no limit
}

// MapConfig bounds the open-water map.
type MapConfig struct {
	Name   string  `yaml:"name"`
	LatMin float64 `yaml:"lat_min"`
	LatMax float64 `yaml:"lat_max"`
	LonMin float64 `yaml:"lon_min"`
	LonMax float64 `yaml:"lon_max"`
}

// MoversConfig lists the movers of a run by kind. Movers act in the
// order cats, wind, random, each list in declaration order.
type MoversConfig struct {
	Cats   []CatsMoverConfig   `yaml:"cats"`
	Wind   []WindMoverConfig   `yaml:"wind"`
	Random []RandomMoverConfig `yaml:"random"`
}

// CatsMoverConfig configures one current-pattern mover.
type CatsMoverConfig struct {
	Name     string `yaml:"name"`
	Topology string `yaml:"topology"` // grid CSV path

	// Uniform current used when no topology file is given, m/s.
	ConstantU float64 `yaml:"constant_u"`
	ConstantV float64 `yaml:"constant_v"`

	Scale      string  `yaml:"scale"` // none, constant, file
	ScaleValue float64 `yaml:"scale_value"`
	ScaleFile  string  `yaml:"scale_file"` // tide series CSV path
	RefScale   float64 `yaml:"ref_scale"`
	RefLat     float64 `yaml:"ref_lat"`
	RefLon     float64 `yaml:"ref_lon"`

	LogProfile   bool    `yaml:"log_profile"`
	ProfileDepth float64 `yaml:"profile_depth"`
	Roughness    float64 `yaml:"roughness"`

	EddyDiffusivity float64 `yaml:"eddy_diffusivity"`
	EddyV0          float64 `yaml:"eddy_v0"`

	AlongScale float64 `yaml:"along_scale"`
	CrossScale float64 `yaml:"cross_scale"`
}

// WindMoverConfig configures one wind mover.
type WindMoverConfig struct {
	Name     string `yaml:"name"`
	File     string `yaml:"file"`     // wind series CSV; empty uses the constant wind
	Topology string `yaml:"topology"` // wind grid CSV; set selects the grid variant

	ConstantU float64 `yaml:"constant_u"`
	ConstantV float64 `yaml:"constant_v"`

	SpeedScale float64 `yaml:"speed_scale"`
	AngleScale float64 `yaml:"angle_scale"`
}

// RandomMoverConfig configures one diffusion mover.
type RandomMoverConfig struct {
	Name        string  `yaml:"name"`
	Diffusivity float64 `yaml:"diffusivity"` // m²/s
}

// SpillConfig is one point release.
type SpillConfig struct {
	Name       string  `yaml:"name"`
	Lat        float64 `yaml:"lat"`
	Lon        float64 `yaml:"lon"`
	Depth      float64 `yaml:"depth"`
	ReleaseHrs float64 `yaml:"release_hours"` // offset from run start
	Count      int     `yaml:"count"`

	WindageMin      float64 `yaml:"windage_min"`
	WindageMax      float64 `yaml:"windage_max"`
	WindagePersMins float64 `yaml:"windage_persist_minutes"`
}

// OutputConfig controls run output.
type OutputConfig struct {
	Dir             string `yaml:"dir"` // empty disables output
	TrajectoryEvery int    `yaml:"trajectory_every"`
}

// DerivedConfig holds values computed from the loaded fields.
type DerivedConfig struct {
	Start             time.Time
	Duration          time.Duration
	Step              time.Duration
	UncertainDelay    time.Duration
	UncertainDuration time.Duration
}

// Global config instance
var global *Config

// Init loads configuration into the global instance.
// If path is empty, embedded defaults are used.
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Load user config if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.computeDerived(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() error {
	if c.Run.Start == "" {
		c.Derived.Start = time.Now().UTC().Truncate(time.Hour)
	} else {
		start, err := time.Parse(time.RFC3339, c.Run.Start)
		if err != nil {
			return fmt.Errorf("parsing run.start: %w", err)
		}
		c.Derived.Start = start
	}
	if c.Run.StepMins <= 0 {
		return fmt.Errorf("run.step_minutes must be positive, got %v", c.Run.StepMins)
	}
	if c.Run.DurationHrs < 0 {
		return fmt.Errorf("run.duration_hours must not be negative, got %v", c.Run.DurationHrs)
	}
	c.Derived.Duration = time.Duration(c.Run.DurationHrs * float64(time.Hour))
	c.Derived.Step = time.Duration(c.Run.StepMins * float64(time.Minute))
	c.Derived.UncertainDelay = time.Duration(c.Run.UncertainDelayHrs * float64(time.Hour))
	c.Derived.UncertainDuration = time.Duration(c.Run.UncertainDurationHrs * float64(time.Hour))

	if c.Map.LatMax <= c.Map.LatMin || c.Map.LonMax <= c.Map.LonMin {
		return fmt.Errorf("map bounds are empty: lat [%v, %v], lon [%v, %v]",
			c.Map.LatMin, c.Map.LatMax, c.Map.LonMin, c.Map.LonMax)
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
