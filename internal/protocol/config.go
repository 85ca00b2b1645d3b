// Package protocol runs staged simulation protocols: an ordered list of
// minimization and dynamics stages chained through persisted state snapshots,
// each leaving a thermodynamic trace and a state file under a run directory.
package protocol

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/otmiM/polymatic/internal/forcefield"
)

const (
	DefaultCutoff   = 12.0
	DefaultTimestep = 1.0
	DefaultEvery    = 100
	DefaultTdamp    = 100.0
	DefaultPdamp    = 1000.0
	DefaultEtol     = 1e-4
	DefaultFtol     = 1e-6
	DefaultMaxIter  = 10000
	DefaultMaxEval  = 100000
	DefaultSDSteps  = 200
)

type Protocol struct {
	Source string        `yaml:"source"`
	Output string        `yaml:"output"`
	Force  ForceConfig   `yaml:"force"`
	Stages []StageConfig `yaml:"stages"`
}

type ForceConfig struct {
	Cutoff     float64 `yaml:"cutoff"`
	Skin       float64 `yaml:"skin"`
	LongRange  bool    `yaml:"long_range"`
	Accuracy   float64 `yaml:"accuracy"`
	Permissive bool    `yaml:"permissive"`
	KmaxLimit  int     `yaml:"kmax_limit"`
	Workers    int     `yaml:"workers"`
}

func (f ForceConfig) evaluator() forcefield.Config {
	return forcefield.Config{
		Cutoff:     f.Cutoff,
		Skin:       f.Skin,
		LongRange:  f.LongRange,
		Accuracy:   f.Accuracy,
		Permissive: f.Permissive,
		KmaxLimit:  f.KmaxLimit,
		Workers:    f.Workers,
	}
}

type StageConfig struct {
	Name     string  `yaml:"name"`
	Kind     string  `yaml:"kind"` // minimize | dynamics
	Steps    int     `yaml:"steps"`
	Timestep float64 `yaml:"timestep"` // fs
	Every    int     `yaml:"every"`    // thermo output interval in steps

	// Shift toggles the dispersion energy shift at the cutoff for this stage.
	// Unset, it follows the stage kind: minimize stages run on the shifted
	// surface, dynamics stages on the unshifted one.
	Shift *bool `yaml:"shift,omitempty"`

	Velocity *VelocityConfig `yaml:"velocity,omitempty"`
	Fixes    []FixConfig     `yaml:"fixes,omitempty"`
	Minimize *MinimizeConfig `yaml:"minimize,omitempty"`
}

func (s StageConfig) shifted() bool {
	if s.Shift != nil {
		return *s.Shift
	}
	return s.Kind == "minimize"
}

// VelocityConfig regenerates velocities at the start of a stage from a seeded
// Maxwell-Boltzmann draw.
type VelocityConfig struct {
	Temp float64 `yaml:"temp"`
	Seed int64   `yaml:"seed"`
}

type FixConfig struct {
	Type   string  `yaml:"type"` // nvt | npt
	Tstart float64 `yaml:"tstart"`
	Tstop  float64 `yaml:"tstop"`
	Tdamp  float64 `yaml:"tdamp"`
	Pstart float64 `yaml:"pstart"`
	Pstop  float64 `yaml:"pstop"`
	Pdamp  float64 `yaml:"pdamp"`
}

type MinimizeConfig struct {
	Etol    float64 `yaml:"etol"`
	Ftol    float64 `yaml:"ftol"`
	MaxIter int     `yaml:"max_iter"`
	MaxEval int     `yaml:"max_eval"`
	SDSteps int     `yaml:"sd_steps"`
}

// Default is the standard equilibration protocol: minimization, then a hot
// NVT stage to relax packing, then NPT at ambient conditions.
func Default() *Protocol {
	return &Protocol{
		Source: "state.json",
		Output: "runs",
		Force: ForceConfig{
			Cutoff:    DefaultCutoff,
			LongRange: true,
		},
		Stages: []StageConfig{
			{
				Name: "min",
				Kind: "minimize",
				Minimize: &MinimizeConfig{
					Etol:    DefaultEtol,
					Ftol:    DefaultFtol,
					MaxIter: DefaultMaxIter,
					MaxEval: DefaultMaxEval,
					SDSteps: DefaultSDSteps,
				},
			},
			{
				Name:     "nvt",
				Kind:     "dynamics",
				Steps:    10000,
				Timestep: DefaultTimestep,
				Every:    DefaultEvery,
				Velocity: &VelocityConfig{Temp: 600, Seed: 4928459},
				Fixes: []FixConfig{
					{Type: "nvt", Tstart: 600, Tstop: 600, Tdamp: DefaultTdamp},
				},
			},
			{
				Name:     "npt",
				Kind:     "dynamics",
				Steps:    20000,
				Timestep: DefaultTimestep,
				Every:    DefaultEvery,
				Fixes: []FixConfig{
					{
						Type:   "npt",
						Tstart: 300, Tstop: 300, Tdamp: DefaultTdamp,
						Pstart: 1, Pstop: 1, Pdamp: DefaultPdamp,
					},
				},
			},
		},
	}
}

func Load(path string) (*Protocol, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	cfg.Stages = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Protocol) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate rejects configurations the orchestrator could not run: missing or
// duplicate stage names, unknown kinds and fix types, and dynamics stages
// without a positive step count.
func (p *Protocol) Validate() error {
	if p.Source == "" {
		return fmt.Errorf("source state path is empty")
	}
	if p.Force.Cutoff <= 0 {
		return fmt.Errorf("force cutoff must be positive, got %g", p.Force.Cutoff)
	}
	if len(p.Stages) == 0 {
		return fmt.Errorf("protocol has no stages")
	}

	seen := make(map[string]bool)
	for i, st := range p.Stages {
		if st.Name == "" {
			return fmt.Errorf("stage %d has no name", i)
		}
		if seen[st.Name] {
			return fmt.Errorf("duplicate stage name %q", st.Name)
		}
		seen[st.Name] = true

		switch st.Kind {
		case "minimize":
		case "dynamics":
			if st.Steps <= 0 {
				return fmt.Errorf("stage %q: steps must be positive, got %d", st.Name, st.Steps)
			}
			if st.Timestep <= 0 {
				return fmt.Errorf("stage %q: timestep must be positive, got %g", st.Name, st.Timestep)
			}
			for _, f := range st.Fixes {
				if _, ok := fixBuilders[f.Type]; !ok {
					return fmt.Errorf("stage %q: unknown fix type %q", st.Name, f.Type)
				}
			}
			if st.Velocity != nil && st.Velocity.Temp <= 0 {
				return fmt.Errorf("stage %q: velocity temp must be positive, got %g", st.Name, st.Velocity.Temp)
			}
		default:
			return fmt.Errorf("stage %q: unknown kind %q", st.Name, st.Kind)
		}
	}
	return nil
}

func (m *MinimizeConfig) fill() {
	if m.Etol == 0 {
		m.Etol = DefaultEtol
	}
	if m.Ftol == 0 {
		m.Ftol = DefaultFtol
	}
	if m.MaxIter == 0 {
		m.MaxIter = DefaultMaxIter
	}
	if m.MaxEval == 0 {
		m.MaxEval = DefaultMaxEval
	}
	if m.SDSteps == 0 {
		m.SDSteps = DefaultSDSteps
	}
}
