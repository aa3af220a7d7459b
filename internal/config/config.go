// Package config loads and saves simulation configuration in YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/plasmakit/collide/internal/plasma"
)

const (
	DefaultDt        = 1e-6
	DefaultDuration  = 5e-3
	DefaultTolerance = 1e-2
	DefaultMarkers   = 64
)

// Config is the on-disk simulation description. Densities are in 1/m^3 and
// temperatures in eV; they are converted to SI when the background is built.
type Config struct {
	Scheme    string          `yaml:"scheme"` // "gc-fixed", "gc-adaptive", "fo-fixed"
	Dt        float64         `yaml:"dt"`
	Duration  float64         `yaml:"duration"`
	Tolerance float64         `yaml:"tolerance"`
	Seed      int64           `yaml:"seed"`
	Markers   int             `yaml:"markers"`
	Field     FieldConfig     `yaml:"field"`
	Species   []SpeciesConfig `yaml:"species"`
	Test      TestParticle    `yaml:"test_particle"`
}

type FieldConfig struct {
	R0 float64 `yaml:"r0"` // major radius [m]
	Z0 float64 `yaml:"z0"`
	A  float64 `yaml:"a"`  // minor radius [m]
	B0 float64 `yaml:"b0"` // on-axis field [T]
	Q0 float64 `yaml:"q0"` // safety factor
}

type SpeciesConfig struct {
	Name        string  `yaml:"name"` // "e", "D", "T", "He4"
	DensityCore float64 `yaml:"density_core"`
	DensityEdge float64 `yaml:"density_edge"`
	TempCoreEV  float64 `yaml:"temp_core_ev"`
	TempEdgeEV  float64 `yaml:"temp_edge_ev"`
}

type TestParticle struct {
	Name      string  `yaml:"name"`
	EnergyKeV float64 `yaml:"energy_kev"`
	Pitch     float64 `yaml:"pitch"`
	Rho       float64 `yaml:"rho"` // starting flux label
}

func DefaultConfig() *Config {
	return &Config{
		Scheme:    "gc-adaptive",
		Dt:        DefaultDt,
		Duration:  DefaultDuration,
		Tolerance: DefaultTolerance,
		Markers:   DefaultMarkers,
		Field:     FieldConfig{R0: 6.2, Z0: 0, A: 2.0, B0: 5.3, Q0: 1.7},
		Species: []SpeciesConfig{
			{Name: "e", DensityCore: 1e20, DensityEdge: 1e19, TempCoreEV: 10e3, TempEdgeEV: 1e3},
			{Name: "D", DensityCore: 1e20, DensityEdge: 1e19, TempCoreEV: 10e3, TempEdgeEV: 1e3},
		},
		Test: TestParticle{Name: "He4", EnergyKeV: 3500, Pitch: 0.7, Rho: 0.3},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate rejects configurations the operator would refuse at setup.
func (c *Config) Validate() error {
	if len(c.Species) == 0 {
		return fmt.Errorf("config: at least one species required")
	}
	if len(c.Species) > plasma.MaxSpecies {
		return fmt.Errorf("config: %d species exceeds maximum %d", len(c.Species), plasma.MaxSpecies)
	}
	if c.Species[0].Name != "e" {
		return fmt.Errorf("config: species 0 must be the electron species, got %q", c.Species[0].Name)
	}
	if c.Dt <= 0 || c.Duration <= 0 {
		return fmt.Errorf("config: dt and duration must be positive")
	}
	if c.Markers <= 0 {
		return fmt.Errorf("config: markers must be positive")
	}
	if c.Test.Pitch < -1 || c.Test.Pitch > 1 {
		return fmt.Errorf("config: test particle pitch %g outside [-1, 1]", c.Test.Pitch)
	}
	if c.Test.Rho < 0 || c.Test.Rho >= 1 {
		return fmt.Errorf("config: test particle flux label %g outside [0, 1)", c.Test.Rho)
	}
	return nil
}

// speciesByName maps config names to static species identities.
func speciesByName(name string) (plasma.Species, error) {
	switch name {
	case "e":
		return plasma.Electron(), nil
	case "D":
		return plasma.Deuterium(), nil
	case "T":
		return plasma.Tritium(), nil
	case "He4":
		return plasma.Alpha(), nil
	default:
		return plasma.Species{}, fmt.Errorf("config: unknown species %q", name)
	}
}

// Background builds the analytic tokamak background described by the config.
func (c *Config) Background() (*plasma.Analytic, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	profiles := make([]plasma.SpeciesProfile, len(c.Species))
	for i, sc := range c.Species {
		sp, err := speciesByName(sc.Name)
		if err != nil {
			return nil, err
		}
		profiles[i] = plasma.SpeciesProfile{
			Species: sp,
			Density: plasma.Profile{Core: sc.DensityCore, Edge: sc.DensityEdge, Exp: 1},
			Temp: plasma.Profile{
				Core: sc.TempCoreEV * plasma.EVtoJ,
				Edge: sc.TempEdgeEV * plasma.EVtoJ,
				Exp:  1,
			},
		}
	}
	return plasma.NewAnalytic(c.Field.R0, c.Field.Z0, c.Field.A, c.Field.B0, c.Field.Q0, profiles)
}

// TestSpecies resolves the test-particle species identity.
func (c *Config) TestSpecies() (plasma.Species, error) {
	return speciesByName(c.Test.Name)
}
