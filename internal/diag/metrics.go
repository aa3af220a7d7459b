// Package diag provides batch-level observables recorded while a
// collision run advances.
package diag

import (
	"math"

	"github.com/plasmakit/collide/internal/marker"
	"github.com/plasmakit/collide/internal/plasma"
)

// Metric observes the whole batch once per recorded frame.
type Metric interface {
	Name() string
	Observe(batch []*marker.GC, bg plasma.Background, t float64)
	Value() float64
	Reset()
}

// Energy returns a guiding-center particle's kinetic energy [J], or NaN
// when the field lookup fails.
func Energy(p *marker.GC, bg plasma.Background) float64 {
	_, bnorm, err := bg.EvalB(p.Position())
	if err != nil {
		return math.NaN()
	}
	return 0.5*p.Mass*p.VPar*p.VPar + p.Mu*bnorm
}

// MeanEnergy tracks the running-lane average kinetic energy in keV.
type MeanEnergy struct {
	sum     float64
	samples int
}

func (m *MeanEnergy) Name() string { return "mean_energy_kev" }

func (m *MeanEnergy) Observe(batch []*marker.GC, bg plasma.Background, t float64) {
	for _, p := range batch {
		if p == nil || !p.Running {
			continue
		}
		e := Energy(p, bg)
		if !math.IsNaN(e) {
			m.sum += e / (1e3 * plasma.EVtoJ)
			m.samples++
		}
	}
}

func (m *MeanEnergy) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.sum / float64(m.samples)
}

func (m *MeanEnergy) Reset() {
	m.sum = 0
	m.samples = 0
}

// MeanPitch tracks the running-lane average pitch vpar/v.
type MeanPitch struct {
	sum     float64
	samples int
}

func (m *MeanPitch) Name() string { return "mean_pitch" }

func (m *MeanPitch) Observe(batch []*marker.GC, bg plasma.Background, t float64) {
	for _, p := range batch {
		if p == nil || !p.Running {
			continue
		}
		_, bnorm, err := bg.EvalB(p.Position())
		if err != nil {
			continue
		}
		if _, xi, err := p.SpeedPitch(bnorm); err == nil {
			m.sum += xi
			m.samples++
		}
	}
}

func (m *MeanPitch) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.sum / float64(m.samples)
}

func (m *MeanPitch) Reset() {
	m.sum = 0
	m.samples = 0
}
