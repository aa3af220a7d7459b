// Package marker defines the traced-particle kinematic states in the
// full-orbit and guiding-center representations.
package marker

import (
	"fmt"
	"math"

	"github.com/plasmakit/collide/internal/plasma"
)

// FO is a full-orbit particle in cylindrical coordinates.
type FO struct {
	Mass    float64 // [kg]
	Charge  float64 // [C]
	R       float64 // [m]
	Phi     float64 // [rad]
	Z       float64 // [m]
	RDot    float64 // [m/s]
	PhiDot  float64 // [rad/s]
	ZDot    float64 // [m/s]
	Time    float64 // [s]
	Running bool
}

// Speed returns the full-orbit speed.
func (p *FO) Speed() float64 {
	vphi := p.R * p.PhiDot
	return math.Sqrt(p.RDot*p.RDot + vphi*vphi + p.ZDot*p.ZDot)
}

// VelocityXYZ returns the Cartesian velocity at the particle's toroidal angle.
func (p *FO) VelocityXYZ() plasma.Vec3 {
	sin, cos := math.Sincos(p.Phi)
	return plasma.Vec3{
		p.RDot*cos - p.R*p.PhiDot*sin,
		p.RDot*sin + p.R*p.PhiDot*cos,
		p.ZDot,
	}
}

// SetVelocityXYZ converts a Cartesian velocity back to cylindrical rates.
func (p *FO) SetVelocityXYZ(v plasma.Vec3) {
	sin, cos := math.Sincos(p.Phi)
	p.RDot = v[0]*cos + v[1]*sin
	p.PhiDot = (-v[0]*sin + v[1]*cos) / p.R
	p.ZDot = v[2]
}

// GC is a guiding-center particle. Phi and Pol accumulate without wrapping
// so long-time winding diagnostics stay meaningful.
type GC struct {
	Mass    float64 // [kg]
	Charge  float64 // [C]
	R       float64 // [m]
	Phi     float64 // cumulative toroidal angle [rad]
	Z       float64 // [m]
	VPar    float64 // parallel velocity [m/s]
	Mu      float64 // magnetic moment [J/T]
	Pol     float64 // cumulative poloidal angle [rad]
	Time    float64 // [s]
	Running bool
}

// Position returns the cylindrical position.
func (p *GC) Position() plasma.Position {
	return plasma.Position{R: p.R, Phi: p.Phi, Z: p.Z}
}

// SpeedPitch decomposes (vpar, mu, |B|) into speed and pitch. The magnetic
// moment must be non-negative and the decomposition real.
func (p *GC) SpeedPitch(bnorm float64) (v, xi float64, err error) {
	if p.Mu < 0 {
		return 0, 0, fmt.Errorf("marker: negative magnetic moment %g", p.Mu)
	}
	vperp2 := 2 * p.Mu * bnorm / p.Mass
	v = math.Sqrt(p.VPar*p.VPar + vperp2)
	if v == 0 || math.IsNaN(v) {
		return 0, 0, fmt.Errorf("marker: invalid speed decomposition (vpar=%g mu=%g B=%g)", p.VPar, p.Mu, bnorm)
	}
	return v, p.VPar / v, nil
}

// SetSpeedPitch recomputes vpar and mu from an updated (v, xi) pair.
func (p *GC) SetSpeedPitch(v, xi, bnorm float64) {
	p.VPar = v * xi
	p.Mu = (1 - xi*xi) * p.Mass * v * v / (2 * bnorm)
	if p.Mu < 0 {
		p.Mu = 0
	}
}

// XYZ returns the Cartesian guiding-center position.
func (p *GC) XYZ() plasma.Vec3 {
	sin, cos := math.Sincos(p.Phi)
	return plasma.Vec3{p.R * cos, p.R * sin, p.Z}
}
