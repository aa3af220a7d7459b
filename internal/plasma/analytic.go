package plasma

import (
	"fmt"
	"math"
)

// Profile is a parabolic radial profile value(rho) = edge + (core-edge)*(1-rho^2)^exp.
type Profile struct {
	Core float64
	Edge float64
	Exp  float64
}

func (p Profile) At(rho float64) float64 {
	base := 1 - rho*rho
	if base < 0 {
		base = 0
	}
	return p.Edge + (p.Core-p.Edge)*math.Pow(base, p.Exp)
}

// SpeciesProfile couples a species identity with its density and
// temperature profiles. Density in 1/m^3, temperature in joules.
type SpeciesProfile struct {
	Species Species
	Density Profile
	Temp    Profile
}

// Analytic is a circular-cross-section tokamak background: toroidal field
// B0*R0/R plus a q-profile poloidal component, flux label rho = r/a.
type Analytic struct {
	R0      float64 // major radius [m]
	Z0      float64 // axis height [m]
	A       float64 // minor radius [m]
	B0      float64 // on-axis toroidal field [T]
	Q0      float64 // safety factor on axis
	species []SpeciesProfile
}

// NewAnalytic builds an analytic background. Species must be listed
// electrons first; the count is validated by the operator, not here.
func NewAnalytic(r0, z0, a, b0, q0 float64, species []SpeciesProfile) (*Analytic, error) {
	if r0 <= 0 || a <= 0 || a >= r0 {
		return nil, fmt.Errorf("plasma: invalid geometry R0=%g a=%g", r0, a)
	}
	if len(species) == 0 || species[0].Species.Charge >= 0 {
		return nil, fmt.Errorf("plasma: species 0 must be electrons")
	}
	return &Analytic{R0: r0, Z0: z0, A: a, B0: b0, Q0: q0, species: species}, nil
}

func (b *Analytic) Species() []Species {
	out := make([]Species, len(b.species))
	for i, sp := range b.species {
		out[i] = sp.Species
	}
	return out
}

func (b *Analytic) EvalRho(pos Position, t float64) (float64, error) {
	dr := pos.R - b.R0
	dz := pos.Z - b.Z0
	rho := math.Sqrt(dr*dr+dz*dz) / b.A
	if rho > 1 || pos.R <= 0 {
		return 0, ErrDomain
	}
	return rho, nil
}

func (b *Analytic) EvalDensTemp(rho float64, species int) (float64, float64, error) {
	if rho < 0 || rho > 1 || species < 0 || species >= len(b.species) {
		return 0, 0, ErrDomain
	}
	sp := b.species[species]
	return sp.Density.At(rho), sp.Temp.At(rho), nil
}

func (b *Analytic) EvalB(pos Position) (Vec3, float64, error) {
	if pos.R <= 0 {
		return Vec3{}, 0, ErrDomain
	}
	dr := pos.R - b.R0
	dz := pos.Z - b.Z0
	r := math.Sqrt(dr*dr + dz*dz)
	if r > b.A {
		return Vec3{}, 0, ErrDomain
	}

	bphi := b.B0 * b.R0 / pos.R
	var bpol float64
	if b.Q0 > 0 {
		bpol = b.B0 * r / (b.Q0 * b.R0)
	}
	field := Vec3{0, bphi, 0}
	if r > 0 {
		// poloidal component tangent to the flux surface
		field[0] = -bpol * dz / r
		field[2] = bpol * dr / r
	}
	return field, field.Norm(), nil
}

func (b *Analytic) Axis(phi float64) (float64, float64) {
	return b.R0, b.Z0
}
