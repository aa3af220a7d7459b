package plasma

import (
	"errors"
	"math"
)

// ErrDomain indicates a background lookup outside the valid grid.
var ErrDomain = errors.New("plasma: position outside background domain")

// Vec3 is a Cartesian vector.
type Vec3 [3]float64

func (v Vec3) Norm() float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

func (v Vec3) Dot(o Vec3) float64 {
	return v[0]*o[0] + v[1]*o[1] + v[2]*o[2]
}

func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v[1]*o[2] - v[2]*o[1],
		v[2]*o[0] - v[0]*o[2],
		v[0]*o[1] - v[1]*o[0],
	}
}

func (v Vec3) Scale(a float64) Vec3 {
	return Vec3{a * v[0], a * v[1], a * v[2]}
}

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]}
}

// CylToXYZ rotates a vector given in (R, phi, z) components at toroidal
// angle phi into Cartesian components.
func CylToXYZ(v Vec3, phi float64) Vec3 {
	sin, cos := math.Sincos(phi)
	return Vec3{v[0]*cos - v[1]*sin, v[0]*sin + v[1]*cos, v[2]}
}

// Position is a cylindrical (R, phi, z) location.
type Position struct {
	R, Phi, Z float64
}

// Sample is the local plasma background at a particle's position.
// Temperatures are in joules, densities in 1/m^3. Species 0 is electrons.
type Sample struct {
	NSpecies int
	Density  [MaxSpecies]float64
	Temp     [MaxSpecies]float64
	B        Vec3 // field vector in (R, phi, z) components
	BNorm    float64
}

// Background supplies flux label, profiles and magnetic field. Lookups
// outside the valid domain return ErrDomain.
type Background interface {
	// EvalRho maps a position to the normalized flux label.
	EvalRho(pos Position, t float64) (float64, error)
	// EvalDensTemp evaluates density [1/m^3] and temperature [J] for one
	// species at a flux label.
	EvalDensTemp(rho float64, species int) (float64, float64, error)
	// EvalB evaluates the magnetic field vector and magnitude.
	EvalB(pos Position) (Vec3, float64, error)
	// Axis returns the magnetic axis (R, z) at a toroidal angle.
	Axis(phi float64) (float64, float64)
	// Species lists the static species identities, electrons first.
	Species() []Species
}

// EvalSample fills a full background sample at a position.
func EvalSample(bg Background, pos Position, t float64) (Sample, error) {
	var s Sample
	rho, err := bg.EvalRho(pos, t)
	if err != nil {
		return s, err
	}
	sp := bg.Species()
	s.NSpecies = len(sp)
	for j := range sp {
		n, temp, err := bg.EvalDensTemp(rho, j)
		if err != nil {
			return s, err
		}
		s.Density[j] = n
		s.Temp[j] = temp
	}
	s.B, s.BNorm, err = bg.EvalB(pos)
	if err != nil {
		return s, err
	}
	return s, nil
}
