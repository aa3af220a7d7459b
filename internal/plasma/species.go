package plasma

import "math"

// Physical constants (SI).
const (
	Eps0     = 8.8541878128e-12 // vacuum permittivity [F/m]
	KBoltz   = 1.380649e-23     // Boltzmann constant [J/K]
	HBar     = 1.054571817e-34  // reduced Planck constant [Js]
	ECharge  = 1.602176634e-19  // elementary charge [C]
	MassE    = 9.1093837015e-31 // electron mass [kg]
	MassP    = 1.67262192369e-27
	MassAMU  = 1.66053906660e-27
	EVtoJ    = ECharge
	TwoPi    = 6.283185307179586
	SqrtPi   = 1.7724538509055159
)

// MaxSpecies bounds the number of background species the operator accepts.
const MaxSpecies = 8

// Species is the static identity of a plasma species.
type Species struct {
	Name   string
	Mass   float64 // [kg]
	Charge float64 // [C]
}

func Electron() Species {
	return Species{Name: "e", Mass: MassE, Charge: -ECharge}
}

func Deuterium() Species {
	return Species{Name: "D", Mass: 2.0141018 * MassAMU, Charge: ECharge}
}

func Tritium() Species {
	return Species{Name: "T", Mass: 3.0160493 * MassAMU, Charge: ECharge}
}

func Alpha() Species {
	return Species{Name: "He4", Mass: 4.002602 * MassAMU, Charge: 2 * ECharge}
}

// ThermalSpeed returns sqrt(2T/m) for temperature T in joules.
func (s Species) ThermalSpeed(temp float64) float64 {
	if temp <= 0 {
		return 0
	}
	return math.Sqrt(2 * temp / s.Mass)
}
