package coll

import (
	"math"

	"github.com/plasmakit/collide/internal/plasma"
)

// FOCoefs holds the per-species full-orbit collision coefficients.
type FOCoefs struct {
	CLog  float64 // Coulomb logarithm
	F     float64 // friction [m/s^2]
	Dpara float64 // parallel diffusion [m^2/s^3]
	Dperp float64 // perpendicular diffusion [m^2/s^3]
	K     float64 // drag incl. spherical correction [m/s^2]
	Nu    float64 // pitch collision frequency [1/s]
}

// GCCoefs holds the per-species guiding-center collision coefficients.
// DQ and DDpara are only meaningful for the adaptive scheme.
type GCCoefs struct {
	CLog   float64
	Dpara  float64 // parallel velocity diffusion [m^2/s^3]
	DX     float64 // classical spatial diffusion [m^2/s]
	K      float64 // drag [m/s^2]
	Nu     float64 // pitch collision frequency [1/s]
	DQ     float64 // d(drag)/dv [1/s]
	DDpara float64 // d(Dpara)/dv [m/s^2]
}

// mufun evaluates the velocity-integrals of the Rosenbluth potentials over a
// Maxwellian background:
//
//	mu0(x) = ( erf(x) - x erf'(x) ) / x^2
//	mu1(x) = erf(x) - mu0(x)/2
//	mu2(x) = d mu0/dx = 2 erf'(x) - 2 mu0(x)/x
//
// The closed forms cancel catastrophically as x -> 0, so a Taylor expansion
// takes over below x = 0.1. Above x = 6 erf has saturated and the exponential
// terms underflow, so the saturated limits are used directly.
func mufun(x float64) (mu0, mu1, mu2 float64) {
	switch {
	case x < 0.1:
		x2 := x * x
		c := 4 / (3 * plasma.SqrtPi)
		mu0 = c * x * (1 - 3*x2/5 + 3*x2*x2/14)
		mu1 = c * x * (1 - x2/5 + 3*x2*x2/70)
		mu2 = c * (1 - 9*x2/5 + 15*x2*x2/14)
	case x > 6:
		x2 := x * x
		mu0 = 1 / x2
		mu1 = 1 - 0.5/x2
		mu2 = -2 / (x2 * x)
	default:
		phi := math.Erf(x)
		dphi := 2 * math.Exp(-x*x) / plasma.SqrtPi
		mu0 = (phi - x*dphi) / (x * x)
		mu1 = phi - 0.5*mu0
		mu2 = 2*dphi - 2*mu0/x
	}
	return mu0, mu1, mu2
}

// EvalCoulombLog evaluates the per-species Coulomb logarithm for a test
// particle (ma, qa, va) against the background sample. The result slice is
// indexed by species.
func EvalCoulombLog(ma, qa, va float64, species []plasma.Species, bg *plasma.Sample, clog []float64) {
	// Debye screening over all species
	var inv float64
	for j := 0; j < bg.NSpecies; j++ {
		qb := species[j].Charge
		inv += bg.Density[j] * qb * qb / bg.Temp[j]
	}
	debye := math.Sqrt(plasma.Eps0 / inv)

	for j := 0; j < bg.NSpecies; j++ {
		sb := species[j]
		vth2 := 2 * bg.Temp[j] / sb.Mass
		vbar2 := va*va + 1.3*vth2
		mr := ma * sb.Mass / (ma + sb.Mass)

		// minimum impact parameter: classical closest approach vs
		// de Broglie wavelength, whichever is larger
		bcl := math.Abs(qa * sb.Charge / (4 * math.Pi * plasma.Eps0 * mr * vbar2))
		bqm := plasma.HBar / (2 * mr * math.Sqrt(vbar2))
		bmin := bcl
		if bqm > bmin {
			bmin = bqm
		}
		clog[j] = math.Log(debye / bmin)
	}
}

// cab is the collision strength prefactor nb qa^2 qb^2 lnL / (4 pi eps0^2 ma^2).
func cab(ma, qa float64, sb plasma.Species, nb, clog float64) float64 {
	q2 := qa * qa * sb.Charge * sb.Charge
	return nb * q2 * clog / (4 * math.Pi * plasma.Eps0 * plasma.Eps0 * ma * ma)
}

// EvalFO evaluates the per-species full-orbit coefficients. clog must come
// from EvalCoulombLog for the same inputs. Any nonpositive diffusion or
// frequency is a contract violation reported as ErrNumerical.
func EvalFO(ma, qa, va float64, species []plasma.Species, bg *plasma.Sample, clog []float64, out []FOCoefs) error {
	for j := 0; j < bg.NSpecies; j++ {
		sb := species[j]
		vth := sb.ThermalSpeed(bg.Temp[j])
		x := va / vth
		mu0, mu1, mu2 := mufun(x)
		c := cab(ma, qa, sb, bg.Density[j], clog[j])

		dpara := c * mu0 / (2 * va)
		dperp := c * mu1 / (2 * va)
		q := -c * (ma / sb.Mass) * mu0 / (vth * vth)
		ddpara := (c / (2 * va)) * (mu2/vth - mu0/va)

		out[j] = FOCoefs{
			CLog:  clog[j],
			F:     -(1 + ma/sb.Mass) * c * mu0 / (vth * vth),
			Dpara: dpara,
			Dperp: dperp,
			K:     q + ddpara + 2*dpara/va,
			Nu:    2 * dperp / (va * va),
		}
		if !coefsFinite(out[j].F, dpara, dperp, out[j].Nu) || dpara <= 0 || dperp <= 0 || out[j].Nu <= 0 {
			return ErrNumerical
		}
	}
	return nil
}

// EvalGC evaluates the per-species guiding-center coefficients, including
// the dQ/dv and dDpara/dv derivatives used by the Milstein scheme.
func EvalGC(ma, qa, va, xi, bnorm float64, species []plasma.Species, bg *plasma.Sample, clog []float64, out []GCCoefs) error {
	gyro := math.Abs(qa) * bnorm / ma
	for j := 0; j < bg.NSpecies; j++ {
		sb := species[j]
		vth := sb.ThermalSpeed(bg.Temp[j])
		x := va / vth
		mu0, mu1, mu2 := mufun(x)
		c := cab(ma, qa, sb, bg.Density[j], clog[j])

		dpara := c * mu0 / (2 * va)
		dperp := c * mu1 / (2 * va)
		q := -c * (ma / sb.Mass) * mu0 / (vth * vth)
		dq := -c * (ma / sb.Mass) * mu2 / (vth * vth * vth)
		ddpara := (c / (2 * va)) * (mu2/vth - mu0/va)

		out[j] = GCCoefs{
			CLog:   clog[j],
			Dpara:  dpara,
			DX:     ((1-xi*xi)*dpara + (1+xi*xi)*dperp) / (2 * gyro * gyro),
			K:      q + ddpara + 2*dpara/va,
			Nu:     2 * dperp / (va * va),
			DQ:     dq,
			DDpara: ddpara,
		}
		if !coefsFinite(out[j].K, dpara, out[j].DX, out[j].Nu) || dpara <= 0 || out[j].Nu <= 0 || out[j].DX < 0 {
			return ErrNumerical
		}
	}
	return nil
}

// sumFO aggregates per-species full-orbit coefficients for the pusher.
func sumFO(coefs []FOCoefs, n int) (f, dpara, dperp float64) {
	for j := 0; j < n; j++ {
		f += coefs[j].F
		dpara += coefs[j].Dpara
		dperp += coefs[j].Dperp
	}
	return f, dpara, dperp
}

// sumGC aggregates per-species guiding-center coefficients for the pusher.
func sumGC(coefs []GCCoefs, n int) (k, nu, dpara, dx, dq, ddpara float64) {
	for j := 0; j < n; j++ {
		k += coefs[j].K
		nu += coefs[j].Nu
		dpara += coefs[j].Dpara
		dx += coefs[j].DX
		dq += coefs[j].DQ
		ddpara += coefs[j].DDpara
	}
	return k, nu, dpara, dx, dq, ddpara
}

func coefsFinite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
