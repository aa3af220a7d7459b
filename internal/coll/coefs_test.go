package coll

import (
	"math"
	"testing"

	"github.com/plasmakit/collide/internal/plasma"
)

// testSample is a core fusion plasma: electrons and deuterons at 1e20 1/m^3
// and 10 keV, with a 5 T field.
func testSample() ([]plasma.Species, *plasma.Sample) {
	species := []plasma.Species{plasma.Electron(), plasma.Deuterium()}
	s := &plasma.Sample{NSpecies: 2, BNorm: 5.0, B: plasma.Vec3{0, 5, 0}}
	for j := range species {
		s.Density[j] = 1e20
		s.Temp[j] = 10e3 * plasma.EVtoJ
	}
	return species, s
}

func alphaParticle() (ma, qa, va float64) {
	sp := plasma.Alpha()
	e := 3.5e6 * plasma.EVtoJ
	return sp.Mass, sp.Charge, math.Sqrt(2 * e / sp.Mass)
}

func TestMufun_BranchContinuity(t *testing.T) {
	// Taylor, closed-form and saturated branches must agree where they meet
	cases := []struct {
		name   string
		lo, hi float64
		tol    float64
	}{
		{"taylor-exact", 0.1 - 1e-9, 0.1 + 1e-9, 1e-6},
		{"exact-saturated", 6 - 1e-9, 6 + 1e-9, 1e-6},
	}
	for _, tc := range cases {
		a0, a1, a2 := mufun(tc.lo)
		b0, b1, b2 := mufun(tc.hi)
		for i, pair := range [][2]float64{{a0, b0}, {a1, b1}, {a2, b2}} {
			rel := math.Abs(pair[0] - pair[1])
			if pair[0] != 0 {
				rel /= math.Abs(pair[0])
			}
			if rel > tc.tol {
				t.Errorf("%s: mu%d jumps %g -> %g across the branch", tc.name, i, pair[0], pair[1])
			}
		}
	}
}

func TestMufun_Limits(t *testing.T) {
	// slow limit: mu0 ~ 4x/(3 sqrt(pi)), mu2 -> 4/(3 sqrt(pi))
	c := 4 / (3 * math.Sqrt(math.Pi))
	mu0, _, mu2 := mufun(1e-4)
	if math.Abs(mu0/(c*1e-4)-1) > 1e-6 {
		t.Errorf("small-x mu0 = %g, want ~%g", mu0, c*1e-4)
	}
	if math.Abs(mu2/c-1) > 1e-6 {
		t.Errorf("small-x mu2 = %g, want ~%g", mu2, c)
	}

	// fast limit: mu0 -> 1/x^2, mu1 -> 1
	mu0, mu1, _ := mufun(20)
	if math.Abs(mu0*400-1) > 1e-12 {
		t.Errorf("large-x mu0 = %g, want 1/400", mu0)
	}
	if math.Abs(mu1-1) > 1e-2 {
		t.Errorf("large-x mu1 = %g, want ~1", mu1)
	}
}

func TestMufun_Monotone(t *testing.T) {
	// mu1 grows monotonically from 0 toward 1
	prev := 0.0
	for x := 0.05; x < 10; x += 0.05 {
		_, mu1, _ := mufun(x)
		if mu1 < prev {
			t.Fatalf("mu1 decreased at x=%g: %g < %g", x, mu1, prev)
		}
		prev = mu1
	}
}

func TestEvalCoulombLog_FusionPlasmaMagnitude(t *testing.T) {
	species, s := testSample()
	ma, qa, va := alphaParticle()

	clog := make([]float64, s.NSpecies)
	EvalCoulombLog(ma, qa, va, species, s, clog)

	for j, l := range clog {
		if l < 10 || l > 25 {
			t.Errorf("species %d Coulomb log = %g, outside the 10-25 fusion range", j, l)
		}
	}
}

func TestEvalFO_PositiveAndConsistent(t *testing.T) {
	species, s := testSample()
	ma, qa, va := alphaParticle()

	clog := make([]float64, s.NSpecies)
	EvalCoulombLog(ma, qa, va, species, s, clog)
	out := make([]FOCoefs, s.NSpecies)
	if err := EvalFO(ma, qa, va, species, s, clog, out); err != nil {
		t.Fatalf("EvalFO: %v", err)
	}

	for j, c := range out {
		if c.Dpara <= 0 || c.Dperp <= 0 || c.Nu <= 0 {
			t.Errorf("species %d: nonpositive diffusion (Dpara=%g Dperp=%g Nu=%g)", j, c.Dpara, c.Dperp, c.Nu)
		}
		if c.F >= 0 {
			t.Errorf("species %d: friction %g must oppose the motion", j, c.F)
		}
		if rel := math.Abs(c.Nu*va*va/(2*c.Dperp) - 1); rel > 1e-12 {
			t.Errorf("species %d: Nu inconsistent with Dperp (rel %g)", j, rel)
		}
	}
}

func TestEvalFO_Deterministic(t *testing.T) {
	species, s := testSample()
	ma, qa, va := alphaParticle()

	clog := make([]float64, s.NSpecies)
	EvalCoulombLog(ma, qa, va, species, s, clog)
	a := make([]FOCoefs, s.NSpecies)
	b := make([]FOCoefs, s.NSpecies)
	if err := EvalFO(ma, qa, va, species, s, clog, a); err != nil {
		t.Fatalf("EvalFO: %v", err)
	}
	if err := EvalFO(ma, qa, va, species, s, clog, b); err != nil {
		t.Fatalf("EvalFO: %v", err)
	}
	for j := range a {
		if a[j] != b[j] {
			t.Errorf("species %d: identical inputs produced different coefficients", j)
		}
	}
}

func TestEvalGC_EnergyScan(t *testing.T) {
	species, s := testSample()
	sp := plasma.Alpha()

	for _, keV := range []float64{1, 10, 100, 1000, 3500} {
		va := math.Sqrt(2 * keV * 1e3 * plasma.EVtoJ / sp.Mass)
		clog := make([]float64, s.NSpecies)
		EvalCoulombLog(sp.Mass, sp.Charge, va, species, s, clog)
		out := make([]GCCoefs, s.NSpecies)
		if err := EvalGC(sp.Mass, sp.Charge, va, 0.6, s.BNorm, species, s, clog, out); err != nil {
			t.Fatalf("EvalGC at %g keV: %v", keV, err)
		}
		for j, c := range out {
			if c.Dpara <= 0 || c.Nu <= 0 || c.DX < 0 {
				t.Errorf("%g keV species %d: Dpara=%g Nu=%g DX=%g", keV, j, c.Dpara, c.Nu, c.DX)
			}
			if math.IsNaN(c.K) || math.IsNaN(c.DQ) || math.IsNaN(c.DDpara) {
				t.Errorf("%g keV species %d: NaN drift coefficient", keV, j)
			}
		}
	}
}

func TestEvalGC_SlowingDownDominatedByElectrons(t *testing.T) {
	// a 3.5 MeV alpha is far above the ion thermal speed but below the
	// electron thermal speed, so electron drag dominates
	species, s := testSample()
	ma, qa, va := alphaParticle()

	clog := make([]float64, s.NSpecies)
	EvalCoulombLog(ma, qa, va, species, s, clog)
	out := make([]GCCoefs, s.NSpecies)
	if err := EvalGC(ma, qa, va, 0.6, s.BNorm, species, s, clog, out); err != nil {
		t.Fatalf("EvalGC: %v", err)
	}
	if math.Abs(out[0].K) <= math.Abs(out[1].K) {
		t.Errorf("electron drag %g not above ion drag %g for a fast alpha", out[0].K, out[1].K)
	}
}

func TestEvalGC_PitchScatterGrowsAsSpeedFalls(t *testing.T) {
	species, s := testSample()
	sp := plasma.Alpha()

	nuAt := func(keV float64) float64 {
		va := math.Sqrt(2 * keV * 1e3 * plasma.EVtoJ / sp.Mass)
		clog := make([]float64, s.NSpecies)
		EvalCoulombLog(sp.Mass, sp.Charge, va, species, s, clog)
		out := make([]GCCoefs, s.NSpecies)
		if err := EvalGC(sp.Mass, sp.Charge, va, 0.5, s.BNorm, species, s, clog, out); err != nil {
			t.Fatalf("EvalGC at %g keV: %v", keV, err)
		}
		var nu float64
		for _, c := range out {
			nu += c.Nu
		}
		return nu
	}

	if nuAt(100) <= nuAt(3500) {
		t.Error("pitch scattering frequency should rise as the particle slows")
	}
}
