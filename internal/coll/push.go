package coll

import (
	"math"

	"github.com/plasmakit/collide/internal/plasma"
)

// pushFOEM advances a full-orbit Cartesian velocity by one Euler-Maruyama
// step. rnd holds three standard-normal draws; drift acts along the current
// velocity direction, noise along the parallel and two perpendicular
// directions of a local orthonormal basis.
func pushFOEM(f, dpara, dperp, dt float64, rnd [3]float64, vin plasma.Vec3) (plasma.Vec3, error) {
	vnorm := vin.Norm()
	if vnorm == 0 {
		return vin, ErrNumerical
	}
	vhat := vin.Scale(1 / vnorm)
	p1, p2 := perpBasis(vhat)

	sdt := math.Sqrt(dt)
	dWpar := sdt * rnd[0]
	dW1 := sdt * rnd[1]
	dW2 := sdt * rnd[2]

	out := vin.
		Add(vhat.Scale(f*dt + math.Sqrt(2*dpara)*dWpar)).
		Add(p1.Scale(math.Sqrt(2 * dperp) * dW1)).
		Add(p2.Scale(math.Sqrt(2 * dperp) * dW2))

	if !finiteVec(out) {
		return vin, ErrNumerical
	}
	return out, nil
}

// gcState bundles the guiding-center push inputs and outputs.
type gcState struct {
	V  float64
	Xi float64
	X  plasma.Vec3
}

// pushGCEM advances (v, xi, X) by one fixed-step Euler-Maruyama push.
// dW holds the five Wiener increments: 0-2 spatial, 3 speed, 4 pitch.
// Speeds ending below the cutoff are mirrored back above it so collisional
// drag cannot amplify unphysically at low relative velocity; the pitch is
// reflected at |xi| = 1.
func pushGCEM(k, nu, dpara, dx float64, bhat plasma.Vec3, dt float64, dW [NDim]float64, in gcState, cutoff float64) (gcState, error) {
	var out gcState

	out.V = in.V + k*dt + math.Sqrt(2*dpara)*dW[3]
	if out.V < cutoff {
		out.V = 2*cutoff - out.V
	}

	out.Xi = in.Xi - in.Xi*nu*dt + math.Sqrt((1-in.Xi*in.Xi)*nu)*dW[4]
	out.Xi = reflectPitch(out.Xi)

	out.X = spatialDiffusion(in.X, bhat, dx, dW)

	if !finiteGC(out) {
		return in, ErrNumerical
	}
	return out, nil
}

// pushGCMI advances (v, xi, X) by one Milstein step and evaluates the three
// error indicators of the adaptive scheme: kappaK for drift truncation,
// kappaD0 and kappaD1 for the speed and pitch diffusion directions. Each is
// the estimated local error over the tolerance; any value above one flags
// the step for rejection.
func pushGCMI(k, nu, dpara, dx, dq, ddpara float64, bhat plasma.Vec3, dt float64, dW [NDim]float64, in gcState, cutoff, tol float64) (gcState, float64, float64, float64, error) {
	var out gcState

	out.V = in.V + k*dt + math.Sqrt(2*dpara)*dW[3] +
		0.5*ddpara*(dW[3]*dW[3]-dt)
	if out.V < cutoff {
		out.V = 2*cutoff - out.V
	}

	out.Xi = in.Xi - in.Xi*nu*dt + math.Sqrt((1-in.Xi*in.Xi)*nu)*dW[4] -
		0.5*in.Xi*nu*(dW[4]*dW[4]-dt)
	out.Xi = reflectPitch(out.Xi)

	out.X = spatialDiffusion(in.X, bhat, dx, dW)

	if !finiteGC(out) {
		return in, 0, 0, 0, ErrNumerical
	}

	// Local error over tolerance, speed-scaled. The drift estimate is the
	// first neglected deterministic term ~ K K' dt^2 / 2; the diffusion
	// estimates are the first neglected stochastic terms ~ b b' |dW|^3.
	sdt := math.Sqrt(dt)
	kappaK := math.Abs(k*dq) * dt * dt / (2 * tol * in.V)
	ad3 := math.Abs(dW[3])
	ad4 := math.Abs(dW[4])
	kappaD0 := math.Abs(ddpara) * ad3 * ad3 * ad3 / (2 * tol * in.V * sdt)
	kappaD1 := math.Abs(in.Xi) * nu * ad4 * ad4 * ad4 / (2 * tol * sdt)

	return out, kappaK, kappaD0, kappaD1, nil
}

// spatialDiffusion applies the classical cross-field diffusion using noise
// components 0-2 with the parallel projection removed.
func spatialDiffusion(x plasma.Vec3, bhat plasma.Vec3, dx float64, dW [NDim]float64) plasma.Vec3 {
	w := plasma.Vec3{dW[0], dW[1], dW[2]}
	wperp := w.Add(bhat.Scale(-bhat.Dot(w)))
	return x.Add(wperp.Scale(math.Sqrt(2 * dx)))
}

// perpBasis builds two unit vectors orthogonal to vhat and each other.
func perpBasis(vhat plasma.Vec3) (plasma.Vec3, plasma.Vec3) {
	ref := plasma.Vec3{0, 0, 1}
	if math.Abs(vhat[2]) > 0.9 {
		ref = plasma.Vec3{1, 0, 0}
	}
	p1 := vhat.Cross(ref)
	p1 = p1.Scale(1 / p1.Norm())
	p2 := vhat.Cross(p1)
	return p1, p2
}

func reflectPitch(xi float64) float64 {
	if xi > 1 {
		return 2 - xi
	}
	if xi < -1 {
		return -2 - xi
	}
	return xi
}

func finiteVec(v plasma.Vec3) bool {
	return coefsFinite(v[0], v[1], v[2])
}

func finiteGC(s gcState) bool {
	return coefsFinite(s.V, s.Xi) && finiteVec(s.X)
}
