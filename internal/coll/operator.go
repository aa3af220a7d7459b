package coll

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/plasmakit/collide/internal/marker"
	"github.com/plasmakit/collide/internal/plasma"
	"github.com/plasmakit/collide/internal/randn"
)

// Options configures an Operator. Zero values select the defaults.
type Options struct {
	Tolerance      float64 // adaptive scheme error tolerance (default 1e-2)
	Seed           int64   // base seed; lane i uses Seed+i
	Workers        int     // batch parallelism (default NumCPU)
	WienerCapacity int     // knots per path (default DefaultWienerCapacity)
}

// Operator evaluates Coulomb collisions for batches of independent particle
// lanes. Each lane owns its Wiener path and its seeded random source; lanes
// never share mutable state, so a failing lane cannot disturb the rest of
// the batch.
type Operator struct {
	bg      plasma.Background
	species []plasma.Species
	tol     float64
	seed    int64
	workers int
	wcap    int

	mu    sync.Mutex
	lanes []*lane
}

type lane struct {
	rng  randn.Source
	path *WienerPath
}

// New validates the background's species set and builds an operator.
func New(bg plasma.Background, opt Options) (*Operator, error) {
	species := bg.Species()
	if len(species) == 0 || len(species) > plasma.MaxSpecies {
		return nil, fmt.Errorf("%w: %d species (max %d)", ErrConfig, len(species), plasma.MaxSpecies)
	}
	if species[0].Charge >= 0 {
		return nil, fmt.Errorf("%w: species 0 must be the electron species", ErrConfig)
	}
	if opt.Tolerance == 0 {
		opt.Tolerance = 1e-2
	}
	if opt.Tolerance < 0 {
		return nil, fmt.Errorf("%w: tolerance must be positive", ErrConfig)
	}
	if opt.Workers <= 0 {
		opt.Workers = runtime.NumCPU()
	}
	if opt.WienerCapacity <= 0 {
		opt.WienerCapacity = DefaultWienerCapacity
	}
	return &Operator{
		bg:      bg,
		species: species,
		tol:     opt.Tolerance,
		seed:    opt.Seed,
		workers: opt.Workers,
		wcap:    opt.WienerCapacity,
	}, nil
}

// ResetLane recycles lane slot i for a new particle starting at t0. The
// Wiener path is explicitly reset so the slot cannot inherit a stale
// non-zero-origin path.
func (o *Operator) ResetLane(i int, t0 float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.growLocked(i + 1, t0)
	o.lanes[i].rng = randn.New(o.seed + int64(i))
	o.lanes[i].path.Reset(t0)
}

func (o *Operator) growLocked(n int, t0 float64) {
	for len(o.lanes) < n {
		i := len(o.lanes)
		o.lanes = append(o.lanes, &lane{
			rng:  randn.New(o.seed + int64(i)),
			path: NewWienerPath(t0, o.wcap),
		})
	}
}

func (o *Operator) laneFor(i int, t0 float64) *lane {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.growLocked(i+1, t0)
	return o.lanes[i]
}

// Tolerance reports the adaptive error tolerance in use.
func (o *Operator) Tolerance() float64 { return o.tol }

// forEachLane runs fn over [0, n) split across the worker pool.
func (o *Operator) forEachLane(n int, fn func(i int)) {
	workers := o.workers
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}
	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > n {
			end = n
		}
		if start >= end {
			break
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				fn(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// EvaluateFO evaluates per-species full-orbit coefficients for diagnostics,
// without pushing the particle.
func (o *Operator) EvaluateFO(p *marker.FO) ([]FOCoefs, error) {
	sample, err := plasma.EvalSample(o.bg, plasma.Position{R: p.R, Phi: p.Phi, Z: p.Z}, p.Time)
	if err != nil {
		return nil, err
	}
	va := p.Speed()
	clog := make([]float64, sample.NSpecies)
	EvalCoulombLog(p.Mass, p.Charge, va, o.species, &sample, clog)
	out := make([]FOCoefs, sample.NSpecies)
	if err := EvalFO(p.Mass, p.Charge, va, o.species, &sample, clog, out); err != nil {
		return nil, err
	}
	return out, nil
}

// EvaluateGC evaluates per-species guiding-center coefficients for
// diagnostics, without pushing the particle.
func (o *Operator) EvaluateGC(p *marker.GC) ([]GCCoefs, error) {
	sample, err := plasma.EvalSample(o.bg, p.Position(), p.Time)
	if err != nil {
		return nil, err
	}
	va, xi, err := p.SpeedPitch(sample.BNorm)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNumerical, err)
	}
	clog := make([]float64, sample.NSpecies)
	EvalCoulombLog(p.Mass, p.Charge, va, o.species, &sample, clog)
	out := make([]GCCoefs, sample.NSpecies)
	if err := EvalGC(p.Mass, p.Charge, va, xi, sample.BNorm, o.species, &sample, clog, out); err != nil {
		return nil, err
	}
	return out, nil
}

// StepFOFixed advances every running full-orbit particle by one fixed
// Euler-Maruyama collision step of length dt. Errors are reported per lane;
// one lane's failure never aborts the others.
func (o *Operator) StepFOFixed(batch []*marker.FO, dt float64) []error {
	errs := make([]error, len(batch))
	o.forEachLane(len(batch), func(i int) {
		p := batch[i]
		if p == nil || !p.Running {
			return
		}
		ln := o.laneFor(i, p.Time)

		sample, err := plasma.EvalSample(o.bg, plasma.Position{R: p.R, Phi: p.Phi, Z: p.Z}, p.Time)
		if err != nil {
			errs[i] = err
			return
		}
		va := p.Speed()
		var clog [plasma.MaxSpecies]float64
		var coefs [plasma.MaxSpecies]FOCoefs
		EvalCoulombLog(p.Mass, p.Charge, va, o.species, &sample, clog[:sample.NSpecies])
		if err := EvalFO(p.Mass, p.Charge, va, o.species, &sample, clog[:sample.NSpecies], coefs[:sample.NSpecies]); err != nil {
			errs[i] = err
			return
		}
		f, dpara, dperp := sumFO(coefs[:], sample.NSpecies)

		var rnd [3]float64
		ln.rng.Fill(rnd[:])
		vout, err := pushFOEM(f, dpara, dperp, dt, rnd, p.VelocityXYZ())
		if err != nil {
			errs[i] = err
			return
		}
		p.SetVelocityXYZ(vout)
		p.Time += dt
	})
	return errs
}

// StepGCFixed advances every running guiding-center particle by one fixed
// Euler-Maruyama collision step of length dt.
func (o *Operator) StepGCFixed(batch []*marker.GC, dt float64) []error {
	errs := make([]error, len(batch))
	o.forEachLane(len(batch), func(i int) {
		p := batch[i]
		if p == nil || !p.Running {
			return
		}
		ln := o.laneFor(i, p.Time)

		var rnd [NDim]float64
		ln.rng.Fill(rnd[:])
		var dW [NDim]float64
		sdt := math.Sqrt(dt)
		for d := range dW {
			dW[d] = sdt * rnd[d]
		}

		errs[i] = o.pushGC(p, dt, dW, nil)
		if errs[i] == nil {
			p.Time += dt
		}
	})
	return errs
}

// StepGCAdaptive advances every running guiding-center particle by one
// error-controlled Milstein step of length dtIn[i]. The returned slice
// carries the next-step-size suggestion per lane: magnitude is the suggested
// dt, a negative sign marks a rejected step. Per the original scheme the
// kinematic state advances unconditionally; rejection only affects the
// suggestion and leaves the lane's Wiener path origin in place so the retry
// re-derives bridge-consistent noise.
func (o *Operator) StepGCAdaptive(batch []*marker.GC, dtIn []float64) ([]float64, []error) {
	dtOut := make([]float64, len(batch))
	errs := make([]error, len(batch))
	o.forEachLane(len(batch), func(i int) {
		p := batch[i]
		if p == nil || !p.Running {
			return
		}
		ln := o.laneFor(i, p.Time)
		h := dtIn[i]
		if h <= 0 {
			errs[i] = fmt.Errorf("%w: nonpositive step %g", ErrConfig, h)
			return
		}

		t0 := ln.path.Origin()
		index, err := ln.path.Generate(t0+h, ln.rng)
		if err != nil {
			errs[i] = err
			return
		}
		dW := ln.path.Increment(index)

		var adaptive adaptiveResult
		if errs[i] = o.pushGC(p, h, dW, &adaptive); errs[i] != nil {
			return
		}

		rejected := adaptive.kappaK > 1 || adaptive.kappaD0 > 1 || adaptive.kappaD1 > 1
		next := nextStep(h, adaptive)
		if rejected {
			dtOut[i] = -next
			return
		}
		p.Time = t0 + h
		ln.path.Advance(t0 + h)
		dtOut[i] = next
	})
	return dtOut, errs
}

type adaptiveResult struct {
	kappaK, kappaD0, kappaD1 float64
}

// nextStep picks the suggested step from whichever error indicator
// dominates: the drift formula when drift error leads, otherwise the
// current step scaled by (dWopt/|dW|)^2, where dWopt = 0.9|dW|kappa^(-1/3)
// is the increment magnitude that would have met the tolerance. The realized
// increment enters through kappa, so an oversized committed draw forces a
// smaller retry, and any indicator above one yields a suggestion strictly
// below the current step. Growth on accepted steps is capped at 1.5h.
func nextStep(h float64, a adaptiveResult) float64 {
	const grow = 1.5
	var next float64
	switch {
	case a.kappaK >= a.kappaD0 && a.kappaK >= a.kappaD1:
		if a.kappaK == 0 {
			return grow * h
		}
		next = 0.8 * h / math.Sqrt(a.kappaK)
	case a.kappaD0 >= a.kappaD1:
		r := 0.9 * math.Pow(a.kappaD0, -1.0/3)
		next = r * r * h
	default:
		r := 0.9 * math.Pow(a.kappaD1, -1.0/3)
		next = r * r * h
	}
	if next > grow*h {
		next = grow * h
	}
	return next
}

// pushGC performs the shared guiding-center step body: background refresh,
// coefficient evaluation, push, and post-step state recomputation. When
// adaptive is non-nil the Milstein scheme runs and the error indicators are
// filled in; otherwise Euler-Maruyama.
func (o *Operator) pushGC(p *marker.GC, h float64, dW [NDim]float64, adaptive *adaptiveResult) error {
	sample, err := plasma.EvalSample(o.bg, p.Position(), p.Time)
	if err != nil {
		return err
	}
	va, xi, err := p.SpeedPitch(sample.BNorm)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNumerical, err)
	}

	var clog [plasma.MaxSpecies]float64
	var coefs [plasma.MaxSpecies]GCCoefs
	EvalCoulombLog(p.Mass, p.Charge, va, o.species, &sample, clog[:sample.NSpecies])
	if err := EvalGC(p.Mass, p.Charge, va, xi, sample.BNorm, o.species, &sample, clog[:sample.NSpecies], coefs[:sample.NSpecies]); err != nil {
		return err
	}
	k, nu, dpara, dx, dq, ddpara := sumGC(coefs[:], sample.NSpecies)

	bhat := plasma.CylToXYZ(sample.B, p.Phi).Scale(1 / sample.BNorm)
	cutoff := 0.1 * math.Sqrt(sample.Temp[0]/p.Mass)
	in := gcState{V: va, Xi: xi, X: p.XYZ()}

	var out gcState
	if adaptive != nil {
		out, adaptive.kappaK, adaptive.kappaD0, adaptive.kappaD1, err =
			pushGCMI(k, nu, dpara, dx, dq, ddpara, bhat, h, dW, in, cutoff, o.tol)
	} else {
		out, err = pushGCEM(k, nu, dpara, dx, bhat, h, dW, in, cutoff)
	}
	if err != nil {
		return err
	}

	// Unwrapped angle bookkeeping before the position is overwritten.
	r0, z0, phi0 := p.R, p.Z, p.Phi
	p.R = math.Hypot(out.X[0], out.X[1])
	p.Z = out.X[2]
	p.Phi = phi0 + wrapDelta(math.Atan2(out.X[1], out.X[0])-phi0)

	axisR, axisZ := o.bg.Axis(p.Phi)
	p.Pol += math.Atan2(
		(r0-axisR)*(p.Z-axisZ)-(z0-axisZ)*(p.R-axisR),
		(r0-axisR)*(p.R-axisR)+(z0-axisZ)*(p.Z-axisZ),
	)

	// Refresh the field at the new position for the moment decomposition.
	bnorm := sample.BNorm
	if _, bn, err := o.bg.EvalB(p.Position()); err == nil {
		bnorm = bn
	} else {
		p.SetSpeedPitch(out.V, out.Xi, bnorm)
		return err
	}
	p.SetSpeedPitch(out.V, out.Xi, bnorm)
	return nil
}

// wrapDelta maps an angle difference into (-pi, pi] so cumulative angles
// accumulate winding instead of jumping at the branch cut.
func wrapDelta(d float64) float64 {
	for d > math.Pi {
		d -= plasma.TwoPi
	}
	for d <= -math.Pi {
		d += plasma.TwoPi
	}
	return d
}
