// Package run is the thin caller layer driving the collision operator over
// a batch of markers. The full orbit-following loop lives outside this
// repository; this harness only sequences collision steps, applies the
// per-lane retry/terminate policy, and records diagnostics.
package run

import (
	"context"
	"errors"
	"math"

	"github.com/plasmakit/collide/internal/coll"
	"github.com/plasmakit/collide/internal/diag"
	"github.com/plasmakit/collide/internal/marker"
	"github.com/plasmakit/collide/internal/plasma"
)

// Result collects a run's time series and outcome counters.
type Result struct {
	Times      []float64 // mean lane time per frame [s]
	MeanEnergy []float64 // [keV]
	MeanPitch  []float64
	Active     []int
	Accepted   int
	Rejected   int
	LaneErrors map[int]error
	Metrics    map[string]float64
}

// Harness sequences collision steps for one batch.
type Harness struct {
	op      *coll.Operator
	bg      plasma.Background
	metrics []diag.Metric
}

func New(op *coll.Operator, bg plasma.Background) *Harness {
	return &Harness{op: op, bg: bg}
}

func (h *Harness) AddMetric(m diag.Metric) { h.metrics = append(h.metrics, m) }

// RunGCFixed advances the batch with the fixed-step guiding-center scheme
// until every lane reaches duration or stops on an error.
func (h *Harness) RunGCFixed(ctx context.Context, batch []*marker.GC, dt, duration float64) (*Result, error) {
	res := newResult()
	steps := int(duration / dt)
	for s := 0; s < steps; s++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		errs := h.op.StepGCFixed(batch, dt)
		h.retire(batch, errs, res)
		res.Accepted += countRunning(batch)
		h.record(batch, res)
		if countRunning(batch) == 0 {
			break
		}
	}
	h.finish(res)
	return res, nil
}

// RunGCAdaptive advances the batch with the error-controlled scheme. Each
// lane carries its own step size: rejected steps retry at the suggested
// magnitude, accepted ones adopt the suggestion.
func (h *Harness) RunGCAdaptive(ctx context.Context, batch []*marker.GC, dt0, duration float64) (*Result, error) {
	res := newResult()
	dts := make([]float64, len(batch))
	for i := range dts {
		dts[i] = dt0
	}

	for countRunning(batch) > 0 {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		// clamp each lane to its remaining interval
		for i, p := range batch {
			if p == nil || !p.Running {
				continue
			}
			left := duration - p.Time
			if left <= 0 {
				p.Running = false
				continue
			}
			if dts[i] > left {
				dts[i] = left
			}
		}

		dtOut, errs := h.op.StepGCAdaptive(batch, dts)
		h.retire(batch, errs, res)

		done := true
		for i, p := range batch {
			if p == nil || !p.Running {
				continue
			}
			switch {
			case dtOut[i] < 0:
				res.Rejected++
				dts[i] = -dtOut[i]
			case dtOut[i] > 0:
				res.Accepted++
				dts[i] = dtOut[i]
			}
			if p.Time < duration {
				done = false
			} else {
				p.Running = false
			}
		}
		h.record(batch, res)
		if done {
			break
		}
	}
	h.finish(res)
	return res, nil
}

// RunFOFixed advances a full-orbit batch with the fixed-step scheme. Batch
// metrics are guiding-center observers and are not applied here.
func (h *Harness) RunFOFixed(ctx context.Context, batch []*marker.FO, dt, duration float64) (*Result, error) {
	res := newResult()
	steps := int(duration / dt)
	for s := 0; s < steps; s++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		errs := h.op.StepFOFixed(batch, dt)
		for i, err := range errs {
			if err == nil {
				continue
			}
			if _, seen := res.LaneErrors[i]; !seen {
				res.LaneErrors[i] = err
			}
			if errors.Is(err, coll.ErrDomain) || errors.Is(err, coll.ErrNumerical) {
				batch[i].Running = false
			}
		}
		n := 0
		var tsum, esum, xsum float64
		for _, p := range batch {
			if p == nil || !p.Running {
				continue
			}
			b, bnorm, err := h.bg.EvalB(plasma.Position{R: p.R, Phi: p.Phi, Z: p.Z})
			if err != nil {
				continue
			}
			v := plasma.Vec3{p.RDot, p.R * p.PhiDot, p.ZDot}
			speed := v.Norm()
			if speed == 0 {
				continue
			}
			tsum += p.Time
			esum += 0.5 * p.Mass * speed * speed / (1e3 * plasma.EVtoJ)
			xsum += v.Dot(b) / (speed * bnorm)
			n++
		}
		res.Accepted += n
		if n > 0 {
			res.Times = append(res.Times, tsum/float64(n))
			res.MeanEnergy = append(res.MeanEnergy, esum/float64(n))
			res.MeanPitch = append(res.MeanPitch, xsum/float64(n))
			res.Active = append(res.Active, n)
		}
		if n == 0 {
			break
		}
	}
	h.finish(res)
	return res, nil
}

func newResult() *Result {
	return &Result{LaneErrors: make(map[int]error), Metrics: make(map[string]float64)}
}

// retire marks lanes whose step failed as non-running; domain exits and
// path exhaustion are terminal for the lane, never for the batch.
func (h *Harness) retire(batch []*marker.GC, errs []error, res *Result) {
	for i, err := range errs {
		if err == nil {
			continue
		}
		if _, seen := res.LaneErrors[i]; !seen {
			res.LaneErrors[i] = err
		}
		if errors.Is(err, coll.ErrDomain) || errors.Is(err, coll.ErrCapacity) || errors.Is(err, coll.ErrNumerical) {
			batch[i].Running = false
		}
	}
}

func (h *Harness) record(batch []*marker.GC, res *Result) {
	var tsum, esum, xsum float64
	var n int
	for _, p := range batch {
		if p == nil || !p.Running {
			continue
		}
		e := diag.Energy(p, h.bg)
		if math.IsNaN(e) {
			continue
		}
		_, bnorm, err := h.bg.EvalB(p.Position())
		if err != nil {
			continue
		}
		_, xi, err := p.SpeedPitch(bnorm)
		if err != nil {
			continue
		}
		tsum += p.Time
		esum += e / (1e3 * plasma.EVtoJ)
		xsum += xi
		n++
	}
	if n == 0 {
		return
	}
	res.Times = append(res.Times, tsum/float64(n))
	res.MeanEnergy = append(res.MeanEnergy, esum/float64(n))
	res.MeanPitch = append(res.MeanPitch, xsum/float64(n))
	res.Active = append(res.Active, n)
	for _, m := range h.metrics {
		m.Observe(batch, h.bg, tsum/float64(n))
	}
}

func (h *Harness) finish(res *Result) {
	for _, m := range h.metrics {
		res.Metrics[m.Name()] = m.Value()
	}
}

func countRunning(batch []*marker.GC) int {
	n := 0
	for _, p := range batch {
		if p != nil && p.Running {
			n++
		}
	}
	return n
}
