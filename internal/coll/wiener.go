package coll

import (
	"math"

	"github.com/plasmakit/collide/internal/randn"
)

// NDim is the dimension of the collision Wiener process: three spatial
// components, one for speed and one for pitch.
const NDim = 5

// DefaultWienerCapacity bounds the number of knots a path may hold between
// accepted steps. Exceeding it is an error, never a reallocation.
const DefaultWienerCapacity = 32

// WienerKnot is one recorded point of the process.
type WienerKnot struct {
	Time float64
	W    [NDim]float64
}

// WienerPath is a growable, time-ordered sample path of a 5-dimensional
// Wiener process for one particle. Knot 0 is the path origin with a zero
// vector; knot times are strictly increasing. The path is exclusively owned
// by one particle slot and must be Reset, not overwritten, on slot reuse.
//
// Interior queries use Brownian-bridge conditional sampling, so re-querying
// any previously generated time yields the identical value. That consistency
// is what makes a rejected-and-retried smaller step statistically valid: the
// retry reuses the coarse randomness already committed instead of redrawing.
type WienerPath struct {
	knots []WienerKnot
	cap   int
}

// NewWienerPath creates a path with a single zero knot at t0.
func NewWienerPath(t0 float64, capacity int) *WienerPath {
	if capacity <= 0 {
		capacity = DefaultWienerCapacity
	}
	p := &WienerPath{knots: make([]WienerKnot, 1, capacity), cap: capacity}
	p.knots[0].Time = t0
	return p
}

// Reset discards the whole path and restarts it at t0 with a zero vector.
func (p *WienerPath) Reset(t0 float64) {
	p.knots = p.knots[:1]
	p.knots[0] = WienerKnot{Time: t0}
}

// Origin returns the current origin time of the path.
func (p *WienerPath) Origin() float64 {
	return p.knots[0].Time
}

// Len returns the number of stored knots.
func (p *WienerPath) Len() int {
	return len(p.knots)
}

// At returns the knot at index i.
func (p *WienerPath) At(i int) WienerKnot {
	return p.knots[i]
}

// Generate returns the index of the knot at time t, creating it if needed.
// Times beyond the last knot extend the path with a fresh scaled draw; times
// strictly between two knots are filled in by Brownian-bridge sampling.
// Times before the origin are an error, as is exceeding the capacity.
func (p *WienerPath) Generate(t float64, src randn.Source) (int, error) {
	last := len(p.knots) - 1
	if t < p.knots[0].Time {
		return 0, ErrPathOrigin
	}

	// exact hits return the committed knot untouched
	lo := 0
	for i := last; i >= 0; i-- {
		if p.knots[i].Time == t {
			return i, nil
		}
		if p.knots[i].Time < t {
			lo = i
			break
		}
	}

	if len(p.knots) == p.cap {
		return 0, ErrCapacity
	}

	var rnd [NDim]float64
	src.Fill(rnd[:])

	if t > p.knots[last].Time {
		// extend: W(t) = W(t_last) + sqrt(t - t_last) * N(0, I)
		s := math.Sqrt(t - p.knots[last].Time)
		knot := WienerKnot{Time: t}
		for d := 0; d < NDim; d++ {
			knot.W[d] = p.knots[last].W[d] + s*rnd[d]
		}
		p.knots = append(p.knots, knot)
		return len(p.knots) - 1, nil
	}

	// bridge between lo and lo+1: conditional mean is the time-weighted
	// interpolation, variance (t2-t)(t-t1)/(t2-t1) per dimension
	k1, k2 := p.knots[lo], p.knots[lo+1]
	frac := (t - k1.Time) / (k2.Time - k1.Time)
	s := math.Sqrt((k2.Time - t) * (t - k1.Time) / (k2.Time - k1.Time))
	knot := WienerKnot{Time: t}
	for d := 0; d < NDim; d++ {
		knot.W[d] = k1.W[d] + frac*(k2.W[d]-k1.W[d]) + s*rnd[d]
	}
	p.knots = append(p.knots, WienerKnot{})
	copy(p.knots[lo+2:], p.knots[lo+1:])
	p.knots[lo+1] = knot
	return lo + 1, nil
}

// Increment returns W(index) - W(origin) for the driver's noise vector.
func (p *WienerPath) Increment(index int) [NDim]float64 {
	var dw [NDim]float64
	for d := 0; d < NDim; d++ {
		dw[d] = p.knots[index].W[d] - p.knots[0].W[d]
	}
	return dw
}

// Advance drops all knots strictly before t and rebases the survivors so the
// new earliest knot is the zero-vector origin. Called after an accepted step;
// differences between surviving knots are unchanged, so bridge consistency of
// later interior queries is preserved.
func (p *WienerPath) Advance(t float64) {
	keep := 0
	for keep < len(p.knots)-1 && p.knots[keep+1].Time <= t {
		keep++
	}
	if keep == 0 {
		return
	}
	base := p.knots[keep].W
	n := copy(p.knots, p.knots[keep:])
	p.knots = p.knots[:n]
	for i := range p.knots {
		for d := 0; d < NDim; d++ {
			p.knots[i].W[d] -= base[d]
		}
	}
}
