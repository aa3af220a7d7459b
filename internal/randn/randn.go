// Package randn provides seedable standard-normal draw sources. Every
// consumer of randomness takes an explicit [Source] so runs are reproducible
// per particle and tests can inject fixed sequences.
package randn

import "math/rand"

// Source yields batches of independent standard-normal draws.
type Source interface {
	// Fill overwrites buf with standard-normal draws.
	Fill(buf []float64)
}

// Generator is the default math/rand-backed source.
type Generator struct {
	rng *rand.Rand
}

func New(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

func (g *Generator) Fill(buf []float64) {
	for i := range buf {
		buf[i] = g.rng.NormFloat64()
	}
}

// Fixed replays a pre-set sequence, cycling when exhausted. Test helper.
type Fixed struct {
	Values []float64
	next   int
}

func (f *Fixed) Fill(buf []float64) {
	for i := range buf {
		if len(f.Values) == 0 {
			buf[i] = 0
			continue
		}
		buf[i] = f.Values[f.next%len(f.Values)]
		f.next++
	}
}
