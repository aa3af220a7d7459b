package run_test

import (
	"context"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/plasmakit/collide/internal/coll"
	"github.com/plasmakit/collide/internal/config"
	"github.com/plasmakit/collide/internal/diag"
	"github.com/plasmakit/collide/internal/marker"
	"github.com/plasmakit/collide/internal/plasma"
	"github.com/plasmakit/collide/internal/run"
)

// newBatch places n identical fusion alphas on the rho=0.3 surface.
func newBatch(bg plasma.Background, n int) []*marker.GC {
	sp := plasma.Alpha()
	v := math.Sqrt(2 * 3.5e6 * plasma.EVtoJ / sp.Mass)
	batch := make([]*marker.GC, n)
	for i := range batch {
		p := &marker.GC{
			Mass:    sp.Mass,
			Charge:  sp.Charge,
			R:       6.8,
			Z:       0,
			Running: true,
		}
		_, bnorm, err := bg.EvalB(p.Position())
		Expect(err).NotTo(HaveOccurred())
		p.SetSpeedPitch(v, 0.7, bnorm)
		batch[i] = p
	}
	return batch
}

var _ = Describe("Harness", func() {
	var (
		bg *plasma.Analytic
		op *coll.Operator
		h  *run.Harness
	)

	BeforeEach(func() {
		var err error
		bg, err = config.DefaultConfig().Background()
		Expect(err).NotTo(HaveOccurred())
		op, err = coll.New(bg, coll.Options{Seed: 314, Workers: 2})
		Expect(err).NotTo(HaveOccurred())
		h = run.New(op, bg)
	})

	Describe("fixed-step runs", func() {
		It("advances every lane to the full duration", func() {
			batch := newBatch(bg, 8)
			res, err := h.RunGCFixed(context.Background(), batch, 1e-6, 1e-4)
			Expect(err).NotTo(HaveOccurred())

			Expect(res.LaneErrors).To(BeEmpty())
			for _, p := range batch {
				Expect(p.Time).To(BeNumerically("~", 1e-4, 1e-9))
			}
			Expect(res.Active[len(res.Active)-1]).To(Equal(8))
		})

		It("retires a lane that leaves the plasma without touching the rest", func() {
			batch := newBatch(bg, 8)
			const bad = 5
			batch[bad].R = 12.0 // outside the last closed surface

			res, err := h.RunGCFixed(context.Background(), batch, 1e-6, 1e-4)
			Expect(err).NotTo(HaveOccurred())

			Expect(res.LaneErrors).To(HaveLen(1))
			Expect(res.LaneErrors[bad]).To(MatchError(coll.ErrDomain))
			Expect(batch[bad].Running).To(BeFalse())
			Expect(batch[bad].Time).To(BeZero())

			for i, p := range batch {
				if i == bad {
					continue
				}
				Expect(p.Time).To(BeNumerically("~", 1e-4, 1e-9), "lane %d", i)
			}
		})

		It("honors context cancellation", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := h.RunGCFixed(ctx, newBatch(bg, 2), 1e-6, 1e-3)
			Expect(err).To(MatchError(context.Canceled))
		})
	})

	Describe("full-orbit runs", func() {
		It("advances the batch and records energy and pitch series", func() {
			sp := plasma.Alpha()
			v := math.Sqrt(2 * 3.5e6 * plasma.EVtoJ / sp.Mass)
			batch := make([]*marker.FO, 4)
			for i := range batch {
				batch[i] = &marker.FO{
					Mass: sp.Mass, Charge: sp.Charge,
					R: 6.8, Z: 0,
					RDot: 0.6 * v, ZDot: 0.8 * v,
					Running: true,
				}
			}

			res, err := h.RunFOFixed(context.Background(), batch, 1e-7, 1e-5)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.LaneErrors).To(BeEmpty())
			Expect(res.MeanEnergy).NotTo(BeEmpty())
			Expect(res.MeanEnergy[0]).To(BeNumerically("~", 3500, 200))
			Expect(res.MeanPitch[0]).To(BeNumerically("<=", 1))
			Expect(res.MeanPitch[0]).To(BeNumerically(">=", -1))
			for _, p := range batch {
				Expect(p.Time).To(BeNumerically("~", 1e-5, 1e-10))
			}
		})
	})

	Describe("adaptive runs", func() {
		It("completes the interval with accepted steps and exact endpoint landing", func() {
			batch := newBatch(bg, 8)
			res, err := h.RunGCAdaptive(context.Background(), batch, 1e-7, 2e-3)
			Expect(err).NotTo(HaveOccurred())

			Expect(res.LaneErrors).To(BeEmpty())
			Expect(res.Accepted).To(BeNumerically(">", 0))
			for i, p := range batch {
				// the last step is clamped, so lanes land on the endpoint
				Expect(p.Time).To(BeNumerically("~", 2e-3, 1e-12), "lane %d", i)
				Expect(p.Running).To(BeFalse())
			}
		})

		It("slows a fast alpha down on average", func() {
			batch := newBatch(bg, 16)
			res, err := h.RunGCAdaptive(context.Background(), batch, 1e-7, 5e-3)
			Expect(err).NotTo(HaveOccurred())

			Expect(res.MeanEnergy).NotTo(BeEmpty())
			first := res.MeanEnergy[0]
			last := res.MeanEnergy[len(res.MeanEnergy)-1]
			Expect(first).To(BeNumerically("<", 3500*1.02))
			Expect(last).To(BeNumerically("<", first))
		})

		It("keeps a retried lane statistically alive after rejections", func() {
			batch := newBatch(bg, 4)
			res, err := h.RunGCAdaptive(context.Background(), batch, 2e-3, 2e-3)
			Expect(err).NotTo(HaveOccurred())

			// an oversized opening step is shrunk and retried as needed;
			// every lane still finishes cleanly
			Expect(res.LaneErrors).To(BeEmpty())
			for _, p := range batch {
				Expect(p.Time).To(BeNumerically("~", 2e-3, 1e-12))
			}
		})

		It("records metrics over the run", func() {
			h.AddMetric(&diag.MeanEnergy{})
			h.AddMetric(&diag.MeanPitch{})

			batch := newBatch(bg, 4)
			res, err := h.RunGCAdaptive(context.Background(), batch, 1e-7, 5e-4)
			Expect(err).NotTo(HaveOccurred())

			Expect(res.Metrics).To(HaveKey("mean_energy_kev"))
			Expect(res.Metrics["mean_energy_kev"]).To(BeNumerically(">", 0))
			Expect(res.Metrics).To(HaveKey("mean_pitch"))
			Expect(res.Metrics["mean_pitch"]).To(BeNumerically("~", 0.7, 0.2))
		})
	})

	Describe("adaptive step control", func() {
		It("settles the suggested step instead of oscillating indefinitely", func() {
			// cold sparse plasma, purely parallel deuteron
			keV := 1e3 * plasma.EVtoJ
			cold, err := plasma.NewAnalytic(6.2, 0, 2.0, 5.3, 1.7, []plasma.SpeciesProfile{
				{
					Species: plasma.Electron(),
					Density: plasma.Profile{Core: 1e19, Edge: 1e19, Exp: 1},
					Temp:    plasma.Profile{Core: keV, Edge: keV, Exp: 1},
				},
				{
					Species: plasma.Deuterium(),
					Density: plasma.Profile{Core: 1e19, Edge: 1e19, Exp: 1},
					Temp:    plasma.Profile{Core: keV, Edge: keV, Exp: 1},
				},
			})
			Expect(err).NotTo(HaveOccurred())
			op, err := coll.New(cold, coll.Options{Seed: 99, Workers: 1, Tolerance: 1e-2})
			Expect(err).NotTo(HaveOccurred())

			sp := plasma.Deuterium()
			p := &marker.GC{
				Mass:    sp.Mass,
				Charge:  sp.Charge,
				R:       6.8,
				VPar:    math.Sqrt(2 * 10 * keV / sp.Mass), // mu = 0, all parallel
				Running: true,
			}
			batch := []*marker.GC{p}
			dts := []float64{1e-8}

			var accepted []float64
			for iter := 0; iter < 4000 && len(accepted) < 120; iter++ {
				dtOut, errs := op.StepGCAdaptive(batch, dts)
				Expect(errs[0]).NotTo(HaveOccurred())
				if dtOut[0] > 0 {
					accepted = append(accepted, dtOut[0])
					dts[0] = dtOut[0]
				} else {
					dts[0] = -dtOut[0]
				}
			}
			Expect(len(accepted)).To(BeNumerically(">=", 120))

			// after a warmup the suggestions stay inside a narrow band and
			// stop trending: the control law contracts toward its target
			tail := accepted[len(accepted)-50:]
			lo, hi := tail[0], tail[0]
			var early, late float64
			for i, dt := range tail {
				Expect(dt).To(BeNumerically(">", 0))
				Expect(math.IsInf(dt, 0)).To(BeFalse())
				lo = math.Min(lo, dt)
				hi = math.Max(hi, dt)
				if i < 25 {
					early += dt
				} else {
					late += dt
				}
			}
			Expect(hi / lo).To(BeNumerically("<", 10))
			Expect(late / early).To(BeNumerically("~", 1, 0.5))
		})
	})
})
