package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/plasmakit/collide/internal/coll"
	"github.com/plasmakit/collide/internal/config"
	"github.com/plasmakit/collide/internal/diag"
	"github.com/plasmakit/collide/internal/marker"
	"github.com/plasmakit/collide/internal/plasma"
	"github.com/plasmakit/collide/internal/run"
	"github.com/plasmakit/collide/internal/storage"
	"github.com/plasmakit/collide/internal/viz"
)

var (
	dataDir    string
	configFile string
	scheme     string
	dt         float64
	duration   float64
	tolerance  float64
	seed       int64
	markers    int
	energyKeV  float64
	pitch      float64
	rho        float64
	frameRate  int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "collide",
		Short: "Coulomb-collision operator for charged-particle tracing",
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".collide", "data directory")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a collisional slowing-down batch",
		RunE:  runBatch,
	}
	runCmd.Flags().StringVar(&scheme, "scheme", "", "stepping scheme (gc-fixed, gc-adaptive, fo-fixed)")
	runCmd.Flags().Float64Var(&dt, "dt", 0, "initial timestep [s]")
	runCmd.Flags().Float64Var(&duration, "time", 0, "duration [s]")
	runCmd.Flags().Float64Var(&tolerance, "tol", 0, "adaptive error tolerance")
	runCmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "random seed")
	runCmd.Flags().IntVar(&markers, "markers", 0, "batch size")
	runCmd.Flags().Float64Var(&energyKeV, "energy", 0, "test particle energy [keV]")
	runCmd.Flags().Float64Var(&pitch, "pitch", 0, "test particle pitch")
	runCmd.Flags().Float64Var(&rho, "rho", 0, "starting flux label")

	coefsCmd := &cobra.Command{
		Use:   "coefs",
		Short: "print collision coefficients over an energy scan",
		RunE:  printCoefs,
	}
	coefsCmd.Flags().Float64Var(&rho, "rho", 0, "flux label for the background sample")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "run the adaptive batch under a live display",
		RunE:  runLive,
	}
	liveCmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "random seed")
	liveCmd.Flags().IntVar(&frameRate, "fps", 30, "frame rate")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored run's energy and pitch series",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	rootCmd.AddCommand(runCmd, coefsCmd, liveCmd, listCmd, plotCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	if scheme != "" {
		cfg.Scheme = scheme
	}
	if cmd.Flags().Changed("dt") {
		cfg.Dt = dt
	}
	if cmd.Flags().Changed("time") {
		cfg.Duration = duration
	}
	if cmd.Flags().Changed("tol") {
		cfg.Tolerance = tolerance
	}
	if cmd.Flags().Changed("markers") {
		cfg.Markers = markers
	}
	if cmd.Flags().Changed("energy") {
		cfg.Test.EnergyKeV = energyKeV
	}
	if cmd.Flags().Changed("pitch") {
		cfg.Test.Pitch = pitch
	}
	if cmd.Flags().Changed("rho") {
		cfg.Test.Rho = rho
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = seed
	}
	return cfg, nil
}

type session struct {
	cfg   *config.Config
	bg    *plasma.Analytic
	op    *coll.Operator
	batch []*marker.GC
}

// newSession builds the background, operator and a poloidally distributed
// batch of guiding-center markers from the configuration.
func newSession(cfg *config.Config) (*session, error) {
	bg, err := cfg.Background()
	if err != nil {
		return nil, err
	}
	op, err := coll.New(bg, coll.Options{Tolerance: cfg.Tolerance, Seed: cfg.Seed})
	if err != nil {
		return nil, err
	}
	sp, err := cfg.TestSpecies()
	if err != nil {
		return nil, err
	}

	v := math.Sqrt(2 * cfg.Test.EnergyKeV * 1e3 * plasma.EVtoJ / sp.Mass)
	batch := make([]*marker.GC, cfg.Markers)
	for i := range batch {
		theta := plasma.TwoPi * float64(i) / float64(cfg.Markers)
		r := cfg.Field.R0 + cfg.Test.Rho*cfg.Field.A*math.Cos(theta)
		z := cfg.Field.Z0 + cfg.Test.Rho*cfg.Field.A*math.Sin(theta)
		p := &marker.GC{
			Mass:    sp.Mass,
			Charge:  sp.Charge,
			R:       r,
			Z:       z,
			Running: true,
		}
		_, bnorm, err := bg.EvalB(p.Position())
		if err != nil {
			return nil, err
		}
		p.SetSpeedPitch(v, cfg.Test.Pitch, bnorm)
		batch[i] = p
	}
	return &session{cfg: cfg, bg: bg, op: op, batch: batch}, nil
}

// foBatch distributes full-orbit markers the way newSession does for
// guiding centers: velocity split into parallel and perpendicular parts
// against the local field direction.
func foBatch(cfg *config.Config, bg *plasma.Analytic) ([]*marker.FO, error) {
	sp, err := cfg.TestSpecies()
	if err != nil {
		return nil, err
	}
	v := math.Sqrt(2 * cfg.Test.EnergyKeV * 1e3 * plasma.EVtoJ / sp.Mass)
	xi := cfg.Test.Pitch

	batch := make([]*marker.FO, cfg.Markers)
	for i := range batch {
		theta := plasma.TwoPi * float64(i) / float64(cfg.Markers)
		r := cfg.Field.R0 + cfg.Test.Rho*cfg.Field.A*math.Cos(theta)
		z := cfg.Field.Z0 + cfg.Test.Rho*cfg.Field.A*math.Sin(theta)
		b, bnorm, err := bg.EvalB(plasma.Position{R: r, Z: z})
		if err != nil {
			return nil, err
		}
		bhat := b.Scale(1 / bnorm)
		// perpendicular unit vector in the local (R, phi, z) triad
		perp := plasma.Vec3{-bhat[1], bhat[0], 0}
		perp = perp.Scale(1 / perp.Norm())
		vel := bhat.Scale(v * xi).Add(perp.Scale(v * math.Sqrt(1-xi*xi)))
		batch[i] = &marker.FO{
			Mass:    sp.Mass,
			Charge:  sp.Charge,
			R:       r,
			Z:       z,
			RDot:    vel[0],
			PhiDot:  vel[1] / r,
			ZDot:    vel[2],
			Running: true,
		}
	}
	return batch, nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	s, err := newSession(cfg)
	if err != nil {
		return err
	}

	h := run.New(s.op, s.bg)

	var res *run.Result
	switch cfg.Scheme {
	case "gc-adaptive":
		h.AddMetric(&diag.MeanEnergy{})
		h.AddMetric(&diag.MeanPitch{})
		res, err = h.RunGCAdaptive(context.Background(), s.batch, cfg.Dt, cfg.Duration)
	case "gc-fixed":
		h.AddMetric(&diag.MeanEnergy{})
		h.AddMetric(&diag.MeanPitch{})
		res, err = h.RunGCFixed(context.Background(), s.batch, cfg.Dt, cfg.Duration)
	case "fo-fixed":
		var batch []*marker.FO
		batch, err = foBatch(cfg, s.bg)
		if err != nil {
			return err
		}
		res, err = h.RunFOFixed(context.Background(), batch, cfg.Dt, cfg.Duration)
	default:
		return fmt.Errorf("unknown scheme: %s", cfg.Scheme)
	}
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(cfg.Scheme, cfg.Dt, cfg.Duration, cfg.Seed, cfg.Markers, res)
	if err != nil {
		return err
	}

	fmt.Println(viz.Header("collide run " + runID))
	fmt.Println(viz.Series("mean energy [keV]", viz.Downsample(res.MeanEnergy, 360), 72, 12))
	fmt.Println(viz.Summary(
		viz.KeyValue("scheme", "%s", cfg.Scheme),
		viz.KeyValue("markers", "%d", cfg.Markers),
		viz.KeyValue("accepted", "%d", res.Accepted),
		viz.KeyValue("rejected", "%d", res.Rejected),
		viz.KeyValue("mean energy", "%.1f keV", res.Metrics["mean_energy_kev"]),
		viz.KeyValue("mean pitch", "%+.3f", res.Metrics["mean_pitch"]),
	))
	for lane, laneErr := range res.LaneErrors {
		fmt.Println(viz.ErrorLine(lane, coll.Describe(laneErr)))
	}
	return nil
}

func printCoefs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	s, err := newSession(cfg)
	if err != nil {
		return err
	}
	sp, err := cfg.TestSpecies()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "E [keV]\tspecies\tlnL\tDpara\tK\tnu")
	for _, ekev := range []float64{1, 10, 100, 1000, 3500} {
		v := math.Sqrt(2 * ekev * 1e3 * plasma.EVtoJ / sp.Mass)
		p := *s.batch[0]
		_, bnorm, err := s.bg.EvalB(p.Position())
		if err != nil {
			return err
		}
		p.SetSpeedPitch(v, cfg.Test.Pitch, bnorm)
		coefs, err := s.op.EvaluateGC(&p)
		if err != nil {
			return err
		}
		for j, c := range coefs {
			fmt.Fprintf(w, "%.0f\t%s\t%.2f\t%.3e\t%.3e\t%.3e\n",
				ekev, cfg.Species[j].Name, c.CLog, c.Dpara, c.K, c.Nu)
		}
	}
	return w.Flush()
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	s, err := newSession(cfg)
	if err != nil {
		return err
	}

	dts := make([]float64, len(s.batch))
	for i := range dts {
		dts[i] = cfg.Dt
	}
	accepted, rejected := 0, 0

	step := func() (viz.Frame, bool) {
		dtOut, errs := s.op.StepGCAdaptive(s.batch, dts)
		var frame viz.Frame
		var esum, xsum, tsum float64
		for i, p := range s.batch {
			if errs[i] != nil {
				p.Running = false
				continue
			}
			if !p.Running {
				continue
			}
			switch {
			case dtOut[i] < 0:
				rejected++
				dts[i] = -dtOut[i]
			case dtOut[i] > 0:
				accepted++
				dts[i] = dtOut[i]
			}
			if p.Time >= cfg.Duration {
				p.Running = false
				continue
			}
			_, bnorm, berr := s.bg.EvalB(p.Position())
			if berr != nil {
				continue
			}
			_, xi, perr := p.SpeedPitch(bnorm)
			e := diag.Energy(p, s.bg)
			if perr == nil && !math.IsNaN(e) {
				esum += e / (1e3 * plasma.EVtoJ)
				tsum += p.Time
				xsum += xi
				frame.Active++
			}
		}
		if frame.Active > 0 {
			frame.MeanEnergy = esum / float64(frame.Active)
			frame.MeanPitch = xsum / float64(frame.Active)
			frame.T = tsum / float64(frame.Active)
		}
		frame.Accepted = accepted
		frame.Rejected = rejected
		return frame, frame.Active == 0
	}
	return viz.RunLive(step, frameRate)
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "id\tscheme\tmarkers\taccepted\trejected\twhen")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
			r.ID, r.Scheme, r.Markers, r.Accepted, r.Rejected, r.Timestamp.Format(time.RFC3339))
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	_, energy, pitch, err := st.LoadSeries(args[0])
	if err != nil {
		return err
	}
	fmt.Println(viz.Series("mean energy [keV]", viz.Downsample(energy, 360), 72, 12))
	fmt.Println(viz.Series("mean pitch", viz.Downsample(pitch, 360), 72, 12))
	return nil
}
