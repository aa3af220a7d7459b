// Package coll implements the stochastic Coulomb-collision operator for
// charged-particle orbit tracing:
//
//   - [EvalCoulombLog], [EvalFO], [EvalGC]: closed-form Fokker-Planck
//     collision coefficients from Rosenbluth-potential integrals over a
//     Maxwellian background, with asymptotic series in the slow- and
//     fast-particle limits
//   - [WienerPath]: capacity-bounded Gaussian sample path per particle with
//     Brownian-bridge interior refinement, so step retries reuse committed
//     randomness
//   - [Operator]: batch step driver with fixed-step Euler-Maruyama pushes
//     for full-orbit and guiding-center particles and an error-controlled
//     adaptive Milstein push for guiding centers
//
// Particles are processed as independent lanes: per-lane seeded randomness,
// per-lane Wiener path, per-lane error reporting. Nothing in this package
// performs blocking I/O; the only external call is the background lookup.
package coll
