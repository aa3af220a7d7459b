// Package plasma provides the background description consumed by the
// collision operator:
//
//   - [Species]: static identity (mass, charge) of a background species
//   - [Sample]: local density, temperature and magnetic field at a point
//   - [Background]: provider interface for flux label, profiles and field
//   - [Analytic]: circular-cross-section tokamak background with parabolic
//     profiles, sufficient for demos and tests
//
// Species 0 is always the electron species. Temperatures in a [Sample] are
// in joules; configuration surfaces use eV and convert on load.
package plasma
