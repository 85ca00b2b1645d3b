// Package units defines the "real" unit system used throughout the engine:
// masses in g/mol, distances in Angstroms, time in femtoseconds, energies in
// kcal/mol, temperature in Kelvin, pressure in atmospheres, charge in
// multiples of the electron charge.
package units

const (
	// Boltz is the Boltzmann constant in kcal/mol/K.
	Boltz = 0.0019872067

	// Mvv2e converts mass*velocity^2 (g/mol * (A/fs)^2) to kcal/mol.
	Mvv2e = 48.88821291 * 48.88821291

	// Ftm2v converts force/mass (kcal/mol/A / (g/mol)) to acceleration (A/fs^2).
	Ftm2v = 1.0 / Mvv2e

	// Qqr2e converts charge^2/distance (e^2/A) to energy (kcal/mol).
	Qqr2e = 332.06371

	// Nktv2p converts energy density (kcal/mol/A^3) to pressure (atm).
	Nktv2p = 68568.415
)
