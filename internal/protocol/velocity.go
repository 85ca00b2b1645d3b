package protocol

import (
	"math"
	"math/rand"

	"github.com/otmiM/polymatic/internal/thermo"
	"github.com/otmiM/polymatic/internal/topology"
	"github.com/otmiM/polymatic/internal/units"
)

// AssignVelocities draws velocities from a Maxwell-Boltzmann distribution at
// the given temperature with a deterministic seed, removes the net momentum,
// and rescales so the kinetic temperature matches the target exactly.
func AssignVelocities(sys *topology.System, temp float64, seed int64) {
	if sys.N == 0 || temp <= 0 {
		return
	}
	rng := rand.New(rand.NewSource(seed))

	for i := 0; i < sys.N; i++ {
		std := math.Sqrt(units.Boltz * temp / (sys.Mass[i] * units.Mvv2e))
		sys.Vel[3*i] = std * rng.NormFloat64()
		sys.Vel[3*i+1] = std * rng.NormFloat64()
		sys.Vel[3*i+2] = std * rng.NormFloat64()
	}

	// Subtract the center-of-mass velocity so the box does not drift.
	var p [3]float64
	var mtot float64
	for i := 0; i < sys.N; i++ {
		mtot += sys.Mass[i]
		for k := 0; k < 3; k++ {
			p[k] += sys.Mass[i] * sys.Vel[3*i+k]
		}
	}
	for i := 0; i < sys.N; i++ {
		for k := 0; k < 3; k++ {
			sys.Vel[3*i+k] -= p[k] / mtot
		}
	}

	cur := thermo.Temperature(sys)
	if cur <= 0 {
		return
	}
	s := math.Sqrt(temp / cur)
	for i := range sys.Vel {
		sys.Vel[i] *= s
	}
}
