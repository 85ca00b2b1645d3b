package integrate

import (
	"math"

	"github.com/otmiM/polymatic/internal/topology"
	"github.com/otmiM/polymatic/internal/units"
)

// NoseHoover is an extended-Lagrangian thermostat: a friction variable zeta
// is driven by the error between instantaneous and target kinetic
// temperature, with a response timescale set by the damping time (fs). The
// target may ramp linearly from Tstart to Tstop over the run, reaching Tstop
// by the final step.
type NoseHoover struct {
	name   string
	Tstart float64
	Tstop  float64
	Tdamp  float64

	zeta float64
}

func NewNoseHoover(name string, tstart, tstop, tdamp float64) *NoseHoover {
	return &NoseHoover{name: name, Tstart: tstart, Tstop: tstop, Tdamp: tdamp}
}

func (nh *NoseHoover) Name() string { return nh.name }

// Target is the ramped set point at the given run progress.
func (nh *NoseHoover) Target(progress float64) float64 {
	return nh.Tstart + (nh.Tstop-nh.Tstart)*progress
}

func (nh *NoseHoover) Scale(temp, progress, dt float64) float64 {
	target := nh.Target(progress)
	if target <= 0 {
		return 1
	}
	nh.zeta += (temp/target - 1) / (nh.Tdamp * nh.Tdamp) * 0.5 * dt
	return math.Exp(-nh.zeta * 0.5 * dt)
}

// Isobaric is an extended-variable isotropic barostat: a strain rate couples
// to the deviation between internal and target pressure (atm) with its own
// ramp and damping time (fs). All three box lengths scale identically and
// positions are rescaled about the box center; velocities are untouched.
type Isobaric struct {
	name   string
	Pstart float64
	Pstop  float64
	Pdamp  float64

	epsDot float64
}

func NewIsobaric(name string, pstart, pstop, pdamp float64) *Isobaric {
	return &Isobaric{name: name, Pstart: pstart, Pstop: pstop, Pdamp: pdamp}
}

func (b *Isobaric) Name() string { return b.name }

func (b *Isobaric) Target(progress float64) float64 {
	return b.Pstart + (b.Pstop-b.Pstart)*progress
}

func (b *Isobaric) Adjust(sys *topology.System, press, temp, progress, dt float64) {
	target := b.Target(progress)
	vol := sys.Box.Volume()

	// Extended-variable mass in kcal/mol fs^2, tied to the damping time.
	if temp < 1 {
		temp = 1
	}
	mass := (float64(sys.N) + 1) * units.Boltz * temp * b.Pdamp * b.Pdamp
	force := 3 * vol * (press - target) / units.Nktv2p
	b.epsDot += force / mass * dt

	mu := math.Exp(b.epsDot * dt)
	// Bound the per-step dilation; a pathological pressure spike must not
	// collapse or explode the cell in one step.
	if mu > 1.05 {
		mu = 1.05
	} else if mu < 0.95 {
		mu = 0.95
	}

	var center [3]float64
	for k := 0; k < 3; k++ {
		center[k] = sys.Box.Origin[k] + 0.5*sys.Box.L[k]
	}
	sys.Box.Scale(mu)
	for i := 0; i < sys.N; i++ {
		for k := 0; k < 3; k++ {
			sys.Pos[3*i+k] = center[k] + (sys.Pos[3*i+k]-center[k])*mu
		}
	}
}
