package integrate

import (
	"github.com/otmiM/polymatic/internal/forcefield"
	"github.com/otmiM/polymatic/internal/thermo"
	"github.com/otmiM/polymatic/internal/topology"
	"github.com/otmiM/polymatic/internal/units"
)

// VelocityVerlet advances the system with a fixed-timestep velocity-Verlet
// scheme: half-kick, drift, force recomputation, half-kick. Attached
// thermostats modify the half-kicks; an attached barostat adjusts the box
// once per step after the force reduction.
type VelocityVerlet struct {
	sys  *topology.System
	eval *forcefield.Evaluator
	Dt   float64 // fs

	couplings *Registry
	last      forcefield.Result
	ready     bool
}

func NewVelocityVerlet(sys *topology.System, eval *forcefield.Evaluator, dt float64) *VelocityVerlet {
	return &VelocityVerlet{sys: sys, eval: eval, Dt: dt, couplings: NewRegistry()}
}

func (vv *VelocityVerlet) Couplings() *Registry    { return vv.couplings }
func (vv *VelocityVerlet) Last() forcefield.Result { return vv.last }

// Init performs the initial force evaluation. It is called implicitly by the
// first Step if omitted.
func (vv *VelocityVerlet) Init() error {
	res, err := vv.eval.Compute()
	if err != nil {
		return err
	}
	vv.last = res
	vv.ready = true
	return nil
}

func (vv *VelocityVerlet) halfKick() {
	sys := vv.sys
	h := 0.5 * vv.Dt * units.Ftm2v
	for i := 0; i < sys.N; i++ {
		s := h / sys.Mass[i]
		sys.Vel[3*i] += s * sys.Force[3*i]
		sys.Vel[3*i+1] += s * sys.Force[3*i+1]
		sys.Vel[3*i+2] += s * sys.Force[3*i+2]
	}
}

func (vv *VelocityVerlet) scaleVelocities(s float64) {
	if s == 1 {
		return
	}
	for i := range vv.sys.Vel {
		vv.sys.Vel[i] *= s
	}
}

// Step advances one timestep. progress in [0,1] drives coupling target ramps.
func (vv *VelocityVerlet) Step(progress float64) (forcefield.Result, error) {
	if !vv.ready {
		if err := vv.Init(); err != nil {
			return forcefield.Result{}, err
		}
	}
	sys := vv.sys

	for _, t := range vv.couplings.thermostats() {
		vv.scaleVelocities(t.Scale(thermo.Temperature(sys), progress, vv.Dt))
	}

	vv.halfKick()

	for i := 0; i < sys.N; i++ {
		sys.Pos[3*i] += sys.Vel[3*i] * vv.Dt
		sys.Pos[3*i+1] += sys.Vel[3*i+1] * vv.Dt
		sys.Pos[3*i+2] += sys.Vel[3*i+2] * vv.Dt
	}
	sys.WrapAll()

	res, err := vv.eval.Compute()
	if err != nil {
		return res, err
	}
	vv.last = res

	vv.halfKick()

	for _, t := range vv.couplings.thermostats() {
		vv.scaleVelocities(t.Scale(thermo.Temperature(sys), progress, vv.Dt))
	}

	for _, b := range vv.couplings.barostats() {
		b.Adjust(sys, thermo.Pressure(sys, res.Virial), thermo.Temperature(sys), progress, vv.Dt)
	}

	return res, nil
}
