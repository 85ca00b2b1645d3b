// Package integrate advances particle state with a velocity-Verlet scheme and
// applies ensemble-control couplings (thermostat, barostat) from an ordered,
// named registry.
package integrate

import (
	"fmt"

	"github.com/otmiM/polymatic/internal/topology"
)

// Coupling is a named ensemble-control object attached to the integrator.
type Coupling interface {
	Name() string
}

// Thermostat biases velocities toward a target temperature. Scale is called
// once per velocity half-kick with the instantaneous temperature and the run
// progress in [0,1] (for target ramps); it advances the extended variable by
// half a step and returns the velocity scaling factor.
type Thermostat interface {
	Coupling
	Scale(temp, progress, dt float64) float64
}

// Barostat adjusts the box toward a target pressure. Adjust is called once
// per step, after the force reduction, with the instantaneous pressure and
// temperature; it mutates the box and rescales positions.
type Barostat interface {
	Coupling
	Adjust(sys *topology.System, press, temp, progress, dt float64)
}

// Registry is the ordered set of active couplings. Attach and Detach are the
// only mutation points; detaching discards the coupling's extended state.
type Registry struct {
	ordered []Coupling
}

func NewRegistry() *Registry { return &Registry{} }

func (r *Registry) Attach(c Coupling) error {
	for _, have := range r.ordered {
		if have.Name() == c.Name() {
			return fmt.Errorf("coupling %q already attached", c.Name())
		}
	}
	r.ordered = append(r.ordered, c)
	return nil
}

func (r *Registry) Detach(name string) bool {
	for i, have := range r.ordered {
		if have.Name() == name {
			r.ordered = append(r.ordered[:i], r.ordered[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Registry) DetachAll() { r.ordered = nil }

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ordered))
	for _, c := range r.ordered {
		names = append(names, c.Name())
	}
	return names
}

func (r *Registry) thermostats() []Thermostat {
	var out []Thermostat
	for _, c := range r.ordered {
		if t, ok := c.(Thermostat); ok {
			out = append(out, t)
		}
	}
	return out
}

func (r *Registry) barostats() []Barostat {
	var out []Barostat
	for _, c := range r.ordered {
		if b, ok := c.(Barostat); ok {
			out = append(out, b)
		}
	}
	return out
}
