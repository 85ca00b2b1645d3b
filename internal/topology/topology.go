// Package topology owns the particle and bonded-term data for a simulated
// system: positions, velocities, force accumulators, per-type nonbonded
// parameters, class2 bonded terms, the periodic box, and the exclusion
// policy derived from the bond graph. Particle count and bonded-term
// references are fixed for the lifetime of a System.
package topology

import (
	"fmt"
	"math"
)

// Box is an orthorhombic, fully periodic simulation cell.
type Box struct {
	Origin [3]float64
	L      [3]float64
}

func (b Box) Volume() float64 {
	return b.L[0] * b.L[1] * b.L[2]
}

func (b Box) Valid() bool {
	return b.L[0] > 0 && b.L[1] > 0 && b.L[2] > 0
}

// MinImage reduces a displacement component along axis k to its nearest
// periodic image.
func (b Box) MinImage(d float64, k int) float64 {
	return d - b.L[k]*math.Round(d/b.L[k])
}

// Scale grows or shrinks the cell isotropically about its center by mu.
func (b *Box) Scale(mu float64) {
	for k := 0; k < 3; k++ {
		center := b.Origin[k] + 0.5*b.L[k]
		b.L[k] *= mu
		b.Origin[k] = center - 0.5*b.L[k]
	}
}

// System is the topology store. Pos, Vel and Force are flat 3N slices.
type System struct {
	N      int
	Pos    []float64
	Vel    []float64
	Force  []float64
	Mass   []float64
	Charge []float64
	Type   []int

	Box   Box
	Pairs *PairTable

	Bonds     []Bond
	Angles    []Angle
	Dihedrals []Dihedral
	Impropers []Improper

	Excl *Exclusions
}

func New(n int) *System {
	return &System{
		N:      n,
		Pos:    make([]float64, 3*n),
		Vel:    make([]float64, 3*n),
		Force:  make([]float64, 3*n),
		Mass:   make([]float64, n),
		Charge: make([]float64, n),
		Type:   make([]int, n),
	}
}

// DOF is the number of kinetic degrees of freedom after removing the three
// center-of-mass translations.
func (s *System) DOF() int {
	d := 3*s.N - 3
	if d < 1 {
		d = 1
	}
	return d
}

func (s *System) ZeroForces() {
	for i := range s.Force {
		s.Force[i] = 0
	}
}

// WrapAll maps every particle back into the primary cell.
func (s *System) WrapAll() {
	for i := 0; i < s.N; i++ {
		for k := 0; k < 3; k++ {
			p := s.Pos[3*i+k] - s.Box.Origin[k]
			p -= s.Box.L[k] * math.Floor(p/s.Box.L[k])
			s.Pos[3*i+k] = p + s.Box.Origin[k]
		}
	}
}

// Delta returns the minimum-image displacement from particle j to particle i.
func (s *System) Delta(i, j int) (dx, dy, dz float64) {
	dx = s.Box.MinImage(s.Pos[3*i]-s.Pos[3*j], 0)
	dy = s.Box.MinImage(s.Pos[3*i+1]-s.Pos[3*j+1], 1)
	dz = s.Box.MinImage(s.Pos[3*i+2]-s.Pos[3*j+2], 2)
	return
}

// BuildExclusions derives the 1-2/1-3/1-4 exclusion table from the bond graph
// and records the scaling weights to apply at each topological distance.
func (s *System) BuildExclusions(w Weights) {
	s.Excl = buildExclusions(s.N, s.Bonds, w)
}

// Validate checks internal consistency: every bonded term must reference an
// existing particle, every particle an existing pair type, and the box must
// have positive lengths. It reports the first offending record.
func (s *System) Validate() error {
	if !s.Box.Valid() {
		return fmt.Errorf("box lengths must be positive, got %v", s.Box.L)
	}
	ntypes := 0
	if s.Pairs != nil {
		ntypes = s.Pairs.NumTypes()
	}
	for i := 0; i < s.N; i++ {
		if s.Mass[i] <= 0 {
			return fmt.Errorf("particle %d: mass %g is not positive", i, s.Mass[i])
		}
		if s.Type[i] < 0 || s.Type[i] >= ntypes {
			return fmt.Errorf("particle %d: pair type %d out of range [0,%d)", i, s.Type[i], ntypes)
		}
	}
	check := func(kind string, n int, idx ...int) error {
		for _, a := range idx {
			if a < 0 || a >= s.N {
				return fmt.Errorf("%s %d: particle index %d out of range [0,%d)", kind, n, a, s.N)
			}
		}
		return nil
	}
	for n, b := range s.Bonds {
		if err := check("bond", n, b.I, b.J); err != nil {
			return err
		}
	}
	for n, a := range s.Angles {
		if err := check("angle", n, a.I, a.J, a.K); err != nil {
			return err
		}
	}
	for n, d := range s.Dihedrals {
		if err := check("dihedral", n, d.I, d.J, d.K, d.L); err != nil {
			return err
		}
	}
	for n, im := range s.Impropers {
		if err := check("improper", n, im.I, im.J, im.K, im.L); err != nil {
			return err
		}
	}
	return nil
}
