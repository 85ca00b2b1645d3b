package storage

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/otmiM/polymatic/internal/topology"
)

// State is the persisted simulation state: box, per-particle data, and the
// full static topology. Reading it back reproduces positions, velocities and
// box dimensions exactly within JSON round-trip precision.
type State struct {
	BoxOrigin [3]float64 `json:"box_origin"`
	BoxLength [3]float64 `json:"box_length"`

	Type   []int     `json:"type"`
	Mass   []float64 `json:"mass"`
	Charge []float64 `json:"charge"`
	Pos    []float64 `json:"pos"`
	Vel    []float64 `json:"vel"`

	PairCoeffs []topology.PairCoeff `json:"pair_coeffs"`
	Bonds      []topology.Bond      `json:"bonds,omitempty"`
	Angles     []topology.Angle     `json:"angles,omitempty"`
	Dihedrals  []topology.Dihedral  `json:"dihedrals,omitempty"`
	Impropers  []topology.Improper  `json:"impropers,omitempty"`
	Weights    topology.Weights     `json:"special_bonds"`
}

// WriteState serializes the current particle state and static topology.
func WriteState(path string, sys *topology.System) error {
	st := State{
		BoxOrigin: sys.Box.Origin,
		BoxLength: sys.Box.L,
		Type:      sys.Type,
		Mass:      sys.Mass,
		Charge:    sys.Charge,
		Pos:       sys.Pos,
		Vel:       sys.Vel,
		Bonds:     sys.Bonds,
		Angles:    sys.Angles,
		Dihedrals: sys.Dihedrals,
		Impropers: sys.Impropers,
	}
	if sys.Pairs != nil {
		for i := 0; i < sys.Pairs.NumTypes(); i++ {
			st.PairCoeffs = append(st.PairCoeffs, sys.Pairs.Coeff(i))
		}
	}
	if sys.Excl != nil {
		st.Weights = sys.Excl.Weights()
	} else {
		st.Weights = topology.DefaultWeights()
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	return enc.Encode(st)
}

// ReadState loads a persisted state into a fresh topology store. Malformed
// or inconsistent content fails with a diagnostic identifying the offending
// record.
func ReadState(path string) (*topology.System, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	n := len(st.Mass)
	for name, l := range map[string]int{
		"type": len(st.Type), "charge": len(st.Charge),
	} {
		if l != n {
			return nil, fmt.Errorf("%s: %s has %d entries for %d particles", path, name, l, n)
		}
	}
	for name, l := range map[string]int{"pos": len(st.Pos), "vel": len(st.Vel)} {
		if l != 3*n {
			return nil, fmt.Errorf("%s: %s has %d values, want %d", path, name, l, 3*n)
		}
	}

	sys := topology.New(n)
	sys.Box = topology.Box{Origin: st.BoxOrigin, L: st.BoxLength}
	copy(sys.Type, st.Type)
	copy(sys.Mass, st.Mass)
	copy(sys.Charge, st.Charge)
	copy(sys.Pos, st.Pos)
	copy(sys.Vel, st.Vel)
	sys.Pairs = topology.NewPairTable(st.PairCoeffs)
	sys.Bonds = st.Bonds
	sys.Angles = st.Angles
	sys.Dihedrals = st.Dihedrals
	sys.Impropers = st.Impropers

	if err := sys.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	sys.BuildExclusions(st.Weights)
	return sys, nil
}
