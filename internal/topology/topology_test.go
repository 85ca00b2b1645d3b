package topology

import (
	"math"
	"testing"
)

func TestMixSymmetry(t *testing.T) {
	coeffs := []PairCoeff{
		{Epsilon: 0.054, Sigma: 4.01},
		{Epsilon: 0.062, Sigma: 3.854},
		{Epsilon: 0.023, Sigma: 2.878},
		{Epsilon: 0.24, Sigma: 3.535},
	}
	table := NewPairTable(coeffs)
	for i := range coeffs {
		for j := range coeffs {
			eij, sij := table.Mixed(i, j)
			eji, sji := table.Mixed(j, i)
			if eij != eji || sij != sji {
				t.Errorf("mixing not symmetric for (%d,%d): (%g,%g) vs (%g,%g)",
					i, j, eij, sij, eji, sji)
			}
		}
	}
}

func TestMixIdentical(t *testing.T) {
	c := PairCoeff{Epsilon: 0.054, Sigma: 4.01}
	m := Mix(c, c)
	if math.Abs(m.Epsilon-c.Epsilon) > 1e-12 {
		t.Errorf("self-mixed epsilon %g, want %g", m.Epsilon, c.Epsilon)
	}
	if math.Abs(m.Sigma-c.Sigma) > 1e-12 {
		t.Errorf("self-mixed sigma %g, want %g", m.Sigma, c.Sigma)
	}
}

func TestExclusionDistances(t *testing.T) {
	// Linear pentamer 0-1-2-3-4.
	bonds := []Bond{{I: 0, J: 1}, {I: 1, J: 2}, {I: 2, J: 3}, {I: 3, J: 4}}
	e := buildExclusions(5, bonds, DefaultWeights())

	cases := []struct {
		i, j int
		dist int
		w    float64
	}{
		{0, 1, 1, 0},
		{0, 2, 2, 0},
		{0, 3, 3, 1},
		{0, 4, 0, 1},
		{1, 3, 2, 0},
		{2, 4, 2, 0},
	}
	for _, c := range cases {
		if d := e.Distance(c.i, c.j); d != c.dist {
			t.Errorf("distance(%d,%d) = %d, want %d", c.i, c.j, d, c.dist)
		}
		if w := e.Weight(c.i, c.j); w != c.w {
			t.Errorf("weight(%d,%d) = %g, want %g", c.i, c.j, w, c.w)
		}
	}
}

func TestExclusionRing(t *testing.T) {
	// 4-ring: opposite corners are 1-3 pairs through either path.
	bonds := []Bond{{I: 0, J: 1}, {I: 1, J: 2}, {I: 2, J: 3}, {I: 3, J: 0}}
	e := buildExclusions(4, bonds, DefaultWeights())
	if d := e.Distance(0, 2); d != 2 {
		t.Errorf("ring distance(0,2) = %d, want 2", d)
	}
	if d := e.Distance(1, 3); d != 2 {
		t.Errorf("ring distance(1,3) = %d, want 2", d)
	}
}

func TestMinImage(t *testing.T) {
	b := Box{L: [3]float64{10, 10, 10}}
	if d := b.MinImage(9.0, 0); math.Abs(d+1.0) > 1e-12 {
		t.Errorf("min image of 9 in L=10 = %g, want -1", d)
	}
	if d := b.MinImage(-7.5, 1); math.Abs(d-2.5) > 1e-12 {
		t.Errorf("min image of -7.5 in L=10 = %g, want 2.5", d)
	}
}

func TestBoxScalePreservesCenter(t *testing.T) {
	b := Box{Origin: [3]float64{-5, -5, -5}, L: [3]float64{10, 10, 10}}
	b.Scale(1.1)
	for k := 0; k < 3; k++ {
		center := b.Origin[k] + 0.5*b.L[k]
		if math.Abs(center) > 1e-12 {
			t.Errorf("axis %d center moved to %g", k, center)
		}
		if math.Abs(b.L[k]-11) > 1e-12 {
			t.Errorf("axis %d length %g, want 11", k, b.L[k])
		}
	}
}

func TestValidateDiagnostics(t *testing.T) {
	s := New(2)
	s.Box = Box{L: [3]float64{10, 10, 10}}
	s.Pairs = NewPairTable([]PairCoeff{{Epsilon: 0.1, Sigma: 3}})
	s.Mass[0], s.Mass[1] = 12.0, 12.0

	if err := s.Validate(); err != nil {
		t.Fatalf("valid system rejected: %v", err)
	}

	s.Type[1] = 7
	if err := s.Validate(); err == nil {
		t.Error("expected error for out-of-range pair type")
	}
	s.Type[1] = 0

	s.Bonds = []Bond{{I: 0, J: 5}}
	if err := s.Validate(); err == nil {
		t.Error("expected error for out-of-range bond index")
	}
}
