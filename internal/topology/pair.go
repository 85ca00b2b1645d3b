package topology

import "math"

// PairCoeff holds the per-type Lennard-Jones parameters.
type PairCoeff struct {
	Epsilon float64
	Sigma   float64
}

// Mix combines two per-type coefficients with the sixth-power rule used by
// class2 force fields:
//
//	sigma_ij   = ((si^6 + sj^6)/2)^(1/6)
//	epsilon_ij = 2 sqrt(ei ej) si^3 sj^3 / (si^6 + sj^6)
func Mix(a, b PairCoeff) PairCoeff {
	s3i := a.Sigma * a.Sigma * a.Sigma
	s3j := b.Sigma * b.Sigma * b.Sigma
	s6i := s3i * s3i
	s6j := s3j * s3j
	return PairCoeff{
		Sigma:   math.Pow(0.5*(s6i+s6j), 1.0/6.0),
		Epsilon: 2.0 * math.Sqrt(a.Epsilon*b.Epsilon) * s3i * s3j / (s6i + s6j),
	}
}

// PairTable precomputes the mixed coefficients for every type pair.
type PairTable struct {
	ntypes int
	coeff  []PairCoeff
	eps    []float64
	sig    []float64
}

func NewPairTable(coeffs []PairCoeff) *PairTable {
	n := len(coeffs)
	t := &PairTable{
		ntypes: n,
		coeff:  append([]PairCoeff(nil), coeffs...),
		eps:    make([]float64, n*n),
		sig:    make([]float64, n*n),
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			m := Mix(coeffs[i], coeffs[j])
			t.eps[i*n+j] = m.Epsilon
			t.sig[i*n+j] = m.Sigma
		}
	}
	return t
}

func (t *PairTable) NumTypes() int { return t.ntypes }

// Coeff returns the unmixed per-type parameters.
func (t *PairTable) Coeff(i int) PairCoeff { return t.coeff[i] }

// Mixed returns the combined parameters for a type pair.
func (t *PairTable) Mixed(i, j int) (eps, sig float64) {
	return t.eps[i*t.ntypes+j], t.sig[i*t.ntypes+j]
}
