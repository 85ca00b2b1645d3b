package forcefield

import (
	"fmt"
	"math"

	"github.com/otmiM/polymatic/internal/topology"
	"github.com/otmiM/polymatic/internal/units"
)

// AccuracyError reports that the reciprocal-space accuracy target cannot be
// met within the bounded grid size.
type AccuracyError struct {
	Target    float64
	Achieved  float64
	KmaxLimit int
}

func (e AccuracyError) Error() string {
	return fmt.Sprintf("ewald accuracy %.3g unreachable within kmax %d (best %.3g)",
		e.Target, e.KmaxLimit, e.Achieved)
}

// Ewald is the reciprocal-space Coulomb solver. The screening parameter and
// per-dimension grid sizes are chosen at construction to meet a relative
// accuracy target; the wave vectors themselves follow the current box, so
// barostat rescaling is picked up automatically.
type Ewald struct {
	alpha  float64
	kmax   [3]int
	qsqsum float64
	qsum   float64

	// BestEffort is set when the accuracy target was unreachable and the
	// evaluator was configured permissive.
	BestEffort bool
	// Achieved is the estimated relative accuracy actually reached.
	Achieved float64

	cosKr []float64
	sinKr []float64
}

// kspaceRMS is the standard Ewald k-space error estimate for km wave vectors
// along a box length prd.
func kspaceRMS(km int, prd float64, natoms int, alpha, q2 float64) float64 {
	if natoms == 0 {
		return 0
	}
	return 2.0 * q2 * alpha / prd *
		math.Sqrt(1.0/(math.Pi*float64(km)*float64(natoms))) *
		math.Exp(-math.Pi*math.Pi*float64(km)*float64(km)/(alpha*alpha*prd*prd))
}

func NewEwald(sys *topology.System, cutoff, accuracy float64, kmaxLimit int, permissive bool) (*Ewald, error) {
	e := &Ewald{
		cosKr: make([]float64, sys.N),
		sinKr: make([]float64, sys.N),
	}
	for i := 0; i < sys.N; i++ {
		q := sys.Charge[i]
		e.qsqsum += q * q
		e.qsum += q
	}

	// Screening parameter from the real-space error bound.
	e.alpha = (1.35 - 0.15*math.Log(accuracy)) / cutoff

	// Absolute target relative to the force between two unit charges.
	target := accuracy * units.Qqr2e
	q2 := units.Qqr2e * e.qsqsum

	worst := 0.0
	for k := 0; k < 3; k++ {
		km := 1
		for kspaceRMS(km, sys.Box.L[k], sys.N, e.alpha, q2) > target && km < kmaxLimit {
			km++
		}
		rms := kspaceRMS(km, sys.Box.L[k], sys.N, e.alpha, q2)
		if rms > worst {
			worst = rms
		}
		e.kmax[k] = km
	}
	e.Achieved = worst / units.Qqr2e

	if worst > target {
		if !permissive {
			return nil, AccuracyError{Target: accuracy, Achieved: e.Achieved, KmaxLimit: kmaxLimit}
		}
		e.BestEffort = true
	}
	return e, nil
}

func (e *Ewald) Alpha() float64 { return e.alpha }
func (e *Ewald) Kmax() [3]int   { return e.kmax }

// Compute adds reciprocal-space forces into f and returns the reciprocal
// energy (including self and background corrections) and its virial trace.
func (e *Ewald) Compute(sys *topology.System, f []float64) (energy, virial float64) {
	vol := sys.Box.Volume()
	preFactor := units.Qqr2e * 2 * math.Pi / vol
	invAlpha2 := 1 / (4 * e.alpha * e.alpha)

	var unit [3]float64
	for k := 0; k < 3; k++ {
		unit[k] = 2 * math.Pi / sys.Box.L[k]
	}

	for kx := 0; kx <= e.kmax[0]; kx++ {
		for ky := -e.kmax[1]; ky <= e.kmax[1]; ky++ {
			for kz := -e.kmax[2]; kz <= e.kmax[2]; kz++ {
				if kx == 0 && (ky < 0 || (ky == 0 && kz <= 0)) {
					continue
				}
				// Ellipsoidal bound keeps the sum spherical-ish in k space.
				ex := float64(kx) / float64(e.kmax[0])
				ey := float64(ky) / float64(e.kmax[1])
				ez := float64(kz) / float64(e.kmax[2])
				if ex*ex+ey*ey+ez*ez > 1.0 {
					continue
				}

				gx := unit[0] * float64(kx)
				gy := unit[1] * float64(ky)
				gz := unit[2] * float64(kz)
				ksq := gx*gx + gy*gy + gz*gz

				ug := preFactor * math.Exp(-ksq*invAlpha2) / ksq

				var sumRe, sumIm float64
				for i := 0; i < sys.N; i++ {
					kr := gx*sys.Pos[3*i] + gy*sys.Pos[3*i+1] + gz*sys.Pos[3*i+2]
					c, s := math.Cos(kr), math.Sin(kr)
					e.cosKr[i] = c
					e.sinKr[i] = s
					sumRe += sys.Charge[i] * c
					sumIm += sys.Charge[i] * s
				}

				ssq := sumRe*sumRe + sumIm*sumIm
				// Factor 2 accounts for the half space of wave vectors.
				energy += 2 * ug * ssq
				virial += 2 * ug * ssq * (1 - ksq/(2*e.alpha*e.alpha))

				for i := 0; i < sys.N; i++ {
					fk := 2 * 2 * ug * sys.Charge[i] * (sumRe*e.sinKr[i] - sumIm*e.cosKr[i])
					f[3*i] += fk * gx
					f[3*i+1] += fk * gy
					f[3*i+2] += fk * gz
				}
			}
		}
	}

	// Self-interaction and neutralizing-background corrections.
	energy -= units.Qqr2e * e.alpha / math.Sqrt(math.Pi) * e.qsqsum
	energy -= units.Qqr2e * math.Pi / (2 * e.alpha * e.alpha * vol) * e.qsum * e.qsum

	return energy, virial
}
