package forcefield

import (
	"math"

	"github.com/otmiM/polymatic/internal/neighbor"
	"github.com/otmiM/polymatic/internal/units"
)

const twoOverSqrtPi = 2.0 / 1.7724538509055160273 // 2/sqrt(pi)

type pairAccum struct {
	evdw   float64
	ecoul  float64
	virial float64
}

// pairRange evaluates the 9-6 dispersion and real-space Coulomb interaction
// for a slice of the neighbor list, accumulating forces into a private
// buffer.
//
// Dispersion: E = w * eps * (2 (sig/r)^9 - 3 (sig/r)^6), optionally shifted
// to zero at the cutoff. Coulomb without long range: E = w * qq/r. With the
// Ewald sum active the screened form erfc(g r)/r is used and the (w-1)
// prefactor subtracts the reciprocal-space contribution of excluded pairs.
func (ev *Evaluator) pairRange(pairs []neighbor.Pair, f []float64, acc *pairAccum) {
	sys := ev.sys
	cut2 := ev.cfg.Cutoff * ev.cfg.Cutoff
	long := ev.ewald != nil
	var alpha float64
	if long {
		alpha = ev.ewald.Alpha()
	}

	for _, p := range pairs {
		i, j := int(p.I), int(p.J)
		dx, dy, dz := sys.Delta(i, j)
		r2 := dx*dx + dy*dy + dz*dz
		if r2 >= cut2 || r2 == 0 {
			continue
		}
		r := math.Sqrt(r2)
		var fpair float64

		if p.W != 0 {
			eps, sig := sys.Pairs.Mixed(sys.Type[i], sys.Type[j])
			s2 := sig * sig / r2
			x6 := s2 * s2 * s2
			x3 := math.Sqrt(x6)
			x9 := x6 * x3
			e := eps * (2*x9 - 3*x6)
			if ev.cfg.Shift {
				sc2 := sig * sig / cut2
				c6 := sc2 * sc2 * sc2
				c3 := math.Sqrt(c6)
				e -= eps * (2*c6*c3 - 3*c6)
			}
			acc.evdw += p.W * e
			fpair += p.W * 18 * eps * (x9 - x6) / r2
		}

		qq := units.Qqr2e * sys.Charge[i] * sys.Charge[j]
		if qq != 0 {
			if long {
				gr := alpha * r
				erfc := math.Erfc(gr)
				acc.ecoul += qq * (erfc + p.W - 1) / r
				fpair += qq * (erfc + twoOverSqrtPi*gr*math.Exp(-gr*gr) + p.W - 1) / (r2 * r)
			} else if p.W != 0 {
				acc.ecoul += p.W * qq / r
				fpair += p.W * qq / (r2 * r)
			}
		}

		if fpair == 0 {
			continue
		}
		fx, fy, fz := fpair*dx, fpair*dy, fpair*dz
		f[3*i] += fx
		f[3*i+1] += fy
		f[3*i+2] += fz
		f[3*j] -= fx
		f[3*j+1] -= fy
		f[3*j+2] -= fz
		acc.virial += fpair * r2
	}
}
