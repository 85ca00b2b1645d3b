// Package minimize performs staged energy descent: a steepest-descent phase
// followed by conjugate gradient with a quadratic line-search model. Failure
// to converge within the configured budget is a reported, non-fatal outcome.
package minimize

import (
	"context"
	"math"

	"github.com/otmiM/polymatic/internal/forcefield"
	"github.com/otmiM/polymatic/internal/topology"
)

// Config is the per-phase termination budget.
type Config struct {
	Etol    float64 // relative energy-change tolerance
	Ftol    float64 // force-norm tolerance (kcal/mol/A)
	MaxIter int
	MaxEval int
}

// Reason is the first termination condition hit by a phase.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonEnergyTol
	ReasonForceTol
	ReasonMaxIter
	ReasonMaxEval
	ReasonStuck
)

func (r Reason) String() string {
	switch r {
	case ReasonEnergyTol:
		return "energy tolerance"
	case ReasonForceTol:
		return "force tolerance"
	case ReasonMaxIter:
		return "iteration budget"
	case ReasonMaxEval:
		return "evaluation budget"
	case ReasonStuck:
		return "line search stalled"
	default:
		return "none"
	}
}

// Converged reports whether the phase ended on a tolerance rather than a
// budget.
func (r Reason) Converged() bool {
	return r == ReasonEnergyTol || r == ReasonForceTol
}

// PhaseResult carries the last achieved values of one descent phase.
type PhaseResult struct {
	Phase  string
	Reason Reason
	Energy float64
	Fnorm  float64
	Iters  int
	Evals  int
}

type Result struct {
	Phases    []PhaseResult
	Energy    float64
	Converged bool
}

type Minimizer struct {
	sys  *topology.System
	eval *forcefield.Evaluator

	// DMax bounds the largest per-component particle move in one line-search
	// step (Angstroms).
	DMax float64
}

func New(sys *topology.System, eval *forcefield.Evaluator) *Minimizer {
	return &Minimizer{sys: sys, eval: eval, DMax: 0.1}
}

// Run performs the steepest-descent phase then the conjugate-gradient phase.
// Errors from the force evaluation (lost atoms, non-finite values) abort the
// descent; budget exhaustion does not.
func (m *Minimizer) Run(ctx context.Context, sd, cg Config) (Result, error) {
	var res Result

	pr, err := m.descend(ctx, "sd", sd, false)
	if err != nil {
		return res, err
	}
	res.Phases = append(res.Phases, pr)

	pr, err = m.descend(ctx, "cg", cg, true)
	if err != nil {
		return res, err
	}
	res.Phases = append(res.Phases, pr)

	res.Energy = pr.Energy
	res.Converged = pr.Reason.Converged()
	return res, nil
}

func fnorm(f []float64) float64 {
	s := 0.0
	for _, v := range f {
		s += v * v
	}
	return math.Sqrt(s)
}

func fmax(f []float64) float64 {
	m := 0.0
	for _, v := range f {
		if a := math.Abs(v); a > m {
			m = a
		}
	}
	return m
}

// descend runs one phase. With conjugate=false the search direction is the
// bare force; with conjugate=true it is the Polak-Ribiere combination with
// periodic and sign-reversal resets, stepped by a quadratic model of the
// energy along the line.
func (m *Minimizer) descend(ctx context.Context, phase string, cfg Config, conjugate bool) (PhaseResult, error) {
	pr := PhaseResult{Phase: phase}
	sys := m.sys

	out, err := m.eval.Compute()
	if err != nil {
		return pr, err
	}
	pr.Evals++
	energy := out.E.Potential()

	n := 3 * sys.N
	force := append([]float64(nil), sys.Force...)
	dir := append([]float64(nil), force...)
	prevForce := make([]float64, n)
	saved := make([]float64, n)

	const resetEvery = 50

	for {
		pr.Energy = energy
		pr.Fnorm = fnorm(force)

		if pr.Fnorm < cfg.Ftol {
			pr.Reason = ReasonForceTol
			return pr, nil
		}
		if pr.Iters >= cfg.MaxIter {
			pr.Reason = ReasonMaxIter
			return pr, nil
		}
		if pr.Evals >= cfg.MaxEval {
			pr.Reason = ReasonMaxEval
			return pr, nil
		}
		select {
		case <-ctx.Done():
			pr.Reason = ReasonMaxIter
			return pr, ctx.Err()
		default:
		}

		if conjugate {
			if pr.Iters > 0 {
				// Polak-Ribiere with automatic reset.
				num, den := 0.0, 0.0
				for i := 0; i < n; i++ {
					num += force[i] * (force[i] - prevForce[i])
					den += prevForce[i] * prevForce[i]
				}
				beta := 0.0
				if den > 0 {
					beta = num / den
				}
				if beta < 0 || pr.Iters%resetEvery == 0 {
					beta = 0
				}
				descent := 0.0
				for i := 0; i < n; i++ {
					dir[i] = force[i] + beta*dir[i]
					descent += dir[i] * force[i]
				}
				if descent <= 0 {
					copy(dir, force)
				}
			} else {
				copy(dir, force)
			}
		} else {
			copy(dir, force)
		}

		dmax := fmax(dir)
		if dmax == 0 {
			pr.Reason = ReasonForceTol
			return pr, nil
		}
		alphaMax := m.DMax / dmax

		copy(saved, sys.Pos)
		newEnergy, alphaUsed, evals, err := m.lineSearch(dir, force, energy, alphaMax, cfg.MaxEval-pr.Evals, conjugate, saved)
		pr.Evals += evals
		if err != nil {
			return pr, err
		}
		if alphaUsed == 0 {
			// No downhill step found within the evaluation budget.
			copy(sys.Pos, saved)
			if _, err := m.eval.Compute(); err != nil {
				return pr, err
			}
			pr.Evals++
			if pr.Evals >= cfg.MaxEval {
				pr.Reason = ReasonMaxEval
			} else {
				pr.Reason = ReasonStuck
			}
			return pr, nil
		}

		pr.Iters++
		copy(prevForce, force)
		copy(force, sys.Force)

		relChange := math.Abs(newEnergy-energy) / (math.Abs(energy) + math.Abs(newEnergy) + 1e-10)
		energy = newEnergy
		if relChange < cfg.Etol {
			pr.Energy = energy
			pr.Fnorm = fnorm(force)
			pr.Reason = ReasonEnergyTol
			return pr, nil
		}
	}
}

// lineSearch moves along dir from the saved position and returns the first
// accepted (lower) energy. With quadratic=true it first fits a quadratic to
// the energy at the trial step using the directional derivative at the
// origin and steps to the model minimum, bounded by alphaMax.
func (m *Minimizer) lineSearch(dir, force []float64, e0, alphaMax float64, budget int, quadratic bool, saved []float64) (energy, alpha float64, evals int, err error) {
	sys := m.sys

	tryAlpha := func(a float64) (float64, error) {
		copy(sys.Pos, saved)
		for i := range sys.Pos {
			sys.Pos[i] += a * dir[i]
		}
		out, cerr := m.eval.Compute()
		if cerr != nil {
			return 0, cerr
		}
		return out.E.Potential(), nil
	}

	// Directional derivative dE/dalpha at the origin.
	g0 := 0.0
	for i := range dir {
		g0 += force[i] * dir[i]
	}

	a := alphaMax
	if evals >= budget {
		return 0, 0, evals, nil
	}
	e1, err := tryAlpha(a)
	evals++
	if err != nil {
		return 0, 0, evals, err
	}

	if quadratic {
		// E(a) ~ e0 - g0 a + c a^2; minimum at g0/(2c) when curvature is
		// positive.
		c := (e1 - e0 + g0*a) / (a * a)
		if c > 0 {
			star := g0 / (2 * c)
			if star > 0 && star < a && evals < budget {
				eStar, serr := tryAlpha(star)
				evals++
				if serr != nil {
					return 0, 0, evals, serr
				}
				if eStar < e1 {
					e1, a = eStar, star
				} else if e1 < e0 {
					// Re-evaluate at a so forces match the accepted point.
					if _, rerr := tryAlpha(a); rerr != nil {
						return 0, 0, evals, rerr
					}
					evals++
				}
			}
		}
	}

	// Backtrack until the energy drops.
	for e1 >= e0 && evals < budget {
		a *= 0.5
		if a*fmax(dir) < 1e-12 {
			return 0, 0, evals, nil
		}
		e1, err = tryAlpha(a)
		evals++
		if err != nil {
			return 0, 0, evals, err
		}
	}
	if e1 >= e0 {
		return 0, 0, evals, nil
	}
	return e1, a, evals, nil
}
