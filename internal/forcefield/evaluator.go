// Package forcefield computes class2 bonded and nonbonded energies and forces
// for a topology.System: real-space 9-6 dispersion plus Coulomb, an Ewald
// reciprocal-space sum, and quartic/cross-term bonded interactions. Pair
// evaluation is split across workers over fixed index ranges with per-worker
// force buffers reduced in worker order, so results are reproducible for a
// given worker count.
package forcefield

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/otmiM/polymatic/internal/neighbor"
	"github.com/otmiM/polymatic/internal/topology"
)

// Energies is the potential energy partitioned by term, in kcal/mol.
type Energies struct {
	VdW       float64
	CoulReal  float64
	CoulRecip float64
	Bond      float64
	Angle     float64
	Dihedral  float64
	Improper  float64
}

func (e Energies) Coul() float64 { return e.CoulReal + e.CoulRecip }

func (e Energies) Potential() float64 {
	return e.VdW + e.CoulReal + e.CoulRecip + e.Bond + e.Angle + e.Dihedral + e.Improper
}

// Result is one force evaluation: the energy partition and the scalar virial
// (sum of r.f over all interactions, kcal/mol).
type Result struct {
	E       Energies
	Virial  float64
	Rebuilt bool
}

// NotFiniteError reports NaN or infinite values in forces or energies. The
// caller must treat it as fatal and avoid persisting state past the last
// valid step.
type NotFiniteError struct {
	Where string
}

func (e NotFiniteError) Error() string {
	return fmt.Sprintf("non-finite %s detected", e.Where)
}

type Config struct {
	Cutoff float64
	Skin   float64

	// Shift subtracts the dispersion energy at the cutoff so the energy
	// surface is continuous (used during minimization).
	Shift bool

	// LongRange enables the Ewald reciprocal sum; real-space Coulomb is then
	// erfc-screened and excluded pairs get the erf correction.
	LongRange bool

	// Accuracy is the relative long-range accuracy target (default 1e-4).
	Accuracy float64

	// Permissive downgrades an unreachable accuracy target from a fatal
	// error to a best-effort run.
	Permissive bool

	// KmaxLimit bounds the reciprocal grid per dimension (default 32).
	KmaxLimit int

	// Workers fixes the evaluation worker count (default GOMAXPROCS).
	Workers int
}

func (c *Config) fill() {
	if c.Accuracy == 0 {
		c.Accuracy = 1e-4
	}
	if c.KmaxLimit == 0 {
		c.KmaxLimit = 32
	}
	if c.Workers == 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.Skin == 0 {
		c.Skin = 2.0
	}
}

type Evaluator struct {
	sys   *topology.System
	cfg   Config
	nl    *neighbor.List
	ewald *Ewald

	buffers [][]float64
	accums  []pairAccum
}

func New(sys *topology.System, cfg Config) (*Evaluator, error) {
	cfg.fill()
	if cfg.Cutoff <= 0 {
		return nil, fmt.Errorf("cutoff must be positive, got %g", cfg.Cutoff)
	}
	ev := &Evaluator{
		sys: sys,
		cfg: cfg,
		nl:  neighbor.NewList(sys, cfg.Cutoff, cfg.Skin, cfg.LongRange),
	}
	if cfg.LongRange {
		ew, err := NewEwald(sys, cfg.Cutoff, cfg.Accuracy, cfg.KmaxLimit, cfg.Permissive)
		if err != nil {
			return nil, err
		}
		ev.ewald = ew
	}
	ev.buffers = make([][]float64, cfg.Workers)
	ev.accums = make([]pairAccum, cfg.Workers)
	for w := range ev.buffers {
		ev.buffers[w] = make([]float64, 3*sys.N)
	}
	return ev, nil
}

func (ev *Evaluator) SetShift(on bool)          { ev.cfg.Shift = on }
func (ev *Evaluator) Neighbors() *neighbor.List { return ev.nl }
func (ev *Evaluator) LongRange() *Ewald         { return ev.ewald }

// Compute zeroes the force accumulators and evaluates all force-field terms
// at the current particle positions.
func (ev *Evaluator) Compute() (Result, error) {
	var res Result

	rebuilt, err := ev.nl.Ensure()
	if err != nil {
		return res, err
	}
	res.Rebuilt = rebuilt

	sys := ev.sys
	sys.ZeroForces()

	// Pair terms, worker-parallel. Each worker owns a contiguous chunk of
	// the pair list and a private force buffer.
	pairs := ev.nl.Pairs()
	nw := ev.cfg.Workers
	if nw > len(pairs) && len(pairs) > 0 {
		nw = len(pairs)
	}
	if len(pairs) > 0 {
		var wg sync.WaitGroup
		chunk := (len(pairs) + nw - 1) / nw
		for w := 0; w < nw; w++ {
			lo := w * chunk
			hi := lo + chunk
			if hi > len(pairs) {
				hi = len(pairs)
			}
			buf := ev.buffers[w]
			for i := range buf {
				buf[i] = 0
			}
			ev.accums[w] = pairAccum{}
			wg.Add(1)
			go func(w, lo, hi int) {
				defer wg.Done()
				ev.pairRange(pairs[lo:hi], ev.buffers[w], &ev.accums[w])
			}(w, lo, hi)
		}
		wg.Wait()

		// Fixed-order reduction keeps the result independent of goroutine
		// scheduling.
		for w := 0; w < nw; w++ {
			buf := ev.buffers[w]
			for i := range sys.Force {
				sys.Force[i] += buf[i]
			}
			res.E.VdW += ev.accums[w].evdw
			res.E.CoulReal += ev.accums[w].ecoul
			res.Virial += ev.accums[w].virial
		}
	}

	// Bonded terms.
	ev.computeBonds(&res)
	ev.computeAngles(&res)
	ev.computeDihedrals(&res)
	ev.computeImpropers(&res)

	// Reciprocal space.
	if ev.ewald != nil {
		e, w := ev.ewald.Compute(sys, sys.Force)
		res.E.CoulRecip = e
		res.Virial += w
	}

	if err := ev.checkFinite(res); err != nil {
		return res, err
	}
	return res, nil
}

func (ev *Evaluator) checkFinite(res Result) error {
	pot := res.E.Potential()
	if math.IsNaN(pot) || math.IsInf(pot, 0) {
		return NotFiniteError{Where: "energy"}
	}
	for _, f := range ev.sys.Force {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return NotFiniteError{Where: "force"}
		}
	}
	return nil
}
