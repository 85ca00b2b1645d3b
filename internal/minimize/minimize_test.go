package minimize

import (
	"context"
	"math"
	"testing"

	"github.com/otmiM/polymatic/internal/forcefield"
	"github.com/otmiM/polymatic/internal/topology"
)

func overlappingPair(sep float64) *topology.System {
	sys := topology.New(2)
	sys.Box = topology.Box{L: [3]float64{40, 40, 40}}
	sys.Mass[0], sys.Mass[1] = 12.011, 12.011
	sys.Pos[0], sys.Pos[1], sys.Pos[2] = 10, 10, 10
	sys.Pos[3], sys.Pos[4], sys.Pos[5] = 10+sep, 10, 10
	sys.Pairs = topology.NewPairTable([]topology.PairCoeff{{Epsilon: 0.1, Sigma: 3.0}})
	sys.BuildExclusions(topology.DefaultWeights())
	return sys
}

func separation(sys *topology.System) float64 {
	dx, dy, dz := sys.Delta(0, 1)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func TestMinimizerRelaxesOverlap(t *testing.T) {
	sys := overlappingPair(2.4) // deep on the repulsive wall
	eval, err := forcefield.New(sys, forcefield.Config{Cutoff: 10, Shift: true, Workers: 1})
	if err != nil {
		t.Fatal(err)
	}
	out, err := eval.Compute()
	if err != nil {
		t.Fatal(err)
	}
	e0 := out.E.Potential()

	m := New(sys, eval)
	cfg := Config{Etol: 1e-8, Ftol: 1e-5, MaxIter: 500, MaxEval: 5000}
	res, err := m.Run(context.Background(), cfg, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Energy >= e0 {
		t.Errorf("energy %v did not drop below %v", res.Energy, e0)
	}
	if !res.Converged {
		t.Errorf("did not converge: %+v", res.Phases)
	}
	// The 9-6 minimum sits at r = sigma.
	if r := separation(sys); math.Abs(r-3.0) > 0.15 {
		t.Errorf("final separation %v, want ~3.0", r)
	}
}

func TestPhaseEnergiesNonIncreasing(t *testing.T) {
	sys := overlappingPair(2.6)
	eval, err := forcefield.New(sys, forcefield.Config{Cutoff: 10, Shift: true, Workers: 1})
	if err != nil {
		t.Fatal(err)
	}
	out, err := eval.Compute()
	if err != nil {
		t.Fatal(err)
	}
	e := out.E.Potential()

	m := New(sys, eval)
	cfg := Config{Etol: 1e-8, Ftol: 1e-5, MaxIter: 200, MaxEval: 2000}
	res, err := m.Run(context.Background(), cfg, cfg)
	if err != nil {
		t.Fatal(err)
	}
	for _, ph := range res.Phases {
		if ph.Energy > e+1e-12 {
			t.Errorf("phase %s ended at %v, above %v", ph.Phase, ph.Energy, e)
		}
		e = ph.Energy
	}
}

func TestBudgetReasons(t *testing.T) {
	sys := overlappingPair(2.4)
	eval, err := forcefield.New(sys, forcefield.Config{Cutoff: 10, Shift: true, Workers: 1})
	if err != nil {
		t.Fatal(err)
	}

	m := New(sys, eval)
	cfg := Config{Etol: 1e-12, Ftol: 1e-12, MaxIter: 0, MaxEval: 100}
	res, err := m.Run(context.Background(), cfg, cfg)
	if err != nil {
		t.Fatal(err)
	}
	for _, ph := range res.Phases {
		if ph.Reason != ReasonMaxIter {
			t.Errorf("phase %s reason = %v, want iteration budget", ph.Phase, ph.Reason)
		}
		if ph.Reason.Converged() {
			t.Errorf("budget exhaustion reported as converged")
		}
	}
	if res.Converged {
		t.Error("result marked converged")
	}
}

func TestCancelledContext(t *testing.T) {
	sys := overlappingPair(2.4)
	eval, err := forcefield.New(sys, forcefield.Config{Cutoff: 10, Shift: true, Workers: 1})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := New(sys, eval)
	cfg := Config{Etol: 1e-8, Ftol: 1e-10, MaxIter: 100, MaxEval: 1000}
	if _, err := m.Run(ctx, cfg, cfg); err == nil {
		t.Fatal("expected context error")
	}
}
