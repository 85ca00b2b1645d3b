package neighbor

import (
	"math"
	"sort"
	"testing"

	"github.com/otmiM/polymatic/internal/topology"
)

// lattice builds an n^3 cubic lattice of identical particles with spacing a.
func lattice(n int, a float64) *topology.System {
	sys := topology.New(n * n * n)
	sys.Box = topology.Box{L: [3]float64{float64(n) * a, float64(n) * a, float64(n) * a}}
	sys.Pairs = topology.NewPairTable([]topology.PairCoeff{{Epsilon: 0.1, Sigma: 3.0}})
	idx := 0
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			for z := 0; z < n; z++ {
				sys.Pos[3*idx] = float64(x) * a
				sys.Pos[3*idx+1] = float64(y) * a
				sys.Pos[3*idx+2] = float64(z) * a
				sys.Mass[idx] = 10.0
				idx++
			}
		}
	}
	sys.BuildExclusions(topology.DefaultWeights())
	return sys
}

func pairSet(pairs []Pair) map[[2]int32]bool {
	m := make(map[[2]int32]bool, len(pairs))
	for _, p := range pairs {
		m[[2]int32{p.I, p.J}] = true
	}
	return m
}

func TestCellListMatchesBruteForce(t *testing.T) {
	sys := lattice(6, 2.5) // box 15, cutoff+skin 4 -> 3 cells per axis
	cell := NewList(sys, 3.0, 1.0, false)
	if _, err := cell.Ensure(); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	brute := NewList(sys, 3.0, 1.0, false)
	brute.buildAllPairs(4.0)

	got := pairSet(cell.Pairs())
	want := pairSet(brute.pairs)
	if len(got) != len(want) {
		t.Fatalf("cell list has %d pairs, brute force %d", len(got), len(want))
	}
	for k := range want {
		if !got[k] {
			t.Errorf("missing pair %v", k)
		}
	}
}

func TestRebuildOnlyAfterSkinHalf(t *testing.T) {
	sys := lattice(4, 3.0)
	l := NewList(sys, 3.0, 2.0, false)
	if _, err := l.Ensure(); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if l.Rebuilds != 1 {
		t.Fatalf("expected initial build, got %d rebuilds", l.Rebuilds)
	}

	// Displacement below skin/2 must not trigger a rebuild.
	sys.Pos[0] += 0.9
	if rebuilt, err := l.Ensure(); err != nil || rebuilt {
		t.Errorf("rebuilt=%v err=%v for displacement below skin/2", rebuilt, err)
	}

	// Crossing skin/2 must.
	sys.Pos[0] += 0.2
	rebuilt, err := l.Ensure()
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if !rebuilt {
		t.Error("expected rebuild after displacement exceeded skin/2")
	}
}

func TestExcludedPairsDropped(t *testing.T) {
	sys := topology.New(3)
	sys.Box = topology.Box{L: [3]float64{30, 30, 30}}
	sys.Pairs = topology.NewPairTable([]topology.PairCoeff{{Epsilon: 0.1, Sigma: 3.0}})
	for i := 0; i < 3; i++ {
		sys.Mass[i] = 10
		sys.Pos[3*i] = float64(i) * 1.5
	}
	sys.Bonds = []topology.Bond{{I: 0, J: 1}, {I: 1, J: 2}}
	sys.BuildExclusions(topology.DefaultWeights())

	l := NewList(sys, 10.0, 1.0, false)
	if _, err := l.Ensure(); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if len(l.Pairs()) != 0 {
		t.Errorf("expected all pairs excluded, got %d", len(l.Pairs()))
	}

	kept := NewList(sys, 10.0, 1.0, true)
	if _, err := kept.Ensure(); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if len(kept.Pairs()) != 3 {
		t.Fatalf("expected 3 listed pairs with keepExcluded, got %d", len(kept.Pairs()))
	}
	ws := make([]float64, 0, 3)
	for _, p := range kept.Pairs() {
		ws = append(ws, p.W)
	}
	sort.Float64s(ws)
	if ws[0] != 0 || ws[1] != 0 || ws[2] != 0 {
		t.Errorf("excluded pairs should carry weight 0, got %v", ws)
	}
}

func TestLostAtoms(t *testing.T) {
	sys := topology.New(2)
	sys.Box = topology.Box{L: [3]float64{100, 100, 100}}
	sys.Pairs = topology.NewPairTable([]topology.PairCoeff{{Epsilon: 0.1, Sigma: 3.0}})
	sys.Mass[0], sys.Mass[1] = 10, 10
	sys.Pos[3] = 1.0
	sys.Bonds = []topology.Bond{{I: 0, J: 1}}
	sys.BuildExclusions(topology.DefaultWeights())

	l := NewList(sys, 3.0, 1.0, false)
	if _, err := l.Ensure(); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	sys.Pos[3] = 20.0 // beyond 2*cutoff
	_, err := l.Ensure()
	var lost LostAtomsError
	if err == nil {
		t.Fatal("expected lost atoms error")
	}
	var ok bool
	lost, ok = err.(LostAtomsError)
	if !ok {
		t.Fatalf("expected LostAtomsError, got %T", err)
	}
	if lost.I != 0 || lost.J != 1 {
		t.Errorf("lost pair (%d,%d), want (0,1)", lost.I, lost.J)
	}
	if math.Abs(lost.Dist-19.0) > 1e-9 {
		t.Errorf("lost distance %g, want 19", lost.Dist)
	}
}
