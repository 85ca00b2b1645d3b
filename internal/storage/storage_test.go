package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/otmiM/polymatic/internal/topology"
)

func sampleSystem() *topology.System {
	sys := topology.New(4)
	sys.Box = topology.Box{Origin: [3]float64{-1, 0, 2}, L: [3]float64{10, 12, 14}}
	for i := 0; i < sys.N; i++ {
		sys.Type[i] = i % 2
		sys.Mass[i] = 12.011 + float64(i)
		sys.Charge[i] = []float64{-0.2, 0.2, -0.1, 0.1}[i]
		for k := 0; k < 3; k++ {
			sys.Pos[3*i+k] = float64(i) + 0.1*float64(k)
			sys.Vel[3*i+k] = 0.01 * float64(3*i+k)
		}
	}
	sys.Pairs = topology.NewPairTable([]topology.PairCoeff{
		{Epsilon: 0.054, Sigma: 4.01}, {Epsilon: 0.02, Sigma: 2.995},
	})
	bc := topology.BondCoeffs{R0: 1.53, K2: 299.67, K3: -501.77, K4: 679.81}
	sys.Bonds = []topology.Bond{{I: 0, J: 1, C: bc}, {I: 1, J: 2, C: bc}, {I: 2, J: 3, C: bc}}
	ac := topology.AngleCoeffs{Theta0: 112.67, K2: 39.516, K3: -7.443, K4: -9.5583}
	sys.Angles = []topology.Angle{{I: 0, J: 1, K: 2, C: ac}, {I: 1, J: 2, K: 3, C: ac}}
	sys.BuildExclusions(topology.DefaultWeights())
	return sys
}

func TestStateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	sys := sampleSystem()

	if err := WriteState(path, sys); err != nil {
		t.Fatalf("WriteState: %v", err)
	}
	got, err := ReadState(path)
	if err != nil {
		t.Fatalf("ReadState: %v", err)
	}

	if got.N != sys.N {
		t.Fatalf("N = %d, want %d", got.N, sys.N)
	}
	for i := range sys.Pos {
		if got.Pos[i] != sys.Pos[i] {
			t.Errorf("pos[%d] = %v, want %v", i, got.Pos[i], sys.Pos[i])
		}
		if got.Vel[i] != sys.Vel[i] {
			t.Errorf("vel[%d] = %v, want %v", i, got.Vel[i], sys.Vel[i])
		}
	}
	if got.Box != sys.Box {
		t.Errorf("box = %+v, want %+v", got.Box, sys.Box)
	}
	if len(got.Bonds) != len(sys.Bonds) || len(got.Angles) != len(sys.Angles) {
		t.Errorf("topology sizes changed: %d bonds %d angles", len(got.Bonds), len(got.Angles))
	}
	if got.Excl == nil {
		t.Fatal("exclusions not rebuilt")
	}
	if d := got.Excl.Distance(0, 1); d != 1 {
		t.Errorf("exclusion distance(0,1) = %d, want 1", d)
	}
	if d := got.Excl.Distance(0, 3); d != 3 {
		t.Errorf("exclusion distance(0,3) = %d, want 3", d)
	}
}

func TestReadStateRejectsInconsistentLengths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	data := `{"box_origin":[0,0,0],"box_length":[10,10,10],
		"type":[0,0],"mass":[1,1],"charge":[0],
		"pos":[0,0,0,1,0,0],"vel":[0,0,0,0,0,0],
		"pair_coeffs":[{"Epsilon":0.1,"Sigma":3}],"special_bonds":[0,0,1]}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadState(path); err == nil {
		t.Fatal("expected error for mismatched charge length")
	}
}

func TestRunLifecycle(t *testing.T) {
	store := New(t.TempDir())
	run, err := store.NewRun("protocol.yaml")
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}

	run.AddStage(StageMeta{
		Name: "min", Steps: 0, Outcome: "force tolerance",
		Final: map[string]float64{"pe": -12.5},
	})
	run.AddStage(StageMeta{
		Name: "nvt", Steps: 100, Timestep: 1.0, Seed: 42,
		Couplings: []string{"nvt"},
	})
	if err := run.WriteMetadata(); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}

	if err := os.WriteFile(run.ThermoPath("nvt"),
		[]byte("step,temp\n0,600\n50,580.5\n100,601.2\n"), 0644); err != nil {
		t.Fatal(err)
	}

	runs, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("List returned %d runs, want 1", len(runs))
	}
	if len(runs[0].Stages) != 2 || runs[0].Stages[1].Name != "nvt" {
		t.Errorf("stages not preserved: %+v", runs[0].Stages)
	}

	header, cols, err := store.LoadThermo(run.ID, "nvt")
	if err != nil {
		t.Fatalf("LoadThermo: %v", err)
	}
	if len(header) != 2 || header[1] != "temp" {
		t.Errorf("header = %v", header)
	}
	if len(cols[1]) != 3 || cols[1][2] != 601.2 {
		t.Errorf("temp column = %v", cols[1])
	}
}

func TestListSkipsUnreadableEntries(t *testing.T) {
	base := t.TempDir()
	store := New(base)
	if err := os.MkdirAll(filepath.Join(base, "run_bogus"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(base, "stray.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	runs, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("List returned %d runs, want 0", len(runs))
	}
}
