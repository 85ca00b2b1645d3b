package protocol

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/otmiM/polymatic/internal/forcefield"
	"github.com/otmiM/polymatic/internal/storage"
	"github.com/otmiM/polymatic/internal/thermo"
	"github.com/otmiM/polymatic/internal/topology"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default protocol invalid: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mangle func(*Protocol)
	}{
		{"no stages", func(p *Protocol) { p.Stages = nil }},
		{"empty source", func(p *Protocol) { p.Source = "" }},
		{"zero cutoff", func(p *Protocol) { p.Force.Cutoff = 0 }},
		{"duplicate names", func(p *Protocol) { p.Stages[1].Name = p.Stages[0].Name }},
		{"unknown kind", func(p *Protocol) { p.Stages[0].Kind = "anneal" }},
		{"unknown fix", func(p *Protocol) { p.Stages[1].Fixes[0].Type = "langevin" }},
		{"zero steps", func(p *Protocol) { p.Stages[1].Steps = 0 }},
		{"zero timestep", func(p *Protocol) { p.Stages[1].Timestep = 0 }},
	}
	for _, tc := range cases {
		p := Default()
		tc.mangle(p)
		if err := p.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "protocol.yaml")
	want := Default()
	if err := Save(path, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Stages) != len(want.Stages) {
		t.Fatalf("stages = %d, want %d", len(got.Stages), len(want.Stages))
	}
	if got.Stages[1].Fixes[0].Tstart != 600 {
		t.Errorf("nvt tstart = %g", got.Stages[1].Fixes[0].Tstart)
	}
	if got.Force.Cutoff != want.Force.Cutoff || !got.Force.LongRange {
		t.Errorf("force config changed: %+v", got.Force)
	}
}

func fluid(n int, spacing float64) *topology.System {
	side := int(math.Ceil(math.Cbrt(float64(n))))
	sys := topology.New(n)
	l := float64(side) * spacing
	sys.Box = topology.Box{L: [3]float64{l, l, l}}
	i := 0
	for x := 0; x < side && i < n; x++ {
		for y := 0; y < side && i < n; y++ {
			for z := 0; z < side && i < n; z++ {
				sys.Pos[3*i] = float64(x) * spacing
				sys.Pos[3*i+1] = float64(y) * spacing
				sys.Pos[3*i+2] = float64(z) * spacing
				sys.Mass[i] = 12.011
				i++
			}
		}
	}
	sys.Pairs = topology.NewPairTable([]topology.PairCoeff{{Epsilon: 0.06, Sigma: spacing}})
	sys.BuildExclusions(topology.DefaultWeights())
	return sys
}

func TestAssignVelocities(t *testing.T) {
	sys := fluid(27, 4.0)
	AssignVelocities(sys, 300, 7)

	if got := thermo.Temperature(sys); math.Abs(got-300) > 1e-8 {
		t.Errorf("temperature = %v, want 300", got)
	}

	var p [3]float64
	for i := 0; i < sys.N; i++ {
		for k := 0; k < 3; k++ {
			p[k] += sys.Mass[i] * sys.Vel[3*i+k]
		}
	}
	for k := 0; k < 3; k++ {
		if math.Abs(p[k]) > 1e-9 {
			t.Errorf("net momentum component %d = %v", k, p[k])
		}
	}

	first := append([]float64(nil), sys.Vel...)
	AssignVelocities(sys, 300, 7)
	for i := range first {
		if sys.Vel[i] != first[i] {
			t.Fatal("same seed produced different velocities")
		}
	}
	AssignVelocities(sys, 300, 8)
	same := true
	for i := range first {
		if sys.Vel[i] != first[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds produced identical velocities")
	}
}

func shortProtocol(dir string) *Protocol {
	return &Protocol{
		Source: filepath.Join(dir, "state.json"),
		Output: filepath.Join(dir, "runs"),
		Force:  ForceConfig{Cutoff: 6, Workers: 2},
		Stages: []StageConfig{
			{
				Name: "min", Kind: "minimize",
				Minimize: &MinimizeConfig{MaxIter: 50, SDSteps: 20, MaxEval: 500},
			},
			{
				Name: "nvt", Kind: "dynamics",
				Steps: 40, Timestep: 0.5, Every: 10,
				Velocity: &VelocityConfig{Temp: 100, Seed: 12345},
				Fixes:    []FixConfig{{Type: "nvt", Tstart: 100, Tstop: 100, Tdamp: 50}},
			},
		},
	}
}

func TestOrchestratorRunsStages(t *testing.T) {
	dir := t.TempDir()
	cfg := shortProtocol(dir)
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if err := storage.WriteState(cfg.Source, fluid(27, 4.0)); err != nil {
		t.Fatal(err)
	}

	store := storage.New(cfg.Output)
	run, err := NewOrchestrator(cfg, store).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(run.Meta.Stages) != 2 {
		t.Fatalf("recorded %d stages, want 2", len(run.Meta.Stages))
	}
	if run.Meta.Stages[1].Outcome != "completed" {
		t.Errorf("nvt outcome = %q", run.Meta.Stages[1].Outcome)
	}
	if run.Meta.Stages[1].Steps != 40 {
		t.Errorf("nvt steps = %d, want 40", run.Meta.Stages[1].Steps)
	}

	// Each stage leaves a loadable snapshot and the dynamics stage a trace.
	for _, stage := range []string{"min", "nvt"} {
		if _, err := storage.ReadState(run.StatePath(stage)); err != nil {
			t.Errorf("state for %s: %v", stage, err)
		}
	}
	header, cols, err := store.LoadThermo(run.ID, "nvt")
	if err != nil {
		t.Fatalf("LoadThermo: %v", err)
	}
	if len(header) != len(thermo.Fields) {
		t.Errorf("trace header %v", header)
	}
	if len(cols[0]) < 4 {
		t.Errorf("trace has %d rows", len(cols[0]))
	}
}

func TestStagesChainThroughSnapshots(t *testing.T) {
	dir := t.TempDir()
	hold := StageConfig{
		Name: "hold", Kind: "dynamics",
		Steps: 20, Timestep: 0.5, Every: 10,
		Fixes: []FixConfig{{Type: "nvt", Tstart: 100, Tstop: 100, Tdamp: 50}},
	}
	cfg := &Protocol{
		Source: filepath.Join(dir, "state.json"),
		Output: filepath.Join(dir, "runs"),
		Force:  ForceConfig{Cutoff: 6, Workers: 1},
		Stages: []StageConfig{
			{
				Name: "warm", Kind: "dynamics",
				Steps: 20, Timestep: 0.5, Every: 10,
				Velocity: &VelocityConfig{Temp: 100, Seed: 99},
				Fixes:    []FixConfig{{Type: "nvt", Tstart: 100, Tstop: 100, Tdamp: 50}},
			},
			hold,
		},
	}
	if err := storage.WriteState(cfg.Source, fluid(27, 4.0)); err != nil {
		t.Fatal(err)
	}
	chained, err := NewOrchestrator(cfg, storage.New(cfg.Output)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Replaying the second stage alone from the first stage's snapshot must
	// reproduce the chained run bit for bit: the snapshot, not in-process
	// state, is the hand-off between stages.
	replay := &Protocol{
		Source: chained.StatePath("warm"),
		Output: filepath.Join(dir, "replay"),
		Force:  cfg.Force,
		Stages: []StageConfig{hold},
	}
	replayed, err := NewOrchestrator(replay, storage.New(replay.Output)).Run(context.Background())
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	want, err := storage.ReadState(chained.StatePath("hold"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := storage.ReadState(replayed.StatePath("hold"))
	if err != nil {
		t.Fatal(err)
	}
	for i := range want.Pos {
		if got.Pos[i] != want.Pos[i] || got.Vel[i] != want.Vel[i] {
			t.Fatalf("replayed stage diverged at component %d", i)
		}
	}
}

func TestStageShiftFollowsKindUnlessSet(t *testing.T) {
	on, off := true, false
	cases := []struct {
		st   StageConfig
		want bool
	}{
		{StageConfig{Kind: "minimize"}, true},
		{StageConfig{Kind: "dynamics"}, false},
		{StageConfig{Kind: "minimize", Shift: &off}, false},
		{StageConfig{Kind: "dynamics", Shift: &on}, true},
	}
	for _, tc := range cases {
		if got := tc.st.shifted(); got != tc.want {
			t.Errorf("kind %q shift %v: shifted() = %v, want %v",
				tc.st.Kind, tc.st.Shift, got, tc.want)
		}
	}
}

func TestMinimizeShiftOverride(t *testing.T) {
	dir := t.TempDir()
	cfg := shortProtocol(dir)
	cfg.Stages = cfg.Stages[:1]
	off := false
	cfg.Stages[0].Shift = &off
	if err := storage.WriteState(cfg.Source, fluid(27, 4.0)); err != nil {
		t.Fatal(err)
	}
	run, err := NewOrchestrator(cfg, storage.New(cfg.Output)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The recorded final energy must match an unshifted evaluation of the
	// persisted minimum; a kind-implied shift would offset it by the cutoff
	// energy of every listed pair.
	sys, err := storage.ReadState(run.StatePath("min"))
	if err != nil {
		t.Fatal(err)
	}
	eval, err := forcefield.New(sys, cfg.Force.evaluator())
	if err != nil {
		t.Fatal(err)
	}
	res, err := eval.Compute()
	if err != nil {
		t.Fatal(err)
	}
	got := run.Meta.Stages[0].Final["pe"]
	if want := res.E.Potential(); math.Abs(got-want) > 1e-9 {
		t.Errorf("minimized pe %v, want unshifted energy %v", got, want)
	}
}

func TestOrchestratorCancelPersists(t *testing.T) {
	dir := t.TempDir()
	cfg := shortProtocol(dir)
	cfg.Stages = cfg.Stages[1:] // dynamics only
	if err := storage.WriteState(cfg.Source, fluid(27, 4.0)); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := storage.New(cfg.Output)
	run, err := NewOrchestrator(cfg, store).Run(ctx)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if run == nil {
		t.Fatal("run record missing")
	}
	if run.Meta.Stages[0].Outcome != "cancelled" {
		t.Errorf("outcome = %q", run.Meta.Stages[0].Outcome)
	}
	if _, err := storage.ReadState(run.StatePath("nvt")); err != nil {
		t.Errorf("cancelled stage did not persist state: %v", err)
	}
	// Metadata was still written.
	if _, err := store.Load(run.ID); err != nil {
		t.Errorf("metadata: %v", err)
	}
}

func TestOrchestratorSinkReceivesRecords(t *testing.T) {
	dir := t.TempDir()
	cfg := shortProtocol(dir)
	cfg.Stages = cfg.Stages[1:]
	if err := storage.WriteState(cfg.Source, fluid(8, 4.0)); err != nil {
		t.Fatal(err)
	}

	trace := &thermo.Trace{}
	o := NewOrchestrator(cfg, storage.New(cfg.Output))
	o.Sink = trace
	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(trace.Records) < 4 {
		t.Errorf("sink received %d records", len(trace.Records))
	}
}
