package protocol

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/otmiM/polymatic/internal/forcefield"
	"github.com/otmiM/polymatic/internal/integrate"
	"github.com/otmiM/polymatic/internal/minimize"
	"github.com/otmiM/polymatic/internal/storage"
	"github.com/otmiM/polymatic/internal/thermo"
	"github.com/otmiM/polymatic/internal/topology"
)

// Orchestrator executes a protocol's stages in order. Each stage reads its
// input from the previous stage's persisted snapshot (the protocol source for
// the first) and runs against its own evaluator, so a stage is a transformation
// of persisted state and nothing else. Each completed stage persists a state
// snapshot and a thermo trace; a cancelled stage persists the state of its
// last completed step; a failed force evaluation persists nothing from the
// failing stage.
type Orchestrator struct {
	cfg   *Protocol
	store *storage.Store

	// Sink, when set, additionally receives every emitted record (live view,
	// console table).
	Sink thermo.Sink

	// Progress receives per-stage status lines; nil silences them.
	Progress io.Writer
}

// StageSink is an optional extension of thermo.Sink notified when a new stage
// begins.
type StageSink interface {
	thermo.Sink
	BeginStage(name string, steps int)
}

func NewOrchestrator(cfg *Protocol, store *storage.Store) *Orchestrator {
	return &Orchestrator{cfg: cfg, store: store}
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.Progress != nil {
		fmt.Fprintf(o.Progress, format+"\n", args...)
	}
}

// Run loads the source state, runs every stage, and returns the run record.
// The run's metadata is written even when a stage fails partway.
func (o *Orchestrator) Run(ctx context.Context) (*storage.Run, error) {
	// Reject an unreadable source before a run directory exists.
	sys, err := storage.ReadState(o.cfg.Source)
	if err != nil {
		return nil, err
	}

	run, err := o.store.NewRun(o.cfg.Source)
	if err != nil {
		return nil, err
	}

	fail := func(name string, err error) (*storage.Run, error) {
		if werr := run.WriteMetadata(); werr != nil {
			o.logf("write metadata: %v", werr)
		}
		return run, fmt.Errorf("stage %q: %w", name, err)
	}

	for i, st := range o.cfg.Stages {
		if i > 0 {
			// Hand-off goes through the previous stage's snapshot, not the
			// in-memory system, so every stage starts from inspectable state.
			sys, err = storage.ReadState(run.StatePath(o.cfg.Stages[i-1].Name))
			if err != nil {
				return fail(st.Name, err)
			}
		}
		eval, err := forcefield.New(sys, o.cfg.Force.evaluator())
		if err != nil {
			return fail(st.Name, err)
		}
		eval.SetShift(st.shifted())

		o.logf("stage %s (%s)", st.Name, st.Kind)
		if ss, ok := o.Sink.(StageSink); ok {
			ss.BeginStage(st.Name, st.Steps)
		}

		var meta storage.StageMeta
		switch st.Kind {
		case "minimize":
			meta, err = o.runMinimize(ctx, sys, eval, run, st)
		case "dynamics":
			meta, err = o.runDynamics(ctx, sys, eval, run, st)
		default:
			err = fmt.Errorf("unknown kind %q", st.Kind)
		}
		run.AddStage(meta)
		if err != nil {
			return fail(st.Name, err)
		}
		o.logf("stage %s: %s", st.Name, meta.Outcome)
	}

	if err := run.WriteMetadata(); err != nil {
		return run, err
	}
	return run, nil
}

func (o *Orchestrator) runMinimize(ctx context.Context, sys *topology.System, eval *forcefield.Evaluator, run *storage.Run, st StageConfig) (storage.StageMeta, error) {
	meta := storage.StageMeta{Name: st.Name}

	mc := st.Minimize
	if mc == nil {
		mc = &MinimizeConfig{}
	}
	mc.fill()

	m := minimize.New(sys, eval)
	res, err := m.Run(ctx,
		minimize.Config{Etol: mc.Etol, Ftol: mc.Ftol, MaxIter: mc.SDSteps, MaxEval: mc.MaxEval},
		minimize.Config{Etol: mc.Etol, Ftol: mc.Ftol, MaxIter: mc.MaxIter, MaxEval: mc.MaxEval},
	)
	if err != nil {
		if ctx.Err() != nil {
			// Positions are left at the best accepted point; keep them.
			meta.Outcome = "cancelled"
			if werr := storage.WriteState(run.StatePath(st.Name), sys); werr != nil {
				return meta, werr
			}
			return meta, err
		}
		meta.Outcome = fmt.Sprintf("failed: %v", err)
		return meta, err
	}

	last := res.Phases[len(res.Phases)-1]
	meta.Outcome = last.Reason.String()
	meta.Steps = 0
	for _, ph := range res.Phases {
		meta.Steps += ph.Iters
	}
	meta.Final = map[string]float64{"pe": res.Energy, "fnorm": last.Fnorm}

	if err := storage.WriteState(run.StatePath(st.Name), sys); err != nil {
		return meta, err
	}
	return meta, nil
}

func (o *Orchestrator) runDynamics(ctx context.Context, sys *topology.System, eval *forcefield.Evaluator, run *storage.Run, st StageConfig) (storage.StageMeta, error) {
	meta := storage.StageMeta{Name: st.Name, Timestep: st.Timestep}

	if st.Velocity != nil {
		AssignVelocities(sys, st.Velocity.Temp, st.Velocity.Seed)
		meta.Seed = st.Velocity.Seed
	}

	vv := integrate.NewVelocityVerlet(sys, eval, st.Timestep)
	if err := attachFixes(vv.Couplings(), st.Fixes); err != nil {
		return meta, err
	}
	meta.Couplings = vv.Couplings().Names()

	out, err := os.Create(run.ThermoPath(st.Name))
	if err != nil {
		return meta, err
	}
	defer out.Close()

	trace := &thermo.Trace{}
	sink := thermo.Multi{thermo.NewCSV(out), trace}
	if o.Sink != nil {
		sink = append(sink, o.Sink)
	}

	if err := vv.Init(); err != nil {
		meta.Outcome = fmt.Sprintf("failed: %v", err)
		return meta, err
	}
	sink.Emit(thermo.NewRecord(sys, vv.Last(), 0, 0))

	every := st.Every
	if every <= 0 {
		every = DefaultEvery
	}

	finish := func(steps int, outcome string) {
		meta.Steps = steps
		meta.Outcome = outcome
		if len(trace.Records) > 0 {
			last := trace.Records[len(trace.Records)-1]
			meta.Final = map[string]float64{
				"temp": last.Temp, "press": last.Press,
				"volume": last.Volume, "pe": last.PotEng,
			}
		}
	}

	for step := 1; step <= st.Steps; step++ {
		select {
		case <-ctx.Done():
			// The state is that of the last completed step; keep it.
			sink.Emit(thermo.NewRecord(sys, vv.Last(), step-1, float64(step-1)*st.Timestep))
			finish(step-1, "cancelled")
			if werr := storage.WriteState(run.StatePath(st.Name), sys); werr != nil {
				return meta, werr
			}
			return meta, ctx.Err()
		default:
		}

		res, err := vv.Step(float64(step) / float64(st.Steps))
		if err != nil {
			finish(step-1, fmt.Sprintf("failed: %v", err))
			return meta, err
		}
		if step%every == 0 || step == st.Steps {
			sink.Emit(thermo.NewRecord(sys, res, step, float64(step)*st.Timestep))
		}
	}

	finish(st.Steps, "completed")
	if err := storage.WriteState(run.StatePath(st.Name), sys); err != nil {
		return meta, err
	}
	return meta, nil
}
