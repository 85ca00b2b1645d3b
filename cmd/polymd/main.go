package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/otmiM/polymatic/internal/live"
	"github.com/otmiM/polymatic/internal/protocol"
	"github.com/otmiM/polymatic/internal/storage"
	"github.com/otmiM/polymatic/internal/thermo"
)

var (
	dataDir    string
	source     string
	workers    int
	permissive bool
	liveView   bool
	quiet      bool
	fields     string
	stage      string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "polymd",
		Short: "staged molecular dynamics for polymer systems",
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "run directory (overrides protocol output)")

	runCmd := &cobra.Command{
		Use:   "run [protocol.yaml]",
		Short: "run a protocol",
		Args:  cobra.ExactArgs(1),
		RunE:  runProtocol,
	}
	runCmd.Flags().StringVar(&source, "source", "", "initial state file (overrides protocol source)")
	runCmd.Flags().IntVar(&workers, "workers", 0, "force evaluation workers (0 = all cores)")
	runCmd.Flags().BoolVar(&permissive, "permissive", false, "downgrade unreachable long-range accuracy to best effort")
	runCmd.Flags().BoolVar(&liveView, "live", false, "show the live dashboard")
	runCmd.Flags().BoolVar(&quiet, "quiet", false, "suppress the thermo table")

	initCmd := &cobra.Command{
		Use:   "init [protocol.yaml]",
		Short: "write the default protocol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err == nil {
				return fmt.Errorf("%s already exists", args[0])
			}
			if err := protocol.Save(args[0], protocol.Default()); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", args[0])
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "print run metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stage's thermo trace",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&stage, "stage", "", "stage name (default: last dynamics stage)")
	plotCmd.Flags().StringVar(&fields, "fields", "temp,press,pe", "comma-separated columns to plot")

	rootCmd.AddCommand(runCmd, initCmd, listCmd, showCmd, plotCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func store() *storage.Store {
	dir := dataDir
	if dir == "" {
		dir = "runs"
	}
	return storage.New(dir)
}

func runProtocol(cmd *cobra.Command, args []string) error {
	cfg, err := protocol.Load(args[0])
	if err != nil {
		return err
	}
	if source != "" {
		cfg.Source = source
	}
	if cmd.Flags().Changed("workers") {
		cfg.Force.Workers = workers
	}
	if permissive {
		cfg.Force.Permissive = true
	}
	out := cfg.Output
	if dataDir != "" {
		out = dataDir
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	o := protocol.NewOrchestrator(cfg, storage.New(out))

	start := time.Now()
	if liveView {
		mon := live.NewMonitor()
		o.Sink = mon
		var run *storage.Run
		err := runWithDashboard(ctx,
			func() error { return live.Run(mon) },
			func(ctx context.Context) error {
				r, rerr := o.Run(ctx)
				run = r
				mon.Done(rerr)
				return rerr
			})
		if run != nil {
			fmt.Printf("run id: %s\n", run.ID)
		}
		return err
	}

	if !quiet {
		o.Sink = thermo.NewTable(os.Stdout)
	}
	o.Progress = os.Stderr

	run, err := o.Run(ctx)
	if run != nil {
		fmt.Printf("completed in %v\n", time.Since(start).Round(time.Millisecond))
		fmt.Printf("run id: %s\n", run.ID)
	}
	return err
}

// runWithDashboard runs fn under the dashboard UI. Bubbletea swallows ctrl+c
// as a key event, so quitting the UI must cancel fn's context; the call then
// waits for fn to persist its last completed step before returning.
func runWithDashboard(ctx context.Context, ui func() error, fn func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	uiErr := ui()
	cancel()
	err := <-done
	if uiErr != nil {
		return uiErr
	}
	return err
}

func listRuns(cmd *cobra.Command, args []string) error {
	runs, err := store().List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tSOURCE\tSTAGES\tOUTCOME")
	for _, run := range runs {
		outcome := ""
		names := make([]string, 0, len(run.Stages))
		for _, st := range run.Stages {
			names = append(names, st.Name)
			outcome = st.Outcome
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			run.ID,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Source,
			strings.Join(names, ","),
			outcome,
		)
	}
	return w.Flush()
}

func showRun(cmd *cobra.Command, args []string) error {
	meta, err := store().Load(args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func plotRun(cmd *cobra.Command, args []string) error {
	st := store()
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}

	name := stage
	if name == "" {
		for _, s := range meta.Stages {
			if s.Timestep > 0 {
				name = s.Name
			}
		}
	}
	if name == "" {
		return fmt.Errorf("run %s has no dynamics stage", meta.ID)
	}

	header, cols, err := st.LoadThermo(meta.ID, name)
	if err != nil {
		return err
	}
	col := func(field string) []float64 {
		for i, h := range header {
			if h == field {
				return cols[i]
			}
		}
		return nil
	}

	fmt.Printf("run: %s  stage: %s  samples: %d\n\n", meta.ID, name, len(cols[0]))

	for _, field := range strings.Split(fields, ",") {
		field = strings.TrimSpace(field)
		data := col(field)
		if data == nil {
			fmt.Printf("unknown column %q (have %v)\n\n", field, header)
			continue
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(field),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}
