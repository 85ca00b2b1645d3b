// Package live renders a terminal dashboard for a running protocol: stage
// progress, the latest thermodynamic record, and short history sparklines.
package live

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/otmiM/polymatic/internal/thermo"
)

type recordMsg thermo.Record

type stageMsg struct {
	name  string
	steps int
}

type doneMsg struct{ err error }

// Monitor bridges the orchestrator and the terminal program. It drops records
// rather than block the simulation when the display lags or has quit.
type Monitor struct {
	msgs chan tea.Msg
}

func NewMonitor() *Monitor {
	return &Monitor{msgs: make(chan tea.Msg, 64)}
}

func (m *Monitor) Emit(r thermo.Record) { m.send(recordMsg(r)) }

// BeginStage resets the stage panel for the next protocol stage.
func (m *Monitor) BeginStage(name string, steps int) {
	m.send(stageMsg{name: name, steps: steps})
}

// Done signals the end of the run; the display exits after drawing the final
// state.
func (m *Monitor) Done(err error) { m.send(doneMsg{err: err}) }

func (m *Monitor) send(msg tea.Msg) {
	select {
	case m.msgs <- msg:
	default:
	}
}

// Run drives the display until the run finishes or the user quits.
func Run(m *Monitor) error {
	p := tea.NewProgram(newModel(m))
	_, err := p.Run()
	return err
}
