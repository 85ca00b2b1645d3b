package live

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/otmiM/polymatic/internal/thermo"
)

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

const historyLen = 60

type model struct {
	monitor *Monitor

	stage    string
	steps    int
	last     thermo.Record
	haveData bool

	tempHist []float64
	peHist   []float64

	done bool
	err  error
}

func newModel(m *Monitor) model {
	return model{monitor: m}
}

func (m model) waitMsg() tea.Cmd {
	return func() tea.Msg { return <-m.monitor.msgs }
}

func (m model) Init() tea.Cmd { return m.waitMsg() }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		return m, nil
	case stageMsg:
		m.stage = msg.name
		m.steps = msg.steps
		m.tempHist = nil
		m.peHist = nil
		return m, m.waitMsg()
	case recordMsg:
		m.last = thermo.Record(msg)
		m.haveData = true
		m.tempHist = push(m.tempHist, m.last.Temp)
		m.peHist = push(m.peHist, m.last.PotEng)
		return m, m.waitMsg()
	case doneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func push(hist []float64, v float64) []float64 {
	hist = append(hist, v)
	if len(hist) > historyLen {
		hist = hist[1:]
	}
	return hist
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(dimmer.Render("   ╺━━━━━━━━━━━━━━━━━━━━━━━━╸") + "\n")
	b.WriteString("        " + cyan.Render("p o l y m d") + "\n")
	b.WriteString(dimmer.Render("   ╺━━━━━━━━━━━━━━━━━━━━━━━━╸") + "\n\n")

	status := green.Render("● running")
	if m.done {
		if m.err != nil {
			status = red.Render("● " + m.err.Error())
		} else {
			status = yellow.Render("○ finished")
		}
	}
	stage := m.stage
	if stage == "" {
		stage = "starting"
	}
	b.WriteString(fmt.Sprintf("   %s %s\n\n", cyan.Render(stage), status))

	if m.steps > 0 && m.haveData {
		progress := float64(m.last.Step) / float64(m.steps)
		if progress > 1 {
			progress = 1
		}
		const barWidth = 36
		filled := int(progress * barWidth)
		bar := cyan.Render(strings.Repeat("━", filled)) +
			dimmer.Render(strings.Repeat("─", barWidth-filled))
		b.WriteString(fmt.Sprintf("   %s %s\n\n", bar,
			dim.Render(fmt.Sprintf("%d/%d", m.last.Step, m.steps))))
	}

	if m.haveData {
		r := m.last
		row := func(label string, value string) {
			b.WriteString("   " + dim.Render(fmt.Sprintf("%-8s", label)) + white.Render(value) + "\n")
		}
		row("temp", fmt.Sprintf("%10.2f K", r.Temp))
		row("press", fmt.Sprintf("%10.1f atm", r.Press))
		row("volume", fmt.Sprintf("%10.1f A^3", r.Volume))
		row("etotal", fmt.Sprintf("%10.3f kcal/mol", r.TotEng))
		row("pe", fmt.Sprintf("%10.3f kcal/mol", r.PotEng))
		row("ke", fmt.Sprintf("%10.3f kcal/mol", r.KinEng))

		if len(m.tempHist) > 1 {
			b.WriteString(fmt.Sprintf("\n   %s %s\n", dim.Render("T"), cyan.Render(sparkline(m.tempHist, 32))))
		}
		if len(m.peHist) > 1 {
			b.WriteString(fmt.Sprintf("   %s %s\n", dim.Render("U"), yellow.Render(sparkline(m.peHist, 32))))
		}
	} else {
		b.WriteString(dim.Render("   waiting for first record...") + "\n")
	}

	b.WriteString("\n" + dim.Render("   q quit") + "\n")
	return b.String()
}

func sparkline(data []float64, width int) string {
	if len(data) == 0 {
		return ""
	}
	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	minVal, maxVal := data[0], data[0]
	for _, v := range data {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	rang := maxVal - minVal
	if rang == 0 {
		rang = 1
	}
	step := len(data) / width
	if step < 1 {
		step = 1
	}
	var sb strings.Builder
	for i := 0; i < width && i*step < len(data); i++ {
		idx := int((data[i*step] - minVal) / rang * 7)
		if idx > 7 {
			idx = 7
		}
		if idx < 0 {
			idx = 0
		}
		sb.WriteRune(chars[idx])
	}
	return sb.String()
}
