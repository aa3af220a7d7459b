package viz

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Frame is one live-view sample of a running batch.
type Frame struct {
	T          float64 // mean lane time [s]
	MeanEnergy float64 // [keV]
	MeanPitch  float64
	Active     int
	Accepted   int
	Rejected   int
}

// Stepper advances the simulation by one chunk and reports the new frame.
// done terminates the live view.
type Stepper func() (frame Frame, done bool)

type tickMsg time.Time

type liveModel struct {
	step    Stepper
	history []float64
	latest  Frame
	done    bool
	fps     int
}

// RunLive drives a batch stepper under a bubbletea live display.
func RunLive(step Stepper, fps int) error {
	if fps <= 0 {
		fps = 30
	}
	m := liveModel{step: step, fps: fps}
	_, err := tea.NewProgram(m).Run()
	return err
}

func (m liveModel) tick() tea.Cmd {
	return tea.Tick(time.Second/time.Duration(m.fps), func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m liveModel) Init() tea.Cmd {
	return m.tick()
}

func (m liveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tickMsg:
		if m.done {
			return m, tea.Quit
		}
		frame, done := m.step()
		m.latest = frame
		m.done = done
		m.history = append(m.history, frame.MeanEnergy)
		if len(m.history) > 600 {
			m.history = m.history[len(m.history)-600:]
		}
		return m, m.tick()
	}
	return m, nil
}

func (m liveModel) View() string {
	graph := Series("mean energy [keV]", Downsample(m.history, 360), 72, 12)
	stats := Summary(
		KeyValue("time", "%.3e s", m.latest.T),
		KeyValue("energy", "%.1f keV", m.latest.MeanEnergy),
		KeyValue("pitch", "%+.3f", m.latest.MeanPitch),
		KeyValue("active", "%d", m.latest.Active),
		KeyValue("accepted", "%d", m.latest.Accepted),
		KeyValue("rejected", "%d", m.latest.Rejected),
	)
	help := "q to quit"
	if m.done {
		help = "finished; q to quit"
	}
	return fmt.Sprintf("%s\n\n%s\n%s\n%s\n", Header("collide live"), graph, stats, help)
}
