package agentpool

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/zjrosen/agentpool/internal/config"
	"github.com/zjrosen/agentpool/internal/pubsub"
	"github.com/zjrosen/agentpool/pool"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Run the pool with a live terminal dashboard",
	Long:  `Start the worker pool and display its status and event log in a full-screen terminal UI. Press q or Ctrl+C to stop.`,
	RunE:  runDashboard,
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}

var (
	stateReadyStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"})
	stateOverflowStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#E0A42C", Dark: "#F2C94C"})
	stateFullStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"})
	eventStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#6B6B6B", Dark: "#9B9B9B"})
	titleStyle = lipgloss.NewStyle().Bold(true)

	maxEventLog = 20
)

func stateStyle(s pool.State) lipgloss.Style {
	switch s {
	case pool.StateReady:
		return stateReadyStyle
	case pool.StateOverflow:
		return stateOverflowStyle
	default:
		return stateFullStyle
	}
}

type eventMsg pubsub.Event[pool.Event]

type dashboardModel struct {
	p      *pool.Pool
	cancel context.CancelFunc
	events chan pubsub.Event[pool.Event]

	snap pool.Snapshot
	log  []string
}

func newDashboardModel(p *pool.Pool) dashboardModel {
	ctx, cancel := context.WithCancel(context.Background())
	sub := p.Subscribe(ctx)

	fan := make(chan pubsub.Event[pool.Event])
	go func() {
		for ev := range sub {
			fan <- ev
		}
		close(fan)
	}()

	return dashboardModel{p: p, cancel: cancel, events: fan, snap: p.Snapshot()}
}

func (m dashboardModel) Init() tea.Cmd {
	return m.waitForEvent
}

func (m dashboardModel) waitForEvent() tea.Msg {
	ev, ok := <-m.events
	if !ok {
		return nil
	}
	return eventMsg(ev)
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.cancel()
			return m, tea.Quit
		}
	case eventMsg:
		m.snap = m.p.Snapshot()
		line := formatEvent(pool.Event(msg.Payload))
		m.log = append(m.log, line)
		if len(m.log) > maxEventLog {
			m.log = m.log[len(m.log)-maxEventLog:]
		}
		return m, m.waitForEvent
	}
	return m, nil
}

func (m dashboardModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("agentpool dashboard") + "\n\n")

	st := m.snap.Status
	b.WriteString(fmt.Sprintf("state: %s   idle: %d   overflow: %d   busy: %d   waiters: %d\n\n",
		stateStyle(st.State).Render(string(st.State)), st.Idle, st.Overflow, st.Busy, m.snap.Waiters))

	b.WriteString(titleStyle.Render("workers") + "\n")
	for _, w := range m.snap.Workers {
		indicator := "○"
		if w.Busy {
			indicator = "●"
		}
		b.WriteString(fmt.Sprintf("  %s %s\n", indicator, w.Worker))
	}

	b.WriteString("\n" + titleStyle.Render("events") + "\n")
	for _, line := range m.log {
		b.WriteString(eventStyle.Render(line) + "\n")
	}

	b.WriteString("\nq to quit\n")
	return b.String()
}

func formatEvent(ev pool.Event) string {
	return fmt.Sprintf("%s  %-16s  %s", ev.At.Format(time.TimeOnly), ev.Kind, ev.Worker)
}

func runDashboard(_ *cobra.Command, _ []string) error {
	cleanup, err := initDebugLogging("agentpool-dashboard")
	if err != nil {
		return err
	}
	defer cleanup()

	p, mp, tp, err := buildPool()
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mp.Shutdown(ctx)
		_ = tp.Shutdown(ctx)
		p.Stop()
	}()

	config.Watch(v, func(c config.Config) {
		p.Reconfigure(c.MaxOverflow, c.PoolStrategy())
	})

	program := newProgram(newDashboardModel(p))
	_, err = program.Run()
	return err
}
