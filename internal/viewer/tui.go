package viewer

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"droneops-relay/internal/scan"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

type updateMsg struct{ Update }

type doneMsg struct{ err error }

const feedRows = 10

var stateColors = map[State]lipgloss.Color{
	Connecting: lipgloss.Color("11"),
	Pushing:    lipgloss.Color("10"),
	Polling:    lipgloss.Color("14"),
	Closed:     lipgloss.Color("8"),
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

type tuiModel struct {
	droneID  string
	state    State
	waiting  bool
	latest   *scan.Batch
	extent   string
	received time.Time
	updates  int
	feed     []scan.Summary
	table    table.Model
	width    int
	err      error
	now      func() time.Time
}

func newTUIModel(droneID string) tuiModel {
	cols := []table.Column{
		{Title: "Drone", Width: 16},
		{Title: "Timestamp", Width: 28},
		{Title: "Points", Width: 8},
	}
	t := table.New(table.WithColumns(cols), table.WithHeight(feedRows+1))
	return tuiModel{droneID: droneID, table: t, now: time.Now}
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.table.SetWidth(msg.Width)
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case updateMsg:
		m.apply(msg.Update)
	case doneMsg:
		m.state = Closed
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m *tuiModel) apply(u Update) {
	m.state = u.State
	m.waiting = u.Waiting
	if u.Batch != nil {
		m.latest = u.Batch
		m.extent = pointExtent(u.Batch)
		m.received = m.now()
		m.updates++
		m.waiting = false
	}
	if u.Summary != nil {
		m.feed = append([]scan.Summary{*u.Summary}, m.feed...)
		if len(m.feed) > feedRows {
			m.feed = m.feed[:feedRows]
		}
		rows := make([]table.Row, 0, len(m.feed))
		for _, s := range m.feed {
			rows = append(rows, table.Row{
				truncate.StringWithTail(s.DroneID, 16, "…"),
				truncate.StringWithTail(s.Timestamp, 28, "…"),
				fmt.Sprintf("%.0f", s.PointCount),
			})
		}
		m.table.SetRows(rows)
	}
}

func (m tuiModel) View() string {
	sections := []string{m.renderHeader(), m.renderLatest(), titleStyle.Render("Activity"), m.table.View()}
	if m.err != nil {
		sections = append(sections, errStyle.Render(m.wrap("error: "+m.err.Error())))
	}
	sections = append(sections, dimStyle.Render("q to quit"))
	return strings.Join(sections, "\n")
}

func (m tuiModel) renderHeader() string {
	state := lipgloss.NewStyle().Foreground(stateColors[m.state]).Render("● " + m.state.String())
	if m.waiting && m.latest == nil {
		state += dimStyle.Render("  waiting for data")
	}
	return titleStyle.Render("drone "+m.droneID) + "  " + state
}

func (m tuiModel) renderLatest() string {
	if m.latest == nil {
		return dimStyle.Render("no batch received")
	}
	s := m.latest.Stats
	line := fmt.Sprintf("scan %s  points=%.0f valid=%.0f dist=[%.1f..%.1f] avg=%.1f quality=%.1f  (%d updates, last %s ago)",
		m.latest.Timestamp, s.PointCount, s.ValidPoints, s.MinDistance, s.MaxDistance, s.AvgDistance, s.AvgQuality,
		m.updates, m.now().Sub(m.received).Truncate(time.Millisecond))
	if m.extent != "" {
		line += "\n" + m.extent
	}
	return m.wrap(line)
}

// pointExtent describes the x/y bounding box of the batch's valid points.
func pointExtent(b *scan.Batch) string {
	pts, err := b.DecodePoints()
	if err != nil {
		return "points undecodable: " + err.Error()
	}
	var minX, maxX, minY, maxY float64
	n := 0
	for _, p := range pts {
		if p.Distance <= 0 {
			continue
		}
		if n == 0 {
			minX, maxX, minY, maxY = p.X, p.X, p.Y, p.Y
		} else {
			minX, maxX = min(minX, p.X), max(maxX, p.X)
			minY, maxY = min(minY, p.Y), max(maxY, p.Y)
		}
		n++
	}
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("extent x=[%.1f..%.1f] y=[%.1f..%.1f] over %d points", minX, maxX, minY, maxY, n)
}

func (m tuiModel) wrap(s string) string {
	if m.width <= 0 {
		return s
	}
	return wordwrap.String(s, m.width)
}

// forward returns an emit func that hands updates to the program.
func forward(p teaProgram) func(Update) {
	return func(u Update) { p.Send(updateMsg{u}) }
}

// RunTUI drives n and renders its updates until ctx is done or the user
// quits.
func RunTUI(ctx context.Context, n *Negotiator) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newTUIModel(n.DroneID()), tea.WithAltScreen())
	runErr := make(chan error, 1)
	go func() {
		err := n.Run(ctx, forward(p))
		runErr <- err
		p.Send(doneMsg{err: err})
	}()
	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	_, err := p.Run()
	cancel()
	if nerr := <-runErr; nerr != nil {
		return nerr
	}
	return err
}

// RunLines drives n and prints one line per update. Used when stdout is
// not a terminal.
func RunLines(ctx context.Context, n *Negotiator, w io.Writer) error {
	return n.Run(ctx, func(u Update) {
		fmt.Fprintln(w, FormatUpdate(u))
	})
}

// FormatUpdate renders an update as a single log-style line.
func FormatUpdate(u Update) string {
	switch {
	case u.Batch != nil:
		return fmt.Sprintf("%s batch drone=%s ts=%s points=%.0f valid=%.0f avg_distance=%.1f",
			u.State, u.Batch.DroneID, u.Batch.Timestamp, u.Batch.Stats.PointCount, u.Batch.Stats.ValidPoints, u.Batch.Stats.AvgDistance)
	case u.Summary != nil:
		return fmt.Sprintf("%s summary drone=%s ts=%s points=%.0f", u.State, u.Summary.DroneID, u.Summary.Timestamp, u.Summary.PointCount)
	case u.Waiting:
		return fmt.Sprintf("%s waiting for data", u.State)
	default:
		return u.State.String()
	}
}
