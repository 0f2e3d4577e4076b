package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/courier/internal/api"
	"github.com/mattjoyce/courier/internal/events"
	"github.com/mattjoyce/courier/internal/session"
)

const maxEventLog = 200

var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD"))

	statusOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	statusStopped = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))
	statusFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	statusClosed  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1)
)

// Client polls the admin API.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// Snapshot is one poll of the admin API.
type Snapshot struct {
	Health   api.HealthzResponse
	Sessions []session.Info
	Events   []events.Event
}

// Fetch reads health, sessions and every event after since.
func (c *Client) Fetch(ctx context.Context, since int64) (Snapshot, error) {
	var snap Snapshot
	if err := c.get(ctx, "/healthz", &snap.Health); err != nil {
		return snap, err
	}
	var sessions api.SessionsResponse
	if err := c.get(ctx, "/sessions", &sessions); err != nil {
		return snap, err
	}
	snap.Sessions = sessions.Sessions
	var evs api.EventsResponse
	if err := c.get(ctx, "/events?since="+strconv.FormatInt(since, 10), &evs); err != nil {
		return snap, err
	}
	snap.Events = evs.Events
	return snap, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.BaseURL, "/")+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	hc := c.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 2 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e api.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("GET %s: %s: %s", path, resp.Status, e.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return nil
}

type snapshotMsg Snapshot
type errMsg struct{ err error }
type tickMsg time.Time

// Model is the watch screen: a header, a session table and the event tail.
type Model struct {
	client   *Client
	interval time.Duration

	width  int
	height int

	health    api.HealthzResponse
	sessions  []session.Info
	eventLog  []events.Event
	lastEvent int64
	lastErr   error

	sessionTable table.Model
	viewport     viewport.Model
}

// NewMonitor returns a model that polls client every interval.
func NewMonitor(client *Client, interval time.Duration) Model {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "Session", Width: 20},
			{Title: "Mode", Width: 8},
			{Title: "Pending", Width: 8},
			{Title: "Consumers", Width: 10},
			{Title: "Delivered", Width: 10},
			{Title: "Failed", Width: 8},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return Model{
		client:       client,
		interval:     interval,
		sessionTable: t,
		viewport:     viewport.New(80, 10),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), tea.EnterAltScreen)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.sessionTable.SetWidth(m.width - 6)
		m.viewport.Width = m.width - 6
		m.viewport.Height = m.height / 3
		m.viewport.SetContent(m.renderEvents())

	case snapshotMsg:
		m.apply(Snapshot(msg))
		return m, m.tick()

	case errMsg:
		m.lastErr = msg.err
		return m, m.tick()

	case tickMsg:
		return m, m.fetch()
	}

	m.sessionTable, cmd = m.sessionTable.Update(msg)
	return m, cmd
}

func (m *Model) apply(snap Snapshot) {
	m.lastErr = nil
	m.health = snap.Health
	m.sessions = snap.Sessions
	for _, e := range snap.Events {
		if e.ID > m.lastEvent {
			m.lastEvent = e.ID
		}
	}
	m.eventLog = append(m.eventLog, snap.Events...)
	if n := len(m.eventLog); n > maxEventLog {
		m.eventLog = m.eventLog[n-maxEventLog:]
	}

	rows := make([]table.Row, 0, len(m.sessions))
	for _, s := range m.sessions {
		rows = append(rows, sessionRow(s))
	}
	m.sessionTable.SetRows(rows)
	m.viewport.SetContent(m.renderEvents())
}

func sessionRow(s session.Info) table.Row {
	sym := statusOK.Render("●")
	switch {
	case s.Closed:
		sym = statusClosed.Render("∅")
	case !s.Running:
		sym = statusStopped.Render("○")
	}

	mode := "sync"
	if s.AsyncDispatch {
		mode = "async"
	}
	if s.DispatchedByPool {
		mode = "pooled"
	}

	var delivered, failed int64
	for _, c := range s.Consumers {
		delivered += c.Delivered
		failed += c.Failed
	}
	failedCell := strconv.FormatInt(failed, 10)
	if failed > 0 {
		failedCell = statusFailed.Render(failedCell)
	}

	return table.Row{
		sym,
		s.ID,
		mode,
		strconv.Itoa(s.Pending),
		strconv.Itoa(len(s.Consumers)),
		strconv.FormatInt(delivered, 10),
		failedCell,
	}
}

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	sessions := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Sessions"),
			m.sessionTable.View(),
		),
	)
	eventsView := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Event Stream"),
			m.viewport.View(),
		),
	)
	help := lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render(" [q] Quit • [↑/↓] Scroll Sessions")

	return docStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		sessions,
		eventsView,
		help,
	))
}

func (m Model) renderHeader() string {
	status := statusOK.Render("RUNNING")
	switch {
	case m.lastErr != nil:
		status = statusFailed.Render("UNREACHABLE")
	case m.health.Status == "":
		status = statusClosed.Render("CONNECTING")
	case m.health.Status != "ok":
		status = statusFailed.Render("DEGRADED")
	}

	items := []string{
		"Status: " + status,
		"Uptime: " + (time.Duration(m.health.UptimeSeconds) * time.Second).String(),
		fmt.Sprintf("Sessions: %d", m.health.Sessions),
		fmt.Sprintf("Pending: %d", m.health.Pending),
	}
	w := (m.width - 4) / len(items)
	cells := make([]string, len(items))
	for i, it := range items {
		cells[i] = lipgloss.NewStyle().Width(w).Render(it)
	}
	header := lipgloss.JoinHorizontal(lipgloss.Top, cells...)
	if m.lastErr != nil {
		header = lipgloss.JoinVertical(lipgloss.Left, header, statusFailed.Render(m.lastErr.Error()))
	}
	return borderStyle.Width(m.width - 4).Render(header)
}

func (m Model) renderEvents() string {
	if len(m.eventLog) == 0 {
		return "  No events yet..."
	}
	lines := make([]string, 0, len(m.eventLog))
	for i := len(m.eventLog) - 1; i >= 0; i-- {
		e := m.eventLog[i]
		lines = append(lines, fmt.Sprintf("%s | %-18s | %s", e.At.Format("15:04:05"), e.Type, string(e.Data)))
	}
	return lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
}

func (m Model) fetch() tea.Cmd {
	since := m.lastEvent
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		snap, err := m.client.Fetch(ctx, since)
		if err != nil {
			return errMsg{err: err}
		}
		return snapshotMsg(snap)
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}
