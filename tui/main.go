package main

import (
	"fmt"
	"os"
	"time"

	"tui/db"
	"tui/styles"
	"tui/views"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
)

type tab int

const (
	tabDashboard tab = iota
	tabListings
	tabRuns
)

type model struct {
	db            *db.Client
	activeTab     tab
	width, height int
	notification  string
	notifyUntil   time.Time
	sourceIndex   int

	dashboard views.Dashboard
	listings  views.Data
	runs      views.Runs
}

type tickMsg time.Time
type logTickMsg time.Time

func initialModel(dbClient *db.Client, logPath string) model {
	return model{
		db:        dbClient,
		activeTab: tabDashboard,
		dashboard: views.NewDashboard(dbClient, logPath),
		listings:  views.NewData(dbClient),
		runs:      views.NewRuns(dbClient),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.dashboard.Init(),
		m.listings.Init(),
		m.runs.Init(),
		tickCmd(),
		logTickCmd(),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(15*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func logTickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return logTickMsg(t)
	})
}

func (m *model) notify(msg string, err error) {
	if err != nil {
		msg = "Error: " + err.Error()
	}
	m.notification = msg
	m.notifyUntil = time.Now().Add(3 * time.Second)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "1":
			m.activeTab = tabDashboard
			return m, nil
		case "2":
			m.activeTab = tabListings
			return m, nil
		case "3":
			m.activeTab = tabRuns
			return m, nil
		case "tab":
			m.activeTab = (m.activeTab + 1) % 3
			return m, nil
		case "r":
			m.notify("Refreshed", nil)
			return m, m.refreshActive()
		case "s":
			m.notify("Sync command queued", m.db.SyncNow())
			return m, nil
		case "o":
			sources := m.dashboard.Sources()
			if len(sources) == 0 {
				m.notify("No known sources yet", nil)
				return m, nil
			}
			source := sources[m.sourceIndex%len(sources)]
			m.sourceIndex++
			m.notify("Sync queued for "+source, m.db.SyncSource(source))
			return m, nil
		case "p":
			m.notify("Pause command queued", m.db.Pause())
			return m, nil
		case "c":
			m.notify("Resume command queued", m.db.Resume())
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.dashboard = m.dashboard.SetSize(msg.Width, msg.Height-4)
		m.listings = m.listings.SetSize(msg.Width, msg.Height-4)
		m.runs = m.runs.SetSize(msg.Width, msg.Height-4)
		return m, nil

	case tickMsg:
		cmds = append(cmds, m.refreshActive(), tickCmd())

	case logTickMsg:
		cmds = append(cmds, m.dashboard.RefreshLog(), logTickCmd())
	}

	// Keys go to the active tab only, data messages to every view.
	switch msg.(type) {
	case tea.KeyMsg:
		switch m.activeTab {
		case tabDashboard:
			updated, cmd := m.dashboard.Update(msg)
			m.dashboard = updated.(views.Dashboard)
			cmds = append(cmds, cmd)
		case tabListings:
			updated, cmd := m.listings.Update(msg)
			m.listings = updated.(views.Data)
			cmds = append(cmds, cmd)
		case tabRuns:
			updated, cmd := m.runs.Update(msg)
			m.runs = updated.(views.Runs)
			cmds = append(cmds, cmd)
		}
	default:
		updatedDash, cmd1 := m.dashboard.Update(msg)
		m.dashboard = updatedDash.(views.Dashboard)

		updatedListings, cmd2 := m.listings.Update(msg)
		m.listings = updatedListings.(views.Data)

		updatedRuns, cmd3 := m.runs.Update(msg)
		m.runs = updatedRuns.(views.Runs)

		cmds = append(cmds, cmd1, cmd2, cmd3)
	}

	return m, tea.Batch(cmds...)
}

func (m model) refreshActive() tea.Cmd {
	switch m.activeTab {
	case tabDashboard:
		return m.dashboard.Refresh()
	case tabListings:
		return m.listings.Refresh()
	case tabRuns:
		return m.runs.Refresh()
	}
	return nil
}

func (m model) View() string {
	return lipgloss.JoinVertical(lipgloss.Left, m.renderTabs(), m.renderContent(), m.renderStatusBar())
}

func (m model) renderTabs() string {
	names := []string{"1 Dashboard", "2 Listings", "3 Runs"}
	var rendered []string
	for i, name := range names {
		if tab(i) == m.activeTab {
			rendered = append(rendered, styles.TabActive.Render(name))
		} else {
			rendered = append(rendered, styles.TabInactive.Render(name))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...) + "\n"
}

func (m model) renderContent() string {
	switch m.activeTab {
	case tabDashboard:
		return m.dashboard.View()
	case tabListings:
		return m.listings.View()
	case tabRuns:
		return m.runs.View()
	}
	return ""
}

func (m model) renderStatusBar() string {
	left := "tab Switch  r Refresh  s Sync all  o Sync next source  p Pause  c Resume  q Quit"
	right := ""
	if time.Now().Before(m.notifyUntil) {
		right = styles.Notification.Render(m.notification)
	}

	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right)-2, 0)
	return styles.StatusBar.Render(left) + lipgloss.NewStyle().Width(gap).Render("") + right
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	_ = godotenv.Load()

	dbClient, err := db.New(getEnv("DB_DRIVER", "sqlite"), getEnv("DB_DSN", "propsync.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to database: %v\n", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	p := tea.NewProgram(
		initialModel(dbClient, getEnv("LOG_FILE", "propsync.log")),
		tea.WithAltScreen(),
	)

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
