package views

import (
	"fmt"
	"strings"
	"time"

	"tui/db"
	"tui/styles"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var runStatuses = []string{"all", "running", "completed", "error", "cancelled"}

type runsMsg struct {
	runs []db.Execution
}

// Runs lists sync executions and shows the log text of the selected one.
type Runs struct {
	db            *db.Client
	width, height int
	runs          []db.Execution
	statusIndex   int
	selected      int
	logScroll     int
}

func NewRuns(dbClient *db.Client) Runs {
	return Runs{db: dbClient}
}

func (r Runs) Init() tea.Cmd {
	return r.Refresh()
}

func (r Runs) Refresh() tea.Cmd {
	return func() tea.Msg {
		runs, _ := r.db.GetRecentExecutions(100, runStatuses[r.statusIndex])
		return runsMsg{runs}
	}
}

func (r Runs) SetSize(w, h int) Runs {
	r.width = w
	r.height = h
	return r
}

func (r Runs) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case runsMsg:
		r.runs = msg.runs
		if r.selected >= len(r.runs) {
			r.selected = 0
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "left", "h":
			if r.statusIndex > 0 {
				r.statusIndex--
				r.selected, r.logScroll = 0, 0
				return r, r.Refresh()
			}
		case "right", "l":
			if r.statusIndex < len(runStatuses)-1 {
				r.statusIndex++
				r.selected, r.logScroll = 0, 0
				return r, r.Refresh()
			}
		case "up", "k":
			if r.selected > 0 {
				r.selected--
				r.logScroll = 0
			}
		case "down", "j":
			if r.selected < len(r.runs)-1 {
				r.selected++
				r.logScroll = 0
			}
		case "pgdown":
			r.logScroll++
		case "pgup":
			r.logScroll = max(r.logScroll-1, 0)
		}
	}
	return r, nil
}

func (r Runs) listRows() int {
	return max(r.height/2-4, 5)
}

func (r Runs) View() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		styles.Title.Render("Runs"),
		r.renderFilter(),
		"",
		r.renderList(),
		"",
		r.renderDetail(),
	)
}

func (r Runs) renderFilter() string {
	var parts []string
	for i, status := range runStatuses {
		if i == r.statusIndex {
			parts = append(parts, styles.TabActive.Render("["+status+"]"))
		} else {
			parts = append(parts, styles.TabInactive.Render(status))
		}
	}
	return "Status: " + strings.Join(parts, " ") + "  (←/→ to change)"
}

func (r Runs) renderList() string {
	if len(r.runs) == 0 {
		return styles.Muted.Render("No runs")
	}

	header := fmt.Sprintf("%-19s %-14s %-10s %8s %6s %6s %6s",
		"Started", "Source", "Status", "Duration", "Proc", "New", "Errors")
	rows := styles.TableHeader.Render(header) + "\n"

	visible := r.listRows()
	offset := 0
	if r.selected >= visible {
		offset = r.selected - visible + 1
	}
	end := min(offset+visible, len(r.runs))

	for i := offset; i < end; i++ {
		run := r.runs[i]
		duration := "—"
		if run.FinishedAt != nil {
			duration = run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()
		}
		status := fmt.Sprintf("%-10s", run.Status)
		if i != r.selected {
			status = styles.RunStatus(run.Status).Render(status)
		}
		row := fmt.Sprintf("%-19s %-14s %s %8s %6d %6d %6d",
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			truncate(run.Source, 14),
			status,
			duration,
			run.Processed,
			run.New,
			run.Errors,
		)
		if i == r.selected {
			row = styles.TableSelected.Render(row)
		}
		rows += row + "\n"
	}
	return rows
}

func (r Runs) renderDetail() string {
	if len(r.runs) == 0 {
		return ""
	}
	run := r.runs[r.selected]

	summary := fmt.Sprintf("run %s  new %d  updated %d  unchanged %d  images +%d -%d (%d failed)",
		run.RunUUID, run.New, run.Updated, run.Unchanged,
		run.ImagesDownloaded, run.ImagesDeleted, run.ImageErrors)

	var lines []string
	if run.LogText == "" {
		lines = []string{styles.Muted.Render("(no log text)")}
	} else {
		for _, line := range strings.Split(run.LogText, "\n") {
			lines = append(lines, truncate(line, r.width-6))
		}
	}
	start := min(r.logScroll, max(len(lines)-1, 0))
	end := min(start+max(r.height/2-6, 3), len(lines))

	body := strings.Join(lines[start:end], "\n")
	if run.Details != "" {
		body += "\n" + styles.Muted.Render(truncate(run.Details, r.width-6))
	}
	return styles.LogBox.Width(r.width - 4).Render(styles.StatLabel.Render(summary) + "\n" + body)
}
