package views

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"tui/db"
	"tui/styles"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type dashboardDataMsg struct {
	stats  []db.SourceStats
	runs   []db.Execution
	counts db.Counts
}

type logTailMsg struct {
	lines        []logLine
	modTime      time.Time
	daemonActive bool
}

// logLine is one entry of the daemon's JSON log file.
type logLine struct {
	Time    string
	Level   string
	Message string
	Fields  string
}

type Dashboard struct {
	db            *db.Client
	width, height int
	stats         []db.SourceStats
	runs          []db.Execution
	counts        db.Counts
	logLines      []logLine
	logPath       string
	logScroll     int // 0 = newest
	logViewport   int
	logBuffer     int
	logModTime    time.Time
	daemonActive  bool
}

func NewDashboard(dbClient *db.Client, logPath string) Dashboard {
	if logPath == "" {
		logPath = "propsync.log"
	}
	return Dashboard{
		db:          dbClient,
		logPath:     logPath,
		logViewport: 20,
		logBuffer:   200,
	}
}

func (d Dashboard) Init() tea.Cmd {
	return tea.Batch(d.Refresh(), d.RefreshLog())
}

func (d Dashboard) Refresh() tea.Cmd {
	return func() tea.Msg {
		stats, _ := d.db.GetSourceStats()
		runs, _ := d.db.GetRecentExecutions(10, "")
		counts, _ := d.db.GetCounts()
		return dashboardDataMsg{stats, runs, counts}
	}
}

func (d Dashboard) RefreshLog() tea.Cmd {
	return func() tea.Msg {
		lines, modTime := readLastLines(d.logPath, d.logBuffer)
		return logTailMsg{lines, modTime, isDaemonActive()}
	}
}

// Sources lists the sources that have run at least once.
func (d Dashboard) Sources() []string {
	out := make([]string, 0, len(d.stats))
	for _, s := range d.stats {
		out = append(out, s.Source)
	}
	return out
}

func isDaemonActive() bool {
	out, err := exec.Command("systemctl", "is-active", "propsync").Output()
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(out)) == "active"
}

func readLastLines(path string, n int) ([]logLine, time.Time) {
	info, err := os.Stat(path)
	if err != nil {
		return []logLine{{Message: "(no log file)"}}, time.Time{}
	}

	f, err := os.Open(path)
	if err != nil {
		return []logLine{{Message: "(no log file)"}}, time.Time{}
	}
	defer f.Close()

	var all []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		all = append(all, scanner.Text())
		if len(all) > 2*n {
			all = all[len(all)-n:]
		}
	}
	if len(all) == 0 {
		return []logLine{{Message: "(empty log)"}}, info.ModTime()
	}

	start := len(all) - n
	if start < 0 {
		start = 0
	}
	lines := make([]logLine, 0, len(all)-start)
	for _, raw := range all[start:] {
		lines = append(lines, parseLogLine(raw))
	}
	return lines, info.ModTime()
}

func parseLogLine(raw string) logLine {
	var entry map[string]any
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return logLine{Message: raw}
	}

	line := logLine{}
	if v, ok := entry["time"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			line.Time = t.Local().Format("15:04:05")
		}
	}
	line.Level, _ = entry["level"].(string)
	line.Message, _ = entry["message"].(string)
	delete(entry, "time")
	delete(entry, "level")
	delete(entry, "message")

	keys := make([]string, 0, len(entry))
	for k := range entry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]string, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, fmt.Sprintf("%s=%v", k, entry[k]))
	}
	line.Fields = strings.Join(fields, " ")
	return line
}

func (d Dashboard) SetSize(w, h int) Dashboard {
	d.width = w
	d.height = h
	if h > 30 {
		d.logViewport = h - 26
	}
	return d
}

func (d Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case dashboardDataMsg:
		d.stats = msg.stats
		d.runs = msg.runs
		d.counts = msg.counts
	case logTailMsg:
		d.logLines = msg.lines
		d.logModTime = msg.modTime
		d.daemonActive = msg.daemonActive
	case tea.KeyMsg:
		maxScroll := len(d.logLines) - d.logViewport
		if maxScroll < 0 {
			maxScroll = 0
		}
		switch msg.String() {
		case "up", "k":
			d.logScroll = min(d.logScroll+1, maxScroll)
		case "down", "j":
			d.logScroll = max(d.logScroll-1, 0)
		case "pgup":
			d.logScroll = min(d.logScroll+10, maxScroll)
		case "pgdown":
			d.logScroll = max(d.logScroll-10, 0)
		case "home":
			d.logScroll = maxScroll
		case "end":
			d.logScroll = 0
		}
	}
	return d, nil
}

func (d Dashboard) View() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		styles.Title.Render("Dashboard"),
		d.renderStatCards(),
		"",
		d.renderSourceCards(),
		"",
		styles.Title.Render("Recent Runs"),
		d.renderRunsTable(),
		"",
		d.renderLogTail(),
	)
}

func (d Dashboard) renderStatCards() string {
	cards := []string{
		d.renderStatCard("Listings", fmt.Sprintf("%d", d.counts.Listings)),
		d.renderStatCard("Active", fmt.Sprintf("%d", d.counts.Active)),
		d.renderStatCard("Overrides", fmt.Sprintf("%d", d.counts.Overrides)),
		d.renderStatCard("Images", fmt.Sprintf("%d", d.counts.Images)),
		d.renderStatCard("No file", fmt.Sprintf("%d", d.counts.ImagesMissing)),
		d.renderStatCard("Queued cmds", fmt.Sprintf("%d", d.counts.PendingCmds)),
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func (d Dashboard) renderStatCard(label, value string) string {
	content := lipgloss.JoinVertical(lipgloss.Center,
		styles.StatValue.Render(value),
		styles.StatLabel.Render(label),
	)
	return styles.CardBorder.Width(16).Render(content)
}

func (d Dashboard) renderSourceCards() string {
	if len(d.stats) == 0 {
		return styles.Muted.Render("No runs recorded yet")
	}
	var cards []string
	for _, s := range d.stats {
		cards = append(cards, d.renderSourceCard(s))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func (d Dashboard) renderSourceCard(s db.SourceStats) string {
	status := "○ never run"
	switch s.LastRunStatus {
	case "completed":
		status = "✓ completed"
	case "error":
		status = "✗ error"
	case "cancelled":
		status = "– cancelled"
	case "running":
		status = "◐ running"
	}

	lastRun := "never"
	if s.LastRunAt != nil {
		lastRun = relativeTime(*s.LastRunAt)
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		styles.StatValue.Render(s.Source),
		styles.RunStatus(s.LastRunStatus).Render(status),
		styles.StatLabel.Render(fmt.Sprintf("Last: %s", lastRun)),
		styles.StatLabel.Render(fmt.Sprintf("Processed: %d", s.LastProcessed)),
		styles.StatLabel.Render(fmt.Sprintf("Errors: %d", s.LastErrors)),
		styles.StatLabel.Render(fmt.Sprintf("Rate: %.0f%%  Avg: %ds", s.SuccessRate*100, s.AvgDuration)),
	)
	return styles.SourceCardBorder.Width(26).Render(content)
}

func (d Dashboard) renderRunsTable() string {
	if len(d.runs) == 0 {
		return styles.Muted.Render("No runs yet")
	}

	header := fmt.Sprintf("%-14s %-10s %-9s %6s %5s %5s %6s %5s %6s",
		"Source", "Status", "Started", "Proc", "New", "Upd", "Same", "Img", "Errors")
	rows := styles.TableHeader.Render(header) + "\n"

	for _, r := range d.runs {
		row := fmt.Sprintf("%-14s %s %-9s %6d %5d %5d %6d %5d %6d",
			truncate(r.Source, 14),
			styles.RunStatus(r.Status).Render(fmt.Sprintf("%-10s", r.Status)),
			r.StartedAt.Local().Format("15:04:05"),
			r.Processed,
			r.New,
			r.Updated,
			r.Unchanged,
			r.ImagesDownloaded,
			r.Errors,
		)
		rows += row + "\n"
	}
	return rows
}

func (d Dashboard) renderLogTail() string {
	if len(d.logLines) == 0 {
		return styles.LogBox.Width(d.width - 4).Render(styles.Muted.Render("(waiting for logs...)"))
	}

	total := len(d.logLines)
	endIdx := total - d.logScroll
	startIdx := max(endIdx-d.logViewport, 0)
	endIdx = min(endIdx, total)

	maxWidth := d.width - 8
	var lines []string
	for _, line := range d.logLines[startIdx:endIdx] {
		lines = append(lines, styleLogLine(line, maxWidth))
	}

	var indicator string
	switch {
	case !d.daemonActive && time.Since(d.logModTime) > 5*time.Minute:
		indicator = styles.StatusError.Render(" ● STOPPED ")
	case d.logScroll > 0:
		indicator = styles.StatusPending.Render(fmt.Sprintf(" ↑%d ", d.logScroll))
	default:
		indicator = styles.StatusSuccess.Render(" ● LIVE ")
	}

	header := styles.Title.Render("Daemon Log") + indicator +
		styles.Muted.Render(fmt.Sprintf("[%d-%d/%d]", startIdx+1, endIdx, total))
	return styles.LogBox.Width(d.width - 4).Render(header + "\n" + strings.Join(lines, "\n"))
}

func styleLogLine(l logLine, maxWidth int) string {
	level := strings.ToUpper(l.Level)
	if len(level) > 3 {
		level = level[:3]
	}
	text := l.Message
	if l.Fields != "" {
		text += " " + l.Fields
	}
	prefix := fmt.Sprintf("%-8s %-3s ", l.Time, level)
	text = truncate(text, maxWidth-len(prefix))

	var style lipgloss.Style
	switch l.Level {
	case "error", "fatal", "panic":
		style = styles.StatusError
	case "warn":
		style = styles.StatusPending
	case "debug", "trace":
		style = styles.Muted
	default:
		style = lipgloss.NewStyle()
	}
	return styles.Muted.Render(prefix) + style.Render(text)
}

func relativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}
