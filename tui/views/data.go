package views

import (
	"fmt"
	"strings"

	"tui/db"
	"tui/styles"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type dataMsg struct {
	listings []db.Listing
	total    int
}

type changesMsg struct {
	listingID int64
	changes   []db.Change
}

type Data struct {
	db            *db.Client
	width, height int
	listings      []db.Listing
	changes       []db.Change
	selectedRow   int
	activeOnly    bool
	dbPage        int
	dbPageSize    int
	total         int
}

func NewData(dbClient *db.Client) Data {
	return Data{db: dbClient, dbPageSize: 100}
}

func (d Data) Init() tea.Cmd {
	return d.Refresh()
}

func (d Data) Refresh() tea.Cmd {
	return func() tea.Msg {
		listings, _ := d.db.GetListings(d.dbPageSize, d.dbPage*d.dbPageSize, d.activeOnly)
		counts, _ := d.db.GetCounts()
		total := counts.Listings
		if d.activeOnly {
			total = counts.Active
		}
		return dataMsg{listings, total}
	}
}

func (d Data) SetSize(w, h int) Data {
	d.width = w
	d.height = h
	return d
}

func (d Data) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case dataMsg:
		d.listings = msg.listings
		d.total = msg.total
		if d.selectedRow >= len(d.listings) {
			d.selectedRow = 0
		}
		return d, d.loadChanges()

	case changesMsg:
		if len(d.listings) > 0 && d.listings[d.selectedRow].ID == msg.listingID {
			d.changes = msg.changes
		}

	case tea.KeyMsg:
		if len(d.listings) == 0 {
			break
		}
		prev := d.selectedRow
		switch msg.String() {
		case "up", "k":
			d.selectedRow = max(d.selectedRow-1, 0)
		case "down", "j":
			d.selectedRow = min(d.selectedRow+1, len(d.listings)-1)
		case "pgdown", "ctrl+d":
			d.selectedRow = min(d.selectedRow+10, len(d.listings)-1)
		case "pgup", "ctrl+u":
			d.selectedRow = max(d.selectedRow-10, 0)
		case "home", "g":
			d.selectedRow = 0
		case "end", "G":
			d.selectedRow = len(d.listings) - 1
		case "a":
			d.activeOnly = !d.activeOnly
			d.selectedRow = 0
			d.dbPage = 0
			return d, d.Refresh()
		case "[":
			if d.dbPage > 0 {
				d.dbPage--
				d.selectedRow = 0
				return d, d.Refresh()
			}
		case "]":
			if d.dbPage < d.totalPages()-1 {
				d.dbPage++
				d.selectedRow = 0
				return d, d.Refresh()
			}
		}
		if d.selectedRow != prev {
			d.changes = nil
			return d, d.loadChanges()
		}
	}
	return d, nil
}

func (d Data) loadChanges() tea.Cmd {
	if len(d.listings) == 0 {
		return nil
	}
	id := d.listings[d.selectedRow].ID
	return func() tea.Msg {
		changes, _ := d.db.GetChanges(id, 20)
		return changesMsg{id, changes}
	}
}

func (d Data) visibleRows() int {
	if d.height <= 0 {
		return 25
	}
	return max(d.height*55/100, 10)
}

func (d Data) totalPages() int {
	if d.dbPageSize == 0 || d.total == 0 {
		return 1
	}
	return (d.total + d.dbPageSize - 1) / d.dbPageSize
}

func (d Data) View() string {
	filter := "All"
	if d.activeOnly {
		filter = "Active only"
	}

	position := fmt.Sprintf("  %d/%d", d.dbPage*d.dbPageSize+d.selectedRow+1, d.total)
	pageInfo := fmt.Sprintf("  Page %d/%d", d.dbPage+1, d.totalPages())
	header := styles.Title.Render("Listings") +
		styles.StatValue.Render(position) +
		styles.StatLabel.Render(pageInfo) +
		"  " + styles.Muted.Render(fmt.Sprintf("[a] Filter: %s  [[ ]] Prev/Next", filter))

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		d.renderTable(),
		"",
		d.renderBottomPanel(),
	)
}

func (d Data) renderTable() string {
	header := fmt.Sprintf("%8s %-32s %-14s %-12s %12s %3s %3s %7s %4s %-5s",
		"Ref", "Title", "City", "Type", "Price", "Bd", "Ba", "Area", "Img", "Flags")
	rows := styles.TableHeader.Render(header) + "\n"

	visible := d.visibleRows()
	offset := 0
	if d.selectedRow >= visible {
		offset = d.selectedRow - visible + 1
	}
	end := min(offset+visible, len(d.listings))

	for i := offset; i < end; i++ {
		l := d.listings[i]
		row := fmt.Sprintf("%8d %-32s %-14s %-12s %12s %3d %3d %7s %4d %-5s",
			l.Ref,
			truncate(l.Title, 32),
			truncate(l.City, 14),
			truncate(l.PropertyType, 12),
			formatPrice(l),
			l.Bedrooms,
			l.Bathrooms,
			formatArea(l.Area),
			l.Images,
			flags(l),
		)
		if i == d.selectedRow {
			rows += styles.TableSelected.Render(row) + "\n"
		} else if !l.Active {
			rows += styles.Muted.Render(row) + "\n"
		} else {
			rows += row + "\n"
		}
	}

	if len(d.listings) > visible {
		rows += styles.Muted.Render(fmt.Sprintf("  [%d-%d of %d]", offset+1, end, len(d.listings)))
	}
	return rows
}

func (d Data) renderBottomPanel() string {
	historyBox := styles.CardBorder.Width(d.width/2 - 2).Render(
		styles.Title.Render("Change History") + "\n" + d.renderChanges(),
	)
	detailsBox := styles.SourceCardBorder.Width(d.width/2 - 2).Render(
		styles.Title.Render("Listing Details") + "\n" + d.renderDetails(),
	)
	return lipgloss.JoinHorizontal(lipgloss.Top, historyBox, detailsBox)
}

func (d Data) renderChanges() string {
	if len(d.listings) == 0 {
		return styles.Muted.Render("Select a listing")
	}
	if len(d.changes) == 0 {
		return styles.Muted.Render("No recorded changes")
	}

	width := d.width/2 - 8
	valueWidth := max((width-30)/2, 6)
	header := fmt.Sprintf("%-11s %-16s %s", "Date", "Field", "Old → New")
	rows := styles.TableHeader.Render(header) + "\n"
	for _, ch := range d.changes[:min(len(d.changes), 10)] {
		old := ch.OldValue
		if old == "" {
			old = "∅"
		}
		rows += fmt.Sprintf("%-11s %-16s %s → %s\n",
			ch.ChangedAt.Local().Format("2006-01-02"),
			truncate(ch.Field, 16),
			styles.Muted.Render(truncate(old, valueWidth)),
			truncate(ch.NewValue, valueWidth),
		)
	}
	return rows
}

func (d Data) renderDetails() string {
	if len(d.listings) == 0 {
		return styles.Muted.Render("Select a listing")
	}

	l := d.listings[d.selectedRow]
	synced := "never"
	if l.LastSyncedAt != nil {
		synced = relativeTime(*l.LastSyncedAt)
	}
	lines := []string{
		fmt.Sprintf("Ref: %d  Sync code: %s", l.Ref, l.SyncCode),
		fmt.Sprintf("Updated: %s  Synced: %s", relativeTime(l.UpdatedAt), synced),
	}
	if l.Overridden {
		lines = append(lines, styles.StatusPending.Render("Operator flags preserved across syncs"))
	}
	lines = append(lines, "")

	if l.Description != "" {
		desc := []rune(l.Description)
		if len(desc) > 240 {
			desc = append(desc[:240], []rune("...")...)
		}
		lines = append(lines, wrapText(string(desc), d.width/2-6)...)
	}
	return strings.Join(lines, "\n")
}

func formatPrice(l db.Listing) string {
	switch {
	case l.SalePrice > 0:
		return formatMoney(l.SalePrice)
	case l.RentPrice > 0:
		return formatMoney(l.RentPrice) + "/m"
	}
	return "—"
}

func formatMoney(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("$%.1fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("$%.1fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("$%.0fK", v/1e3)
	}
	return fmt.Sprintf("$%.0f", v)
}

func formatArea(a float64) string {
	if a == 0 {
		return "—"
	}
	return fmt.Sprintf("%.0fm²", a)
}

func flags(l db.Listing) string {
	var b strings.Builder
	if l.Active {
		b.WriteByte('A')
	} else {
		b.WriteByte('-')
	}
	if l.Featured {
		b.WriteByte('F')
	} else {
		b.WriteByte('-')
	}
	if l.Hot {
		b.WriteByte('H')
	} else {
		b.WriteByte('-')
	}
	return b.String()
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		width = 40
	}
	var lines []string
	var line string
	for _, word := range strings.Fields(text) {
		if len(line)+len(word)+1 > width {
			lines = append(lines, line)
			line = word
		} else {
			if line != "" {
				line += " "
			}
			line += word
		}
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}
