package tui

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/cryptadb/crypta/internal/facet"
	"github.com/cryptadb/crypta/internal/query"
)

const sidebarWidth = 34

var (
	headerStyle = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("25")).
			Padding(0, 1)
	badgeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("110")).
			Padding(0, 1)
	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("150"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	focusedPane  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("150"))
	blurredPane  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	gridHeadRow  = lipgloss.NewStyle().Bold(true).Underline(true)
	sectionTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("110"))
)

func (m Model) View() string {
	switch m.mode {
	case modeLogin:
		return m.loginView()
	case modeMFA:
		return m.mfaView()
	case modeColumns:
		return m.columnsView()
	case modeSearch:
		return m.searchView()
	case modeDetail:
		return m.detailView()
	case modeCompose:
		if m.compose != nil {
			return m.compose.form.View()
		}
	case modeConfirmSend:
		return m.confirmView()
	case modeExportPick:
		return m.exportPickView()
	}
	return m.browseView()
}

func (m Model) loginView() string {
	var b strings.Builder
	b.WriteString(sectionTitle.Render("crypta login") + "\n\n")
	b.WriteString(m.userInput.View() + "\n")
	b.WriteString(m.passInput.View() + "\n\n")
	if m.loginErr != nil {
		b.WriteString(errStyle.Render(m.loginErr.Error()) + "\n\n")
	}
	b.WriteString(dimStyle.Render("enter to sign in, tab to switch fields, ctrl+c to quit"))
	return b.String()
}

func (m Model) mfaView() string {
	var b strings.Builder
	b.WriteString(sectionTitle.Render("two-factor verification") + "\n\n")
	b.WriteString(m.mfaInput.View() + "\n\n")
	if m.loginErr != nil {
		b.WriteString(errStyle.Render(m.loginErr.Error()) + "\n\n")
	}
	b.WriteString(dimStyle.Render("enter the code from your authenticator app, esc to go back"))
	return b.String()
}

func (m Model) browseView() string {
	header := headerStyle.Render(fmt.Sprintf("crypta  %s  Results (%d)", m.session.Base.Display(), m.count))
	if m.fetching {
		header += dimStyle.Render("  refreshing...")
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, m.sidebarView(), m.gridView())

	parts := []string{header}
	if line := m.badgeLine(); line != "" {
		parts = append(parts, line)
	}
	parts = append(parts, body, m.statusLine())
	return strings.Join(parts, "\n")
}

func (m Model) badgeLine() string {
	if len(m.badges) == 0 {
		return ""
	}
	chips := make([]string, 0, len(m.badges)+1)
	for _, b := range m.badges {
		chips = append(chips, badgeStyle.Render(b.Label+" ✕"))
	}
	chips = append(chips, dimStyle.Render("(c clears all)"))
	return strings.Join(chips, " ")
}

func (m Model) statusLine() string {
	if m.refreshErr != nil {
		return errStyle.Render("refresh failed: "+m.refreshErr.Error()) +
			dimStyle.Render("  press r to retry")
	}
	if m.status != "" {
		return m.status
	}
	return dimStyle.Render("tab panes · space toggle · b base · v columns · s search · m email · e export · q quit")
}

// bodyHeight is the vertical room left for the sidebar and grid panes.
func (m Model) bodyHeight() int {
	h := m.height - 4
	if h < 8 {
		h = 8
	}
	return h
}

// gridHeight is how many data rows fit in the grid pane.
func (m Model) gridHeight() int {
	// Pane border and the column header row.
	return m.bodyHeight() - 3
}

func (m Model) sidebarView() string {
	h := m.bodyHeight()
	var b strings.Builder
	b.WriteString(m.sideSearch.View() + "\n")

	treeH := h - 2 - m.statsHeight()
	if treeH < 3 {
		treeH = 3
	}
	b.WriteString(m.treeLines(treeH))
	b.WriteString(m.statsLines())

	style := blurredPane
	if m.focus == paneTree || m.focus == paneStats {
		style = focusedPane
	}
	return style.Width(sidebarWidth).Height(h).Render(b.String())
}

func (m Model) treeLines(maxLines int) string {
	start := 0
	if m.treeCursor >= maxLines {
		start = m.treeCursor - maxLines + 1
	}
	var b strings.Builder
	for i := start; i < len(m.lines) && i-start < maxLines; i++ {
		line := m.lines[i]
		g := m.treeView[line.group]
		var text string
		if line.option < 0 {
			marker := "▸"
			if m.groupExpanded(g) {
				marker = "▾"
			}
			text = marker + " " + g.Display
		} else {
			opt := g.Options[line.option]
			box := "[ ]"
			if opt.Selected {
				box = "[x]"
			}
			text = fmt.Sprintf("  %s %s (%d)", box, opt.Label, opt.Count)
		}
		text = pad(text, sidebarWidth-2, false)
		if m.focus == paneTree && i == m.treeCursor {
			text = selectedStyle.Render(text)
		}
		b.WriteString(text + "\n")
	}
	return b.String()
}

func (m Model) statsHeight() int {
	n := len(m.visibleStats())
	if n == 0 {
		return 0
	}
	// Title, one line per field, one summary line.
	return n + 2
}

func (m Model) statsLines() string {
	infos := m.visibleStats()
	if len(infos) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(sectionTitle.Render("Statistics") + "\n")
	for i, si := range infos {
		var text string
		if si.Type == "boolean" {
			state := "All"
			if v := m.session.Stats.Bool(si.Field); v != nil {
				if *v {
					state = "Yes"
				} else {
					state = "No"
				}
			}
			text = fmt.Sprintf("%s: %s", si.Display, state)
		} else if r, ok := m.session.Stats.Range(si.Field); ok {
			text = fmt.Sprintf("%s: %s ─ %s", si.Display, trimFloat(r.Min), trimFloat(r.Max))
			if !r.Default() {
				text += " *"
			}
		}
		text = pad(text, sidebarWidth-2, false)
		if m.focus == paneStats && i == m.statsCursor {
			text = selectedStyle.Render(text)
		}
		b.WriteString(text + "\n")
	}
	b.WriteString(dimStyle.Render(m.statsSummaryLine(infos)))
	return b.String()
}

// statsSummaryLine aggregates the focused numeric field over the loaded
// rows.
func (m Model) statsSummaryLine(infos []query.StatsInfo) string {
	if m.statsCursor >= len(infos) {
		return ""
	}
	si := infos[m.statsCursor]
	if si.Type == "boolean" {
		return ""
	}
	s, ok := facet.Summarize(m.rows, si.Field)
	if !ok {
		return ""
	}
	return fmt.Sprintf("min %s med %s avg %s max %s tot %s",
		trimFloat(s.Min), trimFloat(s.Median), s.Avg, trimFloat(s.Max), s.Total)
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (m Model) gridView() string {
	h := m.bodyHeight()
	gridW := m.width - sidebarWidth - 4
	if gridW < 20 {
		gridW = 60
	}

	var b strings.Builder
	if len(m.visCols) == 0 {
		b.WriteString(dimStyle.Render("no columns visible"))
	} else {
		colW := gridW / len(m.visCols)
		if colW < 8 {
			colW = 8
		}

		var head strings.Builder
		for _, c := range m.visCols {
			head.WriteString(pad(c.Title, colW-1, false) + " ")
		}
		b.WriteString(gridHeadRow.Render(head.String()) + "\n")

		visible := m.gridHeight()
		for i := m.gridOffset; i < len(m.rows) && i-m.gridOffset < visible; i++ {
			row := m.rows[i]
			var line strings.Builder
			for _, c := range m.visCols {
				cell := cellString(row[c.Field], boolishFields[c.Field])
				line.WriteString(pad(cell, colW-1, m.session.Columns.Numeric(c)) + " ")
			}
			text := line.String()
			if m.focus == paneGrid && i == m.gridCursor {
				text = selectedStyle.Render(text)
			}
			b.WriteString(text + "\n")
		}
	}

	style := blurredPane
	if m.focus == paneGrid {
		style = focusedPane
	}
	return style.Width(gridW + 2).Height(h).Render(b.String())
}

func (m Model) columnsView() string {
	var b strings.Builder
	b.WriteString(sectionTitle.Render("Columns") + "\n\n")
	for i, c := range m.session.Columns.Choosable() {
		box := "[ ]"
		if m.session.Columns.IsVisible(c.Field) {
			box = "[x]"
		}
		text := fmt.Sprintf("%s %s", box, c.Title)
		if c.Category != "" {
			text += dimStyle.Render("  " + c.Category)
		}
		if i == m.colCursor {
			text = selectedStyle.Render(text)
		}
		b.WriteString(text + "\n")
	}
	b.WriteString("\n" + dimStyle.Render("space toggles, esc closes"))
	return b.String()
}

func (m Model) searchView() string {
	var b strings.Builder
	b.WriteString(sectionTitle.Render("Search") + "\n\n")
	b.WriteString(m.searchInput.View() + "\n\n")

	if m.searchHits == nil {
		b.WriteString(dimStyle.Render("enter runs the search, esc closes"))
		return b.String()
	}

	i := 0
	writeHit := func(label string) {
		text := label
		if !m.searchInput.Focused() && i == m.searchCursor {
			text = selectedStyle.Render(text)
		}
		b.WriteString(text + "\n")
		i++
	}
	if len(m.searchHits.Persons) > 0 {
		b.WriteString(sectionTitle.Render("People") + "\n")
		for _, hit := range m.searchHits.Persons {
			writeHit(hit.Label)
		}
	}
	if len(m.searchHits.Locations) > 0 {
		b.WriteString(sectionTitle.Render("Locations") + "\n")
		for _, hit := range m.searchHits.Locations {
			writeHit(hit.Label)
		}
	}
	if i == 0 {
		b.WriteString(dimStyle.Render("no matches"))
	}
	b.WriteString("\n" + dimStyle.Render("enter opens details, / edits the query, esc closes"))
	return b.String()
}

func (m Model) detailView() string {
	if m.detail == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(sectionTitle.Render("Record details") + "\n\n")
	for _, k := range sortedKeys(m.detail.Record) {
		if k == "id" {
			continue
		}
		v := cellString(m.detail.Record[k], boolishFields[k])
		if v == "" {
			continue
		}
		b.WriteString(fmt.Sprintf("%s  %s\n", pad(k, 20, false), v))
	}
	if len(m.detail.Assignments) > 0 {
		b.WriteString("\n" + sectionTitle.Render("Assignments") + "\n")
		for _, a := range m.detail.Assignments {
			b.WriteString(fmt.Sprintf("%s  %s  %s\n",
				cellString(a["ref_name"], false),
				cellString(a["assignment_type"], false),
				cellString(a["date_assigned"], false)))
		}
	}
	b.WriteString("\n" + dimStyle.Render("esc closes"))
	return b.String()
}

func (m Model) confirmView() string {
	return fmt.Sprintf("%s\n\nThis email will reach %d distinct recipients.\n\n%s",
		sectionTitle.Render("Confirm send"),
		m.sendCount,
		dimStyle.Render("y sends, n cancels"))
}

func (m Model) exportPickView() string {
	return fmt.Sprintf("%s\n\n  c  CSV\n  x  XLSX\n  p  PDF\n\n%s",
		sectionTitle.Render("Export visible columns"),
		dimStyle.Render("esc cancels"))
}

func sortedKeys(row query.Row) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
