// Package tui implements the interactive terminal browser for crypta:
// login, the faceted filter sidebar, the result grid, record details,
// global search, column selection, export, and email dispatch.
package tui

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rotisserie/eris"

	"github.com/cryptadb/crypta/internal/client"
	"github.com/cryptadb/crypta/internal/export"
	"github.com/cryptadb/crypta/internal/facet"
	"github.com/cryptadb/crypta/internal/query"
	"github.com/cryptadb/crypta/internal/records"
)

type mode int

const (
	modeLogin mode = iota
	modeMFA
	modeBrowse
	modeColumns
	modeSearch
	modeDetail
	modeCompose
	modeConfirmSend
	modeExportPick
)

type pane int

const (
	paneTree pane = iota
	paneStats
	paneGrid
)

// debounceDelay is how long after the last filter change the refresh fires.
const debounceDelay = facet.DefaultDebounce

// treeLine addresses one rendered sidebar line. option == -1 is the
// group heading.
type treeLine struct {
	group  int
	option int
}

type (
	debounceMsg    struct{ seq int }
	refreshDoneMsg struct{ update *facet.Update }
	loginDoneMsg   struct{ err error }
	searchDoneMsg  struct {
		results *query.SearchResults
		err     error
	}
	detailDoneMsg struct {
		detail *query.Detail
		err    error
	}
	emailCountMsg struct {
		count int
		err   error
	}
	emailSentMsg struct {
		sent int
		err  error
	}
	exportDoneMsg struct {
		path string
		err  error
	}
	statusExpireMsg struct{ seq int }
)

// Model is the bubbletea model for the whole application.
type Model struct {
	api     *client.Client
	session *facet.Session
	coord   *facet.Coordinator

	mode  mode
	focus pane

	width  int
	height int

	// login
	userInput textinput.Model
	passInput textinput.Model
	mfaInput  textinput.Model
	loginErr  error

	// sidebar
	sideSearch textinput.Model
	expanded   map[string]bool
	treeView   []facet.TreeGroup
	lines      []treeLine
	treeCursor int

	// stats
	statsCursor int

	// grid snapshot, copied from the session after each applied refresh
	visCols    []records.Column
	rows       []query.Row
	count      int
	refreshErr error
	badges     []facet.Badge
	gridCursor int
	gridOffset int
	fetching   bool

	// column chooser
	colCursor int

	// search
	searchInput  textinput.Model
	searchHits   *query.SearchResults
	searchCursor int

	// detail
	detail *query.Detail

	// email
	compose   *composeState
	sendCount int

	debounceSeq int
	status      string
	statusSeq   int
}

// New builds the model. An already authenticated client skips straight
// to the browser.
func New(api *client.Client) Model {
	session := facet.NewSession()

	user := textinput.New()
	user.Placeholder = "username"
	user.Focus()
	pass := textinput.New()
	pass.Placeholder = "password"
	pass.EchoMode = textinput.EchoPassword
	mfa := textinput.New()
	mfa.Placeholder = "6-digit code"
	mfa.CharLimit = 6
	side := textinput.New()
	side.Placeholder = "filter fields"
	search := textinput.New()
	search.Placeholder = "name search"

	m := Model{
		api:         api,
		session:     session,
		coord:       facet.NewCoordinator(session, api),
		mode:        modeLogin,
		userInput:   user,
		passInput:   pass,
		mfaInput:    mfa,
		sideSearch:  side,
		searchInput: search,
		expanded:    make(map[string]bool),
	}
	if api.Authenticated() {
		m.mode = modeBrowse
	}
	return m
}

func (m Model) Init() tea.Cmd {
	if m.mode == modeBrowse {
		return tea.Batch(textinput.Blink, m.refreshCmd())
	}
	return textinput.Blink
}

// refreshCmd runs one synchronous fetch cycle on the coordinator.
func (m *Model) refreshCmd() tea.Cmd {
	coord := m.coord
	m.fetching = true
	return func() tea.Msg {
		return refreshDoneMsg{update: coord.Refresh(context.Background())}
	}
}

// scheduleRefresh arms the debounce timer. Only the newest tick survives;
// earlier ones arrive with a stale sequence and are dropped.
func (m *Model) scheduleRefresh() tea.Cmd {
	m.debounceSeq++
	seq := m.debounceSeq
	return tea.Tick(debounceDelay, func(time.Time) tea.Msg {
		return debounceMsg{seq: seq}
	})
}

func (m *Model) setStatus(s string) tea.Cmd {
	m.status = s
	m.statusSeq++
	seq := m.statusSeq
	return tea.Tick(4*time.Second, func(time.Time) tea.Msg {
		return statusExpireMsg{seq: seq}
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}

	case debounceMsg:
		if msg.seq != m.debounceSeq {
			return m, nil
		}
		return m, m.refreshCmd()

	case refreshDoneMsg:
		m.fetching = false
		m.syncFromSession()
		return m, nil

	case statusExpireMsg:
		if msg.seq == m.statusSeq {
			m.status = ""
		}
		return m, nil

	case loginDoneMsg:
		return m.handleLoginDone(msg)

	case searchDoneMsg:
		m.searchHits = msg.results
		m.searchCursor = 0
		if msg.err != nil {
			return m, m.setStatus("search failed: " + msg.err.Error())
		}
		return m, nil

	case detailDoneMsg:
		if msg.err != nil {
			m.mode = modeBrowse
			return m, m.setStatus("details failed: " + msg.err.Error())
		}
		m.detail = msg.detail
		m.mode = modeDetail
		return m, nil

	case emailCountMsg:
		if msg.err != nil {
			m.mode = modeBrowse
			m.compose = nil
			return m, m.setStatus("recipient count failed: " + msg.err.Error())
		}
		m.sendCount = msg.count
		m.mode = modeConfirmSend
		return m, nil

	case emailSentMsg:
		m.mode = modeBrowse
		m.compose = nil
		if msg.err != nil {
			return m, m.setStatus("send failed: " + msg.err.Error())
		}
		return m, m.setStatus(fmt.Sprintf("email sent to %d recipients", msg.sent))

	case exportDoneMsg:
		m.mode = modeBrowse
		if msg.err != nil {
			return m, m.setStatus("export failed: " + msg.err.Error())
		}
		return m, m.setStatus("exported to " + msg.path)
	}

	switch m.mode {
	case modeLogin:
		return m.updateLogin(msg)
	case modeMFA:
		return m.updateMFA(msg)
	case modeBrowse:
		return m.updateBrowse(msg)
	case modeColumns:
		return m.updateColumns(msg)
	case modeSearch:
		return m.updateSearch(msg)
	case modeDetail:
		return m.updateDetail(msg)
	case modeCompose:
		return m.updateCompose(msg)
	case modeConfirmSend:
		return m.updateConfirmSend(msg)
	case modeExportPick:
		return m.updateExportPick(msg)
	}
	return m, nil
}

// syncFromSession copies the render snapshot out of the session and
// rebuilds the derived tree and badge views.
func (m *Model) syncFromSession() {
	m.visCols = m.session.Columns.Visible()
	m.rows = m.session.Rows
	m.count = m.session.ResultCount
	m.refreshErr = m.session.LastErr
	m.rebuildTree()
	if m.gridCursor >= len(m.rows) {
		m.gridCursor = max(0, len(m.rows)-1)
	}
	if m.statsCursor >= len(m.visibleStats()) {
		m.statsCursor = 0
	}
}

// visibleStats returns the declared stats fields whose grid column is
// currently visible. Hidden fields never get a control; their
// constraints are not applied either, so showing one would be a dead
// handle.
func (m *Model) visibleStats() []query.StatsInfo {
	var out []query.StatsInfo
	for _, si := range m.session.Stats.Infos() {
		if m.session.Columns.IsVisible(si.Field) {
			out = append(out, si)
		}
	}
	return out
}

func (m *Model) rebuildTree() {
	m.treeView = facet.BuildTree(m.session.Tree, m.session.Applied, m.sideSearch.Value())
	m.badges = facet.Badges(m.session.Applied, m.session.Tree)

	m.lines = m.lines[:0]
	for gi, g := range m.treeView {
		m.lines = append(m.lines, treeLine{group: gi, option: -1})
		if !m.groupExpanded(g) {
			continue
		}
		for oi := range g.Options {
			m.lines = append(m.lines, treeLine{group: gi, option: oi})
		}
	}
	if m.treeCursor >= len(m.lines) {
		m.treeCursor = max(0, len(m.lines)-1)
	}
}

// groupExpanded merges the search-driven expansion with the user's manual
// toggles. A search match always wins.
func (m *Model) groupExpanded(g facet.TreeGroup) bool {
	return g.Expanded || m.expanded[g.Field]
}

func (m Model) updateLogin(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyTab, tea.KeyShiftTab:
			if m.userInput.Focused() {
				m.userInput.Blur()
				m.passInput.Focus()
			} else {
				m.passInput.Blur()
				m.userInput.Focus()
			}
			return m, nil
		case tea.KeyEnter:
			user, pass := m.userInput.Value(), m.passInput.Value()
			if user == "" || pass == "" {
				m.loginErr = eris.New("username and password are required")
				return m, nil
			}
			api := m.api
			return m, func() tea.Msg {
				return loginDoneMsg{err: api.Login(context.Background(), user, pass)}
			}
		}
	}
	var cmd tea.Cmd
	if m.userInput.Focused() {
		m.userInput, cmd = m.userInput.Update(msg)
	} else {
		m.passInput, cmd = m.passInput.Update(msg)
	}
	return m, cmd
}

func (m Model) handleLoginDone(msg loginDoneMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.err == nil:
		m.loginErr = nil
		m.mode = modeBrowse
		return m, m.refreshCmd()
	case eris.Is(msg.err, client.ErrMFARequired):
		m.loginErr = nil
		m.mode = modeMFA
		m.mfaInput.SetValue("")
		m.mfaInput.Focus()
		return m, nil
	default:
		m.loginErr = msg.err
		return m, nil
	}
}

func (m Model) updateMFA(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEsc:
			m.mode = modeLogin
			return m, nil
		case tea.KeyEnter:
			api := m.api
			user, code := m.userInput.Value(), m.mfaInput.Value()
			return m, func() tea.Msg {
				return loginDoneMsg{err: api.VerifyMFA(context.Background(), user, code)}
			}
		}
	}
	var cmd tea.Cmd
	m.mfaInput, cmd = m.mfaInput.Update(msg)
	return m, cmd
}

func (m Model) updateBrowse(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	// The sidebar search box captures keystrokes while focused.
	if m.sideSearch.Focused() {
		switch key.Type {
		case tea.KeyEsc:
			m.sideSearch.Blur()
			m.sideSearch.SetValue("")
			m.rebuildTree()
			return m, nil
		case tea.KeyEnter:
			m.sideSearch.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.sideSearch, cmd = m.sideSearch.Update(msg)
		m.rebuildTree()
		return m, cmd
	}

	switch key.String() {
	case "q":
		return m, tea.Quit
	case "tab":
		m.focus = (m.focus + 1) % 3
		return m, nil
	case "b":
		next := records.BaseLocation
		if m.session.Base == records.BaseLocation {
			next = records.BasePerson
		}
		if m.session.SetBase(next) {
			m.treeCursor, m.gridCursor, m.statsCursor = 0, 0, 0
			m.expanded = make(map[string]bool)
			return m, m.scheduleRefresh()
		}
		return m, nil
	case "c":
		if len(m.session.Applied) == 0 {
			return m, nil
		}
		m.session.ClearFilters()
		m.rebuildTree()
		return m, m.scheduleRefresh()
	case "/":
		m.sideSearch.Focus()
		return m, textinput.Blink
	case "v":
		m.mode = modeColumns
		m.colCursor = 0
		return m, nil
	case "s":
		m.mode = modeSearch
		m.searchInput.SetValue("")
		m.searchInput.Focus()
		m.searchHits = nil
		return m, textinput.Blink
	case "m":
		m.compose = newCompose()
		m.mode = modeCompose
		return m, m.compose.form.Init()
	case "e":
		m.mode = modeExportPick
		return m, nil
	case "r":
		if m.refreshErr != nil {
			return m, m.refreshCmd()
		}
		return m, nil
	}

	switch m.focus {
	case paneTree:
		return m.updateTreeKeys(key)
	case paneStats:
		return m.updateStatsKeys(key)
	case paneGrid:
		return m.updateGridKeys(key)
	}
	return m, nil
}

func (m Model) updateTreeKeys(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "up", "k":
		if m.treeCursor > 0 {
			m.treeCursor--
		}
	case "down", "j":
		if m.treeCursor < len(m.lines)-1 {
			m.treeCursor++
		}
	case "enter", " ":
		if m.treeCursor >= len(m.lines) {
			return m, nil
		}
		line := m.lines[m.treeCursor]
		g := m.treeView[line.group]
		if line.option < 0 {
			m.expanded[g.Field] = !m.groupExpanded(g)
			m.rebuildTree()
			return m, nil
		}
		opt := g.Options[line.option]
		m.session.ToggleFilter(g.Field + ":" + opt.Value)
		m.rebuildTree()
		return m, m.scheduleRefresh()
	}
	return m, nil
}

// statStep is the handle increment for a numeric stats field, a twentieth
// of the declared span but never below one.
func statStep(r facet.Range) float64 {
	step := (r.BoundMax - r.BoundMin) / 20
	if step < 1 {
		step = 1
	}
	return step
}

func (m Model) updateStatsKeys(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	infos := m.visibleStats()
	if len(infos) == 0 {
		return m, nil
	}
	switch key.String() {
	case "up", "k":
		if m.statsCursor > 0 {
			m.statsCursor--
		}
		return m, nil
	case "down", "j":
		if m.statsCursor < len(infos)-1 {
			m.statsCursor++
		}
		return m, nil
	}

	si := infos[m.statsCursor]
	if si.Type == "boolean" {
		if key.String() == " " || key.String() == "enter" {
			m.cycleBool(si.Field)
			return m, m.scheduleRefresh()
		}
		return m, nil
	}

	r, ok := m.session.Stats.Range(si.Field)
	if !ok {
		return m, nil
	}
	step := statStep(r)
	switch key.String() {
	case "h":
		m.session.Stats.SetMin(si.Field, r.Min-step)
	case "l":
		m.session.Stats.SetMin(si.Field, r.Min+step)
	case "H":
		m.session.Stats.SetMax(si.Field, r.Max-step)
	case "L":
		m.session.Stats.SetMax(si.Field, r.Max+step)
	case "0":
		m.session.Stats.SetMin(si.Field, r.BoundMin)
		m.session.Stats.SetMax(si.Field, r.BoundMax)
	default:
		return m, nil
	}
	return m, m.scheduleRefresh()
}

// cycleBool walks the tri-state selection: all, yes, no, back to all.
func (m *Model) cycleBool(field string) {
	cur := m.session.Stats.Bool(field)
	switch {
	case cur == nil:
		v := true
		m.session.Stats.SetBool(field, &v)
	case *cur:
		v := false
		m.session.Stats.SetBool(field, &v)
	default:
		m.session.Stats.SetBool(field, nil)
	}
}

func (m Model) updateGridKeys(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "up", "k":
		if m.gridCursor > 0 {
			m.gridCursor--
		}
	case "down", "j":
		if m.gridCursor < len(m.rows)-1 {
			m.gridCursor++
		}
	case "enter":
		id, ok := rowID(m.rows, m.gridCursor)
		if !ok {
			return m, nil
		}
		api, base := m.api, m.session.Base
		return m, func() tea.Msg {
			d, err := api.Details(context.Background(), base, id)
			return detailDoneMsg{detail: d, err: err}
		}
	}
	m.clampGridScroll()
	return m, nil
}

func (m *Model) clampGridScroll() {
	visible := m.gridHeight()
	if visible <= 0 {
		return
	}
	if m.gridCursor < m.gridOffset {
		m.gridOffset = m.gridCursor
	}
	if m.gridCursor >= m.gridOffset+visible {
		m.gridOffset = m.gridCursor - visible + 1
	}
}

// rowID pulls the hidden id column out of a grid row.
func rowID(rows []query.Row, i int) (int64, bool) {
	if i < 0 || i >= len(rows) {
		return 0, false
	}
	switch v := rows[i]["id"].(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	}
	return 0, false
}

func (m Model) updateColumns(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	choices := m.session.Columns.Choosable()
	switch key.String() {
	case "esc", "q", "v":
		m.mode = modeBrowse
		m.visCols = m.session.Columns.Visible()
		// Hiding a column can lift a stats constraint, so re-query.
		return m, m.scheduleRefresh()
	case "up", "k":
		if m.colCursor > 0 {
			m.colCursor--
		}
	case "down", "j":
		if m.colCursor < len(choices)-1 {
			m.colCursor++
		}
	case " ", "enter":
		if m.colCursor < len(choices) {
			m.session.Columns.Toggle(choices[m.colCursor].Field)
		}
	}
	return m, nil
}

func (m Model) updateSearch(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.Type {
	case tea.KeyEsc:
		m.mode = modeBrowse
		return m, nil
	case tea.KeyEnter:
		if m.searchInput.Focused() {
			q := m.searchInput.Value()
			m.searchInput.Blur()
			api := m.api
			return m, func() tea.Msg {
				res, err := api.Search(context.Background(), q)
				return searchDoneMsg{results: res, err: err}
			}
		}
		base, id, ok := m.searchSelection()
		if !ok {
			return m, nil
		}
		api := m.api
		return m, func() tea.Msg {
			d, err := api.Details(context.Background(), base, id)
			return detailDoneMsg{detail: d, err: err}
		}
	}
	if m.searchInput.Focused() {
		var cmd tea.Cmd
		m.searchInput, cmd = m.searchInput.Update(msg)
		return m, cmd
	}
	total := m.searchHitCount()
	switch key.String() {
	case "up", "k":
		if m.searchCursor > 0 {
			m.searchCursor--
		}
	case "down", "j":
		if m.searchCursor < total-1 {
			m.searchCursor++
		}
	case "/":
		m.searchInput.Focus()
		return m, textinput.Blink
	}
	return m, nil
}

func (m Model) searchHitCount() int {
	if m.searchHits == nil {
		return 0
	}
	return len(m.searchHits.Persons) + len(m.searchHits.Locations)
}

// searchSelection resolves the cursor to a base and record id. Persons
// list first, locations after.
func (m Model) searchSelection() (records.Base, int64, bool) {
	if m.searchHits == nil {
		return records.BasePerson, 0, false
	}
	i := m.searchCursor
	if i < len(m.searchHits.Persons) {
		return records.BasePerson, m.searchHits.Persons[i].ID, true
	}
	i -= len(m.searchHits.Persons)
	if i < len(m.searchHits.Locations) {
		return records.BaseLocation, m.searchHits.Locations[i].ID, true
	}
	return records.BasePerson, 0, false
}

func (m Model) updateDetail(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "esc", "q", "enter":
			m.detail = nil
			m.mode = modeBrowse
		}
	}
	return m, nil
}

func (m Model) updateConfirmSend(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "y", "Y":
		return m, m.sendCmd()
	case "n", "N", "esc", "q":
		m.mode = modeBrowse
		m.compose = nil
		return m, m.setStatus("send cancelled")
	}
	return m, nil
}

func (m Model) updateExportPick(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	var format export.Format
	switch key.String() {
	case "c":
		format = export.FormatCSV
	case "x":
		format = export.FormatXLSX
	case "p":
		format = export.FormatPDF
	case "esc", "q":
		m.mode = modeBrowse
		return m, nil
	default:
		return m, nil
	}

	cols, rows := m.visCols, m.rows
	return m, func() tea.Msg {
		path := fmt.Sprintf("crypta-export-%s.%s",
			time.Now().Format("20060102-150405"), format.Extension())
		f, err := os.Create(path)
		if err != nil {
			return exportDoneMsg{err: err}
		}
		defer f.Close()
		if err := export.Write(f, format, cols, rows); err != nil {
			return exportDoneMsg{err: err}
		}
		return exportDoneMsg{path: path}
	}
}
