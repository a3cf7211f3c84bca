// Package ui is the terminal front end of seltree: a Bubble Tea program that
// renders the selection-results tree, drives relation fetches as commands and
// keeps the tree in step with the live selection set.
package ui

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vanderheijden86/seltree/pkg/debug"
	"github.com/vanderheijden86/seltree/pkg/metrics"
	"github.com/vanderheijden86/seltree/pkg/model"
	"github.com/vanderheijden86/seltree/pkg/reconcile"
	"github.com/vanderheijden86/seltree/pkg/relations"
	"github.com/vanderheijden86/seltree/pkg/selection"
	"github.com/vanderheijden86/seltree/pkg/state"
	"github.com/vanderheijden86/seltree/pkg/watcher"
)

// SelectionChangedMsg is sent when the live selection set changes.
type SelectionChangedMsg struct{}

// FileChangedMsg is sent when the selection document changes on disk.
type FileChangedMsg struct{}

// reloadDoneMsg reports the outcome of re-reading the selection document.
type reloadDoneMsg struct{ err error }

// WatchFileCmd returns a command that waits for file changes and sends FileChangedMsg.
func WatchFileCmd(w *watcher.Watcher) tea.Cmd {
	return func() tea.Msg {
		<-w.Changed()
		return FileChangedMsg{}
	}
}

// waitForSelectionCmd waits for the next selection change notification.
func waitForSelectionCmd(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return SelectionChangedMsg{}
	}
}

func reloadCmd(r *watcher.Reloader) tea.Cmd {
	return func() tea.Msg {
		return reloadDoneMsg{err: r.Reload(context.Background())}
	}
}

// Options configures the Model.
type Options struct {
	// KeepTreeState keeps expansion and caches when the selection empties and
	// persists expanded nodes to TreeStatePath.
	KeepTreeState bool
	TreeStatePath string
	ShowDetails   bool

	// Watcher and Reloader follow the selection document; both may be nil.
	Watcher  *watcher.Watcher
	Reloader *watcher.Reloader

	// CopyToClipboard defaults to clipboard.WriteAll.
	CopyToClipboard func(string) error
}

// Model is the Bubble Tea model of the selection tree.
type Model struct {
	store  *state.Store
	sel    *selection.Set
	loader *relations.Loader
	rec    *reconcile.Reconciler
	layers LayerLookup
	opts   Options

	theme   Theme
	keys    KeyMap
	help    help.Model
	spinner spinner.Model
	tree    TreeView
	details DetailPane

	selCh chan struct{}
	unsub func()

	// selectedRoot is the root feature of the row last selected.
	selectedRoot string
	// supportTried holds table records whose geometry lookup was issued.
	supportTried map[string]bool

	width         int
	height        int
	showDetails   bool
	statusMsg     string
	statusIsError bool
	quitting      bool
}

// NewModel returns a Model over store and the live selection set sel.
func NewModel(store *state.Store, sel *selection.Set, loader *relations.Loader, layers LayerLookup, opts Options) Model {
	if opts.CopyToClipboard == nil {
		opts.CopyToClipboard = clipboard.WriteAll
	}
	theme := DefaultTheme(lipgloss.DefaultRenderer())

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.PendingText

	m := Model{
		store:        store,
		sel:          sel,
		loader:       loader,
		rec:          reconcile.New(reconcile.Options{KeepTreeState: opts.KeepTreeState}),
		layers:       layers,
		opts:         opts,
		theme:        theme,
		keys:         DefaultKeyMap(),
		help:         help.New(),
		spinner:      sp,
		tree:         NewTreeView(theme),
		details:      NewDetailPane(40, 20),
		selCh:        make(chan struct{}, 1),
		supportTried: make(map[string]bool),
		width:        80,
		height:       24,
		showDetails:  opts.ShowDetails,
	}
	ch := m.selCh
	m.unsub = sel.Subscribe(func(selection.Snapshot) {
		select {
		case ch <- struct{}{}:
		default:
		}
	})

	if opts.KeepTreeState && opts.TreeStatePath != "" {
		ts, err := LoadTreeState(opts.TreeStatePath)
		if err != nil {
			log.Printf("warning: %v", err)
		}
		if n := RestoreTreeState(store, sel.Snapshot(), ts); n > 0 {
			debug.Log("ui: restored %d expanded nodes", n)
		}
	}

	m.layout()
	m.sync()
	return m
}

// Init starts the spinner, the selection and file watches and the fetches
// the restored tree needs.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, waitForSelectionCmd(m.selCh), m.fetchCmds()}
	if m.opts.Watcher != nil {
		cmds = append(cmds, WatchFileCmd(m.opts.Watcher))
	}
	return tea.Batch(cmds...)
}

// Update handles a message, then reconciles the state with the selection
// and issues the fetches the visible rows need.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()

	case SelectionChangedMsg:
		cmds = append(cmds, waitForSelectionCmd(m.selCh))

	case FileChangedMsg:
		if m.opts.Reloader != nil {
			cmds = append(cmds, reloadCmd(m.opts.Reloader))
		}
		if m.opts.Watcher != nil {
			cmds = append(cmds, WatchFileCmd(m.opts.Watcher))
		}
		// The new selection arrives through SelectionChangedMsg.
		return m, tea.Batch(cmds...)

	case reloadDoneMsg:
		if msg.err != nil {
			m.setStatus("selection reload failed: "+msg.err.Error(), true)
		}
		return m, nil

	case fetchDoneMsg:
		if msg.action != nil {
			if _, err := m.store.Dispatch(msg.action); err != nil && !errors.Is(err, state.ErrStaleResponse) {
				debug.Log("ui: completion of %s dropped: %v", msg.key, err)
			}
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.tree.SetSpinner(m.spinner.View())
		return m, cmd

	case tea.KeyMsg:
		cmd, quit := m.handleKey(msg)
		if quit {
			return m, cmd
		}
		cmds = append(cmds, cmd)
	}

	m.sync()
	cmds = append(cmds, m.fetchCmds())
	return m, tea.Batch(cmds...)
}

// sync reconciles the state with the selection and rebuilds the rows.
func (m *Model) sync() {
	m.loader.Prune(m.sel.Snapshot())
	applied, _ := m.rec.Sync(m.store, m.sel)
	for _, a := range applied {
		if _, ok := a.(state.ResetState); ok {
			m.loader.InvalidateAll()
			m.selectedRoot = ""
			break
		}
	}

	st := m.store.State()
	snap := m.sel.Snapshot()
	m.tree.SetRows(BuildRows(st, snap, m.layers))
	if row, ok := m.tree.SelectedRow(); ok && m.showDetails {
		m.details.SetMarkdown(detailMarkdown(row, snap, st))
	}
}

// fetchCmds begins the fetches the visible rows need and returns their
// commands.
func (m *Model) fetchCmds() tea.Cmd {
	st := m.store.State()
	tasks := planFetches(m.loader, st, m.tree.Rows())
	if row, ok := m.tree.SelectedRow(); ok && supportRow(row) && !m.supportTried[row.Feature.GisID()] {
		if t, ok := m.loader.PlanSupportFeatures(st, row.Root, row.Layer, row.Feature); ok {
			m.supportTried[row.Feature.GisID()] = true
			tasks = append(tasks, t)
		}
	}
	var cmds []tea.Cmd
	for _, t := range tasks {
		cmds = append(cmds, fetchCmd(m.store, t))
	}
	return tea.Batch(cmds...)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	m.statusMsg, m.statusIsError = "", false

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit(), true
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.layout()

	case key.Matches(msg, m.keys.Up):
		m.tree.MoveUp()
		m.selectCurrent()
	case key.Matches(msg, m.keys.Down):
		m.tree.MoveDown()
		m.selectCurrent()
	case key.Matches(msg, m.keys.PageUp):
		m.tree.PageUp()
		m.selectCurrent()
	case key.Matches(msg, m.keys.PageDown):
		m.tree.PageDown()
		m.selectCurrent()
	case key.Matches(msg, m.keys.Top):
		m.tree.JumpToTop()
		m.selectCurrent()
	case key.Matches(msg, m.keys.Bottom):
		m.tree.JumpToBottom()
		m.selectCurrent()

	case key.Matches(msg, m.keys.Toggle):
		m.toggle()
		m.selectCurrent()
	case key.Matches(msg, m.keys.Expand):
		row, ok := m.tree.SelectedRow()
		if !ok || !row.Expandable() {
			break
		}
		if !row.Expanded {
			m.toggle()
		} else {
			m.tree.MoveDown()
		}
		m.selectCurrent()
	case key.Matches(msg, m.keys.Collapse):
		row, ok := m.tree.SelectedRow()
		if !ok {
			break
		}
		if row.Expandable() && row.Expanded {
			m.dispatch(state.CloseMultipleObjects{IDs: []string{row.Node.ID}})
		} else if m.tree.JumpToParent() {
			m.selectCurrent()
		}
	case key.Matches(msg, m.keys.CollapseAll):
		m.dispatch(state.CloseMultipleObjects{IDs: m.tree.Roots()})
		m.setStatus("Collapsed all", false)

	case key.Matches(msg, m.keys.Refresh):
		return m.refresh(), false
	case key.Matches(msg, m.keys.Copy):
		m.copyID()
	case key.Matches(msg, m.keys.Details):
		m.showDetails = !m.showDetails
		m.layout()
	case key.Matches(msg, m.keys.ScrollDown):
		m.details.ScrollDown()
	case key.Matches(msg, m.keys.ScrollUp):
		m.details.ScrollUp()
	}
	return nil, false
}

func (m *Model) dispatch(a state.Action) {
	if _, err := m.store.Dispatch(a); err != nil {
		debug.Log("ui: %T: %v", a, err)
	}
}

func (m *Model) toggle() {
	row, ok := m.tree.SelectedRow()
	if !ok || !row.Expandable() {
		return
	}
	m.dispatch(state.ToggleExpand{Node: row.Node})
}

// selectCurrent makes the row under the cursor the selected features. When
// the selection moves to another root feature whose branch is collapsed,
// the fetches of the previous root are cancelled.
func (m *Model) selectCurrent() {
	row, ok := m.tree.SelectedRow()
	if !ok {
		return
	}
	sel, ok := SelectionFor(row, m.sel.Snapshot(), m.store.State())
	if !ok {
		return
	}
	if prev := m.selectedRoot; prev != "" && prev != row.Root && !m.branchOpen(prev) {
		m.loader.Invalidate(prev)
	}
	m.selectedRoot = row.Root
	m.dispatch(state.SelectFeatures{Selection: sel})
}

// branchOpen reports whether any expanded row belongs to root.
func (m *Model) branchOpen(root string) bool {
	for _, r := range m.tree.Rows() {
		if r.Root == root && r.Expanded {
			return true
		}
	}
	return false
}

// refresh drops the cached relations of the focused row so they are loaded
// again. Relationship classes in the Error state are retried directly.
func (m *Model) refresh() tea.Cmd {
	row, ok := m.tree.SelectedRow()
	if !ok {
		return nil
	}
	if row.Kind == RowError || row.Kind == RowPending || row.Kind == RowEmpty {
		if !m.tree.JumpToParent() {
			return nil
		}
		row, _ = m.tree.SelectedRow()
	}

	switch row.Kind {
	case RowFeature, RowRelated:
		fid := row.Feature.GisID()
		st := m.store.State()
		if keys := st.RelationObjectKeysFor(fid); len(keys) > 0 {
			m.dispatch(state.DestroyRelationObjects{IDs: keys})
		}
		m.setStatus("Reloading relations of "+fid, false)
		if st.RelationClasses().Status(fid) != state.StatusError {
			return nil
		}
		if t, ok := m.loader.PlanRelationClasses(m.store.State(), row.Root, row.Layer, row.Feature); ok {
			return fetchCmd(m.store, t)
		}
	case RowRelationship:
		key := model.RelationObjectKey(row.Feature.GisID(), row.Relationship.ID)
		m.dispatch(state.DestroyRelationObjects{IDs: []string{key}})
		m.setStatus("Reloading "+row.Label, false)
	}
	return nil
}

func (m *Model) copyID() {
	row, ok := m.tree.SelectedRow()
	if !ok || !row.Expandable() {
		return
	}
	id := row.Node.GisID
	if row.IsFeature() {
		id = row.Feature.GisID()
	}
	if err := m.opts.CopyToClipboard(id); err != nil {
		m.setStatus(fmt.Sprintf("Clipboard error: %v", err), true)
		return
	}
	m.setStatus("Copied "+id, false)
}

func (m *Model) setStatus(msg string, isError bool) {
	m.statusMsg, m.statusIsError = msg, isError
}

// quit persists the tree state when it is kept and stops every fetch.
func (m *Model) quit() tea.Cmd {
	m.quitting = true
	if m.opts.KeepTreeState && m.opts.TreeStatePath != "" {
		if err := SaveTreeState(m.opts.TreeStatePath, TreeStateFromTree(m.store.State().Tree())); err != nil {
			log.Printf("warning: %v", err)
		}
	}
	m.loader.Close()
	if m.unsub != nil {
		m.unsub()
	}
	return tea.Quit
}

// layout sizes the tree and the detail pane for the terminal.
func (m *Model) layout() {
	m.help.Width = m.width
	bodyHeight := m.height - 1 - lipgloss.Height(m.footerView())
	if bodyHeight < 3 {
		bodyHeight = 3
	}
	treeWidth := m.width
	if m.detailsVisible() {
		treeWidth = m.width * 55 / 100
		m.details.SetSize(m.width-treeWidth-3, bodyHeight-2)
	}
	m.tree.SetSize(treeWidth, bodyHeight)
}

func (m *Model) detailsVisible() bool {
	return m.showDetails && m.width >= 70
}

// View renders the title bar, the tree with the optional detail pane and
// the status or help line.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	defer metrics.Timer(metrics.TreeRender)()

	body := m.tree.View()
	if m.detailsVisible() {
		pane := PanelStyle.Render(m.details.View())
		body = lipgloss.JoinHorizontal(lipgloss.Top, body, " ", pane)
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.titleView(), body, m.footerView())
}

func (m Model) titleView() string {
	snap := m.sel.Snapshot()
	features := 0
	for _, g := range snap.Groups {
		features += g.Features.Len()
	}
	parts := []string{"seltree", fmt.Sprintf("%d layers · %d features", len(snap.Groups), features)}
	if sel := m.store.State().Selected(); !sel.IsEmpty() {
		parts = append(parts, sel.String())
	}
	return m.theme.MutedText.Render(truncate(strings.Join(parts, "  │  "), m.width))
}

func (m Model) footerView() string {
	if m.statusMsg != "" {
		if m.statusIsError {
			return m.theme.StatusError.Render(truncate(m.statusMsg, m.width))
		}
		return m.theme.StatusText.Render(truncate(m.statusMsg, m.width))
	}
	return m.help.View(m.keys)
}

// Store returns the state container.
func (m Model) Store() *state.Store {
	return m.store
}

// Rows returns the rows currently shown.
func (m Model) Rows() []Row {
	return m.tree.Rows()
}

// SelectedRow returns the row under the cursor.
func (m Model) SelectedRow() (Row, bool) {
	return m.tree.SelectedRow()
}

// StatusMessage returns the status line and whether it reports an error.
func (m Model) StatusMessage() (string, bool) {
	return m.statusMsg, m.statusIsError
}
