package ui

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"

	"github.com/abelbrown/imageshelf/internal/curate"
	"github.com/abelbrown/imageshelf/internal/feed"
	"github.com/abelbrown/imageshelf/internal/otel"
)

// App is the root Bubble Tea model.
// App does NOT hold the pipeline or the dispatcher. It acts through the
// injected command functions and learns state from messages.
type App struct {
	refresh func() tea.Cmd
	toggle  func() tea.Cmd
	clear   func() tea.Cmd
	save    func(item feed.Item) tea.Cmd

	ring       *otel.RingBuffer
	showParams bool

	items    []feed.Item
	capacity int
	cursor   int
	status   string
	attempts int
	connErr  error

	saving map[string]bool   // image URL → save in flight
	saved  map[string]string // image URL → gallery record ID
	failed map[string]bool

	spinner spinner.Model
	notice  string
	err     error
	width   int
	height  int
	ready   bool
	debug   bool
}

// NewApp creates a new App with the given command functions.
// refresh: returns a Cmd producing a FeedUpdated snapshot
// toggle: returns a Cmd that flips playback and reports PlaybackToggled
// clear: returns a Cmd that empties the buffer and reports FeedCleared
// save: returns a Cmd that persists the item and reports SaveResult
func NewApp(refresh, toggle, clear func() tea.Cmd, save func(item feed.Item) tea.Cmd) App {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle
	return App{
		refresh:    refresh,
		toggle:     toggle,
		clear:      clear,
		save:       save,
		showParams: true,
		status:     feed.StatusIdle,
		saving:     make(map[string]bool),
		saved:      make(map[string]string),
		failed:     make(map[string]bool),
		spinner:    s,
	}
}

// WithRing attaches the event ring whose latest warning is shown in the
// status bar and whose contents back the debug overlay.
func (a App) WithRing(r *otel.RingBuffer) App {
	a.ring = r
	return a
}

// WithParams controls whether generation parameters are shown per row.
func (a App) WithParams(show bool) App {
	a.showParams = show
	return a
}

// Init requests the first snapshot.
func (a App) Init() tea.Cmd {
	if a.refresh != nil {
		return a.refresh()
	}
	return nil
}

// Update handles messages and returns the updated model and any commands.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		return a, nil

	case FeedUpdated:
		a.applySnapshot(msg)
		return a, nil

	case PlaybackToggled:
		a.status = msg.Status
		if msg.State == feed.Paused {
			a.notice = "Paused"
		} else {
			a.notice = "Playing"
		}
		return a, nil

	case FeedCleared:
		a.items = nil
		a.cursor = 0
		a.notice = fmt.Sprintf("Cleared %d images", msg.Removed)
		return a, nil

	case SaveResult:
		return a.handleSaveResult(msg), nil

	case spinner.TickMsg:
		if len(a.saving) == 0 {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	return a, nil
}

// applySnapshot replaces the item list. The cursor follows the newest item
// while it sits at the top; otherwise it stays on the selected image until
// that image is evicted.
func (a *App) applySnapshot(msg FeedUpdated) {
	selected := ""
	if a.cursor > 0 && a.cursor < len(a.items) {
		selected = a.items[a.cursor].ImageURL
	}

	a.items = msg.Items
	a.capacity = msg.Capacity
	a.status = msg.Status
	a.attempts = msg.Attempts
	a.connErr = msg.Err

	a.cursor = 0
	if selected != "" {
		for i, it := range a.items {
			if it.ImageURL == selected {
				a.cursor = i
				break
			}
		}
	}

	present := make(map[string]bool, len(a.items))
	for _, it := range a.items {
		present[it.ImageURL] = true
	}
	for url := range a.saved {
		if !present[url] {
			delete(a.saved, url)
		}
	}
	for url := range a.failed {
		if !present[url] {
			delete(a.failed, url)
		}
	}
}

func (a App) handleSaveResult(msg SaveResult) App {
	if errors.Is(msg.Err, curate.ErrConflict) {
		a.notice = "Save already in progress"
		return a
	}
	delete(a.saving, msg.ImageURL)
	if msg.Err != nil {
		a.failed[msg.ImageURL] = true
		a.err = msg.Err
		return a
	}
	delete(a.failed, msg.ImageURL)
	a.saved[msg.ImageURL] = msg.Record.ID
	a.notice = "Saved " + runewidth.Truncate(msg.Record.Title, 40, "…")
	return a
}

// handleKeyMsg processes keyboard input.
func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Clear any existing error on key press
	if a.err != nil {
		a.err = nil
	}
	a.notice = ""

	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "j", "down":
		if a.cursor < len(a.items)-1 {
			a.cursor++
		}
		return a, nil

	case "k", "up":
		if a.cursor > 0 {
			a.cursor--
		}
		return a, nil

	case "g", "home":
		a.cursor = 0
		return a, nil

	case "G", "end":
		if len(a.items) > 0 {
			a.cursor = len(a.items) - 1
		}
		return a, nil

	case " ", "space", "p":
		if a.toggle != nil {
			return a, a.toggle()
		}
		return a, nil

	case "c":
		if a.clear != nil {
			return a, a.clear()
		}
		return a, nil

	case "s", "enter":
		return a.saveSelected()

	case "D":
		a.debug = !a.debug
		return a, nil
	}

	return a, nil
}

// saveSelected starts a save for the highlighted item. The spinner ticks
// only while at least one save is in flight.
func (a App) saveSelected() (tea.Model, tea.Cmd) {
	if a.save == nil || len(a.items) == 0 || a.cursor >= len(a.items) {
		return a, nil
	}
	item := a.items[a.cursor]
	if a.saving[item.ImageURL] {
		a.notice = "Save already in progress"
		return a, nil
	}

	a.saving[item.ImageURL] = true
	delete(a.failed, item.ImageURL)
	cmds := []tea.Cmd{a.save(item)}
	if len(a.saving) == 1 {
		cmds = append(cmds, a.spinner.Tick)
	}
	return a, tea.Batch(cmds...)
}

// View renders the UI.
func (a App) View() string {
	if !a.ready {
		return "Loading..."
	}

	if a.debug {
		return debugOverlay(a.ring, a.width, a.height-1) + "\n" + debugStatusBar(a.width)
	}

	header := renderHeader(a.status, len(a.items), a.capacity, a.attempts, a.width)

	// header, status bar, and the error bar when present
	contentHeight := a.height - 2
	if a.err != nil {
		contentHeight--
	}

	body := RenderFeed(a.items, a.cursor, a.width, contentHeight, a.marks(), a.showParams)

	errorBar := ""
	if a.err != nil {
		errorBar = ErrorStyle.Width(a.width).Render("Error: "+a.err.Error()+" (press any key to dismiss)") + "\n"
	}

	statusBar := RenderStatusBar(a.cursor, len(a.items), a.width, a.notice, a.latestWarning())

	return header + body + errorBar + statusBar
}

// marks renders the save marker for every item with save history.
func (a App) marks() map[string]string {
	m := make(map[string]string, len(a.saving)+len(a.saved)+len(a.failed))
	for url := range a.saved {
		m[url] = SavedMark.Render("✓")
	}
	for url := range a.failed {
		m[url] = FailedMark.Render("✗")
	}
	for url := range a.saving {
		m[url] = a.spinner.View()
	}
	return m
}

// latestWarning prefers the live connection error, then the event ring.
func (a App) latestWarning() string {
	if a.connErr != nil && a.status == feed.StatusReconnecting {
		return a.connErr.Error()
	}
	if a.ring == nil {
		return ""
	}
	e, ok := a.ring.Latest(otel.LevelWarn)
	if !ok {
		return ""
	}
	if e.Err != "" {
		return string(e.Kind) + ": " + e.Err
	}
	return string(e.Kind) + ": " + e.Msg
}

// Cursor returns the current cursor position (for testing).
func (a App) Cursor() int {
	return a.cursor
}

// Items returns the current items (for testing).
func (a App) Items() []feed.Item {
	return a.items
}

// Status returns the displayed feed status (for testing).
func (a App) Status() string {
	return a.status
}

// Saving reports whether a save for imageURL is in flight (for testing).
func (a App) Saving(imageURL string) bool {
	return a.saving[imageURL]
}

// SavedID returns the record ID saved for imageURL (for testing).
func (a App) SavedID(imageURL string) (string, bool) {
	id, ok := a.saved[imageURL]
	return id, ok
}

// Failed reports whether the last save for imageURL failed (for testing).
func (a App) Failed(imageURL string) bool {
	return a.failed[imageURL]
}
