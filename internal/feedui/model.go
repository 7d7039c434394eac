// Package feedui is a terminal feed browser. It renders the accumulated
// items of a scroll.Controller and loads the next page whenever the row
// after the last item comes within the lookahead of the visible window.
package feedui

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/jonboulle/clockwork"
	"github.com/sethvargo/go-retry"

	"feedscroll/internal/logging"
	"feedscroll/internal/model"
	"feedscroll/internal/query"
	"feedscroll/internal/render"
	"feedscroll/internal/scroll"
	"feedscroll/internal/source"
	"feedscroll/internal/trigger"
)

// DefaultLookahead is the lookahead margin in rows.
const DefaultLookahead = 3

// Header, search line, tag line and help line.
const chromeRows = 4

// Options configure a Model.
type Options struct {
	PageSize int
	Debounce time.Duration
	// Lookahead extends the visible window downwards, in rows. Zero
	// selects DefaultLookahead; a negative value disables it.
	Lookahead int
	Threshold float64
	// ScrollToTop enables the jump-to-top key and its hint.
	ScrollToTop bool
	// Tags is the vocabulary offered for toggling with the digit keys.
	Tags    []string
	Seed    []model.Item
	Query   model.Query
	Backoff func() retry.Backoff
	Clock   clockwork.Clock
	Logger  *slog.Logger
	// Renderer defaults to render.Plain.
	Renderer render.Renderer
}

type stateMsg struct{}

// Model implements tea.Model.
type Model struct {
	ctrl    *scroll.Controller
	query   *query.State
	trigger *trigger.Trigger
	sub     *scroll.Subscription
	updates chan struct{}

	renderer    render.Renderer
	theme       Theme
	keys        KeyMap
	tags        []string
	scrollToTop bool

	search    textinput.Model
	searching bool
	spinner   spinner.Model

	width  int
	height int
	offset int

	state    scroll.State
	lines    []string
	sentinel int
}

// New creates a Model reading from src. Nothing is fetched until the
// first window size is known.
func New(src source.Source, opts Options) Model {
	if opts.Lookahead == 0 {
		opts.Lookahead = DefaultLookahead
	}
	if opts.Renderer == nil {
		opts.Renderer = render.Plain{MaxDescription: 160}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	initial := opts.Query.Normalize()
	ctrl := scroll.New(src, scroll.Options{
		PageSize: opts.PageSize,
		Query:    initial,
		Seed:     opts.Seed,
		Backoff:  opts.Backoff,
		Logger:   opts.Logger,
	})
	q := query.New(query.Options{
		Debounce: opts.Debounce,
		Clock:    opts.Clock,
		Initial:  initial,
		OnChange: ctrl.Reset,
	})
	trig := trigger.New(ctrl, trigger.Options{Margin: opts.Lookahead, Threshold: opts.Threshold})

	updates := make(chan struct{}, 1)
	sub := ctrl.Subscribe(func(scroll.State) {
		select {
		case updates <- struct{}{}:
		default:
		}
	})

	input := textinput.New()
	input.Prompt = "/ "
	input.Placeholder = "search"
	input.SetValue(initial.Search)

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	return Model{
		ctrl:        ctrl,
		query:       q,
		trigger:     trig,
		sub:         sub,
		updates:     updates,
		renderer:    opts.Renderer,
		theme:       DefaultTheme,
		keys:        DefaultKeyMap,
		tags:        opts.Tags,
		scrollToTop: opts.ScrollToTop,
		search:      input,
		spinner:     spin,
		state:       ctrl.Snapshot(),
	}
}

// Close stops observation, cancels pending input and abandons in-flight
// fetches.
func (m Model) Close() {
	m.trigger.Dispose()
	m.query.Dispose()
	m.sub.Dispose()
	m.ctrl.Close()
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(listenForState(m.updates), m.spinner.Tick)
}

// listenForState blocks until the controller reports a change.
func listenForState(updates <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-updates; !ok {
			return nil
		}
		return stateMsg{}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.search.Width = max(msg.Width-4, 1)
		m.sync()
		return m, nil

	case stateMsg:
		m.sync()
		return m, listenForState(m.updates)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.searching {
			return m.handleSearchKeys(msg)
		}
		return m.handleKeys(msg)
	}
	return m, nil
}

func (m Model) handleSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.String() == "ctrl+c":
		return m, tea.Quit
	case key.Matches(msg, m.keys.SearchDone):
		m.searching = false
		m.search.Blur()
		m.query.Flush()
		m.sync()
		return m, nil
	case key.Matches(msg, m.keys.ClearSearch):
		m.searching = false
		m.search.Blur()
		m.search.SetValue("")
		m.query.SetSearch("")
		m.query.Flush()
		m.sync()
		return m, nil
	}

	before := m.search.Value()
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	if v := m.search.Value(); v != before {
		m.query.SetSearch(v)
	}
	return m, cmd
}

func (m Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		m.offset--
	case key.Matches(msg, m.keys.Down):
		m.offset++
	case key.Matches(msg, m.keys.PageUp):
		m.offset -= m.listHeight()
	case key.Matches(msg, m.keys.PageDown):
		m.offset += m.listHeight()
	case key.Matches(msg, m.keys.Top):
		if m.scrollToTop {
			m.offset = 0
		}
	case key.Matches(msg, m.keys.Bottom):
		m.offset = m.maxOffset()
	case key.Matches(msg, m.keys.Search):
		m.searching = true
		return m, m.search.Focus()
	case key.Matches(msg, m.keys.ClearAll):
		m.search.SetValue("")
		m.query.Clear()
	case key.Matches(msg, m.keys.Retry):
		m.ctrl.Retry()
	case key.Matches(msg, m.keys.ToggleTag):
		if i := int(msg.String()[0] - '1'); i < len(m.tags) {
			m.query.ToggleTag(m.tags[i])
		}
	default:
		return m, nil
	}
	m.sync()
	return m, nil
}

// sync refreshes the cached state and layout, clamps the scroll offset and
// lets the trigger look at the new geometry.
func (m *Model) sync() {
	m.relayout()
	if m.height == 0 {
		return
	}
	vp := trigger.Viewport{Offset: m.offset, Height: m.listHeight()}
	if m.trigger.Observe(vp, trigger.Sentinel{Top: m.sentinel, Height: 1}) {
		m.relayout()
	}
}

func (m *Model) relayout() {
	m.state = m.ctrl.Snapshot()
	m.lines, m.sentinel = m.layout(m.state)
	m.offset = min(max(m.offset, 0), m.maxOffset())
}

func (m Model) listHeight() int {
	return max(m.height-chromeRows, 1)
}

func (m Model) maxOffset() int {
	return max(len(m.lines)-m.listHeight(), 0)
}

// layout renders every item followed by the status panel. It returns the
// lines and the row of the sentinel, which is the first panel row.
func (m Model) layout(s scroll.State) ([]string, int) {
	normal := lipgloss.NewStyle().Foreground(m.theme.NormalText)

	var lines []string
	for i, it := range s.Items {
		title := lipgloss.NewStyle().Bold(true).Foreground(m.kindColor(it.Kind))
		for j, line := range strings.Split(m.renderer.Render(it, i), "\n") {
			line = m.fit(line)
			if j == 0 {
				lines = append(lines, title.Render(line))
				continue
			}
			lines = append(lines, normal.Render(line))
		}
		lines = append(lines, "")
	}
	sentinel := len(lines)
	return append(lines, m.panel(s)...), sentinel
}

func (m Model) panel(s scroll.State) []string {
	faint := lipgloss.NewStyle().Foreground(m.theme.HelpText)
	switch {
	case s.Loading:
		return []string{m.spinner.View() + " Loading…"}
	case s.Failed():
		errStyle := lipgloss.NewStyle().Foreground(m.theme.ErrorForeground).Bold(true)
		return []string{
			errStyle.Render(m.fit("! " + s.ErrMessage)),
			faint.Render("press r to retry"),
		}
	case s.Empty():
		if s.Query.Active() {
			return []string{"No items match the current filters.", faint.Render("press c to clear filters")}
		}
		return []string{"The feed is empty."}
	case !s.HasMore && len(s.Items) > 0:
		end := lipgloss.NewStyle().Foreground(m.theme.EndForeground)
		return []string{end.Render(fmt.Sprintf("· end of feed · %d items ·", len(s.Items)))}
	}
	return []string{""}
}

func (m Model) kindColor(k model.Kind) lipgloss.Color {
	switch k {
	case model.KindImage:
		return m.theme.ImageAccent
	case model.KindCard:
		return m.theme.CardAccent
	default:
		return m.theme.TextAccent
	}
}

func (m Model) fit(line string) string {
	if m.width <= 0 {
		return line
	}
	return render.Truncate(line, m.width)
}

// View implements tea.Model.
func (m Model) View() string {
	if m.height == 0 {
		return ""
	}
	header := lipgloss.NewStyle().Bold(true).Foreground(m.theme.HeaderForeground)
	faint := lipgloss.NewStyle().Foreground(m.theme.HelpText)

	var b strings.Builder
	b.WriteString(header.Render(fmt.Sprintf("feedscroll · %d items", len(m.state.Items))))
	b.WriteString("\n")

	if m.searching {
		b.WriteString(m.search.View())
	} else if v := m.query.Display(); v != "" {
		b.WriteString(lipgloss.NewStyle().Foreground(m.theme.NormalText).Render(m.fit("/ " + v)))
	} else {
		b.WriteString(faint.Render("/ to search"))
	}
	b.WriteString("\n")

	b.WriteString(m.tagLine())
	b.WriteString("\n")

	end := min(m.offset+m.listHeight(), len(m.lines))
	shown := 0
	for i := m.offset; i < end; i++ {
		b.WriteString(m.lines[i])
		b.WriteString("\n")
		shown++
	}
	for ; shown < m.listHeight(); shown++ {
		b.WriteString("\n")
	}

	b.WriteString(faint.Render(m.help()))
	return b.String()
}

func (m Model) tagLine() string {
	if len(m.tags) == 0 {
		return ""
	}
	selected := lipgloss.NewStyle().
		Background(m.theme.TagSelectedBackground).
		Foreground(m.theme.TagSelectedForeground)
	plain := lipgloss.NewStyle().Foreground(m.theme.FaintText)

	parts := make([]string, 0, len(m.tags))
	for i, tag := range m.tags {
		if i >= 9 {
			break
		}
		label := fmt.Sprintf("%d:%s", i+1, tag)
		if m.query.Selected(tag) {
			parts = append(parts, selected.Render(label))
			continue
		}
		parts = append(parts, plain.Render(label))
	}
	return strings.Join(parts, " ")
}

func (m Model) help() string {
	bindings := []key.Binding{m.keys.Down, m.keys.Up, m.keys.Search}
	if len(m.tags) > 0 {
		bindings = append(bindings, m.keys.ToggleTag)
	}
	if m.state.Query.Active() {
		bindings = append(bindings, m.keys.ClearAll)
	}
	if m.state.Failed() {
		bindings = append(bindings, m.keys.Retry)
	}
	if m.scrollToTop && m.offset > 0 {
		bindings = append(bindings, m.keys.Top)
	}
	bindings = append(bindings, m.keys.Quit)

	parts := make([]string, 0, len(bindings))
	for _, kb := range bindings {
		h := kb.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return m.fit(strings.Join(parts, " · "))
}
