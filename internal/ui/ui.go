// Package ui renders resolution progress and results in the terminal.
package ui

import (
	"context"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"linkchain/internal/media"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	doneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// eventMsg carries one resolution event into the model.
type eventMsg media.Event

// doneMsg signals that the event stream is exhausted.
type doneMsg struct{}

// Model is the Bubble Tea model for a live resolve.
type Model struct {
	spinner  spinner.Model
	page     string
	events   <-chan media.Event
	links    []media.StreamLink
	subs     []media.Subtitle
	done     bool
	canceled bool
}

// NewModel creates a model that reads events until the channel closes.
func NewModel(page string, events <-chan media.Event) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return Model{spinner: s, page: page, events: events}
}

func waitForEvent(events <-chan media.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.canceled = true
			return m, tea.Quit
		}

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		if msg.Link != nil {
			m.links = append(m.links, *msg.Link)
			media.SortLinks(m.links)
		}
		if msg.Subtitle != nil {
			m.subs = append(m.subs, *msg.Subtitle)
		}
		return m, waitForEvent(m.events)

	case doneMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString("\n  ")
	switch {
	case m.canceled:
		b.WriteString(errStyle.Render("✗") + " canceled")
	case m.done && len(m.links) == 0:
		b.WriteString(errStyle.Render("✗") + " no streams found")
	case m.done:
		b.WriteString(doneStyle.Render("✓") + " resolved")
	default:
		b.WriteString(m.spinner.View() + " resolving")
	}
	b.WriteString(" " + titleStyle.Render(m.page) + "\n\n")

	for _, l := range m.links {
		fmt.Fprintf(&b, "  %s  %-6s %-12s %s\n",
			infoStyle.Render(fmt.Sprintf("%5s", l.Quality)), l.Kind, l.Source, l.URL)
	}
	if len(m.subs) > 0 {
		langs := make([]string, len(m.subs))
		for i, s := range m.subs {
			langs[i] = s.Language
		}
		fmt.Fprintf(&b, "\n  subtitles: %s\n", strings.Join(langs, ", "))
	}
	if !m.done && !m.canceled {
		b.WriteString("\n  " + helpStyle.Render("q: stop") + "\n")
	}
	b.WriteString("\n")
	return b.String()
}

// Links returns the links received so far, best first.
func (m Model) Links() []media.StreamLink { return m.links }

// Subtitles returns the subtitles received so far.
func (m Model) Subtitles() []media.Subtitle { return m.subs }

// Canceled reports whether the user stopped the view.
func (m Model) Canceled() bool { return m.canceled }

// Run shows the live view while resolve streams events. Quitting the view
// cancels the context handed to resolve.
func Run(ctx context.Context, page string, resolve func(context.Context) iter.Seq[media.Event], in io.Reader, out io.Writer) (Model, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan media.Event)
	go func() {
		defer close(ch)
		for ev := range resolve(ctx) {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	p := tea.NewProgram(NewModel(page, ch), tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	cancel()
	for range ch {
	}
	if err != nil {
		return Model{}, fmt.Errorf("running resolve view: %w", err)
	}
	return final.(Model), nil
}
