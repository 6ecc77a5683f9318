package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/simonvc/custody/internal/client"
	"github.com/simonvc/custody/internal/ledger"
)

const eventPageSize = 100

type eventsLoadedMsg struct {
	events []client.Event
	err    error
}

type eventListModel struct {
	events  []client.Event
	cursor  int
	loading bool
	err     error
	width   int
	height  int
}

func (m *eventListModel) init(c *client.Client) tea.Cmd {
	m.loading = true
	return func() tea.Msg {
		events, err := c.Events(context.Background(), eventPageSize)
		return eventsLoadedMsg{events: events, err: err}
	}
}

func (m eventListModel) update(msg tea.Msg) (eventListModel, tea.Cmd) {
	switch msg := msg.(type) {
	case eventsLoadedMsg:
		m.loading = false
		m.events = msg.events
		m.err = msg.err
		if m.cursor >= len(m.events) {
			m.cursor = max(len(m.events)-1, 0)
		}

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.events)-1 {
				m.cursor++
			}
		}
	}
	return m, nil
}

func (m *eventListModel) view() string {
	if m.loading && m.events == nil {
		return "Loading events..."
	}
	if m.err != nil {
		return errorStyle.Render("Error: " + m.err.Error())
	}
	if len(m.events) == 0 {
		return dimStyle.Render("No events yet.")
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Events"))
	b.WriteString("\n")

	header := fmt.Sprintf("  %-19s  %-11s  %24s  %s", "TIME", "KIND", "AMOUNT", "ID")
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")

	maxRows := m.height - 4
	if maxRows < 1 {
		maxRows = 10
	}

	start := 0
	if m.cursor >= maxRows {
		start = m.cursor - maxRows + 1
	}

	for i := start; i < len(m.events) && i < start+maxRows; i++ {
		ev := m.events[i]
		badge, sign := withdrawBadgeStyle, "-"
		if ev.Kind == ledger.EventDeposited {
			badge, sign = depositBadgeStyle, "+"
		}

		pointer := "  "
		if i == m.cursor {
			pointer = cursorStyle.Render("> ")
		}
		fmt.Fprintf(&b, "%s%-19s  %s  %24s  %s\n",
			pointer,
			ev.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			badge.Render(string(ev.Kind)),
			sign+ev.Display,
			dimStyle.Render(ev.ID),
		)
	}

	b.WriteString(fmt.Sprintf("\n  %d events", len(m.events)))
	return b.String()
}
