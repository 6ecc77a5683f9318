package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/simonvc/custody/internal/client"
)

type mode int

const (
	modeBalance mode = iota
	modeEvents
	modeForm
)

var tabModes = []mode{modeBalance, modeEvents}

func tabLabel(m mode) string {
	switch m {
	case modeBalance:
		return "Balance"
	case modeEvents:
		return "Events"
	default:
		return ""
	}
}

// eventStreamedMsg arrives when another session moves the account's funds.
type eventStreamedMsg struct {
	event client.Event
}

type streamEndedMsg struct {
	err error
}

type App struct {
	client        *client.Client
	mode          mode
	tabIndex      int
	width, height int
	err           error
	statusMsg     string

	streamCtx    context.Context
	stopStream   context.CancelFunc
	streamEvents chan client.Event

	balance balanceModel
	events  eventListModel
	form    amountFormModel
}

func NewApp(c *client.Client) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		client:       c,
		mode:         modeBalance,
		streamCtx:    ctx,
		stopStream:   cancel,
		streamEvents: make(chan client.Event, 16),
		balance:      balanceModel{account: c.Account().String()},
	}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(
		a.balance.init(a.client),
		a.events.init(a.client),
		a.stream(),
		a.waitForEvent(),
	)
}

func (a *App) stream() tea.Cmd {
	return func() tea.Msg {
		err := a.client.StreamEvents(a.streamCtx, func(ev client.Event) {
			select {
			case a.streamEvents <- ev:
			case <-a.streamCtx.Done():
			}
		})
		return streamEndedMsg{err: err}
	}
}

func (a *App) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		select {
		case ev := <-a.streamEvents:
			return eventStreamedMsg{event: ev}
		case <-a.streamCtx.Done():
			return nil
		}
	}
}

func (a *App) refresh() tea.Cmd {
	return tea.Batch(a.balance.init(a.client), a.events.init(a.client))
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.balance.width = msg.Width
		a.events.width = msg.Width
		a.events.height = msg.Height - 6
		a.form.width = msg.Width
		return a, nil

	// Data loads go to their model whatever the active mode.
	case balanceLoadedMsg:
		var cmd tea.Cmd
		a.balance, cmd = a.balance.update(msg)
		return a, cmd
	case eventsLoadedMsg:
		var cmd tea.Cmd
		a.events, cmd = a.events.update(msg)
		return a, cmd
	case eventStreamedMsg:
		a.statusMsg = string(msg.event.Kind) + " " + msg.event.Display
		return a, tea.Batch(a.refresh(), a.waitForEvent())
	case streamEndedMsg:
		if msg.err != nil {
			a.err = msg.err
		}
		return a, nil
	}

	if a.mode == modeForm {
		var cmd tea.Cmd
		a.form, cmd = a.form.update(msg, a.client)
		if a.form.done {
			a.mode = tabModes[a.tabIndex]
			a.statusMsg = a.form.statusMsg
			return a, a.refresh()
		}
		if a.form.cancelled {
			a.mode = tabModes[a.tabIndex]
			a.statusMsg = a.form.kind.String() + " cancelled"
		}
		return a, cmd
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			a.stopStream()
			return a, tea.Quit

		case key.Matches(msg, keys.Tab):
			a.tabIndex = (a.tabIndex + 1) % len(tabModes)
			a.mode = tabModes[a.tabIndex]
			a.statusMsg = ""
			return a, a.refreshTab()

		case key.Matches(msg, keys.ShiftTab):
			a.tabIndex = (a.tabIndex - 1 + len(tabModes)) % len(tabModes)
			a.mode = tabModes[a.tabIndex]
			a.statusMsg = ""
			return a, a.refreshTab()

		case key.Matches(msg, keys.Deposit):
			return a, a.openForm(formDeposit)

		case key.Matches(msg, keys.Withdraw):
			return a, a.openForm(formWithdraw)

		case key.Matches(msg, keys.Refresh):
			a.err = nil
			return a, a.refresh()
		}
	}

	var cmd tea.Cmd
	switch a.mode {
	case modeBalance:
		a.balance, cmd = a.balance.update(msg)
	case modeEvents:
		a.events, cmd = a.events.update(msg)
	}
	return a, cmd
}

func (a *App) openForm(kind formKind) tea.Cmd {
	a.mode = modeForm
	a.form = newAmountForm(kind)
	a.form.width = a.width
	a.statusMsg = ""
	return textinput.Blink
}

func (a *App) refreshTab() tea.Cmd {
	switch a.mode {
	case modeBalance:
		return a.balance.init(a.client)
	case modeEvents:
		return a.events.init(a.client)
	}
	return nil
}

func (a *App) View() string {
	tabs := ""
	for i, m := range tabModes {
		label := tabLabel(m)
		if i == a.tabIndex && a.mode != modeForm {
			tabs += activeTabStyle.Render(label)
		} else {
			tabs += inactiveTabStyle.Render(label)
		}
		if i < len(tabModes)-1 {
			tabs += " "
		}
	}

	var content string
	switch a.mode {
	case modeBalance:
		content = a.balance.view()
	case modeEvents:
		content = a.events.view()
	case modeForm:
		content = a.form.view()
	}

	status := ""
	if a.statusMsg != "" {
		status = successStyle.Render(a.statusMsg)
	}
	if a.err != nil {
		status = errorStyle.Render(a.err.Error())
	}

	helpText := statusBarStyle.Render("tab:switch  d:deposit  w:withdraw  r:refresh  q:quit")

	return lipgloss.JoinVertical(lipgloss.Left,
		tabs,
		"",
		content,
		"",
		status,
		helpText,
	)
}
