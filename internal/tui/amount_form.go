package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/simonvc/custody/internal/client"
)

type formKind int

const (
	formDeposit formKind = iota
	formWithdraw
)

func (k formKind) String() string {
	if k == formDeposit {
		return "Deposit"
	}
	return "Withdraw"
}

type formSubmittedMsg struct {
	kind  formKind
	event *client.Event
	err   error
}

// amountFormModel asks for one amount in display units. For a withdrawal an
// empty amount means the whole balance.
type amountFormModel struct {
	kind       formKind
	input      textinput.Model
	submitting bool
	err        error
	done       bool
	cancelled  bool
	statusMsg  string
	width      int
}

func newAmountForm(kind formKind) amountFormModel {
	in := textinput.New()
	in.Placeholder = "e.g. 10.50"
	if kind == formWithdraw {
		in.Placeholder = "empty for the whole balance"
	}
	in.CharLimit = 48
	in.Focus()
	return amountFormModel{kind: kind, input: in}
}

// amount is the value to send, or nil for withdraw-everything.
func (m *amountFormModel) amount() (*string, error) {
	v := strings.TrimSpace(m.input.Value())
	if v == "" {
		if m.kind == formDeposit {
			return nil, fmt.Errorf("enter an amount to deposit")
		}
		return nil, nil
	}
	return &v, nil
}

func (m amountFormModel) update(msg tea.Msg, c *client.Client) (amountFormModel, tea.Cmd) {
	switch msg := msg.(type) {
	case formSubmittedMsg:
		m.submitting = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.done = true
		if msg.kind == formDeposit {
			m.statusMsg = "Deposited " + msg.event.Display
		} else {
			m.statusMsg = "Withdrew " + msg.event.Display
		}
		return m, nil

	case tea.KeyMsg:
		if m.submitting {
			return m, nil
		}
		switch {
		case key.Matches(msg, keys.Escape):
			m.cancelled = true
			return m, nil
		case key.Matches(msg, keys.Enter):
			amount, err := m.amount()
			if err != nil {
				m.err = err
				return m, nil
			}
			m.err = nil
			m.submitting = true
			return m, m.submit(c, amount)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m amountFormModel) submit(c *client.Client, amount *string) tea.Cmd {
	kind := m.kind
	return func() tea.Msg {
		var (
			ev  *client.Event
			err error
		)
		if kind == formDeposit {
			ev, err = c.Deposit(context.Background(), *amount, true)
		} else {
			ev, err = c.Withdraw(context.Background(), amount, true)
		}
		return formSubmittedMsg{kind: kind, event: ev, err: err}
	}
}

func (m *amountFormModel) view() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.kind.String()))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("Amount") + m.input.View())
	b.WriteString("\n\n")

	switch {
	case m.submitting:
		b.WriteString(dimStyle.Render("Submitting..."))
	case m.err != nil:
		b.WriteString(errorStyle.Render(m.err.Error()))
	default:
		b.WriteString(dimStyle.Render("enter:submit  esc:cancel"))
	}
	return formStyle(m.kind).Render(b.String())
}
