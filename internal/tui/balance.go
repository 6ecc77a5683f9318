package tui

import (
	"context"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/simonvc/custody/internal/client"
)

type balanceLoadedMsg struct {
	balance *client.Balance
	err     error
}

type balanceModel struct {
	account   string
	balance   *client.Balance
	noBalance bool
	loading   bool
	err       error
	width     int
}

func (m *balanceModel) init(c *client.Client) tea.Cmd {
	m.loading = true
	return func() tea.Msg {
		bal, err := c.Balance(context.Background())
		return balanceLoadedMsg{balance: bal, err: err}
	}
}

func (m balanceModel) update(msg tea.Msg) (balanceModel, tea.Cmd) {
	if msg, ok := msg.(balanceLoadedMsg); ok {
		m.loading = false
		m.balance = nil
		m.noBalance = false
		m.err = nil
		switch {
		case client.IsNotFound(msg.err):
			m.noBalance = true
		case msg.err != nil:
			m.err = msg.err
		default:
			m.balance = msg.balance
		}
	}
	return m, nil
}

func (m *balanceModel) view() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Balance"))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("Account") + accountStyle.Render(m.account))
	b.WriteString("\n\n")

	switch {
	case m.loading && m.balance == nil:
		b.WriteString("Loading balance...")
	case m.err != nil:
		b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
	case m.noBalance:
		b.WriteString(emptyAccountStyle.Render("This account has never deposited.\nPress 'd' to make a deposit."))
	case m.balance != nil:
		b.WriteString(balanceFigureStyle.Render(m.balance.Display))
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("Minor units") + dimStyle.Render(m.balance.Balance.String()))
	}
	return b.String()
}
