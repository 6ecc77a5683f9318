package tui

import "github.com/charmbracelet/lipgloss"

const (
	accentColor   = lipgloss.Color("37")
	mutedColor    = lipgloss.Color("244")
	depositColor  = lipgloss.Color("78")
	withdrawColor = lipgloss.Color("209")
	faultColor    = lipgloss.Color("203")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor).
			MarginBottom(1)

	accountStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("231")).
			Background(accentColor).
			Padding(0, 1)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(mutedColor).
				Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(faultColor)

	successStyle = lipgloss.NewStyle().
			Foreground(depositColor)

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(14)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	// Balance screen.
	balanceFigureStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("231")).
				Background(lipgloss.Color("23")).
				Padding(1, 4).
				MarginBottom(1)

	emptyAccountStyle = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder(), false, false, false, true).
				BorderForeground(accentColor).
				PaddingLeft(2)

	// Event log.
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(mutedColor).
			Underline(true)

	cursorStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	depositBadgeStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("16")).
				Background(depositColor).
				Width(11).
				Align(lipgloss.Center)

	withdrawBadgeStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("16")).
				Background(withdrawColor).
				Width(11).
				Align(lipgloss.Center)
)

// formStyle frames the amount form in the colour of the money's direction.
func formStyle(kind formKind) lipgloss.Style {
	border := depositColor
	if kind == formWithdraw {
		border = withdrawColor
	}
	return lipgloss.NewStyle().
		Border(lipgloss.ThickBorder(), false, false, false, true).
		BorderForeground(border).
		PaddingLeft(2)
}
