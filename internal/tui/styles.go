package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/naqsh/internal/logbook"
	"github.com/kingrea/naqsh/internal/models"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginBottom(1)
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#5B8DEF")).
			Padding(0, 1)
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#6BCB77"))
	accentStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).MarginTop(1)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6BCB77"))
	starStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD93D"))
	selectedOpt  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#000000")).Background(lipgloss.Color("#6BCB77")).Padding(0, 1)
	plainOpt     = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA")).Padding(0, 1)
)

var statusColors = map[models.OrderStatus]lipgloss.Color{
	models.StatusPending:    lipgloss.Color("#FFD93D"),
	models.StatusProcessing: lipgloss.Color("#5B8DEF"),
	models.StatusShipped:    lipgloss.Color("#C77DFF"),
	models.StatusDelivered:  lipgloss.Color("#6BCB77"),
	models.StatusCancelled:  lipgloss.Color("#FF6B6B"),
}

func statusBadge(s models.OrderStatus) string {
	color, ok := statusColors[s]
	if !ok {
		color = lipgloss.Color("#888888")
	}
	return lipgloss.NewStyle().Bold(true).Foreground(color).Render(s.Label())
}

func levelStyle(level logbook.Level) lipgloss.Style {
	switch level {
	case logbook.LevelSuccess:
		return successStyle
	case logbook.LevelWarn:
		return starStyle
	case logbook.LevelError:
		return errorStyle
	}
	return hintStyle
}
