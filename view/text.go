package view

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true)
	cardStyle    = lipgloss.NewStyle().Bold(true).Underline(true)
	mutedStyle   = lipgloss.NewStyle().Faint(true)
)

// Text renders the dashboard for a terminal.
func Text(d *Dashboard) string {
	if d == nil {
		return "Loading...\n"
	}
	var sb strings.Builder
	sb.WriteString(headingStyle.Render(fmt.Sprintf("CDP %d", d.CDPID)))
	sb.WriteString("\n\n")

	titleWidth := 0
	for _, card := range d.Cards {
		for _, row := range card.Rows {
			if w := lipgloss.Width(row.Title); w > titleWidth {
				titleWidth = w
			}
		}
	}
	titleCol := lipgloss.NewStyle().Width(titleWidth + 2)

	for _, card := range d.Cards {
		sb.WriteString(cardStyle.Render(card.Title))
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("  %s %s", card.Amount, card.Denomination))
		if card.Extra != "" {
			sb.WriteString(" " + mutedStyle.Render(card.Extra))
		}
		sb.WriteString("\n")
		for _, row := range card.Rows {
			line := "  " + titleCol.Render(row.Title) + row.Value
			if row.Conversion != "" {
				line += " " + mutedStyle.Render("("+row.Conversion+")")
			}
			if row.Action != nil {
				state := "enabled"
				if !row.Action.Enabled {
					state = "disabled"
				}
				line += fmt.Sprintf(" [%s: %s]", row.Action.Kind, state)
			}
			sb.WriteString(line + "\n")
		}
		sb.WriteString("\n")
	}

	if len(d.History) > 0 {
		sb.WriteString(cardStyle.Render(TitleHistory))
		sb.WriteString("\n")
		for _, h := range d.History {
			sb.WriteString(fmt.Sprintf("  %-6s %-28s %-13s %s %s\n", h.CollateralType, h.Activity, h.Time, h.Sender, h.TxHash))
		}
	}
	return sb.String()
}
