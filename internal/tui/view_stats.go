package tui

import (
	"fmt"
	"strings"

	"rejectiondash/internal/model"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"
)

const (
	maxBarWidth   = 40
	monthLabelLen = len("2006-01")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	numberStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	barStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	quoteStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.Color("246")).
			PaddingTop(1)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			PaddingTop(1)
)

func renderSummary(s model.RejectionStats) string {
	who := s.UserProfile.Email
	if s.UserProfile.Name != "" {
		who = fmt.Sprintf("%s <%s>", s.UserProfile.Name, s.UserProfile.Email)
	}
	return titleStyle.Render("Rejection dashboard for "+who) + "\n\n" +
		"Total rejections: " + numberStyle.Render(fmt.Sprint(s.TotalRejections)) + "   " +
		"From FANG: " + numberStyle.Render(fmt.Sprint(s.FANGRejectionCount))
}

// renderMonths draws one bar per month, scaled to the busiest month.
func renderMonths(counts model.MonthlyCounts, width int) string {
	if len(counts) == 0 {
		return mutedStyle.Render("No rejections found since the search start date.")
	}

	peak := 0
	for _, c := range counts {
		peak = max(peak, c.Count)
	}
	barWidth := maxBarWidth
	if width > 0 {
		// label, two spaces, bar, space, count
		barWidth = min(barWidth, width-monthLabelLen-2-1-len(fmt.Sprint(peak)))
	}
	barWidth = max(barWidth, 1)

	var b strings.Builder
	b.WriteString(titleStyle.Render("Rejections per month"))
	for _, c := range counts {
		n := c.Count * barWidth / peak
		if n == 0 && c.Count > 0 {
			n = 1
		}
		fmt.Fprintf(&b, "\n%s  %s %d", c.Month, barStyle.Render(strings.Repeat("█", n)), c.Count)
	}
	return b.String()
}

func renderQuote(q string, width int) string {
	style := quoteStyle
	if width > 0 {
		style = style.Width(width)
	}
	return style.Render("“" + q + "”")
}

func statsFooter() string {
	return footerStyle.Render("r: rescan  ↑/↓: browse notable  q: quit")
}

// notableItem wraps NotableRejection for the list display.
type notableItem struct {
	model.NotableRejection
}

func (n notableItem) FilterValue() string { return n.Sender }
func (n notableItem) Title() string       { return n.Sender }
func (n notableItem) Description() string { return n.Snippet }

func notableItems(notable []model.NotableRejection) []list.Item {
	items := make([]list.Item, len(notable))
	for i, n := range notable {
		items[i] = notableItem{n}
	}
	return items
}

// notableListHeight leaves room for the summary, the chart and the footer.
func notableListHeight(total int) int {
	return max(total/2, 8)
}
