package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/roost-social/roost/domain"
)

var (
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	sentStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	scheduleTitle = lipgloss.NewStyle().Bold(true).Underline(true)
)

// scheduleModel lists the queue and lets the user cancel pending entries.
type scheduleModel struct {
	posts  []domain.ScheduledPost
	cursor int
	status string
}

func newScheduleModel() scheduleModel {
	return scheduleModel{}
}

func (m *scheduleModel) setPosts(posts []domain.ScheduledPost) {
	m.posts = posts
	if m.cursor >= len(posts) {
		m.cursor = 0
	}
}

func (m *scheduleModel) selected() *domain.ScheduledPost {
	if m.cursor < 0 || m.cursor >= len(m.posts) {
		return nil
	}
	return &m.posts[m.cursor]
}

func (m *scheduleModel) moveCursor(delta int) {
	m.cursor += delta
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor >= len(m.posts) {
		m.cursor = len(m.posts) - 1
	}
}

func (m *scheduleModel) View() string {
	var b strings.Builder

	b.WriteString(scheduleTitle.Render("Scheduled posts"))
	b.WriteString("\n\n")

	if len(m.posts) == 0 {
		b.WriteString(metaStyle.Render("nothing scheduled — compose with an 'at:' time to queue a post"))
		b.WriteString("\n")
		return b.String()
	}

	now := time.Now()
	for i := range m.posts {
		p := &m.posts[i]

		marker := "  "
		if i == m.cursor {
			marker = "> "
		}

		body := runewidth.Truncate(p.Body, 40, "...")

		line := fmt.Sprintf("%s%s  %s  %s",
			marker,
			p.ScheduledFor.Local().Format("Jan 02 15:04"),
			renderStatus(p.Status),
			body)
		b.WriteString(line)
		b.WriteString("\n")

		if i == m.cursor {
			detail := fmt.Sprintf("    → %s · attempts %d", domain.NetworksToString(p.Networks), p.Attempts)
			if p.Status == domain.StatusPending {
				detail += " · fires in " + p.TimeUntil(now)
			}
			b.WriteString(metaStyle.Render(detail))
			b.WriteString("\n")
			if p.LastError != "" {
				b.WriteString(failedStyle.Render("    " + p.LastError))
				b.WriteString("\n")
			}
		}
	}

	b.WriteString("\n")
	b.WriteString(metaStyle.Render("x: cancel pending · esc: back"))
	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(pendingStyle.Render(m.status))
	}

	return b.String()
}

func renderStatus(s domain.ScheduleStatus) string {
	label := fmt.Sprintf("%-16s", string(s))
	switch s {
	case domain.StatusPending, domain.StatusPosting:
		return pendingStyle.Render(label)
	case domain.StatusSent:
		return sentStyle.Render(label)
	case domain.StatusFailed, domain.StatusPartiallyFailed:
		return failedStyle.Render(label)
	default:
		return metaStyle.Render(label)
	}
}
