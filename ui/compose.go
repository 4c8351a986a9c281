package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/roost-social/roost/domain"
)

// composeFocus tracks which input owns keystrokes inside the compose view.
type composeFocus int

const (
	focusBody composeFocus = iota
	focusCW
	focusSchedule
)

var (
	labelStyle  = lipgloss.NewStyle().Faint(true)
	onStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	offStyle    = lipgloss.NewStyle().Faint(true).Strikethrough(true)
	limitStyle  = lipgloss.NewStyle().Faint(true)
	overStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	borderStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// composeModel is the post editor: body, optional content warning, network
// toggles and an optional schedule expression. ReplyTo, when set, turns the
// submission into a reply on one network.
type composeModel struct {
	body     textarea.Model
	cw       textinput.Model
	schedule textinput.Model
	focus    composeFocus

	targets  map[domain.Network]bool
	maxChars int

	ReplyTo *domain.Post
}

func newComposeModel(defaults []domain.Network, maxChars int) composeModel {
	body := textarea.New()
	body.Placeholder = "What's happening?"
	body.CharLimit = maxChars
	body.SetHeight(6)
	body.Focus()

	cw := textinput.New()
	cw.Placeholder = "content warning (optional)"
	cw.CharLimit = 200

	schedule := textinput.New()
	schedule.Placeholder = "schedule, e.g. 'in 2 hours' or '15:00' (optional)"

	targets := make(map[domain.Network]bool)
	for _, n := range defaults {
		targets[n] = true
	}

	return composeModel{
		body:     body,
		cw:       cw,
		schedule: schedule,
		targets:  targets,
		maxChars: maxChars,
	}
}

func (m *composeModel) reset() {
	m.body.Reset()
	m.cw.Reset()
	m.schedule.Reset()
	m.ReplyTo = nil
	m.setFocus(focusBody)
}

func (m *composeModel) setFocus(f composeFocus) {
	m.focus = f
	m.body.Blur()
	m.cw.Blur()
	m.schedule.Blur()

	switch f {
	case focusBody:
		m.body.Focus()
	case focusCW:
		m.cw.Focus()
	case focusSchedule:
		m.schedule.Focus()
	}
}

func (m *composeModel) cycleFocus() {
	m.setFocus((m.focus + 1) % 3)
}

// networks returns the enabled targets in canonical order.
func (m *composeModel) networks() []domain.Network {
	var out []domain.Network
	for _, n := range domain.AllNetworks() {
		if m.targets[n] {
			out = append(out, n)
		}
	}
	return out
}

func (m *composeModel) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch m.focus {
	case focusBody:
		m.body, cmd = m.body.Update(msg)
	case focusCW:
		m.cw, cmd = m.cw.Update(msg)
	case focusSchedule:
		m.schedule, cmd = m.schedule.Update(msg)
	}
	return cmd
}

func (m *composeModel) View() string {
	var b strings.Builder

	if m.ReplyTo != nil {
		b.WriteString(labelStyle.Render(fmt.Sprintf("replying to @%s on %s",
			m.ReplyTo.AuthorHandle, m.ReplyTo.Network.Name())))
		b.WriteString("\n")
	} else {
		var badges []string
		for _, n := range domain.AllNetworks() {
			label := n.Name()
			if m.targets[n] {
				badges = append(badges, onStyle.Render("● "+label))
			} else {
				badges = append(badges, offStyle.Render("○ "+label))
			}
		}
		b.WriteString(strings.Join(badges, "  "))
		b.WriteString(labelStyle.Render("   (ctrl+t toggles networks)"))
		b.WriteString("\n")
	}

	b.WriteString(borderStyle.Render(m.body.View()))
	b.WriteString("\n")

	used := len([]rune(m.body.Value()))
	counter := fmt.Sprintf("%d/%d", used, m.maxChars)
	if used > m.maxChars {
		b.WriteString(overStyle.Render(counter))
	} else {
		b.WriteString(limitStyle.Render(counter))
	}
	b.WriteString("\n\n")

	b.WriteString(labelStyle.Render("cw: "))
	b.WriteString(m.cw.View())
	b.WriteString("\n")

	if m.ReplyTo == nil {
		b.WriteString(labelStyle.Render("at: "))
		b.WriteString(m.schedule.View())
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(labelStyle.Render("tab: next field · ctrl+s: send · esc: back"))

	return b.String()
}
