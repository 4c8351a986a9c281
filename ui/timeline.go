package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/roost-social/roost/domain"
)

var (
	authorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	metaStyle     = lipgloss.NewStyle().Faint(true)
	cwStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	selectedStyle = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("12")).PaddingLeft(1)
	plainStyle = lipgloss.NewStyle().PaddingLeft(2)
)

// timelineModel is the scrolling merged feed with a cursor for engagement
// actions.
type timelineModel struct {
	posts   []domain.Post
	cursor  int
	offset  int
	width   int
	height  int
	loading bool
}

func newTimelineModel() timelineModel {
	return timelineModel{width: 80, height: 24}
}

func (m *timelineModel) setPosts(posts []domain.Post) {
	m.posts = posts
	m.loading = false
	if m.cursor >= len(posts) {
		m.cursor = 0
		m.offset = 0
	}
}

// appendPosts extends the feed with an older page, skipping posts already
// shown so a shared cursor boundary doesn't duplicate entries.
func (m *timelineModel) appendPosts(posts []domain.Post) {
	m.loading = false

	seen := make(map[string]bool, len(m.posts))
	for _, p := range m.posts {
		seen[string(p.Network)+"\x00"+p.NetworkId] = true
	}

	for _, p := range posts {
		if seen[string(p.Network)+"\x00"+p.NetworkId] {
			continue
		}
		m.posts = append(m.posts, p)
	}
}

// applyResult updates the selected post optimistically after an ack.
func (m *timelineModel) applyAck(kind domain.CommandKind, target domain.PostRef) {
	for i := range m.posts {
		p := &m.posts[i]
		if p.NetworkId != target.NetworkId {
			continue
		}
		switch kind {
		case domain.CmdLike:
			p.Liked = true
			p.LikeCount++
		case domain.CmdUnlike:
			p.Liked = false
			if p.LikeCount > 0 {
				p.LikeCount--
			}
		case domain.CmdBoost:
			p.Boosted = true
			p.BoostCount++
		case domain.CmdUnboost:
			p.Boosted = false
			if p.BoostCount > 0 {
				p.BoostCount--
			}
		}
		return
	}
}

func (m *timelineModel) selected() *domain.Post {
	if m.cursor < 0 || m.cursor >= len(m.posts) {
		return nil
	}
	return &m.posts[m.cursor]
}

func (m *timelineModel) moveCursor(delta int) {
	m.cursor += delta
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor >= len(m.posts) {
		m.cursor = len(m.posts) - 1
	}

	// Keep roughly one screenful of posts around the cursor.
	perScreen := m.height / 6
	if perScreen < 1 {
		perScreen = 1
	}
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+perScreen {
		m.offset = m.cursor - perScreen + 1
	}
}

func (m *timelineModel) View() string {
	if m.loading && len(m.posts) == 0 {
		return metaStyle.Render("\n  fetching timelines...")
	}
	if len(m.posts) == 0 {
		return metaStyle.Render("\n  timeline is empty — press r to refresh")
	}

	var b strings.Builder
	lines := 0
	maxLines := m.height - 2

	for i := m.offset; i < len(m.posts) && lines < maxLines; i++ {
		rendered := m.renderPost(i)
		lines += strings.Count(rendered, "\n") + 1
		b.WriteString(rendered)
		b.WriteString("\n")
	}

	return b.String()
}

func (m *timelineModel) renderPost(i int) string {
	p := &m.posts[i]

	badge := networkBadge(p.Network)

	header := fmt.Sprintf("%s %s %s",
		badge,
		authorStyle.Render("@"+p.AuthorHandle),
		metaStyle.Render(p.RelativeTime()))
	if p.IsRepost {
		header += metaStyle.Render(fmt.Sprintf(" ♻ @%s", p.RepostAuthor))
	}

	width := m.width - 6
	if width < 20 {
		width = 20
	}

	body := p.Content
	if p.ContentWarning != "" {
		body = cwStyle.Render("CW: "+p.ContentWarning) + "\n" + body
	}
	body = wordwrap.String(body, width)

	footer := metaStyle.Render(fmt.Sprintf("%s %d  %s %d  ↩ %d",
		likeGlyph(p.Liked), p.LikeCount,
		boostGlyph(p.Boosted), p.BoostCount,
		p.ReplyCount))

	block := header + "\n" + body + "\n" + footer + "\n"

	if i == m.cursor {
		return selectedStyle.Render(block)
	}
	return plainStyle.Render(block)
}

func networkBadge(n domain.Network) string {
	switch n {
	case domain.NetworkMastodon:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("99")).Render("[M]")
	case domain.NetworkBluesky:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Render("[B]")
	default:
		return "[?]"
	}
}

func likeGlyph(liked bool) string {
	if liked {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render("♥")
	}
	return "♡"
}

func boostGlyph(boosted bool) string {
	if boosted {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render("⇄")
	}
	return "⇆"
}
