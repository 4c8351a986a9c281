// Package ui is the interactive terminal session. All network work flows
// through the dispatch bus: keystrokes submit commands and a polling tick
// drains results, so the interface never stutters on a slow network.
package ui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/roost-social/roost/bus"
	"github.com/roost-social/roost/domain"
	"github.com/roost-social/roost/scheduler"
	"github.com/roost-social/roost/util"
)

type sessionView int

const (
	viewTimeline sessionView = iota
	viewCompose
	viewSchedule
)

// pollTickMsg drives the result drain loop.
type pollTickMsg time.Time

// refreshTickMsg fires the periodic timeline refresh when configured.
type refreshTickMsg time.Time

// scheduleTickMsg fires the due-post scan so queued posts go out while the
// session is open, without a separate daemon.
type scheduleTickMsg time.Time

const pollEvery = 200 * time.Millisecond

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	statusStyle = lipgloss.NewStyle().Faint(true)
	alertStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helpStyle   = lipgloss.NewStyle().Faint(true)
)

// pendingCommand remembers what a token was for so results can be applied
// to the right place.
type pendingCommand struct {
	kind   domain.CommandKind
	target domain.PostRef
	// older marks a cursor-resumed fetch whose posts append instead of
	// replacing the timeline.
	older bool
}

// scheduledFanout accumulates the per-network results of a claimed scheduled
// post dispatched through the bus, so the final status is recorded only once
// every target has answered.
type scheduledFanout struct {
	id      uuid.UUID
	expect  int
	results []domain.Result
}

// MainModel is the root bubbletea model.
type MainModel struct {
	view     sessionView
	timeline timelineModel
	compose  composeModel
	schedule scheduleModel

	dispatch *bus.Bus
	sched    *scheduler.Scheduler
	conf     *util.AppConfig

	pending map[domain.Token]pendingCommand
	fanouts map[domain.Token]*scheduledFanout
	cursors map[domain.Network]string
	status  string
	alert   string

	width  int
	height int
}

func NewMainModel(dispatch *bus.Bus, sched *scheduler.Scheduler, conf *util.AppConfig) MainModel {
	defaults := domain.NetworksFromString(conf.Conf.DefaultNetworks)

	return MainModel{
		view:     viewTimeline,
		timeline: newTimelineModel(),
		compose:  newComposeModel(defaults, conf.Conf.MaxChars),
		schedule: newScheduleModel(),
		dispatch: dispatch,
		sched:    sched,
		conf:     conf,
		pending:  make(map[domain.Token]pendingCommand),
		fanouts:  make(map[domain.Token]*scheduledFanout),
	}
}

// Run starts the interactive session and blocks until it exits.
func Run(dispatch *bus.Bus, sched *scheduler.Scheduler, conf *util.AppConfig) error {
	p := tea.NewProgram(NewMainModel(dispatch, sched, conf), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m MainModel) Init() tea.Cmd {
	cmds := []tea.Cmd{m.fetchTimeline(), pollTick()}
	if m.conf.Conf.RefreshSec > 0 {
		cmds = append(cmds, refreshTick(m.conf.Conf.RefreshSec))
	}
	if m.conf.Conf.PollIntervalSec > 0 {
		cmds = append(cmds, scheduleTick(m.conf.Conf.PollIntervalSec))
	}
	return tea.Batch(cmds...)
}

func pollTick() tea.Cmd {
	return tea.Tick(pollEvery, func(t time.Time) tea.Msg { return pollTickMsg(t) })
}

func refreshTick(sec int) tea.Cmd {
	return tea.Tick(time.Duration(sec)*time.Second, func(t time.Time) tea.Msg { return refreshTickMsg(t) })
}

func scheduleTick(sec int) tea.Cmd {
	return tea.Tick(time.Duration(sec)*time.Second, func(t time.Time) tea.Msg { return scheduleTickMsg(t) })
}

// fetchTimeline submits a timeline command; results arrive via the poll tick.
func (m *MainModel) fetchTimeline() tea.Cmd {
	m.timeline.loading = true

	token, err := m.dispatch.Submit(domain.Command{
		Kind:  domain.CmdFetchTimeline,
		Limit: m.conf.Conf.TimelineLimit,
	})
	if err != nil {
		m.alert = err.Error()
		return nil
	}

	m.pending[token] = pendingCommand{kind: domain.CmdFetchTimeline}
	return nil
}

// fetchOlder resumes paging from the last result's cursors and appends.
func (m *MainModel) fetchOlder() {
	if len(m.cursors) == 0 {
		m.status = "end of timeline"
		return
	}

	token, err := m.dispatch.Submit(domain.Command{
		Kind:    domain.CmdFetchTimeline,
		Limit:   m.conf.Conf.TimelineLimit,
		Cursors: m.cursors,
	})
	if err != nil {
		m.alert = err.Error()
		return
	}

	m.pending[token] = pendingCommand{kind: domain.CmdFetchTimeline, older: true}
}

// dispatchDue claims every due scheduled post and sends each one through the
// bus as a fan-out post command. The per-network results come back via the
// poll tick and are recorded once the fan-out is complete.
func (m *MainModel) dispatchDue() {
	due, err := m.sched.ClaimDue()
	if err != nil {
		m.alert = err.Error()
		return
	}

	for i := range due {
		p := &due[i]

		token, err := m.dispatch.Submit(domain.Command{
			Kind:           domain.CmdPost,
			Targets:        p.Networks,
			Body:           p.Body,
			ContentWarning: p.ContentWarning,
			Visibility:     domain.VisibilityPublic,
			Media:          p.Media,
		})
		if err != nil {
			// The post is claimed; settle it as failed so it can be
			// resubmitted instead of sitting in posting forever.
			var results []domain.Result
			for _, n := range p.Networks {
				results = append(results, domain.Result{
					Kind:    domain.ResFailure,
					Network: n,
					Failure: domain.WrapFailure(domain.FailInternal, err, "dispatching scheduled post"),
				})
			}
			if recErr := m.sched.RecordResults(p.Id, results); recErr != nil {
				m.alert = recErr.Error()
			}
			continue
		}

		m.fanouts[token] = &scheduledFanout{id: p.Id, expect: len(p.Networks)}
		m.status = "sending scheduled post..."
	}
}

func (m *MainModel) submit(cmd domain.Command) {
	token, err := m.dispatch.Submit(cmd)
	if err != nil {
		m.alert = err.Error()
		return
	}
	m.pending[token] = pendingCommand{kind: cmd.Kind, target: cmd.Target}
}

func (m MainModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.timeline.width = msg.Width
		m.timeline.height = msg.Height - 3
		m.compose.body.SetWidth(msg.Width - 8)
		return m, nil

	case pollTickMsg:
		m.drainResults()
		return m, pollTick()

	case refreshTickMsg:
		if m.view == viewTimeline {
			m.fetchTimeline()
		}
		return m, refreshTick(m.conf.Conf.RefreshSec)

	case scheduleTickMsg:
		m.dispatchDue()
		return m, scheduleTick(m.conf.Conf.PollIntervalSec)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

// drainResults applies every result accumulated since the last tick.
func (m *MainModel) drainResults() {
	for _, r := range m.dispatch.PollResults() {
		if f, ok := m.fanouts[r.Token]; ok {
			m.applyFanout(f, r)
			continue
		}

		p, known := m.pending[r.Token]
		if known {
			delete(m.pending, r.Token)
		}

		switch {
		case r.Kind == domain.ResTimeline:
			if known && p.older {
				m.timeline.appendPosts(r.Posts)
			} else {
				m.timeline.setPosts(r.Posts)
			}
			m.cursors = r.Cursors
			m.status = fmt.Sprintf("%d posts", len(m.timeline.posts))

		case r.Kind == domain.ResPosted:
			m.status = fmt.Sprintf("posted to %s", r.Network.Name())

		case r.Kind == domain.ResAck && known:
			m.timeline.applyAck(p.kind, p.target)
			m.status = "done"

		case r.Kind == domain.ResFailure:
			if r.Failure != nil {
				m.alert = r.Failure.Error()
			} else {
				m.alert = "command failed"
			}
			m.timeline.loading = false
		}
	}
}

// applyFanout folds one per-network result into its scheduled fan-out and
// records the final schedule status once every network has answered.
func (m *MainModel) applyFanout(f *scheduledFanout, r domain.Result) {
	f.results = append(f.results, r)
	if len(f.results) < f.expect {
		return
	}

	delete(m.fanouts, r.Token)

	if err := m.sched.RecordResults(f.id, f.results); err != nil {
		m.alert = err.Error()
		return
	}

	failed := 0
	for i := range f.results {
		if !f.results[i].Ok() {
			failed++
		}
	}
	switch failed {
	case 0:
		m.status = "scheduled post sent"
	case f.expect:
		m.alert = "scheduled post failed"
	default:
		m.alert = "scheduled post partially failed"
	}
}

func (m MainModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Global bindings first.
	switch msg.String() {
	case "ctrl+c":
		m.dispatch.Close()
		return m, tea.Quit
	}

	switch m.view {
	case viewCompose:
		return m.handleComposeKey(msg)
	case viewSchedule:
		return m.handleScheduleKey(msg)
	default:
		return m.handleTimelineKey(msg)
	}
}

func (m MainModel) handleTimelineKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		m.dispatch.Close()
		return m, tea.Quit
	case "j", "down":
		m.timeline.moveCursor(1)
	case "k", "up":
		m.timeline.moveCursor(-1)
	case "r":
		m.fetchTimeline()
	case "m":
		m.fetchOlder()
	case "c":
		m.compose.reset()
		m.view = viewCompose
	case "s":
		m.loadSchedule()
		m.view = viewSchedule
	case "a":
		m.compose.reset()
		m.compose.ReplyTo = m.timeline.selected()
		if m.compose.ReplyTo != nil {
			m.view = viewCompose
		}
	case "l":
		if p := m.timeline.selected(); p != nil {
			kind := domain.CmdLike
			if p.Liked {
				kind = domain.CmdUnlike
			}
			m.submit(domain.Command{Kind: kind, Target: p.Ref()})
		}
	case "b":
		if p := m.timeline.selected(); p != nil {
			kind := domain.CmdBoost
			if p.Boosted {
				kind = domain.CmdUnboost
			}
			m.submit(domain.Command{Kind: kind, Target: p.Ref()})
		}
	}

	return m, nil
}

func (m MainModel) handleComposeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.view = viewTimeline
		return m, nil
	case "tab":
		m.compose.cycleFocus()
		return m, nil
	case "ctrl+t":
		if m.compose.ReplyTo == nil {
			// Toggle cycles: both -> mastodon -> bluesky -> both.
			m.cycleTargets()
		}
		return m, nil
	case "ctrl+s":
		return m.submitCompose()
	}

	cmd := m.compose.Update(msg)
	return m, cmd
}

func (m *MainModel) cycleTargets() {
	masto := m.compose.targets[domain.NetworkMastodon]
	bsky := m.compose.targets[domain.NetworkBluesky]

	switch {
	case masto && bsky:
		m.compose.targets[domain.NetworkBluesky] = false
	case masto:
		m.compose.targets[domain.NetworkMastodon] = false
		m.compose.targets[domain.NetworkBluesky] = true
	default:
		m.compose.targets[domain.NetworkMastodon] = true
		m.compose.targets[domain.NetworkBluesky] = true
	}
}

func (m MainModel) submitCompose() (tea.Model, tea.Cmd) {
	body := m.compose.body.Value()
	if body == "" {
		m.alert = "nothing to post"
		return m, nil
	}

	// Replies go to the original post's network only.
	if target := m.compose.ReplyTo; target != nil {
		m.submit(domain.Command{
			Kind:           domain.CmdReply,
			Body:           body,
			ContentWarning: m.compose.cw.Value(),
			Visibility:     domain.VisibilityPublic,
			Target:         target.Ref(),
		})
		m.compose.reset()
		m.view = viewTimeline
		m.status = "replying..."
		return m, nil
	}

	networks := m.compose.networks()
	if len(networks) == 0 {
		m.alert = "no networks selected"
		return m, nil
	}

	// A schedule expression queues the post instead of sending it.
	if when := m.compose.schedule.Value(); when != "" {
		post, err := m.sched.Schedule(body, m.compose.cw.Value(), networks, when)
		if err != nil {
			m.alert = err.Error()
			return m, nil
		}
		m.compose.reset()
		m.view = viewTimeline
		m.status = "scheduled for " + scheduler.FormatWhen(post.ScheduledFor)
		return m, nil
	}

	m.submit(domain.Command{
		Kind:           domain.CmdPost,
		Targets:        networks,
		Body:           body,
		ContentWarning: m.compose.cw.Value(),
		Visibility:     domain.VisibilityPublic,
	})
	m.compose.reset()
	m.view = viewTimeline
	m.status = "posting..."
	return m, nil
}

func (m *MainModel) loadSchedule() {
	posts, err := m.sched.List()
	if err != nil {
		m.alert = err.Error()
		return
	}
	m.schedule.setPosts(posts)
}

func (m MainModel) handleScheduleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "s":
		m.view = viewTimeline
	case "j", "down":
		m.schedule.moveCursor(1)
	case "k", "up":
		m.schedule.moveCursor(-1)
	case "x":
		if p := m.schedule.selected(); p != nil {
			if err := m.sched.Cancel(p.Id); err != nil {
				m.alert = err.Error()
			} else {
				m.status = "cancelled"
			}
			m.loadSchedule()
		}
	case "r":
		m.loadSchedule()
	}

	return m, nil
}

func (m MainModel) View() string {
	header := titleStyle.Render(" roost ")

	var body string
	var help string
	switch m.view {
	case viewCompose:
		body = m.compose.View()
		help = ""
	case viewSchedule:
		body = m.schedule.View()
		help = ""
	default:
		body = m.timeline.View()
		help = helpStyle.Render("j/k: move · r: refresh · m: older · l: like · b: boost · a: reply · c: compose · s: schedule · q: quit")
	}

	footer := ""
	if m.alert != "" {
		footer = alertStyle.Render(m.alert)
	} else if m.status != "" {
		footer = statusStyle.Render(m.status)
	}

	out := header + "\n" + body
	if help != "" {
		out += "\n" + help
	}
	if footer != "" {
		out += "\n" + footer
	}

	return out
}
