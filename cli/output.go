package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"

	"github.com/roost-social/roost/domain"
)

var (
	handleStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

func init() {
	// Piped output gets plain text.
	if termenv.EnvColorProfile() == termenv.Ascii {
		handleStyle = lipgloss.NewStyle()
		dimStyle = lipgloss.NewStyle()
		errStyle = lipgloss.NewStyle()
		okStyle = lipgloss.NewStyle()
	}
}

// Output renders command results as human text or JSON lines.
type Output struct {
	w        io.Writer
	jsonMode bool
}

func NewOutput(jsonMode bool) *Output {
	return &Output{w: os.Stdout, jsonMode: jsonMode}
}

func NewOutputTo(w io.Writer, jsonMode bool) *Output {
	return &Output{w: w, jsonMode: jsonMode}
}

func (o *Output) emitJSON(v any) {
	buf, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintf(o.w, `{"error": %q}`+"\n", err.Error())
		return
	}
	fmt.Fprintln(o.w, string(buf))
}

func (o *Output) Error(err error) {
	if o.jsonMode {
		o.emitJSON(map[string]any{
			"ok":    false,
			"kind":  string(domain.KindOf(err)),
			"error": err.Error(),
		})
		return
	}
	fmt.Fprintln(o.w, errStyle.Render("error: ")+err.Error())
}

func (o *Output) Posted(network domain.Network, post *domain.Post) {
	if o.jsonMode {
		o.emitJSON(map[string]any{
			"ok":      true,
			"network": string(network),
			"id":      post.NetworkId,
			"url":     post.URL,
		})
		return
	}
	fmt.Fprintf(o.w, "%s posted to %s: %s\n", okStyle.Render("ok"), network.Name(), post.URL)
}

func (o *Output) PostFailed(network domain.Network, err error) {
	if o.jsonMode {
		o.emitJSON(map[string]any{
			"ok":        false,
			"network":   string(network),
			"kind":      string(domain.KindOf(err)),
			"retriable": domain.Retriable(err),
			"error":     err.Error(),
		})
		return
	}
	line := fmt.Sprintf("%s %s: %v", errStyle.Render("failed"), network.Name(), err)
	if domain.Retriable(err) {
		line += dimStyle.Render("  (transient; retry may succeed)")
	}
	fmt.Fprintln(o.w, line)
}

func (o *Output) Posts(posts []domain.Post) {
	if o.jsonMode {
		for i := range posts {
			p := &posts[i]
			o.emitJSON(map[string]any{
				"network": string(p.Network),
				"id":      p.NetworkId,
				"author":  p.AuthorHandle,
				"content": p.Content,
				"created": p.CreatedAt.Format(time.RFC3339),
				"url":     p.URL,
			})
		}
		return
	}

	for i := range posts {
		p := &posts[i]
		header := handleStyle.Render("@"+p.AuthorHandle) + dimStyle.Render(
			fmt.Sprintf("  %s · %s", p.Network.Name(), p.RelativeTime()))
		if p.IsRepost {
			header += dimStyle.Render("  (boosted by @"+p.RepostAuthor+")")
		}
		fmt.Fprintln(o.w, header)
		if p.ContentWarning != "" {
			fmt.Fprintln(o.w, dimStyle.Render("CW: "+p.ContentWarning))
		}
		fmt.Fprintln(o.w, p.Content)
		fmt.Fprintln(o.w)
	}
}

func (o *Output) Accounts(accounts []domain.Account) {
	if o.jsonMode {
		for i := range accounts {
			a := &accounts[i]
			o.emitJSON(map[string]any{
				"id":      a.Id.String(),
				"network": string(a.Network),
				"handle":  a.Handle,
				"server":  a.Server,
				"default": a.IsDefault,
			})
		}
		return
	}

	if len(accounts) == 0 {
		fmt.Fprintln(o.w, "No accounts. Run 'roost auth mastodon' or 'roost auth bluesky' to sign in.")
		return
	}

	for i := range accounts {
		a := &accounts[i]
		marker := "  "
		if a.IsDefault {
			marker = okStyle.Render("* ")
		}
		fmt.Fprintf(o.w, "%s%s  %s\n", marker, a.Id.String()[:8], a.ToString())
	}
}

func (o *Output) Scheduled(posts []domain.ScheduledPost) {
	if o.jsonMode {
		for i := range posts {
			p := &posts[i]
			o.emitJSON(map[string]any{
				"id":        p.Id.String(),
				"body":      p.Body,
				"networks":  domain.NetworksToString(p.Networks),
				"when":      p.ScheduledFor.Format(time.RFC3339),
				"status":    string(p.Status),
				"attempts":  p.Attempts,
				"lastError": p.LastError,
			})
		}
		return
	}

	if len(posts) == 0 {
		fmt.Fprintln(o.w, "Nothing scheduled.")
		return
	}

	now := time.Now()
	for i := range posts {
		p := &posts[i]
		body := runewidth.Truncate(p.Body, 50, "...")

		line := fmt.Sprintf("%s  %-17s %-12s %s",
			p.Id.String()[:8], p.ScheduledFor.Local().Format("2006-01-02 15:04"),
			string(p.Status), body)
		fmt.Fprintln(o.w, line)

		if p.Status == domain.StatusPending {
			fmt.Fprintln(o.w, dimStyle.Render("          fires in "+p.TimeUntil(now)))
		}
		if p.LastError != "" {
			fmt.Fprintln(o.w, errStyle.Render("          "+p.LastError))
		}
	}
}

func (o *Output) Info(format string, args ...any) {
	if o.jsonMode {
		o.emitJSON(map[string]any{"ok": true, "message": fmt.Sprintf(format, args...)})
		return
	}
	fmt.Fprintf(o.w, format+"\n", args...)
}
