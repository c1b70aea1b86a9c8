package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/dmitrijs2005/podesk/internal/client/models"
	"github.com/dmitrijs2005/podesk/internal/client/ui"
)

type theme struct {
	Info   lipgloss.Style
	Good   lipgloss.Style
	Warn   lipgloss.Style
	Error  lipgloss.Style
	Muted  lipgloss.Style
	Prompt lipgloss.Style
	Box    lipgloss.Style
}

func newTheme() theme {
	accent := lipgloss.Color("#00AFFF")
	secondary := lipgloss.Color("#7D7D7D")
	success := lipgloss.Color("#00D75F")
	alert := lipgloss.Color("#FFBF00")
	danger := lipgloss.Color("#FF0055")

	return theme{
		Info:   lipgloss.NewStyle(),
		Good:   lipgloss.NewStyle().Foreground(success),
		Warn:   lipgloss.NewStyle().Foreground(alert),
		Error:  lipgloss.NewStyle().Foreground(danger).Bold(true),
		Muted:  lipgloss.NewStyle().Foreground(secondary),
		Prompt: lipgloss.NewStyle().Foreground(accent).Bold(true),
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(alert).
			Padding(0, 1),
	}
}

func (t theme) tone(tone ui.Tone) lipgloss.Style {
	switch tone {
	case ui.ToneGood:
		return t.Good
	case ui.ToneWarn:
		return t.Warn
	case ui.ToneError:
		return t.Error
	}
	return t.Info
}

// Terminal implements the status line, the sign-in surface and the pending
// request indicator on a plain writer. Output from background pollers and
// the REPL is serialized.
type Terminal struct {
	mu    sync.Mutex
	out   io.Writer
	theme theme

	status    string
	authShown bool
	pending   int
}

var (
	_ ui.StatusSink  = (*Terminal)(nil)
	_ ui.AuthSurface = (*Terminal)(nil)
	_ ui.Indicator   = (*Terminal)(nil)
)

func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out, theme: newTheme(), status: ui.DefaultStatus}
}

func (t *Terminal) SetStatus(msg string, tone ui.Tone) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = msg
	fmt.Fprintln(t.out, t.theme.tone(tone).Render(msg))
}

func (t *Terminal) ShowAuth(status *models.AuthStatus, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.authShown = true
	if message != "" {
		fmt.Fprintln(t.out, t.theme.Warn.Render(message))
	}
	for _, line := range signInHints(status) {
		fmt.Fprintln(t.out, t.theme.Muted.Render(line))
	}
}

func (t *Terminal) HideAuth() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.authShown = false
}

func (t *Terminal) SetPendingCount(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = n
}

// Println writes a plain line.
func (t *Terminal) Println(a ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, a...)
}

// Errorln writes a line in the error style.
func (t *Terminal) Errorln(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, t.theme.Error.Render(msg))
}

// Box writes lines framed, used for the approval prompt.
func (t *Terminal) Box(lines ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, t.theme.Box.Render(strings.Join(lines, "\n")))
}

// Prompt renders the REPL prompt. extra is appended when non-empty.
func (t *Terminal) Prompt(user, extra string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var parts []string
	if user != "" {
		parts = append(parts, user)
	}
	if t.pending > 0 {
		parts = append(parts, fmt.Sprintf("%d pending", t.pending))
	}
	if extra != "" {
		parts = append(parts, extra)
	}
	p := "po"
	if len(parts) > 0 {
		p += " (" + strings.Join(parts, ", ") + ")"
	}
	return t.theme.Prompt.Render(p+" >") + " "
}

func (t *Terminal) AuthShown() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.authShown
}

func (t *Terminal) Status() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// signInHints tells the user which sign-in commands apply.
func signInHints(st *models.AuthStatus) []string {
	if st == nil {
		return []string{"Server status is unknown. Try 'status' to retry."}
	}
	var hints []string
	if !st.HasPasskey {
		if st.FirstAdminSetupReady {
			hints = append(hints, "No passkey is registered yet. Use 'register' with the first admin setup code.")
		} else {
			hints = append(hints, "No passkey is registered and first admin setup is disabled on the server.")
		}
	} else {
		hints = append(hints, "Use 'login' to sign in with a passkey.")
	}
	if st.CodeLogin.Enabled {
		hints = append(hints, "Use 'code' to sign in with the access code.")
	}
	return hints
}
