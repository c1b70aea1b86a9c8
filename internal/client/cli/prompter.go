package cli

import (
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/podesk/internal/client/approval"
	"github.com/dmitrijs2005/podesk/internal/client/models"
	"github.com/jonboulle/clockwork"
)

// prompter shows sign-in requests to an approver. The prompt is non-modal:
// the request is announced once and the REPL prompt carries its countdown
// until approve, reject or later resolves it.
type prompter struct {
	term  *Terminal
	clock clockwork.Clock

	mu      sync.Mutex
	current models.LoginApprovalRequest
	shownAt time.Time
	open    bool
}

var _ approval.Prompter = (*prompter)(nil)

func newPrompter(term *Terminal, clock clockwork.Clock) *prompter {
	return &prompter{term: term, clock: clock}
}

func (p *prompter) Present(req models.LoginApprovalRequest) {
	p.mu.Lock()
	p.current = req
	p.shownAt = p.clock.Now()
	p.open = true
	p.mu.Unlock()

	p.term.Box(
		"Sign-in request",
		fmt.Sprintf("User:    %s", req.User),
		fmt.Sprintf("Device:  %s", req.UserAgent),
		fmt.Sprintf("IP:      %s", req.IP),
		fmt.Sprintf("Expires: %s", approval.FormatExpires(req.ExpiresIn)),
		"Type approve, reject [reason] or later.",
	)
}

func (p *prompter) Dismiss(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current.ID == id {
		p.open = false
	}
}

// Countdown renders the open request's remaining lifetime for the prompt
// line. Empty when nothing is open.
func (p *prompter) Countdown() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return ""
	}
	left := p.current.ExpiresIn - int(p.clock.Since(p.shownAt).Seconds())
	return "request " + approval.FormatExpires(left)
}
