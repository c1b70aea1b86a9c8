// Package ui declares the narrow presentation surfaces the client core
// writes to. The terminal client implements them; tests use Recorder.
package ui

import (
	"sync"

	"github.com/dmitrijs2005/podesk/internal/client/models"
)

// Tone selects the visual variant of a status message.
type Tone int

const (
	ToneInfo Tone = iota
	ToneGood
	ToneWarn
	ToneError
)

// DefaultStatus is shown when nothing else needs the status line.
const DefaultStatus = "Ready"

// StatusSink receives single-line status messages.
type StatusSink interface {
	SetStatus(msg string, tone Tone)
}

// AuthSurface is the sign-in screen. ShowAuth seeds it from the latest
// server status (nil when the status could not be fetched).
type AuthSurface interface {
	ShowAuth(status *models.AuthStatus, message string)
	HideAuth()
}

// Indicator shows how many sign-in requests wait for a decision.
type Indicator interface {
	SetPendingCount(n int)
}

// Message is one recorded status update.
type Message struct {
	Text string
	Tone Tone
}

// Recorder implements every surface in memory. Safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	messages  []Message
	authShown bool
	authMsg   string
	authState *models.AuthStatus
	pending   int
}

func (r *Recorder) SetStatus(msg string, tone Tone) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Text: msg, Tone: tone})
}

func (r *Recorder) ShowAuth(status *models.AuthStatus, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authShown = true
	r.authMsg = message
	r.authState = status
}

func (r *Recorder) HideAuth() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authShown = false
}

func (r *Recorder) SetPendingCount(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = n
}

// Messages returns a copy of every status update so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Last returns the most recent status update.
func (r *Recorder) Last() Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return Message{}
	}
	return r.messages[len(r.messages)-1]
}

// Contains reports whether any status update equals text.
func (r *Recorder) Contains(text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.Text == text {
			return true
		}
	}
	return false
}

// Auth returns whether the auth surface is visible, its message and seed.
func (r *Recorder) Auth() (bool, string, *models.AuthStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.authShown, r.authMsg, r.authState
}

func (r *Recorder) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

// Discard drops all status updates.
type Discard struct{}

func (Discard) SetStatus(string, Tone) {}
