package ui

import (
	"testing"

	"github.com/dmitrijs2005/podesk/internal/client/models"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	assert.Equal(t, Message{}, r.Last())

	r.SetStatus("one", ToneInfo)
	r.SetStatus("two", ToneWarn)
	assert.Equal(t, Message{Text: "two", Tone: ToneWarn}, r.Last())
	assert.True(t, r.Contains("one"))
	assert.Len(t, r.Messages(), 2)

	st := &models.AuthStatus{HasPasskey: true}
	r.ShowAuth(st, "Signed out.")
	shown, msg, seed := r.Auth()
	assert.True(t, shown)
	assert.Equal(t, "Signed out.", msg)
	assert.Same(t, st, seed)

	r.HideAuth()
	shown, _, _ = r.Auth()
	assert.False(t, shown)

	r.SetPendingCount(3)
	assert.Equal(t, 3, r.PendingCount())
}
