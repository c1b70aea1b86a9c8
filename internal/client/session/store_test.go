package session

import (
	"sync"
	"testing"

	"github.com/dmitrijs2005/podesk/internal/client/models"
	"github.com/stretchr/testify/assert"
)

func TestStore_AuthenticateAndClear(t *testing.T) {
	s := NewStore()
	assert.False(t, s.IsAuthenticated())
	g0 := s.Generation()

	s.Authenticate("admin", true)
	assert.Equal(t, Session{Authenticated: true, User: "admin", CanApproveLoginRequests: true}, s.Snapshot())
	assert.True(t, s.CanApprove())
	g1 := s.Generation()
	assert.NotEqual(t, g0, g1)

	s.SetCanApprove(false)
	assert.False(t, s.CanApprove())
	assert.True(t, s.IsAuthenticated())

	s.Clear()
	assert.Equal(t, Session{}, s.Snapshot())
	assert.NotEqual(t, g1, s.Generation())
}

func TestStore_ApplyStatusNeverAuthenticates(t *testing.T) {
	s := NewStore()
	s.ApplyStatus(&models.AuthStatus{Authenticated: true, User: "admin", HasPasskey: true})

	assert.False(t, s.IsAuthenticated())
	assert.True(t, s.HasPasskey())
	assert.False(t, s.CodeLoginEnabled())
}

func TestStore_ApplyStatusClearsExpiredSession(t *testing.T) {
	s := NewStore()
	s.Authenticate("admin", true)

	s.ApplyStatus(&models.AuthStatus{Authenticated: false, CodeLogin: models.CodeLoginStatus{Enabled: true}})

	assert.False(t, s.IsAuthenticated())
	assert.False(t, s.CanApprove())
	assert.True(t, s.CodeLoginEnabled())
	st, ok := s.Status()
	assert.True(t, ok)
	assert.True(t, st.CodeLogin.Enabled)
}

func TestStore_UnknownStatus(t *testing.T) {
	s := NewStore()
	_, ok := s.Status()
	assert.False(t, ok)
	assert.False(t, s.HasPasskey())

	s.MarkPasskeyRegistered()
	assert.True(t, s.HasPasskey())
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); s.Authenticate("admin", i%2 == 0) }()
		go func() { defer wg.Done(); _ = s.Snapshot(); _ = s.CanApprove() }()
	}
	wg.Wait()
	assert.True(t, s.IsAuthenticated())
}
