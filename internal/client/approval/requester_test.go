package approval

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/podesk/internal/client/client"
	"github.com/dmitrijs2005/podesk/internal/client/models"
	"github.com/dmitrijs2005/podesk/internal/client/ui"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type waitResult struct {
	res *models.PendingResult
	err error
}

func intPtr(v int) *int { return &v }

// runWait starts Wait and keeps advancing the fake clock until it returns.
func runWait(t *testing.T, r *Requester, clock *clockwork.FakeClock, expiresIn int) waitResult {
	t.Helper()
	done := make(chan waitResult, 1)
	go func() {
		res, err := r.Wait(context.Background(), expiresIn)
		done <- waitResult{res, err}
	}()

	var out waitResult
	require.Eventually(t, func() bool {
		select {
		case out = <-done:
			return true
		default:
			clock.Advance(250 * time.Millisecond)
			return false
		}
	}, 5*time.Second, time.Millisecond)
	return out
}

func newRequester(api *fakeClient) (*Requester, *clockwork.FakeClock, *ui.Recorder) {
	clock := clockwork.NewFakeClock()
	rec := &ui.Recorder{}
	return NewRequester(api, clock, rec, DefaultRequesterConfig(), nil), clock, rec
}

func TestRequester_ApprovedAfterPolls(t *testing.T) {
	yes := true
	api := &fakeClient{PendingRets: []*models.PendingResult{
		{Status: models.PendingStatePending, ExpiresIn: intPtr(118)},
		{Status: models.PendingStatePending, ExpiresIn: intPtr(117)},
		{Status: models.PendingStateApproved, Authenticated: true, User: "admin", CanApproveRequests: &yes},
	}}
	r, clock, rec := newRequester(api)

	out := runWait(t, r, clock, 120)

	require.NoError(t, out.err)
	assert.Equal(t, "admin", out.res.User)
	assert.True(t, out.res.CanApprove())
	assert.Equal(t, 3, api.PendingN)
	assert.Equal(t, StateApproved, r.State())
	assert.Contains(t, rec.Messages()[0].Text, "Waiting for admin approval... 120s")
}

func TestRequester_Rejected(t *testing.T) {
	api := &fakeClient{PendingRets: []*models.PendingResult{
		{Status: models.PendingStateRejected, Error: "Rejected by administrator."},
	}}
	r, clock, _ := newRequester(api)

	out := runWait(t, r, clock, 120)

	var rejected *RejectedError
	require.ErrorAs(t, out.err, &rejected)
	assert.Equal(t, "Rejected by administrator.", rejected.Reason)
	assert.Equal(t, StateRejected, r.State())
}

func TestRequester_NoPendingRequest(t *testing.T) {
	api := &fakeClient{PendingRets: []*models.PendingResult{{Status: models.PendingStateNone}}}
	r, clock, _ := newRequester(api)

	out := runWait(t, r, clock, 120)
	require.ErrorIs(t, out.err, ErrNoPendingRequest)
}

func TestRequester_TimesOut(t *testing.T) {
	api := &fakeClient{PendingRets: []*models.PendingResult{{Status: models.PendingStatePending}}}
	r, clock, rec := newRequester(api)
	started := clock.Now()

	out := runWait(t, r, clock, 15)

	require.ErrorIs(t, out.err, ErrExpired)
	assert.Equal(t, StateExpired, r.State())
	assert.GreaterOrEqual(t, clock.Since(started), 15*time.Second)
	assert.Equal(t, "Waiting for admin approval...", rec.Last().Text)
}

func TestRequester_TransientErrorsRetried(t *testing.T) {
	api := &fakeClient{
		PendingRets: []*models.PendingResult{nil, {Status: models.PendingStateApproved, Authenticated: true, User: "admin"}},
		PendingErrs: []error{fmt.Errorf("%w: connection refused", client.ErrUnavailable), nil},
	}
	r, clock, _ := newRequester(api)

	out := runWait(t, r, clock, 120)
	require.NoError(t, out.err)
	assert.Equal(t, 2, api.PendingN)
}

func TestRequester_HardErrorEnds(t *testing.T) {
	api := &fakeClient{
		PendingRets: []*models.PendingResult{nil},
		PendingErrs: []error{&client.APIError{StatusCode: http.StatusBadRequest, Message: "bad"}},
	}
	r, clock, _ := newRequester(api)

	out := runWait(t, r, clock, 120)
	require.ErrorIs(t, out.err, client.ErrBadRequest)
	assert.Equal(t, StateError, r.State())
}

func TestRequester_Timeout(t *testing.T) {
	r := NewRequester(&fakeClient{}, clockwork.NewFakeClock(), nil, DefaultRequesterConfig(), nil)

	assert.Equal(t, 120*time.Second, r.Timeout(0))
	assert.Equal(t, 10*time.Second, r.Timeout(3))
	assert.Equal(t, 90*time.Second, r.Timeout(90))
}

func TestCountdown_NeverExceedsDeadline(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &ui.Recorder{}
	cd := newCountdown(clock, rec, clock.Now().Add(120*time.Second), 120)

	cd.tick()
	assert.Equal(t, "Waiting for admin approval... 119s", rec.Last().Text)

	cd.resync(110, 3)
	assert.Equal(t, 110, cd.remaining())

	cd.resync(108, 3)
	assert.Equal(t, 110, cd.remaining(), "small drift must not move the display")

	cd.resync(200, 3)
	clock.Advance(115 * time.Second)
	assert.Equal(t, 5, cd.remaining())

	clock.Advance(10 * time.Second)
	assert.Equal(t, 0, cd.remaining())
}

// pacedClient answers the pending poll after latency of fake time and
// records when each poll started.
type pacedClient struct {
	client.Client

	clock   *clockwork.FakeClock
	latency time.Duration

	mu     sync.Mutex
	starts []time.Time
}

func (c *pacedClient) PendingLogin(ctx context.Context) (*models.PendingResult, error) {
	c.mu.Lock()
	c.starts = append(c.starts, c.clock.Now())
	n := len(c.starts)
	c.mu.Unlock()

	if c.latency > 0 {
		c.clock.Advance(c.latency)
	}
	if n == 1 {
		return &models.PendingResult{Status: models.PendingStatePending, ExpiresIn: intPtr(119)}, nil
	}
	return &models.PendingResult{Status: models.PendingStateApproved, Authenticated: true, User: "admin"}, nil
}

func (c *pacedClient) polls() []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Time(nil), c.starts...)
}

func TestRequester_PollCadence(t *testing.T) {
	tests := []struct {
		name    string
		latency time.Duration
		gap     time.Duration
	}{
		{"fast response waits out the cadence", 0, time.Second},
		{"slow response still waits the floor", 900 * time.Millisecond, 900*time.Millisecond + 180*time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := clockwork.NewFakeClock()
			api := &pacedClient{clock: clock, latency: tt.latency}
			r := NewRequester(api, clock, nil, DefaultRequesterConfig(), nil)

			done := make(chan error, 1)
			go func() {
				_, err := r.Wait(context.Background(), 120)
				done <- err
			}()

			require.Eventually(t, func() bool { return len(api.polls()) == 1 }, 2*time.Second, time.Millisecond)
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			// The countdown ticker and the pause before the next poll.
			require.NoError(t, clock.BlockUntilContext(ctx, 2))

			clock.Advance(tt.gap - tt.latency - time.Millisecond)
			assert.Len(t, api.polls(), 1, "next poll came too early")

			clock.Advance(time.Millisecond)
			require.Eventually(t, func() bool { return len(api.polls()) == 2 }, 2*time.Second, time.Millisecond)

			starts := api.polls()
			assert.Equal(t, tt.gap, starts[1].Sub(starts[0]))

			select {
			case err := <-done:
				require.NoError(t, err)
			case <-time.After(2 * time.Second):
				t.Fatal("Wait did not return")
			}
		})
	}
}
