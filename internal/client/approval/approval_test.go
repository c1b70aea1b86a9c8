package approval

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/podesk/internal/client/client"
	"github.com/dmitrijs2005/podesk/internal/client/models"
)

// ---- fakes shared by requester and approver tests ----

type fakeClient struct {
	client.Client

	mu sync.Mutex

	PendingRets []*models.PendingResult
	PendingErrs []error
	PendingN    int

	ListRet []models.LoginApprovalRequest
	ListErr error
	ListN   int
	// ListHook runs once, after the list is taken and before it is
	// returned, to model work done while a fetch is in flight.
	ListHook func()

	DecideErr      error
	LastDecideID   string
	LastDecision   models.Decision
	LastDecideNote string
}

func (f *fakeClient) PendingLogin(ctx context.Context) (*models.PendingResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.PendingN
	f.PendingN++
	if i >= len(f.PendingRets) {
		i = len(f.PendingRets) - 1
	}
	var err error
	if i < len(f.PendingErrs) {
		err = f.PendingErrs[i]
	}
	return f.PendingRets[i], err
}

func (f *fakeClient) ListLoginRequests(ctx context.Context) ([]models.LoginApprovalRequest, error) {
	f.mu.Lock()
	f.ListN++
	list, err := append([]models.LoginApprovalRequest(nil), f.ListRet...), f.ListErr
	hook := f.ListHook
	f.ListHook = nil
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return list, err
}

func (f *fakeClient) DecideLoginRequest(ctx context.Context, id string, decision models.Decision, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LastDecideID = id
	f.LastDecision = decision
	f.LastDecideNote = reason
	return f.DecideErr
}

func (f *fakeClient) setList(list []models.LoginApprovalRequest, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListRet = list
	f.ListErr = err
}

func (f *fakeClient) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ListN
}

type fakePrompter struct {
	mu        sync.Mutex
	presented []string
	dismissed []string
	shown     string
}

func (p *fakePrompter) Present(req models.LoginApprovalRequest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.presented = append(p.presented, req.ID)
	p.shown = req.ID
}

func (p *fakePrompter) Dismiss(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dismissed = append(p.dismissed, id)
	if p.shown == id {
		p.shown = ""
	}
}

func (p *fakePrompter) Shown() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shown
}

func (p *fakePrompter) Presented() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.presented...)
}
