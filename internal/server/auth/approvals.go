package auth

import (
	"context"
	"sort"
	"strings"
)

// RequestView is one row of GET /auth/login/requests.
type RequestView struct {
	ID        string `json:"id"`
	User      string `json:"user"`
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
	CreatedAt string `json:"created_at"`
	ExpiresAt string `json:"expires_at"`
	ExpiresIn int    `json:"expires_in"`
}

// DecisionResult is the body returned by approve and reject.
type DecisionResult struct {
	OK        bool   `json:"ok"`
	Status    string `json:"status"`
	RequestID string `json:"request_id"`
}

// ListRequests returns pending requests newest first. Only the approver
// session may list them.
func (s *Service) ListRequests(ctx context.Context, sid string) ([]RequestView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireApprover(sid); err != nil {
		return nil, err
	}

	pending := make([]*LoginRequest, 0)
	for _, req := range s.requests {
		if req.Status == StatusPending {
			pending = append(pending, req)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].CreatedAt.After(pending[j].CreatedAt)
		}
		return pending[i].ID < pending[j].ID
	})

	rows := make([]RequestView, 0, len(pending))
	for _, req := range pending {
		rows = append(rows, RequestView{
			ID:        req.ID,
			User:      req.User,
			IP:        req.IP,
			UserAgent: req.UserAgent,
			CreatedAt: formatTime(req.CreatedAt),
			ExpiresAt: formatTime(req.ExpiresAt),
			ExpiresIn: s.secondsUntil(req.ExpiresAt),
		})
	}
	return rows, nil
}

// Decide approves or rejects a pending request.
func (s *Service) Decide(ctx context.Context, sid, id string, approve bool, reason string) (*DecisionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireApprover(sid); err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, newError(KindInvalid, "Request id is required")
	}

	if req, ok := s.requests[id]; ok && req.Status == StatusPending && s.secondsUntil(req.ExpiresAt) <= 0 {
		s.decide(id, false, "system", ReasonTimedOut)
	}
	req, ok := s.requests[id]
	if !ok {
		return nil, newError(KindNotFound, msgRequestMissing)
	}
	if req.Status != StatusPending {
		return nil, newError(KindConflict, msgRequestDecided)
	}

	by := s.sessions[sid].User
	if approve {
		s.decide(id, true, by, "")
	} else {
		reason = strings.TrimSpace(reason)
		if reason == "" {
			reason = ReasonRejected
		}
		s.decide(id, false, by, reason)
	}
	s.logger.Info(ctx, "login request decided", "request_id", id, "status", req.Status, "by", by)
	return &DecisionResult{OK: true, Status: req.Status, RequestID: id}, nil
}

func (s *Service) requireApprover(sid string) error {
	sess, ok := s.sessions[sid]
	if !ok || !sess.authenticated() {
		return newError(KindUnauthorized, msgUnauthorized)
	}
	s.touch(sess)
	s.cleanup()
	if !sess.CanApprove {
		return newError(KindForbidden, msgNotAllowed)
	}
	return nil
}

// decide records a verdict on a pending request. Decided requests are left
// untouched.
func (s *Service) decide(id string, approve bool, by, reason string) {
	req, ok := s.requests[id]
	if !ok || req.Status != StatusPending {
		return
	}
	if approve {
		req.Status = StatusApproved
		req.Reason = ""
	} else {
		req.Status = StatusRejected
		req.Reason = reason
	}
	req.DecidedBy = by
	req.DecidedAt = s.clock.Now()
}

// cancelForCredential rejects every pending request made with credential.
func (s *Service) cancelForCredential(credentialID, reason string) int {
	n := 0
	for id, req := range s.requests {
		if req.CredentialID == credentialID && req.Status == StatusPending {
			s.decide(id, false, "system", reason)
			n++
		}
	}
	return n
}
