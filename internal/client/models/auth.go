// Package models defines the wire types exchanged with the PO backend and the
// small value types the client derives from them.
package models

// Pending approval states reported by the backend.
const (
	PendingStateNone     = "none"
	PendingStatePending  = "pending"
	PendingStateApproved = "approved"
	PendingStateRejected = "rejected"
	PendingStateExpired  = "expired"
)

// AuthMethodAccessCode marks a session established with the shared access code.
const AuthMethodAccessCode = "access_code"

// LoginApprovalStatus is the login-approval block embedded in status and
// authentication responses.
type LoginApprovalStatus struct {
	Required           bool   `json:"required"`
	CanApproveRequests bool   `json:"can_approve_requests"`
	PendingState       string `json:"pending_state"`
	PendingExpiresIn   int    `json:"pending_expires_in"`
}

// CodeLoginStatus reports whether access-code sign-in is available.
type CodeLoginStatus struct {
	Enabled bool `json:"enabled"`
}

// AuthStatus is the body of GET /auth/status.
type AuthStatus struct {
	Authenticated        bool                `json:"authenticated"`
	User                 string              `json:"user"`
	HasPasskey           bool                `json:"has_passkey"`
	FirstAdminSetupReady bool                `json:"first_admin_setup_ready"`
	LoginApproval        LoginApprovalStatus `json:"login_approval"`
	CodeLogin            CodeLoginStatus     `json:"code_login"`
}

// CanApprove reports the approval capability of the current session.
func (s *AuthStatus) CanApprove() bool {
	return s != nil && s.LoginApproval.CanApproveRequests
}

// PendingApproval reports whether the session waits for an administrator
// decision on a previous sign-in.
func (s *AuthStatus) PendingApproval() bool {
	return s != nil && !s.Authenticated && s.LoginApproval.PendingState == PendingStatePending
}

// AuthResult is the outcome of a registration, passkey or access-code
// sign-in. When PendingApproval is set the session is not yet established
// and RequestID/ExpiresIn describe the approval request.
type AuthResult struct {
	OK                 bool                 `json:"ok"`
	User               string               `json:"user"`
	CanApproveRequests *bool                `json:"can_approve_requests,omitempty"`
	LoginApproval      *LoginApprovalStatus `json:"login_approval,omitempty"`
	AuthMethod         string               `json:"auth_method,omitempty"`
	PendingApproval    bool                 `json:"pending_approval,omitempty"`
	RequestID          string               `json:"request_id,omitempty"`
	ExpiresIn          int                  `json:"expires_in,omitempty"`
	Message            string               `json:"message,omitempty"`
}

// CanApprove reads the approval capability from either the top-level flag or
// the nested login_approval block. Absent means false.
func (r *AuthResult) CanApprove() bool {
	if r == nil {
		return false
	}
	return canApprove(r.CanApproveRequests, r.LoginApproval)
}

// PendingResult is the body of GET /auth/login/pending.
type PendingResult struct {
	Status             string               `json:"status"`
	Authenticated      bool                 `json:"authenticated"`
	User               string               `json:"user,omitempty"`
	CanApproveRequests *bool                `json:"can_approve_requests,omitempty"`
	LoginApproval      *LoginApprovalStatus `json:"login_approval,omitempty"`
	Error              string               `json:"error,omitempty"`
	RequestID          string               `json:"request_id,omitempty"`
	ExpiresIn          *int                 `json:"expires_in,omitempty"`
}

func (p *PendingResult) CanApprove() bool {
	if p == nil {
		return false
	}
	return canApprove(p.CanApproveRequests, p.LoginApproval)
}

func canApprove(top *bool, nested *LoginApprovalStatus) bool {
	if top != nil {
		return *top
	}
	if nested != nil {
		return nested.CanApproveRequests
	}
	return false
}

// ErrorPayload is the JSON body the backend sends with non-2xx responses.
type ErrorPayload struct {
	Error             string `json:"error"`
	Message           string `json:"message,omitempty"`
	Locked            bool   `json:"locked,omitempty"`
	RetryAfter        any    `json:"retry_after,omitempty"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
}

// Decision is an approver verdict on a login request.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// DefaultRejectReason is sent when the approver gives no reason.
const DefaultRejectReason = "Rejected by administrator."
