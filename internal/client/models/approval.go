package models

import (
	"sort"
	"strings"
)

// LoginApprovalRequest is a sign-in attempt from an untrusted device waiting
// for an administrator decision.
type LoginApprovalRequest struct {
	ID        string `json:"id"`
	User      string `json:"user"`
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
	CreatedAt string `json:"created_at"`
	ExpiresAt string `json:"expires_at"`
	ExpiresIn int    `json:"expires_in"`
}

// LoginRequestList is the body of GET /auth/login/requests.
type LoginRequestList struct {
	Requests []LoginApprovalRequest `json:"requests"`
}

// Normalize fills display defaults. The second result is false when the
// request carries no id and must be dropped.
func (r LoginApprovalRequest) Normalize() (LoginApprovalRequest, bool) {
	r.ID = strings.TrimSpace(r.ID)
	if r.ID == "" {
		return r, false
	}
	if strings.TrimSpace(r.User) == "" {
		r.User = "admin"
	}
	if strings.TrimSpace(r.IP) == "" {
		r.IP = "unknown"
	}
	if strings.TrimSpace(r.UserAgent) == "" {
		r.UserAgent = "Unknown device"
	}
	if r.ExpiresIn < 0 {
		r.ExpiresIn = 0
	}
	return r, true
}

// NormalizeRequests drops rows without an id, fills defaults and orders the
// result newest first by creation time.
func NormalizeRequests(in []LoginApprovalRequest) []LoginApprovalRequest {
	out := make([]LoginApprovalRequest, 0, len(in))
	for _, r := range in {
		if n, ok := r.Normalize(); ok {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return ParseInstant(out[i].CreatedAt).After(ParseInstant(out[j].CreatedAt))
	})
	return out
}
