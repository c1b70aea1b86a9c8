// Package auth holds the sign-in state of the development backend: passkeys,
// browser sessions, attempt limits on the shared codes and the login
// approval queue. Everything lives in memory behind one mutex.
package auth

import "time"

// DefaultLockSteps is the escalating lock applied after each run of failed
// code attempts from one client.
var DefaultLockSteps = []time.Duration{
	10 * time.Second,
	30 * time.Second,
	60 * time.Second,
	120 * time.Second,
	300 * time.Second,
}

// Config tunes the auth service.
type Config struct {
	RPID   string
	RPName string
	// Origin is compared with the client data origin when set.
	Origin string

	// SetupCode gates the first passkey registration. Empty disables
	// first-admin setup.
	SetupCode string
	// AccessCode enables code sign-in. Empty falls back to SetupCode.
	AccessCode string

	SetupMaxAttempts  int
	AccessMaxAttempts int
	LockSteps         []time.Duration

	ApprovalTTL       time.Duration
	DecisionRetention time.Duration
	ActiveSessionTTL  time.Duration
	OnlineWindow      time.Duration
	IdleTimeout       time.Duration
}

func DefaultConfig() Config {
	return Config{
		RPID:              "localhost",
		RPName:            "PO Editor",
		SetupMaxAttempts:  3,
		AccessMaxAttempts: 5,
		LockSteps:         DefaultLockSteps,
		ApprovalTTL:       120 * time.Second,
		DecisionRetention: 180 * time.Second,
		ActiveSessionTTL:  300 * time.Second,
		OnlineWindow:      12 * time.Second,
		IdleTimeout:       12 * time.Hour,
	}
}

// normalize applies the lower bounds the service relies on.
func (c Config) normalize() Config {
	d := DefaultConfig()
	if c.RPID == "" {
		c.RPID = d.RPID
	}
	if c.RPName == "" {
		c.RPName = d.RPName
	}
	if c.SetupMaxAttempts <= 0 {
		c.SetupMaxAttempts = d.SetupMaxAttempts
	}
	if c.AccessMaxAttempts <= 0 {
		c.AccessMaxAttempts = d.AccessMaxAttempts
	}
	if len(c.LockSteps) == 0 {
		c.LockSteps = d.LockSteps
	}
	c.ApprovalTTL = max(c.ApprovalTTL, 30*time.Second)
	c.DecisionRetention = max(c.DecisionRetention, 30*time.Second)
	c.ActiveSessionTTL = max(c.ActiveSessionTTL, 30*time.Second)
	c.OnlineWindow = max(c.OnlineWindow, 5*time.Second)
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	return c
}

// accessCode is the code accepted by code sign-in.
func (c Config) accessCode() string {
	if c.AccessCode != "" {
		return c.AccessCode
	}
	return c.SetupCode
}
