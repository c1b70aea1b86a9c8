package ceremony

import "context"

// MethodKind identifies a sign-in method offered on the auth surface.
type MethodKind string

const (
	MethodPlatform MethodKind = "platform"
	MethodPhone    MethodKind = "phone"
	MethodSecurity MethodKind = "security"
)

// Method is one row of the method list.
type Method struct {
	Kind    MethodKind
	Label   string
	Enabled bool
	Reason  string
}

type methodDefinition struct {
	kind           MethodKind
	label          string
	disabledReason string
}

var methodDefinitions = []methodDefinition{
	{MethodPlatform, "This device (PIN/Biometrics)", "Device passkey is not available on this device."},
	{MethodPhone, "Phone passkey (iPhone/Android)", "Cross-device phone passkey is not available here."},
	{MethodSecurity, "Security key (USB/NFC/Bluetooth)", "Security key sign-in is not available here."},
}

const (
	reasonNoAuthenticator = "Passkeys require a configured authenticator helper."
	reasonAfterFirstSetup = "Available after first passkey setup."
)

var (
	platformCapabilityKeys = []string{"passkeyPlatformAuthenticator", "userVerifyingPlatformAuthenticator", "uvpa"}
	hybridCapabilityKeys   = []string{"hybridTransport", "hybrid", "passkeyCrossDevice", "conditionalGet"}
	securityCapabilityKeys = []string{"securityKey", "securityKeys", "crossPlatformAuthenticator", "usb", "ble", "nfc"}
)

// offered enables a method unless some capability check answered a definitive negative
// and none answered positive. A nil answer is unknown.
func offered(signals ...*bool) bool {
	negative := false
	for _, s := range signals {
		if s == nil {
			continue
		}
		if *s {
			return true
		}
		negative = true
	}
	return !negative
}

func capabilitySignal(caps map[string]bool, keys []string) *bool {
	for _, k := range keys {
		if v, ok := caps[k]; ok {
			return &v
		}
	}
	return nil
}

// DetectMethods reports which sign-in methods to present. Detection is best
// effort: a missing or failing check is unknown, never unsupported.
func (c *Coordinator) DetectMethods(ctx context.Context, hasPasskey bool) []Method {
	methods := make([]Method, len(methodDefinitions))
	for i, d := range methodDefinitions {
		methods[i] = Method{Kind: d.kind, Label: d.label, Enabled: true}
	}

	if c.auth == nil {
		for i := range methods {
			methods[i].Enabled = false
			methods[i].Reason = reasonNoAuthenticator
		}
		return methods
	}

	var caps map[string]bool
	if r, ok := c.auth.(CapabilityReporter); ok {
		got, err := r.Capabilities(ctx)
		if err != nil {
			c.logger.Debug(ctx, "capability check failed", "error", err)
		} else {
			caps = got
		}
	}

	var platform, conditional *bool
	if p, ok := c.auth.(PlatformChecker); ok {
		if v, err := p.PlatformAvailable(ctx); err == nil {
			platform = &v
		}
	}
	if p, ok := c.auth.(ConditionalChecker); ok {
		if v, err := p.ConditionalAvailable(ctx); err == nil {
			conditional = &v
		}
	}

	methods[0].Enabled = offered(platform, capabilitySignal(caps, platformCapabilityKeys))

	if !hasPasskey {
		methods[1].Enabled, methods[1].Reason = false, reasonAfterFirstSetup
		methods[2].Enabled, methods[2].Reason = false, reasonAfterFirstSetup
	} else {
		methods[1].Enabled = offered(capabilitySignal(caps, hybridCapabilityKeys), conditional)
		methods[2].Enabled = offered(capabilitySignal(caps, securityCapabilityKeys))
	}

	for i := range methods {
		if !methods[i].Enabled && methods[i].Reason == "" {
			methods[i].Reason = methodDefinitions[i].disabledReason
		}
	}
	return methods
}

// AnyEnabled reports whether at least one method is usable.
func AnyEnabled(methods []Method) bool {
	for _, m := range methods {
		if m.Enabled {
			return true
		}
	}
	return false
}
