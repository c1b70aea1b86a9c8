package ceremony

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

type probingAuthenticator struct {
	fakeAuthenticator

	caps        map[string]bool
	capsErr     error
	platform    bool
	platformErr error
}

func (p *probingAuthenticator) Capabilities(ctx context.Context) (map[string]bool, error) {
	return p.caps, p.capsErr
}

func (p *probingAuthenticator) PlatformAvailable(ctx context.Context) (bool, error) {
	return p.platform, p.platformErr
}

func enabled(methods []Method) map[MethodKind]bool {
	out := map[MethodKind]bool{}
	for _, m := range methods {
		out[m.Kind] = m.Enabled
	}
	return out
}

func TestDetectMethods(t *testing.T) {
	tests := []struct {
		name       string
		auth       *probingAuthenticator
		hasPasskey bool
		want       map[MethodKind]bool
	}{
		{
			name:       "checks fail, everything offered",
			auth:       &probingAuthenticator{capsErr: errors.New("boom"), platformErr: errors.New("boom")},
			hasPasskey: true,
			want:       map[MethodKind]bool{MethodPlatform: true, MethodPhone: true, MethodSecurity: true},
		},
		{
			name:       "definitive negatives",
			auth:       &probingAuthenticator{caps: map[string]bool{"hybridTransport": false, "securityKey": false}},
			hasPasskey: true,
			want:       map[MethodKind]bool{MethodPlatform: false, MethodPhone: false, MethodSecurity: false},
		},
		{
			name:       "positive capability wins over negative check",
			auth:       &probingAuthenticator{caps: map[string]bool{"uvpa": true, "usb": true}},
			hasPasskey: true,
			want:       map[MethodKind]bool{MethodPlatform: true, MethodPhone: true, MethodSecurity: true},
		},
		{
			name:       "no passkey yet",
			auth:       &probingAuthenticator{capsErr: errors.New("unknown"), platform: true},
			hasPasskey: false,
			want:       map[MethodKind]bool{MethodPlatform: true, MethodPhone: false, MethodSecurity: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.hasPasskey)
			c := NewCoordinator(f.api, tt.auth, f.store, f.lock, f.rec, "admin", nil)

			got := enabled(c.DetectMethods(context.Background(), tt.hasPasskey))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("methods mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDetectMethods_Reasons(t *testing.T) {
	f := newFixture(t, false)

	methods := f.c.DetectMethods(context.Background(), false)
	assert.True(t, methods[0].Enabled)
	assert.Equal(t, "Available after first passkey setup.", methods[1].Reason)
	assert.Equal(t, "Available after first passkey setup.", methods[2].Reason)

	none := NewCoordinator(f.api, nil, f.store, f.lock, f.rec, "admin", nil)
	for _, m := range none.DetectMethods(context.Background(), true) {
		assert.False(t, m.Enabled)
		assert.NotEmpty(t, m.Reason)
	}
	assert.False(t, AnyEnabled(none.DetectMethods(context.Background(), true)))
}
