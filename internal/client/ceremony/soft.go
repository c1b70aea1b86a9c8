package ceremony

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/dmitrijs2005/podesk/internal/passkey"
)

// SoftAuthenticator keeps Ed25519 passkeys in memory, optionally persisted
// to a key file. It speaks the format of the development backend and is
// meant for local use and tests.
type SoftAuthenticator struct {
	origin string
	path   string

	mu   sync.Mutex
	keys map[string]softKey
	// RejectHints makes Get fail like an authenticator that does not
	// understand the hints member.
	RejectHints bool
}

type softKey struct {
	ID     string `json:"id"`
	RPID   string `json:"rp_id"`
	UserID string `json:"user_id"`
	Seed   string `json:"seed"`
}

var (
	_ Authenticator      = (*SoftAuthenticator)(nil)
	_ CapabilityReporter = (*SoftAuthenticator)(nil)
	_ PlatformChecker    = (*SoftAuthenticator)(nil)
)

// NewSoftAuthenticator returns an authenticator whose client data names
// origin. With a non-empty path, keys are loaded from and saved to it.
func NewSoftAuthenticator(origin, path string) (*SoftAuthenticator, error) {
	a := &SoftAuthenticator{origin: origin, path: path, keys: map[string]softKey{}}
	if path == "" {
		return a, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return a, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	var keys []softKey
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("decode key file: %w", err)
	}
	for _, k := range keys {
		a.keys[k.ID] = k
	}
	return a, nil
}

func (a *SoftAuthenticator) Create(ctx context.Context, options json.RawMessage) (json.RawMessage, error) {
	var opts passkey.CreationOptions
	if err := json.Unmarshal(options, &opts); err != nil {
		return nil, &AuthenticatorError{Name: "TypeError", Message: "invalid creation options"}
	}
	if err := ctx.Err(); err != nil {
		return nil, &AuthenticatorError{Name: "AbortError", Message: err.Error()}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, d := range opts.ExcludeCredentials {
		if _, ok := a.keys[d.ID]; ok {
			return nil, &AuthenticatorError{Name: "InvalidStateError", Message: "The authenticator already contains one of the credentials."}
		}
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	rawID := make([]byte, 16)
	if _, err := rand.Read(rawID); err != nil {
		return nil, err
	}
	id := passkey.Encode(rawID)

	cdEncoded, _, err := passkey.EncodeClientData(passkey.ClientData{
		Type:      passkey.TypeCreate,
		Challenge: opts.Challenge,
		Origin:    a.origin,
	})
	if err != nil {
		return nil, err
	}

	a.keys[id] = softKey{ID: id, RPID: opts.RP.ID, UserID: opts.User.ID, Seed: passkey.Encode(priv.Seed())}
	if err := a.saveLocked(); err != nil {
		delete(a.keys, id)
		return nil, err
	}

	return json.Marshal(passkey.Credential{
		ID:    id,
		RawID: id,
		Type:  passkey.TypePublicKey,
		Response: passkey.CredentialResponse{
			ClientDataJSON:     cdEncoded,
			PublicKey:          passkey.Encode(pub),
			PublicKeyAlgorithm: passkey.AlgEdDSA,
		},
	})
}

func (a *SoftAuthenticator) Get(ctx context.Context, options json.RawMessage) (json.RawMessage, error) {
	var opts passkey.RequestOptions
	if err := json.Unmarshal(options, &opts); err != nil {
		return nil, &AuthenticatorError{Name: "TypeError", Message: "invalid request options"}
	}
	if a.RejectHints && len(opts.Hints) > 0 {
		return nil, &AuthenticatorError{Name: "TypeError", Message: "Unrecognized member 'hints'"}
	}
	if err := ctx.Err(); err != nil {
		return nil, &AuthenticatorError{Name: "AbortError", Message: err.Error()}
	}

	key, ok := a.pick(opts)
	if !ok {
		return nil, &AuthenticatorError{Name: "NotAllowedError", Message: "No matching passkey on this device."}
	}
	seed, err := passkey.Decode(key.Seed)
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("corrupt key %s", key.ID)
	}

	cdEncoded, cdRaw, err := passkey.EncodeClientData(passkey.ClientData{
		Type:      passkey.TypeGet,
		Challenge: opts.Challenge,
		Origin:    a.origin,
	})
	if err != nil {
		return nil, err
	}
	sig := ed25519.Sign(ed25519.NewKeyFromSeed(seed), cdRaw)

	return json.Marshal(passkey.Credential{
		ID:    key.ID,
		RawID: key.ID,
		Type:  passkey.TypePublicKey,
		Response: passkey.CredentialResponse{
			ClientDataJSON: cdEncoded,
			Signature:      passkey.Encode(sig),
			UserHandle:     key.UserID,
		},
	})
}

// pick returns the first allowed key, or any key for the relying party when
// the server allows all.
func (a *SoftAuthenticator) pick(opts passkey.RequestOptions) (softKey, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, d := range opts.AllowCredentials {
		if k, ok := a.keys[d.ID]; ok {
			return k, true
		}
	}
	if len(opts.AllowCredentials) > 0 {
		return softKey{}, false
	}
	for _, k := range a.keys {
		if opts.RPID == "" || k.RPID == opts.RPID {
			return k, true
		}
	}
	return softKey{}, false
}

// Capabilities reports a platform-only authenticator.
func (a *SoftAuthenticator) Capabilities(ctx context.Context) (map[string]bool, error) {
	return map[string]bool{
		"userVerifyingPlatformAuthenticator": true,
		"hybridTransport":                    false,
		"securityKey":                        false,
	}, nil
}

func (a *SoftAuthenticator) PlatformAvailable(ctx context.Context) (bool, error) {
	return true, nil
}

// Len is the number of stored keys.
func (a *SoftAuthenticator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.keys)
}

func (a *SoftAuthenticator) saveLocked() error {
	if a.path == "" {
		return nil
	}
	keys := make([]softKey, 0, len(a.keys))
	for _, k := range a.keys {
		keys = append(keys, k)
	}
	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(a.path, data, 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}
