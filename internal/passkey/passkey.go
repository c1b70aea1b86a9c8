// Package passkey defines the passkey wire format spoken between the
// development backend and the built-in software authenticator.
//
// The shapes follow WebAuthn (options, client data, credential responses)
// but keys are raw Ed25519 and signatures cover the client data JSON
// directly, without authenticator data.
package passkey

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// AlgEdDSA is the COSE identifier for Ed25519.
const AlgEdDSA = -8

const (
	TypePublicKey = "public-key"
	TypeCreate    = "webauthn.create"
	TypeGet       = "webauthn.get"
)

var (
	ErrMalformed         = errors.New("malformed credential")
	ErrChallengeMismatch = errors.New("challenge mismatch")
	ErrWrongType         = errors.New("unexpected client data type")
	ErrOriginMismatch    = errors.New("origin mismatch")
	ErrBadKey            = errors.New("unsupported public key")
	ErrBadSignature      = errors.New("signature verification failed")
)

// Encode is unpadded base64url.
func Encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode accepts unpadded or padded base64url.
func Decode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

// NewChallenge returns 32 random bytes, encoded.
func NewChallenge() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return Encode(b), nil
}

type RelyingParty struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type UserEntity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

type CredentialParam struct {
	Type string `json:"type"`
	Alg  int    `json:"alg"`
}

type CredentialDescriptor struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type AuthenticatorSelection struct {
	ResidentKey      string `json:"residentKey,omitempty"`
	UserVerification string `json:"userVerification,omitempty"`
}

// CreationOptions is the body of the register/options response.
type CreationOptions struct {
	Challenge              string                 `json:"challenge"`
	RP                     RelyingParty           `json:"rp"`
	User                   UserEntity             `json:"user"`
	PubKeyCredParams       []CredentialParam      `json:"pubKeyCredParams"`
	Timeout                int                    `json:"timeout,omitempty"`
	ExcludeCredentials     []CredentialDescriptor `json:"excludeCredentials,omitempty"`
	AuthenticatorSelection AuthenticatorSelection `json:"authenticatorSelection"`
	Hints                  []string               `json:"hints,omitempty"`
}

// RequestOptions is the body of the login/options response.
type RequestOptions struct {
	Challenge        string                 `json:"challenge"`
	RPID             string                 `json:"rpId"`
	AllowCredentials []CredentialDescriptor `json:"allowCredentials"`
	UserVerification string                 `json:"userVerification,omitempty"`
	Timeout          int                    `json:"timeout,omitempty"`
	Hints            []string               `json:"hints,omitempty"`
}

// ClientData is what the authenticator signs over.
type ClientData struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Origin    string `json:"origin"`
}

// CredentialResponse carries PublicKey on registration and Signature on
// sign-in.
type CredentialResponse struct {
	ClientDataJSON     string `json:"clientDataJSON"`
	PublicKey          string `json:"publicKey,omitempty"`
	PublicKeyAlgorithm int    `json:"publicKeyAlgorithm,omitempty"`
	Signature          string `json:"signature,omitempty"`
	UserHandle         string `json:"userHandle,omitempty"`
}

// Credential is the authenticator output posted to the verify endpoints.
type Credential struct {
	ID       string             `json:"id"`
	RawID    string             `json:"rawId,omitempty"`
	Type     string             `json:"type"`
	Response CredentialResponse `json:"response"`
}

// ParseCredential decodes a posted credential and checks the envelope.
func ParseCredential(raw []byte) (*Credential, error) {
	var c Credential
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	c.ID = strings.TrimSpace(c.ID)
	if c.Type != "" && c.Type != TypePublicKey {
		return nil, fmt.Errorf("%w: type %q", ErrMalformed, c.Type)
	}
	return &c, nil
}

// Expectation is what the relying party requires of the client data.
type Expectation struct {
	Type      string
	Challenge string
	// Origin is skipped when empty.
	Origin string
}

func (c *Credential) clientData(exp Expectation) ([]byte, error) {
	raw, err := Decode(c.Response.ClientDataJSON)
	if err != nil || len(raw) == 0 {
		return nil, fmt.Errorf("%w: client data", ErrMalformed)
	}
	var cd ClientData
	if err := json.Unmarshal(raw, &cd); err != nil {
		return nil, fmt.Errorf("%w: client data: %v", ErrMalformed, err)
	}
	if cd.Type != exp.Type {
		return nil, ErrWrongType
	}
	if cd.Challenge == "" || cd.Challenge != exp.Challenge {
		return nil, ErrChallengeMismatch
	}
	if exp.Origin != "" && strings.TrimRight(cd.Origin, "/") != strings.TrimRight(exp.Origin, "/") {
		return nil, ErrOriginMismatch
	}
	return raw, nil
}

// VerifyRegistration checks a new credential against the registration
// challenge and returns its public key.
func (c *Credential) VerifyRegistration(exp Expectation) (ed25519.PublicKey, error) {
	if c.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMalformed)
	}
	if _, err := c.clientData(exp); err != nil {
		return nil, err
	}
	if c.Response.PublicKeyAlgorithm != 0 && c.Response.PublicKeyAlgorithm != AlgEdDSA {
		return nil, ErrBadKey
	}
	key, err := Decode(c.Response.PublicKey)
	if err != nil || len(key) != ed25519.PublicKeySize {
		return nil, ErrBadKey
	}
	return ed25519.PublicKey(key), nil
}

// VerifyAssertion checks a sign-in assertion made with key.
func (c *Credential) VerifyAssertion(exp Expectation, key ed25519.PublicKey) error {
	data, err := c.clientData(exp)
	if err != nil {
		return err
	}
	sig, err := Decode(c.Response.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return ErrBadSignature
	}
	if len(key) != ed25519.PublicKeySize || !ed25519.Verify(key, data, sig) {
		return ErrBadSignature
	}
	return nil
}

// EncodeClientData marshals cd the way authenticators send it.
func EncodeClientData(cd ClientData) (string, []byte, error) {
	raw, err := json.Marshal(cd)
	if err != nil {
		return "", nil, err
	}
	return Encode(raw), raw, nil
}
