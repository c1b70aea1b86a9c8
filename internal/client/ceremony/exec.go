package ceremony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

var ErrHelperProtocol = errors.New("authenticator helper protocol error")

// execRequest is written to the helper's stdin.
type execRequest struct {
	Op      string          `json:"op"`
	Options json.RawMessage `json:"options,omitempty"`
}

// execResponse is read from the helper's stdout. Exactly one of the
// payload fields is meaningful for a given op.
type execResponse struct {
	Credential   json.RawMessage `json:"credential,omitempty"`
	Capabilities map[string]bool `json:"capabilities,omitempty"`
	Available    *bool           `json:"available,omitempty"`
	Error        *struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ExecAuthenticator delegates ceremonies to an external helper program.
// Each call starts the helper once, sends one JSON request on stdin and
// reads one JSON response from stdout.
type ExecAuthenticator struct {
	name string
	args []string
}

var (
	_ Authenticator      = (*ExecAuthenticator)(nil)
	_ CapabilityReporter = (*ExecAuthenticator)(nil)
	_ PlatformChecker    = (*ExecAuthenticator)(nil)
	_ ConditionalChecker = (*ExecAuthenticator)(nil)
)

// NewExecAuthenticator parses a command line such as
// "passkey-helper --rp localhost". It returns nil for a blank command.
func NewExecAuthenticator(command string) *ExecAuthenticator {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return nil
	}
	return &ExecAuthenticator{name: parts[0], args: parts[1:]}
}

func (a *ExecAuthenticator) Create(ctx context.Context, options json.RawMessage) (json.RawMessage, error) {
	resp, err := a.call(ctx, execRequest{Op: "create", Options: options})
	if err != nil {
		return nil, err
	}
	return resp.Credential, nil
}

func (a *ExecAuthenticator) Get(ctx context.Context, options json.RawMessage) (json.RawMessage, error) {
	resp, err := a.call(ctx, execRequest{Op: "get", Options: options})
	if err != nil {
		return nil, err
	}
	return resp.Credential, nil
}

func (a *ExecAuthenticator) Capabilities(ctx context.Context) (map[string]bool, error) {
	resp, err := a.call(ctx, execRequest{Op: "capabilities"})
	if err != nil {
		return nil, err
	}
	return resp.Capabilities, nil
}

func (a *ExecAuthenticator) PlatformAvailable(ctx context.Context) (bool, error) {
	return a.capability(ctx, "platform")
}

func (a *ExecAuthenticator) ConditionalAvailable(ctx context.Context) (bool, error) {
	return a.capability(ctx, "conditional")
}

func (a *ExecAuthenticator) capability(ctx context.Context, op string) (bool, error) {
	resp, err := a.call(ctx, execRequest{Op: op})
	if err != nil {
		return false, err
	}
	if resp.Available == nil {
		return false, fmt.Errorf("%w: %s: no answer", ErrHelperProtocol, op)
	}
	return *resp.Available, nil
}

func (a *ExecAuthenticator) call(ctx context.Context, req execRequest) (*execResponse, error) {
	in, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, a.name, a.args...)
	cmd.Stdin = bytes.NewReader(in)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, &AuthenticatorError{Name: "AbortError", Message: ctxErr.Error()}
	}

	var resp execResponse
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &resp); err != nil {
		if runErr != nil {
			return nil, fmt.Errorf("%w: %s: %v: %s", ErrHelperProtocol, req.Op, runErr, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrHelperProtocol, req.Op, err)
	}
	if resp.Error != nil {
		return nil, &AuthenticatorError{Name: resp.Error.Name, Message: resp.Error.Message}
	}
	if runErr != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrHelperProtocol, req.Op, runErr)
	}
	return &resp, nil
}
