package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/podesk/internal/client/models"
	"github.com/dmitrijs2005/podesk/internal/common"
	"github.com/dmitrijs2005/podesk/internal/logging"
	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"
)

// HTTPClient talks JSON to the backend and keeps the session cookie in its
// own jar, so one HTTPClient is one browser-style session.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	logger  logging.Logger

	mu             sync.RWMutex
	onUnauthorized func(ctx context.Context)
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient builds a client for the API rooted at baseURL
// (e.g. "http://127.0.0.1:8080/api").
func NewHTTPClient(baseURL string, timeout time.Duration, logger logging.Logger) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("parse server url: unsupported scheme %q", u.Scheme)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Nop()
	}

	return &HTTPClient{
		baseURL: u.String(),
		http:    &http.Client{Jar: jar, Timeout: timeout},
		logger:  logger.With("component", "api"),
	}, nil
}

// SetUnauthorizedHandler installs fn to run when a protected call gets 401.
// fn receives a context detached from the caller's cancellation.
func (c *HTTPClient) SetUnauthorizedHandler(fn func(ctx context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = fn
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) Status(ctx context.Context) (*models.AuthStatus, error) {
	var st models.AuthStatus
	if err := c.do(ctx, http.MethodGet, common.RouteAuthStatus, nil, &st, false); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *HTTPClient) RegisterOptions(ctx context.Context, username, setupCode string) (json.RawMessage, error) {
	body := map[string]string{"username": username, "setup_code": setupCode}
	var opts json.RawMessage
	if err := c.do(ctx, http.MethodPost, common.RouteRegisterOptions, body, &opts, false); err != nil {
		return nil, err
	}
	return opts, nil
}

func (c *HTTPClient) RegisterVerify(ctx context.Context, credential json.RawMessage) (*models.AuthResult, error) {
	var res models.AuthResult
	if err := c.do(ctx, http.MethodPost, common.RouteRegisterVerify, credential, &res, false); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) LoginOptions(ctx context.Context, username string) (json.RawMessage, error) {
	body := map[string]string{}
	if username != "" {
		body["username"] = username
	}
	var opts json.RawMessage
	if err := c.do(ctx, http.MethodPost, common.RouteLoginOptions, body, &opts, false); err != nil {
		return nil, err
	}
	return opts, nil
}

func (c *HTTPClient) LoginVerify(ctx context.Context, assertion json.RawMessage) (*models.AuthResult, error) {
	var res models.AuthResult
	if err := c.do(ctx, http.MethodPost, common.RouteLoginVerify, assertion, &res, false); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) LoginWithCode(ctx context.Context, username, code string) (*models.AuthResult, error) {
	body := map[string]string{"access_code": code}
	if username != "" {
		body["username"] = username
	}
	var res models.AuthResult
	if err := c.do(ctx, http.MethodPost, common.RouteLoginCode, body, &res, false); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) PendingLogin(ctx context.Context) (*models.PendingResult, error) {
	var res models.PendingResult
	if err := c.do(ctx, http.MethodGet, common.RouteLoginPending, nil, &res, false); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) ListLoginRequests(ctx context.Context) ([]models.LoginApprovalRequest, error) {
	var res models.LoginRequestList
	if err := c.do(ctx, http.MethodGet, common.RouteLoginRequests, nil, &res, true); err != nil {
		return nil, err
	}
	return res.Requests, nil
}

func (c *HTTPClient) DecideLoginRequest(ctx context.Context, id string, decision models.Decision, reason string) error {
	path := common.RouteLoginRequests + "/" + url.PathEscape(id) + "/" + string(decision)
	var body any
	if decision == models.DecisionReject {
		body = map[string]string{"reason": reason}
	}
	return c.do(ctx, http.MethodPost, path, body, nil, true)
}

func (c *HTTPClient) SyncStatus(ctx context.Context) (*models.SyncSnapshot, error) {
	var snap models.SyncSnapshot
	if err := c.do(ctx, http.MethodGet, common.RouteSyncStatus, nil, &snap, true); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *HTTPClient) ListSaved(ctx context.Context) ([]models.POSummary, error) {
	var rows []models.POSummary
	if err := c.do(ctx, http.MethodGet, common.RoutePurchaseOrders, nil, &rows, true); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *HTTPClient) ListTrash(ctx context.Context) ([]models.TrashEntry, error) {
	var rows []models.TrashEntry
	if err := c.do(ctx, http.MethodGet, common.RoutePurchaseOrderBin, nil, &rows, true); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *HTTPClient) GetPO(ctx context.Context, id int64) (*models.Document, error) {
	var doc models.Document
	path := common.RoutePurchaseOrders + "/" + strconv.FormatInt(id, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, &doc, true); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *HTTPClient) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, common.RouteAuthLogout, nil, nil, false)
}

// do performs one JSON round trip. A nil out discards the body.
func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any, protected bool) error {
	var body io.Reader
	if in != nil {
		var payload []byte
		if raw, ok := in.(json.RawMessage); ok {
			payload = raw
		} else {
			b, err := json.Marshal(in)
			if err != nil {
				return fmt.Errorf("encode request: %w", err)
			}
			payload = b
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	requestID := uuid.NewString()
	req.Header.Set(common.RequestIDHeaderName, requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.logger.Debug(ctx, "request failed", "method", method, "path", path, "request_id", requestID, "error", err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeAPIError(resp, data)
		c.logger.Debug(ctx, "request rejected", "method", method, "path", path, "request_id", requestID, "status", resp.StatusCode)
		if protected && resp.StatusCode == http.StatusUnauthorized {
			c.notifyUnauthorized(ctx)
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return nil
}

func (c *HTTPClient) notifyUnauthorized(ctx context.Context) {
	c.mu.RLock()
	fn := c.onUnauthorized
	c.mu.RUnlock()
	if fn != nil {
		fn(context.WithoutCancel(ctx))
	}
}

func decodeAPIError(resp *http.Response, data []byte) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var payload models.ErrorPayload
	if err := json.Unmarshal(data, &payload); err == nil {
		apiErr.Message = payload.Error
		if apiErr.Message == "" {
			apiErr.Message = payload.Message
		}
		apiErr.Locked = payload.Locked
		apiErr.RetryAfter = payload.RetryAfter
		apiErr.RemainingAttempts = payload.RemainingAttempts
	} else if text := strings.TrimSpace(string(data)); text != "" && !strings.HasPrefix(text, "<") {
		apiErr.Message = text
	}

	if apiErr.RetryAfter == nil {
		if h := resp.Header.Get("Retry-After"); h != "" {
			apiErr.RetryAfter = h
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// IsTransient reports whether err is worth retrying on the next cycle.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrBadResponse) || errors.Is(err, context.DeadlineExceeded)
}
