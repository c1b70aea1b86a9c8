// Package client contains the client side of the PO backend API.
//
// # Overview
//
//  1. A transport-agnostic contract (see the Client interface) covering the
//     auth status, passkey ceremonies, access-code sign-in, login approval,
//     sync status and PO reads.
//  2. A concrete JSON-over-HTTP implementation (see HTTPClient) that keeps
//     the session cookie in a cookie jar, tags each call with an
//     X-Request-ID, and turns error payloads into *APIError.
//
// # Error Handling
//
// *APIError unwraps to a sentinel chosen by status code, so callers match
// with errors.Is: ErrUnauthorized, ErrForbidden, ErrNotFound, ErrConflict,
// ErrRateLimited, ErrUnavailable. Network failures are ErrUnavailable.
//
// A 401 on a protected call additionally runs the handler installed with
// SetUnauthorizedHandler before the error is returned.
package client
