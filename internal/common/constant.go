// Package common holds the wire constants shared by the API client and the
// development backend.
package common

// RequestIDHeaderName carries a per-call correlation id.
const RequestIDHeaderName = "X-Request-ID"

// SessionCookieName is the cookie the backend uses for the browser-style
// session.
const SessionCookieName = "po_session"

// API routes relative to the backend base URL.
const (
	RouteAuthStatus       = "/auth/status"
	RouteAuthLogout       = "/auth/logout"
	RouteRegisterOptions  = "/auth/register/options"
	RouteRegisterVerify   = "/auth/register/verify"
	RouteLoginOptions     = "/auth/login/options"
	RouteLoginVerify      = "/auth/login/verify"
	RouteLoginCode        = "/auth/login/code"
	RouteLoginPending     = "/auth/login/pending"
	RouteLoginRequests    = "/auth/login/requests"
	RouteSyncStatus       = "/sync/status"
	RoutePurchaseOrders   = "/po"
	RoutePurchaseOrderBin = "/po/trash"
)
