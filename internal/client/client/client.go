package client

import (
	"context"
	"encoding/json"

	"github.com/dmitrijs2005/podesk/internal/client/models"
)

// Client is the transport-agnostic contract with the PO backend.
//
// Protected calls (login requests, decisions, sync status, lists and
// documents) report an expired session as ErrUnauthorized and also notify
// the handler installed with SetUnauthorizedHandler.
type Client interface {
	Status(ctx context.Context) (*models.AuthStatus, error)

	RegisterOptions(ctx context.Context, username, setupCode string) (json.RawMessage, error)
	RegisterVerify(ctx context.Context, credential json.RawMessage) (*models.AuthResult, error)
	LoginOptions(ctx context.Context, username string) (json.RawMessage, error)
	LoginVerify(ctx context.Context, assertion json.RawMessage) (*models.AuthResult, error)
	LoginWithCode(ctx context.Context, username, code string) (*models.AuthResult, error)
	PendingLogin(ctx context.Context) (*models.PendingResult, error)

	ListLoginRequests(ctx context.Context) ([]models.LoginApprovalRequest, error)
	DecideLoginRequest(ctx context.Context, id string, decision models.Decision, reason string) error

	SyncStatus(ctx context.Context) (*models.SyncSnapshot, error)
	ListSaved(ctx context.Context) ([]models.POSummary, error)
	ListTrash(ctx context.Context) ([]models.TrashEntry, error)
	GetPO(ctx context.Context, id int64) (*models.Document, error)

	Logout(ctx context.Context) error
	SetUnauthorizedHandler(fn func(ctx context.Context))
	Close() error
}
