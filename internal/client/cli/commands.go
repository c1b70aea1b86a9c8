package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/podesk/internal/client/approval"
	"github.com/dmitrijs2005/podesk/internal/client/client"
	"github.com/dmitrijs2005/podesk/internal/client/models"
)

var errNoOpenRequest = errors.New("no sign-in request is open; use 'requests' to show one")

func (a *App) commands() map[string]command {
	return map[string]command{
		"status":   {help: "show the session and refresh the server status", run: a.status},
		"methods":  {help: "list the passkey sign-in methods on this device", run: a.methods},
		"register": {help: "create a passkey (first admin setup or signed in)", run: a.register},
		"login":    {help: "sign in with a passkey", run: a.login},
		"code":     {help: "sign in with the access code", run: a.codeLogin},
		"logout":   {help: "sign out", session: true, run: a.logout},
		"list":     {help: "list saved purchase orders", session: true, run: a.list},
		"trash":    {help: "list trashed purchase orders", session: true, run: a.listTrash},
		"open":     {help: "open <id>: open a saved purchase order", session: true, run: a.open},
		"edit":     {help: "mark the open record as edited", session: true, run: a.edit},
		"close":    {help: "close the open record, discarding edits", session: true, run: a.closeRecord},
		"sync":     {help: "check the server for changes now", session: true, run: a.sync},
		"requests": {help: "show pending sign-in requests", session: true, run: a.requests},
		"approve":  {help: "approve the open sign-in request", session: true, run: a.approve},
		"reject":   {help: "reject [reason]: reject the open sign-in request", session: true, run: a.reject},
		"later":    {help: "snooze the open sign-in request", session: true, run: a.later},
		"exit":     {help: "leave the program", run: a.quit},
		"quit":     {help: "leave the program", run: a.quit},
	}
}

func (a *App) quit(ctx context.Context, _ []string) error {
	a.term.Println("Bye!")
	return errQuit
}

func (a *App) status(ctx context.Context, _ []string) error {
	if !a.isLoggedIn() {
		// Re-runs the start-up check; it may resume a pending approval.
		return a.auth.Init(ctx)
	}
	if err := a.auth.RefreshStatus(ctx); err != nil {
		return err
	}
	if !a.isLoggedIn() {
		return nil
	}

	s := a.store.Snapshot()
	a.term.Println("Signed in as", s.User)
	if s.CanApproveLoginRequests {
		a.term.Println("This device approves sign-in requests.")
	}
	open := a.workspace.OpenRecord()
	switch {
	case open.IsDraft():
		a.term.Println("Open record: blank draft")
	case open.Dirty:
		a.term.Println(fmt.Sprintf("Open record: #%d (edited)", open.ID))
	default:
		a.term.Println(fmt.Sprintf("Open record: #%d", open.ID))
	}
	return nil
}

func (a *App) methods(ctx context.Context, _ []string) error {
	for _, m := range a.auth.Methods(ctx) {
		if m.Enabled {
			a.term.Println("  [x] " + m.Label)
		} else {
			a.term.Println("  [ ] " + m.Label + " - " + m.Reason)
		}
	}
	return nil
}

// Sign-in failures are already on the status line; they are not repeated.

func (a *App) register(ctx context.Context, _ []string) error {
	var code string
	if !a.store.HasPasskey() && !a.isLoggedIn() {
		var err error
		code, err = GetSecret(a.reader, "First admin setup code", a.out)
		if err != nil {
			return err
		}
	}
	_ = a.auth.Register(ctx, code)
	return nil
}

func (a *App) login(ctx context.Context, _ []string) error {
	if a.isLoggedIn() {
		return errors.New("already signed in")
	}
	_ = a.auth.LoginPasskey(ctx)
	return nil
}

func (a *App) codeLogin(ctx context.Context, _ []string) error {
	if a.isLoggedIn() {
		return errors.New("already signed in")
	}
	code, err := GetSecret(a.reader, "Access code", a.out)
	if err != nil {
		return err
	}
	_ = a.auth.LoginWithCode(ctx, code)
	return nil
}

func (a *App) logout(ctx context.Context, _ []string) error {
	if err := a.auth.Logout(ctx); err != nil {
		return err
	}
	a.workspace.Reset()
	return nil
}

func (a *App) list(ctx context.Context, _ []string) error {
	saved, _ := a.workspace.Lists()
	if len(saved) == 0 {
		a.term.Println("No saved purchase orders.")
		return nil
	}
	open := a.workspace.OpenRecord()
	for _, r := range saved {
		mark := " "
		if r.ID == open.ID {
			mark = "*"
		}
		a.term.Println(fmt.Sprintf("%s %4d  %-12s %-10s %-24s %3d items  %s",
			mark, r.ID, r.FormNo, r.PODate, r.CompanyName, r.ItemsCount, r.UpdatedAt))
	}
	return nil
}

func (a *App) listTrash(ctx context.Context, _ []string) error {
	_, trash := a.workspace.Lists()
	if len(trash) == 0 {
		a.term.Println("Trash is empty.")
		return nil
	}
	for _, r := range trash {
		a.term.Println(fmt.Sprintf("  %4d  %-12s %-10s %-24s deleted %s",
			r.ID, r.FormNo, r.PODate, r.CompanyName, r.DeletedAt))
	}
	return nil
}

func (a *App) open(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: open <id>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid id %q", args[0])
	}

	doc, err := a.api.GetPO(ctx, id)
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			return fmt.Errorf("purchase order #%d was not found", id)
		}
		return err
	}
	if err := a.workspace.Open(doc); err != nil {
		return fmt.Errorf("%w; use 'close' to discard them", err)
	}

	a.term.Println(fmt.Sprintf("Opened #%d %s (updated %s)", doc.ID, doc.FormNo(), doc.UpdatedAt))
	for _, k := range []string{"date", "to", "companyName"} {
		if v := doc.Fields[k]; v != "" {
			a.term.Println(fmt.Sprintf("  %-12s %s", k, v))
		}
	}
	a.term.Println(fmt.Sprintf("  %-12s %d", "items", len(doc.Items)))
	return nil
}

func (a *App) edit(ctx context.Context, _ []string) error {
	a.workspace.MarkDirty()
	a.term.Println("Open record marked as edited; background sync will not replace it.")
	return nil
}

func (a *App) closeRecord(ctx context.Context, _ []string) error {
	a.workspace.Close()
	a.term.Println("Closed. Blank draft open.")
	return nil
}

func (a *App) sync(ctx context.Context, _ []string) error {
	if err := a.poller.Tick(ctx); err != nil {
		return err
	}
	a.term.Println("Sync check complete.")
	return nil
}

func (a *App) requests(ctx context.Context, _ []string) error {
	err := a.approver.OpenPending(ctx)
	if errors.Is(err, approval.ErrNotAllowed) {
		return nil
	}
	return err
}

func (a *App) openRequest() (string, error) {
	id, ok := a.approver.Current()
	if !ok {
		return "", errNoOpenRequest
	}
	return id, nil
}

func (a *App) approve(ctx context.Context, _ []string) error {
	id, err := a.openRequest()
	if err != nil {
		return err
	}
	return a.approver.Decide(ctx, id, models.DecisionApprove, "")
}

func (a *App) reject(ctx context.Context, args []string) error {
	id, err := a.openRequest()
	if err != nil {
		return err
	}
	return a.approver.Decide(ctx, id, models.DecisionReject, strings.Join(args, " "))
}

func (a *App) later(ctx context.Context, _ []string) error {
	id, err := a.openRequest()
	if err != nil {
		return err
	}
	a.approver.Later(id)
	return nil
}
