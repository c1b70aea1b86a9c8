// Package syncer keeps the local PO lists and the open document consistent
// with changes made in other sessions, by polling a cheap snapshot and
// refreshing only when it moves.
package syncer

import (
	"github.com/dmitrijs2005/podesk/internal/client/models"
	"github.com/dmitrijs2005/podesk/internal/client/ui"
)

// Action is what the poller does to the open record after a refresh.
type Action int

const (
	ActionNone Action = iota
	// ActionResetDraft replaces a clean, remotely deleted record with a blank draft.
	ActionResetDraft
	// ActionWarnDeleted keeps a dirty, remotely deleted record open.
	ActionWarnDeleted
	// ActionReload reloads a clean record that changed remotely.
	ActionReload
	// ActionWarnChanged keeps a dirty record that changed remotely.
	ActionWarnChanged
)

const (
	NoticeDeleted = "Current PO was deleted in another session"
	NoticeSynced  = "Current PO synced from another session"
	NoticeChanged = "Current PO changed in another session. Save or reopen to sync."
)

// Plan is the outcome of Reconcile.
type Plan struct {
	Action Action
	ID     int64
	// UpdatedAt is the remote modification time of the open record, empty
	// when it no longer exists.
	UpdatedAt string
}

// Notice is the status line that goes with the plan.
func (p Plan) Notice() (string, ui.Tone, bool) {
	switch p.Action {
	case ActionResetDraft, ActionWarnDeleted:
		return NoticeDeleted, ui.ToneWarn, true
	case ActionReload:
		return NoticeSynced, ui.ToneGood, true
	case ActionWarnChanged:
		return NoticeChanged, ui.ToneWarn, true
	default:
		return "", ui.ToneInfo, false
	}
}

// Reconcile decides what happens to the open record given the refreshed
// saved list. previousUpdatedAt is the modification time the client knew
// before the refresh. Dirty records are never replaced.
func Reconcile(open models.OpenRecord, previousUpdatedAt string, saved []models.POSummary) Plan {
	if open.IsDraft() {
		return Plan{Action: ActionNone}
	}

	row, ok := findSaved(saved, open.ID)
	if !ok {
		if open.Dirty {
			return Plan{Action: ActionWarnDeleted, ID: open.ID}
		}
		return Plan{Action: ActionResetDraft, ID: open.ID}
	}

	plan := Plan{Action: ActionNone, ID: open.ID, UpdatedAt: row.UpdatedAt}
	if row.UpdatedAt == "" || previousUpdatedAt == "" || models.SameInstant(row.UpdatedAt, previousUpdatedAt) {
		return plan
	}
	if open.Dirty {
		plan.Action = ActionWarnChanged
	} else {
		plan.Action = ActionReload
	}
	return plan
}

// SnapshotFromLists derives the snapshot the server would report for the
// given lists.
func SnapshotFromLists(saved []models.POSummary, trash []models.TrashEntry) models.SyncSnapshot {
	snap := models.SyncSnapshot{SavedCount: len(saved), TrashCount: len(trash)}

	for _, row := range saved {
		if ts := models.ParseInstant(row.UpdatedAt); !ts.IsZero() && ts.After(models.ParseInstant(snap.LatestSavedAt)) {
			snap.LatestSavedAt = row.UpdatedAt
		}
	}
	for _, row := range trash {
		if ts := models.ParseInstant(row.DeletedAt); !ts.IsZero() && ts.After(models.ParseInstant(snap.LatestTrashAt)) {
			snap.LatestTrashAt = row.DeletedAt
		}
	}
	return snap
}

func findSaved(saved []models.POSummary, id int64) (models.POSummary, bool) {
	for _, row := range saved {
		if row.ID == id {
			return row, true
		}
	}
	return models.POSummary{}, false
}

// knownUpdatedAt is the modification time of the open record as the client
// last saw it.
func knownUpdatedAt(open models.OpenRecord, saved []models.POSummary) string {
	if open.IsDraft() {
		return ""
	}
	if row, ok := findSaved(saved, open.ID); ok && row.UpdatedAt != "" {
		return row.UpdatedAt
	}
	return open.UpdatedAt
}
