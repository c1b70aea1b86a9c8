package cli

import (
	"errors"
	"sync"

	"github.com/dmitrijs2005/podesk/internal/client/models"
	"github.com/dmitrijs2005/podesk/internal/client/syncer"
)

var ErrUnsaved = errors.New("the open record has unsaved changes")

// Workspace is the editor state of the terminal client: the two lists and
// the record currently open. It is the view the sync poller reconciles.
type Workspace struct {
	mu    sync.Mutex
	saved []models.POSummary
	trash []models.TrashEntry
	doc   *models.Document
	open  models.OpenRecord
}

var _ syncer.View = (*Workspace)(nil)

func NewWorkspace() *Workspace {
	return &Workspace{}
}

func (w *Workspace) Lists() ([]models.POSummary, []models.TrashEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.saved, w.trash
}

func (w *Workspace) SetLists(saved []models.POSummary, trash []models.TrashEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.saved, w.trash = saved, trash
}

func (w *Workspace) OpenRecord() models.OpenRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open
}

func (w *Workspace) ResetToDraft(id int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.open.ID != id || w.open.Dirty {
		return false
	}
	w.doc = nil
	w.open = models.OpenRecord{}
	return true
}

func (w *Workspace) ReloadDocument(doc *models.Document) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if doc == nil || w.open.ID != doc.ID || w.open.Dirty {
		return false
	}
	w.doc = doc
	w.open.UpdatedAt = doc.UpdatedAt
	return true
}

func (w *Workspace) MarkSynced(id int64, updatedAt string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.open.ID == id {
		w.open.UpdatedAt = updatedAt
	}
}

// Open replaces the open record with doc. Unsaved edits are never dropped.
func (w *Workspace) Open(doc *models.Document) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.open.Dirty {
		return ErrUnsaved
	}
	w.doc = doc
	w.open = models.OpenRecord{ID: doc.ID, UpdatedAt: doc.UpdatedAt}
	return nil
}

// Close discards the open record, edits included, and starts a blank draft.
func (w *Workspace) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.doc = nil
	w.open = models.OpenRecord{}
}

func (w *Workspace) MarkDirty() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.open.Dirty = true
}

func (w *Workspace) Document() *models.Document {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.doc
}

// Reset drops everything, used when the session ends.
func (w *Workspace) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.saved, w.trash = nil, nil
	w.doc = nil
	w.open = models.OpenRecord{}
}
