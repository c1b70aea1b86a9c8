// Package po stores purchase orders and their trash bin for the development
// backend.
package po

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("not found")

// FormNoConflictError is returned when another saved order already uses the
// form number.
type FormNoConflictError struct {
	ExistingID int64
}

func (e *FormNoConflictError) Error() string {
	return fmt.Sprintf("form number already used by po %d", e.ExistingID)
}

// Payload is the editable body of an order.
type Payload struct {
	Fields      map[string]string `json:"fields"`
	Items       []json.RawMessage `json:"items"`
	Signatures  json.RawMessage   `json:"signatures"`
	ReportStyle json.RawMessage   `json:"reportStyle"`
}

// Order is a saved purchase order.
type Order struct {
	ID        int64
	Payload   Payload
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (o *Order) field(name string) string {
	return o.Payload.Fields[name]
}

// TrashEntry is a deleted order kept for restore.
type TrashEntry struct {
	ID         int64
	OriginalID int64
	Payload    Payload
	DeletedAt  time.Time
}

// Summary is one row of GET /po.
type Summary struct {
	ID          int64  `json:"id"`
	FormNo      string `json:"form_no"`
	PODate      string `json:"po_date"`
	ToName      string `json:"to_name"`
	CompanyName string `json:"company_name"`
	ItemsCount  int    `json:"items_count"`
	UpdatedAt   string `json:"updated_at"`
}

// TrashSummary is one row of GET /po/trash.
type TrashSummary struct {
	ID           int64  `json:"id"`
	OriginalPOID int64  `json:"original_po_id"`
	FormNo       string `json:"form_no"`
	PODate       string `json:"po_date"`
	ToName       string `json:"to_name"`
	CompanyName  string `json:"company_name"`
	ItemsCount   int    `json:"items_count"`
	DeletedAt    string `json:"deleted_at"`
}

// Snapshot is the body of GET /sync/status.
type Snapshot struct {
	SavedCount    int    `json:"saved_count"`
	TrashCount    int    `json:"trash_count"`
	LatestSavedAt string `json:"latest_saved_at"`
	LatestTrashAt string `json:"latest_trash_at"`
}

// Document is the body of GET /po/{id}.
type Document struct {
	ID        int64  `json:"id"`
	UpdatedAt string `json:"updated_at"`
	Payload
}

// SaveResult is the body of POST /po.
type SaveResult struct {
	OK        bool   `json:"ok"`
	ID        int64  `json:"id"`
	UpdatedAt string `json:"updated_at"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
