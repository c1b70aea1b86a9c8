package models

import (
	"encoding/json"
	"strings"
	"time"
)

// SyncSnapshot is the coarse fingerprint of the shared data set returned by
// GET /sync/status.
type SyncSnapshot struct {
	SavedCount    int    `json:"saved_count"`
	TrashCount    int    `json:"trash_count"`
	LatestSavedAt string `json:"latest_saved_at"`
	LatestTrashAt string `json:"latest_trash_at"`
}

// Equal compares counts exactly and timestamps by the instant they denote.
// Empty or unparseable timestamps compare as the zero instant.
func (s SyncSnapshot) Equal(o SyncSnapshot) bool {
	return s.SavedCount == o.SavedCount &&
		s.TrashCount == o.TrashCount &&
		ParseInstant(s.LatestSavedAt).Equal(ParseInstant(o.LatestSavedAt)) &&
		ParseInstant(s.LatestTrashAt).Equal(ParseInstant(o.LatestTrashAt))
}

// POSummary is one row of GET /po.
type POSummary struct {
	ID          int64  `json:"id"`
	FormNo      string `json:"form_no"`
	PODate      string `json:"po_date"`
	ToName      string `json:"to_name"`
	CompanyName string `json:"company_name"`
	ItemsCount  int    `json:"items_count"`
	UpdatedAt   string `json:"updated_at"`
}

// TrashEntry is one row of GET /po/trash.
type TrashEntry struct {
	ID           int64  `json:"id"`
	OriginalPOID int64  `json:"original_po_id"`
	FormNo       string `json:"form_no"`
	PODate       string `json:"po_date"`
	ToName       string `json:"to_name"`
	CompanyName  string `json:"company_name"`
	ItemsCount   int    `json:"items_count"`
	DeletedAt    string `json:"deleted_at"`
}

// Document is a full PO as returned by GET /po/{id}. The body sections are
// kept opaque; the client only reconciles on ID and UpdatedAt.
type Document struct {
	ID          int64             `json:"id"`
	UpdatedAt   string            `json:"updated_at"`
	Fields      map[string]string `json:"fields,omitempty"`
	Items       []json.RawMessage `json:"items,omitempty"`
	Signatures  json.RawMessage   `json:"signatures,omitempty"`
	ReportStyle json.RawMessage   `json:"reportStyle,omitempty"`
}

// FormNo returns the form number stored in the document fields.
func (d *Document) FormNo() string {
	if d == nil {
		return ""
	}
	return d.Fields["formNo"]
}

// OpenRecord describes the document currently open in the editor. A zero ID
// means a blank draft.
type OpenRecord struct {
	ID        int64
	UpdatedAt string
	Dirty     bool
}

// IsDraft reports whether no persisted document is open.
func (r OpenRecord) IsDraft() bool { return r.ID == 0 }

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseInstant parses the timestamp formats the backend emits. Unknown or
// empty values yield the zero time.
func ParseInstant(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// SameInstant reports whether two timestamps denote the same instant. Values
// that do not parse fall back to a plain string comparison.
func SameInstant(a, b string) bool {
	ta, tb := ParseInstant(a), ParseInstant(b)
	if ta.IsZero() || tb.IsZero() {
		return strings.TrimSpace(a) == strings.TrimSpace(b)
	}
	return ta.Equal(tb)
}
