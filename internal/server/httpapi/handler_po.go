package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/podesk/internal/server/po"
	"github.com/go-chi/chi/v5"
)

type saveRequest struct {
	ID          *int64            `json:"id" validate:"omitempty,gt=0"`
	Fields      map[string]string `json:"fields" validate:"max=200,dive,keys,max=64,endkeys,max=4000"`
	Items       []json.RawMessage `json:"items" validate:"max=1000"`
	Signatures  json.RawMessage   `json:"signatures"`
	ReportStyle json.RawMessage   `json:"reportStyle"`
}

// idParam parses the {id} route parameter. Anything but a positive integer
// is reported as not found.
func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, po.ErrNotFound
	}
	return id, nil
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.orders.SyncStatus(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	rows, err := s.orders.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleListTrash(w http.ResponseWriter, r *http.Request) {
	rows, err := s.orders.Trash(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	doc, err := s.orders.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleSaveOrder(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	var id int64
	if req.ID != nil {
		id = *req.ID
	}
	res, err := s.orders.Save(r.Context(), id, po.Payload{
		Fields:      req.Fields,
		Items:       req.Items,
		Signatures:  req.Signatures,
		ReportStyle: req.ReportStyle,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	trashID, err := s.orders.Delete(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info(r.Context(), "po moved to trash", "by", userFrom(r.Context()), "id", id)
	writeJSON(w, http.StatusOK, okResponse{OK: true, TrashedID: trashID})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	trashID, err := idParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := s.orders.Restore(r.Context(), trashID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true, ID: id})
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	trashID, err := idParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.orders.Purge(r.Context(), trashID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}
