package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/podesk/internal/server/auth"
	"github.com/dmitrijs2005/podesk/internal/server/po"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 4 << 20

var validate = validator.New()

// errBadRequest wraps malformed or invalid request bodies.
var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error             string `json:"error"`
	Locked            *bool  `json:"locked,omitempty"`
	RetryAfter        int    `json:"retry_after,omitempty"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
	ExistingID        int64  `json:"existing_id,omitempty"`
}

type okResponse struct {
	OK        bool  `json:"ok"`
	ID        int64 `json:"id,omitempty"`
	TrashedID int64 `json:"trashed_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if ae, ok := auth.AsError(err); ok {
		body := errorResponse{Error: ae.Message}
		status := statusForKind(ae.Kind)
		switch {
		case ae.Kind == auth.KindLocked:
			locked := true
			body.Locked = &locked
			body.RetryAfter = ae.RetryAfter
			w.Header().Set("Retry-After", strconv.Itoa(ae.RetryAfter))
		case ae.Remaining != nil:
			locked := false
			body.Locked = &locked
			body.RemainingAttempts = ae.Remaining
		}
		writeJSON(w, status, body)
		return
	}

	var conflict *po.FormNoConflictError
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "Form number already exists", ExistingID: conflict.ExistingID})
	case errors.Is(err, po.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Not found"})
	case errors.Is(err, errBadRequest):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
	}
}

func statusForKind(k auth.Kind) int {
	switch k {
	case auth.KindUnauthorized:
		return http.StatusUnauthorized
	case auth.KindForbidden:
		return http.StatusForbidden
	case auth.KindNotFound:
		return http.StatusNotFound
	case auth.KindConflict:
		return http.StatusConflict
	case auth.KindLocked:
		return http.StatusTooManyRequests
	case auth.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// readBody returns the raw request body, capped at maxBodyBytes.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return b, nil
}

// decodeJSON reads an optional JSON body into dst and validates it. An
// empty body leaves dst at its zero value.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	b, err := readBody(w, r)
	if err != nil {
		return err
	}
	if len(b) > 0 {
		if err := json.Unmarshal(b, dst); err != nil {
			return fmt.Errorf("%w: invalid JSON body", errBadRequest)
		}
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return fmt.Errorf("%w: %s %s", errBadRequest, ve[0].Field(), formatValidationError(ve[0]))
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must have at most %s entries or characters", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
