package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type registerOptionsRequest struct {
	Username  string `json:"username" validate:"max=64"`
	SetupCode string `json:"setup_code" validate:"max=256"`
}

type loginOptionsRequest struct {
	Username string `json:"username" validate:"max=64"`
}

type codeLoginRequest struct {
	Username   string `json:"username" validate:"max=64"`
	AccessCode string `json:"access_code" validate:"max=256"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.auth.Status(r.Context(), sessionID(r.Context())))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.auth.Logout(r.Context(), sessionID(r.Context()))
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) handleRegisterOptions(w http.ResponseWriter, r *http.Request) {
	var req registerOptionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	opts, err := s.auth.RegisterOptions(r.Context(), sessionID(r.Context()), clientFrom(r), req.Username, req.SetupCode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

func (s *Server) handleRegisterVerify(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.auth.RegisterVerify(r.Context(), sessionID(r.Context()), body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleLoginOptions(w http.ResponseWriter, r *http.Request) {
	var req loginOptionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	opts, err := s.auth.LoginOptions(r.Context(), sessionID(r.Context()), req.Username)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

func (s *Server) handleLoginVerify(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.auth.LoginVerify(r.Context(), sessionID(r.Context()), clientFrom(r), body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleLoginCode(w http.ResponseWriter, r *http.Request) {
	var req codeLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.auth.LoginWithCode(r.Context(), sessionID(r.Context()), clientFrom(r), req.Username, req.AccessCode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.auth.Pending(r.Context(), sessionID(r.Context())))
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	rows, err := s.auth.ListRequests(r.Context(), sessionID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": rows})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	res, err := s.auth.Decide(r.Context(), sessionID(r.Context()), chi.URLParam(r, "id"), true, "")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.auth.Decide(r.Context(), sessionID(r.Context()), chi.URLParam(r, "id"), false, req.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
