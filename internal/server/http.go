package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
)

const maxHTTPBody = 16 << 20

// NewHTTPHandler exposes the server over HTTP: one JSON-RPC message per
// POST /mcp request, plus a health probe.
func NewHTTPHandler(s *Server) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/mcp", s.handleHTTP).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	return r
}

func (s *Server) handleHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxHTTPBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(nil, codeParseError, "reading request body failed"))
		return
	}

	req, errResp := parseRequest(body)
	if errResp != nil {
		writeJSON(w, http.StatusOK, errResp)
		return
	}

	resp := s.Handle(r.Context(), req)
	if resp == nil {
		// Notification: acknowledged with no body.
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "server": s.info.Name})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
