// Package web is the HTTP control surface of the capture supervisor.
package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/steveyegge/authcap/internal/capture"
	"github.com/steveyegge/authcap/internal/supervisor"
)

// Controller is the supervisor as seen by the control surface.
type Controller interface {
	Start(mode capture.Mode, targetIndex *int) supervisor.Result
	Continue() supervisor.Result
	Cancel() supervisor.Result
	Status() supervisor.Status
}

// SourceTable reports and selects the loaded credentials.
type SourceTable interface {
	Indices() []int
	Current() (int, bool)
	Switch(index int) error
	Next() (int, error)
}

// StartRequest is the JSON body of POST /api/setup-auth/start.
// TargetIndex accepts a number or a numeric string.
type StartRequest struct {
	Mode        string          `json:"mode"`
	TargetIndex json.RawMessage `json:"targetIndex,omitempty"`
}

// SwitchRequest is the JSON body of POST /api/auth/sources/switch.
// Without an index the next loaded credential is selected.
type SwitchRequest struct {
	Index json.RawMessage `json:"index,omitempty"`
}

// SourcesResponse is the JSON response of the /api/auth/sources endpoints.
type SourcesResponse struct {
	Indices []int  `json:"indices"`
	Current *int   `json:"current"`
	Error   string `json:"error,omitempty"`
}

// Handler routes /api requests.
type Handler struct {
	ctrl    Controller
	sources SourceTable
	hub     *Hub
}

// NewHandler creates the API handler. sources and hub may be nil.
func NewHandler(ctrl Controller, sources SourceTable, hub *Hub) *Handler {
	return &Handler{ctrl: ctrl, sources: sources, hub: hub}
}

// ServeHTTP routes API requests to the appropriate handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api")
	switch {
	case path == "/setup-auth/start" && r.Method == http.MethodPost:
		h.handleStart(w, r)
	case path == "/setup-auth/continue" && r.Method == http.MethodPost:
		writeResult(w, h.ctrl.Continue())
	case path == "/setup-auth/cancel" && r.Method == http.MethodPost:
		writeResult(w, h.ctrl.Cancel())
	case path == "/setup-auth/status" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, h.ctrl.Status())
	case path == "/setup-auth/ws" && r.Method == http.MethodGet && h.hub != nil:
		h.hub.ServeWS(w, r, h.ctrl.Status)
	case path == "/auth/sources" && r.Method == http.MethodGet && h.sources != nil:
		writeJSON(w, http.StatusOK, h.sourcesResponse())
	case path == "/auth/sources/switch" && r.Method == http.MethodPost && h.sources != nil:
		h.handleSwitch(w, r)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	mode := capture.ParseMode(req.Mode)
	var target *int
	if mode == capture.ModeRelogin {
		idx, ok := parseTargetIndex(req.TargetIndex)
		if !ok {
			writeResult(w, supervisor.Result{
				Status:  http.StatusBadRequest,
				Message: supervisor.MsgInvalidIndex,
			})
			return
		}
		target = idx
	}
	writeResult(w, h.ctrl.Start(mode, target))
}

// parseTargetIndex decodes a JSON number or numeric string. A missing value
// is returned as nil and left to the supervisor to reject.
func parseTargetIndex(raw json.RawMessage) (*int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, true
	}
	var text string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, false
		}
		text = strings.TrimSpace(text)
	} else {
		text = string(raw)
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return nil, false
	}
	return &n, true
}

func (h *Handler) handleSwitch(w http.ResponseWriter, r *http.Request) {
	var req SwitchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	idx, ok := parseTargetIndex(req.Index)
	if !ok || (idx != nil && *idx < 0) {
		writeError(w, "Invalid index", http.StatusBadRequest)
		return
	}

	var err error
	if idx == nil {
		_, err = h.sources.Next()
	} else {
		err = h.sources.Switch(*idx)
	}
	resp := h.sourcesResponse()
	if err != nil {
		resp.Error = err.Error()
		writeJSON(w, http.StatusConflict, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) sourcesResponse() SourcesResponse {
	resp := SourcesResponse{Indices: h.sources.Indices()}
	if resp.Indices == nil {
		resp.Indices = []int{}
	}
	if current, ok := h.sources.Current(); ok {
		resp.Current = &current
	}
	return resp
}
