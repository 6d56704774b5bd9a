package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/hamrelay/internal/command"
	"github.com/nerrad567/hamrelay/internal/history"
	"github.com/nerrad567/hamrelay/internal/relay"
)

// CommandsResponse is the body of GET /commands.
type CommandsResponse struct {
	Commands   []command.Entry         `json:"commands"`
	Count      int                     `json:"count"`
	Duplicates command.DuplicateReport `json:"duplicates"`
}

// DispatchRequest is the body of POST /dispatch.
type DispatchRequest struct {
	Code string `json:"code"`
}

// DispatchResponse reports how a dispatched code was classified.
type DispatchResponse struct {
	Code       string        `json:"code"`
	Recognised bool          `json:"recognised"`
	Class      command.Class `json:"class,omitempty"`
}

// handleListCommands returns the loaded command table and its duplicate report.
func (s *Server) handleListCommands(w http.ResponseWriter, _ *http.Request) {
	entries := s.commands.Entries()
	dups := s.duplicates
	if dups.Duplicates == nil {
		dups.Duplicates = []command.Duplicate{}
	}
	writeJSON(w, http.StatusOK, CommandsResponse{
		Commands:   entries,
		Count:      len(entries),
		Duplicates: dups,
	})
}

// handleGetCommand returns one command table entry. Codes contain '#',
// so clients must percent-encode it ("%23100").
func (s *Server) handleGetCommand(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	entry, ok := s.commands.Lookup(code)
	if !ok {
		writeNotFound(w, "command not found: "+code)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleListPending returns the queries waiting for a response.
func (s *Server) handleListPending(w http.ResponseWriter, _ *http.Request) {
	pending := s.relay.Pending()
	if pending == nil {
		pending = []relay.PendingQuery{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pending": pending,
		"count":   len(pending),
	})
}

// handleListHistory returns recorded relay events, newest first.
//
// Query parameters: kind, code, since (RFC 3339), limit, offset.
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "history is disabled")
		return
	}

	q := r.URL.Query()
	filter := history.Filter{
		Kind: relay.EventKind(q.Get("kind")),
		Code: q.Get("code"),
	}

	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = since
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, name+" must be an integer")
			return
		}
		*dst = n
	}

	result, err := s.history.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing history failed", "error", err)
		writeInternalError(w, "failed to list history")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleDispatch injects a code as if it had been received from the radio.
// The relay's reply goes out on the bus as usual; the response only says
// whether the code was recognised.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	req.Code = strings.TrimSpace(req.Code)
	if req.Code == "" {
		writeBadRequest(w, "code is required")
		return
	}

	resp := DispatchResponse{Code: req.Code}
	if entry, ok := s.commands.Lookup(req.Code); ok {
		resp.Recognised = true
		resp.Class = entry.Class()
	}

	s.logger.Info("dispatch requested via API", "code", req.Code, "recognised", resp.Recognised)
	s.relay.Dispatch(req.Code)

	writeJSON(w, http.StatusAccepted, resp)
}
