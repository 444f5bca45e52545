package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/hyperdb/internal/atom"
	"github.com/roach88/hyperdb/internal/store"
)

// CreateNodeRequest is the body of POST /api/nodes.
type CreateNodeRequest struct {
	Type   string         `json:"type"`
	Name   string         `json:"name"`
	Fields map[string]any `json:"fields,omitempty"`
}

// CreateLinkRequest is the body of POST /api/links. Targets are nested
// descriptions; Toplevel defaults to true.
type CreateLinkRequest struct {
	Type     string         `json:"type"`
	Targets  []atom.Desc    `json:"targets"`
	Toplevel *bool          `json:"toplevel,omitempty"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// AtomResponse wraps a stored atom with its kind.
type AtomResponse struct {
	Kind atom.Kind `json:"kind"`
	Atom atom.Atom `json:"atom"`
}

// MatchLinksRequest is the body of POST /api/query/links.
type MatchLinksRequest struct {
	LinkType     string   `json:"link_type"`
	Targets      []string `json:"targets"`
	ToplevelOnly bool     `json:"toplevel_only"`
}

// MatchTemplateRequest is the body of POST /api/query/template.
type MatchTemplateRequest struct {
	Template     atom.Template `json:"template"`
	ToplevelOnly bool          `json:"toplevel_only"`
}

// CountResponse is returned by GET /api/count.
type CountResponse struct {
	Nodes int `json:"nodes"`
	Links int `json:"links"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

// HealthCheck handles GET /health
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateNode handles POST /api/nodes
func (s *Server) CreateNode(w http.ResponseWriter, r *http.Request) {
	var req CreateNodeRequest
	if !decode(w, r, &req) {
		return
	}

	n, err := s.store.AddNode(r.Context(), req.Type, req.Name, req.Fields)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, AtomResponse{Kind: n.Kind(), Atom: n})
}

// ListNodes handles GET /api/nodes?type=T&names=bool
func (s *Server) ListNodes(w http.ResponseWriter, r *http.Request) {
	nodeType := r.URL.Query().Get("type")
	if nodeType == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "type query parameter is required"})
		return
	}
	names, ok := boolParam(w, r, "names")
	if !ok {
		return
	}

	out, err := s.store.GetAllNodes(r.Context(), nodeType, names)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateLink handles POST /api/links
func (s *Server) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req CreateLinkRequest
	if !decode(w, r, &req) {
		return
	}
	toplevel := true
	if req.Toplevel != nil {
		toplevel = *req.Toplevel
	}

	l, err := s.store.AddLink(r.Context(), req.Type, req.Targets, toplevel, req.Fields)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, AtomResponse{Kind: l.Kind(), Atom: l})
}

// GetAtom handles GET /api/atoms/{handle}
func (s *Server) GetAtom(w http.ResponseWriter, r *http.Request) {
	a, err := s.store.GetAtom(r.Context(), chi.URLParam(r, "handle"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AtomResponse{Kind: a.Kind(), Atom: a})
}

// GetIncoming handles GET /api/atoms/{handle}/incoming
func (s *Server) GetIncoming(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.GetIncoming(r.Context(), chi.URLParam(r, "handle")))
}

// MatchLinks handles POST /api/query/links
func (s *Server) MatchLinks(w http.ResponseWriter, r *http.Request) {
	var req MatchLinksRequest
	if !decode(w, r, &req) {
		return
	}
	if req.LinkType == "" || len(req.Targets) == 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "link_type and targets are required"})
		return
	}

	matches, err := s.store.GetMatchedLinks(r.Context(), req.LinkType, req.Targets, store.QueryOptions{ToplevelOnly: req.ToplevelOnly})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

// MatchTemplate handles POST /api/query/template
func (s *Server) MatchTemplate(w http.ResponseWriter, r *http.Request) {
	var req MatchTemplateRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Template.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	matches, err := s.store.GetMatchedTypeTemplate(r.Context(), req.Template, store.QueryOptions{ToplevelOnly: req.ToplevelOnly})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

// MatchType handles GET /api/query/type/{type}?toplevel_only=bool
func (s *Server) MatchType(w http.ResponseWriter, r *http.Request) {
	toplevelOnly, ok := boolParam(w, r, "toplevel_only")
	if !ok {
		return
	}

	matches, err := s.store.GetMatchedType(r.Context(), chi.URLParam(r, "type"), store.QueryOptions{ToplevelOnly: toplevelOnly})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

// Count handles GET /api/count
func (s *Server) Count(w http.ResponseWriter, r *http.Request) {
	nodes, links, err := s.store.CountAtoms(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Nodes: nodes, Links: links})
}

// Commit handles POST /api/commit
func (s *Server) Commit(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Commit(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Clear handles DELETE /api/atoms
func (s *Server) Clear(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Clear(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func boolParam(w http.ResponseWriter, r *http.Request, name string) (bool, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: name + ": " + err.Error()})
		return false, false
	}
	return v, true
}

// writeError maps lookup misses to 404 and malformed input to 400.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case atom.IsNotFound(err):
		status = http.StatusNotFound
	case atom.IsInvalidInput(err):
		status = http.StatusBadRequest
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, ErrorResponse{Code: string(atom.CodeOf(err)), Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
