package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"inkpilot/internal/llm/client"
	"inkpilot/internal/llm/tools"
	"inkpilot/internal/services"
)

// --- Sessions ---

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.svc.Agent.Sessions())
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var opts services.SessionOptions
	if err := decode(r, &opts); err != nil {
		s.fail(w, err)
		return
	}
	info, err := s.svc.Agent.CreateSession(r.Context(), opts)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, info)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.svc.Agent.Session(r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, info)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Agent.Delete(r.PathValue("id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type submitRequest struct {
	Content      string               `json:"content"`
	ContextFiles []client.ContextFile `json:"contextFiles,omitempty"`
	// Wait blocks until the turn finishes instead of returning 202.
	Wait bool `json:"wait,omitempty"`
}

type submitResponse struct {
	State      string `json:"state"`
	RoundTrips int    `json:"roundTrips"`
	Error      string `json:"error,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req submitRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if req.Content == "" {
		s.fail(w, fmt.Errorf("%w: content is required", errBadRequest))
		return
	}
	opts := services.TurnOptions{ContextFiles: req.ContextFiles}

	if !req.Wait {
		if err := s.svc.Agent.Start(r.Context(), id, req.Content, opts); err != nil {
			s.fail(w, err)
			return
		}
		s.jsonResponse(w, http.StatusAccepted, map[string]string{"status": "started"})
		return
	}

	out, err := s.svc.Agent.Submit(r.Context(), id, req.Content, opts)
	if err != nil {
		s.fail(w, err)
		return
	}
	resp := submitResponse{State: string(out.State), RoundTrips: out.RoundTrips}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Agent.Stop(r.PathValue("id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Document ---

type documentResponse struct {
	Path string `json:"path"`
	HTML string `json:"html"`
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	info, err := s.svc.Agent.Session(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	html, err := s.svc.Agent.DocumentHTML(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, documentResponse{Path: info.DocumentPath, HTML: html})
}

func (s *Server) handleOpenDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path    string `json:"path"`
		Content string `json:"content,omitempty"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if req.Path == "" {
		s.fail(w, fmt.Errorf("%w: path is required", errBadRequest))
		return
	}
	info, err := s.svc.Agent.OpenDocument(r.Context(), r.PathValue("id"), req.Path, req.Content)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, info)
}

func (s *Server) handleSaveDocument(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.Agent.SaveDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"result": out})
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	ok, err := s.svc.Agent.Undo(r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]bool{"applied": ok})
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	ok, err := s.svc.Agent.Redo(r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]bool{"applied": ok})
}

func (s *Server) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	sel, err := s.svc.Agent.Selection(r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, sel)
}

func (s *Server) handleSetSelection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From int `json:"from"`
		To   int `json:"to"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	sel, err := s.svc.Agent.Select(r.PathValue("id"), req.From, req.To)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, sel)
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := s.svc.Agent.Comments(r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, comments)
}

// --- Review ---

func (s *Server) handleListChanges(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Agent.Changes(r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, list)
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Agent.Accept(r.Context(), r.PathValue("id"), r.PathValue("change"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, res)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Agent.Reject(r.Context(), r.PathValue("id"), r.PathValue("change"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, res)
}

func (s *Server) handleAcceptAll(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Agent.AcceptAll(r.Context(), r.PathValue("id"))
	if err != nil && res == nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, bulkResponse(res, err))
}

func (s *Server) handleRejectAll(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Agent.RejectAll(r.Context(), r.PathValue("id"))
	if err != nil && res == nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, bulkResponse(res, err))
}

func bulkResponse(res any, err error) map[string]any {
	out := map[string]any{"resolved": res}
	if err != nil {
		out["error"] = err.Error()
	}
	return out
}

func (s *Server) handleHunks(w http.ResponseWriter, r *http.Request) {
	segs, err := s.svc.Agent.Hunks(r.PathValue("id"), r.PathValue("change"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, segs)
}

// --- Models and keys ---

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	groups, err := s.svc.Models.ListModelGroups()
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, groups)
}

func (s *Server) handleSetDefaultModel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key string `json:"key"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	m, err := s.svc.Models.Resolve(req.Key)
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := s.svc.Models.SetDefault(m.Key); err != nil {
		s.fail(w, err)
		return
	}
	m, err = s.svc.Models.GetModel(m.Key)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, m)
}

type enabledRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleSetModelEnabled(w http.ResponseWriter, r *http.Request) {
	var req enabledRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	m, err := s.svc.Models.SetModelEnabled(r.PathValue("key"), req.Enabled)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, m)
}

func (s *Server) handleSetProviderEnabled(w http.ResponseWriter, r *http.Request) {
	var req enabledRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	list, err := s.svc.Models.SetProviderEnabled(r.PathValue("provider"), req.Enabled)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, list)
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.svc.Keys.ListApiKeys()
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, keys)
}

func (s *Server) handleStoreKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIKey string `json:"apiKey"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if req.APIKey == "" {
		s.fail(w, fmt.Errorf("%w: apiKey is required", errBadRequest))
		return
	}
	if err := s.svc.Keys.StoreApiKey(r.PathValue("provider"), []byte(req.APIKey)); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Keys.DeleteApiKey(r.PathValue("provider")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Workspaces ---

func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	ids, err := s.svc.Workspaces.Workspaces(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, ids)
}

func (s *Server) handleWorkspaceTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.svc.Workspaces.Tree(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, tools.Entries(tree, true))
}

// handleWorkspaceHistory is only served by git-backed workspaces.
func (s *Server) handleWorkspaceHistory(w http.ResponseWriter, r *http.Request) {
	git, ok := s.svc.Workspaces.(*services.GitWorkspaceService)
	if !ok {
		s.errorResponse(w, http.StatusNotImplemented, errors.New("workspace history requires the git backend"))
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.fail(w, fmt.Errorf("%w: invalid limit %q", errBadRequest, v))
			return
		}
		limit = n
	}
	commits, err := git.History(r.PathValue("id"), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, commits)
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, tools.All())
}
