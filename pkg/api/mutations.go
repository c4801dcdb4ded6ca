package api

import (
	"context"
	"encoding/json"
	"net/http"

	"anonboard/pkg/bbs"
	"anonboard/pkg/utils"
)

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Board   string `json:"board"`
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	t, err := s.svc.CreateThread(bbs.NewThread{
		Board:   in.Board,
		Title:   in.Title,
		Content: in.Content,
		IP:      utils.ClientIP(r),
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, t)
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	threadID := muxVar(r, "id")
	thread, post, err := s.svc.AddPost(threadID, in.Content, utils.ClientIP(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, map[string]any{
		"post":     post,
		"position": thread.PostCount,
		"thread":   thread,
	})
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ExcludeIDs   []string `json:"exclude_ids"`
		VisitHistory []string `json:"visit_history"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	threads, err := s.svc.Discover(in.ExcludeIDs, in.VisitHistory)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"threads": threads})
}

func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	var in struct {
		PostID string `json:"post_id"`
		Reason string `json:"reason"`
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	rep, err := s.svc.SubmitReport(in.PostID, in.Reason, in.Detail, utils.ClientIP(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, rep)
}

// handleGenerate turns a submitted link into a seeded thread synchronously;
// the client waits for the generation round-trip.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if s.ingester == nil {
		utils.JSONError(w, http.StatusServiceUnavailable, "generation disabled")
		return
	}
	var in struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.URL == "" {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.svc.GateGenerate(utils.ClientIP(r)); err != nil {
		writeErr(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.genTimeout)
	defer cancel()
	t, err := s.ingester.FromURL(ctx, in.URL)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, t)
}
