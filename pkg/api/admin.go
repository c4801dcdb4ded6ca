package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"anonboard/pkg/models"
	"anonboard/pkg/utils"
)

func muxVar(r *http.Request, name string) string { return mux.Vars(r)[name] }

// statusBody is the shared PATCH payload for all moderation endpoints.
type statusBody struct {
	Status string `json:"status"`
}

func decodeStatus(w http.ResponseWriter, r *http.Request) (string, bool) {
	var in statusBody
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Status == "" {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return "", false
	}
	return in.Status, true
}

func (s *Server) handleAdminListReports(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = models.ReportPending
	}
	reports, err := s.svc.ListReports(status)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"reports": reports})
}

func (s *Server) handleAdminReportStatus(w http.ResponseWriter, r *http.Request) {
	status, ok := decodeStatus(w, r)
	if !ok {
		return
	}
	if err := s.mod.SetReportStatus(true, muxVar(r, "id"), status); err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) handleAdminPostStatus(w http.ResponseWriter, r *http.Request) {
	status, ok := decodeStatus(w, r)
	if !ok {
		return
	}
	if err := s.mod.SetPostStatus(true, muxVar(r, "id"), status); err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) handleAdminThreadStatus(w http.ResponseWriter, r *http.Request) {
	status, ok := decodeStatus(w, r)
	if !ok {
		return
	}
	if err := s.mod.SetThreadStatus(true, muxVar(r, "id"), status); err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) handleAdminBoardStatus(w http.ResponseWriter, r *http.Request) {
	status, ok := decodeStatus(w, r)
	if !ok {
		return
	}
	if err := s.mod.SetBoardStatus(true, muxVar(r, "id"), status); err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": status})
}
