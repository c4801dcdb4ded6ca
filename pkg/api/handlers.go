package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"anonboard/pkg/anchors"
	"anonboard/pkg/models"
	"anonboard/pkg/utils"
)

// threadPage is the standard paginated thread listing shape.
type threadPage struct {
	Threads  []models.Thread `json:"threads"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// postView is a post as rendered inside a thread: position-numbered, with
// its anchors resolved. Deleted posts keep their slot but lose their body.
type postView struct {
	models.Post
	Position int           `json:"position"`
	Refs     []anchors.Ref `json:"refs,omitempty"`
}

func (s *Server) handleListBoards(w http.ResponseWriter, _ *http.Request) {
	boards, err := s.svc.ListBoards()
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"boards": boards})
}

func (s *Server) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	board, err := s.svc.GetBoard(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	page, size := pageParams(r)
	threads, total, err := s.svc.BoardThreads(id, page, size)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{
		"board":   board,
		"listing": threadPage{Threads: threads, Total: total, Page: page, PageSize: size},
	})
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	thread, posts, err := s.svc.ViewThread(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	views := make([]postView, 0, len(posts))
	for i, p := range posts {
		pv := postView{Post: p, Position: i + 1}
		if p.Status == models.PostDeleted {
			// The slot stays so later anchors keep pointing at the right
			// positions.
			pv.Content = ""
		} else {
			pv.Refs = anchors.ResolveContent(p.Content, posts)
		}
		views = append(views, pv)
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{
		"thread": thread,
		"posts":  views,
	})
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	page, size := pageParams(r)
	threads, total, err := s.svc.ArchivedThreads(page, size)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, threadPage{Threads: threads, Total: total, Page: page, PageSize: size})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	threads, err := s.svc.Search(r.URL.Query().Get("q"))
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"threads": threads})
}

func pageParams(r *http.Request) (page, size int) {
	page, size = 1, 20
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("page_size")); err == nil && v > 0 && v <= 100 {
		size = v
	}
	return page, size
}
