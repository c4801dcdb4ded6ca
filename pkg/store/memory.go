package store

import (
	"sort"
	"sync"

	"anonboard/pkg/models"
)

// MemStore is an in-memory Store used by tests and local development. It
// mirrors PebbleStore's semantics, including atomic post accounting.
type MemStore struct {
	mu      sync.Mutex
	boards  map[string]models.Board
	threads map[string]models.Thread
	posts   map[string][]models.Post // threadID -> append order
	byID    map[string]string        // postID -> threadID
	rates   map[string]models.RateLimitRecord
	reports map[string]models.Report
}

func NewMemStore() *MemStore {
	return &MemStore{
		boards:  map[string]models.Board{},
		threads: map[string]models.Thread{},
		posts:   map[string][]models.Post{},
		byID:    map[string]string{},
		rates:   map[string]models.RateLimitRecord{},
		reports: map[string]models.Report{},
	}
}

func (s *MemStore) Close() error { return nil }

func (s *MemStore) SaveBoard(b models.Board) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boards[b.ID] = b
	return nil
}

func (s *MemStore) GetBoard(id string) (models.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.boards[id]
	if !ok {
		return models.Board{}, ErrNotFound
	}
	return b, nil
}

func (s *MemStore) ListBoards() ([]models.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Board, 0, len(s.boards))
	for _, b := range s.boards {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) CreateThread(t models.Thread, first models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[t.ID] = t
	s.posts[t.ID] = []models.Post{first}
	s.byID[first.ID] = t.ID
	return nil
}

func (s *MemStore) SaveThread(t models.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[t.ID] = t
	return nil
}

func (s *MemStore) GetThread(id string) (models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	if !ok {
		return models.Thread{}, ErrNotFound
	}
	return t, nil
}

func (s *MemStore) RefreshThreadMeta(id string, momentum int64, status string) (models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	if !ok {
		return models.Thread{}, ErrNotFound
	}
	t.Momentum = momentum
	if t.Status != models.ThreadFilled && t.Status != models.ThreadDeleted {
		t.Status = status
	}
	s.threads[id] = t
	return t, nil
}

func (s *MemStore) IncrementViews(id string) (models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	if !ok {
		return models.Thread{}, ErrNotFound
	}
	t.Views++
	s.threads[id] = t
	return t, nil
}

func (s *MemStore) ListThreadsByBoard(boardID string) ([]models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Thread
	for _, t := range s.threads {
		if t.Board == boardID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedTS < out[j].CreatedTS })
	return out, nil
}

func (s *MemStore) ListThreads() ([]models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Thread, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedTS < out[j].CreatedTS })
	return out, nil
}

func (s *MemStore) AppendPost(p models.Post, momentumDelta int64) (models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[p.Thread]
	if !ok {
		return models.Thread{}, ErrNotFound
	}
	if t.Status == models.ThreadFilled || t.PostCount >= models.MaxPostsPerThread {
		return models.Thread{}, ErrThreadFilled
	}
	t.PostCount++
	t.Momentum += momentumDelta
	if p.CreatedTS > t.LastUpdatedTS {
		t.LastUpdatedTS = p.CreatedTS
	}
	if t.PostCount >= models.MaxPostsPerThread {
		t.Status = models.ThreadFilled
	}
	s.threads[t.ID] = t
	s.posts[t.ID] = append(s.posts[t.ID], p)
	s.byID[p.ID] = t.ID
	return t, nil
}

func (s *MemStore) UpdatePost(p models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tid, ok := s.byID[p.ID]
	if !ok {
		return ErrNotFound
	}
	for i, q := range s.posts[tid] {
		if q.ID == p.ID {
			s.posts[tid][i] = p
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemStore) GetPost(id string) (models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tid, ok := s.byID[id]
	if !ok {
		return models.Post{}, ErrNotFound
	}
	for _, p := range s.posts[tid] {
		if p.ID == id {
			return p, nil
		}
	}
	return models.Post{}, ErrNotFound
}

func (s *MemStore) ListPosts(threadID string) ([]models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.posts[threadID]
	out := make([]models.Post, len(src))
	copy(out, src)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedTS < out[j].CreatedTS })
	return out, nil
}

func (s *MemStore) CountSyntheticPosts(threadID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.posts[threadID] {
		if p.IsAIGenerated {
			n++
		}
	}
	return n, nil
}

func (s *MemStore) GetRateLimit(key string) (models.RateLimitRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rates[key]
	return rec, ok, nil
}

func (s *MemStore) PutRateLimit(rec models.RateLimitRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[rec.Key] = rec
	return nil
}

func (s *MemStore) SaveReport(r models.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[r.ID] = r
	return nil
}

func (s *MemStore) GetReport(id string) (models.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return models.Report{}, ErrNotFound
	}
	return r, nil
}

func (s *MemStore) ListReports(status string) ([]models.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Report
	for _, r := range s.reports {
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedTS > out[j].CreatedTS })
	return out, nil
}
