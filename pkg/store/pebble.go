package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"anonboard/pkg/logger"
	"anonboard/pkg/models"
)

// Key layout:
//
//	board:<boardID>:meta                      -> Board JSON
//	board:<boardID>:thread:<threadID>         -> threadID (listing index)
//	thread:<threadID>:meta                    -> Thread JSON
//	thread:<threadID>:post:<ns_padded>-<seq>  -> Post JSON
//	postidx:<postID>                          -> post entry key
//	ratelimit:<key>                           -> RateLimitRecord JSON
//	report:<reportID>:meta                    -> Report JSON
//
// Post entry keys sort by creation timestamp, so a prefix scan yields the
// thread in anchor order.
type PebbleStore struct {
	db *pebble.DB
	// mu serializes thread accounting so concurrent appends never lose a
	// counter increment.
	mu  sync.Mutex
	seq uint64
}

// Open opens (or creates) a Pebble database at the given path.
func Open(path string) (*PebbleStore, error) {
	logger.Info("opening_pebble_db", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

// Metrics exposes the underlying engine counters for the stats poller.
func (s *PebbleStore) Metrics() *pebble.Metrics {
	if s.db == nil {
		return nil
	}
	return s.db.Metrics()
}

func (s *PebbleStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	logger.Info("pebble_closed")
	return err
}

func boardKey(id string) []byte    { return []byte("board:" + id + ":meta") }
func threadKey(id string) []byte   { return []byte("thread:" + id + ":meta") }
func postIdxKey(id string) []byte  { return []byte("postidx:" + id) }
func rateKey(key string) []byte    { return []byte("ratelimit:" + key) }
func reportKey(id string) []byte   { return []byte("report:" + id + ":meta") }
func postPrefix(tid string) []byte { return []byte("thread:" + tid + ":post:") }

func (s *PebbleStore) postKey(threadID string, ts int64) []byte {
	n := atomic.AddUint64(&s.seq, 1)
	return []byte(fmt.Sprintf("thread:%s:post:%020d-%06d", threadID, ts, n%1000000))
}

func (s *PebbleStore) get(key []byte, v any) error {
	b, closer, err := s.db.Get(key)
	if err != nil {
		if err == pebble.ErrNotFound {
			return ErrNotFound
		}
		return err
	}
	defer closer.Close()
	return json.Unmarshal(b, v)
}

func (s *PebbleStore) set(key []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.db.Set(key, b, pebble.Sync)
}

// scanPrefix iterates all values under prefix, invoking fn with each raw
// value. fn returning false stops the scan.
func (s *PebbleStore) scanPrefix(prefix []byte, fn func(key, val []byte) bool) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		k := append([]byte(nil), iter.Key()...)
		v := append([]byte(nil), iter.Value()...)
		if !fn(k, v) {
			break
		}
	}
	return iter.Error()
}

// Boards

func (s *PebbleStore) SaveBoard(b models.Board) error {
	return s.set(boardKey(b.ID), b)
}

func (s *PebbleStore) GetBoard(id string) (models.Board, error) {
	var b models.Board
	err := s.get(boardKey(id), &b)
	return b, err
}

func (s *PebbleStore) ListBoards() ([]models.Board, error) {
	var out []models.Board
	err := s.scanPrefix([]byte("board:"), func(k, v []byte) bool {
		if strings.HasSuffix(string(k), ":meta") {
			var b models.Board
			if json.Unmarshal(v, &b) == nil {
				out = append(out, b)
			}
		}
		return true
	})
	return out, err
}

// Threads

func (s *PebbleStore) CreateThread(t models.Thread, first models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tb, err := json.Marshal(t)
	if err != nil {
		return err
	}
	pb, err := json.Marshal(first)
	if err != nil {
		return err
	}
	pk := s.postKey(t.ID, first.CreatedTS)
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(threadKey(t.ID), tb, nil); err != nil {
		return err
	}
	if err := batch.Set([]byte("board:"+t.Board+":thread:"+t.ID), []byte(t.ID), nil); err != nil {
		return err
	}
	if err := batch.Set(pk, pb, nil); err != nil {
		return err
	}
	if err := batch.Set(postIdxKey(first.ID), pk, nil); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		logger.Error("create_thread_failed", "thread", t.ID, "error", err)
		return err
	}
	logger.Info("thread_created", "thread", t.ID, "board", t.Board)
	return nil
}

func (s *PebbleStore) SaveThread(t models.Thread) error {
	return s.set(threadKey(t.ID), t)
}

func (s *PebbleStore) GetThread(id string) (models.Thread, error) {
	var t models.Thread
	err := s.get(threadKey(id), &t)
	return t, err
}

func (s *PebbleStore) RefreshThreadMeta(id string, momentum int64, status string) (models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var t models.Thread
	if err := s.get(threadKey(id), &t); err != nil {
		return models.Thread{}, err
	}
	t.Momentum = momentum
	if t.Status != models.ThreadFilled && t.Status != models.ThreadDeleted {
		t.Status = status
	}
	if err := s.set(threadKey(id), t); err != nil {
		return models.Thread{}, err
	}
	return t, nil
}

func (s *PebbleStore) IncrementViews(id string) (models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var t models.Thread
	if err := s.get(threadKey(id), &t); err != nil {
		return models.Thread{}, err
	}
	t.Views++
	if err := s.set(threadKey(id), t); err != nil {
		return models.Thread{}, err
	}
	return t, nil
}

func (s *PebbleStore) ListThreadsByBoard(boardID string) ([]models.Thread, error) {
	var ids []string
	if err := s.scanPrefix([]byte("board:"+boardID+":thread:"), func(k, v []byte) bool {
		ids = append(ids, string(v))
		return true
	}); err != nil {
		return nil, err
	}
	out := make([]models.Thread, 0, len(ids))
	for _, id := range ids {
		t, err := s.GetThread(id)
		if err != nil {
			if err == ErrNotFound {
				continue
			}
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *PebbleStore) ListThreads() ([]models.Thread, error) {
	var out []models.Thread
	err := s.scanPrefix([]byte("thread:"), func(k, v []byte) bool {
		if strings.HasSuffix(string(k), ":meta") {
			var t models.Thread
			if json.Unmarshal(v, &t) == nil {
				out = append(out, t)
			}
		}
		return true
	})
	return out, err
}

// Posts

func (s *PebbleStore) AppendPost(p models.Post, momentumDelta int64) (models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var t models.Thread
	if err := s.get(threadKey(p.Thread), &t); err != nil {
		return models.Thread{}, err
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

	pb, err := json.Marshal(p)
	if err != nil {
		return models.Thread{}, err
	}
	tb, err := json.Marshal(t)
	if err != nil {
		return models.Thread{}, err
	}
	pk := s.postKey(p.Thread, p.CreatedTS)
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(pk, pb, nil); err != nil {
		return models.Thread{}, err
	}
	if err := batch.Set(postIdxKey(p.ID), pk, nil); err != nil {
		return models.Thread{}, err
	}
	if err := batch.Set(threadKey(t.ID), tb, nil); err != nil {
		return models.Thread{}, err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		logger.Error("append_post_failed", "thread", p.Thread, "post", p.ID, "error", err)
		return models.Thread{}, err
	}
	return t, nil
}

func (s *PebbleStore) UpdatePost(p models.Post) error {
	var pk []byte
	if err := s.getRaw(postIdxKey(p.ID), &pk); err != nil {
		return err
	}
	return s.set(pk, p)
}

func (s *PebbleStore) getRaw(key []byte, out *[]byte) error {
	b, closer, err := s.db.Get(key)
	if err != nil {
		if err == pebble.ErrNotFound {
			return ErrNotFound
		}
		return err
	}
	defer closer.Close()
	*out = append([]byte(nil), b...)
	return nil
}

func (s *PebbleStore) GetPost(id string) (models.Post, error) {
	var pk []byte
	if err := s.getRaw(postIdxKey(id), &pk); err != nil {
		return models.Post{}, err
	}
	var p models.Post
	err := s.get(pk, &p)
	return p, err
}

func (s *PebbleStore) ListPosts(threadID string) ([]models.Post, error) {
	var out []models.Post
	err := s.scanPrefix(postPrefix(threadID), func(k, v []byte) bool {
		var p models.Post
		if json.Unmarshal(v, &p) == nil {
			out = append(out, p)
		}
		return true
	})
	return out, err
}

func (s *PebbleStore) CountSyntheticPosts(threadID string) (int, error) {
	n := 0
	err := s.scanPrefix(postPrefix(threadID), func(k, v []byte) bool {
		var p models.Post
		if json.Unmarshal(v, &p) == nil && p.IsAIGenerated {
			n++
		}
		return true
	})
	return n, err
}

// Rate limit records

func (s *PebbleStore) GetRateLimit(key string) (models.RateLimitRecord, bool, error) {
	var rec models.RateLimitRecord
	err := s.get(rateKey(key), &rec)
	if err == ErrNotFound {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, err
	}
	return rec, true, nil
}

func (s *PebbleStore) PutRateLimit(rec models.RateLimitRecord) error {
	return s.set(rateKey(rec.Key), rec)
}

// Reports

func (s *PebbleStore) SaveReport(r models.Report) error {
	return s.set(reportKey(r.ID), r)
}

func (s *PebbleStore) GetReport(id string) (models.Report, error) {
	var r models.Report
	err := s.get(reportKey(id), &r)
	return r, err
}

func (s *PebbleStore) ListReports(status string) ([]models.Report, error) {
	var out []models.Report
	err := s.scanPrefix([]byte("report:"), func(k, v []byte) bool {
		if strings.HasSuffix(string(k), ":meta") {
			var r models.Report
			if json.Unmarshal(v, &r) == nil {
				if status == "" || r.Status == status {
					out = append(out, r)
				}
			}
		}
		return true
	})
	return out, err
}
