package bbs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"anonboard/pkg/config"
	"anonboard/pkg/models"
	"anonboard/pkg/ratelimit"
	"anonboard/pkg/store"
)

type schedulerSpy struct {
	initial   []string
	maybe     []string
	milestone []int
}

func (s *schedulerSpy) GenerateInitialReplies(_ context.Context, threadID, _, _, _ string) error {
	s.initial = append(s.initial, threadID)
	return nil
}

func (s *schedulerSpy) MaybeReplyToHumanPost(_ context.Context, threadID, _ string, _ bool) error {
	s.maybe = append(s.maybe, threadID)
	return nil
}

func (s *schedulerSpy) MaybeSummarize(_ context.Context, _ string, postCount int) error {
	s.milestone = append(s.milestone, postCount)
	return nil
}

type fixture struct {
	st    *store.MemStore
	svc   *Service
	spy   *schedulerSpy
	clock *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemStore()
	if err := st.SaveBoard(models.Board{ID: "b1", Name: "Board", Status: models.BoardActive}); err != nil {
		t.Fatal(err)
	}
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	nowFn := func() time.Time { return *clock }

	spy := &schedulerSpy{}
	svc := NewService(Params{
		Store:   st,
		Limiter: ratelimit.NewWithClock(st, nowFn),
		Limits: config.LimitsConfig{
			Post:         config.ActionLimit{Limit: 1, Window: config.Duration(5 * time.Second)},
			Thread:       config.ActionLimit{Limit: 1, Window: config.Duration(time.Minute)},
			Report:       config.ActionLimit{Limit: 1, Window: config.Duration(10 * time.Second)},
			Generate:     config.ActionLimit{Limit: 1, Window: config.Duration(time.Minute)},
			MaxPostBytes: 1024,
			MaxTitleLen:  40,
		},
		Scheduler:    spy,
		IdentitySalt: "test-salt",
	}).WithClock(nowFn)
	return &fixture{st: st, svc: svc, spy: spy, clock: clock}
}

func (f *fixture) advance(d time.Duration) { *f.clock = f.clock.Add(d) }

func TestCreateThreadPersistsThreadWithFirstPost(t *testing.T) {
	f := newFixture(t)
	th, err := f.svc.CreateThread(NewThread{Board: "b1", Title: "hello world", Content: "first!", IP: "1.2.3.4"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if th.PostCount != 1 || th.Momentum != 100 || th.Status != models.ThreadActive {
		t.Fatalf("thread = %+v", th)
	}
	posts, _ := f.st.ListPosts(th.ID)
	if len(posts) != 1 || posts[0].Content != "first!" {
		t.Fatalf("posts = %+v", posts)
	}
	if posts[0].UserID == "" || strings.HasPrefix(posts[0].UserID, "AI_") {
		t.Fatalf("human first post got user id %q", posts[0].UserID)
	}
	if len(f.spy.initial) != 1 || f.spy.initial[0] != th.ID {
		t.Fatalf("initial replies dispatched for %v", f.spy.initial)
	}
}

func TestCreateThreadValidation(t *testing.T) {
	f := newFixture(t)
	cases := []NewThread{
		{Board: "b1", Title: "", Content: "body", IP: "1.1.1.1"},
		{Board: "b1", Title: strings.Repeat("x", 41), Content: "body", IP: "1.1.1.1"},
		{Board: "b1", Title: "ok", Content: "   ", IP: "1.1.1.1"},
		{Board: "b1", Title: "ok", Content: strings.Repeat("y", 2048), IP: "1.1.1.1"},
	}
	for i, nt := range cases {
		if _, err := f.svc.CreateThread(nt); !errors.Is(err, ErrValidation) {
			t.Errorf("case %d: err = %v, want ErrValidation", i, err)
		}
	}
	if len(f.spy.initial) != 0 {
		t.Fatal("rejected creates must not dispatch replies")
	}
}

func TestCreateThreadRateLimited(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.CreateThread(NewThread{Board: "b1", Title: "one", Content: "x", IP: "1.2.3.4"}); err != nil {
		t.Fatal(err)
	}
	_, err := f.svc.CreateThread(NewThread{Board: "b1", Title: "two", Content: "x", IP: "1.2.3.4"})
	if !errors.Is(err, ratelimit.ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	// other clients are unaffected
	if _, err := f.svc.CreateThread(NewThread{Board: "b1", Title: "three", Content: "x", IP: "5.6.7.8"}); err != nil {
		t.Fatalf("other ip: %v", err)
	}
	// window expiry clears the budget
	f.advance(61 * time.Second)
	if _, err := f.svc.CreateThread(NewThread{Board: "b1", Title: "four", Content: "x", IP: "1.2.3.4"}); err != nil {
		t.Fatalf("after window: %v", err)
	}
}

func TestCreateThreadOnLockedBoard(t *testing.T) {
	f := newFixture(t)
	if err := f.st.SaveBoard(models.Board{ID: "b1", Name: "Board", Status: models.BoardLocked}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.CreateThread(NewThread{Board: "b1", Title: "t", Content: "x", IP: "1.1.1.1"}); !errors.Is(err, ErrBoardLocked) {
		t.Fatalf("err = %v, want ErrBoardLocked", err)
	}
}

func TestSyntheticCreateSkipsRateGate(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		th, err := f.svc.CreateThread(NewThread{Board: "b1", Title: fmt.Sprintf("gen %d", i), Content: "seeded", Synthetic: true, SourceURL: fmt.Sprintf("https://example.com/%d", i)})
		if err != nil {
			t.Fatalf("synthetic create %d: %v", i, err)
		}
		if !th.IsAIGenerated || th.SourceURL == "" {
			t.Fatalf("thread = %+v", th)
		}
		posts, _ := f.st.ListPosts(th.ID)
		if !strings.HasPrefix(posts[0].UserID, "AI_") {
			t.Fatalf("synthetic first post user id %q", posts[0].UserID)
		}
	}
}

func TestAddPostAccountingAndDispatch(t *testing.T) {
	f := newFixture(t)
	th, err := f.svc.CreateThread(NewThread{Board: "b1", Title: "thread", Content: "op", IP: "1.2.3.4"})
	if err != nil {
		t.Fatal(err)
	}
	f.advance(10 * time.Second)
	updated, post, err := f.svc.AddPost(th.ID, "a reply", "9.9.9.9")
	if err != nil {
		t.Fatalf("add post: %v", err)
	}
	if updated.PostCount != 2 {
		t.Fatalf("postCount = %d", updated.PostCount)
	}
	if updated.Momentum != 110 {
		t.Fatalf("momentum = %d, want write-time bump to 110", updated.Momentum)
	}
	if post.IsAIGenerated {
		t.Fatal("human post marked synthetic")
	}
	if len(f.spy.maybe) != 1 {
		t.Fatalf("reply hook dispatched %d times", len(f.spy.maybe))
	}
	if len(f.spy.milestone) != 1 || f.spy.milestone[0] != 2 {
		t.Fatalf("milestone hook = %v", f.spy.milestone)
	}
}

func TestAddPostToFilledThread(t *testing.T) {
	f := newFixture(t)
	th, _ := f.svc.CreateThread(NewThread{Board: "b1", Title: "thread", Content: "op", IP: "1.2.3.4"})
	full, _ := f.st.GetThread(th.ID)
	full.Status = models.ThreadFilled
	if err := f.st.SaveThread(full); err != nil {
		t.Fatal(err)
	}
	f.advance(10 * time.Second)
	if _, _, err := f.svc.AddPost(th.ID, "too late", "9.9.9.9"); !errors.Is(err, store.ErrThreadFilled) {
		t.Fatalf("err = %v, want ErrThreadFilled", err)
	}
}

func TestAddPostToDeletedThreadIsNotFound(t *testing.T) {
	f := newFixture(t)
	th, _ := f.svc.CreateThread(NewThread{Board: "b1", Title: "thread", Content: "op", IP: "1.2.3.4"})
	gone, _ := f.st.GetThread(th.ID)
	gone.Status = models.ThreadDeleted
	if err := f.st.SaveThread(gone); err != nil {
		t.Fatal(err)
	}
	if _, _, err := f.svc.AddPost(th.ID, "hello?", "9.9.9.9"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestBoardThreadsRefreshesLifecycle(t *testing.T) {
	f := newFixture(t)
	th, _ := f.svc.CreateThread(NewThread{Board: "b1", Title: "stillborn", Content: "op", IP: "1.2.3.4"})

	// a day later with one post the thread is culled out of the listing
	f.advance(25 * time.Hour)
	live, total, err := f.svc.BoardThreads("b1", 1, 20)
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 || len(live) != 0 {
		t.Fatalf("live listing = %d threads", len(live))
	}
	stored, _ := f.st.GetThread(th.ID)
	if stored.Status != models.ThreadArchived {
		t.Fatalf("status = %s, refresh should write back", stored.Status)
	}

	archived, _, err := f.svc.ArchivedThreads(1, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(archived) != 1 || archived[0].ID != th.ID {
		t.Fatalf("archive = %+v", archived)
	}
}

func TestListingMomentumIsCanonical(t *testing.T) {
	f := newFixture(t)
	th, _ := f.svc.CreateThread(NewThread{Board: "b1", Title: "thread", Content: "op", IP: "1.2.3.4"})
	for i := 0; i < 9; i++ {
		if _, _, err := f.svc.AddPost(th.ID, "reply", fmt.Sprintf("9.9.9.%d", i)); err != nil {
			t.Fatalf("post %d: %v", i, err)
		}
	}
	// half a day in, 10 posts: canonical momentum floor(10/0.5) = 20
	f.advance(12 * time.Hour)
	live, _, err := f.svc.BoardThreads("b1", 1, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(live) != 1 {
		t.Fatalf("listing = %d", len(live))
	}
	if live[0].Momentum != 20 {
		t.Fatalf("momentum = %d, want canonical 20", live[0].Momentum)
	}
}

func TestSearchTitlesAndBodies(t *testing.T) {
	f := newFixture(t)
	a, _ := f.svc.CreateThread(NewThread{Board: "b1", Title: "Mechanical keyboards", Content: "op", IP: "1.1.1.1"})
	b, _ := f.svc.CreateThread(NewThread{Board: "b1", Title: "unrelated", Content: "I prefer KEYBOARD shortcuts", IP: "2.2.2.2"})
	if _, err := f.svc.CreateThread(NewThread{Board: "b1", Title: "noise", Content: "nothing here", IP: "3.3.3.3"}); err != nil {
		t.Fatal(err)
	}

	got, err := f.svc.Search("keyboard")
	if err != nil {
		t.Fatal(err)
	}
	found := map[string]bool{}
	for _, th := range got {
		found[th.ID] = true
	}
	if !found[a.ID] || !found[b.ID] || len(got) != 2 {
		t.Fatalf("search results = %+v", got)
	}

	if _, err := f.svc.Search("  "); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty query err = %v", err)
	}
}

func TestViewThreadBumpsViewsAndKeepsDeletedSlots(t *testing.T) {
	f := newFixture(t)
	th, _ := f.svc.CreateThread(NewThread{Board: "b1", Title: "thread", Content: "op", IP: "1.2.3.4"})
	f.advance(10 * time.Second)
	_, p2, err := f.svc.AddPost(th.ID, "will be removed", "9.9.9.9")
	if err != nil {
		t.Fatal(err)
	}
	f.advance(10 * time.Second)
	if _, _, err := f.svc.AddPost(th.ID, "see >>2", "8.8.8.8"); err != nil {
		t.Fatal(err)
	}

	p2.Status = models.PostDeleted
	if err := f.st.UpdatePost(p2); err != nil {
		t.Fatal(err)
	}

	got, posts, err := f.svc.ViewThread(th.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Views != 1 {
		t.Fatalf("views = %d", got.Views)
	}
	if len(posts) != 3 {
		t.Fatalf("posts = %d, deleted slot must remain", len(posts))
	}
	if posts[1].Status != models.PostDeleted {
		t.Fatal("slot 2 should be the deleted post")
	}
	if got.PostCount != 3 {
		t.Fatalf("postCount = %d, never decremented", got.PostCount)
	}
}

func TestSubmitReportHashesReporter(t *testing.T) {
	f := newFixture(t)
	th, _ := f.svc.CreateThread(NewThread{Board: "b1", Title: "thread", Content: "op", IP: "1.2.3.4"})
	posts, _ := f.st.ListPosts(th.ID)

	rep, err := f.svc.SubmitReport(posts[0].ID, "spam", "it is spam", "203.0.113.9")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if rep.Status != models.ReportPending {
		t.Fatalf("status = %s", rep.Status)
	}
	if rep.ReporterIP == "203.0.113.9" || strings.Contains(rep.ReporterIP, "203") {
		t.Fatalf("reporter ip stored raw: %q", rep.ReporterIP)
	}
	if _, err := f.svc.SubmitReport(posts[0].ID, "again", "", "203.0.113.9"); !errors.Is(err, ratelimit.ErrRateLimited) {
		t.Fatalf("second report err = %v", err)
	}
	if _, err := f.svc.SubmitReport("missing", "spam", "", "7.7.7.7"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing post err = %v", err)
	}
}

func TestDiscoverExcludesVisible(t *testing.T) {
	f := newFixture(t)
	var ids []string
	for i := 0; i < 5; i++ {
		th, err := f.svc.CreateThread(NewThread{Board: "b1", Title: fmt.Sprintf("thread %d", i), Content: "op", IP: fmt.Sprintf("1.1.1.%d", i)})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, th.ID)
	}
	got, err := f.svc.Discover(ids[:2], []string{"b1"})
	if err != nil {
		t.Fatal(err)
	}
	for _, th := range got {
		if th.ID == ids[0] || th.ID == ids[1] {
			t.Fatalf("excluded thread %s returned", th.ID)
		}
	}
	if len(got) != 3 {
		t.Fatalf("got %d threads, want 3", len(got))
	}
}

// racingStore lands a write right after a snapshot read, in the window
// before the caller's write-back.
type racingStore struct {
	store.Store
	afterList func()
	afterGet  func()
}

func (r *racingStore) ListThreadsByBoard(boardID string) ([]models.Thread, error) {
	out, err := r.Store.ListThreadsByBoard(boardID)
	if fn := r.afterList; fn != nil {
		r.afterList = nil
		fn()
	}
	return out, err
}

func (r *racingStore) GetThread(id string) (models.Thread, error) {
	out, err := r.Store.GetThread(id)
	if fn := r.afterGet; fn != nil {
		r.afterGet = nil
		fn()
	}
	return out, err
}

func TestListingWritebackKeepsConcurrentAppend(t *testing.T) {
	st := store.NewMemStore()
	if err := st.SaveBoard(models.Board{ID: "b1", Name: "Board", Status: models.BoardActive}); err != nil {
		t.Fatal(err)
	}
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	rs := &racingStore{Store: st}
	svc := NewService(Params{Store: rs, IdentitySalt: "s"}).WithClock(func() time.Time { return *clock })

	th, err := svc.CreateThread(NewThread{Board: "b1", Title: "racy", Content: "op", IP: "1.1.1.1"})
	if err != nil {
		t.Fatal(err)
	}
	*clock = clock.Add(12 * time.Hour)
	post := models.Post{ID: "p-mid", Thread: th.ID, Content: "mid-listing", CreatedTS: clock.UnixNano(), Status: models.PostActive}
	rs.afterList = func() {
		if _, err := st.AppendPost(post, 10); err != nil {
			t.Errorf("append: %v", err)
		}
	}

	if _, _, err := svc.BoardThreads("b1", 1, 20); err != nil {
		t.Fatal(err)
	}
	got, err := st.GetThread(th.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.PostCount != 2 {
		t.Fatalf("postCount = %d, want 2 (append must survive the listing write-back)", got.PostCount)
	}
	if got.LastUpdatedTS != post.CreatedTS {
		t.Fatalf("lastUpdated rolled back to %d", got.LastUpdatedTS)
	}
}

func TestViewThreadKeepsConcurrentAppend(t *testing.T) {
	st := store.NewMemStore()
	if err := st.SaveBoard(models.Board{ID: "b1", Name: "Board", Status: models.BoardActive}); err != nil {
		t.Fatal(err)
	}
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	rs := &racingStore{Store: st}
	svc := NewService(Params{Store: rs, IdentitySalt: "s"}).WithClock(func() time.Time { return *clock })

	th, err := svc.CreateThread(NewThread{Board: "b1", Title: "racy", Content: "op", IP: "1.1.1.1"})
	if err != nil {
		t.Fatal(err)
	}
	*clock = clock.Add(12 * time.Hour)
	post := models.Post{ID: "p-mid", Thread: th.ID, Content: "mid-view", CreatedTS: clock.UnixNano(), Status: models.PostActive}
	rs.afterGet = func() {
		if _, err := st.AppendPost(post, 10); err != nil {
			t.Errorf("append: %v", err)
		}
	}

	viewed, _, err := svc.ViewThread(th.ID)
	if err != nil {
		t.Fatal(err)
	}
	if viewed.Views != 1 {
		t.Fatalf("views = %d, want 1", viewed.Views)
	}
	if viewed.PostCount != 2 {
		t.Fatalf("postCount = %d, want 2 (append must survive the view bump)", viewed.PostCount)
	}
}

func TestDiscoverConcurrentRequests(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		if _, err := f.svc.CreateThread(NewThread{Board: "b1", Title: fmt.Sprintf("thread %d", i), Content: "op", IP: fmt.Sprintf("2.2.2.%d", i)}); err != nil {
			t.Fatal(err)
		}
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := f.svc.Discover(nil, []string{"b1"}); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestHasThreadForSource(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.CreateThread(NewThread{Board: "b1", Title: "gen", Content: "x", Synthetic: true, SourceURL: "https://example.com/a"}); err != nil {
		t.Fatal(err)
	}
	if seen, _ := f.svc.HasThreadForSource("https://example.com/a"); !seen {
		t.Fatal("existing source not detected")
	}
	if seen, _ := f.svc.HasThreadForSource("https://example.com/b"); seen {
		t.Fatal("unseen source misdetected")
	}
}
