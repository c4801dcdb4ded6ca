package ai

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"anonboard/pkg/cache"
	"anonboard/pkg/models"
	"anonboard/pkg/store"
)

type fakeGen struct {
	out     string
	err     error
	calls   int
	prompts []string
}

func (f *fakeGen) Generate(_ context.Context, prompt string) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	return f.out, f.err
}

type tagRecorder struct{ tags []string }

func (r *tagRecorder) Invalidate(tag string) { r.tags = append(r.tags, tag) }

func repliesJSON(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf(`{"content": "reply %d"}`, i+1)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

var testClock = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func seedThread(t *testing.T, st store.Store) models.Thread {
	t.Helper()
	th := models.Thread{
		ID:            "t1",
		Title:         "test thread",
		Board:         "b1",
		CreatedTS:     testClock.UnixNano(),
		LastUpdatedTS: testClock.UnixNano(),
		PostCount:     1,
		Momentum:      100,
		Status:        models.ThreadActive,
	}
	first := models.Post{ID: "p1", Thread: "t1", Author: "Anonymous", Content: "opening post", CreatedTS: testClock.UnixNano(), Status: models.PostActive}
	if err := st.CreateThread(th, first); err != nil {
		t.Fatalf("seed thread: %v", err)
	}
	return th
}

func newTestScheduler(st store.Store, gen Generator, inv cache.Invalidator, cfg Config) *Scheduler {
	s := NewScheduler(st, gen, inv, cfg)
	s.WithClock(func() time.Time { return testClock })
	s.WithRand(rand.New(rand.NewSource(1)))
	return s
}

func TestGenerateInitialRepliesPostsPacedBatch(t *testing.T) {
	st := store.NewMemStore()
	seedThread(t, st)
	gen := &fakeGen{out: repliesJSON(7)}
	rec := &tagRecorder{}
	s := newTestScheduler(st, gen, rec, Config{InitialRepliesMin: 5, InitialRepliesMax: 5})

	if err := s.GenerateInitialReplies(context.Background(), "t1", "b1", "test thread", "opening post"); err != nil {
		t.Fatalf("generate: %v", err)
	}

	posts, _ := st.ListPosts("t1")
	// 7 replies came back but the drawn count was 5
	if len(posts) != 6 {
		t.Fatalf("got %d posts, want 6", len(posts))
	}
	prev := posts[0].CreatedTS
	for i, p := range posts[1:] {
		if !p.IsAIGenerated {
			t.Fatalf("reply %d not marked synthetic", i+2)
		}
		if !strings.HasPrefix(p.UserID, "AI_") {
			t.Fatalf("reply %d user id %q", i+2, p.UserID)
		}
		gap := time.Duration(p.CreatedTS - prev)
		if i == 0 {
			if gap < 30*time.Second || gap > 60*time.Second {
				t.Fatalf("first reply gap %v outside 30-60s", gap)
			}
		} else if gap < 2*time.Minute || gap > 5*time.Minute {
			t.Fatalf("reply %d gap %v outside 2-5min", i+2, gap)
		}
		prev = p.CreatedTS
	}

	th, _ := st.GetThread("t1")
	if th.PostCount != 6 {
		t.Fatalf("postCount = %d, want 6", th.PostCount)
	}
	if th.Momentum != 100+5*syntheticMomentumDelta {
		t.Fatalf("momentum = %d, want %d", th.Momentum, 100+5*syntheticMomentumDelta)
	}
	if th.LastUpdatedTS != posts[5].CreatedTS {
		t.Fatal("lastUpdated should track the final synthetic reply")
	}
	// one invalidation batch, not one per post
	if len(rec.tags) != 3 {
		t.Fatalf("invalidated %d tags, want 3 (board, all, thread)", len(rec.tags))
	}
}

func TestMaybeReplyIgnoresSyntheticTrigger(t *testing.T) {
	st := store.NewMemStore()
	seedThread(t, st)
	gen := &fakeGen{out: repliesJSON(1)}
	s := newTestScheduler(st, gen, cache.Nop{}, Config{ReplyProbability: 1.0})

	if err := s.MaybeReplyToHumanPost(context.Background(), "t1", "b1", true); err != nil {
		t.Fatalf("maybe reply: %v", err)
	}
	if gen.calls != 0 {
		t.Fatal("synthetic trigger must never reach the generator")
	}
}

func TestMaybeReplySkipsOnProbability(t *testing.T) {
	st := store.NewMemStore()
	seedThread(t, st)
	gen := &fakeGen{out: repliesJSON(1)}
	s := newTestScheduler(st, gen, cache.Nop{}, Config{ReplyProbability: 1e-9})

	if err := s.MaybeReplyToHumanPost(context.Background(), "t1", "b1", false); err != nil {
		t.Fatalf("maybe reply: %v", err)
	}
	if gen.calls != 0 {
		t.Fatal("gate should have skipped generation")
	}
}

func TestMaybeReplyHonorsThreadCap(t *testing.T) {
	st := store.NewMemStore()
	seedThread(t, st)
	for i := 0; i < 25; i++ {
		p := models.Post{ID: fmt.Sprintf("s%d", i), Thread: "t1", Content: "x", CreatedTS: testClock.UnixNano() + int64(i), Status: models.PostActive, IsAIGenerated: true}
		if _, err := st.AppendPost(p, 10); err != nil {
			t.Fatalf("seed synthetic %d: %v", i, err)
		}
	}
	gen := &fakeGen{out: repliesJSON(3)}
	s := newTestScheduler(st, gen, cache.Nop{}, Config{ReplyProbability: 1.0, MaxRepliesPerThread: 25})

	if err := s.MaybeReplyToHumanPost(context.Background(), "t1", "b1", false); err != nil {
		t.Fatalf("maybe reply: %v", err)
	}
	if gen.calls != 0 {
		t.Fatal("capped thread must not generate")
	}
	if n, _ := st.CountSyntheticPosts("t1"); n != 25 {
		t.Fatalf("synthetic count = %d, want 25", n)
	}
}

func TestMaybeReplyTruncatesToRemainingBudget(t *testing.T) {
	st := store.NewMemStore()
	seedThread(t, st)
	for i := 0; i < 24; i++ {
		p := models.Post{ID: fmt.Sprintf("s%d", i), Thread: "t1", Content: "x", CreatedTS: testClock.UnixNano() + int64(i), Status: models.PostActive, IsAIGenerated: true}
		if _, err := st.AppendPost(p, 10); err != nil {
			t.Fatalf("seed synthetic %d: %v", i, err)
		}
	}
	gen := &fakeGen{out: repliesJSON(3)}
	s := newTestScheduler(st, gen, cache.Nop{}, Config{ReplyProbability: 1.0, MaxRepliesPerThread: 25, MaxRepliesPerBatch: 3})

	if err := s.MaybeReplyToHumanPost(context.Background(), "t1", "b1", false); err != nil {
		t.Fatalf("maybe reply: %v", err)
	}
	if n, _ := st.CountSyntheticPosts("t1"); n != 25 {
		t.Fatalf("synthetic count = %d, want exactly the cap", n)
	}
}

func TestFailedGenerationPostsNothing(t *testing.T) {
	st := store.NewMemStore()
	seedThread(t, st)
	gen := &fakeGen{err: errors.New("upstream down")}
	rec := &tagRecorder{}
	s := newTestScheduler(st, gen, rec, Config{ReplyProbability: 1.0})

	if err := s.GenerateInitialReplies(context.Background(), "t1", "b1", "test thread", "opening post"); err == nil {
		t.Fatal("expected error")
	}
	if err := s.MaybeReplyToHumanPost(context.Background(), "t1", "b1", false); err == nil {
		t.Fatal("expected error")
	}
	th, _ := st.GetThread("t1")
	if th.PostCount != 1 {
		t.Fatalf("postCount = %d, failed generation must post nothing", th.PostCount)
	}
	if len(rec.tags) != 0 {
		t.Fatal("no invalidation without posts")
	}
}

func TestMaybeSummarizeOnlyAtMilestones(t *testing.T) {
	st := store.NewMemStore()
	seedThread(t, st)
	gen := &fakeGen{out: "A short neutral summary."}
	s := newTestScheduler(st, gen, cache.Nop{}, Config{})

	if err := s.MaybeSummarize(context.Background(), "t1", 21); err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if gen.calls != 0 {
		t.Fatal("21 is not a milestone")
	}

	if err := s.MaybeSummarize(context.Background(), "t1", 20); err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if gen.calls != 1 {
		t.Fatal("20 should trigger a summary")
	}
	th, _ := st.GetThread("t1")
	if th.AIAnalysis != "A short neutral summary." {
		t.Fatalf("analysis = %q", th.AIAnalysis)
	}
}

func TestConversationPromptCarriesAnchorNumbers(t *testing.T) {
	st := store.NewMemStore()
	seedThread(t, st)
	for i := 0; i < 14; i++ {
		p := models.Post{ID: fmt.Sprintf("h%d", i), Thread: "t1", Author: "Anonymous", Content: fmt.Sprintf("human post %d", i), CreatedTS: testClock.UnixNano() + int64(i+1), Status: models.PostActive}
		if _, err := st.AppendPost(p, 10); err != nil {
			t.Fatalf("seed post %d: %v", i, err)
		}
	}
	gen := &fakeGen{out: repliesJSON(1)}
	s := newTestScheduler(st, gen, cache.Nop{}, Config{ReplyProbability: 1.0, ContextPosts: 10})

	if err := s.MaybeReplyToHumanPost(context.Background(), "t1", "b1", false); err != nil {
		t.Fatalf("maybe reply: %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("generator calls = %d", gen.calls)
	}
	// 15 posts, 10 of context: window starts at position 6 and the prompt
	// numbers them by their true thread positions
	prompt := gen.prompts[0]
	if !strings.Contains(prompt, ">>6 ") {
		t.Fatalf("prompt missing first window anchor:\n%s", prompt)
	}
	if !strings.Contains(prompt, ">>15 ") {
		t.Fatalf("prompt missing last window anchor:\n%s", prompt)
	}
	if strings.Contains(prompt, ">>5 ") {
		t.Fatal("prompt should not include posts outside the context window")
	}
}
