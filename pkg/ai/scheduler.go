package ai

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"anonboard/pkg/cache"
	"anonboard/pkg/identity"
	"anonboard/pkg/logger"
	"anonboard/pkg/models"
	"anonboard/pkg/store"
	"anonboard/pkg/telemetry"
	"anonboard/pkg/utils"
)

// syntheticMomentumDelta is the heat each synthetic reply contributes.
const syntheticMomentumDelta = 10

// summaryMilestones are the post counts at which a thread summary is
// refreshed.
var summaryMilestones = map[int]bool{20: true, 50: true, 100: true, 200: true, 500: true, 1000: true}

// Config tunes the reply scheduler.
type Config struct {
	// ReplyProbability gates MaybeReplyToHumanPost (0..1).
	ReplyProbability float64
	// MaxRepliesPerThread caps synthetic posts per thread for the thread's
	// whole lifetime; bounds generation cost in long-running threads.
	MaxRepliesPerThread int
	// MaxRepliesPerBatch caps one conversational followup batch.
	MaxRepliesPerBatch int
	// InitialRepliesMin/Max bound the seeded conversation on a new thread.
	InitialRepliesMin int
	InitialRepliesMax int
	// ContextPosts is how many recent posts the conversation prompt carries.
	ContextPosts  int
	AnonymousName string
}

// Scheduler orchestrates synthetic conversation on top of a Generator.
// Both entry points are designed to run on a Runner: they return errors
// for logging but a failed or empty generation simply posts nothing.
type Scheduler struct {
	store store.Store
	gen   Generator
	inv   cache.Invalidator
	cfg   Config
	now   func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewScheduler(s store.Store, gen Generator, inv cache.Invalidator, cfg Config) *Scheduler {
	if cfg.ReplyProbability <= 0 {
		cfg.ReplyProbability = 0.7
	}
	if cfg.MaxRepliesPerThread <= 0 {
		cfg.MaxRepliesPerThread = 25
	}
	if cfg.MaxRepliesPerBatch <= 0 {
		cfg.MaxRepliesPerBatch = 3
	}
	if cfg.InitialRepliesMin <= 0 {
		cfg.InitialRepliesMin = 5
	}
	if cfg.InitialRepliesMax < cfg.InitialRepliesMin {
		cfg.InitialRepliesMax = cfg.InitialRepliesMin + 2
	}
	if cfg.ContextPosts <= 0 {
		cfg.ContextPosts = 10
	}
	if cfg.AnonymousName == "" {
		cfg.AnonymousName = "Anonymous"
	}
	return &Scheduler{
		store: s,
		gen:   gen,
		inv:   inv,
		cfg:   cfg,
		now:   time.Now,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithClock overrides the wall clock; tests only.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// WithRand overrides the random source; tests only.
func (s *Scheduler) WithRand(rng *rand.Rand) *Scheduler {
	s.rng = rng
	return s
}

func (s *Scheduler) randFloat() float64 {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64()
}

func (s *Scheduler) randIntn(n int) int {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Intn(n)
}

// randDelay returns a duration uniformly drawn from [lo, hi).
func (s *Scheduler) randDelay(lo, hi time.Duration) time.Duration {
	return lo + time.Duration(s.randFloat()*float64(hi-lo))
}

// GenerateInitialReplies seeds a fresh thread with a short synthetic
// conversation. Reply timestamps are paced to look organic: the first
// lands 30-60s after >>1, each subsequent one 2-5 minutes after the
// previous. Cache invalidation fires once after the whole batch.
func (s *Scheduler) GenerateInitialReplies(ctx context.Context, threadID, boardID, title, firstPostContent string) error {
	span := s.cfg.InitialRepliesMax - s.cfg.InitialRepliesMin + 1
	count := s.cfg.InitialRepliesMin + s.randIntn(span)

	raw, err := s.gen.Generate(ctx, initialRepliesPrompt(title, firstPostContent, count))
	if err != nil {
		telemetry.GenerationFailures.Inc()
		return fmt.Errorf("initial replies for %s: %w", threadID, err)
	}
	replies, err := parseReplies(raw)
	if err != nil {
		telemetry.GenerationFailures.Inc()
		return fmt.Errorf("initial replies for %s: %w", threadID, err)
	}
	if len(replies) > count {
		replies = replies[:count]
	}

	thread, err := s.store.GetThread(threadID)
	if err != nil {
		return err
	}
	ts := time.Unix(0, thread.LastUpdatedTS)

	posted := 0
	for i, r := range replies {
		if i == 0 {
			ts = ts.Add(s.randDelay(30*time.Second, 60*time.Second))
		} else {
			ts = ts.Add(s.randDelay(2*time.Minute, 5*time.Minute))
		}
		if err := s.appendSynthetic(threadID, r.Content, ts); err != nil {
			if errors.Is(err, store.ErrThreadFilled) {
				break
			}
			return err
		}
		posted++
	}
	if posted > 0 {
		s.invalidate(boardID, threadID)
	}
	logger.Info("initial_replies_posted", "thread", threadID, "count", posted)
	return nil
}

// MaybeReplyToHumanPost is the probabilistic hook fired after every human
// post. Synthetic triggers are ignored outright so the scheduler never
// feeds on its own output.
func (s *Scheduler) MaybeReplyToHumanPost(ctx context.Context, threadID, boardID string, isAIGenerated bool) error {
	if isAIGenerated {
		return nil
	}
	if s.randFloat() > s.cfg.ReplyProbability {
		logger.Debug("reply_skipped_probability", "thread", threadID)
		return nil
	}

	// The cap read is not serialized against other dispatched batches; two
	// near-simultaneous triggers can overshoot MaxRepliesPerThread by at
	// most one batch. Same tolerated slack as the rate limiter's window
	// check.
	existing, err := s.store.CountSyntheticPosts(threadID)
	if err != nil {
		return err
	}
	if existing >= s.cfg.MaxRepliesPerThread {
		logger.Debug("reply_skipped_cap", "thread", threadID, "synthetic", existing)
		return nil
	}
	budget := s.cfg.MaxRepliesPerThread - existing
	if budget > s.cfg.MaxRepliesPerBatch {
		budget = s.cfg.MaxRepliesPerBatch
	}

	thread, err := s.store.GetThread(threadID)
	if err != nil {
		return err
	}
	posts, err := s.store.ListPosts(threadID)
	if err != nil {
		return err
	}
	if len(posts) == 0 {
		return nil
	}
	recent := posts
	if len(recent) > s.cfg.ContextPosts {
		recent = recent[len(recent)-s.cfg.ContextPosts:]
	}
	firstPosition := len(posts) - len(recent) + 1

	raw, err := s.gen.Generate(ctx, conversationPrompt(thread.Title, recent, firstPosition, budget))
	if err != nil {
		telemetry.GenerationFailures.Inc()
		return fmt.Errorf("conversation replies for %s: %w", threadID, err)
	}
	replies, err := parseReplies(raw)
	if err != nil {
		telemetry.GenerationFailures.Inc()
		return fmt.Errorf("conversation replies for %s: %w", threadID, err)
	}
	if len(replies) > budget {
		replies = replies[:budget]
	}

	// Followups ride the live conversation, so they land shortly after the
	// thread's current time rather than on the long initial cadence.
	ts := time.Unix(0, thread.LastUpdatedTS)
	if now := s.now(); now.After(ts) {
		ts = now
	}
	posted := 0
	for _, r := range replies {
		ts = ts.Add(s.randDelay(20*time.Second, 60*time.Second))
		if err := s.appendSynthetic(threadID, r.Content, ts); err != nil {
			if errors.Is(err, store.ErrThreadFilled) {
				break
			}
			return err
		}
		posted++
	}
	if posted > 0 {
		s.invalidate(boardID, threadID)
	}
	logger.Info("conversation_replies_posted", "thread", threadID, "count", posted, "synthetic_total", existing+posted)
	return nil
}

// MaybeSummarize refreshes the thread's stored summary when postCount sits
// exactly on a milestone.
func (s *Scheduler) MaybeSummarize(ctx context.Context, threadID string, postCount int) error {
	if !summaryMilestones[postCount] {
		return nil
	}
	thread, err := s.store.GetThread(threadID)
	if err != nil {
		return err
	}
	posts, err := s.store.ListPosts(threadID)
	if err != nil {
		return err
	}
	summary, err := s.gen.Generate(ctx, summaryPrompt(thread.Title, posts))
	if err != nil {
		telemetry.GenerationFailures.Inc()
		return fmt.Errorf("summary for %s: %w", threadID, err)
	}
	thread.AIAnalysis = summary
	if err := s.store.SaveThread(thread); err != nil {
		return err
	}
	s.inv.Invalidate(cache.ThreadTag(threadID))
	logger.Info("thread_summarized", "thread", threadID, "at", postCount)
	return nil
}

func (s *Scheduler) appendSynthetic(threadID, content string, ts time.Time) error {
	p := models.Post{
		ID:            utils.GenID(),
		Thread:        threadID,
		Author:        s.cfg.AnonymousName,
		UserID:        identity.SyntheticID(),
		Content:       content,
		CreatedTS:     ts.UnixNano(),
		Status:        models.PostActive,
		IsAIGenerated: true,
	}
	if _, err := s.store.AppendPost(p, syntheticMomentumDelta); err != nil {
		return err
	}
	telemetry.PostsCreated.WithLabelValues("synthetic").Inc()
	return nil
}

func (s *Scheduler) invalidate(boardID, threadID string) {
	s.inv.Invalidate(cache.BoardTag(boardID))
	s.inv.Invalidate(cache.AllThreadsTag)
	s.inv.Invalidate(cache.ThreadTag(threadID))
	telemetry.CacheInvalidations.Add(3)
}
