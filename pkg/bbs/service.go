// Package bbs is the application core: thread and post creation with rate
// gating, lifecycle-refreshed listings, search, discover and reporting.
package bbs

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"anonboard/pkg/cache"
	"anonboard/pkg/config"
	"anonboard/pkg/discover"
	"anonboard/pkg/identity"
	"anonboard/pkg/lifecycle"
	"anonboard/pkg/logger"
	"anonboard/pkg/models"
	"anonboard/pkg/ratelimit"
	"anonboard/pkg/store"
	"anonboard/pkg/telemetry"
	"anonboard/pkg/utils"
)

// ErrValidation wraps all input rejections so the transport layer can map
// them to 400 uniformly.
var ErrValidation = errors.New("validation failed")

// ErrBoardLocked is returned when a write targets a locked board.
var ErrBoardLocked = errors.New("board locked")

// initialMomentum is the heat a thread is born with.
const initialMomentum = 100

// postMomentumDelta is the heat each appended post adds at write time; the
// canonical velocity formula overwrites it on the next listing refresh.
const postMomentumDelta = 10

// ReplyScheduler is the synthetic-conversation hook the service dispatches
// into after human writes. nil disables it entirely.
type ReplyScheduler interface {
	GenerateInitialReplies(ctx context.Context, threadID, boardID, title, firstPostContent string) error
	MaybeReplyToHumanPost(ctx context.Context, threadID, boardID string, isAIGenerated bool) error
	MaybeSummarize(ctx context.Context, threadID string, postCount int) error
}

// Dispatcher runs a named task detached from the calling request.
type Dispatcher interface {
	Go(name string, fn func(ctx context.Context) error)
}

// syncDispatcher runs tasks inline; used when no runner is wired.
type syncDispatcher struct{}

func (syncDispatcher) Go(name string, fn func(ctx context.Context) error) {
	if err := fn(context.Background()); err != nil {
		logger.Warn("task_failed", "task", name, "error", err)
	}
}

// Service wires the store, limiter, lifecycle rules and the reply scheduler
// into the operations the HTTP layer exposes.
type Service struct {
	store     store.Store
	limiter   *ratelimit.Limiter
	rules     lifecycle.Rules
	scheduler ReplyScheduler
	dispatch  Dispatcher
	inv       cache.Invalidator

	limits       config.LimitsConfig
	discoverOpts discover.Options
	identitySalt string
	anonName     string

	now func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Params collects the service dependencies. Scheduler and Dispatch may be
// nil; Inv defaults to a no-op.
type Params struct {
	Store     store.Store
	Limiter   *ratelimit.Limiter
	Rules     lifecycle.Rules
	Scheduler ReplyScheduler
	Dispatch  Dispatcher
	Inv       cache.Invalidator

	Limits       config.LimitsConfig
	Discover     config.DiscoverConfig
	IdentitySalt string
	AnonName     string
}

func NewService(p Params) *Service {
	if p.Inv == nil {
		p.Inv = cache.Nop{}
	}
	if p.Dispatch == nil {
		p.Dispatch = syncDispatcher{}
	}
	if p.AnonName == "" {
		p.AnonName = "Anonymous"
	}
	if p.Rules == (lifecycle.Rules{}) {
		p.Rules = lifecycle.DefaultRules()
	}
	return &Service{
		store:     p.Store,
		limiter:   p.Limiter,
		rules:     p.Rules,
		scheduler: p.Scheduler,
		dispatch:  p.Dispatch,
		inv:       p.Inv,
		limits:    p.Limits,
		discoverOpts: discover.Options{
			HistoryCap: p.Discover.HistoryCap,
			ResultSize: p.Discover.ResultSize,
			Jitter:     p.Discover.Jitter,
		},
		identitySalt: p.IdentitySalt,
		anonName:     p.AnonName,
		now:          time.Now,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithClock overrides the wall clock; tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// NewThread is the input to CreateThread. Synthetic creations (scheduled
// ingest) skip the rate gate and carry source attribution.
type NewThread struct {
	Board   string
	Title   string
	Content string
	// IP of the creating client; unused for synthetic threads.
	IP        string
	Synthetic bool
	Tags      []string

	SourceURL      string
	SourceTitle    string
	SourcePlatform string
}

// CreateThread validates, applies the per-ip thread budget, persists the
// thread with its first post as one unit and dispatches the initial
// synthetic replies.
func (s *Service) CreateThread(nt NewThread) (models.Thread, error) {
	title := strings.TrimSpace(nt.Title)
	content := strings.TrimSpace(nt.Content)
	if title == "" {
		return models.Thread{}, fmt.Errorf("%w: empty title", ErrValidation)
	}
	if s.limits.MaxTitleLen > 0 && utf8.RuneCountInString(title) > s.limits.MaxTitleLen {
		return models.Thread{}, fmt.Errorf("%w: title too long", ErrValidation)
	}
	if err := s.validateContent(content); err != nil {
		return models.Thread{}, err
	}

	if !nt.Synthetic {
		if err := s.gate("thread", nt.IP, s.limits.Thread); err != nil {
			return models.Thread{}, err
		}
	}

	board, err := s.store.GetBoard(nt.Board)
	if err != nil {
		return models.Thread{}, err
	}
	if board.Status == models.BoardLocked {
		return models.Thread{}, ErrBoardLocked
	}

	now := s.now()
	id := utils.GenThreadID()
	t := models.Thread{
		ID:             id,
		Title:          title,
		Board:          board.ID,
		CreatedTS:      now.UnixNano(),
		LastUpdatedTS:  now.UnixNano(),
		PostCount:      1,
		Momentum:       initialMomentum,
		Status:         models.ThreadActive,
		Tags:           nt.Tags,
		SourceURL:      nt.SourceURL,
		SourceTitle:    nt.SourceTitle,
		SourcePlatform: nt.SourcePlatform,
		IsAIGenerated:  nt.Synthetic,
	}
	first := models.Post{
		ID:            utils.GenID(),
		Thread:        id,
		Author:        s.anonName,
		Content:       content,
		CreatedTS:     now.UnixNano(),
		Status:        models.PostActive,
		IsAIGenerated: nt.Synthetic,
	}
	if nt.Synthetic {
		first.UserID = identity.SyntheticID()
	} else {
		first.UserID = identity.DailyID(nt.IP, s.identitySalt, now)
	}

	if err := s.store.CreateThread(t, first); err != nil {
		return models.Thread{}, err
	}
	telemetry.ThreadsCreated.Inc()
	origin := "human"
	if nt.Synthetic {
		origin = "synthetic"
	}
	telemetry.PostsCreated.WithLabelValues(origin).Inc()
	s.inv.Invalidate(cache.BoardTag(board.ID))
	s.inv.Invalidate(cache.AllThreadsTag)
	telemetry.CacheInvalidations.Add(2)
	logger.Info("thread_created", "thread", id, "board", board.ID, "synthetic", nt.Synthetic)

	if s.scheduler != nil {
		boardID, threadID := board.ID, id
		s.dispatch.Go("initial_replies", func(ctx context.Context) error {
			return s.scheduler.GenerateInitialReplies(ctx, threadID, boardID, title, content)
		})
	}
	return t, nil
}

// AddPost validates, applies the per-ip post budget and appends to the
// thread; the postCount/momentum/lastUpdated accounting happens atomically
// inside the store. Milestone summaries and probabilistic followups are
// dispatched after the write.
func (s *Service) AddPost(threadID, content, ip string) (models.Thread, models.Post, error) {
	content = strings.TrimSpace(content)
	if err := s.validateContent(content); err != nil {
		return models.Thread{}, models.Post{}, err
	}
	if err := s.gate("post", ip, s.limits.Post); err != nil {
		return models.Thread{}, models.Post{}, err
	}

	t, err := s.store.GetThread(threadID)
	if err != nil {
		return models.Thread{}, models.Post{}, err
	}
	if t.Status == models.ThreadDeleted {
		return models.Thread{}, models.Post{}, store.ErrNotFound
	}
	if t.Status == models.ThreadFilled {
		return models.Thread{}, models.Post{}, store.ErrThreadFilled
	}
	board, err := s.store.GetBoard(t.Board)
	if err == nil && board.Status == models.BoardLocked {
		return models.Thread{}, models.Post{}, ErrBoardLocked
	}

	now := s.now()
	p := models.Post{
		ID:        utils.GenID(),
		Thread:    threadID,
		Author:    s.anonName,
		UserID:    identity.DailyID(ip, s.identitySalt, now),
		Content:   content,
		CreatedTS: now.UnixNano(),
		Status:    models.PostActive,
	}
	updated, err := s.store.AppendPost(p, postMomentumDelta)
	if err != nil {
		return models.Thread{}, models.Post{}, err
	}
	telemetry.PostsCreated.WithLabelValues("human").Inc()
	s.inv.Invalidate(cache.BoardTag(updated.Board))
	s.inv.Invalidate(cache.AllThreadsTag)
	s.inv.Invalidate(cache.ThreadTag(threadID))
	telemetry.CacheInvalidations.Add(3)
	logger.Info("post_created", "thread", threadID, "post", p.ID, "count", updated.PostCount)

	if s.scheduler != nil {
		count := updated.PostCount
		boardID := updated.Board
		s.dispatch.Go("milestone_summary", func(ctx context.Context) error {
			return s.scheduler.MaybeSummarize(ctx, threadID, count)
		})
		s.dispatch.Go("conversation_replies", func(ctx context.Context) error {
			return s.scheduler.MaybeReplyToHumanPost(ctx, threadID, boardID, false)
		})
	}
	return updated, p, nil
}

// SubmitReport records a report against a post under the reporter's hashed
// address.
func (s *Service) SubmitReport(postID, reason, detail, ip string) (models.Report, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return models.Report{}, fmt.Errorf("%w: empty reason", ErrValidation)
	}
	if err := s.gate("report", ip, s.limits.Report); err != nil {
		return models.Report{}, err
	}
	if _, err := s.store.GetPost(postID); err != nil {
		return models.Report{}, err
	}
	r := models.Report{
		ID:         utils.GenID(),
		PostID:     postID,
		Reason:     reason,
		Detail:     strings.TrimSpace(detail),
		ReporterIP: identity.HashIP(ip),
		Status:     models.ReportPending,
		CreatedTS:  s.now().UnixNano(),
	}
	if err := s.store.SaveReport(r); err != nil {
		return models.Report{}, err
	}
	logger.Info("report_submitted", "report", r.ID, "post", postID)
	return r, nil
}

// ListReports returns reports in the given status, newest first.
func (s *Service) ListReports(status string) ([]models.Report, error) {
	reports, err := s.store.ListReports(status)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(reports, func(i, j int) bool { return reports[i].CreatedTS > reports[j].CreatedTS })
	return reports, nil
}

// GateGenerate applies the per-ip budget for on-demand thread generation.
func (s *Service) GateGenerate(ip string) error {
	return s.gate("generate", ip, s.limits.Generate)
}

// ListBoards returns all boards sorted by id.
func (s *Service) ListBoards() ([]models.Board, error) {
	boards, err := s.store.ListBoards()
	if err != nil {
		return nil, err
	}
	sort.Slice(boards, func(i, j int) bool { return boards[i].ID < boards[j].ID })
	return boards, nil
}

func (s *Service) GetBoard(id string) (models.Board, error) {
	return s.store.GetBoard(id)
}

// BoardThreads returns one page of a board's live threads sorted by
// momentum descending. Each thread's momentum and archive state are
// refreshed to their canonical values on the way out.
func (s *Service) BoardThreads(boardID string, page, pageSize int) ([]models.Thread, int, error) {
	threads, err := s.store.ListThreadsByBoard(boardID)
	if err != nil {
		return nil, 0, err
	}
	live := s.refreshAndFilter(threads, func(t models.Thread) bool {
		return t.Status == models.ThreadActive || t.Status == models.ThreadFilled
	})
	sort.SliceStable(live, func(i, j int) bool { return live[i].Momentum > live[j].Momentum })
	return paginate(live, page, pageSize)
}

// ActiveThreads returns the refreshed global live listing, momentum
// descending.
func (s *Service) ActiveThreads() ([]models.Thread, error) {
	threads, err := s.store.ListThreads()
	if err != nil {
		return nil, err
	}
	live := s.refreshAndFilter(threads, func(t models.Thread) bool {
		return t.Status == models.ThreadActive || t.Status == models.ThreadFilled
	})
	sort.SliceStable(live, func(i, j int) bool { return live[i].Momentum > live[j].Momentum })
	return live, nil
}

// ArchivedThreads returns one page of the archive, most recently active
// first.
func (s *Service) ArchivedThreads(page, pageSize int) ([]models.Thread, int, error) {
	threads, err := s.store.ListThreads()
	if err != nil {
		return nil, 0, err
	}
	archived := s.refreshAndFilter(threads, func(t models.Thread) bool {
		return t.Status == models.ThreadArchived
	})
	sort.SliceStable(archived, func(i, j int) bool { return archived[i].LastUpdatedTS > archived[j].LastUpdatedTS })
	return paginate(archived, page, pageSize)
}

// ViewThread loads a thread with its posts and bumps the view counter.
// Deleted threads are hidden; archived and filled threads stay readable.
func (s *Service) ViewThread(threadID string) (models.Thread, []models.Post, error) {
	t, err := s.store.GetThread(threadID)
	if err != nil {
		return models.Thread{}, nil, err
	}
	if t.Status == models.ThreadDeleted {
		return models.Thread{}, nil, store.ErrNotFound
	}
	t = s.refresh(t)
	if bumped, err := s.store.IncrementViews(threadID); err != nil {
		logger.Warn("view_bump_failed", "thread", threadID, "error", err)
	} else {
		t = bumped
	}
	posts, err := s.store.ListPosts(threadID)
	if err != nil {
		return models.Thread{}, nil, err
	}
	return t, posts, nil
}

// Search matches q case-insensitively against thread titles and post
// bodies, returning live and archived threads but never deleted ones.
func (s *Service) Search(q string) ([]models.Thread, error) {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return nil, fmt.Errorf("%w: empty query", ErrValidation)
	}
	threads, err := s.store.ListThreads()
	if err != nil {
		return nil, err
	}
	var out []models.Thread
	for _, t := range threads {
		if t.Status == models.ThreadDeleted {
			continue
		}
		if strings.Contains(strings.ToLower(t.Title), q) {
			out = append(out, t)
			continue
		}
		posts, err := s.store.ListPosts(t.ID)
		if err != nil {
			return nil, err
		}
		for _, p := range posts {
			if p.Status == models.PostDeleted {
				continue
			}
			if strings.Contains(strings.ToLower(p.Content), q) {
				out = append(out, t)
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastUpdatedTS > out[j].LastUpdatedTS })
	return out, nil
}

// Discover ranks active threads by the visitor's board affinity with
// jitter, excluding threads they already have on screen.
func (s *Service) Discover(excludeIDs, visitHistory []string) ([]models.Thread, error) {
	candidates, err := s.ActiveThreads()
	if err != nil {
		return nil, err
	}
	// Score shuffles and jitters on its rand, so each request gets its own
	// source seeded under the lock.
	s.rngMu.Lock()
	seed := s.rng.Int63()
	s.rngMu.Unlock()
	opts := s.discoverOpts
	opts.Rand = rand.New(rand.NewSource(seed))
	return discover.Score(candidates, excludeIDs, visitHistory, opts), nil
}

// HasThreadForSource reports whether a thread already carries the given
// source url; the scheduled ingester uses it for dedupe.
func (s *Service) HasThreadForSource(url string) (bool, error) {
	if url == "" {
		return false, nil
	}
	threads, err := s.store.ListThreads()
	if err != nil {
		return false, err
	}
	for _, t := range threads {
		if t.SourceURL == url {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) validateContent(content string) error {
	if content == "" {
		return fmt.Errorf("%w: empty content", ErrValidation)
	}
	if max := s.limits.MaxPostBytes.Int64(); max > 0 && int64(len(content)) > max {
		return fmt.Errorf("%w: content too large", ErrValidation)
	}
	return nil
}

func (s *Service) gate(action, ip string, limit config.ActionLimit) error {
	if s.limiter == nil || limit.Limit <= 0 {
		return nil
	}
	ok, err := s.limiter.Check(action+":"+ip, limit.Limit, limit.Window.Duration())
	if err != nil {
		return err
	}
	if !ok {
		telemetry.RateLimitDenials.WithLabelValues(action).Inc()
		logger.Debug("rate_limited", "action", action)
		return ratelimit.ErrRateLimited
	}
	return nil
}

// refresh recomputes a thread's momentum and archive classification and
// writes them back through the store's locked meta update, which re-reads
// the row so concurrently appended posts are never reverted.
func (s *Service) refresh(t models.Thread) models.Thread {
	momentum, status := s.rules.Evaluate(t, s.now())
	if momentum == t.Momentum && status == t.Status {
		return t
	}
	updated, err := s.store.RefreshThreadMeta(t.ID, momentum, status)
	if err != nil {
		logger.Warn("lifecycle_writeback_failed", "thread", t.ID, "error", err)
		t.Momentum = momentum
		t.Status = status
		return t
	}
	return updated
}

func (s *Service) refreshAndFilter(threads []models.Thread, keep func(models.Thread) bool) []models.Thread {
	out := make([]models.Thread, 0, len(threads))
	for _, t := range threads {
		if t.Status == models.ThreadDeleted {
			continue
		}
		t = s.refresh(t)
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

func paginate(threads []models.Thread, page, pageSize int) ([]models.Thread, int, error) {
	total := len(threads)
	if pageSize <= 0 {
		pageSize = 20
	}
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= total {
		return []models.Thread{}, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return threads[start:end], total, nil
}
