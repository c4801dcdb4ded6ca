// Package ingest turns external news items into seeded discussion threads
// on a cron schedule, and on demand from a submitted url.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"anonboard/pkg/bbs"
	"anonboard/pkg/config"
	"anonboard/pkg/logger"
	"anonboard/pkg/models"
)

// Runner polls the configured feeds and creates at most MaxThreadsPerRun
// threads per tick. Thread creation goes through the normal service path,
// so generated threads get the same initial synthetic replies as human
// ones.
type Runner struct {
	svc     *bbs.Service
	seeder  *Seeder
	cfg     config.IngestConfig
	fetcher *Fetcher
}

func NewRunner(svc *bbs.Service, seeder *Seeder, cfg config.IngestConfig) *Runner {
	if cfg.MaxThreadsPerRun <= 0 {
		cfg.MaxThreadsPerRun = 3
	}
	return &Runner{
		svc:     svc,
		seeder:  seeder,
		cfg:     cfg,
		fetcher: NewFetcher(cfg.FetchTimeout.Duration()),
	}
}

// Start launches the cron scheduler if ingest is enabled. Returns a cancel
// func; a no-op cancel when disabled.
func (r *Runner) Start(ctx context.Context) (context.CancelFunc, error) {
	if !r.cfg.Enabled || len(r.cfg.Topics) == 0 {
		logger.Info("ingest_disabled")
		return func() {}, nil
	}

	cronExpr := r.cfg.Cron
	if cronExpr == "" {
		cronExpr = "0 * * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("ingest_invalid_cron", "cron", cronExpr)
		return nil, fmt.Errorf("invalid ingest cron expression: %s", cronExpr)
	}

	logger.Info("ingest_enabled", "cron", cronExpr, "topics", len(r.cfg.Topics))
	ctx2, cancel := context.WithCancel(ctx)
	go r.runScheduler(ctx2, cronExpr)
	return cancel, nil
}

// runScheduler computes the next cron tick with gronx and sleeps until it.
func (r *Runner) runScheduler(ctx context.Context, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("ingest_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("ingest_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := r.RunOnce(ctx); err != nil {
				logger.Error("ingest_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("ingest_scheduler_stopping")
			return
		}
	}
}

// RunOnce walks every topic feed and creates threads for unseen items until
// the per-run budget is spent.
func (r *Runner) RunOnce(ctx context.Context) error {
	created := 0
	for _, topic := range r.cfg.Topics {
		if created >= r.cfg.MaxThreadsPerRun {
			break
		}
		items, err := r.fetcher.Feed(ctx, topic.URL)
		if err != nil {
			logger.Warn("ingest_feed_failed", "topic", topic.Name, "error", err)
			continue
		}
		for _, item := range items {
			if created >= r.cfg.MaxThreadsPerRun {
				break
			}
			seen, err := r.svc.HasThreadForSource(item.Link)
			if err != nil {
				return err
			}
			if seen {
				continue
			}
			t, err := r.createFromItem(ctx, topic.Name, item)
			if err != nil {
				logger.Warn("ingest_item_failed", "topic", topic.Name, "url", item.Link, "error", err)
				continue
			}
			logger.Info("ingest_thread_created", "thread", t.ID, "board", t.Board, "source", item.Link)
			created++
		}
	}
	logger.Info("ingest_run_done", "created", created)
	return nil
}

func (r *Runner) createFromItem(ctx context.Context, platform string, item FeedItem) (models.Thread, error) {
	page, err := r.fetcher.Page(ctx, item.Link)
	if err != nil {
		// The feed entry alone is usually enough to seed a thread.
		logger.Debug("ingest_page_fetch_failed", "url", item.Link, "error", err)
		page = Page{Title: item.Title, Description: item.Description}
	}
	seed, err := r.seeder.Seed(ctx, Source{
		Title:       firstNonEmpty(page.Title, item.Title),
		Description: firstNonEmpty(page.Description, item.Description),
		Excerpt:     page.Excerpt,
		URL:         item.Link,
	})
	if err != nil {
		return models.Thread{}, err
	}
	return r.svc.CreateThread(bbs.NewThread{
		Board:          seed.Board,
		Title:          seed.Title,
		Content:        seed.FirstPost,
		Synthetic:      true,
		SourceURL:      item.Link,
		SourceTitle:    item.Title,
		SourcePlatform: platform,
	})
}

// FromURL generates a thread from a user-submitted link synchronously; the
// caller has already applied the generate rate budget.
func (r *Runner) FromURL(ctx context.Context, url string) (models.Thread, error) {
	seen, err := r.svc.HasThreadForSource(url)
	if err != nil {
		return models.Thread{}, err
	}
	if seen {
		return models.Thread{}, fmt.Errorf("%w: source already has a thread", bbs.ErrValidation)
	}
	page, err := r.fetcher.Page(ctx, url)
	if err != nil {
		return models.Thread{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	seed, err := r.seeder.Seed(ctx, Source{
		Title:       page.Title,
		Description: page.Description,
		Excerpt:     page.Excerpt,
		URL:         url,
	})
	if err != nil {
		return models.Thread{}, err
	}
	return r.svc.CreateThread(bbs.NewThread{
		Board:          seed.Board,
		Title:          seed.Title,
		Content:        seed.FirstPost,
		Synthetic:      true,
		SourceURL:      url,
		SourceTitle:    page.Title,
		SourcePlatform: "link",
	})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
