// Package app wires the configured components together and owns the
// process lifecycle.
package app

import (
	"context"
	"fmt"
	"time"

	"anonboard/pkg/ai"
	"anonboard/pkg/api"
	"anonboard/pkg/bbs"
	"anonboard/pkg/cache"
	"anonboard/pkg/config"
	"anonboard/pkg/httpx"
	"anonboard/pkg/ingest"
	"anonboard/pkg/lifecycle"
	"anonboard/pkg/logger"
	"anonboard/pkg/moderation"
	"anonboard/pkg/models"
	"anonboard/pkg/ratelimit"
	"anonboard/pkg/store"
	"anonboard/pkg/telemetry"
)

// App holds the assembled server and its owned resources.
type App struct {
	eff     config.EffectiveConfigResult
	version string

	st       *store.PebbleStore
	svc      *bbs.Service
	runner   *ai.Runner
	ingester *ingest.Runner
	srv      *httpx.Server
}

// New opens the store, seeds boards and assembles the service graph. The
// HTTP server and the ingest scheduler start in Run.
func New(eff config.EffectiveConfigResult, version string) (*App, error) {
	cfg := eff.Config

	st, err := store.Open(eff.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", eff.DBPath, err)
	}
	if err := seedBoards(st, cfg.Boards); err != nil {
		st.Close()
		return nil, err
	}

	broker := cache.NewBroker()
	limiter := ratelimit.New(st)
	pool := ratelimit.NewPool(cfg.Security.RateLimit.RPS, cfg.Security.RateLimit.Burst)
	runner := ai.NewRunner(cfg.AI.TaskTimeout.Duration())

	var gen ai.Generator
	var sched bbs.ReplyScheduler
	if cfg.AI.Enabled {
		client := ai.NewClient(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Models, cfg.AI.RequestTimeout.Duration())
		gen = client
		sched = ai.NewScheduler(st, client, broker, ai.Config{
			ReplyProbability:    cfg.AI.ReplyProbability,
			MaxRepliesPerThread: cfg.AI.MaxRepliesPerThread,
			MaxRepliesPerBatch:  cfg.AI.MaxRepliesPerBatch,
			InitialRepliesMin:   cfg.AI.InitialRepliesMin,
			InitialRepliesMax:   cfg.AI.InitialRepliesMax,
			ContextPosts:        cfg.AI.ContextPosts,
			AnonymousName:       cfg.AI.AnonymousName,
		})
	}

	svc := bbs.NewService(bbs.Params{
		Store:   st,
		Limiter: limiter,
		Rules: lifecycle.Rules{
			StillbornAge:      cfg.Lifecycle.StillbornAge.Duration(),
			StillbornMinPosts: cfg.Lifecycle.StillbornMinPosts,
			IdleCutoff:        cfg.Lifecycle.IdleCutoff.Duration(),
		},
		Scheduler:    sched,
		Dispatch:     runner,
		Inv:          broker,
		Limits:       cfg.Limits,
		Discover:     cfg.Discover,
		IdentitySalt: cfg.Security.IdentitySalt,
		AnonName:     cfg.AI.AnonymousName,
	})

	var ingester *ingest.Runner
	if gen != nil {
		seeder := ingest.NewSeeder(gen, svc.ListBoards)
		ingester = ingest.NewRunner(svc, seeder, cfg.Ingest)
	}

	apiSrv := api.NewServer(api.Params{
		Service:    svc,
		Moderation: moderation.New(st, broker),
		Ingester:   ingester,
		Pool:       pool,
		AdminKeys:  cfg.Security.AdminKeys,
		GenTimeout: cfg.AI.TaskTimeout.Duration(),
	})

	return &App{
		eff:      eff,
		version:  version,
		st:       st,
		svc:      svc,
		runner:   runner,
		ingester: ingester,
		srv:      httpx.New(cfg.Server.Engine, eff.Addr, apiSrv.Router()),
	}, nil
}

// Run starts the ingest scheduler and the HTTP server, blocking until ctx
// cancels or the server fails.
func (a *App) Run(ctx context.Context) error {
	defer a.st.Close()

	stopStats := telemetry.StartDBMonitor(ctx, a.st.Metrics, 30*time.Second)
	defer stopStats()

	if a.ingester != nil {
		cancel, err := a.ingester.Start(ctx)
		if err != nil {
			return err
		}
		defer cancel()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http_shutdown_failed", "error", err)
		}
		// let detached reply/summary tasks land before the store closes
		a.runner.Wait()
		logger.Info("server_stopped")
		return nil
	case err := <-errCh:
		return err
	}
}

// defaultBoards seed a usable install when the config names none.
var defaultBoards = []config.BoardSeed{
	{ID: "tech", Name: "Technology", Description: "Software, hardware and the industry", Category: "tech"},
	{ID: "news", Name: "Current Events", Description: "What is happening right now", Category: "news"},
	{ID: "random", Name: "Random", Description: "Everything else", Category: "misc"},
}

func seedBoards(st store.Store, seeds []config.BoardSeed) error {
	if len(seeds) == 0 {
		seeds = defaultBoards
	}
	for _, s := range seeds {
		if s.ID == "" {
			continue
		}
		if _, err := st.GetBoard(s.ID); err == nil {
			continue
		}
		b := models.Board{
			ID:          s.ID,
			Name:        s.Name,
			Description: s.Description,
			Category:    s.Category,
			Status:      models.BoardActive,
			CreatedTS:   time.Now().UnixNano(),
		}
		if err := st.SaveBoard(b); err != nil {
			return fmt.Errorf("seed board %s: %w", s.ID, err)
		}
		logger.Info("board_seeded", "board", s.ID)
	}
	return nil
}
