// Package telemetry exposes the service's prometheus metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ThreadsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anonboard_threads_created_total",
		Help: "Threads created, human and generated.",
	})
	PostsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anonboard_posts_created_total",
		Help: "Posts created, partitioned by origin.",
	}, []string{"origin"}) // human|synthetic
	RateLimitDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anonboard_rate_limit_denials_total",
		Help: "Fixed-window rate limit denials by action.",
	}, []string{"action"})
	GenerationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anonboard_generation_failures_total",
		Help: "Text-generation batches that produced no usable output.",
	})
	CacheInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anonboard_cache_invalidations_total",
		Help: "Invalidation tags published to the presentation layer.",
	})
)
