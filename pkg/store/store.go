// Package store is the repository layer over an embedded Pebble database.
// All domain logic receives a Store so the same code runs against the real
// database or the in-memory fake.
package store

import (
	"errors"

	"anonboard/pkg/models"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrThreadFilled is returned by AppendPost once a thread has reached its
// post capacity. The transition to filled is permanent.
var ErrThreadFilled = errors.New("thread filled")

// Store is the persistence boundary consumed by the core. Implementations
// must make AppendPost atomic with respect to the thread counters; the
// rate-limit record accessors are deliberately plain reads/writes (the
// limiter's check-then-act race is tolerated by design).
type Store interface {
	// Boards
	SaveBoard(b models.Board) error
	GetBoard(id string) (models.Board, error)
	ListBoards() ([]models.Board, error)

	// Threads. CreateThread persists the thread and its first post as one
	// unit; a failure must not leave an orphan thread.
	CreateThread(t models.Thread, first models.Post) error
	SaveThread(t models.Thread) error
	GetThread(id string) (models.Thread, error)
	// RefreshThreadMeta re-reads the thread under the same lock that
	// serializes AppendPost and writes only the derived momentum/status
	// fields, so a write-back computed from a stale snapshot can never
	// revert the post counters. Terminal statuses (filled, deleted) win
	// over the incoming one. Returns the stored snapshot.
	RefreshThreadMeta(id string, momentum int64, status string) (models.Thread, error)
	// IncrementViews bumps the thread's view counter without touching any
	// other field.
	IncrementViews(id string) (models.Thread, error)
	ListThreadsByBoard(boardID string) ([]models.Thread, error)
	ListThreads() ([]models.Thread, error)

	// Posts. AppendPost persists the post and applies the thread
	// accounting (postCount+1, momentum+momentumDelta, lastUpdated) in a
	// single atomic step, flipping the thread to filled at capacity. The
	// updated thread snapshot is returned.
	AppendPost(p models.Post, momentumDelta int64) (models.Thread, error)
	// UpdatePost rewrites a post in place without touching its position.
	UpdatePost(p models.Post) error
	GetPost(id string) (models.Post, error)
	// ListPosts returns the thread's posts in ascending createdAt order.
	ListPosts(threadID string) ([]models.Post, error)
	CountSyntheticPosts(threadID string) (int, error)

	// Rate limit records
	GetRateLimit(key string) (models.RateLimitRecord, bool, error)
	PutRateLimit(rec models.RateLimitRecord) error

	// Reports
	SaveReport(r models.Report) error
	GetReport(id string) (models.Report, error)
	ListReports(status string) ([]models.Report, error)

	Close() error
}
