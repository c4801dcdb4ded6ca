// Package lifecycle computes thread heat and the active/archived
// transition. Momentum is a velocity score: a thread with 10 posts in its
// first hour outranks one with 50 posts over a month.
package lifecycle

import (
	"math"
	"time"

	"anonboard/pkg/models"
)

// minAgeDays guards the velocity division for brand-new threads.
const minAgeDays = 0.001

// Rules holds the cull thresholds.
type Rules struct {
	// StillbornAge and StillbornMinPosts: threads older than StillbornAge
	// with fewer than StillbornMinPosts posts are archived.
	StillbornAge      time.Duration
	StillbornMinPosts int
	// IdleCutoff: threads with no activity for longer than this are
	// archived regardless of volume.
	IdleCutoff time.Duration
}

// DefaultRules matches the production cull policy: 24h/5 posts, 7 days idle.
func DefaultRules() Rules {
	return Rules{
		StillbornAge:      24 * time.Hour,
		StillbornMinPosts: 5,
		IdleCutoff:        7 * 24 * time.Hour,
	}
}

// Momentum returns floor(postCount / ageDays) with the age clamped away
// from zero.
func Momentum(t models.Thread, now time.Time) int64 {
	created := time.Unix(0, t.CreatedTS)
	ageDays := now.Sub(created).Hours() / 24
	if ageDays < minAgeDays {
		ageDays = minAgeDays
	}
	return int64(math.Floor(float64(t.PostCount) / ageDays))
}

// Evaluate returns the canonical momentum and the archive classification
// for a thread snapshot. Filled and deleted are write-time states and are
// passed through untouched.
func (r Rules) Evaluate(t models.Thread, now time.Time) (int64, string) {
	momentum := Momentum(t, now)
	if t.Status == models.ThreadFilled || t.Status == models.ThreadDeleted {
		return momentum, t.Status
	}

	created := time.Unix(0, t.CreatedTS)
	updated := time.Unix(0, t.LastUpdatedTS)

	// Stillborn cull: no engagement in the first day.
	if now.Sub(created) > r.StillbornAge && t.PostCount < r.StillbornMinPosts {
		return momentum, models.ThreadArchived
	}
	// Natural death: inactivity regardless of historical volume.
	if now.Sub(updated) > r.IdleCutoff {
		return momentum, models.ThreadArchived
	}
	return momentum, models.ThreadActive
}
