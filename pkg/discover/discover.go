// Package discover ranks candidate threads for the homepage "discover"
// feed using recency-weighted board affinity with random jitter.
package discover

import (
	"math/rand"
	"sort"

	"anonboard/pkg/models"
)

// Options tunes the scorer. Rand is injectable so the jitter and the
// cold-start shuffle are deterministic under test.
type Options struct {
	HistoryCap int
	ResultSize int
	Jitter     float64
	Rand       *rand.Rand
}

func (o Options) withDefaults() Options {
	if o.HistoryCap <= 0 {
		o.HistoryCap = 20
	}
	if o.ResultSize <= 0 {
		o.ResultSize = 12
	}
	if o.Jitter <= 0 {
		o.Jitter = 0.3
	}
	return o
}

// Score picks up to ResultSize threads from candidates. visitHistory is the
// caller's board ids most-recent-first; an empty history degrades to a
// uniform shuffle. A board present in history always outscores (in
// expectation) one that is absent, and more recent visits outscore older
// ones.
func Score(candidates []models.Thread, excludeIDs []string, visitHistory []string, opts Options) []models.Thread {
	opts = opts.withDefaults()
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}

	excluded := make(map[string]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = struct{}{}
	}
	pool := make([]models.Thread, 0, len(candidates))
	for _, t := range candidates {
		if _, skip := excluded[t.ID]; !skip {
			pool = append(pool, t)
		}
	}

	if len(visitHistory) == 0 {
		rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
		if len(pool) > opts.ResultSize {
			pool = pool[:opts.ResultSize]
		}
		return pool
	}

	if len(visitHistory) > opts.HistoryCap {
		visitHistory = visitHistory[:opts.HistoryCap]
	}
	rank := make(map[string]int, len(visitHistory))
	for i, boardID := range visitHistory {
		if _, seen := rank[boardID]; !seen {
			rank[boardID] = i
		}
	}

	type scored struct {
		t     models.Thread
		score float64
	}
	out := make([]scored, 0, len(pool))
	for _, t := range pool {
		affinity := 0.0
		if idx, ok := rank[t.Board]; ok {
			affinity = float64(opts.HistoryCap-idx) / float64(opts.HistoryCap)
		}
		out = append(out, scored{t: t, score: affinity + rng.Float64()*opts.Jitter})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })

	n := opts.ResultSize
	if n > len(out) {
		n = len(out)
	}
	res := make([]models.Thread, 0, n)
	for _, s := range out[:n] {
		res = append(res, s.t)
	}
	return res
}
