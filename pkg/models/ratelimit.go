package models

// RateLimitRecord is one fixed-window counter per (action, identity) key.
// Created on first hit, reset when the window expires, incremented
// otherwise. Expiry of stale records is an external concern.
type RateLimitRecord struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
	// LastHit timestamp (ns)
	LastHitTS int64 `json:"last_hit_ts"`
}
