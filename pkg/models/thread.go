package models

// Thread status values. Filled is terminal and checked on the write path;
// archived threads are hidden from primary listings but remain readable.
const (
	ThreadActive   = "active"
	ThreadFilled   = "filled"
	ThreadArchived = "archived"
	ThreadDeleted  = "deleted"
)

// MaxPostsPerThread is the hard capacity after which a thread flips to
// filled and permanently rejects new posts.
const MaxPostsPerThread = 1000

type Thread struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Board string `json:"board"`
	// Created timestamp (ns)
	CreatedTS int64 `json:"created_ts"`
	// LastUpdated timestamp (ns) - last post activity, synthetic or human
	LastUpdatedTS int64 `json:"last_updated_ts"`
	// PostCount is an incrementing counter, never recomputed from rows.
	// Soft-deleted posts stay counted so >>N anchors remain stable.
	PostCount int    `json:"post_count"`
	Views     int    `json:"views"`
	Momentum  int64  `json:"momentum"`
	Status    string `json:"status"`
	Tags      []string `json:"tags,omitempty"`

	// AIAnalysis holds the milestone-triggered summary, when present.
	AIAnalysis string `json:"ai_analysis,omitempty"`

	// Source attribution for threads generated from external content.
	SourceURL      string `json:"source_url,omitempty"`
	SourceTitle    string `json:"source_title,omitempty"`
	SourcePlatform string `json:"source_platform,omitempty"`
	IsAIGenerated  bool   `json:"is_ai_generated,omitempty"`
}
