package models

// Post status values. Deletion is always a status flip; rows are never
// removed so position-by-createdAt ordering cannot shift.
const (
	PostActive  = "active"
	PostDeleted = "deleted"
)

type Post struct {
	ID     string `json:"id"`
	Thread string `json:"thread"`
	// Author is the display name; defaults to the configured anonymous label.
	Author string `json:"author"`
	// UserID is a daily-rotating pseudonymous id, or AI_xxxxxxxxx for
	// synthetic posts.
	UserID  string `json:"user_id"`
	Content string `json:"content"`
	// CreatedTS timestamp (ns). Position within a thread is rank by this
	// field ascending; it is never changed retroactively.
	CreatedTS     int64  `json:"created_ts"`
	Status        string `json:"status"`
	IsAIGenerated bool   `json:"is_ai_generated,omitempty"`
	Likes         int    `json:"likes"`
}
