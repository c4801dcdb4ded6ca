package models

// Board status values. Locked boards reject new threads and posts but stay
// readable.
const (
	BoardActive = "active"
	BoardLocked = "locked"
)

type Board struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Status      string `json:"status"`
	// CreatedTS timestamp (ns)
	CreatedTS int64 `json:"created_ts,omitempty"`
}
