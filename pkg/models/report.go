package models

// Report status values.
const (
	ReportPending   = "pending"
	ReportResolved  = "resolved"
	ReportDismissed = "dismissed"
)

// Report references a post by id only; no cascade.
type Report struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
	// ReporterIP is stored hashed, never raw.
	ReporterIP string `json:"reporter_ip"`
	Status     string `json:"status"`
	CreatedTS  int64  `json:"created_ts"`
}
