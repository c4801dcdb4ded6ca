package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// reply is the only output shape the scheduler accepts from a model.
type reply struct {
	Content string `json:"content"`
}

// parseReplies extracts the JSON array a completion is required to contain
// and validates its shape strictly: anything other than a non-empty array
// of objects with non-empty "content" strings is a failure, producing zero
// replies rather than a partial or malformed post.
func parseReplies(raw string) ([]reply, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in output")
	}
	var out []reply
	dec := json.NewDecoder(strings.NewReader(raw[start : end+1]))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("invalid reply array: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty reply array")
	}
	for i, r := range out {
		if strings.TrimSpace(r.Content) == "" {
			return nil, fmt.Errorf("reply %d has empty content", i+1)
		}
	}
	return out, nil
}
