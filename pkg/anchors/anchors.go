// Package anchors parses and resolves >>N back-references. Position N is
// rank in ascending createdAt order, 1-based; it is never a stored field,
// so resolution is stable only because post timestamps are immutable and
// deletions are soft.
package anchors

import (
	"regexp"
	"strconv"

	"anonboard/pkg/models"
)

var anchorRe = regexp.MustCompile(`>>(\d+)`)

// Ref is one parsed anchor. Broken marks references that fall outside the
// thread's current range (>>0, or past the last post).
type Ref struct {
	Raw      string `json:"raw"`
	Position int    `json:"position"`
	Broken   bool   `json:"broken"`
	// PostID is the resolved target, empty when broken.
	PostID string `json:"post_id,omitempty"`
}

// Parse extracts all >>N references from a post body, in order of
// appearance. Duplicate references are kept.
func Parse(content string) []Ref {
	matches := anchorRe.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]Ref, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			// digits too large for int; treat as broken
			out = append(out, Ref{Raw: m[0], Broken: true})
			continue
		}
		out = append(out, Ref{Raw: m[0], Position: n})
	}
	return out
}

// Resolve maps parsed refs onto a thread's posts (ascending createdAt
// order). Positions outside [1, len(posts)] resolve as broken, never to an
// out-of-range post.
func Resolve(refs []Ref, posts []models.Post) []Ref {
	out := make([]Ref, len(refs))
	for i, r := range refs {
		if r.Broken || r.Position < 1 || r.Position > len(posts) {
			r.Broken = true
			r.PostID = ""
		} else {
			r.PostID = posts[r.Position-1].ID
		}
		out[i] = r
	}
	return out
}

// ResolveContent is the convenience path used by thread rendering: parse a
// body and resolve against the thread's posts in one step.
func ResolveContent(content string, posts []models.Post) []Ref {
	return Resolve(Parse(content), posts)
}
