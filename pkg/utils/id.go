package utils

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"strings"
)

func randHex(n int) string {
	b := make([]byte, (n+1)/2)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)[:n]
}

// GenID returns a random 16-char hex id for posts and reports.
func GenID() string { return randHex(16) }

// GenThreadID returns a random thread id.
func GenThreadID() string { return "t" + randHex(15) }

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// MakeSlug derives a stable human-friendly slug from a title and id suffix.
func MakeSlug(title, id string) string {
	s := slugStrip.ReplaceAllString(strings.ToLower(title), "-")
	s = strings.Trim(s, "-")
	if len(s) > 48 {
		s = s[:48]
	}
	tail := id
	if len(tail) > 8 {
		tail = tail[:8]
	}
	if s == "" {
		return tail
	}
	return s + "-" + tail
}
