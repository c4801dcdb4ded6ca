// Package identity derives the pseudonymous ids shown next to posts.
package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"
)

// DailyID returns the pseudonymous id for an ip on a given day. The id
// rotates at UTC midnight; the salt keeps ids unlinkable across
// deployments.
func DailyID(ip, salt string, now time.Time) string {
	day := now.UTC().Format("2006-01-02")
	sum := sha256.Sum256([]byte(ip + "-" + day + "-" + salt))
	return base64.RawURLEncoding.EncodeToString(sum[:])[:9]
}

// SyntheticID returns a fresh AI_xxxxxxxxx identity for a synthetic post.
func SyntheticID() string {
	b := make([]byte, 5)
	_, _ = rand.Read(b)
	return "AI_" + hex.EncodeToString(b)[:9]
}

// HashIP returns the truncated hash under which reporter addresses are
// stored; the raw address is never persisted.
func HashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])[:16]
}
