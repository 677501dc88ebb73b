package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"
)

// RawCandidate is an engine-produced, not-yet-persisted record. It exists
// only within a single dispatch run; the Deduplicator decides whether it
// becomes a new posting, an update, or nothing.
type RawCandidate struct {
	Title         string
	Description   string
	Department    string
	Qualification string
	Salary        string

	NotificationDate *time.Time
	ApplicationStart *time.Time
	ApplicationEnd   *time.Time
	ExamDate         *time.Time
	AdmitCardDate    *time.Time
	AnswerKeyDate    *time.Time
	ResultDate       *time.Time

	PostCount *int
	SourceURL string

	// ParseFailures lists field keys that were present on the page but
	// failed to normalize. Tallied on the ScrapeLog; never fatal.
	ParseFailures []string
}

// Fingerprint returns a stable content hash over the normalized title, the
// owning source and the salient dates. Incidental whitespace and case
// differences produce the same fingerprint.
func (c *RawCandidate) Fingerprint(sourceID string) string {
	parts := []string{
		NormalizeTitle(c.Title),
		sourceID,
		fingerprintDate(c.NotificationDate),
		fingerprintDate(c.ApplicationEnd),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func fingerprintDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02")
}

// NormalizeTitle lowercases a title and collapses runs of whitespace and
// punctuation into single spaces so token comparison and fingerprinting are
// insensitive to incidental formatting.
func NormalizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	lastSpace := true
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// TitleTokens returns the set of normalized title tokens.
func TitleTokens(title string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, tok := range strings.Fields(NormalizeTitle(title)) {
		tokens[tok] = struct{}{}
	}
	return tokens
}
