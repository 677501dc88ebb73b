package dedup

import (
	"time"

	"github.com/ternarybob/praeco/internal/models"
)

// TitleSimilarity returns the Jaccard overlap of two normalized title
// token sets, in [0,1]. Empty titles never match.
func TitleSimilarity(a, b string) float64 {
	tokensA := models.TitleTokens(a)
	tokensB := models.TitleTokens(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	intersection := 0
	for tok := range tokensA {
		if _, ok := tokensB[tok]; ok {
			intersection++
		}
	}
	union := len(tokensA) + len(tokensB) - intersection
	return float64(intersection) / float64(union)
}

// datesWithin reports whether two optional dates are both null or within
// the tolerance window of each other. A null on exactly one side is a
// mismatch: it usually means the source dropped the field mid-rescrape.
func datesWithin(a, b *time.Time, tolerance time.Duration) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	diff := a.Sub(*b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}
