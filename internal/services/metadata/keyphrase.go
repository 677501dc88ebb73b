package metadata

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
)

// stopwords break candidate phrases and are excluded from frequency
// counts. Small by design: job announcement text is short and formulaic.
var stopwords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "than", "so",
		"of", "in", "on", "at", "to", "for", "from", "by", "with", "without",
		"as", "is", "are", "was", "were", "be", "been", "being", "has",
		"have", "had", "will", "shall", "may", "can", "could", "would",
		"should", "must", "do", "does", "did", "not", "no", "nor", "it",
		"its", "this", "that", "these", "those", "their", "there", "here",
		"all", "any", "each", "more", "most", "other", "some", "such",
		"only", "own", "same", "very", "who", "whom", "which", "what",
		"when", "where", "how", "why", "before", "after", "under", "over",
		"between", "into", "through", "against", "about", "please", "etc",
	} {
		stopwords[w] = struct{}{}
	}
}

// RakeExtractor is the primary keyphrase extractor: a RAKE-style
// co-occurrence scorer over stopword-delimited phrases. Deterministic and
// model-free, so output is reproducible in tests.
type RakeExtractor struct{}

// Name identifies the method on SEOMetadata
func (e *RakeExtractor) Name() string { return "rake" }

// Extract returns up to max phrases, highest score first, with
// near-identical phrases collapsed by stem comparison.
func (e *RakeExtractor) Extract(text string, max int) ([]string, error) {
	phrases := candidatePhrases(text)
	if len(phrases) == 0 {
		return nil, fmt.Errorf("no candidate phrases in text")
	}

	// Word co-occurrence scores: degree/frequency
	freq := make(map[string]int)
	degree := make(map[string]int)
	for _, phrase := range phrases {
		for _, word := range phrase {
			freq[word]++
			degree[word] += len(phrase)
		}
	}

	type scored struct {
		phrase string
		score  float64
	}
	var ranked []scored
	for _, phrase := range phrases {
		score := 0.0
		for _, word := range phrase {
			score += float64(degree[word]) / float64(freq[word])
		}
		ranked = append(ranked, scored{phrase: strings.Join(phrase, " "), score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	seen := make(map[string]struct{})
	var result []string
	for _, s := range ranked {
		key := stemKey(s.phrase)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, s.phrase)
		if len(result) >= max {
			break
		}
	}
	return result, nil
}

// FrequencyExtractor is the fallback: plain word-frequency ranking over
// the text. Used when the primary extractor yields nothing.
type FrequencyExtractor struct{}

// Name identifies the method on SEOMetadata
func (e *FrequencyExtractor) Name() string { return "frequency" }

// Extract returns the max most frequent non-stopword words.
func (e *FrequencyExtractor) Extract(text string, max int) ([]string, error) {
	counts := make(map[string]int)
	order := make(map[string]int) // first-occurrence index for stable ties
	idx := 0
	for _, word := range tokenize(text) {
		if _, stop := stopwords[word]; stop || len(word) < 3 {
			continue
		}
		if _, ok := counts[word]; !ok {
			order[word] = idx
			idx++
		}
		counts[word]++
	}
	if len(counts) == 0 {
		return nil, fmt.Errorf("no significant words in text")
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.SliceStable(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return order[words[i]] < order[words[j]]
	})

	seen := make(map[string]struct{})
	var result []string
	for _, w := range words {
		key := stemKey(w)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, w)
		if len(result) >= max {
			break
		}
	}
	return result, nil
}

// candidatePhrases splits text into runs of content words between
// stopwords and sentence punctuation. Phrases longer than four words are
// noise in announcement text and are dropped.
func candidatePhrases(text string) [][]string {
	var phrases [][]string

	for _, fragment := range splitFragments(text) {
		var current []string
		flush := func() {
			if n := len(current); n > 0 && n <= 4 {
				phrases = append(phrases, current)
			}
			current = nil
		}

		for _, word := range tokenize(fragment) {
			if _, stop := stopwords[word]; stop || len(word) < 2 {
				flush()
				continue
			}
			current = append(current, word)
		}
		flush()
	}
	return phrases
}

// splitFragments breaks text on sentence and clause punctuation so a
// phrase never spans a sentence boundary.
func splitFragments(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case '.', ',', ';', ':', '!', '?', '(', ')', '[', ']', '|':
			return true
		}
		return false
	})
}

// tokenize lowercases and splits on anything that is not a letter or
// digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// stemKey collapses a phrase to its stemmed form so "recruitments 2025"
// and "recruitment 2025" dedupe to one keyword.
func stemKey(phrase string) string {
	words := strings.Fields(phrase)
	for i, w := range words {
		words[i] = english.Stem(w, false)
	}
	return strings.Join(words, " ")
}
