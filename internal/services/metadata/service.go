package metadata

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praeco/internal/common"
	"github.com/ternarybob/praeco/internal/interfaces"
	"github.com/ternarybob/praeco/internal/models"
)

const (
	maxTitleLen       = 60
	maxDescriptionLen = 160

	// Description length band considered ideal for the quality score
	idealDescMin = 80
	idealDescMax = 2000
)

// Service derives SEO metadata from a posting's textual fields. Titles and
// descriptions come from deterministic templates, never free-generated
// text, so output is reproducible and testable.
type Service struct {
	primary  interfaces.KeyphraseExtractor
	fallback interfaces.KeyphraseExtractor
	config   common.MetadataConfig
	logger   arbor.ILogger
}

// NewService creates a MetadataGenerator. The primary extractor is chosen
// from configuration; frequency extraction always stands by as the
// fallback when the primary yields nothing.
func NewService(config common.MetadataConfig, logger arbor.ILogger) *Service {
	var primary interfaces.KeyphraseExtractor
	switch config.Extractor {
	case "frequency":
		primary = &FrequencyExtractor{}
	default:
		primary = &RakeExtractor{}
	}
	return &Service{
		primary:  primary,
		fallback: &FrequencyExtractor{},
		config:   config,
		logger:   logger,
	}
}

// Generate builds fresh SEO metadata for a posting. Invoked on creation
// and on updates that change title, description or department.
func (s *Service) Generate(posting *models.JobPosting) models.SEOMetadata {
	text := posting.Title
	if posting.Description != "" {
		text += ". " + posting.Description
	}

	keywords, method := s.extractKeywords(text)

	return models.SEOMetadata{
		Title:        s.seoTitle(posting),
		Description:  s.seoDescription(posting),
		Keywords:     keywords,
		QualityScore: QualityScore(posting, len(keywords)),
		Method:       method,
		GeneratedAt:  time.Now(),
	}
}

// extractKeywords runs the primary extractor and degrades to frequency
// extraction rather than failing metadata generation outright.
func (s *Service) extractKeywords(text string) ([]string, string) {
	keywords, err := s.primary.Extract(text, s.config.MaxKeywords)
	if err == nil && len(keywords) >= s.config.MinKeywords {
		return keywords, s.primary.Name()
	}
	if err != nil {
		s.logger.Debug().Err(err).Str("method", s.primary.Name()).Msg("Primary keyphrase extraction failed, using fallback")
	}

	fallbackKeywords, fbErr := s.fallback.Extract(text, s.config.MaxKeywords)
	if fbErr != nil {
		// Keep whatever the primary produced, even if short
		return keywords, s.primary.Name()
	}
	if len(fallbackKeywords) > len(keywords) {
		return fallbackKeywords, s.fallback.Name()
	}
	return keywords, s.primary.Name()
}

// seoTitle interpolates title and organization into a template and trims
// to the 60-character SEO limit on a word boundary.
func (s *Service) seoTitle(posting *models.JobPosting) string {
	title := strings.TrimSpace(posting.Title)
	if posting.Department != "" {
		combined := fmt.Sprintf("%s | %s", title, strings.TrimSpace(posting.Department))
		if len(combined) <= maxTitleLen {
			return combined
		}
	}
	return truncateWords(title, maxTitleLen)
}

// seoDescription interpolates title, organization and the nearest deadline
// into a template and trims to the 160-character SEO limit.
func (s *Service) seoDescription(posting *models.JobPosting) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(posting.Title))
	if posting.Department != "" {
		b.WriteString(" recruitment by ")
		b.WriteString(strings.TrimSpace(posting.Department))
	}
	b.WriteString(".")

	if deadline := nearestDeadline(posting); deadline != nil {
		b.WriteString(fmt.Sprintf(" Last date %s.", deadline.Format("02 Jan 2006")))
	} else if posting.PostCount != nil {
		b.WriteString(fmt.Sprintf(" %d posts.", *posting.PostCount))
	}

	return truncateWords(b.String(), maxDescriptionLen)
}

// nearestDeadline prefers the application-end date, then the exam date.
func nearestDeadline(posting *models.JobPosting) *time.Time {
	if posting.ApplicationEnd != nil {
		return posting.ApplicationEnd
	}
	return posting.ExamDate
}

// QualityScore computes a 0-100 score as a pure function of the posting's
// field completeness, description length and keyword count. Weights:
// structured dates 40, post count 10, qualification 10, salary 5,
// description band 20, keywords 15.
func QualityScore(posting *models.JobPosting, keywordCount int) int {
	score := 0

	for _, d := range []*time.Time{
		posting.NotificationDate,
		posting.ApplicationStart,
		posting.ApplicationEnd,
		posting.ExamDate,
		posting.ResultDate,
	} {
		if d != nil {
			score += 8
		}
	}

	if posting.PostCount != nil {
		score += 10
	}
	if posting.Qualification != "" {
		score += 10
	}
	if posting.Salary != "" {
		score += 5
	}

	descLen := len(posting.Description)
	switch {
	case descLen >= idealDescMin && descLen <= idealDescMax:
		score += 20
	case descLen > 0:
		score += 10
	}

	kw := keywordCount
	if kw > 10 {
		kw = 10
	}
	score += (kw * 3) / 2

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

// truncateWords trims s to at most max characters, cutting on a word
// boundary when one exists.
func truncateWords(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " ,.;:-")
}
