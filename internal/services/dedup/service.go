package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praeco/internal/common"
	"github.com/ternarybob/praeco/internal/interfaces"
	"github.com/ternarybob/praeco/internal/models"
)

// Decision is the deduplicator's verdict for one raw candidate.
type Decision int

const (
	DecisionCreate Decision = iota // no existing posting matches
	DecisionUpdate                 // an existing posting matches and fields changed
	DecisionIgnore                 // an existing posting matches and nothing material changed
)

func (d Decision) String() string {
	switch d {
	case DecisionCreate:
		return "create"
	case DecisionUpdate:
		return "update"
	case DecisionIgnore:
		return "ignore"
	default:
		return "unknown"
	}
}

// Resolution carries the decision plus the matched posting for updates.
type Resolution struct {
	Decision Decision
	Existing *models.JobPosting
}

// Service matches raw candidates against existing postings. The dedup key
// always includes the source id; cross-source collisions are out of scope.
type Service struct {
	postings interfaces.PostingStorage
	config   common.DedupConfig
	logger   arbor.ILogger
}

// NewService creates a new Deduplicator
func NewService(postings interfaces.PostingStorage, config common.DedupConfig, logger arbor.ILogger) *Service {
	return &Service{
		postings: postings,
		config:   config,
		logger:   logger,
	}
}

// Resolve decides whether a candidate is a new posting, an update to an
// existing one, or a no-op. Matching is fingerprint-exact first, then
// fuzzy: title token overlap over the configured threshold plus
// application-end dates within tolerance (or both null).
func (s *Service) Resolve(ctx context.Context, candidate *models.RawCandidate, sourceID string) (*Resolution, error) {
	fingerprint := candidate.Fingerprint(sourceID)

	existing, err := s.postings.GetPostingByFingerprint(ctx, sourceID, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("fingerprint lookup failed: %w", err)
	}

	if existing == nil {
		existing, err = s.fuzzyMatch(ctx, candidate, sourceID)
		if err != nil {
			return nil, err
		}
	}

	if existing == nil {
		return &Resolution{Decision: DecisionCreate}, nil
	}

	if !materiallyChanged(existing, candidate) {
		return &Resolution{Decision: DecisionIgnore, Existing: existing}, nil
	}
	return &Resolution{Decision: DecisionUpdate, Existing: existing}, nil
}

// fuzzyMatch catches sources that edit a title slightly between scrapes.
func (s *Service) fuzzyMatch(ctx context.Context, candidate *models.RawCandidate, sourceID string) (*models.JobPosting, error) {
	postings, err := s.postings.GetPostingsBySource(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("source postings lookup failed: %w", err)
	}

	var best *models.JobPosting
	bestScore := 0.0
	for _, posting := range postings {
		if posting.Status == models.StatusArchived {
			continue
		}
		score := TitleSimilarity(posting.Title, candidate.Title)
		if score < s.config.TitleSimilarity {
			continue
		}
		if !datesWithin(posting.ApplicationEnd, candidate.ApplicationEnd, s.config.DateTolerance()) {
			continue
		}
		if score > bestScore {
			best = posting
			bestScore = score
		}
	}

	if best != nil {
		s.logger.Debug().
			Str("source", sourceID).
			Str("posting", best.ID).
			Str("candidate_title", candidate.Title).
			Msg("Fuzzy title match")
	}
	return best, nil
}

// Merge copies the candidate's fields onto the posting, overwriting only
// when the new value is non-null so a partial scrape never clears known
// data. Returns true when any field actually changed.
func Merge(posting *models.JobPosting, candidate *models.RawCandidate) bool {
	changed := false

	setString := func(target *string, value string) {
		if value != "" && value != *target {
			*target = value
			changed = true
		}
	}
	setDate := func(target **time.Time, value *time.Time) {
		if value == nil {
			return
		}
		if *target == nil || !(*target).Equal(*value) {
			*target = value
			changed = true
		}
	}

	setString(&posting.Title, candidate.Title)
	setString(&posting.Description, candidate.Description)
	setString(&posting.Department, candidate.Department)
	setString(&posting.Qualification, candidate.Qualification)
	setString(&posting.Salary, candidate.Salary)
	setString(&posting.SourceURL, candidate.SourceURL)

	setDate(&posting.NotificationDate, candidate.NotificationDate)
	setDate(&posting.ApplicationStart, candidate.ApplicationStart)
	setDate(&posting.ApplicationEnd, candidate.ApplicationEnd)
	setDate(&posting.ExamDate, candidate.ExamDate)
	setDate(&posting.AdmitCardDate, candidate.AdmitCardDate)
	setDate(&posting.AnswerKeyDate, candidate.AnswerKeyDate)
	setDate(&posting.ResultDate, candidate.ResultDate)

	if candidate.PostCount != nil && (posting.PostCount == nil || *posting.PostCount != *candidate.PostCount) {
		posting.PostCount = candidate.PostCount
		changed = true
	}

	return changed
}

// materiallyChanged reports whether applying the candidate would modify
// the posting. Mirrors Merge's null-preserving rules without mutating.
func materiallyChanged(posting *models.JobPosting, candidate *models.RawCandidate) bool {
	scratch := *posting
	return Merge(&scratch, candidate)
}
