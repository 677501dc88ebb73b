package lifecycle

import (
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praeco/internal/common"
	"github.com/ternarybob/praeco/internal/models"
)

// Engine computes lifecycle transitions for job postings. Status is
// monotonic: a re-scrape that omits a field which previously advanced a
// posting never moves it backwards. Only explicit archival is terminal.
type Engine struct {
	retention time.Duration
	logger    arbor.ILogger
}

// NewEngine creates a lifecycle engine with the configured retention
// window for archival.
func NewEngine(config common.LifecycleConfig, logger arbor.ILogger) *Engine {
	return &Engine{
		retention: config.Retention(),
		logger:    logger,
	}
}

// InferStatus derives the most advanced status the candidate's fields
// support. Presence of a result date wins, then answer key, then admit
// card; a bare announcement infers announced.
func InferStatus(candidate *models.RawCandidate) models.Status {
	switch {
	case candidate.ResultDate != nil:
		return models.StatusResult
	case candidate.AnswerKeyDate != nil:
		return models.StatusAnswerKey
	case candidate.AdmitCardDate != nil:
		return models.StatusAdmitCard
	default:
		return models.StatusAnnounced
	}
}

// Advance computes the posting's next status as the maximum of its current
// status and the status inferred from the candidate. A real transition
// appends exactly one Milestone; recomputing the same status appends
// nothing, so idempotent re-scrapes produce no history noise. Returns true
// when a transition happened.
func (e *Engine) Advance(posting *models.JobPosting, candidate *models.RawCandidate, runID string, now time.Time) bool {
	inferred := InferStatus(candidate)
	next := models.MaxStatus(posting.Status, inferred)
	if next == posting.Status {
		return false
	}

	observed := observedDate(candidate, next, now)
	posting.Status = next
	posting.AppendMilestone(models.Milestone{
		Type:       next,
		ObservedAt: observed,
		RunID:      runID,
		CreatedAt:  now,
	})

	e.logger.Info().
		Str("posting", posting.ID).
		Str("status", string(next)).
		Str("run_id", runID).
		Msg("Posting advanced")
	return true
}

// InitialStatus stamps a freshly created posting with its inferred status
// and first milestone.
func (e *Engine) InitialStatus(posting *models.JobPosting, candidate *models.RawCandidate, runID string, now time.Time) {
	status := InferStatus(candidate)
	posting.Status = status
	posting.AppendMilestone(models.Milestone{
		Type:       status,
		ObservedAt: observedDate(candidate, status, now),
		RunID:      runID,
		CreatedAt:  now,
	})
}

// Retention returns the configured archival window.
func (e *Engine) Retention() time.Duration {
	return e.retention
}

// ShouldArchive reports whether the retention window has elapsed for a
// posting. The window is measured from the result date when one was ever
// observed, otherwise from the last update.
func (e *Engine) ShouldArchive(posting *models.JobPosting, now time.Time) bool {
	if posting.Status == models.StatusArchived {
		return false
	}
	anchor := posting.LastUpdatedAt
	if posting.ResultDate != nil {
		anchor = *posting.ResultDate
	}
	return now.Sub(anchor) >= e.retention
}

// Archive moves a posting to the terminal archived state, appending the
// final milestone.
func (e *Engine) Archive(posting *models.JobPosting, runID string, now time.Time) {
	if posting.Status == models.StatusArchived {
		return
	}
	posting.Status = models.StatusArchived
	posting.AppendMilestone(models.Milestone{
		Type:       models.StatusArchived,
		ObservedAt: now,
		RunID:      runID,
		CreatedAt:  now,
	})

	e.logger.Info().
		Str("posting", posting.ID).
		Str("run_id", runID).
		Msg("Posting archived")
}

// observedDate picks the candidate date field that triggered a transition
// to the given status; now when the field carried no parseable date.
func observedDate(candidate *models.RawCandidate, status models.Status, now time.Time) time.Time {
	var d *time.Time
	switch status {
	case models.StatusResult:
		d = candidate.ResultDate
	case models.StatusAnswerKey:
		d = candidate.AnswerKeyDate
	case models.StatusAdmitCard:
		d = candidate.AdmitCardDate
	case models.StatusAnnounced:
		d = candidate.NotificationDate
	}
	if d != nil {
		return *d
	}
	return now
}
