package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praeco/internal/common"
	"github.com/ternarybob/praeco/internal/interfaces"
	"github.com/ternarybob/praeco/internal/models"
	"github.com/ternarybob/praeco/internal/services/dedup"
	"github.com/ternarybob/praeco/internal/services/lifecycle"
	"github.com/ternarybob/praeco/internal/services/metadata"
)

// EngineProvider resolves an engine variant to a constructed extraction
// engine. Satisfied by extract.Registry.
type EngineProvider interface {
	Engine(name models.Engine) (interfaces.ExtractionEngine, error)
}

// Service is the scraper dispatcher: it runs one scrape for one source
// end to end and records the run. Each dispatch operates on its own
// result set and commits independently, so one source's failure never
// blocks or corrupts another's run.
type Service struct {
	registry  EngineProvider
	dedup     *dedup.Service
	lifecycle *lifecycle.Engine
	metadata  *metadata.Service
	storage   interfaces.StorageManager
	notifier  interfaces.Notifier
	config    common.DispatchConfig
	logger    arbor.ILogger
}

// NewService creates the dispatcher
func NewService(
	registry EngineProvider,
	dedupService *dedup.Service,
	lifecycleEngine *lifecycle.Engine,
	metadataService *metadata.Service,
	storage interfaces.StorageManager,
	notifier interfaces.Notifier,
	config common.DispatchConfig,
	logger arbor.ILogger,
) *Service {
	return &Service{
		registry:  registry,
		dedup:     dedupService,
		lifecycle: lifecycleEngine,
		metadata:  metadataService,
		storage:   storage,
		notifier:  notifier,
		config:    config,
		logger:    logger,
	}
}

// Dispatch executes a full scrape run for one source: extract with retry,
// deduplicate, advance lifecycles, regenerate metadata, persist the
// ScrapeLog. Extraction results are fully materialized before any merge
// runs, so a run never applies a silently truncated page set.
func (s *Service) Dispatch(ctx context.Context, source *models.SourceConfig) (*models.ScrapeLog, error) {
	runLog := &models.ScrapeLog{
		ID:        common.NewRunID(),
		SourceID:  source.ID,
		Engine:    source.Engine,
		StartedAt: time.Now(),
	}

	s.logger.Info().
		Str("source", source.ID).
		Str("engine", string(source.Engine)).
		Str("run_id", runLog.ID).
		Msg("Dispatch started")

	if !source.Active {
		err := &common.SourceDisabledError{SourceID: source.ID}
		s.finishRun(ctx, runLog, models.OutcomeFailure, err)
		return runLog, err
	}

	engine, err := s.registry.Engine(source.Engine)
	if err != nil {
		// EngineUnavailable: fail fast, no retry
		s.finishRun(ctx, runLog, models.OutcomeFailure, err)
		s.recordSourceOutcome(ctx, source, false)
		return runLog, err
	}

	runCtx, cancel := context.WithTimeout(ctx, s.config.RunTimeout())
	defer cancel()

	// Materialize the full candidate set under the retry policy. Each
	// attempt restarts extraction from page one.
	policy := s.retryPolicyFor(source)
	var candidates []*models.RawCandidate
	var stats *interfaces.ExtractStats
	attempts, extractErr := policy.Execute(runCtx, s.logger, func() error {
		candidates = candidates[:0]
		st, err := engine.Extract(runCtx, source, func(c *models.RawCandidate) {
			candidates = append(candidates, c)
		})
		if st != nil {
			stats = st
		}
		return err
	})

	runLog.Retries = attempts - 1
	if stats != nil {
		runLog.PagesFetched = stats.PagesFetched
		runLog.FieldParseFailures = stats.FieldFailures
	}
	runLog.CandidatesFound = len(candidates)

	if extractErr != nil && len(candidates) == 0 {
		s.finishRun(ctx, runLog, models.OutcomeFailure, extractErr)
		s.recordSourceOutcome(ctx, source, false)
		return runLog, extractErr
	}

	// Merge phase: candidates are processed in page-encounter order. Each
	// merge commits independently; work already committed stands if the
	// deadline expires mid-run.
	var mergeErr error
	for _, candidate := range candidates {
		if err := s.applyCandidate(runCtx, source, candidate, runLog); err != nil {
			mergeErr = err
			if runCtx.Err() != nil {
				break
			}
			s.logger.Warn().
				Err(err).
				Str("source", source.ID).
				Str("title", candidate.Title).
				Msg("Failed to apply candidate")
		}
	}

	outcome := models.OutcomeSuccess
	var detail error
	switch {
	case extractErr != nil:
		outcome, detail = models.OutcomePartial, extractErr
	case mergeErr != nil:
		outcome, detail = models.OutcomePartial, mergeErr
	}

	s.finishRun(ctx, runLog, outcome, detail)
	s.recordSourceOutcome(ctx, source, outcome != models.OutcomeFailure)

	s.logger.Info().
		Str("source", source.ID).
		Str("run_id", runLog.ID).
		Str("outcome", string(outcome)).
		Int("found", runLog.CandidatesFound).
		Int("new", runLog.CandidatesNew).
		Int("updated", runLog.CandidatesUpdated).
		Int("ignored", runLog.CandidatesIgnored).
		Int("retries", runLog.Retries).
		Msg("Dispatch finished")
	return runLog, nil
}

// retryPolicyFor honors the per-source retry cap when one is configured.
func (s *Service) retryPolicyFor(source *models.SourceConfig) *RetryPolicy {
	policy := NewRetryPolicy(s.config)
	if source.MaxRetries > 0 {
		policy.MaxAttempts = source.MaxRetries
	}
	return policy
}

// applyCandidate resolves one candidate and applies the outcome, retrying
// the merge on a revision conflict with a fresh read.
func (s *Service) applyCandidate(ctx context.Context, source *models.SourceConfig, candidate *models.RawCandidate, runLog *models.ScrapeLog) error {
	for attempt := 0; attempt < s.config.MergeConflictRetries; attempt++ {
		resolution, err := s.dedup.Resolve(ctx, candidate, source.ID)
		if err != nil {
			return err
		}

		now := time.Now()
		switch resolution.Decision {
		case dedup.DecisionIgnore:
			runLog.CandidatesIgnored++
			return nil

		case dedup.DecisionCreate:
			posting, err := s.newPosting(ctx, source, candidate, runLog.ID, now)
			if err != nil {
				return err
			}
			if err := s.storage.PostingStorage().CreatePosting(ctx, posting); err != nil {
				return err
			}
			runLog.CandidatesNew++
			return nil

		case dedup.DecisionUpdate:
			posting := resolution.Existing
			expected := posting.Revision

			beforeTitle := posting.Title
			beforeDescription := posting.Description
			beforeDepartment := posting.Department

			changed := dedup.Merge(posting, candidate)
			advanced := s.lifecycle.Advance(posting, candidate, runLog.ID, now)
			if !changed && !advanced {
				runLog.CandidatesIgnored++
				return nil
			}

			if posting.Title != beforeTitle ||
				posting.Description != beforeDescription ||
				posting.Department != beforeDepartment {
				posting.SEO = s.metadata.Generate(posting)
			}

			err = s.storage.PostingStorage().UpdatePosting(ctx, posting, expected)
			if errors.Is(err, common.ErrRevisionConflict) {
				s.logger.Debug().
					Str("posting", posting.ID).
					Int("attempt", attempt+1).
					Msg("Revision conflict, retrying merge with fresh read")
				continue
			}
			if err != nil {
				return err
			}
			runLog.CandidatesUpdated++
			return nil
		}
	}
	return fmt.Errorf("merge abandoned after %d revision conflicts: %w",
		s.config.MergeConflictRetries, common.ErrRevisionConflict)
}

// newPosting builds the durable entity for a first sighting.
func (s *Service) newPosting(ctx context.Context, source *models.SourceConfig, candidate *models.RawCandidate, runID string, now time.Time) (*models.JobPosting, error) {
	posting := &models.JobPosting{
		ID:          common.NewPostingID(),
		SourceID:    source.ID,
		Fingerprint: candidate.Fingerprint(source.ID),
		FirstSeenAt: now,
	}
	dedup.Merge(posting, candidate)

	slug, err := s.uniqueSlug(ctx, source.ID, posting.Title)
	if err != nil {
		return nil, err
	}
	posting.Slug = slug

	s.lifecycle.InitialStatus(posting, candidate, runID, now)
	posting.SEO = s.metadata.Generate(posting)
	return posting, nil
}

// uniqueSlug derives the posting slug, suffixing on collision within the
// source.
func (s *Service) uniqueSlug(ctx context.Context, sourceID, title string) (string, error) {
	base := models.Slugify(title)
	slug := base
	for i := 2; ; i++ {
		existing, err := s.storage.PostingStorage().GetPostingBySlug(ctx, sourceID, slug)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}

// finishRun stamps and persists the ScrapeLog. The log is written even
// for failed runs; it is the operational record.
func (s *Service) finishRun(ctx context.Context, runLog *models.ScrapeLog, outcome models.Outcome, detail error) {
	runLog.CompletedAt = time.Now()
	runLog.Outcome = outcome
	if detail != nil {
		runLog.ErrorDetail = detail.Error()
	}

	if err := s.storage.ScrapeLogStorage().SaveScrapeLog(ctx, runLog); err != nil {
		s.logger.Error().Err(err).Str("run_id", runLog.ID).Msg("Failed to persist scrape log")
	}
}

// recordSourceOutcome updates per-source bookkeeping: the last-run
// timestamp and the consecutive-failure counter. Crossing the failure
// threshold flips the source inactive and fires OnSourceDisabled once.
func (s *Service) recordSourceOutcome(ctx context.Context, source *models.SourceConfig, ok bool) {
	source.LastRunAt = time.Now()

	if ok {
		source.ConsecutiveFailures = 0
	} else {
		source.ConsecutiveFailures++
		if source.ConsecutiveFailures >= s.config.DisableAfterFailures && source.Active {
			source.Active = false
			reason := fmt.Sprintf("%d consecutive failed dispatch runs", source.ConsecutiveFailures)
			s.logger.Warn().
				Str("source", source.ID).
				Str("reason", reason).
				Msg("Source auto-disabled")
			if s.notifier != nil {
				s.notifier.OnSourceDisabled(source.ID, reason)
			}
		}
	}

	if err := s.storage.SourceStorage().SaveSource(ctx, source); err != nil {
		s.logger.Error().Err(err).Str("source", source.ID).Msg("Failed to persist source bookkeeping")
	}
}
