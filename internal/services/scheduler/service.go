package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praeco/internal/common"
	"github.com/ternarybob/praeco/internal/interfaces"
	"github.com/ternarybob/praeco/internal/services/lifecycle"
	"github.com/ternarybob/praeco/internal/services/workers"
)

// Service implements SchedulerService. A cron tick checks every active
// source against its scrape interval and hands due sources to the worker
// pool. A second cron entry runs the archival sweep.
type Service struct {
	dispatcher interfaces.Dispatcher
	lifecycle  *lifecycle.Engine
	storage    interfaces.StorageManager
	pool       *workers.Pool
	config     common.SchedulerConfig
	cron       *cron.Cron
	logger     arbor.ILogger

	mu       sync.Mutex
	inFlight map[string]bool
	running  bool
}

// NewService creates the scheduler service.
func NewService(
	dispatcher interfaces.Dispatcher,
	lifecycleEngine *lifecycle.Engine,
	storage interfaces.StorageManager,
	pool *workers.Pool,
	config common.SchedulerConfig,
	logger arbor.ILogger,
) *Service {
	return &Service{
		dispatcher: dispatcher,
		lifecycle:  lifecycleEngine,
		storage:    storage,
		pool:       pool,
		config:     config,
		cron:       cron.New(),
		logger:     logger,
		inFlight:   make(map[string]bool),
	}
}

// Start registers the tick and archival cron entries and begins scheduling.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	tickSchedule := s.config.TickSchedule
	if tickSchedule == "" {
		tickSchedule = "* * * * *"
	}
	if _, err := s.cron.AddFunc(tickSchedule, func() {
		s.runTick(time.Now())
	}); err != nil {
		return fmt.Errorf("failed to register scheduler tick: %w", err)
	}

	archiveSchedule := s.config.ArchiveSchedule
	if archiveSchedule == "" {
		archiveSchedule = "0 * * * *"
	}
	if _, err := s.cron.AddFunc(archiveSchedule, func() {
		if err := s.ArchiveSweep(context.Background(), time.Now()); err != nil {
			s.logger.Error().Err(err).Msg("Archival sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to register archival sweep: %w", err)
	}

	s.pool.Start()
	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("tick", tickSchedule).
		Str("archive", archiveSchedule).
		Int("workers", s.config.Workers).
		Msg("Scheduler started")
	return nil
}

// Stop halts the cron entries and drains in-flight dispatches.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.pool.Stop()

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// Tick returns the ids of sources due for dispatch at now, excluding
// sources that already have a run in flight. It does not enqueue anything.
func (s *Service) Tick(now time.Time) []string {
	sources, err := s.storage.SourceStorage().ListActiveSources(context.Background())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list sources for tick")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var due []string
	for _, source := range sources {
		if s.inFlight[source.ID] {
			continue
		}
		if source.Due(now) {
			due = append(due, source.ID)
		}
	}
	return due
}

// runTick enqueues every source the tick found due.
func (s *Service) runTick(now time.Time) {
	for _, sourceID := range s.Tick(now) {
		if err := s.enqueue(sourceID); err != nil {
			s.logger.Warn().Err(err).Str("source", sourceID).Msg("Failed to enqueue due source")
		}
	}
}

// TriggerScrape enqueues a dispatch for one source. force bypasses the
// due-time and active checks but still respects the in-flight exclusion.
func (s *Service) TriggerScrape(sourceID string, force bool) error {
	source, err := s.storage.SourceStorage().GetSource(context.Background(), sourceID)
	if err != nil {
		return err
	}
	if source == nil {
		return fmt.Errorf("source not found: %s", sourceID)
	}

	if !force {
		if !source.Active {
			return &common.SourceDisabledError{SourceID: sourceID}
		}
		if !source.Due(time.Now()) {
			return fmt.Errorf("source not due: %s", sourceID)
		}
	}

	return s.enqueue(sourceID)
}

// enqueue marks the source in flight and submits the dispatch task. The
// in-flight mark is cleared when the run finishes, successful or not.
func (s *Service) enqueue(sourceID string) error {
	s.mu.Lock()
	if s.inFlight[sourceID] {
		s.mu.Unlock()
		return fmt.Errorf("scrape already in flight for source: %s", sourceID)
	}
	s.inFlight[sourceID] = true
	s.mu.Unlock()

	err := s.pool.Submit(workers.Task{
		Name: "scrape:" + sourceID,
		Run: func(ctx context.Context) {
			defer s.clearInFlight(sourceID)
			s.runScrape(ctx, sourceID)
		},
	})
	if err != nil {
		s.clearInFlight(sourceID)
		return err
	}
	return nil
}

func (s *Service) clearInFlight(sourceID string) {
	s.mu.Lock()
	delete(s.inFlight, sourceID)
	s.mu.Unlock()
}

// runScrape re-reads the source inside the worker so the dispatch sees the
// latest bookkeeping, then hands off to the dispatcher.
func (s *Service) runScrape(ctx context.Context, sourceID string) {
	source, err := s.storage.SourceStorage().GetSource(ctx, sourceID)
	if err != nil || source == nil {
		s.logger.Error().Err(err).Str("source", sourceID).Msg("Failed to load source for dispatch")
		return
	}

	if _, err := s.dispatcher.Dispatch(ctx, source); err != nil {
		s.logger.Warn().Err(err).Str("source", sourceID).Msg("Dispatch returned error")
	}
}

// ArchiveSweep archives postings whose archival anchor has aged past the
// retention window. Archival is terminal, so already archived postings are
// never revisited.
func (s *Service) ArchiveSweep(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-s.lifecycle.Retention())
	postings, err := s.storage.PostingStorage().ListUnarchivedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to list archival candidates: %w", err)
	}

	runID := common.NewRunID()
	archived := 0
	for _, posting := range postings {
		if !s.lifecycle.ShouldArchive(posting, now) {
			continue
		}
		expected := posting.Revision
		s.lifecycle.Archive(posting, runID, now)
		if err := s.storage.PostingStorage().UpdatePosting(ctx, posting, expected); err != nil {
			s.logger.Warn().Err(err).Str("posting", posting.ID).Msg("Failed to archive posting")
			continue
		}
		archived++
	}

	if archived > 0 {
		s.logger.Info().
			Int("archived", archived).
			Str("run_id", runID).
			Msg("Archival sweep completed")
	}
	return nil
}

var _ interfaces.SchedulerService = (*Service)(nil)
