package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/praeco/internal/models"
)

// EmitFunc receives candidates from an extraction engine in page-encounter
// order.
type EmitFunc func(candidate *models.RawCandidate)

// ExtractStats summarizes one extraction pass.
type ExtractStats struct {
	PagesFetched  int
	FieldFailures int
}

// ExtractionEngine produces raw candidate records for a source. Extraction
// is finite and not restartable mid-sequence: a fresh call re-fetches from
// page one.
type ExtractionEngine interface {
	// Name returns the engine identifier ("static", "dynamic", "raw")
	Name() models.Engine

	// Extract walks the source's pages and emits candidates in encounter
	// order. Individual field parse failures are non-fatal and counted in
	// the returned stats.
	Extract(ctx context.Context, source *models.SourceConfig, emit EmitFunc) (*ExtractStats, error)
}

// Dispatcher runs one scrape for one source and records the outcome.
type Dispatcher interface {
	// Dispatch executes a full scrape run: extract, deduplicate, advance
	// lifecycles, regenerate metadata, and write the ScrapeLog.
	Dispatch(ctx context.Context, source *models.SourceConfig) (*models.ScrapeLog, error)
}

// SchedulerService decides which sources are due and hands them to the
// dispatch worker pool.
type SchedulerService interface {
	// Start begins the scheduler tick
	Start() error

	// Stop halts the scheduler and drains in-flight dispatches
	Stop() error

	// Tick returns the ids of sources due for dispatch at now, excluding
	// sources already in flight.
	Tick(now time.Time) []string

	// TriggerScrape enqueues a dispatch for one source. force bypasses the
	// due-time check but still respects the in-flight exclusion.
	TriggerScrape(sourceID string, force bool) error
}

// Notifier receives operational signals. The notification layer outside
// this core subscribes through this interface.
type Notifier interface {
	// OnSourceDisabled fires when a source is auto-disabled after repeated
	// consecutive failures.
	OnSourceDisabled(sourceID, reason string)
}

// KeyphraseExtractor derives a bounded set of keyword phrases from text.
type KeyphraseExtractor interface {
	// Name identifies the extraction method, recorded on SEOMetadata.
	Name() string

	// Extract returns up to max keyphrases, best first.
	Extract(text string, max int) ([]string, error)
}
