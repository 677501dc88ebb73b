package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/praeco/internal/models"
)

// SourceStorage manages source configurations
type SourceStorage interface {
	// SaveSource creates or updates a source configuration
	SaveSource(ctx context.Context, source *models.SourceConfig) error

	// GetSource retrieves a source by ID. A missing id may surface as an
	// error or as (nil, nil) depending on the implementation; callers
	// must treat both as absent.
	GetSource(ctx context.Context, id string) (*models.SourceConfig, error)

	// ListSources returns all sources
	ListSources(ctx context.Context) ([]*models.SourceConfig, error)

	// ListActiveSources returns sources with the active flag set
	ListActiveSources(ctx context.Context) ([]*models.SourceConfig, error)
}

// PostingStorage manages job postings. Updates carry an expected revision
// for the optimistic-concurrency check; a stale revision yields
// common.ErrRevisionConflict and the caller retries with a fresh read.
type PostingStorage interface {
	// CreatePosting persists a new posting. Fails if the ID already exists.
	CreatePosting(ctx context.Context, posting *models.JobPosting) error

	// UpdatePosting persists posting changes when the stored revision still
	// equals expectedRevision, bumping the revision by one.
	UpdatePosting(ctx context.Context, posting *models.JobPosting, expectedRevision int) error

	// GetPosting retrieves a posting by ID
	GetPosting(ctx context.Context, id string) (*models.JobPosting, error)

	// GetPostingByFingerprint looks up a posting by content fingerprint
	// within one source. Returns (nil, nil) when no posting matches.
	GetPostingByFingerprint(ctx context.Context, sourceID, fingerprint string) (*models.JobPosting, error)

	// GetPostingBySlug looks up a posting by slug within one source.
	// Returns (nil, nil) when no posting matches.
	GetPostingBySlug(ctx context.Context, sourceID, slug string) (*models.JobPosting, error)

	// GetPostingsBySource returns all postings for a source
	GetPostingsBySource(ctx context.Context, sourceID string) ([]*models.JobPosting, error)

	// ListUnarchivedBefore returns non-archived postings whose retention
	// anchor (result date when present, otherwise last update) falls
	// before the cutoff, for the archival sweep.
	ListUnarchivedBefore(ctx context.Context, cutoff time.Time) ([]*models.JobPosting, error)
}

// ScrapeLogStorage is the append-only store of dispatch run records
type ScrapeLogStorage interface {
	// SaveScrapeLog persists a completed run record
	SaveScrapeLog(ctx context.Context, log *models.ScrapeLog) error

	// ListScrapeLogs returns the most recent runs for a source, newest
	// first, up to limit (0 = no limit).
	ListScrapeLogs(ctx context.Context, sourceID string, limit int) ([]*models.ScrapeLog, error)
}

// StorageManager provides access to all storage interfaces
type StorageManager interface {
	SourceStorage() SourceStorage
	PostingStorage() PostingStorage
	ScrapeLogStorage() ScrapeLogStorage
	Close() error
}
