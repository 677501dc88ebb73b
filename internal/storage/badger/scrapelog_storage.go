package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praeco/internal/interfaces"
	"github.com/ternarybob/praeco/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ScrapeLogStorage implements the ScrapeLogStorage interface for Badger.
// The log is append-only: records are written once on run completion and
// never mutated.
type ScrapeLogStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewScrapeLogStorage creates a new ScrapeLogStorage instance
func NewScrapeLogStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ScrapeLogStorage {
	return &ScrapeLogStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ScrapeLogStorage) SaveScrapeLog(ctx context.Context, log *models.ScrapeLog) error {
	if log.ID == "" {
		return fmt.Errorf("scrape log ID is required")
	}
	if err := s.db.Store().Insert(log.ID, log); err != nil {
		return fmt.Errorf("failed to save scrape log: %w", err)
	}
	return nil
}

func (s *ScrapeLogStorage) ListScrapeLogs(ctx context.Context, sourceID string, limit int) ([]*models.ScrapeLog, error) {
	var logs []*models.ScrapeLog
	query := badgerhold.Where("SourceID").Eq(sourceID).SortBy("StartedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := s.db.Store().Find(&logs, query); err != nil {
		return nil, fmt.Errorf("failed to list scrape logs for source %s: %w", sourceID, err)
	}
	return logs, nil
}
