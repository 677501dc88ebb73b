package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praeco/internal/interfaces"
	"github.com/ternarybob/praeco/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// SourceStorage implements the SourceStorage interface for Badger
type SourceStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSourceStorage creates a new SourceStorage instance
func NewSourceStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SourceStorage {
	return &SourceStorage{
		db:     db,
		logger: logger,
	}
}

func (s *SourceStorage) SaveSource(ctx context.Context, source *models.SourceConfig) error {
	if source.ID == "" {
		return fmt.Errorf("source ID is required")
	}
	source.UpdatedAt = time.Now()
	if source.CreatedAt.IsZero() {
		source.CreatedAt = source.UpdatedAt
	}

	if err := s.db.Store().Upsert(source.ID, source); err != nil {
		return fmt.Errorf("failed to save source %s: %w", source.ID, err)
	}
	return nil
}

func (s *SourceStorage) GetSource(ctx context.Context, id string) (*models.SourceConfig, error) {
	var source models.SourceConfig
	if err := s.db.Store().Get(id, &source); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("source not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get source %s: %w", id, err)
	}
	return &source, nil
}

func (s *SourceStorage) ListSources(ctx context.Context) ([]*models.SourceConfig, error) {
	var sources []*models.SourceConfig
	if err := s.db.Store().Find(&sources, badgerhold.Where("ID").Ne("").SortBy("Name")); err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	return sources, nil
}

func (s *SourceStorage) ListActiveSources(ctx context.Context) ([]*models.SourceConfig, error) {
	var sources []*models.SourceConfig
	if err := s.db.Store().Find(&sources, badgerhold.Where("Active").Eq(true).SortBy("Name")); err != nil {
		return nil, fmt.Errorf("failed to list active sources: %w", err)
	}
	return sources, nil
}
