package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praeco/internal/common"
	"github.com/ternarybob/praeco/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db        *BadgerDB
	source    interfaces.SourceStorage
	posting   interfaces.PostingStorage
	scrapeLog interfaces.ScrapeLogStorage
	logger    arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:        db,
		source:    NewSourceStorage(db, logger),
		posting:   NewPostingStorage(db, logger),
		scrapeLog: NewScrapeLogStorage(db, logger),
		logger:    logger,
	}

	logger.Info().Msg("Badger storage manager initialized")
	return manager, nil
}

// SourceStorage returns the Source storage interface
func (m *Manager) SourceStorage() interfaces.SourceStorage {
	return m.source
}

// PostingStorage returns the Posting storage interface
func (m *Manager) PostingStorage() interfaces.PostingStorage {
	return m.posting
}

// ScrapeLogStorage returns the ScrapeLog storage interface
func (m *Manager) ScrapeLogStorage() interfaces.ScrapeLogStorage {
	return m.scrapeLog
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
