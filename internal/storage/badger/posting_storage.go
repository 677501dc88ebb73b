package badger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praeco/internal/common"
	"github.com/ternarybob/praeco/internal/interfaces"
	"github.com/ternarybob/praeco/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// PostingStorage implements the PostingStorage interface for Badger.
//
// Badgerhold has no compare-and-swap primitive, so the optimistic
// revision check runs under a store-level mutex. The store is embedded
// and single-process, which keeps the check correct; callers still see
// common.ErrRevisionConflict when they lost a race and retry with a
// fresh read.
type PostingStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewPostingStorage creates a new PostingStorage instance
func NewPostingStorage(db *BadgerDB, logger arbor.ILogger) interfaces.PostingStorage {
	return &PostingStorage{
		db:     db,
		logger: logger,
	}
}

func (s *PostingStorage) CreatePosting(ctx context.Context, posting *models.JobPosting) error {
	if posting.ID == "" {
		return fmt.Errorf("posting ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	posting.Revision = 1
	posting.LastUpdatedAt = time.Now()
	if posting.FirstSeenAt.IsZero() {
		posting.FirstSeenAt = posting.LastUpdatedAt
	}

	if err := s.db.Store().Insert(posting.ID, posting); err != nil {
		if err == badgerhold.ErrKeyExists {
			return fmt.Errorf("posting already exists: %s", posting.ID)
		}
		return fmt.Errorf("failed to create posting: %w", err)
	}
	return nil
}

func (s *PostingStorage) UpdatePosting(ctx context.Context, posting *models.JobPosting, expectedRevision int) error {
	if posting.ID == "" {
		return fmt.Errorf("posting ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var stored models.JobPosting
	if err := s.db.Store().Get(posting.ID, &stored); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("posting not found: %s", posting.ID)
		}
		return fmt.Errorf("failed to read posting for update: %w", err)
	}

	if stored.Revision != expectedRevision {
		return fmt.Errorf("posting %s: expected revision %d, found %d: %w",
			posting.ID, expectedRevision, stored.Revision, common.ErrRevisionConflict)
	}

	posting.Revision = expectedRevision + 1
	posting.LastUpdatedAt = time.Now()

	if err := s.db.Store().Update(posting.ID, posting); err != nil {
		return fmt.Errorf("failed to update posting: %w", err)
	}
	return nil
}

func (s *PostingStorage) GetPosting(ctx context.Context, id string) (*models.JobPosting, error) {
	var posting models.JobPosting
	if err := s.db.Store().Get(id, &posting); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("posting not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get posting: %w", err)
	}
	return &posting, nil
}

func (s *PostingStorage) GetPostingByFingerprint(ctx context.Context, sourceID, fingerprint string) (*models.JobPosting, error) {
	var postings []*models.JobPosting
	query := badgerhold.Where("SourceID").Eq(sourceID).And("Fingerprint").Eq(fingerprint).Limit(1)
	if err := s.db.Store().Find(&postings, query); err != nil {
		return nil, fmt.Errorf("failed to query posting by fingerprint: %w", err)
	}
	if len(postings) == 0 {
		return nil, nil
	}
	return postings[0], nil
}

func (s *PostingStorage) GetPostingBySlug(ctx context.Context, sourceID, slug string) (*models.JobPosting, error) {
	var postings []*models.JobPosting
	query := badgerhold.Where("SourceID").Eq(sourceID).And("Slug").Eq(slug).Limit(1)
	if err := s.db.Store().Find(&postings, query); err != nil {
		return nil, fmt.Errorf("failed to query posting by slug: %w", err)
	}
	if len(postings) == 0 {
		return nil, nil
	}
	return postings[0], nil
}

func (s *PostingStorage) GetPostingsBySource(ctx context.Context, sourceID string) ([]*models.JobPosting, error) {
	var postings []*models.JobPosting
	if err := s.db.Store().Find(&postings, badgerhold.Where("SourceID").Eq(sourceID)); err != nil {
		return nil, fmt.Errorf("failed to list postings for source %s: %w", sourceID, err)
	}
	return postings, nil
}

func (s *PostingStorage) ListUnarchivedBefore(ctx context.Context, cutoff time.Time) ([]*models.JobPosting, error) {
	var postings []*models.JobPosting
	if err := s.db.Store().Find(&postings, badgerhold.Where("Status").Ne(models.StatusArchived)); err != nil {
		return nil, fmt.Errorf("failed to list unarchived postings: %w", err)
	}
	// Filter on the retention anchor: the result date when one was ever
	// observed, otherwise the last update. A result-dated posting stays
	// listable no matter how recently it was touched.
	aged := postings[:0]
	for _, p := range postings {
		anchor := p.LastUpdatedAt
		if p.ResultDate != nil {
			anchor = *p.ResultDate
		}
		if anchor.Before(cutoff) {
			aged = append(aged, p)
		}
	}
	return aged, nil
}
