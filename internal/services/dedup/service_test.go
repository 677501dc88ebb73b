package dedup

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praeco/internal/common"
	"github.com/ternarybob/praeco/internal/models"
)

// fakePostingStorage is an in-memory PostingStorage for dedup tests.
type fakePostingStorage struct {
	postings map[string]*models.JobPosting
}

func newFakePostingStorage() *fakePostingStorage {
	return &fakePostingStorage{postings: make(map[string]*models.JobPosting)}
}

func (f *fakePostingStorage) CreatePosting(_ context.Context, p *models.JobPosting) error {
	if _, ok := f.postings[p.ID]; ok {
		return fmt.Errorf("posting already exists: %s", p.ID)
	}
	p.Revision = 1
	p.LastUpdatedAt = time.Now()
	clone := *p
	f.postings[p.ID] = &clone
	return nil
}

func (f *fakePostingStorage) UpdatePosting(_ context.Context, p *models.JobPosting, expectedRevision int) error {
	stored, ok := f.postings[p.ID]
	if !ok {
		return fmt.Errorf("posting not found: %s", p.ID)
	}
	if stored.Revision != expectedRevision {
		return fmt.Errorf("expected revision %d, found %d: %w", expectedRevision, stored.Revision, common.ErrRevisionConflict)
	}
	p.Revision = expectedRevision + 1
	p.LastUpdatedAt = time.Now()
	clone := *p
	f.postings[p.ID] = &clone
	return nil
}

func (f *fakePostingStorage) GetPosting(_ context.Context, id string) (*models.JobPosting, error) {
	stored, ok := f.postings[id]
	if !ok {
		return nil, fmt.Errorf("posting not found: %s", id)
	}
	clone := *stored
	return &clone, nil
}

func (f *fakePostingStorage) GetPostingByFingerprint(_ context.Context, sourceID, fingerprint string) (*models.JobPosting, error) {
	for _, p := range f.postings {
		if p.SourceID == sourceID && p.Fingerprint == fingerprint {
			clone := *p
			return &clone, nil
		}
	}
	return nil, nil
}

func (f *fakePostingStorage) GetPostingBySlug(_ context.Context, sourceID, slug string) (*models.JobPosting, error) {
	for _, p := range f.postings {
		if p.SourceID == sourceID && p.Slug == slug {
			clone := *p
			return &clone, nil
		}
	}
	return nil, nil
}

func (f *fakePostingStorage) GetPostingsBySource(_ context.Context, sourceID string) ([]*models.JobPosting, error) {
	var out []*models.JobPosting
	for _, p := range f.postings {
		if p.SourceID == sourceID {
			clone := *p
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakePostingStorage) ListUnarchivedBefore(_ context.Context, cutoff time.Time) ([]*models.JobPosting, error) {
	var out []*models.JobPosting
	for _, p := range f.postings {
		anchor := p.LastUpdatedAt
		if p.ResultDate != nil {
			anchor = *p.ResultDate
		}
		if p.Status != models.StatusArchived && anchor.Before(cutoff) {
			clone := *p
			out = append(out, &clone)
		}
	}
	return out, nil
}

func testDedupConfig() common.DedupConfig {
	return common.DedupConfig{
		TitleSimilarity:    0.8,
		DateToleranceHours: 72,
	}
}

func datePtr(year int, month time.Month, day int) *time.Time {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &d
}

func seedPosting(t *testing.T, storage *fakePostingStorage, candidate *models.RawCandidate, sourceID string) *models.JobPosting {
	t.Helper()
	posting := &models.JobPosting{
		ID:          "post_existing",
		SourceID:    sourceID,
		Status:      models.StatusAnnounced,
		Fingerprint: candidate.Fingerprint(sourceID),
	}
	Merge(posting, candidate)
	require.NoError(t, storage.CreatePosting(context.Background(), posting))
	return posting
}

func TestResolve_CreateWhenNoMatch(t *testing.T) {
	storage := newFakePostingStorage()
	svc := NewService(storage, testDedupConfig(), arbor.NewLogger())

	candidate := &models.RawCandidate{
		Title:          "SSC CGL Recruitment 2025",
		ApplicationEnd: datePtr(2025, 3, 21),
	}

	res, err := svc.Resolve(context.Background(), candidate, "ssc")
	require.NoError(t, err)
	assert.Equal(t, DecisionCreate, res.Decision)
	assert.Nil(t, res.Existing)
}

func TestResolve_IgnoreWhenUnchanged(t *testing.T) {
	storage := newFakePostingStorage()
	svc := NewService(storage, testDedupConfig(), arbor.NewLogger())

	candidate := &models.RawCandidate{
		Title:          "SSC CGL Recruitment 2025",
		Department:     "Staff Selection Commission",
		ApplicationEnd: datePtr(2025, 3, 21),
	}
	seedPosting(t, storage, candidate, "ssc")

	res, err := svc.Resolve(context.Background(), candidate, "ssc")
	require.NoError(t, err)
	assert.Equal(t, DecisionIgnore, res.Decision)
	require.NotNil(t, res.Existing)
}

func TestResolve_UpdateOnFingerprintMatch(t *testing.T) {
	storage := newFakePostingStorage()
	svc := NewService(storage, testDedupConfig(), arbor.NewLogger())

	candidate := &models.RawCandidate{
		Title:          "SSC CGL Recruitment 2025",
		ApplicationEnd: datePtr(2025, 3, 21),
	}
	seedPosting(t, storage, candidate, "ssc")

	// Same announcement, now carrying a result date
	updated := &models.RawCandidate{
		Title:          "SSC CGL Recruitment 2025",
		ApplicationEnd: datePtr(2025, 3, 21),
		ResultDate:     datePtr(2025, 9, 1),
	}

	res, err := svc.Resolve(context.Background(), updated, "ssc")
	require.NoError(t, err)
	assert.Equal(t, DecisionUpdate, res.Decision)
	require.NotNil(t, res.Existing)
}

func TestResolve_FuzzyTitleMatch(t *testing.T) {
	storage := newFakePostingStorage()
	svc := NewService(storage, testDedupConfig(), arbor.NewLogger())

	original := &models.RawCandidate{
		Title:          "SSC CGL Tier 1 Recruitment Notification 2025",
		ApplicationEnd: datePtr(2025, 3, 21),
	}
	seedPosting(t, storage, original, "ssc")

	// Title lightly edited between scrapes, deadline shifted one day.
	// Different fingerprint, but token overlap and date tolerance match.
	edited := &models.RawCandidate{
		Title:          "SSC CGL Tier 1 Recruitment Notification 2025 Apply",
		Department:     "Staff Selection Commission",
		ApplicationEnd: datePtr(2025, 3, 22),
	}

	res, err := svc.Resolve(context.Background(), edited, "ssc")
	require.NoError(t, err)
	assert.Equal(t, DecisionUpdate, res.Decision, "near-identical titles within date tolerance must match")
}

func TestResolve_FuzzyRejectsDistantDates(t *testing.T) {
	storage := newFakePostingStorage()
	svc := NewService(storage, testDedupConfig(), arbor.NewLogger())

	original := &models.RawCandidate{
		Title:          "District Court Clerk Recruitment Notification",
		ApplicationEnd: datePtr(2025, 3, 21),
	}
	seedPosting(t, storage, original, "courts")

	// Same title, deadline months apart: a genuinely new cycle
	newCycle := &models.RawCandidate{
		Title:          "District Court Clerk Recruitment Notification",
		ApplicationEnd: datePtr(2025, 9, 30),
	}

	res, err := svc.Resolve(context.Background(), newCycle, "courts")
	require.NoError(t, err)
	assert.Equal(t, DecisionCreate, res.Decision, "dates outside tolerance must not fuzzy-match")
}

func TestResolve_SameTitleDifferentSources(t *testing.T) {
	storage := newFakePostingStorage()
	svc := NewService(storage, testDedupConfig(), arbor.NewLogger())

	candidate := &models.RawCandidate{
		Title:          "Junior Engineer Recruitment 2025",
		ApplicationEnd: datePtr(2025, 5, 1),
	}
	seedPosting(t, storage, candidate, "state-a")

	res, err := svc.Resolve(context.Background(), candidate, "state-b")
	require.NoError(t, err)
	assert.Equal(t, DecisionCreate, res.Decision, "dedup never crosses source boundaries")
}

func TestResolve_SkipsArchivedPostings(t *testing.T) {
	storage := newFakePostingStorage()
	svc := NewService(storage, testDedupConfig(), arbor.NewLogger())

	original := &models.RawCandidate{
		Title:          "Indian Railway Apprentice Recruitment Notification 2025",
		ApplicationEnd: datePtr(2025, 2, 1),
	}
	posting := seedPosting(t, storage, original, "rrb")
	posting.Status = models.StatusArchived
	require.NoError(t, storage.UpdatePosting(context.Background(), posting, posting.Revision))

	// Slightly edited title so only the fuzzy path could match
	edited := &models.RawCandidate{
		Title:          "Indian Railway Apprentice Recruitment Notification 2025 Apply",
		ApplicationEnd: datePtr(2025, 2, 1),
	}

	res, err := svc.Resolve(context.Background(), edited, "rrb")
	require.NoError(t, err)
	assert.Equal(t, DecisionCreate, res.Decision, "archived postings take no further updates")
}

func TestMerge_NullPreserving(t *testing.T) {
	count := 150
	posting := &models.JobPosting{
		Title:          "Assistant Professor Recruitment",
		Department:     "Higher Education",
		Qualification:  "PhD",
		ApplicationEnd: datePtr(2025, 4, 1),
		PostCount:      &count,
	}

	// Partial re-scrape: most fields absent
	changed := Merge(posting, &models.RawCandidate{
		Title: "Assistant Professor Recruitment",
	})

	assert.False(t, changed)
	assert.Equal(t, "Higher Education", posting.Department, "null fields must never clear known data")
	assert.Equal(t, "PhD", posting.Qualification)
	require.NotNil(t, posting.ApplicationEnd)
	require.NotNil(t, posting.PostCount)
	assert.Equal(t, 150, *posting.PostCount)
}

func TestMerge_NonNullOverwrites(t *testing.T) {
	posting := &models.JobPosting{
		Title:          "Assistant Professor Recruitment",
		ApplicationEnd: datePtr(2025, 4, 1),
	}

	newCount := 200
	changed := Merge(posting, &models.RawCandidate{
		Title:          "Assistant Professor Recruitment",
		Department:     "Higher Education",
		ApplicationEnd: datePtr(2025, 4, 15), // deadline extended
		PostCount:      &newCount,
	})

	assert.True(t, changed)
	assert.Equal(t, "Higher Education", posting.Department)
	assert.Equal(t, time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC), posting.ApplicationEnd.UTC())
	assert.Equal(t, 200, *posting.PostCount)
}

func TestMerge_IdenticalIsNoChange(t *testing.T) {
	candidate := &models.RawCandidate{
		Title:          "Lab Technician Recruitment",
		Department:     "Health",
		ApplicationEnd: datePtr(2025, 5, 10),
	}
	posting := &models.JobPosting{}
	require.True(t, Merge(posting, candidate))
	assert.False(t, Merge(posting, candidate), "re-applying the same candidate must be a no-op")
}
