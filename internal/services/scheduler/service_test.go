package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praeco/internal/common"
	"github.com/ternarybob/praeco/internal/interfaces"
	"github.com/ternarybob/praeco/internal/models"
	"github.com/ternarybob/praeco/internal/services/lifecycle"
	"github.com/ternarybob/praeco/internal/services/workers"
)

// ---- fakes ----

type memSourceStorage struct {
	mu      sync.Mutex
	sources map[string]*models.SourceConfig
}

func (m *memSourceStorage) SaveSource(_ context.Context, s *models.SourceConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *s
	m.sources[s.ID] = &clone
	return nil
}

func (m *memSourceStorage) GetSource(_ context.Context, id string) (*models.SourceConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[id]
	if !ok {
		return nil, nil
	}
	clone := *s
	return &clone, nil
}

func (m *memSourceStorage) ListSources(_ context.Context) ([]*models.SourceConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.SourceConfig
	for _, s := range m.sources {
		clone := *s
		out = append(out, &clone)
	}
	return out, nil
}

func (m *memSourceStorage) ListActiveSources(_ context.Context) ([]*models.SourceConfig, error) {
	all, _ := m.ListSources(context.Background())
	var out []*models.SourceConfig
	for _, s := range all {
		if s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

type memPostingStorage struct {
	mu       sync.Mutex
	postings map[string]*models.JobPosting
}

func (m *memPostingStorage) CreatePosting(_ context.Context, p *models.JobPosting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Revision = 1
	clone := *p
	m.postings[p.ID] = &clone
	return nil
}

func (m *memPostingStorage) UpdatePosting(_ context.Context, p *models.JobPosting, expectedRevision int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.postings[p.ID]
	if !ok {
		return fmt.Errorf("posting not found: %s", p.ID)
	}
	if stored.Revision != expectedRevision {
		return fmt.Errorf("revision mismatch: %w", common.ErrRevisionConflict)
	}
	p.Revision = expectedRevision + 1
	clone := *p
	m.postings[p.ID] = &clone
	return nil
}

func (m *memPostingStorage) GetPosting(_ context.Context, id string) (*models.JobPosting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.postings[id]
	if !ok {
		return nil, fmt.Errorf("posting not found: %s", id)
	}
	clone := *stored
	return &clone, nil
}

func (m *memPostingStorage) GetPostingByFingerprint(context.Context, string, string) (*models.JobPosting, error) {
	return nil, nil
}

func (m *memPostingStorage) GetPostingBySlug(context.Context, string, string) (*models.JobPosting, error) {
	return nil, nil
}

func (m *memPostingStorage) GetPostingsBySource(_ context.Context, sourceID string) ([]*models.JobPosting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.JobPosting
	for _, p := range m.postings {
		if p.SourceID == sourceID {
			clone := *p
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *memPostingStorage) ListUnarchivedBefore(_ context.Context, cutoff time.Time) ([]*models.JobPosting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.JobPosting
	for _, p := range m.postings {
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

type memScrapeLogStorage struct{}

func (memScrapeLogStorage) SaveScrapeLog(context.Context, *models.ScrapeLog) error { return nil }
func (memScrapeLogStorage) ListScrapeLogs(context.Context, string, int) ([]*models.ScrapeLog, error) {
	return nil, nil
}

type memStorageManager struct {
	sources  *memSourceStorage
	postings *memPostingStorage
	logs     memScrapeLogStorage
}

func newMemStorageManager() *memStorageManager {
	return &memStorageManager{
		sources:  &memSourceStorage{sources: make(map[string]*models.SourceConfig)},
		postings: &memPostingStorage{postings: make(map[string]*models.JobPosting)},
	}
}

func (m *memStorageManager) SourceStorage() interfaces.SourceStorage       { return m.sources }
func (m *memStorageManager) PostingStorage() interfaces.PostingStorage     { return m.postings }
func (m *memStorageManager) ScrapeLogStorage() interfaces.ScrapeLogStorage { return m.logs }
func (m *memStorageManager) Close() error                                  { return nil }

// recordingDispatcher counts dispatches per source.
type recordingDispatcher struct {
	mu       sync.Mutex
	ran      []string
	block    chan struct{} // when set, Dispatch waits until closed
	notified chan string
}

func (d *recordingDispatcher) Dispatch(_ context.Context, source *models.SourceConfig) (*models.ScrapeLog, error) {
	if d.block != nil {
		<-d.block
	}
	d.mu.Lock()
	d.ran = append(d.ran, source.ID)
	d.mu.Unlock()
	if d.notified != nil {
		d.notified <- source.ID
	}
	return &models.ScrapeLog{SourceID: source.ID}, nil
}

func (d *recordingDispatcher) dispatched() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.ran...)
}

// ---- tests ----

func testSchedulerConfig() common.SchedulerConfig {
	return common.SchedulerConfig{
		TickSchedule:    "* * * * *",
		ArchiveSchedule: "0 * * * *",
		Workers:         2,
	}
}

func newTestService(dispatcher interfaces.Dispatcher, storage interfaces.StorageManager) (*Service, *workers.Pool) {
	logger := arbor.NewLogger()
	pool := workers.NewPool(2, logger)
	svc := NewService(
		dispatcher,
		lifecycle.NewEngine(common.LifecycleConfig{RetentionDays: 90}, logger),
		storage,
		pool,
		testSchedulerConfig(),
		logger,
	)
	return svc, pool
}

func addSource(t *testing.T, storage interfaces.StorageManager, id string, lastRun time.Time, interval time.Duration, active bool) {
	t.Helper()
	err := storage.SourceStorage().SaveSource(context.Background(), &models.SourceConfig{
		ID:      id,
		Name:    id,
		BaseURL: "https://example.gov.in/" + id,
		Engine:  models.EngineStatic,
		Selectors: map[string]string{
			models.FieldList:  "tr",
			models.FieldTitle: "a",
		},
		ScrapeInterval: interval,
		LastRunAt:      lastRun,
		Active:         active,
	})
	require.NoError(t, err)
}

func TestTick_SelectsDueSources(t *testing.T) {
	storage := newMemStorageManager()
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

	addSource(t, storage, "due-never-run", time.Time{}, 6*time.Hour, true)
	addSource(t, storage, "due-elapsed", now.Add(-7*time.Hour), 6*time.Hour, true)
	addSource(t, storage, "not-due", now.Add(-1*time.Hour), 6*time.Hour, true)
	addSource(t, storage, "inactive", time.Time{}, 6*time.Hour, false)

	svc, _ := newTestService(&recordingDispatcher{}, storage)

	due := svc.Tick(now)
	assert.ElementsMatch(t, []string{"due-never-run", "due-elapsed"}, due)
}

func TestTick_ExcludesInFlightSources(t *testing.T) {
	storage := newMemStorageManager()
	addSource(t, storage, "slow", time.Time{}, time.Hour, true)

	block := make(chan struct{})
	dispatcher := &recordingDispatcher{block: block}
	svc, pool := newTestService(dispatcher, storage)
	pool.Start()
	defer func() {
		close(block)
		pool.Stop()
	}()

	require.NoError(t, svc.TriggerScrape("slow", true))

	// The run is blocked inside the dispatcher; the source stays excluded
	assert.Eventually(t, func() bool {
		return len(svc.Tick(time.Now())) == 0
	}, time.Second, 10*time.Millisecond)

	err := svc.TriggerScrape("slow", true)
	assert.Error(t, err, "in-flight exclusion also applies to forced triggers")
}

func TestTriggerScrape_Force(t *testing.T) {
	storage := newMemStorageManager()
	now := time.Now()
	addSource(t, storage, "recent", now.Add(-time.Minute), 6*time.Hour, true)

	dispatcher := &recordingDispatcher{notified: make(chan string, 1)}
	svc, pool := newTestService(dispatcher, storage)
	pool.Start()
	defer pool.Stop()

	err := svc.TriggerScrape("recent", false)
	assert.Error(t, err, "not-due source needs force")

	require.NoError(t, svc.TriggerScrape("recent", true))
	select {
	case id := <-dispatcher.notified:
		assert.Equal(t, "recent", id)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not run")
	}
}

func TestTriggerScrape_UnknownSource(t *testing.T) {
	svc, _ := newTestService(&recordingDispatcher{}, newMemStorageManager())
	assert.Error(t, svc.TriggerScrape("missing", true))
}

func TestTriggerScrape_DisabledSourceRejected(t *testing.T) {
	storage := newMemStorageManager()
	addSource(t, storage, "off", time.Time{}, time.Hour, false)

	svc, _ := newTestService(&recordingDispatcher{}, storage)
	err := svc.TriggerScrape("off", false)
	require.Error(t, err)

	var disabledErr *common.SourceDisabledError
	assert.ErrorAs(t, err, &disabledErr)
}

func TestArchiveSweep(t *testing.T) {
	storage := newMemStorageManager()
	svc, _ := newTestService(&recordingDispatcher{}, storage)

	now := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	oldResult := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	stale := &models.JobPosting{
		ID:            "post_stale",
		SourceID:      "ssc",
		Status:        models.StatusResult,
		ResultDate:    &oldResult,
		LastUpdatedAt: oldResult,
	}
	fresh := &models.JobPosting{
		ID:            "post_fresh",
		SourceID:      "ssc",
		Status:        models.StatusAnnounced,
		LastUpdatedAt: now.Add(-24 * time.Hour),
	}
	require.NoError(t, storage.PostingStorage().CreatePosting(context.Background(), stale))
	require.NoError(t, storage.PostingStorage().CreatePosting(context.Background(), fresh))

	require.NoError(t, svc.ArchiveSweep(context.Background(), now))

	archived, err := storage.PostingStorage().GetPosting(context.Background(), "post_stale")
	require.NoError(t, err)
	assert.Equal(t, models.StatusArchived, archived.Status)
	require.Len(t, archived.Milestones, 1)
	assert.Equal(t, models.StatusArchived, archived.Milestones[0].Type)

	untouched, err := storage.PostingStorage().GetPosting(context.Background(), "post_fresh")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAnnounced, untouched.Status)
}

func TestArchiveSweep_ResultAnchorBeatsRecentTouch(t *testing.T) {
	storage := newMemStorageManager()
	svc, _ := newTestService(&recordingDispatcher{}, storage)

	now := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	oldResult := now.AddDate(0, 0, -122)

	// Result aged well past retention but a description tweak touched the
	// posting yesterday. The result date anchors the window, so the sweep
	// must still pick it up.
	touched := &models.JobPosting{
		ID:            "post_touched",
		SourceID:      "ssc",
		Status:        models.StatusResult,
		ResultDate:    &oldResult,
		LastUpdatedAt: now.Add(-24 * time.Hour),
	}
	require.NoError(t, storage.PostingStorage().CreatePosting(context.Background(), touched))

	require.NoError(t, svc.ArchiveSweep(context.Background(), now))

	archived, err := storage.PostingStorage().GetPosting(context.Background(), "post_touched")
	require.NoError(t, err)
	assert.Equal(t, models.StatusArchived, archived.Status)
	require.Len(t, archived.Milestones, 1)
	assert.Equal(t, models.StatusArchived, archived.Milestones[0].Type)
}
