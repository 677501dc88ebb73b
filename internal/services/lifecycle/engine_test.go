package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praeco/internal/common"
	"github.com/ternarybob/praeco/internal/models"
)

func testEngine() *Engine {
	return NewEngine(common.LifecycleConfig{RetentionDays: 90}, arbor.NewLogger())
}

func datePtr(year int, month time.Month, day int) *time.Time {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &d
}

func TestInferStatus(t *testing.T) {
	tests := []struct {
		name      string
		candidate *models.RawCandidate
		expected  models.Status
	}{
		{"bare announcement", &models.RawCandidate{Title: "x"}, models.StatusAnnounced},
		{"admit card date", &models.RawCandidate{AdmitCardDate: datePtr(2025, 5, 1)}, models.StatusAdmitCard},
		{"answer key date", &models.RawCandidate{AnswerKeyDate: datePtr(2025, 6, 1)}, models.StatusAnswerKey},
		{"result date", &models.RawCandidate{ResultDate: datePtr(2025, 7, 1)}, models.StatusResult},
		{"result wins over earlier dates", &models.RawCandidate{
			AdmitCardDate: datePtr(2025, 5, 1),
			ResultDate:    datePtr(2025, 7, 1),
		}, models.StatusResult},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, InferStatus(tt.candidate))
		})
	}
}

func TestAdvance_Transition(t *testing.T) {
	engine := testEngine()
	now := time.Now()
	posting := &models.JobPosting{ID: "post_1", Status: models.StatusAnnounced}

	candidate := &models.RawCandidate{AdmitCardDate: datePtr(2025, 5, 10)}
	advanced := engine.Advance(posting, candidate, "run_1", now)

	assert.True(t, advanced)
	assert.Equal(t, models.StatusAdmitCard, posting.Status)
	require.Len(t, posting.Milestones, 1)
	assert.Equal(t, models.StatusAdmitCard, posting.Milestones[0].Type)
	assert.Equal(t, "run_1", posting.Milestones[0].RunID)
	assert.True(t, posting.Milestones[0].ObservedAt.Equal(*candidate.AdmitCardDate),
		"milestone records the date that triggered the transition")
}

func TestAdvance_SkipsIntermediateStates(t *testing.T) {
	engine := testEngine()
	posting := &models.JobPosting{ID: "post_1", Status: models.StatusAnnounced}

	// Result published while we never saw admit card or answer key
	advanced := engine.Advance(posting, &models.RawCandidate{ResultDate: datePtr(2025, 7, 1)}, "run_1", time.Now())

	assert.True(t, advanced)
	assert.Equal(t, models.StatusResult, posting.Status)
	require.Len(t, posting.Milestones, 1, "a skip transition appends exactly one milestone")
}

func TestAdvance_NeverRegresses(t *testing.T) {
	engine := testEngine()
	posting := &models.JobPosting{ID: "post_1", Status: models.StatusResult}

	// Re-scrape no longer shows the result date
	advanced := engine.Advance(posting, &models.RawCandidate{AdmitCardDate: datePtr(2025, 5, 10)}, "run_2", time.Now())

	assert.False(t, advanced)
	assert.Equal(t, models.StatusResult, posting.Status)
	assert.Empty(t, posting.Milestones)
}

func TestAdvance_IdempotentRescrape(t *testing.T) {
	engine := testEngine()
	now := time.Now()
	posting := &models.JobPosting{ID: "post_1", Status: models.StatusAnnounced}
	candidate := &models.RawCandidate{AdmitCardDate: datePtr(2025, 5, 10)}

	assert.True(t, engine.Advance(posting, candidate, "run_1", now))
	assert.False(t, engine.Advance(posting, candidate, "run_2", now))
	assert.Len(t, posting.Milestones, 1, "re-observing the same state adds no history")
}

func TestInitialStatus(t *testing.T) {
	engine := testEngine()
	posting := &models.JobPosting{ID: "post_1"}

	engine.InitialStatus(posting, &models.RawCandidate{
		Title:            "New Recruitment",
		NotificationDate: datePtr(2025, 3, 1),
	}, "run_1", time.Now())

	assert.Equal(t, models.StatusAnnounced, posting.Status)
	require.Len(t, posting.Milestones, 1)
	assert.True(t, posting.Milestones[0].ObservedAt.Equal(*datePtr(2025, 3, 1)))
}

func TestShouldArchive(t *testing.T) {
	engine := testEngine()
	now := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)

	t.Run("anchored on result date", func(t *testing.T) {
		posting := &models.JobPosting{
			Status:        models.StatusResult,
			ResultDate:    datePtr(2025, 6, 1), // 122 days before now
			LastUpdatedAt: now.Add(-24 * time.Hour),
		}
		assert.True(t, engine.ShouldArchive(posting, now),
			"result date anchors the window even when recently touched")
	})

	t.Run("anchored on last update without result", func(t *testing.T) {
		fresh := &models.JobPosting{
			Status:        models.StatusAnnounced,
			LastUpdatedAt: now.Add(-30 * 24 * time.Hour),
		}
		assert.False(t, engine.ShouldArchive(fresh, now))

		stale := &models.JobPosting{
			Status:        models.StatusAnnounced,
			LastUpdatedAt: now.Add(-91 * 24 * time.Hour),
		}
		assert.True(t, engine.ShouldArchive(stale, now))
	})

	t.Run("archived is terminal", func(t *testing.T) {
		posting := &models.JobPosting{
			Status:        models.StatusArchived,
			LastUpdatedAt: now.Add(-365 * 24 * time.Hour),
		}
		assert.False(t, engine.ShouldArchive(posting, now))
	})
}

func TestArchive(t *testing.T) {
	engine := testEngine()
	now := time.Now()
	posting := &models.JobPosting{ID: "post_1", Status: models.StatusResult}

	engine.Archive(posting, "run_9", now)
	assert.Equal(t, models.StatusArchived, posting.Status)
	require.Len(t, posting.Milestones, 1)
	assert.Equal(t, models.StatusArchived, posting.Milestones[0].Type)

	engine.Archive(posting, "run_10", now)
	assert.Len(t, posting.Milestones, 1, "archiving twice is a no-op")
}
