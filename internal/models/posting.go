package models

import (
	"strings"
	"time"
)

// Status is a job posting's lifecycle state. Order matters: transitions are
// monotonic with respect to statusRank and never regress except through
// explicit archival.
type Status string

const (
	StatusAnnounced Status = "announced"
	StatusAdmitCard Status = "admit_card"
	StatusAnswerKey Status = "answer_key"
	StatusResult    Status = "result"
	StatusArchived  Status = "archived"
)

var statusRank = map[Status]int{
	StatusAnnounced: 0,
	StatusAdmitCard: 1,
	StatusAnswerKey: 2,
	StatusResult:    3,
	StatusArchived:  4,
}

// Rank returns the ordinal position of the status in the lifecycle.
// Unknown statuses rank below announced.
func (s Status) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// AtLeast reports whether s is at or past other in the lifecycle order.
func (s Status) AtLeast(other Status) bool {
	return s.Rank() >= other.Rank()
}

// MaxStatus returns the more advanced of two statuses.
func MaxStatus(a, b Status) Status {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Milestone is an immutable, append-only record of one lifecycle
// transition. Never modified after creation.
type Milestone struct {
	Type       Status    `json:"type"`
	ObservedAt time.Time `json:"observed_at"` // the date field that triggered the transition
	RunID      string    `json:"run_id"`      // ScrapeLog id of the producing dispatch run
	CreatedAt  time.Time `json:"created_at"`
}

// SEOMetadata is derived publication metadata for a posting.
type SEOMetadata struct {
	Title        string    `json:"title"`       // <= 60 chars
	Description  string    `json:"description"` // <= 160 chars
	Keywords     []string  `json:"keywords"`
	QualityScore int       `json:"quality_score"` // 0-100
	Method       string    `json:"method"`        // keyphrase extraction method used
	GeneratedAt  time.Time `json:"generated_at"`
}

// JobPosting is the durable entity tracked through the lifecycle. Identity
// always includes the source id, so cross-source writes never collide.
type JobPosting struct {
	ID       string `json:"id" badgerhold:"key"`
	SourceID string `json:"source_id" badgerhold:"index"`
	Slug     string `json:"slug"`

	Status Status `json:"status"`

	Title         string `json:"title"`
	Description   string `json:"description"`
	Department    string `json:"department"`
	Qualification string `json:"qualification"`
	Salary        string `json:"salary"`

	NotificationDate *time.Time `json:"notification_date,omitempty"`
	ApplicationStart *time.Time `json:"application_start,omitempty"`
	ApplicationEnd   *time.Time `json:"application_end,omitempty"`
	ExamDate         *time.Time `json:"exam_date,omitempty"`
	AdmitCardDate    *time.Time `json:"admit_card_date,omitempty"`
	AnswerKeyDate    *time.Time `json:"answer_key_date,omitempty"`
	ResultDate       *time.Time `json:"result_date,omitempty"`

	PostCount *int   `json:"post_count,omitempty"`
	SourceURL string `json:"source_url"`

	Fingerprint string `json:"fingerprint" badgerhold:"index"`

	// Revision increases on every persisted change and keys the
	// optimistic-concurrency check on updates.
	Revision int `json:"revision"`

	FirstSeenAt   time.Time `json:"first_seen_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`

	SEO        SEOMetadata `json:"seo"`
	Milestones []Milestone `json:"milestones"`
}

// AppendMilestone records a lifecycle transition. Milestones are
// append-only; callers must not rewrite history.
func (p *JobPosting) AppendMilestone(m Milestone) {
	p.Milestones = append(p.Milestones, m)
}

// Slugify derives a stable URL slug from a posting title.
func Slugify(title string) string {
	return strings.ReplaceAll(NormalizeTitle(title), " ", "-")
}
