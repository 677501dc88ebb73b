package models

import "time"

// Outcome classifies how a dispatch run ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailure Outcome = "failure"
)

// ScrapeLog is one record per dispatch run. Created by the dispatcher and
// never mutated after completion; retained for operational auditing and
// source health scoring.
type ScrapeLog struct {
	ID       string `json:"id" badgerhold:"key"` // run_<uuid>
	SourceID string `json:"source_id" badgerhold:"index"`
	Engine   Engine `json:"engine"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`

	PagesFetched       int `json:"pages_fetched"`
	CandidatesFound    int `json:"candidates_found"`
	CandidatesNew      int `json:"candidates_new"`
	CandidatesUpdated  int `json:"candidates_updated"`
	CandidatesIgnored  int `json:"candidates_ignored"`
	FieldParseFailures int `json:"field_parse_failures"`
	Retries            int `json:"retries"`

	Outcome     Outcome `json:"outcome"`
	ErrorDetail string  `json:"error_detail,omitempty"`
}

// Duration returns the wall-clock length of the run.
func (l *ScrapeLog) Duration() time.Duration {
	if l.CompletedAt.IsZero() {
		return 0
	}
	return l.CompletedAt.Sub(l.StartedAt)
}
