package models

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Engine identifies the extraction engine used for a source.
type Engine string

const (
	EngineStatic  Engine = "static"  // plain HTTP fetch + HTML parsing
	EngineDynamic Engine = "dynamic" // headless browser, post-render HTML
	EngineRaw     Engine = "raw"     // structured JSON endpoint, no HTML
)

// ParseEngine resolves an engine name to the closed Engine enum.
// Resolution happens once at source load time so the dispatcher never
// switches on raw strings.
func ParseEngine(s string) (Engine, error) {
	switch Engine(s) {
	case EngineStatic, EngineDynamic, EngineRaw:
		return Engine(s), nil
	default:
		return "", fmt.Errorf("unknown engine %q (valid: static, dynamic, raw)", s)
	}
}

// Field keys used in the per-source selector map. Static/dynamic sources
// map these to CSS selectors, raw sources to gjson paths.
const (
	FieldList             = "list"
	FieldTitle            = "title"
	FieldDescription      = "description"
	FieldDepartment       = "department"
	FieldQualification    = "qualification"
	FieldSalary           = "salary"
	FieldPostCount        = "post_count"
	FieldSourceURL        = "source_url"
	FieldNotificationDate = "notification_date"
	FieldApplicationStart = "application_start"
	FieldApplicationEnd   = "application_end"
	FieldExamDate         = "exam_date"
	FieldAdmitCardDate    = "admit_card_date"
	FieldAnswerKeyDate    = "answer_key_date"
	FieldResultDate       = "result_date"
)

// Pagination describes how an engine walks a source's listing pages.
type Pagination struct {
	// NextPageSelector locates the "next page" link on HTML sources.
	NextPageSelector string `json:"next_page_selector" toml:"next_page_selector" yaml:"next_page_selector"`
	// PageParam is the query parameter raw sources increment per page
	// (e.g. "page"). Empty means the endpoint is single-page.
	PageParam string `json:"page_param,omitempty" toml:"page_param" yaml:"page_param"`
	// MaxPages is a hard cap independent of observed pagination state.
	MaxPages int `json:"max_pages" toml:"max_pages" yaml:"max_pages"`
}

// SourceConfig describes one government site to scrape. Administrators own
// these records; at run time the core only writes LastRunAt, Active and the
// consecutive-failure counter.
type SourceConfig struct {
	ID         string            `json:"id" badgerhold:"key" validate:"required"`
	Name       string            `json:"name" validate:"required"`
	BaseURL    string            `json:"base_url" validate:"required,url"`
	Engine     Engine            `json:"engine" validate:"required,oneof=static dynamic raw"`
	Selectors  map[string]string `json:"selectors" validate:"required"`
	Pagination Pagination        `json:"pagination"`

	ScrapeInterval time.Duration `json:"scrape_interval"`
	RequestDelay   time.Duration `json:"request_delay"`
	MaxRetries     int           `json:"max_retries" validate:"min=0,max=10"`

	Active              bool      `json:"active"`
	LastRunAt           time.Time `json:"last_run_at"`
	ConsecutiveFailures int       `json:"consecutive_failures"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var sourceValidator = validator.New()

// Validate checks the source configuration for field-level and structural
// problems. Called at load time so a bad file never reaches the dispatcher.
func (s *SourceConfig) Validate() error {
	if err := sourceValidator.Struct(s); err != nil {
		return fmt.Errorf("source %q: %w", s.ID, err)
	}

	if _, err := ParseEngine(string(s.Engine)); err != nil {
		return fmt.Errorf("source %q: %w", s.ID, err)
	}

	switch s.Engine {
	case EngineStatic, EngineDynamic:
		if s.Selectors[FieldList] == "" {
			return fmt.Errorf("source %q: selector %q is required for %s engine", s.ID, FieldList, s.Engine)
		}
		if s.Selectors[FieldTitle] == "" {
			return fmt.Errorf("source %q: selector %q is required", s.ID, FieldTitle)
		}
	case EngineRaw:
		if s.Selectors[FieldList] == "" {
			return fmt.Errorf("source %q: gjson items path %q is required for raw engine", s.ID, FieldList)
		}
	}

	if s.Pagination.MaxPages < 0 {
		return fmt.Errorf("source %q: max_pages must be non-negative", s.ID)
	}
	if s.ScrapeInterval <= 0 {
		return fmt.Errorf("source %q: scrape interval must be positive", s.ID)
	}
	return nil
}

// Due reports whether the source is due for a dispatch run at now.
func (s *SourceConfig) Due(now time.Time) bool {
	if !s.Active {
		return false
	}
	if s.LastRunAt.IsZero() {
		return true
	}
	return now.Sub(s.LastRunAt) >= s.ScrapeInterval
}
