package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praeco/internal/common"
	"github.com/ternarybob/praeco/internal/interfaces"
	"github.com/ternarybob/praeco/internal/models"
	"github.com/tidwall/gjson"
)

// RawEngine calls a structured JSON endpoint directly, used when a source
// exposes one. Field selectors are gjson paths relative to each item; the
// FieldList selector is the path of the items array in the response.
type RawEngine struct {
	client    *http.Client
	userAgent string
	logger    arbor.ILogger
}

// NewRawEngine creates the structured-endpoint extraction engine
func NewRawEngine(config common.ExtractConfig, logger arbor.ILogger) *RawEngine {
	return &RawEngine{
		client:    &http.Client{Timeout: config.RequestTimeout()},
		userAgent: config.UserAgent,
		logger:    logger,
	}
}

// Name returns the engine identifier
func (e *RawEngine) Name() models.Engine {
	return models.EngineRaw
}

// Extract pages through the endpoint and emits candidates in encounter
// order. Without a configured page parameter the endpoint is treated as
// single-page.
func (e *RawEngine) Extract(ctx context.Context, source *models.SourceConfig, emit interfaces.EmitFunc) (*interfaces.ExtractStats, error) {
	stats := &interfaces.ExtractStats{}

	maxPages := source.Pagination.MaxPages
	if maxPages <= 0 || source.Pagination.PageParam == "" {
		maxPages = 1
	}

	for page := 1; page <= maxPages; page++ {
		if page > 1 {
			if err := waitDelay(ctx, source.RequestDelay); err != nil {
				return stats, err
			}
		}

		pageURL, err := pagedURL(source.BaseURL, source.Pagination.PageParam, page)
		if err != nil {
			return stats, fmt.Errorf("invalid base URL %q: %w", source.BaseURL, err)
		}

		body, err := e.fetch(ctx, pageURL)
		if err != nil {
			return stats, err
		}
		stats.PagesFetched++

		items := gjson.GetBytes(body, source.Selectors[models.FieldList]).Array()
		e.logger.Debug().
			Str("source", source.ID).
			Str("url", pageURL).
			Int("page", page).
			Int("items", len(items)).
			Msg("Fetched endpoint page")

		if len(items) == 0 {
			break
		}

		for _, item := range items {
			candidate := e.candidateFromItem(item, source)
			if candidate.Title == "" {
				continue
			}
			stats.FieldFailures += len(candidate.ParseFailures)
			emit(candidate)
		}
	}

	return stats, nil
}

func (e *RawEngine) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &common.TransportError{URL: pageURL, Err: err}
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &common.TransportError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &common.TransportError{URL: pageURL, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &common.TransportError{URL: pageURL, Err: err}
	}
	return body, nil
}

// candidateFromItem maps one JSON item onto a RawCandidate via the
// source's gjson field paths. Per-field failures degrade to null.
func (e *RawEngine) candidateFromItem(item gjson.Result, source *models.SourceConfig) *models.RawCandidate {
	get := func(field string) string {
		path := source.Selectors[field]
		if path == "" {
			return ""
		}
		return item.Get(path).String()
	}

	candidate := &models.RawCandidate{
		Title:         get(models.FieldTitle),
		Description:   get(models.FieldDescription),
		Department:    get(models.FieldDepartment),
		Qualification: get(models.FieldQualification),
		Salary:        get(models.FieldSalary),
		SourceURL:     resolveURL(source.BaseURL, get(models.FieldSourceURL)),
	}

	setDate := func(field string, target **time.Time) {
		raw := get(field)
		if raw == "" {
			return
		}
		parsed, err := ParseDate(raw)
		if err != nil {
			candidate.ParseFailures = append(candidate.ParseFailures, field)
			return
		}
		*target = parsed
	}

	setDate(models.FieldNotificationDate, &candidate.NotificationDate)
	setDate(models.FieldApplicationStart, &candidate.ApplicationStart)
	setDate(models.FieldApplicationEnd, &candidate.ApplicationEnd)
	setDate(models.FieldExamDate, &candidate.ExamDate)
	setDate(models.FieldAdmitCardDate, &candidate.AdmitCardDate)
	setDate(models.FieldAnswerKeyDate, &candidate.AnswerKeyDate)
	setDate(models.FieldResultDate, &candidate.ResultDate)

	if path := source.Selectors[models.FieldPostCount]; path != "" {
		result := item.Get(path)
		switch {
		case !result.Exists():
			// absent is null, not a failure
		case result.Type == gjson.Number:
			n := int(result.Int())
			candidate.PostCount = &n
		default:
			count, err := ParseCount(result.String())
			if err != nil {
				candidate.ParseFailures = append(candidate.ParseFailures, models.FieldPostCount)
			} else {
				candidate.PostCount = count
			}
		}
	}

	return candidate
}

// pagedURL appends the page query parameter for paginated endpoints.
func pagedURL(base, pageParam string, page int) (string, error) {
	if pageParam == "" || page <= 1 {
		return base, nil
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(pageParam, strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
