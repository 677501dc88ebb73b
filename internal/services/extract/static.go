package extract

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praeco/internal/common"
	"github.com/ternarybob/praeco/internal/interfaces"
	"github.com/ternarybob/praeco/internal/models"
)

// StaticEngine fetches and parses plain HTML listing pages, following the
// source's pagination selector until max-pages or an empty page.
type StaticEngine struct {
	client    *http.Client
	converter *md.Converter
	userAgent string
	logger    arbor.ILogger
}

// NewStaticEngine creates the static HTML extraction engine
func NewStaticEngine(config common.ExtractConfig, logger arbor.ILogger) *StaticEngine {
	return &StaticEngine{
		client:    &http.Client{Timeout: config.RequestTimeout()},
		converter: md.NewConverter("", true, nil),
		userAgent: config.UserAgent,
		logger:    logger,
	}
}

// Name returns the engine identifier
func (e *StaticEngine) Name() models.Engine {
	return models.EngineStatic
}

// Extract walks the source's listing pages and emits candidates in
// page-encounter order.
func (e *StaticEngine) Extract(ctx context.Context, source *models.SourceConfig, emit interfaces.EmitFunc) (*interfaces.ExtractStats, error) {
	stats := &interfaces.ExtractStats{}

	maxPages := source.Pagination.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}

	pageURL := source.BaseURL
	for page := 1; page <= maxPages; page++ {
		if page > 1 {
			if err := waitDelay(ctx, source.RequestDelay); err != nil {
				return stats, err
			}
		}

		doc, err := e.fetchDocument(ctx, pageURL)
		if err != nil {
			return stats, err
		}
		stats.PagesFetched++

		found := parseListing(doc, source, e.converter, pageURL, emit, stats)
		e.logger.Debug().
			Str("source", source.ID).
			Str("url", pageURL).
			Int("page", page).
			Int("candidates", found).
			Msg("Parsed listing page")

		if found == 0 {
			break
		}

		next, ok := nextPageURL(doc, source.Pagination.NextPageSelector, pageURL)
		if !ok {
			break
		}
		pageURL = next
	}

	return stats, nil
}

// fetchDocument fetches a URL and parses it into a goquery document.
// Network and HTTP-level failures come back as TransportError so the
// dispatcher's retry policy can classify them.
func (e *StaticEngine) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &common.TransportError{URL: pageURL, Err: err}
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &common.TransportError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &common.TransportError{URL: pageURL, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &common.TransportError{URL: pageURL, Err: err}
	}
	return doc, nil
}

// parseListing extracts candidates from one listing document using the
// source's field-selector map. Shared between the static and dynamic
// engines; the dynamic engine only differs in how the HTML is obtained.
func parseListing(doc *goquery.Document, source *models.SourceConfig, converter *md.Converter, pageURL string, emit interfaces.EmitFunc, stats *interfaces.ExtractStats) int {
	rows := doc.Find(source.Selectors[models.FieldList])
	rows.Each(func(_ int, row *goquery.Selection) {
		candidate := candidateFromRow(row, source, converter, pageURL)
		if candidate.Title == "" {
			// A row without a title is layout noise, not a posting
			return
		}
		stats.FieldFailures += len(candidate.ParseFailures)
		emit(candidate)
	})
	return rows.Length()
}

// candidateFromRow builds one RawCandidate from a listing row. Fields that
// fail to parse are left null and recorded on the candidate; extraction
// failures on individual fields are never fatal.
func candidateFromRow(row *goquery.Selection, source *models.SourceConfig, converter *md.Converter, pageURL string) *models.RawCandidate {
	text := func(field string) string {
		selector := source.Selectors[field]
		if selector == "" {
			return ""
		}
		return strings.TrimSpace(row.Find(selector).First().Text())
	}

	candidate := &models.RawCandidate{
		Title:         text(models.FieldTitle),
		Department:    text(models.FieldDepartment),
		Qualification: text(models.FieldQualification),
		Salary:        text(models.FieldSalary),
		Description:   rowDescription(row, source, converter),
		SourceURL:     rowSourceURL(row, source, pageURL),
	}

	setDate := func(field string, target **time.Time) {
		raw := text(field)
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

	if raw := text(models.FieldPostCount); raw != "" {
		count, err := ParseCount(raw)
		if err != nil {
			candidate.ParseFailures = append(candidate.ParseFailures, models.FieldPostCount)
		} else {
			candidate.PostCount = count
		}
	}

	return candidate
}

// rowDescription converts the description cell's HTML to markdown so the
// stored text is readable without the source's markup.
func rowDescription(row *goquery.Selection, source *models.SourceConfig, converter *md.Converter) string {
	selector := source.Selectors[models.FieldDescription]
	if selector == "" {
		return ""
	}
	sel := row.Find(selector).First()
	html, err := sel.Html()
	if err != nil || strings.TrimSpace(html) == "" {
		return strings.TrimSpace(sel.Text())
	}
	markdown, err := converter.ConvertString(html)
	if err != nil {
		return strings.TrimSpace(sel.Text())
	}
	return strings.TrimSpace(markdown)
}

// rowSourceURL resolves the posting's detail link against the page URL.
// Falls back to the title selector's enclosing anchor when no explicit
// source_url selector is configured.
func rowSourceURL(row *goquery.Selection, source *models.SourceConfig, pageURL string) string {
	selector := source.Selectors[models.FieldSourceURL]
	if selector == "" {
		selector = source.Selectors[models.FieldTitle]
	}
	sel := row.Find(selector).First()

	href, ok := sel.Attr("href")
	if !ok {
		href, ok = sel.Find("a").First().Attr("href")
	}
	if !ok || strings.TrimSpace(href) == "" {
		return ""
	}
	return resolveURL(pageURL, strings.TrimSpace(href))
}

// nextPageURL resolves the pagination link, if any. Returns false when the
// selector is unset, the link is missing, or it points back at the current
// page (defends against self-referencing pagination).
func nextPageURL(doc *goquery.Document, selector, currentURL string) (string, bool) {
	if selector == "" {
		return "", false
	}
	href, ok := doc.Find(selector).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return "", false
	}
	next := resolveURL(currentURL, strings.TrimSpace(href))
	if next == "" || next == currentURL {
		return "", false
	}
	return next, true
}

func resolveURL(base, ref string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return baseURL.ResolveReference(refURL).String()
}
