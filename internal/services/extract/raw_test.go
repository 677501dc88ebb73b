package extract

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praeco/internal/models"
)

func rawTestSource(baseURL string) *models.SourceConfig {
	return &models.SourceConfig{
		ID:      "ncs",
		Name:    "National Career Service",
		BaseURL: baseURL,
		Engine:  models.EngineRaw,
		Selectors: map[string]string{
			models.FieldList:           "data.jobs",
			models.FieldTitle:          "title",
			models.FieldDepartment:     "org.name",
			models.FieldPostCount:      "vacancies",
			models.FieldApplicationEnd: "last_date",
			models.FieldSourceURL:      "url",
		},
		Pagination: models.Pagination{
			PageParam: "page",
			MaxPages:  5,
		},
		ScrapeInterval: time.Hour,
		Active:         true,
	}
}

func TestRawEngine_Extract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("page") {
		case "", "1":
			fmt.Fprint(w, `{"data":{"jobs":[
				{"title":"Staff Nurse Recruitment","org":{"name":"Health Department"},"vacancies":230,"last_date":"2025-04-15","url":"/jobs/nurse"},
				{"title":"Forest Guard","org":{"name":"Forest Department"},"vacancies":"1,100 Posts","last_date":"15/05/2025","url":"/jobs/guard"}
			]}}`)
		case "2":
			fmt.Fprint(w, `{"data":{"jobs":[
				{"title":"Police Constable","org":{"name":"Home Department"},"vacancies":4000,"last_date":"2025-06-01","url":"/jobs/constable"}
			]}}`)
		default:
			fmt.Fprint(w, `{"data":{"jobs":[]}}`)
		}
	}))
	defer server.Close()

	engine := NewRawEngine(testExtractConfig(), arbor.NewLogger())
	source := rawTestSource(server.URL)

	var got []*models.RawCandidate
	stats, err := engine.Extract(context.Background(), source, func(c *models.RawCandidate) {
		got = append(got, c)
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 3, stats.PagesFetched, "stops after the first empty page")

	nurse := got[0]
	assert.Equal(t, "Staff Nurse Recruitment", nurse.Title)
	assert.Equal(t, "Health Department", nurse.Department)
	require.NotNil(t, nurse.PostCount)
	assert.Equal(t, 230, *nurse.PostCount, "JSON numbers map directly")
	require.NotNil(t, nurse.ApplicationEnd)
	assert.Equal(t, time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC), nurse.ApplicationEnd.UTC())
	assert.Equal(t, server.URL+"/jobs/nurse", nurse.SourceURL)

	guard := got[1]
	require.NotNil(t, guard.PostCount)
	assert.Equal(t, 1100, *guard.PostCount, "string counts go through count parsing")
	require.NotNil(t, guard.ApplicationEnd)
	assert.Equal(t, time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC), guard.ApplicationEnd.UTC())

	assert.Equal(t, "Police Constable", got[2].Title)
}

func TestRawEngine_Extract_SinglePageWithoutPageParam(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprint(w, `{"data":{"jobs":[{"title":"Lone Job","last_date":"2025-07-01"}]}}`)
	}))
	defer server.Close()

	engine := NewRawEngine(testExtractConfig(), arbor.NewLogger())
	source := rawTestSource(server.URL)
	source.Pagination.PageParam = ""

	var got []*models.RawCandidate
	_, err := engine.Extract(context.Background(), source, func(c *models.RawCandidate) {
		got = append(got, c)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, requests, "no page parameter means a single fetch")
	assert.Len(t, got, 1)
}

func TestRawEngine_Extract_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	engine := NewRawEngine(testExtractConfig(), arbor.NewLogger())
	source := rawTestSource(server.URL)

	_, err := engine.Extract(context.Background(), source, func(*models.RawCandidate) {})
	assert.Error(t, err)
}
