package badger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praeco/internal/interfaces"
	"github.com/ternarybob/praeco/internal/models"
	"gopkg.in/yaml.v3"
)

// SourceFile represents one source definition in a TOML or YAML file.
// Format (TOML):
//
//	[ssc]
//	name = "Staff Selection Commission"
//	base_url = "https://ssc.gov.in/notices"
//	engine = "static"
//	scrape_interval_hours = 6
//	request_delay_seconds = 2
//	max_retries = 3
//	active = true
//	[ssc.selectors]
//	list = "table.notice-board tr"
//	title = "td.title a"
//	[ssc.pagination]
//	next_page_selector = "a.next"
//	max_pages = 10
type SourceFile struct {
	Name                string            `toml:"name" yaml:"name"`
	BaseURL             string            `toml:"base_url" yaml:"base_url"`
	Engine              string            `toml:"engine" yaml:"engine"`
	Selectors           map[string]string `toml:"selectors" yaml:"selectors"`
	Pagination          models.Pagination `toml:"pagination" yaml:"pagination"`
	ScrapeIntervalHours int               `toml:"scrape_interval_hours" yaml:"scrape_interval_hours"`
	RequestDelaySeconds int               `toml:"request_delay_seconds" yaml:"request_delay_seconds"`
	MaxRetries          int               `toml:"max_retries" yaml:"max_retries"`
	Active              bool              `toml:"active" yaml:"active"`
}

// LoadSourcesFromFiles loads source definitions from TOML/YAML files in the
// given directory and upserts them into source storage. Parse or validation
// failures skip that file or source; loading never aborts startup.
//
// Runtime bookkeeping (last-run timestamp, failure counter) on an existing
// record is preserved across reloads. Re-activating a source from its file
// resets the failure counter, which is how an administrator recovers a
// source that was auto-disabled.
func LoadSourcesFromFiles(ctx context.Context, sourceStorage interfaces.SourceStorage, dirPath string, logger arbor.ILogger) error {
	logger.Debug().Str("dir", dirPath).Msg("Loading sources from files")

	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		logger.Debug().Str("dir", dirPath).Msg("Sources directory does not exist, skipping")
		return nil
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		logger.Warn().Err(err).Str("dir", dirPath).Msg("Failed to read sources directory")
		return nil // Non-fatal
	}

	loadedCount := 0
	skippedCount := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".toml" && ext != ".yaml" && ext != ".yml" {
			continue
		}

		content, err := os.ReadFile(filepath.Join(dirPath, name))
		if err != nil {
			logger.Warn().Err(err).Str("file", name).Msg("Failed to read source file")
			skippedCount++
			continue
		}

		// A file holds a map of source id to definition
		var sources map[string]SourceFile
		if ext == ".toml" {
			err = toml.Unmarshal(content, &sources)
		} else {
			err = yaml.Unmarshal(content, &sources)
		}
		if err != nil {
			logger.Warn().Err(err).Str("file", name).Msg("Failed to parse source file")
			skippedCount++
			continue
		}

		for id, file := range sources {
			source, err := sourceFromFile(id, file)
			if err != nil {
				logger.Warn().Err(err).Str("file", name).Str("source", id).Msg("Skipping invalid source")
				skippedCount++
				continue
			}

			// Preserve runtime bookkeeping across reloads
			if existing, err := sourceStorage.GetSource(ctx, id); err == nil && existing != nil {
				source.LastRunAt = existing.LastRunAt
				source.CreatedAt = existing.CreatedAt
				source.ConsecutiveFailures = existing.ConsecutiveFailures
				if source.Active && !existing.Active {
					source.ConsecutiveFailures = 0
					logger.Info().Str("source", id).Msg("Source re-activated, failure counter reset")
				}
			}

			if err := sourceStorage.SaveSource(ctx, source); err != nil {
				logger.Warn().Err(err).Str("source", id).Msg("Failed to save source")
				skippedCount++
				continue
			}
			loadedCount++
		}
	}

	logger.Info().
		Int("loaded", loadedCount).
		Int("skipped", skippedCount).
		Str("dir", dirPath).
		Msg("Source definitions loaded")
	return nil
}

func sourceFromFile(id string, file SourceFile) (*models.SourceConfig, error) {
	engine, err := models.ParseEngine(file.Engine)
	if err != nil {
		return nil, err
	}

	maxRetries := file.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	intervalHours := file.ScrapeIntervalHours
	if intervalHours == 0 {
		intervalHours = 6
	}

	source := &models.SourceConfig{
		ID:             id,
		Name:           file.Name,
		BaseURL:        file.BaseURL,
		Engine:         engine,
		Selectors:      file.Selectors,
		Pagination:     file.Pagination,
		ScrapeInterval: time.Duration(intervalHours) * time.Hour,
		RequestDelay:   time.Duration(file.RequestDelaySeconds) * time.Second,
		MaxRetries:     maxRetries,
		Active:         file.Active,
	}

	if err := source.Validate(); err != nil {
		return nil, err
	}
	return source, nil
}
