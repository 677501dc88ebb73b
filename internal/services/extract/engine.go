package extract

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praeco/internal/common"
	"github.com/ternarybob/praeco/internal/interfaces"
	"github.com/ternarybob/praeco/internal/models"
)

// Registry resolves the closed Engine enum to a constructed extraction
// engine. Resolution is by enum value, never by raw string.
type Registry struct {
	engines map[models.Engine]interfaces.ExtractionEngine
	dynamic *DynamicEngine
	logger  arbor.ILogger
}

// NewRegistry constructs all engine variants
func NewRegistry(config common.ExtractConfig, logger arbor.ILogger) *Registry {
	dynamic := NewDynamicEngine(config, logger)
	return &Registry{
		engines: map[models.Engine]interfaces.ExtractionEngine{
			models.EngineStatic:  NewStaticEngine(config, logger),
			models.EngineDynamic: dynamic,
			models.EngineRaw:     NewRawEngine(config, logger),
		},
		dynamic: dynamic,
		logger:  logger,
	}
}

// Engine returns the extraction engine for the given variant, or
// EngineUnavailable when no such engine is registered.
func (r *Registry) Engine(name models.Engine) (interfaces.ExtractionEngine, error) {
	engine, ok := r.engines[name]
	if !ok {
		return nil, &common.EngineUnavailableError{Engine: string(name)}
	}
	return engine, nil
}

// Shutdown releases engine resources (the browser pool)
func (r *Registry) Shutdown() {
	r.dynamic.Shutdown()
}
