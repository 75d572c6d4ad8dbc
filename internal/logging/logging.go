// Package logging builds the zap logger used across aura and names child
// loggers per subsystem category so log lines can be filtered by origin.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names a subsystem for log filtering.
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup and shutdown
	CategoryBus       Category = "bus"       // Messagebus transport
	CategoryPipeline  Category = "pipeline"  // Utterance resolution chain
	CategoryConverse  Category = "converse"  // Active-skill registry and converse round trips
	CategoryContext   Category = "context"   // Adapt context injection
	CategoryRegistry  Category = "registry"  // Vocabulary/intent registration
	CategoryQuery     Category = "query"     // Introspection queries
	CategoryLatency   Category = "latency"   // Latency monitor
	CategoryQA        Category = "qa"        // Persona question answering
)

// New builds the root logger. Verbose enables debug level; otherwise the
// production default (info) applies.
func New(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

// Named returns a child logger for the given category. A nil root yields a
// no-op logger so components never need nil checks at call sites.
func Named(root *zap.Logger, category Category) *zap.Logger {
	if root == nil {
		return zap.NewNop()
	}
	return root.Named(string(category))
}
