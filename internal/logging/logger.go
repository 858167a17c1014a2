// Package logging provides categorized, structured logging for the
// grounding engine. Each subsystem gets its own named logger backed by a
// single process-wide zap.Logger; logs are a no-op until Initialize is
// called, so library use (embedding the engine in another program) never
// forces log configuration.
package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Category identifies the subsystem emitting a log line.
type Category string

const (
	CategoryCoordinator Category = "coordinator"
	CategoryGrounder    Category = "grounder"
	CategoryClique      Category = "clique"
	CategoryAtomReg     Category = "atomreg"
	CategoryMRF         Category = "mrf"
	CategoryCache       Category = "cache"
	CategoryCLI         Category = "cli"
)

var (
	mu        sync.RWMutex
	base      *zap.Logger
	initDone  bool
	sugarPool = make(map[Category]*zap.SugaredLogger)
)

// Initialize installs the process-wide logger. debug selects development
// (human-readable, debug-level) vs. production (JSON, info-level) encoding.
func Initialize(debug bool) error {
	mu.Lock()
	defer mu.Unlock()

	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("logging: build zap logger: %w", err)
	}

	base = l
	sugarPool = make(map[Category]*zap.SugaredLogger)
	initDone = true
	return nil
}

// Sync flushes any buffered log entries. Safe to call even if Initialize
// was never called.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if base != nil {
		_ = base.Sync()
	}
}

// Get returns the named logger for category, lazily falling back to a
// no-op logger if Initialize has not been called.
func Get(category Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := sugarPool[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := sugarPool[category]; ok {
		return l
	}
	if !initDone {
		base = zap.NewNop()
	}
	l := base.Named(string(category)).Sugar()
	sugarPool[category] = l
	return l
}
