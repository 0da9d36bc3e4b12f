// Package logging provides categorized structured logging for coachd.
// Every subsystem logs through a named zap sugared logger; categories can
// be silenced individually from config without touching call sites.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies a logging subsystem.
type Category string

const (
	CategoryBoot       Category = "boot"       // startup and shutdown
	CategorySession    Category = "session"    // session lifecycle
	CategoryStore      Category = "store"      // sqlite operations
	CategoryLoop       Category = "loop"       // control loop iterations
	CategoryProvider   Category = "provider"   // completion provider calls
	CategoryKnowledge  Category = "knowledge"  // knowledge selection/fetch
	CategoryCheckpoint Category = "checkpoint" // checkpoint manager
	CategoryContext    Category = "context"    // prompt assembly
	CategoryWorkout    Category = "workout"    // command applier
	CategoryAPI        Category = "api"        // http boundary
)

var (
	mu       sync.RWMutex
	root     *zap.Logger
	loggers  map[Category]*zap.SugaredLogger
	disabled map[Category]bool
)

func init() {
	root = zap.NewNop()
	loggers = make(map[Category]*zap.SugaredLogger)
	disabled = make(map[Category]bool)
}

// Initialize installs the root logger. Call once at startup; before
// Initialize all categories are no-ops, which keeps tests quiet.
func Initialize(logger *zap.Logger, off []string) {
	mu.Lock()
	defer mu.Unlock()

	if logger == nil {
		logger = zap.NewNop()
	}
	root = logger
	loggers = make(map[Category]*zap.SugaredLogger)
	disabled = make(map[Category]bool)
	for _, c := range off {
		disabled[Category(c)] = true
	}
}

// NewDevelopment builds a console logger for CLI use.
func NewDevelopment(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

// Get returns the sugared logger for a category.
func Get(c Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := loggers[c]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[c]; ok {
		return l
	}
	base := root
	if disabled[c] {
		base = zap.NewNop()
	}
	l := base.Named(string(c)).Sugar()
	loggers[c] = l
	return l
}

// Convenience helpers for hot paths. These mirror the category names so
// call sites stay short.

func Store(format string, args ...interface{})      { Get(CategoryStore).Debugf(format, args...) }
func Loop(format string, args ...interface{})       { Get(CategoryLoop).Debugf(format, args...) }
func Session(format string, args ...interface{})    { Get(CategorySession).Debugf(format, args...) }
func Provider(format string, args ...interface{})   { Get(CategoryProvider).Debugf(format, args...) }
func Knowledge(format string, args ...interface{})  { Get(CategoryKnowledge).Debugf(format, args...) }
func Checkpoint(format string, args ...interface{}) { Get(CategoryCheckpoint).Debugf(format, args...) }
func Context(format string, args ...interface{})    { Get(CategoryContext).Debugf(format, args...) }
func Workout(format string, args ...interface{})    { Get(CategoryWorkout).Debugf(format, args...) }
func API(format string, args ...interface{})        { Get(CategoryAPI).Debugf(format, args...) }
