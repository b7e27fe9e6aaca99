// Package pulse carries progress reporting for long-running operations.
//
// The emitter interface is domain-agnostic; export and import drive it with
// their own stage names and metadata.
package pulse

import (
	"fmt"
	"sync"
	"time"

	"github.com/pterm/pterm"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/termforge/logger"
	"github.com/teranos/termforge/sym"
)

// ProgressEmitter receives progress updates from a long-running operation.
// Implementations must be safe to call from the operation's goroutine.
type ProgressEmitter interface {
	// EmitStage announces the start of a processing stage
	EmitStage(stage string, message string)

	// EmitProgress announces that count items are done so far. metadata may
	// carry "total" and "type".
	EmitProgress(count int, metadata map[string]interface{})

	// EmitComplete announces successful completion with summary
	EmitComplete(summary map[string]interface{})

	// EmitError announces an error during processing
	EmitError(stage string, err error)

	// EmitInfo emits general informational message
	EmitInfo(message string)
}

// NopEmitter discards everything.
type NopEmitter struct{}

func (NopEmitter) EmitStage(string, string)                 {}
func (NopEmitter) EmitProgress(int, map[string]interface{}) {}
func (NopEmitter) EmitComplete(map[string]interface{})      {}
func (NopEmitter) EmitError(string, error)                  {}
func (NopEmitter) EmitInfo(string)                          {}

// CLIEmitter outputs pretty-printed progress to terminal using pterm
type CLIEmitter struct {
	verbosity int
}

// NewCLIEmitter creates a CLI progress emitter for terminal output
func NewCLIEmitter(verbosity int) *CLIEmitter {
	return &CLIEmitter{verbosity: verbosity}
}

func (e *CLIEmitter) EmitStage(stage string, message string) {
	pterm.Printf("%s %s: %s\n", sym.Pulse, pterm.LightCyan(stage), message)
}

func (e *CLIEmitter) EmitProgress(count int, metadata map[string]interface{}) {
	itemType, ok := metadata["type"].(string)
	if !ok {
		itemType = "items"
	}
	if total, ok := metadata["total"].(int); ok && total > 0 {
		pterm.Printf("  %s/%d %s (%.0f%%)\n", pterm.Green(fmt.Sprintf("%d", count)), total, itemType,
			float64(count)/float64(total)*100)
		return
	}
	pterm.Printf("  %s %s\n", pterm.Green(fmt.Sprintf("%d", count)), itemType)
}

func (e *CLIEmitter) EmitComplete(summary map[string]interface{}) {
	pterm.Success.Println("Done")
	if e.verbosity >= 1 {
		for key, value := range summary {
			pterm.Printf("  %s: %v\n", key, value)
		}
	}
}

func (e *CLIEmitter) EmitError(stage string, err error) {
	pterm.Error.Printf("%s failed: %v\n", stage, err)
}

func (e *CLIEmitter) EmitInfo(message string) {
	if e.verbosity >= 1 {
		pterm.Info.Println(message)
	}
}

// LogEmitter writes progress as structured log entries.
type LogEmitter struct {
	log *zap.SugaredLogger
}

// NewLogEmitter returns an emitter logging to l (nil is silent).
func NewLogEmitter(l *zap.SugaredLogger) *LogEmitter {
	return &LogEmitter{log: logger.OrNop(l)}
}

func (e *LogEmitter) EmitStage(stage string, message string) {
	e.log.Infow(message, logger.FieldOperation, stage, logger.FieldSymbol, sym.Pulse)
}

func (e *LogEmitter) EmitProgress(count int, metadata map[string]interface{}) {
	kv := []interface{}{logger.FieldCount, count}
	for k, v := range metadata {
		kv = append(kv, k, v)
	}
	e.log.Debugw("Progress", kv...)
}

func (e *LogEmitter) EmitComplete(summary map[string]interface{}) {
	kv := make([]interface{}, 0, len(summary)*2)
	for k, v := range summary {
		kv = append(kv, k, v)
	}
	e.log.Infow("Complete", kv...)
}

func (e *LogEmitter) EmitError(stage string, err error) {
	e.log.Errorw("Stage failed", logger.FieldOperation, stage, logger.FieldError, err)
}

func (e *LogEmitter) EmitInfo(message string) {
	e.log.Infow(message)
}

// Multi fans out to several emitters in order.
type Multi []ProgressEmitter

func (m Multi) EmitStage(stage, message string) {
	for _, e := range m {
		e.EmitStage(stage, message)
	}
}

func (m Multi) EmitProgress(count int, metadata map[string]interface{}) {
	for _, e := range m {
		e.EmitProgress(count, metadata)
	}
}

func (m Multi) EmitComplete(summary map[string]interface{}) {
	for _, e := range m {
		e.EmitComplete(summary)
	}
}

func (m Multi) EmitError(stage string, err error) {
	for _, e := range m {
		e.EmitError(stage, err)
	}
}

func (m Multi) EmitInfo(message string) {
	for _, e := range m {
		e.EmitInfo(message)
	}
}

// Throttled forwards EmitProgress at most once per interval; the first call
// always goes through. Other events pass unchanged.
type Throttled struct {
	ProgressEmitter
	mu        sync.Mutex
	sometimes rate.Sometimes
}

// Throttle wraps e. A non-positive interval disables throttling.
func Throttle(e ProgressEmitter, interval time.Duration) ProgressEmitter {
	if interval <= 0 {
		return e
	}
	return &Throttled{
		ProgressEmitter: e,
		sometimes:       rate.Sometimes{First: 1, Interval: interval},
	}
}

func (t *Throttled) EmitProgress(count int, metadata map[string]interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sometimes.Do(func() {
		t.ProgressEmitter.EmitProgress(count, metadata)
	})
}
