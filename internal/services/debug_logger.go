package services

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"easyform/internal/log"
)

// DebugRunLogger dumps per-request pipeline artifacts (raw LLM responses,
// parsed questions, solutions, generated actions) into a directory tree for
// offline inspection. Disabled loggers are no-ops.
type DebugRunLogger struct {
	enabled bool
	dir     string
	logger  *slog.Logger
}

// NewDebugRunLogger creates a run logger. When enabled is false every method
// returns immediately.
func NewDebugRunLogger(enabled bool, dir string) *DebugRunLogger {
	return &DebugRunLogger{
		enabled: enabled,
		dir:     dir,
		logger:  log.WithModule("debug_runs"),
	}
}

// Enabled reports whether artifacts are being written.
func (d *DebugRunLogger) Enabled() bool {
	return d.enabled
}

// WriteJSON serializes value under <dir>/<requestID>/<name>.json. Failures
// are logged and swallowed; debugging must never affect the pipeline.
func (d *DebugRunLogger) WriteJSON(requestID, name string, value interface{}) {
	if !d.enabled {
		return
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		d.logger.Warn("failed to serialize debug artifact", "request_id", requestID, "name", name, "error", err)
		return
	}
	d.write(requestID, name+".json", data)
}

// WriteRaw stores a raw text artifact, typically an unparsed LLM response.
func (d *DebugRunLogger) WriteRaw(requestID, name, content string) {
	if !d.enabled {
		return
	}
	d.write(requestID, name+".txt", []byte(content))
}

func (d *DebugRunLogger) write(requestID, filename string, data []byte) {
	runDir := filepath.Join(d.dir, requestID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		d.logger.Warn("failed to create debug run dir", "request_id", requestID, "error", err)
		return
	}

	// Timestamp prefix keeps artifacts in emission order.
	name := fmt.Sprintf("%s_%s", time.Now().Format("150405.000"), filename)
	if err := os.WriteFile(filepath.Join(runDir, name), data, 0o644); err != nil {
		d.logger.Warn("failed to write debug artifact", "request_id", requestID, "name", filename, "error", err)
	}
}
