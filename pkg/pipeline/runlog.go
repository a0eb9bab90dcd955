// pkg/pipeline/runlog.go
package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Run log event types
const (
	EventFetched      = "fetched"
	EventSynced       = "synced"
	EventProcessed    = "processed"
	EventSkipped      = "skipped"
	EventFailed       = "failed"
	EventDedupPlanned = "dedup_planned"
	EventDedupApplied = "dedup_applied"
	EventReport       = "report"
)

// RunLogEntry is one line of the append-only run log
type RunLogEntry struct {
	Time      string `json:"time"`
	Event     string `json:"event"`
	Partition string `json:"partition,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// RunLog appends pipeline events to a JSON Lines file, one file per
// run. It exists for post-mortem inspection of interrupted runs, so
// write failures are logged but never fail the pipeline.
type RunLog struct {
	file   *os.File
	enc    *json.Encoder
	logger *zap.Logger
	now    func() time.Time
}

// OpenRunLog creates a timestamped run log file under dir. A nil RunLog
// is valid and records nothing.
func OpenRunLog(dir string, logger *zap.Logger) (*RunLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run log directory: %w", err)
	}

	path := filepath.Join(dir,
		fmt.Sprintf("run_%s.jsonl", time.Now().UTC().Format("20060102_150405")))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open run log %s: %w", path, err)
	}

	return &RunLog{
		file:   file,
		enc:    json.NewEncoder(file),
		logger: logger.Named("runlog"),
		now:    time.Now,
	}, nil
}

// Record appends one event to the run log
func (l *RunLog) Record(event, partition, detail string) {
	if l == nil {
		return
	}

	entry := RunLogEntry{
		Time:      l.now().UTC().Format(time.RFC3339),
		Event:     event,
		Partition: partition,
		Detail:    detail,
	}
	if err := l.enc.Encode(entry); err != nil {
		l.logger.Warn("Failed to append run log entry",
			zap.String("event", event),
			zap.Error(err))
	}
}

// Close flushes and closes the run log file
func (l *RunLog) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}
