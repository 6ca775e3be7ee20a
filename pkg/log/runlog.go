package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// RunLogTimeFormat is the timestamp layout of run log lines
const RunLogTimeFormat = "2006-01-02 15:04:05,000"

// RunLogHook tees INFO and more severe entries to a plain-text run log,
// one "time - LEVEL - message" line per entry
type RunLogHook struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer // nil once closed
}

// NewRunLogHook opens (appending) the run log at path
func NewRunLogHook(path string) (*RunLogHook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create run log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open run log %s: %w", path, err)
	}
	return &RunLogHook{w: f, closer: f}, nil
}

// Levels implements logrus.Hook
func (h *RunLogHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel, logrus.InfoLevel}
}

// Fire implements logrus.Hook
func (h *RunLogHook) Fire(entry *logrus.Entry) error {
	line := fmt.Sprintf("%s - %s - %s\n", entry.Time.Format(RunLogTimeFormat), strings.ToUpper(entry.Level.String()), entry.Message)

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, line)
	return err
}

// Close closes the log file; later calls are no-ops
func (h *RunLogHook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closer == nil {
		return nil
	}
	err := h.closer.Close()
	h.closer = nil
	return err
}
