// Package audit appends human-readable trails of what the agent did: one
// sink for conversation traffic, one for retrieval activity. Audit writes are
// fire-and-forget; a full disk must never fail a chat.
package audit

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Sink records audit lines.
type Sink interface {
	// Append records the lines as one timestamped entry. It never fails;
	// write errors are swallowed after logging.
	Append(lines ...string)
}

// FileSink appends entries to a log file, creating the file and its parent
// directory on first write. Safe for concurrent use.
type FileSink struct {
	path   string
	logger *slog.Logger

	mu sync.Mutex
}

// NewFileSink creates a sink writing to path.
func NewFileSink(path string, logger *slog.Logger) *FileSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSink{path: path, logger: logger}
}

func (s *FileSink) Append(lines ...string) {
	if len(lines) == 0 {
		return
	}

	var b strings.Builder
	stamp := time.Now().UTC().Format("2006-01-02 15:04:05")
	for _, line := range lines {
		fmt.Fprintf(&b, "%s | %s\n", stamp, line)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.logger.Warn("creating audit log directory", "path", dir, "error", err)
			return
		}
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		s.logger.Warn("opening audit log", "path", s.path, "error", err)
		return
	}
	defer f.Close()

	if _, err := f.WriteString(b.String()); err != nil {
		s.logger.Warn("writing audit log", "path", s.path, "error", err)
	}
}

// NopSink discards all entries.
type NopSink struct{}

func (NopSink) Append(...string) {}
