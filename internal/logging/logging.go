// Package logging configures the process-wide logger: structured output
// to the console, plus a per-day log file when a directory is configured,
// so failed runs can be inspected after the fact.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// Setup builds the root logger. dir may be empty to log to stderr only.
// The returned closer releases the log file.
func Setup(level, dir string) (*logrus.Logger, func(), error) {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("logging: parse level %q: %w", level, err)
	}
	log.SetLevel(parsed)

	closer := func() {}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("logging: ensure log dir: %w", err)
		}
		path := filepath.Join(dir, time.Now().Format("2006-01-02")+".log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("logging: open log file: %w", err)
		}
		log.SetOutput(io.MultiWriter(os.Stderr, f))
		closer = func() { f.Close() }
	}
	return log, closer, nil
}

// ForRun returns a logger entry tagged with the run's identity, so every
// line from one pipeline run can be grepped out of a shared log.
func ForRun(log *logrus.Logger, runID string, date time.Time) *logrus.Entry {
	return log.WithFields(logrus.Fields{
		"run_id": runID,
		"date":   date.Format("2006-01-02"),
	})
}
