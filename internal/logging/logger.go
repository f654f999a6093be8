// Package logging adapts log/slog to the teacher's minimal Logger
// interface (pkg/orchestrator.Logger), so the server-side packages log
// structured, leveled output the way MrWong99-glyphoxa's internal packages
// do, while components built directly against the teacher's provider
// interfaces keep working against the same Logger shape.
package logging

import (
	"log/slog"
	"os"

	"github.com/lokutor-ai/lokutor-gateway/pkg/orchestrator"
)

// SlogLogger satisfies orchestrator.Logger over a *slog.Logger.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps logger. A nil logger falls back to slog's default.
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger}
}

// NewDefault builds a SlogLogger writing leveled JSON to stderr, suitable
// for cmd/server's default wiring.
func NewDefault(level slog.Level) *SlogLogger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return &SlogLogger{logger: slog.New(handler)}
}

func (l *SlogLogger) Debug(msg string, args ...interface{}) { l.logger.Debug(msg, args...) }
func (l *SlogLogger) Info(msg string, args ...interface{})  { l.logger.Info(msg, args...) }
func (l *SlogLogger) Warn(msg string, args ...interface{})  { l.logger.Warn(msg, args...) }
func (l *SlogLogger) Error(msg string, args ...interface{}) { l.logger.Error(msg, args...) }

var _ orchestrator.Logger = (*SlogLogger)(nil)
