package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// LogFileName is the log file written under the configured log directory.
const LogFileName = "dupsweep.log"

// sweepHandler is a custom slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<opID>\t<message>\t<key=value ...>
//
// Attribute keys inside a group are prefixed with "<group>.".
type sweepHandler struct {
	w      io.Writer
	opID   string
	level  slog.Leveler
	prefix string
	attrs  []slog.Attr
}

func (h *sweepHandler) Enabled(_ context.Context, level slog.Level) bool {
	if h.level == nil {
		return true
	}
	return level >= h.level.Level()
}

func (h *sweepHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time.UTC().Format("2006-01-02T15:04:05Z")

	line := fmt.Sprintf("%s\t%s\t%s\t%s", ts, r.Level.String(), h.opID, r.Message)
	for _, a := range h.attrs {
		line += formatAttr("", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		line += formatAttr(h.prefix, a)
		return true
	})

	_, err := fmt.Fprintln(h.w, line)
	return err
}

func formatAttr(prefix string, a slog.Attr) string {
	if a.Equal(slog.Attr{}) {
		return ""
	}
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		s := ""
		for _, ga := range v.Group() {
			s += formatAttr(prefix+a.Key+".", ga)
		}
		return s
	}
	return fmt.Sprintf("\t%s%s=%v", prefix, a.Key, v)
}

func (h *sweepHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefixed := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	prefixed = append(prefixed, h.attrs...)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		prefixed = append(prefixed, a)
	}
	return &sweepHandler{w: h.w, opID: h.opID, level: h.level, prefix: h.prefix, attrs: prefixed}
}

func (h *sweepHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &sweepHandler{w: h.w, opID: h.opID, level: h.level, prefix: h.prefix + name + ".", attrs: h.attrs}
}

// multiLevelHandler sends every record to the file handler and records at
// or above the console level to the console handler.
type multiLevelHandler struct {
	file    slog.Handler
	console slog.Handler
}

func (m *multiLevelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return m.file.Enabled(ctx, level) || m.console.Enabled(ctx, level)
}

func (m *multiLevelHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	if m.file.Enabled(ctx, r.Level) {
		firstErr = m.file.Handle(ctx, r)
	}
	if m.console.Enabled(ctx, r.Level) {
		if err := m.console.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *multiLevelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &multiLevelHandler{file: m.file.WithAttrs(attrs), console: m.console.WithAttrs(attrs)}
}

func (m *multiLevelHandler) WithGroup(name string) slog.Handler {
	return &multiLevelHandler{file: m.file.WithGroup(name), console: m.console.WithGroup(name)}
}

// newLogger creates a structured logger that writes every level to
// logDir/dupsweep.log and records at consoleLevel or above to stderr.
// It returns the slog.Logger, the open log file (for cleanup), and any error.
func newLogger(logDir, opID string, consoleLevel slog.Level) (*slog.Logger, *os.File, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(logDir, LogFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	handler := &multiLevelHandler{
		file:    &sweepHandler{w: f, opID: opID},
		console: &sweepHandler{w: os.Stderr, opID: opID, level: consoleLevel},
	}
	return slog.New(handler), f, nil
}

// slogAdapter wraps *slog.Logger to satisfy the sweep.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }
