package testutil

import (
	"fmt"
	"sync"
)

// RecordingLogger keeps every message it receives as "LEVEL msg".
// Safe for concurrent use.
type RecordingLogger struct {
	mu       sync.Mutex
	messages []string
}

func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{}
}

func (l *RecordingLogger) record(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("%s %s", level, msg))
}

func (l *RecordingLogger) Debug(msg string, args ...any) { l.record("DEBUG", msg) }
func (l *RecordingLogger) Info(msg string, args ...any)  { l.record("INFO", msg) }
func (l *RecordingLogger) Warn(msg string, args ...any)  { l.record("WARN", msg) }
func (l *RecordingLogger) Error(msg string, args ...any) { l.record("ERROR", msg) }

// Messages returns a copy of the recorded messages.
func (l *RecordingLogger) Messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.messages))
	copy(out, l.messages)
	return out
}

// Contains reports whether a message equal to "LEVEL msg" was recorded.
func (l *RecordingLogger) Contains(level, msg string) bool {
	want := level + " " + msg
	for _, m := range l.Messages() {
		if m == want {
			return true
		}
	}
	return false
}
