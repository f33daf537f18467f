package logging

import (
	"reflect"
	"regexp"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger is a Logger that records every entry, including Trace, for
// assertions in tests.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{
		Logger:   &Logger{zap: zap.New(core), config: NewDefaultConfig()},
		observed: observed,
	}
}

func (t *TestLogger) All() []observer.LoggedEntry {
	return t.observed.All()
}

// FilterMessage returns entries whose message contains msg.
func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.observed.FilterMessageSnippet(msg)
}

func (t *TestLogger) Reset() {
	t.observed.TakeAll()
}

// AssertLogged fails tb unless an entry at level contains msg.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	if !t.logged(level, msg) {
		tb.Errorf("expected %v log containing %q, got %d entries: %+v", level, msg, t.observed.Len(), t.observed.All())
	}
}

func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	if t.logged(level, msg) {
		tb.Errorf("unexpected %v log containing %q", level, msg)
	}
}

func (t *TestLogger) logged(level zapcore.Level, msg string) bool {
	for _, entry := range t.observed.All() {
		if entry.Level == level && strings.Contains(entry.Message, msg) {
			return true
		}
	}
	return false
}

// AssertField fails tb unless some entry whose message contains msg carries
// key with the expected value.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, expected any) {
	tb.Helper()
	for _, entry := range t.FilterMessage(msg).All() {
		if v, ok := entry.ContextMap()[key]; ok && reflect.DeepEqual(v, expected) {
			return
		}
	}
	tb.Errorf("no %q entry with %s=%v", msg, key, expected)
}

// AssertNoSecrets checks every message and string field against the
// logger's redaction settings. Observed entries bypass the redacting
// encoder, so this catches values logged without Secret or RedactedString.
func (t *TestLogger) AssertNoSecrets(tb testing.TB) {
	tb.Helper()
	redaction := t.config.Redaction
	patterns := make([]*regexp.Regexp, 0, len(redaction.Patterns))
	for _, p := range redaction.Patterns {
		patterns = append(patterns, regexp.MustCompile(p))
	}
	leaks := func(s string) bool {
		for _, re := range patterns {
			if re.MatchString(s) {
				return true
			}
		}
		return false
	}

	for _, entry := range t.observed.All() {
		if leaks(entry.Message) {
			tb.Errorf("sensitive value in message %q", entry.Message)
		}
		for _, f := range entry.Context {
			if f.Type != zapcore.StringType {
				continue
			}
			if leaks(f.String) {
				tb.Errorf("sensitive value in field %q of %q", f.Key, entry.Message)
			}
			for _, name := range redaction.Fields {
				if strings.Contains(strings.ToLower(f.Key), name) && f.String != "" && f.String != "[REDACTED]" {
					tb.Errorf("field %q of %q not redacted", f.Key, entry.Message)
				}
			}
		}
	}
}
