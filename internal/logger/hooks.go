package logger

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

const redacted = "[REDACTED]"

// sensitiveFields are masked whatever their value.
var sensitiveFields = map[string]struct{}{
	"api_key":       {},
	"apiKey":        {},
	"token":         {},
	"auth_token":    {},
	"authorization": {},
	"Authorization": {},
}

// RedactionHook scrubs registered secrets (tenant API keys, bearer tokens)
// from log messages and fields before they reach the formatter.
type RedactionHook struct {
	mu      sync.RWMutex
	secrets map[string]struct{}
}

// NewRedactionHook creates a hook that masks the given secrets
func NewRedactionHook(secrets ...string) *RedactionHook {
	h := &RedactionHook{secrets: make(map[string]struct{})}
	for _, s := range secrets {
		h.Add(s)
	}
	return h
}

// Add registers another secret. Values shorter than 4 characters are ignored
// since masking them would garble ordinary text.
func (h *RedactionHook) Add(secret string) {
	secret = strings.TrimSpace(secret)
	if len(secret) < 4 {
		return
	}
	h.mu.Lock()
	h.secrets[secret] = struct{}{}
	h.mu.Unlock()
}

// Levels returns the log levels this hook is interested in
func (h *RedactionHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire is called when a log event occurs
func (h *RedactionHook) Fire(entry *logrus.Entry) error {
	entry.Message = h.Scrub(entry.Message)

	for key, value := range entry.Data {
		if _, ok := sensitiveFields[key]; ok {
			entry.Data[key] = redacted
			continue
		}
		switch v := value.(type) {
		case string:
			entry.Data[key] = h.Scrub(v)
		case error:
			if scrubbed := h.Scrub(v.Error()); scrubbed != v.Error() {
				entry.Data[key] = scrubbed
			}
		}
	}
	return nil
}

// Scrub replaces every registered secret in s.
func (h *RedactionHook) Scrub(s string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for secret := range h.secrets {
		if strings.Contains(s, secret) {
			s = strings.ReplaceAll(s, secret, redacted)
		}
	}
	return s
}

// ContextualLogger wraps a logger with tool-call context
type ContextualLogger struct {
	*logrus.Logger
	tool      string
	requestID string
}

// NewContextualLogger creates a new contextual logger
func NewContextualLogger(logger *logrus.Logger, tool, requestID string) *ContextualLogger {
	return &ContextualLogger{
		Logger:    logger,
		tool:      tool,
		requestID: requestID,
	}
}

// Entry returns a logrus entry carrying the call context.
func (l *ContextualLogger) Entry() *logrus.Entry {
	return l.WithFields(l.addContext(nil))
}

// addContext adds tool and request context to fields
func (l *ContextualLogger) addContext(fields logrus.Fields) logrus.Fields {
	if fields == nil {
		fields = logrus.Fields{}
	}
	if l.tool != "" {
		fields["tool"] = l.tool
	}
	if l.requestID != "" {
		fields["requestId"] = l.requestID
	}
	return fields
}

// Infof logs at info level with format and context
func (l *ContextualLogger) Infof(format string, args ...interface{}) {
	l.Entry().Infof(format, args...)
}

// Errorf logs at error level with format and context
func (l *ContextualLogger) Errorf(format string, args ...interface{}) {
	l.Entry().Errorf(format, args...)
}

// Warnf logs at warn level with format and context
func (l *ContextualLogger) Warnf(format string, args ...interface{}) {
	l.Entry().Warnf(format, args...)
}
