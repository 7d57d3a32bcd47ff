// Package logging provides structured logging with trace ID propagation.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/flightclaims/claims-engine/internal/platform/redact"
)

// ContextKey is the type used for context-propagated logging fields.
type ContextKey string

const (
	TraceIDKey ContextKey = "trace_id"
	ActorIDKey ContextKey = "actor_id"
	RoleKey    ContextKey = "role"
)

// Logger wraps logrus.Logger with claims-engine-specific helpers.
type Logger struct {
	*logrus.Logger
	service string
}

// New builds a Logger for service, with the given level ("info", "debug", ...)
// and format ("json" or "text").
func New(service, level, format string) *Logger {
	base := logrus.New()

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	base.SetLevel(parsed)

	if format == "text" {
		base.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	} else {
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}
	base.SetOutput(os.Stdout)

	return &Logger{Logger: base, service: service}
}

// NewFromEnv reads LOG_LEVEL/LOG_FORMAT (default info/json).
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// WithContext attaches trace/actor/role fields carried on ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)
	if v := ctx.Value(TraceIDKey); v != nil {
		entry = entry.WithField("trace_id", v)
	}
	if v := ctx.Value(ActorIDKey); v != nil {
		entry = entry.WithField("actor_id", v)
	}
	if v := ctx.Value(RoleKey); v != nil {
		entry = entry.WithField("role", v)
	}
	return entry
}

// NewTraceID generates a new trace identifier.
func NewTraceID() string {
	return uuid.New().String()
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(TraceIDKey).(string); ok {
		return v
	}
	return ""
}

func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, ActorIDKey, actorID)
}

func ActorID(ctx context.Context) string {
	if v, ok := ctx.Value(ActorIDKey).(string); ok {
		return v
	}
	return ""
}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, RoleKey, role)
}

// LogRequest logs a completed HTTP request.
func (l *Logger) LogRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}).Info("http request")
}

// LogDatabaseQuery logs a repository query outcome.
func (l *Logger) LogDatabaseQuery(ctx context.Context, operation string, duration time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"operation":   operation,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithField("error", redact.Err(err)).Error("database query failed")
		return
	}
	entry.Debug("database query executed")
}

// LogClaimTransition logs a claim lifecycle transition attempt.
func (l *Logger) LogClaimTransition(ctx context.Context, claimID, from, to string, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"claim_id": claimID,
		"from":     from,
		"to":       to,
	})
	if err != nil {
		entry.WithField("error", redact.Err(err)).Warn("claim transition rejected")
		return
	}
	entry.Info("claim transition applied")
}

// LogUploadPipeline logs a stage of the document upload pipeline.
func (l *Logger) LogUploadPipeline(ctx context.Context, stage, fileID string, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"stage":   stage,
		"file_id": fileID,
	})
	if err != nil {
		entry.WithField("error", redact.Err(err)).Error("upload pipeline stage failed")
		return
	}
	entry.Debug("upload pipeline stage completed")
}

// LogAuthEvent logs an authentication or session lifecycle event.
func (l *Logger) LogAuthEvent(ctx context.Context, eventType string, details map[string]interface{}) {
	fields := logrus.Fields{"event_type": eventType}
	for k, v := range redact.Map(details) {
		fields[k] = v
	}
	l.WithContext(ctx).WithFields(fields).Warn("auth event")
}

// LogAudit records an auditable action against a resource.
func (l *Logger) LogAudit(ctx context.Context, action, resource, resourceID, result string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"action":      action,
		"resource":    resource,
		"resource_id": resourceID,
		"result":      result,
		"audit":       true,
	}).Info("audit log")
}

// Error logs an error with redaction applied to both message and fields.
func (l *Logger) Error(ctx context.Context, message string, err error, fields map[string]interface{}) {
	entry := l.WithContext(ctx)
	if err != nil {
		entry = entry.WithField("error", redact.Err(err))
	}
	entry.WithFields(redact.Map(fields)).Error(message)
}

var defaultLogger *Logger

// InitDefault sets the process-wide default logger.
func InitDefault(service, level, format string) {
	defaultLogger = New(service, level, format)
}

// Default returns the process-wide logger, initializing a fallback if unset.
func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = New("claims-engine", "info", "json")
	}
	return defaultLogger
}
