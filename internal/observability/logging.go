// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Logger wraps slog.Logger to provide specialized logging methods.
type Logger struct {
	*slog.Logger
}

// GlobalLogger is the default logger instance for the client.
var GlobalLogger *Logger

func init() {
	GlobalLogger = NewLogger(os.Stdout, "development", "info")
}

// LogContextKey is a type for context keys used by the logging package.
type LogContextKey string

// Context keys for logging
const (
	CorrelationID LogContextKey = "correlation_id"
	UserID        LogContextKey = "user_id"
)

// ctxHandler adds correlation, user and trace ids from the context to every record.
type ctxHandler struct {
	slog.Handler
}

func (h *ctxHandler) Handle(ctx context.Context, r slog.Record) error {
	if cid, ok := ctx.Value(CorrelationID).(string); ok && cid != "" {
		r.AddAttrs(slog.String("correlation_id", cid))
	}
	if uid, ok := ctx.Value(UserID).(string); ok && uid != "" {
		r.AddAttrs(slog.String("user_id", uid))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		r.AddAttrs(slog.String("trace_id", sc.TraceID().String()))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ctxHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ctxHandler{h.Handler.WithAttrs(attrs)}
}

func (h *ctxHandler) WithGroup(name string) slog.Handler {
	return &ctxHandler{h.Handler.WithGroup(name)}
}

// NewLogger builds a context-aware logger: JSON in production, text otherwise.
func NewLogger(w io.Writer, env, level string) *Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if env == "production" || env == "prod" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return &Logger{Logger: slog.New(&ctxHandler{handler})}
}

// InitLogging replaces GlobalLogger.
func InitLogging(env, level string) {
	GlobalLogger = NewLogger(os.Stdout, env, level)
	slog.SetDefault(GlobalLogger.Logger)
}

// ParseLevel maps a LOG_LEVEL value to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GenerateCorrelationID creates a new unique correlation ID.
func GenerateCorrelationID() string {
	return uuid.NewString()
}

// WithCorrelationID returns a new context with the given correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationID, id)
}

// EnsureCorrelationID returns ctx unchanged if it already carries a
// correlation ID, otherwise a context with a fresh one.
func EnsureCorrelationID(ctx context.Context) context.Context {
	if ExtractCorrelationID(ctx) != "" {
		return ctx
	}
	return WithCorrelationID(ctx, GenerateCorrelationID())
}

// ExtractCorrelationID retrieves the correlation ID from the context.
func ExtractCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationID).(string); ok {
		return id
	}
	return ""
}

// WithUserID returns a new context tagged with the signed-in user.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, UserID, id)
}

// ComponentLogger provides structured logging for one client component.
type ComponentLogger struct {
	component string
	logger    func() *Logger
}

// NewComponentLogger creates a logger that tags every record with component.
// It always writes through the current GlobalLogger.
func NewComponentLogger(component string) *ComponentLogger {
	return &ComponentLogger{
		component: component,
		logger:    func() *Logger { return GlobalLogger },
	}
}

func (l *ComponentLogger) attrs(fields map[string]interface{}) []any {
	attrs := []any{slog.String("component", l.component)}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

// Debug logs at debug level.
func (l *ComponentLogger) Debug(ctx context.Context, msg string, fields map[string]interface{}) {
	l.logger().DebugContext(ctx, msg, l.attrs(fields)...)
}

// Info logs at info level.
func (l *ComponentLogger) Info(ctx context.Context, msg string, fields map[string]interface{}) {
	l.logger().InfoContext(ctx, msg, l.attrs(fields)...)
}

// Warn logs at warn level.
func (l *ComponentLogger) Warn(ctx context.Context, msg string, fields map[string]interface{}) {
	l.logger().WarnContext(ctx, msg, l.attrs(fields)...)
}

// Error logs err at error level.
func (l *ComponentLogger) Error(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	attrs := l.attrs(fields)
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	l.logger().ErrorContext(ctx, msg, attrs...)
}

// LogAsyncOperationStart logs the start of an asynchronous operation.
func LogAsyncOperationStart(ctx context.Context, operation string, fields map[string]interface{}) {
	attrs := []any{
		slog.String("operation", operation),
		slog.String("type", "async_start"),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	GlobalLogger.DebugContext(ctx, "async operation started", attrs...)
}

// LogAsyncOperationError logs an error in an asynchronous operation.
func LogAsyncOperationError(ctx context.Context, operation string, err error, fields map[string]interface{}) {
	attrs := []any{
		slog.String("operation", operation),
		slog.String("type", "async_error"),
		slog.String("error", err.Error()),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	GlobalLogger.ErrorContext(ctx, "async operation failed", attrs...)
}
