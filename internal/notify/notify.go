// Package notify delivers transient user-facing notifications.
package notify

import (
	"context"
	"sync"

	"postly/internal/models"
	"postly/internal/observability"
)

// Level is the severity of a notification.
type Level int

const (
	LevelSuccess Level = iota
	LevelError
)

func (l Level) String() string {
	if l == LevelError {
		return "error"
	}
	return "success"
}

// Notification is one toast.
type Notification struct {
	Level   Level
	Message string
	// Code is the AppError code for error notifications.
	Code string
	// Fields carries per-field validation failures.
	Fields []models.FieldError
}

// Notifier receives notifications. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, n Notification)

func (f Func) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// Discard drops every notification.
var Discard Notifier = Func(func(context.Context, Notification) {})

// Error notifies err, classified through the AppError taxonomy.
func Error(ctx context.Context, n Notifier, err error) {
	if n == nil || err == nil {
		return
	}
	appErr := models.AsAppError(err)
	n.Notify(ctx, Notification{
		Level:   LevelError,
		Message: appErr.Message,
		Code:    appErr.Code,
		Fields:  appErr.Fields,
	})
}

// Success notifies a confirmation message. Empty messages are dropped.
func Success(ctx context.Context, n Notifier, message string) {
	if n == nil || message == "" {
		return
	}
	n.Notify(ctx, Notification{Level: LevelSuccess, Message: message})
}

// Recorder keeps every notification; safe for concurrent use.
type Recorder struct {
	mu  sync.Mutex
	all []Notification
}

func (r *Recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, n)
}

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.all...)
}

// Errors returns only error notifications.
func (r *Recorder) Errors() []Notification {
	var out []Notification
	for _, n := range r.All() {
		if n.Level == LevelError {
			out = append(out, n)
		}
	}
	return out
}

// LogNotifier writes notifications to the component log.
type LogNotifier struct {
	log *observability.ComponentLogger
}

// NewLogNotifier returns a notifier backed by the global logger.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: observability.NewComponentLogger("notify")}
}

func (l *LogNotifier) Notify(ctx context.Context, n Notification) {
	fields := map[string]interface{}{"level": n.Level.String()}
	if n.Code != "" {
		fields["code"] = n.Code
	}
	if len(n.Fields) > 0 {
		fields["fields"] = n.Fields
	}
	if n.Level == LevelError {
		l.log.Warn(ctx, n.Message, fields)
		return
	}
	l.log.Info(ctx, n.Message, fields)
}
