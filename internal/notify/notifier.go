package notify

import (
	"context"

	"go.uber.org/zap"
)

// Kind identifies a notification template owned by the delivery side.
type Kind string

const (
	KindLessonConfirmed        Kind = "lesson-confirmed"
	KindLessonCancelled        Kind = "lesson-cancelled"
	KindReposicaoScheduled     Kind = "reposicao-scheduled"
	KindCancellationWithMakeup Kind = "cancellation-with-makeup"
	KindTeacherApprovalNeeded  Kind = "request-teacher-approval-needed"
	KindRequestApproved        Kind = "request-approved"
	KindRequestRejected        Kind = "request-rejected"
	KindNewStudent             Kind = "new-student"
)

// Context is the structured payload handed to the sink. Rendering the
// human-readable text is the sink's responsibility, never the core's.
type Context map[string]interface{}

// Notifier delivers a notification of the given kind to a recipient address.
// Implementations live outside the scheduling core; delivery failures are
// logged by callers and never abort the state transition that triggered them.
type Notifier interface {
	Notify(ctx context.Context, kind Kind, recipient string, data Context) error
}

// Func adapts a plain function to the Notifier interface.
type Func func(ctx context.Context, kind Kind, recipient string, data Context) error

// Notify implements Notifier.
func (f Func) Notify(ctx context.Context, kind Kind, recipient string, data Context) error {
	return f(ctx, kind, recipient, data)
}

// LogNotifier records notifications to the application log. It stands in for
// a real delivery channel in development and keeps the core honest about the
// sink contract.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a log-backed notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, kind Kind, recipient string, data Context) error {
	n.logger.Info("notification",
		zap.String("kind", string(kind)),
		zap.String("recipient", recipient),
		zap.Any("context", map[string]interface{}(data)),
	)
	return nil
}

// Noop discards all notifications.
type Noop struct{}

// Notify implements Notifier.
func (Noop) Notify(context.Context, Kind, string, Context) error { return nil }
