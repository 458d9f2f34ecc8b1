package services

import (
	"context"
	"errors"

	"github.com/getsentry/sentry-go"

	"github.com/miradorstack/mirador-utilization/internal/utils"
)

// ErrorReporter forwards failures to an external error tracker.
type ErrorReporter interface {
	Report(ctx context.Context, operation string, err error)
}

// SentryReporter reports errors through a Sentry hub. A nil hub disables reporting.
type SentryReporter struct {
	hub *sentry.Hub
}

// NewSentryReporter wraps hub.
func NewSentryReporter(hub *sentry.Hub) *SentryReporter {
	return &SentryReporter{hub: hub}
}

// Report captures err tagged with the operation and, when known, the failing
// dependency or machine.
func (r *SentryReporter) Report(ctx context.Context, operation string, err error) {
	if r == nil || r.hub == nil || err == nil {
		return
	}
	hub := r.hub
	if fromCtx := sentry.GetHubFromContext(ctx); fromCtx != nil {
		hub = fromCtx
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("operation", operation)
		var dep *utils.DependencyError
		if errors.As(err, &dep) {
			scope.SetTag("dependency", dep.Dependency)
		}
		var invalid *utils.InvalidEventError
		if errors.As(err, &invalid) {
			scope.SetTag("machine_id", invalid.MachineID)
			scope.SetContext("state_event", sentry.Context{
				"event_id": invalid.EventID,
				"index":    invalid.Index,
				"reason":   invalid.Reason,
			})
		}
		hub.CaptureException(err)
	})
}

type noopReporter struct{}

func (noopReporter) Report(context.Context, string, error) {}
