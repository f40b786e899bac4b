package worker

import (
	"context"
	"log/slog"

	"riskgraph/pkg/platform/audit"
	"riskgraph/pkg/platform/audit/publisher"
)

// Worker drains audit events from the publisher's inbox and persists them.
// Sink failures are logged and skipped; audit delivery is best-effort from
// the engine's perspective, the sink owns durability.
type Worker struct {
	sink   publisher.Sink
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func New(sink publisher.Sink, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.sink.Append(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "audit sink append failed",
					"action", event.Action,
					"error", err,
				)
			}
		}
	}
}
