// Package publisher provides the audit emission contract and a buffered
// in-process implementation that decouples request latency from sink latency.
package publisher

import (
	"context"
	"log/slog"
	"time"

	"riskgraph/pkg/platform/audit"
)

// Sink receives audit events for durable storage. Kafka in production,
// memory in tests.
type Sink interface {
	Append(ctx context.Context, event audit.Event) error
}

// Publisher is the emission contract handed to services.
type Publisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Buffered queues events onto a channel drained by a worker so audit sink
// hiccups never block request handling. The channel is bounded; when full,
// Emit drops the event and counts it rather than stalling the caller.
type Buffered struct {
	inbox   chan audit.Event
	logger  *slog.Logger
	dropped func()
}

// NewBuffered creates a buffered publisher with the given queue depth.
// dropped is invoked (if non-nil) each time an event is discarded on overflow.
func NewBuffered(depth int, logger *slog.Logger, dropped func()) *Buffered {
	if depth <= 0 {
		depth = 1024
	}
	return &Buffered{
		inbox:   make(chan audit.Event, depth),
		logger:  logger,
		dropped: dropped,
	}
}

// Emit enqueues the event, stamping the time if unset.
func (p *Buffered) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case p.inbox <- event:
		return nil
	default:
		if p.dropped != nil {
			p.dropped()
		}
		p.logger.WarnContext(ctx, "audit queue full, event dropped",
			"action", event.Action,
			"resource_type", event.ResourceType,
		)
		return nil
	}
}

// Inbox exposes the receive side for the draining worker.
func (p *Buffered) Inbox() <-chan audit.Event {
	return p.inbox
}

// Direct writes straight to the sink with no queue. Tests and single-node
// setups use it; production wiring prefers Buffered plus a worker.
type Direct struct {
	sink Sink
}

func NewDirect(sink Sink) *Direct {
	return &Direct{sink: sink}
}

func (p *Direct) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return p.sink.Append(ctx, event)
}
