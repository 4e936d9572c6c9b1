package audit

import (
	"context"
	"log/slog"

	"zkbadge/pkg/requestcontext"
)

// Sink persists or forwards audit events.
type Sink interface {
	Append(ctx context.Context, e Event) error
}

// Publisher stamps events with time and request metadata and hands them to a
// sink. It is append-only.
type Publisher struct {
	sink   Sink
	logger *slog.Logger
}

func NewPublisher(sink Sink, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{sink: sink, logger: logger}
}

func (p *Publisher) Emit(ctx context.Context, e Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = requestcontext.Now(ctx)
	}
	if e.RequestID == "" {
		e.RequestID = requestcontext.RequestID(ctx)
	}
	if err := p.sink.Append(ctx, e); err != nil {
		p.logger.WarnContext(ctx, "audit sink rejected event",
			"type", string(e.Type),
			"error", err,
		)
		return err
	}
	return nil
}
