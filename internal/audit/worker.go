package audit

import (
	"context"
	"errors"
	"log/slog"
)

// ErrBufferFull is returned by ChannelSink when the worker is not keeping up.
var ErrBufferFull = errors.New("audit buffer full")

// ChannelSink hands events to a Worker without blocking the request path.
type ChannelSink struct {
	outbox chan<- Event
}

func NewChannelSink(outbox chan<- Event) *ChannelSink {
	return &ChannelSink{outbox: outbox}
}

func (s *ChannelSink) Append(_ context.Context, e Event) error {
	select {
	case s.outbox <- e:
		return nil
	default:
		return ErrBufferFull
	}
}

// Worker consumes audit events from a channel and forwards them to a
// downstream sink such as Kafka.
type Worker struct {
	sink   Sink
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(sink Sink, inbox <-chan Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

// Run forwards events until ctx is cancelled or the inbox is closed. Sink
// failures are logged and the event is dropped.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			if err := w.sink.Append(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "failed to forward audit event",
					"type", string(event.Type),
					"error", err,
				)
			}
		}
	}
}
