package events

import (
	"context"
	"errors"
	"fmt"

	"lightning-sats-bot/internal/domain/model"

	"github.com/rs/zerolog"
)

// Sink receives events that passed validation. Deliver must not block for long;
// slow transports buffer internally.
type Sink interface {
	Deliver(ctx context.Context, ev model.OutboundEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev model.OutboundEvent) error

func (f SinkFunc) Deliver(ctx context.Context, ev model.OutboundEvent) error { return f(ctx, ev) }

type namedSink struct {
	name string
	sink Sink
}

// Bus fans a published event out to every attached sink.
// Sinks are attached during wiring, before the first Publish.
type Bus struct {
	sinks []namedSink
	log   *zerolog.Logger
}

func NewBus(logger *zerolog.Logger) *Bus {
	l := logger.With().Str("component", "EventBus").Logger()
	return &Bus{log: &l}
}

func (b *Bus) Attach(name string, s Sink) {
	b.sinks = append(b.sinks, namedSink{name: name, sink: s})
}

// Publish validates ev and delivers it to all sinks. A failing sink does not
// stop delivery to the others; the joined error is returned.
func (b *Bus) Publish(ctx context.Context, ev model.OutboundEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	var errs []error
	for _, s := range b.sinks {
		if err := s.sink.Deliver(ctx, ev); err != nil {
			b.log.Warn().Err(err).
				Str("sink", s.name).
				Str("event", string(ev.Type)).
				Str("user_id", ev.UserID).
				Msg("event delivery failed")
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}
