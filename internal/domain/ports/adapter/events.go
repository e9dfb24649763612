package adapter

import (
	"context"

	"lightning-sats-bot/internal/domain/model"
)

// EventPublisher is the boundary where domain actions emit push events.
type EventPublisher interface {
	Publish(ctx context.Context, ev model.OutboundEvent) error
}
