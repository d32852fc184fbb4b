package ports

import (
	"context"

	"github.com/ghalamif/AegisWatch/internal/domain"
)

// Action is an opaque handle invoked when a root condition turns true.
type Action interface {
	Name() string
	Execute(ctx context.Context, ev *domain.Event) error
}

// EventPublisher accepts alarm events for durable delivery.
type EventPublisher interface {
	Publish(ev *domain.Event) error
}
