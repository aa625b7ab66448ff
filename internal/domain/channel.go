package domain

import "context"

// Channel is an inbound transport that publishes messages to the bus.
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
}

// Deliverer sends content to a destination thread. Each call returns the
// ID of the delivered message or an error.
type Deliverer interface {
	SendText(ctx context.Context, dest DestinationID, body string) (int, error)
	SendMedia(ctx context.Context, dest DestinationID, media Media, caption string) (int, error)
}
