package domain

import "context"

// Monitor defines the interface for monitoring media players
// Implementations should handle D-Bus/MPRIS communication
type Monitor interface {
	// Start begins monitoring for player events
	// It should block until context is cancelled or an error occurs
	Start(ctx context.Context) error

	// Stop gracefully stops the monitor and closes the events channel
	Stop(ctx context.Context) error

	// Events returns a read-only channel that emits player lifecycle
	// and property change notifications
	Events() <-chan PlayerEvent
}

// Output defines the interface for delivering renders to the status bar host
type Output interface {
	// Write serializes and flushes one render
	Write(r Render) error
}
