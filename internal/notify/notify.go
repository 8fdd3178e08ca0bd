// Package notify delivers rendered messages to their destination chat.
package notify

import "context"

// Destination identifies where a message goes: a chat and, for forum
// groups, an optional thread within it.
type Destination struct {
	ChatID   int64
	ThreadID *int64
}

// Notifier sends a rendered message to a destination. Implementations talk
// to an external network boundary; failures surface to the caller.
type Notifier interface {
	Send(ctx context.Context, dest Destination, text string) error
}
