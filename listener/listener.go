package listener

import "context"

// Listener is a network front end serving the API surface. Start
// blocks until the context is canceled or the listener fails.
type Listener interface {
	Addr() string
	Start(ctx context.Context) error
	Stop() error
	Type() string
}
