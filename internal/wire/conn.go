package wire

import "context"

// Conn is the framed duplex connection to one Downstairs. A websocket
// transport (wsconn.go) is the only implementation, but callers depend on
// this interface so tests can substitute an in-memory pair.
type Conn interface {
	Send(ctx context.Context, env *Envelope) error
	Recv(ctx context.Context) (*Envelope, error)
	Close() error
}
