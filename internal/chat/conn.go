package chat

// Conn is one client's outbound channel as seen by the core.
//
// Send must not block on the network: implementations queue the payload
// and return an error when the peer is closed or cannot keep up.
type Conn interface {
	ID() string
	Send(payload []byte) error
	IsOpen() bool
	Close() error
}
