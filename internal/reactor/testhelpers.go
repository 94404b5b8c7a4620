package reactor

import (
	"net"
	"time"
)

// NewTestConn constructs a Conn around an already-established net.Conn for
// use by other packages' tests (e.g. internal/dispatch), without exposing
// newConn or any reactor-internal wiring.
func NewTestConn(nc net.Conn, idle, read, write time.Duration) *Conn {
	return newConn("test", nc, idle, read, write)
}
