// SPDX-License-Identifier: GPL-3.0-or-later

package hostroute

import (
	"context"
	"net"
)

// watchCancel arranges for the connection to be closed when the context is
// done (cancelled or deadline exceeded). The pool wraps both halves of a
// proxied connection with this watcher, so dropping the per-connection
// context deterministically closes both sockets and interrupts any
// in-progress sniff or relay I/O.
//
// The returned connection wraps the input connection. Closing the returned
// connection unregisters the context watcher and closes the underlying
// connection. This ensures no goroutine leaks even if the context is
// never cancelled.
//
// The watcher is safe to use with any [net.Conn] implementation because
// Go's standard library uses the [net.ErrClosed] pattern: closing an
// already-closed connection returns [net.ErrClosed], and I/O operations
// on a closed connection fail gracefully.
func watchCancel(ctx context.Context, conn net.Conn) net.Conn {
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	return &cancelWatchedConn{Conn: conn, stop: stop}
}

// cancelWatchedConn wraps a [net.Conn] with a context cancellation watcher.
type cancelWatchedConn struct {
	net.Conn
	stop func() bool
}

// Close unregisters the context watcher and closes the underlying connection.
func (c *cancelWatchedConn) Close() error {
	c.stop()
	return c.Conn.Close()
}
