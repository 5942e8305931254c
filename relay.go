// SPDX-License-Identifier: GPL-3.0-or-later

package hostroute

import (
	"context"
	"errors"
	"io"
	"net"
)

// Relay writes the sniffer's replay prefix to the upstream and then copies
// payload bytes in both directions until either side closes.
//
// The two directions are treated symmetrically: as soon as one of them
// finishes (source half-closed or I/O error), both connections are closed,
// which terminates the other direction as well. Relay returns nil when the
// session ended with a plain close and the first I/O error otherwise;
// errors caused by our own teardown of the opposite direction are not
// reported.
//
// Relay does not close the connections beyond that teardown; the caller
// still owns both and may close them again safely.
func Relay(ctx context.Context, client, upstream net.Conn, prefix []byte) error {
	if len(prefix) > 0 {
		if _, err := upstream.Write(prefix); err != nil {
			return err
		}
	}

	errch := make(chan error, 2)
	go relayDirection(upstream, client, errch)
	go relayDirection(client, upstream, errch)

	first := <-errch
	client.Close()
	upstream.Close()
	<-errch

	if first != nil && !errors.Is(first, net.ErrClosed) {
		return first
	}
	return nil
}

// relayDirection copies src to dst until src half-closes or either side errors.
func relayDirection(dst io.Writer, src io.Reader, errch chan<- error) {
	_, err := io.Copy(dst, src)
	errch <- err
}
