// SPDX-License-Identifier: GPL-3.0-or-later

package hostroute

import (
	"context"
	"net"
)

// Sniffer extracts the intended destination from the opening bytes of an
// accepted client stream, without proxy-aware cooperation from the client.
//
// The sniffer receives the stream with zero bytes consumed, reads the
// minimum prefix needed to determine the destination hostname and port, and
// returns a [*SniffResult] whose Prefix is the exact byte sequence to write
// to the upstream before the copy loop starts, so the upstream observes an
// unmodified protocol stream.
//
// Sniffers perform plain blocking reads; the caller bounds them externally
// by closing the connection when the context is done (see the package
// documentation on connection lifecycle).
//
// Implementations: [*HTTPSniffer], [*TLSSniffer], [*MinecraftSniffer].
type Sniffer interface {
	Sniff(ctx context.Context, conn net.Conn) (*SniffResult, error)
}

// SniffResult carries the destination a [Sniffer] discovered and the bytes
// it consumed while discovering it.
type SniffResult struct {
	// Host is the destination hostname.
	Host string

	// Port is the destination port.
	Port uint16

	// Prefix is the replay prefix: the byte sequence the upstream must
	// observe before any further client bytes are relayed.
	Prefix []byte
}

// Context builds the [Context] for chain resolution.
func (r *SniffResult) Context() Context {
	return NewContext(r.Host, r.Port)
}
