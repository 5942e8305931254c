// SPDX-License-Identifier: GPL-3.0-or-later

package hostroute

import (
	"github.com/bassosimone/runtimex"
	"github.com/google/uuid"
)

// NewConnID returns a UUIDv7 identifying one accepted connection.
//
// The listener pool generates a connID per accepted connection and attaches
// it to the connectionStart and connectionDone events and, when
// [Pool.ObserveIO] is set, to the per-I/O events of the client and upstream
// connections. The sniffer and resolver events (such as httpSniffDone or
// connectStart) do not carry it. Because UUIDv7 values are
// time-ordered, sorting by connID also sorts by accept time.
//
// This function panics if the system random number generator fails,
// which should only happen under extraordinary circumstances.
func NewConnID() string {
	return runtimex.PanicOnError1(uuid.NewV7()).String()
}
