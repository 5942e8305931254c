// SPDX-License-Identifier: GPL-3.0-or-later

// Package hostroute implements a multi-protocol transparent forwarding proxy.
//
// # Overview
//
// The proxy accepts inbound TCP connections carrying plain HTTP, TLS, or
// Minecraft handshake traffic and discovers the intended upstream destination
// by inspecting protocol-level metadata (the Host header, the ClientHello SNI,
// or the handshake host field) rather than requiring a proxy-aware client. It
// then routes each connection through a user-configured chain of forwarding
// rules that dispatch to a direct TCP connection, a SOCKS5 upstream, a fixed
// forward address, another named chain, or a drop action.
//
// # Components
//
// Traffic plane:
//
//   - [HTTPSniffer], [TLSSniffer], [MinecraftSniffer]: read the minimum prefix
//     of the client stream needed to learn the destination and return a
//     [SniffResult] carrying the replay prefix, the exact bytes the upstream
//     must observe before the copy loop starts so that it sees an unmodified
//     protocol stream
//   - [ChainResolver]: walks the configured chains with a visited set and
//     opens the upstream connection (direct, SOCKS5, forward) or drops
//   - [Relay]: writes the replay prefix and copies payload both ways until
//     either side closes
//   - [Pool]: binds one socket per [ListenerSpec] and supervises the accept
//     loops and per-connection tasks
//
// Control plane:
//
//   - [Store]: publishes immutable [Config] snapshots; readers never block
//     and in-flight connections keep the snapshot they resolved against
//   - [NewControlHandler]: the REST surface mutating the document
//
// # Connection Lifecycle
//
// Each accepted connection is handled by its own goroutine. The pool wraps
// both the client and the upstream connection with a context watcher, so
// cancelling the per-connection context closes both sockets and interrupts
// any in-progress I/O. Sniffers therefore perform plain blocking reads: the
// caller controls timeouts externally via the context.
//
// # Observability
//
// All components support structured logging via [SLogger] (compatible with
// [log/slog]). By default logging is disabled; set a custom [*slog.Logger]
// to enable it. Error classification is configurable via [ErrClassifier].
//
// Lifecycle events (connectionStart/connectionDone, connectStart/connectDone,
// socks5ConnectStart/socks5ConnectDone, config events) are emitted at
// [slog.LevelInfo]; sniff and relay failures and per-I/O events are emitted
// at [slog.LevelDebug]; chain-resolution anomalies are emitted at
// [slog.LevelWarn] and upstream connect failures at [slog.LevelError].
// Completion events include t0 (start time), err, and errClass. Use
// [NewConnID] to generate a unique, time-ordered identifier (UUIDv7) per
// accepted connection; the pool attaches it to the connectionStart and
// connectionDone events and, with [Pool.ObserveIO], to the per-I/O events of
// both halves. Sniffer and resolver events do not carry the connID.
//
// # Sensitive Values
//
// SOCKS5 passwords are wrapped in [Password], which redacts in every
// formatting and logging surface and only reveals its value to the JSON
// codec (the document must round-trip to disk) and to the SOCKS5 handshake.
package hostroute
