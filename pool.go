// SPDX-License-Identifier: GPL-3.0-or-later

package hostroute

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/bassosimone/safeconn"
)

// ListenFunc abstracts listener binding for testing.
type ListenFunc func(ctx context.Context, network, address string) (net.Listener, error)

// defaultListen binds with a [*net.ListenConfig].
func defaultListen(ctx context.Context, network, address string) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, network, address)
}

// NewPool returns a new [*Pool].
//
// The deps argument contains the common dependencies for hostroute operations.
//
// The store argument provides the configuration snapshot captured per
// connection at resolution time.
//
// The specs argument lists the listeners to bind.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewPool(deps *Deps, store *Store, specs []ListenerSpec, logger SLogger) *Pool {
	return &Pool{
		ErrClassifier: deps.ErrClassifier,
		Listen:        defaultListen,
		Logger:        logger,
		Resolver:      NewChainResolver(deps, logger),
		Specs:         specs,
		Store:         store,
		TimeNow:       deps.TimeNow,
		httpSniffer:   NewHTTPSniffer(deps, logger),
		tlsSniffer:    NewTLSSniffer(deps, logger),
		mcSniffer:     NewMinecraftSniffer(deps, logger),
	}
}

// Pool binds one TCP socket per [ListenerSpec] and supervises the accept
// loops and per-connection tasks.
//
// Failure policy: a bind failure is fatal for that listener only (logged at
// error level, the other listeners continue); a single accept error or a
// downstream sniff/relay error is logged at debug level and never breaks
// the accept loop. There is no admission control: each accepted connection
// runs on its own goroutine.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Run].
type Pool struct {
	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewPool] from [Deps.ErrClassifier].
	ErrClassifier ErrClassifier

	// Listen binds the listener sockets (configurable for testing).
	//
	// Set by [NewPool] to a [*net.ListenConfig] based implementation.
	Listen ListenFunc

	// Logger is the [SLogger] to use (configurable for testing or custom logging).
	//
	// Set by [NewPool] to the user-provided logger.
	Logger SLogger

	// ObserveIO wraps every client and upstream connection with an I/O
	// observer emitting per-read/write debug events.
	//
	// Zero by default: per-I/O logging is opt-in.
	ObserveIO bool

	// Resolver opens the upstream for each sniffed connection.
	//
	// Set by [NewPool] via [NewChainResolver].
	Resolver *ChainResolver

	// Specs lists the listeners to bind.
	//
	// Set by [NewPool] to the user-provided specs.
	Specs []ListenerSpec

	// Store provides configuration snapshots.
	//
	// Set by [NewPool] to the user-provided store.
	Store *Store

	// TimeNow is the function to get the current time (configurable for testing).
	//
	// Set by [NewPool] from [Deps.TimeNow].
	TimeNow func() time.Time

	httpSniffer *HTTPSniffer
	tlsSniffer  *TLSSniffer
	mcSniffer   *MinecraftSniffer
}

// Run binds every listener and serves until ctx is done, then closes the
// listening sockets and returns. Per-connection tasks are interrupted by
// the context as well: their sockets are closed by the cancel watcher.
//
// Run returns the number of listeners that bound successfully, so callers
// can distinguish a fully-dead traffic plane from a partial one.
func (p *Pool) Run(ctx context.Context) int {
	var wg sync.WaitGroup
	bound := 0
	for _, spec := range p.Specs {
		listener, err := p.Listen(ctx, "tcp", spec.Addr)
		if err != nil {
			p.Logger.Error(
				"listenError",
				slog.String("kind", spec.Kind.String()),
				slog.String("localAddr", spec.Addr),
				slog.Any("err", err),
				slog.String("errClass", p.ErrClassifier.Classify(err)),
			)
			continue
		}
		bound++
		p.Logger.Info(
			"listenStart",
			slog.String("kind", spec.Kind.String()),
			slog.String("chain", spec.Chain),
			slog.String("localAddr", listener.Addr().String()),
		)

		// Unblock Accept when the context is done.
		stop := context.AfterFunc(ctx, func() {
			listener.Close()
		})

		wg.Add(1)
		go func(spec ListenerSpec, listener net.Listener) {
			defer wg.Done()
			defer stop()
			defer listener.Close()
			p.acceptLoop(ctx, spec, listener)
		}(spec, listener)
	}
	wg.Wait()
	return bound
}

// acceptLoop accepts connections until the listener is closed.
func (p *Pool) acceptLoop(ctx context.Context, spec ListenerSpec, listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.Logger.Debug(
				"acceptError",
				slog.String("kind", spec.Kind.String()),
				slog.String("localAddr", spec.Addr),
				slog.Any("err", err),
				slog.String("errClass", p.ErrClassifier.Classify(err)),
			)
			continue
		}
		go p.handleConn(ctx, spec, conn)
	}
}

// snifferFor dispatches on the listener kind.
func (p *Pool) snifferFor(kind ListenerKind) Sniffer {
	switch kind {
	case KindTLS:
		return p.tlsSniffer
	case KindMinecraft:
		return p.mcSniffer
	default:
		return p.httpSniffer
	}
}

// handleConn runs one per-connection task: sniff, resolve, relay. Every
// failure is caught here and logged; it never propagates to the accept loop.
func (p *Pool) handleConn(ctx context.Context, spec ListenerSpec, conn net.Conn) {
	connID := NewConnID()
	t0 := p.TimeNow()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client := p.wrap(ctx, conn, connID)
	defer client.Close()

	p.Logger.Info(
		"connectionStart",
		slog.String("connID", connID),
		slog.String("kind", spec.Kind.String()),
		slog.String("chain", spec.Chain),
		slog.String("remoteAddr", safeconn.RemoteAddr(client)),
		slog.Time("t", t0),
	)

	result, err := p.snifferFor(spec.Kind).Sniff(ctx, client)
	if err != nil {
		p.logConnectionDone(connID, spec, "", t0, err)
		return
	}
	dest := result.Context()

	// Capture the snapshot once: this connection keeps resolving against
	// it even if the control plane installs a replacement meanwhile.
	snapshot := p.Store.Current()
	upstream, err := p.Resolver.Resolve(ctx, snapshot, dest, spec.Chain)
	if err != nil {
		p.logConnectionDone(connID, spec, dest.Host, t0, err)
		return
	}
	upstream = p.wrap(ctx, upstream, connID)
	defer upstream.Close()

	err = Relay(ctx, client, upstream, result.Prefix)
	p.logConnectionDone(connID, spec, dest.Host, t0, err)
}

// wrap applies the cancel watcher and, optionally, the I/O observer.
func (p *Pool) wrap(ctx context.Context, conn net.Conn, connID string) net.Conn {
	if p.ObserveIO {
		conn = newObservedConn(conn, p.Logger, p.ErrClassifier, p.TimeNow, connID)
	}
	return watchCancel(ctx, conn)
}

// logConnectionDone emits the completion event for one connection: at info
// level for clean sessions, at debug level for failed ones, so that broken
// clients cannot spam operator-facing logs.
func (p *Pool) logConnectionDone(connID string, spec ListenerSpec, host string, t0 time.Time, err error) {
	args := []any{
		slog.String("connID", connID),
		slog.String("kind", spec.Kind.String()),
		slog.String("chain", spec.Chain),
		slog.String("host", host),
		slog.Any("err", err),
		slog.String("errClass", p.ErrClassifier.Classify(err)),
		slog.Time("t0", t0),
		slog.Time("t", p.TimeNow()),
	}
	if err != nil {
		p.Logger.Debug("connectionDone", args...)
		return
	}
	p.Logger.Info("connectionDone", args...)
}
