// SPDX-License-Identifier: GPL-3.0-or-later

package hostroute

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/bassosimone/safeconn"
)

// Context describes the destination discovered for one forwarded
// connection. It is immutable for the connection's lifetime.
type Context struct {
	// Host is the hostname discovered by the sniffer.
	Host string

	// Port is the destination port.
	Port uint16

	// Address is Host and Port formatted for dialing.
	Address string
}

// NewContext builds a [Context] from a discovered host and port.
func NewContext(host string, port uint16) Context {
	return Context{
		Host:    host,
		Port:    port,
		Address: net.JoinHostPort(host, strconv.Itoa(int(port))),
	}
}

// ErrDropped indicates the matched chain rule was Drop: the connection is
// closed without contacting any upstream.
var ErrDropped = errors.New("hostroute: dropped by chain policy")

// DefaultConnectTimeout bounds each upstream connect attempt so that a dead
// upstream does not leak per-connection tasks.
const DefaultConnectTimeout = 10 * time.Second

// NewChainResolver returns a new [*ChainResolver].
//
// The deps argument contains the common dependencies for hostroute operations.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewChainResolver(deps *Deps, logger SLogger) *ChainResolver {
	return &ChainResolver{
		ConnectTimeout: DefaultConnectTimeout,
		Dialer:         deps.Dialer,
		ErrClassifier:  deps.ErrClassifier,
		Logger:         logger,
		TimeNow:        deps.TimeNow,
	}
}

// ChainResolver selects and opens the upstream connection for one sniffed
// connection by walking the configured chains.
//
// Returns either a payload-ready [net.Conn] (the SOCKS5 handshake, when
// configured, has already completed) or an error, never both.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Resolve].
type ChainResolver struct {
	// ConnectTimeout bounds each upstream connect attempt. Zero disables
	// the bound.
	//
	// Set by [NewChainResolver] to [DefaultConnectTimeout].
	ConnectTimeout time.Duration

	// Dialer is the [Dialer] to use.
	//
	// Set by [NewChainResolver] from [Deps.Dialer].
	Dialer Dialer

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewChainResolver] from [Deps.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use (configurable for testing or custom logging).
	//
	// Set by [NewChainResolver] to the user-provided logger.
	Logger SLogger

	// TimeNow is the function to get the current time (configurable for testing).
	//
	// Set by [NewChainResolver] from [Deps.TimeNow].
	TimeNow func() time.Time
}

// Resolve walks the chains in cfg starting at the named chain and opens the
// upstream for dest.
//
// The walk is an iterative loop with a visited set rather than recursion:
// visiting a chain name twice logs a warning and short-circuits to a direct
// connect, so any GotoChain cycle of length N terminates after at most N
// chain lookups. A missing start chain, a missing GotoChain target, and a
// chain with no matching rule all fall back to a direct connect.
func (op *ChainResolver) Resolve(ctx context.Context, cfg *Config, dest Context, start string) (net.Conn, error) {
	visited := make(map[string]bool)
	name := start
	for {
		if visited[name] {
			op.Logger.Warn(
				"chainCycle",
				slog.String("chain", name),
				slog.String("host", dest.Host),
			)
			return op.connect(ctx, dest.Address)
		}
		visited[name] = true

		chain, found := cfg.Chains[name]
		if !found {
			if name != start {
				op.Logger.Warn(
					"chainMissing",
					slog.String("chain", name),
					slog.String("host", dest.Host),
				)
			}
			return op.connect(ctx, dest.Address)
		}

		action := op.firstMatch(cfg, dest, chain)
		switch {
		case action == nil:
			// No rule matched: fall back to direct connect.
			return op.connect(ctx, dest.Address)

		case action.GotoChain != nil:
			name = action.GotoChain.Chain

		case action.Socks5Proxy != nil:
			return op.socks5Connect(ctx, action.Socks5Proxy, dest)

		case action.Forward != nil:
			return op.connect(ctx, action.Forward.Address)

		case action.Drop != nil:
			return nil, ErrDropped

		default:
			// DirectConnect, explicitly or as the zero action.
			return op.connect(ctx, dest.Address)
		}
	}
}

// firstMatch returns the action of the first rule whose filter matches dest,
// or nil when no rule matches.
func (op *ChainResolver) firstMatch(cfg *Config, dest Context, chain []ChainRule) *ChainAction {
	for idx := range chain {
		if op.filterMatches(cfg, dest, chain[idx].Filter) {
			return &chain[idx].Action
		}
	}
	return nil
}

// filterMatches evaluates one filter against the destination host.
func (op *ChainResolver) filterMatches(cfg *Config, dest Context, filter ChainFilter) bool {
	switch {
	case filter.DomainPool != nil:
		pool, found := cfg.Stash.DomainPools[filter.DomainPool.Pool]
		if !found {
			op.Logger.Warn(
				"domainPoolMissing",
				slog.String("pool", filter.DomainPool.Pool),
				slog.String("host", dest.Host),
			)
			return false
		}
		return pool.Contains(dest.Host)

	case filter.DomainWildcard != nil:
		return matchWildcard(filter.DomainWildcard.Wildcard, dest.Host)

	default:
		// Anything, explicitly or as the zero filter.
		return true
	}
}

// connect opens a TCP connection to the given address, bounded by
// [ChainResolver.ConnectTimeout].
func (op *ChainResolver) connect(ctx context.Context, address string) (net.Conn, error) {
	t0 := op.TimeNow()
	deadline, _ := ctx.Deadline()
	op.Logger.Info(
		"connectStart",
		slog.Time("deadline", deadline),
		slog.String("protocol", "tcp"),
		slog.String("remoteAddr", address),
		slog.Time("t", t0),
	)
	if op.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, op.ConnectTimeout)
		defer cancel()
	}
	conn, err := op.Dialer.DialContext(ctx, "tcp", address)
	op.Logger.Info(
		"connectDone",
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("protocol", "tcp"),
		slog.String("remoteAddr", address),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
	)
	if err != nil {
		op.Logger.Error(
			"upstreamConnectError",
			slog.String("remoteAddr", address),
			slog.Any("err", err),
			slog.String("errClass", op.ErrClassifier.Classify(err)),
		)
		return nil, err
	}
	return conn, nil
}
