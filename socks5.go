// SPDX-License-Identifier: GPL-3.0-or-later

package hostroute

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/bassosimone/runtimex"
	"github.com/bassosimone/safeconn"
	"golang.org/x/net/proxy"
)

// socks5Connect opens a CONNECT tunnel to dest through the SOCKS5 proxy
// described by action, optionally authenticating with RFC 1929
// username/password. The returned connection is payload-ready: the
// handshake has already completed.
//
// The destination is passed to the proxy as a domain-name address type so
// that the upstream proxy performs name resolution: the transparent relay
// never resolves the sniffed hostname itself.
//
// The proxy address itself is reached through [ChainResolver.Dialer],
// bounded by [ChainResolver.ConnectTimeout].
func (op *ChainResolver) socks5Connect(ctx context.Context, action *Socks5ProxyAction, dest Context) (net.Conn, error) {
	var auth *proxy.Auth
	if action.Credentials != nil {
		auth = &proxy.Auth{
			User:     action.Credentials.Username,
			Password: action.Credentials.Password.Reveal(),
		}
	}

	t0 := op.TimeNow()
	op.Logger.Info(
		"socks5ConnectStart",
		slog.String("proxyAddr", action.Address),
		slog.String("remoteAddr", dest.Address),
		slog.Bool("auth", auth != nil),
		slog.Time("t", t0),
	)

	conn, err := op.socks5Dial(ctx, action.Address, auth, dest.Address)

	op.Logger.Info(
		"socks5ConnectDone",
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("proxyAddr", action.Address),
		slog.String("remoteAddr", dest.Address),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
	)

	if err != nil {
		op.Logger.Error(
			"upstreamConnectError",
			slog.String("proxyAddr", action.Address),
			slog.String("remoteAddr", dest.Address),
			slog.Any("err", err),
			slog.String("errClass", op.ErrClassifier.Classify(err)),
		)
		return nil, err
	}
	return conn, nil
}

// socks5Dial performs the proxied dial, including the SOCKS5 handshake.
func (op *ChainResolver) socks5Dial(ctx context.Context, proxyAddr string, auth *proxy.Auth, target string) (net.Conn, error) {
	dialer, err := proxy.SOCKS5("tcp", proxyAddr, auth, &forwardDialer{op.Dialer})
	if err != nil {
		return nil, fmt.Errorf("socks5: %w", err)
	}

	// The dialer returned by proxy.SOCKS5 always implements
	// proxy.ContextDialer when the forward dialer does.
	cd, ok := dialer.(proxy.ContextDialer)
	runtimex.Assert(ok)

	if op.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, op.ConnectTimeout)
		defer cancel()
	}
	return cd.DialContext(ctx, "tcp", target)
}

// forwardDialer adapts a [Dialer] to the [proxy.Dialer] and
// [proxy.ContextDialer] interfaces expected by [proxy.SOCKS5].
type forwardDialer struct {
	dialer Dialer
}

var (
	_ proxy.Dialer        = &forwardDialer{}
	_ proxy.ContextDialer = &forwardDialer{}
)

// Dial implements [proxy.Dialer].
func (d *forwardDialer) Dial(network, address string) (net.Conn, error) {
	return d.dialer.DialContext(context.Background(), network, address)
}

// DialContext implements [proxy.ContextDialer].
func (d *forwardDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return d.dialer.DialContext(ctx, network, address)
}
