// SPDX-License-Identifier: GPL-3.0-or-later

package hostroute

import (
	"context"
	"net"
	"time"
)

// Dialer abstracts the [*net.Dialer] behavior.
//
// By making the resolver depend on an abstract implementation we allow for
// unit testing and for using alternative dialers.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Deps holds common dependencies for hostroute operations.
//
// Pass this to constructor functions to pre-wire dependencies.
// All fields have sensible defaults set by [NewDeps].
type Deps struct {
	// Dialer is used for direct connects, fixed forwards, and for
	// reaching SOCKS5 upstream proxies.
	//
	// Set by [NewDeps] to [*net.Dialer].
	Dialer Dialer

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewDeps] to [DefaultErrClassifier].
	ErrClassifier ErrClassifier

	// TimeNow returns the current time.
	//
	// Set by [NewDeps] to [time.Now].
	TimeNow func() time.Time
}

// NewDeps creates a [*Deps] with sensible defaults.
func NewDeps() *Deps {
	return &Deps{
		Dialer:        &net.Dialer{},
		ErrClassifier: DefaultErrClassifier,
		TimeNow:       time.Now,
	}
}
