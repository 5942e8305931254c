// SPDX-License-Identifier: GPL-3.0-or-later

package hostroute

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxHeaderBytes bounds how much of an HTTP request head the sniffer
// is willing to buffer before rejecting the request.
const DefaultMaxHeaderBytes = 8 * 1024

// ErrNoHostHeader indicates an HTTP/1 request without a Host header.
var ErrNoHostHeader = errors.New("hostroute: no Host header in http request")

// httpBadRequest is sent to the client before closing on parse failures.
const httpBadRequest = "HTTP/1.1 400 Bad Request\r\nConnection: close\r\nContent-Length: 0\r\n\r\n"

// NewHTTPSniffer returns a new [*HTTPSniffer].
//
// The deps argument contains the common dependencies for hostroute operations.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewHTTPSniffer(deps *Deps, logger SLogger) *HTTPSniffer {
	return &HTTPSniffer{
		ErrClassifier:  deps.ErrClassifier,
		Logger:         logger,
		MaxHeaderBytes: DefaultMaxHeaderBytes,
		TimeNow:        deps.TimeNow,
	}
}

// HTTPSniffer extracts the destination from an HTTP/1 request head.
//
// It reads the request line and headers up to the empty-line terminator,
// locates the Host header case-insensitively, and parses it as host[:port]
// with the port defaulting to 80. The whole buffer read becomes the replay
// prefix: the request is forwarded verbatim, header casing preserved and the
// request-line URI untouched, because the upstream is either the origin
// itself or a transparent tunnel.
//
// On a malformed request line, an over-long head, or a missing Host header
// the sniffer writes an HTTP/1.1 400 response before failing; on an I/O
// error it fails silently.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Sniff].
type HTTPSniffer struct {
	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewHTTPSniffer] from [Deps.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use (configurable for testing or custom logging).
	//
	// Set by [NewHTTPSniffer] to the user-provided logger.
	Logger SLogger

	// MaxHeaderBytes bounds the buffered request head.
	//
	// Set by [NewHTTPSniffer] to [DefaultMaxHeaderBytes].
	MaxHeaderBytes int

	// TimeNow is the function to get the current time (configurable for testing).
	//
	// Set by [NewHTTPSniffer] from [Deps.TimeNow].
	TimeNow func() time.Time
}

var _ Sniffer = &HTTPSniffer{}

// headTerminator separates the request head from the body.
var headTerminator = []byte("\r\n\r\n")

// Sniff implements [Sniffer].
func (op *HTTPSniffer) Sniff(ctx context.Context, conn net.Conn) (*SniffResult, error) {
	t0 := op.TimeNow()
	buf, head, err := op.readHead(conn)
	if err != nil {
		op.logSniffDone(t0, "", err)
		return nil, err
	}

	host, port, err := op.parseHead(head)
	if err != nil {
		conn.Write([]byte(httpBadRequest))
		op.logSniffDone(t0, "", err)
		return nil, err
	}

	result := &SniffResult{Host: host, Port: port, Prefix: buf}
	op.logSniffDone(t0, host, nil)
	return result, nil
}

// readHead buffers from conn until the head terminator is seen. It returns
// the full buffer (the replay prefix, possibly including over-read body
// bytes) and the head portion up to and including the terminator.
func (op *HTTPSniffer) readHead(conn net.Conn) (buf, head []byte, err error) {
	var chunk [1024]byte
	for {
		if idx := bytes.Index(buf, headTerminator); idx >= 0 {
			return buf, buf[:idx+len(headTerminator)], nil
		}
		if len(buf) >= op.MaxHeaderBytes {
			conn.Write([]byte(httpBadRequest))
			return nil, nil, fmt.Errorf("hostroute: http request head exceeds %d bytes", op.MaxHeaderBytes)
		}
		count, err := conn.Read(chunk[:])
		if count > 0 {
			buf = append(buf, chunk[:count]...)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
	}
}

// parseHead extracts the destination from the buffered request head.
func (op *HTTPSniffer) parseHead(head []byte) (string, uint16, error) {
	lines := strings.Split(string(head), "\r\n")

	// Request line: method, request-target, version.
	if fields := strings.Fields(lines[0]); len(fields) != 3 {
		return "", 0, fmt.Errorf("hostroute: malformed http request line %q", lines[0])
	}

	for _, line := range lines[1:] {
		if line == "" {
			break
		}
		name, value, found := strings.Cut(line, ":")
		if !found || !strings.EqualFold(strings.TrimSpace(name), "host") {
			continue
		}
		return splitHostHeader(strings.TrimSpace(value))
	}
	return "", 0, ErrNoHostHeader
}

// splitHostHeader parses a Host header value as host[:port], defaulting the
// port to 80 when absent.
func splitHostHeader(value string) (string, uint16, error) {
	if value == "" {
		return "", 0, ErrNoHostHeader
	}
	host, portStr, err := net.SplitHostPort(value)
	if err != nil {
		// No port in the header: strip the brackets of a bare IPv6
		// literal and default to 80.
		host := strings.TrimSuffix(strings.TrimPrefix(value, "["), "]")
		return host, 80, nil
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, fmt.Errorf("hostroute: invalid port in Host header %q", value)
	}
	return host, uint16(port), nil
}

// logSniffDone logs the outcome of one sniff operation.
func (op *HTTPSniffer) logSniffDone(t0 time.Time, host string, err error) {
	op.Logger.Debug(
		"httpSniffDone",
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.String("host", host),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
	)
}
