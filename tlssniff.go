// SPDX-License-Identifier: GPL-3.0-or-later

package hostroute

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"
)

// TLS constants for the one record the sniffer accepts.
const (
	tlsContentTypeHandshake   = 22
	tlsHandshakeTypeHello     = 1
	tlsExtensionServerName    = 0x0000
	tlsServerNameTypeHostname = 0
)

// tlsRecordHeaderLen is the record header size: content type, legacy
// version, and record length.
const tlsRecordHeaderLen = 5

// ErrNoServerName indicates a ClientHello without a usable server_name
// extension: the connection is dropped because there is no hostname to
// route by.
var ErrNoServerName = errors.New("hostroute: no server_name extension in ClientHello")

// NewTLSSniffer returns a new [*TLSSniffer].
//
// The deps argument contains the common dependencies for hostroute operations.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewTLSSniffer(deps *Deps, logger SLogger) *TLSSniffer {
	return &TLSSniffer{
		ErrClassifier: deps.ErrClassifier,
		Logger:        logger,
		TimeNow:       deps.TimeNow,
	}
}

// TLSSniffer extracts the SNI hostname from a TLS ClientHello.
//
// It reads exactly one TLS record and parses the ClientHello within it,
// accepting only a handshake record (content type 22) carrying a
// ClientHello (handshake type 1) whose length fields are consistent. The
// first server_name extension whose name list starts with a hostname entry
// yields the destination; only the first entry of each list is examined,
// so a hostname listed after an entry of another type is not used. The
// port is fixed at 443.
//
// The replay prefix is the entire record as read from the client, record
// header included, reassembled from the buffered bytes rather than
// re-serialized from the parsed structure.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Sniff].
type TLSSniffer struct {
	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewTLSSniffer] from [Deps.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use (configurable for testing or custom logging).
	//
	// Set by [NewTLSSniffer] to the user-provided logger.
	Logger SLogger

	// TimeNow is the function to get the current time (configurable for testing).
	//
	// Set by [NewTLSSniffer] from [Deps.TimeNow].
	TimeNow func() time.Time
}

var _ Sniffer = &TLSSniffer{}

// Sniff implements [Sniffer].
func (op *TLSSniffer) Sniff(ctx context.Context, conn net.Conn) (*SniffResult, error) {
	t0 := op.TimeNow()

	var header [tlsRecordHeaderLen]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		op.logSniffDone(t0, "", err)
		return nil, err
	}
	if header[0] != tlsContentTypeHandshake {
		err := validationError("content type", tlsContentTypeHandshake, int(header[0]))
		op.logSniffDone(t0, "", err)
		return nil, err
	}
	recordLen := int(header[3])<<8 | int(header[4])

	body := make([]byte, recordLen)
	if _, err := io.ReadFull(conn, body); err != nil {
		op.logSniffDone(t0, "", err)
		return nil, err
	}

	host, err := parseClientHello(body)
	if err != nil {
		op.logSniffDone(t0, "", err)
		return nil, err
	}

	prefix := make([]byte, 0, tlsRecordHeaderLen+recordLen)
	prefix = append(prefix, header[:]...)
	prefix = append(prefix, body...)

	op.logSniffDone(t0, host, nil)
	return &SniffResult{Host: host, Port: 443, Prefix: prefix}, nil
}

// parseClientHello walks the handshake body of the record and returns the
// SNI hostname.
func parseClientHello(body []byte) (string, error) {
	cur := &tlsCursor{buf: body}

	handshakeType, err := cur.u8()
	if err != nil {
		return "", err
	}
	if handshakeType != tlsHandshakeTypeHello {
		return "", validationError("handshake type", tlsHandshakeTypeHello, int(handshakeType))
	}
	helloLen, err := cur.u24()
	if err != nil {
		return "", err
	}
	if want := len(body) - 4; helloLen != want {
		return "", validationError("handshake message length", want, helloLen)
	}

	// legacy_version and random carry no routing information.
	if err := cur.skip(2 + 32); err != nil {
		return "", err
	}
	if err := cur.skipPrefixed8(); err != nil { // session_id
		return "", err
	}
	if err := cur.skipPrefixed16(); err != nil { // cipher_suites
		return "", err
	}
	if err := cur.skipPrefixed8(); err != nil { // compression_methods
		return "", err
	}

	extensionsLen, err := cur.u16()
	if err != nil {
		return "", err
	}
	remains := extensionsLen
	for remains > 0 {
		extensionType, err := cur.u16()
		if err != nil {
			return "", err
		}
		extensionLen, err := cur.u16()
		if err != nil {
			return "", err
		}

		if extensionType == tlsExtensionServerName {
			host, found, err := parseServerName(cur, extensionLen)
			if err != nil {
				return "", err
			}
			if found {
				return host, nil
			}
			// Zero-name list or a non-hostname first entry: keep
			// scanning further extensions.
		} else if err := cur.skip(extensionLen); err != nil {
			return "", err
		}

		// Strict accounting: subtract the header and body of every
		// extension scanned, server_name included.
		consumed := 4 + extensionLen
		if consumed > remains {
			return "", validationError("extensions length", remains, consumed)
		}
		remains -= consumed
	}
	return "", ErrNoServerName
}

// parseServerName parses the body of a server_name extension. The cursor is
// positioned at the start of the extension body and is always advanced to
// its end. found is false when the list carries zero names or the first
// entry is not a hostname.
func parseServerName(cur *tlsCursor, extensionLen int) (host string, found bool, err error) {
	listLen, err := cur.u16()
	if err != nil {
		return "", false, err
	}
	if want := extensionLen - 2; listLen != want {
		return "", false, validationError("server_name list length", want, listLen)
	}
	if listLen == 0 {
		return "", false, nil
	}

	nameType, err := cur.u8()
	if err != nil {
		return "", false, err
	}
	if nameType != tlsServerNameTypeHostname {
		// Not a hostname entry: skip the rest of the extension body.
		return "", false, cur.skip(listLen - 1)
	}

	nameLen, err := cur.u16()
	if err != nil {
		return "", false, err
	}
	if want := listLen - 3; nameLen != want {
		return "", false, validationError("server_name hostname length", want, nameLen)
	}
	name, err := cur.bytes(nameLen)
	if err != nil {
		return "", false, err
	}
	return string(name), true, nil
}

// validationError formats a mismatched-field error the way every TLS field
// check reports it.
func validationError(field string, expect, actual int) error {
	return fmt.Errorf("hostroute: wrong TLS field %q value (%d expected, got %d)", field, expect, actual)
}

// errTruncatedHello indicates the handshake body ended before a complete
// field.
var errTruncatedHello = errors.New("hostroute: truncated ClientHello")

// tlsCursor is a bounds-checked reader over the buffered handshake body.
type tlsCursor struct {
	buf []byte
	pos int
}

func (c *tlsCursor) bytes(n int) ([]byte, error) {
	if n < 0 || c.pos+n > len(c.buf) {
		return nil, errTruncatedHello
	}
	out := c.buf[c.pos : c.pos+n]
	c.pos += n
	return out, nil
}

func (c *tlsCursor) skip(n int) error {
	_, err := c.bytes(n)
	return err
}

func (c *tlsCursor) u8() (int, error) {
	out, err := c.bytes(1)
	if err != nil {
		return 0, err
	}
	return int(out[0]), nil
}

func (c *tlsCursor) u16() (int, error) {
	out, err := c.bytes(2)
	if err != nil {
		return 0, err
	}
	return int(out[0])<<8 | int(out[1]), nil
}

func (c *tlsCursor) u24() (int, error) {
	out, err := c.bytes(3)
	if err != nil {
		return 0, err
	}
	return int(out[0])<<16 | int(out[1])<<8 | int(out[2]), nil
}

// skipPrefixed8 skips a field preceded by a one-byte length.
func (c *tlsCursor) skipPrefixed8() error {
	n, err := c.u8()
	if err != nil {
		return err
	}
	return c.skip(n)
}

// skipPrefixed16 skips a field preceded by a two-byte length.
func (c *tlsCursor) skipPrefixed16() error {
	n, err := c.u16()
	if err != nil {
		return err
	}
	return c.skip(n)
}

// logSniffDone logs the outcome of one sniff operation.
func (op *TLSSniffer) logSniffDone(t0 time.Time, host string, err error) {
	op.Logger.Debug(
		"tlsSniffDone",
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.String("host", host),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
	)
}
