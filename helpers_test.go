// SPDX-License-Identifier: GPL-3.0-or-later

package hostroute

import (
	"bytes"
	"context"
	"log/slog"
	"net"

	"github.com/bassosimone/netstub"
	"github.com/bassosimone/slogstub"
)

// newCapturingLogger returns a logger that captures all log records into the
// returned slice. The caller can inspect the slice after exercising the code
// under test to verify which events were emitted.
func newCapturingLogger() (*slog.Logger, *[]slog.Record) {
	var records []slog.Record
	handler := &slogstub.FuncHandler{
		EnabledFunc: func(ctx context.Context, level slog.Level) bool {
			return true
		},
		HandleFunc: func(ctx context.Context, record slog.Record) error {
			records = append(records, record)
			return nil
		},
	}
	return slog.New(handler), &records
}

// recordsByMessage returns the captured records carrying the given message.
func recordsByMessage(records []slog.Record, message string) []slog.Record {
	var out []slog.Record
	for _, record := range records {
		if record.Message == message {
			out = append(out, record)
		}
	}
	return out
}

// scriptedConn returns a [*netstub.FuncConn] whose Read serves the given
// input bytes (then io.EOF) and whose Write accumulates into the returned
// buffer. This is what sniffer tests use in place of a real client socket.
func scriptedConn(input []byte) (*netstub.FuncConn, *bytes.Buffer) {
	reader := bytes.NewReader(input)
	var written bytes.Buffer
	conn := &netstub.FuncConn{
		ReadFunc:  reader.Read,
		WriteFunc: written.Write,
		CloseFunc: func() error {
			return nil
		},
		LocalAddrFunc:  func() net.Addr { return &net.TCPAddr{} },
		RemoteAddrFunc: func() net.Addr { return &net.TCPAddr{} },
	}
	return conn, &written
}

// newMinimalConn returns a [*netstub.FuncConn] with only LocalAddrFunc and
// RemoteAddrFunc set. This is the minimum needed for code that calls
// [safeconn.LocalAddr], [safeconn.RemoteAddr], and [safeconn.Network]
// during construction.
func newMinimalConn() *netstub.FuncConn {
	return &netstub.FuncConn{
		LocalAddrFunc:  func() net.Addr { return &net.TCPAddr{} },
		RemoteAddrFunc: func() net.Addr { return &net.TCPAddr{} },
	}
}
