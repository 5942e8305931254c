//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package hostroute

import (
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/bassosimone/safeconn"
)

// newObservedConn wraps a [net.Conn] to log I/O operations.
//
// The pool applies this wrapper to the client and upstream halves of a
// proxied connection when [Pool.ObserveIO] is set, emitting readStart/
// readDone, writeStart/writeDone, deadline, and closeStart/closeDone events
// at [slog.LevelDebug] (close events at Info). The connID argument ties the
// events to the owning connection.
func newObservedConn(conn net.Conn, logger SLogger, ec ErrClassifier,
	timeNow func() time.Time, connID string) net.Conn {
	return &observedConn{
		closeonce: sync.Once{},
		conn:      conn,
		connID:    connID,
		ec:        ec,
		laddr:     safeconn.LocalAddr(conn),
		logger:    logger,
		protocol:  safeconn.Network(conn),
		raddr:     safeconn.RemoteAddr(conn),
		timeNow:   timeNow,
	}
}

// observedConn observes a [net.Conn].
type observedConn struct {
	closeonce sync.Once
	conn      net.Conn
	connID    string
	ec        ErrClassifier
	laddr     string
	logger    SLogger
	protocol  string
	raddr     string
	timeNow   func() time.Time
}

var _ net.Conn = &observedConn{}

// Close implements [net.Conn].
//
// Subsequent calls return [net.ErrClosed], consistent with Go's standard
// library behavior for closed connections.
func (c *observedConn) Close() (err error) {
	err = net.ErrClosed
	c.closeonce.Do(func() {
		t0 := c.timeNow()
		c.logger.Info(
			"closeStart",
			slog.String("connID", c.connID),
			slog.String("localAddr", c.laddr),
			slog.String("protocol", c.protocol),
			slog.String("remoteAddr", c.raddr),
			slog.Time("t", t0),
		)

		err = c.conn.Close()

		c.logger.Info(
			"closeDone",
			slog.String("connID", c.connID),
			slog.Any("err", err),
			slog.String("errClass", c.ec.Classify(err)),
			slog.String("localAddr", c.laddr),
			slog.String("protocol", c.protocol),
			slog.String("remoteAddr", c.raddr),
			slog.Time("t0", t0),
			slog.Time("t", c.timeNow()),
		)
	})
	return
}

// LocalAddr implements [net.Conn].
func (c *observedConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr implements [net.Conn].
func (c *observedConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Read implements [net.Conn].
func (c *observedConn) Read(buf []byte) (int, error) {
	t0 := c.timeNow()
	c.logger.Debug(
		"readStart",
		slog.String("connID", c.connID),
		slog.Int("ioBufferSize", len(buf)),
		slog.String("localAddr", c.laddr),
		slog.String("protocol", c.protocol),
		slog.String("remoteAddr", c.raddr),
		slog.Time("t", t0),
	)

	count, err := c.conn.Read(buf)

	c.logger.Debug(
		"readDone",
		slog.String("connID", c.connID),
		slog.Int("ioBytesCount", count),
		slog.Any("err", err),
		slog.String("errClass", c.ec.Classify(err)),
		slog.String("localAddr", c.laddr),
		slog.String("protocol", c.protocol),
		slog.String("remoteAddr", c.raddr),
		slog.Time("t0", t0),
		slog.Time("t", c.timeNow()),
	)

	return count, err
}

// Write implements [net.Conn].
func (c *observedConn) Write(data []byte) (int, error) {
	t0 := c.timeNow()
	c.logger.Debug(
		"writeStart",
		slog.String("connID", c.connID),
		slog.Int("ioBytesCount", len(data)),
		slog.String("localAddr", c.laddr),
		slog.String("protocol", c.protocol),
		slog.String("remoteAddr", c.raddr),
		slog.Time("t", t0),
	)

	count, err := c.conn.Write(data)

	c.logger.Debug(
		"writeDone",
		slog.String("connID", c.connID),
		slog.Int("ioBytesCount", count),
		slog.Any("err", err),
		slog.String("errClass", c.ec.Classify(err)),
		slog.String("localAddr", c.laddr),
		slog.String("protocol", c.protocol),
		slog.String("remoteAddr", c.raddr),
		slog.Time("t0", t0),
		slog.Time("t", c.timeNow()),
	)

	return count, err
}

// SetDeadline implements [net.Conn].
func (c *observedConn) SetDeadline(t time.Time) error {
	err := c.conn.SetDeadline(t)
	c.logDeadline("setDeadline", t, err)
	return err
}

// SetReadDeadline implements [net.Conn].
func (c *observedConn) SetReadDeadline(t time.Time) error {
	err := c.conn.SetReadDeadline(t)
	c.logDeadline("setReadDeadline", t, err)
	return err
}

// SetWriteDeadline implements [net.Conn].
func (c *observedConn) SetWriteDeadline(t time.Time) error {
	err := c.conn.SetWriteDeadline(t)
	c.logDeadline("setWriteDeadline", t, err)
	return err
}

// logDeadline logs a deadline change event.
func (c *observedConn) logDeadline(event string, t time.Time, err error) {
	c.logger.Debug(
		event,
		slog.String("connID", c.connID),
		slog.Time("deadline", t),
		slog.Any("err", err),
		slog.String("errClass", c.ec.Classify(err)),
		slog.String("localAddr", c.laddr),
		slog.String("protocol", c.protocol),
		slog.String("remoteAddr", c.raddr),
		slog.Time("t", c.timeNow()),
	)
}
