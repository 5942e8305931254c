// SPDX-License-Identifier: GPL-3.0-or-later

package hostroute

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// relaySession wires a relay between two in-memory connection pairs and
// returns the far ends plus a channel with the relay outcome.
func relaySession(prefix []byte) (clientApp, upstreamApp net.Conn, done chan error) {
	clientProxy, clientFar := net.Pipe()
	upstreamProxy, upstreamFar := net.Pipe()
	done = make(chan error, 1)
	go func() {
		done <- Relay(context.Background(), clientProxy, upstreamProxy, prefix)
	}()
	return clientFar, upstreamFar, done
}

// The relay writes the prefix first, then moves payload both ways.
func TestRelay(t *testing.T) {
	clientApp, upstreamApp, done := relaySession([]byte("PREFIX"))

	// The upstream observes the replay prefix before anything else.
	buf := make([]byte, 6)
	_, err := io.ReadFull(upstreamApp, buf)
	require.NoError(t, err)
	assert.Equal(t, "PREFIX", string(buf))

	// Client to upstream.
	go clientApp.Write([]byte("ping"))
	buf = make([]byte, 4)
	_, err = io.ReadFull(upstreamApp, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))

	// Upstream to client.
	go upstreamApp.Write([]byte("pong"))
	_, err = io.ReadFull(clientApp, buf)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(buf))

	// Closing one side terminates the session and closes the other.
	clientApp.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not terminate")
	}
	_, err = upstreamApp.Read(buf)
	assert.Error(t, err)
}

// An upstream close terminates the session symmetrically.
func TestRelayUpstreamClose(t *testing.T) {
	clientApp, upstreamApp, done := relaySession(nil)

	upstreamApp.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not terminate")
	}
	buf := make([]byte, 1)
	_, err := clientApp.Read(buf)
	assert.Error(t, err)
}

// A prefix write failure surfaces immediately.
func TestRelayPrefixWriteError(t *testing.T) {
	clientProxy, clientFar := net.Pipe()
	defer clientFar.Close()
	upstreamProxy, upstreamFar := net.Pipe()
	upstreamProxy.Close()
	defer upstreamFar.Close()

	err := Relay(context.Background(), clientProxy, upstreamProxy, []byte("PREFIX"))

	require.Error(t, err)
}
