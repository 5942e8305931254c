// SPDX-License-Identifier: GPL-3.0-or-later

package hostroute

import (
	"context"
	"testing"
	"time"

	"github.com/bassosimone/netstub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// watchCancel returns a wrapped conn that delegates Close to the underlying conn.
func TestWatchCancelClose(t *testing.T) {
	closeCalled := false
	mockConn := &netstub.FuncConn{
		CloseFunc: func() error {
			closeCalled = true
			return nil
		},
	}

	wrapped := watchCancel(context.Background(), mockConn)
	require.NotNil(t, wrapped)

	// Closing the wrapper delegates to the underlying conn.
	err := wrapped.Close()
	require.NoError(t, err)
	assert.True(t, closeCalled)
}

// Cancelling the context triggers Close on the underlying conn.
func TestWatchCancelClosesOnCancel(t *testing.T) {
	done := make(chan bool, 1)
	mockConn := &netstub.FuncConn{
		CloseFunc: func() error {
			done <- true
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())

	watchCancel(ctx, mockConn)

	// Connection not closed before cancelling the context.
	select {
	case <-done:
		t.Fatal("connection should not be closed yet")
	default:
	}

	cancel()

	// Wait for AfterFunc to close the connection.
	waitClose := func() bool {
		return <-done
	}
	assert.Eventually(t, waitClose, 1*time.Second, 10*time.Millisecond)
}

// If the context is already cancelled, the connection is closed immediately.
func TestWatchCancelAlreadyCancelled(t *testing.T) {
	done := make(chan bool, 1)
	mockConn := &netstub.FuncConn{
		CloseFunc: func() error {
			done <- true
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	watchCancel(ctx, mockConn)

	// Wait for AfterFunc to see the already-cancelled context and close.
	waitClose := func() bool {
		return <-done
	}
	assert.Eventually(t, waitClose, 1*time.Second, 10*time.Millisecond)
}

// Closing the wrapper unregisters the watcher so that subsequent context
// cancellation does not call Close on the underlying conn a second time.
func TestWatchCancelCloseUnregistersWatcher(t *testing.T) {
	closeCount := 0
	mockConn := &netstub.FuncConn{
		CloseFunc: func() error {
			closeCount++
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wrapped := watchCancel(ctx, mockConn)
	require.NoError(t, wrapped.Close())
	require.Equal(t, 1, closeCount)

	cancel()
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, closeCount)
}
