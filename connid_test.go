// SPDX-License-Identifier: GPL-3.0-or-later

package hostroute

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewConnID returns distinct, parseable UUIDv7 values.
func TestNewConnID(t *testing.T) {
	first := NewConnID()
	second := NewConnID()

	assert.NotEqual(t, first, second)

	parsed, err := uuid.Parse(first)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}
