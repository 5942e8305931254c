// SPDX-License-Identifier: GPL-3.0-or-later

package hostroute

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ParseListenerKind accepts the three kinds case-insensitively.
func TestParseListenerKind(t *testing.T) {
	tests := []struct {
		// input is the kind name.
		input string

		// want is the expected kind.
		want ListenerKind

		// wantErr indicates whether we expect an error.
		wantErr bool
	}{
		{input: "http", want: KindHTTP},
		{input: "HTTP", want: KindHTTP},
		{input: "tls", want: KindTLS},
		{input: "Tls", want: KindTLS},
		{input: "mc", want: KindMinecraft},
		{input: "MC", want: KindMinecraft},
		{input: "socks", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			kind, err := ParseListenerKind(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, kind)
		})
	}
}

// ListenerKind names round-trip through String.
func TestListenerKindString(t *testing.T) {
	assert.Equal(t, "http", KindHTTP.String())
	assert.Equal(t, "tls", KindTLS.String())
	assert.Equal(t, "mc", KindMinecraft.String())
}

// ParseListenerSpec handles the comma-separated key=value syntax with
// aliases, defaults, and fatal parse errors.
func TestParseListenerSpec(t *testing.T) {
	tests := []struct {
		// name describes what this test case verifies.
		name string

		// input is the spec string.
		input string

		// want is the expected spec.
		want ListenerSpec

		// wantErr indicates whether we expect an error.
		wantErr bool
	}{
		{
			name:  "full spec",
			input: "kind=tls,addr=127.0.0.1:8443,chain=default",
			want:  ListenerSpec{Kind: KindTLS, Addr: "127.0.0.1:8443", Chain: "default"},
		},

		{
			name:  "aliases and spaces",
			input: " k=mc , a=0.0.0.0:25565 , c=minecraft ",
			want:  ListenerSpec{Kind: KindMinecraft, Addr: "0.0.0.0:25565", Chain: "minecraft"},
		},

		{
			name:  "defaults apply",
			input: "chain=default",
			want:  ListenerSpec{Kind: KindHTTP, Addr: "0.0.0.0:8080", Chain: "default"},
		},

		{
			name:  "empty segments are skipped",
			input: "chain=default,,",
			want:  ListenerSpec{Kind: KindHTTP, Addr: "0.0.0.0:8080", Chain: "default"},
		},

		{
			name:    "missing chain is fatal",
			input:   "kind=http,addr=0.0.0.0:8080",
			wantErr: true,
		},

		{
			name:    "unknown key is fatal",
			input:   "chain=default,bogus=1",
			wantErr: true,
		},

		{
			name:    "parameter without value is fatal",
			input:   "chain",
			wantErr: true,
		},

		{
			name:    "bad kind is fatal",
			input:   "kind=socks,chain=default",
			wantErr: true,
		},

		{
			name:    "bad address is fatal",
			input:   "addr=nonsense,chain=default",
			wantErr: true,
		},

		{
			name:    "bad port is fatal",
			input:   "addr=0.0.0.0:99999,chain=default",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := ParseListenerSpec(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, spec)
		})
	}
}
