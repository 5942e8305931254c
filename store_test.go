// SPDX-License-Identifier: GPL-3.0-or-later

package hostroute

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A fresh store serves a default-empty document.
func TestNewStore(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "config.json"), DefaultSLogger())

	cfg := store.Current()
	require.NotNil(t, cfg)
	assert.Empty(t, cfg.Chains)
	assert.Empty(t, cfg.Stash.DomainPools)
}

// Replace installs the new snapshot and persists it; reloading the saved
// file yields a structurally equal document.
func TestStoreReplacePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	logger, records := newCapturingLogger()
	store := NewStore(path, logger)

	cfg := NewConfig()
	cfg.Chains["default"] = []ChainRule{
		{Action: ChainAction{Drop: &DropAction{}}},
	}
	cfg.Stash.DomainPools["p"] = NewDomainPool("a.example")
	store.Replace(cfg)

	assert.Same(t, cfg, store.Current())
	assert.Len(t, recordsByMessage(*records, "configInstalled"), 1)
	assert.Len(t, recordsByMessage(*records, "configSaved"), 1)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	reloaded := NewConfig()
	require.NoError(t, json.Unmarshal(data, reloaded))
	assert.NotNil(t, reloaded.Chains["default"][0].Action.Drop)
	reloadedPool := reloaded.Stash.DomainPools["p"]
	assert.True(t, reloadedPool.Contains("a.example"))
}

// A save failure is logged and does not roll back the in-memory replace.
func TestStoreReplaceSaveFailure(t *testing.T) {
	// The path is a directory, so WriteFile must fail.
	logger, records := newCapturingLogger()
	store := NewStore(t.TempDir(), logger)

	cfg := NewConfig()
	store.Replace(cfg)

	assert.Same(t, cfg, store.Current())
	assert.Len(t, recordsByMessage(*records, "configSaveError"), 1)
}

// LoadFromDisk installs the on-disk document.
func TestStoreLoadFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	document := `{"chains":{"default":[{"filter":{"Anything":{}},"action":{"DirectConnect":{}}}]}}`
	require.NoError(t, os.WriteFile(path, []byte(document), 0o600))

	store := NewStore(path, DefaultSLogger())
	store.LoadFromDisk()

	assert.Len(t, store.Current().Chains["default"], 1)
}

// Load failures retain the default-empty document and never abort.
func TestStoreLoadFailures(t *testing.T) {
	tests := []struct {
		// name describes what this test case verifies.
		name string

		// setup prepares the config path.
		setup func(t *testing.T, path string)
	}{
		{
			name:  "missing file",
			setup: func(t *testing.T, path string) {},
		},

		{
			name: "invalid JSON",
			setup: func(t *testing.T, path string) {
				require.NoError(t, os.WriteFile(path, []byte("{nope"), 0o600))
			},
		},

		{
			name: "wrong document shape",
			setup: func(t *testing.T, path string) {
				require.NoError(t, os.WriteFile(path, []byte(`{"chains":42}`), 0o600))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			tt.setup(t, path)
			logger, records := newCapturingLogger()
			store := NewStore(path, logger)

			store.LoadFromDisk()

			assert.Empty(t, store.Current().Chains)
			assert.Len(t, recordsByMessage(*records, "configLoadError"), 1)
		})
	}
}

// A snapshot captured before a replace is unaffected by the replace.
func TestStoreSnapshotIsolation(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "config.json"), DefaultSLogger())

	before := NewConfig()
	before.Chains["default"] = []ChainRule{
		{Action: ChainAction{Drop: &DropAction{}}},
	}
	store.Replace(before)
	snapshot := store.Current()

	after := NewConfig()
	store.Replace(after)

	assert.Same(t, after, store.Current())
	assert.NotNil(t, snapshot.Chains["default"][0].Action.Drop)
}
