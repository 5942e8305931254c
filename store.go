// SPDX-License-Identifier: GPL-3.0-or-later

package hostroute

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// Store publishes immutable [Config] snapshots.
//
// Many concurrent readers take snapshots via [Store.Current] without
// blocking each other; one writer at a time installs a replacement document
// via [Store.Replace] with a single atomic pointer swap. A replacement never
// invalidates in-flight connections: they keep resolving against the
// snapshot they captured.
//
// Callers must treat the snapshot returned by [Store.Current] as read-only;
// the control plane mutates a [Config.Clone] and installs the clone.
type Store struct {
	current atomic.Pointer[Config]
	logger  SLogger
	path    string
	writeMu sync.Mutex
}

// NewStore creates a [*Store] holding a default-empty document.
//
// The path argument is where [Store.Replace] persists the document and where
// [Store.LoadFromDisk] reads it from.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewStore(path string, logger SLogger) *Store {
	s := &Store{
		logger: logger,
		path:   path,
	}
	s.current.Store(NewConfig())
	return s
}

// Current returns the most recently installed snapshot. It never blocks and
// never returns nil.
func (s *Store) Current() *Config {
	return s.current.Load()
}

// Replace installs cfg as the current snapshot and then saves it to disk
// best-effort: a save failure is logged and does not roll back the
// in-memory replacement. Installs are totally ordered.
func (s *Store) Replace(cfg *Config) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.current.Store(cfg)
	s.logger.Info(
		"configInstalled",
		slog.Int("chains", len(cfg.Chains)),
		slog.Int("domainPools", len(cfg.Stash.DomainPools)),
	)
	data, err := json.Marshal(cfg)
	if err != nil {
		s.logger.Error("configSaveError", slog.String("path", s.path), slog.Any("err", err))
		return
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		s.logger.Error("configSaveError", slog.String("path", s.path), slog.Any("err", err))
		return
	}
	s.logger.Info("configSaved", slog.String("path", s.path))
}

// LoadFromDisk reads and parses the document at the configured path and
// installs it. On any failure (missing file, bad encoding, bad JSON) the
// store retains its current document, logs the failure, and returns: it
// never aborts the process.
func (s *Store) LoadFromDisk() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.logger.Error("configLoadError", slog.String("path", s.path), slog.Any("err", err))
		return
	}
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		s.logger.Error("configLoadError", slog.String("path", s.path), slog.Any("err", err))
		return
	}
	s.writeMu.Lock()
	s.current.Store(cfg)
	s.writeMu.Unlock()
	s.logger.Info("configLoaded", slog.String("path", s.path))
}
