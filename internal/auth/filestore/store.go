// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

// Package filestore implements the auth repositories on top of two JSON
// documents, users.json and sessions.json, in a single directory.
//
// Every mutation loads the document, modifies it, and rewrites it in full
// through a temp file and rename, so readers never observe a partial write.
// A store-wide mutex serializes those cycles within the process. Running two
// processes against the same directory is not supported.
package filestore

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/samber/oops"
)

// File names inside the store directory.
const (
	UsersFile    = "users.json"
	SessionsFile = "sessions.json"
)

// Store owns the data directory shared by UserRepository and SessionRepository.
type Store struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now for expiry checks and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open prepares dir for use, creating it if needed.
func Open(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, oops.Code("FILESTORE_INVALID_DIR").Errorf("data directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, oops.Code("FILESTORE_OPEN_FAILED").
			With("dir", dir).
			Wrap(err)
	}

	s := &Store{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the data directory.
func (s *Store) Dir() string {
	return s.dir
}

// Users returns the user repository backed by this store.
func (s *Store) Users() *UserRepository {
	return &UserRepository{store: s}
}

// Sessions returns the session repository backed by this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{store: s}
}

// header is the bookkeeping shared by both documents. Version increases by one
// on every rewrite.
type header struct {
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// load decodes the named document into v. A missing file leaves v untouched.
// Callers must hold s.mu.
func (s *Store) load(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return oops.Code("FILESTORE_READ_FAILED").
			With("file", name).
			Wrap(err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return oops.Code("FILESTORE_DECODE_FAILED").
			With("file", name).
			Wrap(err)
	}
	return nil
}

// save bumps h and replaces the named document with v.
// Callers must hold s.mu.
func (s *Store) save(name string, h *header, v any) error {
	h.Version++
	h.UpdatedAt = s.now().UTC()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return oops.Code("FILESTORE_ENCODE_FAILED").
			With("file", name).
			Wrap(err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return oops.Code("FILESTORE_WRITE_FAILED").
			With("file", name).
			With("operation", "create temp file").
			Wrap(err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op after a successful rename.
		_ = os.Remove(tmpName) //nolint:errcheck // best-effort cleanup
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close() //nolint:errcheck // write error takes precedence
		return oops.Code("FILESTORE_WRITE_FAILED").
			With("file", name).
			With("operation", "write temp file").
			Wrap(err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close() //nolint:errcheck // sync error takes precedence
		return oops.Code("FILESTORE_WRITE_FAILED").
			With("file", name).
			With("operation", "sync temp file").
			Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		return oops.Code("FILESTORE_WRITE_FAILED").
			With("file", name).
			With("operation", "close temp file").
			Wrap(err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		return oops.Code("FILESTORE_WRITE_FAILED").
			With("file", name).
			With("operation", "rename").
			Wrap(err)
	}
	return nil
}
