// Copyright (c) Jens Meindertsma
// SPDX-License-Identifier: Apache-2.0

package settings

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// CorruptPolicy decides what Load does with a settings file it cannot parse.
type CorruptPolicy string

const (
	// FailOnCorrupt makes Load return an error.
	FailOnCorrupt CorruptPolicy = "fail"

	// ResetOnCorrupt moves the unreadable file aside and starts from defaults.
	ResetOnCorrupt CorruptPolicy = "reset"
)

// ErrCorrupt is returned by Load when an existing settings file is invalid.
var ErrCorrupt = errors.New("settings file is corrupt")

// Observer is notified after every attempt to persist settings.
type Observer interface {
	SettingsSaved(err error)
}

// Store is the single shared owner of the live settings. Readers always get
// a deep copy; writers replace the whole value and the result is written to
// disk before the call returns.
type Store struct {
	path     string
	logger   *slog.Logger
	observer Observer

	mu       sync.Mutex
	settings Settings
	version  uint64

	saveMu  sync.Mutex
	saved   uint64
	saveErr error
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for persistence events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver registers an observer for save outcomes.
func WithObserver(o Observer) Option {
	return func(s *Store) {
		s.observer = o
	}
}

// New returns a store holding initial that persists to path. Nothing is
// written until the first Set. An empty path keeps settings in memory only.
func New(path string, initial Settings, opts ...Option) *Store {
	s := &Store{
		path:     path,
		logger:   slog.Default(),
		settings: initial.Clone(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads the settings file at path. A missing file yields defaults,
// which are written out immediately. An existing file that cannot be read
// or decoded is handled according to policy.
func Load(path string, policy CorruptPolicy, opts ...Option) (*Store, error) {
	s := New(path, Default(), opts...)

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.logger.Info("settings file not found, using defaults", slog.String("path", path))
		s.Set(Default())
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read settings %s: %w", path, err)
	}

	loaded, err := Decode(data)
	if err == nil {
		s.settings = loaded
		s.logger.Info("settings loaded",
			slog.String("path", path),
			slog.Int("applications", len(loaded.Applications)))
		return s, nil
	}

	if policy != ResetOnCorrupt {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, path, err)
	}

	backup := path + ".corrupt"
	if rerr := os.Rename(path, backup); rerr != nil {
		return nil, fmt.Errorf("failed to move corrupt settings aside: %w", rerr)
	}
	s.logger.Warn("settings file corrupt, resetting to defaults",
		slog.String("path", path),
		slog.String("backup", backup),
		slog.String("error", err.Error()))
	s.Set(Default())
	return s, nil
}

// Decode parses a settings document. Fields missing from the document keep
// their default values; unknown fields are rejected.
func Decode(data []byte) (Settings, error) {
	settings := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&settings); err != nil {
		// An empty document decodes to defaults.
		if errors.Is(err, io.EOF) {
			return settings, nil
		}
		return Settings{}, err
	}
	if settings.Applications == nil {
		settings.Applications = []Application{}
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// Encode renders settings as a YAML document.
func Encode(settings Settings) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(settings); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Path returns the file the store persists to.
func (s *Store) Path() string {
	return s.path
}

// Get returns a deep copy of the current settings.
func (s *Store) Get() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.Clone()
}

// Set replaces the settings and persists them. Persistence failures are
// logged and reported through LastSaveError; the in-memory value is kept.
func (s *Store) Set(settings Settings) {
	s.mu.Lock()
	s.settings = settings.Clone()
	s.version++
	version, snapshot := s.version, s.settings.Clone()
	s.mu.Unlock()

	s.persist(version, snapshot)
}

// Update applies fn to a copy of the settings while holding the lock, so no
// other writer interleaves between the read and the write. When fn returns
// an error nothing changes and the error is returned as is.
func (s *Store) Update(fn func(*Settings) error) (Settings, error) {
	s.mu.Lock()
	next := s.settings.Clone()
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return Settings{}, err
	}
	s.settings = next
	s.version++
	version, snapshot := s.version, next.Clone()
	s.mu.Unlock()

	s.persist(version, snapshot)
	return snapshot, nil
}

// LastSaveError returns the outcome of the most recent write to disk.
func (s *Store) LastSaveError() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	return s.saveErr
}

func (s *Store) persist(version uint64, snapshot Settings) {
	if s.path == "" {
		return
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	// A newer snapshot already reached disk.
	if version <= s.saved {
		return
	}

	err := s.write(snapshot)
	s.saveErr = err
	if s.observer != nil {
		s.observer.SettingsSaved(err)
	}
	if err != nil {
		s.logger.Error("failed to save settings",
			slog.String("path", s.path),
			slog.String("error", err.Error()))
		return
	}
	s.saved = version
	s.logger.Debug("settings saved", slog.String("path", s.path))
}

func (s *Store) write(snapshot Settings) error {
	data, err := Encode(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close settings: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to set settings permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace settings: %w", err)
	}
	return nil
}
