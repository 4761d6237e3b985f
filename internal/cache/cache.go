// Package cache stores the last resolved payload of every fact family on
// disk, one JSON document per family, each with its own staleness window.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Family is a named category of collected facts
type Family string

const (
	Hardware       Family = "hardware"
	Network        Family = "network"
	IP             Family = "ip"
	Model          Family = "model"
	Dataset        Family = "dataset"
	ContainerState Family = "container_state"
)

// Entry is one cached family document
type Entry struct {
	Family    Family          `json:"family"`
	WrittenAt time.Time       `json:"written_at"`
	Payload   json.RawMessage `json:"payload"`
}

// Observer receives one callback per cache read
type Observer interface {
	CacheRead(family string, result string)
}

// Cache read results reported to the observer
const (
	ReadFresh   = "fresh"
	ReadStale   = "stale"
	ReadMissing = "missing"
	ReadCorrupt = "corrupt"
)

// Store is a directory of per-family cache files
type Store struct {
	dir      string
	ttls     map[Family]time.Duration
	logger   *zap.Logger
	observer Observer
	now      func() time.Time

	mu    sync.Mutex
	locks map[Family]*sync.Mutex
}

// Option configures a Store
type Option func(*Store)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithObserver reports cache read outcomes
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

// NewStore creates a store rooted at dir. Families with a zero or missing
// TTL are never considered fresh.
func NewStore(dir string, ttls map[Family]time.Duration, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		dir:    dir,
		ttls:   ttls,
		logger: logger,
		now:    time.Now,
		locks:  make(map[Family]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the cache file of a family
func (s *Store) Path(family Family) string {
	return filepath.Join(s.dir, string(family)+".json")
}

// TTL returns the configured staleness window of a family
func (s *Store) TTL(family Family) time.Duration {
	return s.ttls[family]
}

// Read returns the cached entry and whether it is still fresh. Any read
// problem means absent: ok is false and the entry is empty.
func (s *Store) Read(family Family) (entry Entry, fresh bool, ok bool) {
	entry, result := s.read(family)
	s.report(family, result)
	switch result {
	case ReadFresh:
		return entry, true, true
	case ReadStale:
		return entry, false, true
	default:
		return Entry{}, false, false
	}
}

func (s *Store) read(family Family) (Entry, string) {
	data, err := os.ReadFile(s.Path(family))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Debug("Cache file unreadable",
				zap.String("family", string(family)),
				zap.Error(err))
		}
		return Entry{}, ReadMissing
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil || len(entry.Payload) == 0 || !json.Valid(entry.Payload) {
		s.logger.Warn("Cache file corrupt, treating as absent",
			zap.String("family", string(family)),
			zap.String("path", s.Path(family)))
		return Entry{}, ReadCorrupt
	}
	entry.Family = family

	ttl := s.ttls[family]
	if ttl <= 0 || s.now().Sub(entry.WrittenAt) >= ttl {
		return entry, ReadStale
	}
	return entry, ReadFresh
}

// Write replaces the family's cache file with payload. The new file is
// written beside the old one and renamed over it, so readers never observe
// a partial document.
func (s *Store) Write(family Family, payload json.RawMessage) (Entry, error) {
	// Compacting here keeps the returned payload byte-identical to what a
	// later Read decodes from disk.
	var compact bytes.Buffer
	if err := json.Compact(&compact, payload); err != nil {
		return Entry{}, fmt.Errorf("payload for %s is not valid JSON: %w", family, err)
	}

	lock := s.familyLock(family)
	lock.Lock()
	defer lock.Unlock()

	entry := Entry{Family: family, WrittenAt: s.now().UTC(), Payload: compact.Bytes()}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(entry); err != nil {
		return Entry{}, fmt.Errorf("failed to encode cache entry: %w", err)
	}
	data := buf.Bytes()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return Entry{}, fmt.Errorf("failed to create cache directory %s: %w", s.dir, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+string(family)+".*.tmp")
	if err != nil {
		return Entry{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return Entry{}, fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return Entry{}, fmt.Errorf("failed to sync cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Entry{}, fmt.Errorf("failed to close cache file: %w", err)
	}

	if err := replaceFile(tmpName, s.Path(family)); err != nil {
		return Entry{}, fmt.Errorf("failed to replace cache file: %w", err)
	}

	return entry, nil
}

// Load is a read-through: a fresh entry is returned as stored, otherwise
// fill is called synchronously and its result overwrites the cache file.
// A failed write still returns the freshly resolved payload. When ctx ends
// while fill runs, nothing is written: the stale entry is returned if there
// is one, otherwise an error.
func (s *Store) Load(ctx context.Context, family Family, fill func(ctx context.Context) (json.RawMessage, error)) (Entry, error) {
	stale, fresh, found := s.Read(family)
	if fresh {
		return stale, nil
	}

	payload, err := fill(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		s.logger.Debug("Resolution abandoned, cache not written",
			zap.String("family", string(family)),
			zap.Error(ctxErr))
		if found {
			return stale, nil
		}
		return Entry{}, fmt.Errorf("resolving %s abandoned: %w", family, ctxErr)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("failed to resolve %s: %w", family, err)
	}

	entry, err := s.Write(family, payload)
	if err != nil {
		s.logger.Warn("Failed to write cache entry",
			zap.String("family", string(family)),
			zap.Error(err))
		return Entry{Family: family, WrittenAt: s.now().UTC(), Payload: payload}, nil
	}

	return entry, nil
}

func (s *Store) familyLock(family Family) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[family]
	if !ok {
		l = &sync.Mutex{}
		s.locks[family] = l
	}
	return l
}

func (s *Store) report(family Family, result string) {
	if s.observer != nil {
		s.observer.CacheRead(string(family), result)
	}
}
