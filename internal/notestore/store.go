// Package notestore owns the in-memory note collection and keeps it in sync
// with durable storage. It is the single writer of the collection.
package notestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/notes/internal/apperr"
	"github.com/starford/notes/internal/checksum"
	"github.com/starford/notes/internal/codec"
	"github.com/starford/notes/internal/models"
	"github.com/starford/notes/internal/storage"
)

// DefaultKey is the storage key holding the note blob.
const DefaultKey = "notes"

// EventType names a store mutation.
type EventType string

const (
	EventCreated  EventType = "note.created"
	EventUpdated  EventType = "note.updated"
	EventDeleted  EventType = "note.deleted"
	EventCleared  EventType = "notes.cleared"
	EventReloaded EventType = "notes.reloaded"
)

// Event is delivered to hooks after a mutation has been applied in memory.
// Persisted is false when the durable write failed.
type Event struct {
	Type      EventType
	ID        string
	Count     int
	Persisted bool
}

// Option configures a Store.
type Option func(*Store)

// WithKey sets the storage key.
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock sets the clock used to date new notes.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithHook registers a mutation hook. Hooks run synchronously on the
// mutating goroutine, after the store lock is released.
func WithHook(h func(Event)) Option {
	return func(s *Store) { s.hooks = append(s.hooks, h) }
}

// Store is a read-through, write-through cache of the note collection.
type Store struct {
	provider storage.Provider
	codec    *codec.Codec
	key      string
	logger   *slog.Logger
	now      func() time.Time
	hooks    []func(Event)

	mu     sync.Mutex
	loaded bool
	notes  models.Collection
	sum    string
	dirty  bool
}

// New creates a Store. Nothing is read until the first access.
func New(provider storage.Provider, c *codec.Codec, opts ...Option) *Store {
	s := &Store{
		provider: provider,
		codec:    c,
		key:      DefaultKey,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the storage key.
func (s *Store) Key() string { return s.key }

// GetAll returns the current snapshot, loading it on first use.
func (s *Store) GetAll(ctx context.Context) (models.Collection, error) {
	if err := ctx.Err(); err != nil {
		return models.Collection{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(); err != nil {
		return models.Collection{}, err
	}
	return s.notes, nil
}

// Get returns a single note.
func (s *Store) Get(ctx context.Context, id string) (models.Note, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return models.Note{}, err
	}
	n, ok := all.Get(id)
	if !ok {
		return models.Note{}, apperr.ErrNotFound
	}
	return n, nil
}

// Put merges patch into the note with the given id, creating it when absent.
// New notes without a date are dated now. The whole collection is persisted
// before Put returns. On a *apperr.PersistenceError the note is still applied
// and returned.
func (s *Store) Put(ctx context.Context, id string, patch models.Patch) (models.Note, error) {
	n, _, err := s.Upsert(ctx, id, patch)
	return n, err
}

// Upsert is Put that also reports whether the note was created.
func (s *Store) Upsert(ctx context.Context, id string, patch models.Patch) (models.Note, bool, error) {
	if id == "" {
		return models.Note{}, false, apperr.ErrInvalidID
	}
	if err := ctx.Err(); err != nil {
		return models.Note{}, false, err
	}
	if patch.Date != nil {
		if err := codec.CheckDate(*patch.Date); err != nil {
			return models.Note{}, false, fmt.Errorf("notestore: put %q: %w", id, err)
		}
	}

	s.mu.Lock()
	if err := s.ensureLoadedLocked(); err != nil {
		s.mu.Unlock()
		return models.Note{}, false, err
	}

	n, exists := s.notes.Get(id)
	if !exists {
		n = models.Note{ID: id, Date: s.now()}
	}
	textChanged := !exists
	if patch.Text != nil {
		textChanged = textChanged || *patch.Text != n.Text
		n.Text = *patch.Text
	}
	if patch.Date != nil {
		n.Date = *patch.Date
	}
	if textChanged {
		n = s.derive(n)
	}

	s.notes = s.notes.With(n)
	perr := s.persistLocked()
	s.mu.Unlock()

	typ := EventUpdated
	if !exists {
		typ = EventCreated
	}
	s.emit(Event{Type: typ, ID: id, Count: 1, Persisted: perr == nil})
	return n, !exists, perr
}

// PutMany creates or replaces notes with a single persistence write.
// Notes without a date are dated now.
func (s *Store) PutMany(ctx context.Context, notes []models.Note) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, n := range notes {
		if n.ID == "" {
			return apperr.ErrInvalidID
		}
		if n.Date.IsZero() {
			continue
		}
		if err := codec.CheckDate(n.Date); err != nil {
			return fmt.Errorf("notestore: put %q: %w", n.ID, err)
		}
	}

	s.mu.Lock()
	if err := s.ensureLoadedLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	now := s.now()
	derived := make([]models.Note, len(notes))
	for i, n := range notes {
		if n.Date.IsZero() {
			n.Date = now
		}
		derived[i] = s.derive(n)
	}
	s.notes = s.notes.WithAll(derived)
	perr := s.persistLocked()
	s.mu.Unlock()

	s.emit(Event{Type: EventCreated, Count: len(notes), Persisted: perr == nil})
	return perr
}

// Delete removes one note and persists the collection.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if err := s.ensureLoadedLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if _, ok := s.notes.Get(id); !ok {
		s.mu.Unlock()
		return apperr.ErrNotFound
	}
	s.notes = s.notes.Without(id)
	perr := s.persistLocked()
	s.mu.Unlock()

	s.emit(Event{Type: EventDeleted, ID: id, Count: 1, Persisted: perr == nil})
	return perr
}

// DeleteAll replaces the collection with an empty one and persists it.
// A corrupt blob that was never loaded is overwritten as well.
func (s *Store) DeleteAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	count := s.notes.Len()
	s.notes = models.Collection{}
	s.loaded = true
	perr := s.persistLocked()
	s.mu.Unlock()

	s.emit(Event{Type: EventCleared, Count: count, Persisted: perr == nil})
	return perr
}

// Reload re-reads the blob and replaces the collection when the blob differs
// from the one last read or written by this store. It reports whether the
// collection changed. A dirty store keeps its notes and does not reload; the
// next successful write overwrites the external change.
func (s *Store) Reload(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	if s.dirty {
		s.mu.Unlock()
		s.logger.Warn("notestore: reload skipped, unsaved changes", slog.String("key", s.key))
		return false, nil
	}
	data, err := s.read()
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	if s.loaded && checksum.Match(s.sum, data) {
		s.mu.Unlock()
		return false, nil
	}
	coll, err := s.decode(data)
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	s.notes, s.sum, s.loaded, s.dirty = coll, checksum.Sum(data), true, false
	count := coll.Len()
	s.mu.Unlock()

	s.logger.Info("notestore: reloaded", slog.String("key", s.key), slog.Int("count", count))
	s.emit(Event{Type: EventReloaded, Count: count, Persisted: true})
	return true, nil
}

// Dirty reports whether the in-memory collection is ahead of storage.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

func (s *Store) ensureLoadedLocked() error {
	if s.loaded {
		return nil
	}
	data, err := s.read()
	if err != nil {
		return err
	}
	coll, err := s.decode(data)
	if err != nil {
		return err
	}
	s.notes, s.sum, s.loaded = coll, checksum.Sum(data), true
	s.logger.Debug("notestore: loaded", slog.String("key", s.key), slog.Int("count", coll.Len()))
	return nil
}

func (s *Store) read() ([]byte, error) {
	data, err := s.provider.Read(s.key)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("notestore: read %q: %w", s.key, err)
	}
	return data, nil
}

// decode fails only on a blob that is not a note object. Per-record problems
// are logged and the affected records dropped.
func (s *Store) decode(data []byte) (models.Collection, error) {
	coll, err := s.codec.Decode(data)
	if err == nil {
		return coll, nil
	}
	if errors.Is(err, codec.ErrMalformedBlob) {
		return models.Collection{}, fmt.Errorf("notestore: load %q: %w", s.key, err)
	}
	for _, e := range flatten(err) {
		var mde *codec.MalformedDateError
		if errors.As(e, &mde) {
			s.logger.Warn("notestore: dropped note",
				slog.String("id", mde.ID), slog.String("date", mde.Value), slog.String("error", e.Error()))
			continue
		}
		s.logger.Warn("notestore: decode", slog.String("error", e.Error()))
	}
	return coll, nil
}

func (s *Store) derive(n models.Note) models.Note {
	n, err := s.codec.Derive(n)
	if err != nil {
		s.logger.Warn("notestore: render failed", slog.String("id", n.ID), slog.String("error", err.Error()))
	}
	return n
}

// persistLocked writes the whole collection. The in-memory state is kept on
// failure and the store is marked dirty until the next successful write.
func (s *Store) persistLocked() error {
	data, err := s.codec.Encode(s.notes)
	if err == nil {
		err = s.provider.Write(s.key, data)
	}
	if err != nil {
		s.dirty = true
		s.logger.Error("notestore: persist failed", slog.String("key", s.key), slog.String("error", err.Error()))
		return &apperr.PersistenceError{Key: s.key, Err: err}
	}
	s.sum = checksum.Sum(data)
	s.dirty = false
	return nil
}

func (s *Store) emit(ev Event) {
	for _, h := range s.hooks {
		h(ev)
	}
}

func flatten(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
