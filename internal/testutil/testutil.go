// Package testutil provides shared test helpers for setting up storage and stores.
package testutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/notes/internal/codec"
	"github.com/starford/notes/internal/notestore"
	"github.com/starford/notes/internal/render"
	"github.com/starford/notes/internal/storage"
)

// Logger returns a JSON logger that only reports errors.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// TestSQLite opens a temporary SQLite provider that is closed on cleanup.
func TestSQLite(t *testing.T) *storage.SQLite {
	t.Helper()
	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "notes-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestDataDir creates a temporary data directory with an FS provider.
func TestDataDir(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}

// TestStore builds a store over in-memory storage with the default renderer.
func TestStore(t *testing.T, opts ...notestore.Option) (*notestore.Store, *storage.Memory, *render.Renderer) {
	t.Helper()
	mem := storage.NewMemory()
	r := render.New()
	opts = append([]notestore.Option{notestore.WithLogger(Logger())}, opts...)
	return notestore.New(mem, codec.New(r), opts...), mem, r
}
