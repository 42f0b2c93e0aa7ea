package notestore

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/notes/internal/apperr"
	"github.com/starford/notes/internal/codec"
	"github.com/starford/notes/internal/models"
	"github.com/starford/notes/internal/render"
	"github.com/starford/notes/internal/storage"
)

var fixedNow = time.Date(2024, 5, 4, 12, 0, 0, 0, time.UTC)

type countingProvider struct {
	*storage.Memory
	mu    sync.Mutex
	reads int
}

func (p *countingProvider) Read(key string) ([]byte, error) {
	p.mu.Lock()
	p.reads++
	p.mu.Unlock()
	return p.Memory.Read(key)
}

func newStore(t *testing.T, opts ...Option) (*Store, *storage.Memory) {
	t.Helper()
	mem := storage.NewMemory()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(mem, codec.New(render.New()), opts...), mem
}

func strPtr(s string) *string { return &s }

func TestPut_CreateThenUpdate(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	n, err := s.Put(ctx, "n1", models.Patch{Text: strPtr("hello")})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if n.ID != "n1" || n.Text != "hello" || !n.Date.Equal(fixedNow) {
		t.Fatalf("created note = %+v", n)
	}
	if !strings.Contains(n.HTML, "hello") {
		t.Errorf("derived html missing: %q", n.HTML)
	}

	s.now = func() time.Time { return fixedNow.Add(time.Hour) }
	n, err = s.Put(ctx, "n1", models.Patch{Text: strPtr("world")})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if n.Text != "world" || !n.Date.Equal(fixedNow) {
		t.Errorf("update changed date or missed text: %+v", n)
	}
	if !strings.Contains(n.HTML, "world") {
		t.Errorf("html not re-derived: %q", n.HTML)
	}
}

func TestPut_DateOnlyKeepsText(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	_, _ = s.Put(ctx, "n1", models.Patch{Text: strPtr("keep me")})

	d := time.Date(2023, 8, 4, 0, 0, 0, 0, time.UTC)
	n, err := s.Put(ctx, "n1", models.Patch{Date: &d})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if n.Text != "keep me" || !n.Date.Equal(d) {
		t.Errorf("note = %+v", n)
	}
}

func TestPut_EmptyID(t *testing.T) {
	s, _ := newStore(t)
	if _, err := s.Put(context.Background(), "", models.Patch{}); !errors.Is(err, apperr.ErrInvalidID) {
		t.Errorf("err = %v, want ErrInvalidID", err)
	}
}

func TestPut_WritesThrough(t *testing.T) {
	s, mem := newStore(t)
	ctx := context.Background()
	_, _ = s.Put(ctx, "n1", models.Patch{Text: strPtr("hello")})

	blob, err := mem.Read(DefaultKey)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	coll, err := codec.New(nil).Decode(blob)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	n, ok := coll.Get("n1")
	if !ok || n.Text != "hello" {
		t.Errorf("persisted collection = %+v", coll.Notes())
	}
}

func TestGetAll_LazyLoadOnce(t *testing.T) {
	mem := storage.NewMemory()
	_ = mem.Write(DefaultKey, []byte(`{"a":{"id":"a","text":"x","date":"2024-05-04T00:00:00Z"}}`))
	p := &countingProvider{Memory: mem}
	s := New(p, codec.New(nil))
	ctx := context.Background()

	if p.reads != 0 {
		t.Fatal("store read storage before first access")
	}
	first, err := s.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	second, err := s.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if p.reads != 1 {
		t.Errorf("reads = %d, want 1", p.reads)
	}
	if !first.Equal(second) || first.Len() != 1 {
		t.Errorf("GetAll not idempotent: %v vs %v", first.IDs(), second.IDs())
	}
}

func TestGetAll_ConcurrentLoadIsAtomic(t *testing.T) {
	mem := storage.NewMemory()
	_ = mem.Write(DefaultKey, []byte(`{"a":{"text":"x","date":"2024-05-04"},"b":{"text":"y","date":"2024-05-03"}}`))
	p := &countingProvider{Memory: mem}
	s := New(p, codec.New(nil))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			all, err := s.GetAll(context.Background())
			if err != nil || all.Len() != 2 {
				t.Errorf("GetAll = %d notes, %v", all.Len(), err)
			}
		}()
	}
	wg.Wait()
	if p.reads != 1 {
		t.Errorf("reads = %d, want 1", p.reads)
	}
}

func TestGetAll_DropsMalformedRecords(t *testing.T) {
	mem := storage.NewMemory()
	_ = mem.Write(DefaultKey, []byte(`{"a":{"text":"ok","date":"2024-05-04"},"b":{"text":"bad","date":"nope"}}`))
	s := New(mem, codec.New(nil))

	all, err := s.GetAll(context.Background())
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if all.Len() != 1 {
		t.Errorf("len = %d, want 1", all.Len())
	}
}

func TestGetAll_CorruptBlobNotOverwritten(t *testing.T) {
	mem := storage.NewMemory()
	_ = mem.Write(DefaultKey, []byte(`[not, an, object`))
	s := New(mem, codec.New(nil))
	ctx := context.Background()

	if _, err := s.GetAll(ctx); !errors.Is(err, codec.ErrMalformedBlob) {
		t.Fatalf("err = %v, want ErrMalformedBlob", err)
	}
	if _, err := s.Put(ctx, "n1", models.Patch{Text: strPtr("x")}); err == nil {
		t.Fatal("Put should fail while the blob is unreadable")
	}
	blob, _ := mem.Read(DefaultKey)
	if string(blob) != `[not, an, object` {
		t.Errorf("corrupt blob overwritten: %q", blob)
	}
}

func TestPersistenceFailure_KeepsMutation(t *testing.T) {
	s, mem := newStore(t)
	ctx := context.Background()
	_, _ = s.Put(ctx, "n1", models.Patch{Text: strPtr("saved")})

	mem.FailWrites(errors.New("quota exceeded"))
	n, err := s.Put(ctx, "n1", models.Patch{Text: strPtr("unsaved")})
	var perr *apperr.PersistenceError
	if !errors.As(err, &perr) || !errors.Is(err, apperr.ErrPersistence) {
		t.Fatalf("err = %v, want PersistenceError", err)
	}
	if perr.Key != DefaultKey {
		t.Errorf("key = %q", perr.Key)
	}
	if n.Text != "unsaved" {
		t.Errorf("returned note = %+v", n)
	}
	got, _ := s.Get(ctx, "n1")
	if got.Text != "unsaved" {
		t.Errorf("mutation rolled back: %+v", got)
	}
	if !s.Dirty() {
		t.Error("store should be dirty")
	}

	mem.FailWrites(nil)
	if _, err := s.Put(ctx, "n2", models.Patch{Text: strPtr("next")}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if s.Dirty() {
		t.Error("successful write should clear dirty")
	}
	blob, _ := mem.Read(DefaultKey)
	if !strings.Contains(string(blob), "unsaved") {
		t.Errorf("healed write missing earlier mutation: %s", blob)
	}
}

func TestDeleteAll(t *testing.T) {
	s, mem := newStore(t)
	ctx := context.Background()
	_, _ = s.Put(ctx, "n1", models.Patch{Text: strPtr("a")})
	_, _ = s.Put(ctx, "n2", models.Patch{Text: strPtr("b")})

	if err := s.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	all, _ := s.GetAll(ctx)
	if all.Len() != 0 {
		t.Errorf("len = %d after DeleteAll", all.Len())
	}
	blob, _ := mem.Read(DefaultKey)
	if string(blob) != "{}" {
		t.Errorf("persisted = %q, want {}", blob)
	}
}

func TestDelete(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	_, _ = s.Put(ctx, "n1", models.Patch{Text: strPtr("a")})

	if err := s.Delete(ctx, "n1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "n1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second Delete err = %v, want ErrNotFound", err)
	}
}

func TestHooks(t *testing.T) {
	var got []Event
	s, mem := newStore(t, WithHook(func(ev Event) { got = append(got, ev) }))
	ctx := context.Background()

	_, _ = s.Put(ctx, "n1", models.Patch{Text: strPtr("a")})
	_, _ = s.Put(ctx, "n1", models.Patch{Text: strPtr("b")})
	mem.FailWrites(errors.New("disk full"))
	_ = s.Delete(ctx, "n1")
	mem.FailWrites(nil)
	_ = s.DeleteAll(ctx)

	want := []EventType{EventCreated, EventUpdated, EventDeleted, EventCleared}
	if len(got) != len(want) {
		t.Fatalf("events = %+v", got)
	}
	for i, typ := range want {
		if got[i].Type != typ {
			t.Errorf("event %d = %s, want %s", i, got[i].Type, typ)
		}
	}
	if got[2].Persisted {
		t.Error("delete event should report failed persistence")
	}
}

func TestReload_IgnoresOwnWrites(t *testing.T) {
	s, mem := newStore(t)
	ctx := context.Background()
	_, _ = s.Put(ctx, "n1", models.Patch{Text: strPtr("a")})

	changed, err := s.Reload(ctx)
	if err != nil || changed {
		t.Fatalf("Reload after own write = %v, %v", changed, err)
	}

	_ = mem.Write(DefaultKey, []byte(`{"ext":{"id":"ext","text":"external","date":"2024-01-01"}}`))
	changed, err = s.Reload(ctx)
	if err != nil || !changed {
		t.Fatalf("Reload after external write = %v, %v", changed, err)
	}
	all, _ := s.GetAll(ctx)
	if _, ok := all.Get("ext"); !ok || all.Len() != 1 {
		t.Errorf("collection after reload = %v", all.IDs())
	}
}

func TestReload_DirtyKeepsUnsavedNotes(t *testing.T) {
	s, mem := newStore(t)
	ctx := context.Background()
	_, _ = s.Put(ctx, "a", models.Patch{Text: strPtr("saved")})

	mem.FailWrites(errors.New("disk full"))
	if _, err := s.Put(ctx, "b", models.Patch{Text: strPtr("typed but unsaved")}); !errors.Is(err, apperr.ErrPersistence) {
		t.Fatalf("Put err = %v, want persistence failure", err)
	}
	mem.FailWrites(nil)

	_ = mem.Write(DefaultKey, []byte(`{"ext":{"id":"ext","text":"external","date":"2024-01-01"}}`))
	changed, err := s.Reload(ctx)
	if err != nil || changed {
		t.Fatalf("Reload on dirty store = %v, %v", changed, err)
	}
	if !s.Dirty() {
		t.Error("store should stay dirty")
	}
	if _, err := s.Get(ctx, "b"); err != nil {
		t.Errorf("unsaved note lost: %v", err)
	}

	if _, err := s.Put(ctx, "c", models.Patch{Text: strPtr("next")}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	blob, _ := mem.Read(DefaultKey)
	if !strings.Contains(string(blob), "typed but unsaved") || strings.Contains(string(blob), "external") {
		t.Errorf("blob after heal = %s", blob)
	}
}

func TestUpsert_ReportsCreation(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	_, created, err := s.Upsert(ctx, "n1", models.Patch{Text: strPtr("one")})
	if err != nil || !created {
		t.Fatalf("first Upsert created = %v, err = %v", created, err)
	}
	_, created, err = s.Upsert(ctx, "n1", models.Patch{Text: strPtr("two")})
	if err != nil || created {
		t.Fatalf("second Upsert created = %v, err = %v", created, err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		creates int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, created, err := s.Upsert(ctx, "race", models.Patch{Text: strPtr("x")}); err == nil && created {
				mu.Lock()
				creates++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if creates != 1 {
		t.Errorf("concurrent creates reported = %d, want 1", creates)
	}
}

func TestPut_DateOutOfRange(t *testing.T) {
	s, mem := newStore(t)
	ctx := context.Background()
	far := time.Date(12000, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, err := s.Put(ctx, "n1", models.Patch{Text: strPtr("x"), Date: &far}); !errors.Is(err, codec.ErrDateOutOfRange) {
		t.Fatalf("Put err = %v, want ErrDateOutOfRange", err)
	}
	if err := s.PutMany(ctx, []models.Note{{ID: "n2", Text: "y", Date: far}}); !errors.Is(err, codec.ErrDateOutOfRange) {
		t.Fatalf("PutMany err = %v, want ErrDateOutOfRange", err)
	}
	all, _ := s.GetAll(ctx)
	if all.Len() != 0 || s.Dirty() {
		t.Errorf("rejected notes applied: %v dirty=%v", all.IDs(), s.Dirty())
	}
	if _, writes := mem.Stats(); writes != 0 {
		t.Errorf("writes = %d, want 0", writes)
	}
}

func TestSnapshotsAreIsolated(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	_, _ = s.Put(ctx, "n1", models.Patch{Text: strPtr("a")})

	snap, _ := s.GetAll(ctx)
	_, _ = s.Put(ctx, "n2", models.Patch{Text: strPtr("b")})
	if snap.Len() != 1 {
		t.Errorf("earlier snapshot changed: %v", snap.IDs())
	}
}

func TestGenerate(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	opts, err := PresetHundred.Options()
	if err != nil {
		t.Fatalf("Options: %v", err)
	}
	opts.Rand = rand.New(rand.NewPCG(1, 2))
	opts.Now = fixedNow

	notes, err := Generate(ctx, s, opts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(notes) != 100 {
		t.Fatalf("generated %d notes", len(notes))
	}
	all, _ := s.GetAll(ctx)
	if all.Len() != 100 {
		t.Errorf("store holds %d notes", all.Len())
	}
	yearAgo := fixedNow.AddDate(-1, 0, -1)
	for _, n := range notes {
		if n.Text == "" || n.Date.After(fixedNow) || n.Date.Before(yearAgo) {
			t.Errorf("bad generated note %+v", n)
			break
		}
	}
}

func TestGenerate_HugePreset(t *testing.T) {
	s, _ := newStore(t)
	opts, _ := PresetHuge.Options()
	opts.Rand = rand.New(rand.NewPCG(3, 4))
	notes, err := Generate(context.Background(), s, opts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := strings.Count(notes[0].Text, "\n\n") + 1; got != 300 {
		t.Errorf("paragraphs = %d, want 300", got)
	}
}

func TestPreset_Unknown(t *testing.T) {
	if _, err := Preset("giant").Options(); err == nil {
		t.Error("expected error for unknown preset")
	}
}
