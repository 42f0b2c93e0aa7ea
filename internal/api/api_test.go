package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/notes/internal/codec"
	"github.com/starford/notes/internal/live"
	"github.com/starford/notes/internal/notestore"
	"github.com/starford/notes/internal/render"
	"github.com/starford/notes/internal/search"
	"github.com/starford/notes/internal/storage"
	"github.com/starford/notes/internal/testutil"
)

type testEnv struct {
	mem     *storage.Memory
	store   *notestore.Store
	session *live.Session
	router  http.Handler
}

func newTestEnv(t *testing.T, authToken string) *testEnv {
	t.Helper()
	return newTestEnvWithSSE(t, authToken, nil)
}

func newTestEnvWithSSE(t *testing.T, authToken string, sseHandler http.Handler) *testEnv {
	t.Helper()
	store, mem, rnd := testutil.TestStore(t)
	session := live.NewSession(func(ctx context.Context, q string) ([]search.Result, error) {
		all, err := store.GetAll(ctx)
		if err != nil {
			return nil, err
		}
		return search.Results(all, q, rnd), nil
	})
	t.Cleanup(session.Close)

	h := NewHandler(store, session, rnd)
	router := NewRouter(h, authToken != "", authToken, sseHandler)
	return &testEnv{mem: mem, store: store, session: session, router: router}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestPutAndGetNote(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodPut, "/notes/n1", map[string]string{"text": "# Hello\nWorld", "date": "2024-05-04T10:00:00Z"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodPut, "/notes/n1", map[string]string{"text": "# Hello again"})
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/notes/n1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	note := decode[NoteResponse](t, w)
	if note.Text != "# Hello again" {
		t.Errorf("text = %q", note.Text)
	}
	if note.DateLabel != "4 May 2024" {
		t.Errorf("date_label = %q, want 4 May 2024", note.DateLabel)
	}
	if !strings.Contains(note.HTML, "<h1>Hello again</h1>") {
		t.Errorf("html = %q", note.HTML)
	}
}

func TestPutNote_InvalidDate(t *testing.T) {
	env := newTestEnv(t, "")
	w := env.do(t, http.MethodPut, "/notes/n1", map[string]string{"date": "next tuesday"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ISO-8601") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestPutNote_InvalidJSON(t *testing.T) {
	env := newTestEnv(t, "")
	req := httptest.NewRequest(http.MethodPut, "/notes/n1", strings.NewReader("{"))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestPutNote_PersistenceFailure(t *testing.T) {
	env := newTestEnv(t, "")
	env.mem.FailWrites(errors.New("quota exceeded"))

	w := env.do(t, http.MethodPut, "/notes/n1", map[string]string{"text": "keep me"})
	if w.Code != http.StatusInsufficientStorage {
		t.Fatalf("status = %d, want 507", w.Code)
	}
	resp := decode[NoteResponse](t, w)
	if resp.Persisted == nil || *resp.Persisted || resp.Text != "keep me" {
		t.Errorf("response = %+v", resp)
	}

	w = env.do(t, http.MethodGet, "/notes/n1", nil)
	if w.Code != http.StatusOK {
		t.Errorf("note not applied in memory: %d", w.Code)
	}
}

func TestPutNote_ConcurrentCreateReportsOneCreated(t *testing.T) {
	env := newTestEnv(t, "")
	body := map[string]string{"text": "same"}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		codes = map[int]int{}
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := env.do(t, http.MethodPut, "/notes/n1", body)
			mu.Lock()
			codes[w.Code]++
			mu.Unlock()
		}()
	}
	wg.Wait()
	if codes[http.StatusCreated] != 1 || codes[http.StatusOK] != 7 {
		t.Errorf("status counts = %v, want one 201 and seven 200", codes)
	}
}

func TestGetNote_NotFound(t *testing.T) {
	env := newTestEnv(t, "")
	if w := env.do(t, http.MethodGet, "/notes/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing note = %d, want 404", w.Code)
	}
}

func TestDeleteNote(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(t, http.MethodPut, "/notes/del", map[string]string{"text": "bye"})

	if w := env.do(t, http.MethodDelete, "/notes/del", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d, want 204", w.Code)
	}
	if w := env.do(t, http.MethodDelete, "/notes/del", nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestDeleteAll(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(t, http.MethodPut, "/notes/a", map[string]string{"text": "a"})
	env.do(t, http.MethodPut, "/notes/b", map[string]string{"text": "b"})

	if w := env.do(t, http.MethodDelete, "/notes", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete all = %d, want 204", w.Code)
	}
	list := decode[NoteListResponse](t, env.do(t, http.MethodGet, "/notes", nil))
	if list.Total != 0 || list.Placeholder != "Filter 0 notes" {
		t.Errorf("list after delete all = %+v", list)
	}
	blob, _ := env.mem.Read(notestore.DefaultKey)
	if string(blob) != "{}" {
		t.Errorf("persisted = %q, want {}", blob)
	}
}

func TestListNotes_FilterOrderHighlight(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(t, http.MethodPut, "/notes/milk", map[string]string{"text": "Buy milk", "date": "2024-05-01"})
	env.do(t, http.MethodPut, "/notes/mom", map[string]string{"text": "Call mom", "date": "2024-05-03"})
	env.do(t, http.MethodPut, "/notes/bread", map[string]string{"text": "buy bread", "date": "2024-05-04"})

	w := env.do(t, http.MethodGet, "/notes?q=BUY", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	list := decode[NoteListResponse](t, w)
	if list.Count != 2 || list.Total != 3 || list.Placeholder != "Filter 3 notes" {
		t.Fatalf("list = %+v", list)
	}
	if list.Notes[0].ID != "bread" || list.Notes[1].ID != "milk" {
		t.Errorf("order = %s, %s", list.Notes[0].ID, list.Notes[1].ID)
	}
	if list.Notes[1].HeaderMarkup != "==Buy== milk" || list.Notes[1].HeaderHTML != "<mark>Buy</mark> milk" {
		t.Errorf("highlight = %q / %q", list.Notes[1].HeaderMarkup, list.Notes[1].HeaderHTML)
	}
}

func TestListNotes_AdjacentMatchesHighlight(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(t, http.MethodPut, "/notes/n1", map[string]string{"text": "hello", "date": "2024-05-04T10:00:00Z"})

	w := env.do(t, http.MethodGet, "/notes?q=l", nil)
	list := decode[NoteListResponse](t, w)
	if list.Count != 1 || list.Notes[0].HeaderHTML != "he<mark>l</mark><mark>l</mark>o" {
		t.Errorf("list = %+v", list)
	}

	w = env.do(t, http.MethodGet, "/notes?q=hello%20", nil)
	if list := decode[NoteListResponse](t, w); list.Count != 0 {
		t.Errorf("trailing-space query matched %d notes", list.Count)
	}
}

func TestPlaceholder(t *testing.T) {
	if got := Placeholder(1); got != "Filter 1 note" {
		t.Errorf("Placeholder(1) = %q", got)
	}
	if got := Placeholder(42); got != "Filter 42 notes" {
		t.Errorf("Placeholder(42) = %q", got)
	}
}

func TestGenerate(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodPost, "/notes/generate", map[string]string{"preset": "hundred"})
	if w.Code != http.StatusCreated {
		t.Fatalf("generate = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[GenerateResponse](t, w)
	if len(resp.IDs) != 100 || !resp.Persisted {
		t.Errorf("generated %d ids, persisted=%v", len(resp.IDs), resp.Persisted)
	}

	w = env.do(t, http.MethodPost, "/notes/generate", map[string]int{"count": 2, "paragraphs": 3})
	if w.Code != http.StatusCreated {
		t.Fatalf("custom generate = %d, body = %s", w.Code, w.Body.String())
	}
	list := decode[NoteListResponse](t, env.do(t, http.MethodGet, "/notes", nil))
	if list.Total != 102 {
		t.Errorf("total = %d, want 102", list.Total)
	}
}

func TestGenerate_Invalid(t *testing.T) {
	env := newTestEnv(t, "")
	for _, body := range []any{
		map[string]string{"preset": "giant"},
		map[string]int{"count": 0, "paragraphs": 1},
		map[string]int{"count": 5000, "paragraphs": 1},
		map[string]any{},
	} {
		if w := env.do(t, http.MethodPost, "/notes/generate", body); w.Code != http.StatusBadRequest {
			t.Errorf("generate %v = %d, want 400", body, w.Code)
		}
	}
}

func TestFilter_InputThenResult(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(t, http.MethodPut, "/notes/milk", map[string]string{"text": "Buy milk", "date": "2024-05-01"})
	env.do(t, http.MethodPut, "/notes/mom", map[string]string{"text": "Call mom", "date": "2024-05-03"})

	w := env.do(t, http.MethodPut, "/filter", FilterRequest{Input: "milk"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("set filter = %d", w.Code)
	}
	accepted := decode[struct {
		Seq   uint64 `json:"seq"`
		Input string `json:"input"`
	}](t, w)
	if accepted.Input != "milk" || accepted.Seq == 0 {
		t.Fatalf("accepted = %+v", accepted)
	}

	w = env.do(t, http.MethodGet, "/filter?wait="+strconv.FormatUint(accepted.Seq, 10), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get filter = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[FilterResponse](t, w)
	if resp.Input != "milk" || resp.AppliedSeq < accepted.Seq {
		t.Errorf("filter = %+v", resp)
	}
	if resp.NoteListResponse == nil || resp.Count != 1 || resp.Notes[0].HeaderHTML != "Buy <mark>milk</mark>" {
		t.Errorf("results = %+v", resp.NoteListResponse)
	}
}

func TestFilter_BadWait(t *testing.T) {
	env := newTestEnv(t, "")
	if w := env.do(t, http.MethodGet, "/filter?wait=soon", nil); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	env := newTestEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodPut, "/notes/auth", strings.NewReader(`{"text":"test"}`))
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Errorf("authed create = %d, want 201", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	env := newTestEnv(t, "secret123")
	if w := env.do(t, http.MethodGet, "/notes", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	env := newTestEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	env := newTestEnv(t, "")
	if w := env.do(t, http.MethodGet, "/notes", nil); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	sse := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	env := newTestEnvWithSSE(t, "secret", sse)

	if w := env.do(t, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
}

func TestPutNote_SQLiteStorage(t *testing.T) {
	db := testutil.TestSQLite(t)
	store := notestore.New(db, codec.New(render.New()), notestore.WithLogger(testutil.Logger()))
	router := NewRouter(NewHandler(store, nil, nil), false, "", nil)

	req := httptest.NewRequest(http.MethodPut, "/notes/n1", strings.NewReader(`{"text":"stored in sqlite"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	blob, err := db.Read(notestore.DefaultKey)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !strings.Contains(string(blob), "stored in sqlite") {
		t.Errorf("blob = %s", blob)
	}

	req = httptest.NewRequest(http.MethodPut, "/filter", strings.NewReader(`{"input":"x"}`))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotImplemented {
		t.Errorf("filter without session = %d, want 501", w.Code)
	}
}
