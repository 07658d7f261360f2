package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/canvasfocus/internal/focus"
	"github.com/starford/canvasfocus/internal/index"
	"github.com/starford/canvasfocus/internal/noteservice"
	"github.com/starford/canvasfocus/internal/prompt"
	"github.com/starford/canvasfocus/internal/scratch"
	"github.com/starford/canvasfocus/internal/settings"
	"github.com/starford/canvasfocus/internal/sse"
	"github.com/starford/canvasfocus/internal/testutil"
	"github.com/starford/canvasfocus/internal/workspace"
)

const board = `{"nodes":[
	{"id":"f1","type":"file","file":"a.md","x":0,"y":0,"width":400,"height":400},
	{"id":"t1","type":"text","text":"# Plan\nsteps","x":0,"y":500,"width":250,"height":120}
],"edges":[{"id":"e1","fromNode":"t1","toNode":"f1"}]}`

type testEnv struct {
	dir     string
	router  http.Handler
	ctrl    *focus.Controller
	prompts *prompt.Broker
	ws      *workspace.Workspace
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestEnv wires a vault, index, controller and router. An empty token
// means auth is disabled.
func newTestEnv(t *testing.T, token string) *testEnv {
	t.Helper()
	dir, store := testutil.TestVault(t)
	db := testutil.TestDB(t)
	logger := quietLogger()

	testutil.WriteFiles(t, dir, map[string]string{
		"board.canvas": board,
		"a.md":         "# Alpha\nfindme text\n",
	})
	if err := index.Sync(db, store, nil, logger); err != nil {
		t.Fatal(err)
	}

	broker := sse.NewBroker(time.Second)
	t.Cleanup(broker.Close)

	st := settings.Load(store, ".canvasfocus/state.toml", settings.State{Enabled: true, ScratchPath: "canvas-focus-temp"}, logger)
	ws := workspace.New(store, ".canvasfocus/workspace.json", broker, logger)
	ctrl := focus.New(focus.Deps{
		Store:     store,
		Settings:  st,
		Scratch:   scratch.New(store, "canvas-focus-temp", logger),
		Host:      ws,
		Publisher: broker,
		Logger:    logger,
	}, focus.Options{
		SelectionInterval: time.Hour,
		NodeInterval:      time.Hour,
		DocumentDebounce:  10 * time.Millisecond,
		CanvasSaveDelay:   time.Hour,
	})
	ws.OnClose(ctrl.SurfaceClosed)
	ctrl.Start(context.Background())
	t.Cleanup(ctrl.Stop)

	prompts := prompt.NewBroker(broker)
	router := NewRouter(Deps{
		Notes:       noteservice.NewService(store, db),
		Focus:       ctrl,
		Prompts:     prompts,
		Surfaces:    ws,
		Events:      broker,
		AuthEnabled: token != "",
		Token:       token,
	})
	return &testEnv{dir: dir, router: router, ctrl: ctrl, prompts: prompts, ws: ws}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) activate(t *testing.T) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/canvas/activate", map[string]string{"path": "board.canvas"})
	if w.Code != http.StatusOK {
		t.Fatalf("activate = %d, body = %s", w.Code, w.Body.String())
	}
}

func decodeState(t *testing.T, w *httptest.ResponseRecorder) FocusState {
	t.Helper()
	var st FocusState
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode state: %v (%s)", err, w.Body.String())
	}
	return st
}

func TestGetNote(t *testing.T) {
	e := newTestEnv(t, "")
	w := e.do(t, http.MethodGet, "/notes/a.md", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var note NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &note)
	if note.Path != "a.md" || note.Title != "Alpha" {
		t.Errorf("note = %+v", note)
	}
}

func TestGetNote_NotFound(t *testing.T) {
	e := newTestEnv(t, "")
	if w := e.do(t, http.MethodGet, "/notes/nope.md", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing note = %d, want 404", w.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	e := newTestEnv(t, "")
	w := e.do(t, http.MethodGet, "/search?q=findme", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d", w.Code)
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 || resp.Results[0].Path != "a.md" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	e := newTestEnv(t, "")
	if w := e.do(t, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestCanvasNotActive(t *testing.T) {
	e := newTestEnv(t, "")
	if w := e.do(t, http.MethodGet, "/canvas", nil); w.Code != http.StatusNotFound {
		t.Errorf("canvas before activate = %d, want 404", w.Code)
	}
}

func TestActivateValidation(t *testing.T) {
	e := newTestEnv(t, "")
	if w := e.do(t, http.MethodPost, "/canvas/activate", map[string]string{"path": "a.md"}); w.Code != http.StatusBadRequest {
		t.Errorf("non-canvas path = %d, want 400", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/canvas/activate", map[string]string{"path": "gone.canvas"}); w.Code != http.StatusNotFound {
		t.Errorf("missing canvas = %d, want 404", w.Code)
	}
}

func TestSelectionOpensSurface(t *testing.T) {
	e := newTestEnv(t, "")
	e.activate(t)

	w := e.do(t, http.MethodPut, "/canvas/selection", map[string][]string{"ids": {"f1"}})
	if w.Code != http.StatusOK {
		t.Fatalf("selection = %d, body = %s", w.Code, w.Body.String())
	}
	st := decodeState(t, w)
	if st.Selection != "f1" || st.SurfaceID == "" {
		t.Errorf("state = %+v", st)
	}

	w = e.do(t, http.MethodGet, "/surfaces", nil)
	var list []workspace.Info
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if len(list) != 1 || list[0].Path != "a.md" {
		t.Fatalf("surfaces = %+v", list)
	}

	if w := e.do(t, http.MethodDelete, "/surfaces/"+list[0].ID, nil); w.Code != http.StatusNoContent {
		t.Errorf("close surface = %d", w.Code)
	}
	if w := e.do(t, http.MethodDelete, "/surfaces/"+list[0].ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("second close = %d, want 404", w.Code)
	}

	if w := e.do(t, http.MethodPut, "/canvas/selection", map[string][]string{"ids": {"ghost"}}); w.Code != http.StatusNotFound {
		t.Errorf("unknown node = %d, want 404", w.Code)
	}
}

func TestGetCanvas(t *testing.T) {
	e := newTestEnv(t, "")
	e.activate(t)
	_ = e.do(t, http.MethodPut, "/canvas/selection", map[string][]string{"ids": {"t1"}})

	w := e.do(t, http.MethodGet, "/canvas", nil)
	var resp CanvasResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Path != "board.canvas" || len(resp.Nodes) != 2 || len(resp.Edges) != 1 {
		t.Errorf("canvas = %+v", resp)
	}
	if len(resp.Selection) != 1 || resp.Selection[0] != "t1" {
		t.Errorf("selection = %v", resp.Selection)
	}
}

func TestSetNodeText(t *testing.T) {
	e := newTestEnv(t, "")
	e.activate(t)

	if w := e.do(t, http.MethodPut, "/canvas/nodes/t1/text", map[string]string{"text": "new"}); w.Code != http.StatusNoContent {
		t.Fatalf("set text = %d", w.Code)
	}
	if w := e.do(t, http.MethodPut, "/canvas/nodes/f1/text", map[string]string{"text": "x"}); w.Code != http.StatusConflict {
		t.Errorf("file node = %d, want 409", w.Code)
	}
	if w := e.do(t, http.MethodPut, "/canvas/nodes/zz/text", map[string]string{"text": "x"}); w.Code != http.StatusNotFound {
		t.Errorf("missing node = %d, want 404", w.Code)
	}
}

func TestToggle(t *testing.T) {
	e := newTestEnv(t, "")
	w := e.do(t, http.MethodPost, "/focus/toggle", nil)
	var resp ToggleResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if w.Code != http.StatusOK || resp.Enabled {
		t.Errorf("toggle = %d %+v, want disabled", w.Code, resp)
	}
	st := decodeState(t, e.do(t, http.MethodGet, "/focus", nil))
	if st.Enabled {
		t.Error("state should report disabled")
	}
}

func TestPromote_NoActiveNode(t *testing.T) {
	e := newTestEnv(t, "")
	if w := e.do(t, http.MethodPost, "/focus/promote", nil); w.Code != http.StatusConflict {
		t.Errorf("promote = %d, want 409", w.Code)
	}
}

func TestPromote_WithHeading(t *testing.T) {
	e := newTestEnv(t, "")
	e.activate(t)
	_ = e.do(t, http.MethodPut, "/canvas/selection", map[string][]string{"ids": {"t1"}})

	w := e.do(t, http.MethodPost, "/focus/promote", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("promote = %d, body = %s", w.Code, w.Body.String())
	}
	var resp PromoteResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Cancelled || resp.Result == nil || resp.Result.Path != "Plan.md" {
		t.Fatalf("resp = %+v", resp)
	}
	if _, err := os.Stat(filepath.Join(e.dir, "Plan.md")); err != nil {
		t.Errorf("Plan.md not created: %v", err)
	}
}

func TestPromote_CollisionAnsweredThroughPrompts(t *testing.T) {
	e := newTestEnv(t, "")
	_ = os.WriteFile(filepath.Join(e.dir, "Plan.md"), []byte("taken"), 0o644)
	e.activate(t)
	_ = e.do(t, http.MethodPut, "/canvas/selection", map[string][]string{"ids": {"t1"}})

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- e.do(t, http.MethodPost, "/focus/promote", nil) }()

	var pending []prompt.Pending
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		w := e.do(t, http.MethodGet, "/prompts", nil)
		_ = json.Unmarshal(w.Body.Bytes(), &pending)
		if len(pending) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(pending) != 1 {
		t.Fatal("no prompt published for the collision")
	}
	if w := e.do(t, http.MethodPost, "/prompts/"+pending[0].ID, map[string]string{"value": "Plan2"}); w.Code != http.StatusNoContent {
		t.Fatalf("answer = %d", w.Code)
	}

	w := <-done
	var resp PromoteResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Result == nil || resp.Result.Path != "Plan2.md" {
		t.Fatalf("resp = %+v (%s)", resp, w.Body.String())
	}
	if data, _ := os.ReadFile(filepath.Join(e.dir, "Plan.md")); string(data) != "taken" {
		t.Errorf("Plan.md = %q, want untouched", data)
	}
}

func TestPromote_CancelledPrompt(t *testing.T) {
	e := newTestEnv(t, "")
	_ = os.WriteFile(filepath.Join(e.dir, "Plan.md"), []byte("taken"), 0o644)
	e.activate(t)
	_ = e.do(t, http.MethodPut, "/canvas/selection", map[string][]string{"ids": {"t1"}})

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- e.do(t, http.MethodPost, "/focus/promote", nil) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(e.prompts.List()) == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	list := e.prompts.List()
	if len(list) != 1 {
		t.Fatal("no prompt published")
	}
	if w := e.do(t, http.MethodDelete, "/prompts/"+list[0].ID, nil); w.Code != http.StatusNoContent {
		t.Fatalf("cancel = %d", w.Code)
	}
	w := <-done
	var resp PromoteResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if w.Code != http.StatusOK || !resp.Cancelled {
		t.Errorf("promote = %d %+v, want cancelled", w.Code, resp)
	}
}

func TestPromote_PreAnswered(t *testing.T) {
	e := newTestEnv(t, "")
	_ = os.WriteFile(filepath.Join(e.dir, "Plan.md"), []byte("taken"), 0o644)
	e.activate(t)
	_ = e.do(t, http.MethodPut, "/canvas/selection", map[string][]string{"ids": {"t1"}})

	w := e.do(t, http.MethodPost, "/focus/promote", PromoteRequest{Answers: []string{"Other"}})
	var resp PromoteResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Result == nil || resp.Result.Path != "Other.md" {
		t.Errorf("resp = %+v (%s)", resp, w.Body.String())
	}
}

func TestPromptsUnknownID(t *testing.T) {
	e := newTestEnv(t, "")
	if w := e.do(t, http.MethodPost, "/prompts/none", map[string]string{"value": "x"}); w.Code != http.StatusNotFound {
		t.Errorf("answer unknown = %d, want 404", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/prompts/none", map[string]string{"value": ""}); w.Code != http.StatusBadRequest {
		t.Errorf("empty answer = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	e := newTestEnv(t, "secret123")
	req := httptest.NewRequest(http.MethodGet, "/focus", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	e := newTestEnv(t, "secret123")
	if w := e.do(t, http.MethodGet, "/focus", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	e := newTestEnv(t, "secret123")
	req := httptest.NewRequest(http.MethodGet, "/focus", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	e := newTestEnv(t, "secret")
	if w := e.do(t, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_StreamsFocusEvents(t *testing.T) {
	e := newTestEnv(t, "")
	e.activate(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		e.router.ServeHTTP(w, req)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)

	_ = e.do(t, http.MethodPut, "/canvas/selection", map[string][]string{"ids": {"f1"}})
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := w.Body.String()
	for _, want := range []string{"event: " + sse.TypeSurfaceCreated, "event: " + sse.TypeSurfaceOpened, "event: " + sse.TypeFocusState} {
		if !bytes.Contains([]byte(body), []byte(want)) {
			t.Errorf("stream missing %q", want)
		}
	}
}

func TestAuthMiddleware_QueryToken(t *testing.T) {
	e := newTestEnv(t, "secret")
	if w := e.do(t, http.MethodGet, "/focus?access_token=secret", nil); w.Code != http.StatusOK {
		t.Errorf("query token = %d, want 200", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/focus?access_token=nope", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong query token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	e := newTestEnv(t, "")
	if w := e.do(t, http.MethodGet, "/focus", nil); w.Code != http.StatusOK {
		t.Errorf("disabled auth = %d, want 200", w.Code)
	}
}

func TestPromote_ClientGoneCountsAsCancel(t *testing.T) {
	e := newTestEnv(t, "")
	_ = os.WriteFile(filepath.Join(e.dir, "Plan.md"), []byte("taken"), 0o644)
	e.activate(t)
	_ = e.do(t, http.MethodPut, "/canvas/selection", map[string][]string{"ids": {"t1"}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/focus/promote", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		e.router.ServeHTTP(w, req)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(e.prompts.List()) == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if len(e.prompts.List()) != 1 {
		t.Fatal("no prompt published")
	}
	cancel()
	<-done

	var resp PromoteResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if w.Code != http.StatusOK || !resp.Cancelled {
		t.Errorf("promote = %d %s, want cancelled", w.Code, w.Body.String())
	}
	if st, _ := e.ctrl.State(); st.Promoting || st.Association == nil {
		t.Errorf("state after cancel = %+v", st)
	}
}

func TestPromote_WithoutPromptBroker(t *testing.T) {
	e := newTestEnv(t, "")
	_ = os.WriteFile(filepath.Join(e.dir, "Plan.md"), []byte("taken"), 0o644)
	e.activate(t)
	_ = e.do(t, http.MethodPut, "/canvas/selection", map[string][]string{"ids": {"t1"}})

	router := NewRouter(Deps{Focus: e.ctrl})
	req := httptest.NewRequest(http.MethodPost, "/focus/promote", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp PromoteResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if w.Code != http.StatusOK || !resp.Cancelled {
		t.Errorf("promote = %d %s, want cancelled", w.Code, w.Body.String())
	}
}
