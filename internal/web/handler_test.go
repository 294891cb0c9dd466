package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/steveyegge/authcap/internal/capture"
	"github.com/steveyegge/authcap/internal/supervisor"
)

type startCall struct {
	mode   capture.Mode
	target *int
}

// fakeController records calls and returns canned results.
type fakeController struct {
	mu       sync.Mutex
	starts   []startCall
	result   supervisor.Result
	status   supervisor.Status
	cont     supervisor.Result
	canceled supervisor.Result
}

func (f *fakeController) Start(mode capture.Mode, target *int) supervisor.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, startCall{mode, target})
	return f.result
}

func (f *fakeController) Continue() supervisor.Result { return f.cont }
func (f *fakeController) Cancel() supervisor.Result   { return f.canceled }
func (f *fakeController) Status() supervisor.Status   { return f.status }

type fakeSources struct {
	indices []int
	current int
}

func (f *fakeSources) Indices() []int { return f.indices }
func (f *fakeSources) Current() (int, bool) {
	return f.current, f.current >= 0
}

func (f *fakeSources) Switch(index int) error {
	for _, i := range f.indices {
		if i == index {
			f.current = index
			return nil
		}
	}
	return fmt.Errorf("unknown auth index: %d", index)
}

func (f *fakeSources) Next() (int, error) {
	if len(f.indices) == 0 {
		return -1, errors.New("no auth sources available")
	}
	pos := 0
	for i, idx := range f.indices {
		if idx == f.current {
			pos = (i + 1) % len(f.indices)
		}
	}
	f.current = f.indices[pos]
	return f.current, nil
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) supervisor.Result {
	t.Helper()
	var res supervisor.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decoding result %q: %v", rec.Body.String(), err)
	}
	return res
}

func TestHandleStart(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantMode   capture.Mode
		wantTarget *int
	}{
		{"empty body is create", "", capture.ModeCreate, nil},
		{"create ignores index", `{"mode":"create","targetIndex":4}`, capture.ModeCreate, nil},
		{"unknown mode is create", `{"mode":"refresh"}`, capture.ModeCreate, nil},
		{"relogin number", `{"mode":"relogin","targetIndex":3}`, capture.ModeRelogin, intp(3)},
		{"relogin string", `{"mode":"relogin","targetIndex":" 7 "}`, capture.ModeRelogin, intp(7)},
		{"relogin negative passes through", `{"mode":"relogin","targetIndex":-1}`, capture.ModeRelogin, intp(-1)},
		{"relogin missing", `{"mode":"relogin"}`, capture.ModeRelogin, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &fakeController{result: supervisor.Result{OK: true, Status: 200, Message: supervisor.MsgStarted}}
			rec := do(t, NewHandler(ctrl, nil, nil), http.MethodPost, "/api/setup-auth/start", tt.body)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
			}
			if len(ctrl.starts) != 1 {
				t.Fatalf("Start called %d times", len(ctrl.starts))
			}
			got := ctrl.starts[0]
			if got.mode != tt.wantMode {
				t.Errorf("mode = %q, want %q", got.mode, tt.wantMode)
			}
			switch {
			case tt.wantTarget == nil && got.target != nil:
				t.Errorf("target = %d, want nil", *got.target)
			case tt.wantTarget != nil && (got.target == nil || *got.target != *tt.wantTarget):
				t.Errorf("target = %v, want %d", got.target, *tt.wantTarget)
			}
		})
	}
}

func intp(v int) *int { return &v }

func TestHandleStartRejectsNonIntegerIndex(t *testing.T) {
	for _, body := range []string{
		`{"mode":"relogin","targetIndex":"abc"}`,
		`{"mode":"relogin","targetIndex":1.5}`,
		`{"mode":"relogin","targetIndex":true}`,
	} {
		ctrl := &fakeController{}
		rec := do(t, NewHandler(ctrl, nil, nil), http.MethodPost, "/api/setup-auth/start", body)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", body, rec.Code)
		}
		if res := decodeResult(t, rec); res.Message != supervisor.MsgInvalidIndex || res.OK {
			t.Errorf("%s: result = %+v", body, res)
		}
		if len(ctrl.starts) != 0 {
			t.Errorf("%s: Start must not be called", body)
		}
	}
}

func TestHandleStartMalformedBody(t *testing.T) {
	ctrl := &fakeController{}
	rec := do(t, NewHandler(ctrl, nil, nil), http.MethodPost, "/api/setup-auth/start", `{"mode":`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if len(ctrl.starts) != 0 {
		t.Error("Start must not be called")
	}
}

func TestResultStatusBecomesHTTPStatus(t *testing.T) {
	ctrl := &fakeController{
		result:   supervisor.Result{Status: 409, Message: supervisor.MsgAlreadyRunning},
		cont:     supervisor.Result{Status: 409, Message: supervisor.MsgNotRunning},
		canceled: supervisor.Result{Status: 500, Message: supervisor.MsgCancelFailed, Error: "operation not permitted"},
	}
	h := NewHandler(ctrl, nil, nil)

	tests := []struct {
		path string
		code int
		msg  supervisor.Message
	}{
		{"/api/setup-auth/start", 409, supervisor.MsgAlreadyRunning},
		{"/api/setup-auth/continue", 409, supervisor.MsgNotRunning},
		{"/api/setup-auth/cancel", 500, supervisor.MsgCancelFailed},
	}
	for _, tt := range tests {
		rec := do(t, h, http.MethodPost, tt.path, "")
		if rec.Code != tt.code {
			t.Errorf("%s: status = %d, want %d", tt.path, rec.Code, tt.code)
		}
		if res := decodeResult(t, rec); res.Message != tt.msg {
			t.Errorf("%s: message = %q, want %q", tt.path, res.Message, tt.msg)
		}
	}
}

func TestHandleStatusAndSources(t *testing.T) {
	ctrl := &fakeController{status: supervisor.Status{Phase: supervisor.PhaseRunning, Running: true, PID: intp(42)}}
	h := NewHandler(ctrl, &fakeSources{indices: []int{0, 2}, current: 2}, nil)

	rec := do(t, h, http.MethodGet, "/api/setup-auth/status", "")
	var st supervisor.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if !st.Running || *st.PID != 42 || st.Phase != supervisor.PhaseRunning {
		t.Errorf("status = %+v", st)
	}

	rec = do(t, h, http.MethodGet, "/api/auth/sources", "")
	var src SourcesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &src); err != nil {
		t.Fatal(err)
	}
	if len(src.Indices) != 2 || src.Current == nil || *src.Current != 2 {
		t.Errorf("sources = %+v", src)
	}

	empty := NewHandler(ctrl, &fakeSources{current: -1}, nil)
	rec = do(t, empty, http.MethodGet, "/api/auth/sources", "")
	if got := strings.TrimSpace(rec.Body.String()); got != `{"indices":[],"current":null}` {
		t.Errorf("empty sources body = %s", got)
	}
}

func TestRouting(t *testing.T) {
	h := NewHandler(&fakeController{}, nil, nil)

	if rec := do(t, h, http.MethodGet, "/api/setup-auth/start", ""); rec.Code != http.StatusNotFound {
		t.Errorf("GET start: status = %d, want 404", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/auth/sources", ""); rec.Code != http.StatusNotFound {
		t.Errorf("sources without lister: status = %d, want 404", rec.Code)
	}
	rec := do(t, h, http.MethodOptions, "/api/setup-auth/start", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("OPTIONS: status = %d, headers %v", rec.Code, rec.Header())
	}
}

func TestWebsocketStream(t *testing.T) {
	ctrl := &fakeController{status: supervisor.Status{Phase: supervisor.PhaseIdle}}
	hub := NewHub(t.Logf)
	srv := httptest.NewServer(NewHandler(ctrl, nil, hub))
	defer srv.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/setup-auth/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	read := func() supervisor.Event {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var ev supervisor.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read: %v", err)
		}
		return ev
	}

	if ev := read(); ev.Type != EventSnapshot || ev.Status.Phase != supervisor.PhaseIdle {
		t.Errorf("first event = %+v, want snapshot", ev)
	}

	deadline := time.Now().Add(5 * time.Second)
	for hub.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	hub.Observe(supervisor.Event{Type: supervisor.EventStarted, Status: supervisor.Status{Phase: supervisor.PhaseRunning, RunID: "r1"}})

	if ev := read(); ev.Type != supervisor.EventStarted || ev.Status.RunID != "r1" {
		t.Errorf("second event = %+v, want started", ev)
	}
}

// registeringController reports how many clients the hub had when the
// snapshot was taken. It runs under the hub lock, so it reads the map directly.
type registeringController struct {
	fakeController
	hub      *Hub
	observed chan int
}

func (c *registeringController) Status() supervisor.Status {
	c.observed <- len(c.hub.clients)
	return supervisor.Status{Phase: supervisor.PhaseRunning}
}

func TestWebsocketSnapshotTakenAfterRegistration(t *testing.T) {
	hub := NewHub(t.Logf)
	ctrl := &registeringController{hub: hub, observed: make(chan int, 1)}
	srv := httptest.NewServer(NewHandler(ctrl, nil, hub))
	defer srv.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/setup-auth/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	select {
	case n := <-ctrl.observed:
		if n != 1 {
			t.Errorf("clients at snapshot time = %d, want 1", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("snapshot never taken")
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev supervisor.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != EventSnapshot || ev.Status.Phase != supervisor.PhaseRunning {
		t.Errorf("first event = %+v, want running snapshot", ev)
	}
}

func TestSwitchSource(t *testing.T) {
	sources := &fakeSources{indices: []int{0, 2, 5}, current: 0}
	h := NewHandler(&fakeController{}, sources, nil)

	decode := func(rec *httptest.ResponseRecorder) SourcesResponse {
		t.Helper()
		var resp SourcesResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode %s: %v", rec.Body.String(), err)
		}
		return resp
	}

	rec := do(t, h, http.MethodPost, "/api/auth/sources/switch", `{"index":"5"}`)
	if resp := decode(rec); rec.Code != http.StatusOK || resp.Current == nil || *resp.Current != 5 {
		t.Errorf("switch 5: status = %d, resp = %+v", rec.Code, resp)
	}

	rec = do(t, h, http.MethodPost, "/api/auth/sources/switch", "")
	if resp := decode(rec); rec.Code != http.StatusOK || *resp.Current != 0 {
		t.Errorf("next: status = %d, resp = %+v", rec.Code, resp)
	}

	rec = do(t, h, http.MethodPost, "/api/auth/sources/switch", `{"index":3}`)
	resp := decode(rec)
	if rec.Code != http.StatusConflict || resp.Error == "" || *resp.Current != 0 {
		t.Errorf("unknown index: status = %d, resp = %+v", rec.Code, resp)
	}

	for _, body := range []string{`{"index":-1}`, `{"index":"x"}`, `{`} {
		if rec := do(t, h, http.MethodPost, "/api/auth/sources/switch", body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", body, rec.Code)
		}
	}

	empty := NewHandler(&fakeController{}, &fakeSources{current: -1}, nil)
	if rec := do(t, empty, http.MethodPost, "/api/auth/sources/switch", ""); rec.Code != http.StatusConflict {
		t.Errorf("next on empty table: status = %d, want 409", rec.Code)
	}
}
