package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/net/html"
	"golang.org/x/net/websocket"

	"github.com/hazyhaar/fluidframe/component"
	"github.com/hazyhaar/fluidframe/horosafe"
	"github.com/hazyhaar/fluidframe/idgen"
	"github.com/hazyhaar/fluidframe/kit"
	"github.com/hazyhaar/fluidframe/session"
	"github.com/hazyhaar/fluidframe/shield"
	"github.com/hazyhaar/fluidframe/tags"
	"github.com/hazyhaar/fluidframe/watch"
)

func mustNew(t *testing.T, w component.Widget, opts ...component.Option) *component.Component {
	t.Helper()
	c, err := component.New(w, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRender_Document(t *testing.T) {
	a := New(WithTitle("T"), WithReload(false), WithScripts("/a.js"), WithStyles("/s.css"))
	want := `<!DOCTYPE html><html lang="en"><head><title>T</title><meta charset="UTF-8"/>` +
		`<script src="/a.js"></script><link href="/s.css" rel="stylesheet"/></head>` +
		`<body class="relative dark:bg-gray-800 bg-white text-sm text-gray-900 dark: text-white">` +
		`<div id="root"></div></body></html>`
	if got := a.Render(); got != want {
		t.Fatalf("Render:\n got %s\nwant %s", got, want)
	}
}

func TestRender_Defaults(t *testing.T) {
	out := New().Render()
	for _, want := range []string{
		"<title>Fluidframe App</title>",
		`<script src="/public/scripts/dependency_manager.js"></script>`,
		`<script src="https://cdnjs.cloudflare.com/ajax/libs/htmx/2.0.2/htmx.min.js"></script>`,
		`<script src="/public/scripts/hot_reload.js"></script>`,
		`<link href="https://cdnjs.cloudflare.com/ajax/libs/tailwindcss/2.2.19/tailwind.min.css" rel="stylesheet"/>`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("document missing %s", want)
		}
	}
	// Scripts come before the hot reload script, stylesheets after it.
	if strings.Index(out, "htmx.min.js") > strings.Index(out, "hot_reload.js") ||
		strings.Index(out, "hot_reload.js") > strings.Index(out, "tailwind.min.css") {
		t.Fatalf("head order wrong: %s", out)
	}
}

func TestRender_ChildrenInRoot(t *testing.T) {
	reg := idgen.NewRegistry(nil)
	a := New(WithReload(false))
	a.Child(mustNew(t, component.Header{Title: "one"}, component.WithKey("h"), component.WithRegistry(reg)))
	a.Child(mustNew(t, component.Text{Body: "two"}, component.WithKey("t"), component.WithRegistry(reg)))

	doc, err := html.Parse(strings.NewReader(a.Render()))
	if err != nil {
		t.Fatal(err)
	}
	root := tags.Find(doc, tags.ByID("root"))
	if root == nil {
		t.Fatal("no #root")
	}
	var ids []string
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		id, _ := tags.GetAttr(c, "id")
		ids = append(ids, id)
	}
	if strings.Join(ids, ",") != "h,t" {
		t.Fatalf("root children: %v", ids)
	}
}

func TestAddEventRoute_Validation(t *testing.T) {
	a := New()
	h := component.String(func(context.Context) string { return "" })
	for _, p := range []string{"", "x/click", "/", "/ws", "/public/x", "/dist/output.css"} {
		if err := a.AddEventRoute(p, h); !errors.Is(err, ErrInvalidRoute) {
			t.Errorf("AddEventRoute(%q): expected ErrInvalidRoute, got %v", p, err)
		}
	}
	if err := a.AddEventRoute("/b/click", nil); !errors.Is(err, component.ErrNilHandler) {
		t.Fatalf("nil handler: %v", err)
	}
	if len(a.Routes()) != 0 {
		t.Fatalf("rejected routes were stored: %v", a.Routes())
	}
}

func TestAddEventRoute_Replace(t *testing.T) {
	a := New()
	a.AddEventRoute("/b/click", component.String(func(context.Context) string { return "first" }))
	a.AddEventRoute("/b/click", component.String(func(context.Context) string { return "second" }))
	if len(a.Routes()) != 1 {
		t.Fatalf("routes: %d", len(a.Routes()))
	}
	if body := get(t, a.Handler(), "/b/click").Body.String(); body != "second" {
		t.Fatalf("body: %q", body)
	}
}

func TestHandler_Document(t *testing.T) {
	h := New().Handler()
	rec := get(t, h, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Fatalf("content type: %q", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "<!DOCTYPE html>") {
		t.Fatalf("body: %q", rec.Body.String())
	}
	if rec.Header().Get("X-Trace-ID") == "" {
		t.Fatal("shield stack not applied")
	}

	head := httptest.NewRecorder()
	h.ServeHTTP(head, httptest.NewRequest(http.MethodHead, "/", nil))
	if head.Code != http.StatusOK {
		t.Fatalf("HEAD: %d", head.Code)
	}
}

func TestHandler_BoundEvent(t *testing.T) {
	a := New()
	header := a.Child(mustNew(t, component.Header{Title: "0"}))
	btn := a.Child(mustNew(t, component.Button{Label: "+"}))
	var n atomic.Int64
	err := btn.OnChange(component.Binding{Trigger: "click", Targets: []*component.Component{header}, Swap: "innerHTML"},
		component.String(func(context.Context) string {
			return "clicked " + strconv.FormatInt(n.Add(1), 10)
		}))
	if err != nil {
		t.Fatal(err)
	}

	h := a.Handler()
	rec := get(t, h, "/"+btn.ID()+"/click")
	if rec.Code != http.StatusOK || rec.Body.String() != "clicked 1" {
		t.Fatalf("event: %d %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Fatalf("content type: %q", ct)
	}

	// The document carries the binding.
	if !strings.Contains(get(t, h, "/").Body.String(), `hx-get="/`+btn.ID()+`/click"`) {
		t.Fatal("document does not carry hx-get")
	}
}

func TestHandler_HeadSkipsEventHandler(t *testing.T) {
	a := New()
	var calls atomic.Int64
	a.AddEventRoute("/b/click", component.String(func(context.Context) string {
		calls.Add(1)
		return "ok"
	}))
	h := a.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/b/click", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("HEAD event: %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != http.MethodGet {
		t.Fatalf("Allow: %q", allow)
	}
	if calls.Load() != 0 {
		t.Fatalf("handler ran %d times on HEAD", calls.Load())
	}
	if rec := get(t, h, "/b/click"); rec.Code != http.StatusOK || calls.Load() != 1 {
		t.Fatalf("GET event: %d, calls=%d", rec.Code, calls.Load())
	}
}

func TestHandler_EventErrors(t *testing.T) {
	a := New()
	a.AddEventRoute("/fail/click", func(context.Context) (component.Responder, error) {
		return nil, errors.New("boom")
	})
	a.AddEventRoute("/empty/click", func(context.Context) (component.Responder, error) {
		return nil, nil
	})
	h := a.Handler()

	if rec := get(t, h, "/fail/click"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("failing handler: %d", rec.Code)
	}
	if rec := get(t, h, "/empty/click"); rec.Code != http.StatusNoContent {
		t.Fatalf("nil responder: %d", rec.Code)
	}
	if rec := get(t, h, "/nope/click"); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown route: %d", rec.Code)
	}
}

func TestHandler_FullResponder(t *testing.T) {
	a := New()
	a.AddEventRoute("/json/click", func(context.Context) (component.Responder, error) {
		return component.ResponderFunc(func(w http.ResponseWriter, r *http.Request) error {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("HX-Trigger", "saved")
			w.WriteHeader(http.StatusAccepted)
			_, err := io.WriteString(w, `{"ok":true}`)
			return err
		}), nil
	})
	rec := get(t, a.Handler(), "/json/click")
	if rec.Code != http.StatusAccepted || rec.Body.String() != `{"ok":true}` || rec.Header().Get("HX-Trigger") != "saved" {
		t.Fatalf("responder: %d %q %v", rec.Code, rec.Body.String(), rec.Header())
	}
}

func TestHandler_Sanitize(t *testing.T) {
	a := New(WithSanitizer(FragmentPolicy()))
	a.AddEventRoute("/x/click", component.String(func(context.Context) string {
		return `<div id="a" class="m-5" hx-get="/x/click" onclick="evil()">ok<script>alert(1)</script></div>`
	}))
	body := get(t, a.Handler(), "/x/click").Body.String()
	for _, bad := range []string{"<script", "onclick", "alert"} {
		if strings.Contains(body, bad) {
			t.Errorf("sanitised fragment still contains %q: %s", bad, body)
		}
	}
	for _, good := range []string{`id="a"`, `class="m-5"`, `hx-get="/x/click"`, "ok"} {
		if !strings.Contains(body, good) {
			t.Errorf("sanitised fragment lost %q: %s", good, body)
		}
	}
}

func TestHandler_PublicAssets(t *testing.T) {
	h := New().Handler()
	for _, p := range []string{"/public/scripts/dependency_manager.js", "/public/scripts/hot_reload.js"} {
		rec := get(t, h, p)
		if rec.Code != http.StatusOK || rec.Body.Len() == 0 {
			t.Errorf("%s: %d", p, rec.Code)
		}
	}
}

func TestHandler_DistDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "output.css"), []byte("body{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	h := New(WithDistDir(dir)).Handler()
	rec := get(t, h, "/dist/output.css")
	if rec.Code != http.StatusOK || rec.Body.String() != "body{}" {
		t.Fatalf("dist: %d %q", rec.Code, rec.Body.String())
	}
}

func TestHandler_Sessions(t *testing.T) {
	m, err := session.NewManager([]byte(strings.Repeat("k", horosafe.MinSecretLen)))
	if err != nil {
		t.Fatal(err)
	}
	a := New(WithSessions(m))
	a.AddEventRoute("/who/click", component.String(kit.GetSessionID))

	rec := get(t, a.Handler(), "/who/click")
	if rec.Body.String() == "" {
		t.Fatal("handler saw no session id")
	}
	var found bool
	for _, c := range rec.Result().Cookies() {
		found = found || c.Name == session.CookieName
	}
	if !found {
		t.Fatal("session cookie not set")
	}
}

func TestHandler_RateLimitsEventsOnly(t *testing.T) {
	a := New(WithRateLimiter(shield.NewRateLimiter(1, time.Minute)))
	a.AddEventRoute("/b/click", component.String(func(context.Context) string { return "ok" }))
	h := a.Handler()

	if rec := get(t, h, "/b/click"); rec.Code != http.StatusOK {
		t.Fatalf("first event: %d", rec.Code)
	}
	if rec := get(t, h, "/b/click"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second event: %d", rec.Code)
	}
	for i := 0; i < 3; i++ {
		if rec := get(t, h, "/"); rec.Code != http.StatusOK {
			t.Fatalf("document must not be limited: %d", rec.Code)
		}
	}
}

type eventLog struct {
	routes   []string
	statuses []int
}

func (l *eventLog) RecordEvent(route string, status int, _ time.Duration) {
	l.routes = append(l.routes, route)
	l.statuses = append(l.statuses, status)
}

func TestHandler_RecordsEvents(t *testing.T) {
	var log eventLog
	a := New(WithEventRecorder(&log))
	a.AddEventRoute("/ok/click", component.String(func(context.Context) string { return "ok" }))
	a.AddEventRoute("/fail/click", func(context.Context) (component.Responder, error) {
		return nil, errors.New("boom")
	})
	h := a.Handler()
	get(t, h, "/ok/click")
	get(t, h, "/fail/click")
	get(t, h, "/")
	get(t, h, "/unknown/click")

	if diff := cmp.Diff([]string{"/ok/click", "/fail/click"}, log.routes); diff != "" {
		t.Fatalf("routes (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{http.StatusOK, http.StatusInternalServerError}, log.statuses); diff != "" {
		t.Fatalf("statuses (-want +got):\n%s", diff)
	}
}

func dialReload(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	host := strings.TrimPrefix(srv.URL, "http://")
	ws, err := websocket.Dial("ws://"+host+"/ws", "", srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func receive(t *testing.T, ws *websocket.Conn) string {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg string
	if err := websocket.Message.Receive(ws, &msg); err != nil {
		t.Fatal(err)
	}
	return msg
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Len() != n {
		if time.Now().After(deadline) {
			t.Fatalf("hub has %d clients, want %d", h.Len(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestReloadSocket_PingBroadcast(t *testing.T) {
	a := New()
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	ws := dialReload(t, srv)
	if err := websocket.Message.Send(ws, "ping"); err != nil {
		t.Fatal(err)
	}
	if got := receive(t, ws); got != "pong" {
		t.Fatalf("got %q, want pong", got)
	}

	waitClients(t, a.Hub(), 1)
	if n := a.Hub().Broadcast("reload"); n != 1 {
		t.Fatalf("broadcast reached %d clients", n)
	}
	if got := receive(t, ws); got != "reload" {
		t.Fatalf("got %q, want reload", got)
	}

	ws.Close()
	waitClients(t, a.Hub(), 0)
}

func TestReloadSocket_CrossOrigin(t *testing.T) {
	srv := httptest.NewServer(New().Handler())
	defer srv.Close()
	host := strings.TrimPrefix(srv.URL, "http://")
	if _, err := websocket.Dial("ws://"+host+"/ws", "", "http://evil.example"); err == nil {
		t.Fatal("cross-origin socket accepted")
	}
}

func TestReloadSocket_DisabledWithoutReload(t *testing.T) {
	if rec := get(t, New(WithReload(false)).Handler(), "/ws"); rec.Code != http.StatusNotFound {
		t.Fatalf("/ws with reload off: %d", rec.Code)
	}
}

func TestHotReload_PushesOnChange(t *testing.T) {
	a := New()
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()
	ws := dialReload(t, srv)
	waitClients(t, a.Hub(), 1)

	var version atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.HotReload(ctx, func(context.Context) (int64, error) { return version.Load(), nil },
			watch.Options{Interval: 5 * time.Millisecond})
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	version.Store(1)
	if got := receive(t, ws); got != "reload" {
		t.Fatalf("got %q, want reload", got)
	}

	cancel()
	<-done
	if a.Hub().Len() != 0 {
		t.Fatal("sockets not closed on shutdown")
	}
}
