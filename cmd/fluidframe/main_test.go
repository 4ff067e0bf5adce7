package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/fluidframe/app"
	"github.com/hazyhaar/fluidframe/dbopen"
	"github.com/hazyhaar/fluidframe/observability"
	"github.com/hazyhaar/fluidframe/state"
)

// chdir moves into a fresh directory for the duration of the test so the
// CLI sees no fluidframe.yaml and no build directory.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestRun_Usage(t *testing.T) {
	chdir(t)
	var out bytes.Buffer
	if code := run(context.Background(), nil, &out); code != 1 {
		t.Fatalf("no args: exit %d", code)
	}
	if !strings.Contains(out.String(), "fluidframe init <project_name>") {
		t.Fatalf("usage not printed: %q", out.String())
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	chdir(t)
	var out bytes.Buffer
	if code := run(context.Background(), []string{"deploy"}, &out); code != 1 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(out.String(), "unknown command: deploy") {
		t.Fatalf("output: %q", out.String())
	}
}

func TestRun_MissingArguments(t *testing.T) {
	chdir(t)
	for _, cmd := range []string{"init", "install"} {
		var out bytes.Buffer
		if code := run(context.Background(), []string{cmd}, &out); code != 1 {
			t.Errorf("%s without argument: exit %d", cmd, code)
		}
	}
}

func TestRun_InstallWithoutProjectIsLogged(t *testing.T) {
	chdir(t)
	var out bytes.Buffer
	if code := run(context.Background(), []string{"install", "htmx.org"}, &out); code != 0 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(out.String(), "install failed") {
		t.Fatalf("failure not logged: %q", out.String())
	}
}

func TestRun_BuildWithoutProjectIsLogged(t *testing.T) {
	chdir(t)
	var out bytes.Buffer
	if code := run(context.Background(), []string{"build_tailwind"}, &out); code != 0 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(out.String(), "tailwind build failed") {
		t.Fatalf("failure not logged: %q", out.String())
	}
}

func TestRun_BadConfig(t *testing.T) {
	dir := chdir(t)
	if err := os.WriteFile(filepath.Join(dir, "fluidframe.yaml"), []byte("nonsense: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if code := run(context.Background(), []string{"build_tailwind"}, &out); code != 1 {
		t.Fatalf("exit %d", code)
	}
}

func TestLoadLayout(t *testing.T) {
	dir := chdir(t)
	p := filepath.Join(dir, "page.yaml")
	body := "- kind: text\n  body: from a layout file\n"
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	a := newTestApp()
	if err := loadLayout(a, p); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(a.Render(), "from a layout file") {
		t.Fatal("layout components not rendered")
	}
	if err := loadLayout(a, filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("expected error for a missing layout")
	}
}

func TestJanitor_Sweep(t *testing.T) {
	ctx := context.Background()
	db := dbopen.OpenMemory(t)
	store, err := state.NewStore(db)
	if err != nil {
		t.Fatal(err)
	}
	metrics, err := observability.NewMetrics(db, 100, time.Hour, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { metrics.Close() })

	if err := store.Set(ctx, "s1", "clicks", 3); err != nil {
		t.Fatal(err)
	}
	metrics.RecordEvent("/b/click", 200, time.Millisecond)
	metrics.Flush()

	j := &janitor{store: store, stateRetention: 7 * 24 * time.Hour, metrics: metrics, metricsRetention: 24 * time.Hour}

	// Nothing is old enough yet.
	j.sweep(ctx, time.Now())
	var n int
	if ok, err := store.Get(ctx, "s1", "clicks", &n); err != nil || !ok {
		t.Fatalf("fresh state expired: ok=%v err=%v", ok, err)
	}

	j.sweep(ctx, time.Now().Add(8*24*time.Hour))
	if ok, err := store.Get(ctx, "s1", "clicks", &n); err != nil || ok {
		t.Fatalf("stale state kept: ok=%v err=%v", ok, err)
	}
	left, err := metrics.Query(ctx, "", time.Time{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Fatalf("stale metrics kept: %d", len(left))
	}
}

func TestJanitor_ZeroRetentionKeeps(t *testing.T) {
	ctx := context.Background()
	store, err := state.NewStore(dbopen.OpenMemory(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Set(ctx, "s1", "k", "v"); err != nil {
		t.Fatal(err)
	}
	(&janitor{store: store}).sweep(ctx, time.Now().Add(365*24*time.Hour))
	var v string
	if ok, _ := store.Get(ctx, "s1", "k", &v); !ok {
		t.Fatal("state removed with retention disabled")
	}
}

func TestJanitor_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		(&janitor{}).run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop")
	}
}

func newTestApp() *app.App { return app.New(app.WithReload(false)) }
