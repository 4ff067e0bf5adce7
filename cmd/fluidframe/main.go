package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/fluidframe/app"
	"github.com/hazyhaar/fluidframe/component"
	"github.com/hazyhaar/fluidframe/config"
	"github.com/hazyhaar/fluidframe/dbopen"
	"github.com/hazyhaar/fluidframe/demo"
	"github.com/hazyhaar/fluidframe/node"
	"github.com/hazyhaar/fluidframe/observability"
	"github.com/hazyhaar/fluidframe/session"
	"github.com/hazyhaar/fluidframe/shield"
	"github.com/hazyhaar/fluidframe/state"
	"github.com/hazyhaar/fluidframe/watch"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	cancel()
	os.Exit(code)
}

// run executes one CLI command. Usage errors return 1. Failures of the
// external toolchain or the server are logged and return 0.
func run(ctx context.Context, args []string, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	cfg, err := config.LoadConfig(env("FLUIDFRAME_CONFIG", config.DefaultPath))
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	logger, closeLog, err := cfg.Logger(stderr)
	if err != nil {
		fmt.Fprintf(stderr, "logger: %v\n", err)
		return 1
	}
	defer closeLog()
	slog.SetDefault(logger)

	project := &node.Project{
		BuildDir: cfg.BuildDir,
		SrcDir:   cfg.SrcDir,
		Safelist: append(component.DefaultClasses(), strings.Fields(app.BodyClass)...),
		Log:      logger,
	}

	switch args[0] {
	case "init":
		if len(args) < 2 {
			fmt.Fprintln(stderr, "init requires a project name")
			return 1
		}
		cmdInit(ctx, project, args[1])
	case "install":
		if len(args) < 2 {
			fmt.Fprintln(stderr, "install requires a package name")
			return 1
		}
		if err := project.Install(ctx, args[1]); err != nil {
			slog.Error("install failed", "package", args[1], "error", err)
			return 0
		}
		slog.Info("package installed", "package", args[1])
	case "watch":
		if err := project.BuildCSS(ctx, true); err != nil && ctx.Err() == nil {
			slog.Error("tailwind watch failed", "error", err)
		}
		slog.Info("tailwind watch stopped")
	case "build_tailwind":
		if err := project.BuildCSS(ctx, false); err != nil {
			slog.Error("tailwind build failed", "error", err)
			return 0
		}
		slog.Info("tailwind build complete", "output", project.DistDir())
	case "serve":
		if err := cmdServe(ctx, cfg, project, args[1:]); err != nil {
			slog.Error("serve failed", "error", err)
		}
	case "help", "-h", "--help":
		printUsage(stderr)
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `fluidframe: server-rendered htmx components

usage:
  fluidframe init <project_name>
  fluidframe install <package_name>
  fluidframe watch
  fluidframe build_tailwind
  fluidframe serve [layout.yaml]

init            Creates the build and source directories, package.json,
                tailwind.config.js and input.css, then installs and builds.
install         Runs npm install <package_name> in the build directory.
watch           Rebuilds dist/output.css on every change.
build_tailwind  Builds dist/output.css once.
serve           Serves the example app, plus the components of layout.yaml.

Configuration is read from fluidframe.yaml (or $FLUIDFRAME_CONFIG) and
FLUIDFRAME_* environment variables.
`)
}

func cmdInit(ctx context.Context, project *node.Project, name string) {
	if err := project.CheckInstalled(ctx); err != nil {
		slog.Error("init aborted", "error", err)
		return
	}
	slog.Info("initializing project", "name", name)
	if err := project.Init(ctx, name); err != nil {
		slog.Error("init failed", "name", name, "error", err)
		return
	}
	slog.Info("project initialized, run 'fluidframe build_tailwind' to rebuild the CSS", "name", name)
}

func cmdServe(ctx context.Context, cfg *config.Config, project *node.Project, args []string) error {
	db, err := dbopen.Open(cfg.StateDB, dbopen.WithMkdirAll())
	if err != nil {
		return err
	}
	defer db.Close()
	store, err := state.NewStore(db)
	if err != nil {
		return err
	}

	if cfg.SessionSecret == "" {
		slog.Warn("session_secret not set, sessions will not survive a restart")
	}
	sessions, err := session.NewManager(cfg.SessionKey(), session.WithSecure(cfg.SecureCookies))
	if err != nil {
		return err
	}

	opts := []app.Option{
		app.WithTitle(cfg.Title),
		app.WithReload(cfg.Reload),
		app.WithScripts(cfg.Scripts...),
		app.WithStyles(cfg.Styles...),
		app.WithSessions(sessions),
		app.WithLogger(slog.Default()),
	}
	if info, err := os.Stat(project.DistDir()); err == nil && info.IsDir() {
		opts = append(opts, app.WithDistDir(project.DistDir()))
	}
	if cfg.SanitizeFragments {
		opts = append(opts, app.WithSanitizer(app.FragmentPolicy()))
	}
	if cfg.RateLimit.MaxRequests > 0 {
		rl := shield.NewRateLimiter(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
		rl.StartGC(ctx.Done(), 5*time.Minute)
		opts = append(opts, app.WithRateLimiter(rl))
	}
	j := &janitor{store: store, stateRetention: cfg.StateRetention}
	if cfg.Metrics.Enabled {
		metrics, err := observability.NewMetrics(db, 100, 5*time.Second, slog.Default())
		if err != nil {
			return err
		}
		defer metrics.Close()
		j.metrics, j.metricsRetention = metrics, cfg.Metrics.Retention
		opts = append(opts, app.WithEventRecorder(metrics))
	}
	go j.run(ctx, time.Hour)
	a := app.New(opts...)

	if _, err := demo.Build(a, store); err != nil {
		return err
	}
	if len(args) > 0 {
		if err := loadLayout(a, args[0]); err != nil {
			return err
		}
	}

	if cfg.Reload {
		dir := cfg.WatchDir()
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			go a.HotReload(ctx, watch.DirFingerprint(dir, cfg.Watch.Extensions...), watch.Options{
				Interval: cfg.Watch.Interval,
				Debounce: cfg.Watch.Debounce,
			})
		} else {
			slog.Info("hot reload watcher disabled, directory not found", "dir", dir)
		}
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("fluidframe listening", "addr", "http://"+cfg.Listen, "routes", len(a.Routes()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	a.Hub().Close()
	slog.Info("server stopped")
	return nil
}

// janitor drops session state and metric datapoints older than their
// retention. A zero retention keeps everything.
type janitor struct {
	store            *state.Store
	stateRetention   time.Duration
	metrics          *observability.Metrics
	metricsRetention time.Duration
}

// run sweeps once, then every interval until ctx is done.
func (j *janitor) run(ctx context.Context, interval time.Duration) {
	j.sweep(ctx, time.Now())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			j.sweep(ctx, now)
		}
	}
}

func (j *janitor) sweep(ctx context.Context, now time.Time) {
	if j.store != nil && j.stateRetention > 0 {
		n, err := j.store.Expire(ctx, now.Add(-j.stateRetention))
		switch {
		case err != nil:
			slog.Warn("session state expiry", "error", err)
		case n > 0:
			slog.Debug("session state expired", "rows", n)
		}
	}
	if j.metrics != nil && j.metricsRetention > 0 {
		n, err := j.metrics.Cleanup(ctx, now.Add(-j.metricsRetention))
		switch {
		case err != nil:
			slog.Warn("metrics cleanup", "error", err)
		case n > 0:
			slog.Debug("metrics pruned", "rows", n)
		}
	}
}

func loadLayout(a *app.App, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	l, err := component.LoadLayout(f, a)
	if err != nil {
		return fmt.Errorf("layout %s: %w", path, err)
	}
	slog.Info("layout loaded", "path", path, "components", len(l.Components))
	return nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
