// Package app is the root of a fluidframe component tree. It owns the
// top-level components and the table of event routes their bindings
// register, renders the full HTML document and serves both over HTTP.
//
//	a := app.New(app.WithTitle("Counter"))
//	header := a.Child(component.Must(component.New(component.Header{Title: "0"})))
//	http.ListenAndServe(":8000", a.Handler())
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/fluidframe/component"
	"github.com/hazyhaar/fluidframe/session"
	"github.com/hazyhaar/fluidframe/shield"
)

// ErrInvalidRoute is returned by AddEventRoute for paths the app cannot
// serve as event routes.
var ErrInvalidRoute = errors.New("app: invalid event route")

// DefaultTitle is the document title when none is configured.
const DefaultTitle = "Fluidframe App"

// BodyClass is the class attribute of the document body.
const BodyClass = "relative dark:bg-gray-800 bg-white text-sm text-gray-900 dark: text-white"

// Paths the app serves itself; event routes may not shadow them.
const (
	publicPrefix  = "/public/"
	distPrefix    = "/dist/"
	reloadPath    = "/ws"
	hotReloadPath = "/public/scripts/hot_reload.js"
)

// DefaultScripts are the scripts loaded by every page unless replaced.
var DefaultScripts = []string{
	"/public/scripts/dependency_manager.js",
	"https://cdnjs.cloudflare.com/ajax/libs/htmx/2.0.2/htmx.min.js",
}

// DefaultStyles are the stylesheets linked by every page unless replaced.
var DefaultStyles = []string{
	"https://cdnjs.cloudflare.com/ajax/libs/tailwindcss/2.2.19/tailwind.min.css",
}

// App is the tree root. It implements component.Parent and
// component.RouteRegistrar.
type App struct {
	component.Tree

	title    string
	reload   bool
	scripts  []string
	styles   []string
	distDir  string
	sessions *session.Manager
	policy   *bluemonday.Policy
	limiter  *shield.RateLimiter
	events   EventRecorder
	log      *slog.Logger
	hub      *Hub

	mu     sync.RWMutex
	routes map[string]component.Handler
}

// EventRecorder receives the outcome of every served event route.
type EventRecorder interface {
	RecordEvent(route string, status int, d time.Duration)
}

// Option configures an App.
type Option func(*App)

// WithTitle sets the document title.
func WithTitle(title string) Option { return func(a *App) { a.title = title } }

// WithReload toggles the hot reload script and socket. Default: on.
func WithReload(on bool) Option { return func(a *App) { a.reload = on } }

// WithScripts replaces the script URLs loaded in the document head.
func WithScripts(src ...string) Option { return func(a *App) { a.scripts = slices.Clone(src) } }

// WithStyles replaces the stylesheet URLs linked in the document head.
func WithStyles(href ...string) Option { return func(a *App) { a.styles = slices.Clone(href) } }

// WithDistDir serves dir (the Tailwind build output) under /dist/.
func WithDistDir(dir string) Option { return func(a *App) { a.distDir = dir } }

// WithSessions resolves a browser session for every request.
func WithSessions(m *session.Manager) Option { return func(a *App) { a.sessions = m } }

// WithSanitizer passes Fragment responses through p before they are
// written. FragmentPolicy returns a policy that keeps framework markup.
func WithSanitizer(p *bluemonday.Policy) Option { return func(a *App) { a.policy = p } }

// WithRateLimiter applies rl to event routes.
func WithRateLimiter(rl *shield.RateLimiter) Option { return func(a *App) { a.limiter = rl } }

// WithEventRecorder reports each event route's status and duration to rec.
func WithEventRecorder(rec EventRecorder) Option { return func(a *App) { a.events = rec } }

// WithLogger sets the logger used outside request scope.
func WithLogger(l *slog.Logger) Option { return func(a *App) { a.log = l } }

// New returns an empty App.
func New(opts ...Option) *App {
	a := &App{
		title:   DefaultTitle,
		reload:  true,
		scripts: slices.Clone(DefaultScripts),
		styles:  slices.Clone(DefaultStyles),
		log:     slog.Default(),
		routes:  make(map[string]component.Handler),
	}
	for _, o := range opts {
		o(a)
	}
	a.hub = NewHub(a.log)
	return a
}

// Child attaches c as a top-level component and returns it.
func (a *App) Child(c *component.Component) *component.Component {
	return component.Attach(a, c)
}

// AddEventRoute registers h to answer GET path. Registering a path again
// replaces its handler.
func (a *App) AddEventRoute(path string, h component.Handler) error {
	if h == nil {
		return component.ErrNilHandler
	}
	switch {
	case path == "" || path[0] != '/':
		return fmt.Errorf("%w: %q must start with /", ErrInvalidRoute, path)
	case path == "/" || path == reloadPath ||
		strings.HasPrefix(path, publicPrefix) || strings.HasPrefix(path, distPrefix):
		return fmt.Errorf("%w: %q is reserved", ErrInvalidRoute, path)
	}

	a.mu.Lock()
	_, replaced := a.routes[path]
	a.routes[path] = h
	a.mu.Unlock()

	a.log.Debug("app: event route registered", "path", path, "replaced", replaced)
	return nil
}

// Routes returns a snapshot of the event route table.
func (a *App) Routes() map[string]component.Handler {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return maps.Clone(a.routes)
}

func (a *App) route(path string) (component.Handler, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	h, ok := a.routes[path]
	return h, ok
}

// Hub returns the hot reload socket hub.
func (a *App) Hub() *Hub { return a.hub }
