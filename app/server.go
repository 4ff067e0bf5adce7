package app

import (
	"context"
	"io"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/fluidframe/component"
	"github.com/hazyhaar/fluidframe/shield"
	"github.com/hazyhaar/fluidframe/watch"
)

// Handler returns the HTTP handler serving the document at GET /, every
// registered event route, the embedded /public/ assets, the optional
// /dist/ build output and, with reload on, the /ws socket.
//
// Event routes are looked up per request, so bindings made after Handler
// is called are served too.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	for _, mw := range shield.DefaultStack() {
		r.Use(mw)
	}
	if a.sessions != nil {
		r.Use(a.sessions.Middleware)
	}

	r.Get("/", a.serveDocument)
	if a.reload {
		r.Handle(reloadPath, a.hub.Handler())
	}

	public, err := fs.Sub(publicFiles, "public")
	if err != nil {
		panic(err) // embedded directory is always present
	}
	r.Handle(publicPrefix+"*", http.StripPrefix(publicPrefix, http.FileServer(http.FS(public))))
	if a.distDir != "" {
		r.Handle(distPrefix+"*", http.StripPrefix(distPrefix, http.FileServer(http.Dir(a.distDir))))
	}

	r.Group(func(r chi.Router) {
		if a.limiter != nil {
			r.Use(a.limiter.Middleware)
		}
		if a.events != nil {
			r.Use(a.recordEvents)
		}
		r.Get("/*", a.serveEvent)
	})
	return r
}

func (a *App) serveDocument(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := io.WriteString(w, a.Render()); err != nil {
		shield.GetLogger(r.Context()).Warn("app: write document", "error", err)
	}
}

func (a *App) serveEvent(w http.ResponseWriter, r *http.Request) {
	log := shield.GetLogger(r.Context())
	h, ok := a.route(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	// Handlers change state; only the hypermedia client's GET runs them.
	if shield.IsHead(r) {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp, err := h(r.Context())
	if err != nil {
		log.Error("app: event handler failed", "route", r.URL.Path, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if f, ok := resp.(component.Fragment); ok && a.policy != nil {
		resp = component.Fragment(a.policy.Sanitize(string(f)))
	}
	if err := resp.Respond(w, r); err != nil {
		log.Warn("app: write response", "route", r.URL.Path, "error", err)
	}
}

func (a *App) recordEvents(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := a.route(r.URL.Path); !ok {
			next.ServeHTTP(w, r)
			return
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		a.events.RecordEvent(r.URL.Path, status, time.Since(start))
	})
}

// HotReload polls detect and tells connected browsers to reload after each
// change. It blocks until ctx is cancelled, then closes the sockets.
func (a *App) HotReload(ctx context.Context, detect watch.ChangeDetector, opts watch.Options) {
	if opts.Logger == nil {
		opts.Logger = a.log
	}
	w := watch.New(detect, opts)
	w.OnChange(ctx, func() error {
		n := a.hub.Broadcast(reloadMessage)
		a.log.Info("app: reload pushed", "clients", n)
		return nil
	})
	a.hub.Close()
}
