package shield

import "net/http"

// HeaderConfig is the set of response headers every fluidframe page and
// fragment carries. An empty field sends no header.
type HeaderConfig struct {
	CSP                 string
	XFrameOptions       string
	XContentTypeOptions string
	ReferrerPolicy      string
	PermissionsPolicy   string
}

// DefaultHeaders allows the htmx and Tailwind CDNs the document loads, the
// inline hot reload hook and the same-origin /ws socket, and nothing else.
func DefaultHeaders() HeaderConfig {
	return HeaderConfig{
		CSP: "default-src 'self'; " +
			"script-src 'self' 'unsafe-inline' https://unpkg.com https://cdn.tailwindcss.com https://cdnjs.cloudflare.com; " +
			"style-src 'self' 'unsafe-inline' https://cdnjs.cloudflare.com; " +
			"img-src 'self' data: https:; connect-src 'self' ws: wss:; frame-ancestors 'none'",
		XFrameOptions:       "DENY",
		XContentTypeOptions: "nosniff",
		ReferrerPolicy:      "strict-origin-when-cross-origin",
		PermissionsPolicy:   "camera=(), microphone=(), geolocation=()",
	}
}

func (c HeaderConfig) pairs() [][2]string {
	all := [][2]string{
		{"X-Content-Type-Options", c.XContentTypeOptions},
		{"X-Frame-Options", c.XFrameOptions},
		{"Referrer-Policy", c.ReferrerPolicy},
		{"Content-Security-Policy", c.CSP},
		{"Permissions-Policy", c.PermissionsPolicy},
	}
	out := all[:0]
	for _, kv := range all {
		if kv[1] != "" {
			out = append(out, kv)
		}
	}
	return out
}

// SecurityHeaders sets cfg on every response before the handler runs, so
// handlers may still override a header for their own response.
func SecurityHeaders(cfg HeaderConfig) func(http.Handler) http.Handler {
	set := cfg.pairs()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range set {
				h.Set(kv[0], kv[1])
			}
			next.ServeHTTP(w, r)
		})
	}
}
