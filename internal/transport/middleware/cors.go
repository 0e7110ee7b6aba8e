package middleware

import (
	"net/http"
	"strings"
)

// CORS builds a middleware allowing the configured origins. An empty list or
// a "*" entry allows any origin.
func CORS(allowedOrigins string) func(http.Handler) http.Handler {
	allowAll := allowedOrigins == "" || allowedOrigins == "*"

	origins := make(map[string]struct{})
	for _, o := range strings.Split(allowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins[o] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if _, ok := origins[origin]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, PUT, PATCH, POST, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Api-Key, X-Trace-ID")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
