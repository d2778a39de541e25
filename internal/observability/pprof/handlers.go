package pprof

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
)

func (s *Service) routes(token, prefix string) http.Handler {
	prefix = normalizePrefix(prefix)
	root := strings.TrimSuffix(prefix, "/")

	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) { mux.Handle(pattern, requireToken(token, h)) }

	handle("/healthz", s.serveHealth)
	handle("/stats", s.serveStats)
	handle(prefix, indexAt(prefix))
	for name, h := range map[string]http.HandlerFunc{
		"cmdline": hpprof.Cmdline,
		"profile": hpprof.Profile,
		"symbol":  hpprof.Symbol,
		"trace":   hpprof.Trace,
	} {
		handle(root+"/"+name, h)
	}
	mux.Handle(root, http.RedirectHandler(prefix, http.StatusPermanentRedirect))
	return mux
}

func (s *Service) serveHealth(w http.ResponseWriter, _ *http.Request) {
	ok, state := true, "ok"
	if s.health != nil {
		ok, state = s.health()
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_, _ = w.Write([]byte(state))
}

func (s *Service) serveStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(s.stats())
}

// requireToken accepts "Authorization: Bearer <token>" or ?token=<token>.
// An empty token disables the check.
func requireToken(token string, next http.Handler) http.Handler {
	want := []byte(strings.TrimSpace(token))
	if len(want) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.URL.Query().Get("token")
		if got == "" {
			if v, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
				got = strings.TrimSpace(v)
			}
		}
		if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func normalizePrefix(prefix string) string {
	p := strings.Trim(strings.TrimSpace(prefix), "/")
	if p == "" {
		return defaultPrefix
	}
	return "/" + p + "/"
}

// indexAt serves pprof.Index under prefix. Index only resolves profile names
// below /debug/pprof/, so the path is rewritten.
func indexAt(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r2 := r.Clone(r.Context())
		r2.URL.Path = defaultPrefix + strings.TrimPrefix(r.URL.Path, prefix)
		hpprof.Index(w, r2)
	}
}
