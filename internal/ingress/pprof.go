package ingress

import (
	"net/http"
	hpprof "net/http/pprof"
	"strings"

	logx "biteiq/pkg/logx"
)

// mountPprof adds the profiling endpoints. They are never mounted without a
// token because this mux faces the internet.
func (s *Service) mountPprof(mux *http.ServeMux) {
	pc := s.cfg.Pprof
	if !pc.Enabled {
		return
	}
	tok := strings.TrimSpace(pc.Token)
	if tok == "" {
		s.log.Warn("pprof not mounted: token required on the public listener")
		return
	}

	prefix := normalizePrefix(pc.Prefix)
	base := strings.TrimSuffix(prefix, "/")
	wrap := func(h http.HandlerFunc) http.HandlerFunc { return withAuth(tok, h) }

	mux.HandleFunc("GET "+prefix, wrap(pprofIndexAt(prefix)))
	mux.HandleFunc("GET "+base+"/cmdline", wrap(hpprof.Cmdline))
	mux.HandleFunc("GET "+base+"/profile", wrap(hpprof.Profile))
	mux.HandleFunc(base+"/symbol", wrap(hpprof.Symbol))
	mux.HandleFunc("GET "+base+"/trace", wrap(hpprof.Trace))
	s.log.Info("pprof mounted", logx.String("prefix", prefix))
}

func withAuth(tok string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Accept either "Authorization: Bearer <token>" or ?token=<token>.
		if got := r.URL.Query().Get("token"); got != "" {
			if got == tok {
				h(w, r)
				return
			}
			unauthorized(w)
			return
		}
		if ah := r.Header.Get("Authorization"); ah != "" {
			const p = "Bearer "
			if strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
				h(w, r)
				return
			}
		}
		unauthorized(w)
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func normalizePrefix(prefix string) string {
	p := strings.TrimSpace(prefix)
	if p == "" {
		p = "/debug/pprof/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// pprof.Index expects requests rooted at /debug/pprof/.
func pprofIndexAt(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		suffix := strings.TrimPrefix(r.URL.Path, prefix)
		r2 := r.Clone(r.Context())
		r2.URL.Path = "/debug/pprof/" + suffix
		hpprof.Index(w, r2)
	}
}
