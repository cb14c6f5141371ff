// Package pprof serves profiling and diagnostics on a separate listener.
//
// Security:
//   - Prefer binding to localhost (default).
//   - A non-loopback address requires Token or AllowInsecure.
package pprof

import (
	"context"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"runtime"
	"strings"
	"sync"
	"time"

	"appkit/pkg/logx"
)

const DefaultAddr = "127.0.0.1:6060"

var ErrInsecureBind = errors.New("pprof: non-loopback addr requires token or allow_insecure")

type Config struct {
	Addr          string
	Prefix        string
	Token         string
	AllowInsecure bool

	// <0 leaves the runtime default untouched.
	MutexProfileFraction int
	BlockProfileRate     int
}

type Service struct {
	log logx.Logger
	cfg Config

	mu    sync.Mutex
	extra map[string]http.Handler
	addr  string
}

// New validates cfg. The listener is bound by Serve.
func New(cfg Config, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg.Addr = strings.TrimSpace(cfg.Addr)
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	cfg.Prefix = normalizePrefix(cfg.Prefix)
	cfg.Token = strings.TrimSpace(cfg.Token)
	if !cfg.AllowInsecure && cfg.Token == "" && !isLoopbackAddr(cfg.Addr) {
		return nil, ErrInsecureBind
	}
	return &Service{cfg: cfg, log: log, extra: map[string]http.Handler{}}, nil
}

// Handle mounts h at <prefix><name>, next to the profiles.
func (s *Service) Handle(name string, h http.Handler) {
	s.mu.Lock()
	s.extra[strings.Trim(name, "/")] = h
	s.mu.Unlock()
}

// Addr is the bound address while serving.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Handler returns the routed, authenticated mux.
func (s *Service) Handler() http.Handler {
	prefix := s.cfg.Prefix
	base := strings.TrimSuffix(prefix, "/")
	mux := http.NewServeMux()

	mux.HandleFunc(prefix, pprofIndexAt(prefix))
	mux.HandleFunc(base+"/cmdline", hpprof.Cmdline)
	mux.HandleFunc(base+"/profile", hpprof.Profile)
	mux.HandleFunc(base+"/symbol", hpprof.Symbol)
	mux.HandleFunc(base+"/trace", hpprof.Trace)
	mux.HandleFunc(base, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, prefix, http.StatusPermanentRedirect)
	})

	s.mu.Lock()
	for name, h := range s.extra {
		mux.Handle(base+"/"+name, h)
	}
	s.mu.Unlock()

	return withAuth(s.cfg.Token, mux)
}

// Serve binds the listener and serves until ctx is done.
func (s *Service) Serve(ctx context.Context) error {
	applyRuntimeRates(s.cfg)

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	if s.cfg.AllowInsecure && s.cfg.Token == "" && !isLoopbackAddr(s.cfg.Addr) {
		s.log.Warn("pprof running without token on non-loopback addr (insecure)", logx.String("addr", s.cfg.Addr))
	}
	s.log.Info("pprof started",
		logx.String("addr", ln.Addr().String()),
		logx.String("prefix", s.cfg.Prefix),
		logx.Bool("token_set", s.cfg.Token != ""),
	)

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		s.log.Info("pprof stopped")
		return nil
	}
	return err
}

func applyRuntimeRates(cfg Config) {
	if cfg.MutexProfileFraction >= 0 {
		runtime.SetMutexProfileFraction(cfg.MutexProfileFraction)
	}
	if cfg.BlockProfileRate >= 0 {
		runtime.SetBlockProfileRate(cfg.BlockProfileRate)
	}
}

// withAuth accepts "Authorization: Bearer <token>" or ?token=<token>.
func withAuth(token string, h http.Handler) http.Handler {
	if token == "" {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("token"); got != "" {
			if got == token {
				h.ServeHTTP(w, r)
				return
			}
			unauthorized(w)
			return
		}
		const p = "Bearer "
		if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == token {
			h.ServeHTTP(w, r)
			return
		}
		unauthorized(w)
	})
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

// pprofIndexAt serves pprof.Index under a custom prefix; Index expects
// paths rooted at /debug/pprof/.
func pprofIndexAt(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r2 := r.Clone(r.Context())
		r2.URL.Path = "/debug/pprof/" + strings.TrimPrefix(r.URL.Path, prefix)
		hpprof.Index(w, r2)
	}
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
