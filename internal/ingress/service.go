// Package ingress is the public HTTP surface: the platform webhook plus
// health and status endpoints.
package ingress

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"biteiq/internal/bridge"
	"biteiq/internal/eventbus"
	rtsup "biteiq/internal/runtime/supervisor"
	kit "biteiq/internal/transport"
	logx "biteiq/pkg/logx"
)

type PprofConfig struct {
	Enabled bool
	Token   string
	Prefix  string
}

type Config struct {
	Addr         string
	WebhookPath  string
	Secret       string
	MaxBodyBytes int64
	DedupWindow  time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	BotName string
	Version string

	Pprof PprofConfig
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = ":8080"
	}
	if c.WebhookPath == "" {
		c.WebhookPath = "/webhook"
	}
	if !strings.HasPrefix(c.WebhookPath, "/") {
		c.WebhookPath = "/" + c.WebhookPath
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.BotName == "" {
		c.BotName = "BiteIQBot"
	}
	if c.Version == "" {
		c.Version = "1.0.0"
	}
	return c
}

// EventHandler handles one routed update. The router implements it.
type EventHandler interface {
	Handle(ctx context.Context, ev kit.InboundEvent) error
}

// Submitter is the part of the bridge ingress uses.
type Submitter interface {
	Submit(name string, action bridge.Action, opts ...bridge.SubmitOption) (*bridge.Submission, error)
}

// Deduper claims update ids atomically. Only used when DedupWindow > 0.
type Deduper interface {
	ClaimDedup(ctx context.Context, key string, now, until time.Time) (bool, error)
	ReleaseDedup(ctx context.Context, key string) error
}

type Deps struct {
	Handler EventHandler
	Bridge  Submitter
	Dedup   Deduper
	Bus     eventbus.Bus
	Log     logx.Logger
	Now     func() time.Time
}

type Service struct {
	mu  sync.Mutex
	cfg Config
	d   Deps
	log logx.Logger

	ln  net.Listener
	srv *http.Server
	sup *rtsup.Supervisor
}

func New(cfg Config, d Deps) *Service {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{cfg: cfg.withDefaults(), d: d, log: d.Log.With(logx.String("comp", "ingress"))}
}

// Addr returns the bound listen address, or "" before Start.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Start binds the listener synchronously and serves in the background.
// Calling Start on a running service is a no-op.
func (s *Service) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	sup := rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)
	s.ln, s.srv, s.sup = ln, srv, sup

	sup.Go("http.serve", func(c context.Context) error {
		err := srv.Serve(ln)
		if err == nil || errors.Is(err, http.ErrServerClosed) || c.Err() != nil {
			return nil
		}
		return err
	})
	sup.Go0("http.shutdown", func(c context.Context) {
		<-c.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	})

	s.log.Info("ingress listening",
		logx.String("addr", ln.Addr().String()),
		logx.String("webhook_path", s.cfg.WebhookPath),
		logx.Bool("secret_set", s.cfg.Secret != ""),
		logx.Bool("dedup", s.cfg.DedupWindow > 0),
	)
	return nil
}

// Stop drains open requests until ctx ends, then closes the server.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	srv, sup := s.srv, s.sup
	s.srv, s.sup, s.ln = nil, nil, nil
	s.mu.Unlock()
	if srv == nil {
		return
	}

	if err := srv.Shutdown(ctx); err != nil {
		s.log.Warn("ingress shutdown incomplete", logx.Err(err))
		_ = srv.Close()
	}
	sup.Cancel()
	_ = sup.Wait(ctx)
	s.log.Info("ingress stopped")
}

// Handler builds the HTTP routes.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+s.cfg.WebhookPath, s.handleWebhook)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mountPprof(mux)
	return mux
}
