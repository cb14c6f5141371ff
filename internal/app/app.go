// Package app assembles the service: feature selection, the component
// registry, the HTTP interceptor chain and config hot reload.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"appkit/internal/accept"
	"appkit/internal/beans"
	"appkit/internal/config"
	"appkit/internal/eventbus"
	"appkit/internal/observability/pprof"
	"appkit/internal/report"
	"appkit/internal/runtime/supervisor"
	"appkit/internal/web"
	"appkit/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	srv  config.Server

	log  logx.Logger
	logs *logx.Service

	features []string
	reg      *beans.Registry
	timer    *beans.StartupTimer
	chain    *web.Chain
	bus      *eventbus.Bus[web.RequestTiming]
	resolver *resolverHolder

	// nil when the feature is off
	limiter  *web.RateLimitInterceptor
	reporter *reportComponent
	store    *storeComponent
	debug    *pprof.Service

	sup     *supervisor.Supervisor
	server  *http.Server
	ln      net.Listener
	started time.Time
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		JSON:    cfg.Logging.JSON,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// New loads cfgPath and registers the selected components. Nothing is
// started until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	srv, err := cfg.Server.Resolve()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logConfig(cfg))
	appLog := log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	features, err := selectFeatures(cfg, log.With(logx.String("comp", "imports")))
	if err != nil {
		return nil, err
	}
	appLog.Info("features selected", logx.Strings("features", features))

	res, err := accept.FromConfig(cfg.Negotiation.AcceptConfig())
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgm:     cfgm,
		srv:      srv,
		log:      appLog,
		logs:     logSvc,
		features: features,
		reg:      beans.NewRegistry(log.With(logx.String("comp", "beans"))),
		timer:    beans.NewStartupTimer("startup", log.With(logx.String("comp", "startup"))),
		chain:    web.NewChain(web.WithLogger(log.With(logx.String("comp", "web"))), web.WithAsyncTimeout(srv.AsyncTimeout)),
		bus:      eventbus.New[web.RequestTiming](),
		resolver: newResolverHolder(res),
	}
	if err := a.register(cfg, log); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) register(cfg *config.Config, log logx.Logger) error {
	if err := a.reg.AddPostProcessor(a.timer); err != nil {
		return err
	}
	if err := a.reg.AddPostProcessor(&interceptorCollector{chain: a.chain, log: a.log}); err != nil {
		return err
	}

	type component struct {
		name string
		bean any
	}
	var comps []component

	if a.Enabled(FeatureStorage) {
		sc, _, err := mapStorageConfig(cfg)
		if err != nil {
			return err
		}
		a.store = &storeComponent{cfg: sc, log: log.With(logx.String("comp", "storage"))}
		comps = append(comps, component{beanStore, a.store})
	}
	if a.Enabled(FeatureReport) {
		a.reporter = &reportComponent{
			cfg:   cfg.Report,
			store: a.store,
			opts: report.Options{
				Log:     log.With(logx.String("comp", "report")),
				Source:  a.bus,
				History: cfg.Report.History,
			},
		}
		comps = append(comps, component{beanReporter, a.reporter})
	}
	comps = append(comps, component{beanNegotiation, &web.NegotiationInterceptor{
		Resolver: a.resolver,
		Produces: producible,
	}})
	if a.Enabled(FeatureTiming) {
		comps = append(comps, component{beanTiming, &web.TimingInterceptor{
			Log:  log.With(logx.String("comp", "timing")),
			Slow: a.srv.SlowRequest,
			Sink: func(rt web.RequestTiming) { a.bus.Publish(rt) },
		}})
	}
	if a.Enabled(FeatureRateLimit) {
		a.limiter = web.NewRateLimitInterceptor(cfg.RateLimit.RatePerSec, cfg.RateLimit.Burst)
		comps = append(comps, component{beanRateLimit, a.limiter})
	}

	if a.Enabled(FeatureDebug) {
		d, err := pprof.New(pprof.Config{
			Addr:                 cfg.Debug.Addr,
			Prefix:               cfg.Debug.Prefix,
			Token:                cfg.Debug.Token,
			AllowInsecure:        cfg.Debug.AllowInsecure,
			MutexProfileFraction: cfg.Debug.MutexProfileFraction,
			BlockProfileRate:     cfg.Debug.BlockProfileRate,
		}, log.With(logx.String("comp", "pprof")))
		if err != nil {
			return err
		}
		a.debug = d
		a.mountDiagnostics(d)
		comps = append(comps, component{beanDebug, d})
	}

	for _, c := range comps {
		if err := a.reg.Register(c.name, c.bean); err != nil {
			return err
		}
	}
	return nil
}

// Enabled reports whether feature was selected at construction.
func (a *App) Enabled(feature string) bool { return slices.Contains(a.features, feature) }

func (a *App) Features() []string { return slices.Clone(a.features) }

// Handler returns the routed handler behind the interceptor chain.
func (a *App) Handler() http.Handler {
	return a.chain.Wrap(a.routes())
}

// Addr is the bound listener address once started.
func (a *App) Addr() string {
	if a.ln == nil {
		return ""
	}
	return a.ln.Addr().String()
}

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start initializes the components, binds the listener and launches the
// background loops. The listener is bound when Start returns.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.started = time.Now()

	if err := a.reg.Initialize(ctx); err != nil {
		_ = a.reg.Destroy()
		return fmt.Errorf("initialize components: %w", err)
	}
	a.log.Debug("startup breakdown\n" + a.timer.PrettyPrint())

	ln, err := net.Listen("tcp", a.srv.Addr)
	if err != nil {
		_ = a.reg.Destroy()
		return err
	}
	a.ln = ln
	a.server = &http.Server{
		Handler:           a.Handler(),
		ReadTimeout:       a.srv.ReadTimeout,
		ReadHeaderTimeout: a.srv.ReadTimeout,
		WriteTimeout:      a.srv.WriteTimeout,
		IdleTimeout:       a.srv.IdleTimeout,
	}

	a.cfgm.SetValidator(a.validateReload)

	a.sup.Go("http.serve", func(context.Context) error {
		err := a.server.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	if a.reporter != nil {
		a.sup.Go("report.consume", a.reporter.Run)
	}
	if a.debug != nil {
		// Diagnostics are optional; a failing listener must not stop the app.
		a.sup.GoRestart("debug.serve", a.debug.Serve, 500*time.Millisecond, 10*time.Second)
	}
	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch, time.Second, 30*time.Second)

	a.log.Info("app started", logx.String("addr", a.Addr()), logx.Strings("features", a.features))
	return nil
}

// Stop drains HTTP, stops the loops and destroys components in reverse.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	start := time.Now()
	a.log.Info("stopping", logx.String("reason", string(reason)))

	shutdownCtx, cancel := context.WithTimeout(ctx, a.srv.ShutdownTimeout)
	defer cancel()

	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if err := a.sup.Stop(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		errs = append(errs, err)
	}
	if err := a.reg.Destroy(); err != nil {
		errs = append(errs, err)
	}
	a.bus.Close()

	err := errors.Join(errs...)
	if err != nil {
		a.log.Warn("stopped with errors", logx.Err(err), logx.Duration("took", time.Since(start)))
	} else {
		a.log.Info("stopped", logx.Duration("took", time.Since(start)))
	}
	_ = a.logs.Close()
	return err
}

// validateReload rejects revisions that need a restart to take effect in
// a way a live apply would silently ignore.
func (a *App) validateReload(_ context.Context, cfg *config.Config) error {
	next, err := selectFeatures(cfg, logx.Nop())
	if err != nil {
		return err
	}
	if !slices.Equal(next, a.features) {
		a.log.Warn("feature set changed; restart required",
			logx.Strings("running", a.features), logx.Strings("configured", next))
	}
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			a.apply(last, next)
			last = next
		}
	}
}

// apply pushes a committed revision into the running components.
func (a *App) apply(prev, next *config.Config) {
	sections, fields := config.SummarizeChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(logConfig(next))

	if srv, err := next.Server.Resolve(); err == nil {
		a.chain.SetAsyncTimeout(srv.AsyncTimeout)
		if srv.Addr != a.srv.Addr {
			a.log.Warn("server.addr changed; restart required")
		}
	}

	if res, err := accept.FromConfig(next.Negotiation.AcceptConfig()); err != nil {
		a.log.Warn("invalid negotiation config; keeping previous", logx.Err(err))
	} else {
		a.resolver.Set(res)
	}

	if a.limiter != nil {
		a.limiter.Apply(next.RateLimit.RatePerSec, next.RateLimit.Burst)
	}

	if a.reporter != nil && a.reporter.Reporter != nil {
		a.reporter.SetHistory(next.Report.History)
		if next.Report.Schedule != prev.Report.Schedule || next.Report.Timezone != prev.Report.Timezone {
			if err := a.reporter.Schedule(next.Report.Schedule, next.Report.Timezone); err != nil {
				a.log.Warn("invalid report schedule; keeping previous", logx.Err(err))
			}
		}
	}

	for _, sec := range []string{"storage", "debug"} {
		if slices.Contains(sections, sec) {
			a.log.Warn(sec + " config changed; restart required for changes to take effect")
		}
	}

	a.log.Info("config reloaded", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, fields...)...)
}
