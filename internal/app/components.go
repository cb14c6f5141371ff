package app

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"appkit/internal/accept"
	"appkit/internal/beans"
	"appkit/internal/config"
	"appkit/internal/report"
	"appkit/internal/storage"
	"appkit/internal/web"
	"appkit/pkg/logx"
)

// Component names in the registry.
const (
	beanStore       = "storage"
	beanReporter    = "report"
	beanNegotiation = "web.negotiation"
	beanTiming      = "web.timing"
	beanRateLimit   = "web.ratelimit"
	beanDebug       = "debug"
)

// resolverHolder lets a hot reload swap the negotiation chain while
// requests keep reading it.
type resolverHolder struct {
	cur atomic.Pointer[accept.Resolver]
}

func newResolverHolder(r accept.Resolver) *resolverHolder {
	h := &resolverHolder{}
	h.Set(r)
	return h
}

func (h *resolverHolder) Set(r accept.Resolver) { h.cur.Store(&r) }

func (h *resolverHolder) ResolveMediaTypes(r *http.Request) ([]accept.MediaType, error) {
	return (*h.cur.Load()).ResolveMediaTypes(r)
}

// storeComponent opens storage on Init and closes it with the registry.
type storeComponent struct {
	cfg   storage.Config
	log   logx.Logger
	store storage.Store
}

func (c *storeComponent) Init(context.Context) error {
	st, err := storage.Open(c.cfg, c.log)
	if err != nil {
		return err
	}
	c.store = st
	c.log.Info("storage enabled", logx.String("driver", c.cfg.Driver))
	return nil
}

func (c *storeComponent) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

// reportComponent builds the reporter once storage (if any) is open, then
// schedules it. Close stops the schedule and flushes the last window.
type reportComponent struct {
	*report.Reporter

	cfg   config.ReportConfig
	opts  report.Options
	store *storeComponent
}

func (c *reportComponent) Init(context.Context) error {
	if c.store != nil {
		c.opts.Store = c.store.store
	}
	c.Reporter = report.New(c.opts)
	return c.Schedule(c.cfg.Schedule, c.cfg.Timezone)
}

func (c *reportComponent) Close() error {
	if c.Reporter == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.Stop(ctx)
}

// interceptorCollector installs every initialized web.Interceptor into the
// chain. Components that are not interceptors pass through untouched.
type interceptorCollector struct {
	beans.PostProcessorBase
	chain *web.Chain
	log   logx.Logger
}

func (p *interceptorCollector) AfterInitialization(bean any, name string) (any, error) {
	if in, ok := bean.(web.Interceptor); ok {
		p.chain.Use(in)
		p.log.Debug("interceptor installed", logx.String("bean", name))
	}
	return bean, nil
}

func (p *interceptorCollector) BeforeDestruction(_ any, name string) error {
	p.log.Debug("interceptor released", logx.String("bean", name))
	return nil
}

func (p *interceptorCollector) RequiresDestruction(bean any) bool {
	_, ok := bean.(web.Interceptor)
	return ok
}
