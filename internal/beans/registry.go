package beans

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"appkit/pkg/logx"
	"appkit/pkg/order"
)

var (
	ErrDuplicateBean = errors.New("beans: duplicate bean name")
	ErrNoSuchBean    = errors.New("beans: no such bean")
	ErrSealed        = errors.New("beans: registry already initialized")
	ErrDestroyed     = errors.New("beans: registry destroyed")
)

type entry struct {
	name string
	bean any
	// initialized is set once Init (if any) succeeded; only those are destroyed.
	initialized bool
}

// Registry holds named singletons in registration order.
//
// Register and AddPostProcessor must happen before Initialize. Get and
// Names are safe for concurrent use.
type Registry struct {
	mu sync.RWMutex

	log        logx.Logger
	entries    []*entry
	byName     map[string]*entry
	processors []PostProcessor

	sealed    bool
	destroyed bool
}

func NewRegistry(log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{log: log, byName: map[string]*entry{}}
}

func (r *Registry) Register(name string, bean any) error {
	if name == "" || bean == nil {
		return fmt.Errorf("beans: register %q: name and bean are required", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("%w: register %q", ErrSealed, name)
	}
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateBean, name)
	}
	e := &entry{name: name, bean: bean}
	r.entries = append(r.entries, e)
	r.byName[name] = e
	return nil
}

// AddPostProcessor registers pp. Processors run sorted by order.Of, ties in
// the order they were added.
func (r *Registry) AddPostProcessor(pp PostProcessor) error {
	if pp == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return ErrSealed
	}
	r.processors = append(r.processors, pp)
	order.Sort(r.processors)
	return nil
}

func (r *Registry) Get(name string) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchBean, name)
	}
	return e.bean, nil
}

// Lookup returns the bean registered under name typed as T.
func Lookup[T any](r *Registry, name string) (T, error) {
	var zero T
	b, err := r.Get(name)
	if err != nil {
		return zero, err
	}
	v, ok := b.(T)
	if !ok {
		return zero, fmt.Errorf("beans: %q is %T, not %T", name, b, zero)
	}
	return v, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.name)
	}
	return out
}

// Initialize runs every component through the processors and its own Init,
// in registration order. It stops at the first failure; components that
// were already initialized are still destroyed by Destroy.
func (r *Registry) Initialize(ctx context.Context) error {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return ErrDestroyed
	}
	if r.sealed {
		r.mu.Unlock()
		return ErrSealed
	}
	r.sealed = true
	entries := append([]*entry(nil), r.entries...)
	procs := append([]PostProcessor(nil), r.processors...)
	r.mu.Unlock()

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		bean, err := r.initOne(ctx, e, procs)
		if err != nil {
			return fmt.Errorf("beans: init %q: %w", e.name, err)
		}
		r.mu.Lock()
		e.bean = bean
		e.initialized = true
		r.mu.Unlock()
		r.log.Debug("bean initialized", logx.String("bean", e.name), logx.String("type", fmt.Sprintf("%T", bean)))
	}
	return nil
}

func (r *Registry) initOne(ctx context.Context, e *entry, procs []PostProcessor) (any, error) {
	bean := e.bean
	var err error
	for _, pp := range procs {
		if bean, err = pp.BeforeInitialization(bean, e.name); err != nil {
			return nil, err
		}
		if bean == nil {
			return nil, fmt.Errorf("post-processor %T returned nil", pp)
		}
	}
	if in, ok := bean.(Initializer); ok {
		if err := in.Init(ctx); err != nil {
			return nil, err
		}
	}
	for _, pp := range procs {
		if bean, err = pp.AfterInitialization(bean, e.name); err != nil {
			return nil, err
		}
		if bean == nil {
			return nil, fmt.Errorf("post-processor %T returned nil", pp)
		}
	}
	return bean, nil
}

// Destroy tears down initialized components in reverse registration order.
// Every component is attempted; errors are joined.
func (r *Registry) Destroy() error {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return nil
	}
	r.destroyed = true
	entries := append([]*entry(nil), r.entries...)
	procs := append([]PostProcessor(nil), r.processors...)
	r.mu.Unlock()

	var errs []error
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if !e.initialized {
			continue
		}
		for _, pp := range procs {
			dpp, ok := pp.(DestructionAwarePostProcessor)
			if !ok || !requiresDestruction(dpp, e.bean) {
				continue
			}
			if err := dpp.BeforeDestruction(e.bean, e.name); err != nil {
				errs = append(errs, fmt.Errorf("beans: before destruction %q: %w", e.name, err))
			}
		}
		if d, ok := e.bean.(Disposer); ok {
			if err := d.Close(); err != nil {
				errs = append(errs, fmt.Errorf("beans: close %q: %w", e.name, err))
			}
		}
		r.log.Debug("bean destroyed", logx.String("bean", e.name))
	}
	return errors.Join(errs...)
}
