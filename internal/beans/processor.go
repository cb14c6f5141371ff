// Package beans manages named singleton components and the post-processors
// that decorate them around initialization and destruction.
package beans

import "context"

// PostProcessor hooks into component initialization. Either method may
// return a replacement (a wrapper or proxy) for the component.
type PostProcessor interface {
	BeforeInitialization(bean any, name string) (any, error)
	AfterInitialization(bean any, name string) (any, error)
}

// DestructionAwarePostProcessor adds a callback run before a component is
// destroyed, typically to mirror something done at initialization.
type DestructionAwarePostProcessor interface {
	PostProcessor
	BeforeDestruction(bean any, name string) error
}

// DestructionRequirer narrows which components a DestructionAwarePostProcessor
// is invoked for. Processors that do not implement it apply to every component.
type DestructionRequirer interface {
	RequiresDestruction(bean any) bool
}

// PostProcessorBase is embeddable and passes components through unchanged.
type PostProcessorBase struct{}

func (PostProcessorBase) BeforeInitialization(bean any, _ string) (any, error) { return bean, nil }
func (PostProcessorBase) AfterInitialization(bean any, _ string) (any, error)  { return bean, nil }

// Initializer is implemented by components that need setup after their
// dependencies are registered.
type Initializer interface {
	Init(ctx context.Context) error
}

// Disposer is implemented by components holding resources.
type Disposer interface {
	Close() error
}

func requiresDestruction(pp DestructionAwarePostProcessor, bean any) bool {
	if r, ok := pp.(DestructionRequirer); ok {
		return r.RequiresDestruction(bean)
	}
	return true
}
