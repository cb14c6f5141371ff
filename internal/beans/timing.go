package beans

import (
	"sync"

	"appkit/pkg/logx"
	"appkit/pkg/order"
	"appkit/pkg/stopwatch"
)

// StartupTimer records how long each component took to initialize and
// logs components as they are destroyed. It runs first among processors so
// the measured interval covers the other processors too.
type StartupTimer struct {
	mu  sync.Mutex
	sw  *stopwatch.StopWatch
	log logx.Logger
}

func NewStartupTimer(id string, log logx.Logger) *StartupTimer {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &StartupTimer{sw: stopwatch.New(id), log: log}
}

func (t *StartupTimer) Order() int      { return order.HighestPrecedence }
func (t *StartupTimer) PriorityOrdered() {}

func (t *StartupTimer) BeforeInitialization(bean any, name string) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	// A previous component failed mid-init; close its interval.
	if t.sw.IsRunning() {
		_ = t.sw.Stop()
	}
	if err := t.sw.Start(name); err != nil {
		return nil, err
	}
	return bean, nil
}

func (t *StartupTimer) AfterInitialization(bean any, name string) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.sw.Stop(); err != nil {
		return nil, err
	}
	info, _ := t.sw.LastTaskInfo()
	t.log.Debug("bean ready", logx.String("bean", name), logx.Duration("took", info.Duration))
	return bean, nil
}

func (t *StartupTimer) BeforeDestruction(_ any, name string) error {
	t.log.Debug("bean stopping", logx.String("bean", name))
	return nil
}

// Report returns the per-component startup breakdown.
func (t *StartupTimer) Report() stopwatch.Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sw.Snapshot()
}

func (t *StartupTimer) PrettyPrint() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sw.PrettyPrint()
}
