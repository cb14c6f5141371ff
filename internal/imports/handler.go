package imports

import (
	"fmt"
	"slices"
	"sync"

	"appkit/pkg/logx"
	"appkit/pkg/order"
)

type holder struct {
	meta Metadata
	sel  DeferredSelector
}

// Handler runs immediate selectors and queues deferred ones until Process.
type Handler struct {
	mu       sync.Mutex
	log      logx.Logger
	deferred []holder
}

func NewHandler(log logx.Logger) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handler{log: log}
}

// Handle evaluates sel for meta. Deferred selectors are queued and nil is
// returned; any other selector's imports are returned immediately.
func (h *Handler) Handle(meta Metadata, sel Selector) []string {
	if sel == nil {
		return nil
	}
	if ds, ok := sel.(DeferredSelector); ok {
		h.mu.Lock()
		h.deferred = append(h.deferred, holder{meta: meta, sel: ds})
		h.mu.Unlock()
		return nil
	}
	return sel.SelectImports(meta)
}

// Pending returns the number of queued deferred selectors.
func (h *Handler) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.deferred)
}

type groupRun struct {
	key     string
	group   Group
	members []holder
}

// Process evaluates queued deferred selectors and calls fn once per
// distinct entry. Selectors run in precedence order (order.Of); each
// ungrouped selector forms its own group, grouped selectors share one
// instance per group name. Groups yield in the order their first member
// was reached. The queue is drained even when fn fails.
func (h *Handler) Process(fn func(Entry) error) error {
	h.mu.Lock()
	queued := h.deferred
	h.deferred = nil
	h.mu.Unlock()
	if len(queued) == 0 {
		return nil
	}

	slices.SortStableFunc(queued, func(a, b holder) int { return order.Compare(a.sel, b.sel) })

	var runs []*groupRun
	byKey := map[string]*groupRun{}
	for i, hd := range queued {
		key, newGroup := groupKey(hd.sel, i)
		run, ok := byKey[key]
		if !ok {
			run = &groupRun{key: key, group: newGroup()}
			byKey[key] = run
			runs = append(runs, run)
		}
		run.members = append(run.members, hd)
	}

	var seen []Entry
	for _, run := range runs {
		for _, m := range run.members {
			run.group.Process(m.meta, m.sel)
		}
		for _, e := range run.group.SelectImports() {
			if slices.ContainsFunc(seen, e.Equal) {
				continue
			}
			seen = append(seen, e)
			h.log.Debug("deferred import selected",
				logx.String("group", run.key),
				logx.String("from", e.Metadata.Name),
				logx.String("import", e.ImportName),
			)
			if err := fn(e); err != nil {
				return fmt.Errorf("imports: %s from %s: %w", e.ImportName, e.Metadata.Name, err)
			}
		}
	}
	return nil
}

func groupKey(sel DeferredSelector, idx int) (string, func() Group) {
	if gs, ok := sel.(GroupedSelector); ok {
		if gt := gs.ImportGroup(); !gt.IsZero() {
			return "group:" + gt.Name, gt.New
		}
	}
	return fmt.Sprintf("selector:%d", idx), NewDefaultGroup
}
