package imports

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"appkit/pkg/logx"
)

type orderedDeferred struct {
	ord     int
	imports []string
	group   GroupType
}

func (s orderedDeferred) SelectImports(Metadata) []string { return s.imports }
func (orderedDeferred) Deferred()                         {}
func (s orderedDeferred) Order() int                      { return s.ord }
func (s orderedDeferred) ImportGroup() GroupType          { return s.group }

// sortedGroup collects everything and emits it sorted by import name.
type sortedGroup struct{ entries []Entry }

func (g *sortedGroup) Process(meta Metadata, sel DeferredSelector) {
	for _, n := range sel.SelectImports(meta) {
		g.entries = append(g.entries, Entry{Metadata: meta, ImportName: n})
	}
}

func (g *sortedGroup) SelectImports() []Entry {
	slices.SortFunc(g.entries, func(a, b Entry) int { return strings.Compare(a.ImportName, b.ImportName) })
	return g.entries
}

var sortedGroupType = GroupType{Name: "sorted", New: func() Group { return &sortedGroup{} }}

func collect(t *testing.T, h *Handler) []string {
	t.Helper()
	var out []string
	if err := h.Process(func(e Entry) error {
		out = append(out, e.ImportName)
		return nil
	}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	return out
}

func TestImmediateSelectorReturnsAtOnce(t *testing.T) {
	t.Parallel()
	h := NewHandler(logx.Nop())
	got := h.Handle(Metadata{Name: "app"}, SelectorFunc(func(m Metadata) []string {
		return []string{"web." + m.Attr("mode")}
	}))
	if len(got) != 1 || got[0] != "web." {
		t.Fatalf("got %v", got)
	}
	if h.Pending() != 0 {
		t.Fatal("immediate selector must not be queued")
	}
}

func TestDeferredSelectorsOrderedAndGrouped(t *testing.T) {
	t.Parallel()
	h := NewHandler(logx.Nop())
	meta := Metadata{Name: "app"}

	if got := h.Handle(meta, orderedDeferred{ord: 50, imports: []string{"late"}}); got != nil {
		t.Fatalf("deferred selector returned %v", got)
	}
	h.Handle(meta, orderedDeferred{ord: 5, imports: []string{"zeta", "alpha"}, group: sortedGroupType})
	h.Handle(meta, orderedDeferred{ord: 1, imports: []string{"first"}})
	h.Handle(meta, orderedDeferred{ord: 10, imports: []string{"beta", "alpha"}, group: sortedGroupType})
	h.Handle(meta, Deferred(func(Metadata) []string { return []string{"unordered", "first"} }))

	if h.Pending() != 5 {
		t.Fatalf("Pending = %d", h.Pending())
	}

	got := collect(t, h)
	want := []string{"first", "alpha", "beta", "zeta", "late", "unordered"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v, want %v", got, want)
	}
	if h.Pending() != 0 {
		t.Fatal("queue should be drained")
	}
	if again := collect(t, h); len(again) != 0 {
		t.Fatalf("second Process yielded %v", again)
	}
}

func TestProcessStopsOnCallbackError(t *testing.T) {
	t.Parallel()
	h := NewHandler(logx.Nop())
	h.Handle(Metadata{Name: "app"}, Deferred(func(Metadata) []string { return []string{"a", "b"} }))
	boom := errors.New("boom")
	calls := 0
	err := h.Process(func(Entry) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
	if h.Pending() != 0 {
		t.Fatal("queue should be drained even on error")
	}
}

func TestEntryEqual(t *testing.T) {
	t.Parallel()
	a := Entry{Metadata: Metadata{Name: "x", Attributes: map[string]string{"k": "v"}}, ImportName: "i"}
	b := Entry{Metadata: Metadata{Name: "x", Attributes: map[string]string{"k": "v"}}, ImportName: "i"}
	c := Entry{Metadata: Metadata{Name: "y"}, ImportName: "i"}
	if !a.Equal(b) || a.Equal(c) {
		t.Fatal("unexpected Entry equality")
	}
}
