// Package imports collects the names of units to import for a configuration.
//
// Plain selectors answer immediately. Deferred selectors are queued and only
// evaluated once every configuration has been seen, so they can make
// decisions that depend on what the others registered. Deferred selectors
// may share an import group that sees all of its members' results before
// deciding the final entries.
package imports

import "maps"

// Metadata describes the unit doing the importing.
type Metadata struct {
	Name       string
	Attributes map[string]string
}

func (m Metadata) Attr(key string) string { return m.Attributes[key] }

func (m Metadata) equal(o Metadata) bool {
	return m.Name == o.Name && maps.Equal(m.Attributes, o.Attributes)
}

// Selector returns the names to import for meta.
type Selector interface {
	SelectImports(meta Metadata) []string
}

type SelectorFunc func(meta Metadata) []string

func (f SelectorFunc) SelectImports(meta Metadata) []string { return f(meta) }

// DeferredSelector runs after all configurations have been handled.
// Implement order.Ordered to control precedence among deferred selectors.
type DeferredSelector interface {
	Selector
	Deferred()
}

// GroupedSelector places a deferred selector in a shared import group.
// A zero GroupType means no grouping.
type GroupedSelector interface {
	DeferredSelector
	ImportGroup() GroupType
}

// GroupType identifies an import group by name and knows how to create it.
type GroupType struct {
	Name string
	New  func() Group
}

func (g GroupType) IsZero() bool { return g.Name == "" || g.New == nil }

// Group aggregates results from the deferred selectors that share it.
type Group interface {
	Process(meta Metadata, sel DeferredSelector)
	SelectImports() []Entry
}

// Entry is one import decision.
type Entry struct {
	Metadata   Metadata
	ImportName string
}

// Equal reports whether two entries name the same import for the same unit.
func (e Entry) Equal(o Entry) bool {
	return e.ImportName == o.ImportName && e.Metadata.equal(o.Metadata)
}

// Deferred adapts a function into a DeferredSelector.
func Deferred(fn func(meta Metadata) []string) DeferredSelector { return deferredFunc(fn) }

type deferredFunc func(meta Metadata) []string

func (f deferredFunc) SelectImports(meta Metadata) []string { return f(meta) }
func (deferredFunc) Deferred()                              {}

// DefaultGroup keeps each selector's results in processing order.
type DefaultGroup struct {
	entries []Entry
}

func NewDefaultGroup() Group { return &DefaultGroup{} }

func (g *DefaultGroup) Process(meta Metadata, sel DeferredSelector) {
	for _, name := range sel.SelectImports(meta) {
		if name == "" {
			continue
		}
		g.entries = append(g.entries, Entry{Metadata: meta, ImportName: name})
	}
}

func (g *DefaultGroup) SelectImports() []Entry { return g.entries }
