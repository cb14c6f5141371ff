package app

import (
	"slices"
	"strings"

	"appkit/internal/config"
	"appkit/internal/imports"
	"appkit/pkg/logx"
)

// Optional components the service can assemble.
const (
	FeatureNegotiation = "negotiation"
	FeatureTiming      = "timing"
	FeatureRateLimit   = "ratelimit"
	FeatureReport      = "report"
	FeatureStorage     = "storage"
	FeatureDebug       = "debug"
)

// observabilityGroup makes timing, report and storage consistent with each
// other: a report needs timings to aggregate and storage only holds reports.
var observabilityGroup = imports.GroupType{
	Name: "observability",
	New:  func() imports.Group { return &depGroup{} },
}

type depGroup struct {
	imports.DefaultGroup
}

func (g *depGroup) SelectImports() []imports.Entry {
	entries := g.DefaultGroup.SelectImports()
	has := func(name string) bool {
		return slices.ContainsFunc(entries, func(e imports.Entry) bool { return e.ImportName == name })
	}
	if has(FeatureReport) && !has(FeatureTiming) {
		entries = append([]imports.Entry{{Metadata: entries[0].Metadata, ImportName: FeatureTiming}}, entries...)
	}
	if !has(FeatureReport) {
		entries = slices.DeleteFunc(entries, func(e imports.Entry) bool { return e.ImportName == FeatureStorage })
	}
	return entries
}

// featureSelector is a deferred selector with an explicit order and an
// optional import group.
type featureSelector struct {
	order int
	group imports.GroupType
	fn    func(meta imports.Metadata) []string
}

func (s featureSelector) SelectImports(meta imports.Metadata) []string { return s.fn(meta) }
func (featureSelector) Deferred()                                      {}
func (s featureSelector) Order() int                                   { return s.order }
func (s featureSelector) ImportGroup() imports.GroupType               { return s.group }

func toggle(cfg *config.Config, name string, def bool) []string {
	if cfg.Enabled(name, def) {
		return []string{name}
	}
	return nil
}

// selectFeatures resolves the component list for cfg. Negotiation is
// always on; the rest are deferred so the observability group can see all
// of them before deciding.
func selectFeatures(cfg *config.Config, log logx.Logger) ([]string, error) {
	h := imports.NewHandler(log)
	meta := imports.Metadata{Name: "appkitd", Attributes: map[string]string{"config": "root"}}

	var out []string
	add := func(names ...string) {
		for _, n := range names {
			if n != "" && !slices.Contains(out, n) {
				out = append(out, n)
			}
		}
	}

	add(h.Handle(meta, imports.SelectorFunc(func(imports.Metadata) []string {
		return []string{FeatureNegotiation}
	}))...)

	h.Handle(meta, featureSelector{order: 10, fn: func(imports.Metadata) []string {
		return toggle(cfg, FeatureRateLimit, cfg.RateLimit.RatePerSec > 0)
	}})
	h.Handle(meta, featureSelector{order: 40, fn: func(imports.Metadata) []string {
		return toggle(cfg, FeatureDebug, strings.TrimSpace(cfg.Debug.Addr) != "")
	}})
	h.Handle(meta, featureSelector{order: 30, group: observabilityGroup, fn: func(imports.Metadata) []string {
		_, enabled, _ := mapStorageConfig(cfg)
		return toggle(cfg, FeatureStorage, enabled)
	}})
	h.Handle(meta, featureSelector{order: 20, group: observabilityGroup, fn: func(imports.Metadata) []string {
		return toggle(cfg, FeatureReport, strings.TrimSpace(cfg.Report.Schedule) != "")
	}})
	h.Handle(meta, featureSelector{order: 0, group: observabilityGroup, fn: func(imports.Metadata) []string {
		return toggle(cfg, FeatureTiming, true)
	}})

	err := h.Process(func(e imports.Entry) error {
		add(e.ImportName)
		return nil
	})
	return out, err
}
