package config

import (
	"maps"
	"reflect"
	"slices"

	"appkit/pkg/logx"
)

// SummarizeChange returns the changed top-level sections and log fields
// describing the new values.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var changed []string
	var attrs []logx.Field

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Server != newCfg.Server {
		changed = append(changed, "server")
		attrs = append(attrs, logx.String("server.addr", newCfg.Server.Addr))
	}
	if !reflect.DeepEqual(oldCfg.Negotiation, newCfg.Negotiation) {
		changed = append(changed, "negotiation")
		attrs = append(attrs, logx.Strings("negotiation.strategies", newCfg.Negotiation.Strategies))
	}
	if oldCfg.RateLimit != newCfg.RateLimit {
		changed = append(changed, "rate_limit")
		attrs = append(attrs,
			logx.Float64("rate_limit.rate_per_sec", newCfg.RateLimit.RatePerSec),
			logx.Int("rate_limit.burst", newCfg.RateLimit.Burst),
		)
	}
	if oldCfg.Report != newCfg.Report {
		changed = append(changed, "report")
		attrs = append(attrs, logx.String("report.schedule", newCfg.Report.Schedule))
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
	}
	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		attrs = append(attrs, logx.String("debug.addr", newCfg.Debug.Addr))
	}
	if !maps.Equal(oldCfg.Features, newCfg.Features) {
		changed = append(changed, "features")
		attrs = append(attrs, logx.Strings("features", slices.Sorted(maps.Keys(newCfg.Features))))
	}
	return changed, attrs
}
