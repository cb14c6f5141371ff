package accept

import (
	"fmt"
	"strings"
)

// Config describes a chain declaratively.
//
// Strategies lists "parameter", "header" and "fixed" in evaluation order.
// An empty list builds the header-only default.
type Config struct {
	Strategies    []string
	ParameterName string
	MediaTypes    map[string]string
	Fixed         []string
}

// FromConfig builds a resolver chain from cfg.
func FromConfig(cfg Config) (Resolver, error) {
	b := NewBuilder()
	for i, s := range cfg.Strategies {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "parameter", "param", "query":
			mts := make(map[string]MediaType, len(cfg.MediaTypes))
			for k, raw := range cfg.MediaTypes {
				mt, err := ParseMediaType(raw)
				if err != nil {
					return nil, fmt.Errorf("negotiation.media_types[%s]: %w", k, err)
				}
				mts[k] = mt
			}
			b.ParameterResolver().MediaTypes(mts).ParameterName(cfg.ParameterName)
		case "header", "accept":
			b.HeaderResolver()
		case "fixed":
			mts := make([]MediaType, 0, len(cfg.Fixed))
			for j, raw := range cfg.Fixed {
				mt, err := ParseMediaType(raw)
				if err != nil {
					return nil, fmt.Errorf("negotiation.fixed[%d]: %w", j, err)
				}
				mts = append(mts, mt)
			}
			b.FixedResolver(mts...)
		default:
			return nil, fmt.Errorf("negotiation.strategies[%d]: unknown strategy %q", i, s)
		}
	}
	return b.Build(), nil
}
