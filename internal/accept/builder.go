package accept

import (
	"maps"
	"net/http"
	"slices"
)

// Builder assembles a resolver chain. Strategies are consulted in the
// order they were added. A Builder is not safe for concurrent use; the
// Resolver returned by Build is.
type Builder struct {
	candidates []func() Resolver
}

func NewBuilder() *Builder { return &Builder{} }

// ParameterResolver adds a query-parameter strategy and returns its
// configurer. The configurer is read when Build is called.
func (b *Builder) ParameterResolver() *ParameterConfigurer {
	pc := &ParameterConfigurer{mediaTypes: map[string]MediaType{}}
	b.candidates = append(b.candidates, pc.createResolver)
	return pc
}

// HeaderResolver adds the Accept header strategy.
func (b *Builder) HeaderResolver() *Builder {
	b.candidates = append(b.candidates, func() Resolver { return HeaderResolver{} })
	return b
}

// FixedResolver adds a strategy that always returns mts.
func (b *Builder) FixedResolver(mts ...MediaType) *Builder {
	mts = slices.Clone(mts)
	b.candidates = append(b.candidates, func() Resolver { return NewFixedResolver(mts...) })
	return b
}

// Resolver adds a custom strategy.
func (b *Builder) Resolver(r Resolver) *Builder {
	if r != nil {
		b.candidates = append(b.candidates, func() Resolver { return r })
	}
	return b
}

// Len returns the number of configured strategies.
func (b *Builder) Len() int { return len(b.candidates) }

// Build returns the composite resolver. With no strategies configured it
// falls back to the Accept header.
func (b *Builder) Build() Resolver {
	var resolvers []Resolver
	if len(b.candidates) == 0 {
		resolvers = []Resolver{HeaderResolver{}}
	} else {
		resolvers = make([]Resolver, 0, len(b.candidates))
		for _, c := range b.candidates {
			resolvers = append(resolvers, c())
		}
	}
	return chain(resolvers)
}

type chain []Resolver

func (c chain) ResolveMediaTypes(r *http.Request) ([]MediaType, error) {
	for _, res := range c {
		mts, err := res.ResolveMediaTypes(r)
		if err != nil {
			return nil, err
		}
		if IsAllList(mts) {
			continue
		}
		return mts, nil
	}
	return allList(), nil
}

// ParameterConfigurer configures a ParameterResolver added through
// Builder.ParameterResolver.
type ParameterConfigurer struct {
	mediaTypes    map[string]MediaType
	parameterName string
}

func (pc *ParameterConfigurer) MediaType(key string, mt MediaType) *ParameterConfigurer {
	pc.mediaTypes[key] = mt
	return pc
}

func (pc *ParameterConfigurer) MediaTypes(m map[string]MediaType) *ParameterConfigurer {
	maps.Copy(pc.mediaTypes, m)
	return pc
}

func (pc *ParameterConfigurer) ParameterName(name string) *ParameterConfigurer {
	pc.parameterName = name
	return pc
}

func (pc *ParameterConfigurer) createResolver() Resolver {
	r := NewParameterResolver(pc.mediaTypes)
	if pc.parameterName != "" {
		r.SetParameterName(pc.parameterName)
	}
	return r
}
