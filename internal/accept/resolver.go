package accept

import (
	"maps"
	"mime"
	"net/http"
	"slices"
	"strings"
)

// Resolver determines the requested media types for a request.
//
// Implementations return AllList when the request expresses no preference.
type Resolver interface {
	ResolveMediaTypes(r *http.Request) ([]MediaType, error)
}

type ResolverFunc func(r *http.Request) ([]MediaType, error)

func (f ResolverFunc) ResolveMediaTypes(r *http.Request) ([]MediaType, error) { return f(r) }

// HeaderResolver reads the Accept header.
type HeaderResolver struct{}

func (HeaderResolver) ResolveMediaTypes(r *http.Request) ([]MediaType, error) {
	values := r.Header.Values("Accept")
	raw := strings.TrimSpace(strings.Join(values, ","))
	if raw == "" {
		return allList(), nil
	}
	mts, err := ParseList(raw)
	if err != nil {
		return nil, &NotAcceptableError{Reason: "could not parse Accept header", Err: err}
	}
	if len(mts) == 0 {
		return allList(), nil
	}
	SortBySpecificityAndQuality(mts)
	return mts, nil
}

// DefaultParameterName is the query parameter ParameterResolver reads
// unless configured otherwise.
const DefaultParameterName = "format"

// ParameterResolver maps a query parameter value ("?format=json") to a media type.
// Keys are matched case-insensitively. Unknown keys fall back to a
// file-extension lookup ("csv" -> text/csv).
type ParameterResolver struct {
	name       string
	mediaTypes map[string]MediaType
}

func NewParameterResolver(mediaTypes map[string]MediaType) *ParameterResolver {
	m := make(map[string]MediaType, len(mediaTypes))
	for k, v := range mediaTypes {
		m[formatKey(k)] = v
	}
	return &ParameterResolver{name: DefaultParameterName, mediaTypes: m}
}

// SetParameterName overrides DefaultParameterName. Empty names are ignored.
func (p *ParameterResolver) SetParameterName(name string) {
	if name = strings.TrimSpace(name); name != "" {
		p.name = name
	}
}

func (p *ParameterResolver) ParameterName() string { return p.name }

// MediaTypes returns a copy of the configured key mapping.
func (p *ParameterResolver) MediaTypes() map[string]MediaType { return maps.Clone(p.mediaTypes) }

func (p *ParameterResolver) ResolveMediaTypes(r *http.Request) ([]MediaType, error) {
	key := strings.TrimSpace(r.URL.Query().Get(p.name))
	if key == "" {
		return allList(), nil
	}
	key = formatKey(key)
	if mt, ok := p.mediaTypes[key]; ok {
		return []MediaType{mt}, nil
	}
	if mt, ok := lookupExtension(key); ok {
		return []MediaType{mt}, nil
	}
	return nil, &NotAcceptableError{
		Reason:    "unknown " + p.name + " value " + `"` + key + `"`,
		Supported: p.supported(),
	}
}

func (p *ParameterResolver) supported() []MediaType {
	keys := slices.Sorted(maps.Keys(p.mediaTypes))
	out := make([]MediaType, 0, len(keys))
	for _, k := range keys {
		out = append(out, p.mediaTypes[k])
	}
	return out
}

func formatKey(k string) string { return strings.ToLower(strings.TrimSpace(k)) }

func lookupExtension(key string) (MediaType, bool) {
	if strings.ContainsAny(key, "/.") {
		return MediaType{}, false
	}
	raw := mime.TypeByExtension("." + key)
	if raw == "" {
		return MediaType{}, false
	}
	mt, err := ParseMediaType(raw)
	if err != nil {
		return MediaType{}, false
	}
	return mt.WithoutParams(), true
}

// FixedResolver always returns the same list.
type FixedResolver struct {
	mediaTypes []MediaType
}

// NewFixedResolver returns a resolver for mts; an empty list resolves to AllList.
func NewFixedResolver(mts ...MediaType) *FixedResolver {
	if len(mts) == 0 {
		return &FixedResolver{mediaTypes: allList()}
	}
	return &FixedResolver{mediaTypes: slices.Clone(mts)}
}

func (f *FixedResolver) ResolveMediaTypes(*http.Request) ([]MediaType, error) {
	return slices.Clone(f.mediaTypes), nil
}
