package accept

import (
	"cmp"
	"fmt"
	"maps"
	"mime"
	"slices"
	"strconv"
	"strings"
)

const wildcard = "*"

// MediaType is a parsed "type/subtype;param=value" value.
// Type, Subtype and parameter names are lower-case.
type MediaType struct {
	Type    string
	Subtype string
	Params  map[string]string
}

var (
	All             = MediaType{Type: wildcard, Subtype: wildcard}
	ApplicationJSON = MediaType{Type: "application", Subtype: "json"}
	ApplicationXML  = MediaType{Type: "application", Subtype: "xml"}
	TextHTML        = MediaType{Type: "text", Subtype: "html"}
	TextPlain       = MediaType{Type: "text", Subtype: "plain"}
)

// AllList is returned when no strategy expressed a preference.
// Resolvers hand out copies of it.
var AllList = []MediaType{All}

// allList returns a fresh copy of AllList so callers cannot alter the
// shared sentinel.
func allList() []MediaType { return []MediaType{All} }

// ParseMediaType parses a single media type.
func ParseMediaType(s string) (MediaType, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return MediaType{}, fmt.Errorf("media type: empty")
	}
	// "*" alone is a common shorthand for "*/*".
	if s == wildcard {
		return All, nil
	}
	full, params, err := mime.ParseMediaType(s)
	if err != nil {
		return MediaType{}, fmt.Errorf("media type %q: %w", s, err)
	}
	typ, sub, ok := strings.Cut(full, "/")
	if !ok || typ == "" || sub == "" {
		return MediaType{}, fmt.Errorf("media type %q: missing subtype", s)
	}
	if typ == wildcard && sub != wildcard {
		return MediaType{}, fmt.Errorf("media type %q: wildcard type requires wildcard subtype", s)
	}
	mt := MediaType{Type: typ, Subtype: sub}
	if len(params) > 0 {
		mt.Params = params
	}
	return mt, nil
}

// MustParse is ParseMediaType for package-level values; it panics on error.
func MustParse(s string) MediaType {
	mt, err := ParseMediaType(s)
	if err != nil {
		panic(err)
	}
	return mt
}

// ParseList parses a comma-separated list such as an Accept header.
func ParseList(s string) ([]MediaType, error) {
	parts := strings.Split(s, ",")
	out := make([]MediaType, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		mt, err := ParseMediaType(p)
		if err != nil {
			return nil, err
		}
		out = append(out, mt)
	}
	return out, nil
}

func (m MediaType) String() string {
	base := m.Type + "/" + m.Subtype
	if len(m.Params) == 0 {
		return base
	}
	return mime.FormatMediaType(base, m.Params)
}

func (m MediaType) IsWildcardType() bool    { return m.Type == wildcard }
func (m MediaType) IsWildcardSubtype() bool { return m.Subtype == wildcard || strings.HasPrefix(m.Subtype, "*+") }

// Equal compares type, subtype and parameters.
func (m MediaType) Equal(o MediaType) bool {
	return m.Type == o.Type && m.Subtype == o.Subtype && maps.Equal(m.Params, o.Params)
}

// Includes reports whether m (possibly a wildcard) covers o.
func (m MediaType) Includes(o MediaType) bool {
	if m.IsWildcardType() {
		return true
	}
	if m.Type != o.Type {
		return false
	}
	if m.Subtype == o.Subtype || m.Subtype == wildcard {
		return true
	}
	// "application/*+xml" includes "application/soap+xml".
	if suffix, ok := strings.CutPrefix(m.Subtype, "*+"); ok {
		_, osuf, found := strings.Cut(o.Subtype, "+")
		return found && osuf == suffix
	}
	return false
}

// Quality returns the "q" parameter, 1 when absent or invalid.
func (m MediaType) Quality() float64 {
	raw, ok := m.Params["q"]
	if !ok {
		return 1
	}
	q, err := strconv.ParseFloat(raw, 64)
	if err != nil || q < 0 || q > 1 {
		return 1
	}
	return q
}

// WithoutParams returns m with all parameters dropped.
func (m MediaType) WithoutParams() MediaType {
	return MediaType{Type: m.Type, Subtype: m.Subtype}
}

// IsAllList reports whether mts is exactly the AllList sentinel.
func IsAllList(mts []MediaType) bool {
	return len(mts) == 1 && mts[0].Equal(All)
}

// SortBySpecificityAndQuality orders mts most preferred first:
// higher quality, then concrete over "type/*" over "*/*", then more
// parameters. Types of equal rank keep their header order.
func SortBySpecificityAndQuality(mts []MediaType) {
	slices.SortStableFunc(mts, func(a, b MediaType) int {
		if c := cmp.Compare(b.Quality(), a.Quality()); c != 0 {
			return c
		}
		if c := cmp.Compare(specificity(b), specificity(a)); c != 0 {
			return c
		}
		return cmp.Compare(paramCount(b), paramCount(a))
	})
}

// specificity ranks "*/*" 0, a wildcard subtype 1 and a concrete type 2.
func specificity(m MediaType) int {
	switch {
	case m.IsWildcardType():
		return 0
	case m.IsWildcardSubtype():
		return 1
	default:
		return 2
	}
}

func paramCount(m MediaType) int {
	n := len(m.Params)
	if _, ok := m.Params["q"]; ok {
		n--
	}
	return n
}
