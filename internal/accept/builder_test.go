package accept

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newRequest(target, accept string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, target, nil)
	if accept != "" {
		r.Header.Set("Accept", accept)
	}
	return r
}

func mtStrings(mts []MediaType) []string {
	out := make([]string, len(mts))
	for i, mt := range mts {
		out[i] = mt.String()
	}
	return out
}

func TestEmptyBuilderDefaultsToHeader(t *testing.T) {
	t.Parallel()
	res := NewBuilder().Build()

	got, err := res.ResolveMediaTypes(newRequest("/", "application/json"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got) != 1 || !got[0].Equal(ApplicationJSON) {
		t.Fatalf("got %v", mtStrings(got))
	}

	got, err = res.ResolveMediaTypes(newRequest("/", ""))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !IsAllList(got) {
		t.Fatalf("no Accept header should resolve to AllList, got %v", mtStrings(got))
	}
}

func TestChainFirstDefiniteResultWins(t *testing.T) {
	t.Parallel()
	b := NewBuilder()
	b.ParameterResolver().MediaType("json", ApplicationJSON).MediaType("XML", ApplicationXML)
	b.HeaderResolver()
	b.FixedResolver(TextPlain)
	res := b.Build()

	tests := []struct {
		name   string
		target string
		accept string
		want   string
	}{
		{name: "parameter wins", target: "/?format=xml", accept: "text/html", want: "application/xml"},
		{name: "parameter case-insensitive", target: "/?format=JSON", want: "application/json"},
		{name: "header when no parameter", target: "/", accept: "text/html", want: "text/html"},
		{name: "wildcard header falls through to fixed", target: "/", accept: "*/*", want: "text/plain"},
		{name: "nothing falls through to fixed", target: "/", want: "text/plain"},
		{name: "extension fallback", target: "/?format=pdf", want: "application/pdf"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := res.ResolveMediaTypes(newRequest(tt.target, tt.accept))
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if len(got) == 0 || got[0].String() != tt.want {
				t.Fatalf("got %v, want %s first", mtStrings(got), tt.want)
			}
		})
	}
}

func TestChainAllWildcardReturnsSentinel(t *testing.T) {
	t.Parallel()
	b := NewBuilder()
	b.ParameterResolver()
	b.HeaderResolver().FixedResolver()
	got, err := b.Build().ResolveMediaTypes(newRequest("/", "*/*"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !IsAllList(got) {
		t.Fatalf("got %v, want AllList", mtStrings(got))
	}
}

func TestChainPropagatesErrors(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	calls := 0
	b := NewBuilder()
	b.Resolver(ResolverFunc(func(*http.Request) ([]MediaType, error) {
		calls++
		return nil, boom
	}))
	b.Resolver(ResolverFunc(func(*http.Request) ([]MediaType, error) {
		calls++
		return []MediaType{TextPlain}, nil
	}))
	_, err := b.Build().ResolveMediaTypes(newRequest("/", ""))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, later strategies must not run after an error", calls)
	}
}

func TestParameterResolverUnknownKey(t *testing.T) {
	t.Parallel()
	b := NewBuilder()
	b.ParameterResolver().ParameterName("mediaType").MediaType("json", ApplicationJSON)
	_, err := b.Build().ResolveMediaTypes(newRequest("/?mediaType=nope-not-a-type", ""))
	if !errors.Is(err, ErrNotAcceptable) {
		t.Fatalf("err = %v, want ErrNotAcceptable", err)
	}
	var nae *NotAcceptableError
	if !errors.As(err, &nae) || len(nae.Supported) != 1 {
		t.Fatalf("expected supported list in error, got %v", err)
	}
}

func TestConfigurerReadAtBuild(t *testing.T) {
	t.Parallel()
	b := NewBuilder()
	pc := b.ParameterResolver()
	pc.ParameterName("f")
	pc.MediaType("json", ApplicationJSON)
	res := b.Build()

	got, err := res.ResolveMediaTypes(newRequest("/?f=json", ""))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !got[0].Equal(ApplicationJSON) {
		t.Fatalf("got %v", mtStrings(got))
	}
}

func TestFromConfig(t *testing.T) {
	t.Parallel()
	res, err := FromConfig(Config{
		Strategies: []string{"parameter", "header", "fixed"},
		MediaTypes: map[string]string{"json": "application/json"},
		Fixed:      []string{"text/html"},
	})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	got, _ := res.ResolveMediaTypes(newRequest("/?format=json", ""))
	if got[0].String() != "application/json" {
		t.Fatalf("got %v", mtStrings(got))
	}
	got, _ = res.ResolveMediaTypes(newRequest("/", ""))
	if got[0].String() != "text/html" {
		t.Fatalf("got %v", mtStrings(got))
	}

	if _, err := FromConfig(Config{Strategies: []string{"cookie"}}); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
	if _, err := FromConfig(Config{Strategies: []string{"fixed"}, Fixed: []string{"json"}}); err == nil {
		t.Fatal("expected error for invalid fixed media type")
	}
}
