package web

import (
	"errors"
	"net/http"
	"slices"

	"appkit/internal/accept"
)

const attrMediaTypes = "web.negotiated_media_types"

// NegotiationInterceptor resolves the requested media types once per
// exchange. Requests that cannot be satisfied get 406.
type NegotiationInterceptor struct {
	InterceptorBase
	Resolver accept.Resolver
	// Produces, when set, lists what the handlers can render; a request
	// none of them satisfies is rejected.
	Produces []accept.MediaType
}

func (n *NegotiationInterceptor) Order() int { return -100 }

func (n *NegotiationInterceptor) PreHandle(w http.ResponseWriter, r *http.Request, _ http.Handler) (bool, error) {
	if DispatchTypeOf(r) == DispatchAsync {
		return true, nil
	}
	res := n.Resolver
	if res == nil {
		res = accept.NewBuilder().Build()
	}
	w.Header().Add("Vary", "Accept")
	mts, err := res.ResolveMediaTypes(r)
	if err != nil {
		if errors.Is(err, accept.ErrNotAcceptable) {
			WriteError(w, Status(http.StatusNotAcceptable, err))
			return false, nil
		}
		return false, err
	}
	if len(n.Produces) > 0 {
		if _, ok := accept.Pick(mts, n.Produces); !ok {
			WriteError(w, Status(http.StatusNotAcceptable, &accept.NotAcceptableError{
				Reason:    "no producible media type",
				Supported: n.Produces,
			}))
			return false, nil
		}
	}
	SetAttribute(r, attrMediaTypes, mts)
	return true, nil
}

// NegotiatedMediaTypes returns what NegotiationInterceptor resolved for r,
// accept.AllList if it did not run.
func NegotiatedMediaTypes(r *http.Request) []accept.MediaType {
	if v, ok := Attribute(r, attrMediaTypes); ok {
		if mts, ok := v.([]accept.MediaType); ok && len(mts) > 0 {
			return slices.Clone(mts)
		}
	}
	return slices.Clone(accept.AllList)
}

// Negotiate picks the response type for r among producible.
func Negotiate(r *http.Request, producible ...accept.MediaType) (accept.MediaType, bool) {
	return accept.Pick(NegotiatedMediaTypes(r), producible)
}
