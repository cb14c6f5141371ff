package accept

import "slices"

// Pick returns the first producible type acceptable to the request,
// walking requested types in preference order.
func Pick(requested, producible []MediaType) (MediaType, bool) {
	for _, req := range requested {
		if req.Quality() == 0 {
			continue
		}
		if i := slices.IndexFunc(producible, func(p MediaType) bool { return req.Includes(p) }); i >= 0 {
			return producible[i], true
		}
	}
	return MediaType{}, false
}
