package web

import (
	"math"
	"net/http"
	"strconv"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// RateLimitInterceptor rejects requests beyond a global token bucket with 429.
// Async dispatches are not counted again.
type RateLimitInterceptor struct {
	InterceptorBase
	// nil means unlimited
	limiter  atomic.Pointer[rate.Limiter]
	rejected atomic.Uint64
}

// NewRateLimitInterceptor allows perSec requests per second with the given
// burst. perSec <= 0 disables limiting.
func NewRateLimitInterceptor(perSec float64, burst int) *RateLimitInterceptor {
	rl := &RateLimitInterceptor{}
	rl.Apply(perSec, burst)
	return rl
}

// Apply swaps in a fresh bucket (hot reload). Safe to call concurrently.
func (rl *RateLimitInterceptor) Apply(perSec float64, burst int) {
	if perSec <= 0 {
		rl.limiter.Store(nil)
		return
	}
	if burst <= 0 {
		burst = int(math.Max(1, math.Ceil(perSec)))
	}
	rl.limiter.Store(rate.NewLimiter(rate.Limit(perSec), burst))
}

func (rl *RateLimitInterceptor) Order() int { return -1000 }

func (rl *RateLimitInterceptor) Rejected() uint64 { return rl.rejected.Load() }

func (rl *RateLimitInterceptor) PreHandle(w http.ResponseWriter, r *http.Request, _ http.Handler) (bool, error) {
	if DispatchTypeOf(r) == DispatchAsync {
		return true, nil
	}
	lim := rl.limiter.Load()
	if lim == nil {
		return true, nil
	}
	res := lim.Reserve()
	if !res.OK() {
		rl.reject(w, 1)
		return false, nil
	}
	if d := res.Delay(); d > 0 {
		res.Cancel()
		rl.reject(w, int(math.Ceil(d.Seconds())))
		return false, nil
	}
	return true, nil
}

func (rl *RateLimitInterceptor) reject(w http.ResponseWriter, retryAfter int) {
	rl.rejected.Add(1)
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
}
