package fetcher

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedGauge wraps a GaugeFetcher with a request budget so runaway
// polling cannot hammer the public API.
type RateLimitedGauge struct {
	inner   GaugeFetcher
	limiter *rate.Limiter
}

// NewRateLimitedGauge limits the gauge fetcher to perMinute requests.
func NewRateLimitedGauge(inner GaugeFetcher, perMinute int) *RateLimitedGauge {
	if perMinute <= 0 {
		perMinute = 12
	}
	return &RateLimitedGauge{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
	}
}

// FetchLevels waits for limiter permission, then forwards.
func (r *RateLimitedGauge) FetchLevels(ctx context.Context) (GaugeResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return GaugeResult{}, fmt.Errorf("rate limit wait canceled: %w", err)
	}
	return r.inner.FetchLevels(ctx)
}

// Endpoint forwards to the wrapped fetcher.
func (r *RateLimitedGauge) Endpoint() string {
	return r.inner.Endpoint()
}

// RateLimitedRain wraps a RainFetcher the same way.
type RateLimitedRain struct {
	inner   RainFetcher
	limiter *rate.Limiter
}

// NewRateLimitedRain limits the rain fetcher to perMinute requests.
func NewRateLimitedRain(inner RainFetcher, perMinute int) *RateLimitedRain {
	if perMinute <= 0 {
		perMinute = 12
	}
	return &RateLimitedRain{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
	}
}

// FetchForecast waits for limiter permission, then forwards.
func (r *RateLimitedRain) FetchForecast(ctx context.Context) (RainForecast, []byte, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return RainForecast{}, nil, fmt.Errorf("rate limit wait canceled: %w", err)
	}
	return r.inner.FetchForecast(ctx)
}

// Endpoint forwards to the wrapped fetcher.
func (r *RateLimitedRain) Endpoint() string {
	return r.inner.Endpoint()
}

var (
	_ GaugeFetcher = (*RateLimitedGauge)(nil)
	_ RainFetcher  = (*RateLimitedRain)(nil)
)
