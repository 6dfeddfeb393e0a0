// Package geocode resolves free-form location strings to coordinates via the
// Census Geocoder (primary) and the Google Geocoding API (fallback).
package geocode

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/import-engine/internal/resilience"
)

// Client geocodes free-form location strings.
type Client interface {
	// Geocode resolves a single location string. An unresolvable address is
	// not an error: the returned Result has Matched=false.
	Geocode(ctx context.Context, address string) (*Result, error)
}

// Result holds the geocoding output for one address.
type Result struct {
	Latitude  float64
	Longitude float64

	// Confidence reflects the provider's match quality, in [0, 1].
	Confidence float64

	// NormalizedAddress is the provider's canonical form of the input.
	NormalizedAddress string

	Source  string // "census" or "google"
	Matched bool
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithGoogleAPIKey enables Google Geocoding API as a fallback.
func WithGoogleAPIKey(key string) Option {
	return func(g *geocoder) {
		g.googleKey = key
	}
}

// WithHTTPClient sets a custom HTTP client for both Census and Google requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second rate limit for provider calls.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		g.limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
	}
}

// WithCacheTTL enables the in-memory result cache with the given TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(g *geocoder) {
		g.cache = newResultCache(ttl)
	}
}

// WithRetry sets the retry policy for provider calls.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(g *geocoder) {
		g.retryCfg = cfg
	}
}

// WithBreaker sets the per-provider circuit breaker policy.
func WithBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(g *geocoder) {
		g.breakers = resilience.NewServiceBreakers(cfg)
	}
}

type geocoder struct {
	httpClient *http.Client
	googleKey  string
	limiter    *rate.Limiter
	cache      *resultCache
	retryCfg   resilience.RetryConfig
	breakers   *resilience.ServiceBreakers
}

// NewClient creates a new geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(50, 50), // Census default: 50 req/s
		retryCfg:   resilience.DefaultRetryConfig(),
		breakers:   resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig()),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Geocode resolves a single address, trying Census first, then Google if
// configured. Provider failures fall through rather than surfacing: the only
// hard errors are context cancellation and rate-limiter aborts.
func (g *geocoder) Geocode(ctx context.Context, address string) (*Result, error) {
	address = strings.Join(strings.Fields(address), " ")
	if address == "" {
		return &Result{Matched: false}, nil
	}

	key := cacheKey(address)
	if g.cache != nil {
		if cached, ok := g.cache.get(key); ok {
			return cached, nil
		}
	}

	result, censusErr := g.callProvider(ctx, "census", address, g.geocodeCensus)
	if censusErr != nil {
		if ctx.Err() != nil {
			return nil, censusErr
		}
		zap.L().Warn("census geocode failed",
			zap.String("address", address),
			zap.Error(censusErr),
		)
	}
	if censusErr == nil && result.Matched {
		g.store(key, result)
		return result, nil
	}

	if g.googleKey != "" {
		googleResult, googleErr := g.callProvider(ctx, "google", address, g.geocodeGoogle)
		if googleErr != nil {
			if ctx.Err() != nil {
				return nil, googleErr
			}
			zap.L().Warn("google geocode failed",
				zap.String("address", address),
				zap.Error(googleErr),
			)
		}
		if googleErr == nil && googleResult.Matched {
			g.store(key, googleResult)
			return googleResult, nil
		}
	}

	// No match from any provider. Cache the non-match so repeated addresses
	// don't re-pay for the lookups.
	miss := &Result{Matched: false}
	g.store(key, miss)
	return miss, nil
}

// callProvider runs one provider through its circuit breaker and the retry
// policy. Only transient errors are retried.
func (g *geocoder) callProvider(ctx context.Context, provider, address string, fn func(ctx context.Context, address string) (*Result, error)) (*Result, error) {
	cb := g.breakers.Get(provider)
	return resilience.ExecuteVal(ctx, cb, func(ctx context.Context) (*Result, error) {
		return resilience.DoVal(ctx, g.retryCfg, func(ctx context.Context) (*Result, error) {
			return fn(ctx, address)
		})
	})
}

func (g *geocoder) store(key string, result *Result) {
	if g.cache != nil {
		g.cache.put(key, result)
	}
}

// qualityConfidence maps a provider match quality to a confidence score.
func qualityConfidence(quality string) float64 {
	switch quality {
	case "rooftop":
		return 0.95
	case "range":
		return 0.8
	case "centroid":
		return 0.6
	case "approximate":
		return 0.4
	default:
		return 0.4
	}
}
