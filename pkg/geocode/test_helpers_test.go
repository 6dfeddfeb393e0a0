package geocode

import (
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

// newTestLimiter creates a rate limiter that effectively does not limit for tests.
func newTestLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}

// newRewriteClient creates an HTTP client that rewrites requests to a test server URL.
// All requests matching the target prefix are redirected to the test server.
func newRewriteClient(testServerURL, targetPrefix string) *http.Client {
	return &http.Client{
		Transport: &rewriteTransport{
			base: http.DefaultTransport,
			routes: map[string]string{
				targetPrefix: testServerURL,
			},
		},
	}
}

// newMultiRewriteClient routes each target prefix to its own test server.
func newMultiRewriteClient(routes map[string]string) *http.Client {
	return &http.Client{
		Transport: &rewriteTransport{
			base:   http.DefaultTransport,
			routes: routes,
		},
	}
}

type rewriteTransport struct {
	base   http.RoundTripper
	routes map[string]string // target prefix -> test server URL
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	origURL := req.URL.String()
	for prefix, server := range t.routes {
		if !strings.HasPrefix(origURL, prefix) {
			continue
		}
		newURL := server + origURL[len(prefix):]
		newReq := req.Clone(req.Context())
		parsed, err := req.URL.Parse(newURL)
		if err != nil {
			return nil, err
		}
		newReq.URL = parsed
		newReq.Host = parsed.Host
		return t.base.RoundTrip(newReq)
	}
	return t.base.RoundTrip(req)
}
