package groq

import (
	"net/http"
	"time"
)

// Option configures the provider.
type Option func(*Provider)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = url
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// WithMaxRetries sets the retry budget for transient upstream failures.
func WithMaxRetries(n uint64) Option {
	return func(p *Provider) {
		p.maxRetries = n
	}
}

// WithRetryBase sets the base delay of the exponential retry backoff.
func WithRetryBase(d time.Duration) Option {
	return func(p *Provider) {
		p.retryBase = d
	}
}
