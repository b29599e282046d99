package fetch

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"
)

const defaultUserAgent = "bullet3-recipe"

// ClientOptions configures the download client.
type ClientOptions struct {
	// Timeout bounds a single request including the body read.
	Timeout time.Duration
	// Retries is the number of retries after the first attempt.
	Retries      int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	UserAgent    string
}

// userAgentTransport wraps an http.RoundTripper and injects a User-Agent header.
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(req)
}

// NewClient builds a retrying HTTP client logging through logger. The last
// response is passed through after retries are exhausted so callers can
// report its status.
func NewClient(opts ClientOptions, logger hclog.Logger) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.Logger = logger
	client.RetryMax = opts.Retries
	if opts.RetryWaitMin > 0 {
		client.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		client.RetryWaitMax = opts.RetryWaitMax
	}
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	userAgent := defaultUserAgent
	if opts.UserAgent != "" {
		userAgent = opts.UserAgent
	}
	client.HTTPClient.Transport = &userAgentTransport{
		base:      client.HTTPClient.Transport,
		userAgent: userAgent,
	}
	client.HTTPClient.Timeout = opts.Timeout

	return client
}
