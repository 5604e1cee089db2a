// Package httpclient provides an HTTP client hardened for calling
// user-influenced URLs (webhook callback endpoints, tunnel addresses).
package httpclient

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nightdesk/nightdesk/errors"
)

// SaferClient wraps http.Client with scheme and redirect validation.
// The engine dials URLs that originate from configuration and from the
// webhook provider; neither is fully trusted.
type SaferClient struct {
	*http.Client
	allowedSchemes []string
	maxRedirects   int
}

// NewSaferClient creates an HTTP client that only speaks http/https,
// rejects credential-bearing URLs, and caps redirect chains.
func NewSaferClient(timeout time.Duration) *SaferClient {
	client := &SaferClient{
		Client: &http.Client{
			Timeout: timeout,
		},
		allowedSchemes: []string{"http", "https"},
		maxRedirects:   10,
	}

	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= client.maxRedirects {
			return errors.Newf("stopped after %d redirects", client.maxRedirects)
		}
		if err := client.ValidateURL(req.URL); err != nil {
			return errors.Wrap(err, "redirect blocked")
		}
		return nil
	}

	return client
}

// ValidateURL validates a URL before a request is made with it.
func (c *SaferClient) ValidateURL(u *url.URL) error {
	scheme := strings.ToLower(u.Scheme)
	allowed := false
	for _, allowedScheme := range c.allowedSchemes {
		if scheme == allowedScheme {
			allowed = true
			break
		}
	}
	if !allowed {
		return errors.Newf("scheme %q not allowed (allowed: %v)", scheme, c.allowedSchemes)
	}

	// http://evil.com@localhost/ style confusion
	if u.User != nil {
		return errors.New("URL contains userinfo (potential SSRF attempt)")
	}

	if u.Hostname() == "" {
		return errors.New("URL has no host")
	}

	return nil
}

// Do validates the request URL and then performs the request.
func (c *SaferClient) Do(req *http.Request) (*http.Response, error) {
	if err := c.ValidateURL(req.URL); err != nil {
		return nil, err
	}
	return c.Client.Do(req)
}
