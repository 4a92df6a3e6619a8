package client

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

const (
	queryRetryMax     = 3
	queryRetryWaitMin = 200 * time.Millisecond
	queryRetryWaitMax = 2 * time.Second
)

// buildHTTPClient returns a copy of base with the client's timeout and TLS
// settings applied. base itself is never modified.
func (c *Client) buildHTTPClient(base *http.Client) *http.Client {
	if base == nil {
		base = cleanhttp.DefaultPooledClient()
	}
	hc := *base
	if c.timeout > 0 {
		hc.Timeout = c.timeout
	}
	if c.insecureTLS {
		hc.Transport = c.insecureTransport(hc.Transport)
	}
	return &hc
}

// insecureTransport returns a transport that skips certificate verification.
// Only *http.Transport can be reconfigured; other round trippers pass through.
func (c *Client) insecureTransport(rt http.RoundTripper) http.RoundTripper {
	if rt == nil {
		rt = http.DefaultTransport
	}
	t, ok := rt.(*http.Transport)
	if !ok {
		c.log.WithField("transport", fmt.Sprintf("%T", rt)).
			Warn("insecure TLS requested but the HTTP transport cannot be reconfigured")
		return rt
	}
	t = t.Clone()
	if t.TLSClientConfig == nil {
		t.TLSClientConfig = &tls.Config{} //nolint:gosec
	}
	t.TLSClientConfig.InsecureSkipVerify = true //nolint:gosec
	return t
}

// newQueryClient wraps hc with retries for the Druid SQL endpoint. Connection
// errors, 429 and 5xx responses are retried; the last response is returned
// as-is so the caller can decode the error body.
func newQueryClient(hc *http.Client, log *logrus.Logger) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = hc
	rc.Logger = retryLogger{log.WithField("component", "druid")}
	rc.RetryMax = queryRetryMax
	rc.RetryWaitMin = queryRetryWaitMin
	rc.RetryWaitMax = queryRetryWaitMax
	rc.CheckRetry = retryablehttp.DefaultRetryPolicy
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return rc
}

// retryLogger adapts logrus to retryablehttp.LeveledLogger. Per-attempt
// chatter is logged at debug.
type retryLogger struct {
	entry *logrus.Entry
}

func (l retryLogger) with(kv []any) *logrus.Entry {
	fields := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			fields[k] = kv[i+1]
		}
	}
	return l.entry.WithFields(fields)
}

func (l retryLogger) Error(msg string, kv ...any) { l.with(kv).Error(msg) }
func (l retryLogger) Warn(msg string, kv ...any)  { l.with(kv).Warn(msg) }
func (l retryLogger) Info(msg string, kv ...any)  { l.with(kv).Debug(msg) }
func (l retryLogger) Debug(msg string, kv ...any) { l.with(kv).Debug(msg) }
