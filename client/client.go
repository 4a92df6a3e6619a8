// Package client provides a typed Go SDK for the process mining platform REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/mining/internal/config"
	"github.com/persistorai/mining/internal/metrics"
)

const (
	defaultInstanceCache = 256
	defaultConcurrency   = 4
	defaultTimeout       = 30 * time.Second
)

// Client is the top-level platform API client. It is bound to one workgroup and
// is safe for concurrent use.
type Client struct {
	apiURL      string
	workgroupID string
	httpClient  *http.Client
	query       *retryablehttp.Client
	log         *logrus.Logger
	tokens      *tokenSource

	timeout     time.Duration
	insecureTLS bool

	cacheSize   int
	concurrency int

	mu       sync.Mutex
	projects map[string]*Project
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client, used for API, token and datasource
// requests. The client works on a copy; hc is left untouched.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the request timeout. It applies regardless of the order in
// which WithHTTPClient is given.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithInsecureTLS disables server certificate verification, for platforms
// deployed with self-signed certificates.
func WithInsecureTLS() Option {
	return func(c *Client) { c.insecureTLS = true }
}

// WithLogger sets the logger. Defaults to logrus.StandardLogger().
func WithLogger(log *logrus.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithInstanceCacheSize bounds the number of decoded graph instances each project keeps.
func WithInstanceCacheSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.cacheSize = n
		}
	}
}

// WithConcurrency bounds parallel graph instance fetches.
func WithConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// New creates a client for a workgroup. apiURL is normalised to end in "/pub";
// authURL must include the realm (e.g. "https://auth.example.com/realms/acme").
// No request is made until the first call.
func New(apiURL, authURL, workgroupID, workgroupKey string, opts ...Option) *Client {
	c := &Client{
		apiURL:      normaliseAPIURL(apiURL),
		workgroupID: workgroupID,
		httpClient:  defaultHTTPClient(),
		log:         logrus.StandardLogger(),
		cacheSize:   defaultInstanceCache,
		concurrency: defaultConcurrency,
		projects:    make(map[string]*Project),
	}
	for _, o := range opts {
		o(c)
	}
	c.httpClient = c.buildHTTPClient(c.httpClient)
	c.query = newQueryClient(c.httpClient, c.log)
	c.tokens = newTokenSource(strings.TrimRight(authURL, "/"), workgroupID, workgroupKey, c.httpClient, c.log)
	return c
}

// NewFromConfig creates a client from a loaded configuration. Options are applied
// after the configured values.
func NewFromConfig(cfg *config.Config, opts ...Option) *Client {
	base := []Option{
		WithTimeout(cfg.Timeout),
		WithInstanceCacheSize(cfg.InstanceCache),
		WithConcurrency(cfg.Concurrency),
	}
	if cfg.TLSInsecure {
		base = append(base, WithInsecureTLS())
	}
	return New(cfg.APIURL, cfg.AuthURL, cfg.WorkgroupID, cfg.WorkgroupKey.Value(), append(base, opts...)...)
}

// WorkgroupID returns the workgroup the client authenticates as.
func (c *Client) WorkgroupID() string { return c.workgroupID }

// APIURL returns the normalised API base URL.
func (c *Client) APIURL() string { return c.apiURL }

// Login acquires a token eagerly, surfacing ErrInvalidCredentials early.
func (c *Client) Login(ctx context.Context) error {
	_, err := c.tokens.Token(ctx)
	return err
}

func defaultHTTPClient() *http.Client {
	hc := cleanhttp.DefaultPooledClient()
	hc.Timeout = defaultTimeout
	return hc
}

func normaliseAPIURL(raw string) string {
	raw = strings.TrimRight(raw, "/")
	if strings.HasSuffix(raw, "/pub") {
		return raw
	}
	return raw + "/pub"
}

// do executes a JSON request against the API and decodes the JSON response.
func (c *Client) do(ctx context.Context, method, path string, body any, result any) error {
	payload, contentType, err := encodeJSON(body)
	if err != nil {
		return err
	}
	_, err = c.doRaw(ctx, method, path, contentType, payload, result)
	return err
}

func encodeJSON(body any) ([]byte, string, error) {
	if body == nil {
		return nil, "", nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("marshal request: %w", err)
	}
	return data, "application/json", nil
}

// doRaw sends a pre-encoded body and retries once with a fresh token on 401.
// It returns the final HTTP status.
func (c *Client) doRaw(ctx context.Context, method, path, contentType string, payload []byte, result any) (int, error) {
	status, respBody, err := c.roundTrip(ctx, method, path, contentType, payload)
	if err == nil && status == http.StatusUnauthorized {
		c.log.WithFields(logrus.Fields{"method": method, "route": routeLabel(path)}).Debug("token rejected, retrying with a fresh one")
		c.tokens.Invalidate()
		status, respBody, err = c.roundTrip(ctx, method, path, contentType, payload)
	}
	if err != nil {
		return 0, err
	}

	if status >= 400 {
		return status, parseAPIError(status, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if raw, ok := result.(*[]byte); ok {
			*raw = respBody
			return status, nil
		}
		if err := json.Unmarshal(respBody, result); err != nil {
			return status, fmt.Errorf("decode response: %w", err)
		}
	}
	return status, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path, contentType string, payload []byte) (int, []byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return 0, nil, err
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", "mining-go/"+config.Version)

	route := routeLabel(path)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observe(method, route, "error", start)
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	observe(method, route, strconv.Itoa(resp.StatusCode), start)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func observe(method, route, status string, start time.Time) {
	metrics.RequestDuration.WithLabelValues(method, route, status).Observe(time.Since(start).Seconds())
	metrics.RequestsTotal.WithLabelValues(method, route, status).Inc()
}

// get is a convenience wrapper for GET requests with query parameters.
func (c *Client) get(ctx context.Context, path string, params url.Values, result any) error {
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	return c.do(ctx, http.MethodGet, path, nil, result)
}

// post is a convenience wrapper for POST requests.
func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}

// del is a convenience wrapper for DELETE requests.
func (c *Client) del(ctx context.Context, path string, result any) error {
	return c.do(ctx, http.MethodDelete, path, nil, result)
}

// segments followed by an identifier; collapsed so the route label stays bounded.
var idSegments = map[string]bool{
	"project":     true,
	"datasources": true,
	"train":       true,
	"file":        true,
	"prediction":  true,
}

func routeLabel(path string) string {
	path, _, _ = strings.Cut(path, "?")
	segs := strings.Split(path, "/")
	for i := 1; i < len(segs); i++ {
		if idSegments[segs[i-1]] && segs[i] != "possibility" {
			segs[i] = "{id}"
		}
	}
	return strings.Join(segs, "/")
}
