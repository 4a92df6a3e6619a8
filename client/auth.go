package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/persistorai/mining/internal/metrics"
)

const (
	// expiryLeeway renews tokens slightly before the server would reject them.
	expiryLeeway = 30 * time.Second
	// fetchTimeout bounds a token request shared by several callers.
	fetchTimeout = 30 * time.Second
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// tokenSource holds the workgroup's bearer token and renews it with the
// OpenID Connect client_credentials grant. Concurrent renewals collapse into one.
type tokenSource struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	log          *logrus.Logger
	now          func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time // zero means no known expiry

	group singleflight.Group
}

func newTokenSource(authURL, clientID, clientSecret string, hc *http.Client, log *logrus.Logger) *tokenSource {
	return &tokenSource{
		tokenURL:     authURL + "/protocol/openid-connect/token",
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   hc,
		log:          log,
		now:          time.Now,
	}
}

// Token returns a valid access token, fetching a new one if needed.
func (ts *tokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	if ts.token != "" && (ts.expiry.IsZero() || ts.now().Before(ts.expiry)) {
		tok := ts.token
		ts.mu.Unlock()
		return tok, nil
	}
	ts.mu.Unlock()

	// The shared fetch outlives any single caller; each caller still stops
	// waiting when its own context ends.
	ch := ts.group.DoChan("token", func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		return ts.fetch(fctx)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the cached token so the next call fetches a new one.
func (ts *tokenSource) Invalidate() {
	ts.mu.Lock()
	ts.token = ""
	ts.expiry = time.Time{}
	ts.mu.Unlock()
}

func (ts *tokenSource) fetch(ctx context.Context) (tok string, err error) {
	defer func() {
		metrics.TokenRefreshTotal.WithLabelValues(metrics.ResultLabel(err)).Inc()
	}()

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {ts.clientID},
		"client_secret": {ts.clientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		return "", ErrInvalidCredentials
	case resp.StatusCode >= 400:
		return "", parseAPIError(resp.StatusCode, body)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token response: missing access_token")
	}

	var expiry time.Time
	if tr.ExpiresIn > 0 {
		lifetime := time.Duration(tr.ExpiresIn) * time.Second
		if lifetime > 2*expiryLeeway {
			lifetime -= expiryLeeway
		}
		expiry = ts.now().Add(lifetime)
	}

	ts.mu.Lock()
	ts.token = tr.AccessToken
	ts.expiry = expiry
	ts.mu.Unlock()

	ts.log.WithFields(logrus.Fields{
		"client_id":  ts.clientID,
		"expires_in": tr.ExpiresIn,
	}).Debug("access token acquired")

	return tr.AccessToken, nil
}
